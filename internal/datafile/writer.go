// Copyright 2026 The histpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package datafile

import (
	"bufio"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

const defaultBufferSize = 1024 * 1024

// Writer serializes file sections into a data file, feeding every
// byte through a SHA-1 so the finished file can be published under a
// name derived from its own content.  A Writer is not safe for
// concurrent use.
type Writer struct {
	w        *bufio.Writer
	sum      hash.Hash
	off      uint64
	finished bool
	digest   string
}

// NewWriter wraps f and writes the version header through it
// immediately.
func NewWriter(f io.Writer) (*Writer, error) {
	w := &Writer{
		w:   bufio.NewWriterSize(f, defaultBufferSize),
		sum: sha1.New(),
	}
	if err := w.writeRaw([]byte{FormatVersion}); err != nil {
		return nil, fmt.Errorf("write version header: %w", err)
	}
	// surface errors writing to the backing file early
	if err := w.w.Flush(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	return w, nil
}

// Offset returns the number of bytes written so far, including the
// version header.
func (w *Writer) Offset() uint64 {
	return w.off
}

func (w *Writer) writeRaw(b []byte) error {
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	// hash.Hash writes never fail
	_, _ = w.sum.Write(b)
	w.off += uint64(len(b))
	return nil
}

// WriteSection appends the complete revision history for one file.
// Records must already be ordered newest first.  It returns the byte
// offset and length of the section for the index.
func (w *Writer) WriteSection(name string, recs []Record) (off, size uint64, err error) {
	if w.finished {
		return 0, 0, fmt.Errorf("writer already finished")
	}
	if len(name) == 0 {
		return 0, 0, fmt.Errorf("empty filename not supported")
	}
	if len(name) > MaxNameLen {
		return 0, 0, fmt.Errorf("filename %q too long (%d > %d)", name, len(name), MaxNameLen)
	}
	if uint64(len(recs)) > maxSectionRecords {
		return 0, 0, fmt.Errorf("too many revisions for %q (%d)", name, len(recs))
	}
	for i := range recs {
		if len(recs[i].Copyfrom) > MaxCopyfromLen {
			return 0, 0, fmt.Errorf("copyfrom %q too long (%d > %d)", recs[i].Copyfrom, len(recs[i].Copyfrom), MaxCopyfromLen)
		}
	}

	off = w.off

	header := make([]byte, 0, filenameLenSize+len(name)+revCountSize)
	header = binary.BigEndian.AppendUint16(header, uint16(len(name)))
	header = append(header, name...)
	header = binary.BigEndian.AppendUint32(header, uint32(len(recs)))
	if err := w.writeRaw(header); err != nil {
		return 0, 0, fmt.Errorf("write section header: %w", err)
	}

	var scratch []byte
	for i := range recs {
		scratch = appendRecord(scratch[:0], &recs[i])
		if err := w.writeRaw(scratch); err != nil {
			return 0, 0, fmt.Errorf("write revision record: %w", err)
		}
	}

	return off, w.off - off, nil
}

// Finish flushes buffered data and returns the hex SHA-1 of the whole
// stream.  Finishing more than once returns the same digest.
func (w *Writer) Finish() (string, error) {
	if w.finished {
		return w.digest, nil
	}
	if err := w.w.Flush(); err != nil {
		return "", fmt.Errorf("flush: %w", err)
	}
	w.finished = true
	w.digest = hex.EncodeToString(w.sum.Sum(nil))
	return w.digest, nil
}
