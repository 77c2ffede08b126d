// Copyright 2026 The histpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package datafile

import (
	"encoding/binary"
	"fmt"

	"github.com/filehist/histpack/internal/mmap"
)

// Reader is a memory-mapped, read-only view of one data file.  All
// parsing is explicit slice indexing into the mapped buffer with a
// bounds check before every read; nothing is copied out except the
// strings and hashes a caller asks for.  Readers are safe for
// concurrent use.
type Reader struct {
	mm   *mmap.ReaderAt
	data []byte
}

// NewReader maps the data file at path and verifies its format
// version.
func NewReader(path string) (*Reader, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mmap.Open(%s): %w", path, err)
	}
	data := m.Data()
	if len(data) < versionSize {
		_ = m.Close()
		return nil, fmt.Errorf("data file %s: %w: shorter than version header", path, ErrTruncated)
	}
	if version := data[0]; version != FormatVersion {
		// read the version out before Close unmaps the buffer
		_ = m.Close()
		return nil, fmt.Errorf("data file %s: %w: found v%d, want v%d", path, ErrUnsupportedVersion, version, FormatVersion)
	}
	return &Reader{mm: m, data: data}, nil
}

// Size returns the length of the data file in bytes.
func (r *Reader) Size() uint64 {
	return uint64(len(r.data))
}

// Close unmaps the file.
func (r *Reader) Close() error {
	r.data = nil
	return r.mm.Close()
}

// Section is the decoded header of one file section plus the raw
// bytes of its revision records, still pointing into the mapping.
type Section struct {
	Name  string
	Count uint32
	body  []byte
}

// Records returns an iterator over the section's revision records in
// storage order (newest first).
func (s *Section) Records() *RecordIter {
	return &RecordIter{body: s.body}
}

// RecordIter walks the revision records of one section.  Check Err
// after Next returns false: a truncated or overrunning record is
// corruption, not end-of-section.
type RecordIter struct {
	body []byte
	off  int
	err  error
}

func (it *RecordIter) Next() (Record, bool) {
	if it.err != nil || it.off >= len(it.body) {
		return Record{}, false
	}
	rec, n, err := decodeRecord(it.body[it.off:])
	if err != nil {
		it.err = err
		return Record{}, false
	}
	it.off += n
	return rec, true
}

func (it *RecordIter) Err() error {
	return it.err
}

// Section decodes the file section occupying [off, off+size), as
// located by the index.  The returned Section's Name is the filename
// actually stored at that offset; callers compare it against the name
// they looked up to detect index corruption.
func (r *Reader) Section(off, size uint64) (*Section, error) {
	if off < versionSize || size == 0 || off+size < off || off+size > uint64(len(r.data)) {
		return nil, fmt.Errorf("%w: section [%d, %d) outside data file of %d bytes", ErrTruncated, off, off+size, len(r.data))
	}
	sec, _, err := parseSectionHeader(r.data[off:off+size], off)
	if err != nil {
		return nil, err
	}
	return sec, nil
}

// parseSectionHeader decodes a section header from the front of buf
// and returns the section with its body spanning the rest of buf.
// fileOff is only used for error context.
func parseSectionHeader(buf []byte, fileOff uint64) (*Section, int, error) {
	if len(buf) < filenameLenSize {
		return nil, 0, fmt.Errorf("%w: section header at %d", ErrTruncated, fileOff)
	}
	nameLen := int(binary.BigEndian.Uint16(buf[:filenameLenSize]))
	if nameLen == 0 {
		return nil, 0, fmt.Errorf("%w: zero-length filename at %d", ErrTruncated, fileOff)
	}
	headerLen := filenameLenSize + nameLen + revCountSize
	if headerLen > len(buf) {
		return nil, 0, fmt.Errorf("%w: section header at %d overruns file", ErrTruncated, fileOff)
	}
	name := string(buf[filenameLenSize : filenameLenSize+nameLen])
	count := binary.BigEndian.Uint32(buf[filenameLenSize+nameLen : headerLen])
	return &Section{
		Name:  name,
		Count: count,
		body:  buf[headerLen:],
	}, headerLen, nil
}

// ForEachSection walks every file section in storage order, calling
// fn for each.  It is used for whole-pack scans (ledger registration
// and repacking) where the index is not needed.  Returning an error
// from fn stops the walk.
func (r *Reader) ForEachSection(fn func(*Section) error) error {
	off := uint64(versionSize)
	size := uint64(len(r.data))
	for off < size {
		sec, headerLen, err := parseSectionHeader(r.data[off:], off)
		if err != nil {
			return err
		}
		// walk Count records to find where this section ends
		bodyStart := off + uint64(headerLen)
		bodyOff := 0
		body := r.data[bodyStart:]
		for i := uint32(0); i < sec.Count; i++ {
			if bodyOff+recordFixedSize > len(body) {
				return fmt.Errorf("%w: record %d of section %q overruns file", ErrTruncated, i, sec.Name)
			}
			copyfromLen := int(binary.BigEndian.Uint16(body[bodyOff+copyfromLenOff : bodyOff+copyfromLenOff+2]))
			bodyOff += recordFixedSize + copyfromLen
			if bodyOff > len(body) {
				return fmt.Errorf("%w: copyfrom of record %d of section %q overruns file", ErrTruncated, i, sec.Name)
			}
		}
		sec.body = body[:bodyOff]
		if err := fn(sec); err != nil {
			return err
		}
		off = bodyStart + uint64(bodyOff)
	}
	return nil
}
