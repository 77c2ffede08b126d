// Copyright 2026 The histpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package histpack

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/renameio"

	"github.com/filehist/histpack/internal/datafile"
	"github.com/filehist/histpack/internal/indexfile"
)

// Builder accumulates file-revision history and serializes it into a
// new immutable pack.  All revisions for a given filename must be
// added contiguously; once a different filename is started, the
// earlier file can never be reopened in the same session.
//
// A Builder writes to a private temporary file and publishes nothing
// until Close, which renames both files to their content-hash-derived
// names.  On error, Abort removes all traces.  A Builder is not safe
// for concurrent use.
type Builder struct {
	dir      string
	dataFile *os.File
	w        *datafile.Writer
	logger   *slog.Logger

	current     string
	currentRecs []datafile.Record
	past        stringSet
	entries     []indexfile.Entry

	closed  bool
	aborted bool
	stem    string
}

// NewBuilder creates a Builder whose finished pack will live in dir.
// The temporary data file is created in the same directory so the
// closing rename stays on one filesystem and is atomic.
func NewBuilder(dir string, opts ...Option) (*Builder, error) {
	o := newOptions(opts)
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("filepath.Abs: %w", err)
	}
	dataFile, err := os.CreateTemp(dir, "histpack-builder.*"+PackSuffix+"-tmp")
	if err != nil {
		return nil, fmt.Errorf("CreateTemp failed (may need permissions for dir %q): %w", dir, err)
	}
	w, err := datafile.NewWriter(dataFile)
	if err != nil {
		_ = dataFile.Close()
		_ = os.Remove(dataFile.Name())
		return nil, fmt.Errorf("datafile.NewWriter: %w", err)
	}
	return &Builder{
		dir:      dir,
		dataFile: dataFile,
		w:        w,
		logger:   o.logger,
		past:     make(stringSet),
	}, nil
}

// Add buffers one revision for name.  Switching to a new filename
// finalizes the previous file's section; adding to a filename that
// was already finalized in this session is a programmer error and
// fails before any bytes are buffered.
func (b *Builder) Add(name string, node, p1, p2, linknode Node, copyfrom string) error {
	if b.closed || b.aborted {
		return fmt.Errorf("cannot add %s:%s: builder already closed", name, node)
	}
	// the format has no representation for a nameless section, and ""
	// doubles as the no-section-open sentinel
	if name == "" {
		return fmt.Errorf("cannot add %s: empty filename not supported", node)
	}
	if name != b.current {
		if b.past.Contains(name) {
			return fmt.Errorf("cannot add %s:%s after another file's nodes have been added", name, node)
		}
		if b.current != "" {
			if err := b.flushSection(); err != nil {
				return err
			}
		}
		b.current = name
		b.currentRecs = b.currentRecs[:0]
	}
	b.currentRecs = append(b.currentRecs, datafile.Record{
		Node:     node,
		P1:       p1,
		P2:       p2,
		Linknode: linknode,
		Copyfrom: copyfrom,
	})
	return nil
}

func (b *Builder) flushSection() error {
	off, size, err := b.w.WriteSection(b.current, b.currentRecs)
	if err != nil {
		return fmt.Errorf("write section %q: %w", b.current, err)
	}
	b.entries = append(b.entries, indexfile.Entry{
		NameHash: hashName(b.current),
		Offset:   off,
		Size:     size,
	})
	b.past.Add(b.current)
	return nil
}

// Close finalizes any open section, publishes the data and index
// files under the data stream's hex SHA-1, and returns the pack's
// path stem.  Closing again is a no-op returning the same stem.  On
// error the temporary files are removed and nothing becomes visible.
func (b *Builder) Close() (string, error) {
	if b.closed {
		return b.stem, nil
	}
	if b.aborted {
		return "", fmt.Errorf("builder was aborted")
	}
	stem, err := b.close()
	if err != nil {
		b.Abort()
		return "", err
	}
	b.closed = true
	b.stem = stem
	return stem, nil
}

func (b *Builder) close() (string, error) {
	if b.current != "" {
		if err := b.flushSection(); err != nil {
			return "", err
		}
		b.current = ""
	}

	sum, err := b.w.Finish()
	if err != nil {
		return "", err
	}
	if err := b.dataFile.Sync(); err != nil {
		return "", fmt.Errorf("sync data file: %w", err)
	}
	if err := b.dataFile.Close(); err != nil {
		return "", fmt.Errorf("close data file: %w", err)
	}
	if err := os.Chmod(b.dataFile.Name(), 0o444); err != nil {
		return "", fmt.Errorf("os.Chmod(0444): %w", err)
	}

	stem := filepath.Join(b.dir, sum)
	// identical content collapses to an identical name, so the
	// rename is idempotent across concurrent builders
	if err := os.Rename(b.dataFile.Name(), stem+PackSuffix); err != nil {
		return "", fmt.Errorf("os.Rename: %w", err)
	}
	b.dataFile = nil

	// the index's final name is only known now; renameio gives the
	// same write-hidden-then-rename publication in one shot
	if err := renameio.WriteFile(stem+IndexSuffix, indexfile.Marshal(b.entries), 0o444); err != nil {
		// without its index the data file is invisible to stores
		_ = os.Remove(stem + PackSuffix)
		return "", fmt.Errorf("write index: %w", err)
	}

	b.logger.Debug("published pack",
		"stem", stem, "files", len(b.entries), "bytes", b.w.Offset())
	return stem, nil
}

// Abort discards the build, removing any temporary files.  Calling
// Abort after a successful Close is a no-op; secondary errors during
// removal are swallowed.
func (b *Builder) Abort() {
	if b.closed || b.aborted {
		return
	}
	b.aborted = true
	if b.dataFile != nil {
		_ = b.dataFile.Close()
		_ = os.Remove(b.dataFile.Name())
		b.dataFile = nil
	}
}
