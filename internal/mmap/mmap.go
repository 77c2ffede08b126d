// Copyright 2026 The histpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package mmap provides a read-only memory mapping of a whole file.
//
// The mapping is Unix-only.  Deleting a mapped file is safe here
// because POSIX unlink removes the directory entry without
// invalidating existing mappings; on filesystems without that
// guarantee callers must defer deletion until all readers are closed.
package mmap

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// ReaderAt is a read-only view of a file's contents.  It is safe for
// concurrent use: the underlying pages are mapped PROT_READ and are
// never modified.
type ReaderAt struct {
	data []byte
}

// Open maps the file at path in its entirety.  The file descriptor is
// closed before returning; the mapping keeps the contents alive.
func Open(path string) (*ReaderAt, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("os.Open(%s): %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("f.Stat: %w", err)
	}
	size := st.Size()
	if size == 0 {
		return nil, fmt.Errorf("cannot map empty file %s", path)
	}
	if size != int64(int(size)) {
		return nil, fmt.Errorf("file %s too large to map", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("unix.Mmap(%s): %w", path, err)
	}

	// lookups jump around the index, so don't bother with readahead
	if err := unix.Madvise(data, syscall.MADV_RANDOM); err != nil {
		_ = unix.Munmap(data)
		return nil, fmt.Errorf("madvise: %w", err)
	}

	return &ReaderAt{data: data}, nil
}

// Data returns the mapped bytes.  The slice must not be written to or
// retained past Close.
func (r *ReaderAt) Data() []byte {
	return r.data
}

// Len returns the length of the mapping in bytes.
func (r *ReaderAt) Len() int {
	return len(r.data)
}

// Close unmaps the file.  Slices previously returned by Data become
// invalid.  Multiple closes are safe.
func (r *ReaderAt) Close() error {
	if r.data == nil {
		return nil
	}
	data := r.data
	r.data = nil
	return unix.Munmap(data)
}
