// Copyright 2026 The histpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package indexfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/filehist/histpack/internal/mmap"
)

// Reader answers point lookups against one memory-mapped index file.
// The fanout table is decoded into an in-memory array at open time
// for fast slot access; the sorted entries themselves stay mapped and
// are bisected in place.  Readers are safe for concurrent use.
type Reader struct {
	mm      *mmap.ReaderAt
	fanout  []uint32
	entries []byte
	count   int
}

// NewReader maps the index file at path, verifies its format version,
// and decodes the fanout table.
func NewReader(path string) (*Reader, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mmap.Open(%s): %w", path, err)
	}
	data := m.Data()
	if len(data) < entriesStart {
		_ = m.Close()
		return nil, fmt.Errorf("index file %s: %w: %d bytes is shorter than the fixed header", path, ErrMalformed, len(data))
	}
	if version := data[0]; version != FormatVersion {
		// read the version out before Close unmaps the buffer
		_ = m.Close()
		return nil, fmt.Errorf("index file %s: %w: found v%d, want v%d", path, ErrUnsupportedVersion, version, FormatVersion)
	}
	entries := data[entriesStart:]
	if len(entries)%EntrySize != 0 {
		_ = m.Close()
		return nil, fmt.Errorf("index file %s: %w: entry region of %d bytes is not a multiple of %d", path, ErrMalformed, len(entries), EntrySize)
	}

	fanout := make([]uint32, fanoutCount)
	raw := data[versionSize:entriesStart]
	for i := range fanout {
		fanout[i] = binary.BigEndian.Uint32(raw[i*fanoutEntrySize : (i+1)*fanoutEntrySize])
	}

	return &Reader{
		mm:      m,
		fanout:  fanout,
		entries: entries,
		count:   len(entries) / EntrySize,
	}, nil
}

// Count returns the number of index entries.
func (r *Reader) Count() int {
	return r.count
}

// Close unmaps the file.
func (r *Reader) Close() error {
	r.entries = nil
	return r.mm.Close()
}

func (r *Reader) hashAt(i int) []byte {
	return r.entries[i*EntrySize : i*EntrySize+hashSize]
}

func (r *Reader) entryAt(i int) Entry {
	var e Entry
	rec := r.entries[i*EntrySize : (i+1)*EntrySize]
	copy(e.NameHash[:], rec[:hashSize])
	e.Offset = binary.BigEndian.Uint64(rec[hashSize : hashSize+8])
	e.Size = binary.BigEndian.Uint64(rec[hashSize+8:])
	return e
}

// Lookup finds the entry whose NameHash equals namehash.  The fanout
// table narrows the candidate range to one 2-byte prefix; the range
// bounds are checked for an exact hit before bisecting the interior.
func (r *Reader) Lookup(namehash [hashSize]byte) (Entry, bool) {
	key := binary.BigEndian.Uint16(namehash[:fanoutPrefix])

	startOff := r.fanout[key]
	start := int(startOff) / EntrySize
	end := r.count
	// back-filled slots repeat the previous value, so the first slot
	// holding a different offset marks the start of the next
	// populated prefix
	for i := int(key) + 1; i < fanoutCount; i++ {
		if r.fanout[i] != startOff {
			end = int(r.fanout[i]) / EntrySize
			break
		}
	}
	if start >= end || end > r.count {
		return Entry{}, false
	}

	if bytes.Equal(r.hashAt(start), namehash[:]) {
		return r.entryAt(start), true
	}
	if last := end - 1; last > start && bytes.Equal(r.hashAt(last), namehash[:]) {
		return r.entryAt(last), true
	}

	i := start + sort.Search(end-start, func(i int) bool {
		return bytes.Compare(r.hashAt(start+i), namehash[:]) >= 0
	})
	if i < end && bytes.Equal(r.hashAt(i), namehash[:]) {
		return r.entryAt(i), true
	}
	return Entry{}, false
}
