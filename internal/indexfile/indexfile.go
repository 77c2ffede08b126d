// Copyright 2026 The histpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package indexfile reads and writes the index half of a history
// pack: a sparse fanout table over a sorted list of fixed-width index
// entries.
//
// An index file looks like:
//
//	┌──────────────────────────────┐
//	│ version (1 byte)             │
//	├──────────────────────────────┤
//	│ fanout: 2^16 x u32 offsets   │
//	├──────────────────────────────┤
//	│ sorted 36-byte index entries │
//	└──────────────────────────────┘
//
// Each entry is the SHA-1 of a filename, followed by the u64 offset
// and u64 length of that file's section in the data file.  Entries
// are sorted ascending by hash.  Fanout slot i holds the byte offset
// (within the entry region) of the first entry whose hash starts with
// the 2-byte prefix i; slots with no entries of their own inherit the
// previous slot's value, so the table is monotonically non-decreasing
// and a lookup only has to bisect the narrow range between two fanout
// values instead of the whole index.
package indexfile

import "errors"

const (
	// FormatVersion is the single supported on-disk version.
	FormatVersion = 0

	versionSize = 1

	// fanoutPrefix is the number of leading hash bytes addressed by
	// the fanout table.
	fanoutPrefix    = 2
	fanoutCount     = 1 << (8 * fanoutPrefix)
	fanoutEntrySize = 4
	fanoutSize      = fanoutCount * fanoutEntrySize

	entriesStart = versionSize + fanoutSize

	hashSize = 20

	// EntrySize is hash + section offset (u64) + section size (u64).
	EntrySize = hashSize + 8 + 8
)

var (
	ErrUnsupportedVersion = errors.New("unsupported histpack index version")
	ErrMalformed          = errors.New("index file malformed")
)

// Entry locates one file section in the data file.
type Entry struct {
	NameHash [hashSize]byte
	Offset   uint64
	Size     uint64
}
