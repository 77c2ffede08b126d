// Copyright 2026 The histpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package indexfile

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// Marshal serializes a complete index file: version byte, fanout
// table, then the entries sorted ascending by filename hash.  The
// caller owns writing the returned bytes to disk.
func Marshal(entries []Entry) []byte {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].NameHash[:], sorted[j].NameHash[:]) < 0
	})

	// record the byte offset of the first entry for each prefix,
	// then back-fill empty slots with the nearest preceding value so
	// the table is non-decreasing
	fanout := make([]int64, fanoutCount)
	for i := range fanout {
		fanout[i] = -1
	}
	for i := range sorted {
		key := binary.BigEndian.Uint16(sorted[i].NameHash[:fanoutPrefix])
		if fanout[key] == -1 {
			fanout[key] = int64(i * EntrySize)
		}
	}

	buf := make([]byte, 0, entriesStart+len(sorted)*EntrySize)
	buf = append(buf, FormatVersion)
	last := int64(0)
	for _, off := range fanout {
		if off == -1 {
			off = last
		}
		last = off
		buf = binary.BigEndian.AppendUint32(buf, uint32(off))
	}
	for i := range sorted {
		buf = append(buf, sorted[i].NameHash[:]...)
		buf = binary.BigEndian.AppendUint64(buf, sorted[i].Offset)
		buf = binary.BigEndian.AppendUint64(buf, sorted[i].Size)
	}
	return buf
}
