// Copyright 2026 The histpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package datafile

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// FormatVersion is the single supported on-disk version.
	FormatVersion = 0

	// NodeSize is the width of every hash stored in a pack.
	NodeSize = 20

	versionSize     = 1
	filenameLenSize = 2
	revCountSize    = 4

	// recordFixedSize is a revision record minus its variable-length
	// copyfrom tail: node + p1 + p2 + linknode + copyfrom length.
	recordFixedSize = 4*NodeSize + 2

	copyfromLenOff = 4 * NodeSize

	// MaxNameLen and MaxCopyfromLen are bounded by their 2-byte
	// length prefixes.
	MaxNameLen     = 1<<16 - 1
	MaxCopyfromLen = 1<<16 - 1

	maxSectionRecords = 1<<32 - 1
)

var (
	ErrUnsupportedVersion = errors.New("unsupported histpack data version")
	ErrTruncated          = errors.New("data file truncated or corrupted")
)

// Record is one ancestry edge: the revision's two parents, the
// changeset that introduced it, and the source path when p1 lives in a
// different file (a rename or copy).
type Record struct {
	Node     [NodeSize]byte
	P1       [NodeSize]byte
	P2       [NodeSize]byte
	Linknode [NodeSize]byte
	Copyfrom string
}

func appendRecord(buf []byte, r *Record) []byte {
	buf = append(buf, r.Node[:]...)
	buf = append(buf, r.P1[:]...)
	buf = append(buf, r.P2[:]...)
	buf = append(buf, r.Linknode[:]...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(r.Copyfrom)))
	buf = append(buf, r.Copyfrom...)
	return buf
}

// decodeRecord parses one record from the front of b, returning the
// number of bytes consumed.
func decodeRecord(b []byte) (Record, int, error) {
	if len(b) < recordFixedSize {
		return Record{}, 0, fmt.Errorf("%w: %d bytes left, record header needs %d", ErrTruncated, len(b), recordFixedSize)
	}
	var r Record
	copy(r.Node[:], b[:NodeSize])
	copy(r.P1[:], b[NodeSize:2*NodeSize])
	copy(r.P2[:], b[2*NodeSize:3*NodeSize])
	copy(r.Linknode[:], b[3*NodeSize:4*NodeSize])
	copyfromLen := int(binary.BigEndian.Uint16(b[copyfromLenOff : copyfromLenOff+2]))
	if recordFixedSize+copyfromLen > len(b) {
		return Record{}, 0, fmt.Errorf("%w: copyfrom length %d overruns section", ErrTruncated, copyfromLen)
	}
	if copyfromLen > 0 {
		r.Copyfrom = string(b[recordFixedSize : recordFixedSize+copyfromLen])
	}
	return r, recordFixedSize + copyfromLen, nil
}
