// Copyright 2026 The histpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package histpack implements an immutable, content-addressed pack
// file format for file-revision ancestry metadata: parent pointers,
// the changeset that introduced each revision, and rename/copy
// provenance.  It is the on-disk layer of a lazily-fetched
// file-history cache for a distributed version-control system.
//
// A pack is a pair of files sharing a stem derived from the SHA-1 of
// the data file's contents:
//
//	<hex sha1>.histpack   revision records, grouped per file
//	<hex sha1>.histidx    fanout table + sorted index into the above
//
// Packs are built once through a Builder, atomically published by
// renaming into place, and never mutated afterwards; readers
// memory-map both files and are safe for concurrent use.  A Store
// aggregates every pack in a directory, and Repack folds a store's
// packs into one, using a Ledger to prove an old pack is fully
// superseded before deleting it.
package histpack

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

const (
	// PackSuffix and IndexSuffix name the two files of a pack.
	PackSuffix  = ".histpack"
	IndexSuffix = ".histidx"

	// NodeSize is the width of every hash in the format.
	NodeSize = 20
)

var (
	// ErrNotFound reports that a (filename, node) key is not present
	// in a pack or store.  Callers may retry against another pack.
	ErrNotFound = errors.New("key not found")

	// ErrImmutable reports an attempted write to a published pack or
	// to a store of published packs.
	ErrImmutable = errors.New("pack is immutable")

	// ErrCorrupt reports an inconsistency between the index and data
	// files, such as an index entry resolving to the wrong filename.
	ErrCorrupt = errors.New("pack corrupted")
)

// Node is a 20-byte revision or changeset hash.
type Node [NodeSize]byte

// NullNode is the all-zero hash, used for absent parents.
var NullNode Node

// IsNull reports whether n is the all-zero hash.
func (n Node) IsNull() bool {
	return n == NullNode
}

func (n Node) String() string {
	return hex.EncodeToString(n[:])
}

// NodeFromHex parses a 40-character hex string into a Node.
func NodeFromHex(s string) (Node, error) {
	var n Node
	b, err := hex.DecodeString(s)
	if err != nil {
		return NullNode, fmt.Errorf("bad node %q: %w", s, err)
	}
	if len(b) != NodeSize {
		return NullNode, fmt.Errorf("bad node %q: %d bytes, want %d", s, len(b), NodeSize)
	}
	copy(n[:], b)
	return n, nil
}

// Key identifies one file revision.
type Key struct {
	Name string
	Node Node
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.Name, k.Node)
}

// Revision is one recorded ancestry edge: the revision's parents, the
// changeset that introduced it, and, when P1 originates from a
// different path, the source path of the rename or copy.
type Revision struct {
	P1       Node
	P2       Node
	Linknode Node
	Copyfrom string
}

// Ancestors maps each reachable revision hash to its recorded edge.
// It is the result of a GetAncestors query.
type Ancestors map[Node]Revision

// hashName returns the SHA-1 of a filename, the key under which its
// section is indexed.
func hashName(name string) [NodeSize]byte {
	return sha1.Sum([]byte(name))
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Option configures a Builder, Store, or Repack operation.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

func newOptions(opts []Option) options {
	o := options{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets an optional logger for progress updates.  If not
// provided, no logging output is produced.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
