// Copyright 2026 The histpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package histpack

// Ledger is the cross-pack bookkeeping collaborator driving safe
// deletion during a repack.  Packs depend only on this narrow
// interface; the orchestrator owns the concrete implementation and
// its mutation.  The contract a Cleanup relies on: a pack may be
// deleted only when every key it stores is reported as rewritten into
// a newer pack, and never when the pack was created by the very
// operation performing cleanup.
type Ledger interface {
	// AddEntry registers that pack stores (name, node).
	AddEntry(pack *Pack, name string, node Node)

	// AddCreated registers the path stem of a pack created by the
	// current operation, exempting it from cleanup.
	AddCreated(stem string)

	// Repacked returns, for one pack, the set of its registered keys
	// known to have been rewritten into a newer pack.
	Repacked(pack *Pack) map[Key]bool

	// Created reports whether stem was registered via AddCreated.
	Created(stem string) bool
}

// MemLedger is the in-memory Ledger used by Repack.  It additionally
// exposes MarkRepacked for the orchestrator to record which keys were
// written into the new pack.  Not safe for concurrent use; a repack
// is a single linear operation.
type MemLedger struct {
	sources  map[*Pack]map[Key]struct{}
	repacked map[Key]struct{}
	created  stringSet
}

var _ Ledger = (*MemLedger)(nil)

func NewMemLedger() *MemLedger {
	return &MemLedger{
		sources:  make(map[*Pack]map[Key]struct{}),
		repacked: make(map[Key]struct{}),
		created:  make(stringSet),
	}
}

func (l *MemLedger) AddEntry(pack *Pack, name string, node Node) {
	keys := l.sources[pack]
	if keys == nil {
		keys = make(map[Key]struct{})
		l.sources[pack] = keys
	}
	keys[Key{Name: name, Node: node}] = struct{}{}
}

func (l *MemLedger) AddCreated(stem string) {
	l.created.Add(stem)
}

// MarkRepacked records that (name, node) now lives in a newer pack.
func (l *MemLedger) MarkRepacked(name string, node Node) {
	l.repacked[Key{Name: name, Node: node}] = struct{}{}
}

func (l *MemLedger) Repacked(pack *Pack) map[Key]bool {
	out := make(map[Key]bool)
	for key := range l.sources[pack] {
		if _, ok := l.repacked[key]; ok {
			out[key] = true
		}
	}
	return out
}

func (l *MemLedger) Created(stem string) bool {
	return l.created.Contains(stem)
}
