// Copyright 2026 The histpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package histpack

import (
	"bytes"
	"sort"

	"github.com/filehist/histpack/internal/datafile"
)

// Repack folds every pack under dir into a single new pack and
// deletes the old packs whose content is now fully duplicated
// elsewhere, as proven through a ledger.  When the same node appears
// in several packs, the most recent pack's copy wins.  It returns the
// new pack's path stem, or "" when the directory holds nothing to
// repack.
//
// Repacking an already-compact store rebuilds byte-identical files:
// content addressing collapses them onto the same name, and the
// ledger's created-pack registration keeps cleanup from deleting the
// pack the operation just wrote.
func Repack(dir string, opts ...Option) (string, error) {
	o := newOptions(opts)

	store, err := NewStore(dir, opts...)
	if err != nil {
		return "", err
	}
	defer store.Close()
	if len(store.packs) == 0 {
		return "", nil
	}

	// merge all histories, preferring the most recent pack's copy of
	// a duplicated node
	byFile := make(map[string]map[Node]Revision)
	for _, pack := range store.Packs() {
		err := pack.data.ForEachSection(func(sec *datafile.Section) error {
			revs := byFile[sec.Name]
			if revs == nil {
				revs = make(map[Node]Revision)
				byFile[sec.Name] = revs
			}
			it := sec.Records()
			for rec, ok := it.Next(); ok; rec, ok = it.Next() {
				node := Node(rec.Node)
				if _, ok := revs[node]; ok {
					continue
				}
				revs[node] = Revision{
					P1:       Node(rec.P1),
					P2:       Node(rec.P2),
					Linknode: Node(rec.Linknode),
					Copyfrom: rec.Copyfrom,
				}
			}
			return it.Err()
		})
		if err != nil {
			return "", err
		}
	}

	ledger := NewMemLedger()
	if err := store.MarkLedger(ledger); err != nil {
		return "", err
	}

	builder, err := NewBuilder(dir, opts...)
	if err != nil {
		return "", err
	}

	names := make([]string, 0, len(byFile))
	for name := range byFile {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		revs := byFile[name]
		for _, node := range newestFirst(revs) {
			rev := revs[node]
			if err := builder.Add(name, node, rev.P1, rev.P2, rev.Linknode, rev.Copyfrom); err != nil {
				builder.Abort()
				return "", err
			}
		}
	}

	stem, err := builder.Close()
	if err != nil {
		return "", err
	}
	ledger.AddCreated(stem)
	for name, revs := range byFile {
		for node := range revs {
			ledger.MarkRepacked(name, node)
		}
	}

	for _, pack := range store.Packs() {
		if err := pack.Cleanup(ledger); err != nil {
			return "", err
		}
	}

	o.logger.Info("repacked store",
		"dir", dir, "stem", stem, "packs", len(store.packs), "files", len(byFile))
	return stem, nil
}

// newestFirst orders a file's revisions so every child precedes its
// parents, the storage order ancestor scans rely on.  Heads (nodes no
// stored revision claims as a parent) come out first; ties break on
// node bytes so identical inputs serialize identically.
func newestFirst(revs map[Node]Revision) []Node {
	pendingChildren := make(map[Node]int, len(revs))
	for node := range revs {
		if _, ok := pendingChildren[node]; !ok {
			pendingChildren[node] = 0
		}
	}
	for _, rev := range revs {
		for _, parent := range []Node{rev.P1, rev.P2} {
			if _, stored := revs[parent]; stored {
				pendingChildren[parent]++
			}
		}
	}

	var ready []Node
	for node, n := range pendingChildren {
		if n == 0 {
			ready = append(ready, node)
		}
	}
	sortNodes(ready)

	order := make([]Node, 0, len(revs))
	for len(ready) > 0 {
		node := ready[0]
		ready = ready[1:]
		order = append(order, node)
		rev := revs[node]
		for _, parent := range []Node{rev.P1, rev.P2} {
			if _, stored := revs[parent]; !stored {
				continue
			}
			pendingChildren[parent]--
			if pendingChildren[parent] == 0 {
				ready = append(ready, parent)
			}
		}
	}

	// a parent cycle can only come from corrupt input; emit the
	// leftovers anyway so no history is dropped
	if len(order) < len(revs) {
		var rest []Node
		seen := make(map[Node]struct{}, len(order))
		for _, node := range order {
			seen[node] = struct{}{}
		}
		for node := range revs {
			if _, ok := seen[node]; !ok {
				rest = append(rest, node)
			}
		}
		sortNodes(rest)
		order = append(order, rest...)
	}
	return order
}

func sortNodes(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool {
		return bytes.Compare(nodes[i][:], nodes[j][:]) < 0
	})
}
