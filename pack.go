// Copyright 2026 The histpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package histpack

import (
	"errors"
	"fmt"
	"os"

	"github.com/filehist/histpack/internal/datafile"
	"github.com/filehist/histpack/internal/indexfile"
)

// errStopWalk short-circuits a ForEach that found what it needed.
var errStopWalk = errors.New("stop walk")

// Pack is an immutable reader over one published data+index file
// pair.  Both files are memory-mapped at open time and never read
// into process memory wholesale; lookups go through the index's
// fanout table and bisection, then parse only the one section they
// need.  A Pack is safe for concurrent use.
type Pack struct {
	stem string
	data *datafile.Reader
	idx  *indexfile.Reader
}

// OpenPack opens the pack whose two files share the path stem, e.g.
// "/some/dir/<hex sha1>".  It fails if either file is missing or
// carries an unsupported format version.
func OpenPack(stem string) (*Pack, error) {
	data, err := datafile.NewReader(stem + PackSuffix)
	if err != nil {
		return nil, err
	}
	idx, err := indexfile.NewReader(stem + IndexSuffix)
	if err != nil {
		_ = data.Close()
		return nil, err
	}
	return &Pack{stem: stem, data: data, idx: idx}, nil
}

// Path returns the pack's path stem (its content hash, under the
// store directory).
func (p *Pack) Path() string {
	return p.stem
}

// Close unmaps both files.  Lookups already in flight on other
// goroutines must have completed.
func (p *Pack) Close() error {
	dataErr := p.data.Close()
	idxErr := p.idx.Close()
	if dataErr != nil {
		return dataErr
	}
	return idxErr
}

// findSection locates the revision section for name via the index
// and verifies that the section stored there really belongs to name:
// a mismatch means a hash collision or corruption, never a normal
// miss.
func (p *Pack) findSection(name string) (*datafile.Section, error) {
	entry, ok := p.idx.Lookup(hashName(name))
	if !ok {
		return nil, fmt.Errorf("%w: no history for %q in %s", ErrNotFound, name, p.stem)
	}
	sec, err := p.data.Section(entry.Offset, entry.Size)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", p.stem, err)
	}
	if sec.Name != name {
		return nil, fmt.Errorf("%w: index for %q resolved to section %q in %s", ErrCorrupt, name, sec.Name, p.stem)
	}
	return sec, nil
}

// GetAncestors returns every ancestor of (name, node) recorded in
// this pack, keyed by revision hash.  Because sections store children
// before parents, a single forward scan suffices: each record whose
// node is already wanted enlists its own parents into the wanted set.
// Returns ErrNotFound if node has no recorded revision in the
// section.
func (p *Pack) GetAncestors(name string, node Node) (Ancestors, error) {
	sec, err := p.findSection(name)
	if err != nil {
		return nil, err
	}

	wanted := map[Node]struct{}{node: {}}
	results := make(Ancestors)
	it := sec.Records()
	for rec, ok := it.Next(); ok; rec, ok = it.Next() {
		if _, want := wanted[Node(rec.Node)]; !want {
			continue
		}
		wanted[Node(rec.P1)] = struct{}{}
		wanted[Node(rec.P2)] = struct{}{}
		results[Node(rec.Node)] = Revision{
			P1:       Node(rec.P1),
			P2:       Node(rec.P2),
			Linknode: Node(rec.Linknode),
			Copyfrom: rec.Copyfrom,
		}
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("pack %s: %w", p.stem, err)
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("%w: no history for %s:%s in %s", ErrNotFound, name, node, p.stem)
	}
	return results, nil
}

// findNode scans a section for the record of one specific node.
func (p *Pack) findNode(sec *datafile.Section, node Node) (Revision, error) {
	it := sec.Records()
	for rec, ok := it.Next(); ok; rec, ok = it.Next() {
		if Node(rec.Node) == node {
			return Revision{
				P1:       Node(rec.P1),
				P2:       Node(rec.P2),
				Linknode: Node(rec.Linknode),
				Copyfrom: rec.Copyfrom,
			}, nil
		}
	}
	if err := it.Err(); err != nil {
		return Revision{}, fmt.Errorf("pack %s: %w", p.stem, err)
	}
	return Revision{}, fmt.Errorf("%w: no history for %s:%s in %s", ErrNotFound, sec.Name, node, p.stem)
}

// GetMissing classifies keys by presence, returning the subset this
// pack does not store.  Absence is data here, never an error; only
// I/O failures and corruption propagate.
func (p *Pack) GetMissing(keys []Key) ([]Key, error) {
	var missing []Key
	for _, key := range keys {
		sec, err := p.findSection(key.Name)
		if err != nil {
			if isNotFound(err) {
				missing = append(missing, key)
				continue
			}
			return nil, err
		}
		if _, err := p.findNode(sec, key.Node); err != nil {
			if isNotFound(err) {
				missing = append(missing, key)
				continue
			}
			return nil, err
		}
	}
	return missing, nil
}

// Add always fails: published packs are immutable.  Callers wanting
// to write must build a new pack through a Builder.
func (p *Pack) Add(name string, node, p1, p2, linknode Node, copyfrom string) error {
	return fmt.Errorf("%w: cannot add %s:%s to %s", ErrImmutable, name, node, p.stem)
}

// ForEach calls fn for every revision stored in the pack, walking the
// whole data file sequentially in storage order (the index is not
// consulted).  Returning an error from fn stops the walk and is
// passed through.
func (p *Pack) ForEach(fn func(name string, node Node, rev Revision) error) error {
	return p.data.ForEachSection(func(sec *datafile.Section) error {
		it := sec.Records()
		for rec, ok := it.Next(); ok; rec, ok = it.Next() {
			rev := Revision{
				P1:       Node(rec.P1),
				P2:       Node(rec.P2),
				Linknode: Node(rec.Linknode),
				Copyfrom: rec.Copyfrom,
			}
			if err := fn(sec.Name, Node(rec.Node), rev); err != nil {
				return err
			}
		}
		return it.Err()
	})
}

// MarkLedger registers every (filename, node) pair this pack stores
// with the ledger, by a sequential scan of the whole data file.
func (p *Pack) MarkLedger(ledger Ledger) error {
	return p.ForEach(func(name string, node Node, rev Revision) error {
		ledger.AddEntry(p, name, node)
		return nil
	})
}

// Cleanup deletes this pack's two files once the ledger confirms that
// every key it stores has been rewritten into a newer pack, unless
// the pack was itself created by the operation now cleaning up.  The
// unlink does not disturb readers that already mapped the files (a
// POSIX guarantee; on filesystems without it, deletion must be
// deferred until no mappings remain).
func (p *Pack) Cleanup(ledger Ledger) error {
	repacked := ledger.Repacked(p)

	superseded := true
	err := p.ForEach(func(name string, node Node, rev Revision) error {
		if !repacked[Key{Name: name, Node: node}] {
			superseded = false
			return errStopWalk
		}
		return nil
	})
	if err != nil && err != errStopWalk {
		return err
	}

	if !superseded || ledger.Created(p.stem) {
		return nil
	}

	if err := removeIfExists(p.stem + IndexSuffix); err != nil {
		return err
	}
	return removeIfExists(p.stem + PackSuffix)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("os.Remove(%s): %w", path, err)
	}
	return nil
}
