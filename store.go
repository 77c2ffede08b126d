// Copyright 2026 The histpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package histpack

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Store aggregates every pack found in a directory and fans queries
// out across them.  Packs are tried most-recently-modified first:
// recent packs are likelier to satisfy a query, so the average number
// of lookups stays low.  The ordering is a heuristic; correctness
// only needs every pack to be tried.
type Store struct {
	dir    string
	packs  []*Pack
	logger *slog.Logger
}

// NewStore scans dir once, pairing each index file with the data file
// sharing its stem.  Unpaired index files are ignored; a pack that
// fails to open (wrong version, malformed index) fails the whole
// scan.  A missing directory yields an empty store.
func NewStore(dir string, opts ...Option) (*Store, error) {
	o := newOptions(opts)
	// absolutize so pack stems compare equal with the stems a Builder
	// publishes, no matter how the caller spelled the directory
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("filepath.Abs: %w", err)
	}
	s := &Store{dir: dir, logger: o.logger}

	dirents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("os.ReadDir(%s): %w", dir, err)
	}

	names := make(stringSet, len(dirents))
	for _, ent := range dirents {
		names.Add(ent.Name())
	}

	type candidate struct {
		stem  string
		mtime time.Time
	}
	var candidates []candidate
	for _, ent := range dirents {
		name := ent.Name()
		if !strings.HasSuffix(name, IndexSuffix) {
			continue
		}
		stem := strings.TrimSuffix(name, IndexSuffix)
		if !names.Contains(stem + PackSuffix) {
			s.logger.Warn("ignoring unpaired index file", "path", filepath.Join(dir, name))
			continue
		}
		info, err := ent.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
		candidates = append(candidates, candidate{
			stem:  filepath.Join(dir, stem),
			mtime: info.ModTime(),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].mtime.Equal(candidates[j].mtime) {
			return candidates[i].mtime.After(candidates[j].mtime)
		}
		return candidates[i].stem > candidates[j].stem
	})

	for _, c := range candidates {
		pack, err := OpenPack(c.stem)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.packs = append(s.packs, pack)
	}
	return s, nil
}

// Packs returns the store's packs in query order (most recent first).
func (s *Store) Packs() []*Pack {
	return s.packs
}

// GetAncestors queries packs in order and returns the first non-empty
// ancestor map.  ErrNotFound if no pack can resolve the key.
func (s *Store) GetAncestors(name string, node Node) (Ancestors, error) {
	for _, pack := range s.packs {
		ancestors, err := pack.GetAncestors(name, node)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		return ancestors, nil
	}
	return nil, fmt.Errorf("%w: no history for %s:%s in any pack under %s", ErrNotFound, name, node, s.dir)
}

// GetMissing returns the subset of keys not found in any pack.  The
// working set narrows after each pack: a key satisfied early is never
// looked up again.
func (s *Store) GetMissing(keys []Key) ([]Key, error) {
	missing := keys
	for _, pack := range s.packs {
		if len(missing) == 0 {
			break
		}
		var err error
		missing, err = pack.GetMissing(missing)
		if err != nil {
			return nil, err
		}
	}
	return missing, nil
}

// Add always fails: a store over immutable packs offers no write
// path.  Build a new pack and rescan instead.
func (s *Store) Add(name string, node, p1, p2, linknode Node, copyfrom string) error {
	return fmt.Errorf("%w: cannot add %s:%s to store %s", ErrImmutable, name, node, s.dir)
}

// MarkLedger registers every constituent pack's key set with the
// ledger for repack bookkeeping.
func (s *Store) MarkLedger(ledger Ledger) error {
	for _, pack := range s.packs {
		if err := pack.MarkLedger(ledger); err != nil {
			return err
		}
	}
	return nil
}

// Close unmaps every pack.
func (s *Store) Close() {
	for _, pack := range s.packs {
		_ = pack.Close()
	}
	s.packs = nil
}
