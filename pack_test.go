// Copyright 2026 The histpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package histpack

import (
	"crypto/sha1"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filehist/histpack/internal/datafile"
	"github.com/filehist/histpack/internal/indexfile"
)

func TestGetAncestors_Chain(t *testing.T) {
	rng := newRand()
	v1 := randNode(rng)
	v2 := randNode(rng)
	v3 := randNode(rng)
	link2 := randNode(rng)
	link3 := randNode(rng)

	// v3 -> v2 -> v1, where v1 is referenced but has no recorded
	// revision row of its own
	files := map[string][]revSpec{"f": {
		{node: v3, p1: v2, linknode: link3},
		{node: v2, p1: v1, linknode: link2},
	}}
	stem := buildTestPack(t, t.TempDir(), files)
	pack := openTestPack(t, stem)

	ancestors, err := pack.GetAncestors("f", v3)
	require.NoError(t, err)
	require.Len(t, ancestors, 2)
	assert.Equal(t, Revision{P1: v2, P2: NullNode, Linknode: link3}, ancestors[v3])
	assert.Equal(t, Revision{P1: v1, P2: NullNode, Linknode: link2}, ancestors[v2])

	// starting mid-chain must not pick up newer revisions
	ancestors, err = pack.GetAncestors("f", v2)
	require.NoError(t, err)
	require.Len(t, ancestors, 1)
	assert.Equal(t, Revision{P1: v1, P2: NullNode, Linknode: link2}, ancestors[v2])

	// v1 is only referenced, never stored
	_, err = pack.GetAncestors("f", v1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetAncestors_Merge(t *testing.T) {
	rng := newRand()
	base := randNode(rng)
	left := randNode(rng)
	right := randNode(rng)
	merge := randNode(rng)

	files := map[string][]revSpec{"f": {
		{node: merge, p1: left, p2: right, linknode: randNode(rng)},
		{node: left, p1: base, linknode: randNode(rng)},
		{node: right, p1: base, linknode: randNode(rng)},
		{node: base, p1: randNode(rng), linknode: randNode(rng)},
	}}
	stem := buildTestPack(t, t.TempDir(), files)
	pack := openTestPack(t, stem)

	ancestors, err := pack.GetAncestors("f", merge)
	require.NoError(t, err)
	// both sides of the merge and the base are reachable
	assert.Len(t, ancestors, 4)
	assert.Contains(t, ancestors, left)
	assert.Contains(t, ancestors, right)
	assert.Contains(t, ancestors, base)
}

func TestFindSection_ManyFiles(t *testing.T) {
	rng := newRand()
	files := make(map[string][]revSpec)
	for i := 0; i < 200; i++ {
		files["path/to/file"+strconv.Itoa(i)] = chain(rng, 1+rng.Intn(3))
	}
	stem := buildTestPack(t, t.TempDir(), files)
	pack := openTestPack(t, stem)

	for name, revs := range files {
		ancestors, err := pack.GetAncestors(name, revs[0].node)
		require.NoError(t, err, "lookup failed for %q", name)
		assert.Len(t, ancestors, len(revs))
	}

	_, err := pack.GetAncestors("path/to/file200", randNode(rng))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetMissing_Classifies(t *testing.T) {
	rng := newRand()
	revs := chain(rng, 3)
	stem := buildTestPack(t, t.TempDir(), map[string][]revSpec{"f": revs})
	pack := openTestPack(t, stem)

	absentNode := randNode(rng)
	keys := []Key{
		{Name: "f", Node: revs[0].node},  // present
		{Name: "f", Node: revs[2].node},  // present
		{Name: "f", Node: absentNode},    // section hit, node miss
		{Name: "g", Node: revs[0].node},  // section miss
	}
	missing, err := pack.GetMissing(keys)
	require.NoError(t, err)
	assert.Equal(t, []Key{
		{Name: "f", Node: absentNode},
		{Name: "g", Node: revs[0].node},
	}, missing)

	missing, err = pack.GetMissing(nil)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func snapshotDir(t *testing.T, dir string) []string {
	t.Helper()
	dirents, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, ent := range dirents {
		names = append(names, ent.Name())
	}
	return names
}

func TestPack_AddImmutable(t *testing.T) {
	rng := newRand()
	dir := t.TempDir()
	stem := buildTestPack(t, dir, map[string][]revSpec{"f": chain(rng, 2)})
	pack := openTestPack(t, stem)

	before := snapshotDir(t, dir)
	err := pack.Add("f", randNode(rng), NullNode, NullNode, randNode(rng), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrImmutable)
	assert.Equal(t, before, snapshotDir(t, dir))
}

func TestPack_ForEach(t *testing.T) {
	rng := newRand()
	files := map[string][]revSpec{
		"a": chain(rng, 2),
		"b": chain(rng, 3),
	}
	stem := buildTestPack(t, t.TempDir(), files)
	pack := openTestPack(t, stem)

	got := make(map[string][]Node)
	err := pack.ForEach(func(name string, node Node, rev Revision) error {
		got[name] = append(got[name], node)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	// storage order within a section is preserved
	for name, revs := range files {
		require.Len(t, got[name], len(revs))
		for i, rev := range revs {
			assert.Equal(t, rev.node, got[name][i])
		}
	}
}

// TestPack_NameMismatch hand-crafts a pack whose index entry hashes
// one filename but points at another file's section, the shape a hash
// collision or corrupted index would take.
func TestPack_NameMismatch(t *testing.T) {
	rng := newRand()
	dir := t.TempDir()
	stem := filepath.Join(dir, "deadbeef")

	f, err := os.Create(stem + PackSuffix)
	require.NoError(t, err)
	w, err := datafile.NewWriter(f)
	require.NoError(t, err)
	rev := chain(rng, 1)[0]
	off, size, err := w.WriteSection("actual.txt", []datafile.Record{{
		Node: rev.node, P1: rev.p1, P2: rev.p2, Linknode: rev.linknode,
	}})
	require.NoError(t, err)
	_, err = w.Finish()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	index := indexfile.Marshal([]indexfile.Entry{{
		NameHash: sha1.Sum([]byte("claimed.txt")),
		Offset:   off,
		Size:     size,
	}})
	require.NoError(t, os.WriteFile(stem+IndexSuffix, index, 0o644))

	pack := openTestPack(t, stem)
	_, err = pack.GetAncestors("claimed.txt", rev.node)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)
}

var (
	benchOnce sync.Once
	benchPack *Pack
	benchKeys []Key
)

func benchPackFixture(b *testing.B) (*Pack, []Key) {
	benchOnce.Do(func() {
		rng := newRand()
		dir, err := os.MkdirTemp("", "histpack-bench")
		require.NoError(b, err)

		files := make(map[string][]revSpec)
		for i := 0; i < 1000; i++ {
			name := "bench/pkg" + strconv.Itoa(i%50) + "/file" + strconv.Itoa(i) + ".go"
			revs := chain(rng, 1+rng.Intn(5))
			files[name] = revs
			benchKeys = append(benchKeys, Key{Name: name, Node: revs[0].node})
		}
		stem := buildTestPack(b, dir, files)
		benchPack, err = OpenPack(stem)
		require.NoError(b, err)
	})
	return benchPack, benchKeys
}

func BenchmarkGetAncestors(b *testing.B) {
	pack, keys := benchPackFixture(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := keys[i%len(keys)]
		if _, err := pack.GetAncestors(key.Name, key.Node); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGetMissing(b *testing.B) {
	pack, keys := benchPackFixture(b)
	batch := keys[:64]
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := pack.GetMissing(batch); err != nil {
			b.Fatal(err)
		}
	}
}

func TestOpenPack_VersionCheck(t *testing.T) {
	rng := newRand()
	dir := t.TempDir()
	stem := buildTestPack(t, dir, map[string][]revSpec{"f": chain(rng, 1)})

	// corrupt the data file's version byte; the file is read-only
	// after publication, so rewrite it wholesale
	raw, err := os.ReadFile(stem + PackSuffix)
	require.NoError(t, err)
	raw[0] = 0x7f
	require.NoError(t, os.Remove(stem+PackSuffix))
	require.NoError(t, os.WriteFile(stem+PackSuffix, raw, 0o644))

	_, err = OpenPack(stem)
	require.Error(t, err)
	assert.ErrorIs(t, err, datafile.ErrUnsupportedVersion)
}

func TestOpenPack_IndexVersionCheck(t *testing.T) {
	rng := newRand()
	dir := t.TempDir()
	stem := buildTestPack(t, dir, map[string][]revSpec{"f": chain(rng, 1)})

	raw, err := os.ReadFile(stem + IndexSuffix)
	require.NoError(t, err)
	raw[0] = 0x7f
	require.NoError(t, os.Remove(stem+IndexSuffix))
	require.NoError(t, os.WriteFile(stem+IndexSuffix, raw, 0o644))

	_, err = OpenPack(stem)
	require.Error(t, err)
	assert.ErrorIs(t, err, indexfile.ErrUnsupportedVersion)
}
