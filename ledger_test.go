// Copyright 2026 The histpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package histpack

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func packFilesExist(t *testing.T, stem string) bool {
	t.Helper()
	_, dataErr := os.Stat(stem + PackSuffix)
	_, idxErr := os.Stat(stem + IndexSuffix)
	require.Equal(t, os.IsNotExist(dataErr), os.IsNotExist(idxErr),
		"pack %s must keep or lose both files together", stem)
	return dataErr == nil
}

func TestCleanup_RequiresEveryKeySuperseded(t *testing.T) {
	rng := newRand()
	dir := t.TempDir()
	revs := chain(rng, 3)
	stem := buildTestPack(t, dir, map[string][]revSpec{"f": revs})
	pack := openTestPack(t, stem)

	ledger := NewMemLedger()
	require.NoError(t, pack.MarkLedger(ledger))

	// partially superseded: must survive
	ledger.MarkRepacked("f", revs[0].node)
	require.NoError(t, pack.Cleanup(ledger))
	assert.True(t, packFilesExist(t, stem))

	// fully superseded: both files go
	for _, rev := range revs[1:] {
		ledger.MarkRepacked("f", rev.node)
	}
	require.NoError(t, pack.Cleanup(ledger))
	assert.False(t, packFilesExist(t, stem))

	// deleting again is a no-op, not an error
	require.NoError(t, pack.Cleanup(ledger))
}

func TestCleanup_NeverDeletesFreshlyCreated(t *testing.T) {
	rng := newRand()
	dir := t.TempDir()
	revs := chain(rng, 2)
	stem := buildTestPack(t, dir, map[string][]revSpec{"f": revs})
	pack := openTestPack(t, stem)

	ledger := NewMemLedger()
	require.NoError(t, pack.MarkLedger(ledger))
	for _, rev := range revs {
		ledger.MarkRepacked("f", rev.node)
	}
	ledger.AddCreated(stem)

	require.NoError(t, pack.Cleanup(ledger))
	assert.True(t, packFilesExist(t, stem))
}

func TestMemLedger(t *testing.T) {
	rng := newRand()
	dir := t.TempDir()
	aRevs := chain(rng, 2)
	stemA := buildTestPack(t, dir, map[string][]revSpec{"a": aRevs})
	packA := openTestPack(t, stemA)
	bRevs := chain(rng, 1)
	stemB := buildTestPack(t, dir, map[string][]revSpec{"b": bRevs})
	packB := openTestPack(t, stemB)

	ledger := NewMemLedger()
	require.NoError(t, packA.MarkLedger(ledger))
	require.NoError(t, packB.MarkLedger(ledger))

	assert.Empty(t, ledger.Repacked(packA))

	ledger.MarkRepacked("a", aRevs[0].node)
	repacked := ledger.Repacked(packA)
	assert.Len(t, repacked, 1)
	assert.True(t, repacked[Key{Name: "a", Node: aRevs[0].node}])
	// packB's keys are untouched by packA's supersessions
	assert.Empty(t, ledger.Repacked(packB))

	assert.False(t, ledger.Created(stemA))
	ledger.AddCreated(stemA)
	assert.True(t, ledger.Created(stemA))
}
