// Copyright (c) 2025 The ChampDB developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package hamt

import (
	"context"
	"testing"

	blocks "github.com/ipfs/go-block-format"
	cid "github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/champdb/champ/blockstore"
)

// countingStore counts block reads so tests can observe how much of a tree a
// walk actually touched.
type countingStore struct {
	inner *blockstore.MemStore
	gets  int
}

func (c *countingStore) Get(ctx context.Context, k cid.Cid) (blocks.Block, error) {
	c.gets++
	return c.inner.Get(ctx, k)
}

func (c *countingStore) Put(ctx context.Context, b blocks.Block) error {
	return c.inner.Put(ctx, b)
}

func TestDiffIdentical(t *testing.T) {
	ctx := context.Background()
	cs := newTestStore()

	m := NewMap(cs)
	for i := 0; i < 500; i++ {
		require.NoError(t, m.SetRaw(ctx, testKey(i), encUint(uint64(i))))
	}
	c, err := m.Flush(ctx)
	require.NoError(t, err)

	prev, err := LoadMap(ctx, cs, c)
	require.NoError(t, err)
	cur, err := LoadMap(ctx, cs, c)
	require.NoError(t, err)

	changes, err := Diff(ctx, prev, cur)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestDiffBasic(t *testing.T) {
	ctx := context.Background()
	cs := newTestStore()

	prev := NewMap(cs)
	require.NoError(t, prev.SetRaw(ctx, []byte("a"), encUint(1)))
	require.NoError(t, prev.SetRaw(ctx, []byte("b"), encUint(2)))
	require.NoError(t, prev.SetRaw(ctx, []byte("c"), encUint(3)))

	cur := NewMap(cs)
	require.NoError(t, cur.SetRaw(ctx, []byte("b"), encUint(20)))
	require.NoError(t, cur.SetRaw(ctx, []byte("c"), encUint(3)))
	require.NoError(t, cur.SetRaw(ctx, []byte("d"), encUint(4)))

	changes, err := Diff(ctx, prev, cur)
	require.NoError(t, err)
	require.Len(t, changes, 3)

	byKey := make(map[string]*Change)
	for _, ch := range changes {
		byKey[string(ch.Key)] = ch
	}

	require.Contains(t, byKey, "a")
	assert.Equal(t, Remove, byKey["a"].Type)
	assert.Equal(t, encUint(1), byKey["a"].Before.Raw)
	assert.Nil(t, byKey["a"].After)

	require.Contains(t, byKey, "b")
	assert.Equal(t, Modify, byKey["b"].Type)
	assert.Equal(t, encUint(2), byKey["b"].Before.Raw)
	assert.Equal(t, encUint(20), byKey["b"].After.Raw)

	require.Contains(t, byKey, "d")
	assert.Equal(t, Add, byKey["d"].Type)
	assert.Nil(t, byKey["d"].Before)
	assert.Equal(t, encUint(4), byKey["d"].After.Raw)
}

func TestDiffLarge(t *testing.T) {
	ctx := context.Background()
	cs := newTestStore()

	const n = 3000
	prev := NewMap(cs)
	for i := 0; i < n; i++ {
		require.NoError(t, prev.SetRaw(ctx, testKey(i), encUint(uint64(i))))
	}
	prevCid, err := prev.Flush(ctx)
	require.NoError(t, err)

	cur, err := LoadMap(ctx, cs, prevCid)
	require.NoError(t, err)

	wantRemoved := make(map[string]bool)
	wantAdded := make(map[string]bool)
	wantModified := make(map[string]bool)

	for i := 0; i < 40; i++ {
		removed, err := cur.Delete(ctx, testKey(i*61))
		require.NoError(t, err)
		require.True(t, removed)
		wantRemoved[string(testKey(i*61))] = true
	}
	for i := n; i < n+50; i++ {
		require.NoError(t, cur.SetRaw(ctx, testKey(i), encUint(uint64(i))))
		wantAdded[string(testKey(i))] = true
	}
	for i := 0; i < 30; i++ {
		k := testKey(i*61 + 1)
		require.NoError(t, cur.SetRaw(ctx, k, encUint(uint64(1000000+i))))
		wantModified[string(k)] = true
	}
	curCid, err := cur.Flush(ctx)
	require.NoError(t, err)
	cur, err = LoadMap(ctx, cs, curCid)
	require.NoError(t, err)

	changes, err := Diff(ctx, prev, cur)
	require.NoError(t, err)
	require.Len(t, changes, len(wantRemoved)+len(wantAdded)+len(wantModified))

	for _, ch := range changes {
		k := string(ch.Key)
		switch ch.Type {
		case Remove:
			assert.True(t, wantRemoved[k], "unexpected removal of %q", k)
		case Add:
			assert.True(t, wantAdded[k], "unexpected addition of %q", k)
		case Modify:
			assert.True(t, wantModified[k], "unexpected modification of %q", k)
		}
	}

	// replaying the changes onto prev reproduces cur exactly
	applied, err := LoadMap(ctx, cs, prevCid)
	require.NoError(t, err)
	for _, ch := range changes {
		switch ch.Type {
		case Add, Modify:
			require.NoError(t, applied.SetRaw(ctx, ch.Key, ch.After.Raw))
		case Remove:
			removed, err := applied.Delete(ctx, ch.Key)
			require.NoError(t, err)
			require.True(t, removed)
		}
	}
	appliedCid, err := applied.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, curCid, appliedCid)
}

func TestDiffSkipsSharedSubtrees(t *testing.T) {
	ctx := context.Background()
	counting := &countingStore{inner: blockstore.NewMemStore()}
	cs := cbor.NewCborStore(counting)

	m := NewMap(cs)
	for i := 0; i < 2000; i++ {
		require.NoError(t, m.SetRaw(ctx, testKey(i), encUint(uint64(i))))
	}
	c, err := m.Flush(ctx)
	require.NoError(t, err)

	prev, err := LoadMap(ctx, cs, c)
	require.NoError(t, err)
	cur, err := LoadMap(ctx, cs, c)
	require.NoError(t, err)
	require.NoError(t, cur.SetRaw(ctx, testKey(123), encUint(9999999)))

	counting.gets = 0
	changes, err := Diff(ctx, prev, cur)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, Modify, changes[0].Type)
	assert.Equal(t, testKey(123), changes[0].Key)

	// only the path to the mutated bucket is walked; shared siblings are
	// skipped by link equality
	assert.Less(t, counting.gets, 10)
}

func TestDiffDirtySide(t *testing.T) {
	ctx := context.Background()
	cs := newTestStore()

	prev := NewMap(cs)
	for i := 0; i < 800; i++ {
		require.NoError(t, prev.SetRaw(ctx, testKey(i), encUint(uint64(i))))
	}
	c, err := prev.Flush(ctx)
	require.NoError(t, err)

	// cur carries unflushed mutations
	cur, err := LoadMap(ctx, cs, c)
	require.NoError(t, err)
	require.NoError(t, cur.SetRaw(ctx, []byte("fresh"), encUint(1)))
	removed, err := cur.Delete(ctx, testKey(7))
	require.NoError(t, err)
	require.True(t, removed)

	changes, err := Diff(ctx, prev, cur)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	byKey := make(map[string]*Change)
	for _, ch := range changes {
		byKey[string(ch.Key)] = ch
	}
	require.Contains(t, byKey, "fresh")
	assert.Equal(t, Add, byKey["fresh"].Type)
	require.Contains(t, byKey, string(testKey(7)))
	assert.Equal(t, Remove, byKey[string(testKey(7))].Type)
}

func TestDiffBitWidthMismatch(t *testing.T) {
	ctx := context.Background()
	cs := newTestStore()

	a := NewMap(cs, UseBitWidth(5))
	b := NewMap(cs, UseBitWidth(8))
	_, err := Diff(ctx, a, b)
	assert.Error(t, err)
}
