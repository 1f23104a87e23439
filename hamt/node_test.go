// Copyright (c) 2025 The ChampDB developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package hamt

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	blocks "github.com/ipfs/go-block-format"
	cid "github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cbg "github.com/whyrusleeping/cbor-gen"

	"github.com/champdb/champ/blockstore"
)

func testCid(t *testing.T, data []byte) cid.Cid {
	t.Helper()
	h, err := mh.Sum(data, mh.BLAKE2B_MIN+31, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.DagCBOR, h)
}

func TestNodeCborRoundTrip(t *testing.T) {
	bf := big.NewInt(0)
	bf.SetBit(bf, 3, 1)
	bf.SetBit(bf, 100, 1)
	n := &Node{
		Bitfield: bf,
		Pointers: []*Pointer{
			{KVs: []*KV{
				{Key: []byte("aa"), Value: &cbg.Deferred{Raw: encUint(1)}},
				{Key: []byte("bb"), Value: &cbg.Deferred{Raw: encUint(2)}},
			}},
			{Link: testCid(t, []byte("child"))},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, n.MarshalCBOR(&buf))

	var out Node
	require.NoError(t, out.UnmarshalCBOR(bytes.NewReader(buf.Bytes())))

	assert.Equal(t, 0, n.Bitfield.Cmp(out.Bitfield))
	require.Len(t, out.Pointers, 2)
	require.Len(t, out.Pointers[0].KVs, 2)
	assert.Equal(t, []byte("aa"), out.Pointers[0].KVs[0].Key)
	assert.Equal(t, encUint(1), out.Pointers[0].KVs[0].Value.Raw)
	assert.Equal(t, []byte("bb"), out.Pointers[0].KVs[1].Key)
	assert.True(t, n.Pointers[1].Link.Equals(out.Pointers[1].Link))

	// re-encoding yields identical bytes
	var buf2 bytes.Buffer
	require.NoError(t, out.MarshalCBOR(&buf2))
	assert.Equal(t, buf.Bytes(), buf2.Bytes())
}

func TestDirtyPointerRefusesToSerialize(t *testing.T) {
	p := &Pointer{}
	p.cache = &Node{Bitfield: big.NewInt(0)}
	p.markDirty()

	var buf bytes.Buffer
	assert.ErrorIs(t, p.MarshalCBOR(&buf), errSerializeDirty)
}

func TestPointerStates(t *testing.T) {
	bucket := fromKeyValue([]byte("k"), &cbg.Deferred{Raw: encUint(1)})
	assert.False(t, bucket.isShard())

	link := &Pointer{Link: testCid(t, []byte("x"))}
	assert.True(t, link.isShard())

	link.markDirty()
	assert.True(t, link.isShard())
	assert.False(t, link.Link.Defined())
}

// putRawNode stores raw node bytes under their content identifier, bypassing
// the encoder so malformed shapes can be planted.
func putRawNode(t *testing.T, ms *blockstore.MemStore, data []byte) cid.Cid {
	t.Helper()
	h, err := mh.Sum(data, mh.BLAKE2B_MIN+31, -1)
	require.NoError(t, err)
	c := cid.NewCidV1(cid.DagCBOR, h)
	blk, err := blocks.NewBlockWithCid(data, c)
	require.NoError(t, err)
	require.NoError(t, ms.Put(context.Background(), blk))
	return c
}

func TestLoadRejectsMalformedNodes(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name string
		data []byte
	}{
		{
			// [bytes(2){0x00,0x01}, []] with a leading zero bitfield byte
			name: "bitfield leading zero",
			data: []byte{0x82, 0x42, 0x00, 0x01, 0x80},
		},
		{
			// bitfield popcount 2 but a single pointer
			name: "popcount mismatch",
			data: []byte{0x82, 0x41, 0x03, 0x81, 0x81, 0x82, 0x41, 0x61, 0x01},
		},
		{
			// bucket keys out of order: [["b",1],["a",2]]
			name: "unsorted bucket",
			data: []byte{
				0x82, 0x41, 0x01, 0x81, 0x82,
				0x82, 0x41, 0x62, 0x01,
				0x82, 0x41, 0x61, 0x02,
			},
		},
		{
			// a single bucket node that belongs inline in its parent
			name: "collapsible non-root",
			data: []byte{0x82, 0x41, 0x01, 0x81, 0x81, 0x82, 0x41, 0x61, 0x01},
		},
		{
			// a non-root node with no pointers at all
			name: "empty non-root",
			data: []byte{0x82, 0x40, 0x80},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ms := blockstore.NewMemStore()
			cs := cbor.NewCborStore(ms)
			c := putRawNode(t, ms, tc.data)

			_, err := loadNode(ctx, cs, c, false, defaultBitWidth, Sha256Hash)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestLoadRejectsBitfieldBeyondFanOut(t *testing.T) {
	ctx := context.Background()
	ms := blockstore.NewMemStore()
	cs := cbor.NewCborStore(ms)

	// bit 40 set with a single matching pointer: the popcount lines up, but
	// at bitwidth 5 only slots 0..31 exist
	data := []byte{
		0x82, 0x46, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x81, 0x81, 0x82, 0x41, 0x61, 0x01,
	}
	c := putRawNode(t, ms, data)

	_, err := loadNode(ctx, cs, c, true, 5, Sha256Hash)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestLoadMapRejectsCorruptRoot(t *testing.T) {
	ctx := context.Background()
	ms := blockstore.NewMemStore()
	cs := cbor.NewCborStore(ms)

	// popcount mismatch is malformed even at the root
	c := putRawNode(t, ms, []byte{0x82, 0x41, 0x03, 0x81, 0x81, 0x82, 0x41, 0x61, 0x01})
	_, err := LoadMap(ctx, cs, c)
	assert.ErrorIs(t, err, ErrMalformed)

	// an empty root is fine
	c = putRawNode(t, ms, []byte{0x82, 0x40, 0x80})
	m, err := LoadMap(ctx, cs, c)
	require.NoError(t, err)
	assert.True(t, m.IsEmpty())
}
