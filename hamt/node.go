// Copyright (c) 2025 The ChampDB developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package hamt

import (
	"bytes"
	"context"
	"math/big"

	cid "github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	cbg "github.com/whyrusleeping/cbor-gen"
)

// Node is one level of the trie: a bitfield of occupied slots and the
// compacted, slot-ordered pointer array. len(Pointers) always equals the
// bitfield's popcount.
//
// Nodes carry the map's configuration (store, bitwidth, key hash) so that
// recursive walks need no extra plumbing; the configuration is not part of
// the serialized form.
type Node struct {
	Bitfield *big.Int
	Pointers []*Pointer

	bitWidth int
	hash     func([]byte) []byte
	store    cbor.IpldStore
}

func newNode(cs cbor.IpldStore, bitWidth int, hash func([]byte) []byte) *Node {
	return &Node{
		Bitfield: big.NewInt(0),
		bitWidth: bitWidth,
		hash:     hash,
		store:    cs,
	}
}

// loadNode fetches and decodes a persisted node, attaching the runtime
// configuration the serialized form omits. Non-root nodes are additionally
// validated against canonical form: a node whose contents would fit in a
// parent bucket must not exist.
func loadNode(ctx context.Context, cs cbor.IpldStore, c cid.Cid, isRoot bool, bitWidth int, hash func([]byte) []byte) (*Node, error) {
	var out Node
	if err := cs.Get(ctx, c, &out); err != nil {
		return nil, err
	}
	out.bitWidth = bitWidth
	out.hash = hash
	out.store = cs

	if len(out.Pointers) > 1<<uint(bitWidth) {
		return nil, ErrMalformed
	}
	// no occupancy bits beyond the configured fan-out
	if out.Bitfield.BitLen() > 1<<uint(bitWidth) {
		return nil, ErrMalformed
	}
	if out.bitsSetCount() != len(out.Pointers) {
		return nil, ErrMalformed
	}
	for _, ch := range out.Pointers {
		isLink := ch.Link.Defined()
		isBucket := ch.KVs != nil
		if isLink == isBucket {
			return nil, ErrMalformed
		}
		if isLink && ch.Link.Type() != cid.DagCBOR {
			return nil, ErrMalformed
		}
		if isBucket {
			if len(ch.KVs) == 0 || len(ch.KVs) > maxArrayWidth {
				return nil, ErrMalformed
			}
			for i := 1; i < len(ch.KVs); i++ {
				if bytes.Compare(ch.KVs[i-1].Key, ch.KVs[i].Key) >= 0 {
					return nil, ErrMalformed
				}
			}
		}
	}
	if !isRoot {
		// only a root may be empty
		if len(out.Pointers) == 0 {
			return nil, ErrMalformed
		}
		// a non-root node collapsible into a single bucket must not exist
		if out.directChildCount() == 0 && out.directKVCount() <= maxArrayWidth {
			return nil, ErrMalformed
		}
	}
	return &out, nil
}

// getValue walks toward the bucket owning k, consuming one digit of the
// digest per level. A nil return with nil error means the key is absent.
func (n *Node) getValue(ctx context.Context, hv *hashBits, k []byte) (*KV, error) {
	idx, err := hv.Next(n.bitWidth)
	if err != nil {
		return nil, err
	}

	if n.Bitfield.Bit(idx) == 0 {
		return nil, nil
	}

	c := n.Pointers[n.indexForBitPos(idx)]
	if c.isShard() {
		chnd, err := c.loadChild(ctx, n.store, n.bitWidth, n.hash)
		if err != nil {
			return nil, err
		}
		return chnd.getValue(ctx, hv, k)
	}

	for _, kv := range c.KVs {
		if bytes.Equal(kv.Key, k) {
			return kv, nil
		}
	}
	return nil, nil
}

// modifyValue inserts or overwrites k. It returns the value previously stored
// at k, if any, and whether anything actually changed; an overwrite with
// byte-identical value leaves the path clean so that flush stays idempotent
// and shared subtrees stay shared.
func (n *Node) modifyValue(ctx context.Context, hv *hashBits, k []byte, v *cbg.Deferred, overwrite bool) (*cbg.Deferred, bool, error) {
	idx, err := hv.Next(n.bitWidth)
	if err != nil {
		return nil, false, err
	}

	// empty slot, insert a fresh single-entry bucket
	if n.Bitfield.Bit(idx) != 1 {
		n.insertChild(idx, k, v)
		return nil, true, nil
	}

	child := n.Pointers[n.indexForBitPos(idx)]

	if child.isShard() {
		chnd, err := child.loadChild(ctx, n.store, n.bitWidth, n.hash)
		if err != nil {
			return nil, false, err
		}
		prev, modified, err := chnd.modifyValue(ctx, hv, k, v, overwrite)
		if err != nil {
			return nil, false, err
		}
		if modified {
			child.markDirty()
		}
		return prev, modified, nil
	}

	// the key may already live in this bucket
	for _, kv := range child.KVs {
		if bytes.Equal(kv.Key, k) {
			prev := kv.Value
			if !overwrite {
				return prev, false, nil
			}
			if bytes.Equal(kv.Value.Raw, v.Raw) {
				return prev, false, nil
			}
			kv.Value = v
			return prev, true, nil
		}
	}

	if len(child.KVs) >= maxArrayWidth {
		// bucket overflow: push every entry plus the new one a level down,
		// re-hashing each key from this depth onward
		sub := newNode(n.store, n.bitWidth, n.hash)
		consumed := hv.consumed
		if _, _, err := sub.modifyValue(ctx, hv, k, v, overwrite); err != nil {
			return nil, false, err
		}
		for _, kv := range child.KVs {
			chhv := &hashBits{b: n.hash(kv.Key), consumed: consumed}
			if _, _, err := sub.modifyValue(ctx, chhv, kv.Key, kv.Value, overwrite); err != nil {
				return nil, false, err
			}
		}

		child.KVs = nil
		child.cache = sub
		child.markDirty()
		return nil, true, nil
	}

	// insert in key order; the bucket order is part of the serialized form
	np := &KV{Key: k, Value: v}
	for i := 0; i < len(child.KVs); i++ {
		if bytes.Compare(k, child.KVs[i].Key) < 0 {
			child.KVs = append(child.KVs[:i], append([]*KV{np}, child.KVs[i:]...)...)
			return nil, true, nil
		}
	}
	child.KVs = append(child.KVs, np)
	return nil, true, nil
}

// rmValue deletes k. Absence is a no-op, not an error. On the way back out
// of a shard the pointer is re-canonicalized so the tree shape matches one
// where the key never existed.
func (n *Node) rmValue(ctx context.Context, hv *hashBits, k []byte) (bool, error) {
	idx, err := hv.Next(n.bitWidth)
	if err != nil {
		return false, err
	}

	if n.Bitfield.Bit(idx) == 0 {
		return false, nil
	}

	cindex := n.indexForBitPos(idx)
	child := n.Pointers[cindex]

	if child.isShard() {
		chnd, err := child.loadChild(ctx, n.store, n.bitWidth, n.hash)
		if err != nil {
			return false, err
		}
		removed, err := chnd.rmValue(ctx, hv, k)
		if err != nil {
			return false, err
		}
		if removed {
			child.markDirty()
			if err := child.clean(); err != nil {
				return false, err
			}
		}
		return removed, nil
	}

	for i, kv := range child.KVs {
		if bytes.Equal(kv.Key, k) {
			if len(child.KVs) == 1 {
				// never leave an empty bucket behind
				n.rmChild(cindex, idx)
			} else {
				copy(child.KVs[i:], child.KVs[i+1:])
				child.KVs = child.KVs[:len(child.KVs)-1]
			}
			return true, nil
		}
	}
	return false, nil
}

func (n *Node) insertChild(idx int, k []byte, v *cbg.Deferred) {
	i := n.indexForBitPos(idx)
	n.Bitfield.SetBit(n.Bitfield, idx, 1)

	p := fromKeyValue(k, v)
	n.Pointers = append(n.Pointers[:i], append([]*Pointer{p}, n.Pointers[i:]...)...)
}

func (n *Node) rmChild(i, idx int) {
	copy(n.Pointers[i:], n.Pointers[i+1:])
	n.Pointers = n.Pointers[:len(n.Pointers)-1]
	n.Bitfield.SetBit(n.Bitfield, idx, 0)
}

// forEach visits every entry in ascending slot order, recursing into shards.
// The first error from cb aborts the walk.
func (n *Node) forEach(ctx context.Context, cb func(k []byte, v *cbg.Deferred) error) error {
	for _, p := range n.Pointers {
		if p.isShard() {
			chnd, err := p.loadChild(ctx, n.store, n.bitWidth, n.hash)
			if err != nil {
				return err
			}
			if err := chnd.forEach(ctx, cb); err != nil {
				return err
			}
		} else {
			for _, kv := range p.KVs {
				if err := cb(kv.Key, kv.Value); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// flush persists dirty subtrees bottom-up, rewriting each dirty pointer into
// a link with a warm cache. A failed put leaves the pointer dirty so the
// whole operation can be retried.
func (n *Node) flush(ctx context.Context) error {
	for _, p := range n.Pointers {
		if !p.dirty {
			continue
		}
		if err := p.cache.flush(ctx); err != nil {
			return err
		}
		c, err := n.store.Put(ctx, p.cache)
		if err != nil {
			return err
		}
		p.Link = c
		p.dirty = false
	}
	return nil
}

// directChildCount is the number of shard pointers in this node.
func (n *Node) directChildCount() int {
	count := 0
	for _, p := range n.Pointers {
		if p.isShard() {
			count++
		}
	}
	return count
}

// directKVCount is the number of inline entries in this node.
func (n *Node) directKVCount() int {
	count := 0
	for _, p := range n.Pointers {
		if !p.isShard() {
			count += len(p.KVs)
		}
	}
	return count
}
