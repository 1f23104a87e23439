// Copyright (c) 2025 The ChampDB developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package hamt

import (
	"bytes"
	"context"
	"sort"

	cid "github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	cbg "github.com/whyrusleeping/cbor-gen"
)

// Pointer is one slot of a node. It is in exactly one of three states:
//
//   - a Values bucket: KVs holds up to maxArrayWidth entries in ascending
//     key order;
//   - a Link: Link names a persisted child, cache memoizes the child once
//     loaded;
//   - dirty: cache holds an in-memory child mutated since the last flush.
//     A dirty pointer has no content identifier and must never reach the
//     serializer.
//
// The lifecycle is Link -> (mutation) -> dirty -> (flush) -> Link. Once a
// child has been persisted its bytes are immutable; further mutation runs on
// the cached copy and re-marks the pointer dirty.
type Pointer struct {
	KVs  []*KV
	Link cid.Cid

	// cache is the loaded (for Link) or owned (for dirty) child node.
	cache *Node
	dirty bool
}

func fromKeyValue(k []byte, v *cbg.Deferred) *Pointer {
	return &Pointer{KVs: []*KV{{Key: k, Value: v}}}
}

// isShard reports whether the pointer refers to a child node rather than an
// inline bucket.
func (p *Pointer) isShard() bool {
	return p.dirty || p.Link.Defined()
}

// loadChild returns the child node, fetching and decoding it from the store
// on first access. For a dirty pointer the owned child is returned directly.
func (p *Pointer) loadChild(ctx context.Context, cs cbor.IpldStore, bitWidth int, hash func([]byte) []byte) (*Node, error) {
	if p.cache != nil {
		return p.cache, nil
	}
	nd, err := loadNode(ctx, cs, p.Link, false, bitWidth, hash)
	if err != nil {
		return nil, err
	}
	p.cache = nd
	return nd, nil
}

// markDirty transitions a pointer into the dirty state after its child has
// been mutated. The stale identifier is dropped; flush assigns a new one.
func (p *Pointer) markDirty() {
	p.dirty = true
	p.Link = cid.Undef
}

// clean re-establishes canonical form after a deletion below this pointer.
// A child that no longer justifies its existence as a node is collapsed into
// this slot, which is what makes "inserted then deleted" indistinguishable
// from "never inserted". Must be called on a dirty pointer.
func (p *Pointer) clean() error {
	n := p.cache
	switch len(n.Pointers) {
	case 0:
		return ErrZeroPointers
	case 1:
		// A single bucket below us can only exist transiently while a
		// deeper collapse bubbles up; pull it into this slot.
		if sub := n.Pointers[0]; !sub.isShard() {
			p.KVs = sub.KVs
			p.cache = nil
			p.dirty = false
			p.Link = cid.Undef
		}
		return nil
	default:
		if len(n.Pointers) > maxArrayWidth {
			return nil
		}
		total := 0
		for _, sub := range n.Pointers {
			if sub.isShard() {
				return nil
			}
			total += len(sub.KVs)
		}
		if total > maxArrayWidth {
			return nil
		}

		// Everything below fits in a single bucket: flatten. Re-sorting by
		// key keeps the serialized order identical to direct insertion.
		kvs := make([]*KV, 0, total)
		for _, sub := range n.Pointers {
			kvs = append(kvs, sub.KVs...)
		}
		sort.Slice(kvs, func(i, j int) bool {
			return bytes.Compare(kvs[i].Key, kvs[j].Key) < 0
		})

		p.KVs = kvs
		p.cache = nil
		p.dirty = false
		p.Link = cid.Undef
		return nil
	}
}
