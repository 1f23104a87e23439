// Copyright (c) 2025 The ChampDB developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package hamt

import (
	"bytes"
	"context"

	cbg "github.com/whyrusleeping/cbor-gen"
	"golang.org/x/xerrors"
)

// ChangeType classifies a single diff entry.
type ChangeType int

const (
	Add ChangeType = iota
	Remove
	Modify
)

func (t ChangeType) String() string {
	switch t {
	case Add:
		return "add"
	case Remove:
		return "remove"
	case Modify:
		return "modify"
	default:
		return "unknown"
	}
}

// Change is one per-key difference between two maps. Before is set for
// Remove and Modify, After for Add and Modify.
type Change struct {
	Type   ChangeType
	Key    []byte
	Before *cbg.Deferred
	After  *cbg.Deferred
}

// Diff returns the changes that transform prev into cur, walking both trees
// in lock-step. Subtrees whose persisted identifiers match on both sides are
// skipped wholesale, which is what keeps diffs of large mostly-shared trees
// cheap. Either side may still hold unflushed (dirty) subtrees; those are
// simply recursed into.
//
// Both maps must use the same bitwidth and key-hash algorithm.
func Diff(ctx context.Context, prev, cur *Map) ([]*Change, error) {
	if prev.bitWidth != cur.bitWidth {
		return nil, xerrors.Errorf("diffing maps with different bitwidths (%d != %d)", prev.bitWidth, cur.bitWidth)
	}
	return diffNode(ctx, prev.root, cur.root)
}

func diffNode(ctx context.Context, prev, cur *Node) ([]*Change, error) {
	var changes []*Change

	width := 1 << uint(prev.bitWidth)
	for idx := 0; idx < width; idx++ {
		inPrev := prev.Bitfield.Bit(idx) == 1
		inCur := cur.Bitfield.Bit(idx) == 1

		switch {
		case !inPrev && !inCur:
			continue

		case inPrev && !inCur:
			cs, err := walkAll(ctx, prev, prev.Pointers[prev.indexForBitPos(idx)], Remove)
			if err != nil {
				return nil, err
			}
			changes = append(changes, cs...)

		case !inPrev && inCur:
			cs, err := walkAll(ctx, cur, cur.Pointers[cur.indexForBitPos(idx)], Add)
			if err != nil {
				return nil, err
			}
			changes = append(changes, cs...)

		default:
			a := prev.Pointers[prev.indexForBitPos(idx)]
			b := cur.Pointers[cur.indexForBitPos(idx)]
			cs, err := diffPointer(ctx, prev, cur, a, b)
			if err != nil {
				return nil, err
			}
			changes = append(changes, cs...)
		}
	}
	return changes, nil
}

func diffPointer(ctx context.Context, prev, cur *Node, a, b *Pointer) ([]*Change, error) {
	switch {
	case a.isShard() && b.isShard():
		// identical persisted children cannot differ below
		if !a.dirty && !b.dirty && a.Link.Equals(b.Link) {
			return nil, nil
		}
		an, err := a.loadChild(ctx, prev.store, prev.bitWidth, prev.hash)
		if err != nil {
			return nil, err
		}
		bn, err := b.loadChild(ctx, cur.store, cur.bitWidth, cur.hash)
		if err != nil {
			return nil, err
		}
		return diffNode(ctx, an, bn)

	case a.isShard():
		an, err := a.loadChild(ctx, prev.store, prev.bitWidth, prev.hash)
		if err != nil {
			return nil, err
		}
		return diffShardBucket(ctx, an, b.KVs, true)

	case b.isShard():
		bn, err := b.loadChild(ctx, cur.store, cur.bitWidth, cur.hash)
		if err != nil {
			return nil, err
		}
		return diffShardBucket(ctx, bn, a.KVs, false)

	default:
		return diffKVs(a.KVs, b.KVs), nil
	}
}

// diffKVs merges two sorted buckets pairwise by key.
func diffKVs(prev, cur []*KV) []*Change {
	var changes []*Change
	i, j := 0, 0
	for i < len(prev) && j < len(cur) {
		switch c := bytes.Compare(prev[i].Key, cur[j].Key); {
		case c < 0:
			changes = append(changes, &Change{Type: Remove, Key: prev[i].Key, Before: prev[i].Value})
			i++
		case c > 0:
			changes = append(changes, &Change{Type: Add, Key: cur[j].Key, After: cur[j].Value})
			j++
		default:
			if !bytes.Equal(prev[i].Value.Raw, cur[j].Value.Raw) {
				changes = append(changes, &Change{Type: Modify, Key: prev[i].Key, Before: prev[i].Value, After: cur[j].Value})
			}
			i++
			j++
		}
	}
	for ; i < len(prev); i++ {
		changes = append(changes, &Change{Type: Remove, Key: prev[i].Key, Before: prev[i].Value})
	}
	for ; j < len(cur); j++ {
		changes = append(changes, &Change{Type: Add, Key: cur[j].Key, After: cur[j].Value})
	}
	return changes
}

// diffShardBucket compares a whole subtree against a flat bucket occupying
// the same slot on the other side. shardIsPrev says which side the shard
// came from.
func diffShardBucket(ctx context.Context, shard *Node, bucket []*KV, shardIsPrev bool) ([]*Change, error) {
	byKey := make(map[string]*cbg.Deferred, len(bucket))
	for _, kv := range bucket {
		byKey[string(kv.Key)] = kv.Value
	}

	var changes []*Change
	seen := make(map[string]bool, len(bucket))

	err := shard.forEach(ctx, func(k []byte, v *cbg.Deferred) error {
		if bv, ok := byKey[string(k)]; ok {
			seen[string(k)] = true
			if !bytes.Equal(v.Raw, bv.Raw) {
				if shardIsPrev {
					changes = append(changes, &Change{Type: Modify, Key: k, Before: v, After: bv})
				} else {
					changes = append(changes, &Change{Type: Modify, Key: k, Before: bv, After: v})
				}
			}
			return nil
		}
		if shardIsPrev {
			changes = append(changes, &Change{Type: Remove, Key: k, Before: v})
		} else {
			changes = append(changes, &Change{Type: Add, Key: k, After: v})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, kv := range bucket {
		if seen[string(kv.Key)] {
			continue
		}
		if shardIsPrev {
			changes = append(changes, &Change{Type: Add, Key: kv.Key, After: kv.Value})
		} else {
			changes = append(changes, &Change{Type: Remove, Key: kv.Key, Before: kv.Value})
		}
	}
	return changes, nil
}

// walkAll emits one change of the given type for every entry reachable
// through p; the other side has nothing at this slot.
func walkAll(ctx context.Context, n *Node, p *Pointer, typ ChangeType) ([]*Change, error) {
	var changes []*Change
	emit := func(k []byte, v *cbg.Deferred) error {
		switch typ {
		case Add:
			changes = append(changes, &Change{Type: Add, Key: k, After: v})
		case Remove:
			changes = append(changes, &Change{Type: Remove, Key: k, Before: v})
		}
		return nil
	}

	if p.isShard() {
		chnd, err := p.loadChild(ctx, n.store, n.bitWidth, n.hash)
		if err != nil {
			return nil, err
		}
		if err := chnd.forEach(ctx, emit); err != nil {
			return nil, err
		}
		return changes, nil
	}
	for _, kv := range p.KVs {
		if err := emit(kv.Key, kv.Value); err != nil {
			return nil, err
		}
	}
	return changes, nil
}
