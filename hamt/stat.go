// Copyright (c) 2025 The ChampDB developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package hamt

import (
	"context"
)

// Stats summarizes the shape of a trie.
type Stats struct {
	Entries    int // key/value pairs
	Nodes      int // trie nodes, root included
	Buckets    int // inline value buckets
	MaxDepth   int // deepest node, root at 0
	ValueBytes int // total encoded value size
}

// Stat walks the whole trie, loading persisted children as needed, and
// returns shape statistics.
func (m *Map) Stat(ctx context.Context) (Stats, error) {
	var st Stats
	if err := statNode(ctx, m.root, 0, &st); err != nil {
		return Stats{}, err
	}
	return st, nil
}

func statNode(ctx context.Context, n *Node, depth int, st *Stats) error {
	st.Nodes++
	if depth > st.MaxDepth {
		st.MaxDepth = depth
	}
	for _, p := range n.Pointers {
		if p.isShard() {
			child, err := p.loadChild(ctx, n.store, n.bitWidth, n.hash)
			if err != nil {
				return err
			}
			if err := statNode(ctx, child, depth+1, st); err != nil {
				return err
			}
			continue
		}
		st.Buckets++
		for _, kv := range p.KVs {
			st.Entries++
			st.ValueBytes += len(kv.Value.Raw)
		}
	}
	return nil
}
