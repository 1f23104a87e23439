// Copyright (c) 2025 The ChampDB developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package blockstore provides content-addressed block storage backends for
// the trie engine: an in-memory store, a goleveldb-backed persistent store,
// and an LRU-cached wrapper. All backends satisfy the go-ipld-cbor
// IpldBlockstore interface, so any of them can sit under a CBOR store that
// hands content identifiers to the trie.
package blockstore

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	blocks "github.com/ipfs/go-block-format"
	cid "github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
)

// ErrNotFound is returned when a block identifier is absent from the store.
var ErrNotFound = errors.New("block not found")

// IsNotFound checks whether err indicates an absent block.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Blockstore stores immutable blocks by content identifier. Reads must be
// safe for concurrent use; writes are only issued by trie flushes.
type Blockstore interface {
	Get(ctx context.Context, c cid.Cid) (blocks.Block, error)
	Put(ctx context.Context, b blocks.Block) error
}

var (
	_ cbor.IpldBlockstore = (Blockstore)(nil)
	_ Blockstore          = (*MemStore)(nil)
)

// MemStore is a map-backed Blockstore for tests and ephemeral use.
type MemStore struct {
	mu   sync.RWMutex
	data map[cid.Cid]blocks.Block
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[cid.Cid]blocks.Block)}
}

func (s *MemStore) Get(_ context.Context, c cid.Cid) (blocks.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.data[c]
	if !ok {
		return nil, errors.WithMessage(ErrNotFound, c.String())
	}
	return b, nil
}

func (s *MemStore) Put(_ context.Context, b blocks.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[b.Cid()] = b
	return nil
}

// Len returns the number of stored blocks.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
