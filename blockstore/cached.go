// Copyright (c) 2025 The ChampDB developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package blockstore

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/inconshreveable/log15"

	blocks "github.com/ipfs/go-block-format"
	cid "github.com/ipfs/go-cid"

	"github.com/champdb/champ/metrics"
)

var (
	log = log15.New("pkg", "blockstore")

	metricCacheHitMiss = metrics.LazyLoadCounterVec("blockstore_cache_hit_miss_count", []string{"event"})
)

var _ Blockstore = (*CachedStore)(nil)

// CachedStore keeps recently read blocks in an LRU cache in front of another
// Blockstore. Blocks are immutable, so cached entries never go stale.
type CachedStore struct {
	inner Blockstore
	cache *lru.Cache

	hit, miss   atomic.Int64
	lastLogTime atomic.Int64
}

// NewCachedStore wraps inner with an LRU cache of the given capacity.
func NewCachedStore(inner Blockstore, capacity int) (*CachedStore, error) {
	cache, err := lru.New(capacity)
	if err != nil {
		return nil, err
	}
	s := &CachedStore{inner: inner, cache: cache}
	s.lastLogTime.Store(time.Now().UnixNano())
	return s, nil
}

func (s *CachedStore) Get(ctx context.Context, c cid.Cid) (blocks.Block, error) {
	if b, ok := s.cache.Get(c); ok {
		s.hit.Add(1)
		s.maybeLogStats()
		return b.(blocks.Block), nil
	}
	s.miss.Add(1)
	s.maybeLogStats()

	b, err := s.inner.Get(ctx, c)
	if err != nil {
		return nil, err
	}
	s.cache.Add(c, b)
	return b, nil
}

func (s *CachedStore) Put(ctx context.Context, b blocks.Block) error {
	if err := s.inner.Put(ctx, b); err != nil {
		return err
	}
	// freshly flushed blocks are the likeliest to be read back
	s.cache.Add(b.Cid(), b)
	return nil
}

// Stats returns the cumulative cache hit and miss counts.
func (s *CachedStore) Stats() (hit, miss int64) {
	return s.hit.Load(), s.miss.Load()
}

func (s *CachedStore) maybeLogStats() {
	now := time.Now().UnixNano()
	last := s.lastLogTime.Load()
	if now-last < int64(time.Second*20) {
		return
	}
	if !s.lastLogTime.CompareAndSwap(last, now) {
		return
	}

	hit, miss := s.hit.Load(), s.miss.Load()
	if lookups := hit + miss; lookups > 0 {
		log.Debug("block cache stats", "lookups", lookups, "hitrate", float64(hit)/float64(lookups))
	}
	metricCacheHitMiss().AddWithLabel(hit, map[string]string{"event": "hit"})
	metricCacheHitMiss().AddWithLabel(miss, map[string]string{"event": "miss"})
}
