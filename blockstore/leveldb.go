// Copyright (c) 2025 The ChampDB developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package blockstore

import (
	"context"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"

	blocks "github.com/ipfs/go-block-format"
	cid "github.com/ipfs/go-cid"
)

var _ Blockstore = (*LevelStore)(nil)

var (
	writeOpt = opt.WriteOptions{}
	readOpt  = opt.ReadOptions{}
)

// Options for creating a LevelStore.
type Options struct {
	CacheSize              int
	OpenFilesCacheCapacity int
}

// LevelStore is a goleveldb-backed persistent Blockstore. Blocks are keyed
// by the binary form of their content identifier.
type LevelStore struct {
	db *leveldb.DB
}

// NewLevelStore opens or creates a persistent store at the given path.
func NewLevelStore(path string, opts Options) (*LevelStore, error) {
	stg, err := storage.OpenFile(path, false)
	if err != nil {
		return nil, errors.Wrap(err, "open level storage")
	}
	return openLevelStore(stg, opts)
}

// NewMemLevelStore creates a LevelStore backed by in-memory storage.
func NewMemLevelStore() (*LevelStore, error) {
	return openLevelStore(storage.NewMemStorage(), Options{})
}

func openLevelStore(stg storage.Storage, opts Options) (*LevelStore, error) {
	cacheSize := opts.CacheSize
	if cacheSize < 16 {
		cacheSize = 16
	}
	openFiles := opts.OpenFilesCacheCapacity
	if openFiles < 16 {
		openFiles = 16
	}

	db, err := leveldb.Open(stg, &opt.Options{
		OpenFilesCacheCapacity: openFiles,
		BlockCacheCapacity:     cacheSize / 2 * opt.MiB,
		WriteBuffer:            cacheSize / 4 * opt.MiB, // two write buffers are used internally
		Filter:                 filter.NewBloomFilter(10),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open level db")
	}
	return &LevelStore{db: db}, nil
}

func (s *LevelStore) Get(_ context.Context, c cid.Cid) (blocks.Block, error) {
	data, err := s.db.Get(c.Bytes(), &readOpt)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, errors.WithMessage(ErrNotFound, c.String())
		}
		return nil, errors.Wrap(err, "get block")
	}
	return blocks.NewBlockWithCid(data, c)
}

func (s *LevelStore) Put(_ context.Context, b blocks.Block) error {
	return errors.Wrap(s.db.Put(b.Cid().Bytes(), b.RawData(), &writeOpt), "put block")
}

// Close flushes and closes the underlying database.
func (s *LevelStore) Close() error {
	return s.db.Close()
}
