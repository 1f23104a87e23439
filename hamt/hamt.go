// Copyright (c) 2025 The ChampDB developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package hamt implements a content-addressed persistent hash-array-mapped
// trie with CHAMP-style canonicalization: for a fixed bitwidth and key-hash
// algorithm, a given key/value set always serializes to byte-identical
// trees, regardless of the order operations were applied. That property lets
// the root content identifier stand for the whole logical map, and lets any
// number of historical versions share persisted subtrees by reference.
//
// One Map handle is single-writer; concurrent reads of persisted nodes
// through the store are safe because flushed nodes are immutable.
package hamt

import (
	"bytes"
	"context"

	cid "github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	cbg "github.com/whyrusleeping/cbor-gen"
	"golang.org/x/xerrors"
)

const (
	// maxArrayWidth caps inline bucket size; one more entry splits the
	// bucket into a child node.
	maxArrayWidth = 3

	defaultBitWidth = 8
)

// Map is the public trie handle. It owns the root node directly and binds
// in the store, bitwidth and key-hash algorithm for all walks.
type Map struct {
	root     *Node
	store    cbor.IpldStore
	bitWidth int
	hash     func([]byte) []byte
}

// Option configures a Map at construction time.
type Option func(*Map)

// UseBitWidth sets how many digest bits index each trie level (1-8,
// fan-out 2^w). The same bitwidth must be supplied when reloading.
func UseBitWidth(w int) Option {
	return func(m *Map) {
		if w >= 1 && w <= 8 {
			m.bitWidth = w
		}
	}
}

// UseHashFunction replaces the key-hash algorithm. The same function must be
// supplied when reloading; it is distinct from the store's content hash.
func UseHashFunction(hash func([]byte) []byte) Option {
	return func(m *Map) {
		m.hash = hash
	}
}

// NewMap creates an empty Map backed by cs.
func NewMap(cs cbor.IpldStore, opts ...Option) *Map {
	m := &Map{
		store:    cs,
		bitWidth: defaultBitWidth,
		hash:     Sha256Hash,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.root = newNode(cs, m.bitWidth, m.hash)
	return m
}

// LoadMap resumes the Map whose flushed root is named by c. The bitwidth and
// hash function are trusted as supplied, not re-derived from the bytes.
func LoadMap(ctx context.Context, cs cbor.IpldStore, c cid.Cid, opts ...Option) (*Map, error) {
	m := &Map{
		store:    cs,
		bitWidth: defaultBitWidth,
		hash:     Sha256Hash,
	}
	for _, opt := range opts {
		opt(m)
	}
	root, err := loadNode(ctx, cs, c, true, m.bitWidth, m.hash)
	if err != nil {
		return nil, err
	}
	m.root = root
	return m, nil
}

// Find looks up k and decodes the value into out when found. A nil out turns
// the call into a bare existence check. Absence is reported via the bool,
// not an error.
func (m *Map) Find(ctx context.Context, k []byte, out cbg.CBORUnmarshaler) (bool, error) {
	kv, err := m.root.getValue(ctx, &hashBits{b: m.hash(k)}, k)
	if err != nil {
		return false, err
	}
	if kv == nil {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := out.UnmarshalCBOR(bytes.NewReader(kv.Value.Raw)); err != nil {
		return false, xerrors.Errorf("decoding value: %w", err)
	}
	return true, nil
}

// FindRaw is Find without the decode step; it returns the raw deferred
// bytes stored at k.
func (m *Map) FindRaw(ctx context.Context, k []byte) ([]byte, bool, error) {
	kv, err := m.root.getValue(ctx, &hashBits{b: m.hash(k)}, k)
	if err != nil {
		return nil, false, err
	}
	if kv == nil {
		return nil, false, nil
	}
	return kv.Value.Raw, true, nil
}

// Set inserts or overwrites k with v. Overwriting with a byte-identical
// value is a no-op that leaves the flushed state untouched.
func (m *Map) Set(ctx context.Context, k []byte, v cbg.CBORMarshaler) error {
	var buf bytes.Buffer
	if err := v.MarshalCBOR(&buf); err != nil {
		return xerrors.Errorf("encoding value: %w", err)
	}
	return m.SetRaw(ctx, k, buf.Bytes())
}

// SetRaw is Set for values already encoded as DAG-CBOR.
func (m *Map) SetRaw(ctx context.Context, k, raw []byte) error {
	_, _, err := m.root.modifyValue(ctx, &hashBits{b: m.hash(k)}, k, &cbg.Deferred{Raw: raw}, true)
	return err
}

// SwapRaw is SetRaw returning the raw bytes previously stored at k, if any.
func (m *Map) SwapRaw(ctx context.Context, k, raw []byte) ([]byte, bool, error) {
	prev, _, err := m.root.modifyValue(ctx, &hashBits{b: m.hash(k)}, k, &cbg.Deferred{Raw: raw}, true)
	if err != nil {
		return nil, false, err
	}
	if prev == nil {
		return nil, false, nil
	}
	return prev.Raw, true, nil
}

// SetIfAbsent inserts k only when it is not present, reporting whether the
// insert happened.
func (m *Map) SetIfAbsent(ctx context.Context, k []byte, v cbg.CBORMarshaler) (bool, error) {
	var buf bytes.Buffer
	if err := v.MarshalCBOR(&buf); err != nil {
		return false, xerrors.Errorf("encoding value: %w", err)
	}
	_, modified, err := m.root.modifyValue(ctx, &hashBits{b: m.hash(k)}, k, &cbg.Deferred{Raw: buf.Bytes()}, false)
	return modified, err
}

// Delete removes k, reporting whether it was present. Deleting an absent key
// is a no-op, not an error.
func (m *Map) Delete(ctx context.Context, k []byte) (bool, error) {
	return m.root.rmValue(ctx, &hashBits{b: m.hash(k)}, k)
}

// ForEach invokes cb for every entry. The traversal order is fixed by the
// tree shape (ascending slot order), not by key order. The first error from
// cb stops the walk and is returned.
func (m *Map) ForEach(ctx context.Context, cb func(k []byte, v *cbg.Deferred) error) error {
	return m.root.forEach(ctx, cb)
}

// Flush persists all dirty subtrees bottom-up and returns the root's content
// identifier. It is idempotent: with no intervening mutation a second call
// returns the identical identifier. If any store put fails the dirty state
// is kept intact for retry and no identifier is produced.
func (m *Map) Flush(ctx context.Context) (cid.Cid, error) {
	if err := m.root.flush(ctx); err != nil {
		return cid.Undef, err
	}
	return m.store.Put(ctx, m.root)
}

// IsEmpty reports whether the map holds no entries.
func (m *Map) IsEmpty() bool {
	return len(m.root.Pointers) == 0
}

// BitWidth returns the configured bits-per-level.
func (m *Map) BitWidth() int {
	return m.bitWidth
}

// Store returns the backing store.
func (m *Map) Store() cbor.IpldStore {
	return m.store
}
