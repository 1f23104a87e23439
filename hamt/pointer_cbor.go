// Copyright (c) 2025 The ChampDB developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package hamt

import (
	"io"

	cid "github.com/ipfs/go-cid"
	cbg "github.com/whyrusleeping/cbor-gen"
	"golang.org/x/xerrors"
)

// A pointer serializes as either a bare link (CBOR tag 42 CID) or an array
// of kv tuples. The two are told apart on decode by major type alone, so no
// wrapper map is needed. The encoding participates in the node's content
// hash and must stay byte-exact.

func (p *Pointer) MarshalCBOR(w io.Writer) error {
	if p.dirty {
		return errSerializeDirty
	}

	scratch := make([]byte, 9)

	if p.Link.Defined() {
		return cbg.WriteCidBuf(scratch, w, p.Link)
	}

	if err := cbg.WriteMajorTypeHeaderBuf(scratch, w, cbg.MajArray, uint64(len(p.KVs))); err != nil {
		return err
	}
	for _, kv := range p.KVs {
		if err := kv.MarshalCBOR(w); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pointer) UnmarshalCBOR(br io.Reader) error {
	scratch := make([]byte, 8)

	maj, extra, err := cbg.CborReadHeaderBuf(br, scratch)
	if err != nil {
		return err
	}

	switch maj {
	case cbg.MajTag:
		if extra != 42 {
			return xerrors.Errorf("unexpected cbor tag %d where link expected: %w", extra, ErrMalformed)
		}
		maj, l, err := cbg.CborReadHeaderBuf(br, scratch)
		if err != nil {
			return err
		}
		if maj != cbg.MajByteString || l > 100 {
			return xerrors.Errorf("link is not a valid cid: %w", ErrMalformed)
		}
		buf := make([]byte, l)
		if _, err := io.ReadFull(br, buf); err != nil {
			return err
		}
		// dag-cbor carries cids with a multibase identity prefix byte
		if len(buf) == 0 || buf[0] != 0 {
			return xerrors.Errorf("link is missing identity multibase prefix: %w", ErrMalformed)
		}
		c, err := cid.Cast(buf[1:])
		if err != nil {
			return xerrors.Errorf("link is not a valid cid: %w", ErrMalformed)
		}
		p.Link = c
		return nil

	case cbg.MajArray:
		if extra > maxArrayWidth {
			return xerrors.Errorf("kv bucket of %d entries exceeds width limit: %w", extra, ErrMalformed)
		}
		kvs := make([]*KV, extra)
		for i := range kvs {
			var kv KV
			if err := kv.UnmarshalCBOR(br); err != nil {
				return err
			}
			kvs[i] = &kv
		}
		p.KVs = kvs
		return nil

	default:
		return xerrors.Errorf("unexpected major type %d for pointer: %w", maj, ErrMalformed)
	}
}
