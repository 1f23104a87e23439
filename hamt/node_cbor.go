// Copyright (c) 2025 The ChampDB developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package hamt

import (
	"io"
	"math/big"

	cbg "github.com/whyrusleeping/cbor-gen"
	"golang.org/x/xerrors"
)

// A node serializes as the tuple [bitfield, pointers]. The bitfield is the
// minimal big-endian byte form of the occupancy bits; its encoding is part
// of the content hash and must not carry leading zero bytes.

// widest supported fan-out is 2^8 slots, so 32 bytes of bitfield and 256
// pointers bound any well-formed node.
const (
	maxBitfieldLen = 32
	maxPointers    = 256
)

func (n *Node) MarshalCBOR(w io.Writer) error {
	scratch := make([]byte, 9)

	if err := cbg.WriteMajorTypeHeaderBuf(scratch, w, cbg.MajArray, 2); err != nil {
		return err
	}

	bf := n.Bitfield.Bytes()
	if err := cbg.WriteMajorTypeHeaderBuf(scratch, w, cbg.MajByteString, uint64(len(bf))); err != nil {
		return err
	}
	if _, err := w.Write(bf); err != nil {
		return err
	}

	if err := cbg.WriteMajorTypeHeaderBuf(scratch, w, cbg.MajArray, uint64(len(n.Pointers))); err != nil {
		return err
	}
	for _, p := range n.Pointers {
		if err := p.MarshalCBOR(w); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) UnmarshalCBOR(br io.Reader) error {
	scratch := make([]byte, 8)

	maj, extra, err := cbg.CborReadHeaderBuf(br, scratch)
	if err != nil {
		return err
	}
	if maj != cbg.MajArray || extra != 2 {
		return xerrors.Errorf("expected node tuple of length 2: %w", ErrMalformed)
	}

	bf, err := cbg.ReadByteArray(br, maxBitfieldLen)
	if err != nil {
		return err
	}
	if len(bf) > 0 && bf[0] == 0 {
		return xerrors.Errorf("bitfield has leading zero bytes: %w", ErrMalformed)
	}
	n.Bitfield = new(big.Int).SetBytes(bf)

	maj, extra, err = cbg.CborReadHeaderBuf(br, scratch)
	if err != nil {
		return err
	}
	if maj != cbg.MajArray || extra > maxPointers {
		return xerrors.Errorf("invalid pointer list: %w", ErrMalformed)
	}

	n.Pointers = make([]*Pointer, extra)
	for i := range n.Pointers {
		var p Pointer
		if err := p.UnmarshalCBOR(br); err != nil {
			return err
		}
		n.Pointers[i] = &p
	}
	return nil
}
