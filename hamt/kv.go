// Copyright (c) 2025 The ChampDB developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package hamt

import (
	"io"

	cbg "github.com/whyrusleeping/cbor-gen"
	"golang.org/x/xerrors"
)

// KV is a single key/value entry of a bucket. The value is kept as deferred
// DAG-CBOR; typed access happens at the Map surface.
//
// A KV serializes as the tuple [key, value].
type KV struct {
	Key   []byte
	Value *cbg.Deferred
}

func (kv *KV) MarshalCBOR(w io.Writer) error {
	scratch := make([]byte, 9)

	if err := cbg.WriteMajorTypeHeaderBuf(scratch, w, cbg.MajArray, 2); err != nil {
		return err
	}
	if err := cbg.WriteMajorTypeHeaderBuf(scratch, w, cbg.MajByteString, uint64(len(kv.Key))); err != nil {
		return err
	}
	if _, err := w.Write(kv.Key); err != nil {
		return err
	}
	return kv.Value.MarshalCBOR(w)
}

func (kv *KV) UnmarshalCBOR(br io.Reader) error {
	scratch := make([]byte, 8)

	maj, extra, err := cbg.CborReadHeaderBuf(br, scratch)
	if err != nil {
		return err
	}
	if maj != cbg.MajArray || extra != 2 {
		return xerrors.Errorf("expected kv tuple of length 2: %w", ErrMalformed)
	}

	key, err := cbg.ReadByteArray(br, cbg.ByteArrayMaxLen)
	if err != nil {
		return err
	}
	kv.Key = key

	var val cbg.Deferred
	if err := val.UnmarshalCBOR(br); err != nil {
		return err
	}
	kv.Value = &val
	return nil
}
