// Copyright (c) 2025 The ChampDB developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package hamt

import (
	"crypto/sha256"

	"github.com/spaolacci/murmur3"
)

// hashBits reads the 'next n bits' of a key digest as an integer. State is
// retained; every call to Next consumes more of the digest.
type hashBits struct {
	b        []byte
	consumed int
}

func mkmask(n int) byte {
	return (1 << uint(n)) - 1
}

// Next returns the next i bits of the digest as an integer, or ErrMaxDepth
// once the digest is exhausted.
func (hb *hashBits) Next(i int) (int, error) {
	if hb.consumed+i > len(hb.b)*8 {
		return 0, ErrMaxDepth
	}
	return hb.next(i), nil
}

// next extracts i bits, reading across byte boundaries where the digit
// straddles two bytes.
func (hb *hashBits) next(i int) int {
	curbi := hb.consumed / 8
	leftb := 8 - (hb.consumed % 8)

	curb := hb.b[curbi]
	switch {
	case i == leftb:
		out := int(mkmask(i) & curb)
		hb.consumed += i
		return out
	case i < leftb:
		a := curb & mkmask(leftb)  // wipe the already-consumed high bits
		b := a & ^mkmask(leftb-i)  // wipe the low bits of the next digit
		c := b >> uint(leftb-i)    // align
		hb.consumed += i
		return int(c)
	default:
		out := int(mkmask(leftb) & curb)
		out <<= uint(i - leftb)
		hb.consumed += leftb
		out += hb.next(i - leftb)
		return out
	}
}

// Sha256Hash is the default key-hash algorithm. Keys hashed with SHA-256
// cannot be steered into collisions, which keeps adversarial key sets from
// blowing up the tree depth.
func Sha256Hash(val []byte) []byte {
	h := sha256.Sum256(val)
	return h[:]
}

// Murmur3Hash hashes keys with murmur3-x64. Faster than SHA-256 but only
// safe when keys are not attacker controlled.
func Murmur3Hash(val []byte) []byte {
	h := murmur3.New64()
	h.Write(val)
	return h.Sum(nil)
}
