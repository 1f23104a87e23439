// Copyright (c) 2025 The ChampDB developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package hamt

import (
	"math/big"
	"math/bits"
)

// The bitfield marks which of the 2^bitwidth slots of a node are occupied.
// The pointers array is compacted: it holds one entry per set bit, ordered by
// slot index, so locating the array index of slot i is a popcount of the bits
// below i.

// indexForBitPos returns the pointers-array index for bit position bp,
// i.e. the number of set bits with index < bp.
func (n *Node) indexForBitPos(bp int) int {
	return indexForBitPos(bp, n.Bitfield)
}

func indexForBitPos(bp int, bitfield *big.Int) int {
	var x uint
	var count, i int
	w := bitfield.Bits()
	for x = uint(bp); x > bits.UintSize && i < len(w); x -= bits.UintSize {
		count += bits.OnesCount(uint(w[i]))
		i++
	}
	if i == len(w) {
		return count
	}
	return count + bits.OnesCount(uint(w[i])&((1<<x)-1))
}

// bitsSetCount counts the occupied slots of the node.
func (n *Node) bitsSetCount() int {
	count := 0
	for _, b := range n.Bitfield.Bits() {
		count += bits.OnesCount(uint(b))
	}
	return count
}
