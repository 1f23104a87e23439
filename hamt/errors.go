// Copyright (c) 2025 The ChampDB developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package hamt

import "errors"

// ErrMaxDepth is returned when a traversal consumes more digest bits than the
// configured hash function provides. With a sane bitwidth and a proper hash
// this is unreachable; hitting it indicates forced collisions (weak or
// attacker-influenced key hashing) or a pathological configuration.
var ErrMaxDepth = errors.New("attempted to traverse hamt beyond max depth")

// ErrZeroPointers is returned when canonicalization observes a dirty node
// with no pointers. Empty nodes must be removed from their parent's bitfield
// entirely, so this is an invariant violation, not a recoverable condition.
var ErrZeroPointers = errors.New("hamt node has no pointers")

// ErrMalformed is returned when bytes read from the store do not decode into
// a well-formed node: bitfield/pointer count mismatch, oversized or unsorted
// buckets, or a non-canonical subtree shape.
var ErrMalformed = errors.New("hamt node was malformed")

var errSerializeDirty = errors.New("cannot serialize dirty hamt pointer")
