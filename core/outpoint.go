package core

import "github.com/btcsuite/btcd/wire"

// OutpointKey returns the 36-byte consensus-encoding of a Bitcoin outpoint
// (spec.md §6: "32-byte txid little-endian ∥ 4-byte vout little-endian"),
// used as the suffix of every `/runes/byoutpoint/{outpoint}`-family key.
func OutpointKey(op wire.OutPoint) []byte {
	out := make([]byte, 36)
	copy(out[0:32], op.Hash[:])
	out[32] = byte(op.Index)
	out[33] = byte(op.Index >> 8)
	out[34] = byte(op.Index >> 16)
	out[35] = byte(op.Index >> 24)
	return out
}
