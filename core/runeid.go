package core

// RuneId uniquely identifies a rune by the block height and transaction
// index of its etching (spec.md §3). Both components are full 128-bit
// unsigned integers to match the wire format; in practice block heights
// and transaction indices never approach that range, but the type makes
// no assumption about it.
type RuneId struct {
	Block Uint128
	Tx    Uint128
}

// ReservedRuneId is the (0,0) sentinel meaning "the rune etched by this
// very transaction" (spec.md §4.4 step 1).
var ReservedRuneId = RuneId{}

// IsReserved reports whether id is the (0,0) self-reference sentinel.
func (id RuneId) IsReserved() bool { return id.Block.IsZero() && id.Tx.IsZero() }

// IsInvalid reports the malformed pattern block==0 && tx!=0, which is
// rejected everywhere a RuneId is consumed except as the reserved id
// (spec.md §4.4 step 1, §4.2 runestone Verify).
func (id RuneId) IsInvalid() bool { return id.Block.IsZero() && !id.Tx.IsZero() }

// Cmp orders RuneIds by block ascending then tx ascending (spec.md §3).
func (id RuneId) Cmp(other RuneId) int {
	if c := id.Block.Cmp(other.Block); c != 0 {
		return c
	}
	return id.Tx.Cmp(other.Tx)
}

func (id RuneId) String() string { return id.Block.String() + ":" + id.Tx.String() }

// Bytes returns the canonical 32-byte little-endian encoding: block (16
// bytes) followed by tx (16 bytes).
func (id RuneId) Bytes() [32]byte {
	var out [32]byte
	b := id.Block.Bytes()
	t := id.Tx.Bytes()
	copy(out[0:16], b[:])
	copy(out[16:32], t[:])
	return out
}

// RuneIdFromBytes decodes the encoding produced by Bytes.
func RuneIdFromBytes(b []byte) RuneId {
	return RuneId{
		Block: U128FromBytes(b[0:16]),
		Tx:    U128FromBytes(b[16:32]),
	}
}

// DeltaTo computes the (Δblock, second) pair encoding the step from a
// sorted prev id to next, per spec.md §3: "the delta between a sorted
// previous id and the next id is (Δblock, next.tx if Δblock>0 else Δtx)".
// ok is false if the delta is not representable (next precedes prev).
func (prev RuneId) DeltaTo(next RuneId) (deltaBlock, second Uint128, ok bool) {
	db, underflow := next.Block.Sub(prev.Block)
	if underflow {
		return Uint128{}, Uint128{}, false
	}
	if !db.IsZero() {
		return db, next.Tx, true
	}
	dt, underflow2 := next.Tx.Sub(prev.Tx)
	if underflow2 {
		return Uint128{}, Uint128{}, false
	}
	return db, dt, true
}

// NextRuneID reconstructs a RuneId from a previous id and a decoded
// (Δblock, second) pair, inverting DeltaTo. ok is false on 128-bit
// overflow, which the caller surfaces as FlawEdictRuneID.
func NextRuneID(prev RuneId, deltaBlock, second Uint128) (id RuneId, ok bool) {
	newBlock, overflow := prev.Block.Add(deltaBlock)
	if overflow {
		return RuneId{}, false
	}
	if !deltaBlock.IsZero() {
		return RuneId{Block: newBlock, Tx: second}, true
	}
	newTx, overflow2 := prev.Tx.Add(second)
	if overflow2 {
		return RuneId{}, false
	}
	return RuneId{Block: newBlock, Tx: newTx}, true
}
