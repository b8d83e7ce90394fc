package core

import (
	"fmt"
	"sort"
)

// BalanceSheet is a finite mapping RuneId -> Uint128 (spec.md §3, C3).
// Grounded on crates/protorune-support/src/balance_sheet.rs in the Rust
// original, adapted to Go value semantics: a missing key reads as zero,
// Decrease reports failure as a bool and Debit as an error, while
// Increase panics on overflow and Set cannot fail.
//
// Not safe for concurrent use; callers that share a sheet across
// goroutines (none do in this single-threaded indexer, per spec.md §5)
// must synchronize externally.
type BalanceSheet struct {
	balances map[RuneId]Uint128
	// order preserves first-insertion order so iteration (Pipe, Debit,
	// merging) is deterministic regardless of Go's randomized map
	// iteration; serialization goes through Entries(), sorted by id.
	order []RuneId
}

// NewBalanceSheet returns an empty sheet.
func NewBalanceSheet() *BalanceSheet {
	return &BalanceSheet{balances: make(map[RuneId]Uint128)}
}

// Get returns the balance for id, or zero if absent.
func (bs *BalanceSheet) Get(id RuneId) Uint128 {
	return bs.balances[id]
}

// Set stores value unconditionally, including zero (spec.md §4.3: "v = 0
// is allowed and means present as zero"; persistence is what skips zero
// entries, not Set).
func (bs *BalanceSheet) Set(id RuneId, value Uint128) {
	if _, exists := bs.balances[id]; !exists {
		bs.order = append(bs.order, id)
	}
	bs.balances[id] = value
}

// Increase adds value to the current balance of id. Overflow is a fatal
// programming error (spec.md §4.3, §9): it panics rather than saturating.
func (bs *BalanceSheet) Increase(id RuneId, value Uint128) {
	cur := bs.Get(id)
	bs.Set(id, cur.MustAdd(value))
}

// Decrease subtracts value from id's balance. It is a no-op and returns
// false if the current balance is less than value.
func (bs *BalanceSheet) Decrease(id RuneId, value Uint128) bool {
	cur := bs.Get(id)
	diff, underflow := cur.Sub(value)
	if underflow {
		return false
	}
	bs.Set(id, diff)
	return true
}

// Pipe adds every entry of bs into other. bs itself is left untouched;
// callers that mean to drain bs discard it after piping (spec.md §4.3).
func (bs *BalanceSheet) Pipe(other *BalanceSheet) {
	for _, id := range bs.order {
		v := bs.balances[id]
		if v.IsZero() {
			continue
		}
		other.Increase(id, v)
	}
}

// UnderflowError reports that a Debit could not be satisfied, naming the
// first rune id found short (spec.md §7 taxonomy).
type UnderflowError struct {
	ID   RuneId
	Have Uint128
	Want Uint128
}

func (e *UnderflowError) Error() string {
	return fmt.Sprintf("protorunes: underflow debiting %s: have %s, want %s", e.ID, e.Have, e.Want)
}

// Debit subtracts b from bs in place. It fails with *UnderflowError,
// leaving bs unchanged, if any id in b exceeds bs's balance (spec.md
// §4.3, testable property 8).
func (bs *BalanceSheet) Debit(b *BalanceSheet) error {
	for _, id := range b.order {
		want := b.balances[id]
		if want.IsZero() {
			continue
		}
		have := bs.Get(id)
		if have.Cmp(want) < 0 {
			return &UnderflowError{ID: id, Have: have, Want: want}
		}
	}
	for _, id := range b.order {
		want := b.balances[id]
		if want.IsZero() {
			continue
		}
		cur := bs.Get(id)
		diff, _ := cur.Sub(want) // already verified above
		bs.Set(id, diff)
	}
	return nil
}

// MergeBalanceSheets returns a new sheet that is the pure sum of a and b;
// neither input is mutated (spec.md §4.3).
func MergeBalanceSheets(a, b *BalanceSheet) *BalanceSheet {
	out := NewBalanceSheet()
	for _, id := range a.order {
		out.Set(id, a.balances[id])
	}
	for _, id := range b.order {
		out.Increase(id, b.balances[id])
	}
	return out
}

// ConcatBalanceSheets folds MergeBalanceSheets over a slice of sheets.
func ConcatBalanceSheets(sheets []*BalanceSheet) *BalanceSheet {
	out := NewBalanceSheet()
	for _, s := range sheets {
		out = MergeBalanceSheets(out, s)
	}
	return out
}

// Clone returns an independent copy of bs.
func (bs *BalanceSheet) Clone() *BalanceSheet {
	out := NewBalanceSheet()
	for _, id := range bs.order {
		out.Set(id, bs.balances[id])
	}
	return out
}

// Entries returns (id, value) pairs for every nonzero balance, sorted by
// RuneId for deterministic iteration (spec.md §5: "all maps iterated for
// persistence are iterated in ascending vout order... deterministic").
func (bs *BalanceSheet) Entries() []RuneTransfer {
	out := make([]RuneTransfer, 0, len(bs.order))
	for _, id := range bs.order {
		v := bs.balances[id]
		if v.IsZero() {
			continue
		}
		out = append(out, RuneTransfer{ID: id, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Cmp(out[j].ID) < 0 })
	return out
}

// IsEmpty reports whether every entry in bs is zero.
func (bs *BalanceSheet) IsEmpty() bool {
	for _, id := range bs.order {
		if !bs.balances[id].IsZero() {
			return false
		}
	}
	return true
}

// EncodeParallelLists serializes bs as the two parallel lists described in
// spec.md §4.3 and §6 ("/runes" 32-byte ids, "/balances" u128 LE), skipping
// zero entries. This is the shape AtomicPointer persists under an
// OUTPOINT_TO_RUNES key.
func (bs *BalanceSheet) EncodeParallelLists() (runeIDs [][32]byte, balances [][16]byte) {
	for _, e := range bs.Entries() {
		runeIDs = append(runeIDs, e.ID.Bytes())
		balances = append(balances, e.Value.Bytes())
	}
	return runeIDs, balances
}

// DecodeParallelLists reconstructs a BalanceSheet from the parallel lists
// written by EncodeParallelLists; the lists must be the same length.
func DecodeParallelLists(runeIDs [][32]byte, balances [][16]byte) *BalanceSheet {
	bs := NewBalanceSheet()
	for i := range runeIDs {
		id := RuneIdFromBytes(runeIDs[i][:])
		v := U128FromBytes(balances[i][:])
		bs.Set(id, v)
	}
	return bs
}

// RuneTransfer pairs a rune id with an amount; it is the wire shape of the
// Handler interface's outgoing_transfers (spec.md §6) and doubles as the
// incoming view handed to handlers in MessageContextParcel.Runes.
type RuneTransfer struct {
	ID    RuneId
	Value Uint128
}

// BalanceSheetFromTransfers builds a BalanceSheet from a RuneTransfer list,
// summing duplicate ids (grounded on src/rune_transfer.rs in the Rust
// original).
func BalanceSheetFromTransfers(transfers []RuneTransfer) *BalanceSheet {
	bs := NewBalanceSheet()
	for _, t := range transfers {
		bs.Increase(t.ID, t.Value)
	}
	return bs
}
