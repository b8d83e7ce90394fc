package core

import "testing"

func TestBalanceSheetIncreaseAndGet(t *testing.T) {
	bs := NewBalanceSheet()
	id := rid(1, 1)
	bs.Increase(id, U128FromUint64(10))
	bs.Increase(id, U128FromUint64(5))
	if got := bs.Get(id); got.Cmp(U128FromUint64(15)) != 0 {
		t.Fatalf("Get after two Increase calls = %s, want 15", got)
	}
	if got := bs.Get(rid(2, 2)); !got.IsZero() {
		t.Fatalf("an untouched id must read as zero, got %s", got)
	}
}

func TestBalanceSheetDecreaseUnderflowIsNoop(t *testing.T) {
	bs := NewBalanceSheet()
	id := rid(1, 1)
	bs.Increase(id, U128FromUint64(5))
	if bs.Decrease(id, U128FromUint64(10)) {
		t.Fatalf("Decrease beyond the balance must report false")
	}
	if got := bs.Get(id); got.Cmp(U128FromUint64(5)) != 0 {
		t.Fatalf("a failed Decrease must not mutate the balance, got %s", got)
	}
	if !bs.Decrease(id, U128FromUint64(5)) {
		t.Fatalf("an exact Decrease must succeed")
	}
	if !bs.Get(id).IsZero() {
		t.Fatalf("balance after exact decrease must be zero")
	}
}

func TestBalanceSheetPipeLeavesSourceIntact(t *testing.T) {
	src := NewBalanceSheet()
	id := rid(1, 1)
	src.Increase(id, U128FromUint64(20))
	dst := NewBalanceSheet()
	dst.Increase(id, U128FromUint64(5))

	src.Pipe(dst)

	if got := src.Get(id); got.Cmp(U128FromUint64(20)) != 0 {
		t.Fatalf("Pipe must not mutate the source, got %s", got)
	}
	if got := dst.Get(id); got.Cmp(U128FromUint64(25)) != 0 {
		t.Fatalf("Pipe must add into the destination, got %s", got)
	}
}

func TestBalanceSheetDebitUnderflowLeavesUnchanged(t *testing.T) {
	bs := NewBalanceSheet()
	id := rid(1, 1)
	bs.Increase(id, U128FromUint64(10))
	want := NewBalanceSheet()
	want.Increase(id, U128FromUint64(20))

	err := bs.Debit(want)
	if _, ok := err.(*UnderflowError); !ok {
		t.Fatalf("expected *UnderflowError, got %v", err)
	}
	if got := bs.Get(id); got.Cmp(U128FromUint64(10)) != 0 {
		t.Fatalf("a failed Debit must not mutate bs, got %s", got)
	}
}

func TestBalanceSheetDebitSuccess(t *testing.T) {
	bs := NewBalanceSheet()
	id := rid(1, 1)
	bs.Increase(id, U128FromUint64(10))
	want := NewBalanceSheet()
	want.Increase(id, U128FromUint64(4))

	if err := bs.Debit(want); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if got := bs.Get(id); got.Cmp(U128FromUint64(6)) != 0 {
		t.Fatalf("balance after Debit = %s, want 6", got)
	}
}

func TestMergeBalanceSheetsDoesNotMutateInputs(t *testing.T) {
	id := rid(1, 1)
	a := NewBalanceSheet()
	a.Increase(id, U128FromUint64(3))
	b := NewBalanceSheet()
	b.Increase(id, U128FromUint64(4))

	merged := MergeBalanceSheets(a, b)
	if got := merged.Get(id); got.Cmp(U128FromUint64(7)) != 0 {
		t.Fatalf("merged balance = %s, want 7", got)
	}
	if got := a.Get(id); got.Cmp(U128FromUint64(3)) != 0 {
		t.Fatalf("MergeBalanceSheets must not mutate a, got %s", got)
	}
	if got := b.Get(id); got.Cmp(U128FromUint64(4)) != 0 {
		t.Fatalf("MergeBalanceSheets must not mutate b, got %s", got)
	}
}

func TestBalanceSheetEntriesSkipsZeroAndSortsByID(t *testing.T) {
	bs := NewBalanceSheet()
	bs.Set(rid(2, 0), U128FromUint64(0))
	bs.Set(rid(1, 0), U128FromUint64(5))
	bs.Set(rid(3, 0), U128FromUint64(7))

	entries := bs.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected zero entries to be skipped, got %d entries", len(entries))
	}
	if entries[0].ID != rid(1, 0) || entries[1].ID != rid(3, 0) {
		t.Fatalf("entries must be sorted ascending by id, got %+v", entries)
	}
}

func TestBalanceSheetParallelListsRoundTrip(t *testing.T) {
	bs := NewBalanceSheet()
	bs.Increase(rid(1, 1), U128FromUint64(10))
	bs.Increase(rid(2, 2), U128FromUint64(20))

	ids, vals := bs.EncodeParallelLists()
	got := DecodeParallelLists(ids, vals)

	if got.Get(rid(1, 1)).Cmp(U128FromUint64(10)) != 0 {
		t.Fatalf("decoded balance for (1,1) mismatch")
	}
	if got.Get(rid(2, 2)).Cmp(U128FromUint64(20)) != 0 {
		t.Fatalf("decoded balance for (2,2) mismatch")
	}
}

func TestBalanceSheetFromTransfersSumsDuplicates(t *testing.T) {
	id := rid(1, 1)
	transfers := []RuneTransfer{{ID: id, Value: U128FromUint64(3)}, {ID: id, Value: U128FromUint64(4)}}
	bs := BalanceSheetFromTransfers(transfers)
	if got := bs.Get(id); got.Cmp(U128FromUint64(7)) != 0 {
		t.Fatalf("summed transfer balance = %s, want 7", got)
	}
}

func TestBalanceSheetIsEmpty(t *testing.T) {
	bs := NewBalanceSheet()
	if !bs.IsEmpty() {
		t.Fatalf("a fresh sheet must be empty")
	}
	bs.Set(rid(1, 1), U128FromUint64(0))
	if !bs.IsEmpty() {
		t.Fatalf("a sheet with only zero entries must still be empty")
	}
	bs.Increase(rid(1, 1), U128FromUint64(1))
	if bs.IsEmpty() {
		t.Fatalf("a sheet with a nonzero entry must not be empty")
	}
}
