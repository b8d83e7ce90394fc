package core

import "testing"

func u64p(v uint64) *uint64 { return &v }
func u128p(v uint64) *Uint128 {
	u := U128FromUint64(v)
	return &u
}

func TestProcessEtchingAssignsIDAndPremine(t *testing.T) {
	idx := NewEtchingIndex()
	name := U128FromUint64(999)
	e := &Etching{Rune: &name, Premine: u128p(50)}
	outputs := OutputSet{NumOutputs: 2}
	byOutput := map[uint32]*BalanceSheet{}

	ProcessEtching(idx, e, 840000, 1, nil, outputs, byOutput)

	entry, ok := idx.Lookup(name)
	if !ok {
		t.Fatalf("expected etching to be recorded")
	}
	if entry.ID != (RuneId{Block: U128FromUint64(840000), Tx: U128FromUint64(1)}) {
		t.Fatalf("unexpected rune id: %v", entry.ID)
	}
	if got := byOutput[0].Get(entry.ID); got.Cmp(U128FromUint64(50)) != 0 {
		t.Fatalf("premine not deposited to default output, got %s", got)
	}
}

func TestProcessEtchingNameAlreadyTakenIsNoop(t *testing.T) {
	idx := NewEtchingIndex()
	name := U128FromUint64(1)
	outputs := OutputSet{NumOutputs: 1}
	byOutput := map[uint32]*BalanceSheet{}

	ProcessEtching(idx, &Etching{Rune: &name}, 1, 0, nil, outputs, byOutput)
	first, _ := idx.Lookup(name)

	ProcessEtching(idx, &Etching{Rune: &name, Premine: u128p(5)}, 2, 0, nil, outputs, byOutput)
	second, _ := idx.Lookup(name)

	if first.ID != second.ID {
		t.Fatalf("second etching of the same name must not overwrite the first")
	}
}

func TestProcessMintUnlimitedNeverExhausts(t *testing.T) {
	idx := NewEtchingIndex()
	name := U128FromUint64(1)
	e := &Etching{Rune: &name, Terms: &Terms{Amount: u128p(10)}}
	outputs := OutputSet{NumOutputs: 1}
	byOutput := map[uint32]*BalanceSheet{}
	ProcessEtching(idx, e, 0, 0, nil, outputs, byOutput)
	entry, _ := idx.Lookup(name)

	sheet := NewBalanceSheet()
	for i := 0; i < 5; i++ {
		ProcessMint(idx, entry.ID, 0, sheet)
	}
	if got := sheet.Get(entry.ID); got.Cmp(U128FromUint64(50)) != 0 {
		t.Fatalf("unlimited mint total = %s, want 50", got)
	}
}

func TestProcessMintCappedExhausts(t *testing.T) {
	idx := NewEtchingIndex()
	name := U128FromUint64(1)
	e := &Etching{Rune: &name, Terms: &Terms{Amount: u128p(10), Cap: u128p(2)}}
	outputs := OutputSet{NumOutputs: 1}
	byOutput := map[uint32]*BalanceSheet{}
	ProcessEtching(idx, e, 0, 0, nil, outputs, byOutput)
	entry, _ := idx.Lookup(name)

	sheet := NewBalanceSheet()
	for i := 0; i < 5; i++ {
		ProcessMint(idx, entry.ID, 0, sheet)
	}
	if got := sheet.Get(entry.ID); got.Cmp(U128FromUint64(20)) != 0 {
		t.Fatalf("capped mint total = %s, want 20 (cap of 2 mints)", got)
	}
}

func TestProcessMintOutsideWindowIsNoop(t *testing.T) {
	idx := NewEtchingIndex()
	name := U128FromUint64(1)
	e := &Etching{Rune: &name, Terms: &Terms{Amount: u128p(10), HeightStart: u64p(100)}}
	outputs := OutputSet{NumOutputs: 1}
	byOutput := map[uint32]*BalanceSheet{}
	ProcessEtching(idx, e, 0, 0, nil, outputs, byOutput)
	entry, _ := idx.Lookup(name)

	sheet := NewBalanceSheet()
	ProcessMint(idx, entry.ID, 50, sheet)
	if !sheet.Get(entry.ID).IsZero() {
		t.Fatalf("mint before window start must be a no-op")
	}
	ProcessMint(idx, entry.ID, 100, sheet)
	if sheet.Get(entry.ID).IsZero() {
		t.Fatalf("mint at window start should succeed")
	}
}

func TestProcessMintUnknownIDIsNoop(t *testing.T) {
	idx := NewEtchingIndex()
	sheet := NewBalanceSheet()
	ProcessMint(idx, rid(1, 1), 0, sheet)
	if !sheet.IsEmpty() {
		t.Fatalf("minting an unetched rune id must be a no-op")
	}
}
