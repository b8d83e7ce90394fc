package core

// RuneEntry is the persisted state of an etched rune (spec.md §4.5): name,
// etching height, and the mutable minting window/counters. It lives only
// in an EtchingIndex in memory; it is not written to the KV store.
type RuneEntry struct {
	ID             RuneId
	Name           Uint128
	EtchingHeight  uint64
	Divisibility   uint8
	Premine        Uint128
	Spacers        uint32
	Symbol         rune
	Terms          *Terms
	MintsRemaining Uint128
	// UnlimitedMints is set when Terms is present but carries no cap: the
	// Runes standard treats an absent cap as an open-ended mint, so
	// MintsRemaining is not consulted in that case.
	UnlimitedMints bool
}

// EtchingIndex is the name<->id directory plus per-height etching list.
// It is held in memory by the caller of NewIndexer and shared across every
// block and tx indexed; the Indexer neither loads it from nor writes it to
// the KV store, so its contents do not outlive the process.
type EtchingIndex struct {
	byName map[Uint128]*RuneEntry
	byID   map[RuneId]*RuneEntry
	// namesAtHeight preserves the append order of etchings per block height.
	namesAtHeight map[uint64][]Uint128
}

// NewEtchingIndex returns an empty index.
func NewEtchingIndex() *EtchingIndex {
	return &EtchingIndex{
		byName:        make(map[Uint128]*RuneEntry),
		byID:          make(map[RuneId]*RuneEntry),
		namesAtHeight: make(map[uint64][]Uint128),
	}
}

// Lookup returns the entry for name, if etched.
func (idx *EtchingIndex) Lookup(name Uint128) (*RuneEntry, bool) {
	e, ok := idx.byName[name]
	return e, ok
}

// LookupByID returns the entry for id, if etched.
func (idx *EtchingIndex) LookupByID(id RuneId) (*RuneEntry, bool) {
	e, ok := idx.byID[id]
	return e, ok
}

// ProcessEtching applies spec.md §4.5's etching rule. blockHeight/txIndex
// form the new RuneId. balancesByOutput receives the premine deposit, if
// any. A name already taken is rejected silently (no effect), per spec.
func ProcessEtching(idx *EtchingIndex, e *Etching, blockHeight, txIndex uint64, pointer *uint32, outputs OutputSet, balancesByOutput map[uint32]*BalanceSheet) {
	if e == nil || e.Rune == nil {
		return
	}
	name := *e.Rune
	if _, taken := idx.byName[name]; taken {
		return
	}

	id := RuneId{Block: U128FromUint64(blockHeight), Tx: U128FromUint64(txIndex)}

	entry := &RuneEntry{
		ID:            id,
		Name:          name,
		EtchingHeight: blockHeight,
	}
	if e.Divisibility != nil {
		entry.Divisibility = *e.Divisibility
	}
	if e.Premine != nil {
		entry.Premine = *e.Premine
	}
	if e.Spacers != nil {
		entry.Spacers = *e.Spacers
	}
	if e.Symbol != nil {
		entry.Symbol = *e.Symbol
	}
	if e.Terms != nil {
		entry.Terms = e.Terms
		if e.Terms.Cap != nil {
			entry.MintsRemaining = *e.Terms.Cap
		} else {
			entry.UnlimitedMints = true
		}
	}

	idx.byName[name] = entry
	idx.byID[id] = entry
	idx.namesAtHeight[blockHeight] = append(idx.namesAtHeight[blockHeight], name)

	if e.Premine != nil && !e.Premine.IsZero() {
		target := outputs.DefaultOutput()
		if pointer != nil {
			target = *pointer
		}
		outputFor(balancesByOutput, target).Increase(id, *e.Premine)
	}
}

// mintWindowOpen reports whether height satisfies t's height/offset window
// (spec.md §4.5's mint rule). A nil bound is unconstrained on that side.
func mintWindowOpen(t *Terms, etchingHeight, height uint64) bool {
	if t == nil {
		return false
	}
	if t.HeightStart != nil && height < *t.HeightStart {
		return false
	}
	if t.HeightEnd != nil && height >= *t.HeightEnd {
		return false
	}
	if t.OffsetStart != nil && height < etchingHeight+*t.OffsetStart {
		return false
	}
	if t.OffsetEnd != nil && height >= etchingHeight+*t.OffsetEnd {
		return false
	}
	return true
}

// ProcessMint applies spec.md §4.5's mint rule: a silent no-op unless the
// entry exists, has mints remaining, and the current height falls inside
// its minting window. On success it decrements mints_remaining and
// increases balanceSheet by the etching's per-mint amount.
func ProcessMint(idx *EtchingIndex, mint RuneId, height uint64, balanceSheet *BalanceSheet) {
	entry, ok := idx.byID[mint]
	if !ok || entry.Terms == nil {
		return
	}
	if !entry.UnlimitedMints && entry.MintsRemaining.IsZero() {
		return
	}
	if !mintWindowOpen(entry.Terms, entry.EtchingHeight, height) {
		return
	}

	if !entry.UnlimitedMints {
		entry.MintsRemaining, _ = entry.MintsRemaining.Sub(U128FromUint64(1))
	}

	amount := ZeroU128
	if entry.Terms.Amount != nil {
		amount = *entry.Terms.Amount
	}
	balanceSheet.Increase(mint, amount)
}
