package core

// Protoburn is the subset of a decoded Protostone relevant to the C7 burn
// cycle: its burn tag, explicit `from` edict references, and the pointer
// that receives its share (spec.md §4.7).
type Protoburn struct {
	ProtocolTag Uint128
	From        []uint32
	Pointer     uint32
}

// RunProtoburnCycle implements the C7 algorithm of spec.md §4.7. edicts is
// the runestone's edict list in document order; runestoneOutputIndex is
// the OP_RETURN vout; balancesByOutput is the Runes-layer allocation
// result (read for its runestoneOutputIndex entry, the "burn pool" seed).
// It returns one BalanceSheet per protoburn, in the same order as
// protoburns, ready to be piped into proto_balances_by_output[pointer].
func RunProtoburnCycle(
	protoburns []Protoburn,
	edicts []Edict,
	runestoneOutputIndex uint32,
	balancesByOutput map[uint32]*BalanceSheet,
	defaultOutput uint32,
) ([]*BalanceSheet, error) {
	n := len(protoburns)
	burnSheets := make([]*BalanceSheet, n)
	for i := range burnSheets {
		burnSheets[i] = NewBalanceSheet()
	}
	if n == 0 {
		return burnSheets, nil
	}

	// Step 1: seed the burn pool from whatever the Runes-layer allocator
	// already routed to the OP_RETURN output.
	burnPool := NewBalanceSheet()
	if seed, ok := balancesByOutput[runestoneOutputIndex]; ok {
		seed.Pipe(burnPool)
	}

	consumed := make([]bool, len(edicts))
	cycle := make(map[RuneId]int)

	// Step 2: explicit `from` references.
	for i, pb := range protoburns {
		for _, j := range pb.From {
			if j >= uint32(len(edicts)) {
				return nil, &InvalidBurnReferenceError{Index: int(j), Count: len(edicts)}
			}
			consumed[j] = true
			e := edicts[j]
			if e.Output != runestoneOutputIndex {
				continue
			}
			have := burnPool.Get(e.ID)
			share := e.Amount.Min(have)
			if share.IsZero() {
				continue
			}
			burnPool.Decrease(e.ID, share)
			burnSheets[i].Increase(e.ID, share)
		}
	}

	// Step 3: round-robin cycling of unconsumed edicts targeting the
	// OP_RETURN output.
	for idx, e := range edicts {
		if consumed[idx] || e.Output != runestoneOutputIndex {
			continue
		}
		have := burnPool.Get(e.ID)
		share := e.Amount.Min(have)
		if share.IsZero() {
			continue
		}
		target := cycle[e.ID] % n
		burnPool.Decrease(e.ID, share)
		burnSheets[target].Increase(e.ID, share)
		cycle[e.ID]++
	}

	// Step 4: if the tx has no non-OP_RETURN outputs, drain whatever
	// remains into the cycle.
	if defaultOutput == runestoneOutputIndex {
		for _, entry := range burnPool.Entries() {
			target := cycle[entry.ID] % n
			burnSheets[target].Increase(entry.ID, entry.Value)
			cycle[entry.ID]++
		}
	}

	return burnSheets, nil
}
