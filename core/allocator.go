package core

import "sort"

// OutputSet is the set of real transaction output indices available to the
// allocator, split by whether each is the OP_RETURN output (spec.md §4.4).
// Built once per tx from its wire.MsgTx by the orchestrator.
type OutputSet struct {
	NumOutputs    uint32
	OpReturnIndex uint32
	HasOpReturn   bool
}

// NonOpReturnOutputs returns the non-OP_RETURN output indices in ascending
// order.
func (o OutputSet) NonOpReturnOutputs() []uint32 {
	out := make([]uint32, 0, o.NumOutputs)
	for i := uint32(0); i < o.NumOutputs; i++ {
		if o.HasOpReturn && i == o.OpReturnIndex {
			continue
		}
		out = append(out, i)
	}
	return out
}

// DefaultOutput is the lowest-index non-OP_RETURN output, or 0 if the tx
// has none (spec.md §4.4 step 4).
func (o OutputSet) DefaultOutput() uint32 {
	nonOP := o.NonOpReturnOutputs()
	if len(nonOP) == 0 {
		return 0
	}
	return nonOP[0]
}

// AllocateEdicts runs the rune allocation engine (C4, spec.md §4.4) over
// edicts in document order, distributing balanceSheet (the tx's running
// rune residue) into balancesByOutput. pointer is the runestone's explicit
// pointer field, if any; when absent, leftover goes to outputs.DefaultOutput().
// cenotaph skips steps 2-4 entirely, discarding the leftover (all input
// runes burned, spec.md §4.4 step 5).
//
// Grounded on the teacher's opcode_dispatcher.go dispatch-then-apply shape:
// each edict is validated, then applied against mutable ledger state, same
// as an opcode's gas-checked-then-executed step.
func AllocateEdicts(
	edicts []Edict,
	balancesByOutput map[uint32]*BalanceSheet,
	balanceSheet *BalanceSheet,
	outputs OutputSet,
	pointer *uint32,
	cenotaph bool,
) error {
	if cenotaph {
		return nil
	}

	nonOP := outputs.NonOpReturnOutputs()

	for _, e := range edicts {
		if e.ID.IsInvalid() {
			return &InvalidEdictError{ID: e.ID}
		}

		if e.Output == outputs.NumOutputs {
			if err := spreadEdict(e, balanceSheet, balancesByOutput, nonOP); err != nil {
				return err
			}
			continue
		}

		transferTargeted(e, balanceSheet, balancesByOutput)
	}

	target := outputs.DefaultOutput()
	if pointer != nil {
		target = *pointer
	}
	sheet := outputFor(balancesByOutput, target)
	balanceSheet.Pipe(sheet)

	return nil
}

func outputFor(m map[uint32]*BalanceSheet, out uint32) *BalanceSheet {
	sheet, ok := m[out]
	if !ok {
		sheet = NewBalanceSheet()
		m[out] = sheet
	}
	return sheet
}

// spreadEdict implements spec.md §4.4 step 2.
func spreadEdict(e Edict, balanceSheet *BalanceSheet, balancesByOutput map[uint32]*BalanceSheet, nonOP []uint32) error {
	n := len(nonOP)
	if n == 0 {
		return nil
	}

	if e.Amount.IsZero() {
		rem := balanceSheet.Get(e.ID)
		q, r := rem.DivModUint64(uint64(n))
		for i, out := range nonOP {
			share := q
			if uint64(i) < r {
				share = share.MustAdd(U128FromUint64(1))
			}
			if share.IsZero() {
				continue
			}
			if !balanceSheet.Decrease(e.ID, share) {
				continue
			}
			outputFor(balancesByOutput, out).Increase(e.ID, share)
		}
		return nil
	}

	for _, out := range nonOP {
		rem := balanceSheet.Get(e.ID)
		share := e.Amount.Min(rem)
		if share.IsZero() {
			continue
		}
		if !balanceSheet.Decrease(e.ID, share) {
			continue
		}
		outputFor(balancesByOutput, out).Increase(e.ID, share)
	}
	return nil
}

// transferTargeted implements spec.md §4.4 step 3.
func transferTargeted(e Edict, balanceSheet *BalanceSheet, balancesByOutput map[uint32]*BalanceSheet) {
	rem := balanceSheet.Get(e.ID)
	want := rem
	if !e.Amount.IsZero() {
		want = e.Amount
	}
	share := want.Min(rem)
	if share.IsZero() {
		return
	}
	if !balanceSheet.Decrease(e.ID, share) {
		return
	}
	outputFor(balancesByOutput, e.Output).Increase(e.ID, share)
}

// sortedOutputKeys returns m's keys in ascending order, used wherever
// balancesByOutput must be walked deterministically for persistence
// (spec.md §5: "all maps iterated for persistence are iterated in
// ascending vout order").
func sortedOutputKeys(m map[uint32]*BalanceSheet) []uint32 {
	out := make([]uint32, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
