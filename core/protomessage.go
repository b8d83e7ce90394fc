package core

// RuntimeBalanceKey is the sentinel vout index used for a protocol's
// process-wide runtime ledger, distinct from any real or virtual output
// (spec.md §4.8 step 3, §6).
const RuntimeBalanceKey uint32 = 0xFFFFFFFF

// MessageContextParcel is the argument handed to a registered handler
// (spec.md §4.8 step 3, §6 "Handler interface").
type MessageContextParcel struct {
	Atomic          *AtomicPointer
	Runes           []RuneTransfer
	Pointer         uint32
	RefundPointer   uint32
	Calldata        []byte
	RuntimeBalances *BalanceSheet
}

// MessageHandler is the consumed handler interface (spec.md §6): given a
// parcel, it returns the transfers it wants paid out and the protocol's
// new runtime ledger, or an error to trigger a refund.
type MessageHandler interface {
	Handle(parcel *MessageContextParcel) (outgoing []RuneTransfer, newRuntime *BalanceSheet, err error)
	ProtocolTag() Uint128
}

// ProcessProtomessage runs the C8 envelope (spec.md §4.8) for a single
// protostone carrying a non-empty message. vout is its virtual output
// index (numOutputs + 1 + i); protoBalances is the protocol-tagged
// balances-by-output map, keyed by real vout, virtual vout, and
// RuntimeBalanceKey. pointer/refundPointer are the protostone's resolved
// pointer/refund_pointer (defaulted to defaultOutput by the caller).
//
// On success protoBalances[vout] is cleared, protoBalances[pointer]
// receives the reconciled residue, and protoBalances[RuntimeBalanceKey] is
// updated; on failure protoBalances[vout]'s contents move unconditionally
// into protoBalances[refundPointer] and the transaction's atomic overlay
// opened for this call is rolled back.
func ProcessProtomessage(
	atomic *AtomicPointer,
	handler MessageHandler,
	protoBalances map[uint32]*BalanceSheet,
	vout uint32,
	pointer uint32,
	refundPointer uint32,
	calldata []byte,
) error {
	initial := outputFor(protoBalances, vout)
	runtime := outputFor(protoBalances, RuntimeBalanceKey)

	atomic.Checkpoint()

	parcel := &MessageContextParcel{
		Atomic:          atomic.Derive(nil),
		Runes:           initial.Entries(),
		Pointer:         pointer,
		RefundPointer:   refundPointer,
		Calldata:        calldata,
		RuntimeBalances: runtime.Clone(),
	}

	outgoing, newRuntime, err := handler.Handle(parcel)
	if err != nil {
		refund(protoBalances, vout, refundPointer)
		atomic.Rollback()
		return nil
	}

	merged := MergeBalanceSheets(initial, runtime)
	outSheet := BalanceSheetFromTransfers(outgoing)

	if debitErr := merged.Debit(outSheet); debitErr != nil {
		refund(protoBalances, vout, refundPointer)
		atomic.Rollback()
		return nil
	}
	if newRuntime == nil {
		newRuntime = NewBalanceSheet()
	}
	if debitErr := merged.Debit(newRuntime); debitErr != nil {
		refund(protoBalances, vout, refundPointer)
		atomic.Rollback()
		return nil
	}

	protoBalances[RuntimeBalanceKey] = newRuntime
	protoBalances[pointer] = merged
	protoBalances[vout] = NewBalanceSheet()

	return atomic.Commit()
}

// refund moves protoBalances[vout]'s entire contents into
// protoBalances[refundPointer] and empties vout, per spec.md §4.8 step 6.
func refund(protoBalances map[uint32]*BalanceSheet, vout, refundPointer uint32) {
	sheet, ok := protoBalances[vout]
	if !ok || sheet.IsEmpty() {
		protoBalances[vout] = NewBalanceSheet()
		return
	}
	dest := outputFor(protoBalances, refundPointer)
	sheet.Pipe(dest)
	protoBalances[vout] = NewBalanceSheet()
}
