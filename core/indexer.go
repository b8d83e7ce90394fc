package core

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/sirupsen/logrus"
)

// Indexer orchestrates the whole pipeline (spec.md §4, §5): Runestone
// decode, rune allocation, etching/mint, protostone decode, protoburn
// cycling and protomessage envelopes, writing results through an
// AtomicPointer. Grounded on the teacher's Ledger (core/ledger.go), which
// plays the same "apply one block, one tx at a time, WAL-backed" role for
// its own UTXO/account model.
type Indexer struct {
	store    KVStore
	registry *ProtocolRegistry
	etchings *EtchingIndex
}

// NewIndexer wires a KVStore and ProtocolRegistry into an Indexer. Callers
// own etchings (loaded once at process start and kept resident, mirroring
// spec.md §5's "process-wide set... initialized at process start").
func NewIndexer(store KVStore, registry *ProtocolRegistry, etchings *EtchingIndex) *Indexer {
	return &Indexer{store: store, registry: registry, etchings: etchings}
}

func keyBlockhashByHeight(h uint64) []byte {
	k := make([]byte, 0, 24)
	k = append(k, "/blockhash/byheight/"...)
	k = binary.LittleEndian.AppendUint64(k, h)
	return k
}

func keyRunesByOutpoint(op wire.OutPoint) []byte {
	k := append([]byte("/runes/byoutpoint/"), OutpointKey(op)...)
	return k
}

func keyProtoRunesByOutpoint(tag Uint128, op wire.OutPoint) []byte {
	b := tag.Bytes()
	k := append([]byte("/runes/proto/"), b[:]...)
	k = append(k, "/byoutpoint/"...)
	k = append(k, OutpointKey(op)...)
	return k
}

func keyProtoRuntimeBalance(tag Uint128) []byte {
	b := tag.Bytes()
	k := append([]byte("/runes/proto/"), b[:]...)
	k = append(k, "/runtime/balance"...)
	return k
}

// runesListKey/balancesListKey are the two parallel-list sub-keys under a
// balance-sheet key (spec.md §4.3, §6).
func runesListKey(base []byte) []byte    { return append(append([]byte{}, base...), "/runes"...) }
func balancesListKey(base []byte) []byte { return append(append([]byte{}, base...), "/balances"...) }

// loadBalanceSheet reads the parallel-list encoding at base through ptr.
func loadBalanceSheet(ptr *AtomicPointer, base []byte) (*BalanceSheet, error) {
	rk, bk := runesListKey(base), balancesListKey(base)
	n, err := ptr.Length(rk)
	if err != nil {
		return nil, err
	}
	ids := make([][32]byte, n)
	vals := make([][16]byte, n)
	for i := uint32(0); i < n; i++ {
		idb, err := ptr.SelectIndex(rk, i)
		if err != nil {
			return nil, err
		}
		vb, err := ptr.SelectIndex(bk, i)
		if err != nil {
			return nil, err
		}
		copy(ids[i][:], idb)
		copy(vals[i][:], vb)
	}
	return DecodeParallelLists(ids, vals), nil
}

// storeBalanceSheet appends bs's nonzero entries to base's parallel lists.
// Callers are expected to write each outpoint's sheet exactly once per tx
// (first write after a tx starts from an empty key), matching the
// append-only KV contract (spec.md §6).
func storeBalanceSheet(ptr *AtomicPointer, base []byte, bs *BalanceSheet) error {
	ids, vals := bs.EncodeParallelLists()
	rk, bk := runesListKey(base), balancesListKey(base)
	for i := range ids {
		if err := ptr.Append(rk, ids[i][:]); err != nil {
			return err
		}
		if err := ptr.Append(bk, vals[i][:]); err != nil {
			return err
		}
	}
	return nil
}

// IndexBlock applies every transaction in block at height, in order,
// persisting the block's hash index (spec.md §6) before processing its
// transactions. A per-tx failure rolls back that tx only and is logged;
// the block otherwise continues (spec.md §7).
func (ix *Indexer) IndexBlock(height uint64, block *wire.MsgBlock, atomic *AtomicPointer) error {
	hash := block.BlockHash()
	if err := atomic.Set(keyBlockhashByHeight(height), hash[:]); err != nil {
		return err
	}

	for txIndex, tx := range block.Transactions {
		atomic.Checkpoint()
		if err := ix.indexTransaction(height, uint64(txIndex), tx, atomic); err != nil {
			logrus.WithFields(logrus.Fields{
				"height": height, "tx_index": txIndex, "txid": tx.TxHash().String(),
			}).Warnf("protorunes: tx rolled back: %v", err)
			atomic.Rollback()
			continue
		}
		if err := atomic.Commit(); err != nil {
			return fmt.Errorf("commit tx %d at height %d: %w", txIndex, height, err)
		}
	}
	return nil
}

// indexTransaction runs C1-C9 for a single transaction, in the document
// order spec.md §5 requires: etching, then mint, then edicts, then
// protostones.
func (ix *Indexer) indexTransaction(height, txIndex uint64, tx *wire.MsgTx, atomic *AtomicPointer) error {
	rs, found, err := ParseRunestone(tx)
	if err != nil {
		return &DecodeError{Reason: err.Error()}
	}
	if !found {
		return nil
	}

	numOutputs := uint32(len(tx.TxOut))
	opReturnIdx, hasOpReturn := runestoneOutputIndex(tx)
	outputs := OutputSet{NumOutputs: numOutputs, OpReturnIndex: opReturnIdx, HasOpReturn: hasOpReturn}

	balanceSheet, err := ix.collectInputBalances(tx, atomic)
	if err != nil {
		return err
	}

	balancesByOutput := make(map[uint32]*BalanceSheet)

	if !rs.IsCenotaph() {
		if rs.Etching != nil {
			ProcessEtching(ix.etchings, rs.Etching, height, txIndex, rs.Pointer, outputs, balancesByOutput)
		}
		if rs.Mint != nil {
			mintID := *rs.Mint
			if mintID.IsReserved() {
				if e, ok := ix.etchings.LookupByID(RuneId{Block: U128FromUint64(height), Tx: U128FromUint64(txIndex)}); ok {
					mintID = e.ID
				}
			}
			ProcessMint(ix.etchings, mintID, height, balanceSheet)
		}
	}

	if err := AllocateEdicts(rs.Edicts, balancesByOutput, balanceSheet, outputs, rs.Pointer, rs.IsCenotaph()); err != nil {
		return err
	}

	if err := ix.persistRuneBalances(tx, balancesByOutput, atomic); err != nil {
		return err
	}

	if len(rs.Protocol) == 0 {
		return nil
	}
	payload := UnpackU128Payload(rs.Protocol)
	protostones, err := DecodeProtostones(payload)
	if err != nil {
		return &DecodeError{Reason: err.Error()}
	}

	return ix.processProtostones(tx, protostones, rs.Edicts, outputs, balancesByOutput, opReturnIdx, atomic)
}

// runestoneOutputIndex locates the OP_RETURN output carrying the runestone
// magic, mirroring FindRunestoneOutput but returning its index.
func runestoneOutputIndex(tx *wire.MsgTx) (uint32, bool) {
	for i, out := range tx.TxOut {
		if _, ok := extractPushedPayload(out.PkScript); ok {
			return uint32(i), true
		}
	}
	return 0, false
}

// collectInputBalances sums the rune balances held at every input outpoint
// this tx spends, forming the running residue the allocator consumes
// (spec.md §4.4's "balance_sheet").
func (ix *Indexer) collectInputBalances(tx *wire.MsgTx, atomic *AtomicPointer) (*BalanceSheet, error) {
	total := NewBalanceSheet()
	for _, in := range tx.TxIn {
		sheet, err := loadBalanceSheet(atomic, keyRunesByOutpoint(in.PreviousOutPoint))
		if err != nil {
			return nil, &IOError{Op: "load_input_balances", Err: err}
		}
		sheet.Pipe(total)
	}
	return total, nil
}

// persistRuneBalances writes the Runes-layer allocation result to each
// real output's key, in ascending vout order (spec.md §5).
func (ix *Indexer) persistRuneBalances(tx *wire.MsgTx, balancesByOutput map[uint32]*BalanceSheet, atomic *AtomicPointer) error {
	for _, out := range sortedOutputKeys(balancesByOutput) {
		if out >= uint32(len(tx.TxOut)) {
			continue
		}
		op := wire.OutPoint{Hash: tx.TxHash(), Index: out}
		if err := storeBalanceSheet(atomic, keyRunesByOutpoint(op), balancesByOutput[out]); err != nil {
			return &IOError{Op: "store_rune_balances", Err: err}
		}
	}
	return nil
}

// processProtostones runs C6-C9 over a decoded protostone list: it splits
// them into protoburns and protomessages, runs the burn cycle, dispatches
// each message to its registered handler, and persists the protocol-tagged
// balances (spec.md §4.7, §4.8).
func (ix *Indexer) processProtostones(
	tx *wire.MsgTx,
	protostones []Protostone,
	runestoneEdicts []Edict,
	outputs OutputSet,
	runeBalances map[uint32]*BalanceSheet,
	opReturnIdx uint32,
	atomic *AtomicPointer,
) error {
	var burns []Protoburn
	for _, ps := range protostones {
		if ps.Flaw != FlawNone {
			continue
		}
		if ps.Burn != nil {
			pointer := outputs.DefaultOutput()
			if ps.Pointer != nil {
				pointer = *ps.Pointer
			}
			burns = append(burns, Protoburn{ProtocolTag: ps.ProtocolTag, From: ps.From, Pointer: pointer})
		}
	}

	// The burn cycle consumes the Runes-layer edicts, not any protostone's
	// own edicts (spec.md §4.7 "the runestone's edicts").
	burnSheets, err := RunProtoburnCycle(burns, runestoneEdicts, opReturnIdx, runeBalances, outputs.DefaultOutput())
	if err != nil {
		return err
	}

	protoBalances := make(map[Uint128]map[uint32]*BalanceSheet)
	for i, pb := range burns {
		m := protoBalances[pb.ProtocolTag]
		if m == nil {
			m = make(map[uint32]*BalanceSheet)
			protoBalances[pb.ProtocolTag] = m
		}
		ix.registry.AddIndexableProtocol(pb.ProtocolTag)
		burnSheets[i].Pipe(outputFor(m, pb.Pointer))
	}

	for i, ps := range protostones {
		if ps.Flaw != FlawNone || len(ps.Message) == 0 {
			continue
		}
		handler, ok := ix.registry.Dispatch(ps.ProtocolTag)
		if !ok {
			continue
		}
		m := protoBalances[ps.ProtocolTag]
		if m == nil {
			m = make(map[uint32]*BalanceSheet)
			protoBalances[ps.ProtocolTag] = m
		}
		vout := outputs.NumOutputs + 1 + uint32(i)
		pointer := outputs.DefaultOutput()
		if ps.Pointer != nil {
			pointer = *ps.Pointer
		}
		refundPointer := outputs.DefaultOutput()
		if ps.Refund != nil {
			refundPointer = *ps.Refund
		}
		calldata := UnpackU128Payload(ps.Message)

		scoped := atomic.Derive(tagPrefix(ps.ProtocolTag))
		if err := ProcessProtomessage(scoped, handler, m, vout, pointer, refundPointer, calldata); err != nil {
			return err
		}
	}

	for tag, m := range protoBalances {
		if err := ix.persistProtoBalances(tx, tag, m, atomic); err != nil {
			return err
		}
	}
	return nil
}

func tagPrefix(tag Uint128) []byte {
	b := tag.Bytes()
	return append([]byte("/protomessage/"), b[:]...)
}

// persistProtoBalances writes a protocol's balances-by-output map to its
// tagged key family, including the runtime sentinel (spec.md §6).
func (ix *Indexer) persistProtoBalances(tx *wire.MsgTx, tag Uint128, m map[uint32]*BalanceSheet, atomic *AtomicPointer) error {
	for _, out := range sortedOutputKeys(m) {
		if out == RuntimeBalanceKey {
			continue
		}
		if out >= uint32(len(tx.TxOut)) {
			continue
		}
		op := wire.OutPoint{Hash: tx.TxHash(), Index: out}
		if err := storeBalanceSheet(atomic, keyProtoRunesByOutpoint(tag, op), m[out]); err != nil {
			return &IOError{Op: "store_proto_balances", Err: err}
		}
	}
	if runtime, ok := m[RuntimeBalanceKey]; ok {
		if err := storeBalanceSheet(atomic, keyProtoRuntimeBalance(tag), runtime); err != nil {
			return &IOError{Op: "store_proto_runtime", Err: err}
		}
	}
	return nil
}
