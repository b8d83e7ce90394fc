package core

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

func buildRunestoneScript(t *testing.T, payload []byte) []byte {
	t.Helper()
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddOp(txscript.OP_13).
		AddData(payload).
		Script()
	if err != nil {
		t.Fatalf("build runestone script: %v", err)
	}
	return script
}

func TestIndexBlockTransfersEdictAndPipesResidue(t *testing.T) {
	store := NewMemKV()
	registry := NewProtocolRegistry()
	etchings := NewEtchingIndex()
	indexer := NewIndexer(store, registry, etchings)
	atomic := NewAtomicPointer(store)

	id := rid(1, 1)
	var prevHash chainhash.Hash
	prevHash[0] = 0xAA
	prevOutpoint := wire.OutPoint{Hash: prevHash, Index: 0}

	seed := NewBalanceSheet()
	seed.Increase(id, U128FromUint64(100))
	if err := storeBalanceSheet(atomic, keyRunesByOutpoint(prevOutpoint), seed); err != nil {
		t.Fatalf("seed input balance: %v", err)
	}

	// payload: body terminator (0) then a single edict tuple
	// (deltaBlock=1, second=1, amount=40, output=2) addressing the rune
	// (block=1, tx=1) seeded above.
	payload := []byte{0, 1, 1, 40, 2}
	runestoneScript := buildRunestoneScript(t, payload)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: prevOutpoint})
	tx.AddTxOut(&wire.TxOut{Value: 1000, PkScript: []byte{txscript.OP_TRUE}})
	tx.AddTxOut(&wire.TxOut{Value: 0, PkScript: runestoneScript})
	tx.AddTxOut(&wire.TxOut{Value: 1000, PkScript: []byte{txscript.OP_TRUE}})

	block := &wire.MsgBlock{
		Header:       wire.BlockHeader{},
		Transactions: []*wire.MsgTx{tx},
	}

	if err := indexer.IndexBlock(840001, block, atomic); err != nil {
		t.Fatalf("IndexBlock: %v", err)
	}

	txHash := tx.TxHash()
	out0, err := loadBalanceSheet(atomic, keyRunesByOutpoint(wire.OutPoint{Hash: txHash, Index: 0}))
	if err != nil {
		t.Fatalf("load output 0: %v", err)
	}
	if got := out0.Get(id); got.Cmp(U128FromUint64(60)) != 0 {
		t.Fatalf("output 0 (residue/default) = %s, want 60", got)
	}

	out2, err := loadBalanceSheet(atomic, keyRunesByOutpoint(wire.OutPoint{Hash: txHash, Index: 2}))
	if err != nil {
		t.Fatalf("load output 2: %v", err)
	}
	if got := out2.Get(id); got.Cmp(U128FromUint64(40)) != 0 {
		t.Fatalf("output 2 (explicit edict target) = %s, want 40", got)
	}
}

func TestIndexBlockWithNoRunestoneIsNoop(t *testing.T) {
	store := NewMemKV()
	indexer := NewIndexer(store, NewProtocolRegistry(), NewEtchingIndex())
	atomic := NewAtomicPointer(store)

	tx := wire.NewMsgTx(2)
	tx.AddTxOut(&wire.TxOut{Value: 1000, PkScript: []byte{txscript.OP_TRUE}})
	block := &wire.MsgBlock{Transactions: []*wire.MsgTx{tx}}

	if err := indexer.IndexBlock(1, block, atomic); err != nil {
		t.Fatalf("IndexBlock: %v", err)
	}
	// No panics and no error is the whole contract for a plain transfer tx.
}

func TestIndexBlockPersistsBlockHash(t *testing.T) {
	store := NewMemKV()
	indexer := NewIndexer(store, NewProtocolRegistry(), NewEtchingIndex())
	atomic := NewAtomicPointer(store)

	block := &wire.MsgBlock{Transactions: nil}
	if err := indexer.IndexBlock(5, block, atomic); err != nil {
		t.Fatalf("IndexBlock: %v", err)
	}
	hash := block.BlockHash()
	got, ok, err := store.Get(keyBlockhashByHeight(5))
	if err != nil || !ok {
		t.Fatalf("block hash not persisted: ok=%v err=%v", ok, err)
	}
	if string(got) != string(hash[:]) {
		t.Fatalf("persisted block hash mismatch")
	}
}
