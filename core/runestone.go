package core

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// Tag identifies a field in the Runestone/Protostone varint stream
// (spec.md §4.2).
type Tag = uint64

const (
	TagBody         Tag = 0
	TagDivisibility Tag = 1
	TagAmount       Tag = 2
	TagSpacers      Tag = 3
	TagRune         Tag = 4
	TagCap          Tag = 5
	TagPremine      Tag = 6
	TagOffsetStart  Tag = 7
	TagOffsetEnd    Tag = 8
	TagHeightStart  Tag = 9
	TagHeightEnd    Tag = 10
	TagSymbol       Tag = 11
	TagMint         Tag = 12
	TagPointer      Tag = 13
	TagBurn         Tag = 14
	TagMessage      Tag = 15
	TagRefund       Tag = 16
	TagProtoPointer Tag = 17
	TagFrom         Tag = 18
	TagProtocol     Tag = 127
)

// knownTags lists every tag this spec assigns meaning to; an odd tag
// outside this set carrying a value makes the Runestone a cenotaph
// (spec.md §4.2).
var knownTags = map[Tag]bool{
	TagBody: true, TagDivisibility: true, TagAmount: true, TagSpacers: true,
	TagRune: true, TagCap: true, TagPremine: true, TagOffsetStart: true,
	TagOffsetEnd: true, TagHeightStart: true, TagHeightEnd: true, TagSymbol: true,
	TagMint: true, TagPointer: true, TagBurn: true, TagMessage: true,
	TagRefund: true, TagProtoPointer: true, TagFrom: true, TagProtocol: true,
}

// Terms are an etching's minting window (spec.md §3).
type Terms struct {
	Amount      *Uint128
	Cap         *Uint128
	HeightStart *uint64
	HeightEnd   *uint64
	OffsetStart *uint64
	OffsetEnd   *uint64
}

// Etching describes a rune creation (spec.md §3). The rune name itself
// stays a raw Uint128 — its base-26 text encoding is an external,
// black-box codec per spec.md §1.
type Etching struct {
	Divisibility *uint8
	Premine      *Uint128
	Rune         *Uint128
	Spacers      *uint32
	Symbol       *rune
	// Turbo is carried for forward compatibility with the Runes standard
	// but this spec's tag table (spec.md §4.2) allocates no tag to set
	// it, so it is always false here.
	Turbo bool
	Terms *Terms
}

// Runestone is the decoded view of an OP_RETURN payload (spec.md §3, C2).
type Runestone struct {
	Etching  *Etching
	Mint     *RuneId
	Pointer  *uint32
	Edicts   []Edict
	Protocol []Uint128
	Flaw     Flaw
}

// IsCenotaph reports whether any flaw was recorded, meaning all input runes
// to the transaction are burned (spec.md §3).
func (r *Runestone) IsCenotaph() bool { return r.Flaw != FlawNone }

// runeMagicScript reports whether script begins with the Runes magic push
// (OP_RETURN OP_13, spec.md §4.2's "0x5d6a"), grounded on PreparePayload in
// the BoostyLabs runes package found in the retrieval pack.
func runeMagicScript(script []byte) bool {
	return len(script) >= 2 && script[0] == txscript.OP_RETURN && script[1] == txscript.OP_13
}

// extractPushedPayload concatenates every data push following the magic
// bytes, mirroring PreparePayload's OP_DATA_<n> walk.
func extractPushedPayload(script []byte) ([]byte, bool) {
	if !runeMagicScript(script) {
		return nil, false
	}
	tok := txscript.MakeScriptTokenizer(0, script[2:])
	payload := make([]byte, 0, len(script))
	for tok.Next() {
		payload = append(payload, tok.Data()...)
	}
	if tok.Err() != nil {
		return nil, false
	}
	return payload, true
}

// FindRunestoneOutput locates the first transaction output whose script
// carries the Runes magic, per spec.md §4.2. ok is false if no output
// qualifies (the transaction carries no Runestone).
func FindRunestoneOutput(tx *wire.MsgTx) (payload []byte, ok bool) {
	for _, out := range tx.TxOut {
		if p, matched := extractPushedPayload(out.PkScript); matched {
			return p, true
		}
	}
	return nil, false
}

// ParseRunestone decodes the Runestone carried by tx, if any (spec.md
// §4.2). Edict outputs are range-checked against the transaction's total
// output count. A nil, false result means the transaction carries no
// runestone at all (not a cenotaph — simply absent).
func ParseRunestone(tx *wire.MsgTx) (*Runestone, bool, error) {
	payload, found := FindRunestoneOutput(tx)
	if !found {
		return nil, false, nil
	}

	msg, err := DecodeFieldStream(payload, true, uint32(len(tx.TxOut)))
	if err != nil {
		return nil, true, err
	}

	rs := &Runestone{Flaw: msg.Flaw, Edicts: msg.Edicts}
	if rs.Flaw != FlawNone {
		return rs, true, nil
	}

	for tag := range msg.Fields {
		if !knownTags[tag] && tag%2 == 1 {
			rs.Flaw = FlawCenotaph
			break
		}
	}

	rsHasRune := len(msg.Fields[TagRune]) > 0
	if rsHasRune {
		rs.Etching = &Etching{}
		rs.Etching.Rune = u128Ptr(first(msg.Fields[TagRune]))
	}
	if v, ok := firstOk(msg.Fields[TagDivisibility]); ok {
		rs.etching().Divisibility = u8Ptr(uint8(v.Lo))
	}
	if v, ok := firstOk(msg.Fields[TagPremine]); ok {
		rs.etching().Premine = u128Ptr(v)
	}
	if v, ok := firstOk(msg.Fields[TagSpacers]); ok {
		rs.etching().Spacers = u32Ptr(uint32(v.Lo))
	}
	if v, ok := firstOk(msg.Fields[TagSymbol]); ok {
		rs.etching().Symbol = runePtr(rune(v.Lo))
	}
	if v, ok := firstOk(msg.Fields[TagAmount]); ok {
		rs.terms().Amount = u128Ptr(v)
	}
	if v, ok := firstOk(msg.Fields[TagCap]); ok {
		rs.terms().Cap = u128Ptr(v)
	}
	if v, ok := firstOk(msg.Fields[TagHeightStart]); ok {
		rs.terms().HeightStart = u64Ptr(v.Lo)
	}
	if v, ok := firstOk(msg.Fields[TagHeightEnd]); ok {
		rs.terms().HeightEnd = u64Ptr(v.Lo)
	}
	if v, ok := firstOk(msg.Fields[TagOffsetStart]); ok {
		rs.terms().OffsetStart = u64Ptr(v.Lo)
	}
	if v, ok := firstOk(msg.Fields[TagOffsetEnd]); ok {
		rs.terms().OffsetEnd = u64Ptr(v.Lo)
	}
	if vs, ok := msg.Fields[TagMint]; ok && len(vs) >= 2 {
		id := RuneId{Block: vs[0], Tx: vs[1]}
		rs.Mint = &id
	}
	if v, ok := firstOk(msg.Fields[TagPointer]); ok {
		rs.Pointer = u32Ptr(uint32(v.Lo))
	}
	if vs, ok := msg.Fields[TagProtocol]; ok {
		rs.Protocol = vs
	}

	return rs, true, nil
}

func (r *Runestone) etching() *Etching {
	if r.Etching == nil {
		r.Etching = &Etching{}
	}
	return r.Etching
}

func (r *Runestone) terms() *Terms {
	e := r.etching()
	if e.Terms == nil {
		e.Terms = &Terms{}
	}
	return e.Terms
}

func first(vs []Uint128) Uint128 {
	if len(vs) == 0 {
		return Uint128{}
	}
	return vs[0]
}

func firstOk(vs []Uint128) (Uint128, bool) {
	if len(vs) == 0 {
		return Uint128{}, false
	}
	return vs[0], true
}

func u128Ptr(v Uint128) *Uint128 { return &v }
func u8Ptr(v uint8) *uint8       { return &v }
func u32Ptr(v uint32) *uint32    { return &v }
func u64Ptr(v uint64) *uint64    { return &v }
func runePtr(v rune) *rune       { return &v }
