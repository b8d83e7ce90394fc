package core

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/aviate-labs/leb128"
)

func TestPackUnpackU128PayloadRoundTrip(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog")
	packed := PackU128Payload(payload)
	for _, v := range packed {
		if v.Bytes()[15] != 0 {
			t.Fatalf("16th byte of a packed value must be zero")
		}
	}
	unpacked := UnpackU128Payload(packed)
	if !bytes.Equal(unpacked[:len(payload)], payload) {
		t.Fatalf("round trip mismatch: got %q, want %q", unpacked[:len(payload)], payload)
	}
}

func TestPackU128PayloadShortLastChunk(t *testing.T) {
	payload := []byte("abc")
	packed := PackU128Payload(payload)
	if len(packed) != 1 {
		t.Fatalf("expected a single chunk for a 3-byte payload, got %d", len(packed))
	}
	got := UnpackU128Payload(packed)
	if !bytes.Equal(got[:3], payload) {
		t.Fatalf("short chunk round trip = %q, want %q", got[:3], payload)
	}
	for _, b := range got[3:15] {
		if b != 0 {
			t.Fatalf("padding bytes of a short chunk must be zero")
		}
	}
}

func encodeLEB(t *testing.T, w *bytes.Buffer, v uint64) {
	t.Helper()
	b, err := leb128.EncodeUnsigned(new(big.Int).SetUint64(v))
	if err != nil {
		t.Fatalf("encode leb128: %v", err)
	}
	w.Write(b)
}

func TestDecodeProtostonesSimpleFrame(t *testing.T) {
	var buf bytes.Buffer
	encodeLEB(t, &buf, 1) // protocol tag
	encodeLEB(t, &buf, 2) // length = 2 values
	encodeLEB(t, &buf, TagBurn)
	encodeLEB(t, &buf, 0) // burn = output 0
	encodeLEB(t, &buf, 0) // terminator

	stones, err := DecodeProtostones(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeProtostones: %v", err)
	}
	if len(stones) != 1 {
		t.Fatalf("expected 1 protostone, got %d", len(stones))
	}
	ps := stones[0]
	if ps.ProtocolTag.Cmp(U128FromUint64(1)) != 0 {
		t.Fatalf("protocol tag = %s, want 1", ps.ProtocolTag)
	}
	if ps.Burn == nil || *ps.Burn != 0 {
		t.Fatalf("expected burn=0, got %v", ps.Burn)
	}
}

func TestDecodeProtostonesStopsAtZeroTag(t *testing.T) {
	var buf bytes.Buffer
	encodeLEB(t, &buf, 0)
	stones, err := DecodeProtostones(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeProtostones: %v", err)
	}
	if len(stones) != 0 {
		t.Fatalf("expected no protostones after an immediate zero tag, got %d", len(stones))
	}
}

func TestDecodeProtostonesTruncatedLength(t *testing.T) {
	var buf bytes.Buffer
	encodeLEB(t, &buf, 7)
	if _, err := DecodeProtostones(buf.Bytes()); err == nil {
		t.Fatalf("expected a decode error for a tag with no length")
	}
}

func TestDecodeProtostonesEdictFullPrecisionOutput(t *testing.T) {
	var buf bytes.Buffer
	encodeLEB(t, &buf, 9) // protocol tag
	encodeLEB(t, &buf, 5) // length = 5 (terminator + 4-tuple edict)
	encodeLEB(t, &buf, 0) // body terminator within the frame
	encodeLEB(t, &buf, 1) // delta block
	encodeLEB(t, &buf, 5) // second (tx)
	encodeLEB(t, &buf, 42)
	encodeLEB(t, &buf, 999999999) // virtual output, beyond any real vout count
	encodeLEB(t, &buf, 0)         // terminator

	stones, err := DecodeProtostones(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeProtostones: %v", err)
	}
	if len(stones) != 1 || len(stones[0].Edicts) != 1 {
		t.Fatalf("expected 1 protostone with 1 edict, got %+v", stones)
	}
	edict := stones[0].Edicts[0]
	if edict.Output.Cmp(U128FromUint64(999999999)) != 0 {
		t.Fatalf("edict output = %s, want 999999999", edict.Output)
	}
}
