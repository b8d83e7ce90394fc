package core

import (
	"bytes"

	"github.com/aviate-labs/leb128"
)

// Protostone is a single decoded frame from the tag-127 payload (spec.md
// §4.6, §3). ProtocolTag selects the handler that will process it; Burn
// being non-nil marks it a protoburn (spec.md §4.7).
type Protostone struct {
	ProtocolTag  Uint128
	Burn         *uint32
	Pointer      *uint32
	Refund       *uint32
	ProtoPointer *uint32
	From         []uint32
	Message      []Uint128
	Edicts       []ProtostoneEdict
	Flaw         Flaw
}

// PackU128Payload implements spec.md §4.6's outer "packing" encoding: group
// payload into 15-byte chunks, little-endian-pack each chunk into the low
// 15 bytes of a u128 with the 16th (high) byte always zero. The last chunk
// may be shorter than 15 bytes, zero-padded on the high side within its
// slot.
func PackU128Payload(payload []byte) []Uint128 {
	out := make([]Uint128, 0, (len(payload)+14)/15)
	for i := 0; i < len(payload); i += 15 {
		end := i + 15
		if end > len(payload) {
			end = len(payload)
		}
		var chunk [16]byte
		copy(chunk[:], payload[i:end])
		out = append(out, U128FromBytes(chunk[:]))
	}
	return out
}

// UnpackU128Payload inverts PackU128Payload: emits each u128's low 15 bytes
// and concatenates. The high (16th) byte of each value is ignored per
// spec.md §4.6 ("decoders MUST ignore it").
func UnpackU128Payload(values []Uint128) []byte {
	out := make([]byte, 0, len(values)*15)
	for _, v := range values {
		b := v.Bytes()
		out = append(out, b[:15]...)
	}
	return out
}

// DecodeProtostones implements spec.md §4.6's inner "framing" decode over
// the byte stream produced by UnpackU128Payload: a sequence of
// [protocol_tag, length, value...] frames, terminated by a tag of 0 or EOF.
// Each frame's length values are run through decodeValueStream, which never
// checks edict outputs (protostone edicts may target virtual outputs).
func DecodeProtostones(payload []byte) ([]Protostone, error) {
	r := bytes.NewReader(payload)
	var out []Protostone

	for r.Len() > 0 {
		tagBig, err := leb128.DecodeUnsigned(r)
		if err != nil {
			return nil, &DecodeError{Reason: "truncated protostone tag: " + err.Error()}
		}
		tag, ok := U128FromBigChecked(tagBig)
		if !ok {
			return nil, &DecodeError{Reason: "protostone tag exceeds 128 bits"}
		}
		if tag.IsZero() {
			break
		}

		if r.Len() == 0 {
			return nil, &DecodeError{Reason: "truncated protostone frame: missing length"}
		}
		lengthBig, err := leb128.DecodeUnsigned(r)
		if err != nil {
			return nil, &DecodeError{Reason: "truncated protostone length: " + err.Error()}
		}
		length := lengthBig.Uint64()

		values := make([]Uint128, 0, length)
		for i := uint64(0); i < length; i++ {
			if r.Len() == 0 {
				return nil, &DecodeError{Reason: "truncated protostone body"}
			}
			vBig, err := leb128.DecodeUnsigned(r)
			if err != nil {
				return nil, &DecodeError{Reason: "truncated protostone value: " + err.Error()}
			}
			v, ok := U128FromBigChecked(vBig)
			if !ok {
				return nil, &DecodeError{Reason: "protostone value exceeds 128 bits"}
			}
			values = append(values, v)
		}

		ps, err := decodeProtostoneFields(tag, values)
		if err != nil {
			return nil, err
		}
		out = append(out, ps)
	}

	return out, nil
}

func decodeProtostoneFields(tag Uint128, values []Uint128) (Protostone, error) {
	msg, err := decodeValueStream(values)
	if err != nil {
		return Protostone{}, err
	}

	ps := Protostone{ProtocolTag: tag, Flaw: msg.Flaw, Edicts: msg.Edicts}
	if ps.Flaw != FlawNone {
		return ps, nil
	}

	if v, ok := firstOk(msg.Fields[TagBurn]); ok {
		ps.Burn = u32Ptr(uint32(v.Lo))
	}
	if v, ok := firstOk(msg.Fields[TagPointer]); ok {
		ps.Pointer = u32Ptr(uint32(v.Lo))
	}
	if v, ok := firstOk(msg.Fields[TagRefund]); ok {
		ps.Refund = u32Ptr(uint32(v.Lo))
	}
	if v, ok := firstOk(msg.Fields[TagProtoPointer]); ok {
		ps.ProtoPointer = u32Ptr(uint32(v.Lo))
	}
	for _, v := range msg.Fields[TagFrom] {
		ps.From = append(ps.From, uint32(v.Lo))
	}
	ps.Message = msg.Fields[TagMessage]

	return ps, nil
}

// protostoneMessage is decodeValueStream's result: the same tag/value
// shape as Message (C1), but with full-precision ProtostoneEdicts since a
// protostone's edict output may address a virtual output beyond uint32
// range of real vouts (spec.md §3, §4.7).
type protostoneMessage struct {
	Fields map[uint64][]Uint128
	Edicts []ProtostoneEdict
	Flaw   Flaw
}

// decodeValueStream runs the C1 tag/value and edict-tuple algorithm
// (spec.md §4.1) over an already-decoded []Uint128 sequence rather than a
// raw byte stream, since a protostone frame's `length` values are handed
// to the field-stream decoder pre-parsed (spec.md §4.6). Output checking
// is never performed here: protostone edicts may target virtual outputs.
func decodeValueStream(seq []Uint128) (*protostoneMessage, error) {
	msg := &protostoneMessage{Fields: make(map[uint64][]Uint128)}

	i := 0
	for i < len(seq) {
		tagV := seq[i]
		i++
		if tagV.Hi == 0 && tagV.Lo == tagBody {
			break
		}
		if i >= len(seq) {
			msg.Flaw = FlawTruncatedField
			return msg, nil
		}
		value := seq[i]
		i++
		tag := tagV.Lo
		if tagV.Hi != 0 {
			tag = ^uint64(0)
		}
		msg.Fields[tag] = append(msg.Fields[tag], value)
	}

	remaining := seq[i:]
	prev := RuneId{}
	n := len(remaining) - (len(remaining) % 4)
	for j := 0; j < n; j += 4 {
		deltaBlock := remaining[j]
		second := remaining[j+1]
		amount := remaining[j+2]
		output := remaining[j+3]

		id, ok := NextRuneID(prev, deltaBlock, second)
		if !ok {
			msg.Flaw = FlawEdictRuneID
			return msg, nil
		}
		prev = id

		msg.Edicts = append(msg.Edicts, ProtostoneEdict{ID: id, Amount: amount, Output: output})
	}

	if len(remaining)%4 != 0 {
		msg.Flaw = FlawTrailingIntegers
	}

	return msg, nil
}
