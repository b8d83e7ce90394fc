package core

import (
	"bytes"

	"github.com/aviate-labs/leb128"
)

// Flaw is a declarative defect discovered while decoding a varint/field
// stream or a Runestone (spec.md §4.1, §4.2). A non-zero Flaw makes the
// enclosing Runestone a cenotaph (spec.md §3); it is not a Go error.
type Flaw int

const (
	FlawNone Flaw = iota
	// FlawTruncatedField: a tag was present with no following value.
	FlawTruncatedField
	// FlawTrailingIntegers: the terminal edict-tuple stream did not divide
	// evenly into 4-tuples.
	FlawTrailingIntegers
	// FlawEdictRuneID: reconstructing an edict's RuneId from its delta
	// overflowed 128 bits.
	FlawEdictRuneID
	// FlawEdictOutput: an edict's output does not fit in a uint32, or
	// exceeded num_outputs while output-checking is enabled for this stream.
	FlawEdictOutput
	// FlawCenotaph: an unrecognized odd tag carried a value (Runestone
	// layer only, set by ParseRunestone rather than DecodeFieldStream).
	FlawCenotaph
)

func (f Flaw) String() string {
	switch f {
	case FlawNone:
		return "none"
	case FlawTruncatedField:
		return "truncated_field"
	case FlawTrailingIntegers:
		return "trailing_integers"
	case FlawEdictRuneID:
		return "edict_rune_id"
	case FlawEdictOutput:
		return "edict_output"
	case FlawCenotaph:
		return "cenotaph"
	default:
		return "unknown_flaw"
	}
}

// tagBody is the terminal tag (0) after which the remainder of the
// sequence is parsed as 4-tuple edicts (spec.md §4.1).
const tagBody = 0

// Message is the output of the field-stream decoder (C1): a tag->values
// map plus the terminal body's edicts and any flaw encountered.
type Message struct {
	Fields map[uint64][]Uint128
	Edicts []Edict
	Flaw   Flaw
}

// decodeLEB128Sequence decodes an entire byte slice as a sequence of
// unsigned LEB128 varints, using aviate-labs/leb128 as the black-box codec
// spec.md §1 calls for. Returns a DecodeError if the stream is truncated
// mid-varint.
func decodeLEB128Sequence(data []byte) ([]Uint128, error) {
	r := bytes.NewReader(data)
	out := make([]Uint128, 0, len(data))
	for r.Len() > 0 {
		n, err := leb128.DecodeUnsigned(r)
		if err != nil {
			return nil, &DecodeError{Reason: "truncated leb128 varint: " + err.Error()}
		}
		v, ok := U128FromBigChecked(n)
		if !ok {
			return nil, &DecodeError{Reason: "varint exceeds 128 bits"}
		}
		out = append(out, v)
	}
	return out, nil
}

// DecodeFieldStream runs the C1 algorithm of spec.md §4.1 over a raw
// OP_RETURN payload (already stripped of the magic push). checkOutputs
// gates the output > numOutputs check (ParseRunestone passes true); an
// output that does not fit in a uint32 is flagged either way. Protostone
// frames are decoded by decodeValueStream instead.
func DecodeFieldStream(data []byte, checkOutputs bool, numOutputs uint32) (*Message, error) {
	seq, err := decodeLEB128Sequence(data)
	if err != nil {
		return nil, err
	}

	msg := &Message{Fields: make(map[uint64][]Uint128)}

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
			// No recognized tag exceeds 64 bits; fold into a tag that can
			// never collide with a real one so it round-trips as unknown.
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
		outputV := remaining[j+3]

		id, ok := NextRuneID(prev, deltaBlock, second)
		if !ok {
			msg.Flaw = FlawEdictRuneID
			return msg, nil
		}
		prev = id

		if outputV.Hi != 0 || outputV.Lo > uint64(^uint32(0)) {
			msg.Flaw = FlawEdictOutput
			return msg, nil
		}
		output := uint32(outputV.Lo)
		if checkOutputs && output > numOutputs {
			msg.Flaw = FlawEdictOutput
			return msg, nil
		}

		msg.Edicts = append(msg.Edicts, Edict{ID: id, Amount: amount, Output: output})
	}

	if len(remaining)%4 != 0 {
		msg.Flaw = FlawTrailingIntegers
	}

	return msg, nil
}
