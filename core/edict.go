package core

// Edict prescribes moving amount units of a rune into output (spec.md §3).
// Grounded on the teacher's compact value-struct style (core/common_structs.go)
// and on crates/ordinals/src/edict.rs in the retained Rust original.
type Edict struct {
	ID     RuneId
	Amount Uint128
	Output uint32
}

// ProtostoneEdict is the Protostone-layer analogue of Edict. Its Output is
// unbounded at decode time because it may address a virtual output that
// denotes a later protostone (spec.md §3, §4.7).
type ProtostoneEdict struct {
	ID     RuneId
	Amount Uint128
	Output Uint128
}
