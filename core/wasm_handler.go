package core

import (
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/wasmerio/wasmer-go/wasmer"
)

// WasmMessageHandler executes a protomessage's calldata as a WebAssembly
// module (spec.md §6's consumed "Handler interface"). Grounded on the
// teacher's HeavyVM.Execute and registerHost in core/virtual_machine.go:
// same engine/store/instance lifecycle and the same read/write-into-linear-
// memory calling convention, re-exposed as rune transfers instead of
// opcode-metered state writes.
type WasmMessageHandler struct {
	Tag    Uint128
	Engine *wasmer.Engine
	Code   []byte
}

// NewWasmMessageHandler returns a handler bound to tag, compiling code
// lazily on each Handle call (module instances are not reused across txs,
// matching the single-threaded, non-reentrant model of spec.md §5).
func NewWasmMessageHandler(tag Uint128, engine *wasmer.Engine, code []byte) *WasmMessageHandler {
	return &WasmMessageHandler{Tag: tag, Engine: engine, Code: code}
}

func (h *WasmMessageHandler) ProtocolTag() Uint128 { return h.Tag }

// wasmHostCtx carries the per-call state the host imports close over:
// the parcel's calldata and incoming runes, and the outgoing transfers /
// runtime ledger the module builds up by calling back into the host.
type wasmHostCtx struct {
	mem      *wasmer.Memory
	calldata []byte
	incoming []RuneTransfer
	outgoing []RuneTransfer
	runtime  *BalanceSheet
	failed   bool
	errMsg   string
}

// Handle compiles and runs Code's exported "_start" function against
// parcel, per spec.md §6's handler contract. A module that traps, fails to
// export "_start"/"memory", or calls host_fail returns an error, which
// ProcessProtomessage treats as a refund.
func (h *WasmMessageHandler) Handle(parcel *MessageContextParcel) ([]RuneTransfer, *BalanceSheet, error) {
	store := wasmer.NewStore(h.Engine)
	mod, err := wasmer.NewModule(store, h.Code)
	if err != nil {
		return nil, nil, err
	}

	hctx := &wasmHostCtx{
		calldata: parcel.Calldata,
		incoming: parcel.Runes,
		runtime:  NewBalanceSheet(),
	}

	imports := registerWasmHost(store, hctx)

	instance, err := wasmer.NewInstance(mod, imports)
	if err != nil {
		return nil, nil, err
	}

	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return nil, nil, errors.New("protorunes: wasm module does not export memory")
	}
	hctx.mem = mem

	start, err := instance.Exports.GetFunction("_start")
	if err != nil {
		return nil, nil, errors.New("protorunes: wasm module does not export _start")
	}
	if _, err := start(); err != nil {
		return nil, nil, err
	}
	if hctx.failed {
		return nil, nil, errors.New("protorunes: wasm handler failed: " + hctx.errMsg)
	}

	return hctx.outgoing, hctx.runtime, nil
}

func registerWasmHost(store *wasmer.Store, h *wasmHostCtx) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()

	read := func(ptr, ln int32) []byte {
		data := h.mem.Data()[ptr : ptr+ln]
		out := make([]byte, ln)
		copy(out, data)
		return out
	}
	write := func(ptr int32, data []byte) { copy(h.mem.Data()[ptr:], data) }

	i32 := wasmer.ValueKind(wasmer.I32)

	hostCalldataLen := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			return []wasmer.Value{wasmer.NewI32(int32(len(h.calldata)))}, nil
		},
	)

	hostReadCalldata := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			dst := args[0].I32()
			write(dst, h.calldata)
			return []wasmer.Value{wasmer.NewI32(int32(len(h.calldata)))}, nil
		},
	)

	hostIncomingCount := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			return []wasmer.Value{wasmer.NewI32(int32(len(h.incoming)))}, nil
		},
	)

	// host_incoming_at(index, idDstPtr, amountDstPtr) writes the index-th
	// incoming transfer's 32-byte RuneId and 16-byte amount into memory.
	hostIncomingAt := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32, i32), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			idx, idPtr, amtPtr := args[0].I32(), args[1].I32(), args[2].I32()
			if int(idx) < 0 || int(idx) >= len(h.incoming) {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			t := h.incoming[idx]
			idb := t.ID.Bytes()
			ab := t.Value.Bytes()
			write(idPtr, idb[:])
			write(amtPtr, ab[:])
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		},
	)

	// host_emit_transfer(idPtr, amountPtr) queues an outgoing RuneTransfer.
	hostEmitTransfer := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			idPtr, amtPtr := args[0].I32(), args[1].I32()
			id := RuneIdFromBytes(read(idPtr, 32))
			amt := U128FromBytes(read(amtPtr, 16))
			h.outgoing = append(h.outgoing, RuneTransfer{ID: id, Value: amt})
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		},
	)

	// host_set_runtime(idPtr, amountPtr) increases the protocol's new
	// runtime ledger by (id, amount).
	hostSetRuntime := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			idPtr, amtPtr := args[0].I32(), args[1].I32()
			id := RuneIdFromBytes(read(idPtr, 32))
			amt := U128FromBytes(read(amtPtr, 16))
			h.runtime.Increase(id, amt)
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		},
	)

	hostFail := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32), wasmer.NewValueTypes()),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			p, l := args[0].I32(), args[1].I32()
			h.failed = true
			h.errMsg = string(read(p, l))
			return []wasmer.Value{}, nil
		},
	)

	hostLog := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32), wasmer.NewValueTypes()),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			p, l := args[0].I32(), args[1].I32()
			logrus.Debugf("protomessage handler: %s", string(read(p, l)))
			return []wasmer.Value{}, nil
		},
	)

	imports.Register("env", map[string]wasmer.IntoExtern{
		"host_calldata_len":   hostCalldataLen,
		"host_read_calldata":  hostReadCalldata,
		"host_incoming_count": hostIncomingCount,
		"host_incoming_at":    hostIncomingAt,
		"host_emit_transfer":  hostEmitTransfer,
		"host_set_runtime":    hostSetRuntime,
		"host_fail":           hostFail,
		"host_log":            hostLog,
	})

	return imports
}
