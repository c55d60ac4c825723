package link

import (
	"encoding/binary"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/wasm2pvm/errors"
	"github.com/wippyai/wasm2pvm/layout"
	"github.com/wippyai/wasm2pvm/modparse"
	"github.com/wippyai/wasm2pvm/pvm"
)

// dispatchSentinel marks a call_indirect table slot that must trap: a hole
// left by no active element segment, or a slot whose element is an import
// (§4.4 "both set to a sentinel for u32::MAX slots and for imports").
const dispatchSentinel uint32 = 0xFFFFFFFF

// Result is the Module Assembler's output: the SPI container ready to hand
// to a PVM host, plus the per-function start offsets link.Assemble computed
// along the way (used by translate.Result.Diagnostics).
type Result struct {
	SPI         []byte
	FuncOffsets []uint32 // local function index -> byte offset into Result.SPI's code section
}

// Assemble lays out the entry header and every function's code (§4.4 step
// 1-3), patches deferred call/return fixups, builds the read-only dispatch
// table and read-write globals/data segments (§4.4 step 2), and wraps the
// result in the SPI container (§6.2). stackSize and heapPages are recorded
// in the SPI header only; stackSize must already match what pvm.Lower used
// for the stack-overflow check baked into each function's prologue.
func Assemble(prog *modparse.Program, mod *pvm.Module, stackSize, heapPages uint32) (*Result, error) {
	Logger().Debug("assembling SPI container",
		zap.Int("funcs", len(mod.Funcs)),
		zap.Uint32("stack_size", stackSize),
		zap.Uint32("heap_pages", heapPages))

	header, funcStart, err := buildHeader(prog, mod)
	if err != nil {
		return nil, err
	}

	code := make([]byte, len(header), len(header)+totalCodeLen(mod))
	copy(code, header)
	for _, f := range mod.Funcs {
		code = append(code, f.Code...)
	}

	if err := patchFixups(code, mod, funcStart); err != nil {
		Logger().Error("fixup patching failed", zap.Error(err))
		return nil, err
	}

	roData := buildDispatchTable(prog)
	rwData := buildDataSection(prog, uint32(len(mod.Funcs)))

	spi, err := encodeSPI(roData, rwData, code, stackSize, heapPages)
	if err != nil {
		return nil, err
	}

	Logger().Info("assembled SPI container",
		zap.Int("spi_bytes", len(spi)),
		zap.Int("code_bytes", len(code)),
		zap.Int("ro_data_bytes", len(roData)),
		zap.Int("rw_data_bytes", len(rwData)))

	return &Result{SPI: spi, FuncOffsets: funcStart}, nil
}

func totalCodeLen(mod *pvm.Module) int {
	n := 0
	for _, f := range mod.Funcs {
		n += len(f.Code)
	}
	return n
}

// patchFixups walks every function's fixup list in function-then-instruction
// order (link/assemble_test.go pins this down as a determinism guarantee)
// and rewrites the placeholder bytes pvm.Lower left behind.
func patchFixups(code []byte, mod *pvm.Module, funcStart []uint32) error {
	for i, f := range mod.Funcs {
		fixups := append([]pvm.Fixup(nil), f.Fixups...)
		sort.Slice(fixups, func(a, b int) bool { return fixups[a].InstrOffset < fixups[b].InstrOffset })

		for _, fx := range fixups {
			absInstr := funcStart[i] + fx.InstrOffset
			switch fx.Kind {
			case pvm.FixupCall:
				if int(fx.Callee) >= len(funcStart) {
					return errors.OutOfBounds(errors.PhaseAssemble, []string{"func", strconv.Itoa(i)}, int(fx.Callee), len(funcStart))
				}
				rel := int32(funcStart[fx.Callee]) - int32(absInstr)
				putI32(code, int(absInstr)+1, rel) // OpJump: opcode byte, 4-byte target
			case pvm.FixupReturn:
				abs := funcStart[i] + fx.ReturnSite
				putI32(code, int(absInstr)+2, int32(abs)) // OpLoadImm32: opcode, dst reg, 4-byte imm32
			default:
				return errors.Internal(errors.PhaseAssemble, nil, "unrecognized fixup kind")
			}
		}
	}
	return nil
}

func putI32(buf []byte, at int, v int32) {
	binary.LittleEndian.PutUint32(buf[at:at+4], uint32(v))
}

// buildDispatchTable builds call_indirect's read-only table: one 8-byte
// entry per table slot, (jump_table_index u32, type_index u32).
func buildDispatchTable(prog *modparse.Program) []byte {
	numImports := uint32(prog.NumImportedFuncs())
	out := make([]byte, len(prog.Table)*8)
	for slot, fnIdx := range prog.Table {
		off := slot * 8
		if fnIdx == nil || prog.IsImport(*fnIdx) {
			binary.LittleEndian.PutUint32(out[off:off+4], dispatchSentinel)
			binary.LittleEndian.PutUint32(out[off+4:off+8], dispatchSentinel)
			continue
		}
		local := *fnIdx - numImports
		binary.LittleEndian.PutUint32(out[off:off+4], jumpTableIndex(local))
		binary.LittleEndian.PutUint32(out[off+4:off+8], prog.FuncTypeIndex(*fnIdx))
	}
	return out
}

// buildDataSection builds the read-write blob: globals at offset 0
// (PVM address layout.GlobalsBase), followed by active data segments at
// their wasm_memory_base-relative offset (§4.4 step 2).
func buildDataSection(prog *modparse.Program, numFuncs uint32) []byte {
	wasmBase := layout.WasmMemoryBase(numFuncs)
	globalsLen := uint32(len(prog.Globals)) * 8

	length := wasmBase - layout.GlobalsBase
	for _, seg := range prog.Data {
		end := (wasmBase + seg.Offset + uint32(len(seg.Bytes))) - layout.GlobalsBase
		if end > length {
			length = end
		}
	}
	if length < globalsLen {
		length = globalsLen
	}

	out := make([]byte, length)
	for i, g := range prog.Globals {
		binary.LittleEndian.PutUint64(out[i*8:i*8+8], uint64(g.Init))
	}
	for _, seg := range prog.Data {
		off := (wasmBase + seg.Offset) - layout.GlobalsBase
		copy(out[off:], seg.Bytes)
	}
	return out
}
