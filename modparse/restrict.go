package modparse

import (
	"fmt"

	"github.com/wippyai/wasm2pvm/errors"
	"github.com/wippyai/wasm2pvm/wasm"
)

// checkValType rejects any value type outside {i32, i64}: floats, v128, and
// reference types all require facilities (FP registers/lowering, SIMD lanes,
// a GC'd heap) this compiler's target has no room for.
func checkValType(t wasm.ValType) error {
	switch t {
	case wasm.ValI32, wasm.ValI64:
		return nil
	case wasm.ValF32:
		return errors.Unsupported(errors.PhaseParse, "f32", "floating-point types are not supported")
	case wasm.ValF64:
		return errors.Unsupported(errors.PhaseParse, "f64", "floating-point types are not supported")
	case wasm.ValV128:
		return errors.Unsupported(errors.PhaseParse, "v128", "SIMD is not supported")
	default:
		return errors.Unsupported(errors.PhaseParse, fmt.Sprintf("reftype(%#x)", byte(t)), "reference and GC types are not supported")
	}
}

// checkSignature rejects any function type mentioning a disallowed value type.
func checkSignature(params, results []wasm.ValType) error {
	for _, t := range params {
		if err := checkValType(t); err != nil {
			return err
		}
	}
	for _, t := range results {
		if err := checkValType(t); err != nil {
			return err
		}
	}
	return nil
}

// allowedMisc is the set of 0xFC sub-opcodes this compiler lowers: the eight
// non-trapping truncation variants (stubbed to constant zero, §4.3) and the
// two bulk-memory operators that touch only the module's own linear memory
// and active segments. memory.init/data.drop and every table.* sub-opcode
// require passive segments or table mutation this compiler does not model.
var allowedMisc = map[uint32]bool{
	wasm.MiscI32TruncSatF32S: true,
	wasm.MiscI32TruncSatF32U: true,
	wasm.MiscI32TruncSatF64S: true,
	wasm.MiscI32TruncSatF64U: true,
	wasm.MiscI64TruncSatF32S: true,
	wasm.MiscI64TruncSatF32U: true,
	wasm.MiscI64TruncSatF64S: true,
	wasm.MiscI64TruncSatF64U: true,
	wasm.MiscMemoryCopy:      true,
	wasm.MiscMemoryFill:      true,
}

var miscNames = map[uint32]string{
	wasm.MiscMemoryInit:    "memory.init",
	wasm.MiscDataDrop:      "data.drop",
	wasm.MiscTableInit:     "table.init",
	wasm.MiscElemDrop:      "elem.drop",
	wasm.MiscTableCopy:     "table.copy",
	wasm.MiscTableGrow:     "table.grow",
	wasm.MiscTableSize:     "table.size",
	wasm.MiscTableFill:     "table.fill",
	wasm.MiscMemoryDiscard: "memory.discard",
}

// checkInstr rejects any operator outside the supported dialect: general
// reference-type and table operators, exception handling, tail calls, typed
// function references, SIMD, and threads. Control flow, i32/i64 arithmetic
// and comparisons, local/global access, i32/i64 load/store, memory.size
// and memory.grow, call/call_indirect, drop/select, sign extension, and the
// allowed 0xFC sub-opcodes all pass.
func checkInstr(instr wasm.Instruction) error {
	op := instr.Opcode
	switch {
	case op == wasm.OpUnreachable, op == wasm.OpNop,
		op == wasm.OpBlock, op == wasm.OpLoop, op == wasm.OpIf, op == wasm.OpElse, op == wasm.OpEnd,
		op == wasm.OpBr, op == wasm.OpBrIf, op == wasm.OpBrTable, op == wasm.OpReturn,
		op == wasm.OpCall, op == wasm.OpCallIndirect,
		op == wasm.OpDrop, op == wasm.OpSelect,
		op == wasm.OpLocalGet, op == wasm.OpLocalSet, op == wasm.OpLocalTee,
		op == wasm.OpGlobalGet, op == wasm.OpGlobalSet,
		op == wasm.OpI32Load, op == wasm.OpI64Load,
		op == wasm.OpI32Load8S, op == wasm.OpI32Load8U, op == wasm.OpI32Load16S, op == wasm.OpI32Load16U,
		op == wasm.OpI64Load8S, op == wasm.OpI64Load8U, op == wasm.OpI64Load16S, op == wasm.OpI64Load16U, op == wasm.OpI64Load32S, op == wasm.OpI64Load32U,
		op == wasm.OpI32Store, op == wasm.OpI64Store,
		op == wasm.OpI32Store8, op == wasm.OpI32Store16, op == wasm.OpI64Store8, op == wasm.OpI64Store16, op == wasm.OpI64Store32,
		op == wasm.OpMemorySize, op == wasm.OpMemoryGrow,
		op == wasm.OpI32Const, op == wasm.OpI64Const,
		op == wasm.OpI32WrapI64, op == wasm.OpI64ExtendI32S, op == wasm.OpI64ExtendI32U,
		op == wasm.OpI32Extend8S, op == wasm.OpI32Extend16S,
		op == wasm.OpI64Extend8S, op == wasm.OpI64Extend16S, op == wasm.OpI64Extend32S:
		return nil
	}

	// i32/i64 comparisons (0x45-0x5A) and i32/i64 arithmetic (0x67-0x8A) are
	// contiguous ranges with no float opcodes interleaved; check them as
	// ranges rather than enumerating every mnemonic.
	if op >= wasm.OpI32Eqz && op <= wasm.OpI64Eqz+10 { // 0x45..0x5A
		return nil
	}
	if op >= wasm.OpI32Clz && op <= wasm.OpI64Rotr {
		return nil
	}

	switch op {
	case wasm.OpTableGet, wasm.OpTableSet:
		return errors.Unsupported(errors.PhaseParse, "table.get/table.set", "reference-typed table access is not supported")
	case wasm.OpRefNull, wasm.OpRefIsNull, wasm.OpRefFunc:
		return errors.Unsupported(errors.PhaseParse, opName(op), "reference types are not supported outside element segments")
	case wasm.OpTry, wasm.OpCatch, wasm.OpThrow, wasm.OpCatchAll, wasm.OpThrowRef, wasm.OpTryTable:
		return errors.Unsupported(errors.PhaseParse, opName(op), "exception handling is not supported")
	case wasm.OpReturnCall, wasm.OpReturnCallIndirect, wasm.OpCallRef, wasm.OpReturnCallRef:
		return errors.Unsupported(errors.PhaseParse, opName(op), "tail calls and typed function references are not supported")
	case wasm.OpSelectType:
		return errors.Unsupported(errors.PhaseParse, "select t*", "typed select is not supported")
	case wasm.OpPrefixMisc:
		sub, ok := instr.Imm.(wasm.MiscImm)
		if !ok {
			return errors.InvalidData(errors.PhaseParse, nil, "malformed 0xFC instruction")
		}
		if allowedMisc[sub.SubOpcode] {
			return nil
		}
		if name, known := miscNames[sub.SubOpcode]; known {
			return errors.Unsupported(errors.PhaseParse, name, "not supported")
		}
		return errors.Unsupported(errors.PhaseParse, fmt.Sprintf("0xFC:%#x", sub.SubOpcode), "not supported")
	case wasm.OpPrefixSIMD:
		return errors.Unsupported(errors.PhaseParse, "v128", "SIMD is not supported")
	case wasm.OpPrefixAtomic:
		return errors.Unsupported(errors.PhaseParse, "atomic", "threads are not supported")
	}

	if op >= wasm.OpF32Load && op <= wasm.OpF64Store {
		return errors.Unsupported(errors.PhaseParse, "f32/f64 memory access", "floating-point types are not supported")
	}
	if op >= wasm.OpF32Const && op <= wasm.OpF64Const {
		return errors.Unsupported(errors.PhaseParse, "f32.const/f64.const", "floating-point types are not supported")
	}
	if op >= wasm.OpF32Eq && op <= wasm.OpF64Ge {
		return errors.Unsupported(errors.PhaseParse, "f32/f64 comparison", "floating-point types are not supported")
	}
	if op >= wasm.OpF32Abs && op <= wasm.OpF64Copysign {
		return errors.Unsupported(errors.PhaseParse, "f32/f64 arithmetic", "floating-point types are not supported")
	}
	if op >= wasm.OpI32TruncF32S && op <= wasm.OpF64ReinterpretI64 {
		return errors.Unsupported(errors.PhaseParse, "float conversion", "floating-point types are not supported")
	}
	if op >= 0xD3 {
		return errors.Unsupported(errors.PhaseParse, fmt.Sprintf("opcode %#x", op), "not supported")
	}

	return errors.Unsupported(errors.PhaseParse, fmt.Sprintf("opcode %#x", op), "not supported")
}

func opName(op byte) string {
	switch op {
	case wasm.OpRefNull:
		return "ref.null"
	case wasm.OpRefIsNull:
		return "ref.is_null"
	case wasm.OpRefFunc:
		return "ref.func"
	case wasm.OpTry:
		return "try"
	case wasm.OpCatch:
		return "catch"
	case wasm.OpThrow:
		return "throw"
	case wasm.OpCatchAll:
		return "catch_all"
	case wasm.OpThrowRef:
		return "throw_ref"
	case wasm.OpTryTable:
		return "try_table"
	case wasm.OpReturnCall:
		return "return_call"
	case wasm.OpReturnCallIndirect:
		return "return_call_indirect"
	case wasm.OpCallRef:
		return "call_ref"
	case wasm.OpReturnCallRef:
		return "return_call_ref"
	default:
		return fmt.Sprintf("opcode %#x", op)
	}
}

// checkFunction validates a function body's locals and instruction stream.
func checkFunction(locals []wasm.ValType, instrs []wasm.Instruction) error {
	for _, t := range locals {
		if err := checkValType(t); err != nil {
			return err
		}
	}
	for _, instr := range instrs {
		if err := checkInstr(instr); err != nil {
			return err
		}
	}
	return nil
}
