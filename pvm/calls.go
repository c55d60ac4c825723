package pvm

import (
	"fmt"

	"github.com/wippyai/wasm2pvm/errors"
	"github.com/wippyai/wasm2pvm/layout"
	"github.com/wippyai/wasm2pvm/ssa"
)

// ecall host-import identifiers. memory.size/memory.grow have no real
// backing store in a static recompiler; they are forwarded to the PVM host
// via the reserved low ecall range, following the convention that a single
// result comes back in RESULT and up to one argument goes in TEMP1.
const (
	EcallMemorySize int32 = 1
	EcallMemoryGrow int32 = 2
)

func (lw *funcLowerer) lowerIntrinsic(in ssa.Instr) error {
	switch in.Intrinsic {
	case ssa.IntrinsicLoad:
		return lw.lowerLoad(in)
	case ssa.IntrinsicStore:
		return lw.lowerStore(in)
	case ssa.IntrinsicMemorySize:
		lw.emit(Instruction{Op: OpEcall, Imm32: EcallMemorySize})
		lw.storeVal(RESULT, in.Result)
		return nil
	case ssa.IntrinsicMemoryGrow:
		lw.loadVal(TEMP1, in.Args[0])
		lw.emit(Instruction{Op: OpEcall, Imm32: EcallMemoryGrow})
		lw.storeVal(RESULT, in.Result)
		return nil
	case ssa.IntrinsicMemoryCopy:
		return lw.lowerMemCopy(in)
	case ssa.IntrinsicMemoryFill:
		return lw.lowerMemFill(in)
	case ssa.IntrinsicCallIndirect:
		return lw.lowerCallIndirect(in)
	}
	return errors.Unsupported(errors.PhaseTranslate, fmt.Sprintf("intrinsic %q", in.Intrinsic), "no PVM lowering")
}

var loadOps = map[byte]map[bool]Op{
	8:  {true: OpLoad8S, false: OpLoad8U},
	16: {true: OpLoad16S, false: OpLoad16U},
	32: {true: OpLoad32S, false: OpLoad32U},
	64: {false: OpLoad64},
}

var storeOps = map[byte]Op{8: OpStore8, 16: OpStore16, 32: OpStore32, 64: OpStore64}

func (lw *funcLowerer) lowerLoad(in ssa.Instr) error {
	lw.loadVal(TEMP1, in.Args[0])
	op, ok := loadOps[in.Width][in.Signed]
	if !ok {
		return errors.Internal(errors.PhaseTranslate, nil, "unrecognized load width/sign")
	}
	lw.emit(Instruction{Op: op, Dst: RESULT, A: TEMP1, Imm32: int32(lw.wasmBase + in.MemOffset)})
	lw.storeVal(RESULT, in.Result)
	return nil
}

func (lw *funcLowerer) lowerStore(in ssa.Instr) error {
	lw.loadVal(TEMP1, in.Args[0])
	lw.loadVal(TEMP2, in.Args[1])
	op, ok := storeOps[in.Width]
	if !ok {
		return errors.Internal(errors.PhaseTranslate, nil, "unrecognized store width")
	}
	lw.emit(Instruction{Op: op, A: TEMP1, B: TEMP2, Imm32: int32(lw.wasmBase + in.MemOffset)})
	return nil
}

// lowerCall implements the static Jump-with-fixup calling convention: the
// caller writes arguments into PARAM0-3 and an overflow area below its own
// sp, loads the absolute return address (patched once this function's own
// start offset is known) into r0, then jumps to the callee (patched once
// the callee's start offset is known). A call to an imported function has
// no callee code to jump to; every such call site stubs to a trap, per
// §4.4's "Imports" rule.
func (lw *funcLowerer) lowerCall(in ssa.Instr) error {
	if in.Callee < lw.numImports {
		lw.emit(Instruction{Op: OpTrap})
		return nil
	}

	lw.emitArgs(in.Args)

	retIdx := lw.emit(Instruction{Op: OpLoadImm32, Dst: RA})
	jumpIdx := lw.emit(Instruction{Op: OpJump})
	returnIdx := len(lw.instrs)

	localCallee := in.Callee - lw.numImports
	lw.fixups = append(lw.fixups, rawFixup{kind: FixupCall, instrIdx: jumpIdx, callee: localCallee})
	lw.fixups = append(lw.fixups, rawFixup{kind: FixupReturn, instrIdx: retIdx, returnIdx: returnIdx})

	if in.Result != ssa.NoValue {
		lw.storeVal(ARGS_PTR, in.Result)
	}
	return nil
}

// emitArgs writes the first four arguments into PARAM0-3 and any remaining
// ones into the overflow area directly below this function's own sp: the
// caller never needs the callee's frame size, since the offset is relative
// to its own, already-fixed, stack pointer (see frame.go).
func (lw *funcLowerer) emitArgs(args []ssa.Value) {
	for i, a := range args {
		if i < 4 {
			lw.loadVal(paramRegs[i], a)
			continue
		}
		lw.loadVal(RESULT, a)
		lw.emit(Instruction{Op: OpStore64, A: SP, B: RESULT, Imm32: int32(i-4) * 8})
	}
}

// lowerCallIndirect implements §4.3's dynamic dispatch: the table index is
// resolved against the assembler-built dispatch table (ro_data), the type
// index is checked, and the jump-table-relative index found there drives an
// indirect jump. Unlike ordinary calls this needs no FixupCall: the target
// is only known at runtime.
func (lw *funcLowerer) lowerCallIndirect(in ssa.Instr) error {
	tableIdx := in.Args[0]
	args := in.Args[1:]

	lw.loadVal(TEMP1, tableIdx)
	lw.emit(Instruction{Op: OpLoadImm32, Dst: TEMP2, Imm32: 3})
	lw.emit(Instruction{Op: OpShl, Dst: TEMP1, A: TEMP1, B: TEMP2})
	lw.emit(Instruction{Op: OpAddImm, Dst: TEMP1, A: TEMP1, Imm32: int32(layout.ReadOnlyBase)})

	lw.emit(Instruction{Op: OpLoad32U, Dst: RESULT, A: TEMP1, Imm32: 4})
	ok := lw.newLabel()
	lw.branchEqTo(RESULT, int32(in.TypeIdx), ok)
	lw.emit(Instruction{Op: OpTrap})
	lw.placeLabel(ok)

	lw.emit(Instruction{Op: OpLoad32U, Dst: ARGS_LEN, A: TEMP1, Imm32: 0})

	lw.emitArgs(args)
	retIdx := lw.emit(Instruction{Op: OpLoadImm32, Dst: RA})
	lw.emit(Instruction{Op: OpJumpIndirect, A: ARGS_LEN})
	returnIdx := len(lw.instrs)
	lw.fixups = append(lw.fixups, rawFixup{kind: FixupReturn, instrIdx: retIdx, returnIdx: returnIdx})

	if in.Result != ssa.NoValue {
		lw.storeVal(ARGS_PTR, in.Result)
	}
	return nil
}

