package pvm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/wasm2pvm/errors"
	"github.com/wippyai/wasm2pvm/layout"
	"github.com/wippyai/wasm2pvm/ssa"
)

// Lower translates every local function in mod into PVM bytecode.
// numImports is the number of imported functions, needed to tell an
// ordinary call's combined-index-space callee apart from a call into local
// code; it does not otherwise occupy an entry in mod.Funcs or the returned
// Module.Funcs. stackSize configures the prologue's stack-overflow check
// (layout.StackLimit); pass layout.DefaultStackSize for the documented
// default.
func Lower(mod *ssa.Module, numImports, stackSize uint32) (*Module, error) {
	numFuncs := uint32(len(mod.Funcs))
	wasmBase := layout.WasmMemoryBase(numFuncs)

	Logger().Debug("lowering module to PVM bytecode",
		zap.Int("funcs", len(mod.Funcs)),
		zap.Uint32("num_imports", numImports),
		zap.Uint32("stack_size", stackSize))

	out := &Module{Funcs: make([]*Function, len(mod.Funcs))}
	for i, f := range mod.Funcs {
		lf, err := lowerFunction(f, wasmBase, numImports, stackSize)
		if err != nil {
			Logger().Error("lowering failed", zap.Int("func_index", i), zap.Error(err))
			return nil, fmt.Errorf("function %d: %w", i, err)
		}
		Logger().Debug("lowered function",
			zap.Int("func_index", i),
			zap.Int("code_bytes", len(lf.Code)),
			zap.Uint32("frame_size", lf.FrameSize))
		out.Funcs[i] = lf
	}
	return out, nil
}

// funcLowerer holds the per-function state needed while emitting one
// function's PVM instruction stream. Labels unify SSA block entries and
// backend-synthesized trampolines (br_table arms) into one resolution pass,
// since both are just "the byte offset some later instruction must branch
// to."
type funcLowerer struct {
	f          *ssa.Function
	fr         *frame
	wasmBase   uint32
	numImports uint32
	stackSize  uint32

	instrs []Instruction

	labelPos   map[int]int // label -> instruction index
	blockLabel map[ssa.BlockID]int
	nextLabel  int
	pending    []pendingBranch
	overflowRd []overflowRead
	fixups     []rawFixup

	frameAdjustIdx int   // OpAddImm SP,SP,-frameSize in the prologue
	spRestoreIdxs  []int // OpAddImm SP,SP,+frameSize, one per return path
}

// rawFixup mirrors Fixup but keeps instruction indices instead of byte
// offsets; lowerFunction converts it to a real Fixup once every
// instruction's size (and therefore byte offset) is known.
type rawFixup struct {
	kind       FixupKind
	instrIdx   int
	callee     uint32
	returnIdx  int // instruction index of the instruction right after the call
}

type pendingBranch struct {
	instrIdx int
	label    int
}

type overflowRead struct {
	instrIdx int
	paramIdx int
}

func lowerFunction(f *ssa.Function, wasmBase, numImports, stackSize uint32) (*Function, error) {
	lw := &funcLowerer{
		f:          f,
		fr:         newFrame(),
		wasmBase:   wasmBase,
		numImports: numImports,
		stackSize:  stackSize,
		labelPos:   make(map[int]int),
		blockLabel: make(map[ssa.BlockID]int),
	}

	lw.emitPrologue()

	// Blocks are walked in declaration order, which buildFunction always
	// produces as a reasonable approximation of execution order (entry
	// first); a block reached only via a forward branch still gets a
	// correct label since resolution happens after every block is laid
	// down.
	for _, b := range f.Blocks {
		lw.placeLabel(lw.labelFor(b.ID))
		if err := lw.lowerBlock(b); err != nil {
			return nil, err
		}
	}

	frameSize := lw.fr.size()
	lw.instrs[lw.frameAdjustIdx].Imm32 = -int32(frameSize)
	for _, idx := range lw.spRestoreIdxs {
		lw.instrs[idx].Imm32 = int32(frameSize)
	}
	for _, o := range lw.overflowRd {
		lw.instrs[o.instrIdx].Imm32 = int32(frameSize) + int32(o.paramIdx-4)*8
	}

	offsets, err := lw.resolveBranches()
	if err != nil {
		return nil, err
	}

	fixups := make([]Fixup, len(lw.fixups))
	for i, rf := range lw.fixups {
		fixups[i] = Fixup{
			Kind:        rf.kind,
			InstrOffset: offsets[rf.instrIdx],
			Callee:      rf.callee,
			ReturnSite:  offsets[rf.returnIdx],
		}
	}

	buf := &Buffer{}
	for _, in := range lw.instrs {
		in.Encode(buf)
	}

	return &Function{Code: buf.Bytes, Fixups: fixups, FrameSize: frameSize}, nil
}

func (lw *funcLowerer) labelFor(id ssa.BlockID) int {
	if l, ok := lw.blockLabel[id]; ok {
		return l
	}
	l := lw.newLabel()
	lw.blockLabel[id] = l
	return l
}

func (lw *funcLowerer) newLabel() int {
	l := lw.nextLabel
	lw.nextLabel++
	return l
}

func (lw *funcLowerer) placeLabel(l int) {
	lw.labelPos[l] = len(lw.instrs)
}

func (lw *funcLowerer) emit(in Instruction) int {
	lw.instrs = append(lw.instrs, in)
	return len(lw.instrs) - 1
}

// jumpTo appends an OpJump whose Target is resolved once every label's
// position is known.
func (lw *funcLowerer) jumpTo(label int) {
	idx := lw.emit(Instruction{Op: OpJump})
	lw.pending = append(lw.pending, pendingBranch{instrIdx: idx, label: label})
}

func (lw *funcLowerer) branchEqTo(a Register, imm int32, label int) {
	idx := lw.emit(Instruction{Op: OpBranchEqImm, A: a, Imm32: imm})
	lw.pending = append(lw.pending, pendingBranch{instrIdx: idx, label: label})
}

// resolveBranches patches every pending Jump/BranchEqImm/BranchNeImm Target
// field to the relative byte offset from the instruction's own start to its
// label's start, per §3.3's "byte offset relative to the jump site" rule.
func (lw *funcLowerer) resolveBranches() ([]uint32, error) {
	offsets := make([]uint32, len(lw.instrs)+1)
	for i, in := range lw.instrs {
		offsets[i+1] = offsets[i] + uint32(in.Size())
	}
	for _, p := range lw.pending {
		pos, ok := lw.labelPos[p.label]
		if !ok {
			return nil, errors.Internal(errors.PhaseTranslate, nil, "unresolved branch label")
		}
		lw.instrs[p.instrIdx].Target = int32(offsets[pos]) - int32(offsets[p.instrIdx])
	}
	return offsets, nil
}

var paramRegs = [4]Register{PARAM0, PARAM1, PARAM2, PARAM3}

// emitPrologue implements §4.3 step 1-4: sp is moved down by this
// function's own frame size (backpatched once the frame is fully
// allocated), a trap fires if that crosses the stack limit, then RA and the
// callee-saved parameter registers are saved into the frame header and the
// first four parameters copied into their assigned slots. Parameters past
// the fourth live in the overflow area the caller wrote below its own sp;
// that read's offset also waits on the final frame size.
func (lw *funcLowerer) emitPrologue() {
	lw.frameAdjustIdx = lw.emit(Instruction{Op: OpAddImm, Dst: SP, A: SP})

	lw.emit(Instruction{Op: OpLoadImm32, Dst: TEMP1, Imm32: int32(layout.StackLimit(lw.stackSize))})
	skip := lw.newLabel()
	lw.emit(Instruction{Op: OpSetLtU, Dst: TEMP2, A: TEMP1, B: SP})
	lw.branchNeTo(TEMP2, 0, skip)
	lw.emit(Instruction{Op: OpTrap})
	lw.placeLabel(skip)

	lw.emit(Instruction{Op: OpStore64, A: SP, B: RA, Imm32: 0})
	for i, r := range paramRegs {
		lw.emit(Instruction{Op: OpStore64, A: SP, B: r, Imm32: int32(8 + i*8)})
	}

	for i := range lw.f.ParamTypes {
		v := ssa.Value(i)
		dst := lw.fr.slot(v)
		if i < 4 {
			lw.storeReg(paramRegs[i], dst)
		} else {
			idx := lw.emit(Instruction{Op: OpLoad64, Dst: RESULT, A: SP})
			lw.overflowRd = append(lw.overflowRd, overflowRead{instrIdx: idx, paramIdx: i})
			lw.storeReg(RESULT, dst)
		}
	}
}

func (lw *funcLowerer) branchNeTo(a Register, imm int32, label int) {
	idx := lw.emit(Instruction{Op: OpBranchNeImm, A: a, Imm32: imm})
	lw.pending = append(lw.pending, pendingBranch{instrIdx: idx, label: label})
}

func (lw *funcLowerer) loadReg(dst Register, slotOff uint32) {
	lw.emit(Instruction{Op: OpLoad64, Dst: dst, A: SP, Imm32: int32(slotOff)})
}

func (lw *funcLowerer) storeReg(src Register, slotOff uint32) {
	lw.emit(Instruction{Op: OpStore64, A: SP, B: src, Imm32: int32(slotOff)})
}

func (lw *funcLowerer) loadVal(dst Register, v ssa.Value) {
	lw.loadReg(dst, lw.fr.slot(v))
}

func (lw *funcLowerer) storeVal(src Register, v ssa.Value) {
	lw.storeReg(src, lw.fr.slot(v))
}

func (lw *funcLowerer) lowerBlock(b *ssa.Block) error {
	for _, in := range b.Instrs {
		if err := lw.lowerInstr(in); err != nil {
			return err
		}
	}
	return lw.lowerTerm(b)
}

func (lw *funcLowerer) lowerInstr(in ssa.Instr) error {
	switch in.Op {
	case ssa.OpConst:
		return lw.lowerConst(in)
	case ssa.OpParam:
		return nil // already materialized by the prologue
	case ssa.OpLocalGet, ssa.OpLocalSet:
		return errors.Internal(errors.PhaseTranslate, nil, "local traffic survived mem2reg")
	case ssa.OpGlobalGet:
		zero := zeroReg(lw)
		addr := layout.GlobalSlot(in.Global)
		lw.emit(Instruction{Op: OpLoad64, Dst: RESULT, A: zero, Imm32: int32(addr)})
		lw.storeVal(RESULT, in.Result)
		return nil
	case ssa.OpGlobalSet:
		lw.loadVal(TEMP1, in.Args[0])
		zero := zeroReg(lw)
		addr := layout.GlobalSlot(in.Global)
		lw.emit(Instruction{Op: OpStore64, A: zero, B: TEMP1, Imm32: int32(addr)})
		return nil
	case ssa.OpCall:
		return lw.lowerCall(in)
	case ssa.OpSelect:
		return lw.lowerSelect(in)
	}

	if in.Intrinsic != "" {
		return lw.lowerIntrinsic(in)
	}
	return lw.lowerArith(in)
}

// zeroReg returns a register guaranteed to read as zero for use as an
// absolute-address load/store base: RESULT is clobbered immediately after
// by the same instruction, so TEMP2 loaded with 0 serves as a throwaway
// zero base register for global accesses, which use absolute addresses
// rather than a runtime-computed base.
func zeroReg(lw *funcLowerer) Register {
	lw.emit(Instruction{Op: OpLoadImm32, Dst: TEMP2, Imm32: 0})
	return TEMP2
}

func (lw *funcLowerer) lowerConst(in ssa.Instr) error {
	if in.Type == ssa.I64 {
		lw.emit(Instruction{Op: OpLoadImm64, Dst: RESULT, Imm64: in.Imm})
	} else {
		lw.emit(Instruction{Op: OpLoadImm32, Dst: RESULT, Imm32: int32(in.Imm)})
	}
	lw.storeVal(RESULT, in.Result)
	return nil
}

func (lw *funcLowerer) lowerSelect(in ssa.Instr) error {
	lw.loadVal(TEMP1, in.Args[0])
	lw.loadVal(TEMP2, in.Args[1])
	lw.loadVal(RESULT, in.Args[2])
	skipElse := lw.newLabel()
	done := lw.newLabel()
	lw.branchNeTo(RESULT, 0, skipElse)
	lw.storeVal(TEMP2, in.Result)
	lw.jumpTo(done)
	lw.placeLabel(skipElse)
	lw.storeVal(TEMP1, in.Result)
	lw.placeLabel(done)
	return nil
}

var binOpTable = map[ssa.Op]Op{
	ssa.OpAdd: OpAdd, ssa.OpSub: OpSub, ssa.OpMul: OpMul,
	ssa.OpDivS: OpDivS, ssa.OpDivU: OpDivU, ssa.OpRemS: OpRemS, ssa.OpRemU: OpRemU,
	ssa.OpAnd: OpAnd, ssa.OpOr: OpOr, ssa.OpXor: OpXor,
	ssa.OpShl: OpShl, ssa.OpShrS: OpShrS, ssa.OpShrU: OpShrU,
	ssa.OpRotl: OpRotl, ssa.OpRotr: OpRotr,
	ssa.OpLtS: OpSetLtS, ssa.OpLtU: OpSetLtU, ssa.OpEq: OpSetEq,
}

func (lw *funcLowerer) lowerArith(in ssa.Instr) error {
	if op, ok := binOpTable[in.Op]; ok {
		lw.loadVal(TEMP1, in.Args[0])
		lw.loadVal(TEMP2, in.Args[1])
		lw.emit(Instruction{Op: op, Dst: RESULT, A: TEMP1, B: TEMP2})
		lw.storeVal(RESULT, in.Result)
		return nil
	}

	// Comparisons not directly in the ISA reduce to SetLt*/SetEq with
	// operands swapped or the result complemented.
	switch in.Op {
	case ssa.OpNe:
		lw.loadVal(TEMP1, in.Args[0])
		lw.loadVal(TEMP2, in.Args[1])
		lw.emit(Instruction{Op: OpSetEq, Dst: RESULT, A: TEMP1, B: TEMP2})
		lw.emit(Instruction{Op: OpXorImm, Dst: RESULT, A: RESULT, Imm32: 1})
		lw.storeVal(RESULT, in.Result)
		return nil
	case ssa.OpGtS:
		return lw.lowerSwapped(in, OpSetLtS)
	case ssa.OpGtU:
		return lw.lowerSwapped(in, OpSetLtU)
	case ssa.OpLeS:
		return lw.lowerNotSwapped(in, OpSetLtS)
	case ssa.OpLeU:
		return lw.lowerNotSwapped(in, OpSetLtU)
	case ssa.OpGeS:
		return lw.lowerNot(in, OpSetLtS)
	case ssa.OpGeU:
		return lw.lowerNot(in, OpSetLtU)
	case ssa.OpEqz:
		lw.loadVal(TEMP1, in.Args[0])
		lw.emit(Instruction{Op: OpLoadImm32, Dst: TEMP2, Imm32: 0})
		lw.emit(Instruction{Op: OpSetEq, Dst: RESULT, A: TEMP1, B: TEMP2})
		lw.storeVal(RESULT, in.Result)
		return nil
	case ssa.OpClz:
		return lw.lowerUnary(in, OpClz)
	case ssa.OpCtz:
		return lw.lowerUnary(in, OpCtz)
	case ssa.OpPopcnt:
		return lw.lowerUnary(in, OpPopcnt)
	case ssa.OpWrap:
		return lw.lowerUnary(in, OpWrap64To32)
	case ssa.OpExtendS:
		return lw.lowerUnary(in, OpExtend32STo64)
	case ssa.OpExtendU:
		return lw.lowerUnary(in, OpExtend32UTo64)
	case ssa.OpExtend8S:
		return lw.lowerUnary(in, OpSignExtend8)
	case ssa.OpExtend16S:
		return lw.lowerUnary(in, OpSignExtend16)
	case ssa.OpExtend32S:
		return lw.lowerUnary(in, OpSignExtend32)
	case ssa.OpTruncSatZero:
		if in.Type == ssa.I64 {
			lw.emit(Instruction{Op: OpLoadImm64, Dst: RESULT, Imm64: 0})
		} else {
			lw.emit(Instruction{Op: OpLoadImm32, Dst: RESULT, Imm32: 0})
		}
		lw.storeVal(RESULT, in.Result)
		return nil
	}
	return errors.Unsupported(errors.PhaseTranslate, fmt.Sprintf("ssa op %d", in.Op), "no PVM lowering")
}

func (lw *funcLowerer) lowerUnary(in ssa.Instr, op Op) error {
	lw.loadVal(TEMP1, in.Args[0])
	lw.emit(Instruction{Op: op, Dst: RESULT, A: TEMP1})
	lw.storeVal(RESULT, in.Result)
	return nil
}

func (lw *funcLowerer) lowerSwapped(in ssa.Instr, op Op) error {
	lw.loadVal(TEMP1, in.Args[1])
	lw.loadVal(TEMP2, in.Args[0])
	lw.emit(Instruction{Op: op, Dst: RESULT, A: TEMP1, B: TEMP2})
	lw.storeVal(RESULT, in.Result)
	return nil
}

// lowerNotSwapped computes x <= y as NOT(y < x): SetLt with operands
// swapped, then complemented.
func (lw *funcLowerer) lowerNotSwapped(in ssa.Instr, op Op) error {
	lw.loadVal(TEMP1, in.Args[1])
	lw.loadVal(TEMP2, in.Args[0])
	lw.emit(Instruction{Op: op, Dst: RESULT, A: TEMP1, B: TEMP2})
	lw.emit(Instruction{Op: OpXorImm, Dst: RESULT, A: RESULT, Imm32: 1})
	lw.storeVal(RESULT, in.Result)
	return nil
}

func (lw *funcLowerer) lowerNot(in ssa.Instr, op Op) error {
	lw.loadVal(TEMP1, in.Args[0])
	lw.loadVal(TEMP2, in.Args[1])
	lw.emit(Instruction{Op: op, Dst: RESULT, A: TEMP1, B: TEMP2})
	lw.emit(Instruction{Op: OpXorImm, Dst: RESULT, A: RESULT, Imm32: 1})
	lw.storeVal(RESULT, in.Result)
	return nil
}
