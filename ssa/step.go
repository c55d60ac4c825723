package ssa

import (
	"fmt"

	"github.com/wippyai/wasm2pvm/errors"
	"github.com/wippyai/wasm2pvm/wasm"
)

// step lowers one WASM operator, updating the builder's stack, active
// block, and control-frame stack.
func (b *builder) step(instr wasm.Instruction) error {
	switch instr.Opcode {
	case wasm.OpUnreachable:
		b.finish(Term{Kind: TermTrap})
		return nil
	case wasm.OpNop:
		return nil
	case wasm.OpBlock:
		return b.beginBlock(instr)
	case wasm.OpLoop:
		return b.beginLoop(instr)
	case wasm.OpIf:
		return b.beginIf(instr)
	case wasm.OpElse:
		return b.doElse()
	case wasm.OpEnd:
		return b.doEnd()
	case wasm.OpBr:
		return b.doBr(instr.Imm.(wasm.BranchImm).LabelIdx)
	case wasm.OpBrIf:
		return b.doBrIf(instr.Imm.(wasm.BranchImm).LabelIdx)
	case wasm.OpBrTable:
		return b.doBrTable(instr.Imm.(wasm.BrTableImm))
	case wasm.OpReturn:
		vals := b.popN(len(b.fn.Sig.Results))
		b.finish(Term{Kind: TermReturn, Results: vals})
		return nil
	case wasm.OpCall:
		return b.doCall(instr.Imm.(wasm.CallImm).FuncIdx)
	case wasm.OpCallIndirect:
		return b.doCallIndirect(instr.Imm.(wasm.CallIndirectImm))
	case wasm.OpDrop:
		b.pop()
		return nil
	case wasm.OpSelect:
		return b.doSelect()
	case wasm.OpLocalGet:
		return b.doLocalGet(instr.Imm.(wasm.LocalImm).LocalIdx)
	case wasm.OpLocalSet:
		return b.doLocalSet(instr.Imm.(wasm.LocalImm).LocalIdx)
	case wasm.OpLocalTee:
		return b.doLocalTee(instr.Imm.(wasm.LocalImm).LocalIdx)
	case wasm.OpGlobalGet:
		return b.doGlobalGet(instr.Imm.(wasm.GlobalImm).GlobalIdx)
	case wasm.OpGlobalSet:
		return b.doGlobalSet(instr.Imm.(wasm.GlobalImm).GlobalIdx)
	case wasm.OpI32Const:
		b.push(b.constant(I32, int64(instr.Imm.(wasm.I32Imm).Value)))
		return nil
	case wasm.OpI64Const:
		b.push(b.constant(I64, instr.Imm.(wasm.I64Imm).Value))
		return nil
	case wasm.OpMemorySize:
		return b.doMemorySize()
	case wasm.OpMemoryGrow:
		return b.doMemoryGrow()
	}

	if load, ok := loadSpecs[instr.Opcode]; ok {
		return b.doLoad(load, instr.Imm.(wasm.MemoryImm))
	}
	if store, ok := storeSpecs[instr.Opcode]; ok {
		return b.doStore(store, instr.Imm.(wasm.MemoryImm))
	}
	if op, ok := unaryOps[instr.Opcode]; ok {
		return b.doUnary(op)
	}
	if op, ok := binaryOps[instr.Opcode]; ok {
		return b.doBinary(op)
	}
	if spec, ok := convOps[instr.Opcode]; ok {
		return b.doConv(spec)
	}
	if instr.Opcode == wasm.OpPrefixMisc {
		return b.doMisc(instr.Imm.(wasm.MiscImm))
	}

	return errors.Unsupported(errors.PhaseTranslate, fmt.Sprintf("opcode %#x", instr.Opcode), "not lowered")
}

func (b *builder) constant(t Type, imm int64) Value {
	v := b.newValue(t)
	b.emit(Instr{Op: OpConst, Imm: imm, Result: v, Type: t})
	return v
}

func (b *builder) doSelect() error {
	cond := b.pop()
	y := b.pop()
	x := b.pop()
	t := b.typeOf(x)
	v := b.newValue(t)
	b.emit(Instr{Op: OpSelect, Args: []Value{x, y, cond}, Result: v, Type: t})
	b.push(v)
	return nil
}

func (b *builder) doLocalGet(idx uint32) error {
	t := wasmType(b.fn.LocalType(idx))
	v := b.newValue(t)
	b.emit(Instr{Op: OpLocalGet, Local: idx, Result: v, Type: t})
	b.push(v)
	return nil
}

func (b *builder) doLocalSet(idx uint32) error {
	v := b.pop()
	b.emit(Instr{Op: OpLocalSet, Local: idx, Args: []Value{v}})
	return nil
}

func (b *builder) doLocalTee(idx uint32) error {
	v := b.peekN(1)[0]
	b.emit(Instr{Op: OpLocalSet, Local: idx, Args: []Value{v}})
	return nil
}

func (b *builder) doGlobalGet(idx uint32) error {
	if int(idx) >= len(b.prog.Globals) {
		return errors.NotFound(errors.PhaseTranslate, "global", fmt.Sprintf("%d", idx))
	}
	t := wasmType(b.prog.Globals[idx].Type)
	v := b.newValue(t)
	b.emit(Instr{Op: OpGlobalGet, Global: idx, Result: v, Type: t})
	b.push(v)
	return nil
}

func (b *builder) doGlobalSet(idx uint32) error {
	v := b.pop()
	b.emit(Instr{Op: OpGlobalSet, Global: idx, Args: []Value{v}})
	return nil
}

func (b *builder) doMemorySize() error {
	v := b.newValue(I32)
	b.emit(Instr{Op: OpMemSize, Intrinsic: IntrinsicMemorySize, Result: v, Type: I32})
	b.push(v)
	return nil
}

func (b *builder) doMemoryGrow() error {
	delta := b.pop()
	v := b.newValue(I32)
	b.emit(Instr{Op: OpMemGrow, Intrinsic: IntrinsicMemoryGrow, Args: []Value{delta}, Result: v, Type: I32})
	b.push(v)
	return nil
}

func (b *builder) doCall(funcIdx uint32) error {
	sig := b.prog.FuncSignature(funcIdx)
	if len(sig.Results) > 1 {
		return errors.Unsupported(errors.PhaseTranslate, "multi-value call", "ordinary calls return at most one value")
	}
	args := b.popN(len(sig.Params))
	var result Value = NoValue
	var t Type
	if len(sig.Results) == 1 {
		t = wasmType(sig.Results[0])
		result = b.newValue(t)
	}
	b.emit(Instr{Op: OpCall, Callee: funcIdx, Args: args, Result: result, Type: t})
	if result != NoValue {
		b.push(result)
	}
	return nil
}

func (b *builder) doCallIndirect(imm wasm.CallIndirectImm) error {
	if int(imm.TypeIdx) >= len(b.prog.Types) {
		return errors.InvalidData(errors.PhaseTranslate, nil, "call_indirect type index out of range")
	}
	sig := b.prog.Types[imm.TypeIdx]
	if len(sig.Results) > 1 {
		return errors.Unsupported(errors.PhaseTranslate, "multi-value call_indirect", "ordinary calls return at most one value")
	}
	tableIdx := b.pop()
	args := b.popN(len(sig.Params))
	allArgs := append([]Value{tableIdx}, args...)
	var result Value = NoValue
	var t Type
	if len(sig.Results) == 1 {
		t = wasmType(sig.Results[0])
		result = b.newValue(t)
	}
	b.emit(Instr{
		Op: OpCallIndirect, Intrinsic: IntrinsicCallIndirect,
		TypeIdx: imm.TypeIdx, Args: allArgs, Result: result, Type: t,
	})
	if result != NoValue {
		b.push(result)
	}
	return nil
}

type loadSpec struct {
	width  byte
	signed bool
	result Type
}

var loadSpecs = map[byte]loadSpec{
	wasm.OpI32Load:    {32, false, I32},
	wasm.OpI32Load8S:  {8, true, I32},
	wasm.OpI32Load8U:  {8, false, I32},
	wasm.OpI32Load16S: {16, true, I32},
	wasm.OpI32Load16U: {16, false, I32},
	wasm.OpI64Load:    {64, false, I64},
	wasm.OpI64Load8S:  {8, true, I64},
	wasm.OpI64Load8U:  {8, false, I64},
	wasm.OpI64Load16S: {16, true, I64},
	wasm.OpI64Load16U: {16, false, I64},
	wasm.OpI64Load32S: {32, true, I64},
	wasm.OpI64Load32U: {32, false, I64},
}

type storeSpec struct {
	width byte
}

var storeSpecs = map[byte]storeSpec{
	wasm.OpI32Store:   {32},
	wasm.OpI32Store8:  {8},
	wasm.OpI32Store16: {16},
	wasm.OpI64Store:   {64},
	wasm.OpI64Store8:  {8},
	wasm.OpI64Store16: {16},
	wasm.OpI64Store32: {32},
}

func (b *builder) doLoad(spec loadSpec, imm wasm.MemoryImm) error {
	addr := b.pop()
	v := b.newValue(spec.result)
	b.emit(Instr{
		Op: OpLoad, Intrinsic: IntrinsicLoad,
		Args: []Value{addr}, MemOffset: uint32(imm.Offset), Width: spec.width, Signed: spec.signed,
		Result: v, Type: spec.result,
	})
	b.push(v)
	return nil
}

func (b *builder) doStore(spec storeSpec, imm wasm.MemoryImm) error {
	val := b.pop()
	addr := b.pop()
	b.emit(Instr{
		Op: OpStore, Intrinsic: IntrinsicStore,
		Args: []Value{addr, val}, MemOffset: uint32(imm.Offset), Width: spec.width,
	})
	return nil
}
