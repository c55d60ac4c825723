package ssa

import "github.com/wippyai/wasm2pvm/wasm"

// unaryOps maps the i32/i64 unary numeric opcodes (clz, ctz, popcnt, eqz) to
// their width-agnostic Op; operand and result width both come from the
// popped value itself except for eqz, which always produces i32.
var unaryOps = map[byte]Op{
	wasm.OpI32Clz:    OpClz,
	wasm.OpI64Clz:    OpClz,
	wasm.OpI32Ctz:    OpCtz,
	wasm.OpI64Ctz:    OpCtz,
	wasm.OpI32Popcnt: OpPopcnt,
	wasm.OpI64Popcnt: OpPopcnt,
	wasm.OpI32Eqz:    OpEqz,
	wasm.OpI64Eqz:    OpEqz,
}

// binaryOps maps the i32/i64 binary arithmetic and comparison opcodes to
// their width-agnostic Op.
var binaryOps = map[byte]Op{
	wasm.OpI32Add:  OpAdd,
	wasm.OpI64Add:  OpAdd,
	wasm.OpI32Sub:  OpSub,
	wasm.OpI64Sub:  OpSub,
	wasm.OpI32Mul:  OpMul,
	wasm.OpI64Mul:  OpMul,
	wasm.OpI32DivS: OpDivS,
	wasm.OpI64DivS: OpDivS,
	wasm.OpI32DivU: OpDivU,
	wasm.OpI64DivU: OpDivU,
	wasm.OpI32RemS: OpRemS,
	wasm.OpI64RemS: OpRemS,
	wasm.OpI32RemU: OpRemU,
	wasm.OpI64RemU: OpRemU,
	wasm.OpI32And:  OpAnd,
	wasm.OpI64And:  OpAnd,
	wasm.OpI32Or:   OpOr,
	wasm.OpI64Or:   OpOr,
	wasm.OpI32Xor:  OpXor,
	wasm.OpI64Xor:  OpXor,
	wasm.OpI32Shl:  OpShl,
	wasm.OpI64Shl:  OpShl,
	wasm.OpI32ShrS: OpShrS,
	wasm.OpI64ShrS: OpShrS,
	wasm.OpI32ShrU: OpShrU,
	wasm.OpI64ShrU: OpShrU,
	wasm.OpI32Rotl: OpRotl,
	wasm.OpI64Rotl: OpRotl,
	wasm.OpI32Rotr: OpRotr,
	wasm.OpI64Rotr: OpRotr,

	wasm.OpI32Eq:  OpEq,
	wasm.OpI64Eq:  OpEq,
	wasm.OpI32Ne:  OpNe,
	wasm.OpI64Ne:  OpNe,
	wasm.OpI32LtS: OpLtS,
	wasm.OpI64LtS: OpLtS,
	wasm.OpI32LtU: OpLtU,
	wasm.OpI64LtU: OpLtU,
	wasm.OpI32GtS: OpGtS,
	wasm.OpI64GtS: OpGtS,
	wasm.OpI32GtU: OpGtU,
	wasm.OpI64GtU: OpGtU,
	wasm.OpI32LeS: OpLeS,
	wasm.OpI64LeS: OpLeS,
	wasm.OpI32LeU: OpLeU,
	wasm.OpI64LeU: OpLeU,
	wasm.OpI32GeS: OpGeS,
	wasm.OpI64GeS: OpGeS,
	wasm.OpI32GeU: OpGeU,
	wasm.OpI64GeU: OpGeU,
}

// comparisonOps always produce an i32 boolean result regardless of operand
// width; everything else in binaryOps preserves the operand width.
var comparisonOps = map[Op]bool{
	OpEq: true, OpNe: true,
	OpLtS: true, OpLtU: true, OpGtS: true, OpGtU: true,
	OpLeS: true, OpLeU: true, OpGeS: true, OpGeU: true,
}

func (b *builder) doUnary(op Op) error {
	x := b.pop()
	t := I32
	if op != OpEqz {
		t = b.typeOf(x)
	}
	v := b.newValue(t)
	b.emit(Instr{Op: op, Args: []Value{x}, Result: v, Type: t})
	b.push(v)
	return nil
}

func (b *builder) doBinary(op Op) error {
	y := b.pop()
	x := b.pop()
	t := b.typeOf(x)
	if comparisonOps[op] {
		t = I32
	}
	v := b.newValue(t)
	b.emit(Instr{Op: op, Args: []Value{x, y}, Result: v, Type: t})
	b.push(v)
	return nil
}

// convSpec pairs a conversion's Op with its fixed result type, since unlike
// arithmetic ops, conversions change width and the result type cannot be
// read off an operand.
type convSpec struct {
	op     Op
	result Type
}

var convOps = map[byte]convSpec{
	wasm.OpI32WrapI64:    {OpWrap, I32},
	wasm.OpI64ExtendI32S: {OpExtendS, I64},
	wasm.OpI64ExtendI32U: {OpExtendU, I64},
	wasm.OpI32Extend8S:   {OpExtend8S, I32},
	wasm.OpI32Extend16S:  {OpExtend16S, I32},
	wasm.OpI64Extend8S:   {OpExtend8S, I64},
	wasm.OpI64Extend16S:  {OpExtend16S, I64},
	wasm.OpI64Extend32S:  {OpExtend32S, I64},
}

func (b *builder) doConv(spec convSpec) error {
	x := b.pop()
	v := b.newValue(spec.result)
	b.emit(Instr{Op: spec.op, Args: []Value{x}, Result: v, Type: spec.result})
	b.push(v)
	return nil
}

// truncSatSpecs maps each of the 8 saturating-truncation sub-opcodes to its
// result type. Operands are always float and therefore never reach here in
// a real source module (restrict.go rejects float-typed locals, globals,
// and parameters), but a constant float operand folded at parse time could
// still produce one; the backend lowers OpTruncSatZero as an unconditional
// zero, matching the "never observed" contract of a value no valid caller
// can supply.
var truncSatSpecs = map[uint32]Type{
	wasm.MiscI32TruncSatF32S: I32,
	wasm.MiscI32TruncSatF32U: I32,
	wasm.MiscI32TruncSatF64S: I32,
	wasm.MiscI32TruncSatF64U: I32,
	wasm.MiscI64TruncSatF32S: I64,
	wasm.MiscI64TruncSatF32U: I64,
	wasm.MiscI64TruncSatF64S: I64,
	wasm.MiscI64TruncSatF64U: I64,
}

func (b *builder) doMisc(imm wasm.MiscImm) error {
	if t, ok := truncSatSpecs[imm.SubOpcode]; ok {
		b.pop()
		v := b.newValue(t)
		b.emit(Instr{Op: OpTruncSatZero, Result: v, Type: t})
		b.push(v)
		return nil
	}
	switch imm.SubOpcode {
	case wasm.MiscMemoryCopy:
		n := b.pop()
		src := b.pop()
		dst := b.pop()
		b.emit(Instr{Op: OpMemCopy, Intrinsic: IntrinsicMemoryCopy, Args: []Value{dst, src, n}})
		return nil
	case wasm.MiscMemoryFill:
		n := b.pop()
		val := b.pop()
		dst := b.pop()
		b.emit(Instr{Op: OpMemFill, Intrinsic: IntrinsicMemoryFill, Args: []Value{dst, val, n}})
		return nil
	}
	return nil
}
