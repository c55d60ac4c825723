package pvm

import "encoding/binary"

// Buffer accumulates encoded PVM bytecode, following the same
// append-and-grow discipline as wat/internal/encoder.Buffer.
type Buffer struct {
	Bytes []byte
}

func (b *Buffer) writeByte(v byte) {
	b.Bytes = append(b.Bytes, v)
}

func (b *Buffer) writeReg(r Register) {
	b.writeByte(byte(r))
}

func (b *Buffer) writeI32(v int32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	b.Bytes = append(b.Bytes, tmp[:]...)
}

func (b *Buffer) writeI64(v int64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	b.Bytes = append(b.Bytes, tmp[:]...)
}

// Size returns the encoded length of in, in bytes, without encoding it.
// The label table and call-fixup list (§3.3) are built from a first pass
// over Size before any instruction is actually emitted, since a fixup's
// byte offset must be known before the bytes it refers to exist.
func (in Instruction) Size() int {
	switch in.Op {
	case OpTrap:
		return 1
	case OpLoadImm32:
		return 1 + 1 + 4
	case OpLoadImm64:
		return 1 + 1 + 8
	case OpMove:
		return 1 + 1 + 1
	case OpAdd, OpSub, OpMul, OpDivU, OpDivS, OpRemU, OpRemS,
		OpAnd, OpOr, OpXor, OpShl, OpShrU, OpShrS, OpRotl, OpRotr,
		OpSetLtU, OpSetLtS, OpSetEq:
		return 1 + 1 + 1 + 1
	case OpAddImm, OpXorImm:
		return 1 + 1 + 1 + 4
	case OpClz, OpCtz, OpPopcnt, OpSignExtend8, OpSignExtend16, OpSignExtend32,
		OpWrap64To32, OpExtend32STo64, OpExtend32UTo64:
		return 1 + 1 + 1
	case OpLoad8U, OpLoad8S, OpLoad16U, OpLoad16S, OpLoad32U, OpLoad32S, OpLoad64:
		return 1 + 1 + 1 + 4
	case OpStore8, OpStore16, OpStore32, OpStore64:
		return 1 + 1 + 1 + 4
	case OpJump:
		return 1 + 4
	case OpJumpIndirect:
		return 1 + 1
	case OpBranchEqImm, OpBranchNeImm:
		return 1 + 1 + 4 + 4
	case OpEcall:
		return 1 + 4
	default:
		return 1
	}
}

// Encode appends in's bytes to buf, in the same operand order Size
// accounted for.
func (in Instruction) Encode(buf *Buffer) {
	buf.writeByte(byte(in.Op))
	switch in.Op {
	case OpTrap:
	case OpLoadImm32:
		buf.writeReg(in.Dst)
		buf.writeI32(in.Imm32)
	case OpLoadImm64:
		buf.writeReg(in.Dst)
		buf.writeI64(in.Imm64)
	case OpMove:
		buf.writeReg(in.Dst)
		buf.writeReg(in.A)
	case OpAdd, OpSub, OpMul, OpDivU, OpDivS, OpRemU, OpRemS,
		OpAnd, OpOr, OpXor, OpShl, OpShrU, OpShrS, OpRotl, OpRotr,
		OpSetLtU, OpSetLtS, OpSetEq:
		buf.writeReg(in.Dst)
		buf.writeReg(in.A)
		buf.writeReg(in.B)
	case OpAddImm, OpXorImm:
		buf.writeReg(in.Dst)
		buf.writeReg(in.A)
		buf.writeI32(in.Imm32)
	case OpClz, OpCtz, OpPopcnt, OpSignExtend8, OpSignExtend16, OpSignExtend32,
		OpWrap64To32, OpExtend32STo64, OpExtend32UTo64:
		buf.writeReg(in.Dst)
		buf.writeReg(in.A)
	case OpLoad8U, OpLoad8S, OpLoad16U, OpLoad16S, OpLoad32U, OpLoad32S, OpLoad64:
		buf.writeReg(in.Dst)
		buf.writeReg(in.A) // base register
		buf.writeI32(in.Imm32)
	case OpStore8, OpStore16, OpStore32, OpStore64:
		buf.writeReg(in.A) // base register
		buf.writeReg(in.B) // value register
		buf.writeI32(in.Imm32)
	case OpJump:
		buf.writeI32(in.Target)
	case OpJumpIndirect:
		buf.writeReg(in.A)
	case OpBranchEqImm, OpBranchNeImm:
		buf.writeReg(in.A)
		buf.writeI32(in.Imm32)
		buf.writeI32(in.Target)
	case OpEcall:
		buf.writeI32(in.Imm32)
	}
}
