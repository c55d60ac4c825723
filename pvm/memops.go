package pvm

import "github.com/wippyai/wasm2pvm/ssa"

// PARAM0-3 are free to reuse here as loop-local scratch since, by this
// point in a function's body, every incoming parameter already has a home
// in its frame slot. TEMP1, TEMP2, SCRATCH1, SCRATCH2 and RESULT are also
// free: nothing lives in them across a memory.copy/memory.fill lowering.
const (
	memDst = PARAM0
	memSrc = PARAM1
	memLen = PARAM2
	memVal = PARAM3
)

// byteBroadcast replicates a byte into every lane of a 64-bit word when
// multiplied against it: each lane's product tops out at 0xFF, so no carry
// ever crosses a byte boundary.
const byteBroadcast int64 = 0x0101010101010101

// lowerMemCopy implements the overlap-safe memmove rule (copy forward when
// dst < src, backward otherwise), with the aligned bulk of the region moved
// 8 bytes at a time and only the remainder under 8 bytes handled byte by
// byte. Widening the stride doesn't affect overlap safety: within a chunk
// every source byte loads before any destination byte stores, and chunks
// are still visited in the same strictly increasing/decreasing address
// order the byte-at-a-time loop used.
func (lw *funcLowerer) lowerMemCopy(in ssa.Instr) error {
	dst, src, n := in.Args[0], in.Args[1], in.Args[2]

	lw.loadVal(memDst, dst)
	lw.emit(Instruction{Op: OpAddImm, Dst: memDst, A: memDst, Imm32: int32(lw.wasmBase)})
	lw.loadVal(memSrc, src)
	lw.emit(Instruction{Op: OpAddImm, Dst: memSrc, A: memSrc, Imm32: int32(lw.wasmBase)})
	lw.loadVal(memLen, n)

	lw.emit(Instruction{Op: OpSetLtU, Dst: RESULT, A: memDst, B: memSrc})
	backward := lw.newLabel()
	done := lw.newLabel()
	lw.branchEqTo(RESULT, 0, backward)

	// Forward: ascending 8-byte strides over the bulk, then the tail.
	lw.emit(Instruction{Op: OpLoadImm32, Dst: TEMP1, Imm32: 8})
	lw.emit(Instruction{Op: OpRemU, Dst: TEMP2, A: memLen, B: TEMP1}) // TEMP2: tail length
	lw.emit(Instruction{Op: OpSub, Dst: SCRATCH1, A: memLen, B: TEMP2})

	bulkFwd := lw.newLabel()
	bulkFwdDone := lw.newLabel()
	lw.placeLabel(bulkFwd)
	lw.branchEqTo(SCRATCH1, 0, bulkFwdDone)
	lw.emit(Instruction{Op: OpLoad64, Dst: RESULT, A: memSrc})
	lw.emit(Instruction{Op: OpStore64, A: memDst, B: RESULT})
	lw.emit(Instruction{Op: OpAddImm, Dst: memDst, A: memDst, Imm32: 8})
	lw.emit(Instruction{Op: OpAddImm, Dst: memSrc, A: memSrc, Imm32: 8})
	lw.emit(Instruction{Op: OpAddImm, Dst: SCRATCH1, A: SCRATCH1, Imm32: -8})
	lw.jumpTo(bulkFwd)
	lw.placeLabel(bulkFwdDone)

	tailFwd := lw.newLabel()
	lw.placeLabel(tailFwd)
	lw.branchEqTo(TEMP2, 0, done)
	lw.emit(Instruction{Op: OpLoad8U, Dst: RESULT, A: memSrc})
	lw.emit(Instruction{Op: OpStore8, A: memDst, B: RESULT})
	lw.emit(Instruction{Op: OpAddImm, Dst: memDst, A: memDst, Imm32: 1})
	lw.emit(Instruction{Op: OpAddImm, Dst: memSrc, A: memSrc, Imm32: 1})
	lw.emit(Instruction{Op: OpAddImm, Dst: TEMP2, A: TEMP2, Imm32: -1})
	lw.jumpTo(tailFwd)

	lw.placeLabel(backward)
	// Backward: land on the last byte, burn down the tail (the highest
	// addresses) one byte at a time, then the bulk in descending 8-byte
	// chunks.
	lw.emit(Instruction{Op: OpLoadImm32, Dst: TEMP1, Imm32: 8})
	lw.emit(Instruction{Op: OpRemU, Dst: TEMP2, A: memLen, B: TEMP1})
	lw.emit(Instruction{Op: OpSub, Dst: SCRATCH1, A: memLen, B: TEMP2})
	lw.emit(Instruction{Op: OpAdd, Dst: memDst, A: memDst, B: memLen})
	lw.emit(Instruction{Op: OpAdd, Dst: memSrc, A: memSrc, B: memLen})
	lw.emit(Instruction{Op: OpAddImm, Dst: memDst, A: memDst, Imm32: -1})
	lw.emit(Instruction{Op: OpAddImm, Dst: memSrc, A: memSrc, Imm32: -1})

	tailBwd := lw.newLabel()
	bulkBwd := lw.newLabel()
	lw.placeLabel(tailBwd)
	lw.branchEqTo(TEMP2, 0, bulkBwd)
	lw.emit(Instruction{Op: OpLoad8U, Dst: RESULT, A: memSrc})
	lw.emit(Instruction{Op: OpStore8, A: memDst, B: RESULT})
	lw.emit(Instruction{Op: OpAddImm, Dst: memDst, A: memDst, Imm32: -1})
	lw.emit(Instruction{Op: OpAddImm, Dst: memSrc, A: memSrc, Imm32: -1})
	lw.emit(Instruction{Op: OpAddImm, Dst: TEMP2, A: TEMP2, Imm32: -1})
	lw.jumpTo(tailBwd)

	// memDst/memSrc now sit on the bulk region's last byte; each iteration
	// steps back 7 to that chunk's base, moves 8 bytes, then steps back 1
	// more to the previous chunk's last byte.
	lw.placeLabel(bulkBwd)
	lw.branchEqTo(SCRATCH1, 0, done)
	lw.emit(Instruction{Op: OpAddImm, Dst: memDst, A: memDst, Imm32: -7})
	lw.emit(Instruction{Op: OpAddImm, Dst: memSrc, A: memSrc, Imm32: -7})
	lw.emit(Instruction{Op: OpLoad64, Dst: RESULT, A: memSrc})
	lw.emit(Instruction{Op: OpStore64, A: memDst, B: RESULT})
	lw.emit(Instruction{Op: OpAddImm, Dst: memDst, A: memDst, Imm32: -1})
	lw.emit(Instruction{Op: OpAddImm, Dst: memSrc, A: memSrc, Imm32: -1})
	lw.emit(Instruction{Op: OpAddImm, Dst: SCRATCH1, A: SCRATCH1, Imm32: -8})
	lw.jumpTo(bulkBwd)

	lw.placeLabel(done)
	return nil
}

// lowerMemFill broadcasts the fill byte into a 64-bit word once, then
// stores it across the aligned bulk of the region 8 bytes at a stride; the
// remainder under 8 bytes still goes one byte at a time. A fill has no
// overlap to worry about, so bulk and tail can run in either order.
func (lw *funcLowerer) lowerMemFill(in ssa.Instr) error {
	dst, val, n := in.Args[0], in.Args[1], in.Args[2]

	lw.loadVal(memDst, dst)
	lw.emit(Instruction{Op: OpAddImm, Dst: memDst, A: memDst, Imm32: int32(lw.wasmBase)})
	lw.loadVal(memVal, val)
	lw.loadVal(memLen, n)

	lw.emit(Instruction{Op: OpLoadImm32, Dst: TEMP1, Imm32: 8})
	lw.emit(Instruction{Op: OpRemU, Dst: TEMP2, A: memLen, B: TEMP1}) // TEMP2: tail length
	lw.emit(Instruction{Op: OpSub, Dst: SCRATCH1, A: memLen, B: TEMP2})

	lw.emit(Instruction{Op: OpLoadImm32, Dst: TEMP1, Imm32: 0xFF})
	lw.emit(Instruction{Op: OpAnd, Dst: RESULT, A: memVal, B: TEMP1})
	lw.emit(Instruction{Op: OpLoadImm64, Dst: SCRATCH2, Imm64: byteBroadcast})
	lw.emit(Instruction{Op: OpMul, Dst: SCRATCH2, A: RESULT, B: SCRATCH2})

	bulk := lw.newLabel()
	bulkDone := lw.newLabel()
	lw.placeLabel(bulk)
	lw.branchEqTo(SCRATCH1, 0, bulkDone)
	lw.emit(Instruction{Op: OpStore64, A: memDst, B: SCRATCH2})
	lw.emit(Instruction{Op: OpAddImm, Dst: memDst, A: memDst, Imm32: 8})
	lw.emit(Instruction{Op: OpAddImm, Dst: SCRATCH1, A: SCRATCH1, Imm32: -8})
	lw.jumpTo(bulk)
	lw.placeLabel(bulkDone)

	tail := lw.newLabel()
	done := lw.newLabel()
	lw.placeLabel(tail)
	lw.branchEqTo(TEMP2, 0, done)
	lw.emit(Instruction{Op: OpStore8, A: memDst, B: memVal})
	lw.emit(Instruction{Op: OpAddImm, Dst: memDst, A: memDst, Imm32: 1})
	lw.emit(Instruction{Op: OpAddImm, Dst: TEMP2, A: TEMP2, Imm32: -1})
	lw.jumpTo(tail)
	lw.placeLabel(done)
	return nil
}
