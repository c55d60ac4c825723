package pvm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm2pvm/ssa"
)

// newMemopsLowerer builds the minimal funcLowerer lowerMemCopy/lowerMemFill
// need: a frame to hand out slots to the instruction's SSA args. wasmBase
// is irrelevant to the opcode shape under test, so it's left zero.
func newMemopsLowerer() *funcLowerer {
	return &funcLowerer{fr: newFrame(), labelPos: map[int]int{}}
}

func countOp(instrs []Instruction, op Op) int {
	n := 0
	for _, in := range instrs {
		if in.Op == op {
			n++
		}
	}
	return n
}

// TestLowerMemCopyEmitsBulkAndTailPaths covers spec.md §4.3: memory.copy
// must move the aligned bulk of the region with 8-byte loads/stores and
// fall back to byte loads/stores only for what's left under 8 bytes. Both
// the forward and backward direction need their own bulk loop.
func TestLowerMemCopyEmitsBulkAndTailPaths(t *testing.T) {
	lw := newMemopsLowerer()
	dst := ssa.Value(0)
	src := ssa.Value(1)
	n := ssa.Value(2)
	err := lw.lowerMemCopy(ssa.Instr{Args: []ssa.Value{dst, src, n}})
	require.NoError(t, err)

	require.Equal(t, 5, countOp(lw.instrs, OpLoad64), "three operand loads from frame slots plus one 8-byte bulk load per direction")
	require.Equal(t, 2, countOp(lw.instrs, OpStore64), "one 8-byte bulk store per direction")
	require.Equal(t, 2, countOp(lw.instrs, OpLoad8U), "one byte-tail load per direction")
	require.Equal(t, 2, countOp(lw.instrs, OpStore8), "one byte-tail store per direction")
}

// TestLowerMemFillBroadcastsBeforeBulkStore covers spec.md §4.3: the fill
// byte must be broadcast into a 64-bit word once, up front, before the
// bulk loop stores it 8 bytes at a time; the tail still stores the raw
// byte value directly.
func TestLowerMemFillBroadcastsBeforeBulkStore(t *testing.T) {
	lw := newMemopsLowerer()
	dst := ssa.Value(0)
	val := ssa.Value(1)
	n := ssa.Value(2)
	err := lw.lowerMemFill(ssa.Instr{Args: []ssa.Value{dst, val, n}})
	require.NoError(t, err)

	require.Equal(t, 1, countOp(lw.instrs, OpMul), "single broadcast multiply")
	require.Equal(t, 1, countOp(lw.instrs, OpStore64), "single bulk store site")
	require.Equal(t, 1, countOp(lw.instrs, OpStore8), "single tail store site")

	mulIdx, store64Idx := -1, -1
	for i, in := range lw.instrs {
		switch in.Op {
		case OpMul:
			mulIdx = i
		case OpStore64:
			store64Idx = i
		}
	}
	require.Less(t, mulIdx, store64Idx, "broadcast must happen before the bulk store it feeds")
}
