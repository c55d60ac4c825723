package pvm

import "github.com/wippyai/wasm2pvm/ssa"

// FrameHeaderWords is the fixed portion of every frame: the return
// address plus the four callee-saved parameter registers (r9-r12).
const FrameHeaderWords = 5

// FrameHeaderBytes is FrameHeaderWords in bytes.
const FrameHeaderBytes = FrameHeaderWords * 8

const slotBytes = 8

// frame is the bump slot allocator described in §3.3/§4.3: every SSA
// value that needs a stack home gets its own 8-byte slot, at a positive
// offset from sp, never reused.
type frame struct {
	slots map[ssa.Value]uint32
	next  uint32
}

func newFrame() *frame {
	return &frame{slots: make(map[ssa.Value]uint32)}
}

// slot returns v's byte offset from sp, allocating one on first use.
func (fr *frame) slot(v ssa.Value) uint32 {
	if off, ok := fr.slots[v]; ok {
		return off
	}
	off := FrameHeaderBytes + fr.next
	fr.slots[v] = off
	fr.next += slotBytes
	return off
}

// size is the total frame size: header plus every slot allocated so far.
func (fr *frame) size() uint32 {
	return FrameHeaderBytes + fr.next
}
