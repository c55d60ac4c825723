package pvm

import (
	"github.com/wippyai/wasm2pvm/errors"
	"github.com/wippyai/wasm2pvm/ssa"
)

// lowerTerm lowers a block's terminator, emitting phi-resolving register
// copies for whichever successor edge is about to be taken. FalseTarget of
// a TermBranch is always a fresh block the frontend allocates purely for
// the fallthrough path (see ssa/control.go's doBrIf), so it never carries
// phis; only the true edge needs the copy-then-jump treatment a critical
// edge would otherwise require.
func (lw *funcLowerer) lowerTerm(b *ssa.Block) error {
	switch b.Term.Kind {
	case ssa.TermJump:
		lw.emitPhiCopies(b.Term.Target, b.ID)
		lw.jumpTo(lw.labelFor(b.Term.Target))
		return nil

	case ssa.TermBranch:
		lw.loadVal(RESULT, b.Term.Cond)
		lw.branchEqTo(RESULT, 0, lw.labelFor(b.Term.FalseTarget))
		lw.emitPhiCopies(b.Term.TrueTarget, b.ID)
		lw.jumpTo(lw.labelFor(b.Term.TrueTarget))
		return nil

	case ssa.TermBrTable:
		return lw.lowerBrTable(b)

	case ssa.TermReturn:
		if len(b.Term.Results) > 0 {
			lw.loadVal(ARGS_PTR, b.Term.Results[0])
		}
		lw.loadReg(RA, 0)
		for i, r := range paramRegs {
			lw.loadReg(r, uint32(8+i*8))
		}
		idx := lw.emit(Instruction{Op: OpAddImm, Dst: SP, A: SP})
		lw.spRestoreIdxs = append(lw.spRestoreIdxs, idx)
		lw.emit(Instruction{Op: OpJumpIndirect, A: RA})
		return nil

	case ssa.TermTrap:
		lw.emit(Instruction{Op: OpTrap})
		return nil
	}
	return errors.Internal(errors.PhaseTranslate, nil, "unrecognized terminator kind")
}

// lowerBrTable lowers a multi-way branch as a chain of equality tests
// against hand-rolled trampolines, one per table entry, since each arm
// may need its own phi copies before the jump and PVM has no native
// indexed-jump-table instruction for this (call_indirect's dispatch table
// is a different, module-wide mechanism; see calls.go).
func (lw *funcLowerer) lowerBrTable(b *ssa.Block) error {
	lw.loadVal(RESULT, b.Term.Index)
	arms := make([]int, len(b.Term.Targets))
	for i := range b.Term.Targets {
		arms[i] = lw.newLabel()
		lw.branchEqTo(RESULT, int32(i), arms[i])
	}
	defaultLabel := lw.labelFor(b.Term.Default)
	lw.emitPhiCopies(b.Term.Default, b.ID)
	lw.jumpTo(defaultLabel)

	for i, target := range b.Term.Targets {
		lw.placeLabel(arms[i])
		lw.emitPhiCopies(target, b.ID)
		lw.jumpTo(lw.labelFor(target))
	}
	return nil
}

// pcopy is one slot-to-slot move needed to install a block's phi results
// along one incoming edge.
type pcopy struct {
	src, dst    uint32
	fromScratch bool
}

// emitPhiCopies installs target's phi results for the edge from pred,
// sequencing simultaneous copies so no source is clobbered before it is
// read (Cooper & Torczon's parallel-copy algorithm, specialized to a single
// spare register per cycle).
func (lw *funcLowerer) emitPhiCopies(targetID, pred ssa.BlockID) {
	target := lw.f.Block(targetID)
	if target == nil || len(target.Phis) == 0 {
		return
	}

	var copies []pcopy
	for _, p := range target.Phis {
		src := p.Incoming[pred]
		if src == ssa.NoValue || src == p.Result {
			continue
		}
		copies = append(copies, pcopy{src: lw.fr.slot(src), dst: lw.fr.slot(p.Result)})
	}

	for len(copies) > 0 {
		dsts := make(map[uint32]bool, len(copies))
		for _, c := range copies {
			dsts[c.dst] = true
		}

		progressed := false
		for i := 0; i < len(copies); i++ {
			c := copies[i]
			if isSourceOfOther(copies, i, c.dst) {
				continue
			}
			lw.applyCopy(c)
			copies = append(copies[:i], copies[i+1:]...)
			progressed = true
			break
		}
		if progressed {
			continue
		}

		// Every remaining copy's destination is also someone's source: a
		// cycle. Break it by spilling the first copy's destination before
		// anything overwrites it, then redirecting whichever copy reads
		// that slot to read the spill instead.
		c := copies[0]
		lw.loadReg(SCRATCH1, c.dst)
		for i := range copies {
			if copies[i].src == c.dst {
				copies[i].fromScratch = true
			}
		}
		lw.applyCopy(c)
		copies = copies[1:]
	}
}

func isSourceOfOther(copies []pcopy, skip int, slot uint32) bool {
	for i, c := range copies {
		if i != skip && c.src == slot {
			return true
		}
	}
	return false
}

func (lw *funcLowerer) applyCopy(c pcopy) {
	if c.fromScratch {
		lw.storeReg(SCRATCH1, c.dst)
		return
	}
	lw.loadReg(RESULT, c.src)
	lw.storeReg(RESULT, c.dst)
}
