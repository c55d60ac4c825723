package ssa

import (
	"github.com/wippyai/wasm2pvm/errors"
	"github.com/wippyai/wasm2pvm/wasm"
)

func (b *builder) beginBlock(instr wasm.Instruction) error {
	params, results, err := b.resolveBlockType(instr.Imm.(wasm.BlockImm).Type)
	if err != nil {
		return err
	}
	cont := b.newBlock()
	b.allocPhis(cont, results)
	// Block params pass straight through; no new block needed at entry
	// since a block executes inline until a branch or its own end.
	b.control = append(b.control, frame{
		kind: frameBlock, label: cont.ID, arity: len(results),
	})
	_ = params // already present on the stack; nothing to consume here
	return nil
}

func (b *builder) beginLoop(instr wasm.Instruction) error {
	params, _, err := b.resolveBlockType(instr.Imm.(wasm.BlockImm).Type)
	if err != nil {
		return err
	}
	header := b.newBlock()
	entryArgs := b.popN(len(params))
	headerVals := b.allocPhis(header, params)
	if !b.unreachable {
		b.recordEdge(header.ID, entryArgs)
		b.finish(Term{Kind: TermJump, Target: header.ID})
	}
	b.switchTo(header)
	for _, v := range headerVals {
		b.push(v)
	}
	b.control = append(b.control, frame{
		kind: frameLoop, label: header.ID, arity: len(params),
	})
	return nil
}

func (b *builder) beginIf(instr wasm.Instruction) error {
	params, results, err := b.resolveBlockType(instr.Imm.(wasm.BlockImm).Type)
	if err != nil {
		return err
	}
	cond := b.pop()
	blockParams := b.popN(len(params))
	then := b.newBlock()
	elseBlk := b.newBlock()
	merge := b.newBlock()
	b.allocPhis(merge, results)
	if !b.unreachable {
		then.Preds = append(then.Preds, b.cur.ID)
		elseBlk.Preds = append(elseBlk.Preds, b.cur.ID)
		b.finish(Term{Kind: TermBranch, Cond: cond, TrueTarget: then.ID, FalseTarget: elseBlk.ID})
	}
	b.switchTo(then)
	for _, v := range blockParams {
		b.push(v)
	}
	b.control = append(b.control, frame{
		kind: frameIf, label: merge.ID, arity: len(results),
		elseBlock: elseBlk.ID, elseParams: blockParams,
	})
	return nil
}

func (b *builder) topFrame() (*frame, error) {
	if len(b.control) == 0 {
		return nil, errors.Internal(errors.PhaseTranslate, nil, "control-frame stack underflow")
	}
	return &b.control[len(b.control)-1], nil
}

func (b *builder) doElse() error {
	fr, err := b.topFrame()
	if err != nil {
		return err
	}
	if fr.kind != frameIf {
		return errors.Internal(errors.PhaseTranslate, nil, "else outside if")
	}
	if !b.unreachable {
		vals := b.peekN(fr.arity)
		b.recordEdge(fr.label, vals)
		b.finish(Term{Kind: TermJump, Target: fr.label})
	}

	elseBlk := b.blockByID(fr.elseBlock)
	b.switchTo(elseBlk)
	for _, v := range fr.elseParams {
		b.push(v)
	}
	fr.sawElse = true
	return nil
}

func (b *builder) doEnd() error {
	if len(b.control) == 0 {
		return nil // function body's own implicit end; handled by caller
	}
	fr := b.control[len(b.control)-1]
	b.control = b.control[:len(b.control)-1]

	switch fr.kind {
	case frameBlock:
		if !b.unreachable {
			vals := b.peekN(fr.arity)
			b.recordEdge(fr.label, vals)
			b.finish(Term{Kind: TermJump, Target: fr.label})
		}
		cont := b.blockByID(fr.label)
		b.switchTo(cont)
		b.truncateStackTo(len(b.stack) - fr.arity)
		for _, p := range cont.Phis {
			b.push(p.Result)
		}

	case frameLoop:
		// Falling off a loop's end without branching simply continues in
		// cur; no continuation block, no phi substitution.

	case frameIf:
		if !fr.sawElse {
			elseBlk := b.blockByID(fr.elseBlock)
			elseBlk.Term = Term{Kind: TermJump, Target: fr.label}
			savedCur, savedUnreachable := b.cur, b.unreachable
			b.cur, b.unreachable = elseBlk, false
			b.recordEdge(fr.label, fr.elseParams)
			b.cur, b.unreachable = savedCur, savedUnreachable
		}
		if !b.unreachable {
			vals := b.peekN(fr.arity)
			b.recordEdge(fr.label, vals)
			b.finish(Term{Kind: TermJump, Target: fr.label})
		}
		merge := b.blockByID(fr.label)
		b.switchTo(merge)
		b.truncateStackTo(len(b.stack) - fr.arity)
		for _, p := range merge.Phis {
			b.push(p.Result)
		}
	}
	return nil
}

func (b *builder) truncateStackTo(n int) {
	if n < 0 {
		n = 0
	}
	if n > len(b.stack) {
		n = len(b.stack)
	}
	b.stack = b.stack[:n]
}

func (b *builder) frameAt(depth uint32) (*frame, error) {
	idx := len(b.control) - 1 - int(depth)
	if idx < 0 {
		return nil, errors.Internal(errors.PhaseTranslate, nil, "branch depth exceeds control-frame stack")
	}
	return &b.control[idx], nil
}

func (b *builder) doBr(depth uint32) error {
	fr, err := b.frameAt(depth)
	if err != nil {
		return err
	}
	vals := b.peekN(fr.arity)
	if !b.unreachable {
		b.recordEdge(fr.label, vals)
	}
	b.finish(Term{Kind: TermJump, Target: fr.label})
	return nil
}

func (b *builder) doBrIf(depth uint32) error {
	fr, err := b.frameAt(depth)
	if err != nil {
		return err
	}
	cond := b.pop()
	if b.unreachable {
		// Dead code: a br_if here can never execute; drop the values it
		// would have carried rather than wire a phantom edge.
		b.peekN(fr.arity)
		return nil
	}
	vals := b.peekN(fr.arity)
	fallthroughBlk := b.newBlock()
	b.recordEdge(fr.label, vals)
	b.finish(Term{Kind: TermBranch, Cond: cond, TrueTarget: fr.label, FalseTarget: fallthroughBlk.ID})
	fallthroughBlk.Preds = append(fallthroughBlk.Preds, b.cur.ID)
	b.switchTo(fallthroughBlk)
	return nil
}

func (b *builder) doBrTable(imm wasm.BrTableImm) error {
	index := b.pop()
	defaultFrame, err := b.frameAt(imm.Default)
	if err != nil {
		return err
	}
	vals := b.peekN(defaultFrame.arity)
	targets := make([]BlockID, len(imm.Labels))
	for i, depth := range imm.Labels {
		fr, err := b.frameAt(depth)
		if err != nil {
			return err
		}
		targets[i] = fr.label
		if !b.unreachable {
			b.recordEdge(fr.label, vals)
		}
	}
	if !b.unreachable {
		b.recordEdge(defaultFrame.label, vals)
	}
	b.finish(Term{Kind: TermBrTable, Index: index, Targets: targets, Default: defaultFrame.label})
	return nil
}
