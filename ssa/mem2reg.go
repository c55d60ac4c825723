package ssa

// Promote eliminates OpLocalGet/OpLocalSet from every function in mod,
// replacing them with real SSA values and phi nodes. It is a standard
// dominance-based mem2reg (Cytron et al.), specialized to WASM locals:
// each local is treated as a one-slot stack variable promoted independently.
func Promote(mod *Module) {
	for _, f := range mod.Funcs {
		promoteFunc(f)
	}
}

func promoteFunc(f *Function) {
	pruneUnreachable(f)
	if len(f.Blocks) == 0 {
		return
	}

	rpo := reversePostorder(f)
	idom := computeDominators(f, rpo)
	df := computeDominanceFrontier(f, rpo, idom)

	numLocals := countLocals(f)
	defsOf := make([][]BlockID, numLocals) // blocks that write local i
	readOf := make([]bool, numLocals)      // local i has at least one read
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			switch in.Op {
			case OpLocalSet:
				defsOf[in.Local] = appendUnique(defsOf[in.Local], b.ID)
			case OpLocalGet:
				readOf[in.Local] = true
			}
		}
	}

	// Locals written but never read contribute no value to later code;
	// their writes are dead stores and are simply deleted below.
	type localPhi struct {
		local uint32
		phi   *Phi
	}
	phisByBlock := make(map[BlockID][]*localPhi)

	for local := 0; local < numLocals; local++ {
		if !readOf[local] {
			continue
		}
		worklist := append([]BlockID(nil), defsOf[local]...)
		hasPhi := make(map[BlockID]bool)
		for len(worklist) > 0 {
			b := worklist[len(worklist)-1]
			worklist = worklist[:len(worklist)-1]
			for _, d := range df[b] {
				if hasPhi[d] {
					continue
				}
				hasPhi[d] = true
				p := &Phi{Incoming: make(map[BlockID]Value)}
				phisByBlock[d] = append(phisByBlock[d], &localPhi{local: uint32(local), phi: p})
				worklist = append(worklist, d)
			}
		}
	}

	// Assign result values and types to inserted phis now that every
	// local's insertion set is known, then splice them onto their blocks.
	for blockID, lps := range phisByBlock {
		blk := f.Block(blockID)
		for _, lp := range lps {
			t := localType(f, lp.local)
			lp.phi.Type = t
			lp.phi.Result = Value(f.NumValues)
			f.NumValues++
			blk.Phis = append(blk.Phis, *lp.phi)
		}
	}
	// Match inserted local-phis to their final slice entries positionally,
	// since block.Phis may already contain the builder's own block/loop/if
	// merge-phis ahead of these.
	phiForLocal := make(map[BlockID]map[uint32]*Phi)
	for blockID, lps := range phisByBlock {
		blk := f.Block(blockID)
		start := len(blk.Phis) - len(lps)
		m := make(map[uint32]*Phi)
		phiForLocal[blockID] = m
		for i, lp := range lps {
			m[lp.local] = &blk.Phis[start+i]
		}
	}

	replace := make(map[Value]Value)
	deleted := make(map[*Instr]bool)
	children := dominatorChildren(f, idom)

	for local := 0; local < numLocals; local++ {
		if !readOf[local] {
			continue
		}
		renameLocal(f, uint32(local), f.Entry, NoValue, children, phiForLocal, replace, deleted)
	}

	stripLocals(f, replace, deleted, readOf)
}

func countLocals(f *Function) int {
	n := 0
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if in.Op == OpLocalGet || in.Op == OpLocalSet {
				if int(in.Local)+1 > n {
					n = int(in.Local) + 1
				}
			}
		}
	}
	return n
}

func localType(f *Function, local uint32) Type {
	if int(local) < len(f.ParamTypes) {
		return f.ParamTypes[local]
	}
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if in.Op == OpLocalSet && in.Local == local {
				return in.Type
			}
			if in.Op == OpLocalGet && in.Local == local {
				return in.Type
			}
		}
	}
	return I32
}

func appendUnique(ids []BlockID, id BlockID) []BlockID {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}

// renameLocal walks the dominator tree rooted at b, maintaining the one
// local's current reaching value, recording substitutions for every
// OpLocalGet and marking every OpLocalSet for deletion.
func renameLocal(
	f *Function, local uint32, b BlockID, incoming Value,
	children map[BlockID][]BlockID,
	phiForLocal map[BlockID]map[uint32]*Phi,
	replace map[Value]Value, deleted map[*Instr]bool,
) {
	cur := incoming
	blk := f.Block(b)
	if m := phiForLocal[b]; m != nil {
		if p, ok := m[local]; ok {
			cur = p.Result
		}
	}
	for i := range blk.Instrs {
		in := &blk.Instrs[i]
		switch {
		case in.Op == OpLocalGet && in.Local == local:
			replace[in.Result] = cur
			deleted[in] = true
		case in.Op == OpLocalSet && in.Local == local:
			cur = resolveArg(in.Args[0], replace)
			deleted[in] = true
		}
	}

	for _, s := range successors(blk.Term) {
		if m := phiForLocal[s]; m != nil {
			if p, ok := m[local]; ok {
				p.Incoming[b] = resolveArg(cur, replace)
			}
		}
	}

	for _, c := range children[b] {
		renameLocal(f, local, c, cur, children, phiForLocal, replace, deleted)
	}
}

func resolveArg(v Value, replace map[Value]Value) Value {
	for {
		r, ok := replace[v]
		if !ok {
			return v
		}
		v = r
	}
}

// stripLocals applies every recorded substitution across the whole
// function and removes every deleted local.get/local.set instruction, in
// one final sweep, after all locals have been renamed.
func stripLocals(f *Function, replace map[Value]Value, deleted map[*Instr]bool, readOf []bool) {
	for _, b := range f.Blocks {
		kept := b.Instrs[:0]
		for i := range b.Instrs {
			in := b.Instrs[i]
			if deleted[&b.Instrs[i]] {
				continue
			}
			if in.Op == OpLocalSet && int(in.Local) < len(readOf) && !readOf[in.Local] {
				continue // dead store: local is never read anywhere
			}
			for j, a := range in.Args {
				in.Args[j] = resolveArg(a, replace)
			}
			kept = append(kept, in)
		}
		b.Instrs = kept

		for i := range b.Phis {
			for pred, v := range b.Phis[i].Incoming {
				b.Phis[i].Incoming[pred] = resolveArg(v, replace)
			}
		}
		switch b.Term.Kind {
		case TermReturn:
			for i, v := range b.Term.Results {
				b.Term.Results[i] = resolveArg(v, replace)
			}
		case TermBranch:
			b.Term.Cond = resolveArg(b.Term.Cond, replace)
		case TermBrTable:
			b.Term.Index = resolveArg(b.Term.Index, replace)
		}
	}
}

// successors returns a terminator's branch targets.
func successors(t Term) []BlockID {
	switch t.Kind {
	case TermJump:
		return []BlockID{t.Target}
	case TermBranch:
		return []BlockID{t.TrueTarget, t.FalseTarget}
	case TermBrTable:
		out := append([]BlockID(nil), t.Targets...)
		return append(out, t.Default)
	default:
		return nil
	}
}

// pruneUnreachable deletes every block not reachable from Entry, along
// with any predecessor/phi-incoming reference to it. Blocks can become
// unreachable when a branch or the implicit empty-else path is taken
// entirely out of dead (already-terminated) code; the builder's
// unreachable guards keep real edges from ever pointing at them, so
// reachability from Entry is exact.
func pruneUnreachable(f *Function) {
	reachable := make(map[BlockID]bool)
	var visit func(BlockID)
	visit = func(id BlockID) {
		if reachable[id] {
			return
		}
		reachable[id] = true
		blk := f.Block(id)
		if blk == nil {
			return
		}
		for _, s := range successors(blk.Term) {
			visit(s)
		}
	}
	visit(f.Entry)

	kept := f.Blocks[:0]
	for _, b := range f.Blocks {
		if !reachable[b.ID] {
			continue
		}
		preds := b.Preds[:0]
		for _, p := range b.Preds {
			if reachable[p] {
				preds = append(preds, p)
			}
		}
		b.Preds = preds
		for i := range b.Phis {
			for pred := range b.Phis[i].Incoming {
				if !reachable[pred] {
					delete(b.Phis[i].Incoming, pred)
				}
			}
		}
		kept = append(kept, b)
	}
	f.Blocks = kept
}

// reversePostorder returns f's blocks in reverse postorder from Entry,
// the order the dominator algorithm below requires to converge in one
// or two passes.
func reversePostorder(f *Function) []BlockID {
	var order []BlockID
	visited := make(map[BlockID]bool)
	var visit func(BlockID)
	visit = func(id BlockID) {
		if visited[id] {
			return
		}
		visited[id] = true
		blk := f.Block(id)
		if blk == nil {
			return
		}
		for _, s := range successors(blk.Term) {
			visit(s)
		}
		order = append(order, id)
	}
	visit(f.Entry)

	rev := make([]BlockID, len(order))
	for i, id := range order {
		rev[len(order)-1-i] = id
	}
	return rev
}

// computeDominators implements the Cooper-Harvey-Kennedy iterative
// dominance algorithm over rpo.
func computeDominators(f *Function, rpo []BlockID) map[BlockID]BlockID {
	rpoIndex := make(map[BlockID]int, len(rpo))
	for i, id := range rpo {
		rpoIndex[id] = i
	}
	preds := make(map[BlockID][]BlockID)
	for _, b := range f.Blocks {
		preds[b.ID] = b.Preds
	}

	idom := make(map[BlockID]BlockID)
	idom[f.Entry] = f.Entry

	intersect := func(a, b BlockID) BlockID {
		for a != b {
			for rpoIndex[a] > rpoIndex[b] {
				a = idom[a]
			}
			for rpoIndex[b] > rpoIndex[a] {
				b = idom[b]
			}
		}
		return a
	}

	changed := true
	for changed {
		changed = false
		for _, id := range rpo {
			if id == f.Entry {
				continue
			}
			var newIdom BlockID
			first := true
			for _, p := range preds[id] {
				if _, ok := idom[p]; !ok {
					continue
				}
				if first {
					newIdom = p
					first = false
					continue
				}
				newIdom = intersect(newIdom, p)
			}
			if first {
				continue // no processed predecessor yet
			}
			if cur, ok := idom[id]; !ok || cur != newIdom {
				idom[id] = newIdom
				changed = true
			}
		}
	}
	return idom
}

// computeDominanceFrontier implements the Cytron et al. algorithm.
func computeDominanceFrontier(f *Function, rpo []BlockID, idom map[BlockID]BlockID) map[BlockID][]BlockID {
	df := make(map[BlockID][]BlockID)
	preds := make(map[BlockID][]BlockID)
	for _, b := range f.Blocks {
		preds[b.ID] = b.Preds
	}
	for _, id := range rpo {
		ps := preds[id]
		if len(ps) < 2 {
			continue
		}
		for _, p := range ps {
			if _, ok := idom[p]; !ok {
				continue
			}
			runner := p
			for runner != idom[id] {
				df[runner] = appendUnique(df[runner], id)
				runner = idom[runner]
			}
		}
	}
	return df
}

// dominatorChildren inverts idom into a tree adjacency for the rename walk.
func dominatorChildren(f *Function, idom map[BlockID]BlockID) map[BlockID][]BlockID {
	children := make(map[BlockID][]BlockID)
	for _, b := range f.Blocks {
		if b.ID == f.Entry {
			continue
		}
		p, ok := idom[b.ID]
		if !ok {
			continue
		}
		children[p] = append(children[p], b.ID)
	}
	return children
}
