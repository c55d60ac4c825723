package ssa

import (
	"testing"

	"github.com/wippyai/wasm2pvm/modparse"
	"github.com/wippyai/wasm2pvm/wat"
)

// build compiles a module whose "main" export always uses the modern
// (i32, i32) -> (i32, i32) entry convention, then lowers it to SSA.
func build(t *testing.T, src string) *Module {
	t.Helper()
	bin, err := wat.Compile(src)
	if err != nil {
		t.Fatalf("wat.Compile: %v", err)
	}
	prog, err := modparse.Parse(bin)
	if err != nil {
		t.Fatalf("modparse.Parse: %v", err)
	}
	mod, err := Build(prog)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return mod
}

// assertNoLocalTraffic checks mem2reg's job got done: no OpLocalGet/Set
// survives anywhere in the function.
func assertNoLocalTraffic(t *testing.T, f *Function) {
	t.Helper()
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if in.Op == OpLocalGet || in.Op == OpLocalSet {
				t.Fatalf("block %d: local traffic survived promotion: %+v", b.ID, in)
			}
		}
	}
}

func mainFunc(mod *Module) *Function {
	return mod.Funcs[len(mod.Funcs)-1]
}

func TestBuildStraightLine(t *testing.T) {
	src := `(module (func (export "main") (param i32 i32) (result i32 i32)
		(i32.add (local.get 0) (local.get 1))
		(local.get 1)))`
	f := mainFunc(build(t, src))
	assertNoLocalTraffic(t, f)
	if len(f.Blocks) != 1 {
		t.Fatalf("Blocks = %d, want 1 for a branchless function", len(f.Blocks))
	}
	if f.Blocks[0].Term.Kind != TermReturn {
		t.Fatalf("Term.Kind = %v, want TermReturn", f.Blocks[0].Term.Kind)
	}
}

func TestBuildIfMergesPhi(t *testing.T) {
	src := `(module (func (export "main") (param i32 i32) (result i32 i32)
		(if (result i32) (local.get 0)
			(then (i32.const 1))
			(else (i32.const 2)))
		(local.get 1)))`
	f := mainFunc(build(t, src))
	assertNoLocalTraffic(t, f)

	entryTerm := f.Block(f.Entry).Term
	if entryTerm.Kind != TermBranch {
		t.Fatalf("entry Term.Kind = %v, want TermBranch", entryTerm.Kind)
	}

	var mergeBlock *Block
	for _, b := range f.Blocks {
		if len(b.Phis) == 1 {
			mergeBlock = b
		}
	}
	if mergeBlock == nil {
		t.Fatal("no block with a merge phi found")
	}
	if len(mergeBlock.Phis[0].Incoming) != 2 {
		t.Fatalf("merge phi has %d incoming edges, want 2", len(mergeBlock.Phis[0].Incoming))
	}
}

func TestBuildIfNoElseFallsThroughDefault(t *testing.T) {
	src := `(module (func (export "main") (param i32 i32) (result i32 i32)
		(local i32)
		(local.set 2 (i32.const 7))
		(if (local.get 0) (then (local.set 2 (i32.const 9))))
		(local.get 2) (local.get 1)))`
	f := mainFunc(build(t, src))
	assertNoLocalTraffic(t, f)

	var mergeBlock *Block
	for _, b := range f.Blocks {
		if len(b.Phis) == 1 {
			mergeBlock = b
		}
	}
	if mergeBlock == nil {
		t.Fatal("no block with a local-promotion phi found at the if merge point")
	}
	if len(mergeBlock.Phis[0].Incoming) != 2 {
		t.Fatalf("merge phi has %d incoming edges, want 2 (then path and implicit else)", len(mergeBlock.Phis[0].Incoming))
	}
}

func TestBuildLoopHeaderPhi(t *testing.T) {
	src := `(module (func (export "main") (param i32 i32) (result i32 i32)
		(local i32)
		(local.set 2 (i32.const 0))
		(block (loop
			(local.set 2 (i32.add (local.get 2) (i32.const 1)))
			(br_if 0 (i32.lt_s (local.get 2) (local.get 0)))))
		(local.get 2) (local.get 1)))`
	f := mainFunc(build(t, src))
	assertNoLocalTraffic(t, f)

	var loopHeader *Block
	for _, b := range f.Blocks {
		if len(b.Phis) == 1 && len(b.Preds) == 2 {
			loopHeader = b
		}
	}
	if loopHeader == nil {
		t.Fatal("expected a loop-header block with one phi and two predecessors")
	}
}

func TestBuildUnreachableCodeDropped(t *testing.T) {
	src := `(module (func (export "main") (param i32 i32) (result i32 i32)
		(unreachable)
		(i32.const 1)
		(i32.const 2)))`
	f := mainFunc(build(t, src))
	if f.Blocks[0].Term.Kind != TermTrap {
		t.Fatalf("Term.Kind = %v, want TermTrap", f.Blocks[0].Term.Kind)
	}
}

func TestBuildDeclaredLocalsZeroInitialized(t *testing.T) {
	src := `(module (func (export "main") (param i32 i32) (result i32 i32)
		(local i32)
		(local.get 2) (local.get 1)))`
	f := mainFunc(build(t, src))
	assertNoLocalTraffic(t, f)

	// The function returns the declared local's value without ever
	// setting it explicitly; mem2reg must resolve it to a zero constant
	// rather than an undefined SSA value.
	entry := f.Block(f.Entry)
	result := entry.Term.Results[0]
	found := false
	for _, in := range entry.Instrs {
		if in.Op == OpConst && in.Result == result && in.Imm == 0 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected return value %v to resolve to a zero constant", result)
	}
}

func TestBuildDeadStoreEliminated(t *testing.T) {
	src := `(module (func (export "main") (param i32 i32) (result i32 i32)
		(local i32)
		(local.set 2 (i32.const 5))
		(i32.const 1) (i32.const 2)))`
	f := mainFunc(build(t, src))
	assertNoLocalTraffic(t, f)

	// Promotion deletes the store itself; the constant it stored stays
	// behind, but nothing may read it.
	stored := NoValue
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if in.Op == OpConst && in.Imm == 5 {
				stored = in.Result
			}
		}
	}
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			for _, a := range in.Args {
				if a == stored {
					t.Fatalf("dead store's value %v is still used by %+v", stored, in)
				}
			}
		}
		for _, r := range b.Term.Results {
			if r == stored {
				t.Fatalf("dead store's value %v is still returned", stored)
			}
		}
	}
}

func TestBuildRejectsMultiValueCall(t *testing.T) {
	src := `(module
		(func $pair (result i32 i32) (i32.const 1) (i32.const 2))
		(func (export "main") (param i32 i32) (result i32 i32)
			(call $pair) (drop) (drop)
			(local.get 0) (local.get 1)))`
	bin, err := wat.Compile(src)
	if err != nil {
		t.Fatalf("wat.Compile: %v", err)
	}
	prog, err := modparse.Parse(bin)
	if err != nil {
		t.Fatalf("modparse.Parse: %v", err)
	}
	if _, err := Build(prog); err == nil {
		t.Fatal("expected error lowering a call to a multi-result function")
	}
}
