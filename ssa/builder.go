package ssa

import (
	"github.com/wippyai/wasm2pvm/errors"
	"github.com/wippyai/wasm2pvm/modparse"
	"github.com/wippyai/wasm2pvm/wasm"
)

// Intrinsic names, stable across frontend and backend. The backend
// recognizes these and emits the matching PVM sequence; they never
// correspond to a real callable function.
const (
	IntrinsicLoad         = "__pvm_load"
	IntrinsicStore        = "__pvm_store"
	IntrinsicMemorySize   = "__pvm_memory_size"
	IntrinsicMemoryGrow   = "__pvm_memory_grow"
	IntrinsicMemoryCopy   = "__pvm_memory_copy"
	IntrinsicMemoryFill   = "__pvm_memory_fill"
	IntrinsicCallIndirect = "__pvm_call_indirect"
)

// Build lowers every local function in prog to SSA form.
func Build(prog *modparse.Program) (*Module, error) {
	mod := &Module{Funcs: make([]*Function, len(prog.Funcs))}
	for i, fn := range prog.Funcs {
		f, err := buildFunction(prog, &fn)
		if err != nil {
			return nil, err
		}
		mod.Funcs[i] = f
	}
	Promote(mod)
	return mod, nil
}

func wasmType(t wasm.ValType) Type {
	if t == wasm.ValI64 {
		return I64
	}
	return I32
}

func convertTypes(ts []wasm.ValType) []Type {
	out := make([]Type, len(ts))
	for i, t := range ts {
		out[i] = wasmType(t)
	}
	return out
}

// frame is one entry of the control-construct stack mirroring WASM's
// block/loop/if nesting.
type frame struct {
	elseParams []Value // if: saved block-param values, replayed for an implicit empty else
	label      BlockID // branch target: loop header, or block/if continuation
	elseBlock  BlockID // if only
	kind       frameKind
	arity      int // param count for loop frames, result count otherwise
	sawElse    bool
}

type frameKind int

const (
	frameBlock frameKind = iota
	frameLoop
	frameIf
)

type builder struct {
	prog        *modparse.Program
	fn          *modparse.Function
	blocks      []*Block
	cur         *Block
	stack       []Value
	valueTypes  map[Value]Type
	control     []frame
	nextValue   Value
	nextBlock   BlockID
	unreachable bool // true once cur has an unconditional terminator
}

func buildFunction(prog *modparse.Program, fn *modparse.Function) (*Function, error) {
	b := &builder{
		prog:       prog,
		fn:         fn,
		valueTypes: make(map[Value]Type),
	}
	entry := b.newBlock()
	b.cur = entry

	for i := range fn.Sig.Params {
		v := b.newValue(wasmType(fn.Sig.Params[i]))
		b.emit(Instr{Op: OpParam, Local: uint32(i), Result: v})
		// Function parameters are pre-seeded local slots; local.get reads
		// them like any other local prior to promotion.
		b.emit(Instr{Op: OpLocalSet, Local: uint32(i), Args: []Value{v}})
	}
	numParams := len(fn.Sig.Params)
	for i, t := range fn.Locals {
		// Declared locals are zero-initialized at function entry, per WASM.
		idx := uint32(numParams + i)
		zero := b.constant(wasmType(t), 0)
		b.emit(Instr{Op: OpLocalSet, Local: idx, Args: []Value{zero}})
	}

	if err := b.walk(fn.Instrs); err != nil {
		return nil, err
	}
	if !b.unreachable {
		// A function whose body falls off the end without an explicit
		// return: return whatever values remain on the stack, per WASM's
		// implicit-return-at-end rule.
		n := len(fn.Sig.Results)
		vals := b.popN(n)
		b.finish(Term{Kind: TermReturn, Results: vals})
	}

	f := &Function{
		ParamTypes:  convertTypes(fn.Sig.Params),
		ResultTypes: convertTypes(fn.Sig.Results),
		Blocks:      b.blocks,
		Entry:       entry.ID,
		NumValues:   int(b.nextValue),
	}
	return f, nil
}

func (b *builder) newBlock() *Block {
	id := b.nextBlock
	b.nextBlock++
	blk := &Block{ID: id}
	b.blocks = append(b.blocks, blk)
	return blk
}

func (b *builder) blockByID(id BlockID) *Block {
	for _, blk := range b.blocks {
		if blk.ID == id {
			return blk
		}
	}
	return nil
}

func (b *builder) newValue(t Type) Value {
	v := b.nextValue
	b.nextValue++
	b.valueTypes[v] = t
	return v
}

func (b *builder) push(v Value) { b.stack = append(b.stack, v) }

func (b *builder) pop() Value {
	if len(b.stack) == 0 {
		// Unreachable (validated-dead) code may pop past what it pushed;
		// the WASM validator accepts this under polymorphic stack typing.
		// Synthesize a fresh poison value rather than track real ones,
		// since it is, by construction, never observed.
		return b.newValue(I32)
	}
	v := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	return v
}

func (b *builder) popN(n int) []Value {
	vals := make([]Value, n)
	for i := n - 1; i >= 0; i-- {
		vals[i] = b.pop()
	}
	return vals
}

func (b *builder) peekN(n int) []Value {
	if n == 0 {
		return nil
	}
	if len(b.stack) < n {
		vals := make([]Value, n)
		for i := range vals {
			vals[i] = b.newValue(I32)
		}
		return vals
	}
	out := make([]Value, n)
	copy(out, b.stack[len(b.stack)-n:])
	return out
}

func (b *builder) typeOf(v Value) Type { return b.valueTypes[v] }

// emit appends a non-terminator instruction to the active block, unless
// the active region is dead.
func (b *builder) emit(instr Instr) {
	if b.unreachable {
		return
	}
	b.cur.Instrs = append(b.cur.Instrs, instr)
}

// finish sets cur's terminator and marks the active region dead.
func (b *builder) finish(t Term) {
	if b.unreachable {
		return
	}
	b.cur.Term = t
	b.unreachable = true
}

// recordEdge adds cur as a predecessor of target, filling phi incoming
// values in the order target's phis were allocated.
func (b *builder) recordEdge(target BlockID, vals []Value) {
	blk := b.blockByID(target)
	for i := range blk.Preds {
		if blk.Preds[i] == b.cur.ID {
			return // already recorded (e.g. br_table naming one target twice)
		}
	}
	blk.Preds = append(blk.Preds, b.cur.ID)
	for i := range blk.Phis {
		if blk.Phis[i].Incoming == nil {
			blk.Phis[i].Incoming = make(map[BlockID]Value)
		}
		if i < len(vals) {
			blk.Phis[i].Incoming[b.cur.ID] = vals[i]
		}
	}
}

func (b *builder) allocPhis(blk *Block, types []Type) []Value {
	vals := make([]Value, len(types))
	for i, t := range types {
		v := b.newValue(t)
		blk.Phis = append(blk.Phis, Phi{Result: v, Type: t, Incoming: make(map[BlockID]Value)})
		vals[i] = v
	}
	return vals
}

func (b *builder) switchTo(blk *Block) {
	b.cur = blk
	b.unreachable = false
}

// resolveBlockType turns a WASM block-type immediate into concrete
// parameter and result types.
func (b *builder) resolveBlockType(imm int32) (params, results []Type, err error) {
	switch {
	case imm == -64:
		return nil, nil, nil
	case imm == -1:
		return nil, []Type{I32}, nil
	case imm == -2:
		return nil, []Type{I64}, nil
	case imm == -3, imm == -4:
		return nil, nil, errors.Unsupported(errors.PhaseTranslate, "f32/f64 block type", "floating-point types are not supported")
	default:
		idx := uint32(imm)
		if int(idx) >= len(b.prog.Types) {
			return nil, nil, errors.InvalidData(errors.PhaseTranslate, nil, "block type index out of range")
		}
		sig := b.prog.Types[idx]
		return convertTypes(sig.Params), convertTypes(sig.Results), nil
	}
}

func (b *builder) walk(instrs []wasm.Instruction) error {
	for _, instr := range instrs {
		if err := b.step(instr); err != nil {
			return err
		}
	}
	return nil
}
