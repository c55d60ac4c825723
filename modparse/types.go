package modparse

import "github.com/wippyai/wasm2pvm/wasm"

// Signature is a function signature restricted to {i32, i64} operands,
// per §3.1.
type Signature struct {
	Params  []wasm.ValType
	Results []wasm.ValType
}

// Import describes an imported function. Imports consume no code; the
// backend stubs every call site (§4.4 "Imports").
type Import struct {
	Module string
	Name   string
	Sig    Signature
}

// Function is a local function: its signature, its declared additional
// locals (beyond parameters, indices continuing after the parameter
// indices), and its decoded WASM operator sequence.
type Function struct {
	Sig    Signature
	Locals []wasm.ValType
	Instrs []wasm.Instruction
}

// NumLocals returns the total local count, parameters included, matching
// WASM's local index space.
func (f *Function) NumLocals() int {
	return len(f.Sig.Params) + len(f.Locals)
}

// LocalType returns the type of local index idx (0-based, parameters first).
func (f *Function) LocalType(idx uint32) wasm.ValType {
	if int(idx) < len(f.Sig.Params) {
		return f.Sig.Params[idx]
	}
	return f.Locals[int(idx)-len(f.Sig.Params)]
}

// Global is a module-level variable with its evaluated initial value.
type Global struct {
	Type     wasm.ValType
	Mutable  bool
	Init     int64 // evaluated constant-expression value, sign-extended
	FromExpr bool  // true if Init came from a supported constant expr; false if it fell back to zero pending start-function evaluation
}

// Memory describes the module's single linear memory, if any.
type Memory struct {
	InitialPages uint32
	MaxPages     uint32
	HasMax       bool
}

// DataSegment is an active data segment with its evaluated memory offset.
type DataSegment struct {
	Offset uint32
	Bytes  []byte
}

// EntryConvention identifies which of the two recognized entry-point
// calling conventions a module's entry function follows (§4.1).
type EntryConvention int

const (
	// EntryUnknown means no recognizable entry point was found.
	EntryUnknown EntryConvention = iota
	// EntryLegacy: signature (i32, i32) -> (); results are written into
	// exported mutable i32 globals named "result_ptr" and "result_len".
	EntryLegacy
	// EntryModern: signature (i32, i32) -> (i32, i32); results are the
	// function's own return values.
	EntryModern
)

func (c EntryConvention) String() string {
	switch c {
	case EntryLegacy:
		return "legacy"
	case EntryModern:
		return "modern"
	default:
		return "unknown"
	}
}

// Entry describes the module's recognized entry point.
type Entry struct {
	Convention EntryConvention
	FuncIdx    uint32

	// Secondary is the optional "main2" entry point, used as the jump
	// table's second slot when present.
	Secondary *uint32

	// ResultPtrGlobal/ResultLenGlobal are populated only for EntryLegacy:
	// the indices of the exported mutable i32 globals the entry writes
	// its result pointer and length into.
	ResultPtrGlobal uint32
	ResultLenGlobal uint32
}

// Program is the neutral module record (§3.1): everything downstream
// phases need, with WASM's general-purpose module shape narrowed to the
// subset this compiler supports.
type Program struct {
	Types   []Signature // the raw type section, used for call_indirect type checks
	Imports []Import    // imported functions only; occupy function indices [0, len(Imports))
	Funcs   []Function  // local functions; occupy indices [len(Imports), len(Imports)+len(Funcs))
	Globals []Global
	Memory  *Memory
	// Table holds, for each table slot, the function index it points to,
	// or nil for a hole (an index present in no active element segment).
	Table   []*uint32
	Data    []DataSegment
	Exports map[string]uint32 // export name -> function index
	Start   *uint32
	Entry   Entry
}

// NumImportedFuncs returns the number of imported functions, i.e. the
// index of the first local function in the combined function index space.
func (p *Program) NumImportedFuncs() int {
	return len(p.Imports)
}

// NumFuncs returns the total number of functions (imported + local).
func (p *Program) NumFuncs() int {
	return len(p.Imports) + len(p.Funcs)
}

// IsImport reports whether funcIdx names an imported function.
func (p *Program) IsImport(funcIdx uint32) bool {
	return int(funcIdx) < len(p.Imports)
}

// FuncSignature returns the signature of any function, imported or local,
// by its index in the combined function index space.
func (p *Program) FuncSignature(funcIdx uint32) Signature {
	if p.IsImport(funcIdx) {
		return p.Imports[funcIdx].Sig
	}
	return p.Funcs[int(funcIdx)-len(p.Imports)].Sig
}

// FuncTypeIndex returns the index into Types for the given function's
// signature, used to populate the dispatch table's type-index field.
// Signatures are compared structurally since WASM type indices for
// imports and declared functions may alias the same Types entry.
func (p *Program) FuncTypeIndex(funcIdx uint32) uint32 {
	sig := p.FuncSignature(funcIdx)
	for i, t := range p.Types {
		if signaturesEqual(t, sig) {
			return uint32(i)
		}
	}
	return uint32(len(p.Types))
}

func signaturesEqual(a, b Signature) bool {
	if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	for i := range a.Results {
		if a.Results[i] != b.Results[i] {
			return false
		}
	}
	return true
}
