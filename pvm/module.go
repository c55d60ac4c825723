package pvm

// Function is one function's fully lowered PVM bytecode. Code is ready to
// concatenate into the assembled program as-is; only the byte offsets
// recorded in Fixups still need patching once every function's position
// in the final program is known.
type Function struct {
	Code      []byte
	Fixups    []Fixup
	FrameSize uint32
}

// Module is the PVM backend's output: one lowered Function per local
// (non-imported) WASM function, indexed the same way as modparse.Program
// and ssa.Module.
type Module struct {
	Funcs []*Function
}
