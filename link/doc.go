// Package link is the Module Assembler phase: it takes a pvm.Module (one
// lowered Function per local WASM function) plus the parsed modparse.Program
// it was lowered from, and produces the final SPI container.
//
// Assembly proceeds in four steps: build the entry header (the jump table
// used by call_indirect's indirect dispatch and by the program's own entry
// call), concatenate every function's code in index order while recording
// each one's start offset, patch every pvm.Fixup now that targets are known,
// and build the read-only dispatch table plus the read-write globals/data
// segment.
package link
