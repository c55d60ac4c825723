// Package pvm is the Backend phase: it lowers one function's SSA form at a
// time into PVM bytecode, assigning a conservative one-slot-per-value stack
// frame, resolving phi nodes into register copies at each predecessor's
// terminator, and recognizing the frontend's named intrinsics as inline
// instruction sequences.
//
// Calls crossing function boundaries are emitted with a placeholder target
// and recorded as a Fixup; the Module Assembler (package link) patches them
// once every function's start offset is known.
package pvm
