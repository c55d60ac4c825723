// Package translate wires the whole pipeline together: modparse.Parse,
// ssa.Build, pvm.Lower, and link.Assemble, in that order, each phase
// consuming only the previous phase's output.
//
// Compile holds no package-level mutable state; independent goroutines may
// call it concurrently without coordination, each allocating its own
// Program, SSA module, and PVM/link buffers.
package translate
