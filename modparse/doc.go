// Package modparse is the Module Parser phase: it validates a WASM binary
// against the supported subset (MVP, bulk-memory, sign-extension, and
// non-trapping FP-to-int truncation stubs; no floats, no GC, no threads, no
// SIMD, no reference types, no passive data segments) and materializes the
// neutral module record the rest of the pipeline consumes.
//
// It is a thin domain layer over package wasm: wasm.ParseModule does binary
// decode and general structural validation, and modparse.Parse narrows that
// general WASM module down to the restricted dialect this compiler
// translates, evaluating global initializers and recognizing the module's
// entry-point convention along the way.
package modparse
