// Package wat provides WebAssembly Text format parsing.
//
// This package compiles WAT (WebAssembly Text) format into binary WASM,
// giving the compiler's own test suites human-readable module fixtures
// instead of hand-assembled binary byte slices. It is a test-fixture
// compiler, not a general WAT toolchain: its instruction surface is
// trimmed to what modparse's i32/i64-only dialect (see restrict.go) can
// ever accept, so anything modparse rejects at parse time was never
// worth being able to express here either.
//
// Basic usage:
//
//	wasm, err := wat.Compile(`(module
//		(func (export "add") (param i32 i32) (result i32)
//			(i32.add (local.get 0) (local.get 1)))
//	)`)
//
// Supported features:
//   - Functions with params, results, locals (named and indexed)
//   - Multi-value returns and block parameters
//   - Memory, global, table declarations with imports/exports
//   - Control flow: if/then/else, loop, block, br, br_if, br_table, return
//   - call, call_indirect with type references
//   - Integer ops: i32/i64 arithmetic, comparisons, bitwise, shifts, rotations
//   - Memory: load/store for all integer types with offset/align
//   - Bulk memory: memory.copy, memory.fill
//   - Reference types: funcref, externref, ref.null, ref.func, table.get/set
//   - Sign extension: i32.extend8_s, i32.extend16_s, i64.extend*_s
//   - Select with type annotation
//   - Data and elem sections (active, passive, declarative)
//   - Comments: line (;;) and block (; ;)
//
// Not supported: floating point, SIMD (v128), threads/atomics, tail
// calls, exception handling, GC types, and the passive-segment table/
// memory management ops (table.init/copy/grow/size/fill, elem.drop,
// memory.init, data.drop, saturating truncation) — none of these can
// appear in a module modparse would ever accept.
package wat
