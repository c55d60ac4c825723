// Package ssa is the Frontend phase: it lowers one WASM function body at a
// time into a control-flow graph of basic blocks in static single
// assignment form, then promotes per-function local-variable traffic that
// was initially modeled as memory-like get/set pairs into real SSA values.
//
// Memory and table operations never appear as raw address arithmetic in
// this IR. They are represented as dedicated instruction kinds the backend
// recognizes by a stable name (the Instr.Intrinsic field), keeping the
// frontend free of any PVM address-space detail.
package ssa
