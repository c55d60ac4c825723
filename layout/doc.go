// Package layout is the frozen schedule of PVM address constants shared by
// the backend and the module assembler.
//
// It owns nothing but addresses: the reserved trap region, the read-only
// data base, the globals base, the spilled-locals base, the derived WASM
// linear-memory base, and the stack segment. Any component that needs a
// PVM address for something other than a per-function stack slot gets it
// from here, so the address map lives in exactly one place.
package layout
