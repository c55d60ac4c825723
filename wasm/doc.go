// Package wasm provides WebAssembly binary format decoding.
//
// This package implements a parser for WebAssembly binary modules
// according to the WebAssembly 2.0 specification, with support for
// several post-2.0 proposals, serving as wasm2pvm's front-end codec:
// modparse narrows a decoded Module down to the i32/i64 subset this
// compiler actually lowers. Module-level encoding back to binary is
// out of scope here — wasm2pvm never re-emits WASM, only PVM bytecode
// (see the link package's SPI container assembly).
//
// # Supported Features
//
//	WebAssembly 2.0:
//	  - Core value types (i32, i64, f32, f64)
//	  - Functions, tables, memories, globals
//	  - Control flow, calls, local/global access
//	  - Memory and table operations
//	  - Import/export of all definitions
//
//	Post-2.0 Proposals:
//	  - GC (structs, arrays, typed references, heap types)
//	  - Exception handling (tags, try/catch, throw)
//	  - Tail calls (return_call, return_call_indirect)
//	  - SIMD (128-bit vector operations, v128 type)
//	  - Threads (atomic operations, shared memory)
//	  - Bulk memory (memory.copy, memory.fill, data.drop)
//	  - Reference types (funcref, externref, ref.null, ref.is_null)
//	  - Multi-memory (multiple memory instances)
//	  - Memory64 (64-bit memory addressing)
//
// # Parsing
//
// Parse a WebAssembly module from binary:
//
//	data, _ := os.ReadFile("module.wasm")
//	module, err := wasm.ParseModule(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Parse with validation enabled:
//
//	module, err := wasm.ParseModuleValidate(data)
//
// # Module Structure
//
// A parsed module contains all sections:
//
//	module.Types      []FuncType    // Function signatures
//	module.Funcs      []uint32      // Type indices for functions
//	module.Tables     []TableType   // Table definitions
//	module.Memories   []MemoryType  // Memory definitions
//	module.Globals    []Global      // Global definitions
//	module.Imports    []Import      // Imported definitions
//	module.Exports    []Export      // Exported definitions
//	module.Code       []FuncBody    // Function bodies
//	module.Data       []DataSegment // Data segments
//	module.Elements   []Element     // Element segments
//
// # Instructions
//
// Decode instructions from bytecode:
//
//	instructions, err := wasm.DecodeInstructions(code)
//	for _, instr := range instructions {
//	    fmt.Printf("%s\n", instr.Opcode)
//	}
//
// # Validation
//
// Validate module structure:
//
//	if err := module.Validate(); err != nil {
//	    log.Printf("invalid module: %v", err)
//	}
//
// Validation checks:
//   - Type, function, table, memory, global and tag indices are in bounds
//   - Export names are unique
//   - The start function has signature [] -> []
//   - The data count and code section counts agree with their sections
//   - Memory limits are within the page maximum
//
// Validate does not check function signatures against their call sites or
// the well-formedness of instruction sequences. Import/export names are
// checked as valid UTF-8 while decoding, not by Validate.
//
// # LEB128 Encoding
//
// The package provides LEB128 utilities used throughout:
//
//	u, err := wasm.ReadLEB128u(r)  // Unsigned; r is an io.ByteReader
//	s, err := wasm.ReadLEB128s(r)  // Signed
package wasm
