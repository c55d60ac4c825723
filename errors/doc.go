// Package errors provides the structured error type used across the
// wasm2pvm pipeline.
//
// Errors are categorized by Phase (where the error occurred — parse,
// translate, assemble) and Kind (error category). Every failure is fatal to
// the compilation; there is no partial-compilation recovery.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseTranslate, errors.KindUnsupported).
//		Path("func 3", "block 2").
//		Op("f32.add").
//		Detail("floats are not supported").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Unsupported(errors.PhaseTranslate, "f32.add", "floats are not supported")
//	err := errors.NoExportedFunction()
//	err := errors.Internal(errors.PhaseTranslate, path, "phi predecessor mismatch")
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
