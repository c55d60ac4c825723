package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the pipeline the error occurred
type Phase string

const (
	PhaseParse     Phase = "parse"     // WASM binary decode and structural validation
	PhaseTranslate Phase = "translate" // frontend SSA construction and backend lowering
	PhaseAssemble  Phase = "assemble"  // module assembly, linking, SPI encoding
)

// Kind categorizes the error
type Kind string

const (
	// KindInvalidData covers malformed or structurally invalid WASM input.
	KindInvalidData Kind = "invalid_data"
	// KindUnsupported covers operators, types, or proposals outside the
	// supported subset (floats, SIMD, threads, reference types, passive
	// data segments).
	KindUnsupported Kind = "unsupported"
	// KindNoEntryPoint covers a module with no recognizable entry export.
	KindNoEntryPoint Kind = "no_entry_point"
	// KindInternal covers a violated compiler invariant (dominance, phi
	// consistency, slot exhaustion) — a compiler bug, not bad input.
	KindInternal Kind = "internal"
	KindOutOfBounds Kind = "out_of_bounds"
	KindOverflow    Kind = "overflow"
	KindNotFound    Kind = "not_found"
)

// Error is the structured error type used throughout the compiler.
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Op     string // offending WASM operator or PVM instruction name, if any
	Detail string
	Path   []string // e.g. ["func 3", "block 2"]
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}

	if e.Detail != "" {
		if e.Op != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path, e.g. the function and block where the error occurred.
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Op sets the offending WASM operator or PVM instruction name.
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// ParseFailed wraps a WASM binary decode/validation failure.
func ParseFailed(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Unsupported creates an unsupported-feature error naming the offending
// operator, type, or proposal.
func Unsupported(phase Phase, op string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Op:     op,
		Detail: detail,
	}
}

// NoExportedFunction reports that the module has no recognizable entry point
// (neither the legacy nor the modern convention, see §4.1).
func NoExportedFunction() *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindNoEntryPoint,
		Detail: "module exports no function matching a recognized entry convention",
	}
}

// Internal reports a violated compiler invariant: a bug in the compiler,
// not a problem with the input module.
func Internal(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInternal,
		Path:   path,
		Detail: detail,
	}
}

// OutOfBounds creates an out-of-bounds index error.
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// Overflow creates an overflow error, e.g. a frame or table exceeding a
// fixed-width encoding.
func Overflow(phase Phase, path []string, value any, limit string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		Detail: fmt.Sprintf("value %v overflows %s", value, limit),
		Value:  value,
	}
}

// NotFound creates a not-found error, e.g. an unresolved label or function index.
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidData creates a generic structural-validity error.
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional phase/kind context.
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
