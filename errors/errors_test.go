package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseTranslate,
				Kind:   KindUnsupported,
				Path:   []string{"func 3", "block 2"},
				Op:     "f32.add",
				Detail: "floats are not supported",
			},
			contains: []string{"[translate]", "unsupported", "func 3.block 2", "f32.add", "floats are not supported"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseParse,
				Kind:  KindOutOfBounds,
			},
			contains: []string{"[parse]", "out_of_bounds"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseAssemble,
				Kind:   KindInternal,
				Detail: "fixup target missing",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[assemble]", "internal", "fixup target missing", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseParse,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseTranslate,
		Kind:  KindUnsupported,
		Path:  []string{"foo"},
	}

	if !err.Is(&Error{Phase: PhaseTranslate, Kind: KindUnsupported}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseParse, Kind: KindUnsupported}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseTranslate, Kind: KindOutOfBounds}) {
		t.Error("Is should not match different kind")
	}

	target := &Error{Phase: PhaseTranslate, Kind: KindUnsupported}
	if !errors.Is(err, target) {
		t.Error("errors.Is should match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseTranslate, KindUnsupported).
		Path("func 1").
		Op("f64.const").
		Value(3.14).
		Cause(cause).
		Detail("expected %s, got %s", "i32/i64", "f64").
		Build()

	if err.Phase != PhaseTranslate {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseTranslate)
	}
	if err.Kind != KindUnsupported {
		t.Errorf("Kind = %v, want %v", err.Kind, KindUnsupported)
	}
	if len(err.Path) != 1 || err.Path[0] != "func 1" {
		t.Errorf("Path = %v, want [func 1]", err.Path)
	}
	if err.Op != "f64.const" {
		t.Errorf("Op = %v, want f64.const", err.Op)
	}
	if err.Value != 3.14 {
		t.Errorf("Value = %v, want 3.14", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected i32/i64, got f64" {
		t.Errorf("Detail = %v, want 'expected i32/i64, got f64'", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("ParseFailed", func(t *testing.T) {
		cause := errors.New("bad magic")
		err := ParseFailed("header", cause)
		if err.Kind != KindInvalidData || err.Phase != PhaseParse {
			t.Errorf("Phase/Kind = %v/%v, want parse/invalid_data", err.Phase, err.Kind)
		}
		if !errors.Is(err.Cause, cause) {
			t.Errorf("Cause not preserved")
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		err := Unsupported(PhaseTranslate, "f32.add", "floats are rejected")
		if err.Kind != KindUnsupported {
			t.Errorf("Kind = %v, want %v", err.Kind, KindUnsupported)
		}
		if err.Op != "f32.add" {
			t.Errorf("Op = %v, want f32.add", err.Op)
		}
	})

	t.Run("NoExportedFunction", func(t *testing.T) {
		err := NoExportedFunction()
		if err.Kind != KindNoEntryPoint {
			t.Errorf("Kind = %v, want %v", err.Kind, KindNoEntryPoint)
		}
	})

	t.Run("Internal", func(t *testing.T) {
		err := Internal(PhaseTranslate, []string{"func 2"}, "phi predecessor mismatch")
		if err.Kind != KindInternal {
			t.Errorf("Kind = %v, want %v", err.Kind, KindInternal)
		}
	})

	t.Run("OutOfBounds", func(t *testing.T) {
		err := OutOfBounds(PhaseParse, []string{"list"}, 10, 5)
		if err.Kind != KindOutOfBounds {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOutOfBounds)
		}
		if err.Value != 10 {
			t.Errorf("Value = %v, want 10", err.Value)
		}
	})

	t.Run("Overflow", func(t *testing.T) {
		err := Overflow(PhaseAssemble, []string{"roData"}, 1<<25, "u24")
		if err.Kind != KindOverflow {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOverflow)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		err := NotFound(PhaseAssemble, "label", "block7")
		if err.Kind != KindNotFound {
			t.Errorf("Kind = %v, want %v", err.Kind, KindNotFound)
		}
	})
}
