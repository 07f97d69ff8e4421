package errors

import (
	"errors"
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
				Phase:  PhaseMarshal,
				Kind:   KindTypeMismatch,
				Path:   []string{"greet", "name"},
				GoType: "string",
				JSType: "undefined",
				Detail: "cannot convert",
			},
			contains: []string{"[marshal]", "type_mismatch", "greet.name", "string", "undefined", "cannot convert"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseEval,
				Kind:  KindInvalidInput,
			},
			contains: []string{"[eval]", "invalid_input"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseEngine,
				Kind:   KindTrap,
				Detail: "strix_call",
				Cause:  errors.New("unreachable executed"),
			},
			contains: []string{"[engine]", "trap", "strix_call", "caused by", "unreachable executed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !containsSubstring(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseEngine,
		Kind:  KindInstantiation,
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
		Phase: PhaseMarshal,
		Kind:  KindMissingArgument,
		Path:  []string{"foo"},
	}

	if !err.Is(&Error{Phase: PhaseMarshal, Kind: KindMissingArgument}) {
		t.Error("Is should match same phase and kind")
	}

	if err.Is(&Error{Phase: PhaseCall, Kind: KindMissingArgument}) {
		t.Error("Is should not match different phase")
	}

	if err.Is(&Error{Phase: PhaseMarshal, Kind: KindTypeMismatch}) {
		t.Error("Is should not match different kind")
	}

	target := &Error{Phase: PhaseMarshal, Kind: KindMissingArgument}
	if !errors.Is(err, target) {
		t.Error("errors.Is should match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseMarshal, KindTypeMismatch).
		Path("greet", "count").
		GoType("float64").
		JSType("string").
		Value("seven").
		Cause(cause).
		Detail("expected %s, got %s", "number", "string").
		Build()

	if err.Phase != PhaseMarshal {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseMarshal)
	}
	if err.Kind != KindTypeMismatch {
		t.Errorf("Kind = %v, want %v", err.Kind, KindTypeMismatch)
	}
	if len(err.Path) != 2 || err.Path[0] != "greet" || err.Path[1] != "count" {
		t.Errorf("Path = %v, want [greet count]", err.Path)
	}
	if err.GoType != "float64" {
		t.Errorf("GoType = %v, want 'float64'", err.GoType)
	}
	if err.JSType != "string" {
		t.Errorf("JSType = %v, want 'string'", err.JSType)
	}
	if err.Value != "seven" {
		t.Errorf("Value = %v, want 'seven'", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected number, got string" {
		t.Errorf("Detail = %v, want 'expected number, got string'", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("TypeMismatch", func(t *testing.T) {
		err := TypeMismatch(PhaseOwnership, []string{"shared"}, "*HostState", "int")
		if err.Kind != KindTypeMismatch {
			t.Errorf("Kind = %v, want %v", err.Kind, KindTypeMismatch)
		}
		if err.GoType != "*HostState" || err.JSType != "int" {
			t.Errorf("GoType=%v JSType=%v", err.GoType, err.JSType)
		}
	})

	t.Run("MissingArgument", func(t *testing.T) {
		err := MissingArgument("greet", "name")
		if err.Kind != KindMissingArgument {
			t.Errorf("Kind = %v, want %v", err.Kind, KindMissingArgument)
		}
		if err.Phase != PhaseMarshal {
			t.Errorf("Phase = %v, want %v", err.Phase, PhaseMarshal)
		}
		msg := err.Error()
		if !containsSubstring(msg, "greet") || !containsSubstring(msg, "name") {
			t.Errorf("message %q should name function and parameter", msg)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		err := NotFound(PhaseModule, "module", "./missing.js")
		if err.Kind != KindNotFound {
			t.Errorf("Kind = %v, want %v", err.Kind, KindNotFound)
		}
		if !containsSubstring(err.Detail, "./missing.js") {
			t.Errorf("Detail = %v, should contain name", err.Detail)
		}
	})

	t.Run("NotInitialized", func(t *testing.T) {
		err := NotInitialized(PhaseEngine, "engine instance")
		if err.Kind != KindNotInitialized {
			t.Errorf("Kind = %v, want %v", err.Kind, KindNotInitialized)
		}
	})

	t.Run("Closed", func(t *testing.T) {
		err := Closed(PhaseEval, "context")
		if err.Kind != KindClosed {
			t.Errorf("Kind = %v, want %v", err.Kind, KindClosed)
		}
		if !containsSubstring(err.Detail, "context") {
			t.Errorf("Detail = %v, should name component", err.Detail)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		err := Unsupported(PhaseMarshal, "parameter type chan int")
		if err.Kind != KindUnsupported {
			t.Errorf("Kind = %v, want %v", err.Kind, KindUnsupported)
		}
	})

	t.Run("Registration", func(t *testing.T) {
		cause := errors.New("bad hook")
		err := Registration(PhaseClass, "class", "Point", cause)
		if err.Kind != KindRegistration {
			t.Errorf("Kind = %v, want %v", err.Kind, KindRegistration)
		}
		if !errors.Is(err, &Error{Phase: PhaseClass, Kind: KindRegistration}) {
			t.Error("errors.Is should match phase and kind")
		}
		if !errors.Is(err.Cause, cause) {
			t.Error("cause not preserved")
		}
	})

	t.Run("Trap", func(t *testing.T) {
		err := Trap("strix_evaluate_script", errors.New("stack overflow"))
		if err.Kind != KindTrap {
			t.Errorf("Kind = %v, want %v", err.Kind, KindTrap)
		}
		if err.Phase != PhaseEngine {
			t.Errorf("Phase = %v, want %v", err.Phase, PhaseEngine)
		}
	})

	t.Run("AllocationFailed", func(t *testing.T) {
		err := AllocationFailed(1024)
		if err.Kind != KindAllocation {
			t.Errorf("Kind = %v, want %v", err.Kind, KindAllocation)
		}
		if !containsSubstring(err.Detail, "1024") {
			t.Errorf("Detail = %v, should contain size", err.Detail)
		}
	})
}

func TestMissingExportsError(t *testing.T) {
	t.Run("single export", func(t *testing.T) {
		err := NewMissingExportsError([]string{"strix_context_new"})
		if len(err.Exports) != 1 {
			t.Errorf("expected 1 export, got %d", len(err.Exports))
		}
		msg := err.Error()
		if !containsSubstring(msg, "strix_context_new") {
			t.Errorf("error should contain export name, got: %s", msg)
		}
	})

	t.Run("multiple exports", func(t *testing.T) {
		err := NewMissingExportsError([]string{
			"strix_value_protect",
			"strix_value_unprotect",
		})
		msg := err.Error()
		if !containsSubstring(msg, "2") {
			t.Errorf("error should contain count, got: %s", msg)
		}
		if !containsSubstring(msg, "strix_value_protect") || !containsSubstring(msg, "strix_value_unprotect") {
			t.Errorf("error should list every export, got: %s", msg)
		}
	})

	t.Run("empty exports", func(t *testing.T) {
		err := NewMissingExportsError(nil)
		if !containsSubstring(err.Error(), "no exports specified") {
			t.Errorf("empty error should have specific message, got: %s", err.Error())
		}
	})

	t.Run("errors.Is", func(t *testing.T) {
		err := NewMissingExportsError([]string{"strix_alloc"})
		if !errors.Is(err, &MissingExportsError{}) {
			t.Error("errors.Is should match MissingExportsError")
		}
	})
}

func containsSubstring(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(substr) == 0 ||
		(len(s) > 0 && containsSubstringHelper(s, substr)))
}

func containsSubstringHelper(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
