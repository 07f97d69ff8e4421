package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseContext   Phase = "context"   // context and group lifecycle
	PhaseMarshal   Phase = "marshal"   // argument marshaling
	PhaseCall      Phase = "call"      // function/constructor invocation
	PhaseEval      Phase = "eval"      // script evaluation
	PhaseModule    Phase = "module"    // module loading and hooks
	PhaseClass     Phase = "class"     // class registration
	PhaseOwnership Phase = "ownership" // private/shared data, rooting
	PhaseInspector Phase = "inspector" // debugger bridge
	PhaseEngine    Phase = "engine"    // engine transport (wazero instance)
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch    Kind = "type_mismatch"
	KindMissingArgument Kind = "missing_argument"
	KindInvalidInput    Kind = "invalid_input"
	KindUnsupported     Kind = "unsupported"
	KindNotFound        Kind = "not_found"
	KindNotInitialized  Kind = "not_initialized"
	KindClosed          Kind = "closed"
	KindMissingExport   Kind = "missing_export"
	KindTrap            Kind = "trap"
	KindRegistration    Kind = "registration"
	KindInstantiation   Kind = "instantiation"
	KindAllocation      Kind = "allocation"
	KindInternal        Kind = "internal"
)

// Error is the structured error type used throughout the binding
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	GoType string
	JSType string
	Detail string
	Path   []string
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

	if e.GoType != "" || e.JSType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.JSType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", JS type ")
			b.WriteString(e.JSType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("JS type ")
			b.WriteString(e.JSType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.JSType != "" {
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

// Path sets the location path, outermost element first
// (e.g. function name, then parameter name)
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// JSType sets the script-side type name
func (b *Builder) JSType(t string) *Builder {
	b.err.JSType = t
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

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, jsType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   path,
		GoType: goType,
		JSType: jsType,
	}
}

// MissingArgument creates the marshaling error for an absent required
// argument, addressed by function and parameter name
func MissingArgument(funcName, paramName string) *Error {
	return &Error{
		Phase:  PhaseMarshal,
		Kind:   KindMissingArgument,
		Path:   []string{funcName, paramName},
		Detail: fmt.Sprintf("required argument %q absent", paramName),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// NotInitialized creates a not-initialized error for a missing component
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// Closed creates an error for use of a released component
func Closed(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", component),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Registration creates a hook/class registration error
func Registration(phase Phase, what, name string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s %q", what, name),
		Cause:  cause,
	}
}

// Instantiation creates an engine instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseEngine,
		Kind:   KindInstantiation,
		Detail: "instantiate engine module",
		Cause:  cause,
	}
}

// Trap wraps a guest trap raised during op
func Trap(op string, cause error) *Error {
	return &Error{
		Phase:  PhaseEngine,
		Kind:   KindTrap,
		Detail: op,
		Cause:  cause,
	}
}

// AllocationFailed creates a guest allocation failure error
func AllocationFailed(size uint32) *Error {
	return &Error{
		Phase:  PhaseEngine,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes in guest memory", size),
	}
}

// Internal creates an invariant-violation error
func Internal(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInternal,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingExportsError is returned when the engine artifact lacks required
// exports, aggregated so one load attempt reports every gap at once
type MissingExportsError struct {
	Exports []string
}

// NewMissingExportsError creates an error from the absent export names
func NewMissingExportsError(exports []string) *MissingExportsError {
	return &MissingExportsError{Exports: exports}
}

func (e *MissingExportsError) Error() string {
	if len(e.Exports) == 0 {
		return "[engine] missing_export: no exports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("engine artifact is missing %d required export(s):\n", len(e.Exports)))
	for _, name := range e.Exports {
		b.WriteString("  - ")
		b.WriteString(name)
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingExportsError) Is(target error) bool {
	_, ok := target.(*MissingExportsError)
	return ok
}
