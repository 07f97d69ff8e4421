// Package errors provides structured error types for the strix binding.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes rich context: a location path (function
// name, parameter name), Go/JS type names, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
//		Path("greet", "name").
//		GoType("string").
//		JSType("undefined").
//		Detail("cannot convert undefined to string").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.MissingArgument("greet", "name")
//	err := errors.TypeMismatch(errors.PhaseOwnership, path, "*HostState", "int")
//
// Script exceptions are not represented here: they travel as *vm.Exception,
// which wraps the original engine exception object. This package covers the
// host-side taxonomy only.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
