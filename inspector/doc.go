// Package inspector bridges a vm.Context's debugger surface to Go callers:
// an opaque protocol message pipe, pause lifecycle events, and a driver for
// servicing pause sessions from inside the engine's pause callback.
//
// The engine fires every inspector callback synchronously on the goroutine
// that owns the context and creates no goroutines of its own. Handlers
// installed through this package therefore run on the context goroutine;
// cross-goroutine observers consume the session's channels instead of
// touching the context.
package inspector
