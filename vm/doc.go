// Package vm is the typed embedding surface over a strix engine: contexts,
// values, objects, classes, and the trampolines that adapt Go functions to
// the engine's fixed callback shapes.
//
// Every fallible engine operation follows a two-channel convention, a result
// plus an exception out-cell. This package collapses the pair into one Go
// result: script exceptions surface as *Exception, transport faults as
// structured errors, and no call site can observe both a value and an
// exception.
//
// A context and everything obtained from it belong to the goroutine that
// created it. The engine re-enters the host synchronously through registered
// hooks, so no locking can substitute for that contract; see the inspector
// package for the supported cross-goroutine coordination pattern.
package vm
