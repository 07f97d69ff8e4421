// Package strix defines the engine contract for embedding the Strix
// JavaScript engine, a C-ABI virtual machine compiled to WebAssembly.
//
// This root package is the boundary between the typed embedding layer and
// whatever actually executes script: it declares the raw handle types, the
// Engine interface over the engine's exported call surface, and the hook
// shapes the engine invokes back into the host. It imports nothing beyond
// the standard library so higher layers stay engine-agnostic.
//
// # Architecture Overview
//
// The library is organized into packages with distinct responsibilities:
//
//	strix/               Root package with refs, the Engine interface, hook shapes
//	├── engine/          wazero-backed Engine running the strix.wasm artifact
//	├── vm/              Typed handle model: Context, Value, Object, Class,
//	│                    exception channel, ownership bridge, trampolines
//	├── inspector/       Debugger protocol pipe and pause-event bridge
//	├── hostdata/        Typed token tables for host-owned state
//	├── errors/          Structured error types for debugging
//	└── cmd/strix/       CLI runner and interactive debugger TUI
//
// # Quick Start
//
// Load an engine and evaluate script:
//
//	eng, err := engine.NewFromFile(ctx, "strix.wasm", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(ctx)
//
//	rt := vm.NewRuntime(eng)
//	defer rt.Close()
//
//	jsCtx, err := rt.NewContext()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := jsCtx.EvaluateScript(`6 * 7`)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	n, _ := result.ToNumber()
//	fmt.Println(n) // 42
//
// # Calling Convention
//
// Every fallible engine operation follows a two-channel convention inherited
// from the engine's C ABI: the ordinary result plus an exception ValueRef
// written through an out-cell. Methods on Engine surface the exception ref
// explicitly; the vm package collapses the pair into a single typed result so
// no call site can observe both a value and an exception. The trailing Go
// error is reserved for transport faults (closed instance, missing export,
// trap), never for script exceptions.
//
// # Thread Contract
//
// A context, and every callback the engine fires on its behalf, belongs to
// the goroutine that created it. The binding does not lock around this
// contract. Cross-goroutine coordination goes through the inspector package's
// channels; other goroutines never touch refs directly.
//
// # Memory Regimes
//
// Two independently managed heaps interoperate here: the engine's traced
// heap inside the WASM instance and Go's garbage-collected host heap. Host
// values crossing into engine-managed lifetimes travel as opaque uint32
// tokens into tables owned by the host (package hostdata); engine values
// held beyond their natural reachability are rooted with Protect/Unprotect.
// Neither side ever dereferences the other's pointers.
package strix
