// Package engine drives the strix.wasm artifact through wazero and exposes
// it as the strix.Engine contract.
//
// # Transport
//
// Every operation is one exported guest function. Refs cross the boundary
// as u32s, numbers as f64s, and strings as (ptr, len) pairs the host writes
// through the engine's strix_alloc export and frees after the call. Strings
// coming back are NUL-terminated, engine-allocated, and released with
// strix_free_cstr once copied out.
//
// Fallible operations carry a 4-byte exception cell the host allocates and
// zeroes per call. The engine writes a value ref into the cell when script
// throws; the cell staying zero means success. Traps, allocation failures
// and use after Close surface as *errors.Error on the Go error return and
// never mix with the exception channel.
//
// # Callbacks
//
// The artifact imports its host entry points from the strix_host namespace.
// Each import carries a callback ID that RegisterHook issued earlier; the
// dispatcher resolves the ID against a typed table and invokes the Go hook.
// Host hooks run on the goroutine that entered the engine, nested inside
// the guest call frame, and may call back into the engine.
package engine
