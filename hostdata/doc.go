// Package hostdata parks host-owned Go values behind uint32 tokens so they
// can cross the engine boundary without either side dereferencing the
// other's pointers.
//
// The engine's private-data and context-data slots store plain u32 words.
// This package supplies the host half of that bridge: Table hands out tokens
// for values attached to object lifetimes, and Slot is the single-value
// store behind a context's shared data. Both record the stored value's
// dynamic type, so the generic accessors (GetTyped, TakeTyped, SlotValue,
// SlotTake) turn a mismatched retrieval into a checked type_mismatch error
// instead of undefined behavior.
//
// Ownership rules:
//
//   - Put parks a value; the table owns it until Take or Drop.
//   - Take transfers ownership back to the caller.
//   - Drop destroys the entry, invoking Release on values implementing
//     Releaser. Object finalizers and value replacement use this path.
//
// Tables are safe for concurrent use because engine collection can fire
// finalizers during any guest call.
package hostdata
