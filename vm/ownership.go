package vm

import (
	strix "github.com/strixvm/strix-go"
	"github.com/strixvm/strix-go/errors"
	"github.com/strixvm/strix-go/hostdata"
)

// Private and shared data both live in host-side typed storage; the engine
// only ever sees opaque tokens. Retrieval with a mismatched type is a
// checked type_mismatch error, never a reinterpretation.

// SetPrivate stores v as obj's private data and reports whether it replaced
// an existing value. Replacement is a documented contract: the previous
// entry leaves the table and is reclaimed by the Go garbage collector, so
// callers that hold external resources in private data should TakePrivate
// first when they need an explicit release.
func SetPrivate[T any](obj Object, v T) (replaced bool, err error) {
	rt := obj.ctx.rt
	old, err := obj.ctx.eng().PrivateToken(obj.ctx.ref, obj.ref)
	if err != nil {
		return false, err
	}

	tok := rt.priv.Put(v)
	if tok == 0 {
		return false, errors.Closed(errors.PhaseOwnership, "private data table")
	}
	if err := obj.ctx.eng().SetPrivateToken(obj.ctx.ref, obj.ref, uint32(tok)); err != nil {
		rt.priv.Take(tok)
		return false, err
	}

	if old != 0 {
		_, replaced = rt.priv.Take(hostdata.Token(old))
	}
	return replaced, nil
}

// Private reads obj's private data as T without transferring ownership. The
// second result is false when no private data is set.
func Private[T any](obj Object) (T, bool, error) {
	var zero T
	tok, err := obj.ctx.eng().PrivateToken(obj.ctx.ref, obj.ref)
	if err != nil || tok == 0 {
		return zero, false, err
	}
	v, err := hostdata.GetTyped[T](obj.ctx.rt.priv, hostdata.Token(tok))
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// TakePrivate transfers obj's private data back to the caller and clears the
// slot. A later collection of obj then finds nothing to release.
func TakePrivate[T any](obj Object) (T, bool, error) {
	var zero T
	tok, err := obj.ctx.eng().PrivateToken(obj.ctx.ref, obj.ref)
	if err != nil || tok == 0 {
		return zero, false, err
	}

	v, err := hostdata.TakeTyped[T](obj.ctx.rt.priv, hostdata.Token(tok))
	if err != nil {
		return zero, false, err
	}
	if err := obj.ctx.eng().SetPrivateToken(obj.ctx.ref, obj.ref, 0); err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// SetShared stores v in the context's single shared-data slot, reporting
// whether it replaced an existing value. The replaced value returns to the
// Go garbage collector.
func SetShared[T any](c *Context, v T) (replaced bool) {
	return c.shared.Set(v)
}

// Shared reads the context's shared data as T without taking ownership.
// False means the slot is empty; a populated slot of another type is a
// type_mismatch error.
func Shared[T any](c *Context) (T, bool, error) {
	return hostdata.SlotValue[T](&c.shared)
}

// TakeShared empties the slot and returns its value as T.
func TakeShared[T any](c *Context) (T, bool, error) {
	return hostdata.SlotTake[T](&c.shared)
}

// privateFinalizer builds the ABI finalizer every class registers: it takes
// the dying instance's private entry out of the runtime table so unclaimed
// private data is reclaimed instead of leaking, then hands the value to the
// user finalizer when the class declares one. Finalizers run during engine
// collection with no context and no exception channel.
func privateFinalizer(rt *Runtime, user func(data any)) strix.FinalizerFunc {
	return func(_ strix.ValueRef, privateToken uint32) {
		var data any
		if privateToken != 0 {
			data, _ = rt.priv.Take(hostdata.Token(privateToken))
		}
		if user != nil {
			user(data)
		}
	}
}
