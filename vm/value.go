package vm

import (
	"sync/atomic"

	strix "github.com/strixvm/strix-go"
)

// Value is a non-owning reference to an engine-managed value. Validity is
// bounded by the owning context: using a Value after its context closes is
// undefined behavior, exactly as at the engine level.
type Value struct {
	ctx *Context
	ref strix.ValueRef
}

// Ref returns the raw engine ref.
func (v Value) Ref() strix.ValueRef { return v.ref }

// Context returns the owning context.
func (v Value) Context() *Context { return v.ctx }

// IsValid reports whether the value carries a live handle. The zero Value
// is not valid.
func (v Value) IsValid() bool { return v.ctx != nil && !v.ref.IsNull() }

// Kind classifies the value.
func (v Value) Kind() (strix.ValueKind, error) {
	return v.ctx.eng().Kind(v.ctx.ref, v.ref)
}

func (v Value) kindIs(want strix.ValueKind) bool {
	k, err := v.Kind()
	return err == nil && k == want
}

func (v Value) IsUndefined() bool { return v.kindIs(strix.KindUndefined) }
func (v Value) IsNull() bool      { return v.kindIs(strix.KindNull) }
func (v Value) IsBoolean() bool   { return v.kindIs(strix.KindBoolean) }
func (v Value) IsNumber() bool    { return v.kindIs(strix.KindNumber) }
func (v Value) IsString() bool    { return v.kindIs(strix.KindString) }
func (v Value) IsSymbol() bool    { return v.kindIs(strix.KindSymbol) }
func (v Value) IsObject() bool    { return v.kindIs(strix.KindObject) }

// StrictEquals compares with === semantics. This is the API's default
// comparison; it never raises a script exception.
func (v Value) StrictEquals(other Value) (bool, error) {
	return v.ctx.eng().IsStrictEqual(v.ctx.ref, v.ref, other.ref)
}

// LooseEquals compares with == semantics. Coercion may raise.
func (v Value) LooseEquals(other Value) (bool, error) {
	ok, exc, err := v.ctx.eng().IsLooseEqual(v.ctx.ref, v.ref, other.ref)
	if err := v.ctx.check(exc, err); err != nil {
		return false, err
	}
	return ok, nil
}

// InstanceOf answers `v instanceof ctor`, consulting the constructor's
// has-instance trap when one is registered.
func (v Value) InstanceOf(ctor Object) (bool, error) {
	ok, exc, err := v.ctx.eng().IsInstanceOf(v.ctx.ref, v.ref, ctor.ref)
	if err := v.ctx.check(exc, err); err != nil {
		return false, err
	}
	return ok, nil
}

// ToBoolean coerces per script truthiness. It cannot fail at script level.
func (v Value) ToBoolean() (bool, error) {
	return v.ctx.eng().ToBoolean(v.ctx.ref, v.ref)
}

// ToNumber coerces to a number. Symbols raise the engine's TypeError.
func (v Value) ToNumber() (float64, error) {
	n, exc, err := v.ctx.eng().ToNumber(v.ctx.ref, v.ref)
	if err := v.ctx.check(exc, err); err != nil {
		return 0, err
	}
	return n, nil
}

// ToString coerces to a string. Symbols raise the engine's TypeError.
func (v Value) ToString() (string, error) {
	s, exc, err := v.ctx.eng().ToString(v.ctx.ref, v.ref)
	if err := v.ctx.check(exc, err); err != nil {
		return "", err
	}
	return s, nil
}

// ToObject relabels the handle as an Object. No copy happens; the returned
// Object denotes the same underlying reference. Non-object values raise the
// engine's coercion exception.
func (v Value) ToObject() (Object, error) {
	ref, exc, err := v.ctx.eng().ToObject(v.ctx.ref, v.ref)
	if err := v.ctx.check(exc, err); err != nil {
		return Object{}, err
	}
	return Object{v.ctx.value(ref)}, nil
}

// ToJSON serializes the value. indent 0 produces compact output.
func (v Value) ToJSON(indent int) (string, error) {
	s, exc, err := v.ctx.eng().ToJSON(v.ctx.ref, v.ref, indent)
	if err := v.ctx.check(exc, err); err != nil {
		return "", err
	}
	return s, nil
}

// Protect roots the value against engine collection and returns the guard
// that undoes it. Root counts are counters: N live guards on the same value
// keep N roots, and the value stays collectible only once all are released.
func (v Value) Protect() (*Guard, error) {
	if err := v.ctx.eng().Protect(v.ctx.ref, v.ref); err != nil {
		return nil, err
	}
	return &Guard{v: v}, nil
}

// Guard is one root held on a value. Release drops it exactly once and is
// safe to defer on every exit path; double release is a no-op.
type Guard struct {
	v        Value
	released atomic.Bool
}

// Value returns the guarded value.
func (g *Guard) Value() Value { return g.v }

// Release drops the root. Only the first call reaches the engine.
func (g *Guard) Release() error {
	if g.released.Swap(true) {
		return nil
	}
	return g.v.ctx.eng().Unprotect(g.v.ctx.ref, g.v.ref)
}
