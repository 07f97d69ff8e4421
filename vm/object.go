package vm

import (
	strix "github.com/strixvm/strix-go"
)

// Object is a Value known to denote an object. It is a relabeled view over
// the same handle: Object.Value and Value.ToObject never copy or reallocate.
//
// Every property operation follows the engine's two-phase protocol: the
// underlying call reports through an exception out-cell, and a non-null cell
// surfaces as *Exception instead of a result.
type Object struct {
	Value
}

// AsValue returns the object as a plain Value denoting the same reference.
func (o Object) AsValue() Value { return o.Value }

// Get reads the property name.
func (o Object) Get(name string) (Value, error) {
	res, exc, err := o.ctx.eng().GetProperty(o.ctx.ref, o.ref, name)
	if err := o.ctx.check(exc, err); err != nil {
		return Value{}, err
	}
	return o.ctx.value(res), nil
}

// Set writes the property name.
func (o Object) Set(name string, v Value) error {
	exc, err := o.ctx.eng().SetProperty(o.ctx.ref, o.ref, name, v.ref)
	return o.ctx.check(exc, err)
}

// Has reports whether name resolves on the object or its prototype chain.
func (o Object) Has(name string) (bool, error) {
	ok, exc, err := o.ctx.eng().HasProperty(o.ctx.ref, o.ref, name)
	if err := o.ctx.check(exc, err); err != nil {
		return false, err
	}
	return ok, nil
}

// Delete removes the property name, reporting whether the deletion took.
func (o Object) Delete(name string) (bool, error) {
	ok, exc, err := o.ctx.eng().DeleteProperty(o.ctx.ref, o.ref, name)
	if err := o.ctx.check(exc, err); err != nil {
		return false, err
	}
	return ok, nil
}

// GetKey reads the property under an arbitrary Value key, symbols included.
func (o Object) GetKey(key Value) (Value, error) {
	res, exc, err := o.ctx.eng().GetPropertyForKey(o.ctx.ref, o.ref, key.ref)
	if err := o.ctx.check(exc, err); err != nil {
		return Value{}, err
	}
	return o.ctx.value(res), nil
}

// SetKey writes the property under an arbitrary Value key.
func (o Object) SetKey(key, v Value) error {
	exc, err := o.ctx.eng().SetPropertyForKey(o.ctx.ref, o.ref, key.ref, v.ref)
	return o.ctx.check(exc, err)
}

// HasKey reports whether the Value key resolves.
func (o Object) HasKey(key Value) (bool, error) {
	ok, exc, err := o.ctx.eng().HasPropertyForKey(o.ctx.ref, o.ref, key.ref)
	if err := o.ctx.check(exc, err); err != nil {
		return false, err
	}
	return ok, nil
}

// DeleteKey removes the property under the Value key.
func (o Object) DeleteKey(key Value) (bool, error) {
	ok, exc, err := o.ctx.eng().DeletePropertyForKey(o.ctx.ref, o.ref, key.ref)
	if err := o.ctx.check(exc, err); err != nil {
		return false, err
	}
	return ok, nil
}

// GetIndex reads the numeric property index.
func (o Object) GetIndex(index uint32) (Value, error) {
	res, exc, err := o.ctx.eng().GetPropertyAtIndex(o.ctx.ref, o.ref, index)
	if err := o.ctx.check(exc, err); err != nil {
		return Value{}, err
	}
	return o.ctx.value(res), nil
}

// SetIndex writes the numeric property index.
func (o Object) SetIndex(index uint32, v Value) error {
	exc, err := o.ctx.eng().SetPropertyAtIndex(o.ctx.ref, o.ref, index, v.ref)
	return o.ctx.check(exc, err)
}

// PropertyNames lists the object's enumerable own property names.
func (o Object) PropertyNames() ([]string, error) {
	return o.ctx.eng().PropertyNames(o.ctx.ref, o.ref)
}

// Prototype returns the object's prototype link.
func (o Object) Prototype() (Value, error) {
	res, err := o.ctx.eng().GetPrototype(o.ctx.ref, o.ref)
	if err != nil {
		return Value{}, err
	}
	return o.ctx.value(res), nil
}

// SetPrototype rewrites the object's prototype link.
func (o Object) SetPrototype(proto Value) error {
	return o.ctx.eng().SetPrototype(o.ctx.ref, o.ref, proto.ref)
}

// Call invokes the object as a function. A nil this calls with the global
// receiver.
func (o Object) Call(this *Object, args ...Value) (Value, error) {
	var thisRef strix.ValueRef
	if this != nil {
		thisRef = this.ref
	}
	res, exc, err := o.ctx.eng().Call(o.ctx.ref, o.ref, thisRef, refsOf(args))
	if err := o.ctx.check(exc, err); err != nil {
		return Value{}, err
	}
	return o.ctx.value(res), nil
}

// Construct invokes the object as a constructor. On success the result is
// guaranteed to denote a freshly constructed object.
func (o Object) Construct(args ...Value) (Object, error) {
	res, exc, err := o.ctx.eng().Construct(o.ctx.ref, o.ref, refsOf(args))
	if err := o.ctx.check(exc, err); err != nil {
		return Object{}, err
	}
	return Object{o.ctx.value(res)}, nil
}

func refsOf(args []Value) []strix.ValueRef {
	if len(args) == 0 {
		return nil
	}
	refs := make([]strix.ValueRef, len(args))
	for i, a := range args {
		refs[i] = a.ref
	}
	return refs
}
