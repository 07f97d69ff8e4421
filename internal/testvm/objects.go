package testvm

import (
	strix "github.com/strixvm/strix-go"
	"github.com/strixvm/strix-go/errors"
)

func (e *Engine) setProp(obj *object, name string, v strix.ValueRef) {
	if _, exists := obj.props[name]; !exists {
		obj.keys = append(obj.keys, name)
	}
	obj.props[name] = v
}

func (e *Engine) deleteProp(obj *object, name string) bool {
	if _, exists := obj.props[name]; !exists {
		return false
	}
	delete(obj.props, name)
	for i, k := range obj.keys {
		if k == name {
			obj.keys = append(obj.keys[:i], obj.keys[i+1:]...)
			break
		}
	}
	return true
}

func (e *Engine) objOf(c strix.ContextRef, ref strix.ValueRef) (*object, strix.ValueRef, error) {
	rec, err := e.val(c, ref)
	if err != nil {
		return nil, 0, err
	}
	if rec.kind != strix.KindObject {
		exc, mkErr := e.MakeError(c, strix.TypeError, rec.kind.String()+" is not an object")
		return nil, exc, mkErr
	}
	return rec.obj, 0, nil
}

func (e *Engine) MakeObject(c strix.ContextRef, class strix.ClassRef, privateToken uint32) (strix.ValueRef, error) {
	if _, err := e.ctx(c); err != nil {
		return 0, err
	}
	obj := newObject()
	obj.class = class
	obj.priv = privateToken
	ref := e.put(c, &valueRec{kind: strix.KindObject, obj: obj})

	if cls, ok := e.classes[class]; ok && cls.def.Initializer != 0 {
		if hook, ok := e.hooks[cls.def.Initializer].(strix.InitializerFunc); ok {
			hook(c, ref)
		}
	}
	return ref, nil
}

// Property protocol. Lookup walks the prototype chain; writes always land
// on the receiver.

func (e *Engine) GetProperty(c strix.ContextRef, objRef strix.ValueRef, name string) (strix.ValueRef, strix.ValueRef, error) {
	obj, exc, err := e.objOf(c, objRef)
	if obj == nil {
		return 0, exc, err
	}
	for obj != nil {
		if v, ok := obj.props[name]; ok {
			return v, 0, nil
		}
		if obj.proto.IsNull() {
			break
		}
		next, err := e.val(c, obj.proto)
		if err != nil || next.kind != strix.KindObject {
			break
		}
		obj = next.obj
	}
	ref, err := e.MakeUndefined(c)
	return ref, 0, err
}

func (e *Engine) SetProperty(c strix.ContextRef, objRef strix.ValueRef, name string, v strix.ValueRef) (strix.ValueRef, error) {
	obj, exc, err := e.objOf(c, objRef)
	if obj == nil {
		return exc, err
	}
	if _, err := e.val(c, v); err != nil {
		return 0, err
	}
	e.setProp(obj, name, v)
	return 0, nil
}

func (e *Engine) HasProperty(c strix.ContextRef, objRef strix.ValueRef, name string) (bool, strix.ValueRef, error) {
	obj, exc, err := e.objOf(c, objRef)
	if obj == nil {
		return false, exc, err
	}
	for obj != nil {
		if _, ok := obj.props[name]; ok {
			return true, 0, nil
		}
		if obj.proto.IsNull() {
			break
		}
		next, err := e.val(c, obj.proto)
		if err != nil || next.kind != strix.KindObject {
			break
		}
		obj = next.obj
	}
	return false, 0, nil
}

func (e *Engine) DeleteProperty(c strix.ContextRef, objRef strix.ValueRef, name string) (bool, strix.ValueRef, error) {
	obj, exc, err := e.objOf(c, objRef)
	if obj == nil {
		return false, exc, err
	}
	return e.deleteProp(obj, name), 0, nil
}

// Key-addressed variants. String and number keys normalize to the string
// protocol; symbol keys live in their own map keyed by identity.

func (e *Engine) keyedName(c strix.ContextRef, key strix.ValueRef) (string, bool, strix.ValueRef, error) {
	rec, err := e.val(c, key)
	if err != nil {
		return "", false, 0, err
	}
	if rec.kind == strix.KindSymbol {
		return "", false, 0, nil
	}
	s, exc, err := e.ToString(c, key)
	if err != nil || !exc.IsNull() {
		return "", false, exc, err
	}
	return s, true, 0, nil
}

func (e *Engine) GetPropertyForKey(c strix.ContextRef, objRef, key strix.ValueRef) (strix.ValueRef, strix.ValueRef, error) {
	name, isString, exc, err := e.keyedName(c, key)
	if err != nil || !exc.IsNull() {
		return 0, exc, err
	}
	if isString {
		return e.GetProperty(c, objRef, name)
	}
	obj, exc, err := e.objOf(c, objRef)
	if obj == nil {
		return 0, exc, err
	}
	if v, ok := obj.symProps[key]; ok {
		return v, 0, nil
	}
	ref, err := e.MakeUndefined(c)
	return ref, 0, err
}

func (e *Engine) SetPropertyForKey(c strix.ContextRef, objRef, key, v strix.ValueRef) (strix.ValueRef, error) {
	name, isString, exc, err := e.keyedName(c, key)
	if err != nil || !exc.IsNull() {
		return exc, err
	}
	if isString {
		return e.SetProperty(c, objRef, name, v)
	}
	obj, exc, err := e.objOf(c, objRef)
	if obj == nil {
		return exc, err
	}
	obj.symProps[key] = v
	return 0, nil
}

func (e *Engine) HasPropertyForKey(c strix.ContextRef, objRef, key strix.ValueRef) (bool, strix.ValueRef, error) {
	name, isString, exc, err := e.keyedName(c, key)
	if err != nil || !exc.IsNull() {
		return false, exc, err
	}
	if isString {
		return e.HasProperty(c, objRef, name)
	}
	obj, exc, err := e.objOf(c, objRef)
	if obj == nil {
		return false, exc, err
	}
	_, ok := obj.symProps[key]
	return ok, 0, nil
}

func (e *Engine) DeletePropertyForKey(c strix.ContextRef, objRef, key strix.ValueRef) (bool, strix.ValueRef, error) {
	name, isString, exc, err := e.keyedName(c, key)
	if err != nil || !exc.IsNull() {
		return false, exc, err
	}
	if isString {
		return e.DeleteProperty(c, objRef, name)
	}
	obj, exc, err := e.objOf(c, objRef)
	if obj == nil {
		return false, exc, err
	}
	if _, ok := obj.symProps[key]; !ok {
		return false, 0, nil
	}
	delete(obj.symProps, key)
	return true, 0, nil
}

func (e *Engine) GetPropertyAtIndex(c strix.ContextRef, objRef strix.ValueRef, index uint32) (strix.ValueRef, strix.ValueRef, error) {
	return e.GetProperty(c, objRef, formatNumber(float64(index)))
}

func (e *Engine) SetPropertyAtIndex(c strix.ContextRef, objRef strix.ValueRef, index uint32, v strix.ValueRef) (strix.ValueRef, error) {
	return e.SetProperty(c, objRef, formatNumber(float64(index)), v)
}

func (e *Engine) PropertyNames(c strix.ContextRef, objRef strix.ValueRef) ([]string, error) {
	obj, _, err := e.objOf(c, objRef)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.InvalidInput(errors.PhaseEngine, "not an object")
	}
	names := make([]string, len(obj.keys))
	copy(names, obj.keys)
	return names, nil
}

func (e *Engine) GetPrototype(c strix.ContextRef, objRef strix.ValueRef) (strix.ValueRef, error) {
	obj, _, err := e.objOf(c, objRef)
	if err != nil {
		return 0, err
	}
	if obj == nil || obj.proto.IsNull() {
		return e.MakeNull(c)
	}
	return obj.proto, nil
}

func (e *Engine) SetPrototype(c strix.ContextRef, objRef, proto strix.ValueRef) error {
	obj, _, err := e.objOf(c, objRef)
	if err != nil {
		return err
	}
	if obj == nil {
		return errors.InvalidInput(errors.PhaseEngine, "not an object")
	}
	obj.proto = proto
	return nil
}

// Call and construct dispatch through the registered hook tables, exactly
// the path the production engine takes through the host import module.

func (e *Engine) Call(c strix.ContextRef, fnRef, thisRef strix.ValueRef, args []strix.ValueRef) (strix.ValueRef, strix.ValueRef, error) {
	obj, exc, err := e.objOf(c, fnRef)
	if obj == nil {
		return 0, exc, err
	}

	cb := obj.callback
	if cb == 0 {
		if cls, ok := e.classes[obj.class]; ok {
			cb = cls.def.CallAsFunction
		}
	}
	if cb == 0 {
		exc, mkErr := e.MakeError(c, strix.TypeError, "object is not a function")
		return 0, exc, mkErr
	}
	hook, ok := e.hooks[cb].(strix.CallbackFunc)
	if !ok {
		exc, mkErr := e.MakeError(c, strix.TypeError, "native hook is not registered")
		return 0, exc, mkErr
	}

	if thisRef.IsNull() {
		rec, err := e.ctx(c)
		if err != nil {
			return 0, 0, err
		}
		thisRef = rec.global
	}
	res, hookExc := hook(c, fnRef, thisRef, args)
	if !hookExc.IsNull() {
		return 0, hookExc, nil
	}
	if res.IsNull() {
		und, err := e.MakeUndefined(c)
		return und, 0, err
	}
	return res, 0, nil
}

func (e *Engine) Construct(c strix.ContextRef, ctorRef strix.ValueRef, args []strix.ValueRef) (strix.ValueRef, strix.ValueRef, error) {
	obj, exc, err := e.objOf(c, ctorRef)
	if obj == nil {
		return 0, exc, err
	}
	cls, ok := e.classes[obj.class]
	if !ok || cls.def.Constructor == 0 {
		exc, mkErr := e.MakeError(c, strix.TypeError, "object is not a constructor")
		return 0, exc, mkErr
	}
	hook, ok := e.hooks[cls.def.Constructor].(strix.ConstructorFunc)
	if !ok {
		exc, mkErr := e.MakeError(c, strix.TypeError, "native hook is not registered")
		return 0, exc, mkErr
	}

	res, hookExc := hook(c, ctorRef, args)
	if !hookExc.IsNull() {
		return 0, hookExc, nil
	}
	rec, err := e.val(c, res)
	if err != nil {
		return 0, 0, err
	}
	if rec.kind != strix.KindObject {
		exc, mkErr := e.MakeError(c, strix.TypeError, "constructor returned a non-object")
		return 0, exc, mkErr
	}
	return res, 0, nil
}

func (e *Engine) PrivateToken(c strix.ContextRef, objRef strix.ValueRef) (uint32, error) {
	obj, _, err := e.objOf(c, objRef)
	if err != nil {
		return 0, err
	}
	if obj == nil {
		return 0, errors.InvalidInput(errors.PhaseOwnership, "not an object")
	}
	return obj.priv, nil
}

func (e *Engine) SetPrivateToken(c strix.ContextRef, objRef strix.ValueRef, token uint32) error {
	obj, _, err := e.objOf(c, objRef)
	if err != nil {
		return err
	}
	if obj == nil {
		return errors.InvalidInput(errors.PhaseOwnership, "not an object")
	}
	obj.priv = token
	return nil
}
