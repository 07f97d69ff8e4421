package engine

import (
	"encoding/json"

	strix "github.com/strixvm/strix-go"
	"github.com/strixvm/strix-go/errors"
	"github.com/strixvm/strix-go/hostdata"
)

// MakeObject instantiates class, seeding the private slot with privateToken.
// A null class produces a plain object; a zero token leaves the slot empty.
func (e *WazeroEngine) MakeObject(c strix.ContextRef, class strix.ClassRef, privateToken uint32) (strix.ValueRef, error) {
	res, err := e.invoke1(expObjectMake, uint64(c), uint64(class), uint64(privateToken))
	if err != nil {
		return 0, err
	}
	return strix.ValueRef(res), nil
}

func (e *WazeroEngine) GetProperty(c strix.ContextRef, obj strix.ValueRef, name string) (strix.ValueRef, strix.ValueRef, error) {
	g, err := e.writeString(name)
	if err != nil {
		return 0, 0, err
	}
	defer e.freeStr(g)

	res, exc, err := e.callWithExc(expObjectGet, uint64(c), uint64(obj), uint64(g.ptr), uint64(g.size))
	if err != nil {
		return 0, 0, err
	}
	return strix.ValueRef(res), exc, nil
}

func (e *WazeroEngine) SetProperty(c strix.ContextRef, obj strix.ValueRef, name string, v strix.ValueRef) (strix.ValueRef, error) {
	g, err := e.writeString(name)
	if err != nil {
		return 0, err
	}
	defer e.freeStr(g)

	return e.call0WithExc(expObjectSet, uint64(c), uint64(obj), uint64(g.ptr), uint64(g.size), uint64(v))
}

func (e *WazeroEngine) HasProperty(c strix.ContextRef, obj strix.ValueRef, name string) (bool, strix.ValueRef, error) {
	g, err := e.writeString(name)
	if err != nil {
		return false, 0, err
	}
	defer e.freeStr(g)

	res, exc, err := e.callWithExc(expObjectHas, uint64(c), uint64(obj), uint64(g.ptr), uint64(g.size))
	if err != nil {
		return false, 0, err
	}
	return res != 0, exc, nil
}

func (e *WazeroEngine) DeleteProperty(c strix.ContextRef, obj strix.ValueRef, name string) (bool, strix.ValueRef, error) {
	g, err := e.writeString(name)
	if err != nil {
		return false, 0, err
	}
	defer e.freeStr(g)

	res, exc, err := e.callWithExc(expObjectDelete, uint64(c), uint64(obj), uint64(g.ptr), uint64(g.size))
	if err != nil {
		return false, 0, err
	}
	return res != 0, exc, nil
}

// Key-addressed property access. The key is an arbitrary value ref, which is
// how symbol-keyed properties are reached.

func (e *WazeroEngine) GetPropertyForKey(c strix.ContextRef, obj, key strix.ValueRef) (strix.ValueRef, strix.ValueRef, error) {
	res, exc, err := e.callWithExc(expObjectGetKey, uint64(c), uint64(obj), uint64(key))
	if err != nil {
		return 0, 0, err
	}
	return strix.ValueRef(res), exc, nil
}

func (e *WazeroEngine) SetPropertyForKey(c strix.ContextRef, obj, key, v strix.ValueRef) (strix.ValueRef, error) {
	return e.call0WithExc(expObjectSetKey, uint64(c), uint64(obj), uint64(key), uint64(v))
}

func (e *WazeroEngine) HasPropertyForKey(c strix.ContextRef, obj, key strix.ValueRef) (bool, strix.ValueRef, error) {
	res, exc, err := e.callWithExc(expObjectHasKey, uint64(c), uint64(obj), uint64(key))
	if err != nil {
		return false, 0, err
	}
	return res != 0, exc, nil
}

func (e *WazeroEngine) DeletePropertyForKey(c strix.ContextRef, obj, key strix.ValueRef) (bool, strix.ValueRef, error) {
	res, exc, err := e.callWithExc(expObjectDeleteKey, uint64(c), uint64(obj), uint64(key))
	if err != nil {
		return false, 0, err
	}
	return res != 0, exc, nil
}

func (e *WazeroEngine) GetPropertyAtIndex(c strix.ContextRef, obj strix.ValueRef, index uint32) (strix.ValueRef, strix.ValueRef, error) {
	res, exc, err := e.callWithExc(expObjectGetIndex, uint64(c), uint64(obj), uint64(index))
	if err != nil {
		return 0, 0, err
	}
	return strix.ValueRef(res), exc, nil
}

func (e *WazeroEngine) SetPropertyAtIndex(c strix.ContextRef, obj strix.ValueRef, index uint32, v strix.ValueRef) (strix.ValueRef, error) {
	return e.call0WithExc(expObjectSetIndex, uint64(c), uint64(obj), uint64(index), uint64(v))
}

// PropertyNames returns the object's enumerable own property names. The
// engine reports them as one JSON array to keep the crossing count flat.
func (e *WazeroEngine) PropertyNames(c strix.ContextRef, obj strix.ValueRef) ([]string, error) {
	res, err := e.invoke1(expPropertyNames, uint64(c), uint64(obj))
	if err != nil {
		return nil, err
	}
	raw, err := e.takeCString(uint32(res))
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindInternal, err, "decode property names")
	}
	return names, nil
}

func (e *WazeroEngine) GetPrototype(c strix.ContextRef, obj strix.ValueRef) (strix.ValueRef, error) {
	res, err := e.invoke1(expPrototype, uint64(c), uint64(obj))
	if err != nil {
		return 0, err
	}
	return strix.ValueRef(res), nil
}

func (e *WazeroEngine) SetPrototype(c strix.ContextRef, obj, proto strix.ValueRef) error {
	return e.invoke0(expSetPrototype, uint64(c), uint64(obj), uint64(proto))
}

func (e *WazeroEngine) Call(c strix.ContextRef, fn, this strix.ValueRef, args []strix.ValueRef) (strix.ValueRef, strix.ValueRef, error) {
	argv, err := e.writeRefs(args)
	if err != nil {
		return 0, 0, err
	}
	defer e.freeStr(argv)

	res, exc, err := e.callWithExc(expCall,
		uint64(c), uint64(fn), uint64(this),
		uint64(argv.ptr), uint64(len(args)))
	if err != nil {
		return 0, 0, err
	}
	return strix.ValueRef(res), exc, nil
}

// Construct invokes ctor with `new` semantics. On success the returned ref
// is the freshly constructed object, never a reused one.
func (e *WazeroEngine) Construct(c strix.ContextRef, ctor strix.ValueRef, args []strix.ValueRef) (strix.ValueRef, strix.ValueRef, error) {
	argv, err := e.writeRefs(args)
	if err != nil {
		return 0, 0, err
	}
	defer e.freeStr(argv)

	res, exc, err := e.callWithExc(expConstruct,
		uint64(c), uint64(ctor),
		uint64(argv.ptr), uint64(len(args)))
	if err != nil {
		return 0, 0, err
	}
	return strix.ValueRef(res), exc, nil
}

func (e *WazeroEngine) PrivateToken(c strix.ContextRef, obj strix.ValueRef) (uint32, error) {
	res, err := e.invoke1(expPrivateToken, uint64(c), uint64(obj))
	if err != nil {
		return 0, err
	}
	return uint32(res), nil
}

// SetPrivateToken overwrites the object's private slot. The engine does not
// report the previous token; callers that own data behind tokens must read
// PrivateToken first or track replacement themselves.
func (e *WazeroEngine) SetPrivateToken(c strix.ContextRef, obj strix.ValueRef, token uint32) error {
	return e.invoke0(expSetPrivateToken, uint64(c), uint64(obj), uint64(token))
}

// RegisterClass validates the definition's callback IDs against the hook
// table before handing it to the engine, so a mistyped ID fails at
// registration rather than at first instantiation.
func (e *WazeroEngine) RegisterClass(def strix.ClassDef) (strix.ClassRef, error) {
	if err := e.checkHookID(def.Constructor, hookShapeConstructor); err != nil {
		return 0, errors.Registration(errors.PhaseClass, "class", def.Name, err)
	}
	if err := e.checkHookID(def.CallAsFunction, hookShapeCallback); err != nil {
		return 0, errors.Registration(errors.PhaseClass, "class", def.Name, err)
	}
	if err := e.checkHookID(def.Initializer, hookShapeInitializer); err != nil {
		return 0, errors.Registration(errors.PhaseClass, "class", def.Name, err)
	}
	if err := e.checkHookID(def.Finalizer, hookShapeFinalizer); err != nil {
		return 0, errors.Registration(errors.PhaseClass, "class", def.Name, err)
	}
	if err := e.checkHookID(def.HasInstance, hookShapeHasInstance); err != nil {
		return 0, errors.Registration(errors.PhaseClass, "class", def.Name, err)
	}

	g, err := e.writeString(def.Name)
	if err != nil {
		return 0, err
	}
	defer e.freeStr(g)

	res, err := e.invoke1(expClassRegister,
		uint64(g.ptr), uint64(g.size),
		uint64(def.Constructor), uint64(def.CallAsFunction),
		uint64(def.Initializer), uint64(def.Finalizer),
		uint64(def.HasInstance))
	if err != nil {
		return 0, err
	}
	if res == 0 {
		return 0, errors.Registration(errors.PhaseClass, "class", def.Name,
			errors.Internal(errors.PhaseClass, "engine returned null class"))
	}
	return strix.ClassRef(res), nil
}

// ReleaseClass drops the engine's class definition. Live instances keep
// working; their hooks stay reachable through the table until unregistered.
func (e *WazeroEngine) ReleaseClass(cls strix.ClassRef) error {
	return e.invoke0(expClassRelease, uint64(cls))
}

// MakeFunction creates a function object dispatching to callbackID, which
// must name a registered CallbackFunc.
func (e *WazeroEngine) MakeFunction(c strix.ContextRef, name string, callbackID uint32) (strix.ValueRef, error) {
	if callbackID == 0 {
		return 0, errors.InvalidInput(errors.PhaseClass, "function requires a callback ID")
	}
	if err := e.checkHookID(callbackID, hookShapeCallback); err != nil {
		return 0, errors.Registration(errors.PhaseClass, "function", name, err)
	}

	g, err := e.writeString(name)
	if err != nil {
		return 0, err
	}
	defer e.freeStr(g)

	res, err := e.invoke1(expFunctionMake, uint64(c), uint64(g.ptr), uint64(g.size), uint64(callbackID))
	if err != nil {
		return 0, err
	}
	return strix.ValueRef(res), nil
}

// Hook shape tags for checkHookID.
type hookShape int

const (
	hookShapeCallback hookShape = iota
	hookShapeConstructor
	hookShapeInitializer
	hookShapeFinalizer
	hookShapeHasInstance
	hookShapeModuleResolve
	hookShapeModuleFetch
	hookShapeModuleEvaluate
	hookShapeImportMeta
	hookShapeUncaught
	hookShapeMessage
	hookShapePause
)

// checkHookID verifies that a non-zero callback ID names a registered hook
// of the expected shape. Zero means "hook absent" and always passes.
func (e *WazeroEngine) checkHookID(id uint32, shape hookShape) error {
	if id == 0 {
		return nil
	}
	var err error
	switch shape {
	case hookShapeCallback:
		_, err = hostdata.GetTyped[strix.CallbackFunc](e.hooks, hostdata.Token(id))
	case hookShapeConstructor:
		_, err = hostdata.GetTyped[strix.ConstructorFunc](e.hooks, hostdata.Token(id))
	case hookShapeInitializer:
		_, err = hostdata.GetTyped[strix.InitializerFunc](e.hooks, hostdata.Token(id))
	case hookShapeFinalizer:
		_, err = hostdata.GetTyped[strix.FinalizerFunc](e.hooks, hostdata.Token(id))
	case hookShapeHasInstance:
		_, err = hostdata.GetTyped[strix.HasInstanceFunc](e.hooks, hostdata.Token(id))
	case hookShapeModuleResolve:
		_, err = hostdata.GetTyped[strix.ModuleResolveFunc](e.hooks, hostdata.Token(id))
	case hookShapeModuleFetch:
		_, err = hostdata.GetTyped[strix.ModuleFetchFunc](e.hooks, hostdata.Token(id))
	case hookShapeModuleEvaluate:
		_, err = hostdata.GetTyped[strix.ModuleEvaluateFunc](e.hooks, hostdata.Token(id))
	case hookShapeImportMeta:
		_, err = hostdata.GetTyped[strix.ImportMetaFunc](e.hooks, hostdata.Token(id))
	case hookShapeUncaught:
		_, err = hostdata.GetTyped[strix.UncaughtFunc](e.hooks, hostdata.Token(id))
	case hookShapeMessage:
		_, err = hostdata.GetTyped[strix.MessageFunc](e.hooks, hostdata.Token(id))
	case hookShapePause:
		_, err = hostdata.GetTyped[strix.PauseFunc](e.hooks, hostdata.Token(id))
	default:
		err = errors.Internal(errors.PhaseClass, "unknown hook shape")
	}
	return err
}
