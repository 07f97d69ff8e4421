// Package testvm is an in-memory strix.Engine with deterministic reference
// semantics. It exists so the typed layers are testable without the
// strix.wasm artifact: values, objects, classes, hook dispatch, rooting, and
// a small debugger state machine behave like the real engine, while script
// evaluation understands only the expression forms the tests need.
package testvm

import (
	"context"
	"fmt"

	strix "github.com/strixvm/strix-go"
	"github.com/strixvm/strix-go/errors"
)

type valueRec struct {
	ctx  strix.ContextRef
	kind strix.ValueKind
	b    bool
	n    float64
	s    string
	obj  *object
}

type object struct {
	props    map[string]strix.ValueRef
	keys     []string
	symProps map[strix.ValueRef]strix.ValueRef
	proto    strix.ValueRef
	class    strix.ClassRef
	priv     uint32
	callback uint32
	fnName   string
}

type classRec struct {
	def      strix.ClassDef
	released bool
}

type ctxRec struct {
	group    strix.ContextGroupRef
	name     string
	data     uint32
	global   strix.ValueRef
	retains  int
	protect  map[strix.ValueRef]int
	hooks    strix.Hooks
	virtual  map[string]bool
	released bool

	inspectable bool
	connected   bool
	dbg         debugger
}

// Engine is the in-memory engine. It is not safe for concurrent use; like
// the production engine it relies on the single-goroutine contract.
type Engine struct {
	nextRef  uint32
	nextHook uint32

	values  map[strix.ValueRef]*valueRec
	ctxs    map[strix.ContextRef]*ctxRec
	groups  map[strix.ContextGroupRef]bool
	classes map[strix.ClassRef]*classRec
	hooks   map[uint32]any
	modules map[string]string

	closed bool
}

var _ strix.Engine = (*Engine)(nil)

// New creates an empty engine.
func New() *Engine {
	return &Engine{
		values:  make(map[strix.ValueRef]*valueRec),
		ctxs:    make(map[strix.ContextRef]*ctxRec),
		groups:  make(map[strix.ContextGroupRef]bool),
		classes: make(map[strix.ClassRef]*classRec),
		hooks:   make(map[uint32]any),
		modules: make(map[string]string),
	}
}

// AddModule registers source under path for the engine's built-in module
// loader, the stand-in for the production artifact's filesystem loader.
func (e *Engine) AddModule(path, source string) {
	e.modules[path] = source
}

func (e *Engine) ref() uint32 {
	e.nextRef++
	return e.nextRef
}

func (e *Engine) ctx(c strix.ContextRef) (*ctxRec, error) {
	if e.closed {
		return nil, errors.Closed(errors.PhaseEngine, "engine")
	}
	rec, ok := e.ctxs[c]
	if !ok || rec.released {
		return nil, errors.NotFound(errors.PhaseContext, "context", c.String())
	}
	return rec, nil
}

func (e *Engine) val(c strix.ContextRef, v strix.ValueRef) (*valueRec, error) {
	rec, ok := e.values[v]
	if !ok {
		return nil, errors.NotFound(errors.PhaseEngine, "value", v.String())
	}
	return rec, nil
}

func (e *Engine) put(c strix.ContextRef, rec *valueRec) strix.ValueRef {
	rec.ctx = c
	ref := strix.ValueRef(e.ref())
	e.values[ref] = rec
	return ref
}

// Lifecycle.

func (e *Engine) NewContextGroup() (strix.ContextGroupRef, error) {
	if e.closed {
		return 0, errors.Closed(errors.PhaseEngine, "engine")
	}
	g := strix.ContextGroupRef(e.ref())
	e.groups[g] = true
	return g, nil
}

func (e *Engine) ReleaseContextGroup(g strix.ContextGroupRef) error {
	if !e.groups[g] {
		return errors.NotFound(errors.PhaseContext, "context group", g.String())
	}
	delete(e.groups, g)
	return nil
}

func (e *Engine) NewContext(g strix.ContextGroupRef) (strix.ContextRef, error) {
	if e.closed {
		return 0, errors.Closed(errors.PhaseEngine, "engine")
	}
	if !g.IsNull() && !e.groups[g] {
		return 0, errors.NotFound(errors.PhaseContext, "context group", g.String())
	}
	c := strix.ContextRef(e.ref())
	rec := &ctxRec{
		group:   g,
		retains: 1,
		protect: make(map[strix.ValueRef]int),
		virtual: make(map[string]bool),
	}
	e.ctxs[c] = rec
	rec.global = e.put(c, &valueRec{kind: strix.KindObject, obj: newObject()})
	return c, nil
}

func (e *Engine) RetainContext(c strix.ContextRef) error {
	rec, err := e.ctx(c)
	if err != nil {
		return err
	}
	rec.retains++
	return nil
}

func (e *Engine) ReleaseContext(c strix.ContextRef) error {
	rec, err := e.ctx(c)
	if err != nil {
		return err
	}
	rec.retains--
	if rec.retains > 0 {
		return nil
	}
	rec.released = true
	for ref, v := range e.values {
		if v.ctx == c {
			delete(e.values, ref)
		}
	}
	delete(e.ctxs, c)
	return nil
}

func (e *Engine) ContextGroupOf(c strix.ContextRef) (strix.ContextGroupRef, error) {
	rec, err := e.ctx(c)
	if err != nil {
		return 0, err
	}
	return rec.group, nil
}

func (e *Engine) ContextName(c strix.ContextRef) (string, error) {
	rec, err := e.ctx(c)
	if err != nil {
		return "", err
	}
	return rec.name, nil
}

func (e *Engine) SetContextName(c strix.ContextRef, name string) error {
	rec, err := e.ctx(c)
	if err != nil {
		return err
	}
	rec.name = name
	return nil
}

func (e *Engine) ContextData(c strix.ContextRef) (uint32, error) {
	rec, err := e.ctx(c)
	if err != nil {
		return 0, err
	}
	return rec.data, nil
}

func (e *Engine) SetContextData(c strix.ContextRef, token uint32) error {
	rec, err := e.ctx(c)
	if err != nil {
		return err
	}
	rec.data = token
	return nil
}

func (e *Engine) GlobalObject(c strix.ContextRef) (strix.ValueRef, error) {
	rec, err := e.ctx(c)
	if err != nil {
		return 0, err
	}
	return rec.global, nil
}

// Hooks and classes.

func (e *Engine) RegisterHook(hook any) (uint32, error) {
	if e.closed {
		return 0, errors.Closed(errors.PhaseEngine, "engine")
	}
	switch hook.(type) {
	case strix.CallbackFunc, strix.ConstructorFunc, strix.InitializerFunc,
		strix.FinalizerFunc, strix.HasInstanceFunc,
		strix.ModuleResolveFunc, strix.ModuleFetchFunc,
		strix.ModuleEvaluateFunc, strix.ImportMetaFunc,
		strix.UncaughtFunc, strix.MessageFunc, strix.PauseFunc:
	case nil:
		return 0, errors.InvalidInput(errors.PhaseEngine, "nil hook")
	default:
		return 0, errors.New(errors.PhaseEngine, errors.KindTypeMismatch).
			GoType(fmt.Sprintf("%T", hook)).
			Detail("not a hook shape").
			Build()
	}
	e.nextHook++
	e.hooks[e.nextHook] = hook
	return e.nextHook, nil
}

func (e *Engine) UnregisterHook(id uint32) {
	delete(e.hooks, id)
}

func (e *Engine) SetContextHooks(c strix.ContextRef, h strix.Hooks) error {
	rec, err := e.ctx(c)
	if err != nil {
		return err
	}
	rec.hooks = h
	rec.connected = rec.inspectable && h.InspectorMessage != 0
	return nil
}

func (e *Engine) SetVirtualModuleKeys(c strix.ContextRef, keys []string) error {
	rec, err := e.ctx(c)
	if err != nil {
		return err
	}
	rec.virtual = make(map[string]bool, len(keys))
	for _, k := range keys {
		rec.virtual[k] = true
	}
	return nil
}

func (e *Engine) RegisterClass(def strix.ClassDef) (strix.ClassRef, error) {
	if e.closed {
		return 0, errors.Closed(errors.PhaseEngine, "engine")
	}
	if def.Name == "" {
		return 0, errors.InvalidInput(errors.PhaseClass, "class name required")
	}
	ref := strix.ClassRef(e.ref())
	e.classes[ref] = &classRec{def: def}
	return ref, nil
}

func (e *Engine) ReleaseClass(cls strix.ClassRef) error {
	rec, ok := e.classes[cls]
	if !ok {
		return errors.NotFound(errors.PhaseClass, "class", cls.String())
	}
	rec.released = true
	return nil
}

func (e *Engine) MakeFunction(c strix.ContextRef, name string, callbackID uint32) (strix.ValueRef, error) {
	if _, err := e.ctx(c); err != nil {
		return 0, err
	}
	if _, ok := e.hooks[callbackID]; !ok {
		return 0, errors.NotFound(errors.PhaseCall, "callback", fmt.Sprint(callbackID))
	}
	obj := newObject()
	obj.callback = callbackID
	obj.fnName = name
	return e.put(c, &valueRec{kind: strix.KindObject, obj: obj}), nil
}

func newObject() *object {
	return &object{
		props:    make(map[string]strix.ValueRef),
		symProps: make(map[strix.ValueRef]strix.ValueRef),
	}
}

func (e *Engine) Close(context.Context) error {
	e.closed = true
	e.values = nil
	e.ctxs = nil
	e.hooks = nil
	e.classes = nil
	return nil
}
