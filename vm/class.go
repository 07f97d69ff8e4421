package vm

import (
	"go.uber.org/zap"

	strix "github.com/strixvm/strix-go"
	"github.com/strixvm/strix-go/errors"
)

// ConstructorHook handles `new` on a class object. Arguments arrive raw
// because constructor arity is conventionally dynamic.
type ConstructorHook func(ctx *Context, ctor Object, args []Value) (Object, error)

// InitializerHook runs right after an instance is allocated. It has no
// return and no exception channel by engine contract.
type InitializerHook func(ctx *Context, obj Object)

// FinalizerHook receives the dying instance's private data, nil when none
// was set. It runs during engine collection: no context, no engine calls,
// no failure path.
type FinalizerHook func(data any)

// HasInstanceHook answers `candidate instanceof ctor`.
type HasInstanceHook func(ctx *Context, ctor Object, candidate Value) (bool, error)

// ClassBuilder accumulates the hook set one class shares across all of its
// instances. Build registers the hooks and the class with the engine.
type ClassBuilder struct {
	name        string
	constructor ConstructorHook
	callFn      any
	callOpts    []FuncOption
	initializer InitializerHook
	finalizer   FinalizerHook
	hasInstance HasInstanceHook
}

// NewClass starts a class definition.
func NewClass(name string) *ClassBuilder {
	return &ClassBuilder{name: name}
}

// Constructor sets the `new` hook.
func (b *ClassBuilder) Constructor(fn ConstructorHook) *ClassBuilder {
	b.constructor = fn
	return b
}

// CallAsFunction sets the hook for calling a class object without `new`.
// fn follows the NewFunction signature and marshaling rules.
func (b *ClassBuilder) CallAsFunction(fn any, opts ...FuncOption) *ClassBuilder {
	b.callFn = fn
	b.callOpts = opts
	return b
}

// Initializer sets the per-instance allocation hook.
func (b *ClassBuilder) Initializer(fn InitializerHook) *ClassBuilder {
	b.initializer = fn
	return b
}

// Finalizer sets the collection hook. The private-data entry is always
// reclaimed whether or not a user finalizer exists; the hook merely
// observes the value on its way out.
func (b *ClassBuilder) Finalizer(fn FinalizerHook) *ClassBuilder {
	b.finalizer = fn
	return b
}

// HasInstance sets the instanceof trap.
func (b *ClassBuilder) HasInstance(fn HasInstanceHook) *ClassBuilder {
	b.hasInstance = fn
	return b
}

// Class is a registered hook descriptor shared by every object instantiated
// from it. It is reference-counted by the engine independently of any
// context: Release drops the descriptor while live instances keep working.
type Class struct {
	rt       *Runtime
	ref      strix.ClassRef
	name     string
	hookIDs  []uint32
	released bool
}

// Build registers the hook set and the class definition with the engine.
func (b *ClassBuilder) Build(rt *Runtime) (*Class, error) {
	if err := rt.guard(); err != nil {
		return nil, err
	}

	cls := &Class{rt: rt, name: b.name}
	def := strix.ClassDef{Name: b.name}

	fail := func(what string, err error) (*Class, error) {
		cls.unregisterHooks()
		return nil, errors.Registration(errors.PhaseClass, what, b.name, err)
	}

	register := func(hook any) (uint32, error) {
		id, err := rt.eng.RegisterHook(hook)
		if err == nil {
			cls.hookIDs = append(cls.hookIDs, id)
		}
		return id, err
	}

	var err error
	if b.constructor != nil {
		if def.Constructor, err = register(rt.constructorTrampoline(b.name, b.constructor)); err != nil {
			return fail("constructor", err)
		}
	}
	if b.callFn != nil {
		var o funcOpts
		for _, opt := range b.callOpts {
			opt(&o)
		}
		plan, call, cErr := rt.compileCallback(b.name, b.callFn, o.paramNames)
		if cErr != nil {
			return fail("call hook", cErr)
		}
		if def.CallAsFunction, err = register(rt.callbackTrampoline(b.name, plan, call)); err != nil {
			return fail("call hook", err)
		}
	}
	if b.initializer != nil {
		if def.Initializer, err = register(rt.initializerTrampoline(b.name, b.initializer)); err != nil {
			return fail("initializer", err)
		}
	}

	// Every class gets a finalize registration, user hook or not: the
	// dying instance's private entry must leave the runtime table.
	if def.Finalizer, err = register(privateFinalizer(rt, b.finalizer)); err != nil {
		return fail("finalizer", err)
	}

	if b.hasInstance != nil {
		if def.HasInstance, err = register(rt.hasInstanceTrampoline(b.name, b.hasInstance)); err != nil {
			return fail("has-instance", err)
		}
	}

	cls.ref, err = rt.eng.RegisterClass(def)
	if err != nil {
		return fail("class", err)
	}
	return cls, nil
}

// Name returns the class name.
func (c *Class) Name() string { return c.name }

// Ref returns the raw class ref.
func (c *Class) Ref() strix.ClassRef { return c.ref }

// Instantiate creates an instance in ctx, seeding its private slot with
// private (nil for none). The initializer hook, when declared, observes the
// instance before Instantiate returns.
func (c *Class) Instantiate(ctx *Context, private any) (Object, error) {
	if c.released {
		return Object{}, errors.Closed(errors.PhaseClass, "class")
	}

	var token uint32
	if private != nil {
		tok := c.rt.priv.Put(private)
		if tok == 0 {
			return Object{}, errors.Closed(errors.PhaseOwnership, "private data table")
		}
		token = uint32(tok)
	}

	ref, err := ctx.eng().MakeObject(ctx.ref, c.ref, token)
	if err != nil {
		return Object{}, err
	}
	return Object{ctx.value(ref)}, nil
}

// Install creates the class's constructor object and defines it on ctx's
// global object under the class name. The installed object is the
// script-visible constructor: constructible, callable when a call hook is
// declared, and carrying the has-instance trap.
func (c *Class) Install(ctx *Context) (Object, error) {
	obj, err := c.Instantiate(ctx, nil)
	if err != nil {
		return Object{}, err
	}
	global, err := ctx.Global()
	if err != nil {
		return Object{}, err
	}
	if err := global.Set(c.name, obj.AsValue()); err != nil {
		return Object{}, err
	}
	return obj, nil
}

// Release drops the engine's class descriptor. Hook registrations stay in
// the table until Runtime.Close so instances already alive keep dispatching.
func (c *Class) Release() error {
	if c.released {
		return nil
	}
	c.released = true
	return c.rt.eng.ReleaseClass(c.ref)
}

func (c *Class) unregisterHooks() {
	for _, id := range c.hookIDs {
		c.rt.eng.UnregisterHook(id)
	}
	c.hookIDs = nil
}

// Trampolines for the class hook shapes. Each fixes one ABI signature; all
// failure exits are total, and panics convert into script errors (or are
// swallow-logged where the shape has no exception channel).

func (rt *Runtime) constructorTrampoline(name string, hook ConstructorHook) strix.ConstructorFunc {
	return func(cref strix.ContextRef, ctorRef strix.ValueRef, argRefs []strix.ValueRef) (res, exc strix.ValueRef) {
		ctx := rt.contextFor(cref)
		defer rt.trapPanic(ctx, name, &res, &exc)

		ctor := Object{ctx.value(ctorRef)}
		obj, err := hook(ctx, ctor, ctx.wrapRefs(argRefs))
		if err != nil {
			return 0, ctx.raise(err)
		}
		if !obj.IsValid() {
			return 0, ctx.raise(errors.New(errors.PhaseCall, errors.KindInternal).
				Path(name).
				Detail("constructor returned no object").
				Build())
		}
		return obj.ref, 0
	}
}

func (rt *Runtime) initializerTrampoline(name string, hook InitializerHook) strix.InitializerFunc {
	return func(cref strix.ContextRef, objRef strix.ValueRef) {
		defer rt.swallowPanic(name, "initializer")
		ctx := rt.contextFor(cref)
		hook(ctx, Object{ctx.value(objRef)})
	}
}

func (rt *Runtime) hasInstanceTrampoline(name string, hook HasInstanceHook) strix.HasInstanceFunc {
	return func(cref strix.ContextRef, ctorRef, candidateRef strix.ValueRef) (ok bool, exc strix.ValueRef) {
		ctx := rt.contextFor(cref)
		var res strix.ValueRef
		defer rt.trapPanic(ctx, name, &res, &exc)

		got, err := hook(ctx, Object{ctx.value(ctorRef)}, ctx.value(candidateRef))
		if err != nil {
			return false, ctx.raise(err)
		}
		return got, 0
	}
}

// swallowPanic guards the hook shapes with no exception channel.
func (rt *Runtime) swallowPanic(name, shape string) {
	if r := recover(); r != nil {
		rt.log.Error("native hook panicked",
			zap.String("function", name),
			zap.String("shape", shape),
			zap.Any("panic", r))
	}
}
