package vm

import (
	"reflect"

	"go.uber.org/zap"

	strix "github.com/strixvm/strix-go"
	"github.com/strixvm/strix-go/errors"
)

// FuncOption adjusts native function registration.
type FuncOption func(*funcOpts)

type funcOpts struct {
	paramNames []string
}

// WithParamNames supplies source names for the trailing parameters, in
// order. Reflection cannot recover them, and marshaling errors name the
// parameter, so registrations that care about diagnostics should pass them.
func WithParamNames(names ...string) FuncOption {
	return func(o *funcOpts) { o.paramNames = names }
}

var errType = reflect.TypeOf((*error)(nil)).Elem()

// NewFunction registers fn as a native function and returns its function
// object. fn must be
//
//	func(ctx *Context, fnObj, this Object, domain...) (Value, error)
//
// where the trailing domain parameters are marshaled left to right per the
// plan rules: required by default, Optional[T] for may-be-absent, or one
// single []Value parameter to receive the raw argument list.
func (c *Context) NewFunction(name string, fn any, opts ...FuncOption) (Object, error) {
	var o funcOpts
	for _, opt := range opts {
		opt(&o)
	}

	plan, call, err := c.rt.compileCallback(name, fn, o.paramNames)
	if err != nil {
		return Object{}, err
	}

	cb := c.rt.callbackTrampoline(name, plan, call)
	id, err := c.eng().RegisterHook(cb)
	if err != nil {
		return Object{}, errors.Registration(errors.PhaseCall, "function", name, err)
	}

	ref, err := c.eng().MakeFunction(c.ref, name, id)
	if err != nil {
		c.eng().UnregisterHook(id)
		return Object{}, err
	}
	return Object{c.value(ref)}, nil
}

// compileCallback validates a plain-callback signature and builds its
// marshal plan. The returned call closure invokes fn with the already
// marshaled arguments.
func (rt *Runtime) compileCallback(name string, fn any, paramNames []string) (*marshalPlan, func([]reflect.Value) (Value, error), error) {
	fv := reflect.ValueOf(fn)
	ft := fv.Type()

	if err := checkCallbackShape(name, ft); err != nil {
		return nil, nil, err
	}
	plan, err := buildPlan(name, ft, 3, paramNames)
	if err != nil {
		return nil, nil, err
	}

	call := func(in []reflect.Value) (Value, error) {
		out := fv.Call(in)
		var res Value
		if v, ok := out[0].Interface().(Value); ok {
			res = v
		}
		if e := out[1].Interface(); e != nil {
			return Value{}, e.(error)
		}
		return res, nil
	}
	return plan, call, nil
}

func checkCallbackShape(name string, ft reflect.Type) error {
	bad := func(detail string) error {
		return errors.New(errors.PhaseMarshal, errors.KindInvalidInput).
			Path(name).
			GoType(ft.String()).
			Detail("%s", detail).
			Build()
	}
	if ft.Kind() != reflect.Func {
		return bad("not a function")
	}
	if ft.NumIn() < 3 ||
		ft.In(0) != reflect.TypeOf((*Context)(nil)) ||
		ft.In(1) != objectType || ft.In(2) != objectType {
		return bad("first three parameters must be (*vm.Context, vm.Object, vm.Object)")
	}
	if ft.NumOut() != 2 || ft.Out(0) != valueType || ft.Out(1) != errType {
		return bad("results must be (vm.Value, error)")
	}
	if ft.IsVariadic() {
		return bad("variadic functions are not supported; declare a []vm.Value parameter for dynamic arity")
	}
	return nil
}

// callbackTrampoline adapts the typed call to the engine's plain-callback
// ABI shape. Every exit is total: success returns (result, null exception),
// failure returns (null, exception), and panics convert into a script Error
// instead of unwinding across the boundary.
func (rt *Runtime) callbackTrampoline(name string, plan *marshalPlan, call func([]reflect.Value) (Value, error)) strix.CallbackFunc {
	return func(cref strix.ContextRef, fnRef, thisRef strix.ValueRef, argRefs []strix.ValueRef) (res, exc strix.ValueRef) {
		ctx := rt.contextFor(cref)
		defer rt.trapPanic(ctx, name, &res, &exc)

		fnObj := Object{ctx.value(fnRef)}
		this := Object{ctx.value(thisRef)}
		args := ctx.wrapRefs(argRefs)

		in, err := plan.marshal(ctx, args)
		if err != nil {
			return 0, ctx.raise(err)
		}
		in = append([]reflect.Value{
			reflect.ValueOf(ctx), reflect.ValueOf(fnObj), reflect.ValueOf(this),
		}, in...)

		out, err := call(in)
		if err != nil {
			return 0, ctx.raise(err)
		}
		return rt.resultRef(ctx, out), 0
	}
}

// resultRef maps a host result to its engine ref; an empty Value reads as
// undefined.
func (rt *Runtime) resultRef(ctx *Context, v Value) strix.ValueRef {
	if v.IsValid() {
		return v.ref
	}
	ref, err := ctx.eng().MakeUndefined(ctx.ref)
	if err != nil {
		rt.log.Error("undefined result construction failed", zap.Error(err))
		return 0
	}
	return ref
}

// trapPanic converts a panicking trampoline into a synthesized script Error.
// No Go panic may cross the engine boundary. It must be deferred directly so
// recover sees the unwinding.
func (rt *Runtime) trapPanic(ctx *Context, name string, res *strix.ValueRef, exc *strix.ValueRef) {
	r := recover()
	if r == nil {
		return
	}
	*res = 0
	*exc = ctx.raise(rt.panicError(name, r))
}

func (rt *Runtime) panicError(name string, r any) error {
	rt.log.Error("native hook panicked",
		zap.String("function", name),
		zap.Any("panic", r))
	return errors.New(errors.PhaseCall, errors.KindInternal).
		Path(name).
		Detail("native function panicked: %v", r).
		Build()
}

func (c *Context) wrapRefs(refs []strix.ValueRef) []Value {
	args := make([]Value, len(refs))
	for i, r := range refs {
		args[i] = c.value(r)
	}
	return args
}
