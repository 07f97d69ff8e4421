package vm

import (
	strix "github.com/strixvm/strix-go"
)

// Per-context hook surface. Setting a hook registers its trampoline,
// re-pushes the full hook set to the engine (the engine replaces all eight
// IDs at once), and unregisters the ID the change displaced.

// UncaughtHandler observes an exception nobody caught, or a promise
// rejection nobody handled. Notification only.
type UncaughtHandler func(ctx *Context, filename string, exc Value)

// ModuleLoader is the per-context module hook set. Nil fields leave the
// corresponding engine hook unset; the engine treats the four as
// all-or-nothing, so installing any of them replaces its default loader.
type ModuleLoader struct {
	// Resolve maps (specifier, referrer) to the module key the loader
	// caches under.
	Resolve func(ctx *Context, specifier, referrer Value) (string, error)

	// Fetch returns the source text for a resolved key.
	Fetch func(ctx *Context, key, attributes Value) (string, error)

	// Evaluate evaluates a virtual module key, returning its namespace
	// value. Only keys declared via SetVirtualModuleKeys reach it.
	Evaluate func(ctx *Context, key Value) (Value, error)

	// ImportMeta supplies the object whose properties seed import.meta.
	ImportMeta func(ctx *Context, key Value) (Object, error)
}

// SetModuleLoader installs loader's hooks on the context.
func (c *Context) SetModuleLoader(loader *ModuleLoader) error {
	next := c.hooks

	next.ModuleResolve = 0
	next.ModuleFetch = 0
	next.ModuleEvaluate = 0
	next.ImportMeta = 0

	if loader != nil {
		var err error
		if loader.Resolve != nil {
			next.ModuleResolve, err = c.registerHook(c.rt.moduleResolveTrampoline(loader.Resolve))
			if err != nil {
				return err
			}
		}
		if loader.Fetch != nil {
			next.ModuleFetch, err = c.registerHook(c.rt.moduleFetchTrampoline(loader.Fetch))
			if err != nil {
				return err
			}
		}
		if loader.Evaluate != nil {
			next.ModuleEvaluate, err = c.registerHook(c.rt.moduleEvaluateTrampoline(loader.Evaluate))
			if err != nil {
				return err
			}
		}
		if loader.ImportMeta != nil {
			next.ImportMeta, err = c.registerHook(c.rt.importMetaTrampoline(loader.ImportMeta))
			if err != nil {
				return err
			}
		}
	}
	return c.pushHooks(next)
}

// SetVirtualModuleKeys declares the module keys that bypass fetch and go
// straight to the loader's Evaluate hook.
func (c *Context) SetVirtualModuleKeys(keys ...string) error {
	return c.eng().SetVirtualModuleKeys(c.ref, keys)
}

// OnUncaughtException installs the uncaught-exception notification hook.
func (c *Context) OnUncaughtException(fn UncaughtHandler) error {
	next := c.hooks
	next.Uncaught = 0
	if fn != nil {
		id, err := c.registerHook(c.rt.uncaughtTrampoline(fn))
		if err != nil {
			return err
		}
		next.Uncaught = id
	}
	return c.pushHooks(next)
}

// OnUnhandledRejection installs the unhandled-promise-rejection hook. The
// filename argument carries the rejecting script's URL.
func (c *Context) OnUnhandledRejection(fn UncaughtHandler) error {
	next := c.hooks
	next.UnhandledRejection = 0
	if fn != nil {
		id, err := c.registerHook(c.rt.uncaughtTrampoline(fn))
		if err != nil {
			return err
		}
		next.UnhandledRejection = id
	}
	return c.pushHooks(next)
}

// OnInspectorMessage installs the protocol-message notification hook. The
// message is an opaque JSON text; this layer does not validate it.
func (c *Context) OnInspectorMessage(fn func(message string)) error {
	next := c.hooks
	next.InspectorMessage = 0
	if fn != nil {
		hook := strix.MessageFunc(func(_ strix.ContextRef, message string) {
			defer c.rt.swallowPanic("inspector message", "notification")
			fn(message)
		})
		id, err := c.registerHook(hook)
		if err != nil {
			return err
		}
		next.InspectorMessage = id
	}
	return c.pushHooks(next)
}

// OnPauseEvent installs the debugger lifecycle hook. Events fire
// synchronously on the goroutine driving the context.
func (c *Context) OnPauseEvent(fn func(event strix.PauseEvent)) error {
	next := c.hooks
	next.PauseEvent = 0
	if fn != nil {
		hook := strix.PauseFunc(func(_ strix.ContextRef, event strix.PauseEvent) {
			defer c.rt.swallowPanic("pause event", "notification")
			fn(event)
		})
		id, err := c.registerHook(hook)
		if err != nil {
			return err
		}
		next.PauseEvent = id
	}
	return c.pushHooks(next)
}

// Inspector surface. The inspector package builds its session and driver on
// these; they forward directly to the engine.

func (c *Context) SetInspectable(enabled bool) error {
	return c.eng().SetInspectable(c.ref, enabled)
}

// InspectorSend submits one protocol command. Its effects come back
// asynchronously through the OnInspectorMessage hook.
func (c *Context) InspectorSend(message string) error {
	return c.eng().InspectorSendMessage(c.ref, message)
}

func (c *Context) InspectorDisconnect() error {
	return c.eng().InspectorDisconnect(c.ref)
}

func (c *Context) InspectorConnected() (bool, error) {
	return c.eng().InspectorIsConnected(c.ref)
}

func (c *Context) registerHook(hook any) (uint32, error) {
	return c.eng().RegisterHook(hook)
}

// pushHooks installs next as the context's hook set and unregisters every
// ID it displaced. On engine failure the new registrations are rolled back
// and the old set stays in place.
func (c *Context) pushHooks(next strix.Hooks) error {
	if err := c.eng().SetContextHooks(c.ref, next); err != nil {
		unregisterChanged(c, next, c.hooks)
		return err
	}
	unregisterChanged(c, c.hooks, next)
	c.hooks = next
	return nil
}

// unregisterChanged removes every ID in old that next no longer carries.
func unregisterChanged(c *Context, old, next strix.Hooks) {
	pairs := [][2]uint32{
		{old.ModuleResolve, next.ModuleResolve},
		{old.ModuleFetch, next.ModuleFetch},
		{old.ModuleEvaluate, next.ModuleEvaluate},
		{old.ImportMeta, next.ImportMeta},
		{old.Uncaught, next.Uncaught},
		{old.UnhandledRejection, next.UnhandledRejection},
		{old.InspectorMessage, next.InspectorMessage},
		{old.PauseEvent, next.PauseEvent},
	}
	for _, p := range pairs {
		if p[0] != 0 && p[0] != p[1] {
			c.eng().UnregisterHook(p[0])
		}
	}
}

// Module hook trampolines. Resolve and fetch return strings, evaluate and
// import-meta return values; all four report failure through the exception
// channel.

func (rt *Runtime) moduleResolveTrampoline(hook func(*Context, Value, Value) (string, error)) strix.ModuleResolveFunc {
	return func(cref strix.ContextRef, specifier, referrer strix.ValueRef) (key string, exc strix.ValueRef) {
		ctx := rt.contextFor(cref)
		defer rt.trapPanicString(ctx, "module resolve", &key, &exc)

		key, err := hook(ctx, ctx.value(specifier), ctx.value(referrer))
		if err != nil {
			return "", ctx.raise(err)
		}
		return key, 0
	}
}

func (rt *Runtime) moduleFetchTrampoline(hook func(*Context, Value, Value) (string, error)) strix.ModuleFetchFunc {
	return func(cref strix.ContextRef, key, attributes strix.ValueRef) (source string, exc strix.ValueRef) {
		ctx := rt.contextFor(cref)
		defer rt.trapPanicString(ctx, "module fetch", &source, &exc)

		source, err := hook(ctx, ctx.value(key), ctx.value(attributes))
		if err != nil {
			return "", ctx.raise(err)
		}
		return source, 0
	}
}

func (rt *Runtime) moduleEvaluateTrampoline(hook func(*Context, Value) (Value, error)) strix.ModuleEvaluateFunc {
	return func(cref strix.ContextRef, key strix.ValueRef) (res, exc strix.ValueRef) {
		ctx := rt.contextFor(cref)
		defer rt.trapPanic(ctx, "module evaluate", &res, &exc)

		out, err := hook(ctx, ctx.value(key))
		if err != nil {
			return 0, ctx.raise(err)
		}
		return rt.resultRef(ctx, out), 0
	}
}

func (rt *Runtime) importMetaTrampoline(hook func(*Context, Value) (Object, error)) strix.ImportMetaFunc {
	return func(cref strix.ContextRef, key strix.ValueRef) (res, exc strix.ValueRef) {
		ctx := rt.contextFor(cref)
		defer rt.trapPanic(ctx, "import meta", &res, &exc)

		obj, err := hook(ctx, ctx.value(key))
		if err != nil {
			return 0, ctx.raise(err)
		}
		return rt.resultRef(ctx, obj.Value), 0
	}
}

func (rt *Runtime) uncaughtTrampoline(fn UncaughtHandler) strix.UncaughtFunc {
	return func(cref strix.ContextRef, filename string, exc strix.ValueRef) {
		defer rt.swallowPanic("uncaught", "notification")
		ctx := rt.contextFor(cref)
		fn(ctx, filename, ctx.value(exc))
	}
}

// trapPanicString is trapPanic for the string-returning module hook shapes.
// Like trapPanic it must be deferred directly.
func (rt *Runtime) trapPanicString(ctx *Context, name string, res *string, exc *strix.ValueRef) {
	r := recover()
	if r == nil {
		return
	}
	*res = ""
	*exc = ctx.raise(rt.panicError(name, r))
}
