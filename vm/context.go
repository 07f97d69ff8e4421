package vm

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	strix "github.com/strixvm/strix-go"
	"github.com/strixvm/strix-go/errors"
	"github.com/strixvm/strix-go/hostdata"
)

// Context is a host handle on one engine execution context. All calls on a
// Context, and every callback the engine fires on its behalf, must happen on
// the goroutine that created it; the binding does no locking to enforce
// this. The shared-data slot is the one internally synchronized piece of
// state because inspector observers may read it from another goroutine.
type Context struct {
	rt        *Runtime
	ref       strix.ContextRef
	transient bool
	closed    bool

	shared hostdata.Slot

	// Installed per-context hook IDs. Replacing a hook unregisters the ID
	// it displaces; the full set is re-pushed to the engine on every change.
	hooks strix.Hooks
}

// Ref returns the raw engine ref.
func (c *Context) Ref() strix.ContextRef { return c.ref }

// Runtime returns the runtime this context was created through.
func (c *Context) Runtime() *Runtime { return c.rt }

func (c *Context) eng() strix.Engine { return c.rt.eng }

// Close releases the host's retain on the context and unregisters its hook
// set. Values obtained from the context must not be used afterwards.
func (c *Context) Close() error {
	if c.closed || c.transient {
		return nil
	}
	c.closed = true
	c.rt.forget(c.ref)

	for _, id := range []uint32{
		c.hooks.ModuleResolve, c.hooks.ModuleFetch,
		c.hooks.ModuleEvaluate, c.hooks.ImportMeta,
		c.hooks.Uncaught, c.hooks.UnhandledRejection,
		c.hooks.InspectorMessage, c.hooks.PauseEvent,
	} {
		if id != 0 {
			c.eng().UnregisterHook(id)
		}
	}
	c.shared.Clear()

	return c.eng().ReleaseContext(c.ref)
}

// throw wraps a non-null exception ref into the typed error. Call sites
// guarantee exc is non-null.
func (c *Context) throw(exc strix.ValueRef) error {
	return newException(c, exc)
}

// check collapses the two-channel convention: transport error first, then
// the exception ref, then success.
func (c *Context) check(exc strix.ValueRef, err error) error {
	if err != nil {
		return err
	}
	if !exc.IsNull() {
		return c.throw(exc)
	}
	return nil
}

// value wraps a raw ref obtained from this context.
func (c *Context) value(ref strix.ValueRef) Value {
	return Value{ctx: c, ref: ref}
}

// Global returns the context's global object.
func (c *Context) Global() (Object, error) {
	ref, err := c.eng().GlobalObject(c.ref)
	if err != nil {
		return Object{}, err
	}
	return Object{c.value(ref)}, nil
}

// Name returns the context's debugger-visible name.
func (c *Context) Name() (string, error) {
	return c.eng().ContextName(c.ref)
}

// SetName sets the context's debugger-visible name.
func (c *Context) SetName(name string) error {
	return c.eng().SetContextName(c.ref, name)
}

// EvalOption adjusts script evaluation.
type EvalOption func(*evalOpts)

type evalOpts struct {
	sourceURL string
	startLine int
}

// WithSourceURL attributes the script to url in stack traces and the
// debugger.
func WithSourceURL(url string) EvalOption {
	return func(o *evalOpts) { o.sourceURL = url }
}

// WithStartLine offsets reported line numbers, for scripts embedded in a
// larger document.
func WithStartLine(line int) EvalOption {
	return func(o *evalOpts) { o.startLine = line }
}

// EvaluateScript runs script and returns its completion value. A script
// exception comes back as *Exception.
func (c *Context) EvaluateScript(script string, opts ...EvalOption) (Value, error) {
	var o evalOpts
	for _, opt := range opts {
		opt(&o)
	}
	res, exc, err := c.eng().EvaluateScript(c.ref, script, o.sourceURL, o.startLine)
	if err := c.check(exc, err); err != nil {
		return Value{}, err
	}
	return c.value(res), nil
}

// CheckSyntax parses script without running it. A syntax problem comes back
// as the engine's SyntaxError exception.
func (c *Context) CheckSyntax(script string, opts ...EvalOption) error {
	var o evalOpts
	for _, opt := range opts {
		opt(&o)
	}
	ok, exc, err := c.eng().CheckSyntax(c.ref, script, o.sourceURL, o.startLine)
	if err := c.check(exc, err); err != nil {
		return err
	}
	if !ok {
		return errors.InvalidInput(errors.PhaseEval, "script failed syntax check")
	}
	return nil
}

// EvaluateModule resolves path through the engine's module loader and runs
// the module graph. Only success or a typed exception surfaces; intermediate
// loader state does not.
func (c *Context) EvaluateModule(path string) error {
	exc, err := c.eng().EvaluateModule(c.ref, path)
	return c.check(exc, err)
}

// EvaluateModuleSource evaluates source as a module registered under key.
func (c *Context) EvaluateModuleSource(source, key string) error {
	exc, err := c.eng().EvaluateModuleSource(c.ref, source, key)
	return c.check(exc, err)
}

// GarbageCollect asks the engine for a synchronous collection.
func (c *Context) GarbageCollect() error {
	return c.eng().GarbageCollect(c.ref)
}

// PumpMessageLoop runs one turn of the engine's job queue, reporting false
// once no work remains.
func (c *Context) PumpMessageLoop() (bool, error) {
	return c.eng().PumpMessageLoop(c.ref)
}

// MemoryUsage decodes the engine's heap statistics report.
func (c *Context) MemoryUsage() (strix.MemoryUsage, error) {
	raw, err := c.eng().MemoryUsageJSON(c.ref)
	if err != nil {
		return strix.MemoryUsage{}, err
	}
	var usage strix.MemoryUsage
	if err := json.Unmarshal([]byte(raw), &usage); err != nil {
		return strix.MemoryUsage{}, errors.Wrap(errors.PhaseEngine, errors.KindInternal, err, "decode memory usage report")
	}
	return usage, nil
}

// Value constructors.

func (c *Context) Undefined() (Value, error) {
	ref, err := c.eng().MakeUndefined(c.ref)
	return c.value(ref), err
}

func (c *Context) Null() (Value, error) {
	ref, err := c.eng().MakeNull(c.ref)
	return c.value(ref), err
}

func (c *Context) Boolean(v bool) (Value, error) {
	ref, err := c.eng().MakeBoolean(c.ref, v)
	return c.value(ref), err
}

func (c *Context) Number(v float64) (Value, error) {
	ref, err := c.eng().MakeNumber(c.ref, v)
	return c.value(ref), err
}

func (c *Context) String(s string) (Value, error) {
	ref, err := c.eng().MakeString(c.ref, s)
	return c.value(ref), err
}

func (c *Context) Symbol(description string) (Value, error) {
	ref, err := c.eng().MakeSymbol(c.ref, description)
	return c.value(ref), err
}

// FromJSON parses src as JSON. Malformed input surfaces as the engine's
// SyntaxError.
func (c *Context) FromJSON(src string) (Value, error) {
	ref, exc, err := c.eng().MakeFromJSON(c.ref, src)
	if err := c.check(exc, err); err != nil {
		return Value{}, err
	}
	return c.value(ref), nil
}

// NewError constructs a script error object of the given kind.
func (c *Context) NewError(kind strix.ErrorKind, message string) (Object, error) {
	ref, err := c.eng().MakeError(c.ref, kind, message)
	if err != nil {
		return Object{}, err
	}
	return Object{c.value(ref)}, nil
}

// NewObject creates a plain object with no class.
func (c *Context) NewObject() (Object, error) {
	ref, err := c.eng().MakeObject(c.ref, 0, 0)
	if err != nil {
		return Object{}, err
	}
	return Object{c.value(ref)}, nil
}

// raise converts a Go error into an exception ref for the engine's
// out-parameter convention. *Exception rethrows the original exception
// object; a marshaling missing-argument error becomes a TypeError; anything
// else becomes a generic Error carrying err.Error(). A null return means
// the exception itself could not be built, which only happens when the
// engine transport is already broken.
func (c *Context) raise(err error) strix.ValueRef {
	if exc, ok := err.(*Exception); ok {
		return exc.ref
	}

	kind := strix.GenericError
	message := err.Error()
	if structured, ok := err.(*errors.Error); ok {
		switch structured.Kind {
		case errors.KindMissingArgument:
			kind = strix.TypeError
			if len(structured.Path) == 2 {
				message = fmt.Sprintf("%s: missing required argument '%s'",
					structured.Path[0], structured.Path[1])
			}
		case errors.KindTypeMismatch:
			kind = strix.TypeError
		}
	}

	ref, mkErr := c.eng().MakeError(c.ref, kind, message)
	if mkErr != nil {
		c.rt.log.Error("exception construction failed, error lost",
			zap.Error(mkErr), zap.NamedError("original", err))
		return 0
	}
	return ref
}
