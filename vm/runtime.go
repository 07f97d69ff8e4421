package vm

import (
	"sync"

	"go.uber.org/zap"

	strix "github.com/strixvm/strix-go"
	"github.com/strixvm/strix-go/errors"
	"github.com/strixvm/strix-go/hostdata"
)

// Runtime wraps one engine with the host-side state the typed layer keeps
// per engine: the private-data table that backs instance payloads and the
// context registry trampolines use to recover typed wrappers from raw refs.
//
// A Runtime does not own its engine. Closing the Runtime releases every
// context it created and drains the private-data table, but the caller
// remains responsible for closing the engine itself.
type Runtime struct {
	eng  strix.Engine
	priv *hostdata.Table
	log  *zap.Logger

	mu     sync.Mutex
	ctxs   map[strix.ContextRef]*Context
	closed bool
}

// RuntimeOption configures a Runtime at construction time.
type RuntimeOption func(*Runtime)

// WithLogger sets the logger this runtime and its contexts log through.
func WithLogger(l *zap.Logger) RuntimeOption {
	return func(rt *Runtime) {
		if l != nil {
			rt.log = l
		}
	}
}

// NewRuntime wraps eng in a typed runtime.
func NewRuntime(eng strix.Engine, opts ...RuntimeOption) *Runtime {
	rt := &Runtime{
		eng:  eng,
		priv: hostdata.NewTable(),
		log:  Logger(),
		ctxs: make(map[strix.ContextRef]*Context),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Engine returns the wrapped engine.
func (rt *Runtime) Engine() strix.Engine { return rt.eng }

// NewContext creates an execution context in its own fresh context group.
func (rt *Runtime) NewContext() (*Context, error) {
	return rt.newContext(0)
}

// NewContextGroup creates a context group. Contexts created inside one group
// share a heap and may exchange values.
func (rt *Runtime) NewContextGroup() (*ContextGroup, error) {
	if err := rt.guard(); err != nil {
		return nil, err
	}
	ref, err := rt.eng.NewContextGroup()
	if err != nil {
		return nil, err
	}
	return &ContextGroup{rt: rt, ref: ref}, nil
}

func (rt *Runtime) newContext(group strix.ContextGroupRef) (*Context, error) {
	if err := rt.guard(); err != nil {
		return nil, err
	}
	ref, err := rt.eng.NewContext(group)
	if err != nil {
		return nil, err
	}
	c := &Context{rt: rt, ref: ref}
	rt.track(c)
	return c, nil
}

func (rt *Runtime) guard() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return errors.Closed(errors.PhaseContext, "runtime")
	}
	return nil
}

func (rt *Runtime) track(c *Context) {
	rt.mu.Lock()
	rt.ctxs[c.ref] = c
	rt.mu.Unlock()
}

func (rt *Runtime) forget(ref strix.ContextRef) {
	rt.mu.Lock()
	delete(rt.ctxs, ref)
	rt.mu.Unlock()
}

// contextFor returns the tracked wrapper for ref. Refs created outside this
// runtime get a transient wrapper; transient contexts carry no shared slot
// state across callbacks.
func (rt *Runtime) contextFor(ref strix.ContextRef) *Context {
	rt.mu.Lock()
	c, ok := rt.ctxs[ref]
	rt.mu.Unlock()
	if ok {
		return c
	}
	return &Context{rt: rt, ref: ref, transient: true}
}

// Close releases every context created through this runtime and drains the
// private-data table. Close is idempotent. The engine is left open.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return nil
	}
	rt.closed = true
	ctxs := make([]*Context, 0, len(rt.ctxs))
	for _, c := range rt.ctxs {
		ctxs = append(ctxs, c)
	}
	rt.mu.Unlock()

	for _, c := range ctxs {
		if err := c.Close(); err != nil {
			rt.log.Warn("context close failed during runtime close", zap.Error(err))
		}
	}
	return rt.priv.Close()
}

// ContextGroup is a host handle on an engine context group.
type ContextGroup struct {
	rt       *Runtime
	ref      strix.ContextGroupRef
	released bool
}

// Ref returns the raw group ref.
func (g *ContextGroup) Ref() strix.ContextGroupRef { return g.ref }

// NewContext creates a context inside this group.
func (g *ContextGroup) NewContext() (*Context, error) {
	if g.released {
		return nil, errors.Closed(errors.PhaseContext, "context group")
	}
	return g.rt.newContext(g.ref)
}

// Release drops the host's retain on the group. Contexts created in the
// group stay alive until closed; the group's heap goes away with the last
// of them.
func (g *ContextGroup) Release() error {
	if g.released {
		return nil
	}
	g.released = true
	return g.rt.eng.ReleaseContextGroup(g.ref)
}
