package strix

import (
	"context"
	"fmt"
)

// ContextGroupRef identifies an engine context group. The zero ref is null.
type ContextGroupRef uint32

// ContextRef identifies one execution context. The zero ref is null.
type ContextRef uint32

// ValueRef identifies an engine-managed value. A ValueRef is meaningful only
// together with the ContextRef it was obtained from, and only until that
// context is released. The zero ref is null; fallible operations use it as
// the "no exception" sentinel.
type ValueRef uint32

// ClassRef identifies a registered class definition. The zero ref is null.
type ClassRef uint32

func (r ContextGroupRef) IsNull() bool { return r == 0 }
func (r ContextRef) IsNull() bool      { return r == 0 }
func (r ValueRef) IsNull() bool        { return r == 0 }
func (r ClassRef) IsNull() bool        { return r == 0 }

func (r ContextGroupRef) String() string { return fmt.Sprintf("ContextGroupRef(0x%x)", uint32(r)) }
func (r ContextRef) String() string      { return fmt.Sprintf("ContextRef(0x%x)", uint32(r)) }
func (r ValueRef) String() string        { return fmt.Sprintf("ValueRef(0x%x)", uint32(r)) }
func (r ClassRef) String() string        { return fmt.Sprintf("ClassRef(0x%x)", uint32(r)) }

// MemoryUsage reports engine heap statistics, decoded from the engine's
// JSON report by vm.Context.MemoryUsage.
type MemoryUsage struct {
	HeapSize             uint64 `json:"heapSize"`
	HeapCapacity         uint64 `json:"heapCapacity"`
	ExtraSize            uint64 `json:"extraMemorySize"`
	ObjectCount          uint64 `json:"objectCount"`
	ProtectedObjectCount uint64 `json:"protectedObjectCount"`
	GlobalObjectCount    uint64 `json:"globalObjectCount"`
}

// ContextManager covers context group and context lifecycle.
type ContextManager interface {
	NewContextGroup() (ContextGroupRef, error)
	ReleaseContextGroup(g ContextGroupRef) error

	// NewContext creates a context, inside g when g is non-null.
	// The context holds one engine retain count until ReleaseContext.
	NewContext(g ContextGroupRef) (ContextRef, error)
	RetainContext(c ContextRef) error
	ReleaseContext(c ContextRef) error
	ContextGroupOf(c ContextRef) (ContextGroupRef, error)

	ContextName(c ContextRef) (string, error)
	SetContextName(c ContextRef, name string) error

	// ContextData and SetContextData access the context's single host data
	// word. The engine stores the token without interpreting it.
	ContextData(c ContextRef) (uint32, error)
	SetContextData(c ContextRef, token uint32) error

	GlobalObject(c ContextRef) (ValueRef, error)
}

// Evaluator covers script and module execution.
type Evaluator interface {
	EvaluateScript(c ContextRef, script, sourceURL string, startLine int) (ValueRef, ValueRef, error)
	CheckSyntax(c ContextRef, script, sourceURL string, startLine int) (bool, ValueRef, error)

	// EvaluateModule resolves path through the engine's module loader and
	// runs the module graph. Only the exception ref is surfaced.
	EvaluateModule(c ContextRef, path string) (ValueRef, error)
	EvaluateModuleSource(c ContextRef, source, key string) (ValueRef, error)

	GarbageCollect(c ContextRef) error
	MemoryUsageJSON(c ContextRef) (string, error)

	// PumpMessageLoop runs one turn of the engine's internal job queue.
	// It reports false once no work remains.
	PumpMessageLoop(c ContextRef) (bool, error)
}

// ValueFactory constructs engine values.
type ValueFactory interface {
	MakeUndefined(c ContextRef) (ValueRef, error)
	MakeNull(c ContextRef) (ValueRef, error)
	MakeBoolean(c ContextRef, v bool) (ValueRef, error)
	MakeNumber(c ContextRef, v float64) (ValueRef, error)
	MakeString(c ContextRef, s string) (ValueRef, error)
	MakeSymbol(c ContextRef, description string) (ValueRef, error)
	MakeFromJSON(c ContextRef, src string) (ValueRef, ValueRef, error)
	MakeError(c ContextRef, kind ErrorKind, message string) (ValueRef, error)
}

// ValueOps covers inspection, comparison, conversion, and rooting.
type ValueOps interface {
	Kind(c ContextRef, v ValueRef) (ValueKind, error)

	IsStrictEqual(c ContextRef, a, b ValueRef) (bool, error)
	IsLooseEqual(c ContextRef, a, b ValueRef) (bool, ValueRef, error)
	IsInstanceOf(c ContextRef, v, ctor ValueRef) (bool, ValueRef, error)

	ToBoolean(c ContextRef, v ValueRef) (bool, error)
	ToNumber(c ContextRef, v ValueRef) (float64, ValueRef, error)
	ToString(c ContextRef, v ValueRef) (string, ValueRef, error)
	ToObject(c ContextRef, v ValueRef) (ValueRef, ValueRef, error)
	ToJSON(c ContextRef, v ValueRef, indent int) (string, ValueRef, error)

	// Protect increments the external root count for v; Unprotect decrements
	// it. Counts are counters, not flags: v stays ineligible for collection
	// while its count is positive.
	Protect(c ContextRef, v ValueRef) error
	Unprotect(c ContextRef, v ValueRef) error
}

// ObjectOps covers the object surface: properties, prototype, call,
// construct, and the private data token.
type ObjectOps interface {
	// MakeObject instantiates class (null for a plain object), seeding the
	// private slot with privateToken (zero for none).
	MakeObject(c ContextRef, class ClassRef, privateToken uint32) (ValueRef, error)

	GetProperty(c ContextRef, obj ValueRef, name string) (ValueRef, ValueRef, error)
	SetProperty(c ContextRef, obj ValueRef, name string, v ValueRef) (ValueRef, error)
	HasProperty(c ContextRef, obj ValueRef, name string) (bool, ValueRef, error)
	DeleteProperty(c ContextRef, obj ValueRef, name string) (bool, ValueRef, error)

	GetPropertyForKey(c ContextRef, obj, key ValueRef) (ValueRef, ValueRef, error)
	SetPropertyForKey(c ContextRef, obj, key, v ValueRef) (ValueRef, error)
	HasPropertyForKey(c ContextRef, obj, key ValueRef) (bool, ValueRef, error)
	DeletePropertyForKey(c ContextRef, obj, key ValueRef) (bool, ValueRef, error)

	GetPropertyAtIndex(c ContextRef, obj ValueRef, index uint32) (ValueRef, ValueRef, error)
	SetPropertyAtIndex(c ContextRef, obj ValueRef, index uint32, v ValueRef) (ValueRef, error)

	PropertyNames(c ContextRef, obj ValueRef) ([]string, error)

	GetPrototype(c ContextRef, obj ValueRef) (ValueRef, error)
	SetPrototype(c ContextRef, obj, proto ValueRef) error

	Call(c ContextRef, fn, this ValueRef, args []ValueRef) (ValueRef, ValueRef, error)

	// Construct guarantees on success that the returned ref denotes a
	// freshly constructed object.
	Construct(c ContextRef, ctor ValueRef, args []ValueRef) (ValueRef, ValueRef, error)

	PrivateToken(c ContextRef, obj ValueRef) (uint32, error)
	SetPrivateToken(c ContextRef, obj ValueRef, token uint32) error
}

// ClassManager registers class definitions and native function objects.
type ClassManager interface {
	RegisterClass(def ClassDef) (ClassRef, error)
	ReleaseClass(cls ClassRef) error

	// MakeFunction creates a function object whose invocation dispatches to
	// the hook registered under callbackID.
	MakeFunction(c ContextRef, name string, callbackID uint32) (ValueRef, error)
}

// HookRegistry stores host hooks and wires them to contexts. RegisterHook
// accepts exactly the hook shapes declared in this package (CallbackFunc,
// ConstructorFunc, InitializerFunc, FinalizerFunc, HasInstanceFunc,
// ModuleResolveFunc, ModuleFetchFunc, ModuleEvaluateFunc, ImportMetaFunc,
// UncaughtFunc, MessageFunc, PauseFunc) and returns the non-zero callback ID
// the other interfaces consume.
type HookRegistry interface {
	RegisterHook(hook any) (uint32, error)
	UnregisterHook(id uint32)

	SetContextHooks(c ContextRef, h Hooks) error
	SetVirtualModuleKeys(c ContextRef, keys []string) error
}

// InspectorOps covers the debugger message pipe.
type InspectorOps interface {
	SetInspectable(c ContextRef, enabled bool) error
	InspectorSendMessage(c ContextRef, message string) error
	InspectorDisconnect(c ContextRef) error
	InspectorIsConnected(c ContextRef) (bool, error)
}

// Engine is the full contract an engine implementation provides. The
// production implementation lives in package engine and drives the
// strix.wasm artifact through wazero.
type Engine interface {
	ContextManager
	Evaluator
	ValueFactory
	ValueOps
	ObjectOps
	ClassManager
	HookRegistry
	InspectorOps

	Close(ctx context.Context) error
}
