package strix

// Hook shapes. Each type below is one of the fixed callback signatures the
// engine can invoke on the host. Fallible shapes return their result plus an
// exception ValueRef; a null exception means success, and a non-null
// exception suppresses the result. A null result with a null exception reads
// as undefined. Finalizers and initializers have no exception channel by
// engine contract.

// CallbackFunc handles a plain function call: (function, this, argument
// list) to (result, exception).
type CallbackFunc func(c ContextRef, fn, this ValueRef, args []ValueRef) (ValueRef, ValueRef)

// ConstructorFunc handles `new`: (constructor, argument list) to
// (instance, exception). There is no function/this pair.
type ConstructorFunc func(c ContextRef, ctor ValueRef, args []ValueRef) (ValueRef, ValueRef)

// InitializerFunc runs right after an instance of the class is allocated.
type InitializerFunc func(c ContextRef, obj ValueRef)

// FinalizerFunc runs while the engine collects an object. It receives no
// context, must not call back into the engine, and cannot fail. privateToken
// is the object's private-data token at collection time, zero when none was
// set; the engine will not report the token again.
type FinalizerFunc func(obj ValueRef, privateToken uint32)

// HasInstanceFunc answers `candidate instanceof ctor`.
type HasInstanceFunc func(c ContextRef, ctor, candidate ValueRef) (bool, ValueRef)

// ModuleResolveFunc maps (specifier, referrer) to the module key the loader
// caches under.
type ModuleResolveFunc func(c ContextRef, specifier, referrer ValueRef) (string, ValueRef)

// ModuleFetchFunc returns the source text for a resolved module key.
type ModuleFetchFunc func(c ContextRef, key, attributes ValueRef) (string, ValueRef)

// ModuleEvaluateFunc evaluates a virtual module key, returning its namespace
// value.
type ModuleEvaluateFunc func(c ContextRef, key ValueRef) (ValueRef, ValueRef)

// ImportMetaFunc supplies the object whose properties seed import.meta for
// the module key.
type ImportMetaFunc func(c ContextRef, key ValueRef) (ValueRef, ValueRef)

// UncaughtFunc observes an exception nobody caught. It is notification-only.
type UncaughtFunc func(c ContextRef, filename string, exc ValueRef)

// MessageFunc receives one inspector protocol message, an opaque JSON text.
type MessageFunc func(c ContextRef, message string)

// PauseFunc receives debugger lifecycle events on the context goroutine.
type PauseFunc func(c ContextRef, event PauseEvent)

// ClassDef describes the hook set shared by every object instantiated from
// the class. Fields hold callback IDs from HookRegistry.RegisterHook; zero
// means the hook is absent. The engine invokes Finalizer for every dying
// instance whose class declares one, whether or not the instance carries
// private data.
type ClassDef struct {
	Name string

	Constructor    uint32
	CallAsFunction uint32
	Initializer    uint32
	Finalizer      uint32
	HasInstance    uint32
}

// Hooks is the per-context hook set installed by SetContextHooks. Fields
// hold callback IDs; zero leaves the corresponding engine hook unset.
// Module hooks are all-or-nothing at the engine level: setting any of the
// four replaces the engine's default loader for the context.
type Hooks struct {
	ModuleResolve  uint32
	ModuleFetch    uint32
	ModuleEvaluate uint32
	ImportMeta     uint32

	Uncaught           uint32
	UnhandledRejection uint32

	InspectorMessage uint32
	PauseEvent       uint32
}
