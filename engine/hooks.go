package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	strix "github.com/strixvm/strix-go"
	"github.com/strixvm/strix-go/errors"
	"github.com/strixvm/strix-go/hostdata"
)

// RegisterHook stores hook in the engine's table and returns its non-zero
// callback ID. Only the declared hook shapes are accepted; anything else is
// rejected here so a bad registration never reaches dispatch.
func (e *WazeroEngine) RegisterHook(hook any) (uint32, error) {
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

	tok := e.hooks.Put(hook)
	if tok == 0 {
		return 0, errors.Closed(errors.PhaseEngine, "engine")
	}
	return uint32(tok), nil
}

// UnregisterHook removes the registration. The caller must not unregister a
// hook still named by a live class definition or context hook set; the next
// dispatch to it would raise a TypeError on the script side.
func (e *WazeroEngine) UnregisterHook(id uint32) {
	if _, ok := e.hooks.Take(hostdata.Token(id)); !ok {
		Logger().Warn("unregister of unknown hook", zap.Uint32("id", id))
	}
}

// SetContextHooks installs the per-context hook set. Every non-zero ID is
// shape-checked first so a transposed ID fails here, not mid-script.
func (e *WazeroEngine) SetContextHooks(c strix.ContextRef, h strix.Hooks) error {
	checks := []struct {
		id    uint32
		shape hookShape
		name  string
	}{
		{h.ModuleResolve, hookShapeModuleResolve, impModuleResolve},
		{h.ModuleFetch, hookShapeModuleFetch, impModuleFetch},
		{h.ModuleEvaluate, hookShapeModuleEvaluate, impModuleEvaluate},
		{h.ImportMeta, hookShapeImportMeta, impImportMeta},
		{h.Uncaught, hookShapeUncaught, impUncaught},
		{h.UnhandledRejection, hookShapeUncaught, impUnhandledRejection},
		{h.InspectorMessage, hookShapeMessage, impInspectorMessage},
		{h.PauseEvent, hookShapePause, impPauseEvent},
	}
	for _, chk := range checks {
		if err := e.checkHookID(chk.id, chk.shape); err != nil {
			return errors.Registration(errors.PhaseEngine, "context hook", chk.name, err)
		}
	}

	return e.invoke0(expSetContextHooks, uint64(c),
		uint64(h.ModuleResolve), uint64(h.ModuleFetch),
		uint64(h.ModuleEvaluate), uint64(h.ImportMeta),
		uint64(h.Uncaught), uint64(h.UnhandledRejection),
		uint64(h.InspectorMessage), uint64(h.PauseEvent))
}

// SetVirtualModuleKeys tells the engine which module keys bypass fetch and
// go straight to the evaluate hook. Keys travel as one JSON array.
func (e *WazeroEngine) SetVirtualModuleKeys(c strix.ContextRef, keys []string) error {
	raw, err := json.Marshal(keys)
	if err != nil {
		return errors.Wrap(errors.PhaseModule, errors.KindInvalidInput, err, "encode virtual module keys")
	}
	g, err := e.writeString(string(raw))
	if err != nil {
		return err
	}
	defer e.freeStr(g)

	return e.invoke0(expSetVirtualModKey, uint64(c), uint64(g.ptr), uint64(g.size))
}

// Host module. The engine artifact imports every function below from the
// strix_host namespace; each dispatcher resolves the leading callback ID
// against the hook table and forwards to the registered Go function.

func i32s(n int) []api.ValueType {
	types := make([]api.ValueType, n)
	for i := range types {
		types[i] = api.ValueTypeI32
	}
	return types
}

func (e *WazeroEngine) instantiateHostModule(ctx context.Context) error {
	ret := i32s(1)

	imports := []struct {
		name    string
		fn      api.GoModuleFunction
		params  []api.ValueType
		results []api.ValueType
	}{
		{impCall, api.GoModuleFunc(e.hostCall), i32s(7), ret},
		{impConstruct, api.GoModuleFunc(e.hostConstruct), i32s(6), ret},
		{impInitialize, api.GoModuleFunc(e.hostInitialize), i32s(3), nil},
		{impFinalize, api.GoModuleFunc(e.hostFinalize), i32s(3), nil},
		{impHasInstance, api.GoModuleFunc(e.hostHasInstance), i32s(5), ret},
		{impModuleResolve, api.GoModuleFunc(e.hostModuleResolve), i32s(5), ret},
		{impModuleFetch, api.GoModuleFunc(e.hostModuleFetch), i32s(5), ret},
		{impModuleEvaluate, api.GoModuleFunc(e.hostModuleEvaluate), i32s(4), ret},
		{impImportMeta, api.GoModuleFunc(e.hostImportMeta), i32s(4), ret},
		{impUncaught, e.notifyDispatcher(impUncaught), i32s(5), nil},
		{impUnhandledRejection, e.notifyDispatcher(impUnhandledRejection), i32s(5), nil},
		{impInspectorMessage, api.GoModuleFunc(e.hostInspectorMessage), i32s(4), nil},
		{impPauseEvent, api.GoModuleFunc(e.hostPauseEvent), i32s(3), nil},
		{impLog, api.GoModuleFunc(e.hostLog), i32s(3), nil},
	}

	b := e.runtime.NewHostModuleBuilder(HostModuleName)
	for _, imp := range imports {
		b.NewFunctionBuilder().
			WithGoModuleFunction(imp.fn, imp.params, imp.results).
			Export(imp.name)
	}
	if _, err := b.Instantiate(ctx); err != nil {
		return errors.Instantiation(err)
	}
	return nil
}

// writeExcRef stores exc into the engine-owned exception cell.
func (e *WazeroEngine) writeExcRef(mem api.Memory, cell uint32, exc strix.ValueRef) {
	if cell == 0 || exc.IsNull() {
		return
	}
	if !mem.WriteUint32Le(cell, uint32(exc)) {
		e.log.Error("exception cell write out of bounds", zap.Uint32("cell", cell))
	}
}

// dispatchFailure handles a callback ID that resolves to nothing or to the
// wrong shape. The failure is logged and, when an exception cell is
// available, surfaced to the script as a TypeError so the engine unwinds
// instead of seeing a silent undefined.
func (e *WazeroEngine) dispatchFailure(mem api.Memory, c strix.ContextRef, cell uint32, imp string, cb uint32, err error) {
	e.log.Error("hook dispatch failed",
		zap.String("import", imp),
		zap.Uint32("callback_id", cb),
		zap.Error(err))
	if cell == 0 {
		return
	}
	exc, mkErr := e.MakeError(c, strix.TypeError, fmt.Sprintf("native hook %d is not registered", cb))
	if mkErr != nil {
		e.log.Error("hook failure exception lost", zap.Error(mkErr))
		return
	}
	e.writeExcRef(mem, cell, exc)
}

// call(cb, ctx, fn, this, argv, argc, out_exc) -> result
func (e *WazeroEngine) hostCall(_ context.Context, mod api.Module, stack []uint64) {
	mem := mod.Memory()
	cb := uint32(stack[0])
	c := strix.ContextRef(stack[1])
	fn := strix.ValueRef(stack[2])
	this := strix.ValueRef(stack[3])
	args := e.readRefs(mem, uint32(stack[4]), uint32(stack[5]))
	cell := uint32(stack[6])

	hook, err := hostdata.GetTyped[strix.CallbackFunc](e.hooks, hostdata.Token(cb))
	if err != nil {
		e.dispatchFailure(mem, c, cell, impCall, cb, err)
		stack[0] = 0
		return
	}

	res, exc := hook(c, fn, this, args)
	if !exc.IsNull() {
		e.writeExcRef(mem, cell, exc)
		stack[0] = 0
		return
	}
	stack[0] = uint64(res)
}

// construct(cb, ctx, ctor, argv, argc, out_exc) -> instance
func (e *WazeroEngine) hostConstruct(_ context.Context, mod api.Module, stack []uint64) {
	mem := mod.Memory()
	cb := uint32(stack[0])
	c := strix.ContextRef(stack[1])
	ctor := strix.ValueRef(stack[2])
	args := e.readRefs(mem, uint32(stack[3]), uint32(stack[4]))
	cell := uint32(stack[5])

	hook, err := hostdata.GetTyped[strix.ConstructorFunc](e.hooks, hostdata.Token(cb))
	if err != nil {
		e.dispatchFailure(mem, c, cell, impConstruct, cb, err)
		stack[0] = 0
		return
	}

	res, exc := hook(c, ctor, args)
	if !exc.IsNull() {
		e.writeExcRef(mem, cell, exc)
		stack[0] = 0
		return
	}
	stack[0] = uint64(res)
}

// initialize(cb, ctx, obj)
func (e *WazeroEngine) hostInitialize(_ context.Context, _ api.Module, stack []uint64) {
	cb := uint32(stack[0])
	c := strix.ContextRef(stack[1])
	obj := strix.ValueRef(stack[2])

	hook, err := hostdata.GetTyped[strix.InitializerFunc](e.hooks, hostdata.Token(cb))
	if err != nil {
		e.log.Error("hook dispatch failed",
			zap.String("import", impInitialize), zap.Uint32("callback_id", cb), zap.Error(err))
		return
	}
	hook(c, obj)
}

// finalize(cb, obj, private_token). Fired during collection; there is no
// context and no exception channel.
func (e *WazeroEngine) hostFinalize(_ context.Context, _ api.Module, stack []uint64) {
	cb := uint32(stack[0])
	obj := strix.ValueRef(stack[1])
	priv := uint32(stack[2])

	hook, err := hostdata.GetTyped[strix.FinalizerFunc](e.hooks, hostdata.Token(cb))
	if err != nil {
		e.log.Error("hook dispatch failed",
			zap.String("import", impFinalize), zap.Uint32("callback_id", cb), zap.Error(err))
		return
	}
	hook(obj, priv)
}

// has_instance(cb, ctx, ctor, candidate, out_exc) -> bool
func (e *WazeroEngine) hostHasInstance(_ context.Context, mod api.Module, stack []uint64) {
	mem := mod.Memory()
	cb := uint32(stack[0])
	c := strix.ContextRef(stack[1])
	ctor := strix.ValueRef(stack[2])
	candidate := strix.ValueRef(stack[3])
	cell := uint32(stack[4])

	hook, err := hostdata.GetTyped[strix.HasInstanceFunc](e.hooks, hostdata.Token(cb))
	if err != nil {
		e.dispatchFailure(mem, c, cell, impHasInstance, cb, err)
		stack[0] = 0
		return
	}

	ok, exc := hook(c, ctor, candidate)
	if !exc.IsNull() {
		e.writeExcRef(mem, cell, exc)
		stack[0] = 0
		return
	}
	if ok {
		stack[0] = 1
	} else {
		stack[0] = 0
	}
}

// module_resolve(cb, ctx, specifier, referrer, out_exc) -> key cstring.
// The returned string is allocated in guest memory through the engine's own
// allocator; ownership passes to the engine. Null means resolution failed.
func (e *WazeroEngine) hostModuleResolve(_ context.Context, mod api.Module, stack []uint64) {
	mem := mod.Memory()
	cb := uint32(stack[0])
	c := strix.ContextRef(stack[1])
	specifier := strix.ValueRef(stack[2])
	referrer := strix.ValueRef(stack[3])
	cell := uint32(stack[4])

	hook, err := hostdata.GetTyped[strix.ModuleResolveFunc](e.hooks, hostdata.Token(cb))
	if err != nil {
		e.dispatchFailure(mem, c, cell, impModuleResolve, cb, err)
		stack[0] = 0
		return
	}

	key, exc := hook(c, specifier, referrer)
	if !exc.IsNull() {
		e.writeExcRef(mem, cell, exc)
		stack[0] = 0
		return
	}
	stack[0] = uint64(e.returnCString(impModuleResolve, key))
}

// module_fetch(cb, ctx, key, attributes, out_exc) -> source cstring
func (e *WazeroEngine) hostModuleFetch(_ context.Context, mod api.Module, stack []uint64) {
	mem := mod.Memory()
	cb := uint32(stack[0])
	c := strix.ContextRef(stack[1])
	key := strix.ValueRef(stack[2])
	attributes := strix.ValueRef(stack[3])
	cell := uint32(stack[4])

	hook, err := hostdata.GetTyped[strix.ModuleFetchFunc](e.hooks, hostdata.Token(cb))
	if err != nil {
		e.dispatchFailure(mem, c, cell, impModuleFetch, cb, err)
		stack[0] = 0
		return
	}

	source, exc := hook(c, key, attributes)
	if !exc.IsNull() {
		e.writeExcRef(mem, cell, exc)
		stack[0] = 0
		return
	}
	stack[0] = uint64(e.returnCString(impModuleFetch, source))
}

// module_evaluate(cb, ctx, key, out_exc) -> namespace value
func (e *WazeroEngine) hostModuleEvaluate(_ context.Context, mod api.Module, stack []uint64) {
	mem := mod.Memory()
	cb := uint32(stack[0])
	c := strix.ContextRef(stack[1])
	key := strix.ValueRef(stack[2])
	cell := uint32(stack[3])

	hook, err := hostdata.GetTyped[strix.ModuleEvaluateFunc](e.hooks, hostdata.Token(cb))
	if err != nil {
		e.dispatchFailure(mem, c, cell, impModuleEvaluate, cb, err)
		stack[0] = 0
		return
	}

	res, exc := hook(c, key)
	if !exc.IsNull() {
		e.writeExcRef(mem, cell, exc)
		stack[0] = 0
		return
	}
	stack[0] = uint64(res)
}

// import_meta(cb, ctx, key, out_exc) -> meta object
func (e *WazeroEngine) hostImportMeta(_ context.Context, mod api.Module, stack []uint64) {
	mem := mod.Memory()
	cb := uint32(stack[0])
	c := strix.ContextRef(stack[1])
	key := strix.ValueRef(stack[2])
	cell := uint32(stack[3])

	hook, err := hostdata.GetTyped[strix.ImportMetaFunc](e.hooks, hostdata.Token(cb))
	if err != nil {
		e.dispatchFailure(mem, c, cell, impImportMeta, cb, err)
		stack[0] = 0
		return
	}

	res, exc := hook(c, key)
	if !exc.IsNull() {
		e.writeExcRef(mem, cell, exc)
		stack[0] = 0
		return
	}
	stack[0] = uint64(res)
}

// notifyDispatcher builds the shared dispatcher for the two notification
// imports, uncaught and unhandled_rejection, which carry the same payload:
// (cb, ctx, filename_ptr, filename_len, exception).
func (e *WazeroEngine) notifyDispatcher(imp string) api.GoModuleFunction {
	return api.GoModuleFunc(func(_ context.Context, mod api.Module, stack []uint64) {
		mem := mod.Memory()
		cb := uint32(stack[0])
		c := strix.ContextRef(stack[1])
		filename := e.readBorrowedString(mem, uint32(stack[2]), uint32(stack[3]))
		exc := strix.ValueRef(stack[4])

		hook, err := hostdata.GetTyped[strix.UncaughtFunc](e.hooks, hostdata.Token(cb))
		if err != nil {
			e.log.Error("hook dispatch failed",
				zap.String("import", imp), zap.Uint32("callback_id", cb), zap.Error(err))
			return
		}
		hook(c, filename, exc)
	})
}

// inspector_message(cb, ctx, msg_ptr, msg_len)
func (e *WazeroEngine) hostInspectorMessage(_ context.Context, mod api.Module, stack []uint64) {
	mem := mod.Memory()
	cb := uint32(stack[0])
	c := strix.ContextRef(stack[1])
	msg := e.readBorrowedString(mem, uint32(stack[2]), uint32(stack[3]))

	hook, err := hostdata.GetTyped[strix.MessageFunc](e.hooks, hostdata.Token(cb))
	if err != nil {
		e.log.Error("hook dispatch failed",
			zap.String("import", impInspectorMessage), zap.Uint32("callback_id", cb), zap.Error(err))
		return
	}
	hook(c, msg)
}

// pause_event(cb, ctx, event)
func (e *WazeroEngine) hostPauseEvent(_ context.Context, _ api.Module, stack []uint64) {
	cb := uint32(stack[0])
	c := strix.ContextRef(stack[1])
	event := strix.PauseEvent(uint32(stack[2]))

	hook, err := hostdata.GetTyped[strix.PauseFunc](e.hooks, hostdata.Token(cb))
	if err != nil {
		e.log.Error("hook dispatch failed",
			zap.String("import", impPauseEvent), zap.Uint32("callback_id", cb), zap.Error(err))
		return
	}
	hook(c, event)
}

// log(level, msg_ptr, msg_len). Engine diagnostics feed the host logger.
func (e *WazeroEngine) hostLog(_ context.Context, mod api.Module, stack []uint64) {
	msg := e.readBorrowedString(mod.Memory(), uint32(stack[1]), uint32(stack[2]))
	switch uint32(stack[0]) {
	case 0:
		e.log.Debug(msg, zap.String("source", "engine"))
	case 1:
		e.log.Info(msg, zap.String("source", "engine"))
	case 2:
		e.log.Warn(msg, zap.String("source", "engine"))
	default:
		e.log.Error(msg, zap.String("source", "engine"))
	}
}

// returnCString hands a hook's string result to the engine, allocated with
// the engine's allocator so the engine can free it. Allocation failure maps
// to a null return, which the engine treats as hook failure.
func (e *WazeroEngine) returnCString(imp, s string) uint32 {
	ptr, err := e.writeCStringForGuest(s)
	if err != nil {
		e.log.Error("hook result allocation failed", zap.String("import", imp), zap.Error(err))
		return 0
	}
	return ptr
}
