package engine

import (
	"context"
	"crypto/rand"
	"io"
	"io/fs"
	"os"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	strix "github.com/strixvm/strix-go"
	"github.com/strixvm/strix-go/errors"
	"github.com/strixvm/strix-go/hostdata"
)

// WazeroEngine drives the strix.wasm artifact through a wazero runtime.
//
// The engine is single-threaded by contract: the artifact re-enters the host
// through registered hooks while a guest call is still on the stack, so all
// engine methods, including those reached from inside hooks, must run on the
// goroutine that made the outer call. Serializing calls with a lock would
// deadlock that reentrancy instead of fixing it.
type WazeroEngine struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache
	mod     api.Module
	mem     api.Memory
	fns     map[string]api.Function
	hooks   *hostdata.Table

	// runCtx is the context guest calls run under, captured at construction.
	runCtx context.Context
	closed atomic.Bool
	log    *zap.Logger
}

var _ strix.Engine = (*WazeroEngine)(nil)

// Config holds engine construction options.
type Config struct {
	// Logger overrides the package logger for this engine instance.
	Logger *zap.Logger

	// FS is mounted at / for the engine's default module loader. Nil leaves
	// the guest without a filesystem; EvaluateModule then depends entirely
	// on the context's module hooks.
	FS fs.FS

	// MemoryLimitPages caps guest memory in 64KiB pages.
	// 0 means the wazero default (65536 pages = 4GiB).
	MemoryLimitPages uint32

	// CacheDir enables wazero's compilation cache, cutting repeat startup
	// cost for the same artifact.
	CacheDir string

	// Stdout and Stderr receive the artifact's WASI output. Nil discards.
	Stdout io.Writer
	Stderr io.Writer
}

// New compiles and instantiates the engine artifact from wasmBytes. The
// returned engine owns its wazero runtime; Close releases everything.
func New(ctx context.Context, wasmBytes []byte, cfg *Config) (*WazeroEngine, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	log := cfg.Logger
	if log == nil {
		log = Logger()
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	var cache wazero.CompilationCache
	if cfg.CacheDir != "" {
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(cfg.CacheDir)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseEngine, errors.KindInvalidInput, err, "open compilation cache")
		}
		runtimeCfg = runtimeCfg.WithCompilationCache(cache)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	ok := false
	defer func() {
		if !ok {
			_ = rt.Close(ctx)
			if cache != nil {
				_ = cache.Close(ctx)
			}
		}
	}()

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		return nil, errors.Instantiation(err)
	}

	e := &WazeroEngine{
		runtime: rt,
		cache:   cache,
		hooks:   hostdata.NewTable(),
		runCtx:  ctx,
		log:     log,
	}

	if err := e.instantiateHostModule(ctx); err != nil {
		return nil, err
	}

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindInstantiation, err, "compile engine module")
	}

	fsCfg := wazero.NewFSConfig()
	if cfg.FS != nil {
		fsCfg = fsCfg.WithFSMount(cfg.FS, "/")
	}

	modCfg := wazero.NewModuleConfig().
		WithName("strix").
		WithStartFunctions("_initialize").
		WithFSConfig(fsCfg).
		WithRandSource(rand.Reader).
		WithSysWalltime().
		WithSysNanotime()
	if cfg.Stdout != nil {
		modCfg = modCfg.WithStdout(cfg.Stdout)
	}
	if cfg.Stderr != nil {
		modCfg = modCfg.WithStderr(cfg.Stderr)
	}

	mod, err := rt.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	e.mod = mod

	e.mem = mod.Memory()
	if e.mem == nil {
		return nil, errors.Instantiation(errors.Internal(errors.PhaseEngine, "artifact exports no memory"))
	}

	e.fns = make(map[string]api.Function, len(requiredExports))
	var missing []string
	for _, name := range requiredExports {
		fn := mod.ExportedFunction(name)
		if fn == nil {
			missing = append(missing, name)
			continue
		}
		e.fns[name] = fn
	}
	if len(missing) > 0 {
		return nil, errors.NewMissingExportsError(missing)
	}

	log.Debug("engine instantiated",
		zap.Int("exports", len(e.fns)),
		zap.Uint32("memory_pages", e.mem.Size()/65536))

	ok = true
	return e, nil
}

// NewFromFile reads the engine artifact from path and calls New.
func NewFromFile(ctx context.Context, path string, cfg *Config) (*WazeroEngine, error) {
	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindNotFound, err, "read engine artifact")
	}
	return New(ctx, wasmBytes, cfg)
}

// Close releases the runtime and every hook registration. Refs obtained from
// this engine are invalid afterwards. Close is idempotent.
func (e *WazeroEngine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.hooks.Close()
	err := e.runtime.Close(ctx)
	if e.cache != nil {
		if cerr := e.cache.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// invoke calls one resolved export. Traps and post-close use surface here as
// transport errors; script exceptions never do.
func (e *WazeroEngine) invoke(name string, params ...uint64) ([]uint64, error) {
	if e.closed.Load() {
		return nil, errors.Closed(errors.PhaseEngine, "engine")
	}
	fn := e.fns[name]
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseEngine, "export", name)
	}
	res, err := fn.Call(e.runCtx, params...)
	if err != nil {
		return nil, errors.Trap(name, err)
	}
	return res, nil
}

func (e *WazeroEngine) invoke0(name string, params ...uint64) error {
	_, err := e.invoke(name, params...)
	return err
}

func (e *WazeroEngine) invoke1(name string, params ...uint64) (uint64, error) {
	res, err := e.invoke(name, params...)
	if err != nil {
		return 0, err
	}
	if len(res) == 0 {
		return 0, errors.Internal(errors.PhaseEngine, "export "+name+" returned no result")
	}
	return res[0], nil
}

// callWithExc invokes a fallible export, appending a fresh exception cell to
// params. It returns the export's u32 result and the exception ref the
// engine wrote, null on success.
func (e *WazeroEngine) callWithExc(name string, params ...uint64) (uint32, strix.ValueRef, error) {
	exc, err := e.newExcCell()
	if err != nil {
		return 0, 0, err
	}
	res, err := e.invoke1(name, append(params, uint64(exc))...)
	if err != nil {
		e.guestFree(exc, 4)
		return 0, 0, err
	}
	return uint32(res), e.takeExcCell(exc), nil
}

// call0WithExc is callWithExc for exports with no result value.
func (e *WazeroEngine) call0WithExc(name string, params ...uint64) (strix.ValueRef, error) {
	exc, err := e.newExcCell()
	if err != nil {
		return 0, err
	}
	if err := e.invoke0(name, append(params, uint64(exc))...); err != nil {
		e.guestFree(exc, 4)
		return 0, err
	}
	return e.takeExcCell(exc), nil
}
