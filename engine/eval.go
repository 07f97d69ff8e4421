package engine

import (
	strix "github.com/strixvm/strix-go"
)

// EvaluateScript runs script in c. sourceURL and startLine feed stack traces
// and the inspector; both may be zero values. The returned refs follow the
// two-channel convention: a non-null exception ref suppresses the result.
func (e *WazeroEngine) EvaluateScript(c strix.ContextRef, script, sourceURL string, startLine int) (strix.ValueRef, strix.ValueRef, error) {
	src, err := e.writeString(script)
	if err != nil {
		return 0, 0, err
	}
	defer e.freeStr(src)

	url, err := e.writeString(sourceURL)
	if err != nil {
		return 0, 0, err
	}
	defer e.freeStr(url)

	res, exc, err := e.callWithExc(expEvaluateScript,
		uint64(c),
		uint64(src.ptr), uint64(src.size),
		uint64(url.ptr), uint64(url.size),
		uint64(uint32(int32(startLine))))
	if err != nil {
		return 0, 0, err
	}
	return strix.ValueRef(res), exc, nil
}

// CheckSyntax parses script without evaluating it. A syntax problem comes
// back as (false, exception); well-formed source as (true, null).
func (e *WazeroEngine) CheckSyntax(c strix.ContextRef, script, sourceURL string, startLine int) (bool, strix.ValueRef, error) {
	src, err := e.writeString(script)
	if err != nil {
		return false, 0, err
	}
	defer e.freeStr(src)

	url, err := e.writeString(sourceURL)
	if err != nil {
		return false, 0, err
	}
	defer e.freeStr(url)

	res, exc, err := e.callWithExc(expCheckSyntax,
		uint64(c),
		uint64(src.ptr), uint64(src.size),
		uint64(url.ptr), uint64(url.size),
		uint64(uint32(int32(startLine))))
	if err != nil {
		return false, 0, err
	}
	return res != 0, exc, nil
}

// EvaluateModule resolves path through the context's module hooks (or the
// engine's filesystem loader) and runs the module graph. Module evaluation
// has no result value; only the exception channel is surfaced.
func (e *WazeroEngine) EvaluateModule(c strix.ContextRef, path string) (strix.ValueRef, error) {
	p, err := e.writeString(path)
	if err != nil {
		return 0, err
	}
	defer e.freeStr(p)

	return e.call0WithExc(expEvaluateModule, uint64(c), uint64(p.ptr), uint64(p.size))
}

// EvaluateModuleSource runs source as a module registered under key, skipping
// the resolve and fetch hooks for the root of the graph.
func (e *WazeroEngine) EvaluateModuleSource(c strix.ContextRef, source, key string) (strix.ValueRef, error) {
	src, err := e.writeString(source)
	if err != nil {
		return 0, err
	}
	defer e.freeStr(src)

	k, err := e.writeString(key)
	if err != nil {
		return 0, err
	}
	defer e.freeStr(k)

	return e.call0WithExc(expEvaluateModuleSource,
		uint64(c),
		uint64(src.ptr), uint64(src.size),
		uint64(k.ptr), uint64(k.size))
}

func (e *WazeroEngine) GarbageCollect(c strix.ContextRef) error {
	return e.invoke0(expGC, uint64(c))
}

func (e *WazeroEngine) MemoryUsageJSON(c strix.ContextRef) (string, error) {
	res, err := e.invoke1(expMemoryUsage, uint64(c))
	if err != nil {
		return "", err
	}
	return e.takeCString(uint32(res))
}

// PumpMessageLoop runs one turn of the engine's job queue: pending promise
// reactions, timers, and inspector work. It reports false once drained.
func (e *WazeroEngine) PumpMessageLoop(c strix.ContextRef) (bool, error) {
	res, err := e.invoke1(expPumpMessageLoop, uint64(c))
	if err != nil {
		return false, err
	}
	return res != 0, nil
}
