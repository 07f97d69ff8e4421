package engine

import (
	strix "github.com/strixvm/strix-go"
	"github.com/strixvm/strix-go/errors"
)

func (e *WazeroEngine) NewContextGroup() (strix.ContextGroupRef, error) {
	res, err := e.invoke1(expContextGroupNew)
	if err != nil {
		return 0, err
	}
	if res == 0 {
		return 0, errors.Internal(errors.PhaseEngine, "engine returned null context group")
	}
	return strix.ContextGroupRef(res), nil
}

func (e *WazeroEngine) ReleaseContextGroup(g strix.ContextGroupRef) error {
	return e.invoke0(expContextGroupRelease, uint64(g))
}

// NewContext creates a context inside g, or in a fresh group of its own when
// g is null. The context starts with one retain count.
func (e *WazeroEngine) NewContext(g strix.ContextGroupRef) (strix.ContextRef, error) {
	res, err := e.invoke1(expContextNew, uint64(g))
	if err != nil {
		return 0, err
	}
	if res == 0 {
		return 0, errors.Internal(errors.PhaseEngine, "engine returned null context")
	}
	return strix.ContextRef(res), nil
}

func (e *WazeroEngine) RetainContext(c strix.ContextRef) error {
	return e.invoke0(expContextRetain, uint64(c))
}

// ReleaseContext drops one retain count. When the last count goes, the
// engine tears the context down and every ref scoped to it becomes invalid.
func (e *WazeroEngine) ReleaseContext(c strix.ContextRef) error {
	return e.invoke0(expContextRelease, uint64(c))
}

func (e *WazeroEngine) ContextGroupOf(c strix.ContextRef) (strix.ContextGroupRef, error) {
	res, err := e.invoke1(expContextGroupOf, uint64(c))
	if err != nil {
		return 0, err
	}
	return strix.ContextGroupRef(res), nil
}

func (e *WazeroEngine) ContextName(c strix.ContextRef) (string, error) {
	res, err := e.invoke1(expContextName, uint64(c))
	if err != nil {
		return "", err
	}
	return e.takeCString(uint32(res))
}

func (e *WazeroEngine) SetContextName(c strix.ContextRef, name string) error {
	g, err := e.writeString(name)
	if err != nil {
		return err
	}
	defer e.freeStr(g)
	return e.invoke0(expContextSetName, uint64(c), uint64(g.ptr), uint64(g.size))
}

func (e *WazeroEngine) ContextData(c strix.ContextRef) (uint32, error) {
	res, err := e.invoke1(expContextData, uint64(c))
	if err != nil {
		return 0, err
	}
	return uint32(res), nil
}

func (e *WazeroEngine) SetContextData(c strix.ContextRef, token uint32) error {
	return e.invoke0(expContextSetData, uint64(c), uint64(token))
}

func (e *WazeroEngine) GlobalObject(c strix.ContextRef) (strix.ValueRef, error) {
	res, err := e.invoke1(expGlobalObject, uint64(c))
	if err != nil {
		return 0, err
	}
	return strix.ValueRef(res), nil
}
