package engine

import (
	"github.com/tetratelabs/wazero/api"

	strix "github.com/strixvm/strix-go"
)

func (e *WazeroEngine) MakeUndefined(c strix.ContextRef) (strix.ValueRef, error) {
	res, err := e.invoke1(expUndefined, uint64(c))
	if err != nil {
		return 0, err
	}
	return strix.ValueRef(res), nil
}

func (e *WazeroEngine) MakeNull(c strix.ContextRef) (strix.ValueRef, error) {
	res, err := e.invoke1(expNull, uint64(c))
	if err != nil {
		return 0, err
	}
	return strix.ValueRef(res), nil
}

func (e *WazeroEngine) MakeBoolean(c strix.ContextRef, v bool) (strix.ValueRef, error) {
	arg := uint64(0)
	if v {
		arg = 1
	}
	res, err := e.invoke1(expBoolean, uint64(c), arg)
	if err != nil {
		return 0, err
	}
	return strix.ValueRef(res), nil
}

func (e *WazeroEngine) MakeNumber(c strix.ContextRef, v float64) (strix.ValueRef, error) {
	res, err := e.invoke1(expNumber, uint64(c), api.EncodeF64(v))
	if err != nil {
		return 0, err
	}
	return strix.ValueRef(res), nil
}

func (e *WazeroEngine) MakeString(c strix.ContextRef, s string) (strix.ValueRef, error) {
	g, err := e.writeString(s)
	if err != nil {
		return 0, err
	}
	defer e.freeStr(g)

	res, err := e.invoke1(expString, uint64(c), uint64(g.ptr), uint64(g.size))
	if err != nil {
		return 0, err
	}
	return strix.ValueRef(res), nil
}

func (e *WazeroEngine) MakeSymbol(c strix.ContextRef, description string) (strix.ValueRef, error) {
	g, err := e.writeString(description)
	if err != nil {
		return 0, err
	}
	defer e.freeStr(g)

	res, err := e.invoke1(expSymbol, uint64(c), uint64(g.ptr), uint64(g.size))
	if err != nil {
		return 0, err
	}
	return strix.ValueRef(res), nil
}

// MakeFromJSON parses src as JSON. Malformed input surfaces as a SyntaxError
// on the exception channel, not as a transport error.
func (e *WazeroEngine) MakeFromJSON(c strix.ContextRef, src string) (strix.ValueRef, strix.ValueRef, error) {
	g, err := e.writeString(src)
	if err != nil {
		return 0, 0, err
	}
	defer e.freeStr(g)

	res, exc, err := e.callWithExc(expFromJSON, uint64(c), uint64(g.ptr), uint64(g.size))
	if err != nil {
		return 0, 0, err
	}
	return strix.ValueRef(res), exc, nil
}

func (e *WazeroEngine) MakeError(c strix.ContextRef, kind strix.ErrorKind, message string) (strix.ValueRef, error) {
	g, err := e.writeString(message)
	if err != nil {
		return 0, err
	}
	defer e.freeStr(g)

	res, err := e.invoke1(expMakeError, uint64(c), uint64(kind), uint64(g.ptr), uint64(g.size))
	if err != nil {
		return 0, err
	}
	return strix.ValueRef(res), nil
}

func (e *WazeroEngine) Kind(c strix.ContextRef, v strix.ValueRef) (strix.ValueKind, error) {
	res, err := e.invoke1(expValueKind, uint64(c), uint64(v))
	if err != nil {
		return strix.KindUndefined, err
	}
	return strix.ValueKind(res), nil
}

func (e *WazeroEngine) IsStrictEqual(c strix.ContextRef, a, b strix.ValueRef) (bool, error) {
	res, err := e.invoke1(expStrictEquals, uint64(c), uint64(a), uint64(b))
	if err != nil {
		return false, err
	}
	return res != 0, nil
}

// IsLooseEqual applies the == algorithm, which can run script through
// valueOf and toString, hence the exception channel.
func (e *WazeroEngine) IsLooseEqual(c strix.ContextRef, a, b strix.ValueRef) (bool, strix.ValueRef, error) {
	res, exc, err := e.callWithExc(expLooseEquals, uint64(c), uint64(a), uint64(b))
	if err != nil {
		return false, 0, err
	}
	return res != 0, exc, nil
}

func (e *WazeroEngine) IsInstanceOf(c strix.ContextRef, v, ctor strix.ValueRef) (bool, strix.ValueRef, error) {
	res, exc, err := e.callWithExc(expInstanceOf, uint64(c), uint64(v), uint64(ctor))
	if err != nil {
		return false, 0, err
	}
	return res != 0, exc, nil
}

func (e *WazeroEngine) ToBoolean(c strix.ContextRef, v strix.ValueRef) (bool, error) {
	res, err := e.invoke1(expToBoolean, uint64(c), uint64(v))
	if err != nil {
		return false, err
	}
	return res != 0, nil
}

func (e *WazeroEngine) ToNumber(c strix.ContextRef, v strix.ValueRef) (float64, strix.ValueRef, error) {
	exc, err := e.newExcCell()
	if err != nil {
		return 0, 0, err
	}
	res, err := e.invoke1(expToNumber, uint64(c), uint64(v), uint64(exc))
	if err != nil {
		e.guestFree(exc, 4)
		return 0, 0, err
	}
	return api.DecodeF64(res), e.takeExcCell(exc), nil
}

func (e *WazeroEngine) ToString(c strix.ContextRef, v strix.ValueRef) (string, strix.ValueRef, error) {
	res, exc, err := e.callWithExc(expToString, uint64(c), uint64(v))
	if err != nil || exc != 0 {
		return "", exc, err
	}
	s, err := e.takeCString(res)
	return s, 0, err
}

func (e *WazeroEngine) ToObject(c strix.ContextRef, v strix.ValueRef) (strix.ValueRef, strix.ValueRef, error) {
	res, exc, err := e.callWithExc(expToObject, uint64(c), uint64(v))
	if err != nil {
		return 0, 0, err
	}
	return strix.ValueRef(res), exc, nil
}

// ToJSON serializes v the way JSON.stringify would, indented by indent
// spaces when indent is positive.
func (e *WazeroEngine) ToJSON(c strix.ContextRef, v strix.ValueRef, indent int) (string, strix.ValueRef, error) {
	res, exc, err := e.callWithExc(expToJSON, uint64(c), uint64(v), uint64(uint32(int32(indent))))
	if err != nil || exc != 0 {
		return "", exc, err
	}
	s, err := e.takeCString(res)
	return s, 0, err
}

// Protect adds one external root count to v. Counts accumulate; the value
// stays collectable only after every count is dropped again.
func (e *WazeroEngine) Protect(c strix.ContextRef, v strix.ValueRef) error {
	return e.invoke0(expProtect, uint64(c), uint64(v))
}

func (e *WazeroEngine) Unprotect(c strix.ContextRef, v strix.ValueRef) error {
	return e.invoke0(expUnprotect, uint64(c), uint64(v))
}
