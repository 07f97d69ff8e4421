package testvm

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	strix "github.com/strixvm/strix-go"
	"github.com/strixvm/strix-go/errors"
)

// Value factory.

func (e *Engine) MakeUndefined(c strix.ContextRef) (strix.ValueRef, error) {
	if _, err := e.ctx(c); err != nil {
		return 0, err
	}
	return e.put(c, &valueRec{kind: strix.KindUndefined}), nil
}

func (e *Engine) MakeNull(c strix.ContextRef) (strix.ValueRef, error) {
	if _, err := e.ctx(c); err != nil {
		return 0, err
	}
	return e.put(c, &valueRec{kind: strix.KindNull}), nil
}

func (e *Engine) MakeBoolean(c strix.ContextRef, v bool) (strix.ValueRef, error) {
	if _, err := e.ctx(c); err != nil {
		return 0, err
	}
	return e.put(c, &valueRec{kind: strix.KindBoolean, b: v}), nil
}

func (e *Engine) MakeNumber(c strix.ContextRef, v float64) (strix.ValueRef, error) {
	if _, err := e.ctx(c); err != nil {
		return 0, err
	}
	return e.put(c, &valueRec{kind: strix.KindNumber, n: v}), nil
}

func (e *Engine) MakeString(c strix.ContextRef, s string) (strix.ValueRef, error) {
	if _, err := e.ctx(c); err != nil {
		return 0, err
	}
	return e.put(c, &valueRec{kind: strix.KindString, s: s}), nil
}

func (e *Engine) MakeSymbol(c strix.ContextRef, description string) (strix.ValueRef, error) {
	if _, err := e.ctx(c); err != nil {
		return 0, err
	}
	return e.put(c, &valueRec{kind: strix.KindSymbol, s: description}), nil
}

func (e *Engine) MakeFromJSON(c strix.ContextRef, src string) (strix.ValueRef, strix.ValueRef, error) {
	if _, err := e.ctx(c); err != nil {
		return 0, 0, err
	}
	var decoded any
	if err := json.Unmarshal([]byte(src), &decoded); err != nil {
		exc, mkErr := e.MakeError(c, strix.GenericError, "JSON parse error: "+err.Error())
		if mkErr != nil {
			return 0, 0, mkErr
		}
		if rec, vErr := e.val(c, exc); vErr == nil {
			e.setProp(rec.obj, "name", e.put(c, &valueRec{kind: strix.KindString, s: "SyntaxError"}))
		}
		return 0, exc, nil
	}
	return e.fromGo(c, decoded), 0, nil
}

func (e *Engine) fromGo(c strix.ContextRef, v any) strix.ValueRef {
	switch t := v.(type) {
	case nil:
		return e.put(c, &valueRec{kind: strix.KindNull})
	case bool:
		return e.put(c, &valueRec{kind: strix.KindBoolean, b: t})
	case float64:
		return e.put(c, &valueRec{kind: strix.KindNumber, n: t})
	case string:
		return e.put(c, &valueRec{kind: strix.KindString, s: t})
	case []any:
		obj := newObject()
		ref := e.put(c, &valueRec{kind: strix.KindObject, obj: obj})
		for i, elem := range t {
			e.setProp(obj, strconv.Itoa(i), e.fromGo(c, elem))
		}
		e.setProp(obj, "length", e.put(c, &valueRec{kind: strix.KindNumber, n: float64(len(t))}))
		return ref
	case map[string]any:
		obj := newObject()
		ref := e.put(c, &valueRec{kind: strix.KindObject, obj: obj})
		for k, elem := range t {
			e.setProp(obj, k, e.fromGo(c, elem))
		}
		return ref
	default:
		return e.put(c, &valueRec{kind: strix.KindUndefined})
	}
}

// MakeError builds an error-shaped object carrying name, message, and an
// empty stack, matching what the typed exception reader expects.
func (e *Engine) MakeError(c strix.ContextRef, kind strix.ErrorKind, message string) (strix.ValueRef, error) {
	if _, err := e.ctx(c); err != nil {
		return 0, err
	}
	obj := newObject()
	ref := e.put(c, &valueRec{kind: strix.KindObject, obj: obj})
	e.setProp(obj, "name", e.put(c, &valueRec{kind: strix.KindString, s: kind.String()}))
	e.setProp(obj, "message", e.put(c, &valueRec{kind: strix.KindString, s: message}))
	e.setProp(obj, "stack", e.put(c, &valueRec{kind: strix.KindString, s: kind.String() + ": " + message}))
	return ref, nil
}

// Inspection and comparison.

func (e *Engine) Kind(c strix.ContextRef, v strix.ValueRef) (strix.ValueKind, error) {
	rec, err := e.val(c, v)
	if err != nil {
		return 0, err
	}
	return rec.kind, nil
}

func (e *Engine) IsStrictEqual(c strix.ContextRef, a, b strix.ValueRef) (bool, error) {
	ra, err := e.val(c, a)
	if err != nil {
		return false, err
	}
	rb, err := e.val(c, b)
	if err != nil {
		return false, err
	}
	if ra.kind != rb.kind {
		return false, nil
	}
	switch ra.kind {
	case strix.KindUndefined, strix.KindNull:
		return true, nil
	case strix.KindBoolean:
		return ra.b == rb.b, nil
	case strix.KindNumber:
		return ra.n == rb.n, nil
	case strix.KindString:
		return ra.s == rb.s, nil
	case strix.KindSymbol:
		return a == b, nil
	default:
		return ra.obj == rb.obj, nil
	}
}

func (e *Engine) IsLooseEqual(c strix.ContextRef, a, b strix.ValueRef) (bool, strix.ValueRef, error) {
	ra, err := e.val(c, a)
	if err != nil {
		return false, 0, err
	}
	rb, err := e.val(c, b)
	if err != nil {
		return false, 0, err
	}

	nullish := func(k strix.ValueKind) bool {
		return k == strix.KindUndefined || k == strix.KindNull
	}
	if nullish(ra.kind) || nullish(rb.kind) {
		return nullish(ra.kind) && nullish(rb.kind), 0, nil
	}
	if ra.kind == rb.kind {
		ok, err := e.IsStrictEqual(c, a, b)
		return ok, 0, err
	}

	// Cross-kind comparison coerces both sides to numbers, close enough to
	// the real algorithm for reference semantics.
	na, exc, err := e.ToNumber(c, a)
	if err != nil || !exc.IsNull() {
		return false, exc, err
	}
	nb, exc, err := e.ToNumber(c, b)
	if err != nil || !exc.IsNull() {
		return false, exc, err
	}
	return na == nb, 0, nil
}

func (e *Engine) IsInstanceOf(c strix.ContextRef, v, ctor strix.ValueRef) (bool, strix.ValueRef, error) {
	rc, err := e.val(c, ctor)
	if err != nil {
		return false, 0, err
	}
	if rc.kind != strix.KindObject {
		exc, mkErr := e.MakeError(c, strix.TypeError, "right-hand side of instanceof is not an object")
		return false, exc, mkErr
	}
	if cls, ok := e.classes[rc.obj.class]; ok && cls.def.HasInstance != 0 {
		hook, ok := e.hooks[cls.def.HasInstance].(strix.HasInstanceFunc)
		if !ok {
			exc, mkErr := e.MakeError(c, strix.TypeError, "has-instance hook missing")
			return false, exc, mkErr
		}
		got, exc := hook(c, ctor, v)
		return got, exc, nil
	}

	rv, err := e.val(c, v)
	if err != nil {
		return false, 0, err
	}
	if rv.kind != strix.KindObject {
		return false, 0, nil
	}
	return rv.obj.class != 0 && rv.obj.class == rc.obj.class, 0, nil
}

// Conversions.

func (e *Engine) ToBoolean(c strix.ContextRef, v strix.ValueRef) (bool, error) {
	rec, err := e.val(c, v)
	if err != nil {
		return false, err
	}
	switch rec.kind {
	case strix.KindUndefined, strix.KindNull:
		return false, nil
	case strix.KindBoolean:
		return rec.b, nil
	case strix.KindNumber:
		return rec.n != 0 && !math.IsNaN(rec.n), nil
	case strix.KindString:
		return rec.s != "", nil
	default:
		return true, nil
	}
}

func (e *Engine) ToNumber(c strix.ContextRef, v strix.ValueRef) (float64, strix.ValueRef, error) {
	rec, err := e.val(c, v)
	if err != nil {
		return 0, 0, err
	}
	switch rec.kind {
	case strix.KindUndefined:
		return math.NaN(), 0, nil
	case strix.KindNull:
		return 0, 0, nil
	case strix.KindBoolean:
		if rec.b {
			return 1, 0, nil
		}
		return 0, 0, nil
	case strix.KindNumber:
		return rec.n, 0, nil
	case strix.KindString:
		if rec.s == "" {
			return 0, 0, nil
		}
		n, err := strconv.ParseFloat(rec.s, 64)
		if err != nil {
			return math.NaN(), 0, nil
		}
		return n, 0, nil
	case strix.KindSymbol:
		exc, mkErr := e.MakeError(c, strix.TypeError, "cannot convert a Symbol to a number")
		return 0, exc, mkErr
	default:
		return math.NaN(), 0, nil
	}
}

func (e *Engine) ToString(c strix.ContextRef, v strix.ValueRef) (string, strix.ValueRef, error) {
	rec, err := e.val(c, v)
	if err != nil {
		return "", 0, err
	}
	switch rec.kind {
	case strix.KindUndefined:
		return "undefined", 0, nil
	case strix.KindNull:
		return "null", 0, nil
	case strix.KindBoolean:
		return strconv.FormatBool(rec.b), 0, nil
	case strix.KindNumber:
		return formatNumber(rec.n), 0, nil
	case strix.KindString:
		return rec.s, 0, nil
	case strix.KindSymbol:
		exc, mkErr := e.MakeError(c, strix.TypeError, "cannot convert a Symbol to a string")
		return "", exc, mkErr
	default:
		if rec.obj.callback != 0 {
			return "function " + rec.obj.fnName + "() { [native code] }", 0, nil
		}
		return "[object Object]", 0, nil
	}
}

func formatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	case n == math.Trunc(n) && math.Abs(n) < 1e21:
		return strconv.FormatFloat(n, 'f', -1, 64)
	default:
		return strconv.FormatFloat(n, 'g', -1, 64)
	}
}

func (e *Engine) ToObject(c strix.ContextRef, v strix.ValueRef) (strix.ValueRef, strix.ValueRef, error) {
	rec, err := e.val(c, v)
	if err != nil {
		return 0, 0, err
	}
	switch rec.kind {
	case strix.KindObject:
		return v, 0, nil
	case strix.KindUndefined, strix.KindNull:
		exc, mkErr := e.MakeError(c, strix.TypeError, "cannot convert "+rec.kind.String()+" to object")
		return 0, exc, mkErr
	default:
		// Primitive wrapper object exposing valueOf semantics is overkill
		// here; the reference engine only needs an object-kinded view.
		obj := newObject()
		ref := e.put(c, &valueRec{kind: strix.KindObject, obj: obj})
		e.setProp(obj, "__primitive__", v)
		return ref, 0, nil
	}
}

func (e *Engine) ToJSON(c strix.ContextRef, v strix.ValueRef, indent int) (string, strix.ValueRef, error) {
	rec, err := e.val(c, v)
	if err != nil {
		return "", 0, err
	}
	decoded := e.toGo(c, rec, 0)
	var raw []byte
	if indent > 0 {
		raw, err = json.MarshalIndent(decoded, "", fmt.Sprintf("%*s", indent, ""))
	} else {
		raw, err = json.Marshal(decoded)
	}
	if err != nil {
		exc, mkErr := e.MakeError(c, strix.TypeError, "value is not serializable")
		return "", exc, mkErr
	}
	return string(raw), 0, nil
}

func (e *Engine) toGo(c strix.ContextRef, rec *valueRec, depth int) any {
	if depth > 16 {
		return nil
	}
	switch rec.kind {
	case strix.KindBoolean:
		return rec.b
	case strix.KindNumber:
		return rec.n
	case strix.KindString:
		return rec.s
	case strix.KindObject:
		out := make(map[string]any, len(rec.obj.keys))
		for _, k := range rec.obj.keys {
			if child, ok := e.values[rec.obj.props[k]]; ok {
				out[k] = e.toGo(c, child, depth+1)
			}
		}
		return out
	default:
		return nil
	}
}

// Rooting. Counts are counters: protect increments, unprotect decrements,
// and Collect refuses while the count is positive.

func (e *Engine) Protect(c strix.ContextRef, v strix.ValueRef) error {
	rec, err := e.ctx(c)
	if err != nil {
		return err
	}
	if _, err := e.val(c, v); err != nil {
		return err
	}
	rec.protect[v]++
	return nil
}

func (e *Engine) Unprotect(c strix.ContextRef, v strix.ValueRef) error {
	rec, err := e.ctx(c)
	if err != nil {
		return err
	}
	if rec.protect[v] <= 0 {
		return errors.InvalidInput(errors.PhaseOwnership, "unbalanced unprotect")
	}
	rec.protect[v]--
	if rec.protect[v] == 0 {
		delete(rec.protect, v)
	}
	return nil
}

// ProtectCount reports v's current root count, for tests.
func (e *Engine) ProtectCount(c strix.ContextRef, v strix.ValueRef) int {
	rec, err := e.ctx(c)
	if err != nil {
		return 0
	}
	return rec.protect[v]
}

func (e *Engine) GarbageCollect(c strix.ContextRef) error {
	_, err := e.ctx(c)
	return err
}

// Collect simulates the engine collecting obj: the class finalizer runs
// with the private token and the value disappears. Protected values are not
// collectible.
func (e *Engine) Collect(c strix.ContextRef, obj strix.ValueRef) error {
	rec, err := e.ctx(c)
	if err != nil {
		return err
	}
	if rec.protect[obj] > 0 {
		return errors.InvalidInput(errors.PhaseOwnership, "value is protected")
	}
	v, err := e.val(c, obj)
	if err != nil {
		return err
	}
	if v.kind == strix.KindObject {
		if cls, ok := e.classes[v.obj.class]; ok && cls.def.Finalizer != 0 {
			if hook, ok := e.hooks[cls.def.Finalizer].(strix.FinalizerFunc); ok {
				hook(obj, v.obj.priv)
			}
		}
	}
	delete(e.values, obj)
	return nil
}

func (e *Engine) MemoryUsageJSON(c strix.ContextRef) (string, error) {
	rec, err := e.ctx(c)
	if err != nil {
		return "", err
	}
	objects := 0
	for _, v := range e.values {
		if v.ctx == c && v.kind == strix.KindObject {
			objects++
		}
	}
	protected := 0
	for _, n := range rec.protect {
		protected += n
	}
	usage := strix.MemoryUsage{
		HeapSize:             uint64(len(e.values)) * 64,
		HeapCapacity:         uint64(len(e.values)) * 128,
		ObjectCount:          uint64(objects),
		ProtectedObjectCount: uint64(protected),
		GlobalObjectCount:    1,
	}
	raw, err := json.Marshal(usage)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (e *Engine) PumpMessageLoop(c strix.ContextRef) (bool, error) {
	_, err := e.ctx(c)
	return false, err
}
