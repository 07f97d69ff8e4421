package vm

import (
	"fmt"
	"strings"
	"testing"

	strix "github.com/strixvm/strix-go"
)

func install(t *testing.T, ctx *Context, name string, fn any, opts ...FuncOption) Object {
	t.Helper()
	obj, err := ctx.NewFunction(name, fn, opts...)
	if err != nil {
		t.Fatalf("NewFunction(%s): %v", name, err)
	}
	global, err := ctx.Global()
	if err != nil {
		t.Fatalf("Global: %v", err)
	}
	if err := global.Set(name, obj.AsValue()); err != nil {
		t.Fatalf("install %s: %v", name, err)
	}
	return obj
}

func TestMarshalRequiredAndOptional(t *testing.T) {
	_, ctx := newTestContext(t)

	type seen struct {
		s    string
		n    float64
		b    bool
		opt  string
		some bool
	}
	var got seen

	install(t, ctx, "greet",
		func(c *Context, fn, this Object, s string, n float64, b bool, extra Optional[string]) (Value, error) {
			got = seen{s: s, n: n, b: b, opt: extra.Value, some: extra.Present}
			return c.String("ok")
		},
		WithParamNames("s", "n", "b", "extra"))

	// Optional omitted.
	res, err := ctx.EvaluateScript(`greet("x", 1, true)`)
	if err != nil {
		t.Fatalf("call without optional: %v", err)
	}
	if s, _ := res.ToString(); s != "ok" {
		t.Errorf("result = %q, want ok", s)
	}
	if got.s != "x" || got.n != 1 || !got.b {
		t.Errorf("marshaled (%q, %v, %v), want (x, 1, true)", got.s, got.n, got.b)
	}
	if got.some {
		t.Error("omitted optional observed as present")
	}

	// Optional supplied.
	if _, err := ctx.EvaluateScript(`greet("x", 1, true, "y")`); err != nil {
		t.Fatalf("call with optional: %v", err)
	}
	if !got.some || got.opt != "y" {
		t.Errorf("optional = (%q, %v), want (y, true)", got.opt, got.some)
	}
}

func TestMarshalMissingRequiredArgument(t *testing.T) {
	_, ctx := newTestContext(t)

	install(t, ctx, "needsTwo",
		func(c *Context, fn, this Object, a string, b float64) (Value, error) {
			t.Error("host logic ran despite missing argument")
			return Value{}, nil
		},
		WithParamNames("first", "second"))

	_, err := ctx.EvaluateScript(`needsTwo("only")`)
	if err == nil {
		t.Fatal("missing required argument did not raise")
	}
	exc, ok := err.(*Exception)
	if !ok {
		t.Fatalf("error is %T, want *Exception", err)
	}
	if exc.Name() != "TypeError" {
		t.Errorf("exception name = %q, want TypeError", exc.Name())
	}
	if !strings.Contains(exc.Message(), "needsTwo") || !strings.Contains(exc.Message(), "second") {
		t.Errorf("message %q does not name function and parameter", exc.Message())
	}
}

func TestMarshalUndefinedCountsAsAbsent(t *testing.T) {
	_, ctx := newTestContext(t)

	var present bool
	install(t, ctx, "maybe",
		func(c *Context, fn, this Object, v Optional[string]) (Value, error) {
			present = v.Present
			return Value{}, nil
		})

	if _, err := ctx.EvaluateScript(`maybe(undefined)`); err != nil {
		t.Fatalf("call: %v", err)
	}
	if present {
		t.Error("explicit undefined observed as present")
	}
}

func TestMarshalRawMode(t *testing.T) {
	_, ctx := newTestContext(t)

	var arity int
	install(t, ctx, "raw",
		func(c *Context, fn, this Object, args []Value) (Value, error) {
			arity = len(args)
			return c.Number(float64(len(args)))
		})

	res, err := ctx.EvaluateScript(`raw(1, "two", false)`)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if arity != 3 {
		t.Errorf("raw mode saw %d args, want 3", arity)
	}
	if n, _ := res.ToNumber(); n != 3 {
		t.Errorf("result = %v, want 3", n)
	}
}

func TestMarshalConversionFailurePropagates(t *testing.T) {
	_, ctx := newTestContext(t)

	sym, err := ctx.Symbol("s")
	if err != nil {
		t.Fatalf("Symbol: %v", err)
	}
	global, err := ctx.Global()
	if err != nil {
		t.Fatalf("Global: %v", err)
	}
	if err := global.Set("sym", sym); err != nil {
		t.Fatalf("Set: %v", err)
	}

	fn := install(t, ctx, "wantsString",
		func(c *Context, fnObj, this Object, s string) (Value, error) {
			t.Error("host logic ran despite conversion failure")
			return Value{}, nil
		},
		WithParamNames("s"))

	// Symbols fail string coercion with the engine's own TypeError, which
	// must pass through unchanged rather than be re-wrapped.
	_, err = fn.Call(nil, sym)
	if err == nil {
		t.Fatal("symbol conversion did not raise")
	}
	exc, ok := err.(*Exception)
	if !ok || exc.Name() != "TypeError" {
		t.Fatalf("error = %v, want the engine's TypeError", err)
	}
	if strings.Contains(exc.Message(), "wantsString") {
		t.Errorf("engine exception was rewritten: %q", exc.Message())
	}
}

func TestHostErrorBecomesScriptError(t *testing.T) {
	_, ctx := newTestContext(t)

	install(t, ctx, "fails",
		func(c *Context, fn, this Object) (Value, error) {
			return Value{}, fmt.Errorf("backend unavailable")
		})

	_, err := ctx.EvaluateScript(`fails()`)
	exc, ok := err.(*Exception)
	if !ok {
		t.Fatalf("error = %v, want *Exception", err)
	}
	if exc.Name() != "Error" {
		t.Errorf("name = %q, want Error", exc.Name())
	}
	if !strings.Contains(exc.Message(), "backend unavailable") {
		t.Errorf("message %q lost the host error text", exc.Message())
	}
}

func TestExceptionRethrowPreservesIdentity(t *testing.T) {
	_, ctx := newTestContext(t)

	install(t, ctx, "inner",
		func(c *Context, fn, this Object) (Value, error) {
			errObj, err := c.NewError(strix.RangeError, "boom")
			if err != nil {
				return Value{}, err
			}
			return Value{}, newException(c, errObj.Ref())
		})

	_, err := ctx.EvaluateScript(`inner()`)
	exc, ok := err.(*Exception)
	if !ok {
		t.Fatalf("error = %v, want *Exception", err)
	}
	if exc.Name() != "RangeError" || exc.Message() != "boom" {
		t.Errorf("exception = %s: %s, want RangeError: boom", exc.Name(), exc.Message())
	}
}

func TestPanicDoesNotCrossBoundary(t *testing.T) {
	_, ctx := newTestContext(t)

	install(t, ctx, "explodes",
		func(c *Context, fn, this Object) (Value, error) {
			panic("kaboom")
		})

	_, err := ctx.EvaluateScript(`explodes()`)
	if err == nil {
		t.Fatal("panic was swallowed silently")
	}
	exc, ok := err.(*Exception)
	if !ok {
		t.Fatalf("error = %v, want *Exception", err)
	}
	if !strings.Contains(exc.Message(), "kaboom") {
		t.Errorf("message %q lost the panic value", exc.Message())
	}
}

func TestNilResultMarshalsToUndefined(t *testing.T) {
	_, ctx := newTestContext(t)

	install(t, ctx, "quiet",
		func(c *Context, fn, this Object) (Value, error) {
			return Value{}, nil
		})

	res, err := ctx.EvaluateScript(`quiet()`)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !res.IsUndefined() {
		t.Error("empty result did not marshal to undefined")
	}
}

func TestRegistrationRejectsBadSignatures(t *testing.T) {
	_, ctx := newTestContext(t)

	cases := []struct {
		name string
		fn   any
	}{
		{"not a func", 42},
		{"missing fixed params", func(c *Context) (Value, error) { return Value{}, nil }},
		{"bad return", func(c *Context, fn, this Object) Value { return Value{} }},
		{"unsupported param", func(c *Context, fn, this Object, ch chan int) (Value, error) { return Value{}, nil }},
		{"variadic", func(c *Context, fn, this Object, rest ...string) (Value, error) { return Value{}, nil }},
	}
	for _, tc := range cases {
		if _, err := ctx.NewFunction("bad", tc.fn); err == nil {
			t.Errorf("%s: registration succeeded", tc.name)
		}
	}
}

func TestUnnamedParametersReportPosition(t *testing.T) {
	_, ctx := newTestContext(t)

	install(t, ctx, "anon",
		func(c *Context, fn, this Object, a string, b string) (Value, error) {
			return Value{}, nil
		})

	_, err := ctx.EvaluateScript(`anon("x")`)
	exc, ok := err.(*Exception)
	if !ok {
		t.Fatalf("error = %v, want *Exception", err)
	}
	if !strings.Contains(exc.Message(), "arg1") {
		t.Errorf("message %q does not fall back to positional name", exc.Message())
	}
}
