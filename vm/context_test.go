package vm

import (
	"testing"

	"github.com/strixvm/strix-go/internal/testvm"
)

func newTestContext(t *testing.T) (*Runtime, *Context) {
	t.Helper()
	rt := NewRuntime(testvm.New())
	ctx, err := rt.NewContext()
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt, ctx
}

func TestValueStrictEqualityReflexive(t *testing.T) {
	_, ctx := newTestContext(t)

	mk := func(f func() (Value, error)) Value {
		t.Helper()
		v, err := f()
		if err != nil {
			t.Fatalf("constructor: %v", err)
		}
		return v
	}

	values := []Value{
		mk(ctx.Undefined),
		mk(ctx.Null),
		mk(func() (Value, error) { return ctx.Boolean(true) }),
		mk(func() (Value, error) { return ctx.Number(42.5) }),
		mk(func() (Value, error) { return ctx.String("hello") }),
	}
	for i, v := range values {
		eq, err := v.StrictEquals(v)
		if err != nil {
			t.Fatalf("value %d: StrictEquals: %v", i, err)
		}
		if !eq {
			t.Errorf("value %d: v === v is false", i)
		}
	}
}

func TestObjectValueRoundTrip(t *testing.T) {
	_, ctx := newTestContext(t)

	obj, err := ctx.NewObject()
	if err != nil {
		t.Fatalf("NewObject: %v", err)
	}

	back, err := obj.AsValue().ToObject()
	if err != nil {
		t.Fatalf("ToObject: %v", err)
	}

	eq, err := obj.AsValue().StrictEquals(back.AsValue())
	if err != nil {
		t.Fatalf("StrictEquals: %v", err)
	}
	if !eq {
		t.Error("Object -> Value -> Object does not denote the same reference")
	}
	if obj.Ref() != back.Ref() {
		t.Errorf("round trip changed the handle: %v != %v", obj.Ref(), back.Ref())
	}
}

func TestValueKindsAndConversions(t *testing.T) {
	_, ctx := newTestContext(t)

	n, err := ctx.Number(7)
	if err != nil {
		t.Fatalf("Number: %v", err)
	}
	if !n.IsNumber() {
		t.Error("number value does not report KindNumber")
	}
	s, err := n.ToString()
	if err != nil {
		t.Fatalf("ToString: %v", err)
	}
	if s != "7" {
		t.Errorf("ToString(7) = %q, want %q", s, "7")
	}

	str, err := ctx.String("2.5")
	if err != nil {
		t.Fatalf("String: %v", err)
	}
	f, err := str.ToNumber()
	if err != nil {
		t.Fatalf("ToNumber: %v", err)
	}
	if f != 2.5 {
		t.Errorf("ToNumber(%q) = %v, want 2.5", "2.5", f)
	}

	sym, err := ctx.Symbol("tag")
	if err != nil {
		t.Fatalf("Symbol: %v", err)
	}
	if _, err := sym.ToString(); err == nil {
		t.Error("symbol ToString should raise the engine's TypeError")
	} else if exc, ok := err.(*Exception); !ok || exc.Name() != "TypeError" {
		t.Errorf("symbol ToString error = %v, want TypeError exception", err)
	}
}

func TestPropertyProtocol(t *testing.T) {
	_, ctx := newTestContext(t)

	obj, err := ctx.NewObject()
	if err != nil {
		t.Fatalf("NewObject: %v", err)
	}
	v, err := ctx.String("payload")
	if err != nil {
		t.Fatalf("String: %v", err)
	}

	if err := obj.Set("data", v); err != nil {
		t.Fatalf("Set: %v", err)
	}
	has, err := obj.Has("data")
	if err != nil || !has {
		t.Fatalf("Has = %v, %v; want true", has, err)
	}
	got, err := obj.Get("data")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s, _ := got.ToString(); s != "payload" {
		t.Errorf("Get returned %q, want %q", s, "payload")
	}

	names, err := obj.PropertyNames()
	if err != nil {
		t.Fatalf("PropertyNames: %v", err)
	}
	if len(names) != 1 || names[0] != "data" {
		t.Errorf("PropertyNames = %v, want [data]", names)
	}

	deleted, err := obj.Delete("data")
	if err != nil || !deleted {
		t.Fatalf("Delete = %v, %v; want true", deleted, err)
	}
	if has, _ := obj.Has("data"); has {
		t.Error("property survives deletion")
	}
}

func TestFromJSONAndBack(t *testing.T) {
	_, ctx := newTestContext(t)

	v, err := ctx.FromJSON(`{"a": 1, "b": "two"}`)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	obj, err := v.ToObject()
	if err != nil {
		t.Fatalf("ToObject: %v", err)
	}
	a, err := obj.Get("a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n, _ := a.ToNumber(); n != 1 {
		t.Errorf("a = %v, want 1", n)
	}

	if _, err := ctx.FromJSON(`{"broken`); err == nil {
		t.Error("malformed JSON should raise")
	}
}

func TestContextGroupSharing(t *testing.T) {
	rt, _ := newTestContext(t)

	group, err := rt.NewContextGroup()
	if err != nil {
		t.Fatalf("NewContextGroup: %v", err)
	}
	c1, err := group.NewContext()
	if err != nil {
		t.Fatalf("group NewContext: %v", err)
	}
	c2, err := group.NewContext()
	if err != nil {
		t.Fatalf("group NewContext: %v", err)
	}
	if c1.Ref() == c2.Ref() {
		t.Error("group contexts share a ref")
	}

	if err := group.Release(); err != nil {
		t.Fatalf("group Release: %v", err)
	}
	// Contexts outlive the group handle.
	if _, err := c1.Undefined(); err != nil {
		t.Errorf("context unusable after group release: %v", err)
	}
}

func TestRuntimeCloseReleasesContexts(t *testing.T) {
	eng := testvm.New()
	rt := NewRuntime(eng)
	ctx, err := rt.NewContext()
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := ctx.Undefined(); err == nil {
		t.Error("context still usable after runtime close")
	}
	if _, err := rt.NewContext(); err == nil {
		t.Error("closed runtime still creates contexts")
	}
}

func TestMemoryUsageDecodes(t *testing.T) {
	_, ctx := newTestContext(t)

	if _, err := ctx.NewObject(); err != nil {
		t.Fatalf("NewObject: %v", err)
	}
	usage, err := ctx.MemoryUsage()
	if err != nil {
		t.Fatalf("MemoryUsage: %v", err)
	}
	if usage.ObjectCount == 0 {
		t.Error("ObjectCount = 0 after creating an object")
	}
	if usage.GlobalObjectCount != 1 {
		t.Errorf("GlobalObjectCount = %d, want 1", usage.GlobalObjectCount)
	}
}

func TestEvaluateScriptLiteral(t *testing.T) {
	_, ctx := newTestContext(t)

	v, err := ctx.EvaluateScript(`"abc"`)
	if err != nil {
		t.Fatalf("EvaluateScript: %v", err)
	}
	if s, _ := v.ToString(); s != "abc" {
		t.Errorf("result = %q, want %q", s, "abc")
	}

	if _, err := ctx.EvaluateScript("let x = {"); err == nil {
		t.Error("unparseable script should raise")
	}
}
