package vm

import (
	"errors"
	"testing"

	strixerrors "github.com/strixvm/strix-go/errors"
	"github.com/strixvm/strix-go/internal/testvm"
)

func TestProtectThenReleaseLeavesValueUsable(t *testing.T) {
	_, ctx := newTestContext(t)

	obj, err := ctx.NewObject()
	if err != nil {
		t.Fatalf("NewObject: %v", err)
	}
	v, err := ctx.String("kept")
	if err != nil {
		t.Fatalf("String: %v", err)
	}
	if err := obj.Set("k", v); err != nil {
		t.Fatalf("Set: %v", err)
	}

	guard, err := obj.AsValue().Protect()
	if err != nil {
		t.Fatalf("Protect: %v", err)
	}
	if err := guard.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	// Property access keeps working for the remainder of the context's
	// lifetime.
	got, err := obj.Get("k")
	if err != nil {
		t.Fatalf("Get after release: %v", err)
	}
	if s, _ := got.ToString(); s != "kept" {
		t.Errorf("Get = %q, want kept", s)
	}
}

func TestProtectCountsAreCounters(t *testing.T) {
	rt, ctx := newTestContext(t)
	eng := rt.Engine().(*testvm.Engine)

	obj, err := ctx.NewObject()
	if err != nil {
		t.Fatalf("NewObject: %v", err)
	}

	g1, err := obj.AsValue().Protect()
	if err != nil {
		t.Fatalf("Protect: %v", err)
	}
	g2, err := obj.AsValue().Protect()
	if err != nil {
		t.Fatalf("Protect: %v", err)
	}
	if n := eng.ProtectCount(ctx.Ref(), obj.Ref()); n != 2 {
		t.Fatalf("root count = %d, want 2", n)
	}

	if err := g1.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if n := eng.ProtectCount(ctx.Ref(), obj.Ref()); n != 1 {
		t.Errorf("root count after one release = %d, want 1", n)
	}
	err = eng.Collect(ctx.Ref(), obj.Ref())
	if err == nil {
		t.Error("collection succeeded while a root is held")
	}
	rooted := &strixerrors.Error{Phase: strixerrors.PhaseOwnership, Kind: strixerrors.KindInvalidInput}
	if !errors.Is(err, rooted) {
		t.Errorf("collect error = %v, want ownership/invalid-input", err)
	}

	if err := g2.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := eng.Collect(ctx.Ref(), obj.Ref()); err != nil {
		t.Errorf("collection failed with no roots: %v", err)
	}
}

func TestGuardDoubleReleaseIsNoOp(t *testing.T) {
	_, ctx := newTestContext(t)

	v, err := ctx.Number(1)
	if err != nil {
		t.Fatalf("Number: %v", err)
	}
	guard, err := v.Protect()
	if err != nil {
		t.Fatalf("Protect: %v", err)
	}
	if err := guard.Release(); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if err := guard.Release(); err != nil {
		t.Errorf("second Release = %v, want no-op nil", err)
	}
}

type backendState struct {
	name string
}

func TestPrivateDataRoundTrip(t *testing.T) {
	rt, ctx := newTestContext(t)

	cls, err := NewClass("Holder").Build(rt)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	obj, err := cls.Instantiate(ctx, &backendState{name: "first"})
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	got, ok, err := Private[*backendState](obj)
	if err != nil || !ok {
		t.Fatalf("Private = %v, %v; want value", ok, err)
	}
	if got.name != "first" {
		t.Errorf("private data = %q, want first", got.name)
	}

	taken, ok, err := TakePrivate[*backendState](obj)
	if err != nil || !ok {
		t.Fatalf("TakePrivate = %v, %v; want value", ok, err)
	}
	if taken.name != "first" {
		t.Errorf("taken = %q, want first", taken.name)
	}
	if _, ok, _ := Private[*backendState](obj); ok {
		t.Error("private slot still populated after TakePrivate")
	}
}

func TestSetPrivateReplaceContract(t *testing.T) {
	rt, ctx := newTestContext(t)

	cls, err := NewClass("Holder").Build(rt)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	obj, err := cls.Instantiate(ctx, &backendState{name: "old"})
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	before := rt.priv.Len()
	replaced, err := SetPrivate(obj, &backendState{name: "new"})
	if err != nil {
		t.Fatalf("SetPrivate: %v", err)
	}
	if !replaced {
		t.Error("replacement not reported")
	}
	if after := rt.priv.Len(); after != before {
		t.Errorf("table grew from %d to %d; old entry leaked", before, after)
	}

	got, _, err := Private[*backendState](obj)
	if err != nil {
		t.Fatalf("Private: %v", err)
	}
	if got.name != "new" {
		t.Errorf("private data = %q, want new", got.name)
	}
}

func TestPrivateTypeMismatchIsChecked(t *testing.T) {
	rt, ctx := newTestContext(t)

	cls, err := NewClass("Holder").Build(rt)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	obj, err := cls.Instantiate(ctx, &backendState{name: "x"})
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	_, _, err = Private[string](obj)
	if err == nil {
		t.Fatal("mismatched retrieval succeeded")
	}
	want := &strixerrors.Error{Phase: strixerrors.PhaseOwnership, Kind: strixerrors.KindTypeMismatch}
	if !errors.Is(err, want) {
		t.Errorf("error = %v, want ownership type_mismatch", err)
	}
}

func TestSharedDataRoundTripAndMismatch(t *testing.T) {
	_, ctx := newTestContext(t)

	if replaced := SetShared(ctx, &backendState{name: "shared"}); replaced {
		t.Error("first set reported a replacement")
	}
	got, ok, err := Shared[*backendState](ctx)
	if err != nil || !ok {
		t.Fatalf("Shared = %v, %v; want value", ok, err)
	}
	if got.name != "shared" {
		t.Errorf("shared = %q, want shared", got.name)
	}

	// Mismatched type retrieval is a checked error, never a
	// reinterpretation.
	_, _, err = Shared[int](ctx)
	want := &strixerrors.Error{Phase: strixerrors.PhaseOwnership, Kind: strixerrors.KindTypeMismatch}
	if !errors.Is(err, want) {
		t.Errorf("mismatch error = %v, want ownership type_mismatch", err)
	}

	if replaced := SetShared(ctx, &backendState{name: "next"}); !replaced {
		t.Error("second set did not report replacement")
	}
	taken, ok, err := TakeShared[*backendState](ctx)
	if err != nil || !ok || taken.name != "next" {
		t.Fatalf("TakeShared = %v, %v, %v; want next", taken, ok, err)
	}
	if _, ok, _ := Shared[*backendState](ctx); ok {
		t.Error("slot still populated after TakeShared")
	}
}

func TestFinalizerReclaimsPrivateData(t *testing.T) {
	rt, ctx := newTestContext(t)
	eng := rt.Engine().(*testvm.Engine)

	var finalized *backendState
	cls, err := NewClass("Holder").
		Finalizer(func(data any) {
			finalized, _ = data.(*backendState)
		}).
		Build(rt)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	obj, err := cls.Instantiate(ctx, &backendState{name: "dying"})
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	before := rt.priv.Len()

	if err := eng.Collect(ctx.Ref(), obj.Ref()); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if finalized == nil || finalized.name != "dying" {
		t.Errorf("finalizer observed %v, want the private value", finalized)
	}
	if after := rt.priv.Len(); after != before-1 {
		t.Errorf("private table length %d, want %d; entry leaked", after, before-1)
	}
}

func TestFinalizerWithoutUserHookStillReclaims(t *testing.T) {
	rt, ctx := newTestContext(t)
	eng := rt.Engine().(*testvm.Engine)

	cls, err := NewClass("Silent").Build(rt)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	obj, err := cls.Instantiate(ctx, &backendState{name: "x"})
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	if rt.priv.Len() != 1 {
		t.Fatalf("table length = %d, want 1", rt.priv.Len())
	}
	if err := eng.Collect(ctx.Ref(), obj.Ref()); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if rt.priv.Len() != 0 {
		t.Errorf("table length = %d after collection, want 0", rt.priv.Len())
	}
}
