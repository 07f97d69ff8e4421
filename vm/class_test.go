package vm

import (
	"errors"
	"strings"
	"testing"

	strixerrors "github.com/strixvm/strix-go/errors"
)

type counter struct {
	n float64
}

func TestClassConstructFromScript(t *testing.T) {
	rt, ctx := newTestContext(t)

	var built *Class
	cls, err := NewClass("Counter").
		Constructor(func(c *Context, ctor Object, args []Value) (Object, error) {
			start := 0.0
			if len(args) > 0 {
				n, err := args[0].ToNumber()
				if err != nil {
					return Object{}, err
				}
				start = n
			}
			return built.Instantiate(c, &counter{n: start})
		}).
		Build(rt)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	built = cls

	ctor, err := cls.Install(ctx)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	seven, err := ctx.Number(7)
	if err != nil {
		t.Fatalf("Number: %v", err)
	}
	obj, err := ctor.Construct(seven)
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}

	state, ok, err := Private[*counter](obj)
	if err != nil || !ok {
		t.Fatalf("Private = %v, %v; want value", ok, err)
	}
	if state.n != 7 {
		t.Errorf("constructed state = %v, want 7", state.n)
	}
}

func TestClassConstructorReturningNothingIsScriptError(t *testing.T) {
	rt, ctx := newTestContext(t)

	cls, err := NewClass("Broken").
		Constructor(func(c *Context, ctor Object, args []Value) (Object, error) {
			return Object{}, nil
		}).
		Build(rt)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctor, err := cls.Instantiate(ctx, nil)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	_, err = ctor.Construct()
	var exc *Exception
	if !errors.As(err, &exc) {
		t.Fatalf("Construct error = %v, want script exception", err)
	}
	if !strings.Contains(exc.Message(), "Broken") {
		t.Errorf("exception %q does not name the class", exc.Message())
	}
}

func TestClassInitializerObservesInstance(t *testing.T) {
	rt, ctx := newTestContext(t)

	var observed []Object
	cls, err := NewClass("Tagged").
		Initializer(func(c *Context, obj Object) {
			observed = append(observed, obj)
		}).
		Build(rt)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	obj, err := cls.Instantiate(ctx, nil)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	if len(observed) != 1 {
		t.Fatalf("initializer ran %d times, want 1", len(observed))
	}
	same, err := observed[0].AsValue().StrictEquals(obj.AsValue())
	if err != nil || !same {
		t.Errorf("initializer saw a different object (same=%v, err=%v)", same, err)
	}
}

func TestClassCallAsFunction(t *testing.T) {
	rt, ctx := newTestContext(t)

	cls, err := NewClass("echo").
		CallAsFunction(func(c *Context, fn, this Object, s string) (Value, error) {
			return c.String("echo:" + s)
		}, WithParamNames("s")).
		Build(rt)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := cls.Install(ctx); err != nil {
		t.Fatalf("Install: %v", err)
	}

	res, err := ctx.EvaluateScript(`echo("hi")`)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if s, _ := res.ToString(); s != "echo:hi" {
		t.Errorf("result = %q, want echo:hi", s)
	}
}

func TestClassHasInstance(t *testing.T) {
	rt, ctx := newTestContext(t)

	cls, err := NewClass("Marked").
		HasInstance(func(c *Context, ctor Object, candidate Value) (bool, error) {
			obj, err := candidate.ToObject()
			if err != nil {
				return false, nil
			}
			return obj.Has("marked")
		}).
		Build(rt)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctor, err := cls.Instantiate(ctx, nil)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	plain, err := ctx.NewObject()
	if err != nil {
		t.Fatalf("NewObject: %v", err)
	}
	if got, err := plain.AsValue().InstanceOf(ctor); err != nil || got {
		t.Errorf("unmarked InstanceOf = %v, %v; want false", got, err)
	}

	tr, err := ctx.Boolean(true)
	if err != nil {
		t.Fatalf("Boolean: %v", err)
	}
	if err := plain.Set("marked", tr); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, err := plain.AsValue().InstanceOf(ctor); err != nil || !got {
		t.Errorf("marked InstanceOf = %v, %v; want true", got, err)
	}
}

func TestClassReleaseKeepsInstancesWorking(t *testing.T) {
	rt, ctx := newTestContext(t)

	cls, err := NewClass("Held").Build(rt)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	obj, err := cls.Instantiate(ctx, &counter{n: 3})
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	if err := cls.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := cls.Release(); err != nil {
		t.Errorf("second Release = %v, want no-op nil", err)
	}

	// The descriptor is gone but live instances still dispatch.
	state, ok, err := Private[*counter](obj)
	if err != nil || !ok || state.n != 3 {
		t.Errorf("instance unusable after class release: %v, %v, %v", state, ok, err)
	}

	_, err = cls.Instantiate(ctx, nil)
	want := &strixerrors.Error{Phase: strixerrors.PhaseClass, Kind: strixerrors.KindClosed}
	if !errors.Is(err, want) {
		t.Errorf("Instantiate after release = %v, want class closed", err)
	}
}

func TestClassBuildRejectsBadCallSignature(t *testing.T) {
	rt, _ := newTestContext(t)

	_, err := NewClass("bad").
		CallAsFunction(func(s string) string { return s }).
		Build(rt)
	want := &strixerrors.Error{Phase: strixerrors.PhaseClass, Kind: strixerrors.KindRegistration}
	if !errors.Is(err, want) {
		t.Errorf("Build = %v, want class registration error", err)
	}
}
