package inspector

import (
	"context"
	"strings"
	"testing"
	"time"

	strix "github.com/strixvm/strix-go"
	"github.com/strixvm/strix-go/vm"
)

// installProbe registers a global function recording the literal it was
// called with, so tests can see which statements actually executed.
func installProbe(t *testing.T, ctx *vm.Context) *[]float64 {
	t.Helper()
	var calls []float64
	fn, err := ctx.NewFunction("probe",
		func(c *vm.Context, fnObj, this vm.Object, n float64) (vm.Value, error) {
			calls = append(calls, n)
			return vm.Value{}, nil
		},
		vm.WithParamNames("n"))
	if err != nil {
		t.Fatalf("NewFunction: %v", err)
	}
	global, err := ctx.Global()
	if err != nil {
		t.Fatalf("Global: %v", err)
	}
	if err := global.Set("probe", fn.AsValue()); err != nil {
		t.Fatalf("install probe: %v", err)
	}
	return &calls
}

func armBreakpoint(t *testing.T, s *Session, url string, line int) {
	t.Helper()
	for _, m := range []Message{
		EnableDebugger(),
		SetBreakpointsActive(true),
		SetBreakpointByURL(url, line),
	} {
		if _, err := s.SendCommand(m); err != nil {
			t.Fatalf("SendCommand(%s): %v", m.Method, err)
		}
	}
	drainNotifications(s)
}

func TestPauseScenario(t *testing.T) {
	ctx, s := newTestSession(t)
	calls := installProbe(t, ctx)
	armBreakpoint(t, s, "main.js", 1)

	d := NewPauseDriver(s)
	var pausedCount, tickCount, resumedCount int
	d.OnPaused = func(d *PauseDriver) {
		pausedCount++
		if tickCount != 0 {
			t.Error("a tick preceded the pause event")
		}
	}
	d.OnTick = func(d *PauseDriver) {
		tickCount++
		if tickCount < 3 {
			if err := d.Step(); err != nil {
				t.Errorf("Step: %v", err)
			}
			return
		}
		if err := d.Resume(); err != nil {
			t.Errorf("Resume: %v", err)
		}
	}
	d.OnResumed = func(d *PauseDriver) { resumedCount++ }

	err := ctx.EvaluateModuleSource("probe(1)\nprobe(2)\nprobe(3)", "main.js")
	if err != nil {
		t.Fatalf("EvaluateModuleSource: %v", err)
	}

	if pausedCount != 1 {
		t.Errorf("paused %d times, want 1", pausedCount)
	}
	if tickCount != 3 {
		t.Errorf("ticked %d times, want 3", tickCount)
	}
	if resumedCount != 1 {
		t.Errorf("resumed %d times, want 1", resumedCount)
	}
	if d.InPause() {
		t.Error("driver still reports a live pause session")
	}

	// Execution completed: every statement ran after the resume.
	if len(*calls) != 3 {
		t.Fatalf("probe ran %d times, want 3 (saw %v)", len(*calls), *calls)
	}

	// The engine fired the full lifecycle in order with nothing after
	// Resumed.
	events := drainEvents(s)
	want := []strix.PauseEvent{strix.Paused, strix.Tick, strix.Tick, strix.Tick, strix.Resumed}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events[%d] = %v, want %v (full: %v)", i, events[i], want[i], events)
		}
	}

	var sawPaused, sawResumed bool
	for _, n := range drainNotifications(s) {
		if strings.Contains(n, "Debugger.paused") {
			sawPaused = true
		}
		if strings.Contains(n, "Debugger.resumed") {
			sawResumed = true
		}
	}
	if !sawPaused || !sawResumed {
		t.Errorf("protocol notifications missing lifecycle events (paused=%v resumed=%v)", sawPaused, sawResumed)
	}
}

func TestDriverResumeIsIssuedOncePerSession(t *testing.T) {
	ctx, s := newTestSession(t)
	calls := installProbe(t, ctx)
	armBreakpoint(t, s, "main.js", 0)

	d := NewPauseDriver(s)
	resumeAttempts := 0
	d.OnTick = func(d *PauseDriver) {
		// Hammer resume; only the first may reach the engine.
		for i := 0; i < 3; i++ {
			resumeAttempts++
			if err := d.Resume(); err != nil {
				t.Errorf("Resume: %v", err)
			}
		}
	}
	var resumedCount int
	d.OnResumed = func(d *PauseDriver) { resumedCount++ }

	if err := ctx.EvaluateModuleSource("probe(9)", "main.js"); err != nil {
		t.Fatalf("EvaluateModuleSource: %v", err)
	}
	if resumeAttempts != 3 {
		t.Fatalf("tick handler ran %d resume attempts, want one tick's worth of 3", resumeAttempts)
	}
	if resumedCount != 1 {
		t.Errorf("resumed %d times, want 1", resumedCount)
	}
	if len(*calls) != 1 {
		t.Errorf("probe ran %d times, want 1", len(*calls))
	}

	// Exactly one Tick: the resume drained before a second one could fire.
	events := drainEvents(s)
	ticks := 0
	for _, e := range events {
		if e == strix.Tick {
			ticks++
		}
	}
	if ticks != 1 {
		t.Errorf("saw %d ticks, want 1 (events %v)", ticks, events)
	}
}

func TestDriverStepAndResumeOutsidePauseAreNoOps(t *testing.T) {
	_, s := newTestSession(t)
	d := NewPauseDriver(s)

	if err := d.Step(); err != nil {
		t.Errorf("Step outside pause = %v, want nil", err)
	}
	if err := d.Resume(); err != nil {
		t.Errorf("Resume outside pause = %v, want nil", err)
	}
	if got := drainNotifications(s); len(got) != 0 {
		t.Errorf("no-op driver calls reached the engine: %v", got)
	}
}

func TestDriverWait(t *testing.T) {
	ctx, s := newTestSession(t)
	installProbe(t, ctx)
	armBreakpoint(t, s, "main.js", 0)

	d := NewPauseDriver(s)
	d.OnTick = func(d *PauseDriver) { _ = d.Resume() }

	if err := ctx.EvaluateModuleSource("probe(1)", "main.js"); err != nil {
		t.Fatalf("EvaluateModuleSource: %v", err)
	}

	// The resumed signal is latched, so a waiter arriving late still
	// returns immediately.
	waitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Wait(waitCtx); err != nil {
		t.Errorf("Wait after resume = %v, want nil", err)
	}

	// With no pause session at all, Wait honors the deadline.
	expired, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	if err := d.Wait(expired); err != context.DeadlineExceeded {
		t.Errorf("Wait with no pause = %v, want deadline exceeded", err)
	}
}
