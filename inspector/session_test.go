package inspector

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	strix "github.com/strixvm/strix-go"
	strixerrors "github.com/strixvm/strix-go/errors"
	"github.com/strixvm/strix-go/internal/testvm"
	"github.com/strixvm/strix-go/vm"
)

func newTestSession(t *testing.T) (*vm.Context, *Session) {
	t.Helper()
	rt := vm.NewRuntime(testvm.New())
	ctx, err := rt.NewContext()
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	s, err := Attach(ctx)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	return ctx, s
}

// drainNotifications empties the buffered channel without blocking.
func drainNotifications(s *Session) []string {
	var out []string
	for {
		select {
		case raw := <-s.Notifications():
			out = append(out, string(raw))
		default:
			return out
		}
	}
}

func drainEvents(s *Session) []strix.PauseEvent {
	var out []strix.PauseEvent
	for {
		select {
		case e := <-s.Events():
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestAttachMarksContextInspectable(t *testing.T) {
	ctx, s := newTestSession(t)

	if s.ID() == "" {
		t.Error("session has no ID")
	}
	connected, err := ctx.InspectorConnected()
	if err != nil || !connected {
		t.Errorf("InspectorConnected = %v, %v; want true", connected, err)
	}

	if err := s.Detach(); err != nil {
		t.Fatalf("Detach: %v", err)
	}
	connected, err = ctx.InspectorConnected()
	if err != nil || connected {
		t.Errorf("InspectorConnected after detach = %v, %v; want false", connected, err)
	}
	if _, open := <-s.Notifications(); open {
		t.Error("notifications channel still open after detach")
	}
	if _, open := <-s.Events(); open {
		t.Error("events channel still open after detach")
	}

	if err := s.Detach(); err != nil {
		t.Errorf("second Detach = %v, want no-op nil", err)
	}
}

func TestSendAssignsIncreasingIDsAndGetsResponses(t *testing.T) {
	_, s := newTestSession(t)

	first, err := s.SendCommand(EnableDebugger())
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	second, err := s.SendCommand(SetBreakpointsActive(true))
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if second <= first {
		t.Errorf("ids not increasing: %d then %d", first, second)
	}

	var ids []int64
	for _, raw := range drainNotifications(s) {
		var resp struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal([]byte(raw), &resp); err == nil && resp.ID != 0 {
			ids = append(ids, resp.ID)
		}
	}
	if len(ids) != 2 || ids[0] != first || ids[1] != second {
		t.Errorf("response ids = %v, want [%d %d]", ids, first, second)
	}
}

func TestSendAfterDetachFails(t *testing.T) {
	_, s := newTestSession(t)
	if err := s.Detach(); err != nil {
		t.Fatalf("Detach: %v", err)
	}

	_, err := s.SendCommand(EnableDebugger())
	want := &strixerrors.Error{Phase: strixerrors.PhaseInspector, Kind: strixerrors.KindClosed}
	if !errors.Is(err, want) {
		t.Errorf("SendCommand after detach = %v, want closed", err)
	}
}

func TestSendMarshalsParams(t *testing.T) {
	_, s := newTestSession(t)

	if _, err := s.Send("Debugger.setBreakpointByUrl", struct {
		URL        string `json:"url"`
		LineNumber int    `json:"lineNumber"`
	}{"app.js", 3}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	notifs := drainNotifications(s)
	if len(notifs) != 1 || !strings.Contains(notifs[0], "app.js:3") {
		t.Errorf("response = %v, want a breakpoint id echoing app.js:3", notifs)
	}
}
