package inspector

import (
	"context"

	"go.uber.org/zap"

	strix "github.com/strixvm/strix-go"
)

// PauseDriver services pause sessions from inside the engine's pause
// callback. Its handlers run on the context goroutine while script
// execution is suspended and may synchronously Send debugger commands; the
// engine drains them between Ticks.
//
// The driver enforces the session state machine: Paused precedes any Tick,
// Resume goes out at most once per pause session, and nothing is dispatched
// after Resumed until the next Paused. Cross-goroutine coordinators block
// on Wait instead of touching the context.
type PauseDriver struct {
	// OnPaused runs once when a pause session opens.
	OnPaused func(d *PauseDriver)
	// OnTick runs on every pause-loop iteration until Resume is issued.
	OnTick func(d *PauseDriver)
	// OnResumed runs once when the session closes.
	OnResumed func(d *PauseDriver)

	session *Session
	log     *zap.Logger

	inPause    bool
	resumeSent bool

	resumed chan struct{}
}

// NewPauseDriver installs a driver as s's pause handler. One driver per
// session; installing a second replaces the first.
func NewPauseDriver(s *Session) *PauseDriver {
	d := &PauseDriver{
		session: s,
		log:     Logger(),
		resumed: make(chan struct{}, 1),
	}
	s.OnPause(d.handle)
	return d
}

// Session returns the session the driver drives.
func (d *PauseDriver) Session() *Session { return d.session }

// InPause reports whether a pause session is currently open.
func (d *PauseDriver) InPause() bool { return d.inPause }

// Send submits a command for the engine to drain before the next Tick.
func (d *PauseDriver) Send(m Message) (int64, error) {
	return d.session.SendCommand(m)
}

// Step issues a single-step command. No-op outside a pause session.
func (d *PauseDriver) Step() error {
	if !d.inPause || d.resumeSent {
		return nil
	}
	_, err := d.session.SendCommand(StepNext())
	return err
}

// Resume ends the pause session. At most one resume command goes out per
// session; later calls are no-ops until the next Paused.
func (d *PauseDriver) Resume() error {
	if !d.inPause || d.resumeSent {
		return nil
	}
	d.resumeSent = true
	_, err := d.session.SendCommand(Resume())
	return err
}

// Wait blocks until the current (or next) pause session resumes, or ctx
// expires. It is the one driver entry point meant for a goroutine other
// than the context's.
func (d *PauseDriver) Wait(ctx context.Context) error {
	select {
	case <-d.resumed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *PauseDriver) handle(event strix.PauseEvent) {
	switch event {
	case strix.Paused:
		if d.inPause {
			d.log.Warn("pause opened inside a pause session")
		}
		d.inPause = true
		d.resumeSent = false
		if d.OnPaused != nil {
			d.OnPaused(d)
		}

	case strix.Tick:
		if !d.inPause {
			d.log.Warn("tick outside a pause session")
			return
		}
		if d.resumeSent {
			return
		}
		if d.OnTick != nil {
			d.OnTick(d)
		}

	case strix.Resumed:
		if !d.inPause {
			d.log.Warn("resumed outside a pause session")
			return
		}
		d.inPause = false
		if d.OnResumed != nil {
			d.OnResumed(d)
		}
		select {
		case d.resumed <- struct{}{}:
		default:
		}
	}
}
