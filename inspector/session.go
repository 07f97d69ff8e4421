package inspector

import (
	"encoding/json"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	strix "github.com/strixvm/strix-go"
	"github.com/strixvm/strix-go/errors"
	"github.com/strixvm/strix-go/vm"
)

// Session is one inspector attachment to a context. It owns the message and
// pause hooks for the attachment's lifetime and republishes what they carry
// onto channels for observers on other goroutines.
//
// Attach, Send, and Detach must run on the context's goroutine, like every
// other call into the context. Notifications and Events are safe to consume
// from anywhere.
type Session struct {
	ctx *vm.Context
	id  string
	log *zap.Logger

	nextID atomic.Int64

	notifications chan []byte
	events        chan strix.PauseEvent

	// onPause runs synchronously on the context goroutine before the event
	// is republished. PauseDriver installs itself here.
	onPause func(strix.PauseEvent)

	detached bool
}

// Option adjusts a session at attach time.
type Option func(*sessionOpts)

type sessionOpts struct {
	notificationBuffer int
	eventBuffer        int
}

// WithNotificationBuffer sizes the notifications channel. Messages arriving
// while the channel is full are dropped with a log entry; the protocol has
// no flow control to push back on the engine.
func WithNotificationBuffer(n int) Option {
	return func(o *sessionOpts) { o.notificationBuffer = n }
}

// WithEventBuffer sizes the pause-event channel.
func WithEventBuffer(n int) Option {
	return func(o *sessionOpts) { o.eventBuffer = n }
}

// Attach marks ctx inspectable and installs the session's message and pause
// hooks. The hooks go in before the inspectable flag flips so no engine
// message can fire into an unwired session.
func Attach(ctx *vm.Context, opts ...Option) (*Session, error) {
	o := sessionOpts{notificationBuffer: 64, eventBuffer: 16}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		ctx:           ctx,
		id:            uuid.NewString(),
		log:           Logger(),
		notifications: make(chan []byte, o.notificationBuffer),
		events:        make(chan strix.PauseEvent, o.eventBuffer),
	}

	if err := ctx.OnInspectorMessage(s.receive); err != nil {
		return nil, err
	}
	if err := ctx.OnPauseEvent(s.pauseEvent); err != nil {
		_ = ctx.OnInspectorMessage(nil)
		return nil, err
	}
	if err := ctx.SetInspectable(true); err != nil {
		_ = ctx.OnPauseEvent(nil)
		_ = ctx.OnInspectorMessage(nil)
		return nil, err
	}

	s.log.Debug("inspector session attached",
		zap.String("session", s.id),
		zap.Stringer("context", ctx.Ref()))
	return s, nil
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// Context returns the attached context.
func (s *Session) Context() *vm.Context { return s.ctx }

// Send builds and submits one {id, method, params} command, returning the
// ID assigned to it. The engine's response arrives asynchronously on
// Notifications carrying the same ID.
func (s *Session) Send(method string, params any) (int64, error) {
	m := Message{Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return 0, errors.Wrap(errors.PhaseInspector, errors.KindInvalidInput, err, "encode command params")
		}
		m.Params = raw
	}
	return s.SendCommand(m)
}

// SendCommand assigns an ID to a prebuilt envelope and submits it.
func (s *Session) SendCommand(m Message) (int64, error) {
	if s.detached {
		return 0, errors.Closed(errors.PhaseInspector, "inspector session")
	}
	m.ID = s.nextID.Add(1)
	raw, err := m.Encode()
	if err != nil {
		return 0, err
	}
	if err := s.ctx.InspectorSend(raw); err != nil {
		return 0, err
	}
	return m.ID, nil
}

// Notifications returns the channel of raw protocol messages from the
// engine: command responses and debugger notifications alike, unvalidated.
// The channel closes on Detach.
func (s *Session) Notifications() <-chan []byte {
	return s.notifications
}

// Events returns the pause lifecycle channel. Events appear in the order
// the engine fired them; the channel closes on Detach.
func (s *Session) Events() <-chan strix.PauseEvent {
	return s.events
}

// OnPause installs a handler that runs synchronously on the context
// goroutine for every pause event, before the event is republished to
// Events. It may call Send. Install it before script evaluation starts.
func (s *Session) OnPause(fn func(strix.PauseEvent)) {
	s.onPause = fn
}

// Detach disconnects the inspector, removes the session's hooks, and closes
// both channels. It must run on the context goroutine.
func (s *Session) Detach() error {
	if s.detached {
		return nil
	}
	s.detached = true

	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	keep(s.ctx.InspectorDisconnect())
	keep(s.ctx.SetInspectable(false))
	keep(s.ctx.OnPauseEvent(nil))
	keep(s.ctx.OnInspectorMessage(nil))

	close(s.notifications)
	close(s.events)

	s.log.Debug("inspector session detached", zap.String("session", s.id))
	return first
}

func (s *Session) receive(message string) {
	select {
	case s.notifications <- []byte(message):
	default:
		s.log.Warn("inspector notification dropped",
			zap.String("session", s.id),
			zap.Int("buffer", cap(s.notifications)))
	}
}

func (s *Session) pauseEvent(event strix.PauseEvent) {
	if fn := s.onPause; fn != nil {
		fn(event)
	}
	select {
	case s.events <- event:
	default:
		s.log.Warn("pause event dropped",
			zap.String("session", s.id),
			zap.Stringer("event", event))
	}
}
