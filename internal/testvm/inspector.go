package testvm

import (
	"encoding/json"
	"fmt"

	strix "github.com/strixvm/strix-go"
	"github.com/strixvm/strix-go/errors"
)

// The debugger state machine mirrors the production contract: Paused fires
// exactly once per pause session before any Tick, commands submitted from
// inside pause callbacks queue until the loop drains them, and Resumed fires
// after a resume-class command with no Tick following it.

type breakpoint struct {
	url  string
	line int
}

type debugger struct {
	enabled  bool
	bpActive bool
	bps      []breakpoint

	inPause bool
	resume  bool
	steps   int
	queue   []protocolMessage
	hits    map[breakpoint]bool
}

type protocolMessage struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

func (rec *ctxRec) shouldPause(url string, line int) bool {
	d := &rec.dbg
	if !d.enabled || !d.bpActive || d.inPause {
		return false
	}
	bp := breakpoint{url: url, line: line}
	for _, b := range d.bps {
		if b == bp && !d.hits[bp] {
			if d.hits == nil {
				d.hits = make(map[breakpoint]bool)
			}
			d.hits[bp] = true
			return true
		}
	}
	return false
}

func (e *Engine) SetInspectable(c strix.ContextRef, enabled bool) error {
	rec, err := e.ctx(c)
	if err != nil {
		return err
	}
	rec.inspectable = enabled
	rec.connected = enabled && rec.hooks.InspectorMessage != 0
	return nil
}

func (e *Engine) InspectorIsConnected(c strix.ContextRef) (bool, error) {
	rec, err := e.ctx(c)
	if err != nil {
		return false, err
	}
	return rec.connected, nil
}

func (e *Engine) InspectorDisconnect(c strix.ContextRef) error {
	rec, err := e.ctx(c)
	if err != nil {
		return err
	}
	rec.connected = false
	rec.dbg = debugger{}
	return nil
}

// InspectorSendMessage accepts one {id, method, params} envelope. While a
// pause loop is live the command queues; its effects surface through the
// message hook once the loop drains it. Outside a pause the command is
// handled immediately.
func (e *Engine) InspectorSendMessage(c strix.ContextRef, message string) error {
	rec, err := e.ctx(c)
	if err != nil {
		return err
	}
	if !rec.inspectable {
		return errors.NotInitialized(errors.PhaseInspector, "inspector")
	}

	var m protocolMessage
	if err := json.Unmarshal([]byte(message), &m); err != nil {
		return errors.Wrap(errors.PhaseInspector, errors.KindInvalidInput, err, "malformed protocol message")
	}

	if rec.dbg.inPause {
		rec.dbg.queue = append(rec.dbg.queue, m)
		return nil
	}
	e.handleCommand(c, rec, m)
	return nil
}

func (e *Engine) handleCommand(c strix.ContextRef, rec *ctxRec, m protocolMessage) {
	d := &rec.dbg
	result := "{}"

	switch m.Method {
	case "Debugger.enable":
		d.enabled = true
		result = `{"debuggerId":"strix-debugger"}`
	case "Debugger.disable":
		d.enabled = false
	case "Debugger.setBreakpointsActive":
		var p struct {
			Active bool `json:"active"`
		}
		_ = json.Unmarshal(m.Params, &p)
		d.bpActive = p.Active
	case "Debugger.setBreakpointByUrl":
		var p struct {
			URL        string `json:"url"`
			LineNumber int    `json:"lineNumber"`
		}
		_ = json.Unmarshal(m.Params, &p)
		d.bps = append(d.bps, breakpoint{url: p.URL, line: p.LineNumber})
		result = fmt.Sprintf(`{"breakpointId":"%s:%d"}`, p.URL, p.LineNumber)
	case "Debugger.stepNext", "Debugger.stepOver", "Debugger.stepInto", "Debugger.stepOut":
		if d.inPause {
			d.steps++
		}
	case "Debugger.resume":
		if d.inPause {
			d.resume = true
		}
	case "Debugger.evaluateOnCallFrame":
		result = `{"result":{"type":"undefined"}}`
	default:
		e.notifyInspector(c, rec, fmt.Sprintf(`{"id":%d,"error":{"message":"unknown method %q"}}`, m.ID, m.Method))
		return
	}
	e.notifyInspector(c, rec, fmt.Sprintf(`{"id":%d,"result":%s}`, m.ID, result))
}

func (e *Engine) notifyInspector(c strix.ContextRef, rec *ctxRec, message string) {
	if rec.hooks.InspectorMessage == 0 {
		return
	}
	if hook, ok := e.hooks[rec.hooks.InspectorMessage].(strix.MessageFunc); ok {
		hook(c, message)
	}
}

func (e *Engine) notifyScriptParsed(c strix.ContextRef, rec *ctxRec, url string) {
	e.notifyInspector(c, rec,
		fmt.Sprintf(`{"method":"Debugger.scriptParsed","params":{"url":%q}}`, url))
}

func (e *Engine) firePause(c strix.ContextRef, rec *ctxRec, event strix.PauseEvent) {
	if rec.hooks.PauseEvent == 0 {
		return
	}
	if hook, ok := e.hooks[rec.hooks.PauseEvent].(strix.PauseFunc); ok {
		hook(c, event)
	}
}

// runPauseLoop services one pause session on the caller's goroutine. The
// iteration order matches the production contract: Paused, then rounds of
// drain-queue-then-Tick, then Resumed once a resume command was drained
// with nothing after it.
func (e *Engine) runPauseLoop(c strix.ContextRef, rec *ctxRec, url string, line int) error {
	d := &rec.dbg
	d.inPause = true
	d.resume = false
	d.steps = 0

	e.notifyInspector(c, rec, fmt.Sprintf(
		`{"method":"Debugger.paused","params":{"reason":"breakpoint","callFrames":[{"callFrameId":"frame-0","url":%q,"location":{"lineNumber":%d}}]}}`,
		url, line))
	e.firePause(c, rec, strix.Paused)

	// The loop must terminate even when no driver ever resumes; idle
	// rounds with an empty queue eventually force a resume.
	const idleLimit = 1024
	idle := 0
	for !d.resume {
		if len(d.queue) == 0 {
			idle++
			if idle > idleLimit {
				d.resume = true
				break
			}
		} else {
			idle = 0
			queued := d.queue
			d.queue = nil
			for _, m := range queued {
				e.handleCommand(c, rec, m)
			}
			if d.resume {
				break
			}
		}
		e.firePause(c, rec, strix.Tick)
	}

	// Late stragglers submitted during the final Tick still get answers,
	// but no further Tick fires.
	queued := d.queue
	d.queue = nil
	for _, m := range queued {
		e.handleCommand(c, rec, m)
	}

	e.notifyInspector(c, rec, `{"method":"Debugger.resumed","params":{}}`)
	d.inPause = false
	e.firePause(c, rec, strix.Resumed)
	return nil
}
