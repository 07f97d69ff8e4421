package inspector

import (
	"encoding/json"

	"github.com/strixvm/strix-go/errors"
)

// Message is the {id, method, params} command envelope. The pipe itself is
// opaque: this layer builds and serializes envelopes but never interprets
// what the engine sends back.
type Message struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Encode serializes the envelope for the engine's message entry point.
func (m Message) Encode() (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", errors.Wrap(errors.PhaseInspector, errors.KindInvalidInput, err, "encode protocol message")
	}
	return string(raw), nil
}

// command builds an envelope with no ID; Session.SendCommand assigns one.
// The fixed parameter shapes below cannot fail to marshal.
func command(method string, params any) Message {
	m := Message{Method: method}
	if params != nil {
		m.Params, _ = json.Marshal(params)
	}
	return m
}

// EnableDebugger turns the debugger domain on.
func EnableDebugger() Message { return command("Debugger.enable", nil) }

// DisableDebugger turns the debugger domain off.
func DisableDebugger() Message { return command("Debugger.disable", nil) }

// SetBreakpointsActive toggles whether registered breakpoints fire.
func SetBreakpointsActive(active bool) Message {
	return command("Debugger.setBreakpointsActive", struct {
		Active bool `json:"active"`
	}{active})
}

// SetBreakpointByURL registers a breakpoint at a zero-based line of the
// script attributed to url.
func SetBreakpointByURL(url string, line int) Message {
	return command("Debugger.setBreakpointByUrl", struct {
		URL        string `json:"url"`
		LineNumber int    `json:"lineNumber"`
	}{url, line})
}

// StepNext advances one statement within the current frame.
func StepNext() Message { return command("Debugger.stepNext", nil) }

// StepInto advances one statement, descending into calls.
func StepInto() Message { return command("Debugger.stepInto", nil) }

// StepOut runs until the current frame returns.
func StepOut() Message { return command("Debugger.stepOut", nil) }

// Resume ends the current pause session.
func Resume() Message { return command("Debugger.resume", nil) }

// Pause requests a pause at the next opportunity.
func Pause() Message { return command("Debugger.pause", nil) }

// EvaluateOnCallFrame evaluates expr in the scope of a paused call frame.
func EvaluateOnCallFrame(callFrameID, expr string) Message {
	return command("Debugger.evaluateOnCallFrame", struct {
		CallFrameID string `json:"callFrameId"`
		Expression  string `json:"expression"`
	}{callFrameID, expr})
}
