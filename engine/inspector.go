package engine

import (
	strix "github.com/strixvm/strix-go"
)

// SetInspectable toggles debugger availability for c. Inbound protocol
// messages are accepted only while the context is inspectable.
func (e *WazeroEngine) SetInspectable(c strix.ContextRef, enabled bool) error {
	arg := uint64(0)
	if enabled {
		arg = 1
	}
	return e.invoke0(expSetInspectable, uint64(c), arg)
}

// InspectorSendMessage delivers one frontend-to-engine protocol message.
// The payload is opaque here; replies and notifications come back through
// the context's inspector message hook, possibly before this call returns.
func (e *WazeroEngine) InspectorSendMessage(c strix.ContextRef, message string) error {
	g, err := e.writeString(message)
	if err != nil {
		return err
	}
	defer e.freeStr(g)

	return e.invoke0(expInspectorSend, uint64(c), uint64(g.ptr), uint64(g.size))
}

func (e *WazeroEngine) InspectorDisconnect(c strix.ContextRef) error {
	return e.invoke0(expInspectorDisc, uint64(c))
}

func (e *WazeroEngine) InspectorIsConnected(c strix.ContextRef) (bool, error) {
	res, err := e.invoke1(expInspectorConnected, uint64(c))
	if err != nil {
		return false, err
	}
	return res != 0, nil
}
