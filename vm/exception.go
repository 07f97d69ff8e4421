package vm

import (
	"fmt"

	strix "github.com/strixvm/strix-go"
)

// Exception is a script exception crossing into Go. Name, message, and stack
// are read once at construction so Error stays usable after the underlying
// value becomes unreachable.
type Exception struct {
	ctx *Context
	ref strix.ValueRef

	name    string
	message string
	stack   string
}

func newException(c *Context, ref strix.ValueRef) *Exception {
	exc := &Exception{ctx: c, ref: ref, name: "Error"}

	obj, convErr, err := c.eng().ToObject(c.ref, ref)
	if err != nil || !convErr.IsNull() {
		// A thrown primitive. Report its string form as the message.
		if s, sExc, sErr := c.eng().ToString(c.ref, ref); sErr == nil && sExc.IsNull() {
			exc.message = s
		}
		return exc
	}

	exc.name = exc.stringProperty(obj, "name", "Error")
	exc.message = exc.stringProperty(obj, "message", "")
	exc.stack = exc.stringProperty(obj, "stack", "")
	return exc
}

func (e *Exception) stringProperty(obj strix.ValueRef, name, fallback string) string {
	v, exc, err := e.ctx.eng().GetProperty(e.ctx.ref, obj, name)
	if err != nil || !exc.IsNull() || v.IsNull() {
		return fallback
	}
	if kind, err := e.ctx.eng().Kind(e.ctx.ref, v); err != nil || kind == strix.KindUndefined {
		return fallback
	}
	s, sExc, sErr := e.ctx.eng().ToString(e.ctx.ref, v)
	if sErr != nil || !sExc.IsNull() {
		return fallback
	}
	return s
}

// Value returns the exception object. It is only valid while the owning
// context is.
func (e *Exception) Value() Value {
	return e.ctx.value(e.ref)
}

// Name is the exception's constructor name, "TypeError" and the like.
func (e *Exception) Name() string { return e.name }

// Message is the exception's message property.
func (e *Exception) Message() string { return e.message }

// Stack is the exception's stack trace, empty when the engine supplied none.
func (e *Exception) Stack() string { return e.stack }

func (e *Exception) Error() string {
	if e.message == "" {
		return e.name
	}
	return fmt.Sprintf("%s: %s", e.name, e.message)
}
