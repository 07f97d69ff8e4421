package strix

// ValueKind classifies an engine value.
type ValueKind uint32

const (
	KindUndefined ValueKind = iota
	KindNull
	KindBoolean
	KindNumber
	KindString
	KindSymbol
	KindObject
)

func (k ValueKind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSymbol:
		return "symbol"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// PauseEvent is one of the three debugger lifecycle events. All three fire
// synchronously on the goroutine that owns the context: Paused once per
// pause session, Tick periodically while paused, Resumed after the engine
// accepts a resume-class command.
type PauseEvent uint32

const (
	Paused PauseEvent = iota
	Tick
	Resumed
)

func (e PauseEvent) String() string {
	switch e {
	case Paused:
		return "paused"
	case Tick:
		return "tick"
	case Resumed:
		return "resumed"
	default:
		return "unknown"
	}
}

// ErrorKind selects the script error constructor MakeError uses.
type ErrorKind uint32

const (
	GenericError ErrorKind = iota
	TypeError
	RangeError
)

func (k ErrorKind) String() string {
	switch k {
	case TypeError:
		return "TypeError"
	case RangeError:
		return "RangeError"
	default:
		return "Error"
	}
}
