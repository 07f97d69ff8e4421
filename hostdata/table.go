package hostdata

import (
	"reflect"
	"strconv"
	"sync"

	"github.com/strixvm/strix-go/errors"
)

// Token is an opaque reference to a host-owned value parked in a Table.
// Token 0 is reserved and always invalid. Tokens are what cross the engine
// boundary: the engine stores them in private-data and context-data slots
// without interpreting them.
type Token uint32

// Releaser is optionally implemented by stored values that need cleanup when
// the table destroys them (Drop or Close). Take transfers ownership instead
// and never calls Release.
type Releaser interface {
	Release()
}

type entry struct {
	value any
	typ   reflect.Type
	valid bool
}

// Table stores host values behind uint32 tokens, recording each value's
// dynamic type so retrieval is checked. It is safe for concurrent use:
// finalizers fire from engine collection during any guest call.
type Table struct {
	mu       sync.RWMutex
	entries  []entry
	freeList []Token
	closed   bool
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		entries:  make([]entry, 0, 64),
		freeList: make([]Token, 0, 16),
	}
}

// Put stores value and returns its token. A nil value or a closed table
// yields the zero token.
func (t *Table) Put(value any) Token {
	if value == nil {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0
	}

	e := entry{
		value: value,
		typ:   reflect.TypeOf(value),
		valid: true,
	}

	if len(t.freeList) > 0 {
		tok := t.freeList[len(t.freeList)-1]
		t.freeList = t.freeList[:len(t.freeList)-1]
		t.entries[tok-1] = e
		return tok
	}

	t.entries = append(t.entries, e)
	return Token(len(t.entries))
}

// Get retrieves a value without transferring ownership.
func (t *Table) Get(tok Token) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.lookup(tok)
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Type returns the dynamic type recorded for tok.
func (t *Table) Type(tok Token) (reflect.Type, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.lookup(tok)
	if !ok {
		return nil, false
	}
	return e.typ, true
}

// Take removes the entry and hands the value back to the caller. Ownership
// transfers: Release is not called.
func (t *Table) Take(tok Token) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remove(tok)
}

// Drop destroys the entry, calling Release when the value implements
// Releaser. It reports whether an entry existed.
func (t *Table) Drop(tok Token) bool {
	t.mu.Lock()
	value, ok := t.remove(tok)
	t.mu.Unlock()
	if !ok {
		return false
	}

	if r, ok := value.(Releaser); ok {
		r.Release()
	}
	return true
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, e := range t.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Each iterates over live entries until fn returns false.
func (t *Table) Each(fn func(Token, any) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i, e := range t.entries {
		if e.valid {
			if !fn(Token(i+1), e.value) {
				break
			}
		}
	}
}

// Close destroys every entry, calling Release where implemented, and stops
// accepting operations.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	for i := range t.entries {
		if t.entries[i].valid {
			if r, ok := t.entries[i].value.(Releaser); ok {
				r.Release()
			}
			t.entries[i] = entry{}
		}
	}

	t.entries = nil
	t.freeList = nil
	return nil
}

// lookup and remove require the caller to hold the appropriate lock.

func (t *Table) lookup(tok Token) (*entry, bool) {
	if tok == 0 {
		return nil, false
	}
	idx := int(tok) - 1
	if idx >= len(t.entries) {
		return nil, false
	}
	e := &t.entries[idx]
	if !e.valid {
		return nil, false
	}
	return e, true
}

func (t *Table) remove(tok Token) (any, bool) {
	e, ok := t.lookup(tok)
	if !ok {
		return nil, false
	}
	value := e.value
	*e = entry{}
	t.freeList = append(t.freeList, tok)
	return value, true
}

// GetTyped retrieves the value for tok as T. A live entry of an
// incompatible type is a type_mismatch error; an invalid token is not_found.
func GetTyped[T any](t *Table, tok Token) (T, error) {
	var zero T

	t.mu.RLock()
	e, ok := t.lookup(tok)
	if !ok {
		t.mu.RUnlock()
		return zero, errors.NotFound(errors.PhaseOwnership, "token", tok.string())
	}
	value, typ := e.value, e.typ
	t.mu.RUnlock()

	want := reflect.TypeOf((*T)(nil)).Elem()
	if !typ.AssignableTo(want) {
		return zero, mismatch(want, typ)
	}
	return value.(T), nil
}

// TakeTyped removes the entry and returns the value as T. On type mismatch
// the entry stays in the table.
func TakeTyped[T any](t *Table, tok Token) (T, error) {
	var zero T

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.lookup(tok)
	if !ok {
		return zero, errors.NotFound(errors.PhaseOwnership, "token", tok.string())
	}

	want := reflect.TypeOf((*T)(nil)).Elem()
	if !e.typ.AssignableTo(want) {
		return zero, mismatch(want, e.typ)
	}

	value, _ := t.remove(tok)
	return value.(T), nil
}

func mismatch(want, got reflect.Type) *errors.Error {
	return errors.New(errors.PhaseOwnership, errors.KindTypeMismatch).
		GoType(want.String()).
		Detail("slot holds %s", got).
		Build()
}

func (tok Token) string() string {
	return strconv.FormatUint(uint64(tok), 10)
}
