package hostdata

import (
	"reflect"
	"sync"
)

// Slot is the single-value store backing a context's shared data. Exactly
// one value fits; storing another replaces it. The slot records the stored
// dynamic type so mismatched retrieval is a checked error rather than a
// reinterpretation.
type Slot struct {
	mu  sync.Mutex
	val any
	typ reflect.Type
	set bool
}

// Set stores v, reporting whether it replaced an existing value. The
// replaced value is simply dropped; it stays owned by Go and is collected
// normally.
func (s *Slot) Set(v any) (replaced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced = s.set
	s.val = v
	s.typ = reflect.TypeOf(v)
	s.set = true
	return replaced
}

// Raw returns the stored value without a type check.
func (s *Slot) Raw() (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return nil, false
	}
	return s.val, true
}

// Clear empties the slot, returning what it held.
func (s *Slot) Clear() (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return nil, false
	}
	v := s.val
	s.val = nil
	s.typ = nil
	s.set = false
	return v, true
}

// SlotValue reads the slot as T without taking ownership. The second result
// is false when the slot is empty; a populated slot of an incompatible type
// is a type_mismatch error.
func SlotValue[T any](s *Slot) (T, bool, error) {
	var zero T

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.set {
		return zero, false, nil
	}

	want := reflect.TypeOf((*T)(nil)).Elem()
	if !s.typ.AssignableTo(want) {
		return zero, false, mismatch(want, s.typ)
	}
	return s.val.(T), true, nil
}

// SlotTake empties the slot and returns the value as T. On type mismatch
// the slot keeps its value.
func SlotTake[T any](s *Slot) (T, bool, error) {
	var zero T

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.set {
		return zero, false, nil
	}

	want := reflect.TypeOf((*T)(nil)).Elem()
	if !s.typ.AssignableTo(want) {
		return zero, false, mismatch(want, s.typ)
	}

	v := s.val.(T)
	s.val = nil
	s.typ = nil
	s.set = false
	return v, true, nil
}
