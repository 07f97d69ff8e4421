package hostdata

import (
	stderrors "errors"
	"testing"

	"github.com/strixvm/strix-go/errors"
)

type releaseCounter struct {
	released int
}

func (r *releaseCounter) Release() {
	r.released++
}

func TestTable_PutGet(t *testing.T) {
	tbl := NewTable()
	defer tbl.Close()

	tok := tbl.Put("hello")
	if tok == 0 {
		t.Fatal("Put returned zero token")
	}

	v, ok := tbl.Get(tok)
	if !ok {
		t.Fatal("Get failed")
	}
	if v != "hello" {
		t.Errorf("Get = %v, want hello", v)
	}
}

func TestTable_InvalidTokens(t *testing.T) {
	tbl := NewTable()
	defer tbl.Close()

	if _, ok := tbl.Get(0); ok {
		t.Error("token 0 should never resolve")
	}
	if _, ok := tbl.Get(42); ok {
		t.Error("unallocated token should not resolve")
	}
	if tbl.Put(nil) != 0 {
		t.Error("Put(nil) should return zero token")
	}
}

func TestTable_TakeTransfersOwnership(t *testing.T) {
	tbl := NewTable()
	defer tbl.Close()

	rc := &releaseCounter{}
	tok := tbl.Put(rc)

	v, ok := tbl.Take(tok)
	if !ok {
		t.Fatal("Take failed")
	}
	if v != rc {
		t.Error("Take returned wrong value")
	}
	if rc.released != 0 {
		t.Error("Take must not call Release")
	}
	if _, ok := tbl.Get(tok); ok {
		t.Error("entry should be gone after Take")
	}
}

func TestTable_DropCallsRelease(t *testing.T) {
	tbl := NewTable()
	defer tbl.Close()

	rc := &releaseCounter{}
	tok := tbl.Put(rc)

	if !tbl.Drop(tok) {
		t.Fatal("Drop failed")
	}
	if rc.released != 1 {
		t.Errorf("released = %d, want 1", rc.released)
	}
	if tbl.Drop(tok) {
		t.Error("second Drop should report false")
	}
}

func TestTable_TokenReuse(t *testing.T) {
	tbl := NewTable()
	defer tbl.Close()

	a := tbl.Put("a")
	b := tbl.Put("b")
	if a == b {
		t.Fatal("distinct values got the same token")
	}

	tbl.Take(a)
	c := tbl.Put("c")
	if c != a {
		t.Errorf("freed token not reused: got %d, want %d", c, a)
	}

	v, _ := tbl.Get(c)
	if v != "c" {
		t.Errorf("reused slot holds %v, want c", v)
	}
}

func TestTable_GetTyped(t *testing.T) {
	tbl := NewTable()
	defer tbl.Close()

	type hostState struct{ hits int }
	tok := tbl.Put(&hostState{hits: 3})

	got, err := GetTyped[*hostState](tbl, tok)
	if err != nil {
		t.Fatalf("GetTyped: %v", err)
	}
	if got.hits != 3 {
		t.Errorf("hits = %d, want 3", got.hits)
	}

	_, err = GetTyped[string](tbl, tok)
	if err == nil {
		t.Fatal("mismatched GetTyped should error")
	}
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseOwnership, Kind: errors.KindTypeMismatch}) {
		t.Errorf("want ownership/type_mismatch, got %v", err)
	}

	_, err = GetTyped[*hostState](tbl, 99)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseOwnership, Kind: errors.KindNotFound}) {
		t.Errorf("want ownership/not_found, got %v", err)
	}
}

func TestTable_GetTypedInterface(t *testing.T) {
	tbl := NewTable()
	defer tbl.Close()

	rc := &releaseCounter{}
	tok := tbl.Put(rc)

	got, err := GetTyped[Releaser](tbl, tok)
	if err != nil {
		t.Fatalf("interface retrieval: %v", err)
	}
	if got != Releaser(rc) {
		t.Error("interface retrieval returned wrong value")
	}
}

func TestTable_TakeTypedMismatchKeepsEntry(t *testing.T) {
	tbl := NewTable()
	defer tbl.Close()

	tok := tbl.Put(7.5)

	if _, err := TakeTyped[string](tbl, tok); err == nil {
		t.Fatal("mismatched TakeTyped should error")
	}
	if _, ok := tbl.Get(tok); !ok {
		t.Error("mismatched TakeTyped must not remove the entry")
	}

	v, err := TakeTyped[float64](tbl, tok)
	if err != nil {
		t.Fatalf("TakeTyped: %v", err)
	}
	if v != 7.5 {
		t.Errorf("TakeTyped = %v, want 7.5", v)
	}
	if _, ok := tbl.Get(tok); ok {
		t.Error("entry should be gone after successful TakeTyped")
	}
}

func TestTable_CloseReleasesAll(t *testing.T) {
	tbl := NewTable()

	a := &releaseCounter{}
	b := &releaseCounter{}
	tbl.Put(a)
	tok := tbl.Put(b)

	if err := tbl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if a.released != 1 || b.released != 1 {
		t.Errorf("released = %d/%d, want 1/1", a.released, b.released)
	}

	if tbl.Put("late") != 0 {
		t.Error("Put after Close should return zero token")
	}
	if _, ok := tbl.Get(tok); ok {
		t.Error("Get after Close should fail")
	}
	if err := tbl.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestTable_LenEach(t *testing.T) {
	tbl := NewTable()
	defer tbl.Close()

	toks := []Token{tbl.Put(1), tbl.Put(2), tbl.Put(3)}
	if tbl.Len() != 3 {
		t.Errorf("Len = %d, want 3", tbl.Len())
	}

	tbl.Take(toks[1])
	if tbl.Len() != 2 {
		t.Errorf("Len after Take = %d, want 2", tbl.Len())
	}

	seen := 0
	tbl.Each(func(tok Token, v any) bool {
		seen++
		return true
	})
	if seen != 2 {
		t.Errorf("Each visited %d entries, want 2", seen)
	}

	seen = 0
	tbl.Each(func(tok Token, v any) bool {
		seen++
		return false
	})
	if seen != 1 {
		t.Errorf("Each should stop when fn returns false, visited %d", seen)
	}
}
