package runtime

import "testing"

type stubHandler struct {
	typ string
}

func (h *stubHandler) Type() string       { return h.typ }
func (h *stubHandler) Run(*Context) error { return nil }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubHandler{typ: "clustering"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&stubHandler{typ: "clustering"}); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if err := r.Register(&stubHandler{}); err == nil {
		t.Fatalf("expected empty type to fail")
	}
	if err := r.Register(nil); err == nil {
		t.Fatalf("expected nil handler to fail")
	}
	if _, ok := r.Get("clustering"); !ok {
		t.Fatalf("expected handler lookup to succeed")
	}
	if _, ok := r.Get("unknown"); ok {
		t.Fatalf("expected unknown lookup to fail")
	}
	if got := r.Types(); len(got) != 1 || got[0] != "clustering" {
		t.Fatalf("unexpected types: %#v", got)
	}
}
