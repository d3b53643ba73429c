package producers

import (
	"context"
	"testing"

	"github.com/linnemanlabs/ksiwatch/internal/evidence"
)

type stubProducer struct{ name string }

func (s stubProducer) Name() string     { return s.name }
func (s stubProducer) Category() string { return "c" }
func (s stubProducer) Produce(context.Context) (*evidence.Result, error) {
	return &evidence.Result{}, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Register(stubProducer{"b"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(stubProducer{"a"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, ok := r.Get("a"); !ok {
		t.Error("expected a to be registered")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("expected missing to be absent")
	}

	all := r.All()
	if len(all) != 2 || all[0].Name() != "a" || all[1].Name() != "b" {
		t.Errorf("All = %v, want [a b]", all)
	}
}

func TestRegistry_Select(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_ = r.Register(stubProducer{"a"})
	_ = r.Register(stubProducer{"b"})

	got, err := r.Select("b")
	if err != nil || len(got) != 1 || got[0].Name() != "b" {
		t.Fatalf("Select(b) = %v, %v", got, err)
	}
	if got, _ := r.Select(); len(got) != 2 {
		t.Errorf("Select() = %d producers, want 2", len(got))
	}
	if _, err := r.Select("nope"); err == nil {
		t.Error("expected error for unknown producer")
	}
}
