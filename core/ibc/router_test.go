package ibc

import (
	"testing"

	"chainmesh/core/status"
)

func TestBindThenIsBound(t *testing.T) {
	r := NewRouter()
	if r.IsBound("port-a", "chan-a") {
		t.Fatal("expected unbound before Bind")
	}
	if err := r.Bind("port-a", "chan-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.IsBound("port-a", "chan-a") {
		t.Fatal("expected bound after Bind")
	}
}

func TestDoubleBindFails(t *testing.T) {
	r := NewRouter()
	r.Bind("port-a", "chan-a")
	if err := r.Bind("port-a", "chan-a"); !status.Is(err, status.InvalidState) {
		t.Fatalf("expected InvalidState on double bind, got %v", err)
	}
}

func TestUnbindUnknownFails(t *testing.T) {
	r := NewRouter()
	if err := r.Unbind("port-a", "chan-a"); !status.Is(err, status.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestUnbindRemovesBinding(t *testing.T) {
	r := NewRouter()
	r.Bind("port-a", "chan-a")
	if err := r.Unbind("port-a", "chan-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.IsBound("port-a", "chan-a") {
		t.Fatal("expected unbound after Unbind")
	}
}
