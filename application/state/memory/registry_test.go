package memory

import (
	"slices"
	"testing"

	"skirmish/domain"
)

func TestRegistryHostAssignment(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.Host(); ok {
		t.Fatal("empty registry should have no host")
	}
	if !r.Admit("a") {
		t.Fatal("first admission should take the host role")
	}
	if r.Admit("b") || r.Admit("c") {
		t.Fatal("later admissions must not change the host")
	}
	if r.Admit("a") {
		t.Fatal("re-admitting a known session should be a no-op")
	}
	if !r.IsHost("a") || r.IsHost("b") {
		t.Fatalf("unexpected host state")
	}

	newHost, changed := r.Release("b")
	if changed || newHost != "a" {
		t.Fatalf("releasing non-host changed host: %s %v", newHost, changed)
	}

	newHost, changed = r.Release("a")
	if !changed || newHost != "c" {
		t.Fatalf("expected host to move to c, got %s %v", newHost, changed)
	}

	newHost, changed = r.Release("c")
	if !changed || newHost != "" {
		t.Fatalf("expected no host after last release, got %q %v", newHost, changed)
	}
	if _, ok := r.Host(); ok {
		t.Fatal("host should be empty")
	}
}

func TestRegistryReleaseUnknown(t *testing.T) {
	r := NewRegistry()
	r.Admit("a")

	host, changed := r.Release("zzz")
	if changed || host != "a" {
		t.Fatalf("unknown release = %s %v", host, changed)
	}
}

func TestRegistrySessionsOrder(t *testing.T) {
	r := NewRegistry()
	for _, id := range []domain.SessionID{"c", "a", "b"} {
		r.Admit(id)
	}
	r.Release("a")

	if got, want := r.Sessions(), []domain.SessionID{"c", "b"}; !slices.Equal(got, want) {
		t.Errorf("Sessions() = %v, want %v", got, want)
	}
	if r.Contains("a") {
		t.Error("released session still contained")
	}
}
