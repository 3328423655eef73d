package cron

import (
	"testing"
)

func jobNames(r *Registry) []string {
	var names []string
	for _, job := range r.Jobs() {
		names = append(names, job.Name())
	}
	return names
}

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	registry, err := NewRegistry(&funcJob{name: "outbox-retention"}, nil, &funcJob{name: "notification-cleanup"})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if err := registry.Register(&funcJob{name: "reconciliation-report"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	got := jobNames(registry)
	want := []string{"outbox-retention", "notification-cleanup", "reconciliation-report"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}

	jobs := registry.Jobs()
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatal("Jobs must return a copy")
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	if _, err := NewRegistry(&funcJob{name: "a"}, &funcJob{name: "a"}); err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func TestRegistryOnly(t *testing.T) {
	registry, _ := NewRegistry(&funcJob{name: "a"}, &funcJob{name: "b"}, &funcJob{name: "c"})

	subset, err := registry.Only("c", "a")
	if err != nil {
		t.Fatalf("Only: %v", err)
	}
	if got := jobNames(subset); len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("unexpected subset %v", got)
	}
	if all, _ := registry.Only(); len(all.Jobs()) != 3 {
		t.Fatal("no names should keep every job")
	}
	if _, err := registry.Only("missing"); err == nil {
		t.Fatal("expected error for unknown job")
	}
}
