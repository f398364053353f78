package common

import (
	"errors"
	"testing"
)

type stubPauses struct {
	modules map[string]bool
}

func (s stubPauses) IsPaused(module string) bool {
	return s.modules[module]
}

func TestGuard(t *testing.T) {
	if err := Guard(nil, "stable"); err != nil {
		t.Fatalf("nil view should pass: %v", err)
	}
	view := stubPauses{modules: map[string]bool{"stable": true}}
	if err := Guard(view, "stable"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(view, "other"); err != nil {
		t.Fatalf("unpaused module should pass: %v", err)
	}
}

func TestCallLatchRejectsNestedEntry(t *testing.T) {
	var latch CallLatch

	release, err := latch.Enter()
	if err != nil {
		t.Fatalf("first entry: %v", err)
	}
	if _, err := latch.Enter(); !errors.Is(err, ErrReentrantCall) {
		t.Fatalf("expected ErrReentrantCall, got %v", err)
	}
	release()

	release, err = latch.Enter()
	if err != nil {
		t.Fatalf("entry after release: %v", err)
	}
	release()
}
