package nullspace

import (
	"errors"
	"fmt"
	"testing"
)

func TestHaltError(t *testing.T) {
	err := NewHaltError(42, "state root mismatch")
	if err.Height != 42 {
		t.Errorf("expected height 42, got %d", err.Height)
	}
	if err.Reason != "state root mismatch" {
		t.Errorf("unexpected reason: %s", err.Reason)
	}

	expected := "HALT at height 42: state root mismatch"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}

func TestIsHalt(t *testing.T) {
	haltErr := NewHaltError(10, "divergence")

	h, ok := IsHalt(haltErr)
	if !ok {
		t.Fatal("expected IsHalt to return true")
	}
	if h.Height != 10 {
		t.Errorf("expected height 10, got %d", h.Height)
	}

	// Wrapped.
	h2, ok2 := IsHalt(fmt.Errorf("apply block: %w", haltErr))
	if !ok2 {
		t.Fatal("expected IsHalt to unwrap wrapped error")
	}
	if h2 != haltErr {
		t.Error("expected the same HaltError back")
	}

	if _, ok := IsHalt(errors.New("just a regular error")); ok {
		t.Fatal("expected IsHalt to return false for non-halt error")
	}
	if _, ok := IsHalt(nil); ok {
		t.Fatal("expected IsHalt to return false for nil")
	}
}

func TestOutOfOrderHeightError(t *testing.T) {
	var err error = &OutOfOrderHeightError{Expected: 5, Got: 9}
	if !errors.Is(err, ErrOutOfOrderHeight) {
		t.Fatal("expected errors.Is to match ErrOutOfOrderHeight")
	}
	if errors.Is(err, ErrParentRootMismatch) {
		t.Fatal("unexpected match on ErrParentRootMismatch")
	}

	var ooo *OutOfOrderHeightError
	if !errors.As(fmt.Errorf("wrapped: %w", err), &ooo) {
		t.Fatal("expected errors.As to find the typed error")
	}
	if ooo.Expected != 5 || ooo.Got != 9 {
		t.Errorf("unexpected fields: %+v", ooo)
	}
	if got := err.Error(); got != "block height out of order: expected 5, got 9" {
		t.Errorf("unexpected message %q", got)
	}
}
