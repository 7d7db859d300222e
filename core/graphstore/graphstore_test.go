package graphstore

import (
	"errors"
	"testing"
)

func TestWrapNilCauseReturnsNil(t *testing.T) {
	if err := Wrap("get_turn", nil); err != nil {
		t.Fatalf("expected nil error for nil cause, got %v", err)
	}
}

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap("get_turn", cause)

	var storeErr *StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected *StoreError, got %T", err)
	}
	if storeErr.Op != "get_turn" {
		t.Fatalf("expected op %q, got %q", "get_turn", storeErr.Op)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected Wrap to preserve cause for errors.Is")
	}
}
