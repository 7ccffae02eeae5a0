package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrIndexUnavailable, "index query timed out").
		WithCause(root).
		WithHTTPStatus(503).
		WithRetryable(true).
		WithStage("retrieval")

	if GetErrorCode(err) != ErrIndexUnavailable {
		t.Fatalf("expected code %s, got %s", ErrIndexUnavailable, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestGetErrorCode_SeesThroughWrapping(t *testing.T) {
	t.Parallel()

	inner := NewError(ErrBudgetUnsatisfiable, "pruning exhausted")
	wrapped := fmt.Errorf("assembling agent scout-1: %w", inner)

	if !IsErrorCode(wrapped, ErrBudgetUnsatisfiable) {
		t.Fatalf("expected code to survive fmt.Errorf wrapping")
	}
	if IsErrorCode(errors.New("plain"), ErrBudgetUnsatisfiable) {
		t.Fatalf("plain error must not match")
	}
}
