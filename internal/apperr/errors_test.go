package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestValidationErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("save: %w", &ValidationError{Missing: []string{"headline", "cta"}})
	if !errors.Is(err, ErrValidation) {
		t.Fatal("expected ErrValidation match")
	}
	if !strings.Contains(err.Error(), "headline, cta") {
		t.Errorf("message = %q, want missing fields listed", err.Error())
	}
}

func TestValidationErrorMalformedSorted(t *testing.T) {
	err := &ValidationError{Malformed: map[string]string{"b": "too long", "a": "rule failed"}}
	want := "malformed fields: a (rule failed), b (too long)"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestPayloadTooLarge(t *testing.T) {
	err := fmt.Errorf("store: %w", &PayloadTooLargeError{Size: 950001, Limit: 950000})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatal("expected ErrPayloadTooLarge match")
	}
	var ptl *PayloadTooLargeError
	if !errors.As(err, &ptl) || ptl.Size != 950001 {
		t.Errorf("errors.As failed: %+v", ptl)
	}
}

func TestStoreClassification(t *testing.T) {
	raw := errors.New("rpc error: connection refused")
	err := Store(raw)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("got %v, want ErrStoreUnavailable", err)
	}
	if errors.Is(err, raw) {
		t.Error("raw transport error must not be reachable through the chain")
	}

	if got := Store(ErrNotFound); got != ErrNotFound {
		t.Errorf("known kinds pass through, got %v", got)
	}

	timeout := Store(context.DeadlineExceeded)
	if !errors.Is(timeout, ErrLoadTimeout) || !errors.Is(timeout, ErrStoreUnavailable) {
		t.Errorf("deadline should map to timeout + unavailable, got %v", timeout)
	}
	if Store(nil) != nil {
		t.Error("nil stays nil")
	}
}

func TestIOClassification(t *testing.T) {
	if err := IO(errors.New("disk full")); !errors.Is(err, ErrIO) {
		t.Errorf("got %v, want ErrIO", err)
	}
	if err := IO(ErrCancelled); err != ErrCancelled {
		t.Errorf("cancellation passes through, got %v", err)
	}
}
