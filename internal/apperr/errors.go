// Package apperr defines the error kinds surfaced to the presentation layer.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	ErrValidation       = errors.New("validation failed")
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrConcurrentLoad   = errors.New("concurrent load")
	ErrLoadTimeout      = errors.New("load timed out")
	ErrIO               = errors.New("io failure")

	// ErrCancelled marks a user-dismissed dialog. It is not a failure.
	ErrCancelled = errors.New("cancelled")
)

// ValidationError lists the fields that block a save or export.
type ValidationError struct {
	Missing   []string
	Malformed map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Malformed) > 0 {
		keys := make([]string, 0, len(e.Malformed))
		for k := range e.Malformed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		bad := make([]string, 0, len(keys))
		for _, k := range keys {
			bad = append(bad, fmt.Sprintf("%s (%s)", k, e.Malformed[k]))
		}
		parts = append(parts, "malformed fields: "+strings.Join(bad, ", "))
	}
	if len(parts) == 0 {
		return "validation failed"
	}
	return strings.Join(parts, "; ")
}

// Is reports ErrValidation as a match.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Empty reports whether no field failed.
func (e *ValidationError) Empty() bool {
	return len(e.Missing) == 0 && len(e.Malformed) == 0
}

// PayloadTooLargeError is returned when a serialized document exceeds the
// write-size ceiling.
type PayloadTooLargeError struct {
	Size  int
	Limit int
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("payload too large: %d bytes exceeds limit of %d; remove or re-upload images", e.Size, e.Limit)
}

// Is reports ErrPayloadTooLarge as a match.
func (e *PayloadTooLargeError) Is(target error) bool { return target == ErrPayloadTooLarge }

// Known reports whether err already belongs to the taxonomy.
func Known(err error) bool {
	for _, k := range []error{
		ErrNotFound, ErrConflict, ErrAlreadyExists, ErrValidation, ErrPayloadTooLarge,
		ErrStoreUnavailable, ErrConcurrentLoad, ErrLoadTimeout, ErrIO, ErrCancelled,
	} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// Store converts a raw store-adapter error into a taxonomy error. The
// transport error text is kept for logs, the chain only exposes the kind.
func Store(err error) error {
	if err == nil || Known(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrLoadTimeout, ErrStoreUnavailable)
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// IO converts a raw file-system or dialog error into a taxonomy error.
func IO(err error) error {
	if err == nil || Known(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrIO, err)
}
