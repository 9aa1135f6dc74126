package moderation

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every kind except ErrAuditWriteFailed means the decision was not applied.
var (
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrFinality       = errors.New("appeal rejected: prior appeal is final")
	ErrPartialFailure = errors.New("partial failure")
	ErrStorage        = errors.New("storage error")

	// ErrAuditWriteFailed is a warning: the decision is committed but its audit entry is missing.
	ErrAuditWriteFailed = errors.New("audit write failed")
)

// Applied reports whether the decision behind err was committed.
func Applied(err error) bool {
	return err == nil || errors.Is(err, ErrAuditWriteFailed)
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func finalityf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFinality, fmt.Sprintf(format, args...))
}

func conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// classified reports whether err already carries one of the taxonomy kinds.
func classified(err error) bool {
	for _, k := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrFinality, ErrPartialFailure, ErrStorage} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// storageErr wraps an unclassified store error as ErrStorage.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if classified(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// partialFailure wraps the failed secondary write of a two-entity transition.
// Concurrent resolution stays a conflict.
func partialFailure(op string, err error) error {
	if errors.Is(err, ErrConflict) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrPartialFailure, op, err)
}
