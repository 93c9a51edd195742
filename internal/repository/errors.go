package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an optimistic concurrency check fails
	ErrConflict = errors.New("conflict: entity was modified by another writer")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrIOFailure is returned when durable storage is unreachable or a write failed
	ErrIOFailure = errors.New("storage i/o failure")
)

// IOError wraps a storage failure. It matches both ErrIOFailure and the
// underlying cause with errors.Is.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrIOFailure, e.Op, e.Err)
}

func (e *IOError) Unwrap() []error {
	return []error{ErrIOFailure, e.Err}
}

// IOFailure builds an IOError for op. A nil err yields nil.
func IOFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Err: err}
}
