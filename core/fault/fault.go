// Package fault classifies dispatch outcomes. NotFound, InvalidState and
// DuplicateRequest are business outcomes carried inside result structs;
// Infrastructure is the only kind surfaced as a Go error.
package fault

import (
	"errors"
	"fmt"
)

// Kind is the category of a non-successful outcome.
type Kind string

const (
	KindNone             Kind = ""
	KindNotFound         Kind = "NOT_FOUND"
	KindInvalidState     Kind = "INVALID_STATE"
	KindDuplicateRequest Kind = "DUPLICATE_REQUEST"
	KindInfrastructure   Kind = "INFRASTRUCTURE"
)

// ErrInfrastructure marks retryable store or channel failures.
var ErrInfrastructure = errors.New("infrastructure failure")

// Error wraps an underlying infrastructure error with the failing operation.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() []error { return []error{ErrInfrastructure, e.Err} }

// Infrastructure wraps err so that errors.Is(err, ErrInfrastructure) holds.
// A nil err yields nil.
func Infrastructure(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Op: op, Err: err}
}

// Retryable reports whether err is an infrastructure failure.
func Retryable(err error) bool {
	return errors.Is(err, ErrInfrastructure)
}
