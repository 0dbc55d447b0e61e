package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinels for errors.Is checks against the typed errors below
var (
	ErrValidation  = errors.New("validation failed")
	ErrReferential = errors.New("referenced anime does not exist")
	ErrNotFound    = errors.New("not found")
	ErrStorage     = errors.New("storage failure")
)

// ValidationError reports malformed input rejected before any write
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ReferentialError reports a torrent candidate attached to an unknown anime
type ReferentialError struct {
	Key AnimeKey
}

func (e *ReferentialError) Error() string {
	return fmt.Sprintf("anime %s does not exist", e.Key)
}

func (e *ReferentialError) Is(target error) bool {
	return target == ErrReferential
}

// NotFoundError is a lookup miss. Callers treat it as a normal outcome.
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string {
	return e.What + " not found"
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// StorageError wraps a failure of the underlying engine
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
