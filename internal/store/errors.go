package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by every *NotFoundError.
var ErrNotFound = errors.New("entity not found")

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Type string
	Key  any
}

func NewNotFoundError(typ string, key any) *NotFoundError {
	return &NotFoundError{Type: typ, Key: key}
}

func (e *NotFoundError) Error() string {
	if e.Key != nil {
		return fmt.Sprintf("%s not found (id=%v)", e.Type, e.Key)
	}
	return e.Type + " not found"
}

// Is allows errors.Is(err, ErrNotFound).
func (e *NotFoundError) Is(err error) bool { return err == ErrNotFound }

// IsNotFound reports whether err is or wraps a *NotFoundError.
func IsNotFound(err error) bool {
	return err != nil && errors.Is(err, ErrNotFound)
}
