package resolve

import (
	"errors"
	"fmt"

	"github.com/hanpama/graft/internal/preload"
	"github.com/hanpama/graft/internal/store"
)

// Error codes reported in the "code" extension of GraphQL errors.
const (
	CodeNotFound        = "NOT_FOUND"
	CodeFetchFailed     = "FETCH_FAILED"
	CodeInvalidArgument = "BAD_USER_INPUT"
	CodeInternal        = "INTERNAL"
)

// InvalidArgumentError reports a field argument that cannot be used.
type InvalidArgumentError struct {
	Arg string
	Err error
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %v", e.Arg, e.Err)
}

func (e *InvalidArgumentError) Unwrap() error { return e.Err }

// fieldError attaches an error code to a resolver error.
type fieldError struct {
	err  error
	code string
}

func (e *fieldError) Error() string              { return e.err.Error() }
func (e *fieldError) Unwrap() error              { return e.err }
func (e *fieldError) Extensions() map[string]any { return map[string]any{"code": e.code} }

// classify wraps err with the code clients see.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var (
		ferr *preload.FetchError
		aerr *InvalidArgumentError
	)
	switch {
	case store.IsNotFound(err):
		return &fieldError{err: err, code: CodeNotFound}
	case errors.As(err, &aerr):
		return &fieldError{err: err, code: CodeInvalidArgument}
	case errors.As(err, &ferr):
		return &fieldError{err: err, code: CodeFetchFailed}
	}
	return &fieldError{err: err, code: CodeInternal}
}
