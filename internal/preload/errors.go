package preload

import (
	"errors"
	"fmt"
)

// ErrSlotFilled is returned by Slot.Set when the slot was already written.
// It never reaches clients; a second writer is simply ignored.
var ErrSlotFilled = errors.New("preload: slot already filled")

// FetchError is a repository failure while fetching the targets of an edge.
// It is reported on every field of that edge whose preload it aborted.
type FetchError struct {
	Type string
	Edge string
	Err  error
}

func (e *FetchError) Error() string {
	if e.Edge == "" {
		return fmt.Sprintf("fetch %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("fetch %s for %s: %v", e.Type, e.Edge, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
