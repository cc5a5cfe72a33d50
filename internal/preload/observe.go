package preload

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hanpama/graft/internal/eventbus"
	"github.com/hanpama/graft/internal/events"
)

var fetchSeq atomic.Uint64

// Fetch describes one repository round trip for events.
type Fetch struct {
	Kind  events.FetchKind
	Type  string
	Edges []string
	Keys  int
}

// Observe runs fn between FetchStart and FetchFinish events. fn returns the
// number of rows it read.
func Observe(ctx context.Context, f Fetch, fn func(context.Context) (int, error)) error {
	id := fetchSeq.Add(1)
	eventbus.Publish(ctx, events.FetchStart{ID: id, Kind: f.Kind, Type: f.Type, Edges: f.Edges, Keys: f.Keys})
	start := time.Now()
	rows, err := fn(ctx)
	eventbus.Publish(ctx, events.FetchFinish{
		ID:       id,
		Kind:     f.Kind,
		Type:     f.Type,
		Edges:    f.Edges,
		Keys:     f.Keys,
		Rows:     rows,
		Err:      err,
		Duration: time.Since(start),
	})
	return err
}
