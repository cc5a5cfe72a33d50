// Package logging builds the process logger and turns bus events into log
// records.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hanpama/graft/internal/eventbus"
	"github.com/hanpama/graft/internal/events"
	"github.com/hanpama/graft/internal/reqid"
)

// Config holds logger configuration.
type Config struct {
	// Level is one of debug, info, warn or error. Empty means info.
	Level string
	// Format is "text" or "json". Empty means text.
	Format string
}

// ParseLevel parses a level name, case-insensitively.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// New returns a logger writing to w.
func New(w io.Writer, cfg Config) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q", cfg.Format)
}

// Subscribe logs the events published on the global bus with l. Requests,
// operations and fetches are logged at debug level; failed fetches at warn.
// The returned function removes the subscriptions.
func Subscribe(l *slog.Logger) (unsubscribe func()) {
	subs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			forRequest(ctx, l).LogAttrs(ctx, slog.LevelDebug, "http request",
				slog.String("method", e.Request.Method),
				slog.String("path", e.Request.URL.Path),
				slog.Int("status", e.Status),
				slog.Duration("duration", e.Duration))
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
			level := slog.LevelDebug
			if len(e.Errors) > 0 {
				level = slog.LevelInfo
			}
			forRequest(ctx, l).LogAttrs(ctx, level, "graphql operation",
				slog.String("operation", e.OperationName),
				slog.String("type", e.OperationType),
				slog.Int("errors", len(e.Errors)),
				slog.Duration("duration", e.Duration))
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.FetchFinish) {
			attrs := []slog.Attr{
				slog.String("kind", string(e.Kind)),
				slog.String("type", e.Type),
				slog.Any("edges", e.Edges),
				slog.Int("keys", e.Keys),
				slog.Int("rows", e.Rows),
				slog.Duration("duration", e.Duration),
			}
			if e.Err != nil {
				forRequest(ctx, l).LogAttrs(ctx, slog.LevelWarn, "fetch failed", append(attrs, slog.Any("err", e.Err))...)
				return
			}
			forRequest(ctx, l).LogAttrs(ctx, slog.LevelDebug, "fetch", attrs...)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.SlotMiss) {
			forRequest(ctx, l).LogAttrs(ctx, slog.LevelDebug, "slot miss",
				slog.String("type", e.Type),
				slog.String("edge", e.Edge),
				slog.String("reason", e.Reason))
		}),
	}
	return func() {
		for _, unsubscribe := range subs {
			unsubscribe()
		}
	}
}

// forRequest returns l annotated with the request id carried by ctx.
func forRequest(ctx context.Context, l *slog.Logger) *slog.Logger {
	if rid, ok := reqid.FromContext(ctx); ok {
		return l.With("request_id", rid)
	}
	return l
}
