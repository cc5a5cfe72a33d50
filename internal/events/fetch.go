package events

import "time"

// FetchKind tells which path issued a repository fetch.
type FetchKind string

const (
	// FetchRoot is the fetch of a root query field.
	FetchRoot FetchKind = "root"
	// FetchBatch is a preloader batch for one edge (or one shared ToOne target)
	// at one depth level.
	FetchBatch FetchKind = "batch"
	// FetchFallback is a direct fetch by an edge resolver that found no
	// preloaded value.
	FetchFallback FetchKind = "fallback"
)

// FetchStart is emitted before a repository fetch.
type FetchStart struct {
	ID    uint64
	Kind  FetchKind
	Type  string
	Edges []string
	Keys  int
}

// FetchFinish is emitted after a repository fetch completes.
type FetchFinish struct {
	ID       uint64
	Kind     FetchKind
	Type     string
	Edges    []string
	Keys     int
	Rows     int
	Err      error
	Duration time.Duration
}

// SlotMiss is emitted when an edge resolver falls back because its slot held
// nothing usable.
type SlotMiss struct {
	Type   string
	Edge   string
	Reason string
}
