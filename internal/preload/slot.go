package preload

import (
	"sync"

	"github.com/hanpama/graft/internal/graph"
	"github.com/hanpama/graft/internal/relation"
)

// NodeID identifies a node within one Arena.
type NodeID uint64

// Node is a materialized entity owned by one resolution pass. Its preload
// slots live in the arena that created it.
type Node struct {
	ID   NodeID
	Type *relation.EntityType
	Row  graph.Row

	arena *Arena
}

// Key returns the node's primary key.
func (n *Node) Key() graph.Key { return n.Row[n.Type.PrimaryKey] }

// Get returns a column value.
func (n *Node) Get(column string) any { return n.Row[column] }

// Arena returns the arena the node belongs to.
func (n *Node) Arena() *Arena { return n.arena }

// Page is the pagination a ToMany batch was fetched with. A zero Limit means
// unlimited.
type Page struct {
	Limit  int
	Offset int
}

// Value is the content of a filled slot: the preloaded node(s) of one edge for
// one parent, or the failure of the batch that should have produced them.
type Value struct {
	One  *Node
	Many []*Node
	Page Page
	Err  error
}

// SlotState is the state of a Slot. Slots move Empty -> Filled -> Taken and
// never go back.
type SlotState int

const (
	Empty SlotState = iota
	Filled
	Taken
)

func (s SlotState) String() string {
	switch s {
	case Empty:
		return "empty"
	case Filled:
		return "filled"
	case Taken:
		return "taken"
	}
	return "unknown"
}

// Slot is a set-once, take-once cell.
type Slot struct {
	mu    sync.Mutex
	state SlotState
	value Value
}

// Set stores v. It fails with ErrSlotFilled unless the slot is still empty.
func (s *Slot) Set(v Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Empty {
		return ErrSlotFilled
	}
	s.state = Filled
	s.value = v
	return nil
}

// Take removes and returns the value. It returns false when the slot is empty
// or was already taken.
func (s *Slot) Take() (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Filled {
		return Value{}, false
	}
	v := s.value
	s.state = Taken
	s.value = Value{}
	return v, true
}

// State reports the current state.
func (s *Slot) State() SlotState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

type slotKey struct {
	node NodeID
	edge string
}

// Arena owns the nodes and slots of one resolution of one root field. It is
// discarded with the response; nothing in it outlives the request.
type Arena struct {
	mu    sync.Mutex
	next  NodeID
	nodes int
	slots map[slotKey]*Slot
}

func NewArena() *Arena {
	return &Arena{slots: make(map[slotKey]*Slot)}
}

// NewNode materializes row as a node of t.
func (a *Arena) NewNode(t *relation.EntityType, row graph.Row) *Node {
	a.mu.Lock()
	a.next++
	a.nodes++
	id := a.next
	a.mu.Unlock()
	return &Node{ID: id, Type: t, Row: row, arena: a}
}

// NewNodes materializes rows in order.
func (a *Arena) NewNodes(t *relation.EntityType, rows []graph.Row) []*Node {
	out := make([]*Node, len(rows))
	for i, row := range rows {
		out[i] = a.NewNode(t, row)
	}
	return out
}

// Slot returns the slot of n's edge, creating it empty on first use.
func (a *Arena) Slot(n *Node, edge string) *Slot {
	k := slotKey{node: n.ID, edge: edge}
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.slots[k]
	if !ok {
		s = &Slot{}
		a.slots[k] = s
	}
	return s
}

// Len returns the number of nodes created in the arena.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nodes
}
