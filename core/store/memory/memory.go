// Package memory provides a small, fully in-memory GraphStore for tests
// and fixture-driven scenarios. All lookups are backed by ordered
// slices rebuilt from a map only at read time, so iteration order never
// leaks into output (see core/canon for why that matters).
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/davidahmann/graphkernel/core/graphstore"
	"github.com/davidahmann/graphkernel/core/turn"
)

// Store is a read/write in-memory graph used by tests and the CLI's
// fixture-driven commands. Writes are not part of the GraphStore
// contract (the kernel only ever reads); Store exposes them separately
// so fixtures can be built up before a slice request.
type Store struct {
	mu       sync.RWMutex
	turns    map[turn.ID]turn.Snapshot
	children map[turn.ID][]turn.ID // turn -> ids it points to as parent
	parents  map[turn.ID][]turn.ID // turn -> ids that point to it as child
	edges    []turn.Edge
}

// New returns an empty store.
func New() *Store {
	return &Store{
		turns:    make(map[turn.ID]turn.Snapshot),
		children: make(map[turn.ID][]turn.ID),
		parents:  make(map[turn.ID][]turn.ID),
	}
}

// PutTurn inserts or replaces a turn snapshot.
func (s *Store) PutTurn(snap turn.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[snap.ID] = snap
}

// AddEdge inserts a directed edge. Both endpoints must already exist via
// PutTurn; AddEdge does not validate that (fixtures are expected to be
// well formed).
func (s *Store) AddEdge(e turn.Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges = append(s.edges, e)
	s.children[e.Parent] = append(s.children[e.Parent], e.Child)
	s.parents[e.Child] = append(s.parents[e.Child], e.Parent)
}

var _ graphstore.GraphStore = (*Store)(nil)

func (s *Store) GetTurn(_ context.Context, id turn.ID) (turn.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.turns[id]
	return snap, ok, nil
}

func (s *Store) GetParents(_ context.Context, id turn.ID) ([]turn.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedIDs(s.parents[id]), nil
}

func (s *Store) GetChildren(_ context.Context, id turn.ID) ([]turn.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedIDs(s.children[id]), nil
}

func (s *Store) GetSiblings(_ context.Context, id turn.ID, limit int) ([]turn.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Siblings: ids that share a parent with id, excluding id itself.
	seen := make(map[turn.ID]bool)
	var candidates []turn.ID
	for _, parentID := range s.parents[id] {
		for _, childID := range s.children[parentID] {
			if childID == id || seen[childID] {
				continue
			}
			seen[childID] = true
			candidates = append(candidates, childID)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		si, oki := s.turns[candidates[i]]
		sj, okj := s.turns[candidates[j]]
		salI, salJ := 0.0, 0.0
		if oki {
			salI = si.Salience
		}
		if okj {
			salJ = sj.Salience
		}
		if salI != salJ {
			return salI > salJ
		}
		return candidates[i].Less(candidates[j])
	})

	if limit >= 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (s *Store) GetEdges(_ context.Context, turnIDs []turn.ID) ([]turn.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	in := make(map[turn.ID]bool, len(turnIDs))
	for _, id := range turnIDs {
		in[id] = true
	}
	out := make([]turn.Edge, 0, len(s.edges))
	for _, e := range s.edges {
		if in[e.Parent] && in[e.Child] {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out, nil
}

func (s *Store) GetTurns(_ context.Context, ids []turn.ID) ([]turn.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]turn.Snapshot, 0, len(ids))
	for _, id := range ids {
		if snap, ok := s.turns[id]; ok {
			out = append(out, snap)
		}
	}
	return out, nil
}

func sortedIDs(ids []turn.ID) []turn.ID {
	out := append([]turn.ID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
