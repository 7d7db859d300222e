// Package graphstore declares the read-only interface the slicer uses to
// reach turns, edges, and their neighbors. Implementations live under
// core/store/*; the slicer never depends on a concrete one.
package graphstore

import (
	"context"
	"fmt"

	"github.com/davidahmann/graphkernel/core/turn"
)

// StoreError wraps an underlying backend failure so callers can
// distinguish it from AnchorNotFound without inspecting driver types.
type StoreError struct {
	Op    string
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("graphstore %s: %v", e.Op, e.Cause)
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

func Wrap(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &StoreError{Op: op, Cause: cause}
}

// GraphStore is abstract read-only access to a turn/edge DAG. Every
// operation returns results in the declared order; none mutate state.
// Implementations may fail with a *StoreError for backend failures.
type GraphStore interface {
	// GetTurn returns the snapshot for id, or (Snapshot{}, false, nil) if
	// absent.
	GetTurn(ctx context.Context, id turn.ID) (turn.Snapshot, bool, error)

	// GetParents returns parent ids ordered ascending by id.
	GetParents(ctx context.Context, id turn.ID) ([]turn.ID, error)

	// GetChildren returns child ids ordered ascending by id.
	GetChildren(ctx context.Context, id turn.ID) ([]turn.ID, error)

	// GetSiblings returns at most limit sibling ids ordered by
	// (-salience, id): highest salience first, id breaking ties.
	GetSiblings(ctx context.Context, id turn.ID, limit int) ([]turn.ID, error)

	// GetEdges returns edges with both endpoints in turnIDs, ordered by
	// (parent, child, type).
	GetEdges(ctx context.Context, turnIDs []turn.ID) ([]turn.Edge, error)

	// GetTurns returns snapshots for ids, in input order, silently
	// dropping any id that is absent.
	GetTurns(ctx context.Context, ids []turn.ID) ([]turn.Snapshot, error)
}
