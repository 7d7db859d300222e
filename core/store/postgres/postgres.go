// Package postgres implements graphstore.GraphStore against the
// read-only turns/edges schema described in spec §6, using pgxpool for
// connection pooling.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/davidahmann/graphkernel/core/graphstore"
	"github.com/davidahmann/graphkernel/core/turn"
)

// Store is a pgx-backed, read-only GraphStore. The kernel never writes
// through it; the backing turns/edges tables are maintained externally
// (see spec §6's backing store schema).
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and verifies connectivity with a ping.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store/postgres: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

var _ graphstore.GraphStore = (*Store)(nil)

const turnColumns = `id, session_id, role, phase, salience, trajectory_depth,
	trajectory_sibling_order, trajectory_homogeneity, trajectory_temporal,
	trajectory_complexity, created_at, content_hash, token_count`

func scanTurn(row pgx.Row) (turn.Snapshot, error) {
	var (
		snap        turn.Snapshot
		id          [16]byte
		contentHash *string
		tokenCount  *int
	)
	if err := row.Scan(
		&id, &snap.SessionID, &snap.Role, &snap.Phase, &snap.Salience,
		&snap.Trajectory.Depth, &snap.Trajectory.SiblingOrder,
		&snap.Trajectory.Homogeneity, &snap.Trajectory.Temporal,
		&snap.Trajectory.Complexity, &snap.CreatedAt, &contentHash, &tokenCount,
	); err != nil {
		return turn.Snapshot{}, err
	}
	snap.ID = turn.ID(id)
	if contentHash != nil {
		snap.ContentHash = *contentHash
	}
	if tokenCount != nil {
		snap.TokenCount = *tokenCount
	}
	return snap, nil
}

func (s *Store) GetTurn(ctx context.Context, id turn.ID) (turn.Snapshot, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+turnColumns+` FROM turns WHERE id = $1`, uuidBytes(id))
	snap, err := scanTurn(row)
	if err == pgx.ErrNoRows {
		return turn.Snapshot{}, false, nil
	}
	if err != nil {
		return turn.Snapshot{}, false, graphstore.Wrap("get_turn", err)
	}
	return snap, true, nil
}

func (s *Store) GetParents(ctx context.Context, id turn.ID) ([]turn.ID, error) {
	rows, err := s.pool.Query(ctx, `SELECT parent_id FROM edges WHERE child_id = $1 ORDER BY parent_id`, uuidBytes(id))
	if err != nil {
		return nil, graphstore.Wrap("get_parents", err)
	}
	return scanIDs(rows, "get_parents")
}

func (s *Store) GetChildren(ctx context.Context, id turn.ID) ([]turn.ID, error) {
	rows, err := s.pool.Query(ctx, `SELECT child_id FROM edges WHERE parent_id = $1 ORDER BY child_id`, uuidBytes(id))
	if err != nil {
		return nil, graphstore.Wrap("get_children", err)
	}
	return scanIDs(rows, "get_children")
}

func (s *Store) GetSiblings(ctx context.Context, id turn.ID, limit int) ([]turn.ID, error) {
	const q = `
		SELECT t.id
		FROM turns t
		JOIN edges e_down ON e_down.child_id = t.id
		WHERE e_down.parent_id IN (SELECT parent_id FROM edges WHERE child_id = $1)
		  AND t.id <> $1
		ORDER BY t.salience DESC, t.id ASC
		LIMIT $2`
	rows, err := s.pool.Query(ctx, q, uuidBytes(id), limit)
	if err != nil {
		return nil, graphstore.Wrap("get_siblings", err)
	}
	return scanIDs(rows, "get_siblings")
}

func (s *Store) GetEdges(ctx context.Context, turnIDs []turn.ID) ([]turn.Edge, error) {
	ids := make([][16]byte, len(turnIDs))
	for i, id := range turnIDs {
		ids[i] = uuidBytes(id)
	}
	const q = `
		SELECT parent_id, child_id, edge_type
		FROM edges
		WHERE parent_id = ANY($1) AND child_id = ANY($1)
		ORDER BY parent_id, child_id, edge_type`
	rows, err := s.pool.Query(ctx, q, ids)
	if err != nil {
		return nil, graphstore.Wrap("get_edges", err)
	}
	defer rows.Close()

	var edges []turn.Edge
	for rows.Next() {
		var parent, child [16]byte
		var edgeType string
		if err := rows.Scan(&parent, &child, &edgeType); err != nil {
			return nil, graphstore.Wrap("get_edges", err)
		}
		edges = append(edges, turn.Edge{
			Parent: turn.ID(parent),
			Child:  turn.ID(child),
			Type:   turn.EdgeType(edgeType),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, graphstore.Wrap("get_edges", err)
	}
	return edges, nil
}

func (s *Store) GetTurns(ctx context.Context, ids []turn.ID) ([]turn.Snapshot, error) {
	idArr := make([][16]byte, len(ids))
	byID := make(map[turn.ID]int, len(ids))
	for i, id := range ids {
		idArr[i] = uuidBytes(id)
		byID[id] = i
	}
	rows, err := s.pool.Query(ctx, `SELECT `+turnColumns+` FROM turns WHERE id = ANY($1)`, idArr)
	if err != nil {
		return nil, graphstore.Wrap("get_turns", err)
	}
	defer rows.Close()

	found := make(map[turn.ID]turn.Snapshot, len(ids))
	for rows.Next() {
		snap, err := scanTurn(rows)
		if err != nil {
			return nil, graphstore.Wrap("get_turns", err)
		}
		found[snap.ID] = snap
	}
	if err := rows.Err(); err != nil {
		return nil, graphstore.Wrap("get_turns", err)
	}

	out := make([]turn.Snapshot, 0, len(ids))
	for _, id := range ids {
		if snap, ok := found[id]; ok {
			out = append(out, snap)
		}
	}
	return out, nil
}

func scanIDs(rows pgx.Rows, op string) ([]turn.ID, error) {
	defer rows.Close()
	var ids []turn.ID
	for rows.Next() {
		var raw [16]byte
		if err := rows.Scan(&raw); err != nil {
			return nil, graphstore.Wrap(op, err)
		}
		ids = append(ids, turn.ID(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, graphstore.Wrap(op, err)
	}
	return ids, nil
}

func uuidBytes(id turn.ID) [16]byte {
	return [16]byte(id)
}
