package slicer

import "github.com/davidahmann/graphkernel/core/turn"

const SchemaVersion = "1.0.0"

// SliceExport is the artifact a slice request produces. Field order
// matches the wire's declared canonical key order (schema_version,
// anchor_turn_id, turns, edges, policy_id, policy_params_hash,
// graph_snapshot_hash, slice_id, admissibility_token); Go's struct
// field order drives encoding/json's object key order, so no
// additional marshaling hook is needed to keep the two in sync.
type SliceExport struct {
	SchemaVersion     string          `json:"schema_version"`
	AnchorTurnID      turn.ID         `json:"anchor_turn_id"`
	Turns             []turn.Snapshot `json:"turns"`
	Edges             []turn.Edge     `json:"edges"`
	PolicyID          string          `json:"policy_id"`
	PolicyParamsHash  string          `json:"policy_params_hash"`
	GraphSnapshotHash string          `json:"graph_snapshot_hash"`
	SliceID           string          `json:"slice_id"`
	AdmissibilityToken string         `json:"admissibility_token"`
}

// TurnIDs returns the slice's turn ids in the export's existing (sorted)
// order.
func (e SliceExport) TurnIDs() []turn.ID {
	ids := make([]turn.ID, len(e.Turns))
	for i, t := range e.Turns {
		ids[i] = t.ID
	}
	return ids
}
