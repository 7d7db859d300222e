// Package canon implements the kernel's canonical byte encoding: ordered
// tuples, float quantization, and xxHash64 fingerprinting. It builds on
// core/jcs the same way the teacher's pack-building and proof-record
// code does, but operates on JSON arrays (declared field order) rather
// than objects, since the kernel's fingerprint payloads are ordered
// tuples, not maps.
package canon

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/davidahmann/graphkernel/core/jcs"
	"github.com/davidahmann/graphkernel/core/turn"
)

// QuantizeFloat converts a real-valued field entering a fingerprint into
// a signed integer via round(x * 1_000_000), per spec for salience and
// all trajectory_* fields.
func QuantizeFloat(x float64) int64 {
	return int64(math.Round(x * 1_000_000))
}

// Bytes marshals v to JSON and runs it through RFC 8785 canonicalization.
// Callers pass ordered slices (not maps) when declared field order must
// be preserved, since JCS sorts object keys alphabetically.
func Bytes(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canon: marshal: %w", err)
	}
	canonical, err := jcs.CanonicalizeJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("canon: canonicalize: %w", err)
	}
	return canonical, nil
}

// Fingerprint16 returns the lowercase 16-hex-char xxHash64 (seed 0) of
// data. Used for slice_id, policy params_hash, cache keys, and boundary
// hashes. This is an identifier, not a security property.
func Fingerprint16(data []byte) string {
	sum := xxhash.Sum64(data)
	return fmt.Sprintf("%016x", sum)
}

// edgeTuple renders an Edge in the declared (parent, child, edge_type)
// array form used inside fingerprint payloads.
type edgeTuple [3]string

func edgeToTuple(e turn.Edge) edgeTuple {
	return edgeTuple{e.Parent.String(), e.Child.String(), string(e.Type)}
}

// SlicePayload is the ordered tuple fingerprinted to produce slice_id:
// (anchor_turn_id, sorted_turn_ids, sorted_edges, policy_id,
// policy_params_hash, schema_version, graph_snapshot_hash).
type SlicePayload struct {
	AnchorTurnID     turn.ID
	SortedTurnIDs    []turn.ID
	SortedEdges      []turn.Edge
	PolicyID         string
	PolicyParamsHash string
	SchemaVersion    string
	GraphSnapshotHash string
}

// Bytes renders the payload as a canonical JSON array in declared order.
func (p SlicePayload) Bytes() ([]byte, error) {
	ids := make([]string, len(p.SortedTurnIDs))
	for i, id := range p.SortedTurnIDs {
		ids[i] = id.String()
	}
	edges := make([]edgeTuple, len(p.SortedEdges))
	for i, e := range p.SortedEdges {
		edges[i] = edgeToTuple(e)
	}
	tuple := []any{
		p.AnchorTurnID.String(),
		ids,
		edges,
		p.PolicyID,
		p.PolicyParamsHash,
		p.SchemaVersion,
		p.GraphSnapshotHash,
	}
	return Bytes(tuple)
}

// SliceID computes slice_id = lowercase_hex_16(xxhash64(canonical_bytes)).
func (p SlicePayload) SliceID() (string, error) {
	b, err := p.Bytes()
	if err != nil {
		return "", err
	}
	return Fingerprint16(b), nil
}

// SortTurnIDs returns ids sorted ascending, the order required wherever
// turn ids enter a fingerprint payload or a snapshot hash.
func SortTurnIDs(ids []turn.ID) []turn.ID {
	out := append([]turn.ID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// SortEdges returns edges sorted by (parent, child, type).
func SortEdges(edges []turn.Edge) []turn.Edge {
	out := append([]turn.Edge(nil), edges...)
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// SortSnapshots sorts snapshots in place, ascending by id — the sole
// ordering used wherever a turn set enters output bytes.
func SortSnapshots(snaps []turn.Snapshot) {
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID.Less(snaps[j].ID) })
}
