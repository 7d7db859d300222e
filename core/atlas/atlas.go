// Package atlas implements multi-anchor batch slicing and slice
// overlap analysis, supplementing spec.md's POST /api/slice/batch with
// the registry and Jaccard-overlap behavior the original implementation
// carried (original_source/src/atlas/batch_slicer.rs, overlap.rs).
// Influence scoring from the same original module is deliberately not
// implemented: it requires semantic weighting the kernel's Non-goals
// exclude (see SPEC_FULL.md §6).
package atlas

import (
	"context"
	"fmt"
	"sort"

	"github.com/davidahmann/graphkernel/core/canon"
	"github.com/davidahmann/graphkernel/core/graphstore"
	"github.com/davidahmann/graphkernel/core/policy"
	"github.com/davidahmann/graphkernel/core/slicer"
	"github.com/davidahmann/graphkernel/core/turn"
)

// BatchEntry pairs one requested anchor with its outcome: either a
// SliceExport or an error (AnchorNotFound/StoreError), so one bad
// anchor in a batch never aborts the rest.
type BatchEntry struct {
	AnchorTurnID turn.ID
	Export       slicer.SliceExport
	Err          error
}

// BatchResult is the outcome of slicing every anchor in a batch request
// against a single policy and store snapshot.
type BatchResult struct {
	Entries      []BatchEntry
	SuccessCount int
	Errors       []error
}

// BatchSlice slices every id in anchors against store and p, sharing
// the store handle across calls the way the original's batch_slicer
// shares a single GraphStore reference. Per-anchor failures are
// collected rather than aborting the batch.
func BatchSlice(ctx context.Context, store graphstore.GraphStore, anchors []turn.ID, p policy.SlicePolicy, ref policy.Ref, signer slicer.Signer) BatchResult {
	result := BatchResult{Entries: make([]BatchEntry, 0, len(anchors))}
	for _, anchorID := range anchors {
		export, _, err := slicer.Slice(ctx, store, anchorID, p, ref, signer)
		entry := BatchEntry{AnchorTurnID: anchorID, Export: export, Err: err}
		result.Entries = append(result.Entries, entry)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("anchor %s: %w", anchorID, err))
			continue
		}
		result.SuccessCount++
	}
	return result
}

// OverlapEdge records the structural relationship between two slices
// based on shared turns, canonically ordered so (a, b) and (b, a)
// produce the same edge.
type OverlapEdge struct {
	SliceA      string  `json:"slice_a"`
	SliceB      string  `json:"slice_b"`
	SharedTurns int     `json:"shared_turns"`
	Jaccard     float64 `json:"jaccard"`
}

func newOverlapEdge(sliceA, sliceB string, shared int, jaccard float64) OverlapEdge {
	if sliceA > sliceB {
		sliceA, sliceB = sliceB, sliceA
	}
	return OverlapEdge{SliceA: sliceA, SliceB: sliceB, SharedTurns: shared, Jaccard: jaccard}
}

// Overlap computes the Jaccard similarity of a and b's turn-id sets:
// |A ∩ B| / |A ∪ B|. Two empty slices are defined to have zero
// overlap rather than dividing by zero.
func Overlap(a, b slicer.SliceExport) OverlapEdge {
	setA := make(map[turn.ID]bool, len(a.Turns))
	for _, t := range a.Turns {
		setA[t.ID] = true
	}
	setB := make(map[turn.ID]bool, len(b.Turns))
	for _, t := range b.Turns {
		setB[t.ID] = true
	}

	shared := 0
	for id := range setA {
		if setB[id] {
			shared++
		}
	}
	union := len(setA) + len(setB) - shared

	jaccard := 0.0
	if union > 0 {
		jaccard = float64(shared) / float64(union)
	}
	return newOverlapEdge(a.SliceID, b.SliceID, shared, jaccard)
}

// OverlapGraph is the complete set of pairwise overlaps across a batch
// of slices, filtered to those at or above minJaccard.
type OverlapGraph struct {
	Edges      []OverlapEdge `json:"edges"`
	SliceCount int           `json:"slice_count"`
	GraphHash  string        `json:"graph_hash"`
	MinJaccard float64       `json:"min_jaccard"`
}

// BuildOverlapGraph computes pairwise Overlap for every distinct pair
// in exports, keeping only edges at or above minJaccard.
func BuildOverlapGraph(exports []slicer.SliceExport, minJaccard float64) (OverlapGraph, error) {
	var edges []OverlapEdge
	for i := 0; i < len(exports); i++ {
		for j := i + 1; j < len(exports); j++ {
			edge := Overlap(exports[i], exports[j])
			if edge.Jaccard >= minJaccard {
				edges = append(edges, edge)
			}
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].SliceA != edges[j].SliceA {
			return edges[i].SliceA < edges[j].SliceA
		}
		return edges[i].SliceB < edges[j].SliceB
	})

	b, err := canon.Bytes(edges)
	if err != nil {
		return OverlapGraph{}, fmt.Errorf("atlas: canonicalize overlap graph: %w", err)
	}
	return OverlapGraph{
		Edges:      edges,
		SliceCount: len(exports),
		GraphHash:  canon.Fingerprint16(b),
		MinJaccard: minJaccard,
	}, nil
}

// Snapshot is a point-in-time summary of a graph used by batch
// diagnostics (original_source/src/atlas/snapshot.rs). GET /health does
// not include it.
type Snapshot struct {
	TurnCount      int            `json:"turn_count"`
	EdgeCount      int            `json:"edge_count"`
	PhaseHistogram map[string]int `json:"phase_histogram"`
}

// BuildSnapshot summarizes the turns and edges a batch of slices
// touched.
func BuildSnapshot(exports []slicer.SliceExport) Snapshot {
	seenTurns := make(map[turn.ID]turn.Snapshot)
	seenEdges := make(map[turn.Edge]bool)
	histogram := make(map[string]int)

	for _, export := range exports {
		for _, t := range export.Turns {
			if _, ok := seenTurns[t.ID]; !ok {
				seenTurns[t.ID] = t
				histogram[string(t.Phase)]++
			}
		}
		for _, e := range export.Edges {
			seenEdges[e] = true
		}
	}

	return Snapshot{
		TurnCount:      len(seenTurns),
		EdgeCount:      len(seenEdges),
		PhaseHistogram: histogram,
	}
}
