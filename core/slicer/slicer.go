// Package slicer implements the priority-queue BFS context slicer: the
// kernel's core algorithm. Given an anchor turn, a policy, and a
// GraphStore, it expands outward under strict budget and tie-break
// discipline to produce a byte-reproducible SliceExport.
package slicer

import (
	"container/heap"
	"context"
	"errors"
	"fmt"

	"github.com/davidahmann/graphkernel/core/canon"
	"github.com/davidahmann/graphkernel/core/graphstore"
	"github.com/davidahmann/graphkernel/core/policy"
	"github.com/davidahmann/graphkernel/core/turn"
)

// AnchorNotFoundError is returned when the anchor turn does not exist
// in the store.
type AnchorNotFoundError struct {
	AnchorID turn.ID
}

func (e *AnchorNotFoundError) Error() string {
	return fmt.Sprintf("slicer: anchor %s not found", e.AnchorID)
}

// candidate is a turn awaiting selection, ordered by (priority desc,
// distance asc, id asc) — a total order so no two distinct candidates
// ever compare equal.
type candidate struct {
	snap     turn.Snapshot
	distance int
	priority float64
}

// candidateQueue implements container/heap.Interface as a max-heap over
// candidate's total order.
type candidateQueue []candidate

func (q candidateQueue) Len() int { return len(q) }

func (q candidateQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.priority != b.priority {
		return a.priority > b.priority // higher priority first
	}
	if a.distance != b.distance {
		return a.distance < b.distance // lower distance first
	}
	return a.snap.ID.Less(b.snap.ID) // lower id first
}

func (q candidateQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *candidateQueue) Push(x any) { *q = append(*q, x.(candidate)) }

func (q *candidateQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// Signer produces an admissibility token over canonical slice bytes.
// Signing is optional: a nil Signer leaves SliceExport.AdmissibilityToken
// empty and the slice is treated as non-admissible.
type Signer interface {
	Sign(canonicalBytes []byte) (tokenHex string, err error)
}

// Slice runs the priority-queue BFS described in spec §4.5 and returns
// the assembled, fingerprinted (and optionally signed) SliceExport.
// snapshotHashFellBack reports whether GraphSnapshotHash used the
// deprecated stats fallback (no selected turn carried a content_hash);
// callers should emit StatsFallbackMarker when true.
func Slice(ctx context.Context, store graphstore.GraphStore, anchorID turn.ID, p policy.SlicePolicy, ref policy.Ref, signer Signer) (export SliceExport, snapshotHashFellBack bool, err error) {
	anchor, ok, err := store.GetTurn(ctx, anchorID)
	if err != nil {
		return SliceExport{}, false, graphstore.Wrap("get_turn", err)
	}
	if !ok {
		return SliceExport{}, false, &AnchorNotFoundError{AnchorID: anchorID}
	}

	visited := map[turn.ID]bool{anchorID: true}
	var selected []turn.Snapshot

	pq := &candidateQueue{}
	heap.Init(pq)
	heap.Push(pq, candidate{snap: anchor, distance: 0, priority: p.Priority(anchor, 0)})

	for pq.Len() > 0 && len(selected) < p.MaxNodes {
		cur := heap.Pop(pq).(candidate)

		if cur.distance > p.MaxRadius {
			continue // discard: do not select, do not expand
		}
		selected = append(selected, cur.snap)

		if cur.distance+1 > p.MaxRadius {
			continue // skip expansion
		}

		parents, err := store.GetParents(ctx, cur.snap.ID)
		if err != nil {
			return SliceExport{}, false, graphstore.Wrap("get_parents", err)
		}
		children, err := store.GetChildren(ctx, cur.snap.ID)
		if err != nil {
			return SliceExport{}, false, graphstore.Wrap("get_children", err)
		}
		for _, neighbor := range append(parents, children...) {
			if visited[neighbor] {
				continue
			}
			snap, ok, err := store.GetTurn(ctx, neighbor)
			if err != nil {
				return SliceExport{}, false, graphstore.Wrap("get_turn", err)
			}
			if !ok {
				continue
			}
			visited[neighbor] = true
			dist := cur.distance + 1
			heap.Push(pq, candidate{snap: snap, distance: dist, priority: p.Priority(snap, dist)})
		}

		if p.IncludeSiblings {
			siblings, err := store.GetSiblings(ctx, cur.snap.ID, p.MaxSiblingsPerNode)
			if err != nil {
				return SliceExport{}, false, graphstore.Wrap("get_siblings", err)
			}
			for _, sib := range siblings {
				if visited[sib] {
					continue
				}
				snap, ok, err := store.GetTurn(ctx, sib)
				if err != nil {
					return SliceExport{}, false, graphstore.Wrap("get_turn", err)
				}
				if !ok {
					continue
				}
				visited[sib] = true
				// Siblings are lateral: pushed at the discovering turn's
				// own distance, not farther from the anchor.
				heap.Push(pq, candidate{snap: snap, distance: cur.distance, priority: p.Priority(snap, cur.distance)})
			}
		}
	}

	canon.SortSnapshots(selected)
	turnIDs := make([]turn.ID, len(selected))
	for i, s := range selected {
		turnIDs[i] = s.ID
	}

	allEdges, err := store.GetEdges(ctx, turnIDs)
	if err != nil {
		return SliceExport{}, false, graphstore.Wrap("get_edges", err)
	}
	edges := canon.SortEdges(allEdges)

	snapshotHash, fellBack, err := GraphSnapshotHash(selected)
	if err != nil {
		return SliceExport{}, false, fmt.Errorf("slicer: snapshot hash: %w", err)
	}

	payload := canon.SlicePayload{
		AnchorTurnID:      anchorID,
		SortedTurnIDs:     turnIDs,
		SortedEdges:       edges,
		PolicyID:          ref.PolicyID,
		PolicyParamsHash:  ref.ParamsHash,
		SchemaVersion:     SchemaVersion,
		GraphSnapshotHash: snapshotHash,
	}
	canonicalBytes, err := payload.Bytes()
	if err != nil {
		return SliceExport{}, false, fmt.Errorf("slicer: canonical payload: %w", err)
	}
	sliceID := canon.Fingerprint16(canonicalBytes)

	var token string
	if signer != nil {
		token, err = signer.Sign(canonicalBytes)
		if err != nil {
			return SliceExport{}, false, fmt.Errorf("slicer: sign: %w", err)
		}
	}

	return SliceExport{
		SchemaVersion:      SchemaVersion,
		AnchorTurnID:       anchorID,
		Turns:              selected,
		Edges:              edges,
		PolicyID:           ref.PolicyID,
		PolicyParamsHash:   ref.ParamsHash,
		GraphSnapshotHash:  snapshotHash,
		SliceID:            sliceID,
		AdmissibilityToken: token,
	}, fellBack, nil
}

// IsAnchorNotFound reports whether err is an AnchorNotFoundError.
func IsAnchorNotFound(err error) bool {
	var anf *AnchorNotFoundError
	return errors.As(err, &anf)
}
