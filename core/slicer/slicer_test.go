package slicer

import (
	"context"
	"testing"

	"github.com/davidahmann/graphkernel/core/policy"
	"github.com/davidahmann/graphkernel/core/store/memory"
	"github.com/davidahmann/graphkernel/core/turn"
)

type fakeSigner struct{ called bool }

func (s *fakeSigner) Sign(b []byte) (string, error) {
	s.called = true
	return "deadbeef", nil
}

func buildChain(t *testing.T, n int) (*memory.Store, []turn.ID) {
	t.Helper()
	s := memory.New()
	ids := make([]turn.ID, n)
	for i := 0; i < n; i++ {
		ids[i] = turn.NewID()
	}
	// Order ids ascending so the chain's structure is independent of
	// random UUID ordering, keeping distance assertions simple.
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			if ids[j].Less(ids[i]) {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}
	for i, id := range ids {
		s.PutTurn(turn.Snapshot{ID: id, Phase: turn.PhaseSynthesis, Salience: 0.5, Role: turn.RoleUser})
		if i > 0 {
			s.AddEdge(turn.Edge{Parent: ids[i-1], Child: id, Type: turn.EdgeReply})
		}
	}
	return s, ids
}

func TestSliceAlwaysIncludesAnchor(t *testing.T) {
	store, ids := buildChain(t, 5)
	p := policy.Default()
	ref := policy.Ref{PolicyID: policy.Version, ParamsHash: "abcdef0123456789"}

	export, _, err := Slice(context.Background(), store, ids[0], p, ref, nil)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	found := false
	for _, turnSnap := range export.Turns {
		if turnSnap.ID == ids[0] {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected anchor turn to always be included in the slice")
	}
}

func TestSliceRespectsMaxNodes(t *testing.T) {
	store, ids := buildChain(t, 10)
	p := policy.Default()
	p.MaxNodes = 3
	ref := policy.Ref{PolicyID: policy.Version, ParamsHash: "abcdef0123456789"}

	export, _, err := Slice(context.Background(), store, ids[0], p, ref, nil)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	if len(export.Turns) > 3 {
		t.Fatalf("expected at most 3 turns, got %d", len(export.Turns))
	}
}

func TestSliceRespectsMaxRadius(t *testing.T) {
	store, ids := buildChain(t, 10)
	p := policy.Default()
	p.MaxRadius = 1
	p.IncludeSiblings = false
	p.MaxNodes = 256
	ref := policy.Ref{PolicyID: policy.Version, ParamsHash: "abcdef0123456789"}

	export, _, err := Slice(context.Background(), store, ids[0], p, ref, nil)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	if len(export.Turns) > 2 {
		t.Fatalf("expected at most anchor+1 within radius 1, got %d turns", len(export.Turns))
	}
}

func TestSliceUnknownAnchorReturnsAnchorNotFoundError(t *testing.T) {
	store, _ := buildChain(t, 1)
	p := policy.Default()
	ref := policy.Ref{PolicyID: policy.Version, ParamsHash: "abcdef0123456789"}

	_, _, err := Slice(context.Background(), store, turn.NewID(), p, ref, nil)
	if !IsAnchorNotFound(err) {
		t.Fatalf("expected AnchorNotFoundError, got %v", err)
	}
}

func TestSliceIsDeterministicAcrossRuns(t *testing.T) {
	store, ids := buildChain(t, 8)
	p := policy.Default()
	ref := policy.Ref{PolicyID: policy.Version, ParamsHash: "abcdef0123456789"}

	e1, _, err := Slice(context.Background(), store, ids[0], p, ref, nil)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	e2, _, err := Slice(context.Background(), store, ids[0], p, ref, nil)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	if e1.SliceID != e2.SliceID {
		t.Fatalf("expected identical slice_id across repeated runs: %s != %s", e1.SliceID, e2.SliceID)
	}
}

func TestSliceSignsWhenSignerProvided(t *testing.T) {
	store, ids := buildChain(t, 3)
	p := policy.Default()
	ref := policy.Ref{PolicyID: policy.Version, ParamsHash: "abcdef0123456789"}
	signer := &fakeSigner{}

	export, _, err := Slice(context.Background(), store, ids[0], p, ref, signer)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	if !signer.called {
		t.Fatalf("expected signer to be invoked")
	}
	if export.AdmissibilityToken == "" {
		t.Fatalf("expected admissibility_token to be populated")
	}
}

func TestSliceWithoutSignerLeavesTokenEmpty(t *testing.T) {
	store, ids := buildChain(t, 3)
	p := policy.Default()
	ref := policy.Ref{PolicyID: policy.Version, ParamsHash: "abcdef0123456789"}

	export, _, err := Slice(context.Background(), store, ids[0], p, ref, nil)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	if export.AdmissibilityToken != "" {
		t.Fatalf("expected empty admissibility_token without a signer")
	}
}
