package sufficiency

import (
	"context"
	"testing"

	"github.com/davidahmann/graphkernel/core/evidence"
	"github.com/davidahmann/graphkernel/core/policy"
	"github.com/davidahmann/graphkernel/core/slicer"
	"github.com/davidahmann/graphkernel/core/store/memory"
	"github.com/davidahmann/graphkernel/core/token"
	"github.com/davidahmann/graphkernel/core/turn"
)

func bundleWithTurns(t *testing.T, turns []turn.Snapshot) evidence.Bundle {
	t.Helper()
	secret := []byte("top-secret")
	store := memory.New()
	for i, ts := range turns {
		store.PutTurn(ts)
		if i > 0 {
			store.AddEdge(turn.Edge{Parent: turns[i-1].ID, Child: ts.ID, Type: turn.EdgeReply})
		}
	}
	signer := token.NewHMACSigner(secret)
	export, _, err := slicer.Slice(context.Background(), store, turns[0].ID, policy.Default(), policy.Ref{PolicyID: policy.Version, ParamsHash: "abcdef0123456789"}, signer)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	bundle, err := evidence.FromVerified(context.Background(), token.NewLocalSecretVerifier(secret), export)
	if err != nil {
		t.Fatalf("from verified: %v", err)
	}
	return bundle
}

func TestComputeTracksRoleAndPhaseDiversity(t *testing.T) {
	turns := []turn.Snapshot{
		{ID: turn.NewID(), Role: turn.RoleUser, Phase: turn.PhaseExploration, Salience: 0.8, SessionID: "s1"},
		{ID: turn.NewID(), Role: turn.RoleAssistant, Phase: turn.PhaseSynthesis, Salience: 0.9, SessionID: "s1"},
	}
	bundle := bundleWithTurns(t, turns)
	metrics := Compute(bundle)

	if metrics.TurnCount != 2 {
		t.Fatalf("expected 2 turns, got %d", metrics.TurnCount)
	}
	if metrics.UniqueRoles != 2 {
		t.Fatalf("expected 2 unique roles, got %d", metrics.UniqueRoles)
	}
	if !metrics.HasExchange {
		t.Fatalf("expected HasExchange true for a user+assistant pair")
	}
	if metrics.Salience.HighCount != 2 {
		t.Fatalf("expected both turns above the high-salience threshold, got %d", metrics.Salience.HighCount)
	}
}

func TestCheckReturnsEveryViolation(t *testing.T) {
	m := DiversityMetrics{
		TurnCount:   1,
		UniqueRoles: 1,
		UniquePhases: 1,
		Salience:    SalienceStats{Mean: 0.1, HighCount: 0},
		HasExchange: false,
	}
	violations := Default().Check(m)
	want := map[ViolationKind]bool{
		ViolationMinTurns:        true,
		ViolationMinRoles:        true,
		ViolationMinHighSalience: true,
		ViolationRequireExchange: true,
		ViolationMinMeanSalience: true,
	}
	if len(violations) != len(want) {
		t.Fatalf("expected %d violations, got %d: %v", len(want), len(violations), violations)
	}
	for _, v := range violations {
		if !want[v] {
			t.Fatalf("unexpected violation %s", v)
		}
	}
}

func TestFromAdmissibleSucceedsWhenThresholdsClear(t *testing.T) {
	turns := []turn.Snapshot{
		{ID: turn.NewID(), Role: turn.RoleUser, Phase: turn.PhaseExploration, Salience: 0.8, SessionID: "s1"},
		{ID: turn.NewID(), Role: turn.RoleAssistant, Phase: turn.PhaseSynthesis, Salience: 0.9, SessionID: "s1"},
		{ID: turn.NewID(), Role: turn.RoleUser, Phase: turn.PhaseSynthesis, Salience: 0.85, SessionID: "s1"},
	}
	bundle := bundleWithTurns(t, turns)
	sufficient, err := FromAdmissible(bundle, Lenient())
	if err != nil {
		t.Fatalf("from admissible: %v", err)
	}
	if sufficient.Metrics().TurnCount != 3 {
		t.Fatalf("expected metrics to reflect all 3 turns")
	}
}

func TestFromAdmissibleFailsWithInsufficientError(t *testing.T) {
	turns := []turn.Snapshot{
		{ID: turn.NewID(), Role: turn.RoleUser, Phase: turn.PhaseExploration, Salience: 0.1, SessionID: "s1"},
	}
	bundle := bundleWithTurns(t, turns)
	_, err := FromAdmissible(bundle, Strict())
	if err == nil {
		t.Fatalf("expected insufficient evidence error under strict thresholds")
	}
	if _, ok := err.(*InsufficientError); !ok {
		t.Fatalf("expected *InsufficientError, got %T", err)
	}
}
