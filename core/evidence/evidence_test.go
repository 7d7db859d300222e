package evidence

import (
	"context"
	"errors"
	"testing"

	"github.com/davidahmann/graphkernel/core/policy"
	"github.com/davidahmann/graphkernel/core/slicer"
	"github.com/davidahmann/graphkernel/core/store/memory"
	"github.com/davidahmann/graphkernel/core/token"
	"github.com/davidahmann/graphkernel/core/turn"
)

func signedExport(t *testing.T, secret []byte) slicer.SliceExport {
	t.Helper()
	store := memory.New()
	anchor := turn.NewID()
	store.PutTurn(turn.Snapshot{ID: anchor, Role: turn.RoleUser, Phase: turn.PhaseSynthesis, Salience: 0.8})

	signer := token.NewHMACSigner(secret)
	export, _, err := slicer.Slice(context.Background(), store, anchor, policy.Default(), policy.Ref{PolicyID: policy.Version, ParamsHash: "abcdef0123456789"}, signer)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	return export
}

func TestFromVerifiedSealsOnValidToken(t *testing.T) {
	secret := []byte("top-secret")
	export := signedExport(t, secret)
	verifier := token.NewLocalSecretVerifier(secret)

	bundle, err := FromVerified(context.Background(), verifier, export)
	if err != nil {
		t.Fatalf("from verified: %v", err)
	}
	if bundle.SliceID() != export.SliceID {
		t.Fatalf("expected sealed bundle to expose the original slice_id")
	}
	if !bundle.IsTurnAdmissible(export.AnchorTurnID) {
		t.Fatalf("expected anchor turn to be admissible")
	}
}

func TestFromVerifiedRejectsWrongSecret(t *testing.T) {
	export := signedExport(t, []byte("secret-a"))
	verifier := token.NewLocalSecretVerifier([]byte("secret-b"))

	_, err := FromVerified(context.Background(), verifier, export)
	if err == nil {
		t.Fatalf("expected verification error for mismatched secret")
	}
	var verr *VerificationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *VerificationError, got %T (%v)", err, err)
	}
	if verr.Outcome != token.InvalidToken {
		t.Fatalf("expected InvalidToken outcome, got %s", verr.Outcome)
	}
}

func TestAdmittedTurnIDsAreSortedAscending(t *testing.T) {
	secret := []byte("top-secret")
	store := memory.New()
	anchor := turn.NewID()
	other := turn.NewID()
	if anchor.Less(other) {
		anchor, other = other, anchor // force anchor to be the larger id
	}
	store.PutTurn(turn.Snapshot{ID: anchor, Role: turn.RoleUser, Phase: turn.PhaseSynthesis, Salience: 0.8})
	store.PutTurn(turn.Snapshot{ID: other, Role: turn.RoleAssistant, Phase: turn.PhaseSynthesis, Salience: 0.6})
	store.AddEdge(turn.Edge{Parent: other, Child: anchor, Type: turn.EdgeReply})

	signer := token.NewHMACSigner(secret)
	export, _, err := slicer.Slice(context.Background(), store, anchor, policy.Default(), policy.Ref{PolicyID: policy.Version, ParamsHash: "abcdef0123456789"}, signer)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}

	bundle, err := FromVerified(context.Background(), token.NewLocalSecretVerifier(secret), export)
	if err != nil {
		t.Fatalf("from verified: %v", err)
	}
	ids := bundle.AdmittedTurnIDs()
	if len(ids) != 2 || ids[1].Less(ids[0]) {
		t.Fatalf("expected admitted turn ids sorted ascending, got %v", ids)
	}
}
