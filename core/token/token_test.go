package token

import (
	"context"
	"errors"
	"testing"

	"github.com/davidahmann/graphkernel/core/slicer"
	"github.com/davidahmann/graphkernel/core/turn"
)

func sampleFields(t *testing.T, token string) Fields {
	t.Helper()
	return Fields{
		SliceID:           "0123456789abcdef",
		AnchorTurnID:      turn.NewID().String(),
		SortedTurnIDs:     []string{},
		SortedEdges:       [][3]string{},
		PolicyID:          "slice_policy_v1",
		PolicyParamsHash:  "abcdef0123456789",
		SchemaVersion:     slicer.SchemaVersion,
		GraphSnapshotHash: "deadbeefcafef00d",
		AdmissibilityToken: token,
	}
}

func TestHMACSignerThenLocalVerifierRoundTrips(t *testing.T) {
	secret := []byte("top-secret")
	signer := NewHMACSigner(secret)
	fields := sampleFields(t, "")
	canonicalBytes, err := fields.canonicalBytes()
	if err != nil {
		t.Fatalf("canonical bytes: %v", err)
	}
	signed, err := signer.Sign(canonicalBytes)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	fields.AdmissibilityToken = signed

	verifier := NewLocalSecretVerifier(secret)
	outcome, err := verifier.Verify(context.Background(), fields)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if outcome != Valid {
		t.Fatalf("expected Valid, got %s", outcome)
	}
}

func TestLocalVerifierRejectsWrongSecret(t *testing.T) {
	fields := sampleFields(t, "")
	canonicalBytes, err := fields.canonicalBytes()
	if err != nil {
		t.Fatalf("canonical bytes: %v", err)
	}
	signed, err := NewHMACSigner([]byte("secret-a")).Sign(canonicalBytes)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	fields.AdmissibilityToken = signed

	outcome, err := NewLocalSecretVerifier([]byte("secret-b")).Verify(context.Background(), fields)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if outcome != InvalidToken {
		t.Fatalf("expected InvalidToken, got %s", outcome)
	}
}

func TestLocalVerifierRejectsMalformedFields(t *testing.T) {
	fields := sampleFields(t, "")
	outcome, err := NewLocalSecretVerifier([]byte("secret")).Verify(context.Background(), fields)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if outcome != Malformed {
		t.Fatalf("expected Malformed for empty admissibility_token, got %s", outcome)
	}

	fields.AdmissibilityToken = "not-hex!!"
	outcome, err = NewLocalSecretVerifier([]byte("secret")).Verify(context.Background(), fields)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if outcome != Malformed {
		t.Fatalf("expected Malformed for non-hex token, got %s", outcome)
	}
}

func TestCachedVerifierCachesOutcome(t *testing.T) {
	secret := []byte("top-secret")
	fields := sampleFields(t, "")
	canonicalBytes, err := fields.canonicalBytes()
	if err != nil {
		t.Fatalf("canonical bytes: %v", err)
	}
	signed, err := NewHMACSigner(secret).Sign(canonicalBytes)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	fields.AdmissibilityToken = signed

	cv, err := NewCachedVerifier(secret, 16)
	if err != nil {
		t.Fatalf("new cached verifier: %v", err)
	}
	first, err := cv.Verify(context.Background(), fields)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	second, err := cv.Verify(context.Background(), fields)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if first != Valid || second != Valid {
		t.Fatalf("expected both verifications to report Valid, got %s then %s", first, second)
	}
}

func TestRemoteVerifierDelegatesToCall(t *testing.T) {
	fields := sampleFields(t, "sometoken")
	ok := NewRemoteVerifier(func(ctx context.Context, f Fields) (bool, error) {
		return true, nil
	})
	outcome, err := ok.Verify(context.Background(), fields)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if outcome != Valid {
		t.Fatalf("expected Valid, got %s", outcome)
	}

	failing := NewRemoteVerifier(func(ctx context.Context, f Fields) (bool, error) {
		return false, errors.New("unreachable")
	})
	outcome, err = failing.Verify(context.Background(), fields)
	if err == nil {
		t.Fatalf("expected error to propagate from remote call")
	}
	if outcome != BackendError {
		t.Fatalf("expected BackendError, got %s", outcome)
	}
}

func TestRemoteVerifierRejectsEmptyToken(t *testing.T) {
	fields := sampleFields(t, "")
	v := NewRemoteVerifier(func(ctx context.Context, f Fields) (bool, error) {
		t.Fatalf("call should not be reached for an empty token")
		return false, nil
	})
	outcome, err := v.Verify(context.Background(), fields)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if outcome != Malformed {
		t.Fatalf("expected Malformed, got %s", outcome)
	}
}
