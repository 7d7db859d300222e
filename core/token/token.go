// Package token implements the Token Authority: HMAC-SHA256 signing of
// canonical slice bytes, and verification in three modes (local secret,
// LRU-cached local secret, and remote delegation).
package token

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/davidahmann/graphkernel/core/canon"
	"github.com/davidahmann/graphkernel/core/slicer"
)

// Outcome is a verification result.
type Outcome int

const (
	Valid Outcome = iota
	InvalidToken
	Malformed
	BackendError
)

func (o Outcome) String() string {
	switch o {
	case Valid:
		return "valid"
	case InvalidToken:
		return "invalid_token"
	case Malformed:
		return "malformed"
	case BackendError:
		return "backend_error"
	default:
		return "unknown"
	}
}

// HMACSigner signs canonical slice bytes with a fixed secret. It
// satisfies core/slicer.Signer.
type HMACSigner struct {
	secret []byte
}

// NewHMACSigner wraps secret for signing. A nil/empty secret means
// signing is disabled; core/slicer treats a nil Signer the same way, so
// callers typically skip constructing one rather than passing an empty
// secret here.
func NewHMACSigner(secret []byte) *HMACSigner {
	return &HMACSigner{secret: secret}
}

// Sign returns lowercase_hex_64(HMAC_SHA256(secret, canonicalBytes)),
// or an empty token when the secret is empty.
func (s *HMACSigner) Sign(canonicalBytes []byte) (string, error) {
	if len(s.secret) == 0 {
		return "", nil
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(canonicalBytes)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Fields is the subset of a SliceExport needed to recompute its
// canonical bytes and verify its token. It mirrors the POST
// /api/verify_token wire body (spec §6: "SliceExport fields").
type Fields struct {
	SliceID            string      `json:"slice_id"`
	AnchorTurnID       string      `json:"anchor_turn_id"`
	SortedTurnIDs      []string    `json:"turn_ids"`
	SortedEdges        [][3]string `json:"edges"`
	PolicyID           string      `json:"policy_id"`
	PolicyParamsHash   string      `json:"policy_params_hash"`
	SchemaVersion      string      `json:"schema_version"`
	GraphSnapshotHash  string      `json:"graph_snapshot_hash"`
	AdmissibilityToken string      `json:"admissibility_token"`
}

func (f Fields) canonicalBytes() ([]byte, error) {
	tuple := []any{
		f.AnchorTurnID,
		f.SortedTurnIDs,
		f.SortedEdges,
		f.PolicyID,
		f.PolicyParamsHash,
		f.SchemaVersion,
		f.GraphSnapshotHash,
	}
	return canon.Bytes(tuple)
}

// FieldsFromExport derives the Fields a SliceExport's own admissibility
// token was computed over, for verification.
func FieldsFromExport(export slicer.SliceExport) Fields {
	ids := make([]string, len(export.Turns))
	for i, t := range export.Turns {
		ids[i] = t.ID.String()
	}
	edges := make([][3]string, len(export.Edges))
	for i, e := range export.Edges {
		edges[i] = [3]string{e.Parent.String(), e.Child.String(), string(e.Type)}
	}
	return Fields{
		SliceID:            export.SliceID,
		AnchorTurnID:       export.AnchorTurnID.String(),
		SortedTurnIDs:      ids,
		SortedEdges:        edges,
		PolicyID:           export.PolicyID,
		PolicyParamsHash:   export.PolicyParamsHash,
		SchemaVersion:      export.SchemaVersion,
		GraphSnapshotHash:  export.GraphSnapshotHash,
		AdmissibilityToken: export.AdmissibilityToken,
	}
}

// Verifier verifies an admissibility token against reconstructed
// canonical bytes.
type Verifier interface {
	Verify(ctx context.Context, fields Fields) (Outcome, error)
}

// LocalSecretVerifier recomputes the HMAC over canonical bytes and
// compares it to the token in constant time.
type LocalSecretVerifier struct {
	secret []byte
}

func NewLocalSecretVerifier(secret []byte) *LocalSecretVerifier {
	return &LocalSecretVerifier{secret: secret}
}

func (v *LocalSecretVerifier) Verify(_ context.Context, fields Fields) (Outcome, error) {
	if fields.AdmissibilityToken == "" || fields.AnchorTurnID == "" || fields.SchemaVersion == "" {
		return Malformed, nil
	}
	wantBytes, err := hex.DecodeString(fields.AdmissibilityToken)
	if err != nil {
		return Malformed, nil
	}
	canonicalBytes, err := fields.canonicalBytes()
	if err != nil {
		return BackendError, err
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(canonicalBytes)
	got := mac.Sum(nil)
	if subtle.ConstantTimeCompare(got, wantBytes) != 1 {
		return InvalidToken, nil
	}
	return Valid, nil
}

// cacheKey mirrors spec §4.6's Cached mode key: xxhash64 of
// (slice_id, policy_id, params_hash, graph_snapshot_hash,
// schema_version, admissibility_token).
func cacheKey(fields Fields) (uint64, error) {
	tuple := []any{
		fields.SliceID,
		fields.PolicyID,
		fields.PolicyParamsHash,
		fields.GraphSnapshotHash,
		fields.SchemaVersion,
		fields.AdmissibilityToken,
	}
	b, err := canon.Bytes(tuple)
	if err != nil {
		return 0, err
	}
	// Reuse canon's hashing primitive at 64 bits; Fingerprint16 already
	// truncates to 16 hex chars (64 bits), so parse it back for the map
	// key's native integer form.
	hex16 := canon.Fingerprint16(b)
	var key uint64
	_, err = fmt.Sscanf(hex16, "%016x", &key)
	return key, err
}

// CachedVerifier wraps a LocalSecretVerifier with an LRU cache keyed on
// the slice's identity and token, so repeated verification of the same
// slice is sub-millisecond. Only successful and failed outcomes are
// cached (never Malformed/BackendError); invalidation on secret
// rotation is the caller's responsibility, per spec.
type CachedVerifier struct {
	inner *LocalSecretVerifier
	cache *lru.Cache[uint64, bool]
}

var (
	_ Verifier = (*LocalSecretVerifier)(nil)
	_ Verifier = (*CachedVerifier)(nil)
	_ Verifier = (*RemoteVerifier)(nil)
)

// NewCachedVerifier builds a cache of the given capacity over secret.
func NewCachedVerifier(secret []byte, capacity int) (*CachedVerifier, error) {
	cache, err := lru.New[uint64, bool](capacity)
	if err != nil {
		return nil, fmt.Errorf("token: new cache: %w", err)
	}
	return &CachedVerifier{inner: NewLocalSecretVerifier(secret), cache: cache}, nil
}

// Verify looks up fields' cache entry first; on miss it delegates to
// the wrapped LocalSecretVerifier and caches Valid/InvalidToken
// outcomes.
func (v *CachedVerifier) Verify(ctx context.Context, fields Fields) (Outcome, error) {
	key, err := cacheKey(fields)
	if err != nil {
		return BackendError, err
	}
	if ok, hit := v.cache.Get(key); hit {
		if ok {
			return Valid, nil
		}
		return InvalidToken, nil
	}

	outcome, err := v.inner.Verify(ctx, fields)
	if err != nil {
		return outcome, err
	}
	switch outcome {
	case Valid:
		v.cache.Add(key, true)
	case InvalidToken:
		v.cache.Add(key, false)
	}
	return outcome, nil
}

// RemoteVerifier delegates verification to an external endpoint.
type RemoteVerifier struct {
	call func(ctx context.Context, fields Fields) (bool, error)
}

// NewRemoteVerifier wraps a caller-supplied RPC/HTTP call. The kernel
// core never dials a network itself (see SPEC_FULL §1 Non-goals on
// caller authentication — the same boundary applies to remote
// verification transport, which belongs to the service layer); this
// type exists so core/evidence and core/service can treat all three
// verification modes uniformly.
func NewRemoteVerifier(call func(ctx context.Context, fields Fields) (bool, error)) *RemoteVerifier {
	return &RemoteVerifier{call: call}
}

func (v *RemoteVerifier) Verify(ctx context.Context, fields Fields) (Outcome, error) {
	if fields.AdmissibilityToken == "" {
		return Malformed, nil
	}
	ok, err := v.call(ctx, fields)
	if err != nil {
		return BackendError, err
	}
	if !ok {
		return InvalidToken, nil
	}
	return Valid, nil
}
