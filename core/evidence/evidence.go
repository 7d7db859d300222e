// Package evidence implements the sealed AdmissibleEvidenceBundle: the
// only way to obtain one is FromVerified, which first re-verifies the
// slice's HMAC. There is no other exported constructor, so any
// non-zero Bundle was produced by a verification that succeeded. The
// zero value Bundle{} can still be declared outside this package; it
// holds an empty slice and a zero verification time.
package evidence

import (
	"context"
	"fmt"
	"time"

	"github.com/davidahmann/graphkernel/core/slicer"
	"github.com/davidahmann/graphkernel/core/token"
	"github.com/davidahmann/graphkernel/core/turn"
)

// VerificationError reports why FromVerified refused to seal a slice.
type VerificationError struct {
	Outcome token.Outcome
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("evidence: verification failed: %s", e.Outcome)
}

// Bundle wraps a SliceExport that has passed HMAC verification, plus
// the timestamp verification occurred. The slice field is unexported:
// package boundaries, not runtime checks, are what make "holding a
// Bundle" mean "this was verified."
type Bundle struct {
	slice      slicer.SliceExport
	verifiedAt time.Time
	admitted   map[turn.ID]bool
}

// FromVerified recomputes the HMAC over export's canonical payload
// using verifier and compares it to export.AdmissibilityToken. On
// anything but token.Valid it returns a *VerificationError; on success
// it returns a sealed Bundle. This is the only exported constructor.
func FromVerified(ctx context.Context, verifier token.Verifier, export slicer.SliceExport) (Bundle, error) {
	outcome, err := verifier.Verify(ctx, token.FieldsFromExport(export))
	if err != nil {
		return Bundle{}, fmt.Errorf("evidence: verify: %w", err)
	}
	if outcome != token.Valid {
		return Bundle{}, &VerificationError{Outcome: outcome}
	}

	admitted := make(map[turn.ID]bool, len(export.Turns))
	for _, t := range export.Turns {
		admitted[t.ID] = true
	}
	return Bundle{slice: export, verifiedAt: time.Now(), admitted: admitted}, nil
}

// Slice returns the wrapped SliceExport.
func (b Bundle) Slice() slicer.SliceExport { return b.slice }

// AnchorTurnID returns the slice's anchor id.
func (b Bundle) AnchorTurnID() turn.ID { return b.slice.AnchorTurnID }

// SliceID returns the slice's fingerprint.
func (b Bundle) SliceID() string { return b.slice.SliceID }

// GraphSnapshotHash returns the slice's snapshot fingerprint.
func (b Bundle) GraphSnapshotHash() string { return b.slice.GraphSnapshotHash }

// VerifiedAt returns when verification occurred.
func (b Bundle) VerifiedAt() time.Time { return b.verifiedAt }

// AdmittedTurnIDs returns the set of admitted turn ids, sorted. Bundle's
// slice.Turns is already sorted by id (a slicer invariant), so order is
// derived from it rather than from the admitted map's iteration order.
func (b Bundle) AdmittedTurnIDs() []turn.ID {
	ordered := make([]turn.ID, 0, len(b.slice.Turns))
	for _, t := range b.slice.Turns {
		if b.admitted[t.ID] {
			ordered = append(ordered, t.ID)
		}
	}
	return ordered
}

// IsTurnAdmissible reports whether id is among the bundle's admitted
// turns.
func (b Bundle) IsTurnAdmissible(id turn.ID) bool {
	return b.admitted[id]
}
