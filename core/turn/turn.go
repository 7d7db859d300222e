// Package turn defines the identity and snapshot types the kernel slices
// around: turn IDs, roles, phases, and the minimal trajectory-scored
// record a GraphStore returns for each turn.
package turn

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
)

// ID is a 128-bit turn identifier. Ordering is defined solely by its
// byte representation, which matches RFC 4122 textual ordering.
type ID uuid.UUID

// NewID generates a random v4 ID.
func NewID() ID {
	return ID(uuid.New())
}

// ParseID parses the lowercase hyphenated 36-char canonical form.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("parse turn id %q: %w", s, err)
	}
	return ID(u), nil
}

// String returns the lowercase hyphenated canonical form.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// Compare returns -1, 0, or 1 comparing the byte representations of id
// and other. This is the sole ordering the kernel ever uses for IDs.
func (id ID) Compare(other ID) int {
	return bytes.Compare(id[:], other[:])
}

// Less reports whether id sorts strictly before other.
func (id ID) Less(other ID) bool {
	return id.Compare(other) < 0
}

func (id ID) IsZero() bool {
	return id == ID{}
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Role enumerates the closed set of turn speakers.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// Phase enumerates the closed set of conversational phases a turn may
// be in. Phase drives priority weighting in the slicer (see core/policy).
type Phase string

const (
	PhaseExploration    Phase = "exploration"
	PhaseDebugging      Phase = "debugging"
	PhaseConsolidation  Phase = "consolidation"
	PhasePlanning       Phase = "planning"
	PhaseSynthesis      Phase = "synthesis"
)

func (p Phase) Valid() bool {
	switch p {
	case PhaseExploration, PhaseDebugging, PhaseConsolidation, PhasePlanning, PhaseSynthesis:
		return true
	}
	return false
}

// Trajectory holds the coordinate fields used by priority scoring and
// diversity metrics. It is embedded in Snapshot so its five fields
// promote flat onto the turn's wire object, matching
// schemas/v1/graphkernel/slice_export.schema.json and the trajectory
// fields original_source/src/types/turn.rs serializes flat.
type Trajectory struct {
	Depth        int     `json:"trajectory_depth"`
	SiblingOrder int     `json:"trajectory_sibling_order"`
	Homogeneity  float64 `json:"trajectory_homogeneity"`
	Temporal     float64 `json:"trajectory_temporal"`
	Complexity   float64 `json:"trajectory_complexity"`
}

// Snapshot is the minimal read-only record the kernel uses for slicing.
type Snapshot struct {
	ID        ID      `json:"id"`
	SessionID string  `json:"session_id"`
	Role      Role    `json:"role"`
	Phase     Phase   `json:"phase"`
	Salience  float64 `json:"salience"`
	Trajectory
	CreatedAt   int64  `json:"created_at"`
	ContentHash string `json:"content_hash,omitempty"`
	// TokenCount is an optional source for ReplayProvenance's
	// RetrievalParams.max_tokens accounting. Zero means unknown and is
	// omitted from the wire form.
	TokenCount int `json:"token_count,omitempty"`
}

// HasContentHash reports whether ContentHash is present (known, possibly
// known-empty is represented by absence of this field entirely upstream;
// see core/content).
func (s Snapshot) HasContentHash() bool {
	return s.ContentHash != ""
}
