// Package provenance implements ReplayProvenance: the bundle of
// metadata needed to judge whether a retrieval could be reproduced —
// embedding model identity, content normalization version, retrieval
// parameters, and the graph/slice fingerprints it ran against.
package provenance

import (
	"fmt"
	"time"

	"github.com/davidahmann/graphkernel/core/canon"
)

// CanonicalContentVersion is the version constant NormalizationVersion's
// Current() references; it tracks core/content's Canonicalize rules.
const CanonicalContentVersion = "canonical_content_v1"

// EmbeddingModelRef identifies the embedding model a retrieval used.
type EmbeddingModelRef struct {
	ModelID       string `json:"model_id"`
	Version       string `json:"version"`
	Dimensions    int    `json:"dimensions"`
	Quantization  string `json:"quantization,omitempty"`
	Deterministic bool   `json:"deterministic"`
}

// String renders model_id@version:dDIM[:qQUANT].
func (r EmbeddingModelRef) String() string {
	s := fmt.Sprintf("%s@%s:d%d", r.ModelID, r.Version, r.Dimensions)
	if r.Quantization != "" {
		s += ":q" + r.Quantization
	}
	return s
}

func (r EmbeddingModelRef) isComplete() bool {
	return r.ModelID != "" && r.Version != "" && r.Dimensions > 0
}

// NormalizationVersion pins the text-normalization rules a retrieval's
// content hashes were computed under.
type NormalizationVersion struct {
	Version  string   `json:"version"`
	ConfigHash string `json:"config_hash"`
	Features []string `json:"features"`
}

// Current returns the NormalizationVersion matching core/content's
// present Canonicalize implementation.
func Current() NormalizationVersion {
	return NormalizationVersion{
		Version:    CanonicalContentVersion,
		ConfigHash: "crlf-cr-to-lf,trim,utf8",
		Features:   []string{"crlf_normalize", "trim_whitespace", "utf8_encode"},
	}
}

func (n NormalizationVersion) isComplete() bool {
	return n.Version != ""
}

// RetrievalParams records the retrieval configuration used alongside
// the slice.
type RetrievalParams struct {
	K                 int     `json:"k"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	Reranking         string  `json:"reranking,omitempty"`
	MaxTokens         int     `json:"max_tokens,omitempty"`
	PolicyID          string  `json:"policy_id"`
	PolicyParamsHash  string  `json:"policy_params_hash,omitempty"`
}

func (p RetrievalParams) isComplete() bool {
	return p.K > 0 && p.PolicyID != ""
}

// ReplayProvenance aggregates everything needed to judge whether a
// retrieval could be replayed.
type ReplayProvenance struct {
	Timestamp             time.Time
	EmbeddingModel        EmbeddingModelRef
	Normalization         NormalizationVersion
	Retrieval             RetrievalParams
	GraphSnapshotHash     string
	SliceFingerprint      string
}

// IsComplete reports whether every required field is populated.
func (p ReplayProvenance) IsComplete() bool {
	return p.EmbeddingModel.isComplete() &&
		p.Normalization.isComplete() &&
		p.Retrieval.isComplete() &&
		p.GraphSnapshotHash != "" &&
		p.SliceFingerprint != ""
}

// canonicalPayload excludes Timestamp so fingerprints are stable across
// replays taken at different times.
func (p ReplayProvenance) canonicalPayload() []any {
	return []any{
		p.EmbeddingModel.ModelID,
		p.EmbeddingModel.Version,
		p.EmbeddingModel.Dimensions,
		p.EmbeddingModel.Quantization,
		p.EmbeddingModel.Deterministic,
		p.Normalization.Version,
		p.Normalization.ConfigHash,
		p.Normalization.Features,
		p.Retrieval.K,
		canon.QuantizeFloat(p.Retrieval.SimilarityThreshold),
		p.Retrieval.Reranking,
		p.Retrieval.MaxTokens,
		p.Retrieval.PolicyID,
		p.Retrieval.PolicyParamsHash,
		p.GraphSnapshotHash,
		p.SliceFingerprint,
	}
}

// Fingerprint returns the 16-hex-char xxHash64 of the canonical
// provenance payload (timestamp excluded).
func (p ReplayProvenance) Fingerprint() (string, error) {
	b, err := canon.Bytes(p.canonicalPayload())
	if err != nil {
		return "", fmt.Errorf("provenance: canonicalize: %w", err)
	}
	return canon.Fingerprint16(b), nil
}

// IsReplayCompatible reports whether p and other fingerprint
// identically, i.e. they agree on everything except timestamp.
func (p ReplayProvenance) IsReplayCompatible(other ReplayProvenance) (bool, error) {
	pf, err := p.Fingerprint()
	if err != nil {
		return false, err
	}
	of, err := other.Fingerprint()
	if err != nil {
		return false, err
	}
	return pf == of, nil
}
