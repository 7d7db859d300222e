// Package policy defines SlicePolicy, the immutable configuration that
// parameterizes a slice request, its registry (INV-GK-007: a PolicyRef
// is immutable once registered), and the priority scoring function the
// slicer uses to order candidates.
package policy

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/davidahmann/graphkernel/core/canon"
	"github.com/davidahmann/graphkernel/core/turn"
)

const Version = "slice_policy_v1"

// PhaseWeights carries one weight per conversational phase. Declared
// field order (and wire key order) is alphabetical among the five
// phases: consolidation, debugging, exploration, planning, synthesis.
type PhaseWeights struct {
	Consolidation float64 `json:"consolidation"`
	Debugging     float64 `json:"debugging"`
	Exploration   float64 `json:"exploration"`
	Planning      float64 `json:"planning"`
	Synthesis     float64 `json:"synthesis"`
}

func (w PhaseWeights) forPhase(p turn.Phase) float64 {
	switch p {
	case turn.PhaseSynthesis:
		return w.Synthesis
	case turn.PhasePlanning:
		return w.Planning
	case turn.PhaseConsolidation:
		return w.Consolidation
	case turn.PhaseDebugging:
		return w.Debugging
	case turn.PhaseExploration:
		return w.Exploration
	default:
		return 0
	}
}

// SlicePolicy is immutable configuration for a slice request. Field
// order matches the declared order in spec §4.4 and is the order used
// when computing params_hash.
type SlicePolicy struct {
	Version            string       `json:"version"`
	MaxNodes           int          `json:"max_nodes"`
	MaxRadius          int          `json:"max_radius"`
	SalienceWeight     float64      `json:"salience_weight"`
	DistanceDecay      float64      `json:"distance_decay"`
	IncludeSiblings    bool         `json:"include_siblings"`
	MaxSiblingsPerNode int          `json:"max_siblings_per_node"`
	PhaseWeights       PhaseWeights `json:"phase_weights"`
}

// Default returns the spec's default policy.
func Default() SlicePolicy {
	return SlicePolicy{
		Version:            Version,
		MaxNodes:           256,
		MaxRadius:          10,
		SalienceWeight:     0.3,
		DistanceDecay:      0.9,
		IncludeSiblings:    true,
		MaxSiblingsPerNode: 5,
		PhaseWeights: PhaseWeights{
			Synthesis:     1.0,
			Planning:      0.9,
			Consolidation: 0.6,
			Debugging:     0.5,
			Exploration:   0.3,
		},
	}
}

// Lenient widens radius/node/sibling budgets and slows distance decay,
// admitting more context at the cost of precision. Phase weights are
// the defaults.
func Lenient() SlicePolicy {
	p := Default()
	p.MaxNodes = 512
	p.MaxRadius = 20
	p.MaxSiblingsPerNode = 10
	p.DistanceDecay = 0.95
	return p
}

// Strict tightens radius/node/sibling budgets and speeds distance
// decay, admitting less but more tightly anchored context. Phase
// weights are the defaults.
func Strict() SlicePolicy {
	p := Default()
	p.MaxNodes = 64
	p.MaxRadius = 4
	p.MaxSiblingsPerNode = 2
	p.DistanceDecay = 0.75
	return p
}

// Validate reports a non-nil error if p violates the ranges spec §4.4
// requires (max_nodes >= 1 is load-bearing for the anchor invariant).
func (p SlicePolicy) Validate() error {
	if p.MaxNodes < 1 {
		return fmt.Errorf("policy: max_nodes must be >= 1, got %d", p.MaxNodes)
	}
	if p.MaxRadius < 0 {
		return fmt.Errorf("policy: max_radius must be >= 0, got %d", p.MaxRadius)
	}
	if p.MaxSiblingsPerNode < 0 {
		return fmt.Errorf("policy: max_siblings_per_node must be >= 0, got %d", p.MaxSiblingsPerNode)
	}
	if p.SalienceWeight < 0 || p.SalienceWeight > 1 {
		return fmt.Errorf("policy: salience_weight must be in [0,1], got %v", p.SalienceWeight)
	}
	if p.DistanceDecay < 0 || p.DistanceDecay > 1 {
		return fmt.Errorf("policy: distance_decay must be in [0,1], got %v", p.DistanceDecay)
	}
	return nil
}

// Priority computes priority(t, d) = (phase_weight(t.phase) +
// t.salience * salience_weight) * (distance_decay ^ d), with 0^0 = 1.
func (p SlicePolicy) Priority(t turn.Snapshot, distance int) float64 {
	base := p.PhaseWeights.forPhase(t.Phase) + t.Salience*p.SalienceWeight
	decay := 1.0
	if distance > 0 {
		decay = math.Pow(p.DistanceDecay, float64(distance))
	}
	return base * decay
}

// canonicalPayload renders p as the ordered tuple matching its declared
// field order, for params_hash computation.
func (p SlicePolicy) canonicalPayload() []any {
	return []any{
		p.Version,
		p.MaxNodes,
		p.MaxRadius,
		canon.QuantizeFloat(p.SalienceWeight),
		canon.QuantizeFloat(p.DistanceDecay),
		p.IncludeSiblings,
		p.MaxSiblingsPerNode,
		[]any{
			canon.QuantizeFloat(p.PhaseWeights.Consolidation),
			canon.QuantizeFloat(p.PhaseWeights.Debugging),
			canon.QuantizeFloat(p.PhaseWeights.Exploration),
			canon.QuantizeFloat(p.PhaseWeights.Planning),
			canon.QuantizeFloat(p.PhaseWeights.Synthesis),
		},
	}
}

// ParamsHash computes params_hash = lowercase_hex_16(xxhash64(canonical
// policy payload)).
func (p SlicePolicy) ParamsHash() (string, error) {
	b, err := canon.Bytes(p.canonicalPayload())
	if err != nil {
		return "", fmt.Errorf("policy: canonicalize: %w", err)
	}
	return canon.Fingerprint16(b), nil
}

// Ref is a (policy_id, params_hash) pointer into the registry.
type Ref struct {
	PolicyID   string `json:"policy_id"`
	ParamsHash string `json:"params_hash"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%s", r.PolicyID, r.ParamsHash)
}

// Registry is a process-wide, append-only map from Ref to SlicePolicy.
// Register refuses to rebind an existing Ref to different parameters,
// enforcing INV-GK-007 (every distinct registered policy has a distinct
// params_hash). Reads take no lock once a value is published; writes
// are serialized under mu.
type Registry struct {
	mu       sync.Mutex
	policies sync.Map // Ref -> SlicePolicy
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register computes p's Ref and publishes it. A second Register call
// with the same Ref and identical parameters is a no-op; one with the
// same Ref and different parameters is refused. That case arises when
// float parameters differ by less than canon.QuantizeFloat's
// resolution, so the two policies share a params_hash.
func (r *Registry) Register(policyID string, p SlicePolicy) (Ref, error) {
	if err := p.Validate(); err != nil {
		return Ref{}, err
	}
	paramsHash, err := p.ParamsHash()
	if err != nil {
		return Ref{}, err
	}
	ref := Ref{PolicyID: policyID, ParamsHash: paramsHash}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.policies.Load(ref); ok {
		if existing.(SlicePolicy) != p {
			return Ref{}, fmt.Errorf("policy: refusing to rebind %s to different parameters", ref)
		}
		return ref, nil
	}
	r.policies.Store(ref, p)
	return ref, nil
}

// Resolve returns the policy registered under ref, if any.
func (r *Registry) Resolve(ref Ref) (SlicePolicy, bool) {
	v, ok := r.policies.Load(ref)
	if !ok {
		return SlicePolicy{}, false
	}
	return v.(SlicePolicy), true
}

// Count returns the number of distinct registered policies, used by the
// /health registry_fingerprint/policy_count response.
func (r *Registry) Count() int {
	n := 0
	r.policies.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Fingerprint returns a stable fingerprint over every registered Ref,
// for the /health endpoint's registry_fingerprint field.
func (r *Registry) Fingerprint() (string, error) {
	var refs []Ref
	r.policies.Range(func(k, _ any) bool {
		refs = append(refs, k.(Ref))
		return true
	})
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].PolicyID != refs[j].PolicyID {
			return refs[i].PolicyID < refs[j].PolicyID
		}
		return refs[i].ParamsHash < refs[j].ParamsHash
	})
	tuples := make([][2]string, len(refs))
	for i, ref := range refs {
		tuples[i] = [2]string{ref.PolicyID, ref.ParamsHash}
	}
	b, err := canon.Bytes(tuples)
	if err != nil {
		return "", err
	}
	return canon.Fingerprint16(b), nil
}
