// Package sufficiency implements the gate that separates "authorized"
// (an AdmissibleEvidenceBundle) from "qualitatively usable" (a
// SufficientEvidenceBundle): diversity metrics over a bundle's turns,
// configurable thresholds, and an exhaustive violation list.
package sufficiency

import (
	"fmt"
	"math"

	"github.com/davidahmann/graphkernel/core/evidence"
	"github.com/davidahmann/graphkernel/core/turn"
)

const highSalienceThreshold = 0.7

// SalienceStats summarizes the salience distribution of a bundle's
// admitted turns.
type SalienceStats struct {
	Min       float64
	Max       float64
	Mean      float64
	StdDev    float64
	HighCount int
}

// DiversityMetrics is computed once per bundle and fed to a
// SufficiencyPolicy's Check.
type DiversityMetrics struct {
	TurnCount        int
	UniqueRoles      int
	RoleDistribution map[turn.Role]int
	UniquePhases     int
	PhaseDistribution map[turn.Phase]int
	UniqueSessions   int
	Salience         SalienceStats
	HasExchange      bool
}

// Compute derives DiversityMetrics from a verified bundle's turns.
func Compute(b evidence.Bundle) DiversityMetrics {
	slice := b.Slice()
	roleDist := make(map[turn.Role]int)
	phaseDist := make(map[turn.Phase]int)
	sessions := make(map[string]bool)

	var sum, min, max float64
	min = math.Inf(1)
	max = math.Inf(-1)
	highCount := 0
	hasUser, hasAssistant := false, false

	for _, t := range slice.Turns {
		roleDist[t.Role]++
		phaseDist[t.Phase]++
		sessions[t.SessionID] = true

		sum += t.Salience
		if t.Salience < min {
			min = t.Salience
		}
		if t.Salience > max {
			max = t.Salience
		}
		if t.Salience >= highSalienceThreshold {
			highCount++
		}
		switch t.Role {
		case turn.RoleUser:
			hasUser = true
		case turn.RoleAssistant:
			hasAssistant = true
		}
	}

	n := len(slice.Turns)
	mean := 0.0
	if n > 0 {
		mean = sum / float64(n)
	} else {
		min, max = 0, 0
	}

	var variance float64
	for _, t := range slice.Turns {
		d := t.Salience - mean
		variance += d * d
	}
	stdDev := 0.0
	if n > 0 {
		stdDev = math.Sqrt(variance / float64(n))
	}

	return DiversityMetrics{
		TurnCount:         n,
		UniqueRoles:       len(roleDist),
		RoleDistribution:  roleDist,
		UniquePhases:      len(phaseDist),
		PhaseDistribution: phaseDist,
		UniqueSessions:    len(sessions),
		Salience: SalienceStats{
			Min: min, Max: max, Mean: mean, StdDev: stdDev, HighCount: highCount,
		},
		HasExchange: hasUser && hasAssistant,
	}
}

// ViolationKind names a single failed sufficiency rule.
type ViolationKind string

const (
	ViolationMinTurns        ViolationKind = "min_turns"
	ViolationMinRoles        ViolationKind = "min_roles"
	ViolationMinPhases       ViolationKind = "min_phases"
	ViolationMinHighSalience ViolationKind = "min_high_salience"
	ViolationRequireExchange ViolationKind = "require_exchange"
	ViolationMinMeanSalience ViolationKind = "min_mean_salience"
)

// Policy holds the thresholds a bundle's metrics must clear.
type Policy struct {
	MinTurns        int
	MinRoles        int
	MinPhases       int
	MinHighSalience int
	RequireExchange bool
	MinMeanSalience float64
}

// Default returns spec's default sufficiency thresholds.
func Default() Policy {
	return Policy{
		MinTurns:        3,
		MinRoles:        2,
		MinPhases:       1,
		MinHighSalience: 1,
		RequireExchange: true,
		MinMeanSalience: 0.3,
	}
}

// Lenient relaxes every threshold except min_phases, which stays at its
// default of 1.
func Lenient() Policy {
	return Policy{
		MinTurns:        1,
		MinRoles:        1,
		MinPhases:       1,
		MinHighSalience: 0,
		RequireExchange: false,
		MinMeanSalience: 0.15,
	}
}

// Strict tightens min_turns, min_phases, min_high_salience and
// min_mean_salience; min_roles and require_exchange keep their defaults.
func Strict() Policy {
	return Policy{
		MinTurns:        6,
		MinRoles:        2,
		MinPhases:       2,
		MinHighSalience: 2,
		RequireExchange: true,
		MinMeanSalience: 0.5,
	}
}

// Check runs every rule against metrics and returns every violation,
// not just the first.
func (p Policy) Check(m DiversityMetrics) []ViolationKind {
	var violations []ViolationKind
	if m.TurnCount < p.MinTurns {
		violations = append(violations, ViolationMinTurns)
	}
	if m.UniqueRoles < p.MinRoles {
		violations = append(violations, ViolationMinRoles)
	}
	if m.UniquePhases < p.MinPhases {
		violations = append(violations, ViolationMinPhases)
	}
	if m.Salience.HighCount < p.MinHighSalience {
		violations = append(violations, ViolationMinHighSalience)
	}
	if p.RequireExchange && !m.HasExchange {
		violations = append(violations, ViolationRequireExchange)
	}
	if m.Salience.Mean < p.MinMeanSalience {
		violations = append(violations, ViolationMinMeanSalience)
	}
	return violations
}

// InsufficientError carries every violated rule.
type InsufficientError struct {
	Violations []ViolationKind
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("sufficiency: insufficient evidence: %v", e.Violations)
}

// SufficientBundle wraps a verified Bundle with the metrics and policy
// that admitted it.
type SufficientBundle struct {
	bundle  evidence.Bundle
	metrics DiversityMetrics
	policy  Policy
}

// FromAdmissible computes metrics for bundle, checks them against
// policy, and returns a SufficientBundle on success or an
// *InsufficientError listing every violation on failure.
func FromAdmissible(bundle evidence.Bundle, policy Policy) (SufficientBundle, error) {
	metrics := Compute(bundle)
	if violations := policy.Check(metrics); len(violations) > 0 {
		return SufficientBundle{}, &InsufficientError{Violations: violations}
	}
	return SufficientBundle{bundle: bundle, metrics: metrics, policy: policy}, nil
}

func (s SufficientBundle) Bundle() evidence.Bundle       { return s.bundle }
func (s SufficientBundle) Metrics() DiversityMetrics     { return s.metrics }
func (s SufficientBundle) Policy() Policy                { return s.policy }
