package slicer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/davidahmann/graphkernel/core/canon"
	"github.com/davidahmann/graphkernel/core/turn"
)

// StatsFallbackMarker is the warning-level log marker emitted whenever
// GraphSnapshotHash falls back to the stats-based form because no
// selected turn carries a content_hash. The fallback is deprecated;
// its presence implies replay is best-effort.
const StatsFallbackMarker = "GRAPH_SNAPSHOT_HASH_STATS_FALLBACK"

// nullContentMarker stands in for an absent content_hash in the
// preferred snapshot hash form, so "absent" and "known-empty" never
// collide.
const nullContentMarker = "\x00absent"

// GraphSnapshotHash computes the opaque fingerprint of the selected
// turn set at issuance. The preferred form hashes, in sorted TurnId
// order, each turn's content_hash (or nullContentMarker if absent)
// followed by its numeric fields in canonical (quantized) form. If no
// turn carries a content_hash, it falls back to a stats-based hash and
// reports fellBack = true so the caller can emit StatsFallbackMarker.
func GraphSnapshotHash(turns []turn.Snapshot) (hash string, fellBack bool, err error) {
	sorted := append([]turn.Snapshot(nil), turns...)
	canon.SortSnapshots(sorted)

	anyContentHash := false
	for _, t := range sorted {
		if t.HasContentHash() {
			anyContentHash = true
			break
		}
	}

	h := sha256.New()
	if anyContentHash {
		for _, t := range sorted {
			marker := nullContentMarker
			if t.HasContentHash() {
				marker = t.ContentHash
			}
			fmt.Fprintf(h, "%s|%d|%d|%d|%d|%d|%d\n",
				marker,
				canon.QuantizeFloat(t.Salience),
				t.Trajectory.Depth,
				t.Trajectory.SiblingOrder,
				canon.QuantizeFloat(t.Trajectory.Homogeneity),
				canon.QuantizeFloat(t.Trajectory.Temporal),
				canon.QuantizeFloat(t.Trajectory.Complexity),
			)
		}
		sum := h.Sum(nil)
		return hex.EncodeToString(sum), false, nil
	}

	// Stats fallback: turn count plus aggregate trajectory stats.
	var sumSalience, sumHomogeneity, sumTemporal, sumComplexity float64
	for _, t := range sorted {
		sumSalience += t.Salience
		sumHomogeneity += t.Trajectory.Homogeneity
		sumTemporal += t.Trajectory.Temporal
		sumComplexity += t.Trajectory.Complexity
	}
	fmt.Fprintf(h, "stats|%d|%d|%d|%d|%d\n",
		len(sorted),
		canon.QuantizeFloat(sumSalience),
		canon.QuantizeFloat(sumHomogeneity),
		canon.QuantizeFloat(sumTemporal),
		canon.QuantizeFloat(sumComplexity),
	)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum), true, nil
}
