package fusion

import (
	"math"

	"github.com/ppiankov/aille/internal/model"
)

// GracePenalty scales the confidence of signals admitted between the grace
// and minimum thresholds.
const GracePenalty = 0.8

// Filter is the safety layer. Signals at or above the minimum confidence pass
// unchanged, signals at or above the grace threshold pass with their
// confidence scaled by GracePenalty, everything else is dropped. Output order
// matches input order. An empty result is a rejection, not an error.
//
// Malformed signals (non-finite value or confidence, confidence above 1) are
// dropped like low-confidence ones.
func Filter(signals []model.ModelSignal, cfg Config) []model.ModelSignal {
	valid := make([]model.ModelSignal, 0, len(signals))
	for _, sig := range signals {
		if !wellFormed(sig) {
			continue
		}
		switch {
		case sig.Confidence >= cfg.MinConfidenceThreshold:
			valid = append(valid, sig)
		case sig.Confidence >= cfg.GraceConfidenceThreshold:
			sig.Confidence = math.Max(0, sig.Confidence*GracePenalty)
			valid = append(valid, sig)
		}
	}
	return valid
}

func wellFormed(sig model.ModelSignal) bool {
	if math.IsNaN(sig.Value) || math.IsInf(sig.Value, 0) {
		return false
	}
	if math.IsNaN(sig.Confidence) || math.IsInf(sig.Confidence, 0) {
		return false
	}
	return sig.Confidence <= 1
}
