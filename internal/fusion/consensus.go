package fusion

import (
	"slices"

	"github.com/ppiankov/aille/internal/model"
)

// ConsensusResult is the outcome of a sign-agreement vote.
type ConsensusResult struct {
	OK           bool
	Value        float64
	ModelsAgreed int
}

// Evaluate runs a single-batch majority-sign vote over validated signals.
//
// The reference sign is that of sorted[n/2]; for even n this is the upper
// middle element, not the average of the two. Zero counts as positive.
// The vote passes when the agreeing share reaches SignAgreementThreshold and
// the agreeing count reaches MinModelsRequired; Value is then the mean of the
// agreeing signals only. ModelsAgreed is 0 when too few signals were given,
// otherwise the agreeing count whether or not the vote passed.
func Evaluate(valid []model.ModelSignal, cfg Config) ConsensusResult {
	if len(valid) == 0 || len(valid) < cfg.MinModelsRequired {
		return ConsensusResult{}
	}

	sorted := make([]float64, len(valid))
	for i, sig := range valid {
		sorted[i] = sig.Value
	}
	slices.Sort(sorted)
	want := sign(sorted[len(sorted)/2])

	agreed := 0
	sum := 0.0
	for _, sig := range valid {
		if sign(sig.Value) == want {
			agreed++
			sum += sig.Value
		}
	}

	res := ConsensusResult{ModelsAgreed: agreed}
	ratio := float64(agreed) / float64(len(valid))
	if ratio >= cfg.SignAgreementThreshold && agreed >= cfg.MinModelsRequired {
		res.OK = true
		res.Value = sum / float64(agreed)
	}
	return res
}

// sign maps zero to +1.
func sign(v float64) float64 {
	if v >= 0 {
		return 1
	}
	return -1
}
