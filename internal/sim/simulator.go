// Package sim generates simulated model signals and replays recorded batches
// against alternative engine thresholds.
package sim

import (
	"fmt"

	"github.com/ppiankov/aille/internal/fusion"
	"github.com/ppiankov/aille/internal/ingest"
	"github.com/ppiankov/aille/internal/model"
)

// Simulate replays batches in order through two fresh engines, one per
// config, and reports every batch whose decision changed. Each engine keeps
// its own fallback history, as it would in production.
func Simulate(batches []ingest.Batch, baseline, candidate fusion.Config) (*SimResult, error) {
	oldEngine, err := fusion.NewEngine(baseline)
	if err != nil {
		return nil, fmt.Errorf("baseline config: %w", err)
	}
	newEngine, err := fusion.NewEngine(candidate)
	if err != nil {
		return nil, fmt.Errorf("candidate config: %w", err)
	}

	result := &SimResult{Baseline: baseline, Candidate: candidate, Changes: []DiffEntry{}}

	for i, b := range batches {
		result.TotalBatches++

		oldD := oldEngine.MakeDecision(b.Signals)
		newD := newEngine.MakeDecision(b.Signals)

		if oldD.Status == model.StatusValid {
			result.BaselineValid++
		}
		if newD.Status == model.StatusValid {
			result.CandidateValid++
		}

		if oldD.Status == newD.Status && oldD.FinalValue == newD.FinalValue {
			continue
		}
		result.ChangedBatches++
		result.Changes = append(result.Changes, DiffEntry{
			Batch:        i + 1,
			Symbol:       b.Symbol,
			OldStatus:    oldD.Status,
			NewStatus:    newD.Status,
			OldValue:     oldD.FinalValue,
			NewValue:     newD.FinalValue,
			OldReasoning: oldD.Reasoning,
			NewReasoning: newD.Reasoning,
		})

		switch {
		case oldD.Status == model.StatusValid && newD.Status != model.StatusValid:
			result.NewlyRejected++
		case oldD.Status != model.StatusValid && newD.Status == model.StatusValid:
			result.NewlyValid++
		}
	}
	return result, nil
}
