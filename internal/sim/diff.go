package sim

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/aille/internal/fusion"
	"github.com/ppiankov/aille/internal/model"
)

// DiffEntry is one batch whose decision changed under the candidate config.
type DiffEntry struct {
	Batch        int                  `json:"batch"`
	Symbol       string               `json:"symbol,omitempty"`
	OldStatus    model.DecisionStatus `json:"old_status"`
	NewStatus    model.DecisionStatus `json:"new_status"`
	OldValue     float64              `json:"old_value"`
	NewValue     float64              `json:"new_value"`
	OldReasoning string               `json:"old_reasoning"`
	NewReasoning string               `json:"new_reasoning"`
}

// SimResult holds the complete simulation output.
type SimResult struct {
	Baseline       fusion.Config `json:"baseline"`
	Candidate      fusion.Config `json:"candidate"`
	TotalBatches   int           `json:"total_batches"`
	ChangedBatches int           `json:"changed_batches"`
	BaselineValid  int           `json:"baseline_valid"`
	CandidateValid int           `json:"candidate_valid"`
	NewlyRejected  int           `json:"newly_rejected"`
	NewlyValid     int           `json:"newly_valid"`
	Changes        []DiffEntry   `json:"changes"`
}

// FormatText renders the simulation result as human-readable text.
func FormatText(r *SimResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Replaying %d batches against candidate thresholds...\n", r.TotalBatches)

	if len(r.Changes) == 0 {
		b.WriteString("\nNo changes detected.\n")
		return b.String()
	}

	b.WriteString("\n")
	for _, d := range r.Changes {
		symbol := d.Symbol
		if symbol == "" {
			symbol = "-"
		}
		fmt.Fprintf(&b, "  CHANGED  #%-5d %-8s %s (%+.4f) -> %s (%+.4f)\n",
			d.Batch, symbol, d.OldStatus, d.OldValue, d.NewStatus, d.NewValue)
	}

	fmt.Fprintf(&b, "\n%d of %d batches changed. Valid: %d -> %d.", r.ChangedBatches, r.TotalBatches, r.BaselineValid, r.CandidateValid)
	if r.NewlyRejected > 0 || r.NewlyValid > 0 {
		fmt.Fprintf(&b, " %d newly rejected, %d newly valid.", r.NewlyRejected, r.NewlyValid)
	}
	b.WriteString("\n")

	return b.String()
}

// FormatJSON renders the simulation result as JSON.
func FormatJSON(r *SimResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal sim result: %w", err)
	}
	return string(data), nil
}
