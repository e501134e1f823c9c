package metrics

import (
	"fmt"
	"sort"
	"strings"
)

// FormatSnapshot renders a snapshot for terminals and logs.
func FormatSnapshot(s Snapshot) string {
	var b strings.Builder

	b.WriteString("AILLE Metrics Snapshot\n")
	b.WriteString("======================\n")
	fmt.Fprintf(&b, "Total Decisions:      %d\n", s.TotalDecisions)
	fmt.Fprintf(&b, "Valid Decisions:      %d\n", s.ValidDecisions)
	fmt.Fprintf(&b, "Invalid Inputs:       %d\n", s.InvalidInputs)
	fmt.Fprintf(&b, "Fallback Activations: %d\n", s.FallbackActivations)
	b.WriteString("\nRates:\n")
	fmt.Fprintf(&b, "  Fallback Rate:          %.2f%%\n", s.FallbackRate*100)
	fmt.Fprintf(&b, "  Consensus Failure Rate: %.2f%%\n", s.ConsensusFailureRate*100)
	b.WriteString("\nConfidence Statistics:\n")
	fmt.Fprintf(&b, "  Average: %.4f\n", s.AverageConfidence)
	fmt.Fprintf(&b, "  Min:     %.4f\n", s.MinConfidence)
	fmt.Fprintf(&b, "  Max:     %.4f\n", s.MaxConfidence)
	fmt.Fprintf(&b, "  StdDev:  %.4f\n", s.StdDevConfidence)

	if len(s.ModelsAgreedHistogram) > 0 {
		keys := make([]int, 0, len(s.ModelsAgreedHistogram))
		for k := range s.ModelsAgreedHistogram {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		b.WriteString("\nModels Agreed:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %3d: %d\n", k, s.ModelsAgreedHistogram[k])
		}
	}

	if s.OverflowDetected {
		b.WriteString("\nWARNING: counter overflow detected\n")
	}
	return b.String()
}
