package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const separator = "────────────────────────────────────────────────────────────"

// FormatReport renders the regulatory text report.
func FormatReport(r Report) string {
	var b strings.Builder

	b.WriteString("AILLE Decision Audit Report\n")
	b.WriteString(separator + "\n")
	fmt.Fprintf(&b, "Period:    %s to %s\n", formatBound(r.From, "beginning"), formatBound(r.To, "now"))
	if r.Total > 0 {
		fmt.Fprintf(&b, "Records:   %s to %s\n", r.FirstTimestamp.UTC().Format(time.RFC3339Nano), r.LastTimestamp.UTC().Format(time.RFC3339Nano))
	}
	b.WriteString(separator + "\n")

	fmt.Fprintf(&b, "Total decisions:        %d\n", r.Total)
	fmt.Fprintf(&b, "Valid decisions:        %d (%.1f%%)\n", r.Valid, r.ValidPct)
	fmt.Fprintf(&b, "Fallback activations:   %d (%.1f%%)\n", r.Fallback, r.FallbackPct)
	fmt.Fprintf(&b, "  Low confidence:       %d (%.1f%%)\n", r.RejectedConfidence, r.RejectedConfidencePct)
	fmt.Fprintf(&b, "  No consensus:         %d (%.1f%%)\n", r.RejectedConsensus, r.RejectedConsensusPct)
	fmt.Fprintf(&b, "  Forced:               %d\n", r.ForcedFallback)
	fmt.Fprintf(&b, "No-model errors:        %d\n", r.NoModels)
	b.WriteString(separator + "\n")

	if r.Integrity.Valid {
		fmt.Fprintf(&b, "Chain integrity:        VERIFIED (%d records)\n", r.Integrity.Records)
	} else {
		fmt.Fprintf(&b, "Chain integrity:        COMPROMISED at record %d: %s\n", r.Integrity.ErrorRecord, r.Integrity.Error)
	}
	b.WriteString(separator + "\n")

	if len(r.Records) > 0 {
		b.WriteString("Detailed log:\n")
		b.WriteString(FormatRecords(r.Records))
	}
	return b.String()
}

// FormatRecords renders one line per record.
func FormatRecords(records []Record) string {
	var b strings.Builder
	for _, r := range records {
		ts := r.Timestamp.UTC().Format("2006-01-02 15:04:05.000")
		fmt.Fprintf(&b, "  #%-6d %s  %-26s %+.6f  conf=%.3f  agreed=%d  %s\n",
			r.DecisionID, ts, r.Status, r.FinalValue, r.Confidence, r.ModelsAgreed,
			truncate(r.Reasoning, 60))
	}
	return b.String()
}

// FormatJSON renders the report as indented JSON.
func FormatJSON(r Report) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("audit: marshal report: %w", err)
	}
	return string(data), nil
}

func formatBound(t time.Time, open string) string {
	if t.IsZero() {
		return open
	}
	return t.UTC().Format(time.RFC3339)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
