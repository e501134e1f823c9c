package audit

import (
	"time"

	"github.com/ppiankov/aille/internal/model"
)

// Report summarizes the ledger over a time range. It is derived from the
// trail and never appended to it.
type Report struct {
	From                  time.Time    `json:"from,omitzero"`
	To                    time.Time    `json:"to,omitzero"`
	Total                 int          `json:"total"`
	Valid                 int          `json:"valid"`
	Fallback              int          `json:"fallback"`
	RejectedConfidence    int          `json:"rejected_low_confidence"`
	RejectedConsensus     int          `json:"rejected_no_consensus"`
	ForcedFallback        int          `json:"forced_fallback"`
	NoModels              int          `json:"no_models"`
	ValidPct              float64      `json:"valid_pct"`
	FallbackPct           float64      `json:"fallback_pct"`
	RejectedConfidencePct float64      `json:"rejected_low_confidence_pct"`
	RejectedConsensusPct  float64      `json:"rejected_no_consensus_pct"`
	FirstTimestamp        time.Time    `json:"first_timestamp,omitzero"`
	LastTimestamp         time.Time    `json:"last_timestamp,omitzero"`
	Integrity             VerifyResult `json:"integrity"`
	Records               []Record     `json:"records"`
}

// Report covers records with from <= timestamp <= to. A zero bound is open.
// Integrity always reflects the whole trail, not just the range.
func (l *Ledger) Report(from, to time.Time) Report {
	trail := l.snapshot()

	rep := Report{
		From:      from,
		To:        to,
		Integrity: verifyRecords(trail, l.digest),
		Records:   []Record{},
	}
	for _, r := range trail {
		if !from.IsZero() && r.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && r.Timestamp.After(to) {
			continue
		}
		rep.Records = append(rep.Records, r.clone())
		rep.Total++
		if r.FallbackUsed {
			rep.Fallback++
		}
		switch r.Status {
		case model.StatusValid:
			rep.Valid++
		case model.StatusRejectedLowConfidence:
			rep.RejectedConfidence++
		case model.StatusRejectedNoConsensus:
			rep.RejectedConsensus++
		case model.StatusFallbackActivated:
			rep.ForcedFallback++
		case model.StatusErrorNoModels:
			rep.NoModels++
		}
		if rep.FirstTimestamp.IsZero() || r.Timestamp.Before(rep.FirstTimestamp) {
			rep.FirstTimestamp = r.Timestamp
		}
		if r.Timestamp.After(rep.LastTimestamp) {
			rep.LastTimestamp = r.Timestamp
		}
	}

	if rep.Total > 0 {
		n := float64(rep.Total)
		rep.ValidPct = 100 * float64(rep.Valid) / n
		rep.FallbackPct = 100 * float64(rep.Fallback) / n
		rep.RejectedConfidencePct = 100 * float64(rep.RejectedConfidence) / n
		rep.RejectedConsensusPct = 100 * float64(rep.RejectedConsensus) / n
	}
	return rep
}
