package alert

import (
	"time"

	"github.com/ppiankov/aille/internal/audit"
)

// RecordEvent builds the event for a ledger record. Its Type is the
// decision status.
func RecordEvent(r audit.Record) Event {
	return Event{
		Timestamp:  r.Timestamp.UTC().Format(time.RFC3339Nano),
		Type:       string(r.Status),
		DecisionID: r.DecisionID,
		FinalValue: r.FinalValue,
		Confidence: r.Confidence,
		Symbol:     r.Symbol,
		StrategyID: r.StrategyID,
		UserID:     r.UserID,
		Reason:     r.Reasoning,
		Hash:       r.Hash,
	}
}
