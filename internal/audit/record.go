package audit

import (
	"bytes"
	"strconv"
	"time"

	"github.com/ppiankov/aille/internal/model"
)

// Record is one line of the decision ledger. Field order matches the
// exported column layout.
type Record struct {
	Timestamp          time.Time            `json:"timestamp"`
	DecisionID         uint64               `json:"decision_id"`
	Status             model.DecisionStatus `json:"status"`
	FinalValue         float64              `json:"final_value"`
	Confidence         float64              `json:"confidence"`
	ModelsAgreed       int                  `json:"models_agreed"`
	FallbackUsed       bool                 `json:"fallback_used"`
	Reasoning          string               `json:"reasoning"`
	ContributingModels []int                `json:"contributing_models"`
	Symbol             string               `json:"symbol"`
	StrategyID         string               `json:"strategy_id"`
	UserID             string               `json:"user_id"`
	Hash               string               `json:"hash"`
	PrevHash           string               `json:"prev_hash"`
}

// Metadata is caller context attached to a ledger record.
type Metadata struct {
	Symbol     string `json:"symbol,omitempty"`
	StrategyID string `json:"strategy_id,omitempty"`
	UserID     string `json:"user_id,omitempty"`
}

// canonical returns the bytes the chain hash is computed over: every
// salient field plus prev_hash. Floats use the shortest round-trip form so
// a record reloaded from JSON or SQLite hashes identically.
func (r Record) canonical() []byte {
	var b bytes.Buffer
	field := func(s string) {
		b.WriteString(strconv.Quote(s))
		b.WriteByte('|')
	}
	b.WriteString(strconv.FormatInt(model.UnixNanos(r.Timestamp), 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatUint(r.DecisionID, 10))
	b.WriteByte('|')
	field(string(r.Status))
	b.WriteString(strconv.FormatFloat(r.FinalValue, 'g', -1, 64))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(r.Confidence, 'g', -1, 64))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(r.ModelsAgreed))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(r.FallbackUsed))
	b.WriteByte('|')
	field(r.Reasoning)
	b.WriteByte('[')
	for i, id := range r.ContributingModels {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(id))
	}
	b.WriteString("]|")
	field(r.Symbol)
	field(r.StrategyID)
	field(r.UserID)
	b.WriteString(r.PrevHash)
	return b.Bytes()
}

func (r Record) clone() Record {
	r.ContributingModels = append([]int{}, r.ContributingModels...)
	return r
}

func cloneRecords(in []Record) []Record {
	out := make([]Record, len(in))
	for i, r := range in {
		out[i] = r.clone()
	}
	return out
}
