package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DecisionStatus is the outcome class of a fusion decision.
type DecisionStatus string

const (
	StatusValid                 DecisionStatus = "VALID"
	StatusRejectedLowConfidence DecisionStatus = "REJECTED_LOW_CONFIDENCE"
	StatusRejectedNoConsensus   DecisionStatus = "REJECTED_NO_CONSENSUS"
	StatusFallbackActivated     DecisionStatus = "FALLBACK_ACTIVATED"
	StatusErrorNoModels         DecisionStatus = "ERROR_NO_MODELS"
)

// AllStatuses lists every status in declaration order.
var AllStatuses = []DecisionStatus{
	StatusValid,
	StatusRejectedLowConfidence,
	StatusRejectedNoConsensus,
	StatusFallbackActivated,
	StatusErrorNoModels,
}

func (s DecisionStatus) String() string { return string(s) }

// IsRejection reports whether the status is one of the two fallback-backed rejections.
func (s DecisionStatus) IsRejection() bool {
	return s == StatusRejectedLowConfidence || s == StatusRejectedNoConsensus
}

// ParseDecisionStatus maps a status name (case-insensitive) to a DecisionStatus.
func ParseDecisionStatus(s string) (DecisionStatus, error) {
	up := DecisionStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllStatuses {
		if up == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown decision status %q", s)
}

// ModelSignal is one model's opinion for a decision cycle.
type ModelSignal struct {
	Value      float64   `json:"value"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"-"`
	ModelID    int       `json:"model_id"`
}

// NewSignal stamps a signal with the current time.
func NewSignal(value, confidence float64, modelID int) ModelSignal {
	return ModelSignal{
		Value:      value,
		Confidence: confidence,
		Timestamp:  time.Now(),
		ModelID:    modelID,
	}
}

type signalJSON struct {
	Value       float64 `json:"value"`
	Confidence  float64 `json:"confidence"`
	TimestampNS int64   `json:"timestamp_ns"`
	ModelID     int     `json:"model_id"`
}

// MarshalJSON encodes the timestamp as Unix nanoseconds.
func (s ModelSignal) MarshalJSON() ([]byte, error) {
	return json.Marshal(signalJSON{
		Value:       s.Value,
		Confidence:  s.Confidence,
		TimestampNS: UnixNanos(s.Timestamp),
		ModelID:     s.ModelID,
	})
}

// UnmarshalJSON decodes timestamp_ns; zero leaves Timestamp unset.
func (s *ModelSignal) UnmarshalJSON(data []byte) error {
	var raw signalJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Value = raw.Value
	s.Confidence = raw.Confidence
	s.ModelID = raw.ModelID
	s.Timestamp = time.Time{}
	if raw.TimestampNS != 0 {
		s.Timestamp = time.Unix(0, raw.TimestampNS)
	}
	return nil
}

// Decision is the engine's sole output. It is created fresh per call and
// never mutated by the engine afterwards.
type Decision struct {
	FinalValue         float64        `json:"final_value"`
	Status             DecisionStatus `json:"status"`
	Confidence         float64        `json:"confidence"`
	ModelsAgreed       int            `json:"models_agreed"`
	FallbackUsed       bool           `json:"fallback_used"`
	Timestamp          time.Time      `json:"timestamp"`
	ContributingModels []int          `json:"contributing_models"`
	Reasoning          string         `json:"reasoning"`
}

// UnixNanos returns t as Unix nanoseconds, or 0 for the zero time.
func UnixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
