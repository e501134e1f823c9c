package alert

import "time"

// Event types that are not decision statuses.
const (
	EventLedgerDiverged = "ledger_diverged"
	EventUnhealthy      = "unhealthy"
)

// Config defines a webhook alert destination. Zero Attempts and RetryDelay
// fall back to 3 attempts one second apart.
type Config struct {
	URL        string            `yaml:"url"         json:"url"         validate:"required,url"`
	Format     string            `yaml:"format"      json:"format"      validate:"omitempty,oneof=generic slack pagerduty"`
	Events     []string          `yaml:"events"      json:"events"      validate:"min=1"` // decision statuses, "ledger_diverged", "unhealthy"
	Headers    map[string]string `yaml:"headers"     json:"headers"`
	Attempts   int               `yaml:"attempts"    json:"attempts"    validate:"gte=0,lte=10"`
	RetryDelay time.Duration     `yaml:"retry_delay" json:"retry_delay" validate:"gte=0"`
}

func (c Config) attempts() int {
	if c.Attempts <= 0 {
		return defaultAttempts
	}
	return c.Attempts
}

func (c Config) retryDelay() time.Duration {
	if c.RetryDelay <= 0 {
		return defaultRetryDelay
	}
	return c.RetryDelay
}

// Event is the payload sent to webhook endpoints. Type is a decision status
// or one of the Event* constants.
type Event struct {
	Timestamp  string  `json:"timestamp"`
	Type       string  `json:"type"`
	DecisionID uint64  `json:"decision_id,omitempty"`
	FinalValue float64 `json:"final_value"`
	Confidence float64 `json:"confidence"`
	Symbol     string  `json:"symbol,omitempty"`
	StrategyID string  `json:"strategy_id,omitempty"`
	UserID     string  `json:"user_id,omitempty"`
	Reason     string  `json:"reason"`
	Hash       string  `json:"hash,omitempty"`
}
