// Package fusion turns a batch of untrusted model signals into one vetted
// Decision. Evaluation order (must not be changed):
//  1. Empty batch: ERROR_NO_MODELS, no fallback consulted
//  2. Safety layer: confidence gate; nothing left means REJECTED_LOW_CONFIDENCE
//  3. Consensus layer: sign vote; failure means REJECTED_NO_CONSENSUS
//  4. Accept: tanh position, recorded in the fallback window
package fusion

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/aille/internal/model"
)

const (
	// LowConfidenceSentinel is the confidence reported when the safety layer
	// rejects every signal, and for forced fallbacks.
	LowConfidenceSentinel = 0.1
	// NoConsensusSentinel is the confidence reported when the sign vote fails.
	NoConsensusSentinel = 0.2
	// PositionScale multiplies the consensus value before tanh.
	PositionScale = 100.0
)

// Engine composes the safety, consensus and fallback layers. A single mutex
// spans each decision so the fallback window is read and written atomically
// with the vote.
type Engine struct {
	mu    sync.Mutex
	cfg   Config
	store *FallbackStore
	log   zerolog.Logger
	now   func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for per-decision events.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l.With().Str("component", "fusion").Logger() }
}

// WithClock overrides the time source used to stamp decisions.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine validates cfg and returns an engine with an empty fallback window.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("fusion: %w", err)
	}
	e := &Engine{
		cfg:   cfg,
		store: NewFallbackStore(cfg.FallbackWindowSize),
		log:   zerolog.Nop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// MakeDecision fuses signals into a Decision. It never blocks on I/O, never
// panics, and always returns exactly one status.
func (e *Engine) MakeDecision(signals []model.ModelSignal) model.Decision {
	ts := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(signals) > e.cfg.MaxModelCount {
		e.log.Warn().
			Int("inputs", len(signals)).
			Int("max_model_count", e.cfg.MaxModelCount).
			Msg("batch exceeds max_model_count, all signals evaluated")
	}
	d := e.decide(signals, ts)
	e.logDecision(d, len(signals))
	return d
}

func (e *Engine) decide(signals []model.ModelSignal, ts time.Time) model.Decision {
	cfg := e.cfg

	if len(signals) == 0 {
		return model.Decision{
			Status:             model.StatusErrorNoModels,
			Timestamp:          ts,
			ContributingModels: []int{},
			Reasoning:          "no model inputs",
		}
	}

	valid := Filter(signals, cfg)
	if len(valid) == 0 {
		return model.Decision{
			FinalValue:         e.store.DirectionalFallback(cfg.FallbackPositionScale),
			Status:             model.StatusRejectedLowConfidence,
			Confidence:         LowConfidenceSentinel,
			FallbackUsed:       true,
			Timestamp:          ts,
			ContributingModels: []int{},
			Reasoning: fmt.Sprintf("all %d models below confidence threshold %.2f, directional fallback",
				len(signals), cfg.GraceConfidenceThreshold),
		}
	}

	res := Evaluate(valid, cfg)
	if !res.OK {
		reason := fmt.Sprintf("no sign consensus: %d of %d models agreed, directional fallback",
			res.ModelsAgreed, len(valid))
		if len(valid) < cfg.MinModelsRequired {
			reason = fmt.Sprintf("no consensus: %d validated models, %d required, directional fallback",
				len(valid), cfg.MinModelsRequired)
		}
		return model.Decision{
			FinalValue:         e.store.DirectionalFallback(cfg.FallbackPositionScale),
			Status:             model.StatusRejectedNoConsensus,
			Confidence:         NoConsensusSentinel,
			ModelsAgreed:       res.ModelsAgreed,
			FallbackUsed:       true,
			Timestamp:          ts,
			ContributingModels: []int{},
			Reasoning:          reason,
		}
	}

	total := 0.0
	contributing := make([]int, 0, len(valid))
	for _, sig := range valid {
		total += sig.Confidence
		contributing = append(contributing, sig.ModelID)
	}

	d := model.Decision{
		FinalValue:         math.Tanh(res.Value * PositionScale),
		Status:             model.StatusValid,
		Confidence:         total / float64(len(valid)),
		ModelsAgreed:       res.ModelsAgreed,
		Timestamp:          ts,
		ContributingModels: contributing,
		Reasoning:          fmt.Sprintf("consensus: %d of %d models agreed", res.ModelsAgreed, len(valid)),
	}
	e.store.Push(d.FinalValue)
	return d
}

// ForceFallback returns a FALLBACK_ACTIVATED decision for callers that decide
// to skip fusion. The fallback window is read, never written.
func (e *Engine) ForceFallback(reason string) model.Decision {
	ts := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if reason == "" {
		reason = "caller request"
	}
	d := model.Decision{
		FinalValue:         e.store.DirectionalFallback(e.cfg.FallbackPositionScale),
		Status:             model.StatusFallbackActivated,
		Confidence:         LowConfidenceSentinel,
		FallbackUsed:       true,
		Timestamp:          ts,
		ContributingModels: []int{},
		Reasoning:          "forced fallback: " + reason,
	}
	e.logDecision(d, 0)
	return d
}

// Reset clears the fallback window.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.Clear()
	e.log.Info().Msg("fallback window cleared")
}

// Config returns the active configuration.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// SetConfig swaps the configuration between decision cycles. The fallback
// window is resized, keeping the newest values.
func (e *Engine) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("fusion: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	e.store.Resize(cfg.FallbackWindowSize)
	e.log.Info().Interface("config", cfg).Msg("engine config swapped")
	return nil
}

// FallbackValues returns the fallback window oldest first.
func (e *Engine) FallbackValues() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Values()
}

func (e *Engine) logDecision(d model.Decision, inputs int) {
	ev := e.log.Debug()
	if d.FallbackUsed {
		ev = e.log.Warn()
	}
	ev.Str("status", d.Status.String()).
		Float64("final_value", d.FinalValue).
		Float64("confidence", d.Confidence).
		Int("models_agreed", d.ModelsAgreed).
		Int("inputs", inputs).
		Msg(d.Reasoning)
}
