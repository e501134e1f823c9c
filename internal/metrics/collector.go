// Package metrics observes decisions without influencing them. The collector
// keeps its own lock and shares no state with the fusion engine.
package metrics

import (
	"math"
	"sync"
	"time"

	"github.com/ppiankov/aille/internal/model"
)

const (
	// MaxSamples bounds the confidence sample ring.
	MaxSamples = 10000
	// MaxHistogramBucket is the exclusive upper bound of tracked models_agreed values.
	MaxHistogramBucket = 1000
	// DefaultMaxFallbackRate is the IsHealthy threshold used by the service.
	DefaultMaxFallbackRate = 0.10
)

// Snapshot is a point-in-time copy of the collector's counters and statistics.
type Snapshot struct {
	TotalDecisions      uint64 `json:"total_decisions"`
	ValidDecisions      uint64 `json:"valid_decisions"`
	FallbackActivations uint64 `json:"fallback_activations"`
	RejectedConfidence  uint64 `json:"rejected_confidence"`
	RejectedConsensus   uint64 `json:"rejected_consensus"`
	ForcedFallbacks     uint64 `json:"forced_fallbacks"`
	NoModelErrors       uint64 `json:"no_model_errors"`
	InvalidInputs       uint64 `json:"invalid_inputs"`

	AverageConfidence    float64 `json:"average_confidence"`
	FallbackRate         float64 `json:"fallback_rate"`
	ConsensusFailureRate float64 `json:"consensus_failure_rate"`
	MinConfidence        float64 `json:"min_confidence"`
	MaxConfidence        float64 `json:"max_confidence"`
	StdDevConfidence     float64 `json:"stddev_confidence"`

	ModelsAgreedHistogram map[int]uint64 `json:"models_agreed_histogram"`

	LastDecision     time.Time `json:"last_decision,omitzero"`
	OverflowDetected bool      `json:"overflow_detected"`
}

// Collector aggregates decision outcomes.
type Collector struct {
	mu      sync.Mutex
	snap    Snapshot
	samples []float64
	next    int
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	c := &Collector{}
	c.resetLocked()
	return c
}

// Observe records one decision. Malformed decisions only increment
// InvalidInputs.
func (c *Collector) Observe(d model.Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !validDecision(d) {
		c.snap.InvalidInputs++
		return
	}
	if c.snap.TotalDecisions == math.MaxUint64 {
		c.snap.OverflowDetected = true
		return
	}

	c.snap.TotalDecisions++
	c.snap.LastDecision = d.Timestamp
	c.addSample(d.Confidence)

	switch d.Status {
	case model.StatusValid:
		c.snap.ValidDecisions++
	case model.StatusRejectedLowConfidence:
		c.snap.RejectedConfidence++
		c.snap.FallbackActivations++
	case model.StatusRejectedNoConsensus:
		c.snap.RejectedConsensus++
		c.snap.FallbackActivations++
	case model.StatusFallbackActivated:
		c.snap.ForcedFallbacks++
		c.snap.FallbackActivations++
	case model.StatusErrorNoModels:
		c.snap.NoModelErrors++
	}

	if d.ModelsAgreed < MaxHistogramBucket {
		c.snap.ModelsAgreedHistogram[d.ModelsAgreed]++
	}

	c.recompute()
}

// Snapshot returns a copy of the current state.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.snap
	out.ModelsAgreedHistogram = make(map[int]uint64, len(c.snap.ModelsAgreedHistogram))
	for k, v := range c.snap.ModelsAgreedHistogram {
		out.ModelsAgreedHistogram[k] = v
	}
	return out
}

// IsHealthy reports whether the fallback rate is within maxFallbackRate and
// no counter has overflowed.
func (c *Collector) IsHealthy(maxFallbackRate float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.FallbackRate <= maxFallbackRate && !c.snap.OverflowDetected
}

// Reset clears every counter and sample.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

// SampleCount returns the number of retained confidence samples.
func (c *Collector) SampleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

func (c *Collector) resetLocked() {
	c.snap = Snapshot{ModelsAgreedHistogram: make(map[int]uint64)}
	c.samples = make([]float64, 0, 64)
	c.next = 0
}

func (c *Collector) addSample(v float64) {
	if len(c.samples) < MaxSamples {
		c.samples = append(c.samples, v)
		return
	}
	c.samples[c.next] = v
	c.next = (c.next + 1) % MaxSamples
}

func (c *Collector) recompute() {
	total := float64(c.snap.TotalDecisions)
	c.snap.FallbackRate = float64(c.snap.FallbackActivations) / total
	c.snap.ConsensusFailureRate = float64(c.snap.RejectedConsensus) / total

	n := float64(len(c.samples))
	sum, lo, hi := 0.0, c.samples[0], c.samples[0]
	for _, v := range c.samples {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	mean := sum / n

	var sq float64
	for _, v := range c.samples {
		diff := v - mean
		sq += diff * diff
	}

	c.snap.AverageConfidence = mean
	c.snap.MinConfidence = lo
	c.snap.MaxConfidence = hi
	c.snap.StdDevConfidence = math.Sqrt(sq / n)
}

func validDecision(d model.Decision) bool {
	if math.IsNaN(d.Confidence) || math.IsInf(d.Confidence, 0) {
		return false
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return false
	}
	if d.Timestamp.IsZero() {
		return false
	}
	return d.ModelsAgreed >= 0
}
