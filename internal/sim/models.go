package sim

import (
	"math/rand/v2"
	"time"

	"github.com/ppiankov/aille/internal/ingest"
	"github.com/ppiankov/aille/internal/model"
)

// BaseNoise is the standard deviation shared by all simulated models before
// their per-model multiplier.
const BaseNoise = 0.02

// Profile describes one simulated model.
type Profile struct {
	Name       string
	ModelID    int
	Bias       float64 // mean signal
	NoiseScale float64 // multiplier on BaseNoise
	Confidence float64
}

// DefaultProfiles are a slow reliable fundamental model, a noisier technical
// model and a volatile sentiment model.
var DefaultProfiles = []Profile{
	{Name: "fundamental", ModelID: 0, Bias: 0.03, NoiseScale: 1.0, Confidence: 0.85},
	{Name: "technical", ModelID: 1, Bias: 0.025, NoiseScale: 1.5, Confidence: 0.70},
	{Name: "sentiment", ModelID: 2, Bias: 0.02, NoiseScale: 2.0, Confidence: 0.65},
}

// Market produces reproducible signal batches from a fixed seed.
type Market struct {
	rng      *rand.Rand
	profiles []Profile
	symbol   string
	now      func() time.Time
}

// NewMarket returns a generator for profiles; nil selects DefaultProfiles.
func NewMarket(seed uint64, symbol string, profiles []Profile) *Market {
	if len(profiles) == 0 {
		profiles = DefaultProfiles
	}
	return &Market{
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		profiles: profiles,
		symbol:   symbol,
		now:      time.Now,
	}
}

// Next returns the next batch, one signal per profile.
func (m *Market) Next() ingest.Batch {
	ts := m.now()
	signals := make([]model.ModelSignal, len(m.profiles))
	for i, p := range m.profiles {
		signals[i] = model.ModelSignal{
			Value:      p.Bias + m.rng.NormFloat64()*BaseNoise*p.NoiseScale,
			Confidence: p.Confidence,
			Timestamp:  ts,
			ModelID:    p.ModelID,
		}
	}
	return ingest.Batch{Signals: signals, Symbol: m.symbol, StrategyID: "simulated"}
}

// Batches returns the next n batches.
func (m *Market) Batches(n int) []ingest.Batch {
	out := make([]ingest.Batch, n)
	for i := range out {
		out[i] = m.Next()
	}
	return out
}
