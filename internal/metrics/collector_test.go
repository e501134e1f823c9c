package metrics

import (
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ppiankov/aille/internal/model"
)

var now = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func decision(status model.DecisionStatus, conf float64, agreed int) model.Decision {
	return model.Decision{Status: status, Confidence: conf, ModelsAgreed: agreed, Timestamp: now}
}

func TestObserveCountsByStatus(t *testing.T) {
	c := NewCollector()
	c.Observe(decision(model.StatusValid, 0.8, 3))
	c.Observe(decision(model.StatusValid, 0.6, 2))
	c.Observe(decision(model.StatusRejectedLowConfidence, 0.1, 0))
	c.Observe(decision(model.StatusRejectedNoConsensus, 0.2, 1))
	c.Observe(decision(model.StatusFallbackActivated, 0.1, 0))
	c.Observe(decision(model.StatusErrorNoModels, 0, 0))

	s := c.Snapshot()
	if s.TotalDecisions != 6 || s.ValidDecisions != 2 {
		t.Fatalf("expected 6 total / 2 valid, got %d / %d", s.TotalDecisions, s.ValidDecisions)
	}
	if s.FallbackActivations != 3 {
		t.Errorf("expected 3 fallbacks, got %d", s.FallbackActivations)
	}
	if s.FallbackRate != 0.5 {
		t.Errorf("expected fallback rate 0.5, got %v", s.FallbackRate)
	}
	var one, six float64 = 1, 6
	if want := one / six; s.ConsensusFailureRate != want {
		t.Errorf("expected consensus failure %v, got %v", want, s.ConsensusFailureRate)
	}
	if s.ModelsAgreedHistogram[0] != 3 || s.ModelsAgreedHistogram[3] != 1 {
		t.Errorf("unexpected histogram %v", s.ModelsAgreedHistogram)
	}
	if !s.LastDecision.Equal(now) {
		t.Errorf("expected last decision %v, got %v", now, s.LastDecision)
	}
}

func TestConfidenceStatistics(t *testing.T) {
	c := NewCollector()
	for _, conf := range []float64{0.25, 0.5, 0.75} {
		c.Observe(decision(model.StatusValid, conf, 2))
	}

	s := c.Snapshot()
	if s.AverageConfidence != 0.5 {
		t.Errorf("expected mean 0.5, got %v", s.AverageConfidence)
	}
	if s.MinConfidence != 0.25 || s.MaxConfidence != 0.75 {
		t.Errorf("expected min/max 0.25/0.75, got %v/%v", s.MinConfidence, s.MaxConfidence)
	}
	want := math.Sqrt(0.125 / 3)
	if math.Abs(s.StdDevConfidence-want) > 1e-12 {
		t.Errorf("expected population stddev %v, got %v", want, s.StdDevConfidence)
	}
}

func TestInvalidDecisionsOnlyCountInvalid(t *testing.T) {
	c := NewCollector()
	c.Observe(decision(model.StatusValid, 0.8, 3))

	bad := []model.Decision{
		decision(model.StatusValid, math.NaN(), 1),
		decision(model.StatusValid, math.Inf(1), 1),
		decision(model.StatusValid, 1.5, 1),
		decision(model.StatusValid, -0.1, 1),
		decision(model.StatusValid, 0.5, -1),
		{Status: model.StatusValid, Confidence: 0.5},
	}
	for _, d := range bad {
		c.Observe(d)
	}

	s := c.Snapshot()
	if s.InvalidInputs != uint64(len(bad)) {
		t.Errorf("expected %d invalid inputs, got %d", len(bad), s.InvalidInputs)
	}
	if s.TotalDecisions != 1 || c.SampleCount() != 1 {
		t.Errorf("invalid inputs must not change other counters: %+v", s)
	}
}

func TestSampleRingBounded(t *testing.T) {
	c := NewCollector()
	for i := 0; i < MaxSamples+500; i++ {
		c.Observe(decision(model.StatusValid, 0.5, 2))
	}
	c.Observe(decision(model.StatusValid, 1, 2))

	if c.SampleCount() != MaxSamples {
		t.Errorf("expected %d samples, got %d", MaxSamples, c.SampleCount())
	}
	if s := c.Snapshot(); s.MaxConfidence != 1 {
		t.Errorf("expected newest sample retained, max %v", s.MaxConfidence)
	}
}

func TestHistogramIgnoresLargeCounts(t *testing.T) {
	c := NewCollector()
	c.Observe(decision(model.StatusValid, 0.5, MaxHistogramBucket))

	s := c.Snapshot()
	if len(s.ModelsAgreedHistogram) != 0 {
		t.Errorf("expected no bucket for %d, got %v", MaxHistogramBucket, s.ModelsAgreedHistogram)
	}
	if s.TotalDecisions != 1 {
		t.Error("decision must still be counted")
	}
}

func TestOverflowStopsCounting(t *testing.T) {
	c := NewCollector()
	c.snap.TotalDecisions = math.MaxUint64

	c.Observe(decision(model.StatusValid, 0.5, 2))

	s := c.Snapshot()
	if !s.OverflowDetected {
		t.Fatal("expected overflow flag")
	}
	if s.TotalDecisions != math.MaxUint64 || s.ValidDecisions != 0 {
		t.Errorf("expected counters frozen, got %+v", s)
	}
	if c.IsHealthy(1) {
		t.Error("overflowed collector must report unhealthy")
	}
}

func TestIsHealthy(t *testing.T) {
	c := NewCollector()
	if !c.IsHealthy(DefaultMaxFallbackRate) {
		t.Error("empty collector should be healthy")
	}
	for i := 0; i < 9; i++ {
		c.Observe(decision(model.StatusValid, 0.8, 3))
	}
	c.Observe(decision(model.StatusRejectedNoConsensus, 0.2, 1))
	if !c.IsHealthy(DefaultMaxFallbackRate) {
		t.Error("10% fallback should be healthy at the default threshold")
	}
	c.Observe(decision(model.StatusRejectedNoConsensus, 0.2, 1))
	if c.IsHealthy(DefaultMaxFallbackRate) {
		t.Error("2 of 11 fallbacks should be unhealthy")
	}
}

func TestResetAndSnapshotIsolation(t *testing.T) {
	c := NewCollector()
	c.Observe(decision(model.StatusValid, 0.8, 3))

	s := c.Snapshot()
	s.ModelsAgreedHistogram[3] = 100
	if c.Snapshot().ModelsAgreedHistogram[3] != 1 {
		t.Error("snapshot histogram must be a copy")
	}

	c.Reset()
	s = c.Snapshot()
	if s.TotalDecisions != 0 || c.SampleCount() != 0 || len(s.ModelsAgreedHistogram) != 0 {
		t.Errorf("expected cleared collector, got %+v", s)
	}
}

func TestConcurrentObserve(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.Observe(decision(model.StatusValid, 0.7, 2))
				c.Snapshot()
			}
		}()
	}
	wg.Wait()

	if s := c.Snapshot(); s.TotalDecisions != 800 {
		t.Errorf("expected 800 decisions, got %d", s.TotalDecisions)
	}
}

func TestExporter(t *testing.T) {
	c := NewCollector()
	c.Observe(decision(model.StatusValid, 0.8, 3))
	c.Observe(decision(model.StatusRejectedLowConfidence, 0.1, 0))

	e := NewExporter(c, "aille")
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(e); err != nil {
		t.Fatal(err)
	}

	// 5 statuses + invalid + fallbacks + 2 rates + 4 confidence stats + 2 histogram
	// buckets + samples + overflow + last decision
	if n := testutil.CollectAndCount(e); n != 18 {
		t.Errorf("expected 18 series, got %d", n)
	}
	if n := testutil.CollectAndCount(e, "aille_fallback_rate"); n != 1 {
		t.Errorf("expected fallback_rate series, got %d", n)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range families {
		if mf.GetName() == "aille_fallback_rate" && mf.GetMetric()[0].GetGauge().GetValue() != 0.5 {
			t.Errorf("expected fallback rate 0.5, got %v", mf.GetMetric()[0].GetGauge().GetValue())
		}
	}
}

func TestFormatSnapshot(t *testing.T) {
	c := NewCollector()
	c.Observe(decision(model.StatusValid, 0.8, 3))
	c.Observe(decision(model.StatusRejectedNoConsensus, 0.2, 1))

	out := FormatSnapshot(c.Snapshot())
	for _, want := range []string{"Total Decisions:      2", "Fallback Rate:          50.00%", "Average: 0.5000", "    3: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "WARNING") {
		t.Error("unexpected overflow warning")
	}
}
