package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Exporter exposes a Collector to Prometheus. Values are read from a
// Snapshot at scrape time.
type Exporter struct {
	c *Collector

	decisions        *prometheus.Desc
	invalidInputs    *prometheus.Desc
	fallbacks        *prometheus.Desc
	fallbackRate     *prometheus.Desc
	consensusFailure *prometheus.Desc
	confidence       *prometheus.Desc
	modelsAgreed     *prometheus.Desc
	samples          *prometheus.Desc
	overflow         *prometheus.Desc
	lastDecision     *prometheus.Desc
}

// NewExporter builds an exporter whose metric names start with namespace.
func NewExporter(c *Collector, namespace string) *Exporter {
	name := func(n string) string { return prometheus.BuildFQName(namespace, "", n) }
	return &Exporter{
		c: c,
		decisions: prometheus.NewDesc(name("decisions_total"),
			"Decisions observed, by status.", []string{"status"}, nil),
		invalidInputs: prometheus.NewDesc(name("invalid_inputs_total"),
			"Decisions rejected by the collector as malformed.", nil, nil),
		fallbacks: prometheus.NewDesc(name("fallback_activations_total"),
			"Decisions that fell back to the directional prior.", nil, nil),
		fallbackRate: prometheus.NewDesc(name("fallback_rate"),
			"Fraction of decisions that fell back.", nil, nil),
		consensusFailure: prometheus.NewDesc(name("consensus_failure_rate"),
			"Fraction of decisions rejected for lack of consensus.", nil, nil),
		confidence: prometheus.NewDesc(name("confidence"),
			"Confidence statistics over the retained samples.", []string{"stat"}, nil),
		modelsAgreed: prometheus.NewDesc(name("models_agreed_decisions"),
			"Decisions by number of agreeing models.", []string{"models_agreed"}, nil),
		samples: prometheus.NewDesc(name("confidence_samples"),
			"Confidence samples currently retained.", nil, nil),
		overflow: prometheus.NewDesc(name("counter_overflow"),
			"1 when the decision counter has saturated.", nil, nil),
		lastDecision: prometheus.NewDesc(name("last_decision_timestamp_seconds"),
			"Unix time of the last observed decision.", nil, nil),
	}
}

func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.decisions
	ch <- e.invalidInputs
	ch <- e.fallbacks
	ch <- e.fallbackRate
	ch <- e.consensusFailure
	ch <- e.confidence
	ch <- e.modelsAgreed
	ch <- e.samples
	ch <- e.overflow
	ch <- e.lastDecision
}

func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	s := e.c.Snapshot()
	samples := e.c.SampleCount()

	byStatus := map[string]uint64{
		"VALID":                   s.ValidDecisions,
		"REJECTED_LOW_CONFIDENCE": s.RejectedConfidence,
		"REJECTED_NO_CONSENSUS":   s.RejectedConsensus,
		"FALLBACK_ACTIVATED":      s.ForcedFallbacks,
		"ERROR_NO_MODELS":         s.NoModelErrors,
	}
	for status, n := range byStatus {
		ch <- prometheus.MustNewConstMetric(e.decisions, prometheus.CounterValue, float64(n), status)
	}
	ch <- prometheus.MustNewConstMetric(e.invalidInputs, prometheus.CounterValue, float64(s.InvalidInputs))
	ch <- prometheus.MustNewConstMetric(e.fallbacks, prometheus.CounterValue, float64(s.FallbackActivations))
	ch <- prometheus.MustNewConstMetric(e.fallbackRate, prometheus.GaugeValue, s.FallbackRate)
	ch <- prometheus.MustNewConstMetric(e.consensusFailure, prometheus.GaugeValue, s.ConsensusFailureRate)

	for stat, v := range map[string]float64{
		"avg":    s.AverageConfidence,
		"min":    s.MinConfidence,
		"max":    s.MaxConfidence,
		"stddev": s.StdDevConfidence,
	} {
		ch <- prometheus.MustNewConstMetric(e.confidence, prometheus.GaugeValue, v, stat)
	}
	for agreed, n := range s.ModelsAgreedHistogram {
		ch <- prometheus.MustNewConstMetric(e.modelsAgreed, prometheus.CounterValue, float64(n), strconv.Itoa(agreed))
	}

	ch <- prometheus.MustNewConstMetric(e.samples, prometheus.GaugeValue, float64(samples))
	overflow := 0.0
	if s.OverflowDetected {
		overflow = 1
	}
	ch <- prometheus.MustNewConstMetric(e.overflow, prometheus.GaugeValue, overflow)

	last := 0.0
	if !s.LastDecision.IsZero() {
		last = float64(s.LastDecision.UnixNano()) / 1e9
	}
	ch <- prometheus.MustNewConstMetric(e.lastDecision, prometheus.GaugeValue, last)
}
