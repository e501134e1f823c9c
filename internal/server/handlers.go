package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ppiankov/aille/internal/alert"
	"github.com/ppiankov/aille/internal/audit"
	"github.com/ppiankov/aille/internal/enforce"
	"github.com/ppiankov/aille/internal/ingest"
	"github.com/ppiankov/aille/internal/metrics"
	"github.com/ppiankov/aille/internal/model"
)

// DecisionResponse is returned by the decision endpoints.
type DecisionResponse struct {
	Decision model.Decision `json:"decision"`
	Action   enforce.Action `json:"action"`
	Audit    AuditRef       `json:"audit"`
}

// AuditRef points at the ledger record of a decision.
type AuditRef struct {
	DecisionID uint64 `json:"decision_id"`
	Hash       string `json:"hash"`
	Persisted  bool   `json:"persisted"`
}

// FallbackRequest is the optional body of POST /v1/decisions/fallback.
type FallbackRequest struct {
	Reason     string `json:"reason"`
	Symbol     string `json:"symbol"`
	StrategyID string `json:"strategy_id"`
	UserID     string `json:"user_id"`
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Healthy         bool    `json:"healthy"`
	FallbackRate    float64 `json:"fallback_rate"`
	MaxFallbackRate float64 `json:"max_fallback_rate"`
	LedgerDiverged  bool    `json:"ledger_diverged"`
	PendingRecords  int     `json:"pending_records"`
	PersistFailures int     `json:"persist_failures"`
	Overflow        bool    `json:"overflow"`
}

func readBody(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("body exceeds %d bytes", maxBodyBytes)
	}
	return body, nil
}

// Decide runs one decision cycle for the posted batch and records it.
func (s *Server) Decide(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	batch, err := ingest.DecodeBatch(body)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if res := s.limiter.Allow(batch.UserID, time.Now()); res.Exceeded {
		retry := int(res.RetryAfter.Round(time.Second) / time.Second)
		c.Response().Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
		s.log.Warn().Str("user_id", batch.UserID).Int("limit", res.Limit).Msg("decision rate limit exceeded")
		return errorResponse(c, http.StatusTooManyRequests, "ERR_RATE_LIMITED", res.Reason)
	}

	d := s.engine.MakeDecision(batch.Signals)
	return s.record(c, d, batch.Metadata())
}

// ForceFallback records a caller-forced directional fallback.
func (s *Server) ForceFallback(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req FallbackRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return badRequest(c, "invalid JSON: "+err.Error())
		}
	}

	d := s.engine.ForceFallback(req.Reason)
	return s.record(c, d, audit.Metadata{Symbol: req.Symbol, StrategyID: req.StrategyID, UserID: req.UserID})
}

func (s *Server) record(c echo.Context, d model.Decision, meta audit.Metadata) error {
	s.collector.Observe(d)

	resp := DecisionResponse{Decision: d, Action: enforce.Plan(d)}
	rec, err := s.ledger.Append(d, meta)
	var perr *audit.PersistError
	switch {
	case err == nil:
		resp.Audit = AuditRef{DecisionID: rec.DecisionID, Hash: rec.Hash, Persisted: true}
	case errors.As(err, &perr):
		// The decision stands; /healthz reports the divergence.
		resp.Audit = AuditRef{DecisionID: rec.DecisionID, Hash: rec.Hash}
		s.alerts.Dispatch(alert.Event{
			Timestamp:  rec.Timestamp.UTC().Format(time.RFC3339Nano),
			Type:       alert.EventLedgerDiverged,
			DecisionID: rec.DecisionID,
			Reason:     perr.Err.Error(),
			Hash:       rec.Hash,
		})
	default:
		s.log.Error().Err(err).Str("status", string(d.Status)).Msg("decision not recorded")
		return errorResponse(c, http.StatusServiceUnavailable, "ERR_LEDGER", err.Error())
	}

	s.alerts.Dispatch(alert.RecordEvent(rec))
	s.watchHealth()
	return successResponse(c, resp)
}

// watchHealth sends one unhealthy alert per healthy-to-unhealthy transition.
func (s *Server) watchHealth() {
	healthy := s.healthy()
	if s.degraded.Swap(!healthy) || healthy {
		return
	}
	snap := s.collector.Snapshot()
	s.log.Warn().Float64("fallback_rate", snap.FallbackRate).Bool("ledger_diverged", s.ledger.Diverged()).Msg("service degraded")
	reason := fmt.Sprintf("fallback rate %.2f%% (max %.2f%%), ledger diverged: %t",
		snap.FallbackRate*100, s.maxFallbackRate*100, s.ledger.Diverged())
	s.alerts.Dispatch(alert.Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Type:      alert.EventUnhealthy,
		Reason:    reason,
	})
}

func (s *Server) healthy() bool {
	return s.collector.IsHealthy(s.maxFallbackRate) && !s.ledger.Diverged()
}

// Verify checks the ledger's hash chain. A broken chain answers 409.
func (s *Server) Verify(c echo.Context) error {
	res := s.ledger.Verify()
	if !res.Valid {
		return dataResponse(c, http.StatusConflict, res)
	}
	return successResponse(c, res)
}

// Report returns the regulatory report for ?from=&to= (RFC3339, inclusive).
// ?format=text renders the plain text report.
func (s *Server) Report(c echo.Context) error {
	from, err := parseBound(c.QueryParam("from"))
	if err != nil {
		return badRequest(c, "from: "+err.Error())
	}
	to, err := parseBound(c.QueryParam("to"))
	if err != nil {
		return badRequest(c, "to: "+err.Error())
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return badRequest(c, "to is before from")
	}

	rep := s.ledger.Report(from, to)
	if c.QueryParam("format") == "text" {
		return c.String(http.StatusOK, audit.FormatReport(rep))
	}
	return successResponse(c, rep)
}

func parseBound(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}

// Snapshot returns the metrics collector state.
func (s *Server) Snapshot(c echo.Context) error {
	if c.QueryParam("format") == "text" {
		return c.String(http.StatusOK, metrics.FormatSnapshot(s.collector.Snapshot()))
	}
	return successResponse(c, s.collector.Snapshot())
}

// EngineConfig returns the thresholds currently in effect.
func (s *Server) EngineConfig(c echo.Context) error {
	return successResponse(c, s.engine.Config())
}

// Reset clears the engine's fallback history.
func (s *Server) Reset(c echo.Context) error {
	s.engine.Reset()
	s.log.Info().Msg("engine fallback history reset")
	return successResponse(c, map[string]int{"fallback_values": len(s.engine.FallbackValues())})
}

// Health answers 503 when the fallback rate is over threshold, a counter
// overflowed, or the ledger diverged from its store.
func (s *Server) Health(c echo.Context) error {
	snap := s.collector.Snapshot()
	h := HealthResponse{
		FallbackRate:    snap.FallbackRate,
		MaxFallbackRate: s.maxFallbackRate,
		LedgerDiverged:  s.ledger.Diverged(),
		PendingRecords:  s.ledger.Pending(),
		PersistFailures: s.ledger.PersistFailures(),
		Overflow:        snap.OverflowDetected,
	}
	h.Healthy = s.healthy()
	if !h.Healthy {
		return dataResponse(c, http.StatusServiceUnavailable, h)
	}
	return successResponse(c, h)
}
