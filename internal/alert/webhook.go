package alert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const (
	requestTimeout    = 5 * time.Second
	defaultAttempts   = 3
	defaultRetryDelay = time.Second
)

var httpClient = &http.Client{Timeout: requestTimeout}

// Send posts event to the webhook in cfg. Transport errors and 5xx answers
// are retried with a linearly growing delay; a 4xx answer is final.
// Cancelling ctx abandons the remaining attempts.
func Send(ctx context.Context, cfg Config, event Event, log zerolog.Logger) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("alert: format payload: %w", err)
	}

	attempts, delay := cfg.attempts(), cfg.retryDelay()
	log = log.With().
		Str("type", event.Type).
		Uint64("decision_id", event.DecisionID).
		Str("url", cfg.URL).
		Logger()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			wait := time.Duration(attempt-1) * delay
			log.Debug().Err(lastErr).Int("attempt", attempt).Dur("wait", wait).Msg("retrying alert delivery")
			select {
			case <-ctx.Done():
				return fmt.Errorf("alert: %s delivery abandoned after %d attempts: %w", event.Type, attempt-1, ctx.Err())
			case <-time.After(wait):
			}
		}

		req, err := newRequest(ctx, cfg, event, body)
		if err != nil {
			return err
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return fmt.Errorf("alert: webhook rejected %s: HTTP %d", event.Type, resp.StatusCode)
		}
		lastErr = fmt.Errorf("webhook server error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("alert: %s delivery failed after %d attempts: %w", event.Type, attempts, lastErr)
}

func newRequest(ctx context.Context, cfg Config, event Event, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("alert: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Aille-Event", event.Type)
	if event.DecisionID != 0 {
		req.Header.Set("X-Aille-Decision-ID", strconv.FormatUint(event.DecisionID, 10))
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}
