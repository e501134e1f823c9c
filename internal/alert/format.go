package alert

import (
	"encoding/json"
	"fmt"

	"github.com/ppiankov/aille/internal/model"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return json.Marshal(event)
	}
}

func formatSlack(event Event) ([]byte, error) {
	symbol := event.Symbol
	if symbol == "" {
		symbol = "-"
	}
	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("aille: %s", event.Type),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Symbol:* %s", symbol)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Value:* %+.4f", event.FinalValue)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Severity:* %s", severity(event.Type))},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("aille %s: %s", event.Type, event.Reason),
			"severity": severity(event.Type),
			"source":   "aille",
			"custom_details": map[string]any{
				"decision_id": event.DecisionID,
				"final_value": event.FinalValue,
				"confidence":  event.Confidence,
				"symbol":      event.Symbol,
				"strategy_id": event.StrategyID,
				"hash":        event.Hash,
			},
		},
	}
	return json.Marshal(payload)
}

// severity maps an event type to a PagerDuty severity.
func severity(eventType string) string {
	switch eventType {
	case EventLedgerDiverged, string(model.StatusErrorNoModels):
		return "critical"
	case EventUnhealthy:
		return "error"
	case string(model.StatusRejectedLowConfidence), string(model.StatusRejectedNoConsensus), string(model.StatusFallbackActivated):
		return "warning"
	default:
		return "info"
	}
}
