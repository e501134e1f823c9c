// Package enforce maps decisions to execution intents. It never places
// orders; callers act on the returned Action.
package enforce

import (
	"fmt"

	"github.com/ppiankov/aille/internal/model"
)

// Kind is what a caller should do with a decision.
type Kind string

const (
	Execute         Kind = "execute"
	ExecuteFallback Kind = "execute_fallback"
	Skip            Kind = "skip"
)

// Action is the execution intent for one decision.
type Action struct {
	Kind   Kind    `json:"kind"`
	Size   float64 `json:"size"`
	Reason string  `json:"reason"`
}

// SkipError is returned by Enforce when a decision must not be acted on.
type SkipError struct {
	Status model.DecisionStatus
	Reason string
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("execution skipped (%s): %s", e.Status, e.Reason)
}

// Plan returns the action for d. VALID decisions execute at the final value,
// fallback decisions execute the directional fallback, anything else is skipped.
func Plan(d model.Decision) Action {
	switch {
	case d.Status == model.StatusValid:
		return Action{Kind: Execute, Size: d.FinalValue, Reason: d.Reasoning}
	case d.FallbackUsed:
		return Action{Kind: ExecuteFallback, Size: d.FinalValue, Reason: d.Reasoning}
	default:
		return Action{Kind: Skip, Reason: d.Reasoning}
	}
}

// Enforce returns the position size to execute, or a *SkipError.
func Enforce(d model.Decision) (float64, error) {
	a := Plan(d)
	if a.Kind == Skip {
		return 0, &SkipError{Status: d.Status, Reason: a.Reason}
	}
	return a.Size, nil
}
