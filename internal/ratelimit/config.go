// Package ratelimit caps how many decisions a caller may request per window.
package ratelimit

import "time"

// Wildcard is the Config key applied to callers without their own entry.
const Wildcard = "*"

// Limit defines the decision budget for one caller.
// Zero values mean no limit.
type Limit struct {
	MaxRequests int           `yaml:"max_requests" json:"max_requests" validate:"gte=0"`
	Window      time.Duration `yaml:"window" json:"window" validate:"gte=0"`
}

func (l Limit) enabled() bool {
	return l.MaxRequests > 0 && l.Window > 0
}

// Config maps caller ids (the batch user_id) to their limits.
type Config map[string]Limit

// HasLimits returns true if any caller has a configured limit.
func (c Config) HasLimits() bool {
	for _, l := range c {
		if l.enabled() {
			return true
		}
	}
	return false
}

// lookup returns the limit for caller: its own entry, then Wildcard.
func (c Config) lookup(caller string) (Limit, bool) {
	if l, ok := c[caller]; ok {
		return l, l.enabled()
	}
	l, ok := c[Wildcard]
	return l, ok && l.enabled()
}
