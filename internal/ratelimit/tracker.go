package ratelimit

import "time"

// window is a fixed counting window for one caller.
type window struct {
	start time.Time
	count int
}

// snapshot returns the count in w, restarting the window once it has expired.
func (w *window) snapshot(length time.Duration, now time.Time) int {
	if now.Sub(w.start) >= length {
		w.start = now
		w.count = 0
	}
	return w.count
}
