package fusion

// FallbackStore is a bounded FIFO of recently accepted decision values.
// It is not synchronized; Engine guards it with its own mutex.
type FallbackStore struct {
	buf  []float64
	head int // index of the oldest value
	size int
}

// NewFallbackStore creates a store holding at most window values.
// A window below 1 is raised to 1.
func NewFallbackStore(window int) *FallbackStore {
	if window < 1 {
		window = 1
	}
	return &FallbackStore{buf: make([]float64, window)}
}

// Push appends v, evicting the oldest value when the window is full.
func (s *FallbackStore) Push(v float64) {
	if s.size < len(s.buf) {
		s.buf[(s.head+s.size)%len(s.buf)] = v
		s.size++
		return
	}
	s.buf[s.head] = v
	s.head = (s.head + 1) % len(s.buf)
}

// Mean returns the arithmetic mean of stored values, or 0 when empty.
func (s *FallbackStore) Mean() float64 {
	if s.size == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < s.size; i++ {
		sum += s.buf[(s.head+i)%len(s.buf)]
	}
	return sum / float64(s.size)
}

// DirectionalFallback returns sign(Mean()) * scale, with sign(0) = +1.
func (s *FallbackStore) DirectionalFallback(scale float64) float64 {
	return sign(s.Mean()) * scale
}

// Values returns the stored values oldest first.
func (s *FallbackStore) Values() []float64 {
	out := make([]float64, s.size)
	for i := range out {
		out[i] = s.buf[(s.head+i)%len(s.buf)]
	}
	return out
}

// Len returns the number of stored values.
func (s *FallbackStore) Len() int { return s.size }

// Window returns the configured capacity.
func (s *FallbackStore) Window() int { return len(s.buf) }

// Clear drops every stored value.
func (s *FallbackStore) Clear() {
	s.head = 0
	s.size = 0
}

// Resize changes the capacity, keeping the newest values that still fit.
func (s *FallbackStore) Resize(window int) {
	if window < 1 {
		window = 1
	}
	if window == len(s.buf) {
		return
	}
	vals := s.Values()
	if len(vals) > window {
		vals = vals[len(vals)-window:]
	}
	s.buf = make([]float64, window)
	copy(s.buf, vals)
	s.head = 0
	s.size = len(vals)
}
