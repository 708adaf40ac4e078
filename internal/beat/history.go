package beat

import "github.com/rotisserie/eris"

// DefaultHistorySize holds roughly one second of energies at 60 frames per second.
const DefaultHistorySize = 60

// History is a fixed-capacity ring of recent energy values. The oldest value is
// evicted when a push would exceed capacity. It is not safe for concurrent use.
type History struct {
	values []float64
	sum    float64
	count  int
	index  int
}

// NewHistory allocates a history holding at most capacity values.
func NewHistory(capacity int) (*History, error) {
	if capacity < 1 {
		return nil, eris.Errorf("history capacity must be >= 1, got %d", capacity)
	}

	return &History{values: make([]float64, capacity)}, nil
}

// Push records v as the newest value.
func (h *History) Push(v float64) {
	if h.count == len(h.values) {
		h.sum -= h.values[h.index]
	} else {
		h.count++
	}
	h.values[h.index] = v
	h.sum += v
	h.index = (h.index + 1) % len(h.values)

	// Re-sum once per lap so the running total does not drift.
	if h.index == 0 {
		h.resum()
	}
}

// Mean returns the arithmetic mean of the held values.
func (h *History) Mean() (float64, error) {
	if h.count == 0 {
		return 0, ErrEmptyHistory
	}

	return h.sum / float64(h.count), nil
}

// Len reports how many values are held.
func (h *History) Len() int {
	return h.count
}

// Cap reports the fixed capacity.
func (h *History) Cap() int {
	return len(h.values)
}

// Values returns a copy of the held values, oldest first.
func (h *History) Values() []float64 {
	out := make([]float64, 0, h.count)
	start := h.index - h.count
	if start < 0 {
		start += len(h.values)
	}
	for i := range h.count {
		out = append(out, h.values[(start+i)%len(h.values)])
	}
	return out
}

func (h *History) resum() {
	var sum float64
	for i := range h.count {
		sum += h.values[i]
	}
	h.sum = sum
}

// HistoryView is a read-only window onto a History.
type HistoryView struct {
	h *History
}

// Len reports how many values are held.
func (v HistoryView) Len() int { return v.h.Len() }

// Cap reports the fixed capacity.
func (v HistoryView) Cap() int { return v.h.Cap() }

// Values returns a copy of the held values, oldest first.
func (v HistoryView) Values() []float64 { return v.h.Values() }

// Mean returns the arithmetic mean of the held values.
func (v HistoryView) Mean() (float64, error) { return v.h.Mean() }
