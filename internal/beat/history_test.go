package beat

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHistoryRejectsZeroCapacity(t *testing.T) {
	_, err := NewHistory(0)
	assert.Error(t, err)

	_, err = NewHistory(-3)
	assert.Error(t, err)
}

func TestHistoryEvictsOldestFirst(t *testing.T) {
	for capacity := 1; capacity <= 8; capacity++ {
		for n := 0; n <= 3*capacity+1; n++ {
			h, err := NewHistory(capacity)
			require.NoError(t, err)

			for i := range n {
				h.Push(float64(i))
			}

			wantLen := min(n, capacity)
			require.Equal(t, wantLen, h.Len(), "capacity=%d n=%d", capacity, n)
			assert.Equal(t, capacity, h.Cap())

			want := make([]float64, 0, wantLen)
			for i := n - wantLen; i < n; i++ {
				want = append(want, float64(i))
			}
			assert.Equal(t, want, h.Values(), "capacity=%d n=%d", capacity, n)
		}
	}
}

func TestHistoryMean(t *testing.T) {
	h, err := NewHistory(4)
	require.NoError(t, err)

	h.Push(3.5)
	mean, err := h.Mean()
	require.NoError(t, err)
	assert.InDelta(t, 3.5, mean, 1e-9)

	h.Push(8.25)
	mean, err = h.Mean()
	require.NoError(t, err)
	assert.InDelta(t, (3.5+8.25)/2, mean, 1e-9)
}

func TestHistoryMeanAfterEviction(t *testing.T) {
	h, err := NewHistory(3)
	require.NoError(t, err)

	for _, v := range []float64{100, 1, 2, 3} {
		h.Push(v)
	}

	mean, err := h.Mean()
	require.NoError(t, err)
	assert.InDelta(t, 2.0, mean, 1e-9)
}

func TestHistoryMeanEmpty(t *testing.T) {
	h, err := NewHistory(2)
	require.NoError(t, err)

	_, err = h.Mean()
	assert.True(t, eris.Is(err, ErrEmptyHistory))
}

func TestHistoryMeanIdempotent(t *testing.T) {
	h, err := NewHistory(5)
	require.NoError(t, err)
	for _, v := range []float64{0.1, 0.2, 0.7, 13.3, 2.9, 4.4, 0.3} {
		h.Push(v)
	}

	first, err := h.Mean()
	require.NoError(t, err)
	second, err := h.Mean()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestHistoryLongRunDoesNotDrift(t *testing.T) {
	h, err := NewHistory(60)
	require.NoError(t, err)

	for i := range 100_000 {
		h.Push(float64(i%256) + 0.1)
	}

	values := h.Values()
	var sum float64
	for _, v := range values {
		sum += v
	}

	mean, err := h.Mean()
	require.NoError(t, err)
	assert.InDelta(t, sum/float64(len(values)), mean, 1e-9)
}
