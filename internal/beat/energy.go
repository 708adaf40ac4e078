package beat

import "github.com/rotisserie/eris"

// Frame is one snapshot of per-bin magnitudes in [0, 255]. Its length is fixed
// for the lifetime of a capture session.
type Frame []uint8

// ComputeEnergy reduces a frame to its unweighted mean bin magnitude.
func ComputeEnergy(frame Frame) (float64, error) {
	if len(frame) == 0 {
		return 0, eris.Wrap(ErrInvalidInput, "frame has no bins")
	}

	var sum uint64
	for _, v := range frame {
		sum += uint64(v)
	}

	return float64(sum) / float64(len(frame)), nil
}
