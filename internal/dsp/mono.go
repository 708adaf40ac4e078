package dsp

// ToMono averages interleaved multi-channel samples into dst, growing it when
// needed. A non-positive channel count is treated as mono; a trailing partial
// sample group is dropped.
func ToMono(samples []float32, channels int, dst []float64) []float64 {
	if channels <= 0 {
		channels = 1
	}
	n := len(samples) / channels
	if cap(dst) < n {
		dst = make([]float64, n)
	} else {
		dst = dst[:n]
	}

	scale := 1 / float64(channels)
	for i := range n {
		var sum float64
		for _, s := range samples[i*channels : (i+1)*channels] {
			sum += float64(s)
		}
		dst[i] = sum * scale
	}
	return dst
}
