package audio

import "math"

// sincZeroCrossings is the number of sinc lobes on each side of the
// interpolation point at the lower of the two rates.
const sincZeroCrossings = 16

// Resample converts a block of samples from rateIn to rateOut using
// Blackman-windowed sinc interpolation with an anti-aliasing cutoff at the
// Nyquist frequency of the lower rate.
//
// The function keeps no state between calls, so contiguous chunks of a
// stream can be converted independently. Neighbours outside the block are
// taken as the nearest edge sample. The output length is
// round(len(samples) * rateOut / rateIn).
func Resample(samples []float32, rateIn, rateOut int) []float32 {
	if rateIn <= 0 || rateOut <= 0 {
		return nil
	}
	if rateIn == rateOut {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}

	outLen := ResampledLength(len(samples), rateIn, rateOut)
	out := make([]float32, outLen)
	if outLen == 0 || len(samples) == 0 {
		return out
	}

	step := float64(rateIn) / float64(rateOut) // input samples per output sample
	cutoff := 1.0
	if rateOut < rateIn {
		cutoff = float64(rateOut) / float64(rateIn)
	}
	halfWidth := sincZeroCrossings / cutoff
	last := len(samples) - 1

	for i := 0; i < outLen; i++ {
		center := float64(i) * step
		lo := int(math.Ceil(center - halfWidth))
		hi := int(math.Floor(center + halfWidth))

		var sum, weights float64
		for j := lo; j <= hi; j++ {
			x := float64(j) - center
			w := cutoff * sinc(cutoff*x) * blackman(x/halfWidth)
			if w == 0 {
				continue
			}

			idx := j
			if idx < 0 {
				idx = 0
			} else if idx > last {
				idx = last
			}
			sum += w * float64(samples[idx])
			weights += w
		}

		if weights != 0 {
			out[i] = clampSample(float32(sum / weights))
		}
	}

	return out
}

// ResampledLength returns the number of samples Resample produces for n input samples
func ResampledLength(n, rateIn, rateOut int) int {
	if rateIn <= 0 || rateOut <= 0 || n <= 0 {
		return 0
	}
	return int(math.Round(float64(n) * float64(rateOut) / float64(rateIn)))
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// blackman evaluates the Blackman window on t in [-1, 1]
func blackman(t float64) float64 {
	if t <= -1 || t >= 1 {
		return 0
	}
	return 0.42 + 0.5*math.Cos(math.Pi*t) + 0.08*math.Cos(2*math.Pi*t)
}

func clampSample(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
