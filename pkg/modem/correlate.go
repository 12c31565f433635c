package modem

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Correlate returns the valid-mode cross-correlation of signal with ref:
// one value per lag at which ref lies entirely inside signal.
// It returns nil when ref is empty or longer than signal.
func Correlate(signal, ref []float64) []float64 {
	if len(ref) == 0 || len(ref) > len(signal) {
		return nil
	}
	out := make([]float64, len(signal)-len(ref)+1)
	for k := range out {
		out[k] = floats.Dot(signal[k:k+len(ref)], ref)
	}
	return out
}

// PeakLag returns the lag of the largest valid-mode correlation of signal
// with ref and its value. When normalized is set each lag is divided by the
// norms of ref and of the segment under it, so a copy of ref at any amplitude
// scores 1 and a silent segment scores 0. The lag is -1 when ref is empty or
// longer than signal.
func PeakLag(signal, ref []float64, normalized bool) (lag int, peak float64) {
	n := len(ref)
	if n == 0 || n > len(signal) {
		return -1, 0
	}
	refNorm := floats.Norm(ref, 2)
	floor := silenceFloor * refNorm * refNorm

	// energy of signal[k:k+n], kept as a running sum
	energy := Energy(signal[:n])
	lag, peak = -1, math.Inf(-1)
	for k := 0; k+n <= len(signal); k++ {
		if k > 0 {
			energy += signal[k+n-1]*signal[k+n-1] - signal[k-1]*signal[k-1]
		}
		v := floats.Dot(signal[k:k+n], ref)
		if normalized {
			if energy <= floor || refNorm == 0 {
				v = 0
			} else {
				v /= math.Sqrt(energy) * refNorm
			}
		}
		if v > peak {
			lag, peak = k, v
		}
	}
	return lag, peak
}

// silenceFloor is the segment energy, relative to the reference, below which
// a segment counts as silent.
const silenceFloor = 1e-9

// Energy is the squared L2 norm of signal.
func Energy(signal []float64) float64 {
	return floats.Dot(signal, signal)
}

// normalizedDot is the cosine similarity of a and b, zero when either is silent.
func normalizedDot(a, b []float64) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}
