package device

import "math"

// saturate clips v into the int32 sample range.
func saturate(v float64) int32 {
	return int32(math.Max(math.Min(v, math.MaxInt32), math.MinInt32))
}

// sumi32 mixes a and b into c, clipping instead of wrapping around.
func sumi32(a, b, c []int32) {
	for i := range a {
		c[i] = saturate(float64(a[i]) + float64(b[i]))
	}
}

func alloci32(n int) []int32 {
	return make([]int32, n)
}
