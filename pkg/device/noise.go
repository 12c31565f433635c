package device

import (
	"math"
	"sync"

	"golang.org/x/exp/rand"
)

// Noise wraps a Device and adds white Gaussian noise to everything it
// captures without touching the capture buffer itself. Level is the standard deviation relative to full scale.
type Noise struct {
	Device
	Level float64
	Seed  uint64

	once    sync.Once
	rng     *rand.Rand
	scratch []int32
}

func (n *Noise) Start(callback func(in, out []int32)) error {
	n.once.Do(func() { n.rng = rand.New(rand.NewSource(n.Seed)) })
	return n.Device.Start(func(in, out []int32) {
		if cap(n.scratch) < len(in) {
			n.scratch = make([]int32, len(in))
		}
		noisy := n.scratch[:len(in)]
		copy(noisy, in)
		n.add(noisy)
		callback(noisy, out)
	})
}

func (n *Noise) add(buf []int32) {
	for i, v := range buf {
		buf[i] = saturate(float64(v) + n.Level*math.MaxInt32*n.rng.NormFloat64())
	}
}
