package device

import (
	"sync"
	"time"

	"Aetherlink/pkg/async"
)

// Loopback feeds every output buffer back as the input of the next
// callback, like a speaker placed next to a microphone.
type Loopback struct {
	SampleRate float64 // the fake sample rate, 0 means no limit

	mu      sync.Mutex
	done    chan struct{}
	stopped <-chan struct{}
}

func (d *Loopback) Start(callback func(in, out []int32)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done != nil {
		return ErrAlreadyStarted
	}
	done := make(chan struct{})
	d.done = done
	d.stopped = async.Job(func() {
		var buf = make([][]int32, 2)
		buf[0] = alloci32(BufferSize)
		buf[1] = alloci32(BufferSize)

		swap := true
		update := func() {
			if swap {
				callback(buf[0], buf[1])
			} else {
				callback(buf[1], buf[0])
			}
			swap = !swap
		}

		tick(done, d.SampleRate, update)
	})
	return nil
}

func (d *Loopback) Stop() error {
	d.mu.Lock()
	done, stopped := d.done, d.stopped
	d.done, d.stopped = nil, nil
	d.mu.Unlock()
	if done == nil {
		return ErrNotStarted
	}
	close(done)
	<-stopped
	return nil
}

// tick calls update once per buffer period at sampleRate until done is
// closed. A zero sampleRate runs update as fast as possible.
func tick(done <-chan struct{}, sampleRate float64, update func()) {
	if sampleRate == 0 {
		for {
			select {
			case <-done:
				return
			default:
				update()
			}
		}
	}

	ticker := time.NewTicker(time.Duration(float64(time.Second) * BufferSize / sampleRate))
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			update()
		}
	}
}
