package device

import "sync"

type track struct {
	samples []int32
	idx     int
	done    chan struct{}
}

// player queues tracks and copies them into output buffers back to back,
// padding with silence once the queue is empty.
type player struct {
	mu    sync.Mutex
	queue []*track
}

func (p *player) enqueue(samples []int32) *track {
	t := &track{samples: samples, done: make(chan struct{})}
	p.mu.Lock()
	p.queue = append(p.queue, t)
	p.mu.Unlock()
	return t
}

// cancel drops t from the queue; it is a no-op once t has finished.
func (p *player) cancel(t *track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, q := range p.queue {
		if q == t {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			close(t.done)
			return
		}
	}
}

func (p *player) Update(out []int32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := 0
	for i < len(out) && len(p.queue) > 0 {
		t := p.queue[0]
		n := copy(out[i:], t.samples[t.idx:])
		t.idx += n
		i += n
		if t.idx == len(t.samples) {
			close(t.done)
			p.queue = p.queue[1:]
		}
	}
	for ; i < len(out); i++ {
		out[i] = 0
	}
}

// Reset drops every queued track without marking it as played.
func (p *player) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = nil
}
