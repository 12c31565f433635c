package device

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"Aetherlink/pkg/modem"
)

var ErrStreamClosed = errors.New("audio stream closed")

// Source yields captured audio in fixed size chunks.
type Source interface {
	Read(ctx context.Context) ([]float64, error)
}

// Sink plays a waveform and returns once it has been handed to the device.
type Sink interface {
	Play(ctx context.Context, samples []float64) error
}

// Stream turns a callback Device into a chunked Source and a synchronous
// Sink. Chunks that the reader does not pick up in time are dropped and
// counted as overruns.
type Stream struct {
	Device    Device
	ChunkSize int // samples per Read
	Backlog   int // chunks buffered for a slow reader

	chunks   chan []float64
	pending  []float64
	player   player
	overruns atomic.Uint64

	mu     sync.Mutex
	opened bool
	done   chan struct{}
	once   sync.Once
}

func NewStream(dev Device, chunkSize, backlog int) *Stream {
	if backlog < 1 {
		backlog = 1
	}
	return &Stream{
		Device:    dev,
		ChunkSize: chunkSize,
		Backlog:   backlog,
		chunks:    make(chan []float64, backlog),
		done:      make(chan struct{}),
	}
}

// Open starts the underlying device.
func (s *Stream) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return ErrAlreadyStarted
	}
	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}
	if err := s.Device.Start(s.callback); err != nil {
		return err
	}
	s.opened = true
	return nil
}

func (s *Stream) callback(in, out []int32) {
	s.pending = append(s.pending, modem.Int32ToFloat64(in)...)
	for len(s.pending) >= s.ChunkSize {
		chunk := make([]float64, s.ChunkSize)
		copy(chunk, s.pending)
		s.pending = append(s.pending[:0], s.pending[s.ChunkSize:]...)
		select {
		case s.chunks <- chunk:
		default:
			s.overruns.Add(1)
		}
	}
	s.player.Update(out)
}

// Read blocks until the next chunk is available.
func (s *Stream) Read(ctx context.Context) ([]float64, error) {
	select {
	case <-s.done:
		return nil, ErrStreamClosed
	default:
	}
	select {
	case chunk := <-s.chunks:
		return chunk, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrStreamClosed
	}
}

// Play queues samples behind anything already playing and waits until the
// last sample has been written to the device.
func (s *Stream) Play(ctx context.Context, samples []float64) error {
	if len(samples) == 0 {
		return nil
	}
	t := s.player.enqueue(modem.Float64ToInt32(samples))
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		s.player.cancel(t)
		return ctx.Err()
	case <-s.done:
		s.player.cancel(t)
		return ErrStreamClosed
	}
}

// Overruns reports how many chunks were dropped because nobody read them.
func (s *Stream) Overruns() uint64 {
	return s.overruns.Load()
}

// Close stops the device. Pending reads and plays return ErrStreamClosed.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		opened := s.opened
		s.opened = false
		s.mu.Unlock()
		if opened {
			err = s.Device.Stop()
		}
		s.player.Reset()
	})
	return err
}
