package layers

import (
	"context"
	"sync"

	"Aetherlink/pkg/device"
	"Aetherlink/pkg/modem"
)

const (
	CARRIER_FREQ = 2000.0
	SAMPLE_RATE  = 48000
	SYMBOL_RATE  = 100
	START_KEY    = "<<"
	END_KEY      = ">>"

	// One ECC protected key, or two payload bytes, fill exactly one chunk.
	CHUNK_SIZE = 16 * SAMPLE_RATE / SYMBOL_RATE
	// A 0.1 s chunk, as the device stream delivers it. It is shorter than a
	// key and not a whole number of symbols.
	LIVE_CHUNK_SIZE = SAMPLE_RATE / 10

	NORMALIZED_THRESHOLD = 0.75
	RAW_THRESHOLD        = 2000
)

var testConfig = modem.ChannelConfig{
	CarrierFreq: CARRIER_FREQ,
	SampleRate:  SAMPLE_RATE,
	SymbolRate:  SYMBOL_RATE,
	StartKey:    START_KEY,
	EndKey:      END_KEY,
}

func silence() []float64 {
	return make([]float64, CHUNK_SIZE)
}

// chunked splits a signal into CHUNK_SIZE pieces.
func chunked(signals ...[]float64) [][]float64 {
	return split(CHUNK_SIZE, signals...)
}

// split cuts a signal into pieces of size samples, padding the last one
// with silence.
func split(size int, signals ...[]float64) [][]float64 {
	var all []float64
	for _, s := range signals {
		all = append(all, s...)
	}
	var chunks [][]float64
	for i := 0; i < len(all); i += size {
		chunk := make([]float64, size)
		copy(chunk, all[i:])
		chunks = append(chunks, chunk)
	}
	return chunks
}

func scaled(signal []float64, gain float64) []float64 {
	out := make([]float64, len(signal))
	for i, v := range signal {
		out[i] = v * gain
	}
	return out
}

func newTestDetector(enc *Encoder) *Detector {
	return &Detector{
		StartKey:  enc.StartKeyWave(),
		EndKey:    enc.EndKeyWave(),
		Threshold: NORMALIZED_THRESHOLD,
		Normalize: true,
	}
}

// sliceSource replays chunks, then either fails with err or blocks until
// the context is done.
type sliceSource struct {
	chunks [][]float64
	err    error
	i      int
}

func (s *sliceSource) Read(ctx context.Context) ([]float64, error) {
	if s.i < len(s.chunks) {
		s.i++
		return s.chunks[s.i-1], nil
	}
	if s.err != nil {
		return nil, s.err
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

// recordingSink keeps everything it plays. While hold is non-nil, Play
// blocks until hold is closed.
type recordingSink struct {
	mu      sync.Mutex
	played  [][]float64
	hold    chan struct{}
	started chan struct{}
}

func (s *recordingSink) Play(ctx context.Context, samples []float64) error {
	if s.started != nil {
		close(s.started)
	}
	if s.hold != nil {
		select {
		case <-s.hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = append(s.played, append([]float64(nil), samples...))
	return nil
}

var (
	_ device.Source = (*sliceSource)(nil)
	_ device.Sink   = (*recordingSink)(nil)
)
