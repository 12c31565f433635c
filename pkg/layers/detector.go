package layers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"Aetherlink/pkg/device"
	"Aetherlink/pkg/metrics"
	"Aetherlink/pkg/modem"
)

var ErrFrameTooLong = errors.New("frame exceeds the maximum duration")

type DetectorState int32

const (
	Idle DetectorState = iota
	Recording
)

func (s DetectorState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	default:
		return fmt.Sprintf("DetectorState(%d)", int32(s))
	}
}

// Detector delimits frames in a stream of audio chunks by correlating the
// latest samples with the start and end key waveforms. Each chunk is scored
// together with the key length of audio before it, so a key is found whole
// even when it straddles chunks or is longer than one. It is driven by a
// single goroutine; only State may be called concurrently.
type Detector struct {
	StartKey  []float64
	EndKey    []float64
	Threshold float64
	Normalize bool // score by cosine similarity, so 1 is a full match at any level

	MaxFrameSamples int         // 0 means unbounded
	PreRoll         int         // idle chunks kept in front of a frame
	PostRoll        int         // chunks still recorded after the end key
	Gate            func() bool // chunks are ignored while Gate reports true
	OnStart         func()

	Metrics *metrics.Metrics
	Logger  *slog.Logger

	state  atomic.Int32
	recent []float64 // idle audio kept for lookback and pre-roll
	buffer []float64
	body   int // offset in buffer where the end key search begins
	tail   int // post-roll chunks still to record
}

func (d *Detector) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default().With("component", "detector")
}

func (d *Detector) State() DetectorState {
	return DetectorState(d.state.Load())
}

func (d *Detector) setState(s DetectorState) {
	d.state.Store(int32(s))
	d.Metrics.DetectorRecording(s == Recording)
}

// Lookback is the number of samples before a chunk that are scored with it.
func (d *Detector) Lookback() int {
	return max(len(d.StartKey), len(d.EndKey), 1) - 1
}

// Score is the peak correlation of window with key, or their peak cosine
// similarity when Normalize is set. A window shorter than the key cannot
// hold it and scores zero.
func (d *Detector) Score(window, key []float64) float64 {
	_, score := modem.PeakLag(window, key, d.Normalize)
	return score
}

// Reset drops any partial frame and returns to Idle.
func (d *Detector) Reset() {
	d.recent = nil
	d.buffer = nil
	d.body = 0
	d.tail = 0
	if d.State() != Idle {
		d.setState(Idle)
	}
}

// Update feeds one chunk and returns a complete frame once the end key has
// been seen. The frame starts at the start key, or PreRoll chunks earlier,
// and ends with the chunk holding the end key, or PostRoll chunks later. A
// chunk may hold a whole frame, in which case it starts and completes it.
func (d *Detector) Update(chunk []float64) ([]float64, bool) {
	if d.Gate != nil && d.Gate() {
		if d.State() == Recording {
			d.logger().Debug("discarding partial frame while transmitting", "samples", len(d.buffer))
		}
		d.Reset()
		return nil, false
	}

	switch d.State() {
	case Idle:
		all := make([]float64, 0, len(d.recent)+len(chunk))
		all = append(append(all, d.recent...), chunk...)
		offset := max(0, len(all)-len(chunk)-d.Lookback())

		lag, score := modem.PeakLag(all[offset:], d.StartKey, d.Normalize)
		if lag < 0 || score <= d.Threshold {
			keep := d.Lookback() + d.PreRoll*len(chunk)
			d.recent = all[max(0, len(all)-keep):]
			return nil, false
		}

		start := offset + lag
		from := max(0, start-d.PreRoll*len(chunk))
		d.logger().Info("start key detected, recording", "score", score)
		d.recent = nil
		d.buffer = all[from:]
		d.body = start - from + len(d.StartKey)
		d.setState(Recording)
		if d.OnStart != nil {
			d.OnStart()
		}
		return d.seekEnd(len(all) - start)

	case Recording:
		d.buffer = append(d.buffer, chunk...)
		if d.tail > 0 {
			d.tail--
			if d.tail == 0 {
				return d.complete(), true
			}
			return nil, false
		}
		return d.seekEnd(len(chunk))
	}
	return nil, false
}

// seekEnd looks for the end key among the fresh samples at the end of the
// buffer and the lookback before them, never reaching into the start key.
func (d *Detector) seekEnd(fresh int) ([]float64, bool) {
	from := max(d.body, len(d.buffer)-fresh-d.Lookback())
	if from < len(d.buffer) {
		if _, score := modem.PeakLag(d.buffer[from:], d.EndKey, d.Normalize); score > d.Threshold {
			if d.PostRoll > 0 {
				d.tail = d.PostRoll
				return nil, false
			}
			return d.complete(), true
		}
	}
	if d.MaxFrameSamples > 0 && len(d.buffer) > d.MaxFrameSamples {
		d.logger().Warn("discarding frame", "error", ErrFrameTooLong, "samples", len(d.buffer))
		d.Metrics.FrameDropped(metrics.ReasonTooLong)
		d.Reset()
	}
	return nil, false
}

func (d *Detector) complete() []float64 {
	frame := d.buffer
	d.buffer = nil
	d.body = 0
	// the next start key may begin in the last chunk of this frame
	d.recent = append([]float64(nil), frame[max(0, len(frame)-d.Lookback()):]...)
	d.setState(Idle)
	d.logger().Info("end key detected, frame complete", "samples", len(frame))
	d.Metrics.FrameDetected()
	return frame
}

// Run pulls chunks from src until ctx is done or src fails. Complete frames
// are handed to frames without blocking; a frame that does not fit is
// dropped.
func (d *Detector) Run(ctx context.Context, src device.Source, frames chan<- []float64) error {
	defer d.Reset()
	for {
		chunk, err := src.Read(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("failed to read audio: %w", err)
		}

		frame, ok := d.Update(chunk)
		if !ok {
			continue
		}
		select {
		case frames <- frame:
		default:
			d.logger().Warn("frame buffer full, dropping frame", "samples", len(frame))
			d.Metrics.FrameDropped(metrics.ReasonBufferFull)
		}
	}
}
