package layers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"Aetherlink/pkg/async"
	"Aetherlink/pkg/device"
	"Aetherlink/pkg/metrics"
	"Aetherlink/pkg/modem"
)

var (
	ErrTransmitBusy = errors.New("a transmission is already in progress")
	ErrLayerClosed  = errors.New("physical layer closed")
	ErrNotOpen      = errors.New("physical layer not open")
)

// Result is one decode attempt of a detected frame.
type Result struct {
	Message Message
	Err     error
}

// PhysicalLayer transmits text frames on a Sink and decodes the frames the
// Detector finds on a Source.
type PhysicalLayer struct {
	Source   device.Source
	Sink     device.Sink
	Encoder  *Encoder
	Decoder  *Decoder
	Detector *Detector
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	FrameBufferSize  int           // frames waiting for the decode worker
	OutputBufferSize int           // results waiting for Receive
	TransmitGuard    time.Duration // receive stays gated this long after playback

	transmitting atomic.Bool
	frameStarted async.Signal[struct{}]

	mu     sync.Mutex
	output chan Result
	cancel context.CancelFunc
	group  *errgroup.Group
	err    error
}

func (p *PhysicalLayer) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default().With("component", "physical")
}

// Open starts the detector loop and the decode worker. They run until
// Close is called, ctx is cancelled, or the source fails.
func (p *PhysicalLayer) Open(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.group != nil {
		return errors.New("physical layer already open")
	}

	if p.Detector.Gate == nil {
		p.Detector.Gate = p.transmitting.Load
	}
	onStart := p.Detector.OnStart
	p.Detector.OnStart = func() {
		if onStart != nil {
			onStart()
		}
		p.frameStarted.Notify()
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.group, ctx = errgroup.WithContext(ctx)
	p.output = make(chan Result, p.OutputBufferSize)
	frames := make(chan []float64, max(p.FrameBufferSize, 1))

	p.group.Go(func() error {
		defer close(frames)
		err := p.Detector.Run(ctx, p.Source, frames)
		if ctx.Err() != nil {
			return nil
		}
		p.logger().Error("detector stopped", "error", err)
		return err
	})

	p.group.Go(func() error {
		defer close(p.output)
		for frame := range frames {
			msg, err := p.Decoder.Decode(frame)
			if err != nil {
				p.logger().Warn("failed to decode frame", "error", err)
			} else {
				p.logger().Info("frame decoded", "message", msg.Text, "corrected", msg.Report.Corrected)
			}
			select {
			case p.output <- Result{Message: msg, Err: err}:
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	})

	p.logger().Info("physical layer open")
	return nil
}

// Send plays the frame for text and blocks until playback and the transmit
// guard are over. Only one transmission may be in progress.
func (p *PhysicalLayer) Send(ctx context.Context, text string) error {
	if !p.transmitting.CompareAndSwap(false, true) {
		p.Metrics.Transmission(metrics.ResultBusy)
		return ErrTransmitBusy
	}
	defer p.transmitting.Store(false)

	if err := p.send(ctx, text); err != nil {
		p.Metrics.Transmission(metrics.ResultError)
		return err
	}
	p.Metrics.Transmission(metrics.ResultOK)
	return nil
}

func (p *PhysicalLayer) send(ctx context.Context, text string) error {
	frame, err := p.Encoder.Encode(text)
	if err != nil {
		return err
	}
	modem.Normalize(frame)

	p.logger().Info("transmitting", "message", text, "samples", len(frame))
	if err := p.Sink.Play(ctx, frame); err != nil {
		return fmt.Errorf("failed to play frame: %w", err)
	}

	if p.TransmitGuard > 0 {
		timer := time.NewTimer(p.TransmitGuard)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *PhysicalLayer) SendAsync(ctx context.Context, text string) <-chan error {
	return async.Promise(func() error {
		return p.Send(ctx, text)
	})
}

// Transmitting reports whether a Send is in progress.
func (p *PhysicalLayer) Transmitting() bool {
	return p.transmitting.Load()
}

// DetectorState reports the state of the frame detector.
func (p *PhysicalLayer) DetectorState() DetectorState {
	return p.Detector.State()
}

// FrameStarted is released the next time a start key is detected.
func (p *PhysicalLayer) FrameStarted() <-chan struct{} {
	return p.frameStarted.Signal()
}

// ReceiveAsync is closed once the layer has stopped.
func (p *PhysicalLayer) ReceiveAsync() <-chan Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.output == nil {
		closed := make(chan Result)
		close(closed)
		return closed
	}
	return p.output
}

// Receive blocks until the next frame has been decoded.
func (p *PhysicalLayer) Receive() Result {
	r, ok := <-p.ReceiveAsync()
	if !ok {
		return Result{Err: ErrLayerClosed}
	}
	return r
}

// Close stops both loops and waits for them.
func (p *PhysicalLayer) Close() error {
	p.mu.Lock()
	cancel, group := p.cancel, p.group
	p.mu.Unlock()
	if group == nil {
		return ErrNotOpen
	}
	cancel()
	return p.Wait()
}

// Wait blocks until both loops have stopped and returns the error that
// stopped them, nil after a cancellation.
func (p *PhysicalLayer) Wait() error {
	p.mu.Lock()
	group := p.group
	p.mu.Unlock()
	if group == nil {
		return ErrNotOpen
	}
	err := group.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil && p.err == nil {
		p.err = err
	}
	return p.err
}

// Err reports the fatal source error, if any, once the layer has stopped.
func (p *PhysicalLayer) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
