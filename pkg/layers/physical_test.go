package layers

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"Aetherlink/pkg/device"
	"Aetherlink/pkg/modem"
)

func newTestPhysicalLayer(src device.Source, sink device.Sink) *PhysicalLayer {
	enc := NewEncoder(testConfig, true, true)
	return &PhysicalLayer{
		Source:           src,
		Sink:             sink,
		Encoder:          enc,
		Decoder:          NewDecoder(testConfig, true, true),
		Detector:         newTestDetector(enc),
		FrameBufferSize:  4,
		OutputBufferSize: 4,
	}
}

func TestPhysicalLayerReceive(t *testing.T) {
	enc := NewEncoder(testConfig, true, true)
	frame, err := enc.Encode("HI")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	src := &sliceSource{chunks: chunked(silence(), frame, silence())}
	physicalLayer := newTestPhysicalLayer(src, &recordingSink{})
	started := physicalLayer.FrameStarted()

	if err := physicalLayer.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	select {
	case r := <-physicalLayer.ReceiveAsync():
		if r.Err != nil {
			t.Fatalf("unexpected error: %v", r.Err)
		}
		if r.Message.Text != "HI" {
			t.Errorf("expected %q, got %q", "HI", r.Message.Text)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no frame received")
	}

	select {
	case <-started:
	default:
		t.Error("FrameStarted was not signalled")
	}

	if err := physicalLayer.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if r := physicalLayer.Receive(); !errors.Is(r.Err, ErrLayerClosed) {
		t.Errorf("expected ErrLayerClosed after Close, got %v", r.Err)
	}
}

func TestPhysicalLayerOverNetwork(t *testing.T) {
	network := device.Network[string]{
		SampleRate: SAMPLE_RATE,
		Config: device.NetworkConfig[string]{
			{In: "quiet", Out: "air"},
			{In: "air", Out: "quiet"},
		},
	}
	nodes := network.Build()
	txStream := device.NewStream(nodes[0], LIVE_CHUNK_SIZE, 16)
	rxStream := device.NewStream(nodes[1], LIVE_CHUNK_SIZE, 16)
	for _, s := range []*device.Stream{txStream, rxStream} {
		if err := s.Open(); err != nil {
			t.Fatalf("Open stream: %v", err)
		}
		defer s.Close()
	}

	tx := newTestPhysicalLayer(txStream, txStream)
	rx := newTestPhysicalLayer(rxStream, rxStream)
	if err := rx.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tx.Send(ctx, "HELLO"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case r := <-rx.ReceiveAsync():
		if r.Err != nil {
			t.Fatalf("unexpected error: %v", r.Err)
		}
		if r.Message.Text != "HELLO" {
			t.Errorf("expected %q, got %q", "HELLO", r.Message.Text)
		}
	case <-ctx.Done():
		t.Fatal("no frame received")
	}
}

func TestPhysicalLayerSourceFailure(t *testing.T) {
	src := &sliceSource{chunks: chunked(silence()), err: device.ErrStreamClosed}
	physicalLayer := newTestPhysicalLayer(src, &recordingSink{})

	if err := physicalLayer.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- physicalLayer.Wait() }()
	select {
	case err := <-done:
		if !errors.Is(err, device.ErrStreamClosed) {
			t.Errorf("expected ErrStreamClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("layer did not stop after the source failed")
	}
	if !errors.Is(physicalLayer.Err(), device.ErrStreamClosed) {
		t.Errorf("Err() = %v", physicalLayer.Err())
	}
}

func TestPhysicalLayerSend(t *testing.T) {
	const TRANSMIT_GUARD = 50 * time.Millisecond

	sink := &recordingSink{}
	physicalLayer := newTestPhysicalLayer(&sliceSource{}, sink)
	physicalLayer.TransmitGuard = TRANSMIT_GUARD

	begin := time.Now()
	if err := physicalLayer.Send(context.Background(), "HI"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if elapsed := time.Since(begin); elapsed < TRANSMIT_GUARD {
		t.Errorf("Send returned after %v, before the transmit guard", elapsed)
	}
	if physicalLayer.Transmitting() {
		t.Error("still transmitting after Send returned")
	}

	want, _ := physicalLayer.Encoder.Encode("HI")
	modem.Normalize(want)
	if len(sink.played) != 1 || !reflect.DeepEqual(sink.played[0], want) {
		t.Errorf("the sink did not play the normalized frame")
	}

	if err := physicalLayer.Send(context.Background(), ""); !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("expected ErrEmptyPayload, got %v", err)
	}
}

func TestPhysicalLayerBusy(t *testing.T) {
	sink := &recordingSink{hold: make(chan struct{}), started: make(chan struct{})}
	physicalLayer := newTestPhysicalLayer(&sliceSource{}, sink)
	if err := physicalLayer.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer physicalLayer.Close()

	first := physicalLayer.SendAsync(context.Background(), "HI")
	<-sink.started

	if !physicalLayer.Transmitting() || !physicalLayer.Detector.Gate() {
		t.Error("receive must be gated while transmitting")
	}
	if err := physicalLayer.Send(context.Background(), "HO"); !errors.Is(err, ErrTransmitBusy) {
		t.Errorf("expected ErrTransmitBusy, got %v", err)
	}

	close(sink.hold)
	if err := <-first; err != nil {
		t.Errorf("first Send: %v", err)
	}
	if physicalLayer.Detector.Gate() {
		t.Error("receive still gated after transmitting")
	}
}

func TestPhysicalLayerSendCancelled(t *testing.T) {
	sink := &recordingSink{hold: make(chan struct{})}
	physicalLayer := newTestPhysicalLayer(&sliceSource{}, sink)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := physicalLayer.Send(ctx, "HI"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
	if physicalLayer.Transmitting() {
		t.Error("a failed Send must clear the transmit flag")
	}
}

func TestPhysicalLayerNotOpen(t *testing.T) {
	physicalLayer := newTestPhysicalLayer(&sliceSource{}, &recordingSink{})
	if err := physicalLayer.Close(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
	if r := physicalLayer.Receive(); !errors.Is(r.Err, ErrLayerClosed) {
		t.Errorf("expected ErrLayerClosed, got %v", r.Err)
	}
}
