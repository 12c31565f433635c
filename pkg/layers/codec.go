package layers

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"Aetherlink/pkg/ecc"
	"Aetherlink/pkg/metrics"
	"Aetherlink/pkg/modem"
)

var ErrEmptyPayload = errors.New("empty payload")

// Encoder turns text into the waveform of one frame: start key, payload,
// end key, each optionally protected by the ECC.
type Encoder struct {
	Modulator     *modem.Modulator
	EncodeKeys    bool
	EncodePayload bool
}

func NewEncoder(cfg modem.ChannelConfig, encodeKeys, encodePayload bool) *Encoder {
	return &Encoder{
		Modulator:     modem.NewModulator(cfg),
		EncodeKeys:    encodeKeys,
		EncodePayload: encodePayload,
	}
}

func (e *Encoder) bits(text string, protect bool) []bool {
	bits := modem.TextToBits(text)
	if protect {
		return ecc.Encode(bits)
	}
	return bits
}

// StartKeyWave is the start delimiter exactly as transmitted.
func (e *Encoder) StartKeyWave() []float64 {
	return e.Modulator.Modulate(e.bits(e.Modulator.Config.StartKey, e.EncodeKeys))
}

// EndKeyWave is the end delimiter exactly as transmitted.
func (e *Encoder) EndKeyWave() []float64 {
	return e.Modulator.Modulate(e.bits(e.Modulator.Config.EndKey, e.EncodeKeys))
}

// Encode returns the frame for text. A frame without payload could not be
// located by the receiver, so empty text is rejected.
func (e *Encoder) Encode(text string) ([]float64, error) {
	if text == "" {
		return nil, ErrEmptyPayload
	}
	payload := e.Modulator.Modulate(e.bits(text, e.EncodePayload))
	start, end := e.StartKeyWave(), e.EndKeyWave()

	frame := make([]float64, 0, len(start)+len(payload)+len(end))
	frame = append(frame, start...)
	frame = append(frame, payload...)
	frame = append(frame, end...)
	return frame, nil
}

// Message is one decoded frame.
type Message struct {
	Text       string
	Report     ecc.Report
	ReceivedAt time.Time
}

// Decoder recovers the text of a frame buffer captured by the Detector or
// read from a file.
type Decoder struct {
	Demodulator   *modem.Demodulator
	Keys          *Encoder // regenerates the delimiter references
	EncodePayload bool
	Metrics       *metrics.Metrics
	Logger        *slog.Logger

	once             sync.Once
	startRef, endRef []float64
}

func NewDecoder(cfg modem.ChannelConfig, encodeKeys, encodePayload bool) *Decoder {
	return &Decoder{
		Demodulator:   modem.NewDemodulator(cfg),
		Keys:          NewEncoder(cfg, encodeKeys, encodePayload),
		EncodePayload: encodePayload,
	}
}

func (d *Decoder) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default().With("component", "decoder")
}

// Decode locates the payload between the delimiters of frame and returns
// its text. Uncorrectable ECC blocks are counted and logged; they do not
// fail the decode.
func (d *Decoder) Decode(frame []float64) (Message, error) {
	d.once.Do(func() {
		d.startRef = d.Keys.StartKeyWave()
		d.endRef = d.Keys.EndKeyWave()
	})

	start, end, err := d.Demodulator.LocateFrame(frame, d.startRef, d.endRef)
	if err != nil {
		d.Metrics.DecodeFailed(metrics.ReasonNoSync)
		return Message{}, fmt.Errorf("failed to locate frame: %w", err)
	}

	bits := d.Demodulator.Demodulate(frame[start:end])

	var report ecc.Report
	if d.EncodePayload {
		bits, report = ecc.Decode(bits)
		d.Metrics.ECCBlocks(report.Corrected, report.Uncorrectable)
		if err := report.Err(); err != nil {
			d.logger().Warn("payload decoded with uncorrectable blocks", "error", err)
		}
	}

	text, err := modem.BitsToText(bits)
	if err != nil {
		d.Metrics.DecodeFailed(metrics.ReasonInvalidUTF8)
		return Message{Report: report}, fmt.Errorf("failed to decode payload: %w", err)
	}

	d.Metrics.FrameDecoded()
	return Message{Text: text, Report: report, ReceivedAt: time.Now()}, nil
}
