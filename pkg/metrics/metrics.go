package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "aetherlink"

// Drop and failure reasons used as label values.
const (
	ReasonBufferFull  = "buffer_full"
	ReasonTooLong     = "too_long"
	ReasonNoSync      = "no_sync"
	ReasonInvalidUTF8 = "invalid_utf8"
	ResultOK          = "ok"
	ResultError       = "error"
	ResultBusy        = "busy"
)

// Metrics holds the collectors of one link. A nil *Metrics records
// nothing, so every component can run without a registry.
type Metrics struct {
	framesDetected   prometheus.Counter     // Frames emitted by the detector
	framesDecoded    prometheus.Counter     // Frames decoded into text
	decodeFailures   *prometheus.CounterVec // Frames that failed to decode (by reason)
	framesDropped    *prometheus.CounterVec // Frames discarded before decoding (by reason)
	eccCorrected     prometheus.Counter     // ECC blocks with a corrected single error
	eccUncorrectable prometheus.Counter     // ECC blocks with an even number of errors
	transmissions    *prometheus.CounterVec // Transmit attempts (by result)
	detectorState    prometheus.Gauge       // 0 idle, 1 recording
	streamOverruns   prometheus.Counter     // Audio chunks dropped by the stream
}

// New registers the link collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		framesDetected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_detected_total",
			Help:      "Frames delimited by the real-time detector",
		}),
		framesDecoded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_decoded_total",
			Help:      "Frames successfully decoded into text",
		}),
		decodeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Frames that could not be decoded",
		}, []string{"reason"}),
		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames discarded before decoding",
		}, []string{"reason"}),
		eccCorrected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ecc_corrected_blocks_total",
			Help:      "ECC blocks in which a single bit error was corrected",
		}),
		eccUncorrectable: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ecc_uncorrectable_blocks_total",
			Help:      "ECC blocks with a detected but uncorrectable error",
		}),
		transmissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transmissions_total",
			Help:      "Transmit requests",
		}, []string{"result"}),
		detectorState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "detector_recording",
			Help:      "1 while the detector is recording a frame",
		}),
		streamOverruns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_overruns_total",
			Help:      "Captured audio chunks dropped because the detector fell behind",
		}),
	}
}

func (m *Metrics) FrameDetected() {
	if m != nil {
		m.framesDetected.Inc()
	}
}

func (m *Metrics) FrameDecoded() {
	if m != nil {
		m.framesDecoded.Inc()
	}
}

func (m *Metrics) DecodeFailed(reason string) {
	if m != nil {
		m.decodeFailures.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) FrameDropped(reason string) {
	if m != nil {
		m.framesDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) ECCBlocks(corrected, uncorrectable int) {
	if m != nil {
		m.eccCorrected.Add(float64(corrected))
		m.eccUncorrectable.Add(float64(uncorrectable))
	}
}

func (m *Metrics) Transmission(result string) {
	if m != nil {
		m.transmissions.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) DetectorRecording(recording bool) {
	if m != nil {
		if recording {
			m.detectorState.Set(1)
		} else {
			m.detectorState.Set(0)
		}
	}
}

func (m *Metrics) StreamOverruns(n uint64) {
	if m != nil && n > 0 {
		m.streamOverruns.Add(float64(n))
	}
}
