package modem

import (
	"errors"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/floats"
)

var ErrNoSyncFound = errors.New("no frame delimiters found")

type Demodulator struct {
	Config ChannelConfig

	once       sync.Once
	references [4][]float64
}

func NewDemodulator(cfg ChannelConfig) *Demodulator {
	return &Demodulator{Config: cfg}
}

// LocateFrame finds the payload between the start and end delimiters of
// signal. start is the first sample after the start delimiter, end is the
// first sample of the end delimiter. Ties resolve to the earliest lag.
func (d *Demodulator) LocateFrame(signal, startRef, endRef []float64) (start, end int, err error) {
	if len(startRef) == 0 || len(endRef) == 0 {
		return 0, 0, fmt.Errorf("%w: empty delimiter reference", ErrNoSyncFound)
	}
	if len(startRef) > len(signal) || len(endRef) > len(signal) {
		return 0, 0, fmt.Errorf("%w: signal of %d samples is shorter than a delimiter", ErrNoSyncFound, len(signal))
	}

	start = floats.MaxIdx(Correlate(signal, startRef)) + len(startRef)
	end = floats.MaxIdx(Correlate(signal, endRef))
	debugLog("locate frame", "start", start, "end", end, "signal", len(signal))

	if start >= end {
		return start, end, fmt.Errorf("%w: start %d is not before end %d", ErrNoSyncFound, start, end)
	}
	return start, end, nil
}

// Scores returns the similarity of window with every reference tone, indexed
// by Symbol.
func (d *Demodulator) Scores(window []float64) [4]float64 {
	d.once.Do(func() { d.references = tones(d.Config) })

	var scores [4]float64
	for _, s := range Alphabet {
		scores[s] = normalizedDot(window, d.references[s])
	}
	return scores
}

// Decide picks the best scoring symbol for one symbol-length window. Ties,
// including a silent window, go to the earliest symbol in Alphabet.
func (d *Demodulator) Decide(window []float64) Symbol {
	scores := d.Scores(window)
	return Symbol(floats.MaxIdx(scores[:]))
}

// Demodulate classifies consecutive non-overlapping symbol windows of
// inputSignal. A trailing partial window is dropped.
func (d *Demodulator) Demodulate(inputSignal []float64) []bool {
	samplePerSymbol := d.Config.SamplesPerSymbol()
	if samplePerSymbol < 1 {
		return nil
	}

	demodulatedBits := make([]bool, 0, 2*(len(inputSignal)/samplePerSymbol))
	for i := 0; i+samplePerSymbol <= len(inputSignal); i += samplePerSymbol {
		b0, b1 := d.Decide(inputSignal[i : i+samplePerSymbol]).Bits()
		demodulatedBits = append(demodulatedBits, b0, b1)
	}
	return demodulatedBits
}
