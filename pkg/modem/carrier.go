package modem

import "math"

type CarrierConfig struct {
	Amplitude  float64
	Freq       float64
	Phase      float64
	SampleRate float64
	Size       int
}

func (p CarrierConfig) New() []float64 {
	signal := make([]float64, p.Size)
	for i := 0; i < p.Size; i++ {
		t := float64(i) / p.SampleRate
		signal[i] = p.Amplitude * math.Cos(2*math.Pi*p.Freq*t+p.Phase)
	}
	return signal
}

// Tone returns a unit cosine burst of size samples at freq.
func Tone(freq float64, size int, sampleRate int) []float64 {
	return CarrierConfig{
		Amplitude:  1,
		Freq:       freq,
		SampleRate: float64(sampleRate),
		Size:       size,
	}.New()
}

// tones returns one reference burst per symbol, indexed by Symbol.
func tones(cfg ChannelConfig) [4][]float64 {
	var out [4][]float64
	for _, s := range Alphabet {
		out[s] = Tone(s.Frequency(cfg), cfg.SamplesPerSymbol(), cfg.SampleRate)
	}
	return out
}
