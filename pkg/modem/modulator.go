package modem

import "sync"

type Modem interface {
	Modulate(inputBits []bool) []float64
	Demodulate(inputSignal []float64) []bool
}

type Modulator struct {
	Config ChannelConfig

	once     sync.Once
	carriers [4][]float64
}

func NewModulator(cfg ChannelConfig) *Modulator {
	return &Modulator{Config: cfg}
}

// Modulate maps every dibit of inputBits to its tone burst. An odd number of
// bits is padded with a trailing zero; the padding is not signalled.
func (m *Modulator) Modulate(inputBits []bool) []float64 {
	m.once.Do(func() { m.carriers = tones(m.Config) })

	bits := inputBits
	if len(bits)%2 != 0 {
		bits = append(append(make([]bool, 0, len(bits)+1), bits...), false)
	}

	samplePerSymbol := m.Config.SamplesPerSymbol()
	modulatedData := make([]float64, 0, len(bits)/2*samplePerSymbol)
	for i := 0; i < len(bits); i += 2 {
		modulatedData = append(modulatedData, m.carriers[SymbolFromBits(bits[i], bits[i+1])]...)
	}
	return modulatedData
}

// ModulateSymbols is Modulate for an already grouped symbol sequence.
func (m *Modulator) ModulateSymbols(symbols []Symbol) []float64 {
	bits := make([]bool, 0, 2*len(symbols))
	for _, s := range symbols {
		b0, b1 := s.Bits()
		bits = append(bits, b0, b1)
	}
	return m.Modulate(bits)
}
