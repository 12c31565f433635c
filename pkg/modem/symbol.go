package modem

import "fmt"

// Symbol is one of the four tones of the 4-FSK alphabet. The declaration
// order is the alphabet order used to break ties while demodulating.
type Symbol int

const (
	Symbol10 Symbol = iota // (1,0) -> fc - 1.5Δf
	Symbol11               // (1,1) -> fc - 0.5Δf
	Symbol01               // (0,1) -> fc + 0.5Δf
	Symbol00               // (0,0) -> fc + 1.5Δf
)

// Alphabet lists every symbol in alphabet order.
var Alphabet = [4]Symbol{Symbol10, Symbol11, Symbol01, Symbol00}

var symbolBits = [4][2]bool{
	Symbol10: {true, false},
	Symbol11: {true, true},
	Symbol01: {false, true},
	Symbol00: {false, false},
}

var symbolOffsets = [4]float64{
	Symbol10: -1.5,
	Symbol11: -0.5,
	Symbol01: +0.5,
	Symbol00: +1.5,
}

func SymbolFromBits(b0, b1 bool) Symbol {
	switch {
	case b0 && !b1:
		return Symbol10
	case b0 && b1:
		return Symbol11
	case !b0 && b1:
		return Symbol01
	default:
		return Symbol00
	}
}

func (s Symbol) Bits() (bool, bool) {
	b := symbolBits[s]
	return b[0], b[1]
}

// Frequency returns the tone of s relative to the carrier of cfg.
func (s Symbol) Frequency(cfg ChannelConfig) float64 {
	return cfg.CarrierFreq + symbolOffsets[s]*cfg.Spacing()
}

func (s Symbol) String() string {
	b0, b1 := s.Bits()
	return fmt.Sprintf("(%d,%d)", btoi(b0), btoi(b1))
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
