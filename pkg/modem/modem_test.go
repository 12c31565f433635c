package modem

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"golang.org/x/exp/rand"
)

const (
	CARRIER_FREQ = 2000.0
	SAMPLE_RATE  = 48000
	SYMBOL_RATE  = 100
	START_KEY    = "<<"
	END_KEY      = ">>"
)

var testConfig = ChannelConfig{
	CarrierFreq: CARRIER_FREQ,
	SampleRate:  SAMPLE_RATE,
	SymbolRate:  SYMBOL_RATE,
	StartKey:    START_KEY,
	EndKey:      END_KEY,
}

func randomBits(rng *rand.Rand, n int) []bool {
	bits := make([]bool, n)
	for i := range bits {
		bits[i] = rng.Intn(2) == 1
	}
	return bits
}

func TestChannelConfig(t *testing.T) {
	if err := testConfig.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if got := testConfig.SamplesPerSymbol(); got != SAMPLE_RATE/SYMBOL_RATE {
		t.Errorf("SamplesPerSymbol() = %d, want %d", got, SAMPLE_RATE/SYMBOL_RATE)
	}
	if got := testConfig.Spacing(); got != SYMBOL_RATE {
		t.Errorf("Spacing() = %v, want %v", got, SYMBOL_RATE)
	}
	if got := testConfig.SymbolTime(); math.Abs(got-0.01) > 1e-12 {
		t.Errorf("SymbolTime() = %v, want 0.01", got)
	}

	tests := []struct {
		name   string
		modify func(c *ChannelConfig)
	}{
		{"zero symbol rate", func(c *ChannelConfig) { c.SymbolRate = 0 }},
		{"symbol rate above sample rate", func(c *ChannelConfig) { c.SymbolRate = SAMPLE_RATE + 1 }},
		{"tones above nyquist", func(c *ChannelConfig) { c.CarrierFreq = SAMPLE_RATE / 2 }},
		{"negative lowest tone", func(c *ChannelConfig) { c.CarrierFreq = 100 }},
		{"same keys", func(c *ChannelConfig) { c.EndKey = c.StartKey }},
		{"empty key", func(c *ChannelConfig) { c.StartKey = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig
			tt.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestTextToBits(t *testing.T) {
	got := BitString(TextToBits("HI"))
	if got != "0100100001001001" {
		t.Errorf("TextToBits(\"HI\") = %s", got)
	}
	if n := len(TextToBits("é")); n != 16 {
		t.Errorf("two UTF-8 bytes should give 16 bits, got %d", n)
	}
}

func TestTextRoundTrip(t *testing.T) {
	for _, s := range []string{"", "HI", "hello, world", "héllo wörld", "音声 👋"} {
		t.Run(s, func(t *testing.T) {
			got, err := BitsToText(TextToBits(s))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != s {
				t.Errorf("expected %q, got %q", s, got)
			}
		})
	}
}

func TestBitsToTextDropsPartialByte(t *testing.T) {
	bits := append(TextToBits("ok"), true, false, true)
	got, err := BitsToText(bits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("expected %q, got %q", "ok", got)
	}
}

func TestBitsToTextInvalid(t *testing.T) {
	_, err := BitsToText(BytesToBits([]byte{0xff, 0xfe}))
	if !errors.Is(err, ErrInvalidEncoding) {
		t.Errorf("expected ErrInvalidEncoding, got %v", err)
	}
}

func TestParseBits(t *testing.T) {
	bits := ParseBits("1011")
	if !reflect.DeepEqual(bits, []bool{true, false, true, true}) {
		t.Errorf("ParseBits = %v", bits)
	}
	if BitString(bits) != "1011" {
		t.Errorf("BitString = %s", BitString(bits))
	}
}

func TestAlphabet(t *testing.T) {
	tests := []struct {
		b0, b1 bool
		symbol Symbol
		offset float64
	}{
		{true, false, Symbol10, -1.5},
		{true, true, Symbol11, -0.5},
		{false, true, Symbol01, 0.5},
		{false, false, Symbol00, 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.symbol.String(), func(t *testing.T) {
			if s := SymbolFromBits(tt.b0, tt.b1); s != tt.symbol {
				t.Errorf("SymbolFromBits = %v, want %v", s, tt.symbol)
			}
			b0, b1 := tt.symbol.Bits()
			if b0 != tt.b0 || b1 != tt.b1 {
				t.Errorf("Bits() = (%v,%v)", b0, b1)
			}
			want := CARRIER_FREQ + tt.offset*SYMBOL_RATE
			if f := tt.symbol.Frequency(testConfig); f != want {
				t.Errorf("Frequency() = %v, want %v", f, want)
			}
		})
	}
}

func TestModulateLength(t *testing.T) {
	m := NewModulator(testConfig)
	sps := testConfig.SamplesPerSymbol()

	if n := len(m.Modulate(make([]bool, 6))); n != 3*sps {
		t.Errorf("6 bits: expected %d samples, got %d", 3*sps, n)
	}
	odd := []bool{true, false, true}
	if n := len(m.Modulate(odd)); n != 2*sps {
		t.Errorf("3 bits: expected %d samples, got %d", 2*sps, n)
	}
	if !reflect.DeepEqual(odd, []bool{true, false, true}) {
		t.Errorf("Modulate must not modify its input")
	}
	if n := len(m.Modulate(nil)); n != 0 {
		t.Errorf("no bits: expected 0 samples, got %d", n)
	}
}

func TestModulatePadsWithZero(t *testing.T) {
	m := NewModulator(testConfig)
	d := NewDemodulator(testConfig)
	bits := d.Demodulate(m.Modulate([]bool{true, true, true}))
	if !reflect.DeepEqual(bits, []bool{true, true, true, false}) {
		t.Errorf("expected padded bits 1110, got %s", BitString(bits))
	}
}

func TestSymbolRoundTrip(t *testing.T) {
	m := NewModulator(testConfig)
	d := NewDemodulator(testConfig)
	for _, s := range Alphabet {
		t.Run(s.String(), func(t *testing.T) {
			burst := m.ModulateSymbols([]Symbol{s})
			if got := d.Decide(burst); got != s {
				t.Errorf("expected %v, got %v (scores %v)", s, got, d.Scores(burst))
			}
			b0, b1 := s.Bits()
			if got := d.Demodulate(burst); !reflect.DeepEqual(got, []bool{b0, b1}) {
				t.Errorf("expected %v, got %v", []bool{b0, b1}, got)
			}
		})
	}
}

func TestModulateDemodulate(t *testing.T) {
	const EXPECTED_TOTAL_BITS = 1000

	rng := rand.New(rand.NewSource(42))
	inputBits := randomBits(rng, EXPECTED_TOTAL_BITS)

	m := NewModulator(testConfig)
	d := NewDemodulator(testConfig)
	outputBits := d.Demodulate(m.Modulate(inputBits))

	if !reflect.DeepEqual(inputBits, outputBits) {
		t.Errorf("inputBits and outputBits are different")
	}
}

func TestDemodulateDropsPartialWindow(t *testing.T) {
	m := NewModulator(testConfig)
	d := NewDemodulator(testConfig)
	signal := m.Modulate([]bool{false, true, true, false})
	signal = signal[:len(signal)-1]
	if got := d.Demodulate(signal); !reflect.DeepEqual(got, []bool{false, true}) {
		t.Errorf("expected only the first dibit, got %s", BitString(got))
	}
}

func TestDecideTieBreak(t *testing.T) {
	d := NewDemodulator(testConfig)
	silence := make([]float64, testConfig.SamplesPerSymbol())
	if got := d.Decide(silence); got != Symbol10 {
		t.Errorf("silent window should resolve to the first symbol, got %v", got)
	}
	if got := d.Demodulate(silence); !reflect.DeepEqual(got, []bool{true, false}) {
		t.Errorf("expected (1,0) for a silent window, got %s", BitString(got))
	}
}

func TestCorrelate(t *testing.T) {
	got := Correlate([]float64{1, 2, 3, 4}, []float64{1, 1})
	if !reflect.DeepEqual(got, []float64{3, 5, 7}) {
		t.Errorf("Correlate = %v", got)
	}
	if Correlate([]float64{1}, []float64{1, 1}) != nil {
		t.Errorf("a reference longer than the signal must give nil")
	}
}

func TestPeakLag(t *testing.T) {
	tests := []struct {
		name       string
		signal     []float64
		ref        []float64
		normalized bool
		lag        int
		peak       float64
	}{
		{"raw", []float64{1, 2, 3, 4}, []float64{1, 1}, false, 2, 7},
		{"normalized exact copy", []float64{0, 0, 0.2, 0.4, 0}, []float64{1, 2}, true, 2, 1},
		{"normalized silence", []float64{0, 0, 0}, []float64{1, 2}, true, 0, 0},
		{"reference too long", []float64{1}, []float64{1, 1}, false, -1, 0},
		{"empty reference", []float64{1}, nil, true, -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lag, peak := PeakLag(tt.signal, tt.ref, tt.normalized)
			if lag != tt.lag || math.Abs(peak-tt.peak) > 1e-9 {
				t.Errorf("expected lag %d peak %v, got lag %d peak %v", tt.lag, tt.peak, lag, peak)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize([]float64{0.5, -2, 1})
	if !reflect.DeepEqual(got, []float64{0.25, -1, 0.5}) {
		t.Errorf("Normalize = %v", got)
	}
	silence := []float64{0, 0}
	if got := Normalize(silence); !reflect.DeepEqual(got, []float64{0, 0}) {
		t.Errorf("Normalize(silence) = %v", got)
	}
}

func TestInt32Conversion(t *testing.T) {
	got := Int32ToFloat64(Float64ToInt32([]float64{-2, -1, 0, 0.5, 1, 2}))
	want := []float64{-1, -1, 0, 0.5, 1, 1}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("at index %d, expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestLocateFrame(t *testing.T) {
	const (
		NOISE_BEFORE = 1234
		NOISE_AFTER  = 777
		PAYLOAD_BITS = 64
		NOISE_LEVEL  = 0.1
	)

	rng := rand.New(rand.NewSource(7))
	m := NewModulator(testConfig)
	d := NewDemodulator(testConfig)

	startRef := m.Modulate(TextToBits(START_KEY))
	endRef := m.Modulate(TextToBits(END_KEY))
	payloadBits := randomBits(rng, PAYLOAD_BITS)
	payload := m.Modulate(payloadBits)

	var signal []float64
	signal = append(signal, make([]float64, NOISE_BEFORE)...)
	signal = append(signal, startRef...)
	signal = append(signal, payload...)
	signal = append(signal, endRef...)
	signal = append(signal, make([]float64, NOISE_AFTER)...)
	for i := range signal {
		signal[i] += NOISE_LEVEL * rng.NormFloat64()
	}

	start, end, err := d.LocateFrame(signal, startRef, endRef)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantStart := NOISE_BEFORE + len(startRef)
	wantEnd := wantStart + len(payload)
	sps := testConfig.SamplesPerSymbol()
	if abs(start-wantStart) > sps || abs(end-wantEnd) > sps {
		t.Fatalf("expected [%d, %d), got [%d, %d)", wantStart, wantEnd, start, end)
	}

	if got := d.Demodulate(signal[start:end]); !reflect.DeepEqual(got, payloadBits) {
		t.Errorf("payload mismatch:\nwant %s\ngot  %s", BitString(payloadBits), BitString(got))
	}
}

func TestLocateFrameErrors(t *testing.T) {
	m := NewModulator(testConfig)
	d := NewDemodulator(testConfig)
	startRef := m.Modulate(TextToBits(START_KEY))
	endRef := m.Modulate(TextToBits(END_KEY))

	t.Run("signal shorter than reference", func(t *testing.T) {
		_, _, err := d.LocateFrame(startRef[:10], startRef, endRef)
		if !errors.Is(err, ErrNoSyncFound) {
			t.Errorf("expected ErrNoSyncFound, got %v", err)
		}
	})

	t.Run("end before start", func(t *testing.T) {
		signal := append(append([]float64{}, endRef...), startRef...)
		_, _, err := d.LocateFrame(signal, startRef, endRef)
		if !errors.Is(err, ErrNoSyncFound) {
			t.Errorf("expected ErrNoSyncFound, got %v", err)
		}
	})

	t.Run("empty payload", func(t *testing.T) {
		signal := append(append([]float64{}, startRef...), endRef...)
		_, _, err := d.LocateFrame(signal, startRef, endRef)
		if !errors.Is(err, ErrNoSyncFound) {
			t.Errorf("expected ErrNoSyncFound, got %v", err)
		}
	})
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
