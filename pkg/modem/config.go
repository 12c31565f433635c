package modem

import (
	"errors"
	"fmt"
)

// ChannelConfig describes the acoustic channel shared by both ends of the link.
// It is built once at startup and never mutated afterwards.
type ChannelConfig struct {
	CarrierFreq float64 // fc, Hz
	SampleRate  int     // fs, Hz
	SymbolRate  int     // R, symbols per second
	ToneSpacing float64 // Δf, Hz; zero means SymbolRate

	StartKey string // delimiter sent before the payload
	EndKey   string // delimiter sent after the payload
}

func (c ChannelConfig) SymbolTime() float64 {
	return 1 / float64(c.SymbolRate)
}

func (c ChannelConfig) SamplesPerSymbol() int {
	if c.SymbolRate <= 0 {
		return 0
	}
	return c.SampleRate / c.SymbolRate
}

func (c ChannelConfig) Spacing() float64 {
	if c.ToneSpacing == 0 {
		return float64(c.SymbolRate)
	}
	return c.ToneSpacing
}

func (c ChannelConfig) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate must be positive, got %d", c.SampleRate))
	}
	if c.SymbolRate <= 0 {
		errs = append(errs, fmt.Errorf("symbol rate must be positive, got %d", c.SymbolRate))
	} else if c.SamplesPerSymbol() < 1 {
		errs = append(errs, fmt.Errorf("symbol rate %d exceeds sample rate %d", c.SymbolRate, c.SampleRate))
	}
	if c.CarrierFreq <= 0 {
		errs = append(errs, fmt.Errorf("carrier frequency must be positive, got %v", c.CarrierFreq))
	}
	if c.ToneSpacing < 0 {
		errs = append(errs, fmt.Errorf("tone spacing must not be negative, got %v", c.ToneSpacing))
	}
	if c.CarrierFreq-1.5*c.Spacing() <= 0 {
		errs = append(errs, fmt.Errorf("lowest tone %.1f Hz is not positive", c.CarrierFreq-1.5*c.Spacing()))
	}
	if c.SampleRate > 0 && c.CarrierFreq+1.5*c.Spacing() >= float64(c.SampleRate)/2 {
		errs = append(errs, fmt.Errorf("highest tone %.1f Hz is above the Nyquist frequency", c.CarrierFreq+1.5*c.Spacing()))
	}
	if c.StartKey == "" || c.EndKey == "" {
		errs = append(errs, errors.New("start and end keys must not be empty"))
	} else if c.StartKey == c.EndKey {
		errs = append(errs, errors.New("start and end keys must differ"))
	}
	return errors.Join(errs...)
}
