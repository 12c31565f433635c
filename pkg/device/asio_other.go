//go:build !windows

package device

import "fmt"

// ASIO is only available on Windows.
type ASIO struct {
	DeviceName string
	SampleRate float64
	InChannel  int
	OutChannel int
}

func (a *ASIO) Start(callback func(in, out []int32)) error {
	return fmt.Errorf("asio %q: %w", a.DeviceName, ErrUnsupported)
}

func (a *ASIO) Stop() error {
	return ErrNotStarted
}
