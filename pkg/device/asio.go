//go:build windows

package device

import "github.com/xsjk/go-asio"

// ASIO drives one input and one output channel of an ASIO driver.
type ASIO struct {
	DeviceName string
	SampleRate float64
	InChannel  int
	OutChannel int
	device     asio.Device
	started    bool
}

func (a *ASIO) Start(callback func(in, out []int32)) error {
	if a.started {
		return ErrAlreadyStarted
	}
	a.device.Load(a.DeviceName)
	a.device.SetSampleRate(a.SampleRate)
	a.device.Open()
	a.device.Start(func(in, out [][]int32) {
		callback(in[a.InChannel], out[a.OutChannel])
	})
	a.started = true
	return nil
}

func (a *ASIO) Stop() error {
	if !a.started {
		return ErrNotStarted
	}
	a.device.Stop()
	a.device.Close()
	a.device.Unload()
	a.started = false
	return nil
}
