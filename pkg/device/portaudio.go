package device

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PortAudio opens a mono duplex stream on the default sound card, or on
// the card called DeviceName.
type PortAudio struct {
	DeviceName string
	SampleRate float64
	BufferSize int // frames per callback, 0 means BufferSize

	stream *portaudio.Stream
}

func (p *PortAudio) Start(callback func(in, out []int32)) error {
	if p.stream != nil {
		return ErrAlreadyStarted
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	framesPerBuffer := p.BufferSize
	if framesPerBuffer == 0 {
		framesPerBuffer = BufferSize
	}

	stream, err := p.open(framesPerBuffer, callback)
	if err != nil {
		portaudio.Terminate()
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	p.stream = stream
	return nil
}

func (p *PortAudio) open(framesPerBuffer int, callback func(in, out []int32)) (*portaudio.Stream, error) {
	if p.DeviceName == "" {
		stream, err := portaudio.OpenDefaultStream(1, 1, p.SampleRate, framesPerBuffer, callback)
		if err != nil {
			return nil, fmt.Errorf("failed to open default audio stream: %w", err)
		}
		return stream, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get device list: %w", err)
	}
	for _, info := range devices {
		if info.Name != p.DeviceName {
			continue
		}
		params := portaudio.StreamParameters{
			Input: portaudio.StreamDeviceParameters{
				Device:   info,
				Channels: 1,
				Latency:  info.DefaultLowInputLatency,
			},
			Output: portaudio.StreamDeviceParameters{
				Device:   info,
				Channels: 1,
				Latency:  info.DefaultLowOutputLatency,
			},
			SampleRate:      p.SampleRate,
			FramesPerBuffer: framesPerBuffer,
		}
		stream, err := portaudio.OpenStream(params, callback)
		if err != nil {
			return nil, fmt.Errorf("failed to open audio stream on %q: %w", p.DeviceName, err)
		}
		return stream, nil
	}
	return nil, fmt.Errorf("audio device %q not found", p.DeviceName)
}

func (p *PortAudio) Stop() error {
	if p.stream == nil {
		return ErrNotStarted
	}
	stream := p.stream
	p.stream = nil

	stopErr := stream.Stop()
	closeErr := stream.Close()
	termErr := portaudio.Terminate()
	if stopErr != nil {
		return fmt.Errorf("failed to stop audio stream: %w", stopErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close audio stream: %w", closeErr)
	}
	return termErr
}

// DeviceNames lists the sound cards PortAudio can see.
func DeviceNames() ([]string, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get device list: %w", err)
	}
	names := make([]string, 0, len(devices))
	for _, info := range devices {
		names = append(names, info.Name)
	}
	return names, nil
}
