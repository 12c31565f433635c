package utils

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/mjibson/go-dsp/wav"
)

const pcmScale = 32767

// wavHeader is the canonical 44 byte header of a PCM WAV file.
type wavHeader struct {
	// RIFF chunk
	ChunkID   [4]byte // "RIFF"
	ChunkSize uint32  // File size - 8
	Format    [4]byte // "WAVE"

	// fmt sub-chunk
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16

	// data sub-chunk
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// WriteWAV stores samples in [-1, 1] as mono 16 bit PCM. Samples outside
// that range are clipped.
func WriteWAV(filename string, samples []float64, sampleRate int) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create WAV file: %w", err)
	}
	defer file.Close()

	if err := EncodeWAV(file, samples, sampleRate); err != nil {
		return err
	}
	return file.Close()
}

// EncodeWAV is WriteWAV for an arbitrary writer.
func EncodeWAV(w io.Writer, samples []float64, sampleRate int) error {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	dataSize := uint32(len(samples) * channels * bitsPerSample / 8)
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   channels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * bitsPerSample / 8),
		BlockAlign:    channels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("failed to write WAV header: %w", err)
	}

	pcm := make([]int16, len(samples))
	for i, v := range samples {
		pcm[i] = int16(math.Max(math.Min(v, 1), -1) * pcmScale)
	}
	if err := binary.Write(w, binary.LittleEndian, pcm); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}
	return nil
}

// ReadWAV loads a 16 bit PCM or float WAV file and returns its first
// channel scaled to [-1, 1] together with its sample rate.
func ReadWAV(filename string) ([]float64, int, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open WAV file: %w", err)
	}
	defer file.Close()
	return DecodeWAV(file)
}

// DecodeWAV is ReadWAV for an arbitrary reader.
func DecodeWAV(r io.Reader) ([]float64, int, error) {
	w, err := wav.New(r)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse WAV header: %w", err)
	}
	channels := int(w.Header.NumChannels)
	if channels < 1 {
		channels = 1
	}

	// Samples is rounded down to a multiple of 8, so the tail is read one
	// sample at a time until the data chunk is exhausted.
	remaining := w.Samples
	interleaved := make([]float64, 0, remaining)
	for {
		n := 1
		if remaining >= 4096 {
			n = 4096
		}
		data, err := w.ReadSamples(n)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read WAV samples: %w", err)
		}

		switch d := data.(type) {
		case []int16:
			for _, v := range d {
				interleaved = append(interleaved, float64(v)/pcmScale)
			}
		case []float32:
			for _, v := range d {
				interleaved = append(interleaved, float64(v))
			}
		case []uint8:
			for _, v := range d {
				interleaved = append(interleaved, (float64(v)-128)/127)
			}
		default:
			return nil, 0, fmt.Errorf("unsupported WAV sample format %T", data)
		}
		remaining -= n
	}

	samples := make([]float64, 0, len(interleaved)/channels)
	for i := 0; i < len(interleaved); i += channels {
		samples = append(samples, interleaved[i])
	}
	return samples, int(w.Header.SampleRate), nil
}
