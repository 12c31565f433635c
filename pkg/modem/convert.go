package modem

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"gonum.org/v1/gonum/floats"
)

var ErrInvalidEncoding = errors.New("decoded bytes are not valid UTF-8")

// Convert []int32 to []float64
func Int32ToFloat64(input []int32) []float64 {
	output := make([]float64, len(input))
	for i, v := range input {
		output[i] = float64(v) / math.MaxInt32
	}
	return output
}

// Convert []float64 to []int32, clipping to [-1, 1]
func Float64ToInt32(input []float64) []int32 {
	output := make([]int32, len(input))
	for i, v := range input {
		output[i] = int32(math.Max(math.Min(v, 1), -1) * math.MaxInt32)
	}
	return output
}

// Normalize scales samples in place so that the peak amplitude is 1.
// An all-zero signal is left untouched.
func Normalize(samples []float64) []float64 {
	if len(samples) == 0 {
		return samples
	}
	peak := math.Max(floats.Max(samples), -floats.Min(samples))
	if peak == 0 {
		return samples
	}
	floats.Scale(1/peak, samples)
	return samples
}

// BytesToBits expands every byte into 8 bits, most significant bit first.
func BytesToBits(data []byte) []bool {
	bits := make([]bool, 0, 8*len(data))
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			bits = append(bits, (b>>i)&1 == 1)
		}
	}
	return bits
}

// BitsToBytes packs bits MSB first; a trailing group shorter than 8 is dropped.
func BitsToBytes(bits []bool) []byte {
	data := make([]byte, 0, len(bits)/8)
	for i := 0; i+8 <= len(bits); i += 8 {
		var b byte
		for j := 0; j < 8; j++ {
			if bits[i+j] {
				b |= 1 << (7 - j)
			}
		}
		data = append(data, b)
	}
	return data
}

func TextToBits(s string) []bool {
	return BytesToBits([]byte(s))
}

func BitsToText(bits []bool) (string, error) {
	data := BitsToBytes(bits)
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: % x", ErrInvalidEncoding, data)
	}
	return string(data), nil
}

// BitString renders bits as a string of '0' and '1'.
func BitString(bits []bool) string {
	var sb strings.Builder
	for _, b := range bits {
		if b {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// ParseBits is the inverse of BitString; any rune other than '1' is a zero.
func ParseBits(s string) []bool {
	bits := make([]bool, 0, len(s))
	for _, r := range s {
		bits = append(bits, r == '1')
	}
	return bits
}
