// Package pcm converts raw little-endian 16-bit PCM buffers to normalized samples and back.
package pcm

import (
	"errors"
	"fmt"
	"math"
)

// Scale is the divisor mapping int16 samples onto [-1, 1].
const Scale = 32768.0

var (
	// ErrEmptyBuffer is returned when a zero-length buffer is decoded
	ErrEmptyBuffer = errors.New("pcm buffer is empty")

	// ErrOddLength is returned when a buffer does not hold whole 16-bit samples
	ErrOddLength = errors.New("pcm buffer has odd length")
)

// Decode combines byte pairs (lo | hi<<8) into signed 16-bit samples.
func Decode(buf []byte) ([]int16, error) {
	if len(buf) == 0 {
		return nil, ErrEmptyBuffer
	}
	if len(buf)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddLength, len(buf))
	}

	samples := make([]int16, len(buf)/2)
	for i := range samples {
		samples[i] = int16(buf[2*i]) | int16(buf[2*i+1])<<8
	}
	return samples, nil
}

// Normalize maps int16 samples onto [-1, 1].
func Normalize(samples []int16) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s) / Scale
	}
	return out
}

// DecodeNormalized decodes buf and normalizes the result in one pass.
func DecodeNormalized(buf []byte) ([]float64, error) {
	samples, err := Decode(buf)
	if err != nil {
		return nil, err
	}
	return Normalize(samples), nil
}

// Encode is the inverse of DecodeNormalized. Values outside [-1, 1) are clamped
// to the int16 range.
func Encode(samples []float64) []byte {
	buf := make([]byte, 2*len(samples))
	for i, v := range samples {
		s := math.Round(v * Scale)
		if s > math.MaxInt16 {
			s = math.MaxInt16
		} else if s < math.MinInt16 {
			s = math.MinInt16
		}
		u := uint16(int16(s))
		buf[2*i] = byte(u)
		buf[2*i+1] = byte(u >> 8)
	}
	return buf
}
