// Package dsp holds the sample-block transforms applied between decoding and charting.
package dsp

import (
	"math"
	"sync/atomic"
)

// HighPass is a single-pole RC high-pass filter.
//
// The cutoff may be changed from any goroutine; Process itself must be called
// from a single goroutine since it owns the filter state.
type HighPass struct {
	sampleRate  float64
	cutoff      atomic.Uint64 // math.Float64bits of the cutoff in Hz
	retainState bool

	// state carried between blocks
	primed  bool
	prevIn  float64
	prevOut float64
}

// NewHighPass creates a filter for the given sample rate. A cutoff <= 0 disables
// filtering. With retainState the last input/output pair of a block seeds the
// next block; otherwise every block restarts at out[0] = in[0].
func NewHighPass(sampleRateHz, cutoffHz float64, retainState bool) *HighPass {
	hp := &HighPass{
		sampleRate:  sampleRateHz,
		retainState: retainState,
	}
	hp.SetCutoff(cutoffHz)
	return hp
}

// SetCutoff changes the cutoff frequency; it applies to the next processed block.
func (hp *HighPass) SetCutoff(hz float64) {
	hp.cutoff.Store(math.Float64bits(hz))
}

// Cutoff returns the current cutoff frequency in Hz.
func (hp *HighPass) Cutoff() float64 {
	return math.Float64frombits(hp.cutoff.Load())
}

// RetainsState reports whether state carries over between blocks.
func (hp *HighPass) RetainsState() bool {
	return hp.retainState
}

// Alpha returns the smoothing coefficient for the current cutoff, or 0 when disabled.
func (hp *HighPass) Alpha() float64 {
	cutoff := hp.Cutoff()
	if cutoff <= 0 || hp.sampleRate <= 0 {
		return 0
	}
	rc := 1.0 / (2 * math.Pi * cutoff)
	dt := 1.0 / hp.sampleRate
	return rc / (rc + dt)
}

// Reset drops carried state so the next block starts fresh.
func (hp *HighPass) Reset() {
	hp.primed = false
	hp.prevIn = 0
	hp.prevOut = 0
}

// Process filters one block. A disabled filter returns input itself.
func (hp *HighPass) Process(input []float64) []float64 {
	alpha := hp.Alpha()
	if alpha == 0 {
		hp.Reset()
		return input
	}
	if len(input) == 0 {
		return input
	}

	output := make([]float64, len(input))
	if hp.retainState && hp.primed {
		output[0] = alpha * (hp.prevOut + input[0] - hp.prevIn)
	} else {
		output[0] = input[0]
	}

	for i := 1; i < len(input); i++ {
		output[i] = alpha * (output[i-1] + input[i] - input[i-1])
	}

	last := len(input) - 1
	hp.prevIn = input[last]
	hp.prevOut = output[last]
	hp.primed = true

	return output
}
