package dsp

import "math"

// DefaultAmplitudeScaling leaves the peak untouched.
const DefaultAmplitudeScaling = 100.0

// Amplitude reduces a block to its peak magnitude scaled by scalingPercent/100.
// An empty block yields 0.
func Amplitude(block []float64, scalingPercent float64) float64 {
	var peak float64
	for _, s := range block {
		if v := math.Abs(s); v > peak {
			peak = v
		}
	}
	return peak * scalingPercent / 100
}
