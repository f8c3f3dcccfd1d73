package dsp

import (
	"math"
	"testing"
)

const sampleRate = 44100

func sine(freq float64, n int, phase int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i+phase)/sampleRate)
	}
	return out
}

func TestHighPass_DisabledIsIdentity(t *testing.T) {
	for _, cutoff := range []float64{0, -10} {
		hp := NewHighPass(sampleRate, cutoff, true)
		in := []float64{0.1, -0.4, 0.9, 0, -1}
		out := hp.Process(in)
		if len(out) != len(in) {
			t.Fatalf("Expected %d samples, got %d", len(in), len(out))
		}
		for i := range in {
			if out[i] != in[i] {
				t.Errorf("cutoff=%v sample %d: expected %v, got %v", cutoff, i, in[i], out[i])
			}
		}
	}
}

func TestHighPass_LengthAndFirstSample(t *testing.T) {
	hp := NewHighPass(sampleRate, 1000, false)
	for _, n := range []int{1, 2, 17, 1792} {
		in := sine(440, n, 0)
		in[0] = 0.25
		out := hp.Process(in)
		if len(out) != n {
			t.Fatalf("Expected %d samples, got %d", n, len(out))
		}
		if out[0] != in[0] {
			t.Errorf("Per-block reseed: expected out[0]=%v, got %v", in[0], out[0])
		}
	}
}

func TestHighPass_Recurrence(t *testing.T) {
	hp := NewHighPass(sampleRate, 500, false)
	in := []float64{0.5, 0.5, 0.5, -0.5}
	out := hp.Process(in)

	alpha := hp.Alpha()
	expected := make([]float64, len(in))
	expected[0] = in[0]
	for i := 1; i < len(in); i++ {
		expected[i] = alpha * (expected[i-1] + in[i] - in[i-1])
	}
	for i := range expected {
		if math.Abs(out[i]-expected[i]) > 1e-12 {
			t.Errorf("Sample %d: expected %v, got %v", i, expected[i], out[i])
		}
	}

	rc := 1 / (2 * math.Pi * 500)
	dt := 1.0 / sampleRate
	if math.Abs(alpha-rc/(rc+dt)) > 1e-12 {
		t.Errorf("Unexpected alpha %v", alpha)
	}
}

func TestHighPass_RetainedStateMatchesSingleBlock(t *testing.T) {
	signal := sine(300, 1000, 0)

	whole := NewHighPass(sampleRate, 800, true).Process(signal)

	split := NewHighPass(sampleRate, 800, true)
	first := split.Process(signal[:400])
	second := split.Process(signal[400:])
	joined := append(append([]float64{}, first...), second...)

	for i := range whole {
		if math.Abs(whole[i]-joined[i]) > 1e-12 {
			t.Fatalf("Sample %d differs across block boundary: %v vs %v", i, whole[i], joined[i])
		}
	}
}

func TestHighPass_ResetAndLiveCutoff(t *testing.T) {
	hp := NewHighPass(sampleRate, 800, true)
	hp.Process([]float64{0.3, 0.1})

	hp.SetCutoff(0)
	hp.Process([]float64{0.2})
	hp.SetCutoff(800)
	out := hp.Process([]float64{0.7, 0.7})
	if out[0] != 0.7 {
		t.Errorf("Expected fresh state after disabling, got out[0]=%v", out[0])
	}

	hp.Reset()
	out = hp.Process([]float64{-0.2})
	if out[0] != -0.2 {
		t.Errorf("Expected fresh state after Reset, got out[0]=%v", out[0])
	}
	if hp.Cutoff() != 800 {
		t.Errorf("Expected cutoff 800, got %v", hp.Cutoff())
	}
}

func TestHighPass_AttenuatesLowFrequency(t *testing.T) {
	hp := NewHighPass(sampleRate, 2000, true)
	var out []float64
	for block := 0; block < 20; block++ {
		out = hp.Process(sine(50, 1024, block*1024))
	}
	if peak := Amplitude(out, 100); peak > 0.05 {
		t.Errorf("Expected 50 Hz to be attenuated below 0.05, got %v", peak)
	}
}

func TestAmplitude(t *testing.T) {
	tests := []struct {
		name    string
		block   []float64
		scaling float64
		want    float64
	}{
		{"empty", nil, 100, 0},
		{"zeros", []float64{0, 0, 0}, 100, 0},
		{"unit", []float64{1, -1, 1}, 100, 1},
		{"half scaling", []float64{1, -1}, 50, 0.5},
		{"negative peak", []float64{0.2, -0.8, 0.4}, 100, 0.8},
		{"double", []float64{0.25}, 200, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Amplitude(tt.block, tt.scaling); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Amplitude() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAmplitude_MonotonicInScaling(t *testing.T) {
	block := sine(440, 256, 0)
	prev := -1.0
	for scaling := 0.0; scaling <= 200; scaling += 10 {
		got := Amplitude(block, scaling)
		if got < prev {
			t.Fatalf("Amplitude decreased at scaling %v: %v < %v", scaling, got, prev)
		}
		prev = got
	}
}
