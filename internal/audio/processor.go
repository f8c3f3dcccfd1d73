package audio

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/dooshek/micscope/internal/dsp"
	"github.com/dooshek/micscope/internal/pcm"
	"github.com/dooshek/micscope/internal/types"
)

// ErrTuningOutOfRange is returned for cutoff or scaling values outside their limits
var ErrTuningOutOfRange = errors.New("tuning value out of range")

// Tuning is the live-adjustable part of the processing chain
type Tuning struct {
	CutoffHz         float64 `json:"cutoff_hz"`
	AmplitudeScaling float64 `json:"amplitude_scaling"`
}

// Processor turns one raw PCM block into one amplitude reading:
// decode, normalize, high-pass, peak, scale.
type Processor struct {
	filter  *dsp.HighPass
	scaling atomic.Uint64
}

// NewProcessor builds the chain for sampleRate with the given initial tuning.
func NewProcessor(sampleRate int, tuning Tuning, retainFilterState bool) (*Processor, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	p := &Processor{
		filter: dsp.NewHighPass(float64(sampleRate), 0, retainFilterState),
	}
	if err := p.SetCutoff(tuning.CutoffHz); err != nil {
		return nil, err
	}
	if err := p.SetAmplitudeScaling(tuning.AmplitudeScaling); err != nil {
		return nil, err
	}
	return p, nil
}

// Process reduces block to a scaled peak amplitude. A malformed block returns an
// error before the filter runs, so the filter state is left untouched.
func (p *Processor) Process(block []byte) (float64, error) {
	samples, err := pcm.DecodeNormalized(block)
	if err != nil {
		return 0, fmt.Errorf("failed to decode block: %w", err)
	}
	filtered := p.filter.Process(samples)
	return dsp.Amplitude(filtered, p.AmplitudeScaling()), nil
}

// Reset clears filter state before a new recording session.
func (p *Processor) Reset() {
	p.filter.Reset()
}

// SetCutoff changes the high-pass cutoff (0 disables) for the next block.
func (p *Processor) SetCutoff(hz float64) error {
	if math.IsNaN(hz) || hz < 0 || hz > types.MaxCutoffHz {
		return fmt.Errorf("%w: cutoff %v Hz not in [0, %v]", ErrTuningOutOfRange, hz, types.MaxCutoffHz)
	}
	p.filter.SetCutoff(hz)
	return nil
}

// SetAmplitudeScaling changes the scaling percentage for the next block.
func (p *Processor) SetAmplitudeScaling(percent float64) error {
	if math.IsNaN(percent) || percent < 0 || percent > types.MaxAmplitudeScaling {
		return fmt.Errorf("%w: scaling %v%% not in [0, %v]", ErrTuningOutOfRange, percent, types.MaxAmplitudeScaling)
	}
	p.scaling.Store(math.Float64bits(percent))
	return nil
}

func (p *Processor) AmplitudeScaling() float64 {
	return math.Float64frombits(p.scaling.Load())
}

// Tuning returns the current cutoff and scaling.
func (p *Processor) Tuning() Tuning {
	return Tuning{
		CutoffHz:         p.filter.Cutoff(),
		AmplitudeScaling: p.AmplitudeScaling(),
	}
}
