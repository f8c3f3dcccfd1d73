package render

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dooshek/micscope/internal/measurement"
	"github.com/fatih/color"
)

const (
	meterThrottle = 25 * time.Millisecond

	// Auto-range: recentMax decay per emit (~40 emits/s)
	// 0.993^40 ≈ 0.75 per second
	meterDecay      = 0.993
	meterNoiseFloor = 0.01 // absolute noise floor (below = silence)
	meterSmoothing  = 0.4  // EMA alpha (higher = more responsive)
	meterWidth      = 40
)

// LevelMeter turns amplitude readings into a smoothed [0,1] level that
// auto-scales to the loudest recent reading.
type LevelMeter struct {
	recentMax float64
	smoothed  float64
	peakSince float64 // max amplitude between emits
	lastEmit  time.Time
	now       func() time.Time
}

func NewLevelMeter() *LevelMeter {
	return &LevelMeter{
		recentMax: meterNoiseFloor,
		now:       time.Now,
	}
}

// Observe folds in one amplitude. It returns a new level at most once per
// throttle interval; ok is false in between.
func (lm *LevelMeter) Observe(amplitude float64) (level float64, ok bool) {
	if amplitude > lm.peakSince {
		lm.peakSince = amplitude
	}

	now := lm.now()
	if now.Sub(lm.lastEmit) < meterThrottle {
		return 0, false
	}
	lm.lastEmit = now

	peak := lm.peakSince
	lm.peakSince = 0

	if peak > lm.recentMax {
		lm.recentMax = peak // instant attack
	} else {
		lm.recentMax *= meterDecay // slow release
	}
	if lm.recentMax < meterNoiseFloor {
		lm.recentMax = meterNoiseFloor
	}

	normalized := 0.0
	if peak > meterNoiseFloor {
		normalized = min(peak/lm.recentMax, 1.0)
	}

	lm.smoothed = meterSmoothing*normalized + (1-meterSmoothing)*lm.smoothed
	return lm.smoothed, true
}

// Bar draws level as a fixed-width text gauge.
func Bar(level float64, width int) string {
	level = max(0, min(level, 1))
	filled := int(level*float64(width) + 0.5)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func barColor(level float64) *color.Color {
	switch {
	case level > 0.85:
		return color.New(color.FgRed)
	case level > 0.6:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgGreen)
	}
}

// RunTerminalMeter redraws a one-line gauge on out for every emitted level
// until ctx is done or ch is closed.
func RunTerminalMeter(ctx context.Context, ch <-chan measurement.Measurement, out io.Writer) {
	lm := NewLevelMeter()
	defer fmt.Fprintln(out)

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			level, emit := lm.Observe(m.Value)
			if !emit {
				continue
			}
			fmt.Fprintf(out, "\r%s %.3f", barColor(level).Sprint(Bar(level, meterWidth)), m.Value)
		}
	}
}
