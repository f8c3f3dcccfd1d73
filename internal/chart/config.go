package chart

import "math"

// Config fixes the geometry of the chart window. It is copied into the
// NodeManager at construction and never changes afterwards.
type Config struct {
	MaxX     float64 // right edge of the visible area
	MaxY     float64 // height of the normalized space
	MaxValue float64 // expected measurement ceiling
	DeltaX   float64 // scroll speed, x units per second
	TSwap    float64 // offset beyond MaxX where new nodes enter
	SettledX float64 // nodes at or beyond this x feed the scale bounds

	// MaxNodes caps the window length. Zero derives a cap from the geometry.
	MaxNodes int
}

// ingestRateHint is the highest block rate the derived node cap allows for.
const ingestRateHint = 50

// DefaultConfig returns the geometry used by the scope.
func DefaultConfig() Config {
	return Config{
		MaxX:     100,
		MaxY:     100,
		MaxValue: 1.0,
		DeltaX:   7,
		TSwap:    2,
		SettledX: 90,
	}
}

// SwapX is the x where a fresh node enters the window.
func (c Config) SwapX() float64 {
	return c.MaxX + c.TSwap
}

// SentinelX is the x of the never-scrolled right edge anchor.
func (c Config) SentinelX() float64 {
	return c.MaxX + c.TSwap + 100
}

// RetireX is the x at or below which nodes are removed.
func (c Config) RetireX() float64 {
	return -(c.TSwap + c.DeltaX)
}

// NodeCap returns the enforced maximum window length.
func (c Config) NodeCap() int {
	if c.MaxNodes > 0 {
		return c.MaxNodes
	}
	if c.DeltaX <= 0 {
		return 2 * 1024
	}
	seconds := math.Ceil(c.SentinelX() / c.DeltaX)
	return 2 * int(seconds) * ingestRateHint
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxX == 0 {
		c.MaxX = d.MaxX
	}
	if c.MaxY == 0 {
		c.MaxY = d.MaxY
	}
	if c.MaxValue == 0 {
		c.MaxValue = d.MaxValue
	}
	if c.DeltaX == 0 {
		c.DeltaX = d.DeltaX
	}
	if c.TSwap == 0 {
		c.TSwap = d.TSwap
	}
	if c.SettledX == 0 {
		c.SettledX = d.SettledX
	}
	return c
}
