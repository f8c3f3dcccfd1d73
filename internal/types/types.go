package types

import "time"

// SourceKind selects where audio blocks come from
type SourceKind string

const (
	SourceMicrophone SourceKind = "microphone"
	SourceWav        SourceKind = "wav"
)

// Tuning limits accepted from the CLI, D-Bus and WebSocket clients
const (
	MaxCutoffHz         = 20000.0
	MaxAmplitudeScaling = 200.0
)

type AudioConfig struct {
	Source       string `yaml:"source"`        // "microphone" or "wav"
	WavPath      string `yaml:"wav_path"`      // file replayed when source is "wav"
	SampleRate   int    `yaml:"sample_rate"`   // Hz, mono 16-bit
	BufferFrames int    `yaml:"buffer_frames"` // samples per read
	StartDelayMs int    `yaml:"start_delay_ms"`
}

type FilterConfig struct {
	CutoffHz    float64 `yaml:"cutoff_hz"`    // 0 disables the high-pass
	RetainState *bool   `yaml:"retain_state"` // carry filter state across blocks
}

type AmplitudeConfig struct {
	Scaling *float64 `yaml:"scaling"` // percent, 0-200; unset means 100
}

type ChartConfig struct {
	MaxValue float64 `yaml:"max_value"`
	DeltaX   float64 `yaml:"delta_x"`
	TSwap    float64 `yaml:"t_swap"`
	TickMs   int     `yaml:"tick_ms"`
	MaxNodes int     `yaml:"max_nodes"`
}

type RenderConfig struct {
	Rescaling       *bool `yaml:"rescaling"`
	Width           int   `yaml:"width"`
	Height          int   `yaml:"height"`
	SnapshotEveryMs int   `yaml:"snapshot_every_ms"` // 0 disables PNG snapshots
}

type StreamConfig struct {
	Addr      string  `yaml:"addr"`       // empty disables the WebSocket server
	FrameRate float64 `yaml:"frame_rate"` // frames per second pushed to clients
}

type DBusConfig struct {
	Enabled          bool    `yaml:"enabled"`
	SignalRatePerSec float64 `yaml:"signal_rate_per_sec"`
}

type Config struct {
	Audio     AudioConfig     `yaml:"audio"`
	Filter    FilterConfig    `yaml:"filter"`
	Amplitude AmplitudeConfig `yaml:"amplitude"`
	Chart     ChartConfig     `yaml:"chart"`
	Render    RenderConfig    `yaml:"render"`
	Stream    StreamConfig    `yaml:"stream"`
	DBus      DBusConfig      `yaml:"dbus"`
}

// DefaultConfig returns the configuration written by the wizard when nothing is chosen
func DefaultConfig() *Config {
	return &Config{
		Audio:     AudioConfig{Source: string(SourceMicrophone)},
		Amplitude: AmplitudeConfig{Scaling: Scaling(100)},
		Stream:    StreamConfig{Addr: "127.0.0.1:8765"},
	}
}

// GetAudioConfig returns audio configuration with defaults
func (c *Config) GetAudioConfig() AudioConfig {
	config := c.Audio
	if config.Source == "" {
		config.Source = string(SourceMicrophone)
	}
	if config.SampleRate == 0 {
		config.SampleRate = 44100
	}
	if config.BufferFrames == 0 {
		// roughly the Android minimum buffer for 44.1 kHz mono PCM16
		config.BufferFrames = 1792
	}
	return config
}

// GetFilterConfig returns filter configuration with defaults
func (c *Config) GetFilterConfig() FilterConfig {
	config := c.Filter
	if config.RetainState == nil {
		retain := true
		config.RetainState = &retain
	}
	return config
}

// Scaling returns percent as an explicit amplitude scaling value
func Scaling(percent float64) *float64 {
	return &percent
}

// GetAmplitudeScaling returns the scaling percentage, defaulting to 100 when unset.
// An explicit 0 is kept.
func (c *Config) GetAmplitudeScaling() float64 {
	if c.Amplitude.Scaling == nil {
		return 100
	}
	return *c.Amplitude.Scaling
}

// GetChartConfig returns chart configuration with defaults
func (c *Config) GetChartConfig() ChartConfig {
	config := c.Chart
	if config.MaxValue == 0 {
		config.MaxValue = 1.0
	}
	if config.DeltaX == 0 {
		config.DeltaX = 7
	}
	if config.TSwap == 0 {
		config.TSwap = 2
	}
	if config.TickMs == 0 {
		config.TickMs = 16
	}
	return config
}

// TickInterval returns the chart animation period
func (cc ChartConfig) TickInterval() time.Duration {
	return time.Duration(cc.TickMs) * time.Millisecond
}

// GetRenderConfig returns render configuration with defaults
func (c *Config) GetRenderConfig() RenderConfig {
	config := c.Render
	if config.Rescaling == nil {
		rescaling := true
		config.Rescaling = &rescaling
	}
	if config.Width == 0 {
		config.Width = 800
	}
	if config.Height == 0 {
		config.Height = 400
	}
	return config
}

// GetStreamConfig returns WebSocket configuration with defaults
func (c *Config) GetStreamConfig() StreamConfig {
	config := c.Stream
	if config.FrameRate == 0 {
		config.FrameRate = 30
	}
	return config
}

// GetDBusConfig returns D-Bus configuration with defaults
func (c *Config) GetDBusConfig() DBusConfig {
	config := c.DBus
	if config.SignalRatePerSec == 0 {
		config.SignalRatePerSec = 10
	}
	return config
}
