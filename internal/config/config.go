package config

import (
	"errors"
	"fmt"

	"github.com/dooshek/micscope/internal/fileops"
	"github.com/dooshek/micscope/internal/logger"
	"github.com/dooshek/micscope/internal/types"
	"gopkg.in/yaml.v3"
)

const (
	configFilename = "micscope.yaml"
)

// ErrInvalidConfig is returned when a loaded config holds out of range values
var ErrInvalidConfig = errors.New("invalid configuration")

func LoadConfig() (*types.Config, error) {
	fileOps, err := fileops.NewDefaultFileOps()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file operations: %w", err)
	}
	return LoadConfigFrom(fileOps)
}

// LoadConfigFrom reads the config file through fileOps. A missing file yields (nil, nil).
func LoadConfigFrom(fileOps fileops.FileOps) (*types.Config, error) {
	if err := fileOps.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	data, err := fileOps.LoadConfig(configFilename)
	if err != nil {
		if errors.Is(err, fileops.ErrConfigNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config types.Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the tuning ranges accepted at runtime
func Validate(config *types.Config) error {
	if c := config.Filter.CutoffHz; c < 0 || c > types.MaxCutoffHz {
		return fmt.Errorf("%w: cutoff_hz %v outside 0-%v", ErrInvalidConfig, c, types.MaxCutoffHz)
	}
	if s := config.Amplitude.Scaling; s != nil && (*s < 0 || *s > types.MaxAmplitudeScaling) {
		return fmt.Errorf("%w: amplitude scaling %v outside 0-%v", ErrInvalidConfig, *s, types.MaxAmplitudeScaling)
	}
	switch types.SourceKind(config.Audio.Source) {
	case "", types.SourceMicrophone:
	case types.SourceWav:
		if config.Audio.WavPath == "" {
			return fmt.Errorf("%w: wav source needs audio.wav_path", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown audio source %q", ErrInvalidConfig, config.Audio.Source)
	}
	if config.Chart.TickMs < 0 || config.Audio.BufferFrames < 0 {
		return fmt.Errorf("%w: negative timing values", ErrInvalidConfig)
	}
	return nil
}

func SaveConfig(config *types.Config) error {
	fileOps, err := fileops.NewDefaultFileOps()
	if err != nil {
		return fmt.Errorf("failed to initialize file operations: %w", err)
	}
	return SaveConfigTo(fileOps, config)
}

// SaveConfigTo merges config into any existing file and writes it back
func SaveConfigTo(fileOps fileops.FileOps, config *types.Config) error {
	existingConfig, err := LoadConfigFrom(fileOps)
	if err != nil {
		// Just log the error but continue with new config
		logger.Warnf("Failed to load existing config: %v", err)
	} else if existingConfig != nil {
		mergeConfigs(existingConfig, config)
		config = existingConfig
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := fileOps.SaveConfig(configFilename, data); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// mergeConfigs merges the sourceConfig into targetConfig, preserving existing values in targetConfig
// that are not explicitly set in sourceConfig
func mergeConfigs(targetConfig, sourceConfig *types.Config) {
	if sourceConfig.Audio.Source != "" {
		targetConfig.Audio.Source = sourceConfig.Audio.Source
	}
	if sourceConfig.Audio.WavPath != "" {
		targetConfig.Audio.WavPath = sourceConfig.Audio.WavPath
	}
	if sourceConfig.Audio.SampleRate != 0 {
		targetConfig.Audio.SampleRate = sourceConfig.Audio.SampleRate
	}
	if sourceConfig.Audio.BufferFrames != 0 {
		targetConfig.Audio.BufferFrames = sourceConfig.Audio.BufferFrames
	}

	// A zero cutoff is meaningful (filter off), so the wizard value always wins
	targetConfig.Filter.CutoffHz = sourceConfig.Filter.CutoffHz
	if sourceConfig.Filter.RetainState != nil {
		targetConfig.Filter.RetainState = sourceConfig.Filter.RetainState
	}

	if sourceConfig.Amplitude.Scaling != nil {
		targetConfig.Amplitude.Scaling = sourceConfig.Amplitude.Scaling
	}

	if sourceConfig.Render.Rescaling != nil {
		targetConfig.Render.Rescaling = sourceConfig.Render.Rescaling
	}
	if sourceConfig.Render.SnapshotEveryMs != 0 {
		targetConfig.Render.SnapshotEveryMs = sourceConfig.Render.SnapshotEveryMs
	}

	if sourceConfig.Stream.Addr != "" {
		targetConfig.Stream.Addr = sourceConfig.Stream.Addr
	}
	if sourceConfig.DBus.Enabled {
		targetConfig.DBus.Enabled = true
	}
}
