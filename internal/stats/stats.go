package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dooshek/micscope/internal/logger"
	"github.com/dustin/go-humanize"
)

// Totals accumulates every finished capture session
type Totals struct {
	Sessions      int       `json:"sessions"`
	TotalSeconds  float64   `json:"total_seconds"`
	Blocks        uint64    `json:"blocks"`
	DroppedBlocks uint64    `json:"dropped_blocks"`
	PeakAmplitude float64   `json:"peak_amplitude"`
	LastSession   time.Time `json:"last_session"`
}

// Session counts blocks of the capture session in progress
type Session struct {
	Started       time.Time `json:"started"`
	Blocks        uint64    `json:"blocks"`
	DroppedBlocks uint64    `json:"dropped_blocks"`
	PeakAmplitude float64   `json:"peak_amplitude"`
	Active        bool      `json:"active"`
}

// StatsManager manages session statistics persistence
type StatsManager struct {
	totals   Totals
	session  Session
	filePath string
	mu       sync.Mutex
}

// NewStatsManager creates a stats manager and loads existing totals from filePath.
// An empty filePath keeps statistics in memory only.
func NewStatsManager(filePath string) *StatsManager {
	sm := &StatsManager{filePath: filePath}

	if err := sm.load(); err != nil {
		logger.Debugf("Could not load stats (will start fresh): %v", err)
	}

	return sm
}

// BeginSession starts counting a new capture session
func (sm *StatsManager) BeginSession(now time.Time) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.session = Session{Started: now, Active: true}
}

// ObserveBlock records one processed block and its amplitude
func (sm *StatsManager) ObserveBlock(amplitude float64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.session.Blocks++
	if amplitude > sm.session.PeakAmplitude {
		sm.session.PeakAmplitude = amplitude
	}
}

// ObserveDrop records a block that failed processing
func (sm *StatsManager) ObserveDrop() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.session.DroppedBlocks++
}

// EndSession folds the current session into the totals and persists them
func (sm *StatsManager) EndSession(now time.Time) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.session.Active {
		return nil
	}
	s := sm.session
	sm.session.Active = false

	sm.totals.Sessions++
	sm.totals.TotalSeconds += now.Sub(s.Started).Seconds()
	sm.totals.Blocks += s.Blocks
	sm.totals.DroppedBlocks += s.DroppedBlocks
	if s.PeakAmplitude > sm.totals.PeakAmplitude {
		sm.totals.PeakAmplitude = s.PeakAmplitude
	}
	sm.totals.LastSession = s.Started

	if err := sm.save(); err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}

// GetStats returns a copy of the persisted totals
func (sm *StatsManager) GetStats() Totals {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.totals
}

// Current returns a copy of the running session
func (sm *StatsManager) Current() Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.session
}

// GetStatsJSON returns totals and the running session as a JSON string (for D-Bus)
func (sm *StatsManager) GetStatsJSON() (string, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	data, err := json.Marshal(struct {
		Totals  Totals  `json:"totals"`
		Session Session `json:"session"`
	}{sm.totals, sm.session})
	if err != nil {
		return "", fmt.Errorf("failed to marshal stats to JSON: %w", err)
	}
	return string(data), nil
}

// Summary renders the session and totals for humans
func (sm *StatsManager) Summary(now time.Time) string {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s := sm.session
	t := sm.totals
	summary := fmt.Sprintf("%s blocks (%s dropped), peak %.3f",
		humanize.Comma(int64(s.Blocks)), humanize.Comma(int64(s.DroppedBlocks)), s.PeakAmplitude)
	if !s.Started.IsZero() {
		summary += fmt.Sprintf(", started %s", humanize.RelTime(s.Started, now, "ago", "from now"))
	}
	summary += fmt.Sprintf("; %s sessions, %s blocks overall",
		humanize.Comma(int64(t.Sessions)), humanize.Comma(int64(t.Blocks)))
	return summary
}

// TotalsSummary renders the persisted totals for the stats command
func (sm *StatsManager) TotalsSummary(now time.Time) string {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	t := sm.totals
	captured := time.Duration(t.TotalSeconds * float64(time.Second)).Round(time.Second)
	last := "never"
	if !t.LastSession.IsZero() {
		last = humanize.RelTime(t.LastSession, now, "ago", "from now")
	}
	return fmt.Sprintf("Sessions:       %s\n"+
		"Capture time:   %s\n"+
		"Blocks:         %s (%s dropped)\n"+
		"Peak amplitude: %.3f\n"+
		"Last session:   %s",
		humanize.Comma(int64(t.Sessions)), captured,
		humanize.Comma(int64(t.Blocks)), humanize.Comma(int64(t.DroppedBlocks)),
		t.PeakAmplitude, last)
}

// Reset clears all statistics and persists empty state
func (sm *StatsManager) Reset() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.totals = Totals{}
	if err := sm.save(); err != nil {
		return fmt.Errorf("failed to save reset stats: %w", err)
	}
	return nil
}

func (sm *StatsManager) load() error {
	if sm.filePath == "" {
		return nil
	}
	data, err := os.ReadFile(sm.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debugf("Stats file not found, starting fresh: %s", sm.filePath)
			return nil
		}
		return fmt.Errorf("failed to read stats file: %w", err)
	}

	if err := json.Unmarshal(data, &sm.totals); err != nil {
		return fmt.Errorf("failed to unmarshal stats: %w", err)
	}

	logger.Debugf("Loaded stats from %s", sm.filePath)
	return nil
}

func (sm *StatsManager) save() error {
	if sm.filePath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(sm.filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create stats directory: %w", err)
	}

	data, err := json.MarshalIndent(sm.totals, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	// Write atomically by writing to temp file and renaming
	tempFile := sm.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp stats file: %w", err)
	}
	if err := os.Rename(tempFile, sm.filePath); err != nil {
		return fmt.Errorf("failed to rename temp stats file: %w", err)
	}

	logger.Debugf("Saved stats to %s", sm.filePath)
	return nil
}
