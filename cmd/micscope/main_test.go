package main

import (
	"testing"

	"github.com/dooshek/micscope/internal/types"
)

func TestApplyOverrides_Scaling(t *testing.T) {
	tests := []struct {
		name    string
		scaling float64
		want    float64
		wantErr bool
	}{
		{"unset keeps config", -1, 100, false},
		{"zero mutes", 0, 0, false},
		{"half", 50, 50, false},
		{"too high", 250, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := types.DefaultConfig()
			err := applyOverrides(cfg, overrides{cutoff: -1, scaling: tt.scaling})
			if (err != nil) != tt.wantErr {
				t.Fatalf("applyOverrides() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := cfg.GetAmplitudeScaling(); got != tt.want {
				t.Errorf("Expected effective scaling %v, got %v", tt.want, got)
			}
		})
	}
}

func TestApplyOverrides_StreamOff(t *testing.T) {
	cfg := types.DefaultConfig()
	if err := applyOverrides(cfg, overrides{cutoff: -1, scaling: -1, streamAddr: "off"}); err != nil {
		t.Fatal(err)
	}
	if cfg.Stream.Addr != "" {
		t.Errorf("Expected streaming disabled, got %q", cfg.Stream.Addr)
	}
}

func TestOutputRenderers_OnePerOutput(t *testing.T) {
	rc := types.RenderConfig{Width: 200, Height: 100, SnapshotEveryMs: 500}
	streamR, snapshotR, err := outputRenderers(rc, types.StreamConfig{Addr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("outputRenderers failed: %v", err)
	}
	defer streamR.Close()
	defer snapshotR.Close()
	if streamR == nil || snapshotR == nil {
		t.Fatalf("Expected both renderers, got %v and %v", streamR, snapshotR)
	}
	if streamR == snapshotR {
		t.Error("Expected the stream and snapshot outputs to get separate renderers")
	}

	rc.SnapshotEveryMs = 0
	streamR2, snapshotR2, err := outputRenderers(rc, types.StreamConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if streamR2 != nil || snapshotR2 != nil {
		t.Errorf("Expected no renderers with both outputs off")
	}
}
