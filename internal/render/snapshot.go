package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dooshek/micscope/internal/chart"
	"github.com/dooshek/micscope/internal/logger"
)

// SnapshotFile is the name of the periodically rewritten PNG
const SnapshotFile = "latest.png"

// FrameSource yields the frame to render, usually NodeManager.Snapshot
type FrameSource func() chart.Frame

// SnapshotWriter periodically renders the chart to a PNG file.
type SnapshotWriter struct {
	renderer  *Renderer
	frames    FrameSource
	path      string
	rescaling bool
}

// NewSnapshotWriter writes to dir/latest.png.
func NewSnapshotWriter(renderer *Renderer, frames FrameSource, dir string, rescaling bool) *SnapshotWriter {
	return &SnapshotWriter{
		renderer:  renderer,
		frames:    frames,
		path:      filepath.Join(dir, SnapshotFile),
		rescaling: rescaling,
	}
}

func (sw *SnapshotWriter) Path() string {
	return sw.path
}

// Write renders one frame and atomically replaces the snapshot file.
func (sw *SnapshotWriter) Write() error {
	img, err := sw.renderer.Draw(sw.frames(), sw.rescaling)
	if err != nil {
		return fmt.Errorf("rendering snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(sw.path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	tempFile := sw.path + ".tmp"
	f, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("creating snapshot file: %w", err)
	}
	if err := WritePNG(f, img); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing snapshot file: %w", err)
	}
	if err := os.Rename(tempFile, sw.path); err != nil {
		return fmt.Errorf("renaming snapshot file: %w", err)
	}
	return nil
}

// Run writes a snapshot every interval until ctx is done, and once more on exit.
func (sw *SnapshotWriter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Infof("📸 Writing chart snapshots to %s every %s", sw.path, interval)
	for {
		select {
		case <-ctx.Done():
			if err := sw.Write(); err != nil {
				logger.Error("Failed to write final snapshot", err)
			}
			return
		case <-ticker.C:
			if err := sw.Write(); err != nil {
				logger.Error("Failed to write snapshot", err)
			}
		}
	}
}
