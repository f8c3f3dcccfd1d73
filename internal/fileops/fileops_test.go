package fileops

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestConfigRoundTrip(t *testing.T) {
	f := NewFileOps(filepath.Join(t.TempDir(), "micscope"))
	if err := f.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	if _, err := os.Stat(f.GetSnapshotsDir()); err != nil {
		t.Errorf("Snapshots dir missing: %v", err)
	}

	if _, err := f.LoadConfig("micscope.yaml"); !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("Expected ErrConfigNotFound, got %v", err)
	}

	if err := f.SaveConfig("micscope.yaml", []byte("audio: {}\n")); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	data, err := f.LoadConfig("micscope.yaml")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if string(data) != "audio: {}\n" {
		t.Errorf("Unexpected config contents %q", data)
	}
}

func TestPIDLifecycle(t *testing.T) {
	f := NewFileOps(t.TempDir())

	if err := f.CheckPID(); err != nil {
		t.Fatalf("Expected no PID file, got %v", err)
	}
	if err := f.SavePID(); err != nil {
		t.Fatalf("SavePID failed: %v", err)
	}
	// our own PID is not a conflicting instance
	if err := f.CheckPID(); err != nil {
		t.Errorf("Expected own PID to be accepted, got %v", err)
	}

	f.HandleExit()
	if _, err := os.Stat(f.getPIDFilePath()); !os.IsNotExist(err) {
		t.Errorf("Expected PID file removed, got %v", err)
	}
	f.HandleExit()
}

func TestCheckPID_InvalidContents(t *testing.T) {
	f := NewFileOps(t.TempDir())
	if err := os.WriteFile(f.getPIDFilePath(), []byte("not-a-pid"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := f.CheckPID(); err == nil {
		t.Error("Expected error for invalid PID contents")
	}
}
