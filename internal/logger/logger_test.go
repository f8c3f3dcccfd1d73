package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"testing"
)

func TestJSONOutputAndLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetJSON(true)
	defer func() {
		SetJSON(false)
		SetOutput(os.Stdout)
		SetLevel("info")
	}()

	SetLevel("warn")
	Info("hidden")
	Errorf("capture failed on %s", errors.New("boom"), "mic")

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("Expected exactly one JSON line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "capture failed on mic" {
		t.Errorf("Unexpected message %v", entry["message"])
	}
	if entry["error"] != "boom" {
		t.Errorf("Unexpected error field %v", entry["error"])
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetJSON(true)
	defer func() {
		SetJSON(false)
		SetOutput(os.Stdout)
	}()

	log := Component("chart")
	log.Info().Msg("ready")

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("Invalid JSON %q: %v", buf.String(), err)
	}
	if entry["component"] != "chart" {
		t.Errorf("Expected component field, got %v", entry)
	}
}
