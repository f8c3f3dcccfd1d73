package notification

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingPlatform struct {
	mu       sync.Mutex
	messages []string
}

func (p *recordingPlatform) send(title, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, title+": "+message)
	return nil
}

func TestBaseNotifier(t *testing.T) {
	p := &recordingPlatform{}
	n := &baseNotifier{platform: p}

	if err := n.NotifyCaptureStarted("microphone"); err != nil {
		t.Fatal(err)
	}
	if err := n.NotifyCaptureFailed(errors.New(strings.Repeat("x", 200))); err != nil {
		t.Fatal(err)
	}

	if p.messages[0] != "micscope: Listening on microphone" {
		t.Errorf("Unexpected start message %q", p.messages[0])
	}
	failure := p.messages[1]
	if !strings.HasPrefix(failure, "micscope: Capture failed: ") || !strings.HasSuffix(failure, "...") {
		t.Errorf("Unexpected failure message %q", failure)
	}
	if len(strings.TrimPrefix(failure, "micscope: Capture failed: ")) != 120 {
		t.Errorf("Expected failure text truncated to 120 chars, got %q", failure)
	}
}

func TestLinuxNotifierRunsNotifySend(t *testing.T) {
	got := make(chan []string, 1)
	n := &linuxNotifier{run: func(name string, args ...string) error {
		got <- append([]string{name}, args...)
		return nil
	}}

	if err := n.send("title", "body"); err != nil {
		t.Fatal(err)
	}
	select {
	case cmd := <-got:
		if strings.Join(cmd, "|") != "notify-send|title|body" {
			t.Errorf("Unexpected command %v", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notify-send was not run")
	}
}

func TestSilentNotifier(t *testing.T) {
	n := NewSilent()
	if err := n.NotifyCaptureFailed(errors.New("boom")); err != nil {
		t.Errorf("Silent notifier returned %v", err)
	}
}
