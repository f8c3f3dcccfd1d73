package dbus

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/dooshek/micscope/internal/audio"
	"github.com/dooshek/micscope/internal/chart"
	"github.com/dooshek/micscope/internal/measurement"
)

type fakeCapture struct{ recording bool }

func (f fakeCapture) IsRecording() bool { return f.recording }

type signal struct {
	name string
	args []interface{}
}

type signalRecorder struct {
	mu      sync.Mutex
	signals []signal
}

func (r *signalRecorder) emit(name string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, signal{name, args})
}

func (r *signalRecorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.signals {
		if s.name == name {
			n++
		}
	}
	return n
}

func newTestServer(t *testing.T) (*Server, *audio.Processor, *chart.NodeManager, *signalRecorder) {
	t.Helper()
	p, err := audio.NewProcessor(audio.DefaultSampleRate, audio.Tuning{AmplitudeScaling: 100}, true)
	if err != nil {
		t.Fatal(err)
	}
	nm := chart.NewNodeManager(chart.DefaultConfig())
	s := NewServer(p, nm, fakeCapture{recording: true})
	rec := &signalRecorder{}
	s.emit = rec.emit
	return s, p, nm, rec
}

func TestTuningMethods(t *testing.T) {
	s, p, _, _ := newTestServer(t)

	if err := s.SetCutoffFrequency(250); err != nil {
		t.Fatalf("SetCutoffFrequency failed: %v", err)
	}
	if err := s.SetAmplitudeScaling(120); err != nil {
		t.Fatalf("SetAmplitudeScaling failed: %v", err)
	}

	cutoff, scaling, derr := s.GetTuning()
	if derr != nil {
		t.Fatal(derr)
	}
	if cutoff != 250 || scaling != 120 {
		t.Errorf("Expected (250, 120), got (%v, %v)", cutoff, scaling)
	}
	if p.Tuning().CutoffHz != 250 {
		t.Errorf("Processor not updated: %+v", p.Tuning())
	}

	derr = s.SetCutoffFrequency(-5)
	if derr == nil || derr.Name != errInvalidValue {
		t.Errorf("Expected %s, got %v", errInvalidValue, derr)
	}
	if derr = s.SetAmplitudeScaling(1000); derr == nil {
		t.Error("Expected scaling 1000 to be rejected")
	}
}

func TestStatusAndBounds(t *testing.T) {
	s, _, nm, _ := newTestServer(t)

	recording, derr := s.GetStatus()
	if derr != nil || !recording {
		t.Errorf("Expected recording status, got %v (%v)", recording, derr)
	}

	minY, maxY, _ := s.GetBounds()
	if minY != 100 || maxY != 0 {
		t.Errorf("Expected default bounds (100, 0), got (%v, %v)", minY, maxY)
	}

	nm.Ingest(0.9)
	nm.Advance(3)
	nm.Ingest(0.5)
	nm.Advance(2)
	if minY, maxY, _ = s.GetBounds(); math.Abs(minY-10) > 1e-9 || math.Abs(maxY-50) > 1e-9 {
		t.Errorf("Expected (10, 50), got (%v, %v)", minY, maxY)
	}

	if derr := s.ResetBounds(); derr != nil {
		t.Fatal(derr)
	}
	if minY, maxY, _ = s.GetBounds(); math.Abs(minY-50) > 1e-9 || math.Abs(maxY-50) > 1e-9 {
		t.Errorf("Expected (50, 50) after reset, got (%v, %v)", minY, maxY)
	}
}

func TestForwardMeasurements_RateLimited(t *testing.T) {
	s, _, _, rec := newTestServer(t)

	mb := measurement.NewMailbox()
	sub := mb.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.ForwardMeasurements(ctx, sub, 1)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for rec.count("MeasurementUpdated") == 0 {
		mb.Publish(0.3)
		if time.Now().After(deadline) {
			t.Fatal("No MeasurementUpdated signal emitted")
		}
		time.Sleep(time.Millisecond)
	}
	for i := 0; i < 50; i++ {
		mb.Publish(0.4)
		time.Sleep(time.Millisecond)
	}

	cancel()
	<-done
	if n := rec.count("MeasurementUpdated"); n != 1 {
		t.Errorf("Expected 1 signal at 1/s, got %d", n)
	}
}

func TestForwardMeasurements_StopsOnClose(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	mb := measurement.NewMailbox()
	sub := mb.Subscribe()
	done := make(chan struct{})
	go func() {
		s.ForwardMeasurements(context.Background(), sub, 0)
		close(done)
	}()

	mb.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ForwardMeasurements did not return after mailbox close")
	}
}

func TestReportCaptureError(t *testing.T) {
	s, _, _, rec := newTestServer(t)
	s.ReportCaptureError(errors.New("device gone"))

	if rec.count("CaptureError") != 1 {
		t.Fatalf("Expected one CaptureError signal, got %+v", rec.signals)
	}
	if got := rec.signals[0].args[0]; got != "device gone" {
		t.Errorf("Expected error text, got %v", got)
	}
}

func TestEmitWithoutConnection(t *testing.T) {
	s := NewServer(nil, nil, fakeCapture{})
	// no session bus: must not panic
	s.emitSignal("CaptureError", "x")
}

func TestStopWithoutStart(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	s.Stop()
	s.Stop()
	s.emitSignal("CaptureError", "after stop")
}
