package stream

import (
	"context"
	"encoding/json"
	"image/png"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dooshek/micscope/internal/audio"
	"github.com/dooshek/micscope/internal/chart"
	"github.com/dooshek/micscope/internal/render"
	"github.com/gorilla/websocket"
)

func newTestPipeline(t *testing.T) (*chart.NodeManager, *audio.Processor) {
	t.Helper()
	p, err := audio.NewProcessor(audio.DefaultSampleRate, audio.Tuning{AmplitudeScaling: 100}, true)
	if err != nil {
		t.Fatal(err)
	}
	return chart.NewNodeManager(chart.DefaultConfig()), p
}

func ptr(v float64) *float64 { return &v }

func TestApply(t *testing.T) {
	nm, p := newTestPipeline(t)
	s := NewServer(nm, WithTuner(p))

	msg := s.Apply(Command{CutoffHz: ptr(300), AmplitudeScaling: ptr(150)})
	if msg.Type != TypeTuning || msg.Tuning == nil {
		t.Fatalf("Expected tuning reply, got %+v", msg)
	}
	if msg.Tuning.CutoffHz != 300 || msg.Tuning.AmplitudeScaling != 150 {
		t.Errorf("Unexpected tuning %+v", *msg.Tuning)
	}

	msg = s.Apply(Command{CutoffHz: ptr(50000)})
	if msg.Type != TypeError || !strings.Contains(msg.Error, "out of range") {
		t.Errorf("Expected range error, got %+v", msg)
	}
	if p.Tuning().CutoffHz != 300 {
		t.Errorf("Rejected command changed cutoff to %v", p.Tuning().CutoffHz)
	}

	nm.Ingest(0.9)
	nm.Advance(3)
	nm.Ingest(0.5)
	nm.Advance(2)
	s.Apply(Command{ResetBounds: true})
	if b := nm.Bounds(); b.MinY != 50 || b.MaxY != 50 {
		t.Errorf("Expected bounds reset to {50 50}, got %+v", b)
	}
}

func TestApply_ReadOnly(t *testing.T) {
	nm, _ := newTestPipeline(t)
	s := NewServer(nm)

	if msg := s.Apply(Command{CutoffHz: ptr(100)}); msg.Type != TypeError {
		t.Errorf("Expected error without tuner, got %+v", msg)
	}
	if msg := s.Apply(Command{ResetBounds: true}); msg.Type != TypeFrame || msg.Frame == nil {
		t.Errorf("Expected frame reply, got %+v", msg)
	}
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil returns the first message of the wanted type.
func readUntil(t *testing.T, conn *websocket.Conn, want string) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("Waiting for %s message: %v", want, err)
		}
		if msg.Type == want {
			return msg
		}
	}
}

func TestWebSocket_FramesAndTuning(t *testing.T) {
	nm, p := newTestPipeline(t)
	nm.Ingest(0.5)

	s := NewServer(nm, WithTuner(p), WithFrameRate(100))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Broadcast(ctx)

	conn := dial(t, ts)

	hello := readUntil(t, conn, TypeTuning)
	if hello.Tuning.AmplitudeScaling != 100 {
		t.Errorf("Expected initial scaling 100, got %+v", hello.Tuning)
	}

	frame := readUntil(t, conn, TypeFrame)
	if len(frame.Frame.Nodes) != 2 {
		t.Errorf("Expected 2 nodes in streamed frame, got %d", len(frame.Frame.Nodes))
	}
	if frame.Frame.MaxX != 100 {
		t.Errorf("Expected geometry in frame, got MaxX=%v", frame.Frame.MaxX)
	}

	if err := conn.WriteJSON(Command{AmplitudeScaling: ptr(50)}); err != nil {
		t.Fatal(err)
	}
	reply := readUntil(t, conn, TypeTuning)
	if reply.Tuning.AmplitudeScaling != 50 {
		t.Errorf("Expected scaling 50 in reply, got %+v", reply.Tuning)
	}
	if p.AmplitudeScaling() != 50 {
		t.Errorf("Expected processor scaling 50, got %v", p.AmplitudeScaling())
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if msg := readUntil(t, conn, TypeError); !strings.Contains(msg.Error, "invalid command") {
		t.Errorf("Expected invalid command error, got %q", msg.Error)
	}
}

func TestWebSocket_CommandRateLimit(t *testing.T) {
	nm, p := newTestPipeline(t)
	s := NewServer(nm, WithTuner(p))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dial(t, ts)
	readUntil(t, conn, TypeTuning)

	for i := 0; i < commandBurst+3; i++ {
		if err := conn.WriteJSON(Command{ResetBounds: true}); err != nil {
			t.Fatal(err)
		}
	}
	if msg := readUntil(t, conn, TypeError); msg.Error != ErrRateLimited.Error() {
		t.Errorf("Expected rate limit error, got %q", msg.Error)
	}
}

func TestHTTPEndpoints(t *testing.T) {
	nm, _ := newTestPipeline(t)
	nm.Ingest(0.25)

	r, err := render.NewRenderer(render.Options{Width: 160, Height: 80})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ts := httptest.NewServer(NewServer(nm, WithRenderer(r, true)).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/frame")
	if err != nil {
		t.Fatal(err)
	}
	var frame chart.Frame
	err = json.NewDecoder(resp.Body).Decode(&frame)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("Invalid frame JSON: %v", err)
	}
	if len(frame.Nodes) != 2 || frame.Nodes[0].Y != 75 {
		t.Errorf("Unexpected frame %+v", frame)
	}

	resp, err = http.Get(ts.URL + "/snapshot.png")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %q", ct)
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("Invalid PNG: %v", err)
	}
	if img.Bounds().Dx() != 160 {
		t.Errorf("Expected width 160, got %d", img.Bounds().Dx())
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	nm, _ := newTestPipeline(t)
	s := NewServer(nm)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/frame")
	if err != nil {
		t.Fatalf("Server not reachable: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
