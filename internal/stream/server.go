// Package stream pushes chart frames to WebSocket clients and accepts live
// tuning commands from them.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dooshek/micscope/internal/audio"
	"github.com/dooshek/micscope/internal/chart"
	"github.com/dooshek/micscope/internal/logger"
	"github.com/dooshek/micscope/internal/render"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// DefaultFrameRate is the frames per second pushed to every client
	DefaultFrameRate = 30.0

	writeWait       = 5 * time.Second
	sendQueueSize   = 16
	maxMessageSize  = 4096
	commandRate     = 10
	commandBurst    = 5
	shutdownTimeout = 2 * time.Second
)

// Message types sent to clients
const (
	TypeFrame  = "frame"
	TypeTuning = "tuning"
	TypeError  = "error"
)

// ErrRateLimited is reported to a client sending commands too quickly
var ErrRateLimited = errors.New("too many commands")

// Tuner is the live-adjustable part of the processing chain.
type Tuner interface {
	SetCutoff(hz float64) error
	SetAmplitudeScaling(percent float64) error
	Tuning() audio.Tuning
}

// Chart is the window the server streams.
type Chart interface {
	Snapshot() chart.Frame
	ResetBounds()
}

// Command is a client request. Absent fields are left unchanged.
type Command struct {
	CutoffHz         *float64 `json:"cutoff_hz,omitempty"`
	AmplitudeScaling *float64 `json:"amplitude_scaling,omitempty"`
	ResetBounds      bool     `json:"reset_bounds,omitempty"`
}

// Message is everything the server sends.
type Message struct {
	Type   string        `json:"type"`
	Frame  *chart.Frame  `json:"frame,omitempty"`
	Tuning *audio.Tuning `json:"tuning,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// Server fans frames out to WebSocket clients at a bounded rate.
type Server struct {
	chart     Chart
	tuner     Tuner
	renderer  *render.Renderer
	rescaling bool
	frameRate float64
	upgrader  websocket.Upgrader
	log       zerolog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

// Option customizes a Server
type Option func(*Server)

// WithTuner accepts tuning commands; without it the stream is read-only
func WithTuner(t Tuner) Option {
	return func(s *Server) { s.tuner = t }
}

// WithFrameRate sets the frames per second pushed to clients
func WithFrameRate(fps float64) Option {
	return func(s *Server) {
		if fps > 0 {
			s.frameRate = fps
		}
	}
}

// WithRenderer serves /snapshot.png drawn with r
func WithRenderer(r *render.Renderer, rescaling bool) Option {
	return func(s *Server) {
		s.renderer = r
		s.rescaling = rescaling
	}
}

func NewServer(c Chart, opts ...Option) *Server {
	s := &Server{
		chart:     c,
		frameRate: DefaultFrameRate,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:     logger.Component("stream"),
		clients: make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler routes /ws, /frame and, with a renderer, /snapshot.png.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/frame", s.serveFrame)
	if s.renderer != nil {
		mux.HandleFunc("/snapshot.png", s.serveSnapshot)
	}
	return mux
}

// ListenAndServe serves Handler on addr and broadcasts frames until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go s.Broadcast(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Error().Err(err).Msg("Failed to shut down stream server")
		}
		s.closeClients()
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("🌐 Streaming chart frames")
	if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("stream server failed: %w", err)
	}
	return nil
}

// Broadcast sends the current frame to every client at the configured rate
// until ctx is done.
func (s *Server) Broadcast(ctx context.Context) {
	limiter := rate.NewLimiter(rate.Limit(s.frameRate), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if s.ClientCount() == 0 {
			continue
		}

		frame := s.chart.Snapshot()
		data, err := json.Marshal(Message{Type: TypeFrame, Frame: &frame})
		if err != nil {
			s.log.Error().Err(err).Msg("Failed to marshal frame")
			continue
		}

		s.mu.Lock()
		for c := range s.clients {
			if !c.offer(data) {
				s.log.Debug().Str("remote", c.remote).Msg("Client queue full, frame dropped")
			}
		}
		s.mu.Unlock()
	}
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := newClient(conn)
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.log.Debug().Str("remote", c.remote).Msg("Client connected")

	go c.writeLoop()
	if s.tuner != nil {
		c.send(s.tuningMessage())
	}
	s.readLoop(c)

	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.close()
	s.log.Debug().Str("remote", c.remote).Msg("Client disconnected")
}

func (s *Server) readLoop(c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	limiter := rate.NewLimiter(commandRate, commandBurst)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Error().Err(err).Msg("WebSocket read failed")
			}
			return
		}
		if !limiter.Allow() {
			c.send(errorMessage(ErrRateLimited))
			continue
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.send(errorMessage(fmt.Errorf("invalid command: %w", err)))
			continue
		}
		c.send(s.Apply(cmd))
	}
}

// Apply runs cmd against the chart and tuner and returns the reply.
func (s *Server) Apply(cmd Command) Message {
	if cmd.CutoffHz != nil || cmd.AmplitudeScaling != nil {
		if s.tuner == nil {
			return errorMessage(errors.New("tuning is not available"))
		}
		if cmd.CutoffHz != nil {
			if err := s.tuner.SetCutoff(*cmd.CutoffHz); err != nil {
				return errorMessage(err)
			}
			s.log.Info().Float64("cutoff_hz", *cmd.CutoffHz).Msg("Cutoff changed")
		}
		if cmd.AmplitudeScaling != nil {
			if err := s.tuner.SetAmplitudeScaling(*cmd.AmplitudeScaling); err != nil {
				return errorMessage(err)
			}
			s.log.Info().Float64("amplitude_scaling", *cmd.AmplitudeScaling).Msg("Amplitude scaling changed")
		}
	}
	if cmd.ResetBounds {
		s.chart.ResetBounds()
	}

	if s.tuner == nil {
		frame := s.chart.Snapshot()
		return Message{Type: TypeFrame, Frame: &frame}
	}
	return s.tuningMessage()
}

func (s *Server) tuningMessage() Message {
	t := s.tuner.Tuning()
	return Message{Type: TypeTuning, Tuning: &t}
}

func errorMessage(err error) Message {
	return Message{Type: TypeError, Error: err.Error()}
}

func (s *Server) serveFrame(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.chart.Snapshot()); err != nil {
		s.log.Error().Err(err).Msg("Failed to write frame")
	}
}

func (s *Server) serveSnapshot(w http.ResponseWriter, r *http.Request) {
	img, err := s.renderer.Draw(s.chart.Snapshot(), s.rescaling)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := render.WritePNG(w, img); err != nil {
		s.log.Error().Err(err).Msg("Failed to write snapshot")
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.conn.Close()
	}
}
