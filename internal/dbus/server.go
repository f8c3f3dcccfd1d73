package dbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/dooshek/micscope/internal/audio"
	"github.com/dooshek/micscope/internal/chart"
	"github.com/dooshek/micscope/internal/logger"
	"github.com/dooshek/micscope/internal/measurement"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"golang.org/x/time/rate"
)

const (
	dbusServiceName = "com.dooshek.micscope"
	dbusObjectPath  = "/com/dooshek/micscope/Scope"
	dbusInterface   = "com.dooshek.micscope.Scope"

	errInvalidValue = dbusInterface + ".Error.InvalidValue"

	// DefaultSignalRate caps MeasurementUpdated signals per second
	DefaultSignalRate = 10.0
)

// Tuner is the live-adjustable part of the processing chain
type Tuner interface {
	SetCutoff(hz float64) error
	SetAmplitudeScaling(percent float64) error
	Tuning() audio.Tuning
}

// Chart exposes the scale bounds of the node window
type Chart interface {
	Bounds() chart.Bounds
	ResetBounds()
}

// Capture reports whether audio is flowing
type Capture interface {
	IsRecording() bool
}

// Server implements the D-Bus service for the scope
type Server struct {
	conn    *dbus.Conn
	tuner   Tuner
	chart   Chart
	capture Capture
	emit    func(name string, args ...interface{})
	mu      sync.Mutex
}

// NewServer creates a D-Bus server around the running pipeline
func NewServer(tuner Tuner, c Chart, capture Capture) *Server {
	s := &Server{
		tuner:   tuner,
		chart:   c,
		capture: capture,
	}
	s.emit = s.emitSignal
	return s
}

// Start starts the D-Bus server
func (s *Server) Start() error {
	var err error
	s.conn, err = dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	// Request name
	reply, err := s.conn.RequestName(dbusServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		s.conn.Close()
		return fmt.Errorf("name already taken")
	}

	// Export object
	err = s.conn.Export(s, dbusObjectPath, dbusInterface)
	if err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to export object: %w", err)
	}

	err = s.conn.Export(introspect.NewIntrospectable(introspection()), dbusObjectPath, "org.freedesktop.DBus.Introspectable")
	if err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	logger.Infof("🔌 D-Bus service started: %s", dbusServiceName)
	return nil
}

func introspection() *introspect.Node {
	return &introspect.Node{
		Name: dbusObjectPath,
		Interfaces: []introspect.Interface{{
			Name: dbusInterface,
			Methods: []introspect.Method{
				{
					Name: "SetCutoffFrequency",
					Args: []introspect.Arg{
						{Name: "hz", Type: "d", Direction: "in"},
					},
				},
				{
					Name: "SetAmplitudeScaling",
					Args: []introspect.Arg{
						{Name: "percent", Type: "d", Direction: "in"},
					},
				},
				{
					Name: "GetTuning",
					Args: []introspect.Arg{
						{Name: "cutoff_hz", Type: "d", Direction: "out"},
						{Name: "amplitude_scaling", Type: "d", Direction: "out"},
					},
				},
				{
					Name: "GetStatus",
					Args: []introspect.Arg{
						{Name: "is_recording", Type: "b", Direction: "out"},
					},
				},
				{
					Name: "GetBounds",
					Args: []introspect.Arg{
						{Name: "min_y", Type: "d", Direction: "out"},
						{Name: "max_y", Type: "d", Direction: "out"},
					},
				},
				{Name: "ResetBounds"},
			},
			Signals: []introspect.Signal{
				{
					Name: "MeasurementUpdated",
					Args: []introspect.Arg{
						{Name: "amplitude", Type: "d"},
					},
				},
				{
					Name: "CaptureError",
					Args: []introspect.Arg{
						{Name: "error", Type: "s"},
					},
				},
			},
		}},
	}
}

// Stop stops the D-Bus server
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	logger.Infof("🔌 D-Bus service stopped")
}

// SetCutoffFrequency changes the high-pass cutoff (D-Bus method)
func (s *Server) SetCutoffFrequency(hz float64) *dbus.Error {
	logger.Debugf("D-Bus: SetCutoffFrequency(%v) called", hz)
	if err := s.tuner.SetCutoff(hz); err != nil {
		return dbus.NewError(errInvalidValue, []interface{}{err.Error()})
	}
	return nil
}

// SetAmplitudeScaling changes the amplitude scaling percentage (D-Bus method)
func (s *Server) SetAmplitudeScaling(percent float64) *dbus.Error {
	logger.Debugf("D-Bus: SetAmplitudeScaling(%v) called", percent)
	if err := s.tuner.SetAmplitudeScaling(percent); err != nil {
		return dbus.NewError(errInvalidValue, []interface{}{err.Error()})
	}
	return nil
}

// GetTuning returns cutoff and scaling (D-Bus method)
func (s *Server) GetTuning() (float64, float64, *dbus.Error) {
	t := s.tuner.Tuning()
	return t.CutoffHz, t.AmplitudeScaling, nil
}

// GetStatus returns current capture status (D-Bus method)
func (s *Server) GetStatus() (bool, *dbus.Error) {
	return s.capture.IsRecording(), nil
}

// GetBounds returns the chart's current y range (D-Bus method)
func (s *Server) GetBounds() (float64, float64, *dbus.Error) {
	b := s.chart.Bounds()
	return b.MinY, b.MaxY, nil
}

// ResetBounds recomputes the chart range from the settled region (D-Bus method)
func (s *Server) ResetBounds() *dbus.Error {
	logger.Debugf("D-Bus: ResetBounds called")
	s.chart.ResetBounds()
	return nil
}

// ForwardMeasurements emits MeasurementUpdated for readings on ch, at most
// perSecond times a second, until ctx is done or ch is closed. Readings over
// the limit are skipped.
func (s *Server) ForwardMeasurements(ctx context.Context, ch <-chan measurement.Measurement, perSecond float64) {
	if perSecond <= 0 {
		perSecond = DefaultSignalRate
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), 1)

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			if limiter.Allow() {
				s.emit("MeasurementUpdated", m.Value)
			}
		}
	}
}

// ReportCaptureError emits CaptureError with err's message
func (s *Server) ReportCaptureError(err error) {
	s.emit("CaptureError", err.Error())
}

// emitSignal emits a D-Bus signal
func (s *Server) emitSignal(name string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		logger.Warnf("D-Bus: Cannot emit signal %s - no connection", name)
		return
	}

	signalPath := dbus.ObjectPath(dbusObjectPath)
	signalName := dbusInterface + "." + name

	err := s.conn.Emit(signalPath, signalName, args...)
	if err != nil {
		logger.Errorf("D-Bus: Failed to emit signal %s", err, name)
	} else {
		logger.Tracef("D-Bus: Emitted signal: %s", name)
	}
}
