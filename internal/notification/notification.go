package notification

import (
	"fmt"
	"runtime"

	"github.com/dooshek/micscope/internal/logger"
)

const appTitle = "micscope"

// Notifier defines the interface for desktop notifications
type Notifier interface {
	NotifyCaptureStarted(source string) error
	NotifyCaptureFailed(err error) error
	Notify(title, message string) error
}

// SilentNotifier is a no-op implementation for headless runs
type SilentNotifier struct{}

func NewSilent() Notifier {
	return &SilentNotifier{}
}

func (s *SilentNotifier) NotifyCaptureStarted(source string) error { return nil }
func (s *SilentNotifier) NotifyCaptureFailed(err error) error      { return nil }
func (s *SilentNotifier) Notify(title, message string) error       { return nil }

type baseNotifier struct {
	platform platformNotifier
}

type platformNotifier interface {
	send(title, message string) error
}

// New creates a new platform-specific notification service
func New() Notifier {
	logger.Debug("Initializing notification system")
	var platform platformNotifier
	switch runtime.GOOS {
	case "darwin":
		logger.Debug("Using Darwin (macOS) notifier")
		platform = newDarwinNotifier()
	default:
		logger.Debug("Using Linux notifier")
		platform = newLinuxNotifier()
	}
	return &baseNotifier{platform: platform}
}

func (n *baseNotifier) NotifyCaptureStarted(source string) error {
	return n.Notify(appTitle, fmt.Sprintf("Listening on %s", source))
}

func (n *baseNotifier) NotifyCaptureFailed(err error) error {
	return n.Notify(appTitle, formatFailure(err))
}

func (n *baseNotifier) Notify(title, message string) error {
	return n.platform.send(title, message)
}

// formatFailure keeps notification bodies to one short line
func formatFailure(err error) string {
	msg := err.Error()
	if len(msg) > 120 {
		msg = msg[:117] + "..."
	}
	return "Capture failed: " + msg
}
