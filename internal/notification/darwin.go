package notification

import (
	"fmt"
	"os/exec"

	"github.com/dooshek/micscope/internal/logger"
)

type darwinNotifier struct{}

func newDarwinNotifier() platformNotifier {
	return &darwinNotifier{}
}

func (n *darwinNotifier) send(title, message string) error {
	logger.Debugf("Sending macOS notification: %s - %s", title, message)
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	cmd := exec.Command("osascript", "-e", script)
	if err := cmd.Run(); err != nil {
		logger.Errorf("Failed to send macOS notification", err)
		return err
	}
	logger.Debug("Successfully sent macOS notification")
	return nil
}
