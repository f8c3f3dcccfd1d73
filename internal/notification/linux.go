package notification

import (
	"os/exec"

	"github.com/dooshek/micscope/internal/logger"
)

type linuxNotifier struct {
	run func(name string, args ...string) error
}

func newLinuxNotifier() platformNotifier {
	return &linuxNotifier{run: runCommand}
}

func runCommand(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

func (n *linuxNotifier) send(title, message string) error {
	logger.Debugf("Sending notification: %s - %s", title, message)
	go func() {
		if err := n.run("notify-send", title, message); err != nil {
			logger.Errorf("Failed to send notification", err)
		}
	}()
	return nil
}
