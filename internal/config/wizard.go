package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dooshek/micscope/internal/fileops"
	"github.com/dooshek/micscope/internal/logger"
	"github.com/dooshek/micscope/internal/types"
	"github.com/fatih/color"
)

func RunWizard() error {
	fileOps, err := fileops.NewDefaultFileOps()
	if err != nil {
		return fmt.Errorf("failed to initialize file operations: %w", err)
	}
	config, err := Ask(os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	if err := SaveConfigTo(fileOps, config); err != nil {
		logger.Error("Failed to save config", err)
		return err
	}

	color.New(color.FgGreen).Printf("\n✅ Configuration saved to %s\n", fileOps.GetConfigDir())
	return nil
}

// Ask runs the interactive questions on in/out and returns the chosen config
func Ask(in io.Reader, out io.Writer) (*types.Config, error) {
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	bold.Fprintln(out, "\n🎚️  Welcome to the micscope configuration wizard!")
	fmt.Fprintln(out, "Press Enter to keep the suggested value.")

	reader := bufio.NewReader(in)
	config := types.DefaultConfig()

	for {
		cyan.Fprintln(out, "\nAudio source")
		source, err := prompt(reader, out, "microphone or wav", string(types.SourceMicrophone))
		if err != nil {
			return nil, err
		}
		config.Audio.Source = strings.ToLower(source)
		if config.Audio.Source == string(types.SourceWav) {
			config.Audio.WavPath, err = prompt(reader, out, "WAV file to replay", "")
			if err != nil {
				return nil, err
			}
		}

		cyan.Fprintln(out, "\nHigh-pass filter")
		config.Filter.CutoffHz, err = promptFloat(reader, out, "cutoff frequency in Hz (0 disables)", 0, 0, types.MaxCutoffHz)
		if err != nil {
			return nil, err
		}

		cyan.Fprintln(out, "\nAmplitude")
		scaling, err := promptFloat(reader, out, "scaling in percent", 100, 0, types.MaxAmplitudeScaling)
		if err != nil {
			return nil, err
		}
		config.Amplitude.Scaling = types.Scaling(scaling)

		cyan.Fprintln(out, "\nOutputs")
		config.Stream.Addr, err = prompt(reader, out, "WebSocket listen address (empty disables)", config.Stream.Addr)
		if err != nil {
			return nil, err
		}
		dbusAnswer, err := prompt(reader, out, "expose D-Bus service [y/N]", "n")
		if err != nil {
			return nil, err
		}
		config.DBus.Enabled = isYes(dbusAnswer)

		if err := Validate(config); err != nil {
			yellow.Fprintf(out, "\n%v\n", err)
			fmt.Fprintln(out, "OK, let's try again.")
			continue
		}

		yellow.Fprint(out, "\nSelected: ")
		fmt.Fprintf(out, "source=%s cutoff=%gHz scaling=%g%%\n",
			config.Audio.Source, config.Filter.CutoffHz, config.GetAmplitudeScaling())

		answer, err := prompt(reader, out, "Use this configuration? [Y/n]", "y")
		if err != nil {
			return nil, err
		}
		if isYes(answer) {
			return config, nil
		}
		fmt.Fprintln(out, "\nOK, let's try again.")
	}
}

func prompt(reader *bufio.Reader, out io.Writer, question, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, def)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	response, err := reader.ReadString('\n')
	if err != nil && (err != io.EOF || response == "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}

	// Remove any control characters
	response = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, strings.TrimSpace(response))

	if response == "" {
		return def, nil
	}
	return response, nil
}

func promptFloat(reader *bufio.Reader, out io.Writer, question string, def, lo, hi float64) (float64, error) {
	for {
		answer, err := prompt(reader, out, question, strconv.FormatFloat(def, 'g', -1, 64))
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseFloat(answer, 64)
		if err == nil && v >= lo && v <= hi {
			return v, nil
		}
		color.New(color.FgRed).Fprintf(out, "Please enter a number between %g and %g\n", lo, hi)
	}
}

func isYes(answer string) bool {
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}
