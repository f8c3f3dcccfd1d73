package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dooshek/micscope/internal/audio"
	"github.com/dooshek/micscope/internal/chart"
	"github.com/dooshek/micscope/internal/config"
	"github.com/dooshek/micscope/internal/dbus"
	"github.com/dooshek/micscope/internal/fileops"
	"github.com/dooshek/micscope/internal/logger"
	"github.com/dooshek/micscope/internal/measurement"
	"github.com/dooshek/micscope/internal/notification"
	"github.com/dooshek/micscope/internal/render"
	"github.com/dooshek/micscope/internal/stats"
	"github.com/dooshek/micscope/internal/stream"
	"github.com/dooshek/micscope/internal/types"
	"github.com/fatih/color"
)

func init() {
	// Set custom usage message to show -- prefix
	flag.Usage = func() {
		out := flag.CommandLine.Output()
		fmt.Fprintf(out, "Usage of %s:\n", os.Args[0])
		flag.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(out, "  --%s", f.Name)
			name, usage := flag.UnquoteUsage(f)
			if len(name) > 0 {
				fmt.Fprintf(out, " %s", name)
			}
			fmt.Fprintf(out, "\n    \t%s", usage)
			if f.DefValue != "" && f.DefValue != "false" {
				fmt.Fprintf(out, " (default %q)", f.DefValue)
			}
			fmt.Fprintf(out, "\n")
		})
		fmt.Fprintf(out, "\n  %s stats [--json] [--reset]\n    \tShow or reset session statistics\n", os.Args[0])
	}
}

// overrides are command line values that win over the config file
type overrides struct {
	cutoff       float64
	scaling      float64
	wavPath      string
	loop         bool
	noRescale    bool
	streamAddr   string
	dbus         bool
	snapshotEach time.Duration
	meter        bool
	notify       bool
}

func main() {
	// Parse command line flags
	runWizard := flag.Bool("wizard", false, "Run the configuration wizard")
	logLevel := flag.String("log-level", "info", "Set log level (trace|debug|info|warn|error)")
	logFilename := flag.String("log-filename", "", "Log to file instead of stdout")
	logJSON := flag.Bool("log-json", false, "Log JSON lines instead of console output")

	var o overrides
	flag.Float64Var(&o.cutoff, "cutoff", -1, "High-pass cutoff in Hz, 0 disables the filter")
	flag.Float64Var(&o.scaling, "scaling", -1, "Amplitude scaling in percent (0-200)")
	flag.StringVar(&o.wavPath, "wav", "", "Replay a mono 16-bit WAV file instead of the microphone")
	flag.BoolVar(&o.loop, "loop", false, "Loop the WAV file given with --wav")
	flag.BoolVar(&o.noRescale, "no-rescale", false, "Draw the fixed 0-100 axis with reference lines")
	flag.StringVar(&o.streamAddr, "stream", "", "WebSocket listen address, \"off\" disables streaming")
	flag.BoolVar(&o.dbus, "dbus", false, "Expose the scope on the D-Bus session bus")
	flag.DurationVar(&o.snapshotEach, "snapshot-every", 0, "Write a PNG snapshot of the chart at this interval")
	flag.BoolVar(&o.meter, "meter", false, "Draw a live level meter in the terminal")
	flag.BoolVar(&o.notify, "notify", false, "Send desktop notifications when capture starts or fails")

	// Check if we're running the stats subcommand before parsing global flags
	if len(os.Args) > 1 && os.Args[1] == "stats" {
		statsCmd := flag.NewFlagSet("stats", flag.ExitOnError)
		asJSON := statsCmd.Bool("json", false, "Print statistics as JSON")
		reset := statsCmd.Bool("reset", false, "Reset all statistics")
		if err := statsCmd.Parse(os.Args[2:]); err != nil {
			fmt.Printf("Error parsing stats flags: %v\n", err)
			os.Exit(1)
		}

		if err := handleStatsCommand(*asJSON, *reset); err != nil {
			logger.Error("Stats command failed", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	flag.Parse()

	// Set up logging level and output
	logger.SetLevel(*logLevel)
	logger.SetJSON(*logJSON)
	if *logFilename != "" {
		if err := logger.SetOutputFile(*logFilename); err != nil {
			fmt.Printf("Error setting log file: %v\n", err)
			os.Exit(1)
		}
		defer logger.CloseLogFile()
	}

	if *runWizard {
		if err := config.RunWizard(); err != nil {
			logger.Error("Error running wizard", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("Error loading config", err)
		os.Exit(1)
	}
	if err := applyOverrides(cfg, o); err != nil {
		logger.Error("Invalid command line", err)
		os.Exit(1)
	}

	// Initialize fileops
	fileOps, err := fileops.NewDefaultFileOps()
	if err != nil {
		logger.Error("Failed to initialize file operations", err)
		os.Exit(1)
	}

	// Ensure directories exist
	if err := fileOps.EnsureDirectories(); err != nil {
		logger.Error("Failed to create necessary directories", err)
		os.Exit(1)
	}

	// Check if another instance is running
	if err := fileOps.CheckPID(); err != nil {
		if errors.Is(err, fileops.ErrProcessAlreadyRunning) {
			logger.Error("Another instance of micscope is already running", err)
			os.Exit(1)
		}
	}

	// Save current PID
	if err := fileOps.SavePID(); err != nil {
		logger.Error("Failed to save PID file", err)
		os.Exit(1)
	}

	err = run(cfg, o, fileOps)
	fileOps.HandleExit()
	if err != nil {
		logger.Error("micscope failed", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, running the wizard first if none exists.
func loadConfig() (*types.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}

	logger.Info("No configuration found. Running setup wizard...")
	if err := config.RunWizard(); err != nil {
		return nil, fmt.Errorf("error running wizard: %w", err)
	}
	cfg, err = config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = types.DefaultConfig()
	}
	return cfg, nil
}

func applyOverrides(cfg *types.Config, o overrides) error {
	if o.cutoff >= 0 {
		cfg.Filter.CutoffHz = o.cutoff
	}
	if o.scaling >= 0 {
		cfg.Amplitude.Scaling = types.Scaling(o.scaling)
	}
	if o.wavPath != "" {
		cfg.Audio.Source = string(types.SourceWav)
		cfg.Audio.WavPath = o.wavPath
	}
	if o.noRescale {
		rescaling := false
		cfg.Render.Rescaling = &rescaling
	}
	switch o.streamAddr {
	case "":
	case "off":
		cfg.Stream.Addr = ""
	default:
		cfg.Stream.Addr = o.streamAddr
	}
	if o.dbus {
		cfg.DBus.Enabled = true
	}
	if o.snapshotEach > 0 {
		cfg.Render.SnapshotEveryMs = int(o.snapshotEach / time.Millisecond)
	}
	return config.Validate(cfg)
}

func newSource(ac types.AudioConfig, loop bool) (audio.Source, error) {
	switch types.SourceKind(ac.Source) {
	case types.SourceWav:
		if ac.WavPath == "" {
			return nil, errors.New("audio source is wav but no wav_path is set")
		}
		return audio.NewWavSource(ac.WavPath, audio.WithLoop(loop))
	case types.SourceMicrophone:
		return audio.NewMicrophoneSource(ac.SampleRate), nil
	default:
		return nil, fmt.Errorf("unknown audio source %q", ac.Source)
	}
}

// run wires the pipeline and blocks until SIGINT/SIGTERM.
func run(cfg *types.Config, o overrides, fileOps fileops.FileOps) error {
	ac := cfg.GetAudioConfig()
	fc := cfg.GetFilterConfig()
	cc := cfg.GetChartConfig()
	rc := cfg.GetRenderConfig()
	sc := cfg.GetStreamConfig()
	dc := cfg.GetDBusConfig()

	source, err := newSource(ac, o.loop)
	if err != nil {
		return err
	}

	processor, err := audio.NewProcessor(source.SampleRate(), audio.Tuning{
		CutoffHz:         fc.CutoffHz,
		AmplitudeScaling: cfg.GetAmplitudeScaling(),
	}, *fc.RetainState)
	if err != nil {
		return err
	}

	mailbox := measurement.NewMailbox()
	statsManager := stats.NewStatsManager(fileOps.GetStatsPath())
	nodes := chart.NewNodeManager(chart.Config{
		MaxValue: cc.MaxValue,
		DeltaX:   cc.DeltaX,
		TSwap:    cc.TSwap,
		MaxNodes: cc.MaxNodes,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	chartFeed := mailbox.Subscribe()
	spawn(func() { nodes.Run(ctx, chartFeed, cc.TickInterval()) })

	notifier := notification.NewSilent()
	if o.notify {
		notifier = notification.New()
	}

	var dbusServer *dbus.Server
	capture := audio.NewCapturer(source, processor, mailbox,
		audio.WithBufferFrames(ac.BufferFrames),
		audio.WithStartDelay(time.Duration(ac.StartDelayMs)*time.Millisecond),
		audio.WithStats(statsManager),
		audio.WithStartHook(func() {
			if err := notifier.NotifyCaptureStarted(sourceName(ac)); err != nil {
				logger.Warn("Could not send notification")
			}
		}),
		audio.WithErrorHandler(func(err error) {
			if dbusServer != nil {
				dbusServer.ReportCaptureError(err)
			}
		}),
	)

	if dc.Enabled {
		dbusServer = dbus.NewServer(processor, nodes, capture)
		if err := dbusServer.Start(); err != nil {
			logger.Error("Failed to start D-Bus service, continuing without it", err)
			dbusServer = nil
		} else {
			defer dbusServer.Stop()
			dbusFeed := mailbox.Subscribe()
			spawn(func() { dbusServer.ForwardMeasurements(ctx, dbusFeed, dc.SignalRatePerSec) })
		}
	}

	streamRenderer, snapshotRenderer, err := outputRenderers(rc, sc)
	if err != nil {
		return err
	}
	for _, r := range []*render.Renderer{streamRenderer, snapshotRenderer} {
		if r != nil {
			defer r.Close()
		}
	}

	serving := false
	if sc.Addr != "" {
		server := stream.NewServer(nodes,
			stream.WithTuner(processor),
			stream.WithFrameRate(sc.FrameRate),
			stream.WithRenderer(streamRenderer, *rc.Rescaling),
		)
		serving = true
		spawn(func() {
			if err := server.ListenAndServe(ctx, sc.Addr); err != nil {
				logger.Error("WebSocket server stopped", err)
			}
		})
	}
	if rc.SnapshotEveryMs > 0 {
		writer := render.NewSnapshotWriter(snapshotRenderer, nodes.Snapshot, fileOps.GetSnapshotsDir(), *rc.Rescaling)
		serving = true
		spawn(func() { writer.Run(ctx, time.Duration(rc.SnapshotEveryMs)*time.Millisecond) })
	}
	if o.meter {
		meterFeed := mailbox.Subscribe()
		spawn(func() { render.RunTerminalMeter(ctx, meterFeed, os.Stdout) })
	}
	serving = serving || dbusServer != nil

	printBanner(ac, processor.Tuning(), sc.Addr)

	spawn(func() {
		err := capture.Run(ctx)
		switch {
		case err != nil && errors.Is(err, audio.ErrMicrophoneUnavailable):
			color.New(color.FgRed).Fprintln(os.Stderr, "🎙️ Microphone unavailable; the chart stays up without input")
			notifier.NotifyCaptureFailed(err)
		case err != nil:
			logger.Error("Audio capture stopped", err)
			notifier.NotifyCaptureFailed(err)
		case ctx.Err() == nil && !serving:
			logger.Info("Audio source finished, shutting down")
			stop()
			return
		case ctx.Err() == nil:
			logger.Info("Audio source finished; press Ctrl+C to exit")
		}
		if err != nil && !serving {
			stop()
		}
	})

	<-ctx.Done()
	logger.Info("Shutting down...")
	capture.Stop()
	mailbox.Close()
	wg.Wait()

	color.New(color.FgCyan).Printf("📊 %s\n", statsManager.Summary(time.Now()))
	return nil
}

// outputRenderers returns a separate renderer for each enabled output, nil for
// outputs that are off.
func outputRenderers(rc types.RenderConfig, sc types.StreamConfig) (streamR, snapshotR *render.Renderer, err error) {
	opts := render.Options{Width: rc.Width, Height: rc.Height}
	if sc.Addr != "" {
		if streamR, err = render.NewRenderer(opts); err != nil {
			return nil, nil, fmt.Errorf("failed to create renderer: %w", err)
		}
	}
	if rc.SnapshotEveryMs > 0 {
		if snapshotR, err = render.NewRenderer(opts); err != nil {
			if streamR != nil {
				streamR.Close()
			}
			return nil, nil, fmt.Errorf("failed to create renderer: %w", err)
		}
	}
	return streamR, snapshotR, nil
}

func sourceName(ac types.AudioConfig) string {
	if types.SourceKind(ac.Source) == types.SourceWav {
		return ac.WavPath
	}
	return ac.Source
}

func printBanner(ac types.AudioConfig, t audio.Tuning, streamAddr string) {
	bold := color.New(color.Bold)
	bold.Printf("🎛️ micscope: %s, cutoff %.0f Hz, scaling %.0f%%\n", sourceName(ac), t.CutoffHz, t.AmplitudeScaling)
	if streamAddr != "" {
		fmt.Printf("   frames: ws://%s/ws  snapshot: http://%s/snapshot.png\n", streamAddr, streamAddr)
	}
}

// handleStatsCommand implements the stats subcommand
func handleStatsCommand(asJSON, reset bool) error {
	fileOps, err := fileops.NewDefaultFileOps()
	if err != nil {
		return fmt.Errorf("failed to initialize file operations: %w", err)
	}
	sm := stats.NewStatsManager(fileOps.GetStatsPath())

	if reset {
		if err := sm.Reset(); err != nil {
			return err
		}
		color.New(color.FgGreen).Println("✅ Statistics reset")
		return nil
	}

	if asJSON {
		data, err := sm.GetStatsJSON()
		if err != nil {
			return err
		}
		fmt.Println(data)
		return nil
	}

	color.New(color.Bold).Println("📊 micscope statistics")
	fmt.Println(sm.TotalsSummary(time.Now()))
	return nil
}
