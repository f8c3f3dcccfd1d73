package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dooshek/micscope/internal/logger"
	"github.com/dooshek/micscope/internal/measurement"
	"github.com/dooshek/micscope/internal/stats"
)

// State of a Capturer
type State int32

const (
	StateIdle State = iota
	StateRecording
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyRecording is returned when Run is called on a running Capturer
	ErrAlreadyRecording = errors.New("already recording")

	// ErrBlockPanic wraps a panic recovered while processing a block
	ErrBlockPanic = errors.New("panic while processing block")
)

// readErrorBackoff keeps a failing source from spinning the capture loop
const readErrorBackoff = 10 * time.Millisecond

// Capturer runs the blocking read loop: it holds the source only while
// recording and publishes one measurement per processed block.
type Capturer struct {
	source      Source
	processor   *Processor
	mailbox     *measurement.Mailbox
	stats       *stats.StatsManager
	bufferBytes int
	startDelay  time.Duration
	onError     func(error)
	onStart     func()

	state atomic.Int32
	mu    sync.Mutex
	err   error
	stop  context.CancelFunc
}

// CaptureOption customizes a Capturer
type CaptureOption func(*Capturer)

// WithBufferFrames sets how many samples are read per block
func WithBufferFrames(frames int) CaptureOption {
	return func(c *Capturer) {
		if frames > 0 {
			c.bufferBytes = frames * bytesPerSample
		}
	}
}

// WithStartDelay waits before opening the source
func WithStartDelay(d time.Duration) CaptureOption {
	return func(c *Capturer) { c.startDelay = d }
}

// WithStats records block counters in sm
func WithStats(sm *stats.StatsManager) CaptureOption {
	return func(c *Capturer) { c.stats = sm }
}

// WithErrorHandler is called for every dropped block and for fatal start errors
func WithErrorHandler(fn func(error)) CaptureOption {
	return func(c *Capturer) { c.onError = fn }
}

// WithStartHook is called once the source is open
func WithStartHook(fn func()) CaptureOption {
	return func(c *Capturer) { c.onStart = fn }
}

// NewCapturer wires source, processor and mailbox together.
func NewCapturer(source Source, processor *Processor, mailbox *measurement.Mailbox, opts ...CaptureOption) *Capturer {
	c := &Capturer{
		source:      source,
		processor:   processor,
		mailbox:     mailbox,
		bufferBytes: 1792 * bytesPerSample,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current capture state
func (c *Capturer) State() State {
	return State(c.state.Load())
}

func (c *Capturer) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Capturer) transition(from, to State) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// IsRecording reports whether the read loop is active
func (c *Capturer) IsRecording() bool {
	return c.State() == StateRecording
}

// Err returns the error that put the capturer in StateFailed
func (c *Capturer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Processor exposes the live tuning of the chain
func (c *Capturer) Processor() *Processor {
	return c.processor
}

// Run captures until ctx is done, Stop is called or the source ends. The source
// is released before Run returns. Only a failure to open the source is returned;
// per-block errors are logged and the loop carries on.
func (c *Capturer) Run(ctx context.Context) error {
	if !c.transition(StateIdle, StateRecording) && !c.transition(StateFailed, StateRecording) {
		return ErrAlreadyRecording
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.stop = cancel
	c.err = nil
	c.mu.Unlock()

	if c.startDelay > 0 {
		select {
		case <-runCtx.Done():
			c.setState(StateIdle)
			return nil
		case <-time.After(c.startDelay):
		}
	}

	c.processor.Reset()
	if err := c.source.Start(); err != nil {
		err = fmt.Errorf("failed to start audio source: %w", err)
		c.fail(err)
		return err
	}
	defer c.release()

	if c.stats != nil {
		c.stats.BeginSession(time.Now())
	}
	if c.onStart != nil {
		c.onStart()
	}

	// Stop unblocks a pending Read by stopping the source
	go func() {
		<-runCtx.Done()
		if err := c.source.Stop(); err != nil {
			logger.Error("Failed to stop audio source", err)
		}
	}()

	c.loop(runCtx)
	return nil
}

func (c *Capturer) loop(ctx context.Context) {
	buf := make([]byte, c.bufferBytes)
	for c.source.IsRecording() && ctx.Err() == nil {
		n, err := c.source.Read(buf)
		if n > 0 {
			c.handleBlock(buf[:n])
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			logger.Info("Audio source reached end of stream")
			return
		}
		if errors.Is(err, ErrSourceStopped) || !c.source.IsRecording() {
			return
		}
		logger.Error("Failed to read audio block", err)
		c.reportError(err)
		time.Sleep(readErrorBackoff)
	}
}

func (c *Capturer) handleBlock(block []byte) {
	amplitude, err := c.processBlock(block)
	if err != nil {
		logger.Debugf("Dropping audio block of %d bytes: %v", len(block), err)
		if c.stats != nil {
			c.stats.ObserveDrop()
		}
		c.reportError(err)
		return
	}

	c.mailbox.Publish(amplitude)
	if c.stats != nil {
		c.stats.ObserveBlock(amplitude)
	}
	logger.Tracef("Amplitude: %f", amplitude)
}

func (c *Capturer) processBlock(block []byte) (amplitude float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrBlockPanic, r)
		}
	}()
	return c.processor.Process(block)
}

func (c *Capturer) reportError(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}

func (c *Capturer) fail(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.setState(StateFailed)
	logger.Error("Audio capture failed", err)
	c.reportError(err)
}

func (c *Capturer) release() {
	if err := c.source.Stop(); err != nil {
		logger.Error("Failed to release audio source", err)
	}
	if c.stats != nil {
		if err := c.stats.EndSession(time.Now()); err != nil {
			logger.Error("Failed to record session stats", err)
		}
	}
	c.setState(StateIdle)
	logger.Debug("Audio capture loop exited")
}

// Stop asks the read loop to exit; it returns immediately.
func (c *Capturer) Stop() {
	c.mu.Lock()
	stop := c.stop
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}
