package audio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dooshek/micscope/internal/logger"
	"github.com/gen2brain/malgo"
)

// chunkQueueLen bounds how many device callbacks may wait for Read
const chunkQueueLen = 64

// MicrophoneSource captures the default input device through miniaudio.
type MicrophoneSource struct {
	sampleRate int

	mu        sync.Mutex
	ctx       *malgo.AllocatedContext
	device    *malgo.Device
	chunks    chan []byte
	stopCh    chan struct{}
	pending   []byte
	recording atomic.Bool
	overruns  atomic.Uint64
}

// NewMicrophoneSource prepares a mono S16 capture source. Nothing is opened
// until Start.
func NewMicrophoneSource(sampleRate int) *MicrophoneSource {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &MicrophoneSource{sampleRate: sampleRate}
}

func (m *MicrophoneSource) SampleRate() int {
	return m.sampleRate
}

// Start opens and starts the capture device.
func (m *MicrophoneSource) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.recording.Load() {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debugf("malgo: %s", message)
	})
	if err != nil {
		return fmt.Errorf("%w: initializing audio context: %v", ErrMicrophoneUnavailable, err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(m.sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	chunks := make(chan []byte, chunkQueueLen)
	stopCh := make(chan struct{})

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(outputBuffer, inputBuffer []byte, frameCount uint32) {
			if !m.recording.Load() || len(inputBuffer) == 0 {
				return
			}
			// miniaudio reuses inputBuffer after the callback returns
			chunk := make([]byte, len(inputBuffer))
			copy(chunk, inputBuffer)
			select {
			case chunks <- chunk:
			default:
				m.overruns.Add(1)
			}
		},
	})
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("%w: initializing capture device: %v", ErrMicrophoneUnavailable, err)
	}

	m.ctx = ctx
	m.device = device
	m.chunks = chunks
	m.stopCh = stopCh
	m.pending = nil
	m.recording.Store(true)

	if err := device.Start(); err != nil {
		m.releaseLocked()
		return fmt.Errorf("%w: starting capture device: %v", ErrMicrophoneUnavailable, err)
	}

	logger.Infof("🎙️ Microphone capture started at %d Hz", m.sampleRate)
	return nil
}

// Read fills buf with captured PCM, blocking until it is full or the source stops.
func (m *MicrophoneSource) Read(buf []byte) (int, error) {
	m.mu.Lock()
	chunks, stopCh := m.chunks, m.stopCh
	m.mu.Unlock()
	if chunks == nil || !m.recording.Load() {
		return 0, ErrSourceStopped
	}

	n := 0
	for n < len(buf) {
		if len(m.pending) > 0 {
			c := copy(buf[n:], m.pending)
			m.pending = m.pending[c:]
			n += c
			continue
		}
		select {
		case <-stopCh:
			return n, ErrSourceStopped
		case chunk := <-chunks:
			m.pending = chunk
		}
	}
	return n, nil
}

// Stop stops the device and releases it. Safe to call repeatedly.
func (m *MicrophoneSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.recording.Load() {
		return nil
	}
	m.releaseLocked()

	if n := m.overruns.Swap(0); n > 0 {
		logger.Warnf("Microphone dropped %d buffers while the pipeline was busy", n)
	}
	logger.Info("🎙️ Microphone capture stopped")
	return nil
}

func (m *MicrophoneSource) releaseLocked() {
	m.recording.Store(false)
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
	if m.device != nil {
		m.device.Uninit()
		m.device = nil
	}
	if m.ctx != nil {
		_ = m.ctx.Uninit()
		m.ctx.Free()
		m.ctx = nil
	}
	m.chunks = nil
}

func (m *MicrophoneSource) IsRecording() bool {
	return m.recording.Load()
}
