package audio

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dooshek/micscope/internal/logger"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WavSource replays a mono 16-bit WAV file as if it were a live capture.
type WavSource struct {
	path string
	loop bool
	pace bool

	mu         sync.Mutex
	file       *os.File
	decoder    *wav.Decoder
	sampleRate int
	stopCh     chan struct{}
	recording  atomic.Bool

	started time.Time
	emitted int64
}

// WavOption customizes a WavSource
type WavOption func(*WavSource)

// WithLoop restarts the file from the beginning at EOF
func WithLoop(loop bool) WavOption {
	return func(w *WavSource) { w.loop = loop }
}

// WithRealtime paces Read to the file's sample rate
func WithRealtime(pace bool) WavOption {
	return func(w *WavSource) { w.pace = pace }
}

// NewWavSource validates path and prepares it for replay. Replay is paced to
// real time unless WithRealtime(false) is given.
func NewWavSource(path string, opts ...WavOption) (*WavSource, error) {
	w := &WavSource{path: path, pace: true}
	for _, opt := range opts {
		opt(w)
	}

	f, decoder, err := openWav(path)
	if err != nil {
		return nil, err
	}
	w.sampleRate = int(decoder.SampleRate)
	f.Close()
	if w.sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %s has sample rate %d", ErrUnsupportedFormat, path, w.sampleRate)
	}

	return w, nil
}

func openWav(path string) (*os.File, *wav.Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open wav file: %w", err)
	}

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %s is not a valid WAV file", ErrUnsupportedFormat, path)
	}
	if decoder.NumChans != channels || decoder.BitDepth != 16 {
		f.Close()
		return nil, nil, fmt.Errorf("%w: need mono 16-bit, got %d channels at %d bits",
			ErrUnsupportedFormat, decoder.NumChans, decoder.BitDepth)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to rewind wav file: %w", err)
	}
	decoder, err = readInfo(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, decoder, nil
}

// readInfo returns a decoder for f with the format headers already parsed.
func readInfo(f *os.File) (*wav.Decoder, error) {
	decoder := wav.NewDecoder(f)
	decoder.ReadInfo()
	if err := decoder.Err(); err != nil {
		return nil, fmt.Errorf("failed to read wav header: %w", err)
	}
	return decoder, nil
}

func (w *WavSource) SampleRate() int {
	return w.sampleRate
}

func (w *WavSource) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.recording.Load() {
		return nil
	}

	f, decoder, err := openWav(w.path)
	if err != nil {
		return err
	}
	w.file = f
	w.decoder = decoder
	w.stopCh = make(chan struct{})
	w.started = time.Now()
	w.emitted = 0
	w.recording.Store(true)

	logger.Infof("🎞️ Replaying %s at %d Hz", w.path, w.sampleRate)
	return nil
}

// Read decodes up to len(buf)/2 samples. At the end of a non-looping file it
// returns the remaining samples and io.EOF and the source stops recording.
func (w *WavSource) Read(buf []byte) (int, error) {
	w.mu.Lock()
	decoder, stopCh := w.decoder, w.stopCh
	w.mu.Unlock()
	if decoder == nil || !w.recording.Load() {
		return 0, ErrSourceStopped
	}

	samples := len(buf) / bytesPerSample
	intBuf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: w.sampleRate},
		Data:   make([]int, samples),
	}

	total := 0
	for total < samples {
		intBuf.Data = intBuf.Data[:samples-total]
		n, err := decoder.PCMBuffer(intBuf)
		if err != nil && err != io.EOF {
			return total * bytesPerSample, fmt.Errorf("failed to decode wav: %w", err)
		}
		for i := 0; i < n; i++ {
			putSample(buf[(total+i)*bytesPerSample:], intBuf.Data[i])
		}
		total += n

		if n == 0 {
			if !w.loop {
				w.recording.Store(false)
				return total * bytesPerSample, io.EOF
			}
			if decoder, err = w.rewind(); err != nil {
				return total * bytesPerSample, err
			}
		}
	}

	if err := w.wait(total, stopCh); err != nil {
		return total * bytesPerSample, err
	}
	return total * bytesPerSample, nil
}

// wait sleeps until the wall clock catches up with the samples emitted so far.
func (w *WavSource) wait(samples int, stopCh chan struct{}) error {
	w.emitted += int64(samples)
	if !w.pace {
		return nil
	}
	due := w.started.Add(time.Duration(w.emitted) * time.Second / time.Duration(w.sampleRate))
	delay := time.Until(due)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-stopCh:
		return ErrSourceStopped
	case <-timer.C:
		return nil
	}
}

func (w *WavSource) rewind() (*wav.Decoder, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind wav file: %w", err)
	}
	decoder, err := readInfo(w.file)
	if err != nil {
		return nil, err
	}
	w.decoder = decoder
	return w.decoder, nil
}

func putSample(dst []byte, v int) {
	u := uint16(int16(v))
	dst[0] = byte(u)
	dst[1] = byte(u >> 8)
}

func (w *WavSource) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.recording.Store(false)
	if w.stopCh != nil {
		close(w.stopCh)
		w.stopCh = nil
	}
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.decoder = nil
	if err != nil {
		return fmt.Errorf("failed to close wav file: %w", err)
	}
	return nil
}

func (w *WavSource) IsRecording() bool {
	return w.recording.Load()
}
