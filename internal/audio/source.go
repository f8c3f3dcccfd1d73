package audio

import "errors"

const (
	// DefaultSampleRate matches the rate the scope was tuned for
	DefaultSampleRate = 44100
	channels          = 1
	bytesPerSample    = 2
)

var (
	// ErrMicrophoneUnavailable is returned when the capture device cannot be
	// opened, including when access to it is denied
	ErrMicrophoneUnavailable = errors.New("microphone unavailable")

	// ErrSourceStopped is returned by Read once the source has been stopped
	ErrSourceStopped = errors.New("audio source stopped")

	// ErrUnsupportedFormat is returned for audio that is not mono 16-bit PCM
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// Source yields interleaved little-endian 16-bit mono PCM.
//
// Read blocks until buf is full or the source stops; it may return a partial
// block together with ErrSourceStopped or io.EOF. Stop must be safe to call
// more than once and from another goroutine than Read.
type Source interface {
	Start() error
	Read(buf []byte) (int, error)
	Stop() error
	IsRecording() bool
	SampleRate() int
}
