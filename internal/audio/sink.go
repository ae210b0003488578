package audio

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDeviceUnavailable indicates the audio device cannot be opened.
	ErrDeviceUnavailable = errors.New("audio device unavailable")

	// ErrSinkClosed is returned when writing to a closed sink.
	ErrSinkClosed = errors.New("sink is closed")
)

// Sink is an opened output stream that accepts fixed-size blocks of mono
// float samples. A sink is owned by exactly one playback loop and is never
// written from two goroutines at once.
type Sink interface {
	// Start begins or restarts device output.
	Start() error

	// Stop suspends device output without discarding queued audio.
	Stop() error

	// Write blocks until the block has been accepted by the device or ctx
	// is done.
	Write(ctx context.Context, block []float32) error

	// Close releases the device. Audio already accepted is drained unless
	// the sink is stopped.
	Close() error
}

// Opener opens a sink for a single playback run.
type Opener interface {
	Open(cfg SinkConfig) (Sink, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(cfg SinkConfig) (Sink, error)

// Open implements Opener.
func (f OpenerFunc) Open(cfg SinkConfig) (Sink, error) { return f(cfg) }

// SinkConfig describes the stream a sink must accept.
type SinkConfig struct {
	SampleRate int
	BlockSize  int
}

// DefaultSinkConfig returns the default sink configuration.
func DefaultSinkConfig() SinkConfig {
	return SinkConfig{
		SampleRate: DefaultSampleRate,
		BlockSize:  DefaultBlockSize,
	}
}

// Validate checks the sink configuration.
func (c SinkConfig) Validate() error {
	if c.SampleRate < 8000 || c.SampleRate > 192000 {
		return fmt.Errorf("sample rate must be between 8000 and 192000 Hz, got %d", c.SampleRate)
	}
	if c.BlockSize <= 0 {
		return errors.New("block size must be positive")
	}
	return nil
}
