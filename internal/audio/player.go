//go:build !nocgo
// +build !nocgo

package audio

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process; it is created on first use and
// shared by every sink afterwards.
var (
	otoOnce    sync.Once
	otoContext *oto.Context
	otoRate    int
	otoErr     error
)

const contextReadyTimeout = 5 * time.Second

func sharedContext(sampleRate int) (*oto.Context, error) {
	otoOnce.Do(func() {
		options := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: Channels,
			Format:       oto.FormatFloat32LE,
		}

		switch runtime.GOOS {
		case "darwin":
			options.BufferSize = 100 * time.Millisecond
		case "windows":
			options.BufferSize = 80 * time.Millisecond
		default:
			options.BufferSize = 50 * time.Millisecond
		}

		log.Debug("Initializing audio context",
			"sample_rate", options.SampleRate,
			"buffer_size", options.BufferSize)

		ctx, ready, err := oto.NewContext(options)
		if err != nil {
			otoErr = fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
			return
		}

		select {
		case <-ready:
			otoContext = ctx
			otoRate = sampleRate
		case <-time.After(contextReadyTimeout):
			otoErr = fmt.Errorf("%w: context initialization timeout after %v", ErrDeviceUnavailable, contextReadyTimeout)
		}
	})

	if otoErr != nil {
		return nil, otoErr
	}
	if otoRate != sampleRate {
		return nil, fmt.Errorf("%w: device already opened at %d Hz, requested %d Hz",
			ErrDeviceUnavailable, otoRate, sampleRate)
	}
	return otoContext, nil
}

// DeviceOpener opens sinks on the default audio device.
type DeviceOpener struct{}

// Open implements Opener.
func (DeviceOpener) Open(cfg SinkConfig) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sink config: %w", err)
	}

	ctx, err := sharedContext(cfg.SampleRate)
	if err != nil {
		return nil, err
	}

	return newDeviceSink(cfg, func(r io.Reader) devicePlayer {
		return ctx.NewPlayer(r)
	}), nil
}

// devicePlayer is the part of *oto.Player a sink drives.
type devicePlayer interface {
	Play()
	Pause()
	IsPlaying() bool
	SetBufferSize(bufferSize int)
	Err() error
	Close() error
}

// underrunWait bounds how long oto's read of an empty buffer waits before
// the device plays silence. oto holds the player lock while it reads.
const underrunWait = 10 * time.Millisecond

// deviceSink feeds a player from a bounded buffer. oto pulls from it at
// device pace, so Write blocks while the device is busy.
//
// oto's Play fills the player buffer on the calling goroutine, which is also
// the goroutine that writes. The player is therefore only started once a
// full player buffer is queued, or when Close ends the stream.
type deviceSink struct {
	player  devicePlayer
	pcm     *pcmBuffer
	buf     []byte
	prefill int

	mu         sync.Mutex
	stopped    bool
	closed     bool
	drainLimit time.Duration
}

func newDeviceSink(cfg SinkConfig, newPlayer func(io.Reader) devicePlayer) *deviceSink {
	blockBytes := cfg.BlockSize * BytesPerFloatSample * Channels
	pcm := newPCMBuffer(4*blockBytes, underrunWait)
	player := newPlayer(pcm)
	player.SetBufferSize(2 * blockBytes)

	return &deviceSink{
		player:     player,
		pcm:        pcm,
		buf:        make([]byte, 0, blockBytes),
		prefill:    2 * blockBytes,
		stopped:    true,
		drainLimit: time.Second + time.Duration(cfg.BlockSize)*time.Second/time.Duration(cfg.SampleRate),
	}
}

func (s *deviceSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	s.stopped = false
	s.playLocked()
	return nil
}

func (s *deviceSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.stopped = true
	s.player.Pause()
	return nil
}

// playLocked starts the player when it is wanted and enough audio is
// queued for Play to return without waiting on a Write.
func (s *deviceSink) playLocked() {
	if s.stopped || s.player.IsPlaying() {
		return
	}
	if s.closed || s.pcm.Len() >= s.prefill {
		s.player.Play()
	}
}

func (s *deviceSink) Write(ctx context.Context, block []float32) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSinkClosed
	}

	s.buf = EncodeFloat32LE(s.buf[:0], block)
	if err := s.pcm.Write(ctx, s.buf); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("device write: %w", err)
	}

	s.mu.Lock()
	s.playLocked()
	s.mu.Unlock()
	return s.player.Err()
}

func (s *deviceSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stopped := s.stopped
	s.pcm.Close()
	// Audio shorter than the prefill has not reached the player yet.
	s.playLocked()
	s.mu.Unlock()

	// Let the device play out what it already buffered.
	if !stopped {
		deadline := time.Now().Add(s.drainLimit)
		for s.player.IsPlaying() && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
	}

	s.pcm.CloseWithError(ErrSinkClosed)
	return s.player.Close()
}
