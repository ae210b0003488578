//go:build !nocgo
// +build !nocgo

package audio

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// syncFillPlayer fills its buffer on the goroutine that calls Play, then
// drains the source in the background while playing.
type syncFillPlayer struct {
	t   *testing.T
	src io.Reader

	mu       sync.Mutex
	size     int
	playing  bool
	draining bool
	consumed int
	plays    int
	closed   bool
}

func (p *syncFillPlayer) SetBufferSize(n int) { p.size = n }

func (p *syncFillPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return
	}
	p.plays++
	if p.draining {
		// Resuming keeps the buffer filled by the first Play.
		p.playing = true
		return
	}

	pcm := p.src.(*pcmBuffer)
	pcm.mu.Lock()
	ready := len(pcm.data) >= p.size || pcm.closed
	pcm.mu.Unlock()
	if !ready {
		p.t.Errorf("Play() with %d of %d bytes queued would block the writer", pcm.Len(), p.size)
		return
	}

	buf := make([]byte, p.size)
	for filled := 0; filled < p.size; {
		n, err := p.src.Read(buf)
		p.consumed += n
		filled += n
		if err != nil {
			return
		}
	}

	p.playing = true
	p.draining = true
	go p.drain()
}

func (p *syncFillPlayer) drain() {
	buf := make([]byte, 64)
	for {
		n, err := p.src.Read(buf)
		p.mu.Lock()
		p.consumed += n
		if err != nil {
			p.playing = false
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
	}
}

func (p *syncFillPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
}

func (p *syncFillPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *syncFillPlayer) Err() error { return nil }

func (p *syncFillPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *syncFillPlayer) stats() (consumed, plays int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consumed, p.plays
}

func newTestDeviceSink(t *testing.T, blockSize int) (*deviceSink, *syncFillPlayer) {
	t.Helper()
	var player *syncFillPlayer
	sink := newDeviceSink(SinkConfig{SampleRate: 24000, BlockSize: blockSize}, func(r io.Reader) devicePlayer {
		player = &syncFillPlayer{t: t, src: r}
		return player
	})
	return sink, player
}

func writeWithin(t *testing.T, sink Sink, block []float32) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- sink.Write(context.Background(), block) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Write() hung")
	}
}

func TestDeviceSinkStartsPlayerAfterPrefill(t *testing.T) {
	const block = 64
	sink, player := newTestDeviceSink(t, block)

	if err := sink.Start(); err != nil {
		t.Fatal(err)
	}
	if _, plays := player.stats(); plays != 0 {
		t.Fatal("player started before any audio was queued")
	}

	for range 8 {
		writeWithin(t, sink, make([]float32, block))
	}
	if _, plays := player.stats(); plays != 1 {
		t.Errorf("plays = %d, want 1", plays)
	}

	// Resume with whatever the player left queued.
	_ = sink.Stop()
	_ = sink.Start()
	for range 4 {
		writeWithin(t, sink, make([]float32, block))
	}

	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
	if consumed, _ := player.stats(); consumed != 12*block*BytesPerFloatSample {
		t.Errorf("player consumed %d bytes, want %d", consumed, 12*block*BytesPerFloatSample)
	}
}

func TestDeviceSinkShortAudioPlaysOnClose(t *testing.T) {
	const block = 64
	sink, player := newTestDeviceSink(t, block)

	_ = sink.Start()
	writeWithin(t, sink, make([]float32, block/2))
	if _, plays := player.stats(); plays != 0 {
		t.Fatal("player started below the prefill")
	}

	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
	if consumed, plays := player.stats(); plays != 1 || consumed != block/2*BytesPerFloatSample {
		t.Errorf("plays = %d consumed = %d, want 1 and %d", plays, consumed, block/2*BytesPerFloatSample)
	}
}

func TestDeviceSinkWriteCancelled(t *testing.T) {
	const block = 64
	sink, _ := newTestDeviceSink(t, block)

	// Never started, so nothing drains the buffer.
	for range 4 {
		writeWithin(t, sink, make([]float32, block))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sink.Write(ctx, make([]float32, block)) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Write() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Write() ignored cancellation")
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
	if err := sink.Write(context.Background(), []float32{0}); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("Write() after Close error = %v, want ErrSinkClosed", err)
	}
}
