package playback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgnsrekt/narrator/internal/synth"
)

func TestProduceNormalizesAndCloses(t *testing.T) {
	s := &synth.Static{Segments: [][]float32{{0.4, -0.8}, {}, {0.1}}}
	stream, _ := s.Synthesize(context.Background(), "x")
	out := make(chan []float32, 8)

	if err := produce(context.Background(), stream, 2, out); err != nil {
		t.Fatalf("produce() error = %v", err)
	}

	var got [][]float32
	for seg := range out {
		got = append(got, seg)
	}
	if len(got) != 3 {
		t.Fatalf("got %d segments, want 3", len(got))
	}
	if got[0][0] != 0.8 || got[0][1] != -1 {
		t.Errorf("first segment = %v, want [0.8 -1]", got[0])
	}
	if len(got[1]) != 1 || got[1][0] != 0 {
		t.Errorf("empty segment became %v, want one silent sample", got[1])
	}
}

func TestProduceReturnsSynthesisError(t *testing.T) {
	boom := errors.New("boom")
	s := &synth.Static{Segments: [][]float32{{0}, {0}}, FailAt: 2, Err: boom}
	stream, _ := s.Synthesize(context.Background(), "x")
	out := make(chan []float32, 8)

	err := produce(context.Background(), stream, 1, out)
	if !errors.Is(err, boom) {
		t.Fatalf("produce() error = %v, want boom", err)
	}

	n := 0
	for range out {
		n++
	}
	if n != 1 {
		t.Errorf("received %d segments before the error, want 1", n)
	}
}

func TestProduceBlocksOnFullBufferUntilCancelled(t *testing.T) {
	s := &synth.Static{Segments: [][]float32{{1}, {1}, {1}, {1}}}
	stream, _ := s.Synthesize(context.Background(), "x")
	out := make(chan []float32, 1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- produce(ctx, stream, 1, out) }()

	select {
	case <-done:
		t.Fatal("producer returned while the buffer was full")
	case <-time.After(30 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("produce() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("producer ignored cancellation")
	}

	// One buffered segment, then the end-of-stream marker.
	<-out
	if _, ok := <-out; ok {
		t.Error("channel not closed after cancellation")
	}
}

func TestGate(t *testing.T) {
	g := newGate()
	if !g.isOpen() {
		t.Fatal("new gate should be open")
	}

	g.shut()
	g.shut()
	if g.isOpen() {
		t.Fatal("gate open after shut")
	}

	wait := g.wait()
	released := make(chan struct{})
	go func() {
		<-wait
		close(released)
	}()

	g.open()
	g.open()
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("waiter not released by open")
	}
}

func TestStateStrings(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StatePlaying, "playing"},
		{StatePaused, "paused"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
	if !StatePaused.Active() || StateIdle.Active() {
		t.Error("Active() wrong")
	}
}
