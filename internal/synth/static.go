package synth

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Static replays fixed segments for every request. Tests use it to drive the
// playback engine with known sample counts.
type Static struct {
	Segments [][]float32
	Rate     int

	// Delay is applied before each segment, honoring cancellation.
	Delay time.Duration

	// FailAt makes Next return Err at that 1-based segment index.
	FailAt int
	Err    error

	// StartErr makes Synthesize fail outright.
	StartErr error

	mu    sync.Mutex
	texts []string
	calls atomic.Int64
}

func (s *Static) Name() string { return "static" }

func (s *Static) SampleRate() int {
	if s.Rate <= 0 {
		return 24000
	}
	return s.Rate
}

// Synthesize implements Synthesizer.
func (s *Static) Synthesize(_ context.Context, text string) (Stream, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
	if s.StartErr != nil {
		return nil, s.StartErr
	}
	return &staticStream{src: s}, nil
}

// Texts returns every text passed to Synthesize, in order.
func (s *Static) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

// Calls returns how often Synthesize was called.
func (s *Static) Calls() int64 { return s.calls.Load() }

type staticStream struct {
	src    *Static
	next   int
	closed atomic.Bool
}

func (st *staticStream) Next(ctx context.Context) ([]float32, error) {
	if st.closed.Load() || st.next >= len(st.src.Segments) {
		return nil, io.EOF
	}
	if d := st.src.Delay; d > 0 {
		t := time.NewTimer(d)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		}
	}
	st.next++
	if st.src.FailAt > 0 && st.next == st.src.FailAt {
		return nil, st.src.Err
	}
	seg := make([]float32, len(st.src.Segments[st.next-1]))
	copy(seg, st.src.Segments[st.next-1])
	return seg, nil
}

func (st *staticStream) Close() error {
	st.closed.Store(true)
	return nil
}
