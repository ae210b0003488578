package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// MockSink records every block written to it instead of producing sound.
// It is used by tests and by --mock-audio runs on machines without a device.
type MockSink struct {
	mu      sync.Mutex
	blocks  [][]float32
	total   int64
	started bool
	closed  bool

	// Simulated device pace per block; zero writes instantly.
	delay time.Duration

	// failAfter makes the n-th write (1-based) fail; zero disables it.
	failAfter int
	writes    int

	// Metrics for testing
	startCount atomic.Int64
	stopCount  atomic.Int64
	closeCount atomic.Int64
}

// NewMockSink creates a mock sink that waits delay per written block.
func NewMockSink(delay time.Duration) *MockSink {
	return &MockSink{delay: delay}
}

// FailAfter makes the n-th write return an error.
func (m *MockSink) FailAfter(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
}

func (m *MockSink) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrSinkClosed
	}
	m.started = true
	m.startCount.Add(1)
	return nil
}

func (m *MockSink) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	m.stopCount.Add(1)
	return nil
}

func (m *MockSink) Write(ctx context.Context, block []float32) error {
	if m.delay > 0 {
		t := time.NewTimer(m.delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrSinkClosed
	}
	m.writes++
	if m.failAfter > 0 && m.writes >= m.failAfter {
		return errors.New("simulated device failure")
	}

	cp := make([]float32, len(block))
	copy(cp, block)
	m.blocks = append(m.blocks, cp)
	m.total += int64(len(block))
	return nil
}

func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.started = false
	m.closeCount.Add(1)
	return nil
}

// reopen prepares the sink for another playback run.
func (m *MockSink) reopen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = false
}

// Samples returns every sample written so far, in order.
func (m *MockSink) Samples() []float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]float32, 0, m.total)
	for _, b := range m.blocks {
		out = append(out, b...)
	}
	return out
}

// Blocks returns the number of blocks written.
func (m *MockSink) Blocks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blocks)
}

// Total returns the number of samples written.
func (m *MockSink) Total() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// IsStarted reports whether output is currently running.
func (m *MockSink) IsStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// IsClosed reports whether the sink has been closed.
func (m *MockSink) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Counts returns how often Start, Stop and Close were called.
func (m *MockSink) Counts() (starts, stops, closes int64) {
	return m.startCount.Load(), m.stopCount.Load(), m.closeCount.Load()
}

// MockOpener hands out a single shared MockSink so tests can inspect
// everything written across playback runs.
type MockOpener struct {
	Sink *MockSink

	mu      sync.Mutex
	err     error
	opened  int
	lastCfg SinkConfig
}

// NewMockOpener creates an opener whose sink waits delay per block.
func NewMockOpener(delay time.Duration) *MockOpener {
	return &MockOpener{Sink: NewMockSink(delay)}
}

// FailOpen makes subsequent Open calls return err.
func (o *MockOpener) FailOpen(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

// Open implements Opener.
func (o *MockOpener) Open(cfg SinkConfig) (Sink, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o.opened++
	o.lastCfg = cfg
	o.Sink.reopen()
	return o.Sink, nil
}

// Opened returns how many sinks were opened.
func (o *MockOpener) Opened() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened
}

// LastConfig returns the configuration of the most recent Open.
func (o *MockOpener) LastConfig() SinkConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastCfg
}
