package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/narrator/internal/audio"
	"github.com/dgnsrekt/narrator/internal/playback"
	"github.com/dgnsrekt/narrator/internal/synth"
)

// fakePlayer records what it was asked to play. Playback only ends when the
// test calls finish.
type fakePlayer struct {
	mu     sync.Mutex
	state  playback.State
	loaded string
	played []string
	stops  int
	events chan playback.Event
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{events: make(chan playback.Event, 8)}
}

func (p *fakePlayer) Load(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = playback.StateIdle
	p.loaded = text
	return nil
}

func (p *fakePlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded == "" {
		return playback.ErrNotLoaded
	}
	if p.state != playback.StateIdle {
		return playback.ErrBusy
	}
	p.state = playback.StatePlaying
	p.played = append(p.played, p.loaded)
	return nil
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = playback.StateIdle
	p.loaded = ""
	p.stops++
}

func (p *fakePlayer) State() playback.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePlayer) Subscribe(int) (<-chan playback.Event, func()) {
	return p.events, func() {}
}

func (p *fakePlayer) finish() {
	p.mu.Lock()
	p.state = playback.StateIdle
	p.mu.Unlock()
	select {
	case p.events <- playback.Event{Kind: playback.EventCompleted}:
	default:
	}
}

func (p *fakePlayer) setState(s playback.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

func (p *fakePlayer) history() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func startController(t *testing.T, p Player, opts ...Option) *Controller {
	t.Helper()
	c := New(p, opts...)
	c.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := c.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	})
	return c
}

func TestSpeakEnqueueSpeakDropsClearedItem(t *testing.T) {
	p := newFakePlayer()
	c := startController(t, p, WithPollInterval(5*time.Millisecond))

	if err := c.Speak("A"); err != nil {
		t.Fatal(err)
	}
	if err := c.Enqueue("B"); err != nil {
		t.Fatal(err)
	}
	if err := c.Speak("C"); err != nil {
		t.Fatal(err)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d after Speak, want 0", c.Size())
	}

	p.finish()
	time.Sleep(50 * time.Millisecond)

	got := p.history()
	want := []string{"A", "C"}
	if len(got) != len(want) {
		t.Fatalf("played %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("played %v, want %v", got, want)
		}
	}
}

func TestEnqueuePlaysInOrder(t *testing.T) {
	p := newFakePlayer()
	c := startController(t, p)

	_ = c.Enqueue("a")
	_ = c.Enqueue("b")

	waitFor(t, "first request", func() bool { return len(p.history()) == 1 })
	if c.Size() != 1 {
		t.Errorf("Size() = %d while a plays, want 1", c.Size())
	}

	p.finish()
	waitFor(t, "second request", func() bool { return len(p.history()) == 2 })

	got := p.history()
	if got[0] != "a" || got[1] != "b" {
		t.Errorf("played %v, want [a b]", got)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0", c.Size())
	}
}

func TestDispatcherWaitsWhilePaused(t *testing.T) {
	p := newFakePlayer()
	c := startController(t, p, WithPollInterval(5*time.Millisecond))

	_ = c.Enqueue("a")
	waitFor(t, "first request", func() bool { return len(p.history()) == 1 })
	p.setState(playback.StatePaused)

	_ = c.Enqueue("b")
	time.Sleep(40 * time.Millisecond)
	if n := len(p.history()); n != 1 {
		t.Errorf("dispatched while paused: %v", p.history())
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1", c.Size())
	}
}

func TestStopClearsQueue(t *testing.T) {
	p := newFakePlayer()
	c := startController(t, p)

	_ = c.Speak("now")
	for _, s := range []string{"x", "y", "z"} {
		_ = c.Enqueue(s)
	}
	c.Stop()

	if c.Size() != 0 {
		t.Errorf("Size() after Stop = %d, want 0", c.Size())
	}
	if p.State() != playback.StateIdle {
		t.Errorf("player state = %s after Stop", p.State())
	}

	time.Sleep(30 * time.Millisecond)
	if got := p.history(); len(got) != 1 {
		t.Errorf("played %v after Stop, want only [now]", got)
	}
}

func TestEmptyTextRejected(t *testing.T) {
	p := newFakePlayer()
	c := New(p)

	for _, text := range []string{"", "   ", "\n\t"} {
		if err := c.Speak(text); !errors.Is(err, ErrEmptyText) {
			t.Errorf("Speak(%q) = %v, want ErrEmptyText", text, err)
		}
		if err := c.Enqueue(text); !errors.Is(err, ErrEmptyText) {
			t.Errorf("Enqueue(%q) = %v, want ErrEmptyText", text, err)
		}
	}
	if c.Size() != 0 || len(p.history()) != 0 {
		t.Error("rejected requests changed state")
	}
}

func TestSpeakTrimsText(t *testing.T) {
	p := newFakePlayer()
	c := New(p)
	_ = c.Speak("  hello \n")
	if got := p.history(); len(got) != 1 || got[0] != "hello" {
		t.Errorf("played %q, want [hello]", got)
	}
}

func TestItemsSnapshot(t *testing.T) {
	c := New(newFakePlayer())
	_ = c.Enqueue("one")
	_ = c.Enqueue("two")

	items := c.Items()
	if len(items) != 2 || items[0].Text != "one" || items[1].Text != "two" {
		t.Fatalf("Items() = %+v", items)
	}
	if items[0].ID == "" || items[0].ID == items[1].ID {
		t.Error("items need distinct IDs")
	}
	if items[0].EnqueuedAt.IsZero() {
		t.Error("EnqueuedAt not set")
	}
}

func TestShutdown(t *testing.T) {
	p := newFakePlayer()
	c := New(p)

	// Never started.
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() of unstarted controller = %v", err)
	}
	if err := c.Enqueue("late"); !errors.Is(err, ErrClosed) {
		t.Errorf("Enqueue after Shutdown = %v, want ErrClosed", err)
	}

	c2 := New(p)
	c2.Start()
	_ = c2.Speak("keep playing")
	if err := c2.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}
	if p.State() != playback.StatePlaying {
		t.Error("Shutdown must not stop playback")
	}
	if err := c2.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() = %v", err)
	}
}

type recordingMetrics struct {
	mu         sync.Mutex
	accepted   []string
	dispatched int
	depth      int
}

func (m *recordingMetrics) RequestAccepted(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accepted = append(m.accepted, kind)
}

func (m *recordingMetrics) RequestDispatched(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatched++
}

func (m *recordingMetrics) QueueDepth(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depth = n
}

func TestMetricsRecorded(t *testing.T) {
	m := &recordingMetrics{}
	p := newFakePlayer()
	c := startController(t, p, WithMetrics(m))

	_ = c.Enqueue("a")
	waitFor(t, "dispatch", func() bool { return len(p.history()) == 1 })
	_ = c.Speak("b")

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.accepted) != 2 || m.accepted[0] != "enqueue" || m.accepted[1] != "speak" {
		t.Errorf("accepted = %v", m.accepted)
	}
	if m.dispatched != 1 || m.depth != 0 {
		t.Errorf("dispatched = %d depth = %d", m.dispatched, m.depth)
	}
}

func TestWithRealEngine(t *testing.T) {
	s := &synth.Static{Segments: [][]float32{make([]float32, 2048)}}
	engine := playback.New(s, audio.NewMockOpener(time.Millisecond), playback.DefaultConfig())
	defer engine.Close()
	c := startController(t, engine, WithPollInterval(time.Second))

	_ = c.Enqueue("first")
	_ = c.Enqueue("second")
	_ = c.Enqueue("third")

	// Completion events wake the dispatcher well before the poll interval.
	waitFor(t, "all requests", func() bool { return len(s.Texts()) == 3 && engine.State() == playback.StateIdle })

	got := s.Texts()
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("synthesized %v, want %v", got, want)
			break
		}
	}
}
