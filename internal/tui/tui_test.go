package tui

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/narrator/internal/playback"
	"github.com/dgnsrekt/narrator/internal/state"
)

type fakePlayer struct {
	mu     sync.Mutex
	state  playback.State
	text   string
	offset time.Duration
	calls  []string
	events chan playback.Event
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{events: make(chan playback.Event, 4)}
}

func (p *fakePlayer) record(call string) {
	p.calls = append(p.calls, call)
}

func (p *fakePlayer) Load(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("load")
	p.text = text
	p.state = playback.StateIdle
	p.offset = 0
	return nil
}

func (p *fakePlayer) SetOffset(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("offset")
	p.offset = d
	return nil
}

func (p *fakePlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.text == "" {
		return playback.ErrNotLoaded
	}
	p.record("play")
	p.state = playback.StatePlaying
	return nil
}

func (p *fakePlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != playback.StatePlaying {
		return playback.ErrNotPlaying
	}
	p.record("pause")
	p.state = playback.StatePaused
	return nil
}

func (p *fakePlayer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != playback.StatePaused {
		return playback.ErrNotPaused
	}
	p.record("resume")
	p.state = playback.StatePlaying
	return nil
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("stop")
	p.state = playback.StateIdle
	p.text = ""
	p.offset = 0
}

func (p *fakePlayer) State() playback.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePlayer) Offset() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offset
}

func (p *fakePlayer) Text() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.text
}

func (p *fakePlayer) Subscribe(int) (<-chan playback.Event, func()) {
	return p.events, func() {}
}

func (p *fakePlayer) setOffset(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offset = d
}

func (p *fakePlayer) history() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Join(p.calls, ",")
}

const text = "First sentence here. Second one follows! Third closes?"

func newTestModel(t *testing.T, cfg Config) (*Model, *fakePlayer, *state.Store) {
	t.Helper()
	p := newFakePlayer()
	store := &state.Store{Path: filepath.Join(t.TempDir(), "state.json"), Logger: log.New(io.Discard)}
	if cfg.Text == "" {
		cfg.Text = text
	}
	if cfg.Path == "" {
		cfg.Path = "/books/test.txt"
	}
	cfg.MsPerChar = 100
	cfg.Speed = 1
	m := New(p, store, cfg, log.New(io.Discard))
	t.Cleanup(m.Close)
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 20})
	return m, p, store
}

func keyPress(k string) tea.KeyMsg {
	if k == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func TestInitResumesAndAutoPlays(t *testing.T) {
	m, p, _ := newTestModel(t, Config{Resume: 1500 * time.Millisecond, AutoPlay: true})
	m.Init()

	if got := p.history(); got != "load,offset,play" {
		t.Errorf("calls = %s, want load,offset,play", got)
	}
	if p.Offset() != 1500*time.Millisecond {
		t.Errorf("offset = %v", p.Offset())
	}
}

func TestInitWithoutAutoPlay(t *testing.T) {
	m, p, _ := newTestModel(t, Config{})
	m.Init()
	if got := p.history(); got != "load" {
		t.Errorf("calls = %s, want load", got)
	}
}

func TestPauseResumeSavesPosition(t *testing.T) {
	m, p, store := newTestModel(t, Config{Chapter: 2, AutoPlay: true})
	m.Init()
	p.setOffset(2300 * time.Millisecond)

	m.Update(keyPress(" "))
	if p.State() != playback.StatePaused {
		t.Fatalf("state = %s after space, want paused", p.State())
	}
	want := state.State{BookPath: "/books/test.txt", ChapterIndex: 2, OffsetMs: 2300}
	if got := store.Load(); got != want {
		t.Errorf("saved %+v, want %+v", got, want)
	}

	m.Update(keyPress(" "))
	if p.State() != playback.StatePlaying {
		t.Errorf("state = %s after second space, want playing", p.State())
	}
}

func TestStopThenPlayReloads(t *testing.T) {
	m, p, store := newTestModel(t, Config{AutoPlay: true})
	m.Init()
	p.setOffset(4 * time.Second)

	m.Update(keyPress("s"))
	if p.State() != playback.StateIdle {
		t.Fatalf("state = %s after stop", p.State())
	}
	if got := store.Load(); got.OffsetMs != 0 || got.BookPath == "" {
		t.Errorf("saved %+v after stop, want offset 0", got)
	}

	m.Update(keyPress("p"))
	if got := p.history(); got != "load,play,stop,load,play" {
		t.Errorf("calls = %s", got)
	}
	if p.State() != playback.StatePlaying {
		t.Errorf("state = %s after p", p.State())
	}
}

func TestSpaceWhileIdlePlays(t *testing.T) {
	m, p, _ := newTestModel(t, Config{})
	m.Init()
	m.Update(keyPress(" "))
	if p.State() != playback.StatePlaying {
		t.Errorf("state = %s, want playing", p.State())
	}
}

func TestQuitSavesAndStops(t *testing.T) {
	m, p, store := newTestModel(t, Config{AutoPlay: true})
	m.Init()
	p.setOffset(750 * time.Millisecond)

	_, cmd := m.Update(keyPress("q"))
	if cmd == nil {
		t.Fatal("quit returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("quit command does not quit")
	}
	if p.State() != playback.StateIdle {
		t.Errorf("state = %s after quit", p.State())
	}
	if got := store.Load(); got.OffsetMs != 750 {
		t.Errorf("saved offset = %d, want 750", got.OffsetMs)
	}
}

func TestCancelledRunSavesPosition(t *testing.T) {
	m, p, store := newTestModel(t, Config{Chapter: 1, Resume: 1500 * time.Millisecond, AutoPlay: true})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := run(ctx, m,
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
		tea.WithoutRenderer(),
		tea.WithoutSignalHandler(),
	)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	want := state.State{BookPath: "/books/test.txt", ChapterIndex: 1, OffsetMs: 1500}
	if got := store.Load(); got != want {
		t.Errorf("saved %+v, want %+v", got, want)
	}
	if p.State() != playback.StateIdle {
		t.Errorf("state = %s after cancellation", p.State())
	}
}

func TestHighlightFollowsOffset(t *testing.T) {
	m, p, _ := newTestModel(t, Config{AutoPlay: true})
	m.Init()

	// "First sentence here." is 20 characters at 100ms each.
	tests := []struct {
		offset time.Duration
		want   int
	}{
		{0, 0},
		{1999 * time.Millisecond, 0},
		{2 * time.Second, 1},
		{time.Hour, -1},
	}
	for _, tt := range tests {
		p.setOffset(tt.offset)
		m.Update(tickMsg(time.Now()))
		if m.current != tt.want {
			t.Errorf("offset %v: sentence = %d, want %d", tt.offset, m.current, tt.want)
		}
	}

	p.setOffset(0)
	m.Update(keyPress("s"))
	if m.current != -1 {
		t.Errorf("sentence = %d while idle, want -1", m.current)
	}
}

func TestEvents(t *testing.T) {
	m, _, store := newTestModel(t, Config{AutoPlay: true})
	m.Init()
	_ = store.Save(state.State{BookPath: "/books/test.txt", OffsetMs: 999})

	m.Update(eventMsg(playback.Event{Kind: playback.EventCompleted}))
	if got := store.Load(); got.OffsetMs != 0 {
		t.Errorf("offset after completion = %d, want 0", got.OffsetMs)
	}

	boom := errors.New("device unplugged")
	m.Update(eventMsg(playback.Event{Kind: playback.EventError, Err: boom}))
	if !errors.Is(m.lastErr, boom) {
		t.Errorf("lastErr = %v", m.lastErr)
	}
	if !strings.Contains(m.View(), "device unplugged") {
		t.Error("error not shown in view")
	}
}

func TestReload(t *testing.T) {
	m, p, _ := newTestModel(t, Config{AutoPlay: true})
	m.Init()

	m.Update(reloadMsg{text: "Brand new. Text."})
	if m.track.Len() != 2 {
		t.Errorf("track has %d sentences, want 2", m.track.Len())
	}
	if p.Text() != "Brand new. Text." {
		t.Errorf("player text = %q", p.Text())
	}
	if p.State() != playback.StatePlaying {
		t.Errorf("state = %s, want playback restarted", p.State())
	}

	before := p.history()
	m.Update(reloadMsg{text: "Brand new. Text."})
	if p.history() != before {
		t.Error("identical content should not restart playback")
	}
}

func TestView(t *testing.T) {
	m, _, _ := newTestModel(t, Config{})
	m.Init()
	v := m.View()
	for _, want := range []string{"test.txt", "First sentence here.", "idle", "pause/resume"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestWatchFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.txt")
	if err := os.WriteFile(path, []byte("Old text."), 0o600); err != nil {
		t.Fatal(err)
	}

	m, _, _ := newTestModel(t, Config{Path: path, Text: "Old text.", Watch: true})
	if m.watcher == nil {
		t.Skip("fsnotify unavailable")
	}

	if err := os.WriteFile(path, []byte("New text."), 0o600); err != nil {
		t.Fatal(err)
	}

	// A write can surface as several events; the first may see a truncated
	// file.
	deadline := time.After(3 * time.Second)
	for {
		got := make(chan tea.Msg, 1)
		cmd := m.watchFile()
		go func() { got <- cmd() }()

		select {
		case msg := <-got:
			if r, ok := msg.(reloadMsg); ok && r.text == "New text." {
				return
			}
		case <-deadline:
			t.Fatal("no reload after write")
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[time.Duration]string{
		0:                       "0:00",
		1500 * time.Millisecond: "0:01",
		75 * time.Second:        "1:15",
		61 * time.Minute:        "61:00",
	}
	for d, want := range tests {
		if got := formatDuration(d); got != want {
			t.Errorf("formatDuration(%v) = %q, want %q", d, got, want)
		}
	}
}
