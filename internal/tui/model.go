// Package tui is the terminal reader: it shows the text being narrated,
// highlights the estimated current sentence and maps keys onto the playback
// engine.
package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/dgnsrekt/narrator/internal/highlight"
	"github.com/dgnsrekt/narrator/internal/playback"
	"github.com/dgnsrekt/narrator/internal/state"
)

const (
	titleHeight     = 1
	statusBarHeight = 1
	helpHeight      = 1
)

// Player is the engine surface the reader drives.
type Player interface {
	Load(text string) error
	SetOffset(d time.Duration) error
	Play() error
	Pause() error
	Resume() error
	Stop()
	State() playback.State
	Offset() time.Duration
	Text() string
	Subscribe(buffer int) (<-chan playback.Event, func())
}

// Config describes what the reader shows and how it behaves.
type Config struct {
	// Path is the file being read. It names the saved position and is
	// watched for changes when Watch is set.
	Path    string
	Chapter int
	Text    string

	// Resume is preset as the playback offset before the first Play.
	Resume   time.Duration
	AutoPlay bool
	Watch    bool

	MsPerChar float64
	Speed     float64
	Refresh   time.Duration
}

type (
	tickMsg   time.Time
	eventMsg  playback.Event
	reloadMsg struct{ text string }
	errMsg    struct{ err error }
)

// Model is the bubbletea model of the reader.
type Model struct {
	cfg    Config
	player Player
	store  *state.Store
	logger *log.Logger

	track    *highlight.Track
	current  int
	playerSt playback.State
	offset   time.Duration
	lastErr  error

	events      <-chan playback.Event
	unsubscribe func()
	watcher     *fsnotify.Watcher

	keys     keyMap
	help     help.Model
	viewport viewport.Model
	width    int
	ready    bool
	quitting bool
}

// New creates the reader. store may be nil to disable position saving.
func New(p Player, store *state.Store, cfg Config, logger *log.Logger) *Model {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Refresh <= 0 {
		cfg.Refresh = 100 * time.Millisecond
	}
	m := &Model{
		cfg:     cfg,
		player:  p,
		store:   store,
		logger:  logger.WithPrefix("reader"),
		track:   highlight.NewTrack(cfg.Text, cfg.MsPerChar, cfg.Speed),
		current: -1,
		keys:    defaultKeyMap(),
		help:    help.New(),
	}
	m.events, m.unsubscribe = p.Subscribe(16)
	if cfg.Watch && cfg.Path != "" {
		m.initWatcher()
	}
	return m
}

// Run starts the reader full screen and blocks until the user quits or ctx
// ends. The position is saved either way.
func Run(ctx context.Context, m *Model) error {
	return run(ctx, m, tea.WithAltScreen())
}

func run(ctx context.Context, m *Model, opts ...tea.ProgramOption) error {
	opts = append(opts, tea.WithContext(ctx))
	_, err := tea.NewProgram(m, opts...).Run()
	if !m.quitting {
		m.quit()
	}
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("unable to run reader: %w", err)
	}
	return nil
}

// Close releases the event subscription and the file watcher.
func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	if m.watcher != nil {
		_ = m.watcher.Close()
		m.watcher = nil
	}
}

func (m *Model) Init() tea.Cmd {
	if err := m.player.Load(m.cfg.Text); err != nil {
		m.lastErr = err
	} else if m.cfg.Resume > 0 {
		if err := m.player.SetOffset(m.cfg.Resume); err != nil {
			m.lastErr = err
		}
		m.logger.Info("Resuming", "path", m.cfg.Path, "offset", m.cfg.Resume)
	}
	if m.cfg.AutoPlay && m.lastErr == nil {
		m.lastErr = m.player.Play()
	}
	m.sync()

	cmds := []tea.Cmd{m.tick(), m.waitForEvent()}
	if m.watcher != nil {
		cmds = append(cmds, m.watchFile())
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quit()
			return m, tea.Quit
		case key.Matches(msg, m.keys.Toggle):
			m.toggle()
		case key.Matches(msg, m.keys.Play):
			m.play()
		case key.Matches(msg, m.keys.Stop):
			m.stop()
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}

	case tickMsg:
		cmds = append(cmds, m.tick())

	case eventMsg:
		m.handleEvent(playback.Event(msg))
		cmds = append(cmds, m.waitForEvent())

	case reloadMsg:
		m.reload(msg.text)
		cmds = append(cmds, m.watchFile())

	case errMsg:
		m.lastErr = msg.err
		cmds = append(cmds, m.watchFile())
	}

	m.sync()

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// sync refreshes state, offset and the highlighted sentence from the
// player and re-renders when the sentence moved.
func (m *Model) sync() {
	m.playerSt = m.player.State()
	m.offset = m.player.Offset()

	idx := -1
	if m.playerSt.Active() {
		idx = m.track.At(m.offset)
	}
	if idx != m.current {
		m.current = idx
		m.render()
	}
}

func (m *Model) toggle() {
	switch m.player.State() {
	case playback.StatePlaying:
		if err := m.player.Pause(); err != nil {
			m.lastErr = err
			return
		}
		m.save(m.player.Offset())
	case playback.StatePaused:
		m.lastErr = m.player.Resume()
	default:
		m.play()
	}
}

func (m *Model) play() {
	if m.player.State() != playback.StateIdle {
		return
	}
	m.lastErr = nil
	// Stop clears the loaded text; a completed request keeps it.
	if m.player.Text() == "" {
		if err := m.player.Load(m.cfg.Text); err != nil {
			m.lastErr = err
			return
		}
	}
	m.lastErr = m.player.Play()
}

func (m *Model) stop() {
	m.player.Stop()
	m.save(0)
}

func (m *Model) quit() {
	m.quitting = true
	offset := m.player.Offset()
	m.player.Stop()
	m.save(offset)
	m.Close()
}

func (m *Model) save(offset time.Duration) {
	if m.store == nil || m.cfg.Path == "" {
		return
	}
	st := state.State{
		BookPath:     m.cfg.Path,
		ChapterIndex: m.cfg.Chapter,
		OffsetMs:     offset.Milliseconds(),
	}
	if err := m.store.Save(st); err != nil {
		m.logger.Error("Could not save position", "err", err)
		m.lastErr = err
	}
}

func (m *Model) handleEvent(ev playback.Event) {
	switch ev.Kind {
	case playback.EventCompleted:
		m.logger.Debug("Narration complete", "path", m.cfg.Path)
		m.save(0)
	case playback.EventError:
		m.logger.Error("Playback failed", "err", ev.Err)
		m.lastErr = ev.Err
	}
}

// reload swaps in new text after the watched file changed, restarting
// narration from the top if it was running.
func (m *Model) reload(text string) {
	if text == m.cfg.Text {
		return
	}
	wasActive := m.player.State().Active()
	m.player.Stop()

	m.cfg.Text = text
	m.track = highlight.NewTrack(text, m.cfg.MsPerChar, m.cfg.Speed)
	m.current = -1
	m.render()

	if err := m.player.Load(text); err != nil {
		m.lastErr = err
		return
	}
	if wasActive {
		m.lastErr = m.player.Play()
	}
	m.logger.Info("Reloaded", "path", m.cfg.Path, "sentences", m.track.Len())
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.cfg.Refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) waitForEvent() tea.Cmd {
	ch := m.events
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func readFile(path string) tea.Msg {
	b, err := os.ReadFile(path)
	if err != nil {
		return errMsg{err}
	}
	return reloadMsg{text: string(b)}
}
