package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"github.com/dgnsrekt/narrator/internal/playback"
)

func (m *Model) setSize(w, h int) {
	m.width = w
	vh := h - titleHeight - statusBarHeight - helpHeight
	if vh < 1 {
		vh = 1
	}
	if !m.ready {
		m.viewport = viewport.New(w, vh)
		m.ready = true
	} else {
		m.viewport.Width = w
		m.viewport.Height = vh
	}
	m.render()
}

// render lays out one sentence per block and keeps the highlighted one in
// view.
func (m *Model) render() {
	if !m.ready {
		return
	}
	wrap := m.viewport.Width - 2
	if wrap < 10 {
		wrap = 10
	}

	var (
		b       strings.Builder
		line    int
		current = -1
	)
	for i, s := range m.track.Sentences() {
		block := wordwrap.String(s, wrap)
		if i == m.current {
			current = line
			block = currentSentenceStyle.Render(block)
		} else {
			block = sentenceStyle.Render(block)
		}
		if i > 0 {
			b.WriteRune('\n')
		}
		b.WriteString(block)
		line += strings.Count(block, "\n") + 1
	}
	m.viewport.SetContent(b.String())

	if current >= 0 && (current < m.viewport.YOffset || current >= m.viewport.YOffset+m.viewport.Height) {
		m.viewport.SetYOffset(current)
	}
}

func (m *Model) View() string {
	if !m.ready {
		return "\n  Loading…"
	}
	var b strings.Builder
	b.WriteString(m.titleView())
	b.WriteRune('\n')
	b.WriteString(m.viewport.View())
	b.WriteRune('\n')
	b.WriteString(m.statusBarView())
	b.WriteRune('\n')
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) titleView() string {
	name := "narrator"
	if m.cfg.Path != "" {
		name = filepath.Base(m.cfg.Path)
	}
	return titleStyle.Render(truncate.StringWithTail(name, uint(max(m.width-2, 1)), "…")) //nolint:gosec
}

func (m *Model) statusBarView() string {
	st := statusStateStyle.Render(stateIcon(m.playerSt) + " " + m.playerSt.String())

	sentence := "-"
	if m.current >= 0 {
		sentence = fmt.Sprintf("%d/%d", m.current+1, m.track.Len())
	}
	note := fmt.Sprintf(" %s / ~%s  sentence %s  %s chars",
		formatDuration(m.offset),
		formatDuration(m.track.Duration()),
		sentence,
		humanize.Comma(int64(len(m.cfg.Text))),
	)
	if m.lastErr != nil {
		note += "  " + errorStyle.Render(m.lastErr.Error())
	}

	avail := m.width - lipgloss.Width(st)
	if avail < 0 {
		avail = 0
	}
	note = truncate.StringWithTail(note, uint(avail), "…") //nolint:gosec
	pad := avail - lipgloss.Width(note)
	if pad < 0 {
		pad = 0
	}
	return st + statusBarStyle.Render(note+strings.Repeat(" ", pad))
}

func stateIcon(s playback.State) string {
	switch s {
	case playback.StatePlaying:
		return "▶"
	case playback.StatePaused:
		return "⏸"
	default:
		return "■"
	}
}

// formatDuration renders d as m:ss.
func formatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
