package tui

import (
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
)

func (m *Model) initWatcher() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		m.logger.Error("error creating fsnotify watcher", "error", err)
		return
	}
	dir := filepath.Dir(m.cfg.Path)
	if err := w.Add(dir); err != nil {
		m.logger.Error("error adding dir to fsnotify watcher", "error", err)
		_ = w.Close()
		return
	}
	m.logger.Info("fsnotify watching dir", "dir", dir)
	m.watcher = w
}

// watchFile returns a command that blocks until the watched file is written
// or created and then reads it. Editors that replace the file show up as a
// create.
func (m *Model) watchFile() tea.Cmd {
	w := m.watcher
	if w == nil {
		return nil
	}
	path := filepath.Clean(m.cfg.Path)
	logger := m.logger

	return func() tea.Msg {
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return nil
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				logger.Debug("fsnotify event", "file", event.Name, "event", event.Op)
				return readFile(path)
			case err, ok := <-w.Errors:
				if !ok {
					return nil
				}
				logger.Debug("fsnotify error", "error", err)
			}
		}
	}
}
