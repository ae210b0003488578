// Package state persists the single resumable playback position.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// FileName is the default state file name inside the data directory.
const FileName = "state.json"

// State is the persisted playback position.
type State struct {
	BookPath     string `json:"book_path"`
	ChapterIndex int    `json:"chapter_index"`
	OffsetMs     int64  `json:"offset_ms"`
}

// Offset returns the saved offset as a duration.
func (s State) Offset() time.Duration {
	return time.Duration(s.OffsetMs) * time.Millisecond
}

// Matches reports whether the record belongs to path and chapter.
func (s State) Matches(path string, chapter int) bool {
	return s.BookPath != "" && s.BookPath == path && s.ChapterIndex == chapter
}

// Store reads and writes the state file at Path.
type Store struct {
	Path   string
	Logger *log.Logger
}

// NewStore returns a store for path.
func NewStore(path string) *Store {
	return &Store{Path: path}
}

func (s *Store) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

// Load returns the saved state. A missing file yields the zero State; an
// unreadable or corrupt one is logged and also yields the zero State.
func (s *Store) Load() State {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}
	}
	if err != nil {
		s.logger().Warn("Could not read state file", "path", s.Path, "err", err)
		return State{}
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger().Warn("Ignoring corrupt state file", "path", s.Path, "err", err)
		return State{}
	}
	if st.OffsetMs < 0 {
		st.OffsetMs = 0
	}
	if st.ChapterIndex < 0 {
		st.ChapterIndex = 0
	}
	return st
}

// Save writes st as indented JSON. The file is replaced atomically.
func (s *Store) Save(st State) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}

	s.logger().Debug("Saved state", "path", s.Path, "book", st.BookPath, "offset_ms", st.OffsetMs)
	return nil
}
