package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/narrator/internal/config"
)

// logFile is kept open so serve can add stderr next to it.
var logFile *os.File

func setupLog() (func() error, error) {
	log.SetOutput(io.Discard)

	// Log to file, if set
	path, err := config.LogFile()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		return nil, err
	}
	logFile = f
	log.SetOutput(f)
	log.SetReportTimestamp(true)
	log.SetLevel(log.InfoLevel)
	return f.Close, nil
}

// logToStderr mirrors the log to stderr for long-running commands.
func logToStderr() {
	if logFile == nil {
		log.SetOutput(os.Stderr)
		return
	}
	log.SetOutput(io.MultiWriter(logFile, os.Stderr))
}
