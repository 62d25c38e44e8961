package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/habla/internal/config"
)

// setupLog sends log output to the configured file. The TUI owns the
// terminal, so without a file logs are discarded.
func setupLog(s config.Settings) (func() error, error) {
	log.SetOutput(io.Discard)

	logFile := s.LogFile
	if logFile == "" && s.Debug {
		logFile = filepath.Join(s.StateDir, config.AppName+".log")
	}
	if logFile == "" {
		return func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}
	log.SetOutput(f)
	log.SetReportTimestamp(true)
	if s.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	return f.Close, nil
}
