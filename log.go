package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

var logFile *os.File

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "narrate").CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "narrate.log"), nil
}

// setupLog sends progress to stderr. The returned closer closes the debug
// log file if enableDebugLog opened one.
func setupLog() (func() error, error) {
	log.SetOutput(os.Stderr)
	log.SetLevel(log.InfoLevel)
	log.SetReportTimestamp(false)
	return func() error {
		if logFile == nil {
			return nil
		}
		return logFile.Close()
	}, nil
}

// enableDebugLog lowers the level to debug and copies every line to the
// log file.
func enableDebugLog() error {
	if logFile != nil {
		return nil
	}
	path, err := getLogFilePath()
	if err != nil {
		return fmt.Errorf("unable to find log directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec
		return fmt.Errorf("unable to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		return fmt.Errorf("unable to open log file: %w", err)
	}
	logFile = f

	log.SetOutput(io.MultiWriter(os.Stderr, f))
	log.SetLevel(log.DebugLevel)
	log.SetReportTimestamp(true)
	log.Debug("Writing debug log", "path", path)
	return nil
}
