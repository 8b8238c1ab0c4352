package internal

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// SetupLogging installs the default slog logger. Records always go to a
// per-invocation file under ~/.doubles/logs; with verbose they are also
// written to stderr at debug level. The returned func closes the file.
func SetupLogging(subcommand string, tag string, verbose bool) (func(), error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var writers []io.Writer
	if verbose {
		writers = append(writers, os.Stderr)
	}
	closeFn := func() {}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		logDir := filepath.Join(homeDir, ".doubles", "logs")
		if err = os.MkdirAll(logDir, 0755); err == nil {
			timestamp := time.Now().Format("20060102-150405")
			filename := fmt.Sprintf("doubles-%s-%s-%s.log", subcommand, tag, timestamp)
			var logFile *os.File
			logFile, err = os.OpenFile(filepath.Join(logDir, filename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err == nil {
				writers = append(writers, logFile)
				closeFn = func() { logFile.Close() }
			}
		}
	}

	var out io.Writer = io.Discard
	if len(writers) > 0 {
		out = io.MultiWriter(writers...)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))
	return closeFn, err
}
