package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"github.com/urfave/cli/v2"
)

// closeLog closes the --log-file, if one was opened.
var closeLog = func() error { return nil }

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", strings.ToLower(s))
	}
}

// setupLogger installs the default logger: text on stderr, plus JSON lines
// in --log-file when given.
func setupLogger(c *cli.Context) error {
	level, err := parseLevel(c.String("log-level"))
	if err != nil {
		return err
	}

	logFile := c.String("log-file")
	if logFile == "" {
		slog.SetDefault(newLogger(os.Stderr, nil, level))
		return nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	slog.SetDefault(newLogger(os.Stderr, file, level))
	closeLog = file.Close
	return nil
}

func teardownLogger(*cli.Context) error {
	err := closeLog()
	closeLog = func() error { return nil }
	return err
}

func newLogger(stderr, file io.Writer, level slog.Level) *slog.Logger {
	stderrHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})
	if file == nil {
		return slog.New(stderrHandler)
	}
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(stderrHandler, fileHandler))
}
