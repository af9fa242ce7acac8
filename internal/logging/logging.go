package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// DataDir is the project data directory; logs are written under
	// DataDir/logs/. Required unless FilePath is set directly.
	DataDir string
	// FilePath overrides the log file path. Empty derives it from DataDir.
	FilePath string
	// MaxSizeMB is the maximum size in MB before rotation (default: 10).
	MaxSizeMB int
	// MaxFiles is the maximum number of rotated files to keep (default: 5).
	MaxFiles int
	// WriteToStderr whether to also write to stderr (default: false).
	WriteToStderr bool
}

// DefaultConfig returns sensible defaults for file logging rooted at dataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		Level:     "info",
		DataDir:   dataDir,
		FilePath:  DefaultLogPath(dataDir),
		MaxSizeMB: 10,
		MaxFiles:  5,
	}
}

// Setup initializes JSON file-based logging and returns a cleanup function.
// The cleanup function flushes and closes the log file; callers should defer
// it immediately after a successful Setup.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	if err := EnsureLogDir(cfg.DataDir); err != nil {
		return nil, nil, err
	}

	path := cfg.FilePath
	if path == "" {
		path = DefaultLogPath(cfg.DataDir)
	}

	writer, err := NewRotatingWriter(path, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}

	var output io.Writer = writer
	if cfg.WriteToStderr {
		output = io.MultiWriter(writer, os.Stderr)
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	logger := slog.New(handler)

	cleanup := func() {
		_ = writer.Sync()
		_ = writer.Close()
	}

	return logger, cleanup, nil
}

// SetupDefault wires a stderr text-handler logger for CLI invocations that
// have not resolved a data directory yet. It does not write to a file.
func SetupDefault() func() {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return func() {}
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelFromString converts string level to slog.Level (exported form of
// parseLevel).
func LevelFromString(level string) slog.Level {
	return parseLevel(level)
}
