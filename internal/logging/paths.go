package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the logs directory nested under dataDir, the
// project's resolved data directory (see config.Config.DataDir).
func DefaultLogDir(dataDir string) string {
	return filepath.Join(dataDir, "logs")
}

// DefaultLogPath returns the default index log path under dataDir.
func DefaultLogPath(dataDir string) string {
	return filepath.Join(DefaultLogDir(dataDir), "index.log")
}

// EnsureLogDir creates the logs directory under dataDir if it doesn't exist.
func EnsureLogDir(dataDir string) error {
	return os.MkdirAll(DefaultLogDir(dataDir), 0o755)
}

// FindLogFile resolves the log file to read. An explicit path takes precedence over the dataDir default.
func FindLogFile(dataDir, explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	path := DefaultLogPath(dataDir)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("no log file found; expected at %s", path)
}
