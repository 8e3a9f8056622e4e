// Package persist provides badger-backed persistence for the engine's
// correction-history table and last-used USI options, so a long-running
// GUI/driver session keeps tuning continuity across games without the
// operator having to re-set options by hand.
package persist

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "shogizero"

// GetDataDir returns the platform-specific data directory for the engine.
//   - macOS: ~/Library/Application Support/shogizero/
//   - Linux: ~/.local/share/shogizero/
//   - Windows: %APPDATA%/shogizero/
func GetDataDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		baseDir = filepath.Join(homeDir, "Library", "Application Support")

	case "windows":
		baseDir = os.Getenv("APPDATA")
		if baseDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			baseDir = filepath.Join(homeDir, "AppData", "Roaming")
		}

	default:
		baseDir = os.Getenv("XDG_DATA_HOME")
		if baseDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			baseDir = filepath.Join(homeDir, ".local", "share")
		}
	}

	dataDir := filepath.Join(baseDir, appName)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", err
	}
	return dataDir, nil
}

// GetNNUEDir returns the directory an operator can drop trained NNUE
// network files into for the CLI entrypoint to auto-discover.
func GetNNUEDir() (string, error) {
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	nnueDir := filepath.Join(dataDir, "nnue")
	if err := os.MkdirAll(nnueDir, 0755); err != nil {
		return "", err
	}
	return nnueDir, nil
}

// GetDatabaseDir returns the directory for the badger store, creating it
// if necessary. It never writes to stdout: for a USI engine, stdout is
// the protocol channel to the GUI, and anything unsolicited written
// there corrupts the command stream.
func GetDatabaseDir() (string, error) {
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	dbDir := filepath.Join(dataDir, "db")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return "", err
	}
	return dbDir, nil
}
