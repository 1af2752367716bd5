package config

import (
	"os"
	"path/filepath"
)

// getDataDir determines the data directory path from environment or default.
// Priority: DOCRELAY_DATA_DIR environment variable > "./data" default
func getDataDir() string {
	if dir := os.Getenv("DOCRELAY_DATA_DIR"); dir != "" {
		return dir
	}
	return "./data"
}

// GetDataDir returns the current data directory path.
// The environment is read on every call.
func GetDataDir() string {
	return getDataDir()
}

// HistoryDBPath returns the conversion history database inside dataDir.
// Path: {dataDir}/history.db
func HistoryDBPath(dataDir string) string {
	if dataDir == "" {
		dataDir = GetDataDir()
	}
	return filepath.Join(dataDir, "history.db")
}
