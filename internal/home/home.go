// Package home manages the creel home directory layout.
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the creel home directory.
	DefaultDirName = ".creel"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// DBFileName is the embedded entity store database file.
	DBFileName = "creel.db"
)

// Dir represents the creel home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.creel).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// DBPath returns the path to the entity store database.
func (d *Dir) DBPath() string {
	return filepath.Join(d.path, DBFileName)
}

// ScratchDir returns the working directory for chunk scratch files of a
// document ingest run.
func (d *Dir) ScratchDir(documentID string) string {
	return filepath.Join(d.path, "scratch", documentID)
}

// ExportsDir returns the directory for exported population reports.
func (d *Dir) ExportsDir() string {
	return filepath.Join(d.path, "exports")
}

// EnsureExists creates the home directory and subdirectories if they
// don't exist.
func (d *Dir) EnsureExists() error {
	for _, p := range []string{d.path, d.ExportsDir()} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", p, err)
		}
	}
	return nil
}

// EnsureScratchDir creates the scratch directory for a document run.
func (d *Dir) EnsureScratchDir(documentID string) error {
	return os.MkdirAll(d.ScratchDir(documentID), 0o755)
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
