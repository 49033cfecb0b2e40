package dispatch

import (
	"fmt"
	"os"
	"path/filepath"
)

// Archive keeps the final snapshot of closed orders
type Archive interface {
	// Save writes a snapshot and returns its name
	Save(name string, data []byte) (string, error)

	// Get reads a snapshot by name
	Get(name string) ([]byte, error)

	// Delete removes a snapshot
	Delete(name string) error
}

// LocalArchive implements Archive on the local filesystem
type LocalArchive struct {
	basePath string
}

// NewLocalArchive creates a new LocalArchive rooted at basePath
func NewLocalArchive(basePath string) (*LocalArchive, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	return &LocalArchive{basePath: basePath}, nil
}

// Save writes a snapshot to the archive directory
func (l *LocalArchive) Save(name string, data []byte) (string, error) {
	if name != filepath.Base(name) {
		return "", fmt.Errorf("invalid archive name: %q", name)
	}
	if err := os.WriteFile(filepath.Join(l.basePath, name), data, 0644); err != nil {
		return "", fmt.Errorf("writing archive: %w", err)
	}
	return name, nil
}

// Get reads a snapshot from the archive directory
func (l *LocalArchive) Get(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.basePath, filepath.Base(name)))
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	return data, nil
}

// Delete removes a snapshot from the archive directory
func (l *LocalArchive) Delete(name string) error {
	if err := os.Remove(filepath.Join(l.basePath, filepath.Base(name))); err != nil {
		return fmt.Errorf("deleting archive: %w", err)
	}
	return nil
}
