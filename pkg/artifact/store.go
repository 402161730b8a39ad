// Package artifact persists generated source text and restores snapshots of
// modified artifacts.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"devagent/pkg/logx"
)

// ErrNotFound is returned by Read and Snapshot when the artifact does not exist.
var ErrNotFound = errors.New("artifact not found")

// Snapshot is the content of an artifact captured before modification.
// Existed is false when there was nothing to capture; restoring such a
// snapshot removes the file.
type Snapshot struct {
	Path    string
	Text    string
	Existed bool
}

// Store reads and writes artifacts on the local filesystem.
type Store struct {
	fileMode os.FileMode
	logger   *logx.Logger
}

// NewStore creates a store writing files with mode 0644.
func NewStore() *Store {
	return &Store{fileMode: 0644, logger: logx.NewLogger("artifact")}
}

// Write replaces the file at path with text, creating parent directories as
// needed. The text goes to a temporary file in the same directory that is then
// renamed over path, so readers never see a torn file.
func (s *Store) Write(path, text string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.WriteString(text); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, s.fileMode); err != nil {
		cleanup()
		return fmt.Errorf("failed to set mode on %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	s.logger.Debug("Wrote %d bytes to %s", len(text), path)
	return nil
}

// Read returns the text at path, or ErrNotFound.
func (s *Store) Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// Snapshot captures the current content of path. A missing file yields a
// snapshot with Existed false and no error.
func (s *Store) Snapshot(path string) (Snapshot, error) {
	text, err := s.Read(path)
	if errors.Is(err, ErrNotFound) {
		return Snapshot{Path: path}, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Path: path, Text: text, Existed: true}, nil
}

// Restore puts path back to the snapshot's content.
func (s *Store) Restore(path string, snap Snapshot) error {
	if !snap.Existed {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
		return nil
	}
	if err := s.Write(path, snap.Text); err != nil {
		return fmt.Errorf("failed to restore %s: %w", path, err)
	}
	s.logger.Info("Restored %s from snapshot (%d bytes)", path, len(snap.Text))
	return nil
}
