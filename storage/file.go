// Package storage provides artifact store backends. Fetched artifacts are
// written under deterministic names derived from document numbers; the
// backend decides the final location. Backends are created from location
// URIs via the factory.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ecotrace-srl/rentri-client/interfaces"
)

// FileStore writes artifacts into a local directory.
type FileStore struct {
	dir         string
	log         *slog.Logger
	locationURI string
}

var _ interfaces.ArtifactStore = (*FileStore)(nil)

// NewFileStore creates a file store rooted at dir, creating the directory
// if needed.
func NewFileStore(dir string, log *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}

	return &FileStore{
		dir:         dir,
		log:         log,
		locationURI: "file://" + dir,
	}, nil
}

// Write stores data under name inside the store directory and returns the
// resulting path. Path separators and spaces in name are normalized so a
// document number always maps to a single flat filename.
func (s *FileStore) Write(ctx context.Context, name string, data []byte) (string, error) {
	path := filepath.Join(s.dir, SanitizeName(name))

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}

	s.log.Debug("Stored artifact",
		slog.String("path", path),
		slog.Int("size", len(data)))

	return path, nil
}

// Available reports whether the store directory exists and accepts writes.
func (s *FileStore) Available(ctx context.Context) bool {
	info, err := os.Stat(s.dir)
	if err != nil || !info.IsDir() {
		s.log.Debug("File store unavailable", "err", err)
		return false
	}

	probe := filepath.Join(s.dir, ".write-probe")
	if err := os.WriteFile(probe, nil, 0644); err != nil {
		s.log.Debug("File store not writable", "err", err)
		return false
	}
	os.Remove(probe)
	return true
}

// LocationURI returns the file:// URI identifying this store.
func (s *FileStore) LocationURI() string {
	return s.locationURI
}

// Dir returns the store's root directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// SanitizeName maps a document number to a safe flat filename: path
// separators become dashes and spaces become underscores.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "/", "-")
	name = strings.ReplaceAll(name, "\\", "-")
	name = strings.ReplaceAll(name, " ", "_")
	return name
}
