// Package storage archives aggregated crawl documents, either on the local
// filesystem or in S3-compatible object storage.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zombar/linkray/slug"
)

// Config contains filesystem storage configuration.
type Config struct {
	BasePath string // Base directory for all stored documents
}

// DefaultConfig returns default storage configuration.
func DefaultConfig() Config {
	return Config{
		BasePath: "./storage",
	}
}

// Storage archives documents on the local filesystem.
type Storage struct {
	config Config
}

// New creates a Storage instance, creating the base directory if needed.
func New(config Config) (*Storage, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory: %w", err)
	}
	return &Storage{config: config}, nil
}

// SaveDocument writes a crawl document and returns its key relative to the
// base directory. An existing document for the same fingerprint in the same
// month is overwritten: the newest crawl is the one worth keeping.
func (s *Storage) SaveDocument(ctx context.Context, fingerprint, title, text string) (string, error) {
	key := documentKey(fingerprint, title, time.Now())

	fullPath := filepath.Join(s.config.BasePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create document directory: %w", err)
	}

	if err := os.WriteFile(fullPath, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("failed to write document file: %w", err)
	}

	return key, nil
}

// ReadDocument reads an archived document by its key.
func (s *Storage) ReadDocument(ctx context.Context, key string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.config.BasePath, filepath.FromSlash(key)))
	if err != nil {
		return "", fmt.Errorf("failed to read document file: %w", err)
	}
	return string(data), nil
}

// DeleteDocument removes an archived document. Deleting a missing document
// is not an error.
func (s *Storage) DeleteDocument(ctx context.Context, key string) error {
	err := os.Remove(filepath.Join(s.config.BasePath, filepath.FromSlash(key)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete document file: %w", err)
	}
	return nil
}

// documentKey builds the storage key docs/YYYY/MM/<slug>-<fp8>.txt. The
// fingerprint prefix keeps keys distinct across sites with identical titles.
func documentKey(fingerprint, title string, now time.Time) string {
	name := slug.GenerateWithFallback(title, "untitled")
	fp := fingerprint
	if len(fp) > 8 {
		fp = fp[:8]
	}
	return strings.Join([]string{
		"docs",
		fmt.Sprintf("%04d", now.Year()),
		fmt.Sprintf("%02d", int(now.Month())),
		fmt.Sprintf("%s-%s.txt", name, fp),
	}, "/")
}
