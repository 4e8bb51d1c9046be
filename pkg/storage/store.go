// Package storage provides key-addressed object storage for evidence uploads
// and export packages, with filesystem, S3 and GCS backends.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Store is the object-storage collaborator consumed by the registry core.
// Keys are storage URIs such as "evidence/{org}/2026/08/{uuid}.pdf" or
// "exports/{org}/{system}/{version}/{export}.zip".
type Store interface {
	// Put persists data under key.
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get retrieves the full object bytes.
	Get(ctx context.Context, key string) ([]byte, error)
	// Exists checks whether an object is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
	// Checksum returns the lowercase hex SHA-256 of the object bytes.
	Checksum(ctx context.Context, key string) (string, error)
	// PresignUpload returns a time-limited URL a client can PUT the object to.
	PresignUpload(ctx context.Context, key, contentType string, expires time.Duration) (string, error)
	// PresignDownload returns a time-limited URL to fetch the object.
	PresignDownload(ctx context.Context, key string, expires time.Duration) (string, error)
}

// FileStore is a filesystem-backed Store for development and tests. Presigned
// URLs are file:// URLs with no real expiry.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates a store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure storage dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// path maps a storage key to a local path, refusing traversal.
func (s *FileStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.baseDir, clean), nil
}

func (s *FileStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_ = contentType
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to ensure object dir: %w", err)
	}

	// Write to temp, then rename.
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to commit object: %w", err)
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("object %q not readable: %w", key, err)
	}
	return data, nil
}

func (s *FileStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, err := s.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %q: %w", key, err)
	}
	return true, nil
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (s *FileStore) Checksum(ctx context.Context, key string) (string, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func (s *FileStore) PresignUpload(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	_ = contentType
	_ = expires
	path, err := s.path(key)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", key, err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}

func (s *FileStore) PresignDownload(ctx context.Context, key string, expires time.Duration) (string, error) {
	return s.PresignUpload(ctx, key, "", expires)
}
