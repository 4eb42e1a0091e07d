package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var _ BlobStore = (*FilesystemBlobStore)(nil)

// FilesystemBlobStore persists blobs on the local filesystem and serves them
// through the router's /files handler.
type FilesystemBlobStore struct {
	root    string
	baseURL string
}

// NewFilesystemBlobStore initialises a filesystem-backed blob store rooted at
// dir. baseURL is the externally reachable prefix under which the stored
// paths are served, e.g. "https://api.example.com/files".
func NewFilesystemBlobStore(dir, baseURL string) (*FilesystemBlobStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("blob store: root directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob store: ensure root directory: %w", err)
	}
	return &FilesystemBlobStore{
		root:    dir,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}, nil
}

// Root exposes the store's root directory so the router can serve it.
func (s *FilesystemBlobStore) Root() string {
	if s == nil {
		return ""
	}
	return s.root
}

// Put writes the object at path, overwriting any previous content, and
// returns the public URL.
func (s *FilesystemBlobStore) Put(_ context.Context, path string, contents io.Reader, _ string) (string, error) {
	if s == nil {
		return "", errors.New("blob store: store not initialised")
	}

	full, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("blob store: mkdir: %w", err)
	}

	// Write to a temp file first so readers never observe partial content.
	tmp, err := os.CreateTemp(filepath.Dir(full), ".put-*")
	if err != nil {
		return "", fmt.Errorf("blob store: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, contents); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("blob store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("blob store: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("blob store: rename: %w", err)
	}

	return s.urlFor(path), nil
}

// Open returns a readable stream for the stored object.
func (s *FilesystemBlobStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	if s == nil {
		return nil, errors.New("blob store: store not initialised")
	}
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

// Stat returns metadata for a stored object.
func (s *FilesystemBlobStore) Stat(_ context.Context, path string) (BlobInfo, error) {
	if s == nil {
		return BlobInfo{}, errors.New("blob store: store not initialised")
	}
	full, err := s.resolve(path)
	if err != nil {
		return BlobInfo{}, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return BlobInfo{}, err
	}

	return BlobInfo{
		Path:    path,
		URL:     s.urlFor(path),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Delete removes the stored object at path, ignoring missing objects.
func (s *FilesystemBlobStore) Delete(_ context.Context, path string) error {
	if s == nil {
		return errors.New("blob store: store not initialised")
	}
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *FilesystemBlobStore) urlFor(path string) string {
	return s.baseURL + "/" + strings.TrimLeft(filepath.ToSlash(path), "/")
}

// resolve maps a storage path onto the filesystem, rejecting traversal.
func (s *FilesystemBlobStore) resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("blob store: path is required")
	}

	cleaned := filepath.Clean(filepath.FromSlash(path))
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("blob store: invalid path %q", path)
	}
	return filepath.Join(s.root, cleaned), nil
}
