package storage

import (
	"context"
	"io"
	"time"
)

// BlobStore abstracts the durable storage for generated audio artifacts.
// Writes are keyed by the same path as the cache index so identical requests
// land on the same object; overwrites are allowed.
type BlobStore interface {
	// Put stores the object at path and returns its public URL.
	Put(ctx context.Context, path string, contents io.Reader, contentType string) (string, error)
	// Open returns a readable stream for the stored object.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Stat returns metadata for the stored object located at path.
	Stat(ctx context.Context, path string) (BlobInfo, error)
	// Delete removes the stored object at path.
	Delete(ctx context.Context, path string) error
}

// BlobInfo captures size and timestamp metadata for stored objects.
type BlobInfo struct {
	Path        string
	URL         string
	Size        int64
	ContentType string
	ModTime     time.Time
}
