// Package gcs provides an archive BlobStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// Config selects the bucket. ChunkSize overrides the resumable upload chunk
// size; hour files are usually small enough for a single request.
type Config struct {
	Bucket    string
	ChunkSize int
	// Metadata is attached to every uploaded object.
	Metadata map[string]string
}

type objectWriter interface {
	io.Writer
	Close() error
}

type openFunc func(ctx context.Context, object, contentType string) objectWriter

// BlobStore uploads hour files to a GCS bucket.
type BlobStore struct {
	bucket string
	open   openFunc
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	return newStore(cfg.Bucket, func(ctx context.Context, object, contentType string) objectWriter {
		w := client.Bucket(cfg.Bucket).Object(object).NewWriter(ctx)
		w.ContentType = contentType
		if cfg.ChunkSize > 0 {
			w.ChunkSize = cfg.ChunkSize
		}
		if len(cfg.Metadata) > 0 {
			w.Metadata = cfg.Metadata
		}
		return w
	}), nil
}

func newStore(bucket string, open openFunc) *BlobStore {
	return &BlobStore{bucket: bucket, open: open}
}

// PutObject streams r into the object and returns its gs:// URI. The object
// is only committed when the writer closes cleanly.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	if path == "" {
		return "", errors.New("path is required")
	}
	w := s.open(ctx, path, contentType)
	if _, err := io.Copy(w, r); err != nil {
		return "", errors.Join(fmt.Errorf("upload %s: %w", path, err), w.Close())
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("commit %s: %w", path, err)
	}
	return s.URI(path), nil
}

// URI names an object in the bucket.
func (s *BlobStore) URI(path string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, path)
}
