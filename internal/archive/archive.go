// Package archive ships closed hourly output files to object storage and
// announces each upload.
package archive

import (
	"context"
	"io"
)

// ContentType is the media type of an hourly output file.
const ContentType = "application/x-ndjson"

// BlobStore persists one object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Notification announces an uploaded hour file.
type Notification struct {
	RunID     string `json:"run_id"`
	ObjectURI string `json:"object_uri"`
	File      string `json:"file"`
	SHA256    string `json:"sha256"`
	Bytes     int64  `json:"bytes"`
}

// Notifier publishes upload notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
