package archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	digest "github.com/JakeFAU/tweetstream/internal/hash/sha256"
	"github.com/JakeFAU/tweetstream/internal/metrics"
)

// Config controls buffering and object naming for the Hub.
type Config struct {
	RunID string
	// RunName is the run directory's base name, used in object keys.
	RunName    string
	Prefix     string
	BufferSize int
	// UploadTimeout bounds each upload and notification.
	UploadTimeout time.Duration
	Logger        *zap.Logger
}

const (
	defaultBufferSize    = 16
	defaultUploadTimeout = 2 * time.Minute
)

// Hub uploads submitted files from a single background goroutine. Submit
// never blocks; Close drains what was already accepted.
type Hub struct {
	cfg      Config
	store    BlobStore
	notifier Notifier
	logger   *zap.Logger

	files     chan string
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeMu   sync.RWMutex
	closed    bool

	uploaded atomic.Int64
	failed   atomic.Int64
}

// NewHub starts the uploader. notifier may be nil.
func NewHub(cfg Config, store BlobStore, notifier Notifier) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = defaultUploadTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		logger:   logger.Named("archive"),
		files:    make(chan string, cfg.BufferSize),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go h.run()
	return h
}

// Submit queues a closed file for upload and reports whether it was accepted.
func (h *Hub) Submit(file string) bool {
	if h == nil {
		return false
	}
	h.closeMu.RLock()
	defer h.closeMu.RUnlock()
	if h.closed {
		return false
	}
	select {
	case h.files <- file:
		return true
	default:
		metrics.ObserveArchiveUpload(metrics.ResultSkipped)
		return false
	}
}

// Uploaded returns the count of successful uploads.
func (h *Hub) Uploaded() int64 { return h.uploaded.Load() }

// Failed returns the count of failed uploads.
func (h *Hub) Failed() int64 { return h.failed.Load() }

// Close stops accepting files and waits for queued uploads to finish. It is
// safe to call multiple times.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	h.closeMu.Lock()
	if !h.closed {
		h.closed = true
		close(h.stopCh)
	}
	h.closeMu.Unlock()
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("archive hub close wait: %w", ctx.Err())
	}
}

// ObjectKey names the object for a local hour file.
func (h *Hub) ObjectKey(file string) string {
	return path.Join(h.cfg.Prefix, h.cfg.RunName, "tweets", filepath.Base(file))
}

func (h *Hub) run() {
	defer close(h.doneCh)
	for {
		select {
		case file := <-h.files:
			h.upload(file)
		case <-h.stopCh:
			for {
				select {
				case file := <-h.files:
					h.upload(file)
				default:
					return
				}
			}
		}
	}
}

func (h *Hub) upload(file string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.UploadTimeout)
	defer cancel()

	n, err := h.put(ctx, file)
	if err != nil {
		h.failed.Add(1)
		metrics.ObserveArchiveUpload(metrics.ResultFailure)
		h.logger.Error("archive upload failed", zap.String("path", file), zap.Error(err))
		return
	}
	h.uploaded.Add(1)
	metrics.ObserveArchiveUpload(metrics.ResultSuccess)
	h.logger.Info("archived hour file",
		zap.String("path", file),
		zap.String("uri", n.ObjectURI),
		zap.Int64("bytes", n.Bytes),
	)

	if h.notifier == nil {
		return
	}
	if err := h.notifier.Notify(ctx, n); err != nil {
		h.logger.Warn("archive notification failed", zap.String("uri", n.ObjectURI), zap.Error(err))
	}
}

func (h *Hub) put(ctx context.Context, file string) (Notification, error) {
	f, err := os.Open(file)
	if err != nil {
		return Notification{}, fmt.Errorf("open %s: %w", file, err)
	}
	defer f.Close()

	body := digest.NewReader(f)
	uri, err := h.store.PutObject(ctx, h.ObjectKey(file), ContentType, body)
	if err != nil {
		return Notification{}, fmt.Errorf("put object: %w", err)
	}
	return Notification{
		RunID:     h.cfg.RunID,
		ObjectURI: uri,
		File:      filepath.Base(file),
		SHA256:    body.Sum(),
		Bytes:     body.N(),
	}, nil
}
