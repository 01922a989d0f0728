// Package writer implements the Result Writer: the single consumer that
// appends records to hourly files and hands their URLs to the media
// harvester.
package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/tweetstream/internal/ingest"
	"github.com/JakeFAU/tweetstream/internal/metrics"
	"github.com/JakeFAU/tweetstream/internal/queue/memory"
)

// Dequeuer is the consumer side of the bounded queue.
type Dequeuer interface {
	Dequeue(ctx context.Context) (ingest.Record, error)
	Len() int
}

// Harvester fetches the media a record references into dir and returns the
// number of files written.
type Harvester interface {
	Harvest(ctx context.Context, rec ingest.Record, dir string) int
}

// Archiver accepts closed hour files. Submit must not block.
type Archiver interface {
	Submit(path string) bool
}

// Config controls Writer behavior.
type Config struct {
	IncludeMedia bool
	// Info is the configuration snapshot written to info.json.
	Info map[string]any
}

// Stats is a point-in-time view of the writer.
type Stats struct {
	Written      int64  `json:"written"`
	Failed       int64  `json:"failed"`
	CurrentFile  string `json:"current_file,omitempty"`
	ShuttingDown bool   `json:"shutting_down"`
}

// Writer consumes the queue until interrupted.
type Writer struct {
	queue     Dequeuer
	clock     ingest.Clock
	harvester Harvester
	archiver  Archiver
	layout    Layout
	cfg       Config
	logger    *zap.Logger

	cancelMu     sync.Mutex
	cancel       context.CancelFunc
	shuttingDown atomic.Bool
	done         chan struct{}
	doneOnce     sync.Once

	fileMu      sync.Mutex
	file        *os.File
	filePath    string
	infoWritten bool

	written atomic.Int64
	failed  atomic.Int64
}

// New constructs a Writer. harvester and archiver may be nil.
func New(
	queue Dequeuer,
	clock ingest.Clock,
	harvester Harvester,
	archiver Archiver,
	layout Layout,
	cfg Config,
	logger *zap.Logger,
) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		queue:     queue,
		clock:     clock,
		harvester: harvester,
		archiver:  archiver,
		layout:    layout,
		cfg:       cfg,
		logger:    logger.Named("writer"),
		done:      make(chan struct{}),
	}
}

// Run blocks, consuming records until Interrupt is called, ctx finishes, or
// the queue is closed and drained. Records still queued at interruption are
// not written.
func (w *Writer) Run(ctx context.Context) {
	defer w.doneOnce.Do(func() { close(w.done) })
	defer w.closeQuietly()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.cancelMu.Lock()
	w.cancel = cancel
	w.cancelMu.Unlock()
	if w.shuttingDown.Load() {
		cancel()
	}

	for {
		rec, err := w.queue.Dequeue(runCtx)
		if err != nil {
			if errors.Is(err, memory.ErrQueueClosed) {
				w.logger.Info("queue closed, writer exiting")
				return
			}
			w.logger.Info("shutting down with unprocessed records", zap.Int("unprocessed", w.queue.Len()))
			return
		}
		metrics.SetQueueDepth(w.queue.Len())
		w.process(runCtx, rec)
	}
}

// Interrupt marks the writer as shutting down and unblocks its dequeue.
func (w *Writer) Interrupt() {
	w.shuttingDown.Store(true)
	w.cancelMu.Lock()
	defer w.cancelMu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
}

// Done is closed once Run has returned.
func (w *Writer) Done() <-chan struct{} { return w.done }

// Close flushes and releases the open hour file. It is idempotent and safe
// to call concurrently with Run's own exit path.
func (w *Writer) Close() error {
	w.fileMu.Lock()
	defer w.fileMu.Unlock()
	return w.closeFileLocked()
}

// Stats returns a snapshot of the writer's counters.
func (w *Writer) Stats() Stats {
	w.fileMu.Lock()
	current := w.filePath
	w.fileMu.Unlock()
	return Stats{
		Written:      w.written.Load(),
		Failed:       w.failed.Load(),
		CurrentFile:  current,
		ShuttingDown: w.shuttingDown.Load(),
	}
}

// Layout returns the output tree the writer fills.
func (w *Writer) Layout() Layout { return w.layout }

func (w *Writer) process(ctx context.Context, rec ingest.Record) {
	if err := w.append(rec); err != nil {
		w.failed.Add(1)
		metrics.ObserveWriteError()
		return
	}
	w.written.Add(1)
	metrics.ObserveWritten()
	w.logSummary(rec)

	if !w.cfg.IncludeMedia || w.harvester == nil {
		return
	}
	if err := os.MkdirAll(w.layout.MediaDir, 0o755); err != nil {
		w.logger.Error("create media dir failed", zap.String("path", w.layout.MediaDir), zap.Error(err))
		return
	}
	w.harvester.Harvest(ctx, rec, w.layout.MediaDir)
}

func (w *Writer) append(rec ingest.Record) error {
	w.fileMu.Lock()
	defer w.fileMu.Unlock()

	if err := w.ensureFileLocked(); err != nil {
		return err
	}
	line := make([]byte, 0, len(rec.Raw())+1)
	line = append(line, rec.Raw()...)
	line = append(line, '\n')
	if _, err := w.file.Write(line); err != nil {
		w.logger.Error("append failed", zap.String("path", w.filePath), zap.Error(err))
		_ = w.closeFileLocked()
		return fmt.Errorf("append %s: %w", w.filePath, err)
	}
	if !w.infoWritten {
		w.writeInfoLocked()
	}
	return nil
}

// ensureFileLocked rotates to the file for the current wall-clock hour.
func (w *Writer) ensureFileLocked() error {
	path := w.layout.HourFile(w.clock.Now())
	if w.file != nil && w.filePath == path {
		return nil
	}
	if w.file != nil {
		w.logger.Info("rotating output file", zap.String("from", w.filePath), zap.String("to", path))
		if err := w.closeFileLocked(); err != nil {
			w.logger.Error("close rotated file failed", zap.Error(err))
		}
		metrics.ObserveRotation()
	}
	if err := os.MkdirAll(w.layout.TweetsDir, 0o755); err != nil {
		w.logger.Error("create tweets dir failed", zap.String("path", w.layout.TweetsDir), zap.Error(err))
		return fmt.Errorf("create tweets dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		w.logger.Error("open output file failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("open %s: %w", path, err)
	}
	w.file = f
	w.filePath = path
	w.logger.Info("writing to output file", zap.String("path", path))
	return nil
}

func (w *Writer) closeFileLocked() error {
	if w.file == nil {
		return nil
	}
	path := w.filePath
	err := w.file.Sync()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	w.file = nil
	w.filePath = ""
	if err != nil {
		w.logger.Error("close output file failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("close %s: %w", path, err)
	}
	if w.archiver != nil && !w.archiver.Submit(path) {
		w.logger.Warn("archive queue full, skipping file", zap.String("path", path))
	}
	return nil
}

func (w *Writer) closeQuietly() {
	if err := w.Close(); err != nil {
		w.logger.Debug("close on exit", zap.Error(err))
	}
}

// writeInfoLocked writes info.json once per run. A file left by an earlier
// writer for the same run directory is kept.
func (w *Writer) writeInfoLocked() {
	path := w.layout.InfoFile
	if _, err := os.Stat(path); err == nil {
		w.infoWritten = true
		return
	}
	payload, err := json.MarshalIndent(w.cfg.Info, "", "  ")
	if err != nil {
		w.logger.Error("encode info failed", zap.Error(err))
		return
	}
	if err := os.WriteFile(path, append(payload, '\n'), 0o644); err != nil {
		w.logger.Error("write info failed", zap.String("path", path), zap.Error(err))
		return
	}
	w.infoWritten = true
}

func (w *Writer) logSummary(rec ingest.Record) {
	if ce := w.logger.Check(zapcore.DebugLevel, "record written"); ce != nil {
		fields := []zap.Field{
			zap.Int64("id", rec.ID()),
			zap.String("author", rec.Author()),
			zap.Time("created_at", rec.CreatedAt()),
			zap.Strings("urls", rec.MentionedURLs()),
			zap.Strings("media", rec.MediaURLs()),
		}
		if t := rec.Tweet(); t != nil {
			if rt := t.RetweetedStatus; rt != nil && rt.User != nil {
				fields = append(fields, zap.String("retweet_of", rt.User.ScreenName))
			}
			if t.Entities != nil {
				mentions := make([]string, 0, len(t.Entities.UserMentions))
				for _, m := range t.Entities.UserMentions {
					mentions = append(mentions, m.ScreenName)
				}
				fields = append(fields, zap.Strings("mentions", mentions))
			}
		}
		ce.Write(fields...)
	}
}
