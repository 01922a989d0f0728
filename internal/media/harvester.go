// Package media harvests images referenced by ingested records.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/tweetstream/internal/ingest"
	"github.com/JakeFAU/tweetstream/internal/metrics"
)

// Fetcher downloads one URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Waiter paces requests; HostLimiter implements it.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Harvester fetches a record's URLs sequentially. A failing URL is logged and
// skipped; it never aborts the batch.
type Harvester struct {
	fetcher Fetcher
	limiter Waiter
	logger  *zap.Logger
}

// NewHarvester constructs a Harvester. limiter may be nil.
func NewHarvester(fetcher Fetcher, limiter Waiter, logger *zap.Logger) *Harvester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harvester{fetcher: fetcher, limiter: limiter, logger: logger.Named("media")}
}

// Harvest fetches every URL rec references into dir.
func (h *Harvester) Harvest(ctx context.Context, rec ingest.Record, dir string) int {
	return h.Fetch(ctx, rec.ID(), rec.URLs(), dir)
}

// Fetch downloads urls into dir as <id>-<n>.<ext> and returns how many files
// were written. Numbering starts at 1 and skips names already taken, so
// repeated calls for the same id never overwrite earlier files.
func (h *Harvester) Fetch(ctx context.Context, id int64, urls []string, dir string) int {
	written := 0
	next := 1
	for _, raw := range urls {
		if ctx.Err() != nil {
			h.logger.Info("media batch interrupted", zap.Int64("id", id), zap.Int("written", written))
			return written
		}
		target := Rewrite(raw)
		if err := h.fetchOne(ctx, id, target, dir, &next); err != nil {
			metrics.ObserveMediaFetch(resultFor(err))
			h.logger.Warn("media fetch failed", zap.Int64("id", id), zap.String("url", target), zap.Error(err))
			continue
		}
		metrics.ObserveMediaFetch(metrics.ResultSuccess)
		written++
	}
	return written
}

func (h *Harvester) fetchOne(ctx context.Context, id int64, target, dir string, next *int) error {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx, target); err != nil {
			return err
		}
	}
	data, err := h.fetcher.Fetch(ctx, target)
	if err != nil {
		return err
	}
	encoded, ext, err := Transcode(data, ExtensionFromURL(target))
	if err != nil {
		return err
	}
	path, err := writeUnique(dir, id, next, ext, encoded)
	if err != nil {
		return err
	}
	h.logger.Debug("media saved", zap.String("url", target), zap.String("path", path))
	return nil
}

func resultFor(err error) string {
	if errors.Is(err, ErrUnsupportedFormat) {
		return metrics.ResultSkipped
	}
	return metrics.ResultFailure
}

// writeUnique creates the first free <id>-<n>.<ext> in dir, where a number is
// free when no file of any extension uses it.
func writeUnique(dir string, id int64, next *int, ext string, data []byte) (string, error) {
	prefix := strconv.FormatInt(id, 10) + "-"
	taken, err := takenNumbers(dir, prefix)
	if err != nil {
		return "", err
	}
	for ; ; *next++ {
		if _, ok := taken[*next]; ok {
			continue
		}
		path := filepath.Join(dir, prefix+strconv.Itoa(*next)+"."+ext)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", path, err)
		}
		*next++
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			return "", fmt.Errorf("write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close %s: %w", path, err)
		}
		return path, nil
	}
}

// takenNumbers collects n from every <prefix><n>.<ext> entry in dir.
func takenNumbers(dir, prefix string) (map[int]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list media dir: %w", err)
	}
	taken := make(map[int]struct{})
	for _, e := range entries {
		rest, ok := strings.CutPrefix(e.Name(), prefix)
		if !ok {
			continue
		}
		num, _, ok := strings.Cut(rest, ".")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(num); err == nil {
			taken[n] = struct{}{}
		}
	}
	return taken, nil
}
