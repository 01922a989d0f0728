// Package listener translates push-source callbacks into non-blocking sends
// on the bounded queue.
package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dghubble/go-twitter/twitter"
	"go.uber.org/zap"

	"github.com/JakeFAU/tweetstream/internal/filter"
	"github.com/JakeFAU/tweetstream/internal/ingest"
	"github.com/JakeFAU/tweetstream/internal/metrics"
)

// Enqueuer is the producer side of the bounded queue.
type Enqueuer interface {
	TryEnqueue(rec ingest.Record) bool
	Len() int
}

// Stats are the listener's running counters.
type Stats struct {
	Received  int64 `json:"received"`
	Dropped   int64 `json:"dropped"`
	Deletions int64 `json:"deletions"`
	Withheld  int64 `json:"withheld"`
}

// Listener owns the push subscription. It implements ingest.Handler.
type Listener struct {
	source ingest.Source
	spec   filter.Spec
	queue  Enqueuer
	logger *zap.Logger

	stopOnce sync.Once
	doneOnce sync.Once
	done     chan struct{}

	errMu sync.Mutex
	err   error

	received  atomic.Int64
	dropped   atomic.Int64
	deletions atomic.Int64
	withheld  atomic.Int64
}

var _ ingest.Handler = (*Listener)(nil)

// New constructs a Listener.
func New(source ingest.Source, spec filter.Spec, queue Enqueuer, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		source: source,
		spec:   spec,
		queue:  queue,
		logger: logger.Named("listener"),
		done:   make(chan struct{}),
	}
}

// Run establishes the subscription and blocks until it ends. The returned
// error is the fatal source error, if any. Done is closed when Run returns.
func (l *Listener) Run(ctx context.Context) error {
	defer l.doneOnce.Do(func() { close(l.done) })

	q := l.spec.Query()
	l.logger.Info("subscribing", zap.Any("dimensions", q.Dimensions()), zap.String("filter_level", string(q.FilterLevel)))
	err := l.source.Subscribe(ctx, l.spec, l)
	if err != nil && !errors.Is(err, context.Canceled) {
		l.setErr(fmt.Errorf("subscribe: %w", err))
	}
	l.logger.Info("listener exiting", zap.Int64("received", l.received.Load()), zap.Int64("dropped", l.dropped.Load()))
	return l.Err()
}

// Stop terminates the subscription. It is idempotent.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		l.logger.Info("stopping subscription")
		l.source.Shutdown()
	})
}

// Done is closed once Run has returned.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Err returns the first fatal error observed.
func (l *Listener) Err() error {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	return l.err
}

// Stats returns a snapshot of the counters.
func (l *Listener) Stats() Stats {
	return Stats{
		Received:  l.received.Load(),
		Dropped:   l.dropped.Load(),
		Deletions: l.deletions.Load(),
		Withheld:  l.withheld.Load(),
	}
}

// OnEvent wraps the payload and offers it to the queue without blocking.
func (l *Listener) OnEvent(raw []byte, tweet *twitter.Tweet) {
	rec, err := ingest.NewRecord(raw, tweet)
	if err != nil {
		l.logger.Debug("ignoring event", zap.Error(err))
		return
	}
	l.received.Add(1)
	metrics.ObserveReceived()
	if !l.queue.TryEnqueue(rec) {
		l.dropped.Add(1)
		metrics.ObserveDropped()
		l.logger.Warn("queue full, dropping record",
			zap.Int64("id", rec.ID()),
			zap.String("author", rec.Author()),
		)
	}
	metrics.SetQueueDepth(l.queue.Len())
}

// OnDeletion logs the notice. Already written records are left untouched.
func (l *Listener) OnDeletion(notice ingest.Deletion) {
	l.deletions.Add(1)
	metrics.ObserveDeletion()
	if notice.ScrubGeo {
		l.logger.Info("geo scrub notice", zap.Int64("user_id", notice.UserID), zap.Int64("up_to_id", notice.ID))
		return
	}
	l.logger.Debug("deletion notice", zap.Int64("id", notice.ID), zap.Int64("user_id", notice.UserID))
}

// OnRateLimit logs how many matching posts the source withheld.
func (l *Listener) OnRateLimit(count int64) {
	l.withheld.Store(count)
	metrics.ObserveLimit()
	l.logger.Warn("track limitation notice", zap.Int64("withheld", count))
}

// OnWarning logs transport warnings.
func (l *Listener) OnWarning(warning ingest.Warning) {
	if warning.Code == ingest.WarningMalformed {
		l.logger.Warn("malformed stream message", zap.String("detail", warning.Message))
		return
	}
	metrics.ObserveStall()
	l.logger.Warn("stall warning, consider increasing queue.capacity (--queue-size)",
		zap.String("code", warning.Code),
		zap.String("message", warning.Message),
		zap.Int("percent_full", warning.PercentFull),
		zap.Int("queue_len", l.queue.Len()),
	)
}

// OnFatal records err; the source stops delivering afterwards.
func (l *Listener) OnFatal(err error) {
	l.logger.Error("stream source failed", zap.Error(err))
	l.setErr(err)
}

func (l *Listener) setErr(err error) {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	if l.err == nil {
		l.err = err
	}
}
