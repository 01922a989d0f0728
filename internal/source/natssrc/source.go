// Package natssrc is a push source that reads raw stream lines from a NATS
// subject, for replaying captured streams or fanning one stream out to
// several pipelines.
package natssrc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/JakeFAU/tweetstream/internal/filter"
	"github.com/JakeFAU/tweetstream/internal/ingest"
	"github.com/JakeFAU/tweetstream/internal/source"
)

// DefaultSubject carries raw stream lines.
const DefaultSubject = "tweetstream.raw"

// Config selects the server and subject.
type Config struct {
	URL     string
	Subject string
}

// Source implements ingest.Source over a NATS subscription. The broker
// cannot filter by content, so the Filter Specification is applied locally.
type Source struct {
	cfg    Config
	opts   []nats.Option
	logger *zap.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

var _ ingest.Source = (*Source)(nil)

// New constructs a Source. Extra options are appended to the reconnecting
// defaults.
func New(cfg Config, logger *zap.Logger, opts ...nats.Option) *Source {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		cfg:    cfg,
		opts:   opts,
		logger: logger.Named("source"),
		stop:   make(chan struct{}),
	}
}

// Subscribe connects, subscribes and blocks until Shutdown, ctx ends, or a
// disconnect message arrives on the subject.
func (s *Source) Subscribe(ctx context.Context, spec filter.Spec, h ingest.Handler) error {
	defaults := []nats.Option{
		nats.Name("tweetstream"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			s.logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(s.cfg.URL, append(defaults, s.opts...)...)
	if err != nil {
		return fmt.Errorf("connect nats %s: %w", s.cfg.URL, err)
	}
	defer nc.Close()

	ended := make(chan struct{})
	var endOnce sync.Once
	sub, err := nc.Subscribe(s.cfg.Subject, func(msg *nats.Msg) {
		for _, line := range bytes.Split(msg.Data, []byte("\n")) {
			if err := source.DispatchMatching(line, h, spec.Matches); errors.Is(err, source.ErrDisconnected) {
				endOnce.Do(func() { close(ended) })
				return
			}
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.cfg.Subject, err)
	}
	if err := nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("flush subscription: %w", err)
	}
	s.logger.Info("subscribed", zap.String("url", s.cfg.URL), zap.String("subject", s.cfg.Subject))

	select {
	case <-ctx.Done():
		err = ctx.Err()
	case <-s.stop:
	case <-ended:
	}
	if uerr := sub.Unsubscribe(); uerr != nil && !errors.Is(uerr, nats.ErrConnectionClosed) {
		s.logger.Debug("unsubscribe", zap.Error(uerr))
	}
	return err
}

// Shutdown ends the subscription. It is idempotent.
func (s *Source) Shutdown() {
	s.stopOnce.Do(func() { close(s.stop) })
}
