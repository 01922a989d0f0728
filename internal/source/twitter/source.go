// Package twittersrc is the push source backed by the streaming filter
// endpoint.
package twittersrc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dghubble/oauth1"
	"go.uber.org/zap"

	"github.com/JakeFAU/tweetstream/internal/filter"
	"github.com/JakeFAU/tweetstream/internal/ingest"
	"github.com/JakeFAU/tweetstream/internal/metrics"
	"github.com/JakeFAU/tweetstream/internal/source"
)

// DefaultEndpoint is the v1.1 statuses/filter stream.
const DefaultEndpoint = "https://stream.twitter.com/1.1/statuses/filter.json"

const maxLineBytes = 1 << 20

// Config controls the stream connection.
type Config struct {
	Endpoint string
	// MaxReconnects bounds consecutive failed attempts; 0 means unlimited.
	MaxReconnects    int
	BaseBackoff      time.Duration
	MaxBackoff       time.Duration
	RateLimitBackoff time.Duration
	// StallTimeout drops a connection that delivers nothing, keep-alives
	// included, for this long.
	StallTimeout time.Duration
}

// Credentials are the OAuth1 user-context keys.
type Credentials struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

// NewOAuthClient returns an http.Client that signs every request.
func NewOAuthClient(creds Credentials) *http.Client {
	cfg := oauth1.NewConfig(creds.ConsumerKey, creds.ConsumerSecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret)
	return cfg.Client(oauth1.NoContext, token)
}

// StatusError is a non-200 response from the endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("stream endpoint returned %d: %s", e.Code, e.Body)
}

// Fatal reports whether reconnecting cannot help.
func (e *StatusError) Fatal() bool {
	switch e.Code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound,
		http.StatusNotAcceptable, http.StatusRequestEntityTooLarge,
		http.StatusRequestedRangeNotSatisfiable:
		return true
	}
	return false
}

// RateLimited reports whether the endpoint asked the client to slow down.
func (e *StatusError) RateLimited() bool {
	return e.Code == 420 || e.Code == http.StatusTooManyRequests
}

// Source implements ingest.Source over a long-lived HTTP response.
type Source struct {
	cfg     Config
	client  *http.Client
	backoff Backoff
	logger  *zap.Logger

	mu       sync.Mutex
	body     io.Closer
	cancel   context.CancelFunc
	stopped  bool
	stop     chan struct{}
	stopOnce sync.Once
}

var _ ingest.Source = (*Source)(nil)

// New constructs a Source. client should sign requests, see NewOAuthClient.
func New(cfg Config, client *http.Client, logger *zap.Logger) *Source {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.RateLimitBackoff <= 0 {
		cfg.RateLimitBackoff = time.Minute
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = 90 * time.Second
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		cfg:     cfg,
		client:  client,
		backoff: NewBackoff(cfg.BaseBackoff, cfg.MaxBackoff),
		logger:  logger.Named("source"),
		stop:    make(chan struct{}),
	}
}

// Subscribe connects and streams until Shutdown, ctx cancellation, or a
// fatal condition, which is reported through h.OnFatal.
func (s *Source) Subscribe(ctx context.Context, spec filter.Spec, h ingest.Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.cancel = cancel
	s.mu.Unlock()

	form := FormValues(spec.Query())
	failures := 0
	for {
		if s.isStopped() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		body, err := s.connect(ctx, form)
		if err == nil {
			failures = 0
			err = s.consume(body, h)
			if errors.Is(err, source.ErrDisconnected) || s.isStopped() {
				return nil
			}
			if err == nil {
				err = io.EOF
			}
		}
		if s.isStopped() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Fatal() {
			h.OnFatal(err)
			return nil
		}
		failures++
		if s.cfg.MaxReconnects > 0 && failures > s.cfg.MaxReconnects {
			h.OnFatal(fmt.Errorf("giving up after %d reconnect attempts: %w", s.cfg.MaxReconnects, err))
			return nil
		}
		wait := s.backoff.Delay(failures)
		if statusErr != nil && statusErr.RateLimited() {
			wait = max(wait, s.cfg.RateLimitBackoff<<min(failures-1, 5))
		}
		metrics.ObserveReconnect()
		s.logger.Warn("stream connection lost, reconnecting",
			zap.Error(err), zap.Int("attempt", failures), zap.Duration("wait", wait))
		if !s.sleep(ctx, wait) {
			if s.isStopped() {
				return nil
			}
			return ctx.Err()
		}
	}
}

// Shutdown aborts an in-flight connect, closes the live connection and
// stops reconnecting. It is idempotent.
func (s *Source) Shutdown() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		body := s.body
		cancel := s.cancel
		s.mu.Unlock()
		close(s.stop)
		if cancel != nil {
			cancel()
		}
		if body != nil {
			_ = body.Close()
		}
	})
}

func (s *Source) connect(ctx context.Context, form url.Values) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connect stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = resp.Body.Close()
		return nil, errors.New("source stopped")
	}
	s.body = resp.Body
	s.mu.Unlock()
	s.logger.Info("stream connected", zap.String("endpoint", s.cfg.Endpoint))
	return resp.Body, nil
}

// consume reads delimited lines until the body ends. A watchdog closes the
// body when the stream stalls.
func (s *Source) consume(body io.ReadCloser, h ingest.Handler) error {
	defer func() {
		s.mu.Lock()
		s.body = nil
		s.mu.Unlock()
		_ = body.Close()
	}()
	watchdog := time.AfterFunc(s.cfg.StallTimeout, func() {
		s.logger.Warn("stream stalled, dropping connection", zap.Duration("timeout", s.cfg.StallTimeout))
		_ = body.Close()
	})
	defer watchdog.Stop()

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		watchdog.Reset(s.cfg.StallTimeout)
		if err := source.Dispatch(sc.Bytes(), h); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

func (s *Source) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-s.stop:
		return false
	case <-timer.C:
		return true
	}
}

func (s *Source) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
