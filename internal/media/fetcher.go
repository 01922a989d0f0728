package media

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// FetcherConfig controls collector behavior.
type FetcherConfig struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int
}

// CollyFetcher downloads media bodies with a Colly collector.
type CollyFetcher struct {
	cfg           FetcherConfig
	baseCollector *colly.Collector
}

// NewCollyFetcher builds a CollyFetcher.
func NewCollyFetcher(cfg FetcherConfig) *CollyFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = cfg.MaxBodyBytes
	}
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	return &CollyFetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single HTTP GET and returns the body.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var (
		body     []byte
		status   int
		fetchErr error
	)
	collector := f.baseCollector.Clone()
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("media fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return nil, fmt.Errorf("media response failed (status %d): %w", status, fetchErr)
		}
		if err != nil {
			return nil, fmt.Errorf("media visit failed: %w", err)
		}
		if len(body) == 0 {
			return nil, fmt.Errorf("media response empty (status %d)", status)
		}
		return body, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
