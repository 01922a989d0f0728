package twittersrc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dghubble/go-twitter/twitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/tweetstream/internal/filter"
	"github.com/JakeFAU/tweetstream/internal/ingest"
	"github.com/JakeFAU/tweetstream/internal/source"
)

type handler struct {
	mu     sync.Mutex
	ids    []int64
	fatals []error
}

func (h *handler) OnEvent(_ []byte, tweet *twitter.Tweet) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ids = append(h.ids, tweet.ID)
}
func (h *handler) OnDeletion(ingest.Deletion) {}
func (h *handler) OnRateLimit(int64)          {}
func (h *handler) OnWarning(ingest.Warning)   {}
func (h *handler) OnFatal(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fatals = append(h.fatals, err)
}

func (h *handler) eventCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ids)
}

func (h *handler) fatalErrs() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.fatals...)
}

func testSpec(t *testing.T) filter.Spec {
	t.Helper()
	spec, err := filter.Build(filter.Params{Terms: []string{"#test"}}, zap.NewNop())
	require.NoError(t, err)
	return spec
}

func fastConfig(endpoint string) Config {
	return Config{Endpoint: endpoint, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, RateLimitBackoff: time.Millisecond}
}

func writeLine(w http.ResponseWriter, line string) {
	_, _ = fmt.Fprintf(w, "%s\r\n", line)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func TestSubscribeStreamsUntilShutdown(t *testing.T) {
	t.Parallel()

	var gotTrack, gotStall atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotTrack.Store(r.PostForm.Get("track"))
		gotStall.Store(r.PostForm.Get("stall_warnings"))
		writeLine(w, "")
		writeLine(w, `{"id":1,"text":"#test one"}`)
		writeLine(w, `{"id":2,"text":"#test two"}`)
		<-r.Context().Done()
	}))
	defer srv.Close()

	src := New(fastConfig(srv.URL), srv.Client(), zap.NewNop())
	h := &handler{}
	errCh := make(chan error, 1)
	go func() { errCh <- src.Subscribe(context.Background(), testSpec(t), h) }()

	require.Eventually(t, func() bool { return h.eventCount() == 2 }, 2*time.Second, 5*time.Millisecond)
	src.Shutdown()
	src.Shutdown()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after Shutdown")
	}
	assert.Equal(t, "#test", gotTrack.Load())
	assert.Equal(t, "true", gotStall.Load())
	assert.Empty(t, h.fatalErrs())
}

func TestSubscribeUnauthorizedIsFatal(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	h := &handler{}
	err := New(fastConfig(srv.URL), srv.Client(), zap.NewNop()).Subscribe(context.Background(), testSpec(t), h)
	require.NoError(t, err)

	fatals := h.fatalErrs()
	require.Len(t, fatals, 1)
	var statusErr *StatusError
	require.True(t, errors.As(fatals[0], &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
}

func TestSubscribeReconnectsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		switch requests.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			writeLine(w, `{"id":7,"text":"#test"}`)
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()

	h := &handler{}
	cfg := fastConfig(srv.URL)
	cfg.MaxReconnects = 3
	require.NoError(t, New(cfg, srv.Client(), zap.NewNop()).Subscribe(context.Background(), testSpec(t), h))

	assert.Equal(t, int32(3), requests.Load())
	assert.Equal(t, 1, h.eventCount())
	assert.Len(t, h.fatalErrs(), 1)
}

func TestSubscribeGivesUpAfterMaxReconnects(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(420)
	}))
	defer srv.Close()

	h := &handler{}
	cfg := fastConfig(srv.URL)
	cfg.MaxReconnects = 2
	require.NoError(t, New(cfg, srv.Client(), zap.NewNop()).Subscribe(context.Background(), testSpec(t), h))

	assert.Equal(t, int32(3), requests.Load())
	fatals := h.fatalErrs()
	require.Len(t, fatals, 1)
	assert.Contains(t, fatals[0].Error(), "giving up after 2 reconnect attempts")
}

func TestSubscribeStopsOnDisconnectMessage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeLine(w, `{"disconnect":{"code":12,"stream_name":"filter","reason":"shutdown"}}`)
	}))
	defer srv.Close()

	h := &handler{}
	require.NoError(t, New(fastConfig(srv.URL), srv.Client(), zap.NewNop()).Subscribe(context.Background(), testSpec(t), h))
	fatals := h.fatalErrs()
	require.Len(t, fatals, 1)
	assert.True(t, errors.Is(fatals[0], source.ErrDisconnected))
}

func TestSubscribeHonorsContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeLine(w, "")
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- New(fastConfig(srv.URL), srv.Client(), zap.NewNop()).Subscribe(ctx, testSpec(t), &handler{})
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe ignored context cancellation")
	}
}

func TestShutdownAbortsPendingConnect(t *testing.T) {
	t.Parallel()

	accepted := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case accepted <- struct{}{}:
		default:
		}
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	src := New(fastConfig(srv.URL), srv.Client(), zap.NewNop())
	h := &handler{}
	errCh := make(chan error, 1)
	go func() {
		errCh <- src.Subscribe(context.WithoutCancel(context.Background()), testSpec(t), h)
	}()

	select {
	case <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("stream request never arrived")
	}
	src.Shutdown()

	select {
	case err := <-errCh:
		require.NoError(t, err)
		assert.Empty(t, h.fatalErrs())
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe still waiting for response headers after Shutdown")
	}
}

func TestSubscribeAfterShutdownReturnsImmediately(t *testing.T) {
	t.Parallel()

	src := New(fastConfig("http://127.0.0.1:1"), nil, zap.NewNop())
	src.Shutdown()
	require.NoError(t, src.Subscribe(context.Background(), testSpec(t), &handler{}))
}
