package natssrc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dghubble/go-twitter/twitter"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/tweetstream/internal/filter"
	"github.com/JakeFAU/tweetstream/internal/ingest"
	"github.com/JakeFAU/tweetstream/internal/source"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

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

func (h *handler) snapshot() ([]int64, []error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int64(nil), h.ids...), append([]error(nil), h.fatals...)
}

func subscribeAsync(t *testing.T, src *Source, h ingest.Handler) <-chan error {
	t.Helper()
	spec, err := filter.Build(filter.Params{Terms: []string{"#test"}}, zap.NewNop())
	require.NoError(t, err)
	errCh := make(chan error, 1)
	go func() { errCh <- src.Subscribe(context.Background(), spec, h) }()
	return errCh
}

func publisher(t *testing.T, url string) *nats.Conn {
	t.Helper()
	nc, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func TestSourceFiltersAndDelivers(t *testing.T) {
	url := startTestNATS(t)
	src := New(Config{URL: url, Subject: "raw.test"}, zap.NewNop())
	h := &handler{}
	errCh := subscribeAsync(t, src, h)

	pub := publisher(t, url)
	// Publish until the subscription is live; earlier messages are lost.
	require.Eventually(t, func() bool {
		if err := pub.Publish("raw.test", []byte(`{"id":1,"text":"#test warmup"}`)); err != nil {
			return false
		}
		_ = pub.Flush()
		ids, _ := h.snapshot()
		return len(ids) > 0
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, pub.Publish("raw.test", []byte(`{"id":2,"text":"unrelated"}`)))
	require.NoError(t, pub.Publish("raw.test", []byte(`{"id":3,"text":"another #test"}`+"\n"+`{"id":4,"text":"#TEST caps"}`)))
	require.NoError(t, pub.Flush())

	require.Eventually(t, func() bool {
		ids, _ := h.snapshot()
		return len(ids) > 0 && ids[len(ids)-1] == 4
	}, 5*time.Second, 10*time.Millisecond)
	ids, _ := h.snapshot()
	assert.NotContains(t, ids, int64(2))
	assert.Contains(t, ids, int64(3))

	src.Shutdown()
	src.Shutdown()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Subscribe did not return after Shutdown")
	}
}

func TestSourceEndsOnDisconnectMessage(t *testing.T) {
	url := startTestNATS(t)
	src := New(Config{URL: url, Subject: "raw.disconnect"}, zap.NewNop())
	h := &handler{}
	errCh := subscribeAsync(t, src, h)

	pub := publisher(t, url)
	var done error
	require.Eventually(t, func() bool {
		if err := pub.Publish("raw.disconnect", []byte(`{"disconnect":{"code":1,"stream_name":"filter","reason":"replay finished"}}`)); err != nil {
			return false
		}
		_ = pub.Flush()
		select {
		case done = <-errCh:
			return true
		default:
			return false
		}
	}, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, done)
	_, fatals := h.snapshot()
	require.NotEmpty(t, fatals)
	assert.True(t, errors.Is(fatals[0], source.ErrDisconnected))
}

func TestSourceConnectFailure(t *testing.T) {
	t.Parallel()

	src := New(Config{URL: "nats://127.0.0.1:1"}, zap.NewNop(), nats.Timeout(200*time.Millisecond))
	spec, err := filter.Build(filter.Params{}, zap.NewNop())
	require.NoError(t, err)
	err = src.Subscribe(context.Background(), spec, &handler{})
	require.Error(t, err)
}
