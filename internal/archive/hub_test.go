package archive_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tweetstream/internal/archive"
	"github.com/JakeFAU/tweetstream/internal/archive/local"
	"github.com/JakeFAU/tweetstream/internal/archive/notify"
)

func hourFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestHubUploadsAndNotifies(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	dst := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dst})
	require.NoError(t, err)
	notifier := notify.NewMemory()
	hub := archive.NewHub(archive.Config{RunID: "run-1", RunName: "20240315_103000", Prefix: "raw"}, store, notifier)

	file := hourFile(t, src, "stream-2024031510.json", "{\"id\":1}\n")
	require.True(t, hub.Submit(file))
	require.NoError(t, hub.Close(context.Background()))

	data, err := os.ReadFile(filepath.Join(dst, "raw", "20240315_103000", "tweets", "stream-2024031510.json"))
	require.NoError(t, err)
	assert.Equal(t, "{\"id\":1}\n", string(data))

	msgs := notifier.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "run-1", msgs[0].RunID)
	assert.Equal(t, "stream-2024031510.json", msgs[0].File)
	assert.Contains(t, msgs[0].ObjectURI, "file://")
	assert.Equal(t, int64(9), msgs[0].Bytes)
	assert.Len(t, msgs[0].SHA256, 64)
	assert.Equal(t, int64(1), hub.Uploaded())

	assert.False(t, hub.Submit(file), "closed hub must reject files")
	require.NoError(t, hub.Close(context.Background()))
}

type blockingStore struct {
	release chan struct{}
	mu      sync.Mutex
	keys    []string
}

func (s *blockingStore) PutObject(_ context.Context, path, _ string, r io.Reader) (string, error) {
	<-s.release
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, path)
	return "mem://" + path, nil
}

func TestHubSubmitNeverBlocks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := &blockingStore{release: make(chan struct{})}
	hub := archive.NewHub(archive.Config{RunName: "run", BufferSize: 1}, store, nil)

	accepted := 0
	start := time.Now()
	for i := 0; i < 5; i++ {
		if hub.Submit(hourFile(t, dir, "f"+string(rune('a'+i)), "x")) {
			accepted++
		}
	}
	require.Less(t, time.Since(start), time.Second)
	// One in flight plus one buffered at most.
	assert.LessOrEqual(t, accepted, 2)
	assert.GreaterOrEqual(t, accepted, 1)

	close(store.release)
	require.NoError(t, hub.Close(context.Background()))
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.keys, accepted)
}

func TestHubUploadsEveryAcceptedFileWhenClosedConcurrently(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := &blockingStore{release: make(chan struct{})}
	close(store.release)
	hub := archive.NewHub(archive.Config{RunName: "run", BufferSize: 64}, store, nil)

	var (
		wg       sync.WaitGroup
		accepted atomic.Int64
	)
	for i := 0; i < 32; i++ {
		file := hourFile(t, dir, fmt.Sprintf("stream-%02d.json", i), "x")
		wg.Add(1)
		go func() {
			defer wg.Done()
			if hub.Submit(file) {
				accepted.Add(1)
			}
		}()
	}
	require.NoError(t, hub.Close(context.Background()))
	wg.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.keys, int(accepted.Load()))
	assert.Equal(t, accepted.Load(), hub.Uploaded())
}

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket gone")
}

func TestHubCountsFailures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	notifier := notify.NewMemory()
	hub := archive.NewHub(archive.Config{RunName: "run"}, failingStore{}, notifier)
	require.True(t, hub.Submit(hourFile(t, dir, "a.json", "x")))
	require.True(t, hub.Submit(filepath.Join(dir, "missing.json")))
	require.NoError(t, hub.Close(context.Background()))

	assert.Equal(t, int64(2), hub.Failed())
	assert.Empty(t, notifier.Messages())
}

func TestHubCloseHonorsContext(t *testing.T) {
	t.Parallel()

	store := &blockingStore{release: make(chan struct{})}
	hub := archive.NewHub(archive.Config{RunName: "run"}, store, nil)
	require.True(t, hub.Submit(hourFile(t, t.TempDir(), "a.json", "x")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, hub.Close(ctx), context.DeadlineExceeded)
	close(store.release)
	require.NoError(t, hub.Close(context.Background()))
}

func TestObjectKey(t *testing.T) {
	t.Parallel()

	hub := archive.NewHub(archive.Config{RunName: "20240315_103000"}, failingStore{}, nil)
	defer func() { _ = hub.Close(context.Background()) }()
	assert.Equal(t, "20240315_103000/tweets/stream-2024031510.json", hub.ObjectKey("/out/x/tweets/stream-2024031510.json"))
}
