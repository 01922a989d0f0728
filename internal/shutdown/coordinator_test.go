package shutdown

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu    sync.Mutex
	steps []string
}

func (r *recorder) add(step string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.steps...)
}

type fakeProducer struct {
	rec      *recorder
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	err      error
	exitNow  bool
}

func newFakeProducer(rec *recorder) *fakeProducer {
	return &fakeProducer{rec: rec, stop: make(chan struct{}), done: make(chan struct{})}
}

func (p *fakeProducer) Run(context.Context) error {
	defer close(p.done)
	if !p.exitNow {
		<-p.stop
	}
	p.rec.add("producer exited")
	return p.err
}

func (p *fakeProducer) Stop() {
	p.stopOnce.Do(func() {
		p.rec.add("producer stop")
		close(p.stop)
	})
}

func (p *fakeProducer) Done() <-chan struct{} { return p.done }

type fakeConsumer struct {
	rec       *recorder
	interrupt chan struct{}
	once      sync.Once
	done      chan struct{}
}

func newFakeConsumer(rec *recorder) *fakeConsumer {
	return &fakeConsumer{rec: rec, interrupt: make(chan struct{}), done: make(chan struct{})}
}

func (c *fakeConsumer) Run(context.Context) {
	defer close(c.done)
	<-c.interrupt
	c.rec.add("consumer exited")
}

func (c *fakeConsumer) Interrupt() {
	c.once.Do(func() {
		c.rec.add("consumer interrupt")
		close(c.interrupt)
	})
}

func (c *fakeConsumer) Close() error {
	c.rec.add("consumer close")
	return nil
}

func (c *fakeConsumer) Done() <-chan struct{} { return c.done }

func runAsync(t *testing.T, ctx context.Context, c *Coordinator) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	return errCh
}

func waitErr(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not finish")
		return nil
	}
}

func TestRequestUnwindsInOrder(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	c := New(newFakeProducer(rec), newFakeConsumer(rec), time.Second, zap.NewNop())
	c.AddCloser("archive", func(context.Context) error {
		rec.add("archive close")
		return nil
	})
	errCh := runAsync(t, context.Background(), c)

	c.Request("test")
	c.Request("ignored")
	require.NoError(t, waitErr(t, errCh))

	steps := rec.all()
	require.Len(t, steps, 6)
	assert.Equal(t, "producer stop", steps[0])
	assert.ElementsMatch(t, []string{"consumer interrupt", "producer exited", "consumer exited"}, steps[1:4])
	assert.Equal(t, []string{"consumer close", "archive close"}, steps[4:])
	assert.Less(t, indexOf(steps, "consumer interrupt"), indexOf(steps, "consumer exited"))
	assert.Equal(t, "test", c.Reason())
}

func TestContextCancelIsATrigger(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	c := New(newFakeProducer(rec), newFakeConsumer(rec), time.Second, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	errCh := runAsync(t, ctx, c)
	cancel()
	require.NoError(t, waitErr(t, errCh))
	assert.Equal(t, ReasonSignal, c.Reason())
}

func TestListenerExitTriggersShutdown(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	p := newFakeProducer(rec)
	p.exitNow = true
	p.err = errors.New("stream closed by remote")
	c := New(p, newFakeConsumer(rec), time.Second, zap.NewNop())
	c.AddCloser("failing", func(context.Context) error { return errors.New("boom") })

	err := waitErr(t, runAsync(t, context.Background(), c))
	require.EqualError(t, err, "stream closed by remote")
	assert.Equal(t, ReasonListenerExit, c.Reason())
	assert.Contains(t, rec.all(), "consumer close")
}

func TestWatchControl(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	c := New(newFakeProducer(rec), newFakeConsumer(rec), time.Second, zap.NewNop())
	WatchControl(strings.NewReader("status\n  QUIT \nq\n"), c)

	select {
	case <-c.Requested():
	default:
		t.Fatal("expected shutdown to be requested")
	}
	assert.Equal(t, "control: quit", c.Reason())

	other := New(newFakeProducer(rec), newFakeConsumer(rec), time.Second, zap.NewNop())
	WatchControl(strings.NewReader("hello\n"), other)
	select {
	case <-other.Requested():
		t.Fatal("unexpected shutdown request")
	default:
	}
}

func indexOf(steps []string, want string) int {
	for i, s := range steps {
		if s == want {
			return i
		}
	}
	return -1
}
