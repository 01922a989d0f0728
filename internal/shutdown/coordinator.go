// Package shutdown runs the producer and consumer workers and unwinds them
// in a fixed order when any termination trigger fires.
package shutdown

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Producer is the stream listener side.
type Producer interface {
	Run(ctx context.Context) error
	Stop()
	Done() <-chan struct{}
}

// Consumer is the result writer side.
type Consumer interface {
	Run(ctx context.Context)
	Interrupt()
	Close() error
	Done() <-chan struct{}
}

// CloseFunc releases a resource after both workers have stopped.
type CloseFunc func(ctx context.Context) error

type closer struct {
	name string
	fn   CloseFunc
}

// Reasons reported when the coordinator unwinds on its own.
const (
	ReasonSignal       = "signal"
	ReasonListenerExit = "listener exited"
	ReasonWriterExit   = "writer exited"
)

// Coordinator owns the two long-lived workers.
type Coordinator struct {
	producer Producer
	consumer Consumer
	timeout  time.Duration
	logger   *zap.Logger

	closers []closer

	once      sync.Once
	requested chan struct{}
	reasonMu  sync.Mutex
	reason    string
}

// New constructs a Coordinator. timeout bounds the registered closers.
func New(producer Producer, consumer Consumer, timeout time.Duration, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Coordinator{
		producer:  producer,
		consumer:  consumer,
		timeout:   timeout,
		logger:    logger.Named("shutdown"),
		requested: make(chan struct{}),
	}
}

// AddCloser registers fn to run, in registration order, after the consumer
// is closed.
func (c *Coordinator) AddCloser(name string, fn CloseFunc) {
	c.closers = append(c.closers, closer{name: name, fn: fn})
}

// Request triggers shutdown. Only the first call has an effect.
func (c *Coordinator) Request(reason string) {
	c.once.Do(func() {
		c.reasonMu.Lock()
		c.reason = reason
		c.reasonMu.Unlock()
		c.logger.Info("shutdown requested", zap.String("reason", reason))
		close(c.requested)
	})
}

// Requested is closed once shutdown has been triggered.
func (c *Coordinator) Requested() <-chan struct{} { return c.requested }

// Reason returns the trigger that won, or "".
func (c *Coordinator) Reason() string {
	c.reasonMu.Lock()
	defer c.reasonMu.Unlock()
	return c.reason
}

// Run starts both workers and blocks until a trigger fires and the unwind
// completes. Cancelling ctx is itself a trigger; the workers run on a
// context that is only ended through the ordered unwind. The returned error
// is the producer's fatal error, if any.
func (c *Coordinator) Run(ctx context.Context) error {
	workerCtx := context.WithoutCancel(ctx)

	var (
		wg          sync.WaitGroup
		producerErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		producerErr = c.producer.Run(workerCtx)
	}()
	go func() {
		defer wg.Done()
		c.consumer.Run(workerCtx)
	}()

	select {
	case <-ctx.Done():
		c.Request(ReasonSignal)
	case <-c.requested:
	case <-c.producer.Done():
		c.Request(ReasonListenerExit)
	case <-c.consumer.Done():
		c.Request(ReasonWriterExit)
	}

	c.producer.Stop()
	c.consumer.Interrupt()
	wg.Wait()
	if err := c.consumer.Close(); err != nil {
		c.logger.Error("close writer failed", zap.Error(err))
	}

	closeCtx, cancel := context.WithTimeout(workerCtx, c.timeout)
	defer cancel()
	for _, cl := range c.closers {
		if err := cl.fn(closeCtx); err != nil {
			c.logger.Error("close failed", zap.String("resource", cl.name), zap.Error(err))
		}
	}
	c.logger.Info("shutdown complete", zap.String("reason", c.Reason()))
	return producerErr
}
