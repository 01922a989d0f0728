package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/JakeFAU/tweetstream/internal/archive"
)

// NATS publishes notifications to a NATS subject.
type NATS struct {
	conn    *nats.Conn
	subject string
}

// NewNATS connects to url.
func NewNATS(url, subject string) (*NATS, error) {
	nc, err := nats.Connect(url, nats.Name("tweetstream-archive"))
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &NATS{conn: nc, subject: subject}, nil
}

// Notify publishes n as JSON and flushes.
func (p *NATS) Notify(ctx context.Context, n archive.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush notification: %w", err)
	}
	return nil
}

// Close drains and closes the connection.
func (p *NATS) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
