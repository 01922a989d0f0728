// Package notify publishes archive upload notifications.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/tweetstream/internal/archive"
)

// PubSub publishes notifications to a Cloud Pub/Sub topic.
type PubSub struct {
	topic *pubsub.Topic
}

// NewPubSub wraps a topic handle.
func NewPubSub(topic *pubsub.Topic) *PubSub {
	return &PubSub{topic: topic}
}

// Notify marshals n to JSON and waits for the publish to be acknowledged.
func (p *PubSub) Notify(ctx context.Context, n archive.Notification) error {
	if p.topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"run_id": n.RunID},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Close flushes pending publishes.
func (p *PubSub) Close() {
	if p.topic != nil {
		p.topic.Stop()
	}
}
