package notify

import (
	"context"
	"sync"

	"github.com/JakeFAU/tweetstream/internal/archive"
)

// Memory records notifications for inspection.
type Memory struct {
	mu       sync.RWMutex
	messages []archive.Notification
}

// NewMemory returns an empty Memory notifier.
func NewMemory() *Memory {
	return &Memory{}
}

// Notify records n.
func (m *Memory) Notify(_ context.Context, n archive.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, n)
	return nil
}

// Messages returns the recorded notifications.
func (m *Memory) Messages() []archive.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]archive.Notification, len(m.messages))
	copy(out, m.messages)
	return out
}
