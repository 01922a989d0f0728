package twittersrc

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// Backoff computes jittered exponential reconnect delays.
type Backoff struct {
	base time.Duration
	max  time.Duration
}

// NewBackoff builds a Backoff. Zero values fall back to 1s and 5m.
func NewBackoff(base, maxDelay time.Duration) Backoff {
	if base <= 0 {
		base = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 5 * time.Minute
	}
	return Backoff{base: base, max: maxDelay}
}

// Delay returns the wait before reconnect attempt n (1-based). The result
// lies in [d/2, d) where d doubles per attempt up to the maximum.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(b.base) * math.Pow(2, float64(attempt-1))
	if delay > float64(b.max) {
		delay = float64(b.max)
	}
	return time.Duration(delay/2) + randomJitter(time.Duration(delay)/2)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
