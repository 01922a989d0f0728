package ingest

import (
	"context"
	"time"

	"github.com/dghubble/go-twitter/twitter"

	"github.com/JakeFAU/tweetstream/internal/filter"
)

// Handler receives the callbacks a push source emits. Implementations must
// not block; sources invoke them from their own delivery goroutine.
type Handler interface {
	// OnEvent delivers one post with its raw serialized form.
	OnEvent(raw []byte, tweet *twitter.Tweet)
	// OnDeletion reports a deletion notice for an earlier post.
	OnDeletion(notice Deletion)
	// OnRateLimit reports how many matching posts were withheld by the source.
	OnRateLimit(count int64)
	// OnWarning reports a non-fatal transport condition such as a stall.
	OnWarning(warning Warning)
	// OnFatal reports an error after which the source stops delivering.
	OnFatal(err error)
}

// Source is a push-based event source. Subscribe blocks until the
// subscription ends, either because Shutdown was called, ctx finished, or a
// fatal error was reported to the handler.
type Source interface {
	Subscribe(ctx context.Context, spec filter.Spec, h Handler) error
	Shutdown()
}

// Clock returns the current wall-clock time.
type Clock interface {
	Now() time.Time
}

// Deletion identifies a post the author removed.
type Deletion struct {
	ID     int64
	UserID int64
	// ScrubGeo marks a location-scrub notice covering posts up to ID.
	ScrubGeo bool
}

// Warning carries a non-fatal transport notice.
type Warning struct {
	Code        string
	Message     string
	PercentFull int
}

// WarningMalformed is the Warning code sources use for undecodable messages.
const WarningMalformed = "MALFORMED_MESSAGE"
