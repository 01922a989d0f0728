// Package source decodes raw stream lines into handler callbacks. The
// concrete push sources live in subpackages.
package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dghubble/go-twitter/twitter"

	"github.com/JakeFAU/tweetstream/internal/ingest"
)

// ErrDisconnected is reported when the remote end sends a disconnect message.
var ErrDisconnected = errors.New("stream disconnected by remote")

// MatchFunc filters posts before delivery; nil accepts everything.
type MatchFunc func(tweet *twitter.Tweet) bool

// Dispatch decodes one stream line and invokes the matching callback on h.
// It returns ErrDisconnected (already reported via OnFatal) when the line
// ends the stream.
func Dispatch(line []byte, h ingest.Handler) error {
	return DispatchMatching(line, h, nil)
}

// DispatchMatching is Dispatch with a client-side post filter.
func DispatchMatching(line []byte, h ingest.Handler, match MatchFunc) error {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(line, &envelope); err != nil {
		h.OnWarning(ingest.Warning{Code: ingest.WarningMalformed, Message: err.Error()})
		return nil
	}

	switch {
	case has(envelope, "delete"):
		var msg struct {
			Status twitter.StatusDeletion `json:"status"`
		}
		if !decode(envelope["delete"], &msg, h) {
			return nil
		}
		h.OnDeletion(ingest.Deletion{ID: msg.Status.ID, UserID: msg.Status.UserID})
	case has(envelope, "scrub_geo"):
		var msg twitter.LocationDeletion
		if !decode(envelope["scrub_geo"], &msg, h) {
			return nil
		}
		h.OnDeletion(ingest.Deletion{ID: msg.UpToStatusID, UserID: msg.UserID, ScrubGeo: true})
	case has(envelope, "limit"):
		var msg twitter.StreamLimit
		if !decode(envelope["limit"], &msg, h) {
			return nil
		}
		h.OnRateLimit(msg.Track)
	case has(envelope, "warning"):
		var msg twitter.StallWarning
		if !decode(envelope["warning"], &msg, h) {
			return nil
		}
		h.OnWarning(ingest.Warning{Code: msg.Code, Message: msg.Message, PercentFull: msg.PercentFull})
	case has(envelope, "disconnect"):
		var msg twitter.StreamDisconnect
		if !decode(envelope["disconnect"], &msg, h) {
			return nil
		}
		err := fmt.Errorf("%w: code %d stream %q: %s", ErrDisconnected, msg.Code, msg.StreamName, msg.Reason)
		h.OnFatal(err)
		return err
	case has(envelope, "id") && (has(envelope, "text") || has(envelope, "full_text")):
		var tweet twitter.Tweet
		if !decode(line, &tweet, h) {
			return nil
		}
		if match != nil && !match(&tweet) {
			return nil
		}
		h.OnEvent(line, &tweet)
	}
	return nil
}

func has(envelope map[string]json.RawMessage, key string) bool {
	_, ok := envelope[key]
	return ok
}

func decode(raw json.RawMessage, v any, h ingest.Handler) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		h.OnWarning(ingest.Warning{Code: ingest.WarningMalformed, Message: err.Error()})
		return false
	}
	return true
}
