package ingest

import (
	"bytes"
	"errors"
	"time"

	"github.com/dghubble/go-twitter/twitter"
)

// ErrNoPayload is returned when a record is built from an empty payload.
var ErrNoPayload = errors.New("empty payload")

// Record is one ingested post: its raw serialized payload and the parsed view
// of it. A Record is immutable once built; accessors return shared slices
// that callers must not modify.
type Record struct {
	raw       []byte
	tweet     *twitter.Tweet
	id        int64
	author    string
	createdAt time.Time
	mentioned []string
	media     []string
}

// NewRecord builds a Record from a raw payload and its parsed form. The raw
// bytes are copied and any trailing line delimiter is removed.
func NewRecord(raw []byte, tweet *twitter.Tweet) (Record, error) {
	trimmed := bytes.TrimRight(raw, "\r\n")
	if len(bytes.TrimSpace(trimmed)) == 0 {
		return Record{}, ErrNoPayload
	}
	rec := Record{
		raw:   append([]byte(nil), trimmed...),
		tweet: tweet,
	}
	if tweet == nil {
		return rec, nil
	}
	rec.id = tweet.ID
	if tweet.User != nil {
		rec.author = tweet.User.ScreenName
	}
	if ts, err := tweet.CreatedAtTime(); err == nil {
		rec.createdAt = ts
	}
	rec.mentioned = CollectMentionedURLs(tweet)
	rec.media = CollectMediaURLs(tweet)
	return rec, nil
}

// Raw returns the serialized payload without a line delimiter.
func (r Record) Raw() []byte { return r.raw }

// Tweet returns the parsed post, or nil when none was supplied.
func (r Record) Tweet() *twitter.Tweet { return r.tweet }

// ID returns the post identifier.
func (r Record) ID() int64 { return r.id }

// Author returns the author's screen name when known.
func (r Record) Author() string { return r.author }

// CreatedAt returns the post creation time, zero when unparseable.
func (r Record) CreatedAt() time.Time { return r.createdAt }

// MentionedURLs returns the sorted links the post mentions.
func (r Record) MentionedURLs() []string { return r.mentioned }

// MediaURLs returns the sorted media attachment URLs.
func (r Record) MediaURLs() []string { return r.media }

// URLs returns the sorted union of mentioned and media URLs, the candidate
// set handed to the media harvester.
func (r Record) URLs() []string {
	return sortedSet(r.mentioned, r.media)
}
