package filter

import (
	"strings"

	"github.com/dghubble/go-twitter/twitter"
)

// Dimension names one axis of a subscription.
type Dimension string

// Dimensions in precedence order.
const (
	DimensionTerms     Dimension = "terms"
	DimensionFollow    Dimension = "follow"
	DimensionLanguages Dimension = "languages"
	DimensionLocations Dimension = "locations"
)

// Query is the subscription actually sent to a source.
type Query struct {
	Track       []string
	Follow      []int64
	Languages   []string
	Locations   []Box
	FilterLevel Level
}

// Dimensions lists the dimensions present in q, in precedence order.
func (q Query) Dimensions() []Dimension {
	var out []Dimension
	if len(q.Track) > 0 {
		out = append(out, DimensionTerms)
	}
	if len(q.Follow) > 0 {
		out = append(out, DimensionFollow)
	}
	if len(q.Languages) > 0 {
		out = append(out, DimensionLanguages)
	}
	if len(q.Locations) > 0 {
		out = append(out, DimensionLocations)
	}
	return out
}

// Query composes the subscription. Only the highest-precedence non-empty
// dimension is used (terms, then follow IDs, then languages, then geo
// boxes) unless the spec was built with Combine.
func (s Spec) Query() Query {
	q := Query{FilterLevel: s.level}
	if s.combine {
		q.Track = s.Terms()
		q.Follow = s.FollowIDs()
		q.Languages = s.Languages()
		q.Locations = s.GeoBoxes()
		return q
	}
	switch {
	case len(s.terms) > 0:
		q.Track = s.Terms()
	case len(s.followIDs) > 0:
		q.Follow = s.FollowIDs()
	case len(s.languages) > 0:
		q.Languages = s.Languages()
	case len(s.geoBoxes) > 0:
		q.Locations = s.GeoBoxes()
	}
	return q
}

// Matches evaluates the composed query against a post, for sources that
// cannot filter server-side. Track, follow and location clauses are OR'ed;
// languages, when combined with another clause, further restrict the match.
func (s Spec) Matches(tweet *twitter.Tweet) bool {
	if tweet == nil {
		return false
	}
	q := s.Query()
	if !levelAllows(q.FilterLevel, tweet.FilterLevel) {
		return false
	}
	langOK := len(q.Languages) == 0 || containsFold(q.Languages, tweet.Lang)
	if len(q.Track) == 0 && len(q.Follow) == 0 && len(q.Locations) == 0 {
		return langOK
	}
	if !langOK {
		return false
	}
	return matchesTrack(q.Track, tweet) || matchesFollow(q.Follow, tweet) || matchesLocation(q.Locations, tweet)
}

func matchesTrack(terms []string, tweet *twitter.Tweet) bool {
	if len(terms) == 0 {
		return false
	}
	text := strings.ToLower(tweetText(tweet))
	for _, term := range terms {
		words := strings.Fields(strings.ToLower(term))
		if len(words) == 0 {
			continue
		}
		all := true
		for _, w := range words {
			if !strings.Contains(text, w) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func matchesFollow(ids []int64, tweet *twitter.Tweet) bool {
	if len(ids) == 0 {
		return false
	}
	candidates := []int64{tweet.InReplyToUserID}
	if tweet.User != nil {
		candidates = append(candidates, tweet.User.ID)
	}
	if rt := tweet.RetweetedStatus; rt != nil && rt.User != nil {
		candidates = append(candidates, rt.User.ID)
	}
	for _, id := range ids {
		for _, c := range candidates {
			if c != 0 && c == id {
				return true
			}
		}
	}
	return false
}

func matchesLocation(boxes []Box, tweet *twitter.Tweet) bool {
	if len(boxes) == 0 || tweet.Coordinates == nil {
		return false
	}
	lon, lat := tweet.Coordinates.Coordinates[0], tweet.Coordinates.Coordinates[1]
	for _, b := range boxes {
		if b.Contains(lat, lon) {
			return true
		}
	}
	return false
}

func tweetText(tweet *twitter.Tweet) string {
	if ext := tweet.ExtendedTweet; ext != nil && ext.FullText != "" {
		return ext.FullText
	}
	if tweet.FullText != "" {
		return tweet.FullText
	}
	return tweet.Text
}

func levelAllows(want Level, got string) bool {
	rank := map[Level]int{LevelNone: 0, LevelLow: 1, LevelMedium: 2}
	if want == "" || want == LevelNone {
		return true
	}
	return rank[Level(got)] >= rank[want]
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}
