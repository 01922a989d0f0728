// Package filter builds the immutable Filter Specification that selects which
// posts a push source delivers.
package filter

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Upper bounds accepted by the filter endpoint; longer inputs are truncated.
const (
	MaxTerms     = 400
	MaxFollowIDs = 5000
	MaxGeoBoxes  = 25
)

// Level is the minimum filter_level a post must carry.
type Level string

// Supported filter levels.
const (
	LevelNone   Level = "none"
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
)

// ParseLevel maps a configuration string onto a Level. Empty means none.
func ParseLevel(raw string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(raw))) {
	case "", LevelNone:
		return LevelNone, nil
	case LevelLow:
		return LevelLow, nil
	case LevelMedium:
		return LevelMedium, nil
	default:
		return "", fmt.Errorf("unknown filter level %q", raw)
	}
}

// Params are the raw, already-resolved inputs to Build.
type Params struct {
	Terms     []string
	FollowIDs []int64
	Languages []string
	GeoBoxes  []Box
	Level     Level
	// Combine sends every non-empty dimension instead of only the one with
	// the highest precedence.
	Combine bool
}

// Spec is the Filter Specification. It is built once and never modified.
type Spec struct {
	terms     []string
	followIDs []int64
	languages []string
	geoBoxes  []Box
	level     Level
	combine   bool
}

// Build validates and truncates p into a Spec. Truncation is logged.
func Build(p Params, logger *zap.Logger) (Spec, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	level := p.Level
	if level == "" {
		level = LevelNone
	}
	if _, err := ParseLevel(string(level)); err != nil {
		return Spec{}, err
	}
	for i, box := range p.GeoBoxes {
		if err := box.Validate(); err != nil {
			return Spec{}, fmt.Errorf("geo box %d: %w", i, err)
		}
	}

	terms := cleanStrings(p.Terms)
	if len(terms) > MaxTerms {
		logger.Warn("too many filter terms, truncating", zap.Int("given", len(terms)), zap.Int("max", MaxTerms))
		terms = terms[:MaxTerms]
	}
	ids := dedupeIDs(p.FollowIDs)
	if len(ids) > MaxFollowIDs {
		logger.Warn("too many follow ids, truncating", zap.Int("given", len(ids)), zap.Int("max", MaxFollowIDs))
		ids = ids[:MaxFollowIDs]
	}
	boxes := append([]Box(nil), p.GeoBoxes...)
	if len(boxes) > MaxGeoBoxes {
		logger.Warn("too many geo boxes, truncating", zap.Int("given", len(boxes)), zap.Int("max", MaxGeoBoxes))
		boxes = boxes[:MaxGeoBoxes]
	}

	spec := Spec{
		terms:     terms,
		followIDs: ids,
		languages: cleanStrings(p.Languages),
		geoBoxes:  boxes,
		level:     level,
		combine:   p.Combine,
	}
	if !spec.combine {
		all := Spec{terms: spec.terms, followIDs: spec.followIDs, languages: spec.languages, geoBoxes: spec.geoBoxes, combine: true}
		if given := all.Query().Dimensions(); len(given) > 1 {
			logger.Warn("only the first filter dimension is used, set filter.combine to send all",
				zap.String("used", string(given[0])), zap.Int("ignored", len(given)-1))
		}
	}
	return spec, nil
}

// Terms returns the track terms.
func (s Spec) Terms() []string { return append([]string(nil), s.terms...) }

// FollowIDs returns the numeric account IDs to follow.
func (s Spec) FollowIDs() []int64 { return append([]int64(nil), s.followIDs...) }

// Languages returns the language codes.
func (s Spec) Languages() []string { return append([]string(nil), s.languages...) }

// GeoBoxes returns the bounding boxes.
func (s Spec) GeoBoxes() []Box { return append([]Box(nil), s.geoBoxes...) }

// Level returns the filter level.
func (s Spec) Level() Level { return s.level }

// Empty reports whether no filter dimension is set.
func (s Spec) Empty() bool {
	return len(s.terms) == 0 && len(s.followIDs) == 0 && len(s.languages) == 0 && len(s.geoBoxes) == 0
}

func cleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func dedupeIDs(in []int64) []int64 {
	out := make([]int64, 0, len(in))
	seen := make(map[int64]struct{}, len(in))
	for _, id := range in {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Info returns the filter portion of the run's configuration snapshot.
func (s Spec) Info() map[string]any {
	boxes := make([]string, 0, len(s.geoBoxes))
	for _, b := range s.geoBoxes {
		boxes = append(boxes, b.String())
	}
	return map[string]any{
		"filter":       s.Terms(),
		"user_ids":     s.FollowIDs(),
		"languages":    s.Languages(),
		"geo_boxes":    boxes,
		"filter_level": string(s.level),
		"combine":      s.combine,
	}
}
