package filter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Box is a geographic bounding box in degrees.
type Box struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// ParseBox parses "minLat,minLon,maxLat,maxLon".
func ParseBox(raw string) (Box, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return Box{}, fmt.Errorf("geo box %q: want minLat,minLon,maxLat,maxLon", raw)
	}
	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Box{}, fmt.Errorf("geo box %q: %w", raw, err)
		}
		vals[i] = v
	}
	box := Box{MinLat: vals[0], MinLon: vals[1], MaxLat: vals[2], MaxLon: vals[3]}
	if err := box.Validate(); err != nil {
		return Box{}, err
	}
	return box, nil
}

// ParseBoxes parses every entry of raw.
func ParseBoxes(raw []string) ([]Box, error) {
	out := make([]Box, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		b, err := ParseBox(r)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Validate checks coordinate ranges and ordering.
func (b Box) Validate() error {
	for _, v := range [4]float64{b.MinLat, b.MinLon, b.MaxLat, b.MaxLon} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite coordinate in %s", b)
		}
	}
	switch {
	case b.MinLat < -90 || b.MaxLat > 90:
		return fmt.Errorf("latitude out of range in %s", b)
	case b.MinLon < -180 || b.MaxLon > 180:
		return fmt.Errorf("longitude out of range in %s", b)
	case b.MinLat > b.MaxLat || b.MinLon > b.MaxLon:
		return fmt.Errorf("min exceeds max in %s", b)
	}
	return nil
}

// Contains reports whether the point lies inside the box, edges included.
func (b Box) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// String renders the box in the order ParseBox accepts.
func (b Box) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}
