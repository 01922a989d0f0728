package twittersrc

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/JakeFAU/tweetstream/internal/filter"
)

// FormValues renders a composed query as the filter endpoint's POST form.
// Locations are sent as south-west then north-east longitude,latitude pairs.
func FormValues(q filter.Query) url.Values {
	form := url.Values{}
	form.Set("stall_warnings", "true")
	if len(q.Track) > 0 {
		form.Set("track", strings.Join(q.Track, ","))
	}
	if len(q.Follow) > 0 {
		ids := make([]string, 0, len(q.Follow))
		for _, id := range q.Follow {
			ids = append(ids, strconv.FormatInt(id, 10))
		}
		form.Set("follow", strings.Join(ids, ","))
	}
	if len(q.Locations) > 0 {
		coords := make([]string, 0, len(q.Locations)*4)
		for _, b := range q.Locations {
			coords = append(coords,
				formatCoord(b.MinLon), formatCoord(b.MinLat),
				formatCoord(b.MaxLon), formatCoord(b.MaxLat),
			)
		}
		form.Set("locations", strings.Join(coords, ","))
	}
	if len(q.Languages) > 0 {
		form.Set("language", strings.Join(q.Languages, ","))
	}
	if q.FilterLevel != "" && q.FilterLevel != filter.LevelNone {
		form.Set("filter_level", string(q.FilterLevel))
	}
	return form
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
