package media

import (
	"net/url"
	"strings"
)

var imgurHosts = map[string]bool{
	"imgur.com":     true,
	"www.imgur.com": true,
	"m.imgur.com":   true,
}

// Rewrite maps page-style links to the direct content they show. Links no
// rule recognizes are returned unchanged.
func Rewrite(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !imgurHosts[strings.ToLower(u.Hostname())] {
		return raw
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	var id string
	switch {
	case len(segments) == 2 && segments[0] == "gallery":
		id = segments[1]
	case len(segments) == 1 && !strings.Contains(segments[0], "."):
		id = segments[0]
	}
	if id == "" {
		return raw
	}
	return "https://i.imgur.com/download/" + id
}
