// Package resolve maps human-readable handles to numeric account IDs.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dghubble/go-twitter/twitter"
	"go.uber.org/zap"
)

// ErrEmptyHandle is returned for a blank handle.
var ErrEmptyHandle = errors.New("empty handle")

// Resolver looks up the numeric ID of a handle.
type Resolver interface {
	Resolve(ctx context.Context, handle string) (int64, error)
}

// TwitterResolver resolves handles with the users/show endpoint.
type TwitterResolver struct {
	client *twitter.Client
}

// NewTwitterResolver wraps an authenticated HTTP client.
func NewTwitterResolver(httpClient *http.Client) *TwitterResolver {
	return &TwitterResolver{client: twitter.NewClient(httpClient)}
}

// Rebase returns a copy of client whose requests go to base's scheme and
// host, for API mirrors and test servers. Paths are kept.
func Rebase(client *http.Client, base string) (*http.Client, error) {
	target, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("api base url %q needs a scheme and host", base)
	}
	if client == nil {
		client = http.DefaultClient
	}
	next := client.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	out := *client
	out.Transport = rebaseTransport{target: target, next: next}
	return &out, nil
}

// rebaseTransport rewrites the request before the wrapped transport signs
// and sends it.
type rebaseTransport struct {
	target *url.URL
	next   http.RoundTripper
}

func (rt rebaseTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = rt.target.Scheme
	out.URL.Host = rt.target.Host
	out.Host = rt.target.Host
	return rt.next.RoundTrip(out)
}

// Resolve returns the account ID for handle; a leading "@" is ignored.
func (r *TwitterResolver) Resolve(ctx context.Context, handle string) (int64, error) {
	name := Normalize(handle)
	if name == "" {
		return 0, ErrEmptyHandle
	}
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("resolve %s: %w", name, err)
	}
	user, _, err := r.client.Users.Show(&twitter.UserShowParams{ScreenName: name})
	if err != nil {
		return 0, fmt.Errorf("resolve %s: %w", name, err)
	}
	if user == nil || user.ID == 0 {
		return 0, fmt.Errorf("resolve %s: no such user", name)
	}
	return user.ID, nil
}

// Normalize trims whitespace and a leading "@".
func Normalize(handle string) string {
	return strings.TrimPrefix(strings.TrimSpace(handle), "@")
}

// ResolveAll resolves every handle, logging and skipping failures. The
// result preserves input order.
func ResolveAll(ctx context.Context, r Resolver, handles []string, logger *zap.Logger) []int64 {
	if logger == nil {
		logger = zap.NewNop()
	}
	ids := make([]int64, 0, len(handles))
	for _, h := range handles {
		id, err := r.Resolve(ctx, h)
		if err != nil {
			logger.Warn("could not resolve handle", zap.String("handle", h), zap.Error(err))
			continue
		}
		logger.Info("resolved handle", zap.String("handle", Normalize(h)), zap.Int64("id", id))
		ids = append(ids, id)
	}
	return ids
}
