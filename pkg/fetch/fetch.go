// Package fetch abstracts retrieval of manifests and firmware binaries.
// Fetchers perform a single request hop; redirect following is caller-driven
// through Resolve so the redirect bound is enforced in one place.
package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// MaxRedirects bounds caller-driven redirect following.
const MaxRedirects = 5

// ErrTooManyRedirects reports a redirect chain exceeding MaxRedirects
// (including a redirect loop).
var ErrTooManyRedirects = errors.New("fetch: too many redirects")

// Response is a single-hop fetch result. ContentLength is -1 when unknown.
// Location is set on redirect responses. Body is nil for redirects.
type Response struct {
	StatusCode    int
	ContentLength int64
	Location      string
	Body          io.ReadCloser
}

// Close releases the response body if present.
func (r *Response) Close() {
	if r.Body != nil {
		r.Body.Close()
	}
}

// Fetcher retrieves a URL without following redirects.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

func isRedirect(code int) bool {
	return code == 301 || code == 302 || code == 307 || code == 308
}

// Resolve fetches url, following redirects up to MaxRedirects hops, and
// returns the final response. A redirect without a Location header is
// returned as-is for the caller to reject by status code.
func Resolve(ctx context.Context, f Fetcher, url string) (*Response, error) {
	current := url
	for hop := 0; hop <= MaxRedirects; hop++ {
		resp, err := f.Fetch(ctx, current)
		if err != nil {
			return nil, err
		}

		if !isRedirect(resp.StatusCode) {
			return resp, nil
		}
		if resp.Location == "" {
			slog.Warn("redirect_without_location", "url", current, "status", resp.StatusCode)
			return resp, nil
		}

		resp.Close()
		slog.Info("following_redirect", "from", current, "to", resp.Location, "hop", hop+1)
		current = resp.Location
	}

	slog.Error("redirect_limit_exceeded", "url", url, "max_redirects", MaxRedirects)
	return nil, ErrTooManyRedirects
}
