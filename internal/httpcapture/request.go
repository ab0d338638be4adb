// Package httpcapture connects net/http servers to the exception logger: it snapshots the
// request being served and recovers handler panics into written exceptions.
package httpcapture

import (
	"context"
	"net/http"
	"net/url"

	"github.com/vietddude/exlog/internal/core/domain"
)

type userKey struct{}

// WithUser records the authenticated user name on ctx.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the user stored by WithUser.
func UserFromContext(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(userKey{}).(string)
	return u, ok && u != ""
}

// FromRequest snapshots r. The URL is made absolute using the Host header and TLS state.
func FromRequest(r *http.Request) domain.WebRequest {
	u := *r.URL
	if u.Host == "" {
		u.Host = r.Host
	}
	if u.Scheme == "" {
		u.Scheme = "http"
		if r.TLS != nil {
			u.Scheme = "https"
		}
	}

	req := domain.WebRequest{
		URL:    u,
		Method: r.Method,
	}
	if ref := r.Referer(); ref != "" {
		if parsed, err := url.Parse(ref); err == nil {
			req.Referrer = domain.Some(*parsed)
		}
	}
	if user, ok := UserFromContext(r.Context()); ok {
		req.AuthenticatedUser = domain.Some(user)
	} else if user, _, ok := r.BasicAuth(); ok && user != "" {
		req.AuthenticatedUser = domain.Some(user)
	}
	if len(r.Header) > 0 {
		req.Headers = domain.Some(domain.NewHeaders(r.Header))
	}
	return req
}
