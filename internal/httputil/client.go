// Package httputil configures the outbound HTTP clients used by the
// archive fetchers.
package httputil

import (
	"net/http"
	"time"
)

const DefaultTimeout = 30 * time.Second

// UserAgentTransport stamps a fixed User-Agent on every request. The ECCC
// bulk endpoint serves an error page to the default Go client string.
type UserAgentTransport struct {
	UserAgent string
	Base      http.RoundTripper
}

func (t *UserAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.UserAgent)
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}

// NewArchiveClient returns a client with the standard timeout that
// identifies itself as a browser.
func NewArchiveClient(userAgent string) *http.Client {
	return &http.Client{
		Timeout:   DefaultTimeout,
		Transport: &UserAgentTransport{UserAgent: userAgent},
	}
}
