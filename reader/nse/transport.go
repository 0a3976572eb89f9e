package nse

import "net/http"

// browserTransport injects the browser-impersonating header set into every
// outgoing request. The origin filters on these headers; requests without
// them are rejected before the cookie check even runs.
type browserTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *browserTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Connection", "keep-alive")
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	}
	return t.base.RoundTrip(req)
}
