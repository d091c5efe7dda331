package portal

import (
	"net/http"
	"strings"
	"time"
)

// bearerTransport adds the guest's token to requests under the API base URL only.
// The scan service is a different origin and must not see it.
type bearerTransport struct {
	base   http.RoundTripper
	prefix string
	token  string
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.token == "" || !strings.HasPrefix(req.URL.String(), t.prefix) {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(req)
}

// NewHTTPClient returns a client that authenticates requests to apiBaseURL with `token`.
func NewHTTPClient(apiBaseURL, token string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &bearerTransport{
			base:   http.DefaultTransport,
			prefix: strings.TrimRight(apiBaseURL, "/") + "/",
			token:  token,
		},
	}
}
