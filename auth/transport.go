// Package auth provides http.RoundTrippers that decorate outgoing RAPI
// requests.
package auth

import "net/http"

// BasicAuthTransport injects HTTP Basic credentials.
type BasicAuthTransport struct {
	Username string
	Password string
	Base     http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *BasicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if t.Username != "" {
		clone.SetBasicAuth(t.Username, t.Password)
	}
	return base(t.Base).RoundTrip(clone)
}

// UserAgentTransport sets the User-Agent header unless the request already
// carries one.
type UserAgentTransport struct {
	Agent string
	Base  http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *UserAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if t.Agent != "" && clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", t.Agent)
	}
	return base(t.Base).RoundTrip(clone)
}

func base(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		return http.DefaultTransport
	}
	return rt
}
