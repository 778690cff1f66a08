package fs

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sbencoding/wd_bridge/remote"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// newFakeClient builds a *remote.Client whose requests are all redirected to
// an httptest.Server running handler, regardless of the fixed *.remotewd.com
// host the remote package bakes into its URLs.
func newFakeClient(t *testing.T, handler http.HandlerFunc) *remote.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	target, err := url.Parse(server.URL)
	require.NoError(t, err)

	client := remote.NewClient(0)
	client.SetTransport(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		clone := req.Clone(req.Context())
		clone.URL.Scheme = target.Scheme
		clone.URL.Host = target.Host
		clone.Host = target.Host
		return http.DefaultTransport.RoundTrip(clone)
	}))
	client.SetSession(remote.Session{IDToken: "tok", AccessToken: "tok"})
	client.SetEndpoint(remote.Endpoint{Host: "dev1"})
	return client
}

// muxHandler dispatches by exact request path, useful for fakes that need to
// answer more than one endpoint differently.
func muxHandler(routes map[string]http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h, ok := routes[r.URL.Path]; ok {
			h(w, r)
			return
		}
		http.NotFound(w, r)
	}
}
