package collab

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/sitepipe/pkg/core"
)

// pinnedClient sends every request to srv regardless of the host asked for.
func pinnedClient(srv *httptest.Server) *http.Client {
	addr := srv.Listener.Addr().String()
	return &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}}
}

func TestSiteInspector_ReadsLiveSite(t *testing.T) {
	var host string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host = r.Host
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title> Bean Coffee | Roasters </title>
<meta name="description" content="Small batch coffee.">
<meta name="keywords" content="Coffee, espresso, beans">
</head><body></body></html>`))
	}))
	defer srv.Close()

	s := NewSiteInspector(WithHTTPClient(pinnedClient(srv)), WithScheme("http"))
	a, err := s.Analyze(context.Background(), " Bean-Coffee.com. ")
	require.NoError(t, err)

	assert.Equal(t, "bean-coffee.com", host)
	assert.True(t, a.Reachable)
	assert.Equal(t, "Bean Coffee | Roasters", a.Title)
	assert.Equal(t, "Small batch coffee.", a.Description)
	assert.Equal(t, []string{"bean", "coffee", "espresso", "beans"}, a.Keywords)
	assert.Equal(t, "food & beverage", a.Industry)
}

func TestSiteInspector_UnreachableFallsBackToName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewSiteInspector(WithHTTPClient(pinnedClient(srv)), WithScheme("http"))
	a, err := s.Analyze(context.Background(), "foo.com")
	require.NoError(t, err)
	assert.False(t, a.Reachable)
	assert.Equal(t, "Foo", a.Name)
	assert.Empty(t, a.Title)
}

func TestSiteInspector_InvalidKey(t *testing.T) {
	s := NewSiteInspector()
	_, err := s.Analyze(context.Background(), "not a domain")
	assert.ErrorIs(t, err, core.ErrInvalidKey)

	_, err = s.Analyze(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrKeyRequired)
}

func TestSiteInspector_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSiteInspector(WithHTTPClient(pinnedClient(srv)), WithScheme("http"))
	_, err := s.Analyze(ctx, "foo.com")
	assert.ErrorIs(t, err, context.Canceled)
}
