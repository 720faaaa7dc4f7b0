package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Aman-CERP/pagemind/internal/errors"
	"github.com/Aman-CERP/pagemind/internal/store"
)

func TestFetchPage_FollowsRedirects(t *testing.T) {
	// Given: a server that redirects /old to /new
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/old":
			http.Redirect(w, r, "/new", http.StatusFound)
		case "/new":
			gotUA = r.Header.Get("User-Agent")
			_, _ = w.Write([]byte("<html><title>New</title></html>"))
		}
	}))
	defer srv.Close()

	f := New(Options{UserAgent: "pagemind-test"})

	// When: fetching the old URL
	res, err := f.FetchPage(context.Background(), srv.URL+"/old", time.Second)

	// Then: the final URL and body come from the redirect target
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 200, res.HTTPStatus)
	assert.Equal(t, srv.URL+"/new", res.FinalURL)
	assert.Contains(t, res.HTML, "<title>New</title>")
	assert.Equal(t, store.FetchOK, res.FetchStatus)
	assert.Equal(t, "pagemind-test", gotUA)
}

func TestFetchPage_NonSuccessIsNotAnError(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		status store.FetchStatus
	}{
		{"forbidden", http.StatusForbidden, store.FetchRestricted},
		{"unauthorized", http.StatusUnauthorized, store.FetchRestricted},
		{"not found", http.StatusNotFound, store.FetchHTTPError},
		{"server error", http.StatusInternalServerError, store.FetchHTTPError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
			}))
			defer srv.Close()

			res, err := New(Options{}).FetchPage(context.Background(), srv.URL, time.Second)

			require.NoError(t, err)
			assert.False(t, res.OK)
			assert.Equal(t, tt.code, res.HTTPStatus)
			assert.Equal(t, tt.status, res.FetchStatus)
		})
	}
}

func TestFetchPage_TimeoutCancelsRequest(t *testing.T) {
	// Given: a server slower than the timeout
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	// When: fetching with a short timeout
	start := time.Now()
	_, err := New(Options{}).FetchPage(context.Background(), srv.URL, 50*time.Millisecond)

	// Then: the call returns a timeout error promptly
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, apperrors.ErrCodeFetchTimeout, apperrors.GetCode(err))
	assert.Equal(t, store.FetchTimeout, StatusOf(err))
}

func TestFetchPage_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	_, err := New(Options{}).FetchPage(context.Background(), addr, time.Second)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeFetchNetwork, apperrors.GetCode(err))
	assert.Equal(t, store.FetchNetworkError, StatusOf(err))
}

func TestFetchPage_CapsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer srv.Close()

	res, err := New(Options{MaxBodyBytes: 100}).FetchPage(context.Background(), srv.URL, time.Second)

	require.NoError(t, err)
	assert.Len(t, res.HTML, 100)
}

func TestFetchPage_RejectsNonHTTP(t *testing.T) {
	for _, raw := range []string{"ftp://example.com", "chrome://settings", "not a url"} {
		_, err := New(Options{}).FetchPage(context.Background(), raw, time.Second)
		require.Error(t, err, raw)
		assert.Equal(t, apperrors.ErrCodeSourceInvalid, apperrors.GetCode(err), raw)
	}
}

func TestFetcher_LimiterPerHost(t *testing.T) {
	f := New(Options{RequestsPerSecond: 2, Burst: 3})

	a := f.limiter("Example.com")
	b := f.limiter("example.com")
	c := f.limiter("other.org")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 3, a.Burst())
	assert.Nil(t, New(Options{}).limiter("example.com"))
}
