package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/pagemind/internal/daemon"
	apperrors "github.com/Aman-CERP/pagemind/internal/errors"
	"github.com/Aman-CERP/pagemind/internal/llm"
	"github.com/Aman-CERP/pagemind/internal/service"
	"github.com/Aman-CERP/pagemind/internal/service/servicetest"
	"github.com/Aman-CERP/pagemind/internal/store"
)

func newTestServer(t *testing.T, f *servicetest.Fixture) *httptest.Server {
	t.Helper()
	dispatcher := daemon.NewServer(daemon.Config{}, daemon.Handlers(f.Service), f.Logger)
	srv := httptest.NewServer(New("", f.Service, dispatcher, f.Metrics, f.Logger).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, servicetest.New(t))

	resp := get(t, srv.URL+"/healthz")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]string](t, resp)["status"])
}

func TestMessages_DispatchesProtocol(t *testing.T) {
	// Given
	f := servicetest.New(t)
	f.Seed(t, "https://golang.org/doc")
	srv := newTestServer(t, f)

	// When
	resp := post(t, srv.URL+"/api/messages", `{"jsonrpc":"2.0","method":"GET_STATS","id":"1"}`)

	// Then
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Result struct {
			Type    string      `json:"type"`
			Payload store.Stats `json:"payload"`
		} `json:"result"`
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, daemon.TypeStats, out.Result.Type)
	assert.Equal(t, 1, out.Result.Payload.Done)
	assert.Equal(t, "1", out.ID)
}

func TestMessages_ErrorInBody(t *testing.T) {
	srv := newTestServer(t, servicetest.New(t))

	resp := post(t, srv.URL+"/api/messages", `{"method":"ASK_QUERY","params":{"question":""}}`)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[daemon.Response](t, resp)
	require.NotNil(t, out.Error)
	assert.Equal(t, daemon.ErrCodeInvalidParams, out.Error.Code)
	assert.Equal(t, apperrors.ErrCodeQueryEmpty, out.Error.Details.Code)
	assert.NotEmpty(t, out.ID, "request id assigned")
}

func TestMessages_MalformedBody(t *testing.T) {
	srv := newTestServer(t, servicetest.New(t))

	resp := post(t, srv.URL+"/api/messages", `{nope`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	out := decode[daemon.Response](t, resp)
	require.NotNil(t, out.Error)
	assert.Equal(t, daemon.ErrCodeParseError, out.Error.Code)
}

func TestStatus_Unconfigured(t *testing.T) {
	srv := newTestServer(t, servicetest.New(t, servicetest.Unconfigured()))

	resp := get(t, srv.URL+"/api/status")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	rep := decode[service.StatusReport](t, resp)
	assert.False(t, rep.Configured)
	assert.NotEmpty(t, rep.Missing)
}

func TestAsk(t *testing.T) {
	f := servicetest.New(t)
	f.Seed(t, "https://sqlite.org/wal", "https://redis.io/docs")
	srv := newTestServer(t, f)

	resp := post(t, srv.URL+"/api/ask", `{"question":"sqlite wal"}`)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[llm.AnswerResult](t, resp)
	assert.Equal(t, "Answer to sqlite wal", res.Answer)
}

func TestAsk_StatusForErrors(t *testing.T) {
	tests := []struct {
		name    string
		fixture func(t *testing.T) *servicetest.Fixture
		body    string
		want    int
	}{
		{
			name:    "empty question",
			fixture: func(t *testing.T) *servicetest.Fixture { return servicetest.New(t) },
			body:    `{"question":"  "}`,
			want:    http.StatusBadRequest,
		},
		{
			name:    "settings missing",
			fixture: func(t *testing.T) *servicetest.Fixture { return servicetest.New(t, servicetest.Unconfigured()) },
			body:    `{"question":"anything"}`,
			want:    http.StatusServiceUnavailable,
		},
		{
			name:    "bad body",
			fixture: func(t *testing.T) *servicetest.Fixture { return servicetest.New(t) },
			body:    `[`,
			want:    http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.fixture(t))

			resp := post(t, srv.URL+"/api/ask", tt.body)

			assert.Equal(t, tt.want, resp.StatusCode)
			e := decode[daemon.Error](t, resp)
			assert.NotEmpty(t, e.Message)
		})
	}
}

func TestSearch(t *testing.T) {
	f := servicetest.New(t)
	f.Seed(t, "https://golang.org/doc", "https://redis.io/docs")
	srv := newTestServer(t, f)

	resp := get(t, srv.URL+"/api/search?q=redis&top_k=1")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	hits := decode[[]service.Hit](t, resp)
	require.Len(t, hits, 1)
	assert.Equal(t, "https://redis.io/docs", hits[0].URL)

	bad := get(t, srv.URL+"/api/search?q=redis&top_k=zero")
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestMetrics_CountsRequestsByRoute(t *testing.T) {
	// Given
	f := servicetest.New(t)
	srv := newTestServer(t, f)

	// When
	get(t, srv.URL+"/api/stats")
	get(t, srv.URL+"/api/stats")
	get(t, srv.URL+"/no/such/path")

	// Then
	assert.Equal(t, 2.0, testutil.ToFloat64(f.Metrics.HTTPRequests.WithLabelValues("GET", "/api/stats", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.Metrics.HTTPRequests.WithLabelValues("GET", "unmatched", "404")))

	resp := get(t, srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "pagemind_http_requests_total")
}

func TestServe_StopsOnCancel(t *testing.T) {
	f := servicetest.New(t)
	s := New("", f.Service, daemon.NewServer(daemon.Config{}, nil, f.Logger), nil, f.Logger)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
