// Package fetch downloads single pages for analysis.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/Aman-CERP/pagemind/internal/errors"
	"github.com/Aman-CERP/pagemind/internal/store"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultTimeout      = 15 * time.Second
	DefaultMaxBodyBytes = 5 << 20
	DefaultUserAgent    = "pagemind/1.0 (+https://github.com/Aman-CERP/pagemind)"
)

// Result describes a completed HTTP exchange. A non-2xx status is a Result
// with OK false, not an error.
type Result struct {
	FinalURL    string
	HTTPStatus  int
	OK          bool
	HTML        string
	FetchStatus store.FetchStatus
}

// Options configures a Fetcher.
type Options struct {
	UserAgent         string
	MaxBodyBytes      int64
	RequestsPerSecond float64
	Burst             int
	Client            *http.Client
}

// PageFetcher is the contract the pipeline depends on.
type PageFetcher interface {
	FetchPage(ctx context.Context, rawURL string, timeout time.Duration) (*Result, error)
}

// Fetcher performs GET requests with per-host pacing.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBody   int64
	rps       float64
	burst     int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

var _ PageFetcher = (*Fetcher)(nil)

// New creates a Fetcher.
func New(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        64,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	f := &Fetcher{
		client:    client,
		userAgent: opts.UserAgent,
		maxBody:   opts.MaxBodyBytes,
		rps:       opts.RequestsPerSecond,
		burst:     opts.Burst,
		limiters:  make(map[string]*rate.Limiter),
	}
	if f.userAgent == "" {
		f.userAgent = DefaultUserAgent
	}
	if f.maxBody <= 0 {
		f.maxBody = DefaultMaxBodyBytes
	}
	if f.burst <= 0 {
		f.burst = 1
	}
	return f
}

// FetchPage fetches rawURL, following redirects. The timeout bounds the whole
// exchange including pacing and body read.
func (f *Fetcher) FetchPage(ctx context.Context, rawURL string, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperrors.New(apperrors.ErrCodeSourceInvalid, fmt.Sprintf("unsupported URL %q", rawURL), err)
	}

	if lim := f.limiter(u.Host); lim != nil {
		// Wait fails early when the delay would pass the deadline.
		if err := lim.Wait(ctx); err != nil {
			return nil, apperrors.New(apperrors.ErrCodeFetchTimeout, fmt.Sprintf("timeout waiting to fetch %s", rawURL), err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeSourceInvalid, "failed to build request", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return nil, transportError(ctx, rawURL, err)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	return &Result{
		FinalURL:    finalURL,
		HTTPStatus:  resp.StatusCode,
		OK:          ok,
		HTML:        string(body),
		FetchStatus: StatusForHTTP(resp.StatusCode),
	}, nil
}

// StatusForHTTP maps an HTTP status code to a fetch status.
func StatusForHTTP(code int) store.FetchStatus {
	switch {
	case code >= 200 && code < 300:
		return store.FetchOK
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return store.FetchRestricted
	default:
		return store.FetchHTTPError
	}
}

// StatusOf returns the fetch status carried by an error from FetchPage.
func StatusOf(err error) store.FetchStatus {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeFetchTimeout:
		return store.FetchTimeout
	case apperrors.ErrCodeFetchRestricted:
		return store.FetchRestricted
	default:
		return store.FetchNetworkError
	}
}

func (f *Fetcher) limiter(host string) *rate.Limiter {
	if f.rps <= 0 {
		return nil
	}
	host = strings.ToLower(host)

	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(f.rps), f.burst)
		f.limiters[host] = lim
	}
	return lim
}

func transportError(ctx context.Context, rawURL string, err error) error {
	if isTimeout(ctx, err) {
		return apperrors.New(apperrors.ErrCodeFetchTimeout, fmt.Sprintf("timeout fetching %s", rawURL), err)
	}
	return apperrors.New(apperrors.ErrCodeFetchNetwork, fmt.Sprintf("network error fetching %s: %v", rawURL, err), err)
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
