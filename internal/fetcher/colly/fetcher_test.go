package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitesearch/internal/crawler"
)

func TestFetchReturnsBodyAndSendsHeaders(t *testing.T) {
	t.Parallel()

	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><title>Hi</title></html>"))
	}))
	defer srv.Close()

	f := New(Config{
		UserAgent:      "test-agent",
		Referrer:       "https://ref.example",
		AcceptLanguage: "en",
		Timeout:        time.Second,
	})
	resp, err := f.Fetch(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "<html><title>Hi</title></html>", string(resp.Body))
	require.Equal(t, srv.URL+"/page", resp.URL)
	require.Equal(t, "test-agent", got.Get("User-Agent"))
	require.Equal(t, "https://ref.example", got.Get("Referer"))
	require.Equal(t, "en", got.Get("Accept-Language"))
}

func TestFetchKeepsErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}))
	defer srv.Close()

	resp, err := New(Config{}).Fetch(context.Background(), srv.URL+"/gone")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "missing", string(resp.Body))
}

func TestFetchReadsLargeBodies(t *testing.T) {
	t.Parallel()

	// Larger than the collector's own default cap.
	page := "<html><body>" + strings.Repeat("x", 11<<20) + "</body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	resp, err := New(Config{Timeout: 10 * time.Second}).Fetch(context.Background(), srv.URL+"/big")
	require.NoError(t, err)
	require.Len(t, resp.Body, len(page))

	capped, err := New(Config{MaxBodySize: 1024}).Fetch(context.Background(), srv.URL+"/big")
	require.NoError(t, err)
	require.Len(t, capped.Body, 1024)
}

func TestFetchRejectsBinaryContent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer srv.Close()

	_, err := New(Config{}).Fetch(context.Background(), srv.URL+"/logo.png")
	require.ErrorIs(t, err, crawler.ErrUnsupportedContentType)
}

func TestFetchTrustsAnyCertificate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("secure"))
	}))
	defer srv.Close()

	resp, err := New(Config{}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "secure", string(resp.Body))
}

func TestFetchHonoursCanceledContextDuringDelay(t *testing.T) {
	t.Parallel()

	f := New(Config{DelayMin: time.Hour, DelayMax: 2 * time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, "http://127.0.0.1:1/")
	require.ErrorIs(t, err, context.Canceled)
}

func TestFetchWaitsOnLimiter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	limiter := &recordingWaiter{}
	f := New(Config{}, WithLimiter(limiter))
	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, []string{srv.URL}, limiter.urls)

	limiter.err = errors.New("denied")
	_, err = f.Fetch(context.Background(), srv.URL)
	require.ErrorContains(t, err, "denied")
}

func TestPolitenessDelayWithinBounds(t *testing.T) {
	t.Parallel()

	f := New(Config{DelayMin: 10 * time.Millisecond, DelayMax: 20 * time.Millisecond})
	for i := 0; i < 200; i++ {
		d := f.politenessDelay()
		require.GreaterOrEqual(t, d, 10*time.Millisecond)
		require.Less(t, d, 20*time.Millisecond)
	}

	fixed := New(Config{DelayMin: 5 * time.Millisecond, DelayMax: 5 * time.Millisecond})
	require.Equal(t, 5*time.Millisecond, fixed.politenessDelay())
}

func TestSupportedContentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		want        bool
	}{
		{"", true},
		{"text/html; charset=utf-8", true},
		{"text/plain", true},
		{"application/xml", true},
		{"application/xhtml+xml", true},
		{"application/rss+xml", true},
		{"application/pdf", false},
		{"image/jpeg", false},
		{";;", false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, SupportedContentType(tt.contentType), tt.contentType)
	}
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{Referrer: "https://ref.example"})
	var (
		result crawler.FetchResponse
		state  fetchState
	)

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, time.Unix(0, 0), &result, &state)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onHeaders)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "https://ref.example", collyReq.Headers.Get("Referer"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"Content-Type": {"text/html"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com")},
	})
	require.Equal(t, http.StatusCreated, result.StatusCode)
	require.Equal(t, "body", string(result.Body))
	require.Equal(t, "text/html", result.ContentType)

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, state.err, "boom")
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type recordingWaiter struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (w *recordingWaiter) Wait(_ context.Context, url string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.urls = append(w.urls, url)
	return nil
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onHeaders  colly.ResponseHeadersCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponseHeaders(cb colly.ResponseHeadersCallback) {
	s.onHeaders = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
