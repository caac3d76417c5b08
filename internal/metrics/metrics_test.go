package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitAndObserve(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if crawlerPagesTotal == nil || indexerPostingsTotal == nil ||
		searchRequestsTotal == nil || httpRequestsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObservePage("https://observe.test/a", "indexed", 128)
	if val := testutil.ToFloat64(crawlerPagesTotal.WithLabelValues("observe.test", "indexed")); val != 1 {
		t.Errorf("Expected crawler_pages_total to be 1, got %f", val)
	}
	if val := testutil.ToFloat64(crawlerBytesTotal.WithLabelValues("observe.test")); val != 128 {
		t.Errorf("Expected crawler_bytes_total to be 128, got %f", val)
	}

	ObserveSearch("observe_ok", 10*time.Millisecond)
	if val := testutil.ToFloat64(searchRequestsTotal.WithLabelValues("observe_ok")); val != 1 {
		t.Errorf("Expected search_requests_total to be 1, got %f", val)
	}

	before := testutil.ToFloat64(indexerPostingsTotal)
	ObserveIndex(2, 5)
	if val := testutil.ToFloat64(indexerPostingsTotal) - before; val != 5 {
		t.Errorf("Expected 5 postings observed, got %f", val)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
