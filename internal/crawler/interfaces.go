package crawler

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/sitesearch/internal/store"
)

var (
	// ErrUnsupportedContentType signals a response body that is not a
	// document. The page is skipped and the crawl continues.
	ErrUnsupportedContentType = errors.New("unsupported content type")
	// ErrDisallowed signals a URL excluded by robots.txt. It is handled like
	// ErrUnsupportedContentType.
	ErrDisallowed = errors.New("disallowed by robots.txt")
)

// Fetcher fetches a URL and returns the body plus metadata. HTTP error
// statuses are returned as responses, not errors.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// FetchResponse is the outcome of one fetch.
type FetchResponse struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// Indexer writes a page into the inverted index and maintains lemma frequencies.
type Indexer interface {
	IndexPage(ctx context.Context, page store.Page) error
	RecomputeFrequencies(ctx context.Context, siteID int64) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces crawl run IDs.
type IDGenerator interface {
	MustID() string
}

// Target is a configured crawl target.
type Target struct {
	URL  string
	Name string
}
