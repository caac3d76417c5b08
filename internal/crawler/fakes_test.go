package crawler

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitesearch/internal/clock"
	"github.com/JakeFAU/sitesearch/internal/id"
	"github.com/JakeFAU/sitesearch/internal/indexer"
	"github.com/JakeFAU/sitesearch/internal/lemma"
	"github.com/JakeFAU/sitesearch/internal/progress"
	"github.com/JakeFAU/sitesearch/internal/storage/memory"
	"github.com/JakeFAU/sitesearch/internal/store"
)

const siteRoot = "https://example.com"

type fakePage struct {
	code int
	body string
	err  error
}

// fakeFetcher serves pages by absolute URL. Unknown URLs are 404s.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]fakePage
	calls map[string]int
	delay time.Duration
	gate  chan struct{}
}

func newFakeFetcher(pages map[string]fakePage) *fakeFetcher {
	return &fakeFetcher{pages: pages, calls: make(map[string]int)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (FetchResponse, error) {
	f.mu.Lock()
	f.calls[url]++
	page, ok := f.pages[url]
	f.mu.Unlock()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return FetchResponse{}, ctx.Err()
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return FetchResponse{}, ctx.Err()
		}
	}
	if !ok {
		return FetchResponse{URL: url, StatusCode: http.StatusNotFound, Body: []byte("not found")}, nil
	}
	if page.err != nil {
		return FetchResponse{}, page.err
	}
	code := page.code
	if code == 0 {
		code = http.StatusOK
	}
	return FetchResponse{URL: url, StatusCode: code, Body: []byte(page.body)}, nil
}

func (f *fakeFetcher) set(url string, page fakePage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = page
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func html(body string, links ...string) string {
	out := "<html><head><title>" + body + "</title></head><body><p>" + body + "</p>"
	for _, l := range links {
		out += fmt.Sprintf(`<a href="%s">link</a>`, l)
	}
	return out + "</body></html>"
}

type harness struct {
	repo    *memory.Repository
	fetcher *fakeFetcher
	indexer *indexer.Indexer
	crawler *Crawler
	clock   *clock.Manual
}

func newHarness(t *testing.T, pages map[string]fakePage, parallelism int) *harness {
	t.Helper()
	repo := memory.New()
	fetcher := newFakeFetcher(pages)
	ix := indexer.New(repo, lemma.New(), zap.NewNop())
	clk := clock.NewManual(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	return &harness{
		repo:    repo,
		fetcher: fetcher,
		indexer: ix,
		crawler: NewCrawler(repo, fetcher, ix, clk, zap.NewNop(), parallelism),
		clock:   clk,
	}
}

func (h *harness) service(targets ...Target) *Service {
	return NewService(h.repo, h.crawler, h.indexer, targets, h.clock, id.Generator{}, zap.NewNop())
}

func (h *harness) newSite(t *testing.T, status store.SiteStatus) store.Site {
	t.Helper()
	site, err := h.repo.CreateSite(context.Background(), store.Site{
		Status:     status,
		StatusTime: h.clock.Now(),
		URL:        siteRoot,
		Name:       "Example",
	})
	require.NoError(t, err)
	return site
}

func (h *harness) site(t *testing.T, siteID int64) store.Site {
	t.Helper()
	site, err := h.repo.GetSite(context.Background(), siteID)
	require.NoError(t, err)
	return site
}

func (h *harness) pageCount(t *testing.T, siteID int64) int {
	t.Helper()
	n, err := h.repo.CountPages(context.Background(), siteID)
	require.NoError(t, err)
	return n
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) all() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}
