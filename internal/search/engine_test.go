package search

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitesearch/internal/apperror"
	"github.com/JakeFAU/sitesearch/internal/indexer"
	"github.com/JakeFAU/sitesearch/internal/lemma"
	"github.com/JakeFAU/sitesearch/internal/storage/memory"
	"github.com/JakeFAU/sitesearch/internal/store"
)

type fixture struct {
	repo    *memory.Repository
	indexer *indexer.Indexer
	engine  *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := memory.New()
	lm := lemma.New()
	return &fixture{
		repo:    repo,
		indexer: indexer.New(repo, lm, zap.NewNop()),
		engine:  NewEngine(repo, lm, Config{DefaultLimit: 20, MaxLimit: 50, SnippetWords: 10}, zap.NewNop()),
	}
}

func (f *fixture) site(t *testing.T, url string, status store.SiteStatus) store.Site {
	t.Helper()
	site, err := f.repo.CreateSite(context.Background(), store.Site{
		Status:     status,
		StatusTime: time.Now(),
		URL:        url,
		Name:       "Site " + url,
	})
	require.NoError(t, err)
	return site
}

func (f *fixture) page(t *testing.T, site store.Site, path, title, body string) store.Page {
	t.Helper()
	ctx := context.Background()
	content := fmt.Sprintf("<html><head><title>%s</title></head><body><p>%s</p></body></html>", title, body)
	page, err := f.repo.CreatePage(ctx, store.Page{SiteID: site.ID, Path: path, Code: 200, Content: content})
	require.NoError(t, err)
	require.NoError(t, f.indexer.IndexPage(ctx, page))
	require.NoError(t, f.indexer.RecomputeFrequencies(ctx, site.ID))
	return page
}

func TestSearchRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	f.site(t, "https://example.com", store.StatusIndexed)
	f.site(t, "https://busy.example.com", store.StatusIndexing)
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		site  string
		kind  apperror.Kind
	}{
		{name: "empty query", query: "", kind: apperror.BadRequest},
		{name: "blank query", query: "   ", kind: apperror.BadRequest},
		{name: "invalid site", query: "apple", site: "not-a-url", kind: apperror.BadRequest},
		{name: "unknown site", query: "apple", site: "https://other.org", kind: apperror.NotFound},
		{name: "site not indexed", query: "apple", site: "https://busy.example.com", kind: apperror.BadRequest},
		{name: "any site not indexed", query: "apple", kind: apperror.BadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.Search(ctx, tc.query, tc.site, 0, UseDefaultLimit)
			require.Error(t, err)
			require.Equal(t, tc.kind, apperror.KindOf(err))
		})
	}
}

func TestSearchRanksByNormalizedRelevance(t *testing.T) {
	f := newFixture(t)
	site := f.site(t, "https://example.com", store.StatusIndexed)
	f.page(t, site, "/one", "One", "apple banana")
	f.page(t, site, "/two", "Two", "apple apple apple banana")
	f.page(t, site, "/three", "Three", "banana only")

	resp, err := f.engine.Search(context.Background(), "apples", "", 0, UseDefaultLimit)
	require.NoError(t, err)
	require.Equal(t, 2, resp.Count)
	require.Len(t, resp.Results, 2)

	require.Equal(t, "/two", resp.Results[0].URI)
	require.InDelta(t, 1.0, resp.Results[0].Relevance, 1e-9)
	require.Equal(t, "/one", resp.Results[1].URI)
	require.InDelta(t, 1.0/3.0, resp.Results[1].Relevance, 1e-9)

	first := resp.Results[0]
	require.Equal(t, "https://example.com", first.Site)
	require.Equal(t, "Site https://example.com", first.SiteName)
	require.Equal(t, "Two", first.Title)
	require.Contains(t, first.Snippet, "<b>apple</b>")
	for _, r := range resp.Results {
		require.GreaterOrEqual(t, r.Relevance, 0.0)
		require.LessOrEqual(t, r.Relevance, 1.0)
	}
}

func TestSearchRequiresEveryLemma(t *testing.T) {
	f := newFixture(t)
	site := f.site(t, "https://example.com", store.StatusIndexed)
	f.page(t, site, "/a", "A", "apple banana cherry")
	f.page(t, site, "/b", "B", "apple banana")
	f.page(t, site, "/c", "C", "apple")

	ctx := context.Background()
	forward, err := f.engine.Search(ctx, "apple banana cherry", "", 0, UseDefaultLimit)
	require.NoError(t, err)
	backward, err := f.engine.Search(ctx, "cherry banana apple", "", 0, UseDefaultLimit)
	require.NoError(t, err)

	require.Equal(t, 1, forward.Count)
	require.Equal(t, "/a", forward.Results[0].URI)
	require.Equal(t, forward, backward)

	pair, err := f.engine.Search(ctx, "banana apple", "", 0, UseDefaultLimit)
	require.NoError(t, err)
	require.Equal(t, 2, pair.Count)
}

func TestSearchIgnoresUnknownLemmas(t *testing.T) {
	f := newFixture(t)
	site := f.site(t, "https://example.com", store.StatusIndexed)
	f.page(t, site, "/a", "A", "apple")

	resp, err := f.engine.Search(context.Background(), "apple zeppelin", "", 0, UseDefaultLimit)
	require.NoError(t, err)
	require.Equal(t, 1, resp.Count)

	resp, err = f.engine.Search(context.Background(), "zeppelin", "", 0, UseDefaultLimit)
	require.NoError(t, err)
	require.Zero(t, resp.Count)
	require.Empty(t, resp.Results)
	require.NotNil(t, resp.Results)
}

func TestSearchPaginates(t *testing.T) {
	f := newFixture(t)
	site := f.site(t, "https://example.com", store.StatusIndexed)
	for i := 1; i <= 25; i++ {
		f.page(t, site, fmt.Sprintf("/p%02d", i), "Page", strings.Repeat("apple ", i))
	}
	ctx := context.Background()

	resp, err := f.engine.Search(ctx, "apple", "", 20, 10)
	require.NoError(t, err)
	require.Equal(t, 25, resp.Count)
	require.Len(t, resp.Results, 5)
	require.Equal(t, "/p05", resp.Results[0].URI)
	require.Equal(t, "/p01", resp.Results[4].URI)

	resp, err = f.engine.Search(ctx, "apple", "", 30, 10)
	require.NoError(t, err)
	require.Equal(t, 25, resp.Count)
	require.Empty(t, resp.Results)

	resp, err = f.engine.Search(ctx, "apple", "", 20, 20)
	require.NoError(t, err)
	require.Equal(t, 25, resp.Count)
	require.Len(t, resp.Results, 5)

	resp, err = f.engine.Search(ctx, "apple", "", 0, 0)
	require.NoError(t, err)
	require.Equal(t, 25, resp.Count)
	require.Empty(t, resp.Results)
	require.NotNil(t, resp.Results)

	resp, err = f.engine.Search(ctx, "apple", "", 0, UseDefaultLimit)
	require.NoError(t, err)
	require.Len(t, resp.Results, 20)
	require.Equal(t, "/p25", resp.Results[0].URI)

	resp, err = f.engine.Search(ctx, "apple", "", 0, 1000)
	require.NoError(t, err)
	require.Len(t, resp.Results, 25)
}

func TestSearchNormalizesAcrossSites(t *testing.T) {
	f := newFixture(t)
	one := f.site(t, "https://one.example.com", store.StatusIndexed)
	two := f.site(t, "https://two.example.com", store.StatusIndexed)
	f.page(t, one, "/", "One", "apple apple apple apple")
	f.page(t, two, "/", "Two", "apple apple")
	ctx := context.Background()

	all, err := f.engine.Search(ctx, "apple", "", 0, UseDefaultLimit)
	require.NoError(t, err)
	require.Equal(t, 2, all.Count)
	require.Equal(t, "https://one.example.com", all.Results[0].Site)
	require.InDelta(t, 0.5, all.Results[1].Relevance, 1e-9)

	only, err := f.engine.Search(ctx, "apple", "https://two.example.com/", 0, UseDefaultLimit)
	require.NoError(t, err)
	require.Equal(t, 1, only.Count)
	require.Equal(t, "https://two.example.com", only.Results[0].Site)
	require.InDelta(t, 1.0, only.Results[0].Relevance, 1e-9)
}

func TestPaginate(t *testing.T) {
	cands := make([]candidate, 7)
	for i := range cands {
		cands[i].page = int64(i)
	}
	require.Len(t, paginate(cands, 0, 3), 3)
	require.Len(t, paginate(cands, 5, 3), 2)
	require.Empty(t, paginate(cands, 7, 3))
	require.Len(t, paginate(cands, -1, 3), 3)
}
