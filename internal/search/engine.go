// Package search answers ranked full-text queries against the lemma index.
package search

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/sitesearch/internal/apperror"
	"github.com/JakeFAU/sitesearch/internal/logging"
	"github.com/JakeFAU/sitesearch/internal/metrics"
	"github.com/JakeFAU/sitesearch/internal/parser"
	"github.com/JakeFAU/sitesearch/internal/siteurl"
	"github.com/JakeFAU/sitesearch/internal/store"
)

// Lemmatizer turns a query into lemmas and highlights them in page text.
type Lemmatizer interface {
	Set(text string) map[string]struct{}
	Snippet(text string, query map[string]struct{}, maxWords int) string
}

// Config bounds pagination and snippet size.
type Config struct {
	DefaultLimit int
	MaxLimit     int
	SnippetWords int
}

// Result is one ranked page.
type Result struct {
	Site      string
	SiteName  string
	URI       string
	Title     string
	Snippet   string
	Relevance float64
}

// Response is one page of results plus the total number of matches.
type Response struct {
	Count   int
	Results []Result
}

// UseDefaultLimit asks Search for the configured default page size.
const UseDefaultLimit = -1

// Engine runs queries. It holds no locks and only reads from the repository.
type Engine struct {
	repo       store.Repository
	lemmatizer Lemmatizer
	cfg        Config
	logger     *zap.Logger
}

// NewEngine constructs an Engine.
func NewEngine(repo store.Repository, lemmatizer Lemmatizer, cfg Config, logger *zap.Logger) *Engine {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	if cfg.SnippetWords <= 0 {
		cfg.SnippetWords = 30
	}
	return &Engine{
		repo:       repo,
		lemmatizer: lemmatizer,
		cfg:        cfg,
		logger:     logging.OrNop(logger).Named("search"),
	}
}

type candidate struct {
	page      int64
	site      store.Site
	absolute  float64
	relevance float64
}

// Search ranks the pages matching every lemma of query, optionally restricted
// to the site with URL site, and returns the window [offset, offset+limit).
// A negative limit selects the default limit, a zero limit returns only the
// count, and limits above the configured maximum are capped.
func (e *Engine) Search(ctx context.Context, query, site string, offset, limit int) (Response, error) {
	start := time.Now()
	resp, err := e.search(ctx, query, site, offset, limit)
	outcome := "ok"
	switch {
	case err != nil && apperror.KindOf(err) != apperror.Internal:
		outcome = "rejected"
	case err != nil:
		outcome = "error"
	case resp.Count == 0:
		outcome = "empty"
	}
	metrics.ObserveSearch(outcome, time.Since(start))
	e.logger.Info("search",
		zap.String("query", query),
		zap.String("site", site),
		zap.Int("count", resp.Count),
		zap.String("outcome", outcome),
		zap.Duration("took", time.Since(start)),
	)
	return resp, err
}

func (e *Engine) search(ctx context.Context, query, siteFilter string, offset, limit int) (Response, error) {
	if strings.TrimSpace(query) == "" {
		return Response{}, apperror.New(apperror.BadRequest, "search query is empty")
	}
	sites, err := e.resolveSites(ctx, siteFilter)
	if err != nil {
		return Response{}, err
	}
	queryLemmas := e.lemmatizer.Set(query)

	var candidates []candidate
	for _, site := range sites {
		found, err := e.rankSite(ctx, site, queryLemmas)
		if err != nil {
			return Response{}, err
		}
		candidates = append(candidates, found...)
	}
	normalize(candidates)
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].relevance != candidates[j].relevance {
			return candidates[i].relevance > candidates[j].relevance
		}
		return candidates[i].page < candidates[j].page
	})

	window := paginate(candidates, offset, e.clampLimit(limit))
	results, err := e.materialize(ctx, window, queryLemmas)
	if err != nil {
		return Response{}, err
	}
	return Response{Count: len(candidates), Results: results}, nil
}

// resolveSites returns every site, or the one named by filter. All returned
// sites must be INDEXED.
func (e *Engine) resolveSites(ctx context.Context, filter string) ([]store.Site, error) {
	var sites []store.Site
	if strings.TrimSpace(filter) == "" {
		all, err := e.repo.ListSites(ctx)
		if err != nil {
			return nil, fmt.Errorf("list sites: %w", err)
		}
		sites = all
	} else {
		url := siteurl.Normalize(filter)
		if !siteurl.Valid(url) {
			return nil, apperror.BadRequestf("invalid site url %q", filter)
		}
		site, err := e.repo.FindSiteByURL(ctx, url)
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperror.NotFoundf("site %s not found", url)
		}
		if err != nil {
			return nil, fmt.Errorf("find site: %w", err)
		}
		sites = []store.Site{site}
	}
	for _, site := range sites {
		if site.Status != store.StatusIndexed {
			return nil, apperror.BadRequestf("site %s is not indexed", site.URL)
		}
	}
	return sites, nil
}

// rankSite narrows the site's pages to those holding every matched query
// lemma, rarest lemma first, and sums their posting ranks.
func (e *Engine) rankSite(ctx context.Context, site store.Site, queryLemmas map[string]struct{}) ([]candidate, error) {
	if len(queryLemmas) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(queryLemmas))
	for name := range queryLemmas {
		names = append(names, name)
	}
	lemmas, err := e.repo.FindLemmas(ctx, site.ID, names)
	if err != nil {
		return nil, fmt.Errorf("find query lemmas: %w", err)
	}
	if len(lemmas) == 0 {
		return nil, nil
	}
	sort.Slice(lemmas, func(i, j int) bool {
		if lemmas[i].Frequency != lemmas[j].Frequency {
			return lemmas[i].Frequency < lemmas[j].Frequency
		}
		return lemmas[i].Lemma < lemmas[j].Lemma
	})

	pages, err := e.intersect(ctx, lemmas)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, nil
	}

	lemmaIDs := make([]int64, len(lemmas))
	for i, l := range lemmas {
		lemmaIDs[i] = l.ID
	}
	postings, err := e.repo.PostingsFor(ctx, pages, lemmaIDs)
	if err != nil {
		return nil, fmt.Errorf("load postings: %w", err)
	}
	absolute := make(map[int64]float64, len(pages))
	for _, p := range postings {
		absolute[p.PageID] += p.Rank
	}
	out := make([]candidate, 0, len(pages))
	for _, pageID := range pages {
		out = append(out, candidate{page: pageID, site: site, absolute: absolute[pageID]})
	}
	return out, nil
}

// intersect starts from the pages of the first lemma and keeps those that
// also hold each following lemma, stopping as soon as nothing is left.
func (e *Engine) intersect(ctx context.Context, lemmas []store.Lemma) ([]int64, error) {
	pages, err := e.repo.PagesWithLemma(ctx, lemmas[0].ID, nil)
	if err != nil {
		return nil, fmt.Errorf("pages with lemma %q: %w", lemmas[0].Lemma, err)
	}
	for _, l := range lemmas[1:] {
		if len(pages) == 0 {
			return nil, nil
		}
		pages, err = e.repo.PagesWithLemma(ctx, l.ID, pages)
		if err != nil {
			return nil, fmt.Errorf("pages with lemma %q: %w", l.Lemma, err)
		}
	}
	return pages, nil
}

// normalize divides every absolute rank by the largest one.
func normalize(candidates []candidate) {
	var maxRank float64
	for _, c := range candidates {
		if c.absolute > maxRank {
			maxRank = c.absolute
		}
	}
	if maxRank == 0 {
		return
	}
	for i := range candidates {
		candidates[i].relevance = candidates[i].absolute / maxRank
	}
}

func paginate(candidates []candidate, offset, limit int) []candidate {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(candidates) {
		return nil
	}
	end := offset + limit
	if end > len(candidates) {
		end = len(candidates)
	}
	return candidates[offset:end]
}

func (e *Engine) clampLimit(limit int) int {
	switch {
	case limit < 0:
		return e.cfg.DefaultLimit
	case limit > e.cfg.MaxLimit:
		return e.cfg.MaxLimit
	default:
		return limit
	}
}

// materialize loads the pages of window and builds their titles and snippets
// in parallel, preserving the order of window.
func (e *Engine) materialize(ctx context.Context, window []candidate, queryLemmas map[string]struct{}) ([]Result, error) {
	if len(window) == 0 {
		return []Result{}, nil
	}
	ids := make([]int64, len(window))
	for i, c := range window {
		ids[i] = c.page
	}
	pages, err := e.repo.GetPages(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load result pages: %w", err)
	}
	byID := make(map[int64]store.Page, len(pages))
	for _, p := range pages {
		byID[p.ID] = p
	}
	for _, c := range window {
		if _, ok := byID[c.page]; !ok {
			return nil, fmt.Errorf("result page %d: %w", c.page, store.ErrNotFound)
		}
	}

	results := make([]Result, len(window))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, c := range window {
		page := byID[c.page]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := parser.Parse(page.Content)
			if err != nil {
				return fmt.Errorf("parse page %d: %w", page.ID, err)
			}
			results[i] = Result{
				Site:      c.site.URL,
				SiteName:  c.site.Name,
				URI:       page.Path,
				Title:     doc.Title(),
				Snippet:   e.lemmatizer.Snippet(doc.Text(), queryLemmas, e.cfg.SnippetWords),
				Relevance: c.relevance,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build results: %w", err)
	}
	return results, nil
}
