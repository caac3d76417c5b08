package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/sitesearch/internal/logging"
	"github.com/JakeFAU/sitesearch/internal/metrics"
	"github.com/JakeFAU/sitesearch/internal/parser"
	"github.com/JakeFAU/sitesearch/internal/progress"
	"github.com/JakeFAU/sitesearch/internal/siteurl"
	"github.com/JakeFAU/sitesearch/internal/store"
)

const (
	msgInterrupted  = "indexing interrupted"
	msgPageFailedAt = "failed to index %s: %v"
)

// errInterrupted marks a branch that stopped because its context ended.
var errInterrupted = errors.New(msgInterrupted)

// Crawler runs crawl task trees. One Crawler must be shared by all crawls of a
// process so page creation stays serialized.
type Crawler struct {
	repo    store.Repository
	fetcher Fetcher
	indexer Indexer
	clock   Clock
	logger  *zap.Logger
	fetches *semaphore.Weighted
	events  progress.Emitter

	// pageMu guards the exists-then-create sequence for pages.
	pageMu sync.Mutex
}

// NewCrawler constructs a Crawler allowing at most parallelism concurrent fetches.
func NewCrawler(
	repo store.Repository,
	fetcher Fetcher,
	indexer Indexer,
	clock Clock,
	logger *zap.Logger,
	parallelism int,
	opts ...Option,
) *Crawler {
	if parallelism <= 0 {
		parallelism = 1
	}
	o := applyOptions(opts)
	return &Crawler{
		events:  o.progress,
		repo:    repo,
		fetcher: fetcher,
		indexer: indexer,
		clock:   clock,
		logger:  logging.OrNop(logger).Named("crawler"),
		fetches: semaphore.NewWeighted(int64(parallelism)),
	}
}

// CrawlSite crawls site from its root page. It returns an error only when the
// crawl was interrupted; other failures are recorded on the site as FAILED.
func (c *Crawler) CrawlSite(ctx context.Context, site store.Site) error {
	return c.crawl(ctx, site, "/", true)
}

func (c *Crawler) crawl(ctx context.Context, site store.Site, path string, root bool) error {
	logger := c.logger.With(zap.Int64("site_id", site.ID), zap.String("path", path))

	err := c.visit(ctx, site, path, root, logger)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnsupportedContentType), errors.Is(err, ErrDisallowed):
		logger.Warn("page skipped", zap.Error(err))
		metrics.ObservePage(site.URL, "skipped", 0)
		if root {
			c.finalize(ctx, site, logger)
		}
		return nil
	case errors.Is(err, errInterrupted):
		return err
	case isInterruption(ctx, err):
		logger.Warn("crawl interrupted", zap.Error(err))
		c.fail(ctx, site, msgInterrupted)
		return fmt.Errorf("%s: %w", siteurl.Join(site.URL, path), errInterrupted)
	default:
		url := siteurl.Join(site.URL, path)
		logger.Error("crawl branch failed", zap.String("url", url), zap.Error(err))
		c.fail(ctx, site, fmt.Sprintf(msgPageFailedAt, url, err))
		return nil
	}
}

// visit runs one node of the task tree.
func (c *Crawler) visit(ctx context.Context, site store.Site, path string, root bool, logger *zap.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	failed, err := c.repo.SiteHasStatus(ctx, site.ID, store.StatusFailed)
	if err != nil {
		return fmt.Errorf("check site status: %w", err)
	}
	if failed {
		return nil
	}
	seen, err := c.repo.PageExists(ctx, site.ID, path)
	if err != nil {
		return fmt.Errorf("check page: %w", err)
	}
	if seen {
		return nil
	}
	if err := c.repo.TouchSite(ctx, site.ID, c.clock.Now()); err != nil {
		return fmt.Errorf("touch site: %w", err)
	}

	page, inserted, err := c.fetchAndStore(ctx, site, path)
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}
	logger.Debug("page stored", zap.Int("code", page.Code), zap.Int("bytes", len(page.Content)))

	if page.Code < http.StatusBadRequest {
		if err := c.indexer.IndexPage(ctx, page); err != nil {
			return err
		}
		metrics.ObservePage(site.URL, "indexed", len(page.Content))
	} else {
		metrics.ObservePage(site.URL, "error_status", len(page.Content))
	}

	links, err := parser.ExtractLinks(page.Content)
	if err != nil {
		return fmt.Errorf("extract links: %w", err)
	}
	if err := c.spawn(ctx, site, links); err != nil {
		return err
	}

	if root {
		c.finalize(ctx, site, logger)
	}
	return nil
}

// IndexSingle fetches, stores, and indexes the page at path without
// following its links. Errors are returned to the caller unclassified.
func (c *Crawler) IndexSingle(ctx context.Context, site store.Site, path string) (store.Page, error) {
	page, inserted, err := c.fetchAndStore(ctx, site, path)
	if err != nil {
		return store.Page{}, err
	}
	if !inserted {
		return store.Page{}, fmt.Errorf("page %s: %w", path, store.ErrDuplicate)
	}
	if page.Code < http.StatusBadRequest {
		if err := c.indexer.IndexPage(ctx, page); err != nil {
			return store.Page{}, err
		}
	}
	metrics.ObservePage(site.URL, "reindexed", len(page.Content))
	return page, nil
}

// spawn runs one child task per link and joins all of them. The first
// interruption among the children is returned.
func (c *Crawler) spawn(ctx context.Context, site store.Site, links []string) error {
	if len(links) == 0 {
		return nil
	}
	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		first error
	)
	for _, link := range links {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			if err := c.crawl(ctx, site, path, false); err != nil {
				errMu.Lock()
				if first == nil {
					first = err
				}
				errMu.Unlock()
			}
		}(link)
	}
	wg.Wait()
	return first
}

// fetchAndStore fetches the page outside the page lock and inserts it inside
// the lock unless another branch stored it first.
func (c *Crawler) fetchAndStore(ctx context.Context, site store.Site, path string) (store.Page, bool, error) {
	resp, err := c.fetch(ctx, siteurl.Join(site.URL, path))
	if err != nil {
		return store.Page{}, false, err
	}

	c.pageMu.Lock()
	defer c.pageMu.Unlock()

	seen, err := c.repo.PageExists(ctx, site.ID, path)
	if err != nil {
		return store.Page{}, false, fmt.Errorf("recheck page: %w", err)
	}
	if seen {
		return store.Page{}, false, nil
	}
	page, err := c.repo.CreatePage(ctx, store.Page{
		SiteID:  site.ID,
		Path:    path,
		Code:    resp.StatusCode,
		Content: string(resp.Body),
	})
	if err != nil {
		return store.Page{}, false, fmt.Errorf("store page: %w", err)
	}
	c.events.Emit(progress.Event{
		CrawlID:     progress.CrawlID(ctx),
		TS:          c.clock.Now(),
		Stage:       progress.StagePageDone,
		Site:        metrics.SanitizeSite(site.URL),
		Path:        path,
		Bytes:       int64(len(resp.Body)),
		StatusClass: progress.ClassifyStatus(resp.StatusCode),
		Dur:         resp.Duration,
	})
	return page, true, nil
}

func (c *Crawler) fetch(ctx context.Context, url string) (FetchResponse, error) {
	if err := c.fetches.Acquire(ctx, 1); err != nil {
		return FetchResponse{}, fmt.Errorf("wait for fetch slot: %w", err)
	}
	defer c.fetches.Release(1)
	metrics.IncActiveTasks()
	defer metrics.DecActiveTasks()

	resp, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return FetchResponse{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	return resp, nil
}

// finalize recomputes frequencies and marks the site INDEXED unless a branch
// failed it.
func (c *Crawler) finalize(ctx context.Context, site store.Site, logger *zap.Logger) {
	failed, err := c.repo.SiteHasStatus(ctx, site.ID, store.StatusFailed)
	if err != nil {
		logger.Error("check site status before finalize", zap.Error(err))
		c.fail(ctx, site, fmt.Sprintf("finalize: %v", err))
		return
	}
	if failed {
		return
	}
	if err := c.indexer.RecomputeFrequencies(ctx, site.ID); err != nil {
		logger.Error("recompute frequencies", zap.Error(err))
		c.fail(ctx, site, fmt.Sprintf("recompute frequencies: %v", err))
		return
	}
	if err := c.repo.UpdateSiteStatus(ctx, site.ID, store.StatusIndexed, c.clock.Now(), nil); err != nil {
		logger.Error("mark site indexed", zap.Error(err))
		return
	}
	logger.Info("site indexed", zap.String("url", site.URL))
}

// fail marks the site FAILED with msg. The first failure recorded for a site
// keeps its message.
func (c *Crawler) fail(ctx context.Context, site store.Site, msg string) {
	// The crawl context may already be canceled; the status write must still land.
	ctx = context.WithoutCancel(ctx)
	failed, err := c.repo.SiteHasStatus(ctx, site.ID, store.StatusFailed)
	if err == nil && failed {
		return
	}
	if err := c.repo.UpdateSiteStatus(ctx, site.ID, store.StatusFailed, c.clock.Now(), &msg); err != nil {
		c.logger.Error("mark site failed", zap.Int64("site_id", site.ID), zap.Error(err))
	}
}

func isInterruption(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, errInterrupted)
}
