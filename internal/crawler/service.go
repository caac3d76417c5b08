package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitesearch/internal/apperror"
	"github.com/JakeFAU/sitesearch/internal/logging"
	"github.com/JakeFAU/sitesearch/internal/metrics"
	"github.com/JakeFAU/sitesearch/internal/progress"
	"github.com/JakeFAU/sitesearch/internal/siteurl"
	"github.com/JakeFAU/sitesearch/internal/store"
)

const (
	msgStoppedByUser = "indexing stopped by user"
	msgShutdown      = "indexing stopped: server shutting down"
)

// Service controls crawls of the configured targets.
type Service struct {
	repo    store.Repository
	crawler *Crawler
	indexer Indexer
	targets []Target
	clock   Clock
	ids     IDGenerator
	logger  *zap.Logger
	events  progress.Emitter

	// mu serializes crawl control operations.
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService constructs a Service over the given targets.
func NewService(
	repo store.Repository,
	crawler *Crawler,
	indexer Indexer,
	targets []Target,
	clock Clock,
	ids IDGenerator,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	normalized := make([]Target, len(targets))
	for i, t := range targets {
		normalized[i] = Target{URL: siteurl.Normalize(t.URL), Name: t.Name}
	}
	return &Service{
		repo:    repo,
		crawler: crawler,
		indexer: indexer,
		targets: normalized,
		clock:   clock,
		ids:     ids,
		logger:  logging.OrNop(logger).Named("crawl_service"),
		events:  applyOptions(opts).progress,
	}
}

// StartIndexing replaces the data of every configured site and crawls them
// in the background. It fails with a bad request while any site is INDEXING.
func (s *Service) StartIndexing(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	running, err := s.indexingSites(ctx)
	if err != nil {
		return err
	}
	if len(running) > 0 {
		return apperror.New(apperror.BadRequest, "indexing is already running")
	}

	sites := make([]store.Site, 0, len(s.targets))
	for _, target := range s.targets {
		site, err := s.resetSite(ctx, target)
		if err != nil {
			return err
		}
		sites = append(sites, site)
	}

	if s.cancel != nil {
		// Releases the context of the previous, finished run.
		s.cancel()
	}
	crawlCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	for _, site := range sites {
		s.wg.Add(1)
		go s.run(crawlCtx, site)
	}
	return nil
}

// StopIndexing marks every INDEXING site FAILED and cancels running crawls.
// It fails with a bad request when nothing is being indexed.
func (s *Service) StopIndexing(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.stopLocked(ctx, msgStoppedByUser)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.New(apperror.BadRequest, "indexing is not running")
	}
	return nil
}

// IndexPage re-fetches and re-indexes one page of a configured site.
func (s *Service) IndexPage(ctx context.Context, rawURL string) error {
	rawURL = strings.TrimSpace(rawURL)
	target, path, ok := s.targetFor(rawURL)
	if !ok {
		return apperror.BadRequestf("page %q is outside the configured sites", rawURL)
	}

	site, err := s.claimSite(ctx, target)
	if err != nil {
		return err
	}
	crawlID := s.ids.MustID()
	ctx = progress.WithCrawlID(ctx, crawlID)
	logger := s.logger.With(
		zap.String("crawl_id", crawlID),
		zap.Int64("site_id", site.ID),
		zap.String("path", path),
	)

	err = s.reindex(ctx, site, path)
	if err != nil && !errors.Is(err, ErrUnsupportedContentType) && !errors.Is(err, ErrDisallowed) {
		msg := fmt.Sprintf(msgPageFailedAt, rawURL, err)
		s.crawler.fail(ctx, site, msg)
		metrics.ObserveSite(string(store.StatusFailed))
		logger.Error("page reindex failed", zap.Error(err))
		return fmt.Errorf("index page %s: %w", rawURL, err)
	}

	if ferr := s.finish(ctx, site); ferr != nil {
		return ferr
	}
	if err != nil {
		logger.Warn("page skipped", zap.Error(err))
		return apperror.Wrap(apperror.BadRequest, "page content cannot be indexed", err)
	}
	logger.Info("page reindexed")
	return nil
}

// Statistics reports totals and per-site detail.
func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	sites, err := s.repo.ListSites(ctx)
	if err != nil {
		return Statistics{}, fmt.Errorf("statistics: %w", err)
	}
	stats := Statistics{
		Detailed: make([]SiteStatistics, 0, len(sites)),
	}
	stats.Total.Sites = len(sites)
	for _, site := range sites {
		pages, err := s.repo.CountPages(ctx, site.ID)
		if err != nil {
			return Statistics{}, fmt.Errorf("statistics: %w", err)
		}
		lemmas, err := s.repo.CountLemmas(ctx, site.ID)
		if err != nil {
			return Statistics{}, fmt.Errorf("statistics: %w", err)
		}
		detail := SiteStatistics{
			URL:        site.URL,
			Name:       site.Name,
			Status:     site.Status,
			StatusTime: site.StatusTime,
			Pages:      pages,
			Lemmas:     lemmas,
		}
		if site.LastError != nil {
			detail.Error = *site.LastError
		}
		stats.Detailed = append(stats.Detailed, detail)
		stats.Total.Pages += pages
		stats.Total.Lemmas += lemmas
		if site.Status == store.StatusIndexing {
			stats.Total.Indexing = true
		}
	}
	return stats, nil
}

// Shutdown stops running crawls and waits for them until ctx ends.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if _, err := s.stopLocked(ctx, msgShutdown); err != nil {
		s.logger.Warn("mark sites stopped", zap.Error(err))
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for crawls: %w", ctx.Err())
	}
}

// Wait blocks until every background crawl has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) run(ctx context.Context, site store.Site) {
	defer s.wg.Done()
	crawlID := s.ids.MustID()
	logger := s.logger.With(
		zap.String("crawl_id", crawlID),
		zap.Int64("site_id", site.ID),
		zap.String("url", site.URL),
	)
	logger.Info("crawl started")
	host := metrics.SanitizeSite(site.URL)
	started := s.clock.Now()
	s.events.Emit(progress.Event{CrawlID: crawlID, TS: started, Stage: progress.StageCrawlStart, Site: host})

	ctx = progress.WithCrawlID(ctx, crawlID)
	if err := s.crawler.CrawlSite(ctx, site); err != nil {
		logger.Warn("crawl interrupted", zap.Error(err))
	}

	final, err := s.repo.GetSite(context.WithoutCancel(ctx), site.ID)
	if err != nil {
		final.Status = store.StatusFailed
	}
	metrics.ObserveSite(string(final.Status))
	logger.Info("crawl finished", zap.String("status", string(final.Status)))

	finished := s.clock.Now()
	done := progress.Event{
		CrawlID: crawlID,
		TS:      finished,
		Stage:   progress.StageCrawlDone,
		Site:    host,
		Dur:     finished.Sub(started),
	}
	if final.Status != store.StatusIndexed {
		done.Stage = progress.StageCrawlError
		if final.LastError != nil {
			done.Note = *final.LastError
		}
	}
	s.events.Emit(done)
}

func (s *Service) stopLocked(ctx context.Context, msg string) (int, error) {
	running, err := s.indexingSites(ctx)
	if err != nil {
		return 0, err
	}
	for _, site := range running {
		m := msg
		if err := s.repo.UpdateSiteStatus(ctx, site.ID, store.StatusFailed, s.clock.Now(), &m); err != nil {
			return 0, fmt.Errorf("stop site %d: %w", site.ID, err)
		}
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if len(running) > 0 {
		s.logger.Info("indexing stopped", zap.Int("sites", len(running)), zap.String("reason", msg))
	}
	return len(running), nil
}

func (s *Service) indexingSites(ctx context.Context) ([]store.Site, error) {
	sites, err := s.repo.ListSites(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	var running []store.Site
	for _, site := range sites {
		if site.Status == store.StatusIndexing {
			running = append(running, site)
		}
	}
	return running, nil
}

// resetSite deletes any stored data for target and creates a fresh INDEXING row.
func (s *Service) resetSite(ctx context.Context, target Target) (store.Site, error) {
	existing, err := s.repo.FindSiteByURL(ctx, target.URL)
	switch {
	case err == nil:
		if err := s.repo.DeleteSite(ctx, existing.ID); err != nil {
			return store.Site{}, fmt.Errorf("delete site %q: %w", target.URL, err)
		}
	case !errors.Is(err, store.ErrNotFound):
		return store.Site{}, fmt.Errorf("find site %q: %w", target.URL, err)
	}
	site, err := s.repo.CreateSite(ctx, store.Site{
		Status:     store.StatusIndexing,
		StatusTime: s.clock.Now(),
		URL:        target.URL,
		Name:       target.Name,
	})
	if err != nil {
		return store.Site{}, fmt.Errorf("create site %q: %w", target.URL, err)
	}
	return site, nil
}

// claimSite moves the target's site to INDEXING, creating it when missing.
func (s *Service) claimSite(ctx context.Context, target Target) (store.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	site, err := s.repo.FindSiteByURL(ctx, target.URL)
	if errors.Is(err, store.ErrNotFound) {
		site, err = s.repo.CreateSite(ctx, store.Site{
			Status:     store.StatusIndexing,
			StatusTime: s.clock.Now(),
			URL:        target.URL,
			Name:       target.Name,
		})
		if err != nil {
			return store.Site{}, fmt.Errorf("create site %q: %w", target.URL, err)
		}
		return site, nil
	}
	if err != nil {
		return store.Site{}, fmt.Errorf("find site %q: %w", target.URL, err)
	}
	if site.Status == store.StatusIndexing {
		return store.Site{}, apperror.BadRequestf("site %s is being indexed", site.URL)
	}
	if err := s.repo.UpdateSiteStatus(ctx, site.ID, store.StatusIndexing, s.clock.Now(), nil); err != nil {
		return store.Site{}, fmt.Errorf("claim site %q: %w", target.URL, err)
	}
	site.Status = store.StatusIndexing
	return site, nil
}

func (s *Service) reindex(ctx context.Context, site store.Site, path string) error {
	existing, err := s.repo.FindPage(ctx, site.ID, path)
	switch {
	case err == nil:
		if err := s.repo.DeletePage(ctx, existing.ID); err != nil {
			return fmt.Errorf("delete page: %w", err)
		}
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("find page: %w", err)
	}
	_, err = s.crawler.IndexSingle(ctx, site, path)
	return err
}

// finish recomputes frequencies and marks the site INDEXED unless indexing
// was stopped while the page was being fetched.
func (s *Service) finish(ctx context.Context, site store.Site) error {
	if err := s.indexer.RecomputeFrequencies(ctx, site.ID); err != nil {
		msg := fmt.Sprintf("recompute frequencies: %v", err)
		s.crawler.fail(ctx, site, msg)
		return fmt.Errorf("index page: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	failed, err := s.repo.SiteHasStatus(ctx, site.ID, store.StatusFailed)
	if err != nil {
		return fmt.Errorf("index page: %w", err)
	}
	if failed {
		return apperror.New(apperror.Conflict, "page indexing was stopped")
	}
	if err := s.repo.UpdateSiteStatus(ctx, site.ID, store.StatusIndexed, s.clock.Now(), nil); err != nil {
		return fmt.Errorf("index page: %w", err)
	}
	return nil
}

func (s *Service) targetFor(rawURL string) (Target, string, bool) {
	for _, target := range s.targets {
		if path, ok := siteurl.RelativePath(target.URL, rawURL); ok {
			return target, path, true
		}
	}
	return Target{}, "", false
}
