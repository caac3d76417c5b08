// Package indexer converts page content into lemma rows and postings and
// maintains lemma document frequencies.
package indexer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitesearch/internal/logging"
	"github.com/JakeFAU/sitesearch/internal/metrics"
	"github.com/JakeFAU/sitesearch/internal/parser"
	"github.com/JakeFAU/sitesearch/internal/store"
)

// Lemmatizer counts the lemmas of plain text.
type Lemmatizer interface {
	Lemmas(text string) map[string]int
}

// Repository is the persistence the indexer writes to.
type Repository interface {
	store.LemmaRepository
	store.IndexRepository
}

// Indexer builds the inverted index. A single Indexer must be shared by every
// goroutine indexing pages so lemma creation stays serialized.
type Indexer struct {
	repo       Repository
	lemmatizer Lemmatizer
	logger     *zap.Logger

	// lemmaMu guards the find-then-create sequence for lemma rows.
	lemmaMu sync.Mutex
}

// New constructs an Indexer.
func New(repo Repository, lemmatizer Lemmatizer, logger *zap.Logger) *Indexer {
	return &Indexer{
		repo:       repo,
		lemmatizer: lemmatizer,
		logger:     logging.OrNop(logger).Named("indexer"),
	}
}

// IndexPage extracts the page's lemmas, creates the missing lemma rows with
// frequency 0, and writes one posting per lemma with the occurrence count as
// rank. Frequencies are filled in by RecomputeFrequencies.
func (ix *Indexer) IndexPage(ctx context.Context, page store.Page) error {
	counts := ix.lemmatizer.Lemmas(parser.Text(page.Content))
	if len(counts) == 0 {
		return nil
	}

	lemmas, created, err := ix.resolveLemmas(ctx, page.SiteID, counts)
	if err != nil {
		return fmt.Errorf("index page %d: %w", page.ID, err)
	}

	postings := make([]store.Posting, 0, len(lemmas))
	for _, l := range lemmas {
		postings = append(postings, store.Posting{
			PageID:  page.ID,
			LemmaID: l.ID,
			Rank:    float64(counts[l.Lemma]),
		})
	}
	if err := ix.repo.CreatePostings(ctx, postings); err != nil {
		return fmt.Errorf("index page %d: %w", page.ID, err)
	}

	metrics.ObserveIndex(created, len(postings))
	ix.logger.Debug("page indexed",
		zap.Int64("site_id", page.SiteID),
		zap.Int64("page_id", page.ID),
		zap.Int("lemmas", len(postings)),
		zap.Int("lemmas_created", created),
	)
	return nil
}

// resolveLemmas returns a row for every lemma in counts, creating the missing
// ones in one batch.
func (ix *Indexer) resolveLemmas(
	ctx context.Context,
	siteID int64,
	counts map[string]int,
) ([]store.Lemma, int, error) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	ix.lemmaMu.Lock()
	defer ix.lemmaMu.Unlock()

	existing, err := ix.repo.FindLemmas(ctx, siteID, names)
	if err != nil {
		return nil, 0, fmt.Errorf("find lemmas: %w", err)
	}
	known := make(map[string]struct{}, len(existing))
	for _, l := range existing {
		known[l.Lemma] = struct{}{}
	}
	var missing []store.Lemma
	for _, name := range names {
		if _, ok := known[name]; !ok {
			missing = append(missing, store.Lemma{SiteID: siteID, Lemma: name})
		}
	}
	if len(missing) == 0 {
		return existing, 0, nil
	}
	created, err := ix.repo.CreateLemmas(ctx, missing)
	if err != nil {
		return nil, 0, fmt.Errorf("create lemmas: %w", err)
	}
	return append(existing, created...), len(created), nil
}

// RecomputeFrequencies sets every lemma's frequency of the site to its posting
// count and deletes lemmas without postings. It must run only after all
// writers for the site have finished.
func (ix *Indexer) RecomputeFrequencies(ctx context.Context, siteID int64) error {
	lemmas, err := ix.repo.ListLemmas(ctx, siteID)
	if err != nil {
		return fmt.Errorf("recompute frequencies: %w", err)
	}
	counts, err := ix.repo.CountPostingsByLemma(ctx, siteID)
	if err != nil {
		return fmt.Errorf("recompute frequencies: %w", err)
	}

	var (
		dead    []int64
		changed []store.Lemma
	)
	for _, l := range lemmas {
		n := counts[l.ID]
		switch {
		case n == 0:
			dead = append(dead, l.ID)
		case n != l.Frequency:
			l.Frequency = n
			changed = append(changed, l)
		}
	}

	if err := ix.repo.DeleteLemmas(ctx, dead); err != nil {
		return fmt.Errorf("delete dead lemmas: %w", err)
	}
	if err := ix.repo.UpdateLemmaFrequencies(ctx, changed); err != nil {
		return fmt.Errorf("update frequencies: %w", err)
	}
	ix.logger.Info("lemma frequencies recomputed",
		zap.Int64("site_id", siteID),
		zap.Int("lemmas", len(lemmas)),
		zap.Int("deleted", len(dead)),
		zap.Int("updated", len(changed)),
	)
	return nil
}
