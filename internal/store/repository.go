package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound signals that the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate signals that a uniqueness constraint would be violated.
	ErrDuplicate = errors.New("record already exists")
)

// SiteStatus mirrors the site.status column.
type SiteStatus string

// Site lifecycle states.
const (
	StatusIndexing SiteStatus = "INDEXING"
	StatusIndexed  SiteStatus = "INDEXED"
	StatusFailed   SiteStatus = "FAILED"
)

// Site is a crawl target. URL is unique ignoring case.
type Site struct {
	ID         int64
	Status     SiteStatus
	StatusTime time.Time
	// LastError is nil unless the last crawl failed.
	LastError *string
	URL       string
	Name      string
}

// Page is a fetched document. Path is relative to the site root and unique per site.
type Page struct {
	ID      int64
	SiteID  int64
	Path    string
	Code    int
	Content string
}

// Lemma is a normalized word form seen on a site. Frequency is the number of
// pages of the site that contain it and is only exact after a recompute pass.
type Lemma struct {
	ID        int64
	SiteID    int64
	Lemma     string
	Frequency int
}

// PostingKey identifies a posting. Two postings with the same key are the same
// logical row regardless of their generated IDs.
type PostingKey struct {
	PageID  int64
	LemmaID int64
}

// Posting records that a lemma occurs Rank times on a page.
type Posting struct {
	ID      int64
	PageID  int64
	LemmaID int64
	Rank    float64
}

// Key returns the identity of the posting.
func (p Posting) Key() PostingKey {
	return PostingKey{PageID: p.PageID, LemmaID: p.LemmaID}
}

// SiteRepository persists sites.
type SiteRepository interface {
	// CreateSite inserts a site and returns it with its ID, or ErrDuplicate when
	// a site with the same URL (ignoring case) exists.
	CreateSite(ctx context.Context, site Site) (Site, error)
	// GetSite loads a site by ID or returns ErrNotFound.
	GetSite(ctx context.Context, id int64) (Site, error)
	// FindSiteByURL loads a site by URL ignoring case or returns ErrNotFound.
	FindSiteByURL(ctx context.Context, url string) (Site, error)
	ListSites(ctx context.Context) ([]Site, error)
	// UpdateSiteStatus sets status, heartbeat, and last error in one write.
	UpdateSiteStatus(ctx context.Context, id int64, status SiteStatus, at time.Time, lastError *string) error
	// TouchSite refreshes the heartbeat only.
	TouchSite(ctx context.Context, id int64, at time.Time) error
	// DeleteSite removes the site with its pages, lemmas, and postings.
	DeleteSite(ctx context.Context, id int64) error
	// SiteHasStatus reports whether the persisted status of the site equals status.
	SiteHasStatus(ctx context.Context, id int64, status SiteStatus) (bool, error)
}

// PageRepository persists pages.
type PageRepository interface {
	PageExists(ctx context.Context, siteID int64, path string) (bool, error)
	// CreatePage inserts a page or returns ErrDuplicate for a known (site, path).
	CreatePage(ctx context.Context, page Page) (Page, error)
	// FindPage loads a page by (site, path) or returns ErrNotFound.
	FindPage(ctx context.Context, siteID int64, path string) (Page, error)
	// GetPages loads pages by ID; unknown IDs are skipped.
	GetPages(ctx context.Context, ids []int64) ([]Page, error)
	// DeletePage removes a page and its postings.
	DeletePage(ctx context.Context, id int64) error
	CountPages(ctx context.Context, siteID int64) (int, error)
}

// LemmaRepository persists lemmas.
type LemmaRepository interface {
	// FindLemmas returns the site's lemmas whose text is in names.
	FindLemmas(ctx context.Context, siteID int64, names []string) ([]Lemma, error)
	// CreateLemmas inserts lemmas in one batch and returns them with IDs.
	CreateLemmas(ctx context.Context, lemmas []Lemma) ([]Lemma, error)
	ListLemmas(ctx context.Context, siteID int64) ([]Lemma, error)
	// UpdateLemmaFrequencies writes Frequency for each lemma by ID.
	UpdateLemmaFrequencies(ctx context.Context, lemmas []Lemma) error
	// DeleteLemmas removes lemmas and their postings.
	DeleteLemmas(ctx context.Context, ids []int64) error
	CountLemmas(ctx context.Context, siteID int64) (int, error)
}

// IndexRepository persists postings.
type IndexRepository interface {
	// CreatePostings inserts postings in one batch. Postings whose key already
	// exists are ignored.
	CreatePostings(ctx context.Context, postings []Posting) error
	// CountPostingsByLemma returns posting counts keyed by lemma ID for a site.
	// Lemmas without postings are absent from the map.
	CountPostingsByLemma(ctx context.Context, siteID int64) (map[int64]int, error)
	// PagesWithLemma returns the IDs of pages having a posting for the lemma.
	// When within is non-nil only those page IDs are considered.
	PagesWithLemma(ctx context.Context, lemmaID int64, within []int64) ([]int64, error)
	// PostingsFor returns postings restricted to the given pages and lemmas.
	PostingsFor(ctx context.Context, pageIDs []int64, lemmaIDs []int64) ([]Posting, error)
}

// Repository is the full persistence surface.
type Repository interface {
	SiteRepository
	PageRepository
	LemmaRepository
	IndexRepository
}
