package crawler

import (
	"time"

	"github.com/JakeFAU/sitesearch/internal/store"
)

// Statistics summarizes the index.
type Statistics struct {
	Total    Totals
	Detailed []SiteStatistics
}

// Totals aggregates over all sites.
type Totals struct {
	Sites    int
	Pages    int
	Lemmas   int
	Indexing bool
}

// SiteStatistics describes one site.
type SiteStatistics struct {
	URL        string
	Name       string
	Status     store.SiteStatus
	StatusTime time.Time
	Error      string
	Pages      int
	Lemmas     int
}
