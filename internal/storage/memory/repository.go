// Package memory provides an in-memory store.Repository for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/sitesearch/internal/store"
)

// Repository keeps sites, pages, lemmas, and postings in maps guarded by one lock.
type Repository struct {
	mu sync.RWMutex

	nextID int64

	sites    map[int64]store.Site
	pages    map[int64]store.Page
	lemmas   map[int64]store.Lemma
	postings map[store.PostingKey]store.Posting

	pageByPath  map[pageKey]int64
	lemmaByName map[lemmaKey]int64
}

type pageKey struct {
	siteID int64
	path   string
}

type lemmaKey struct {
	siteID int64
	lemma  string
}

var _ store.Repository = (*Repository)(nil)

// New constructs an empty Repository.
func New() *Repository {
	return &Repository{
		sites:       make(map[int64]store.Site),
		pages:       make(map[int64]store.Page),
		lemmas:      make(map[int64]store.Lemma),
		postings:    make(map[store.PostingKey]store.Posting),
		pageByPath:  make(map[pageKey]int64),
		lemmaByName: make(map[lemmaKey]int64),
	}
}

func (r *Repository) newID() int64 {
	r.nextID++
	return r.nextID
}

// CreateSite stores a new site.
func (r *Repository) CreateSite(_ context.Context, site store.Site) (store.Site, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.sites {
		if strings.EqualFold(existing.URL, site.URL) {
			return store.Site{}, fmt.Errorf("site %q: %w", site.URL, store.ErrDuplicate)
		}
	}
	site.ID = r.newID()
	r.sites[site.ID] = cloneSite(site)
	return cloneSite(site), nil
}

// GetSite fetches a site by ID.
func (r *Repository) GetSite(_ context.Context, id int64) (store.Site, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	site, ok := r.sites[id]
	if !ok {
		return store.Site{}, store.ErrNotFound
	}
	return cloneSite(site), nil
}

// FindSiteByURL fetches a site by URL ignoring case.
func (r *Repository) FindSiteByURL(_ context.Context, url string) (store.Site, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, site := range r.sites {
		if strings.EqualFold(site.URL, url) {
			return cloneSite(site), nil
		}
	}
	return store.Site{}, store.ErrNotFound
}

// ListSites returns all sites ordered by ID.
func (r *Repository) ListSites(_ context.Context) ([]store.Site, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]store.Site, 0, len(r.sites))
	for _, site := range r.sites {
		out = append(out, cloneSite(site))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateSiteStatus sets status, heartbeat, and last error.
func (r *Repository) UpdateSiteStatus(
	_ context.Context,
	id int64,
	status store.SiteStatus,
	at time.Time,
	lastError *string,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	site, ok := r.sites[id]
	if !ok {
		return store.ErrNotFound
	}
	site.Status = status
	site.StatusTime = at
	site.LastError = cloneString(lastError)
	r.sites[id] = site
	return nil
}

// TouchSite refreshes the heartbeat.
func (r *Repository) TouchSite(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	site, ok := r.sites[id]
	if !ok {
		return store.ErrNotFound
	}
	site.StatusTime = at
	r.sites[id] = site
	return nil
}

// DeleteSite removes a site and everything it owns.
func (r *Repository) DeleteSite(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sites[id]; !ok {
		return store.ErrNotFound
	}
	for pageID, page := range r.pages {
		if page.SiteID == id {
			r.deletePageLocked(pageID)
		}
	}
	for lemmaID, lemma := range r.lemmas {
		if lemma.SiteID == id {
			r.deleteLemmaLocked(lemmaID)
		}
	}
	delete(r.sites, id)
	return nil
}

// SiteHasStatus compares the persisted status.
func (r *Repository) SiteHasStatus(_ context.Context, id int64, status store.SiteStatus) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	site, ok := r.sites[id]
	if !ok {
		return false, store.ErrNotFound
	}
	return site.Status == status, nil
}

// PageExists reports whether (site, path) is stored.
func (r *Repository) PageExists(_ context.Context, siteID int64, path string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.pageByPath[pageKey{siteID: siteID, path: path}]
	return ok, nil
}

// CreatePage stores a page unless its (site, path) is known.
func (r *Repository) CreatePage(_ context.Context, page store.Page) (store.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sites[page.SiteID]; !ok {
		return store.Page{}, fmt.Errorf("site %d: %w", page.SiteID, store.ErrNotFound)
	}
	key := pageKey{siteID: page.SiteID, path: page.Path}
	if _, ok := r.pageByPath[key]; ok {
		return store.Page{}, fmt.Errorf("page %q: %w", page.Path, store.ErrDuplicate)
	}
	page.ID = r.newID()
	r.pages[page.ID] = page
	r.pageByPath[key] = page.ID
	return page, nil
}

// FindPage fetches a page by (site, path).
func (r *Repository) FindPage(_ context.Context, siteID int64, path string) (store.Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.pageByPath[pageKey{siteID: siteID, path: path}]
	if !ok {
		return store.Page{}, store.ErrNotFound
	}
	return r.pages[id], nil
}

// GetPages fetches pages by ID, skipping unknown IDs.
func (r *Repository) GetPages(_ context.Context, ids []int64) ([]store.Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]store.Page, 0, len(ids))
	for _, id := range ids {
		if page, ok := r.pages[id]; ok {
			out = append(out, page)
		}
	}
	return out, nil
}

// DeletePage removes a page and its postings.
func (r *Repository) DeletePage(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pages[id]; !ok {
		return store.ErrNotFound
	}
	r.deletePageLocked(id)
	return nil
}

// CountPages counts the pages of a site.
func (r *Repository) CountPages(_ context.Context, siteID int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, page := range r.pages {
		if page.SiteID == siteID {
			n++
		}
	}
	return n, nil
}

// FindLemmas returns the site's lemmas named in names.
func (r *Repository) FindLemmas(_ context.Context, siteID int64, names []string) ([]store.Lemma, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]store.Lemma, 0, len(names))
	for _, name := range names {
		if id, ok := r.lemmaByName[lemmaKey{siteID: siteID, lemma: name}]; ok {
			out = append(out, r.lemmas[id])
		}
	}
	return out, nil
}

// CreateLemmas inserts lemmas atomically.
func (r *Repository) CreateLemmas(_ context.Context, lemmas []store.Lemma) ([]store.Lemma, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[lemmaKey]struct{}, len(lemmas))
	for _, lemma := range lemmas {
		key := lemmaKey{siteID: lemma.SiteID, lemma: lemma.Lemma}
		if _, ok := r.lemmaByName[key]; ok {
			return nil, fmt.Errorf("lemma %q: %w", lemma.Lemma, store.ErrDuplicate)
		}
		if _, ok := seen[key]; ok {
			return nil, fmt.Errorf("lemma %q: %w", lemma.Lemma, store.ErrDuplicate)
		}
		seen[key] = struct{}{}
	}
	out := make([]store.Lemma, 0, len(lemmas))
	for _, lemma := range lemmas {
		lemma.ID = r.newID()
		r.lemmas[lemma.ID] = lemma
		r.lemmaByName[lemmaKey{siteID: lemma.SiteID, lemma: lemma.Lemma}] = lemma.ID
		out = append(out, lemma)
	}
	return out, nil
}

// ListLemmas returns every lemma of a site ordered by ID.
func (r *Repository) ListLemmas(_ context.Context, siteID int64) ([]store.Lemma, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []store.Lemma
	for _, lemma := range r.lemmas {
		if lemma.SiteID == siteID {
			out = append(out, lemma)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateLemmaFrequencies writes frequencies by lemma ID.
func (r *Repository) UpdateLemmaFrequencies(_ context.Context, lemmas []store.Lemma) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, lemma := range lemmas {
		current, ok := r.lemmas[lemma.ID]
		if !ok {
			continue
		}
		current.Frequency = lemma.Frequency
		r.lemmas[lemma.ID] = current
	}
	return nil
}

// DeleteLemmas removes lemmas and their postings.
func (r *Repository) DeleteLemmas(_ context.Context, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.deleteLemmaLocked(id)
	}
	return nil
}

// CountLemmas counts the lemmas of a site.
func (r *Repository) CountLemmas(_ context.Context, siteID int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, lemma := range r.lemmas {
		if lemma.SiteID == siteID {
			n++
		}
	}
	return n, nil
}

// CreatePostings inserts postings, ignoring keys already present.
func (r *Repository) CreatePostings(_ context.Context, postings []store.Posting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, posting := range postings {
		if _, ok := r.pages[posting.PageID]; !ok {
			return fmt.Errorf("page %d: %w", posting.PageID, store.ErrNotFound)
		}
		if _, ok := r.lemmas[posting.LemmaID]; !ok {
			return fmt.Errorf("lemma %d: %w", posting.LemmaID, store.ErrNotFound)
		}
	}
	for _, posting := range postings {
		key := posting.Key()
		if _, ok := r.postings[key]; ok {
			continue
		}
		posting.ID = r.newID()
		r.postings[key] = posting
	}
	return nil
}

// CountPostingsByLemma counts postings per lemma of a site.
func (r *Repository) CountPostingsByLemma(_ context.Context, siteID int64) (map[int64]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[int64]int)
	for key := range r.postings {
		if r.lemmas[key.LemmaID].SiteID == siteID {
			counts[key.LemmaID]++
		}
	}
	return counts, nil
}

// PagesWithLemma lists pages that contain the lemma, optionally restricted to within.
func (r *Repository) PagesWithLemma(_ context.Context, lemmaID int64, within []int64) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var allowed map[int64]struct{}
	if within != nil {
		allowed = make(map[int64]struct{}, len(within))
		for _, id := range within {
			allowed[id] = struct{}{}
		}
	}
	var out []int64
	for key := range r.postings {
		if key.LemmaID != lemmaID {
			continue
		}
		if allowed != nil {
			if _, ok := allowed[key.PageID]; !ok {
				continue
			}
		}
		out = append(out, key.PageID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// PostingsFor returns postings of the given pages restricted to the given lemmas.
func (r *Repository) PostingsFor(_ context.Context, pageIDs []int64, lemmaIDs []int64) ([]store.Posting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []store.Posting
	for _, pageID := range pageIDs {
		for _, lemmaID := range lemmaIDs {
			if posting, ok := r.postings[store.PostingKey{PageID: pageID, LemmaID: lemmaID}]; ok {
				out = append(out, posting)
			}
		}
	}
	return out, nil
}

func (r *Repository) deletePageLocked(id int64) {
	page := r.pages[id]
	for key := range r.postings {
		if key.PageID == id {
			delete(r.postings, key)
		}
	}
	delete(r.pageByPath, pageKey{siteID: page.SiteID, path: page.Path})
	delete(r.pages, id)
}

func (r *Repository) deleteLemmaLocked(id int64) {
	lemma, ok := r.lemmas[id]
	if !ok {
		return
	}
	for key := range r.postings {
		if key.LemmaID == id {
			delete(r.postings, key)
		}
	}
	delete(r.lemmaByName, lemmaKey{siteID: lemma.SiteID, lemma: lemma.Lemma})
	delete(r.lemmas, id)
}

func cloneSite(site store.Site) store.Site {
	site.LastError = cloneString(site.LastError)
	return site
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
