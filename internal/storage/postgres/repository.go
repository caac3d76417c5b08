// Package postgres provides the Postgres-backed store.Repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/sitesearch/internal/store"
)

const uniqueViolation = "23505"

// Config controls the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Repository implements store.Repository on Postgres.
type Repository struct {
	pool pool
}

var _ store.Repository = (*Repository)(nil)

// NewRepository connects a pool using cfg.
func NewRepository(ctx context.Context, cfg Config) (*Repository, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Repository{pool: p}, nil
}

// NewRepositoryWithPool wraps an existing pool (primarily for testing).
func NewRepositoryWithPool(p pool) (*Repository, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Repository{pool: p}, nil
}

// Migrate creates missing tables and indexes.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the pool.
func (r *Repository) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Close()
}

// CreateSite inserts a site row.
func (r *Repository) CreateSite(ctx context.Context, site store.Site) (store.Site, error) {
	query := `
		INSERT INTO site (status, status_time, last_error, url, name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id;
	`
	err := r.pool.QueryRow(ctx, query, string(site.Status), site.StatusTime, site.LastError, site.URL, site.Name).
		Scan(&site.ID)
	if err != nil {
		return store.Site{}, fmt.Errorf("insert site %q: %w", site.URL, mapError(err))
	}
	return site, nil
}

// GetSite loads a site by ID.
func (r *Repository) GetSite(ctx context.Context, id int64) (store.Site, error) {
	query := `
		SELECT id, status, status_time, last_error, url, name
		FROM site
		WHERE id = $1;
	`
	site, err := scanSite(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return store.Site{}, fmt.Errorf("get site %d: %w", id, mapError(err))
	}
	return site, nil
}

// FindSiteByURL loads a site by URL ignoring case.
func (r *Repository) FindSiteByURL(ctx context.Context, url string) (store.Site, error) {
	query := `
		SELECT id, status, status_time, last_error, url, name
		FROM site
		WHERE lower(url) = lower($1);
	`
	site, err := scanSite(r.pool.QueryRow(ctx, query, url))
	if err != nil {
		return store.Site{}, fmt.Errorf("find site %q: %w", url, mapError(err))
	}
	return site, nil
}

// ListSites returns all sites ordered by ID.
func (r *Repository) ListSites(ctx context.Context) ([]store.Site, error) {
	query := `
		SELECT id, status, status_time, last_error, url, name
		FROM site
		ORDER BY id;
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var sites []store.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site row: %w", err)
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}
	return sites, nil
}

// UpdateSiteStatus writes status, heartbeat, and last error.
func (r *Repository) UpdateSiteStatus(
	ctx context.Context,
	id int64,
	status store.SiteStatus,
	at time.Time,
	lastError *string,
) error {
	query := `
		UPDATE site
		SET status = $1, status_time = $2, last_error = $3
		WHERE id = $4;
	`
	res, err := r.pool.Exec(ctx, query, string(status), at, lastError, id)
	if err != nil {
		return fmt.Errorf("update site %d status: %w", id, err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("update site %d status: %w", id, store.ErrNotFound)
	}
	return nil
}

// TouchSite refreshes the heartbeat.
func (r *Repository) TouchSite(ctx context.Context, id int64, at time.Time) error {
	res, err := r.pool.Exec(ctx, `UPDATE site SET status_time = $1 WHERE id = $2;`, at, id)
	if err != nil {
		return fmt.Errorf("touch site %d: %w", id, err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("touch site %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// DeleteSite removes a site; pages, lemmas, and postings cascade.
func (r *Repository) DeleteSite(ctx context.Context, id int64) error {
	res, err := r.pool.Exec(ctx, `DELETE FROM site WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete site %d: %w", id, err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("delete site %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// SiteHasStatus compares the persisted status.
func (r *Repository) SiteHasStatus(ctx context.Context, id int64, status store.SiteStatus) (bool, error) {
	var current string
	if err := r.pool.QueryRow(ctx, `SELECT status FROM site WHERE id = $1;`, id).Scan(&current); err != nil {
		return false, fmt.Errorf("site %d status: %w", id, mapError(err))
	}
	return store.SiteStatus(current) == status, nil
}

// PageExists reports whether (site, path) is stored.
func (r *Repository) PageExists(ctx context.Context, siteID int64, path string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM page WHERE site_id = $1 AND path = $2);`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, siteID, path).Scan(&exists); err != nil {
		return false, fmt.Errorf("page exists %q: %w", path, err)
	}
	return exists, nil
}

// CreatePage inserts a page row.
func (r *Repository) CreatePage(ctx context.Context, page store.Page) (store.Page, error) {
	query := `
		INSERT INTO page (site_id, path, code, content)
		VALUES ($1, $2, $3, $4)
		RETURNING id;
	`
	if err := r.pool.QueryRow(ctx, query, page.SiteID, page.Path, page.Code, page.Content).Scan(&page.ID); err != nil {
		return store.Page{}, fmt.Errorf("insert page %q: %w", page.Path, mapError(err))
	}
	return page, nil
}

// FindPage loads a page by (site, path).
func (r *Repository) FindPage(ctx context.Context, siteID int64, path string) (store.Page, error) {
	query := `
		SELECT id, site_id, path, code, content
		FROM page
		WHERE site_id = $1 AND path = $2;
	`
	var page store.Page
	err := r.pool.QueryRow(ctx, query, siteID, path).Scan(&page.ID, &page.SiteID, &page.Path, &page.Code, &page.Content)
	if err != nil {
		return store.Page{}, fmt.Errorf("find page %q: %w", path, mapError(err))
	}
	return page, nil
}

// GetPages loads pages by ID.
func (r *Repository) GetPages(ctx context.Context, ids []int64) ([]store.Page, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, site_id, path, code, content
		FROM page
		WHERE id = ANY($1);
	`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get pages: %w", err)
	}
	defer rows.Close()

	pages := make([]store.Page, 0, len(ids))
	for rows.Next() {
		var page store.Page
		if err := rows.Scan(&page.ID, &page.SiteID, &page.Path, &page.Code, &page.Content); err != nil {
			return nil, fmt.Errorf("scan page row: %w", err)
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}

// DeletePage removes a page; its postings cascade.
func (r *Repository) DeletePage(ctx context.Context, id int64) error {
	res, err := r.pool.Exec(ctx, `DELETE FROM page WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete page %d: %w", id, err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("delete page %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// CountPages counts the pages of a site.
func (r *Repository) CountPages(ctx context.Context, siteID int64) (int, error) {
	return r.count(ctx, `SELECT count(*) FROM page WHERE site_id = $1;`, siteID)
}

// FindLemmas returns the site's lemmas named in names.
func (r *Repository) FindLemmas(ctx context.Context, siteID int64, names []string) ([]store.Lemma, error) {
	if len(names) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, site_id, lemma, frequency
		FROM lemma
		WHERE site_id = $1 AND lemma = ANY($2);
	`
	return r.queryLemmas(ctx, query, siteID, names)
}

// CreateLemmas inserts lemmas in a single statement.
func (r *Repository) CreateLemmas(ctx context.Context, lemmas []store.Lemma) ([]store.Lemma, error) {
	if len(lemmas) == 0 {
		return nil, nil
	}
	siteIDs := make([]int64, len(lemmas))
	names := make([]string, len(lemmas))
	freqs := make([]int32, len(lemmas))
	for i, l := range lemmas {
		siteIDs[i] = l.SiteID
		names[i] = l.Lemma
		freqs[i] = int32(l.Frequency)
	}
	query := `
		INSERT INTO lemma (site_id, lemma, frequency)
		SELECT * FROM unnest($1::bigint[], $2::text[], $3::int[])
		RETURNING id, site_id, lemma, frequency;
	`
	created, err := r.queryLemmas(ctx, query, siteIDs, names, freqs)
	if err != nil {
		return nil, mapError(err)
	}
	return created, nil
}

// ListLemmas returns every lemma of a site.
func (r *Repository) ListLemmas(ctx context.Context, siteID int64) ([]store.Lemma, error) {
	query := `
		SELECT id, site_id, lemma, frequency
		FROM lemma
		WHERE site_id = $1
		ORDER BY id;
	`
	return r.queryLemmas(ctx, query, siteID)
}

// UpdateLemmaFrequencies writes frequencies in a single statement.
func (r *Repository) UpdateLemmaFrequencies(ctx context.Context, lemmas []store.Lemma) error {
	if len(lemmas) == 0 {
		return nil
	}
	ids := make([]int64, len(lemmas))
	freqs := make([]int32, len(lemmas))
	for i, l := range lemmas {
		ids[i] = l.ID
		freqs[i] = int32(l.Frequency)
	}
	query := `
		UPDATE lemma AS l
		SET frequency = v.frequency
		FROM unnest($1::bigint[], $2::int[]) AS v (id, frequency)
		WHERE l.id = v.id;
	`
	if _, err := r.pool.Exec(ctx, query, ids, freqs); err != nil {
		return fmt.Errorf("update lemma frequencies: %w", err)
	}
	return nil
}

// DeleteLemmas removes lemmas; their postings cascade.
func (r *Repository) DeleteLemmas(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM lemma WHERE id = ANY($1);`, ids); err != nil {
		return fmt.Errorf("delete lemmas: %w", err)
	}
	return nil
}

// CountLemmas counts the lemmas of a site.
func (r *Repository) CountLemmas(ctx context.Context, siteID int64) (int, error) {
	return r.count(ctx, `SELECT count(*) FROM lemma WHERE site_id = $1;`, siteID)
}

// CreatePostings inserts postings in a single statement, skipping known keys.
func (r *Repository) CreatePostings(ctx context.Context, postings []store.Posting) error {
	if len(postings) == 0 {
		return nil
	}
	pageIDs := make([]int64, len(postings))
	lemmaIDs := make([]int64, len(postings))
	ranks := make([]float64, len(postings))
	for i, p := range postings {
		pageIDs[i] = p.PageID
		lemmaIDs[i] = p.LemmaID
		ranks[i] = p.Rank
	}
	query := `
		INSERT INTO search_index (page_id, lemma_id, rank)
		SELECT * FROM unnest($1::bigint[], $2::bigint[], $3::float8[])
		ON CONFLICT (page_id, lemma_id) DO NOTHING;
	`
	if _, err := r.pool.Exec(ctx, query, pageIDs, lemmaIDs, ranks); err != nil {
		return fmt.Errorf("insert postings: %w", err)
	}
	return nil
}

// CountPostingsByLemma counts postings per lemma of a site.
func (r *Repository) CountPostingsByLemma(ctx context.Context, siteID int64) (map[int64]int, error) {
	query := `
		SELECT i.lemma_id, count(*)
		FROM search_index i
		JOIN lemma l ON l.id = i.lemma_id
		WHERE l.site_id = $1
		GROUP BY i.lemma_id;
	`
	rows, err := r.pool.Query(ctx, query, siteID)
	if err != nil {
		return nil, fmt.Errorf("count postings: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var (
			lemmaID int64
			n       int
		)
		if err := rows.Scan(&lemmaID, &n); err != nil {
			return nil, fmt.Errorf("scan posting count: %w", err)
		}
		counts[lemmaID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posting counts: %w", err)
	}
	return counts, nil
}

// PagesWithLemma lists pages holding the lemma, optionally restricted to within.
func (r *Repository) PagesWithLemma(ctx context.Context, lemmaID int64, within []int64) ([]int64, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if within == nil {
		rows, err = r.pool.Query(ctx, `SELECT page_id FROM search_index WHERE lemma_id = $1 ORDER BY page_id;`, lemmaID)
	} else {
		rows, err = r.pool.Query(
			ctx,
			`SELECT page_id FROM search_index WHERE lemma_id = $1 AND page_id = ANY($2) ORDER BY page_id;`,
			lemmaID,
			within,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("pages with lemma %d: %w", lemmaID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan page id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate page ids: %w", err)
	}
	return ids, nil
}

// PostingsFor returns postings of the pages restricted to the lemmas.
func (r *Repository) PostingsFor(ctx context.Context, pageIDs []int64, lemmaIDs []int64) ([]store.Posting, error) {
	if len(pageIDs) == 0 || len(lemmaIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, page_id, lemma_id, rank
		FROM search_index
		WHERE page_id = ANY($1) AND lemma_id = ANY($2);
	`
	rows, err := r.pool.Query(ctx, query, pageIDs, lemmaIDs)
	if err != nil {
		return nil, fmt.Errorf("postings for pages: %w", err)
	}
	defer rows.Close()

	var postings []store.Posting
	for rows.Next() {
		var p store.Posting
		if err := rows.Scan(&p.ID, &p.PageID, &p.LemmaID, &p.Rank); err != nil {
			return nil, fmt.Errorf("scan posting: %w", err)
		}
		postings = append(postings, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate postings: %w", err)
	}
	return postings, nil
}

func (r *Repository) queryLemmas(ctx context.Context, query string, args ...any) ([]store.Lemma, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query lemmas: %w", err)
	}
	defer rows.Close()

	var lemmas []store.Lemma
	for rows.Next() {
		var l store.Lemma
		if err := rows.Scan(&l.ID, &l.SiteID, &l.Lemma, &l.Frequency); err != nil {
			return nil, fmt.Errorf("scan lemma row: %w", err)
		}
		lemmas = append(lemmas, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lemmas: %w", err)
	}
	return lemmas, nil
}

func (r *Repository) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func scanSite(row pgx.Row) (store.Site, error) {
	var (
		site   store.Site
		status string
	)
	if err := row.Scan(&site.ID, &status, &site.StatusTime, &site.LastError, &site.URL, &site.Name); err != nil {
		return store.Site{}, err
	}
	site.Status = store.SiteStatus(status)
	return site, nil
}

func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, store.ErrDuplicate)
	}
	return err
}
