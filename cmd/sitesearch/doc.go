// Package main hosts the site search service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes crawl control, search, statistics, health, and metrics endpoints.
//     Operator endpoints sit behind X-API-Key when auth is enabled.
//   - Crawl: internal/crawler.Service starts one crawl tree per configured site. Each node fetches a page through the
//     Colly fetcher (politeness sleep, optional per-host rate cap, optional robots.txt), stores it, indexes it, and
//     fans out one goroutine per discovered link. A shared semaphore bounds concurrent fetches.
//   - Index: internal/indexer turns page text into Snowball-stemmed lemmas and postings; frequencies are recomputed
//     once a site's crawl tree has joined.
//   - Search: internal/search intersects posting sets rarest lemma first, ranks by summed occurrence counts
//     normalized to [0, 1], and builds titles and snippets for the requested page of results only.
//   - Persistence: Postgres via pgx when db.dsn is set (schema applied on start when db.migrate is true), otherwise
//     an in-memory store that loses data on restart.
//   - Configuration & plumbing: Viper populates config from env (SEARCH_ prefix) and files; zap provides structured
//     logging; Prometheus metrics are exported on /metrics.
//
// Operational notes:
//   - Stop requests and shutdown mark running sites FAILED and cancel the crawl context; in-flight branches observe
//     the status at their next step.
//   - Run locally: go run ./cmd/sitesearch -config config.yaml (or rely solely on env overrides).
package main
