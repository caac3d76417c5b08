// Package api hosts the HTTP server, middleware, and handlers. Notable routes:
//   - GET /api/startIndexing, GET /api/stopIndexing, POST /api/indexPage for
//     crawl control (behind X-API-Key when auth is enabled).
//   - GET /api/search for ranked queries.
//   - GET /api/statistics for index totals and per-site detail.
//   - GET /healthz / readyz for probes and GET /metrics for Prometheus scraping.
package api
