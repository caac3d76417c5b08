// Package store defines the persistence model (sites, pages, lemmas, postings)
// and the repository interfaces the crawler, indexer, and search engine depend
// on. Implementations live in internal/storage/...; this package must not import
// database drivers or concrete clients.
package store
