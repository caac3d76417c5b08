// Package crawler implements the recursive site crawler and the crawl
// control service. Each page is a task that fetches, stores, and indexes the
// page and then spawns one child task per root-relative link, joining them
// all before returning. The root task of a site finalizes lemma frequencies
// and marks the site INDEXED. A branch failure marks the site FAILED, which
// every other branch observes before fetching its next page.
package crawler
