// Package progress carries crawl run milestones from the crawler to pluggable
// sinks. Emitters never block: events are buffered, batched on a background
// goroutine, and dropped under backpressure.
package progress
