package progress

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Crawl run stages.
const (
	StageCrawlStart Stage = "CRAWL_START"
	StagePageDone   Stage = "PAGE_DONE"
	StageCrawlDone  Stage = "CRAWL_DONE"
	StageCrawlError Stage = "CRAWL_ERROR"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Status classes recorded for stored pages.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event is one crawl run milestone.
type Event struct {
	CrawlID string
	TS      time.Time
	Stage   Stage
	// Site is the host of the crawled site.
	Site string
	// Path is set for page events.
	Path        string
	Bytes       int64
	StatusClass StatusClass
	// Dur is the fetch latency for pages and the run time for finished crawls.
	Dur time.Duration
	// Note carries the failure message of errored crawls.
	Note string
}

// Validate rejects events that sinks cannot attribute.
func (e Event) Validate() error {
	if e.CrawlID == "" {
		return errors.New("crawl id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageCrawlStart, StageCrawlDone, StageCrawlError:
	case StagePageDone:
		if e.Site == "" || e.StatusClass == "" {
			return errors.New("page done requires site and status class")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}

type crawlIDKey struct{}

// WithCrawlID tags ctx with the ID of the crawl run it belongs to.
func WithCrawlID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, crawlIDKey{}, id)
}

// CrawlID returns the crawl run ID of ctx, or "".
func CrawlID(ctx context.Context) string {
	id, _ := ctx.Value(crawlIDKey{}).(string)
	return id
}
