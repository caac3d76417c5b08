package crawler

import "github.com/JakeFAU/sitesearch/internal/progress"

// Option customizes a Crawler or Service.
type Option func(*options)

type options struct {
	progress progress.Emitter
}

// WithProgress reports crawl run milestones to e.
func WithProgress(e progress.Emitter) Option {
	return func(o *options) {
		if e != nil {
			o.progress = e
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{progress: progress.Nop{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
