// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand/v2"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/sitesearch/internal/crawler"
)

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	Referrer       string
	AcceptLanguage string
	// DelayMin and DelayMax bound the politeness sleep taken before every request.
	DelayMin      time.Duration
	DelayMax      time.Duration
	Timeout       time.Duration
	RespectRobots bool
	// MaxBodySize caps the bytes read from a response; 0 reads the whole body.
	MaxBodySize int
}

// Waiter blocks until a request to url may proceed.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	limiter       Waiter
	baseCollector *colly.Collector
	sleep         func(ctx context.Context, d time.Duration) error
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponseHeaders(colly.ResponseHeadersCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithLimiter caps the request rate per host.
func WithLimiter(l Waiter) Option {
	return func(f *Fetcher) {
		f.limiter = l
	}
}

// New builds a Fetcher. Server certificates are not verified.
func New(cfg Config, opts ...Option) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	// Error statuses are results, not failures.
	c.ParseHTTPErrorResponse = true
	c.AllowURLRevisit = true
	c.MaxBodySize = cfg.MaxBodySize

	f := &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		sleep:         sleepWithContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch sleeps for the politeness delay and executes a single HTTP GET.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.FetchResponse, error) {
	if err := f.sleep(ctx, f.politenessDelay()); err != nil {
		return crawler.FetchResponse{}, err
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, url); err != nil {
			return crawler.FetchResponse{}, fmt.Errorf("fetch %s: %w", url, err)
		}
	}

	var (
		result crawler.FetchResponse
		state  fetchState
	)
	collector := f.buildCollector()
	f.configureCollectorHooks(collector, time.Now(), &result, &state)

	if err := f.runCollector(ctx, collector, url, &state); err != nil {
		return crawler.FetchResponse{}, err
	}
	return result, nil
}

type fetchState struct {
	err         error
	unsupported string
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.ParseHTTPErrorResponse = true
	collector.AllowURLRevisit = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.MaxBodySize = f.cfg.MaxBodySize
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *crawler.FetchResponse,
	state *fetchState,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.setHeaders(r)
	})

	hooks.OnResponseHeaders(func(r *colly.Response) {
		contentType := r.Headers.Get("Content-Type")
		if !SupportedContentType(contentType) {
			state.unsupported = contentType
			r.Request.Abort()
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = crawler.FetchResponse{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        append([]byte(nil), r.Body...),
			Duration:    time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		state.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, state *fetchState) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if state.unsupported != "" {
			return fmt.Errorf("%s (%q): %w", url, state.unsupported, crawler.ErrUnsupportedContentType)
		}
		if errors.Is(err, colly.ErrRobotsTxtBlocked) {
			return fmt.Errorf("%s: %w", url, crawler.ErrDisallowed)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if state.err != nil {
			return fmt.Errorf("colly response failed: %w", state.err)
		}
		return nil
	}
}

func (f *Fetcher) setHeaders(r *colly.Request) {
	if f.cfg.Referrer != "" {
		r.Headers.Set("Referer", f.cfg.Referrer)
	}
	if f.cfg.AcceptLanguage != "" {
		r.Headers.Set("Accept-Language", f.cfg.AcceptLanguage)
	}
}

// politenessDelay draws uniformly from [DelayMin, DelayMax).
func (f *Fetcher) politenessDelay() time.Duration {
	lo, hi := f.cfg.DelayMin, f.cfg.DelayMax
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

// SupportedContentType reports whether a response body can be parsed as a
// document: any text type, XML, or an XML-based application type. A missing
// header is accepted.
func SupportedContentType(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "text/") ||
		mediaType == "application/xml" ||
		strings.HasSuffix(mediaType, "+xml")
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("politeness sleep: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // crawl targets may present self-signed certificates
		},
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
