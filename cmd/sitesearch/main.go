// Package main wires together the site search service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitesearch/internal/api"
	"github.com/JakeFAU/sitesearch/internal/clock"
	"github.com/JakeFAU/sitesearch/internal/config"
	"github.com/JakeFAU/sitesearch/internal/crawler"
	collyfetcher "github.com/JakeFAU/sitesearch/internal/fetcher/colly"
	"github.com/JakeFAU/sitesearch/internal/fetcher/ratelimit"
	"github.com/JakeFAU/sitesearch/internal/id"
	"github.com/JakeFAU/sitesearch/internal/indexer"
	"github.com/JakeFAU/sitesearch/internal/lemma"
	"github.com/JakeFAU/sitesearch/internal/logging"
	"github.com/JakeFAU/sitesearch/internal/metrics"
	"github.com/JakeFAU/sitesearch/internal/progress"
	"github.com/JakeFAU/sitesearch/internal/progress/sinks"
	"github.com/JakeFAU/sitesearch/internal/search"
	"github.com/JakeFAU/sitesearch/internal/storage/memory"
	"github.com/JakeFAU/sitesearch/internal/storage/postgres"
	"github.com/JakeFAU/sitesearch/internal/store"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, ready, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("store init failed", zap.Error(err))
		return
	}
	defer closeRepo()

	delayMin, delayMax := cfg.PolitenessDelay()
	limiter := ratelimit.New(ratelimit.Config{RPS: cfg.Fetch.MaxRPSPerSite})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:      cfg.Fetch.UserAgent,
		Referrer:       cfg.Fetch.Referrer,
		AcceptLanguage: cfg.Fetch.AcceptLanguage,
		DelayMin:       delayMin,
		DelayMax:       delayMax,
		Timeout:        cfg.RequestTimeout(),
		RespectRobots:  cfg.Fetch.RespectRobots,
		MaxBodySize:    cfg.Fetch.MaxBodyBytes,
	}, collyfetcher.WithLimiter(limiter))

	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		logger.Error("progress metrics init failed", zap.Error(err))
		return
	}
	hub := progress.NewHub(progress.Config{Logger: logger}, sinks.NewLogSink(logger), promSink)

	lemmatizer := lemma.New()
	clk := clock.System{}
	ids := id.Generator{}
	ix := indexer.New(repo, lemmatizer, logger)
	cr := crawler.NewCrawler(repo, fetcher, ix, clk, logger, cfg.Crawler.Parallelism, crawler.WithProgress(hub))

	targets := make([]crawler.Target, len(cfg.Sites))
	for i, site := range cfg.Sites {
		targets[i] = crawler.Target{URL: site.URL, Name: site.Name}
	}
	service := crawler.NewService(repo, cr, ix, targets, clk, ids, logger, crawler.WithProgress(hub))
	engine := search.NewEngine(repo, lemmatizer, search.Config{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
		SnippetWords: cfg.Search.SnippetWords,
	}, logger)

	apiServer := api.NewServer(service, engine, ids, ready, cfg, logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port), zap.Int("sites", len(targets)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second,
	)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := service.Shutdown(shutdownCtx); err != nil {
		logger.Error("crawl shutdown error", zap.Error(err))
	}
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Error("progress hub close error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// openRepository returns the Postgres store when db.dsn is set and the
// in-memory store otherwise, with a readiness check and a close func.
func openRepository(
	ctx context.Context,
	cfg config.Config,
	logger *zap.Logger,
) (store.Repository, api.ReadinessCheck, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Warn("db.dsn not set; using in-memory store")
		return memory.New(), nil, func() {}, nil
	}
	repo, err := postgres.NewRepository(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxConns),
	})
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.DB.Migrate {
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, nil, nil, err
		}
	}
	return repo, repo.Ping, repo.Close, nil
}
