package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/sitesearch/internal/progress"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []progress.Event{
		{CrawlID: "run-1", TS: now, Stage: progress.StageCrawlStart, Site: "example.com"},
		{CrawlID: "run-2", TS: now, Stage: progress.StageCrawlStart, Site: "other.org"},
		{
			CrawlID:     "run-1",
			TS:          now.Add(time.Second),
			Stage:       progress.StagePageDone,
			Site:        "example.com",
			Path:        "/",
			Bytes:       1024,
			StatusClass: progress.Status2xx,
			Dur:         200 * time.Millisecond,
		},
		{CrawlID: "run-1", TS: now.Add(2 * time.Second), Stage: progress.StageCrawlDone, Dur: 2 * time.Second},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pageFetches.WithLabelValues("example.com", "2xx")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.pageDuration, "crawl_page_fetch_duration_seconds"))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{CrawlID: "run-2", TS: now, Stage: progress.StageCrawlError, Note: "indexing stopped by user"},
		{CrawlID: "run-2", TS: now, Stage: progress.StageCrawlError},
	}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{CrawlID: "run-1", Stage: progress.StageCrawlStart, Site: "example.com"},
		{CrawlID: "run-1", Stage: progress.StagePageDone, Site: "example.com", Path: "/a"},
		{CrawlID: "run-1", Stage: progress.StageCrawlError, Note: "boom"},
	}))

	entries := logs.All()
	require.Len(t, entries, 3)
	require.Equal(t, zap.InfoLevel, entries[0].Level)
	require.Equal(t, zap.DebugLevel, entries[1].Level)
	require.Equal(t, zap.WarnLevel, entries[2].Level)
	require.Equal(t, "boom", entries[2].ContextMap()["note"])
	require.NoError(t, sink.Close(context.Background()))
}
