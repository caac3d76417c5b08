package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitesearch/internal/logging"
	"github.com/JakeFAU/sitesearch/internal/progress"
)

// LogSink writes one structured log line per crawl run milestone. Page events
// are logged at debug level.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wraps logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logging.OrNop(logger).Named("progress")}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("crawl_id", evt.CrawlID),
			zap.String("stage", string(evt.Stage)),
			zap.String("site", evt.Site),
			zap.Time("ts", evt.TS),
		}
		switch evt.Stage {
		case progress.StagePageDone:
			s.logger.Debug("page done", append(fields,
				zap.String("path", evt.Path),
				zap.Int64("bytes", evt.Bytes),
				zap.String("status_class", string(evt.StatusClass)),
				zap.Duration("dur", evt.Dur),
			)...)
		case progress.StageCrawlError:
			s.logger.Warn("crawl run failed", append(fields, zap.Duration("dur", evt.Dur), zap.String("note", evt.Note))...)
		default:
			s.logger.Info("crawl run progress", append(fields, zap.Duration("dur", evt.Dur))...)
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
