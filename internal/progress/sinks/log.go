package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/gallery-scraper/internal/progress"
)

// LogSink writes each event as a structured log line. Item events log at
// debug level so large jobs stay readable at info.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("progress")}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("job_id", evt.JobID),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageDiscovery:
			fields = append(fields, zap.Int("found", evt.Found), zap.Int("target", evt.Target))
		case progress.StageItemDone, progress.StageItemFailed:
			fields = append(fields,
				zap.String("item_id", evt.ItemID),
				zap.Int("done", evt.Done),
				zap.Int("total", evt.Total),
				zap.Int("fields", evt.Fields),
				zap.Duration("dur", evt.Dur),
			)
		default:
			fields = append(fields, zap.String("url", evt.URL), zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}

		switch evt.Stage {
		case progress.StageItemDone, progress.StageDiscovery:
			s.logger.Debug("progress event", fields...)
		case progress.StageItemFailed, progress.StageJobError:
			s.logger.Warn("progress event", fields...)
		default:
			s.logger.Info("progress event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
