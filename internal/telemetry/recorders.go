package telemetry

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/location-cli/internal/model"
)

// LogRecorder writes events to the logger. Used when no analytics sink is configured.
type LogRecorder struct {
	log *zap.Logger
}

// NewLogRecorder creates a LogRecorder on l, or zap.L() when l is nil.
func NewLogRecorder(l *zap.Logger) *LogRecorder {
	if l == nil {
		l = zap.L()
	}
	return &LogRecorder{log: l}
}

// RecordEvent implements Recorder.
func (r *LogRecorder) RecordEvent(_ context.Context, ev model.AnalyticsEvent) error {
	r.log.Info("analytics event",
		zap.String("id", ev.ID),
		zap.String("event", ev.Name),
		zap.Any("attributes", ev.Attributes),
		zap.Time("recorded_at", ev.RecordedAt),
	)
	return nil
}

// Multi fans each event out to every recorder and joins their errors.
func Multi(recs ...Recorder) Recorder {
	return multiRecorder(recs)
}

type multiRecorder []Recorder

func (m multiRecorder) RecordEvent(ctx context.Context, ev model.AnalyticsEvent) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordEvent(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
