// Package telemetry emits analytics events on a side channel that never
// blocks or fails the action it accompanies.
package telemetry

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/location-cli/internal/model"
)

// Recorder delivers analytics events to a backend.
type Recorder interface {
	RecordEvent(ctx context.Context, ev model.AnalyticsEvent) error
}

// Stats are the emitter's lifetime counters.
type Stats struct {
	Emitted   int64 `json:"emitted"`
	Recorded  int64 `json:"recorded"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Throttled int64 `json:"throttled"`
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithQueueSize sets the number of events buffered ahead of the recorder.
func WithQueueSize(n int) Option {
	return func(e *Emitter) {
		if n > 0 {
			e.queueSize = n
		}
	}
}

// WithRecordTimeout bounds each recorder call.
func WithRecordTimeout(d time.Duration) Option {
	return func(e *Emitter) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithRateLimit drops events emitted faster than rps (with the given burst).
func WithRateLimit(rps float64, burst int) Option {
	return func(e *Emitter) {
		if rps > 0 {
			if burst < 1 {
				burst = 1
			}
			e.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithLogger sets the logger. Defaults to zap.L().
func WithLogger(l *zap.Logger) Option {
	return func(e *Emitter) {
		e.log = l
	}
}

// Emitter queues events for a single background worker.
type Emitter struct {
	rec       Recorder
	queueSize int
	timeout   time.Duration
	limiter   *rate.Limiter
	log       *zap.Logger
	nowFunc   func() time.Time

	enabled atomic.Bool

	emitted   atomic.Int64
	recorded  atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	throttled atomic.Int64

	mu        sync.Mutex
	queue     chan model.AnalyticsEvent
	closed    bool
	startOnce sync.Once
	done      chan struct{}
}

// NewEmitter creates an enabled Emitter. Call Start to begin delivery.
func NewEmitter(rec Recorder, opts ...Option) *Emitter {
	e := &Emitter{
		rec:       rec,
		queueSize: 256,
		timeout:   10 * time.Second,
		nowFunc:   time.Now,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = zap.L().With(zap.String("component", "telemetry"))
	}
	e.queue = make(chan model.AnalyticsEvent, e.queueSize)
	e.enabled.Store(true)
	return e
}

// SetEnabled turns event collection on or off.
func (e *Emitter) SetEnabled(enabled bool) {
	e.enabled.Store(enabled)
	e.log.Info("analytics collection toggled", zap.Bool("enabled", enabled))
}

// Enabled reports whether events are being collected.
func (e *Emitter) Enabled() bool {
	return e.enabled.Load()
}

// Start launches the delivery worker. Later calls are no-ops.
func (e *Emitter) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		go e.run(context.WithoutCancel(ctx))
	})
}

// Emit queues an event. It never blocks: a full queue, a closed emitter or
// an exceeded rate drops the event.
func (e *Emitter) Emit(name string, attrs map[string]string) {
	if !e.enabled.Load() {
		return
	}
	if e.limiter != nil && !e.limiter.Allow() {
		e.throttled.Add(1)
		e.log.Debug("telemetry: rate limited, dropping event", zap.String("event", name))
		return
	}

	ev := model.AnalyticsEvent{
		ID:         uuid.NewString(),
		Name:       name,
		Attributes: maps.Clone(attrs),
		RecordedAt: e.nowFunc().UTC(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		e.dropped.Add(1)
		return
	}
	select {
	case e.queue <- ev:
		e.emitted.Add(1)
	default:
		e.dropped.Add(1)
		e.log.Warn("telemetry: queue full, dropping event", zap.String("event", name))
	}
}

func (e *Emitter) run(ctx context.Context) {
	defer close(e.done)
	for ev := range e.queue {
		e.deliver(ctx, ev)
	}
}

func (e *Emitter) deliver(ctx context.Context, ev model.AnalyticsEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.failed.Add(1)
			e.log.Error("telemetry: recorder panicked", zap.String("event", ev.Name), zap.Any("panic", r))
		}
	}()

	rctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.rec.RecordEvent(rctx, ev); err != nil {
		e.failed.Add(1)
		e.log.Warn("telemetry: record event failed", zap.String("event", ev.Name), zap.Error(err))
		return
	}
	e.recorded.Add(1)
	e.log.Debug("telemetry: event recorded", zap.String("event", ev.Name), zap.String("id", ev.ID))
}

// Close stops accepting events and waits for queued ones to be delivered.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	e.Start(ctx)

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "telemetry: drain queue")
	}
}

// Stats returns a snapshot of the counters.
func (e *Emitter) Stats() Stats {
	return Stats{
		Emitted:   e.emitted.Load(),
		Recorded:  e.recorded.Load(),
		Failed:    e.failed.Load(),
		Dropped:   e.dropped.Load(),
		Throttled: e.throttled.Load(),
	}
}
