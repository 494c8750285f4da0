package session

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/sells-group/location-cli/internal/model"
)

// subscription is the single active stream and its consumer goroutine.
type subscription struct {
	handle  model.SubscriptionHandle
	updates <-chan model.UpdateBatch
	stop    chan struct{}
	done    chan struct{}
	closed  atomic.Bool
}

func (s *subscription) isClosed() bool {
	return s.closed.Load()
}

// startUpdates replaces any active subscription with a new one.
func (c *Controller) startUpdates(ctx context.Context) (Outcome, error) {
	c.svc.Telemetry.Emit(model.EventRequestUpdates, map[string]string{
		"priority": c.profile.Priority.String(),
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub != nil {
		if err := c.cancelLocked(ctx); err != nil {
			c.log.Warn("failed to release previous subscription", zap.Error(err))
		}
	}

	handle, updates, err := c.svc.Locations.Subscribe(ctx, c.profile)
	if err != nil {
		c.log.Error("request location updates failed", zap.Error(err))
		return OutcomeSubscribeFailed, &ServiceCallError{Op: OpSubscribe, Err: err}
	}
	c.log.Info("location updates requested",
		zap.String("subscription_id", handle.ID),
		zap.Int("request_code", handle.RequestCode),
	)

	sub := &subscription{
		handle:  handle,
		updates: updates,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	c.sub = sub
	go c.consume(sub)
	return OutcomeSubscribed, nil
}

func (c *Controller) consume(sub *subscription) {
	defer close(sub.done)
	for {
		select {
		case <-sub.stop:
			return
		case batch, ok := <-sub.updates:
			if !ok {
				sub.closed.Store(true)
				c.log.Info("location stream ended", zap.String("subscription_id", sub.handle.ID))
				return
			}
			snap := c.state.applyStream(Project(batch))
			c.log.Debug("location update",
				zap.Int("fixes", len(batch.Locations)),
				zap.Float64("latitude", snap.LastHWLocation.Latitude),
				zap.Float64("longitude", snap.LastHWLocation.Longitude),
				zap.String("feature_name", snap.LastHWLocation.FeatureName),
			)
			if c.observer != nil {
				c.observer(snap)
			}
		}
	}
}

// Cancel releases the active subscription, if any.
func (c *Controller) Cancel(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelLocked(ctx)
}

// Close ends the session. The state remains readable.
func (c *Controller) Close(ctx context.Context) error {
	return c.Cancel(ctx)
}

func (c *Controller) cancelLocked(ctx context.Context) error {
	sub := c.sub
	if sub == nil {
		return nil
	}
	c.sub = nil
	close(sub.stop)
	<-sub.done

	if err := c.svc.Locations.Unsubscribe(ctx, sub.handle); err != nil {
		c.log.Error("remove location updates failed",
			zap.String("subscription_id", sub.handle.ID),
			zap.Error(err),
		)
		return &ServiceCallError{Op: OpUnsubscribe, Err: err}
	}
	c.log.Info("location updates removed", zap.String("subscription_id", sub.handle.ID))
	return nil
}

// Done returns a channel closed when the active stream's consumer exits, or
// nil when no subscription is active.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub == nil {
		return nil
	}
	return c.sub.done
}
