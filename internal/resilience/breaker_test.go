package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errSink = errors.New("sink unavailable")

func failN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Execute(context.Background(), func(_ context.Context) error { return errSink })
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 3, CoolDown: time.Minute})
	failN(cb, 3)

	if cb.State() != BreakerOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}
	err := cb.Execute(context.Background(), func(_ context.Context) error {
		t.Error("must not call through while open")
		return nil
	})
	if !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("expected ErrBreakerOpen, got %v", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 3, CoolDown: time.Minute})
	failN(cb, 2)
	_ = cb.Execute(context.Background(), func(_ context.Context) error { return nil })
	failN(cb, 2)

	if cb.State() != BreakerClosed {
		t.Errorf("expected closed, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	now := time.Now()
	var transitions []string
	cb := NewCircuitBreaker(BreakerConfig{
		FailureThreshold: 1,
		CoolDown:         10 * time.Second,
		OnStateChange: func(from, to BreakerState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	cb.nowFunc = func() time.Time { return now }

	failN(cb, 1)
	now = now.Add(11 * time.Second)
	if cb.State() != BreakerHalfOpen {
		t.Fatalf("expected half-open after cool-down, got %s", cb.State())
	}

	if err := cb.Execute(context.Background(), func(_ context.Context) error { return nil }); err != nil {
		t.Fatalf("probe should pass: %v", err)
	}
	if cb.State() != BreakerClosed {
		t.Errorf("expected closed after probe, got %s", cb.State())
	}

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1, CoolDown: time.Second})
	cb.nowFunc = func() time.Time { return now }

	failN(cb, 1)
	now = now.Add(2 * time.Second)
	failN(cb, 1)

	if cb.State() != BreakerOpen {
		t.Errorf("expected open after failed probe, got %s", cb.State())
	}
}
