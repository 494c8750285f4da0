package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// BreakerState is the state of a CircuitBreaker.
type BreakerState int

const (
	// BreakerClosed lets calls through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the cool-down passes.
	BreakerOpen
	// BreakerHalfOpen lets probe calls through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned without calling through while the breaker is open.
var ErrBreakerOpen = eris.New("circuit breaker is open")

// BreakerConfig controls when a CircuitBreaker opens and recovers.
type BreakerConfig struct {
	FailureThreshold int
	CoolDown         time.Duration
	// ProbesToClose is the number of half-open successes needed to close.
	ProbesToClose int
	OnStateChange func(from, to BreakerState)
}

// DefaultBreakerConfig opens after 5 straight failures for 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		CoolDown:         30 * time.Second,
		ProbesToClose:    1,
	}
}

// CircuitBreaker stops calling a sink that keeps failing.
type CircuitBreaker struct {
	cfg BreakerConfig

	mu          sync.Mutex
	state       BreakerState
	failures    int
	probes      int
	lastFailure time.Time

	nowFunc func() time.Time
}

// NewCircuitBreaker creates a closed breaker, filling zero config fields with defaults.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = def.CoolDown
	}
	if cfg.ProbesToClose <= 0 {
		cfg.ProbesToClose = def.ProbesToClose
	}
	return &CircuitBreaker{cfg: cfg, nowFunc: time.Now}
}

// Execute calls fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

// State returns the current state, reporting half-open once the cool-down has passed.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == BreakerOpen && cb.nowFunc().Sub(cb.lastFailure) >= cb.cfg.CoolDown {
		return BreakerHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != BreakerOpen {
		return nil
	}
	if cb.nowFunc().Sub(cb.lastFailure) >= cb.cfg.CoolDown {
		cb.moveTo(BreakerHalfOpen)
		return nil
	}
	return ErrBreakerOpen
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		switch cb.state {
		case BreakerHalfOpen:
			cb.probes++
			if cb.probes >= cb.cfg.ProbesToClose {
				cb.moveTo(BreakerClosed)
				cb.failures, cb.probes = 0, 0
			}
		case BreakerClosed:
			cb.failures = 0
		}
		return
	}

	cb.failures++
	cb.lastFailure = cb.nowFunc()
	switch cb.state {
	case BreakerClosed:
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.moveTo(BreakerOpen)
		}
	case BreakerHalfOpen:
		cb.moveTo(BreakerOpen)
		cb.probes = 0
	}
}

func (cb *CircuitBreaker) moveTo(to BreakerState) {
	from := cb.state
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}
