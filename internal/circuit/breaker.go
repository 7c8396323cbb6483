package circuit

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/objectfs/sharedriver/internal/config"
	"github.com/objectfs/sharedriver/pkg/errors"
)

// State is the position of a breaker.
type State int

const (
	// StateClosed lets every dial through.
	StateClosed State = iota
	// StateOpen rejects dials until the timeout passes.
	StateOpen
	// StateHalfOpen lets one probe dial through to test the appliance.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config tunes a CircuitBreaker. Zero values take the defaults of
// NewCircuitBreaker.
type Config struct {
	// Disabled turns the breaker into a pass-through
	Disabled bool `yaml:"disabled"`

	// FailureThreshold trips a closed breaker after this many failures in a row
	FailureThreshold uint32 `yaml:"failure_threshold"`

	// Timeout is how long an open breaker rejects calls before probing
	Timeout time.Duration `yaml:"timeout"`

	// OnStateChange observes every transition along with the counts the
	// breaker saw in the state it leaves
	OnStateChange func(name string, from State, to State, counts Counts) `yaml:"-"`

	// IsSuccessful decides which results count as failures; nil errors by default
	IsSuccessful func(err error) bool `yaml:"-"`

	Clock clock.Clock `yaml:"-"`
}

// ConfigFrom converts the circuit_breaker section of the service
// configuration.
func ConfigFrom(cfg config.CircuitBreakerConfig) Config {
	return Config{
		Disabled:         !cfg.Enabled,
		FailureThreshold: uint32(cfg.FailureThreshold),
		Timeout:          cfg.Timeout,
	}
}

// Counts describes the calls seen since the last transition.
type Counts struct {
	Requests             uint32 `json:"requests"`
	TotalSuccesses       uint32 `json:"total_successes"`
	TotalFailures        uint32 `json:"total_failures"`
	ConsecutiveSuccesses uint32 `json:"consecutive_successes"`
	ConsecutiveFailures  uint32 `json:"consecutive_failures"`
}

// CircuitBreaker stops calls to an appliance that keeps failing. After
// FailureThreshold consecutive failures it rejects calls with a CIRCUIT_OPEN
// error for Timeout, then lets a single probe through.
type CircuitBreaker struct {
	name   string
	config Config

	mu     sync.Mutex
	state  State
	counts Counts
	expiry time.Time

	// generation advances on every transition; results of calls admitted
	// in an older generation are dropped
	generation uint64
}

// NewCircuitBreaker returns a closed breaker named name. Without a
// threshold it trips after 5 failures; without a timeout it stays open for a
// minute.
func NewCircuitBreaker(name string, cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.IsSuccessful == nil {
		cfg.IsSuccessful = func(err error) bool { return err == nil }
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}

	return &CircuitBreaker{
		name:   name,
		config: cfg,
		state:  StateClosed,
	}
}

// LogStateChanges returns an OnStateChange callback that logs transitions.
func LogStateChanges(logger *zap.Logger) func(string, State, State, Counts) {
	return func(name string, from, to State, counts Counts) {
		logger.Warn("Circuit breaker state changed",
			zap.String("breaker", name),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
			zap.Uint32("requests", counts.Requests),
			zap.Uint32("total_failures", counts.TotalFailures),
			zap.Uint32("consecutive_failures", counts.ConsecutiveFailures))
	}
}

// ExecuteWithContext runs fn unless the breaker rejects the call. A nil or
// disabled breaker always runs fn.
func (cb *CircuitBreaker) ExecuteWithContext(ctx context.Context, fn func(context.Context) error) error {
	if cb == nil || cb.config.Disabled {
		return fn(ctx)
	}
	generation, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)
	cb.settle(generation, err)
	return err
}

// admit claims a call, or explains why the breaker refuses it. It returns
// the generation the call belongs to.
func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.refresh(cb.config.Clock.Now()) {
	case StateOpen:
		return 0, errors.Newf(errors.ErrCodeCircuitOpen, "circuit breaker %s is open", cb.name).
			WithComponent("circuit").
			WithDetail("retry_after", cb.expiry)
	case StateHalfOpen:
		if cb.counts.Requests > 0 {
			return 0, errors.Newf(errors.ErrCodeCircuitOpen, "circuit breaker %s is probing", cb.name).
				WithComponent("circuit")
		}
	}
	cb.counts.Requests++
	return cb.generation, nil
}

// settle feeds the result of a call admitted in generation back into the
// state machine. A call that outlived its generation changes nothing.
func (cb *CircuitBreaker) settle(generation uint64, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.config.Clock.Now()
	state := cb.refresh(now)
	if generation != cb.generation {
		return
	}

	if cb.config.IsSuccessful(err) {
		cb.counts.TotalSuccesses++
		cb.counts.ConsecutiveSuccesses++
		cb.counts.ConsecutiveFailures = 0
		if state == StateHalfOpen {
			cb.moveTo(StateClosed, now)
		}
		return
	}

	cb.counts.TotalFailures++
	cb.counts.ConsecutiveFailures++
	cb.counts.ConsecutiveSuccesses = 0
	if state == StateHalfOpen || cb.counts.ConsecutiveFailures >= cb.config.FailureThreshold {
		cb.moveTo(StateOpen, now)
	}
}

// refresh turns an expired open breaker half-open and returns the state.
func (cb *CircuitBreaker) refresh(now time.Time) State {
	if cb.state == StateOpen && !now.Before(cb.expiry) {
		cb.moveTo(StateHalfOpen, now)
	}
	return cb.state
}

func (cb *CircuitBreaker) moveTo(next State, now time.Time) {
	if cb.state == next {
		return
	}
	from, counts := cb.state, cb.counts
	cb.state = next
	cb.generation++
	cb.counts = Counts{}
	cb.expiry = time.Time{}
	if next == StateOpen {
		cb.expiry = now.Add(cb.config.Timeout)
	}

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, from, next, counts)
	}
}

// GetState returns the state as of now.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.refresh(cb.config.Clock.Now())
}
