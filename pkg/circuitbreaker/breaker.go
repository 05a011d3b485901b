package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Observer is told about every transition and every call turned away
// without reaching the provider. Calls happen with the breaker locked.
type Observer interface {
	StateChanged(name string, from, to State)
	Rejected(name string, state State)
}

type Config struct {
	// FailureThreshold consecutive failures open a closed breaker.
	FailureThreshold uint32
	// Cooldown is how long an open breaker refuses calls before half-opening.
	Cooldown time.Duration
	// HalfOpenCalls caps the trial calls let through while half-open.
	HalfOpenCalls uint32
	// SuccessThreshold consecutive trial successes close the breaker again.
	SuccessThreshold uint32
	// Window resets the closed-state tallies periodically. Zero never resets.
	Window time.Duration
	// IsFailure decides which errors count against the provider. Caller
	// cancellation never counts.
	IsFailure     func(error) bool
	OnStateChange func(name string, from State, to State)
	Observer      Observer
	Logger        *zap.Logger
}

// CircuitBreaker guards one upstream provider. After FailureThreshold
// consecutive failures it fails fast for Cooldown, then admits HalfOpenCalls
// trial calls before deciding whether the provider is back.
type CircuitBreaker struct {
	name string
	cfg  Config

	mu       sync.Mutex
	state    State
	epoch    uint64
	counts   Counts
	deadline time.Time
}

// Counts holds the tallies since the last transition or window reset.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
	Rejected             uint32
}

func NewCircuitBreaker(name string, cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}
	if cfg.HalfOpenCalls == 0 {
		cfg.HalfOpenCalls = 1
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.SuccessThreshold > cfg.HalfOpenCalls {
		cfg.HalfOpenCalls = cfg.SuccessThreshold
	}

	cb := &CircuitBreaker{name: name, cfg: cfg}
	cb.reset(time.Now())
	return cb
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Execute runs fn unless the breaker is refusing calls. A refused call
// returns an error wrapping ErrCircuitOpen or ErrTooManyRequests that names
// the breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	epoch, err := cb.admit()
	if err != nil {
		return fmt.Errorf("%s: %w", cb.name, err)
	}

	defer func() {
		if r := recover(); r != nil {
			cb.record(epoch, false)
			panic(r)
		}
	}()

	err = fn()
	switch {
	case err == nil:
		cb.record(epoch, true)
	case cb.countsAsFailure(ctx, err):
		cb.record(epoch, false)
	default:
		cb.release(epoch)
	}
	return err
}

func (cb *CircuitBreaker) countsAsFailure(ctx context.Context, err error) bool {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return false
	}
	if cb.cfg.IsFailure != nil {
		return cb.cfg.IsFailure(err)
	}
	return true
}

func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state := cb.advance(time.Now())
	switch {
	case state == StateOpen:
		cb.reject(state)
		return cb.epoch, ErrCircuitOpen
	case state == StateHalfOpen && cb.counts.Requests >= cb.cfg.HalfOpenCalls:
		cb.reject(state)
		return cb.epoch, ErrTooManyRequests
	}

	cb.counts.Requests++
	return cb.epoch, nil
}

func (cb *CircuitBreaker) reject(state State) {
	cb.counts.Rejected++
	if cb.cfg.Observer != nil {
		cb.cfg.Observer.Rejected(cb.name, state)
	}
}

// record applies an outcome unless the breaker has moved on since the call
// was admitted.
func (cb *CircuitBreaker) record(epoch uint64, success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	state := cb.advance(now)
	if epoch != cb.epoch {
		return
	}

	if success {
		cb.counts.TotalSuccesses++
		cb.counts.ConsecutiveSuccesses++
		cb.counts.ConsecutiveFailures = 0
		if state == StateHalfOpen && cb.counts.ConsecutiveSuccesses >= cb.cfg.SuccessThreshold {
			cb.transition(StateClosed, now)
		}
		return
	}

	cb.counts.TotalFailures++
	cb.counts.ConsecutiveFailures++
	cb.counts.ConsecutiveSuccesses = 0
	switch state {
	case StateClosed:
		if cb.counts.ConsecutiveFailures >= cb.cfg.FailureThreshold {
			cb.transition(StateOpen, now)
		}
	case StateHalfOpen:
		cb.transition(StateOpen, now)
	}
}

// release hands back a half-open trial slot for a call that said nothing
// about the provider's health.
func (cb *CircuitBreaker) release(epoch uint64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if epoch == cb.epoch && cb.state == StateHalfOpen && cb.counts.Requests > 0 {
		cb.counts.Requests--
	}
}

// advance applies time-based transitions and returns the current state.
func (cb *CircuitBreaker) advance(now time.Time) State {
	if cb.deadline.IsZero() || now.Before(cb.deadline) {
		return cb.state
	}
	switch cb.state {
	case StateClosed:
		cb.reset(now)
	case StateOpen:
		cb.transition(StateHalfOpen, now)
	}
	return cb.state
}

func (cb *CircuitBreaker) transition(to State, now time.Time) {
	from := cb.state
	if from == to {
		return
	}
	failures := cb.counts.ConsecutiveFailures

	cb.state = to
	cb.reset(now)

	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
	if cb.cfg.Observer != nil {
		cb.cfg.Observer.StateChanged(cb.name, from, to)
	}

	if cb.cfg.Logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("breaker", cb.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	}
	if to == StateOpen {
		cb.cfg.Logger.Warn("Circuit breaker opened; failing fast",
			append(fields, zap.Uint32("consecutive_failures", failures), zap.Duration("cooldown", cb.cfg.Cooldown))...)
		return
	}
	cb.cfg.Logger.Info("Circuit breaker state changed", fields...)
}

// reset starts a new epoch, clearing tallies and arming the deadline for
// the current state.
func (cb *CircuitBreaker) reset(now time.Time) {
	cb.epoch++
	cb.counts = Counts{}
	cb.deadline = time.Time{}

	switch cb.state {
	case StateClosed:
		if cb.cfg.Window > 0 {
			cb.deadline = now.Add(cb.cfg.Window)
		}
	case StateOpen:
		cb.deadline = now.Add(cb.cfg.Cooldown)
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.advance(time.Now())
}

func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.counts
}
