package circuitbreaker

import (
	"sync"
	"time"
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Blocking requests
	StateHalfOpen              // Admitting a single probe
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

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config holds the breaker policy. Zero fields take the defaults from
// DefaultConfig.
type Config struct {
	FailureThreshold int
	Window           time.Duration
	Cooldown         time.Duration
	MaxCooldown      time.Duration
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Window:           60 * time.Second,
		Cooldown:         30 * time.Second,
		MaxCooldown:      5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.MaxCooldown < c.Cooldown {
		c.MaxCooldown = max(d.MaxCooldown, c.Cooldown)
	}
	return c
}

// TransitionFunc observes state changes. It runs after the breaker lock
// is released.
type TransitionFunc func(backendID string, from, to State)

// Snapshot is a consistent copy of a breaker's state.
type Snapshot struct {
	State               State         `json:"state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	NextRetry           time.Time     `json:"next_retry,omitzero"`
	Cooldown            time.Duration `json:"cooldown"`
}

type CircuitBreaker struct {
	mutex sync.Mutex

	backendID    string
	cfg          Config
	now          func() time.Time
	onTransition TransitionFunc

	state        State
	failures     int
	firstFailure time.Time
	nextRetry    time.Time
	cooldown     time.Duration
	probing      bool
}

func NewCircuitBreaker(backendID string, cfg Config, opts ...Option) *CircuitBreaker {
	cfg = cfg.withDefaults()
	cb := &CircuitBreaker{
		backendID: backendID,
		cfg:       cfg,
		now:       time.Now,
		state:     StateClosed,
		cooldown:  cfg.Cooldown,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Allow reports whether a call may proceed. In HALF_OPEN exactly one
// caller gets the probe permit; it must be settled by RecordSuccess,
// RecordFailure or Release.
func (cb *CircuitBreaker) Allow() bool {
	cb.mutex.Lock()
	from := cb.state
	cb.advanceLocked()

	allowed := false
	switch cb.state {
	case StateClosed:
		allowed = true
	case StateHalfOpen:
		if !cb.probing {
			cb.probing = true
			allowed = true
		}
	}
	to := cb.state
	cb.mutex.Unlock()

	cb.notify(from, to)
	return allowed
}

// Release hands back an unused probe permit, for callers that gave up
// before the probe produced an outcome.
func (cb *CircuitBreaker) Release() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	if cb.state == StateHalfOpen {
		cb.probing = false
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	from := cb.state
	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.failures = 0
		cb.probing = false
		cb.cooldown = cb.cfg.Cooldown
		cb.nextRetry = time.Time{}
		cb.state = StateClosed
	}
	// A late success while OPEN changes nothing: the cooldown still applies.
	to := cb.state
	cb.mutex.Unlock()

	cb.notify(from, to)
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	now := cb.now()
	from := cb.state
	switch cb.state {
	case StateClosed:
		if cb.failures == 0 || now.Sub(cb.firstFailure) > cb.cfg.Window {
			cb.failures = 0
			cb.firstFailure = now
		}
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.openLocked(now)
		}
	case StateHalfOpen:
		cb.failures++
		cb.probing = false
		cb.cooldown = min(cb.cooldown*2, cb.cfg.MaxCooldown)
		cb.openLocked(now)
	}
	to := cb.state
	cb.mutex.Unlock()

	cb.notify(from, to)
}

// State reports the current state. An OPEN breaker whose cooldown has
// elapsed reports HALF_OPEN.
func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	from := cb.state
	cb.advanceLocked()
	to := cb.state
	cb.mutex.Unlock()

	cb.notify(from, to)
	return to
}

func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mutex.Lock()
	from := cb.state
	cb.advanceLocked()
	snap := Snapshot{
		State:               cb.state,
		ConsecutiveFailures: cb.failures,
		NextRetry:           cb.nextRetry,
		Cooldown:            cb.cooldown,
	}
	cb.mutex.Unlock()

	cb.notify(from, snap.State)
	return snap
}

// Reset forces the breaker back to CLOSED with the base cooldown.
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failures = 0
	cb.probing = false
	cb.cooldown = cb.cfg.Cooldown
	cb.nextRetry = time.Time{}
	cb.mutex.Unlock()

	cb.notify(from, StateClosed)
}

func (cb *CircuitBreaker) BackendID() string {
	return cb.backendID
}

func (cb *CircuitBreaker) openLocked(now time.Time) {
	cb.state = StateOpen
	cb.nextRetry = now.Add(cb.cooldown)
}

func (cb *CircuitBreaker) advanceLocked() {
	if cb.state == StateOpen && !cb.now().Before(cb.nextRetry) {
		cb.state = StateHalfOpen
		cb.probing = false
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.onTransition != nil {
		cb.onTransition(cb.backendID, from, to)
	}
}
