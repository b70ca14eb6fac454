// Package resilience classifies remote failures and tracks per-service health.
package resilience

import (
	"sync"
	"time"
)

// CircuitState represents the observed health of a service.
type CircuitState int

const (
	// CircuitClosed is the normal state.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the failure threshold was reached recently.
	CircuitOpen
	// CircuitHalfOpen means the reset timeout elapsed since the last failure
	// and the next outcome decides the state.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// HealthConfig controls when a tracker reports a service as open.
type HealthConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// tracker reports open. Default: 3.
	FailureThreshold int

	// ResetTimeout is how long after the last failure an open tracker
	// reports half-open. Default: 60s.
	ResetTimeout time.Duration

	// OnStateChange is called when the observed state changes.
	OnStateChange func(from, to CircuitState)
}

// DefaultHealthConfig returns sensible defaults.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		FailureThreshold: 3,
		ResetTimeout:     60 * time.Second,
	}
}

// HealthConfigFrom converts config values to a HealthConfig, keeping defaults
// for non-positive inputs.
func HealthConfigFrom(failureThreshold, resetTimeoutSecs int) HealthConfig {
	cfg := DefaultHealthConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}

// HealthTracker is a circuit breaker that only observes. It never rejects a
// call; callers record outcomes and read State for reporting.
type HealthTracker struct {
	cfg   HealthConfig
	mu    sync.Mutex
	state CircuitState

	consecutiveFailures int
	lastFailureTime     time.Time

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewHealthTracker creates a tracker with the given config.
func NewHealthTracker(cfg HealthConfig) *HealthTracker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	return &HealthTracker{cfg: cfg, state: CircuitClosed, nowFunc: time.Now}
}

// Record registers the outcome of one call. A nil err is a success.
func (h *HealthTracker) Record(err error) CircuitState {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err == nil {
		h.consecutiveFailures = 0
		h.transition(CircuitClosed)
		return h.state
	}

	h.consecutiveFailures++
	h.lastFailureTime = h.nowFunc()
	if h.state == CircuitHalfOpen || h.consecutiveFailures >= h.cfg.FailureThreshold {
		h.transition(CircuitOpen)
	}
	return h.state
}

// State returns the observed state, promoting open to half-open once the
// reset timeout has elapsed.
func (h *HealthTracker) State() CircuitState {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == CircuitOpen && h.nowFunc().Sub(h.lastFailureTime) >= h.cfg.ResetTimeout {
		h.transition(CircuitHalfOpen)
	}
	return h.state
}

// ConsecutiveFailures returns the current failure streak.
func (h *HealthTracker) ConsecutiveFailures() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.consecutiveFailures
}

// Reset forces the tracker back to closed.
func (h *HealthTracker) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFailures = 0
	h.transition(CircuitClosed)
}

func (h *HealthTracker) transition(to CircuitState) {
	from := h.state
	if from == to {
		return
	}
	h.state = to
	if h.cfg.OnStateChange != nil {
		h.cfg.OnStateChange(from, to)
	}
}

// ServiceHealth manages health trackers for multiple services.
type ServiceHealth struct {
	mu       sync.RWMutex
	trackers map[string]*HealthTracker
	cfg      HealthConfig
}

// NewServiceHealth creates a registry of per-service trackers.
func NewServiceHealth(cfg HealthConfig) *ServiceHealth {
	return &ServiceHealth{
		trackers: make(map[string]*HealthTracker),
		cfg:      cfg,
	}
}

// Get returns the tracker for the named service, creating one if needed.
func (sh *ServiceHealth) Get(service string) *HealthTracker {
	sh.mu.RLock()
	t, ok := sh.trackers[service]
	sh.mu.RUnlock()
	if ok {
		return t
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if t, ok = sh.trackers[service]; ok {
		return t
	}
	t = NewHealthTracker(sh.cfg)
	sh.trackers[service] = t
	return t
}

// States returns a snapshot of all observed states.
func (sh *ServiceHealth) States() map[string]CircuitState {
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	states := make(map[string]CircuitState, len(sh.trackers))
	for name, t := range sh.trackers {
		states[name] = t.State()
	}
	return states
}
