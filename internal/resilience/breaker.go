package resilience

import (
	"sync"
	"time"
)

// State is the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// BreakerConfig holds the breaker thresholds
type BreakerConfig struct {
	FailThreshold    int
	Window           time.Duration
	Cooldown         time.Duration
	HalfOpenMaxCalls int
}

// DefaultBreakerConfig returns 5 failures in 30s, 20s cooldown, 2 trial calls
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailThreshold:    5,
		Window:           30 * time.Second,
		Cooldown:         20 * time.Second,
		HalfOpenMaxCalls: 2,
	}
}

// TransitionFunc observes breaker state changes. It runs outside the breaker lock.
type TransitionFunc func(channel, provider string, from, to State, reason string)

// Breaker tracks failures for one (channel, provider) pair
type Breaker struct {
	channel  string
	provider string
	cfg      BreakerConfig
	now      func() time.Time
	onChange TransitionFunc

	mu            sync.Mutex
	state         State
	failures      []time.Time
	openedAt      time.Time
	halfOpenCalls int
	successes     uint64
	failed        uint64
}

func newBreaker(channel, provider string, cfg BreakerConfig, now func() time.Time, onChange TransitionFunc) *Breaker {
	return &Breaker{
		channel:  channel,
		provider: provider,
		cfg:      cfg,
		now:      now,
		onChange: onChange,
		failures: make([]time.Time, 0, cfg.FailThreshold),
	}
}

// AllowCall reports whether a call may proceed. An open breaker whose cooldown
// has elapsed moves to half-open here; half-open grants a bounded number of trials.
func (b *Breaker) AllowCall() bool {
	b.mu.Lock()

	switch b.state {
	case StateClosed:
		b.mu.Unlock()
		return true

	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			b.mu.Unlock()
			return false
		}
		b.state = StateHalfOpen
		b.halfOpenCalls = 0
		b.mu.Unlock()
		b.notify(StateOpen, StateHalfOpen, "cooldown elapsed")
		return true

	case StateHalfOpen:
		defer b.mu.Unlock()
		if b.halfOpenCalls < b.cfg.HalfOpenMaxCalls {
			b.halfOpenCalls++
			return true
		}
		return false
	}

	b.mu.Unlock()
	return false
}

// ReleaseCall hands back a call that ended without a verdict on the provider,
// such as a caller giving up. In half-open it frees the trial slot.
func (b *Breaker) ReleaseCall() {
	b.mu.Lock()
	if b.state == StateHalfOpen && b.halfOpenCalls > 0 {
		b.halfOpenCalls--
	}
	b.mu.Unlock()
}

// RecordSuccess clears the failure window and closes the breaker
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	from := b.state
	b.failures = b.failures[:0]
	b.state = StateClosed
	b.halfOpenCalls = 0
	b.successes++
	b.mu.Unlock()

	if from != StateClosed {
		b.notify(from, StateClosed, "success")
	}
}

// RecordFailure adds a failure to the window and opens the breaker when the
// threshold is reached or when a half-open trial fails.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	now := b.now()
	b.failed++
	b.prune(now)
	b.failures = append(b.failures, now)
	if extra := len(b.failures) - b.cfg.FailThreshold; extra > 0 {
		b.failures = append(b.failures[:0], b.failures[extra:]...)
	}

	from := b.state
	var reason string
	switch {
	case b.state == StateHalfOpen:
		reason = "half-open trial failed"
	case b.state == StateClosed && len(b.failures) >= b.cfg.FailThreshold:
		reason = "failure threshold reached"
	default:
		b.mu.Unlock()
		return
	}
	b.state = StateOpen
	b.openedAt = now
	b.mu.Unlock()

	b.notify(from, StateOpen, reason)
}

// State returns the current state without evaluating the cooldown
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Status is a point-in-time view of a breaker
type Status struct {
	Channel        string    `json:"channel"`
	Provider       string    `json:"provider"`
	State          string    `json:"state"`
	RecentFailures int       `json:"recent_failures"`
	OpenedAt       time.Time `json:"opened_at,omitempty"`
	Successes      uint64    `json:"successes"`
	Failures       uint64    `json:"failures"`
}

// Status returns a snapshot of the breaker
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(b.now())

	s := Status{
		Channel:        b.channel,
		Provider:       b.provider,
		State:          b.state.String(),
		RecentFailures: len(b.failures),
		Successes:      b.successes,
		Failures:       b.failed,
	}
	if b.state != StateClosed {
		s.OpenedAt = b.openedAt
	}
	return s
}

// prune drops failures older than the window. Caller holds mu.
func (b *Breaker) prune(now time.Time) {
	keep := 0
	for _, t := range b.failures {
		if now.Sub(t) <= b.cfg.Window {
			b.failures[keep] = t
			keep++
		}
	}
	b.failures = b.failures[:keep]
}

func (b *Breaker) notify(from, to State, reason string) {
	if b.onChange != nil {
		b.onChange(b.channel, b.provider, from, to, reason)
	}
}
