package resilience

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

type breakerKey struct {
	channel  string
	provider string
}

// Registry owns the breakers of one process. Breakers are created on first use
// and live as long as the registry.
type Registry struct {
	cfg      BreakerConfig
	now      func() time.Time
	logger   *slog.Logger
	onChange []TransitionFunc

	mu       sync.RWMutex
	breakers map[breakerKey]*Breaker
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// WithLogger sets the logger used for state transitions
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithTransitionHook adds an observer of breaker state changes
func WithTransitionHook(fn TransitionFunc) RegistryOption {
	return func(r *Registry) {
		r.onChange = append(r.onChange, fn)
	}
}

// NewRegistry creates an empty registry
func NewRegistry(cfg BreakerConfig, opts ...RegistryOption) *Registry {
	if cfg.FailThreshold < 1 {
		cfg.FailThreshold = 1
	}
	if cfg.HalfOpenMaxCalls < 1 {
		cfg.HalfOpenMaxCalls = 1
	}

	r := &Registry{
		cfg:      cfg,
		now:      time.Now,
		logger:   slog.Default(),
		breakers: make(map[breakerKey]*Breaker),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the breaker for (channel, provider), creating it if needed
func (r *Registry) Get(channel, provider string) *Breaker {
	key := breakerKey{channel: channel, provider: provider}

	r.mu.RLock()
	b, ok := r.breakers[key]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[key]; ok {
		return b
	}
	b = newBreaker(channel, provider, r.cfg, r.now, r.transition)
	r.breakers[key] = b
	return b
}

// Snapshot returns the status of every breaker, sorted by channel then provider
func (r *Registry) Snapshot() []Status {
	r.mu.RLock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.RUnlock()

	out := make([]Status, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, b.Status())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Channel != out[j].Channel {
			return out[i].Channel < out[j].Channel
		}
		return out[i].Provider < out[j].Provider
	})
	return out
}

func (r *Registry) transition(channel, provider string, from, to State, reason string) {
	logFn := r.logger.Info
	msg := "breaker closed"
	switch to {
	case StateOpen:
		logFn = r.logger.Warn
		msg = "breaker opened"
	case StateHalfOpen:
		msg = "breaker half-open"
	}
	logFn(msg,
		"channel", channel,
		"provider", provider,
		"from", from.String(),
		"reason", reason,
	)

	for _, fn := range r.onChange {
		fn(channel, provider, from, to, reason)
	}
}
