package gps

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Default breaker settings.
const (
	defaultBreakerMaxFailures uint32        = 5
	defaultBreakerTimeout     time.Duration = 10 * time.Second
)

// BreakerConfig configures when a failing receiver is taken out of the read
// path.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive read errors that opens the circuit.
	MaxFailures uint32 `yaml:"max_failures" json:"maxFailures"`
	// Timeout is how long the circuit stays open before one probe read.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// BreakerProvider wraps a Provider so that a receiver that keeps failing
// (unplugged, wrong baud rate) fails fast instead of blocking every read on
// its serial timeout.
type BreakerProvider struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker[*Data]
}

// NewBreaker wraps inner with a circuit breaker. Zero config fields take
// defaults.
func NewBreaker(inner Provider, cfg BreakerConfig, logger *slog.Logger) *BreakerProvider {
	if logger == nil {
		logger = slog.Default()
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}

	cb := gobreaker.NewCircuitBreaker[*Data](gobreaker.Settings{
		Name:        "gps:" + inner.Name(),
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("receiver breaker state change",
				"component", "gps",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return &BreakerProvider{inner: inner, breaker: cb}
}

func (b *BreakerProvider) Name() string   { return b.inner.Name() }
func (b *BreakerProvider) Connect() error { return b.inner.Connect() }
func (b *BreakerProvider) Close() error   { return b.inner.Close() }

// Present delegates to the wrapped receiver when it can tell.
func (b *BreakerProvider) Present() bool {
	if p, ok := b.inner.(interface{ Present() bool }); ok {
		return p.Present()
	}
	return true
}

func (b *BreakerProvider) Read() (*Data, error) {
	data, err := b.breaker.Execute(b.inner.Read)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, fmt.Errorf("receiver %q circuit open: %w", b.inner.Name(), err)
	}
	return data, err
}

// State returns the breaker state for diagnostics.
func (b *BreakerProvider) State() gobreaker.State {
	return b.breaker.State()
}
