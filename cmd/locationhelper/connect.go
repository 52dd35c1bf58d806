package main

import (
	"context"
	"log/slog"
	"time"
)

// connectable is satisfied by every gps.Provider.
type connectable interface {
	Connect() error
	Close() error
}

// connectWithRetry attempts to connect with exponential backoff.
// Starts at 1s, doubles each attempt up to 60s, logs every attempt up to
// maxAttempts then keeps retrying at max interval indefinitely.
func connectWithRetry(ctx context.Context, log *slog.Logger, name string, c connectable, maxAttempts int) {
	delay := 1 * time.Second
	maxDelay := 60 * time.Second
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := c.Connect()
		if err == nil {
			log.Info("connected", "device", name, "attempt", attempt+1)
			return
		}

		attempt++
		if attempt <= maxAttempts {
			log.Warn("connect failed", "device", name, "attempt", attempt, "max", maxAttempts, "error", err, "retry_in", delay)
		} else {
			log.Debug("connect failed", "device", name, "attempt", attempt, "error", err, "retry_in", delay)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay = min(delay*2, maxDelay)
	}
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
