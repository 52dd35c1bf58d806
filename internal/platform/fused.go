package platform

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/shaunagostinho/locationhelper/internal/gps"
	"github.com/shaunagostinho/locationhelper/internal/location"
	"github.com/shaunagostinho/locationhelper/internal/task"
)

// Defaults for FusedConfig.
const (
	DefaultMaxWait      = 30 * time.Second
	DefaultPollInterval = time.Second
)

// ErrClientClosed is returned for requests made after Close.
var ErrClientClosed = errors.New("platform: fused client closed")

// FusedConfig tunes a FusedClient.
type FusedConfig struct {
	// UERE converts receiver HDOP into an accuracy radius (meters).
	UERE float64
	// MaxWait bounds a one-shot request; it completes with no fix afterwards.
	MaxWait time.Duration
	// PollInterval is how often a one-shot request reads the receiver.
	PollInterval time.Duration
}

// FusedClient serves location requests from a GNSS receiver. Each update
// subscription gets its own dispatch goroutine, which invokes the callback.
type FusedClient struct {
	recv gps.Provider
	cfg  FusedConfig
	log  *slog.Logger

	mu     sync.Mutex
	next   location.UpdateHandle
	subs   map[location.UpdateHandle]chan struct{}
	last   *location.Fix
	closed bool
	wg     sync.WaitGroup
}

// NewFusedClient creates a client reading from recv.
func NewFusedClient(recv gps.Provider, cfg FusedConfig, logger *slog.Logger) *FusedClient {
	if cfg.UERE <= 0 {
		cfg.UERE = gps.DefaultUERE
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultMaxWait
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FusedClient{
		recv: recv,
		cfg:  cfg,
		log:  logger.With("component", "fused"),
		subs: make(map[location.UpdateHandle]chan struct{}),
	}
}

// RequestLocationUpdates starts delivering fixes to fn at req.Interval, never
// faster than req.FastestInterval.
func (c *FusedClient) RequestLocationUpdates(req location.Request, fn location.UpdateFunc) (location.UpdateHandle, error) {
	if fn == nil {
		return 0, fmt.Errorf("%w: nil callback", ErrInvalidRequest)
	}
	interval := max(req.Interval, req.FastestInterval)
	if interval <= 0 {
		return 0, fmt.Errorf("%w: interval %v", ErrInvalidRequest, req.Interval)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClientClosed
	}
	c.next++
	h := c.next
	stop := make(chan struct{})
	c.subs[h] = stop

	c.wg.Add(1)
	go c.dispatch(h, stop, interval, fn)
	c.log.Debug("updates requested", "handle", h, "interval", interval, "priority", req.Priority)
	return h, nil
}

// RemoveLocationUpdates stops the subscription. Unknown handles are ignored.
func (c *FusedClient) RemoveLocationUpdates(h location.UpdateHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stop, ok := c.subs[h]; ok {
		close(stop)
		delete(c.subs, h)
		c.log.Debug("updates removed", "handle", h)
	}
}

// ActiveSubscriptions returns the number of live update subscriptions.
func (c *FusedClient) ActiveSubscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *FusedClient) dispatch(h location.UpdateHandle, stop <-chan struct{}, interval time.Duration, fn location.UpdateFunc) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if fix, ok := c.read(); ok {
			select {
			case <-stop:
				return
			default:
			}
			fn([]location.Fix{fix})
		}

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// CurrentLocation reads the receiver until it reports a valid fix or MaxWait
// elapses, in which case the task completes with a nil fix. NoPower requests
// return the last fix this client saw without touching the receiver.
func (c *FusedClient) CurrentLocation(p location.Priority, token *task.Token) *task.Task[*location.Fix] {
	t, done := task.New[*location.Fix]()
	token.OnCanceled(func() {
		done.Complete(nil, task.ErrCanceled)
	})

	c.mu.Lock()
	closed := c.closed
	last := c.last
	c.mu.Unlock()
	switch {
	case closed:
		done.Complete(nil, ErrClientClosed)
		return t
	case p == location.PriorityNoPower:
		if last != nil {
			cp := *last
			last = &cp
		}
		done.Complete(last, nil)
		return t
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		deadline := time.NewTimer(c.cfg.MaxWait)
		defer deadline.Stop()
		ticker := time.NewTicker(c.cfg.PollInterval)
		defer ticker.Stop()

		for {
			if fix, ok := c.read(); ok {
				done.Complete(&fix, nil)
				return
			}
			select {
			case <-token.Done():
				return
			case <-deadline.C:
				c.log.Info("no fix before deadline", "max_wait", c.cfg.MaxWait)
				done.Complete(nil, nil)
				return
			case <-ticker.C:
			}
		}
	}()
	return t
}

// Close stops every subscription and waits for dispatch goroutines to exit.
// Pending one-shot requests finish at their deadline or on cancellation.
func (c *FusedClient) Close() {
	c.mu.Lock()
	c.closed = true
	for h, stop := range c.subs {
		close(stop)
		delete(c.subs, h)
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *FusedClient) read() (location.Fix, bool) {
	data, err := c.recv.Read()
	if err != nil {
		c.log.Debug("receiver read failed", "error", err)
		return location.Fix{}, false
	}
	if data == nil || !data.Valid {
		return location.Fix{}, false
	}
	fix := toFix(data, c.cfg.UERE)
	if math.IsInf(fix.Accuracy, 1) {
		// No HDOP yet: the fix has no usable error estimate.
		return location.Fix{}, false
	}

	c.mu.Lock()
	c.last = &fix
	c.mu.Unlock()
	return fix, true
}

func toFix(d *gps.Data, uere float64) location.Fix {
	ts := d.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	speed := d.Speed / 3.6 // km/h to m/s
	bearing := d.Heading
	fix := location.Fix{
		Latitude:  d.Latitude,
		Longitude: d.Longitude,
		Accuracy:  d.HorizontalAccuracy(uere),
		Time:      ts,
		Provider:  location.ProviderGPS,
		Speed:     &speed,
		Bearing:   &bearing,
	}
	if d.HasAltitude() {
		alt := d.Altitude
		fix.Altitude = &alt
	}
	return fix
}
