package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shaunagostinho/locationhelper/internal/location"
	"github.com/shaunagostinho/locationhelper/internal/task"
)

var (
	// ErrNoReceiver means no GNSS receiver hardware is present.
	ErrNoReceiver = errors.New("platform: no gnss receiver present")

	// ErrInvalidRequest means a settings request carried no usable profile.
	ErrInvalidRequest = errors.New("platform: invalid location request")

	// ErrManaged means device settings are locked by policy.
	ErrManaged = errors.New("platform: location settings are managed")
)

// Receiver reports whether receiver hardware is attached.
type Receiver interface {
	Present() bool
}

// SettingsClient checks device settings against location requests. Checks
// run on their own goroutine and complete the returned task from there.
type SettingsClient struct {
	store    *SettingsStore
	receiver Receiver
	log      *slog.Logger
}

// NewSettingsClient creates a settings client. receiver may be nil when no
// receiver is configured.
func NewSettingsClient(store *SettingsStore, receiver Receiver, logger *slog.Logger) *SettingsClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsClient{
		store:    store,
		receiver: receiver,
		log:      logger.With("component", "settings"),
	}
}

func (c *SettingsClient) CheckLocationSettings(req location.SettingsRequest, token *task.Token) *task.Task[location.SettingsState] {
	t, done := task.New[location.SettingsState]()
	token.OnCanceled(func() {
		done.Complete(location.SettingsState{}, task.ErrCanceled)
	})

	go func() {
		state, err := c.check(req)
		if done.Complete(state, err) {
			c.log.Debug("settings check complete", "priority", req.HighestPriority(), "error", err)
		}
	}()
	return t
}

func (c *SettingsClient) check(req location.SettingsRequest) (location.SettingsState, error) {
	if err := validate(req); err != nil {
		return location.SettingsState{}, &location.SettingsError{Status: location.StatusInternal, Err: err}
	}
	if c.receiver == nil || !c.receiver.Present() {
		return location.SettingsState{}, &location.SettingsError{
			Status: location.StatusSettingsChangeUnavailable,
			Err:    ErrNoReceiver,
		}
	}

	d := c.store.Get()
	state := location.SettingsState{
		GPSUsable:      d.GPSEnabled,
		ImprovedUsable: d.ImprovedAccuracy,
	}

	var fix settingsResolution
	switch p := req.HighestPriority(); p {
	case location.PriorityHighAccuracy:
		fix.enableGPS = !d.GPSEnabled
		fix.enableImproved = !d.ImprovedAccuracy
	case location.PriorityBalancedPowerAccuracy, location.PriorityLowPower:
		fix.enableGPS = !d.GPSEnabled && !d.ImprovedAccuracy
	case location.PriorityNoPower:
	default:
		return state, &location.SettingsError{
			Status: location.StatusInternal,
			Err:    fmt.Errorf("%w: priority %v", ErrInvalidRequest, p),
		}
	}

	if !fix.needed() {
		return state, nil
	}
	if d.Managed {
		return state, &location.SettingsError{Status: location.StatusSettingsChangeUnavailable, Err: ErrManaged}
	}
	fix.store = c.store
	return state, &location.SettingsError{Status: location.StatusResolutionRequired, Resolution: &fix}
}

func validate(req location.SettingsRequest) error {
	if len(req.Requests) == 0 {
		return ErrInvalidRequest
	}
	for _, r := range req.Requests {
		if r.Interval <= 0 || r.FastestInterval < 0 {
			return fmt.Errorf("%w: interval %v, fastest %v", ErrInvalidRequest, r.Interval, r.FastestInterval)
		}
	}
	return nil
}

// settingsResolution switches on whatever the failed check found missing.
type settingsResolution struct {
	store          *SettingsStore
	enableGPS      bool
	enableImproved bool
}

func (r *settingsResolution) needed() bool {
	return r.enableGPS || r.enableImproved
}

func (r *settingsResolution) Description() string {
	var parts []string
	if r.enableGPS {
		parts = append(parts, "turn on GPS")
	}
	if r.enableImproved {
		parts = append(parts, "turn on improved location accuracy")
	}
	return strings.Join(parts, " and ")
}

func (r *settingsResolution) StartResolution(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.store.Get().Managed {
		return ErrManaged
	}
	_, err := r.store.Update(func(d *DeviceSettings) {
		if r.enableGPS {
			d.GPSEnabled = true
		}
		if r.enableImproved {
			d.ImprovedAccuracy = true
		}
	})
	return err
}
