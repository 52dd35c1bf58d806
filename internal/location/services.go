package location

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaunagostinho/locationhelper/internal/task"
)

// Sentinel errors surfaced inside Failed.
var (
	// ErrNoFix is reported when a one-shot request completes without a location.
	ErrNoFix = errors.New("location: no fix available")

	// ErrInvalidAccuracy is reported for a non-positive viable-accuracy threshold.
	ErrInvalidAccuracy = errors.New("location: accuracy threshold must be > 0")
)

// PermissionChecker reports OS-granted permission state.
type PermissionChecker interface {
	CheckGranted(p Permission) bool
}

// ProviderChecker reports whether a location provider is switched on.
type ProviderChecker interface {
	IsProviderEnabled(provider string) bool
}

// SettingsState describes which providers are usable after a successful check.
type SettingsState struct {
	GPSUsable      bool
	ImprovedUsable bool
}

// SettingsClient checks device settings against a request asynchronously.
// A failed check completes with a *SettingsError or any other error.
type SettingsClient interface {
	CheckLocationSettings(req SettingsRequest, token *task.Token) *task.Task[SettingsState]
}

// UpdateHandle identifies an active update subscription.
type UpdateHandle int64

// UpdateFunc receives batches of fixes, newest last, on a platform goroutine.
type UpdateFunc func(fixes []Fix)

// LocationClient is the fused location service.
type LocationClient interface {
	RequestLocationUpdates(req Request, fn UpdateFunc) (UpdateHandle, error)
	RemoveLocationUpdates(h UpdateHandle)
	CurrentLocation(p Priority, token *task.Token) *task.Task[*Fix]
}

// SettingsStatus classifies a settings-check failure.
type SettingsStatus int

const (
	StatusInternal SettingsStatus = iota
	StatusResolutionRequired
	StatusSettingsChangeUnavailable
)

func (s SettingsStatus) String() string {
	switch s {
	case StatusResolutionRequired:
		return "RESOLUTION_REQUIRED"
	case StatusSettingsChangeUnavailable:
		return "SETTINGS_CHANGE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

// SettingsError is a classified settings-check failure.
type SettingsError struct {
	Status     SettingsStatus
	Resolution Resolution // Set for StatusResolutionRequired
	Err        error
}

func (e *SettingsError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("settings check %s: %v", e.Status, e.Err)
	}
	return "settings check " + e.Status.String()
}

func (e *SettingsError) Unwrap() error { return e.Err }

// Resolution is an opaque handle to a settings change the platform can make
// once the user agrees to it.
type Resolution interface {
	// Description says what the change does, for prompting the user.
	Description() string
	// StartResolution applies the change. It is the caller's decision to call it.
	StartResolution(ctx context.Context) error
}
