package location

import (
	"fmt"
	"time"
)

// Permission identifies a runtime permission the caller must hold.
type Permission string

const (
	PermissionCoarseLocation Permission = "ACCESS_COARSE_LOCATION"
	PermissionFineLocation   Permission = "ACCESS_FINE_LOCATION"
)

// Provider names understood by ProviderChecker.
const (
	ProviderGPS     = "gps"
	ProviderPassive = "passive"
)

// Priority is the accuracy/power class of a request.
type Priority int

const (
	PriorityHighAccuracy          Priority = 100
	PriorityBalancedPowerAccuracy Priority = 102
	PriorityLowPower              Priority = 104
	PriorityNoPower               Priority = 105
)

func (p Priority) String() string {
	switch p {
	case PriorityHighAccuracy:
		return "high_accuracy"
	case PriorityBalancedPowerAccuracy:
		return "balanced_power_accuracy"
	case PriorityLowPower:
		return "low_power"
	case PriorityNoPower:
		return "no_power"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority accepts the names produced by Priority.String.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "high_accuracy", "high":
		return PriorityHighAccuracy, nil
	case "balanced_power_accuracy", "balanced":
		return PriorityBalancedPowerAccuracy, nil
	case "low_power", "low":
		return PriorityLowPower, nil
	case "no_power", "passive":
		return PriorityNoPower, nil
	default:
		return 0, fmt.Errorf("location: unknown priority %q", s)
	}
}

// Request is the profile used for continuous updates and the settings check.
type Request struct {
	Priority        Priority
	Interval        time.Duration // Desired update interval
	FastestInterval time.Duration // Updates are never delivered faster than this
}

// DefaultRequest is a high-accuracy profile polling every 3s, at most every 1s.
func DefaultRequest() Request {
	return Request{
		Priority:        PriorityHighAccuracy,
		Interval:        3 * time.Second,
		FastestInterval: time.Second,
	}
}

// SettingsRequest describes the requests device settings must satisfy.
type SettingsRequest struct {
	Requests []Request
}

// NewSettingsRequest builds a settings request covering reqs.
func NewSettingsRequest(reqs ...Request) SettingsRequest {
	out := make([]Request, len(reqs))
	copy(out, reqs)
	return SettingsRequest{Requests: out}
}

// HighestPriority returns the most demanding priority in the request.
// An empty request demands nothing and reports PriorityNoPower.
func (s SettingsRequest) HighestPriority() Priority {
	best := PriorityNoPower
	for _, r := range s.Requests {
		if r.Priority < best {
			best = r.Priority
		}
	}
	return best
}
