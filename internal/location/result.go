package location

import "fmt"

// Result is the outcome of one acquisition. It is a closed set: Success,
// Failed, NoPermission, ProviderDisabled, NotResolvable and Resolvable.
// Consumers switch over every variant; see KindOf.
type Result interface {
	isResult()
}

// Success carries the acquired fix.
type Success struct {
	Fix Fix
}

// Failed carries the underlying platform error for diagnostics. Err may be nil.
type Failed struct {
	Err error
}

// NoPermission means coarse or fine location access is not granted.
type NoPermission struct{}

// ProviderDisabled means the primary location provider is switched off.
type ProviderDisabled struct{}

// NotResolvable means device settings cannot satisfy the request and no
// user-mediated change can fix them.
type NotResolvable struct{}

// Resolvable means settings are unsatisfied but the platform can change them
// with the user's consent through Resolution.
type Resolvable struct {
	Resolution Resolution
}

func (Success) isResult()          {}
func (Failed) isResult()           {}
func (NoPermission) isResult()     {}
func (ProviderDisabled) isResult() {}
func (NotResolvable) isResult()    {}
func (Resolvable) isResult()       {}

func (f Failed) Error() string {
	if f.Err == nil {
		return "location: failed"
	}
	return "location: failed: " + f.Err.Error()
}

func (f Failed) Unwrap() error { return f.Err }

// Kind names a Result variant.
type Kind int

const (
	KindUnknown Kind = iota
	KindSuccess
	KindFailed
	KindNoPermission
	KindProviderDisabled
	KindNotResolvable
	KindResolvable
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindFailed:
		return "failed"
	case KindNoPermission:
		return "no_permission"
	case KindProviderDisabled:
		return "provider_disabled"
	case KindNotResolvable:
		return "not_resolvable"
	case KindResolvable:
		return "resolvable"
	default:
		return "unknown"
	}
}

// KindOf classifies r. Pointer forms of the variants are accepted.
func KindOf(r Result) Kind {
	switch r.(type) {
	case Success, *Success:
		return KindSuccess
	case Failed, *Failed:
		return KindFailed
	case NoPermission, *NoPermission:
		return KindNoPermission
	case ProviderDisabled, *ProviderDisabled:
		return KindProviderDisabled
	case NotResolvable, *NotResolvable:
		return KindNotResolvable
	case Resolvable, *Resolvable:
		return KindResolvable
	default:
		return KindUnknown
	}
}

// Describe renders r for logs and CLI output.
func Describe(r Result) (string, error) {
	switch v := r.(type) {
	case Success:
		return "success: " + v.Fix.String(), nil
	case Failed:
		return v.Error(), nil
	case NoPermission:
		return "no permission", nil
	case ProviderDisabled:
		return "gps provider disabled", nil
	case NotResolvable:
		return "location settings not resolvable", nil
	case Resolvable:
		return "location settings resolvable: " + v.Resolution.Description(), nil
	default:
		return "", fmt.Errorf("location: unknown result %T", r)
	}
}
