package location

import (
	"context"
	"errors"

	"github.com/shaunagostinho/locationhelper/internal/task"
)

// auditOutcome gates acquisition. A nil failure means settings passed.
type auditOutcome struct {
	failure Result
}

func (a auditOutcome) passed() bool { return a.failure == nil }

func auditFailed(r Result) auditOutcome { return auditOutcome{failure: r} }

// audit checks permission, provider state and device settings in that order.
// Only the settings check reaches a platform service.
func (h *Helper) audit(ctx context.Context) (auditOutcome, error) {
	if !h.IsPermissionEnabled() {
		return auditFailed(NoPermission{}), nil
	}
	if !h.svc.Providers.IsProviderEnabled(ProviderGPS) {
		return auditFailed(ProviderDisabled{}), nil
	}

	src := task.NewCancellationTokenSource()
	slot := newOneShot[auditOutcome]()
	h.svc.Settings.CheckLocationSettings(h.settingsRequest, src.Token()).
		OnComplete(func(_ SettingsState, err error) {
			slot.offer(classifySettings(err))
		})

	outcome, err := slot.wait(ctx)
	if err != nil {
		src.Cancel()
		h.log.Debug("settings check cancelled", "error", err)
		return auditOutcome{}, err
	}
	return outcome, nil
}

func classifySettings(err error) auditOutcome {
	if err == nil {
		return auditOutcome{}
	}
	var se *SettingsError
	if errors.As(err, &se) {
		switch se.Status {
		case StatusResolutionRequired:
			if se.Resolution != nil {
				return auditFailed(Resolvable{Resolution: se.Resolution})
			}
		case StatusSettingsChangeUnavailable:
			return auditFailed(NotResolvable{})
		case StatusInternal:
		}
	}
	return auditFailed(Failed{Err: err})
}
