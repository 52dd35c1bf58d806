// Package location turns callback-driven platform location services into
// single, cancellable acquisitions that yield exactly one Result.
package location

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"github.com/shaunagostinho/locationhelper/internal/task"
	"github.com/shaunagostinho/locationhelper/internal/tracer"
)

// DefaultAccuracy is the viable-location threshold in meters.
const DefaultAccuracy = 100.0

// Services are the platform collaborators a Helper drives.
type Services struct {
	Permissions PermissionChecker
	Providers   ProviderChecker
	Settings    SettingsClient
	Locations   LocationClient
}

// Helper coordinates permission checks, the settings audit and the location
// request. Its request profile is fixed at construction and shared read-only
// by concurrent calls.
type Helper struct {
	svc             Services
	log             *slog.Logger
	request         Request
	settingsRequest SettingsRequest
}

// Option customizes a Helper.
type Option func(*Helper)

// WithRequest replaces the default request profile.
func WithRequest(r Request) Option {
	return func(h *Helper) { h.request = r }
}

// NewHelper creates a Helper over svc.
func NewHelper(svc Services, logger *slog.Logger, opts ...Option) *Helper {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Helper{
		svc:     svc,
		log:     logger.With("component", "location"),
		request: DefaultRequest(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.settingsRequest = NewSettingsRequest(h.request)
	return h
}

// RequiredPermissions lists the permissions callers must request before
// acquiring a location.
func RequiredPermissions() []Permission {
	return []Permission{PermissionCoarseLocation, PermissionFineLocation}
}

// IsPermissionEnabled reports whether both coarse and fine location are granted.
func (h *Helper) IsPermissionEnabled() bool {
	fine := h.svc.Permissions.CheckGranted(PermissionFineLocation)
	coarse := h.svc.Permissions.CheckGranted(PermissionCoarseLocation)
	return fine && coarse
}

// Request returns the request profile used for updates and the settings check.
func (h *Helper) Request() Request {
	return h.request
}

// ViableLocation waits for the first update whose accuracy is within
// accuracy meters. Within a batch the earliest viable fix wins. There is no
// internal timeout: bound ctx to give up.
// The error is non-nil only when ctx ended first, in which case no Result
// is produced.
func (h *Helper) ViableLocation(ctx context.Context, accuracy float64) (Result, error) {
	ctx, span := tracer.StartSpan(ctx, "location.ViableLocation")
	defer span.End()
	span.SetAttributes(tracer.Float64Attr("accuracy", accuracy))

	id := ulid.Make().String()
	log := h.log.With("op", "viable", "id", id)

	if !(accuracy > 0) { // NaN included
		return Failed{Err: ErrInvalidAccuracy}, nil
	}

	audit, err := h.audit(ctx)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	if !audit.passed() {
		log.Info("audit failed", "result", KindOf(audit.failure))
		span.SetAttributes(tracer.StringAttr("result", KindOf(audit.failure).String()))
		return audit.failure, nil
	}

	slot := newOneShot[Result]()
	handle, err := h.svc.Locations.RequestLocationUpdates(h.request, func(fixes []Fix) {
		for _, fix := range fixes {
			if !fix.Viable(accuracy) {
				log.Debug("discarding update", "accuracy", fix.Accuracy)
				continue
			}
			slot.offer(Success{Fix: fix})
			return
		}
	})
	if err != nil {
		log.Warn("request updates failed", "error", err)
		return Failed{Err: err}, nil
	}

	res, err := slot.wait(ctx)
	h.svc.Locations.RemoveLocationUpdates(handle)
	if err != nil {
		log.Info("viable location cancelled", "error", err)
		tracer.RecordError(span, err)
		return nil, err
	}

	log.Info("viable location acquired", "fix", res.(Success).Fix)
	span.SetAttributes(tracer.StringAttr("result", KindSuccess.String()))
	tracer.SetOK(span)
	return res, nil
}

// FixedLocation requests a single fresh high-accuracy fix.
func (h *Helper) FixedLocation(ctx context.Context) (Result, error) {
	return h.CurrentLocation(ctx, PriorityHighAccuracy)
}

// CurrentLocation requests a single fresh fix at priority. Cancelling ctx
// cancels the platform request.
func (h *Helper) CurrentLocation(ctx context.Context, priority Priority) (Result, error) {
	ctx, span := tracer.StartSpan(ctx, "location.CurrentLocation")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("priority", priority.String()))

	log := h.log.With("op", "current", "id", ulid.Make().String())

	audit, err := h.audit(ctx)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	if !audit.passed() {
		log.Info("audit failed", "result", KindOf(audit.failure))
		span.SetAttributes(tracer.StringAttr("result", KindOf(audit.failure).String()))
		return audit.failure, nil
	}

	src := task.NewCancellationTokenSource()
	slot := newOneShot[Result]()
	h.svc.Locations.CurrentLocation(priority, src.Token()).
		OnComplete(func(fix *Fix, err error) {
			switch {
			case err == nil && fix != nil:
				slot.offer(Success{Fix: *fix})
			case err == nil:
				slot.offer(Failed{Err: ErrNoFix})
			default:
				slot.offer(Failed{Err: err})
			}
		})

	res, err := slot.wait(ctx)
	if err != nil {
		src.Cancel()
		log.Info("current location cancelled", "error", err)
		tracer.RecordError(span, err)
		return nil, err
	}

	kind := KindOf(res)
	span.SetAttributes(tracer.StringAttr("result", kind.String()))
	if f, ok := res.(Failed); ok {
		log.Warn("current location failed", "error", f.Err)
		tracer.RecordError(span, f)
	} else {
		log.Info("current location acquired", "result", kind)
		tracer.SetOK(span)
	}
	return res, nil
}
