package location

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/shaunagostinho/locationhelper/internal/task"
)

type fakePermissions struct {
	granted map[Permission]bool
	calls   atomic.Int32
}

func grantAll() *fakePermissions {
	return &fakePermissions{granted: map[Permission]bool{
		PermissionCoarseLocation: true,
		PermissionFineLocation:   true,
	}}
}

func (f *fakePermissions) CheckGranted(p Permission) bool {
	f.calls.Add(1)
	return f.granted[p]
}

type fakeProviders struct {
	enabled bool
	calls   atomic.Int32
}

func (f *fakeProviders) IsProviderEnabled(string) bool {
	f.calls.Add(1)
	return f.enabled
}

// fakeSettings completes immediately with err unless manual is set, in which
// case the test completes the task through completer.
type fakeSettings struct {
	err    error
	manual bool

	mu        sync.Mutex
	calls     int
	token     *task.Token
	completer *task.Completer[SettingsState]
	started   chan struct{}
}

func (f *fakeSettings) CheckLocationSettings(_ SettingsRequest, token *task.Token) *task.Task[SettingsState] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.token = token
	if !f.manual {
		return task.Completed(SettingsState{GPSUsable: true}, f.err)
	}
	t, c := task.New[SettingsState]()
	f.completer = c
	if f.started != nil {
		close(f.started)
	}
	return t
}

func (f *fakeSettings) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeLocations struct {
	mu         sync.Mutex
	requests   int
	removals   int
	removed    []UpdateHandle
	callback   UpdateFunc
	subscribed chan struct{}
	requestErr error

	oneShots   int
	token      *task.Token
	completer  *task.Completer[*Fix]
	oneShotReq chan struct{}
}

func newFakeLocations() *fakeLocations {
	return &fakeLocations{
		subscribed: make(chan struct{}),
		oneShotReq: make(chan struct{}),
	}
}

func (f *fakeLocations) RequestLocationUpdates(_ Request, fn UpdateFunc) (UpdateHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	if f.requestErr != nil {
		return 0, f.requestErr
	}
	f.callback = fn
	close(f.subscribed)
	return UpdateHandle(7), nil
}

func (f *fakeLocations) RemoveLocationUpdates(h UpdateHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removals++
	f.removed = append(f.removed, h)
}

func (f *fakeLocations) CurrentLocation(_ Priority, token *task.Token) *task.Task[*Fix] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.oneShots++
	f.token = token
	t, c := task.New[*Fix]()
	f.completer = c
	close(f.oneShotReq)
	return t
}

func (f *fakeLocations) emit(fixes ...Fix) {
	f.mu.Lock()
	fn := f.callback
	f.mu.Unlock()
	fn(fixes)
}

func (f *fakeLocations) counts() (requests, removals, oneShots int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests, f.removals, f.oneShots
}

type harness struct {
	perms     *fakePermissions
	providers *fakeProviders
	settings  *fakeSettings
	locations *fakeLocations
	helper    *Helper
}

func newHarness() *harness {
	h := &harness{
		perms:     grantAll(),
		providers: &fakeProviders{enabled: true},
		settings:  &fakeSettings{},
		locations: newFakeLocations(),
	}
	h.helper = NewHelper(Services{
		Permissions: h.perms,
		Providers:   h.providers,
		Settings:    h.settings,
		Locations:   h.locations,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return h
}

type outcome struct {
	res Result
	err error
}

func runAsync(fn func() (Result, error)) <-chan outcome {
	ch := make(chan outcome, 1)
	go func() {
		res, err := fn()
		ch <- outcome{res, err}
	}()
	return ch
}

func fixWithAccuracy(acc float64) Fix {
	return Fix{Latitude: 43.6532, Longitude: -79.3832, Accuracy: acc, Provider: ProviderGPS}
}

type fakeResolution struct{ applied atomic.Bool }

func (r *fakeResolution) Description() string { return "enable improved accuracy" }

func (r *fakeResolution) StartResolution(context.Context) error {
	r.applied.Store(true)
	return nil
}
