package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaunagostinho/locationhelper/internal/gps"
	"github.com/shaunagostinho/locationhelper/internal/location"
	"github.com/shaunagostinho/locationhelper/internal/logger"
	"github.com/shaunagostinho/locationhelper/internal/platform"
	"github.com/shaunagostinho/locationhelper/internal/server"
	"github.com/shaunagostinho/locationhelper/internal/tracer"
)

var errReceiverDisabled = errors.New("gps receiver disabled")

// noReceiver stands in when the receiver is disabled in config. The provider
// check reports it as switched off, so it is never read in practice.
type noReceiver struct{}

func (noReceiver) Name() string             { return "disabled" }
func (noReceiver) Connect() error           { return errReceiverDisabled }
func (noReceiver) Close() error             { return nil }
func (noReceiver) Read() (*gps.Data, error) { return nil, errReceiverDisabled }
func (noReceiver) Present() bool            { return false }

// receiver is a gps.Provider that can report whether its hardware exists.
type receiver interface {
	gps.Provider
	Present() bool
}

// app is the assembled set of services every command runs on.
type app struct {
	cfg      *server.Config
	log      *slog.Logger
	store    *platform.SettingsStore
	perms    *platform.Permissions
	receiver receiver
	fused    *platform.FusedClient
	helper   *location.Helper

	closers []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg := server.LoadConfig(configPath, nil)
	if demo {
		cfg.GPS.Type = "demo"
	}

	log, closeLog, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)
	a := &app{cfg: cfg, log: log, closers: []func() error{closeLog}}

	shutdown, err := tracer.Setup(ctx, cfg.Tracing)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("tracing: %w", err)
	}
	a.closers = append(a.closers, func() error { return shutdown(context.Background()) })

	a.store, err = platform.OpenSettingsStore(cfg.Device.SettingsPath)
	if err != nil {
		a.Close()
		return nil, err
	}

	devicePath := ""
	switch cfg.GPS.Type {
	case "nmea":
		nmea := gps.NewNMEA(gps.NMEAConfig{
			PortPath: cfg.GPS.PortPath,
			BaudRate: cfg.GPS.BaudRate,
		}, log)
		a.receiver = gps.NewBreaker(nmea, cfg.GPS.Breaker, log)
		devicePath = nmea.PortPath()
	case "disabled":
		a.receiver = noReceiver{}
	default:
		a.receiver = gps.NewDemoGPS()
	}
	a.closers = append(a.closers, a.receiver.Close)

	req, err := cfg.LocationRequest()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("config: %w", err)
	}

	a.fused = platform.NewFusedClient(a.receiver, platform.FusedConfig{
		UERE:         cfg.GPS.UERE,
		MaxWait:      msDuration(cfg.Location.MaxWaitMs),
		PollInterval: msDuration(cfg.Location.PollMs),
	}, log)
	a.closers = append(a.closers, func() error { a.fused.Close(); return nil })

	a.perms = platform.NewPermissions(a.store, devicePath)
	a.helper = location.NewHelper(location.Services{
		Permissions: a.perms,
		Providers:   platform.NewProviders(a.store, cfg.GPS.Type != "disabled"),
		Settings:    platform.NewSettingsClient(a.store, a.receiver, log),
		Locations:   a.fused,
	}, log, location.WithRequest(req))

	log.Debug("services ready", "receiver", a.receiver.Name(), "request", req.Priority)
	return a, nil
}

// Close releases everything in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
