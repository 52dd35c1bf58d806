// Package server exposes the location helper over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/uber/h3-go/v4"

	"github.com/shaunagostinho/locationhelper/internal/location"
	"github.com/shaunagostinho/locationhelper/internal/platform"
)

// maxPendingResolutions bounds the resolutions kept for later consent.
const maxPendingResolutions = 64

// Acquirer is the part of location.Helper the server drives.
type Acquirer interface {
	IsPermissionEnabled() bool
	ViableLocation(ctx context.Context, accuracy float64) (location.Result, error)
	FixedLocation(ctx context.Context) (location.Result, error)
}

// Server answers location requests and pushes device settings changes to
// WebSocket clients.
type Server struct {
	cfg      *Config
	acquirer Acquirer
	store    *platform.SettingsStore
	webFS    fs.FS
	log      *slog.Logger

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader

	resMu       sync.Mutex
	resolutions map[string]location.Resolution
}

// Frame is a server-initiated WebSocket message.
type Frame struct {
	Settings *platform.DeviceSettings `json:"settings,omitempty"`
	Stamp    int64                    `json:"stamp"` // Unix ms
}

// ResultBody is the JSON form of a location.Result.
type ResultBody struct {
	Kind         string        `json:"kind"`
	Fix          *location.Fix `json:"fix,omitempty"`
	Cell         string        `json:"cell,omitempty"` // H3 index of the fix
	Error        string        `json:"error,omitempty"`
	ResolutionID string        `json:"resolutionId,omitempty"`
	Description  string        `json:"description,omitempty"`
}

// New creates a new Server.
func New(cfg *Config, acquirer Acquirer, store *platform.SettingsStore, webFS fs.FS, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		acquirer: acquirer,
		store:    store,
		webFS:    webFS,
		log:      logger.With("component", "server"),
		clients:  make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		resolutions: make(map[string]location.Resolution),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.webFS != nil {
		mux.Handle("/", http.FileServer(http.FS(s.webFS)))
	}
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/settings", s.handleSettings)
	mux.HandleFunc("GET /api/permissions", s.handlePermissions)
	mux.HandleFunc("GET /api/location/fixed", s.handleFixed)
	mux.HandleFunc("GET /api/location/viable", s.handleViable)
	mux.HandleFunc("POST /api/resolutions/{id}", s.handleResolution)
	return mux
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	s.log.Info("listening", "addr", s.cfg.Server.ListenAddr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handlePermissions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"required": location.RequiredPermissions(),
		"enabled":  s.acquirer.IsPermissionEnabled(),
	})
}

func (s *Server) handleFixed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, err := withTimeoutParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer cancel()

	res, err := s.acquirer.FixedLocation(ctx)
	s.writeResult(w, res, err)
}

func (s *Server) handleViable(w http.ResponseWriter, r *http.Request) {
	accuracy := s.cfg.DefaultAccuracy()
	if v := r.URL.Query().Get("accuracy"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(n) {
			http.Error(w, "bad accuracy", http.StatusBadRequest)
			return
		}
		accuracy = n
	}
	ctx, cancel, err := withTimeoutParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer cancel()

	res, err := s.acquirer.ViableLocation(ctx, accuracy)
	s.writeResult(w, res, err)
}

// withTimeoutParam bounds the request context by the optional timeout query
// parameter (a Go duration). Without one the acquisition runs until the
// client goes away.
func withTimeoutParam(r *http.Request) (context.Context, context.CancelFunc, error) {
	v := r.URL.Query().Get("timeout")
	if v == "" {
		ctx, cancel := context.WithCancel(r.Context())
		return ctx, cancel, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return nil, nil, fmt.Errorf("bad timeout %q", v)
	}
	ctx, cancel := context.WithTimeout(r.Context(), d)
	return ctx, cancel, nil
}

func (s *Server) writeResult(w http.ResponseWriter, res location.Result, err error) {
	if err != nil {
		// Cancelled. A departed client never sees this.
		status := http.StatusRequestTimeout
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, map[string]string{"kind": "cancelled", "error": err.Error()})
		return
	}
	body, err := s.encodeResult(res)
	if err != nil {
		s.log.Error("encode result", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) encodeResult(res location.Result) (ResultBody, error) {
	body := ResultBody{Kind: location.KindOf(res).String()}
	switch r := res.(type) {
	case location.Success:
		fix := r.Fix
		body.Fix = &fix
		body.Cell = s.cellOf(fix)
	case location.Failed:
		if r.Err != nil {
			body.Error = r.Err.Error()
		}
	case location.NoPermission, location.ProviderDisabled, location.NotResolvable:
	case location.Resolvable:
		body.ResolutionID = s.addResolution(r.Resolution)
		body.Description = r.Resolution.Description()
	default:
		return ResultBody{}, fmt.Errorf("unknown location result %T", res)
	}
	return body, nil
}

// cellOf returns the H3 cell containing fix, or "" when disabled.
func (s *Server) cellOf(fix location.Fix) string {
	s.cfg.mu.RLock()
	res := s.cfg.Location.CellResolution
	s.cfg.mu.RUnlock()
	if res < 0 {
		return ""
	}
	cell, err := h3.LatLngToCell(h3.NewLatLng(fix.Latitude, fix.Longitude), res)
	if err != nil {
		s.log.Warn("h3 cell", "resolution", res, "error", err)
		return ""
	}
	return cell.String()
}

// addResolution stores res for a later POST /api/resolutions/{id}. The
// oldest entry is evicted once the table is full.
func (s *Server) addResolution(res location.Resolution) string {
	id := ulid.Make().String()

	s.resMu.Lock()
	defer s.resMu.Unlock()
	if len(s.resolutions) >= maxPendingResolutions {
		oldest := ""
		for k := range s.resolutions {
			if oldest == "" || k < oldest {
				oldest = k
			}
		}
		delete(s.resolutions, oldest)
	}
	s.resolutions[id] = res
	return id
}

func (s *Server) takeResolution(id string) (location.Resolution, bool) {
	s.resMu.Lock()
	defer s.resMu.Unlock()
	res, ok := s.resolutions[id]
	delete(s.resolutions, id)
	return res, ok
}

func (s *Server) handleResolution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := ulid.ParseStrict(id); err != nil {
		http.Error(w, "bad resolution id", http.StatusBadRequest)
		return
	}
	res, ok := s.takeResolution(id)
	if !ok {
		http.Error(w, "unknown resolution", http.StatusNotFound)
		return
	}
	if err := res.StartResolution(r.Context()); err != nil {
		s.log.Warn("resolution failed", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	s.log.Info("resolution applied", "id", id, "change", res.Description())
	s.broadcastSettings()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", 400)
			return
		}
		if err := s.cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		if err := s.cfg.Save(); err != nil {
			s.log.Warn("config save failed", "error", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))

	default:
		http.Error(w, "method not allowed", 405)
	}
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.store.Get())

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", 400)
			return
		}
		var mergeErr error
		next, err := s.store.Update(func(d *platform.DeviceSettings) {
			patched := *d
			patched.Granted = slices.Clone(d.Granted)
			if mergeErr = mergeJSON(&patched, body); mergeErr == nil {
				*d = patched
			}
		})
		if mergeErr != nil {
			http.Error(w, mergeErr.Error(), 400)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		s.broadcastSettings()
		writeJSON(w, http.StatusOK, next)

	default:
		http.Error(w, "method not allowed", 405)
	}
}

func (s *Server) broadcastSettings() {
	d := s.store.Get()
	s.broadcast(Frame{Settings: &d, Stamp: time.Now().UnixMilli()})
}

func (s *Server) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		client.enqueue(data)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
