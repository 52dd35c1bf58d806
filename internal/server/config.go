package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/locationhelper/internal/gps"
	"github.com/shaunagostinho/locationhelper/internal/location"
	"github.com/shaunagostinho/locationhelper/internal/logger"
	"github.com/shaunagostinho/locationhelper/internal/tracer"
)

// DefaultConfigPath is where the daemon looks for its config.
const DefaultConfigPath = "/etc/locationhelper/config.yaml"

// Config holds all daemon configuration.
type Config struct {
	mu sync.RWMutex

	// Receiver
	GPS GPSConfig `yaml:"gps" json:"gps"`

	// Request profile and acquisition tuning
	Location LocationConfig `yaml:"location" json:"location"`

	// Device settings store
	Device DeviceConfig `yaml:"device" json:"device"`

	Logging logger.Config `yaml:"logging" json:"logging"`
	Tracing tracer.Config `yaml:"tracing" json:"tracing"`

	// Server
	Server ServerConfig `yaml:"server" json:"server"`

	path string // file path for save/load
}

type GPSConfig struct {
	Type     string  `yaml:"type" json:"type"`          // "nmea" or "demo" or "disabled"
	PortPath string  `yaml:"port_path" json:"portPath"` // e.g. /dev/ttyGPS
	BaudRate int     `yaml:"baud_rate" json:"baudRate"`
	UERE     float64 `yaml:"uere" json:"uere"` // Meters, converts HDOP to accuracy

	Breaker gps.BreakerConfig `yaml:"breaker" json:"breaker"`
}

type LocationConfig struct {
	Priority        string  `yaml:"priority" json:"priority"` // high_accuracy, balanced, low_power, no_power
	IntervalMs      int     `yaml:"interval_ms" json:"intervalMs"`
	FastestMs       int     `yaml:"fastest_ms" json:"fastestMs"`
	DefaultAccuracy float64 `yaml:"default_accuracy" json:"defaultAccuracy"` // Meters
	MaxWaitMs       int     `yaml:"max_wait_ms" json:"maxWaitMs"`            // One-shot bound
	PollMs          int     `yaml:"poll_ms" json:"pollMs"`                   // One-shot read rate
	CellResolution  int     `yaml:"cell_resolution" json:"cellResolution"`   // H3 resolution for fixes, -1 disables
}

type DeviceConfig struct {
	SettingsPath string `yaml:"settings_path" json:"settingsPath"`
}

type ServerConfig struct {
	ListenAddr string  `yaml:"listen_addr" json:"listenAddr"`
	RateLimit  float64 `yaml:"rate_limit" json:"rateLimit"` // WebSocket ops per second per client
	RateBurst  int     `yaml:"rate_burst" json:"rateBurst"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		GPS: GPSConfig{
			Type:     "demo",
			PortPath: "/dev/ttyGPS",
			BaudRate: 9600,
			UERE:     gps.DefaultUERE,
		},
		Location: LocationConfig{
			Priority:        location.PriorityHighAccuracy.String(),
			IntervalMs:      3000,
			FastestMs:       1000,
			DefaultAccuracy: location.DefaultAccuracy,
			MaxWaitMs:       30000,
			PollMs:          1000,
			CellResolution:  9,
		},
		Device: DeviceConfig{
			SettingsPath: "/var/lib/locationhelper/settings.yaml",
		},
		Logging: logger.Config{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracing: tracer.Config{
			Enabled:  false,
			Exporter: "stdout",
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
			RateLimit:  5,
			RateBurst:  10,
		},
	}
}

// LoadConfig reads config from a YAML file, then applies .env and environment
// variable overrides. Falls back to defaults if YAML not found.
func LoadConfig(path string, log *slog.Logger) *Config {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "config")

	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Info("no config file, using defaults", "path", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Warn("config parse failed, using defaults", "path", path, "error", err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Info("config loaded", "path", path)
	}

	// Load .env file from the same directory as the config, or from CWD
	for _, ep := range []string{filepath.Join(filepath.Dir(path), ".env"), ".env"} {
		if loadEnvFile(ep) {
			log.Info("loaded .env", "path", ep)
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
// Variables already set in the real environment win.
func loadEnvFile(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
	return true
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: GPS_TYPE, GPS_PORT, GPS_BAUD, LISTEN_ADDR, LOG_LEVEL, LOG_FORMAT,
// SETTINGS_PATH, LOCATION_INTERVAL_MS, LOCATION_FASTEST_MS, TRACING_ENABLED
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GPS_TYPE"); v != "" {
		c.GPS.Type = v
	}
	if v := os.Getenv("GPS_PORT"); v != "" {
		c.GPS.PortPath = v
	}
	if v := os.Getenv("GPS_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.GPS.BaudRate = n
		}
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("SETTINGS_PATH"); v != "" {
		c.Device.SettingsPath = v
	}
	if v := os.Getenv("LOCATION_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Location.IntervalMs = n
		}
	}
	if v := os.Getenv("LOCATION_FASTEST_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Location.FastestMs = n
		}
	}
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		c.Tracing.Enabled = v == "1" || v == "true" || v == "yes"
	}
}

// LocationRequest builds the request profile from the location section.
func (c *Config) LocationRequest() (location.Request, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, err := location.ParsePriority(c.Location.Priority)
	if err != nil {
		return location.Request{}, err
	}
	req := location.Request{
		Priority:        p,
		Interval:        time.Duration(c.Location.IntervalMs) * time.Millisecond,
		FastestInterval: time.Duration(c.Location.FastestMs) * time.Millisecond,
	}
	if req.Interval <= 0 {
		return location.Request{}, fmt.Errorf("location.interval_ms must be positive, got %d", c.Location.IntervalMs)
	}
	if req.FastestInterval < 0 || req.FastestInterval > req.Interval {
		return location.Request{}, fmt.Errorf("location.fastest_ms must be within [0, interval_ms], got %d", c.Location.FastestMs)
	}
	return req, nil
}

// DefaultAccuracy returns the viable threshold used when a caller gives none.
func (c *Config) DefaultAccuracy() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Location.DefaultAccuracy <= 0 {
		return location.DefaultAccuracy
	}
	return c.Location.DefaultAccuracy
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		c.path = DefaultConfigPath
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON applies a partial JSON config update by deep-merging
// incoming fields into the existing config. Fields not present in the
// incoming JSON are preserved.
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return mergeJSON(c, data)
}

// mergeJSON deep-merges the JSON object patch into v.
func mergeJSON(v any, patch []byte) error {
	currentBytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal current: %w", err)
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return fmt.Errorf("unmarshal current: %w", err)
	}

	var incoming map[string]interface{}
	if err := json.Unmarshal(patch, &incoming); err != nil {
		return fmt.Errorf("unmarshal patch: %w", err)
	}

	deepMerge(base, incoming)

	merged, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("marshal merged: %w", err)
	}
	return json.Unmarshal(merged, v)
}

// deepMerge recursively merges src into dst. For nested maps, values are
// merged rather than replaced. For all other types, src overwrites dst.
func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}
