// Package platform implements the location platform services on Linux: the
// permission and provider switches, the device settings check, and a fused
// location client over a GNSS receiver.
package platform

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/locationhelper/internal/location"
)

// DeviceSettings is the device-wide location state a user or administrator
// controls.
type DeviceSettings struct {
	// GPSEnabled is the user's location switch for the satellite provider.
	GPSEnabled bool `yaml:"gps_enabled" json:"gpsEnabled"`
	// ImprovedAccuracy enables assisted positioning, required for high-accuracy requests.
	ImprovedAccuracy bool `yaml:"improved_accuracy" json:"improvedAccuracy"`
	// Managed settings are locked by policy and cannot be changed on request.
	Managed bool `yaml:"managed" json:"managed"`
	// Granted lists the runtime permissions granted to location clients.
	Granted []location.Permission `yaml:"granted" json:"granted"`
}

// DefaultDeviceSettings enables everything and grants both location permissions.
func DefaultDeviceSettings() DeviceSettings {
	return DeviceSettings{
		GPSEnabled:       true,
		ImprovedAccuracy: true,
		Granted:          location.RequiredPermissions(),
	}
}

// IsGranted reports whether p is in the granted list.
func (d DeviceSettings) IsGranted(p location.Permission) bool {
	for _, g := range d.Granted {
		if g == p {
			return true
		}
	}
	return false
}

// SettingsStore persists DeviceSettings as YAML. A missing file reads as
// DefaultDeviceSettings.
type SettingsStore struct {
	mu   sync.RWMutex
	path string
	cur  DeviceSettings
}

// OpenSettingsStore loads the settings at path. An empty path keeps the
// settings in memory only.
func OpenSettingsStore(path string) (*SettingsStore, error) {
	s := &SettingsStore{path: path, cur: DefaultDeviceSettings()}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read device settings %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s.cur); err != nil {
		return nil, fmt.Errorf("parse device settings %s: %w", path, err)
	}
	return s, nil
}

// NewMemorySettingsStore returns an unpersisted store holding d.
func NewMemorySettingsStore(d DeviceSettings) *SettingsStore {
	return &SettingsStore{cur: d}
}

// Get returns a copy of the current settings.
func (s *SettingsStore) Get() DeviceSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.cur
	out.Granted = append([]location.Permission(nil), s.cur.Granted...)
	return out
}

// Update applies fn to a copy of the settings and persists the result.
func (s *SettingsStore) Update(fn func(*DeviceSettings)) (DeviceSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur
	next.Granted = append([]location.Permission(nil), s.cur.Granted...)
	fn(&next)
	if err := s.save(next); err != nil {
		return s.cur, err
	}
	s.cur = next
	return next, nil
}

func (s *SettingsStore) save(d DeviceSettings) error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal device settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(s.path), err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, s.path)
}
