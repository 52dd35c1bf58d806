package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/locationhelper/internal/location"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), quiet)

	want := DefaultConfig()
	if diff := cmp.Diff(want, cfg, cmpopts.IgnoreUnexported(Config{})); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
gps:
  type: nmea
  port_path: /dev/ttyACM0
location:
  priority: balanced
  interval_ms: 2000
logging:
  level: debug
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("# receiver\nGPS_BAUD='38400'\nLISTEN_ADDR=:9000\n"), 0644))

	t.Setenv("GPS_BAUD", "")
	t.Setenv("LISTEN_ADDR", ":9100")
	t.Setenv("LOCATION_FASTEST_MS", "500")
	t.Setenv("TRACING_ENABLED", "yes")

	cfg := LoadConfig(path, quiet)
	assert.Equal(t, "nmea", cfg.GPS.Type)
	assert.Equal(t, "/dev/ttyACM0", cfg.GPS.PortPath)
	assert.Equal(t, 38400, cfg.GPS.BaudRate)
	assert.Equal(t, ":9100", cfg.Server.ListenAddr)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Tracing.Enabled)

	req, err := cfg.LocationRequest()
	require.NoError(t, err)
	assert.Equal(t, location.Request{
		Priority:        location.PriorityBalancedPowerAccuracy,
		Interval:        2 * time.Second,
		FastestInterval: 500 * time.Millisecond,
	}, req)
}

func TestLoadConfigParseErrorFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gps: [unterminated"), 0644))

	cfg := LoadConfig(path, quiet)
	assert.Equal(t, "demo", cfg.GPS.Type)
}

func TestLocationRequestValidation(t *testing.T) {
	cfg := DefaultConfig()
	req, err := cfg.LocationRequest()
	require.NoError(t, err)
	assert.Equal(t, location.DefaultRequest(), req)

	cfg.Location.Priority = "warp"
	_, err = cfg.LocationRequest()
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Location.IntervalMs = 0
	_, err = cfg.LocationRequest()
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Location.FastestMs = 5000
	_, err = cfg.LocationRequest()
	assert.Error(t, err)
}

func TestDefaultAccuracyFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Location.DefaultAccuracy = 0
	assert.Equal(t, location.DefaultAccuracy, cfg.DefaultAccuracy())
	cfg.Location.DefaultAccuracy = 30
	assert.Equal(t, 30.0, cfg.DefaultAccuracy())
}

func TestUpdateFromJSONAndSave(t *testing.T) {
	cfg := DefaultConfig()
	cfg.path = filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, cfg.UpdateFromJSON([]byte(`{"gps":{"baudRate":4800},"server":{"rateLimit":2}}`)))
	assert.Equal(t, 4800, cfg.GPS.BaudRate)
	assert.Equal(t, "/dev/ttyGPS", cfg.GPS.PortPath)
	assert.Equal(t, 2.0, cfg.Server.RateLimit)

	assert.Error(t, cfg.UpdateFromJSON([]byte(`not json`)))

	require.NoError(t, cfg.Save())
	reloaded := LoadConfig(cfg.path, quiet)
	assert.Equal(t, 4800, reloaded.GPS.BaudRate)
}

func TestDeepMerge(t *testing.T) {
	dst := map[string]interface{}{
		"a": map[string]interface{}{"x": 1.0, "y": 2.0},
		"b": "keep",
	}
	deepMerge(dst, map[string]interface{}{
		"a": map[string]interface{}{"y": 3.0},
		"c": true,
	})
	want := map[string]interface{}{
		"a": map[string]interface{}{"x": 1.0, "y": 3.0},
		"b": "keep",
		"c": true,
	}
	assert.Empty(t, cmp.Diff(want, dst))
}
