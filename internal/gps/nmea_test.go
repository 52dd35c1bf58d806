package gps

import (
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validBurst = "$GNGSA,A,3,04,05,,09,12,,,24,,,,,2.5,1.3,2.1*27\r\n" +
	"$GPRMC,123519.50,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*41\r\n" +
	"$GPGGA,123519.50,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*6C\r\n"

const noFixBurst = "$GPRMC,081836.00,V,,,,,,,230394,,,N*76\r\n" +
	"$GPGGA,081836.00,,,,,0,00,99.99,,,,,,*62\r\n"

func attached(stream string) *NMEAProvider {
	n := NewNMEA(NMEAConfig{PortPath: "/dev/null"}, nil)
	n.attach(io.NopCloser(strings.NewReader(stream)))
	return n
}

func TestNMEAReadValidBurst(t *testing.T) {
	n := attached(validBurst)

	d, err := n.Read()
	require.NoError(t, err)

	assert.True(t, d.Valid)
	assert.InDelta(t, 48.1173, d.Latitude, 1e-4)
	assert.InDelta(t, 11.5166, d.Longitude, 1e-4)
	assert.InDelta(t, 22.4*1.852, d.Speed, 1e-9)
	assert.Equal(t, 84.4, d.Heading)
	assert.Equal(t, 545.4, d.Altitude)
	assert.Equal(t, 8, d.Satellites)
	assert.Equal(t, 1, d.FixQuality)
	assert.Equal(t, FixType3D, d.FixType)
	assert.Equal(t, 0.9, d.HDOP)
	assert.Equal(t, 2.5, d.PDOP)
	assert.Equal(t, 2.1, d.VDOP)
	assert.True(t, d.HasAltitude())

	want := time.Date(1994, time.March, 23, 12, 35, 19, 500_000_000, time.UTC)
	assert.True(t, want.Equal(d.Time), "time = %v, want %v", d.Time, want)
}

func TestNMEAReadNoFix(t *testing.T) {
	n := attached(noFixBurst)

	d, err := n.Read()
	require.NoError(t, err)
	assert.False(t, d.Valid)
	assert.Equal(t, 0, d.FixQuality)
	assert.Equal(t, 99.99, d.HDOP)
}

func TestNMEAReadSkipsCorruptSentences(t *testing.T) {
	corrupt := strings.Replace(validBurst, "4807.038,N,01131.000,E,022.4", "4807.038,N,01131.000,E,099.9", 1)
	n := attached("garbage\r\n" + corrupt)

	d, err := n.Read()
	require.NoError(t, err)
	// The RMC failed its checksum, so only GGA fields were applied.
	assert.False(t, d.Valid)
	assert.Equal(t, 8, d.Satellites)
}

func TestNMEAReadReturnsSnapshot(t *testing.T) {
	n := attached(validBurst + noFixBurst)

	first, err := n.Read()
	require.NoError(t, err)
	second, err := n.Read()
	require.NoError(t, err)

	assert.True(t, first.Valid, "first snapshot must not change after a later read")
	assert.False(t, second.Valid)
}

func TestNMEAReadNotConnected(t *testing.T) {
	n := NewNMEA(NMEAConfig{PortPath: "/dev/ttyNONE"}, nil)
	_, err := n.Read()
	assert.Error(t, err)
	assert.NoError(t, n.Close())
}

func TestNewNMEADefaultBaud(t *testing.T) {
	n := NewNMEA(NMEAConfig{PortPath: "/dev/ttyGPS"}, nil)
	assert.Equal(t, 9600, n.baudRate)
	assert.Equal(t, "/dev/ttyGPS", n.PortPath())
}

func TestValidateNMEAChecksum(t *testing.T) {
	assert.True(t, validateNMEAChecksum("$GPRMC,081836.00,V,,,,,,,230394,,,N*76"))
	assert.False(t, validateNMEAChecksum("$GPRMC,081836.00,V,,,,,,,230394,,,N*77"))
	assert.False(t, validateNMEAChecksum("$GPRMC,081836.00,V"))
	assert.False(t, validateNMEAChecksum("$GPRMC*7"))
}

func TestParseNMEACoord(t *testing.T) {
	assert.InDelta(t, 48.1173, parseNMEACoord("4807.038", "N"), 1e-4)
	assert.InDelta(t, -48.1173, parseNMEACoord("4807.038", "S"), 1e-4)
	assert.Equal(t, 0.0, parseNMEACoord("", "N"))
	assert.Equal(t, 0.0, parseNMEACoord("abc", "W"))
}

func TestCombineDateTime(t *testing.T) {
	date := time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)
	got := combineDateTime(date, "235959.25")
	assert.Equal(t, time.Date(2024, time.July, 1, 23, 59, 59, 250_000_000, time.UTC), got)
	assert.True(t, combineDateTime(date, "12").IsZero())
}

func TestHorizontalAccuracy(t *testing.T) {
	assert.Equal(t, 5.0, HorizontalAccuracy(1, DefaultUERE))
	assert.Equal(t, 10.0, HorizontalAccuracy(2, 0))
	assert.True(t, math.IsInf(HorizontalAccuracy(0, 5), 1))
}

func TestDemoGPSWarmsUp(t *testing.T) {
	d := NewDemoGPS()
	require.NoError(t, d.Connect())
	assert.True(t, d.Present())

	first, err := d.Read()
	require.NoError(t, err)
	assert.False(t, first.Valid)

	prev := math.Inf(1)
	for i := 0; i < 10; i++ {
		data, err := d.Read()
		require.NoError(t, err)
		require.True(t, data.Valid)
		acc := data.HorizontalAccuracy(DefaultUERE)
		assert.Less(t, acc, prev)
		prev = acc
	}
	assert.Less(t, prev, 10.0)
}
