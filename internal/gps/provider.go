package gps

import (
	"math"
	"time"
)

// DefaultUERE is the user equivalent range error (meters, 1σ) assumed for a
// consumer single-frequency receiver.
const DefaultUERE = 5.0

// Provider is the interface for GNSS receivers.
type Provider interface {
	Name() string
	Connect() error
	Close() error
	// Read returns the latest receiver state. May block briefly.
	Read() (*Data, error)
}

// Fix types reported by GSA.
const (
	FixTypeNone = 1
	FixType2D   = 2
	FixType3D   = 3
)

// Data holds the receiver state assembled from one NMEA burst.
type Data struct {
	Valid      bool      `json:"valid"`      // RMC status A
	Latitude   float64   `json:"latitude"`   // Decimal degrees
	Longitude  float64   `json:"longitude"`  // Decimal degrees
	Speed      float64   `json:"speed"`      // km/h
	Heading    float64   `json:"heading"`    // Degrees true
	Altitude   float64   `json:"altitude"`   // Meters
	Satellites int       `json:"satellites"` // Sats in use
	FixQuality int       `json:"fixQuality"` // 0=none, 1=GPS, 2=DGPS
	FixType    int       `json:"fixType"`    // 1=none, 2=2D, 3=3D
	HDOP       float64   `json:"hdop"`
	PDOP       float64   `json:"pdop"`
	VDOP       float64   `json:"vdop"`
	Time       time.Time `json:"time"` // UTC
}

// HasAltitude reports whether the fix carries a usable altitude.
func (d *Data) HasAltitude() bool {
	return d.Valid && (d.FixType == FixType3D || (d.FixType == 0 && d.FixQuality > 0))
}

// HorizontalAccuracy estimates the horizontal error radius in meters for the
// given UERE. Unknown HDOP yields +Inf.
func (d *Data) HorizontalAccuracy(uere float64) float64 {
	return HorizontalAccuracy(d.HDOP, uere)
}

// HorizontalAccuracy converts a horizontal dilution of precision to meters.
func HorizontalAccuracy(hdop, uere float64) float64 {
	if hdop <= 0 {
		return math.Inf(1)
	}
	if uere <= 0 {
		uere = DefaultUERE
	}
	return hdop * uere
}
