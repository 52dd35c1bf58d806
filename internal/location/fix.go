package location

import (
	"fmt"
	"time"
)

// Fix is a single measured device location. Values are immutable once
// produced by a location client.
type Fix struct {
	Latitude  float64   `json:"latitude"`  // Decimal degrees
	Longitude float64   `json:"longitude"` // Decimal degrees
	Accuracy  float64   `json:"accuracy"`  // Horizontal radius, meters
	Time      time.Time `json:"time"`
	Provider  string    `json:"provider,omitempty"`

	Altitude *float64 `json:"altitude,omitempty"` // Meters above MSL
	Speed    *float64 `json:"speed,omitempty"`    // m/s
	Bearing  *float64 `json:"bearing,omitempty"`  // Degrees true
}

// Viable reports whether the fix's accuracy radius is within threshold.
func (f Fix) Viable(threshold float64) bool {
	return f.Accuracy <= threshold
}

func (f Fix) String() string {
	return fmt.Sprintf("Fix[%s %.6f,%.6f hAcc=%.1f t=%s]",
		f.Provider, f.Latitude, f.Longitude, f.Accuracy, f.Time.Format(time.RFC3339))
}
