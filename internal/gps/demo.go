package gps

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// DemoGPS simulates a receiver warming up: the first read has no fix and HDOP
// then converges from a cold-start value toward open-sky quality.
type DemoGPS struct {
	mu    sync.Mutex
	reads int
	t     float64
}

func NewDemoGPS() *DemoGPS { return &DemoGPS{} }

func (d *DemoGPS) Name() string   { return "Demo GPS (Simulated)" }
func (d *DemoGPS) Connect() error { return nil }
func (d *DemoGPS) Close() error   { return nil }

// Present always reports true for the simulated receiver.
func (d *DemoGPS) Present() bool { return true }

func (d *DemoGPS) Read() (*Data, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.reads
	d.reads++
	d.t += 0.1

	if n == 0 {
		return &Data{Valid: false, FixType: FixTypeNone, Time: time.Now().UTC()}, nil
	}

	// Circle around a point in Toronto.
	centerLat := 43.6532
	centerLon := -79.3832
	radius := 0.005 // ~500m
	hdop := 0.8 + 24*math.Exp(-float64(n-1)/3)

	return &Data{
		Valid:      true,
		Latitude:   centerLat + radius*math.Sin(d.t*0.1),
		Longitude:  centerLon + radius*math.Cos(d.t*0.1),
		Speed:      50 + 30*math.Sin(d.t*0.3) + rand.Float64()*5,
		Heading:    math.Mod(d.t*10, 360),
		Altitude:   76,
		Satellites: 4 + min(n, 8),
		FixQuality: 1,
		FixType:    FixType3D,
		HDOP:       hdop,
		PDOP:       hdop * 1.4,
		VDOP:       hdop * 1.1,
		Time:       time.Now().UTC(),
	}, nil
}
