package gps

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// NMEAProvider reads standard NMEA 0183 sentences from a UART GPS.
// Compatible with u-blox NEO-M8N and any standard NMEA GPS.
type NMEAProvider struct {
	portPath string
	baudRate int
	log      *slog.Logger

	mu      sync.Mutex
	port    io.ReadCloser
	scanner *bufio.Scanner
	last    Data
	date    time.Time // Last RMC date, carried into GGA-only bursts
}

// NMEAConfig holds configuration for the NMEA GPS provider.
type NMEAConfig struct {
	PortPath string `yaml:"port_path" json:"portPath"`
	BaudRate int    `yaml:"baud_rate" json:"baudRate"`
}

// NewNMEA creates a new NMEA GPS provider.
func NewNMEA(cfg NMEAConfig, logger *slog.Logger) *NMEAProvider {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 9600 // Standard NMEA default
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NMEAProvider{
		portPath: cfg.PortPath,
		baudRate: cfg.BaudRate,
		log:      logger.With("component", "gps"),
	}
}

func (n *NMEAProvider) Name() string { return "NMEA GPS" }

// PortPath returns the configured device node.
func (n *NMEAProvider) PortPath() string { return n.portPath }

func (n *NMEAProvider) Connect() error {
	mode := &serial.Mode{
		BaudRate: n.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(n.portPath, mode)
	if err != nil {
		return fmt.Errorf("gps: failed to open %s: %w", n.portPath, err)
	}
	if err := port.SetReadTimeout(200 * time.Millisecond); err != nil {
		port.Close()
		return fmt.Errorf("gps: set read timeout on %s: %w", n.portPath, err)
	}
	n.attach(port)
	n.log.Info("connected", "port", n.portPath, "baud", n.baudRate)
	return nil
}

// attach starts reading sentences from r.
func (n *NMEAProvider) attach(r io.ReadCloser) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.port = r
	n.scanner = bufio.NewScanner(r)
}

func (n *NMEAProvider) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.port == nil {
		return nil
	}
	err := n.port.Close()
	n.port = nil
	n.scanner = nil
	return err
}

// Present reports whether the device node exists as a serial port on this host.
func (n *NMEAProvider) Present() bool {
	ports, err := serial.GetPortsList()
	if err != nil {
		n.log.Warn("enumerate serial ports", "error", err)
		return false
	}
	want := n.portPath
	if resolved, err := filepath.EvalSymlinks(want); err == nil {
		want = resolved
	}
	for _, p := range ports {
		if p == n.portPath || p == want {
			return true
		}
	}
	// Some platforms do not enumerate udev aliases or pty devices.
	_, err = os.Stat(want)
	return err == nil
}

// Read reads NMEA sentences until it has RMC and GGA from one burst, or the
// line budget runs out. The returned Data is a snapshot.
func (n *NMEAProvider) Read() (*Data, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.scanner == nil {
		snap := n.last
		return &snap, fmt.Errorf("gps: not connected")
	}

	gotRMC := false
	gotGGA := false
	for i := 0; i < 20 && !(gotRMC && gotGGA); i++ {
		if !n.scanner.Scan() {
			break
		}
		line := strings.TrimSpace(n.scanner.Text())
		if !strings.HasPrefix(line, "$") || !validateNMEAChecksum(line) {
			continue
		}

		switch sentenceType(line) {
		case "RMC":
			n.parseRMC(line)
			gotRMC = true
		case "GGA":
			n.parseGGA(line)
			gotGGA = true
		case "GSA":
			n.parseGSA(line)
		}
	}
	if err := n.scanner.Err(); err != nil {
		// A scanner stops for good after an error; idle read timeouts surface
		// as io.ErrNoProgress, so start a fresh one on the same port.
		n.scanner = bufio.NewScanner(n.port)
		snap := n.last
		return &snap, fmt.Errorf("gps: read %s: %w", n.portPath, err)
	}

	snap := n.last
	return &snap, nil
}

// sentenceType returns the three-letter sentence formatter of any talker
// (GP, GN, GL, GA, BD).
func sentenceType(line string) string {
	if len(line) < 6 {
		return ""
	}
	return line[3:6]
}

func (n *NMEAProvider) parseRMC(line string) {
	// $GPRMC,hhmmss.ss,A,llll.ll,a,yyyyy.yy,a,x.x,x.x,ddmmyy,x.x,a*hh
	parts := splitNMEA(line)
	if len(parts) < 10 {
		return
	}

	if d, err := time.Parse("020106", parts[9]); err == nil {
		n.date = d
	}
	n.last.Time = combineDateTime(n.date, parts[1])
	n.last.Valid = parts[2] == "A"

	if n.last.Valid {
		n.last.Latitude = parseNMEACoord(parts[3], parts[4])
		n.last.Longitude = parseNMEACoord(parts[5], parts[6])

		if spd, err := strconv.ParseFloat(parts[7], 64); err == nil {
			n.last.Speed = spd * 1.852 // Knots to km/h
		}
		if hdg, err := strconv.ParseFloat(parts[8], 64); err == nil {
			n.last.Heading = hdg
		}
	}
}

func (n *NMEAProvider) parseGGA(line string) {
	// $GPGGA,hhmmss.ss,llll.ll,a,yyyyy.yy,a,x,xx,x.x,x.x,M,x.x,M,x.x,xxxx*hh
	parts := splitNMEA(line)
	if len(parts) < 11 {
		return
	}

	if fix, err := strconv.Atoi(parts[6]); err == nil {
		n.last.FixQuality = fix
	}
	if sats, err := strconv.Atoi(parts[7]); err == nil {
		n.last.Satellites = sats
	}
	if hdop, err := strconv.ParseFloat(parts[8], 64); err == nil {
		n.last.HDOP = hdop
	}
	if alt, err := strconv.ParseFloat(parts[9], 64); err == nil {
		n.last.Altitude = alt
	}
}

func (n *NMEAProvider) parseGSA(line string) {
	// $GPGSA,A,3,sv,sv,sv,sv,sv,sv,sv,sv,sv,sv,sv,sv,pdop,hdop,vdop*hh
	// HDOP comes from GGA so both sentences agree within a burst.
	parts := splitNMEA(line)
	if len(parts) < 18 {
		return
	}

	if ft, err := strconv.Atoi(parts[2]); err == nil {
		n.last.FixType = ft
	}
	if v, err := strconv.ParseFloat(parts[15], 64); err == nil {
		n.last.PDOP = v
	}
	if v, err := strconv.ParseFloat(parts[17], 64); err == nil {
		n.last.VDOP = v
	}
}

// combineDateTime joins an RMC date with an hhmmss.ss UTC time of day.
func combineDateTime(date time.Time, hms string) time.Time {
	if len(hms) < 6 {
		return time.Time{}
	}
	h, err1 := strconv.Atoi(hms[0:2])
	m, err2 := strconv.Atoi(hms[2:4])
	sec, err3 := strconv.ParseFloat(hms[4:], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}
	}
	if date.IsZero() {
		date = time.Now().UTC()
	}
	whole := math.Floor(sec)
	return time.Date(date.Year(), date.Month(), date.Day(), h, m, int(whole),
		int((sec-whole)*1e9), time.UTC)
}

// splitNMEA splits a sentence and strips the checksum suffix.
func splitNMEA(line string) []string {
	if idx := strings.Index(line, "*"); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimPrefix(line, "$")
	return strings.Split(line, ",")
}

// parseNMEACoord converts NMEA ddmm.mmmm format to decimal degrees.
func parseNMEACoord(raw, dir string) float64 {
	if raw == "" || dir == "" {
		return 0
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	deg := math.Floor(val / 100)
	min := val - deg*100
	result := deg + min/60

	if dir == "S" || dir == "W" {
		result = -result
	}
	return result
}

// validateNMEAChecksum checks the XOR checksum after *.
func validateNMEAChecksum(line string) bool {
	idx := strings.Index(line, "*")
	if idx < 0 || idx+3 > len(line) {
		return false
	}
	body := line[1:idx] // Between $ and *
	var calc byte
	for i := 0; i < len(body); i++ {
		calc ^= body[i]
	}
	expected, err := strconv.ParseUint(line[idx+1:idx+3], 16, 8)
	if err != nil {
		return false
	}
	return byte(expected) == calc
}
