// Package station resolves the dish location used for USALS pointing,
// either from static configuration or from a running gpsd.
package station

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"time"
)

// DefaultGPSDTimeout bounds the wait for a gpsd fix.
const DefaultGPSDTimeout = 10 * time.Second

// Location is a ground position.
type Location struct {
	Lat    float64 `json:"latitude"`  // degrees North
	Lon    float64 `json:"longitude"` // degrees East
	Alt    float64 `json:"altitude"`  // meters above sea level
	Source string  `json:"source"`    // "config" or "gpsd"
}

func (l Location) String() string {
	return fmt.Sprintf("%.4f, %.4f (%s)", l.Lat, l.Lon, l.Source)
}

// tpvReport is the subset of a gpsd TPV object we use.
type tpvReport struct {
	Class string  `json:"class"`
	Mode  int     `json:"mode"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Alt   float64 `json:"altMSL"`
}

// FromGPSD connects to gpsd at addr, enables watching and reads TPV reports
// until one carries a 2D or 3D fix.
func FromGPSD(addr string, timeout time.Duration) (Location, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return Location{}, fmt.Errorf("gpsd connect: %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Location{}, fmt.Errorf("gpsd set deadline: %w", err)
	}
	if _, err := fmt.Fprint(conn, `?WATCH={"enable":true,"json":true};`); err != nil {
		return Location{}, fmt.Errorf("gpsd watch: %w", err)
	}

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		var r tpvReport
		if json.Unmarshal(sc.Bytes(), &r) != nil || r.Class != "TPV" {
			continue
		}
		if r.Mode >= 2 {
			return Location{Lat: r.Lat, Lon: r.Lon, Alt: r.Alt, Source: "gpsd"}, nil
		}
	}
	if err := sc.Err(); err != nil {
		return Location{}, fmt.Errorf("gpsd read: %w", err)
	}
	return Location{}, fmt.Errorf("gpsd: no fix within %v", timeout)
}

// Options selects how Resolve finds the station.
type Options struct {
	Latitude  float64
	Longitude float64
	UseGPSD   bool
	GPSDHost  string
	Timeout   time.Duration
	Logger    *log.Logger
}

// Resolve returns the gpsd position when enabled and available, and the
// configured coordinates otherwise.
func Resolve(opts Options) Location {
	if opts.UseGPSD {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultGPSDTimeout
		}
		loc, err := FromGPSD(opts.GPSDHost, timeout)
		if err == nil {
			return loc
		}
		if opts.Logger != nil {
			opts.Logger.Printf("station: gpsd failed (%v), falling back to config", err)
		}
	}
	return Location{Lat: opts.Latitude, Lon: opts.Longitude, Source: "config"}
}
