// Package catalog knows where geostationary satellites sit. It starts from
// a table of nominal orbital slots and refines them from TLE data when a
// TLE set is available.
package catalog

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/akhenakh/sgp4"
)

// ErrNotFound is returned when a name matches no satellite.
var ErrNotFound = errors.New("satellite not found")

// Satellite is a geostationary bird and its sub-satellite longitude.
type Satellite struct {
	Name      string    `json:"name"`
	NoradID   int       `json:"norad_id,omitempty"`
	Longitude float64   `json:"longitude"` // degrees, east positive
	Source    string    `json:"source"`    // nominal, tle or position
	Epoch     time.Time `json:"epoch,omitempty"`
}

// Slot formats the longitude the way dish installers write it.
func (s Satellite) Slot() string {
	return FormatLongitude(s.Longitude)
}

// Nominal lists well-known positions used until TLE data has been loaded.
var Nominal = []Satellite{
	{Name: "ASTRA 1KR", Longitude: 19.2},
	{Name: "ASTRA 1L", Longitude: 19.2},
	{Name: "ASTRA 1M", Longitude: 19.2},
	{Name: "ASTRA 1N", Longitude: 19.2},
	{Name: "ASTRA 2E", Longitude: 28.2},
	{Name: "ASTRA 2F", Longitude: 28.2},
	{Name: "ASTRA 2G", Longitude: 28.2},
	{Name: "ASTRA 3B", Longitude: 23.5},
	{Name: "HOTBIRD 13F", Longitude: 13.0},
	{Name: "HOTBIRD 13G", Longitude: 13.0},
	{Name: "EUTELSAT 7B", Longitude: 7.0},
	{Name: "EUTELSAT 16A", Longitude: 16.0},
	{Name: "BADR-7", Longitude: 26.0},
	{Name: "TURKSAT 4A", Longitude: 42.0},
	{Name: "THOR 6", Longitude: -0.8},
	{Name: "THOR 7", Longitude: -0.8},
	{Name: "HISPASAT 30W-6", Longitude: -30.0},
	{Name: "GALAXY 19", Longitude: -97.0},
}

// Catalog is safe for concurrent use.
type Catalog struct {
	mu    sync.RWMutex
	sats  []Satellite
	store *Store
	log   *log.Logger
	now   func() time.Time
}

// New returns a catalog seeded with Nominal. store may be nil, in which
// case Refresh is a no-op.
func New(store *Store, logger *log.Logger) *Catalog {
	if logger == nil {
		logger = log.Default()
	}
	c := &Catalog{store: store, log: logger, now: time.Now}
	c.sats = make([]Satellite, len(Nominal))
	for i, s := range Nominal {
		s.Source = "nominal"
		c.sats[i] = s
	}
	return c
}

// Refresh loads TLEs from the store, or downloads them when force is set,
// and merges every geostationary object into the catalog. It returns the
// number of TLE-derived entries.
func (c *Catalog) Refresh(force bool) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	var (
		raw string
		err error
	)
	if force {
		raw, err = c.store.ForceRefresh()
	} else {
		raw, err = c.store.Load()
	}
	if err != nil {
		return 0, err
	}

	found, err := ParseGeo(raw, c.now())
	if err != nil {
		return 0, err
	}
	c.merge(found)
	c.log.Printf("catalog: %d geostationary objects from TLE data", len(found))
	return len(found), nil
}

func (c *Catalog) merge(found []Satellite) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byName := make(map[string]int, len(c.sats))
	for i, s := range c.sats {
		byName[normalize(s.Name)] = i
	}
	for _, s := range found {
		if i, ok := byName[normalize(s.Name)]; ok {
			c.sats[i] = s
			continue
		}
		byName[normalize(s.Name)] = len(c.sats)
		c.sats = append(c.sats, s)
	}
}

// All returns the catalog sorted from west to east.
func (c *Catalog) All() []Satellite {
	c.mu.RLock()
	out := append([]Satellite(nil), c.sats...)
	c.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Longitude != out[j].Longitude {
			return out[i].Longitude < out[j].Longitude
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Lookup finds a satellite by name, ignoring case and spacing, or accepts
// an orbital position such as "19.2E" or "-30".
func (c *Catalog) Lookup(name string) (Satellite, error) {
	key := normalize(name)
	c.mu.RLock()
	for _, s := range c.sats {
		if normalize(s.Name) == key {
			c.mu.RUnlock()
			return s, nil
		}
	}
	c.mu.RUnlock()

	if lon, err := ParseLongitude(name); err == nil {
		return Satellite{Name: FormatLongitude(lon), Longitude: lon, Source: "position"}, nil
	}
	return Satellite{}, fmt.Errorf("%w: %q", ErrNotFound, name)
}

func normalize(name string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '_' {
			return -1
		}
		return r
	}, strings.ToUpper(strings.TrimSpace(name)))
}

// ParseLongitude accepts signed degrees or a value suffixed with E or W.
func ParseLongitude(s string) (float64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	sign := 1.0
	switch {
	case strings.HasSuffix(s, "E"):
		s = strings.TrimSuffix(s, "E")
	case strings.HasSuffix(s, "W"):
		s = strings.TrimSuffix(s, "W")
		sign = -1
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid longitude %q", s)
	}
	v *= sign
	if math.IsNaN(v) || v < -180 || v > 180 {
		return 0, fmt.Errorf("longitude %.2f out of range", v)
	}
	return v, nil
}

// FormatLongitude renders 19.2 as "19.2E" and -30 as "30.0W".
func FormatLongitude(lon float64) string {
	if lon < 0 {
		return fmt.Sprintf("%.1fW", -lon)
	}
	return fmt.Sprintf("%.1fE", lon)
}

// ParseGeo extracts geostationary objects from three-line TLE text and
// propagates each one to t to find its sub-satellite longitude.
func ParseGeo(raw string, t time.Time) ([]Satellite, error) {
	lines := strings.Split(strings.TrimSpace(strings.ReplaceAll(raw, "\r\n", "\n")), "\n")

	var out []Satellite
	for i := 0; i+2 < len(lines); i += 3 {
		group := strings.Join([]string{
			strings.TrimSpace(lines[i]),
			strings.TrimSpace(lines[i+1]),
			strings.TrimSpace(lines[i+2]),
		}, "\n")

		tle, err := sgp4.ParseTLE(group)
		if err != nil || !tle.IsGeostationary() {
			continue
		}
		eci, err := tle.FindPositionAtTime(t)
		if err != nil {
			continue
		}
		_, lon, _ := eci.ToGeodetic()
		out = append(out, Satellite{
			Name:      strings.TrimSpace(lines[i]),
			NoradID:   tle.SatelliteNumber,
			Longitude: lon,
			Source:    "tle",
			Epoch:     tle.EpochTime(),
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no geostationary TLEs found in %d lines of input", len(lines))
	}
	return out, nil
}
