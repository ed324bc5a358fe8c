// Package usals computes the rotor deflection that points a polar mount at
// a geostationary satellite.
package usals

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/large-farva/feedhunter/internal/diseqc"
)

const (
	clarkeBeltRadius = 42164 // km
	earthRadius      = 6348  // km, tuned for rotor firmware compatibility
)

var (
	// ErrSingular is returned when the formula's denominator vanishes.
	ErrSingular = errors.New("usals: singular geometry")
	// ErrOutOfRange is returned for bad coordinates or a satellite the
	// rotor cannot reach.
	ErrOutOfRange = errors.New("usals: out of range")
)

// Angle returns the rotor angle in degrees for an observer at (lon, lat)
// and a satellite at satLon. Positive results are east. East longitudes
// are positive.
func Angle(lon, lat, satLon float64) float64 {
	dlon := radians(satLon - lon)
	latr := radians(lat)
	return degrees(math.Atan(clarkeBeltRadius * math.Sin(dlon) / denominator(dlon, latr)))
}

func denominator(dlon, lat float64) float64 {
	return clarkeBeltRadius*math.Cos(dlon) - earthRadius*math.Cos(lat)
}

// Position is a rotor target ready for a goto_x command.
type Position struct {
	Angle float64 `json:"angle"` // magnitude, 0 to 90
	East  bool    `json:"east"`
}

func (p Position) String() string {
	return fmt.Sprintf("%.1f %s", p.Angle, p.Direction())
}

// Direction converts East into a rotor direction.
func (p Position) Direction() diseqc.Direction {
	if p.East {
		return diseqc.East
	}
	return diseqc.West
}

// Command builds the goto_x command for p.
func (p Position) Command(wait time.Duration) (diseqc.Command, error) {
	return diseqc.Build(diseqc.ActionGotoX, diseqc.Params{
		Angle:       p.Angle,
		Direction:   p.Direction(),
		DefaultWait: wait,
	})
}

// Solve validates the inputs and returns the rotor target for satLon.
// Satellites behind the earth's limb, where the denominator turns
// negative, are rejected.
func Solve(lon, lat, satLon float64) (Position, error) {
	switch {
	case math.IsNaN(lon) || lon < -180 || lon > 180:
		return Position{}, fmt.Errorf("%w: longitude %.4f", ErrOutOfRange, lon)
	case math.IsNaN(lat) || lat < -90 || lat > 90:
		return Position{}, fmt.Errorf("%w: latitude %.4f", ErrOutOfRange, lat)
	case math.IsNaN(satLon) || satLon < -180 || satLon > 180:
		return Position{}, fmt.Errorf("%w: satellite longitude %.4f", ErrOutOfRange, satLon)
	}

	d := denominator(radians(satLon-lon), radians(lat))
	if math.Abs(d) < 1e-9 {
		return Position{}, ErrSingular
	}
	if d < 0 {
		return Position{}, fmt.Errorf("%w: satellite at %.1f is below the horizon", ErrOutOfRange, satLon)
	}

	a := Angle(lon, lat, satLon)
	return Position{Angle: math.Abs(a), East: a > 0}, nil
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }
