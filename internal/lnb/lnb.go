// Package lnb models the low-noise block downconverter mounted on the dish.
// Given an RF frequency it returns the intermediate frequency the tuner must
// be set to and whether the 22 kHz tone has to select the high band.
//
// All frequencies are in kHz.
package lnb

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownType is returned when an LNB type or name is not in the table.
var ErrUnknownType = errors.New("unknown LNB type")

// Type indexes the built-in LNB profiles.
type Type int

const (
	Universal Type = iota
	Standard
	CBand
)

// Profile describes the local oscillators and usable range of one LNB.
type Profile struct {
	Name            string
	LowOscillator   uint32
	HighOscillator  uint32
	SwitchFrequency uint32 // RF above this uses the high-band oscillator
	MinFrequency    uint32
	MaxFrequency    uint32
}

var profiles = [...]Profile{
	Universal: {"universal", 9750000, 10600000, 11700000, 10700000, 12750000},
	// Single-oscillator LNBs never switch band; the switch point sits at the
	// top of the range so Parameters always stays on the low oscillator.
	Standard: {"standard", 10750000, 10750000, 11700000, 10700000, 11700000},
	CBand:    {"c-band", 5150000, 5150000, 5150000, 3400000, 4200000},
}

// Get returns the profile for t.
func Get(t Type) (Profile, error) {
	if t < 0 || int(t) >= len(profiles) {
		return Profile{}, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
	return profiles[t], nil
}

// Lookup returns the profile with the given name (case-insensitive).
func Lookup(name string) (Profile, error) {
	for _, p := range profiles {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: %q", ErrUnknownType, name)
}

// Names lists the built-in profile names in table order.
func Names() []string {
	names := make([]string, len(profiles))
	for i, p := range profiles {
		names[i] = p.Name
	}
	return names
}

// Parameters converts an RF frequency to the tuner IF and reports whether
// the high band must be selected.
func (p Profile) Parameters(rf uint32) (ifreq uint32, highBand bool) {
	if rf > p.SwitchFrequency {
		return rf - p.HighOscillator, true
	}
	// C-band LNBs (and RF below a Ku oscillator) invert the spectrum.
	if rf < p.LowOscillator {
		return p.LowOscillator - rf, false
	}
	return rf - p.LowOscillator, false
}

// Limits returns the RF range the LNB can receive.
func (p Profile) Limits() (min, max uint32) {
	return p.MinFrequency, p.MaxFrequency
}

// Clamp restricts [start, end] to the LNB limits. A zero start or end
// means "use the limit".
func (p Profile) Clamp(start, end uint32) (uint32, uint32) {
	if start == 0 || start < p.MinFrequency {
		start = p.MinFrequency
	}
	if end == 0 || end > p.MaxFrequency {
		end = p.MaxFrequency
	}
	return start, end
}
