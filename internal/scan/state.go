package scan

import "github.com/large-farva/feedhunter/internal/frontend"

// State is the sweep cursor.
type State struct {
	Frequency    uint32
	Polarization frontend.Polarization
	Attempts     int // polarization attempts already made at Frequency
}

// Advance applies the outcome of the attempt at the current position and
// reports whether another attempt is due within r.
//
// A lock moves on to the next frequency. A miss on the first polarization
// retries the same frequency on vertical; a second miss gives up on it.
// Every move to a new frequency restarts on horizontal.
func (s *State) Advance(locked bool, r Range) bool {
	if !locked && s.Attempts == 0 {
		s.Polarization = frontend.Vertical
		s.Attempts = 1
		return true
	}

	s.Polarization = frontend.Horizontal
	s.Attempts = 0
	// Checked as a difference so a range ending near the top of uint32
	// cannot wrap around.
	if r.End-s.Frequency < r.Step {
		return false
	}
	s.Frequency += r.Step
	return true
}
