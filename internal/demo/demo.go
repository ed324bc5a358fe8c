// Package demo simulates a DVB-S frontend with a DiSEqC positioner so the
// daemon, the CLI and the tests can run without tuner hardware. The
// simulated sky is a list of transponders; a tune locks when it lands on
// one of them with the right polarization and band.
package demo

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/large-farva/feedhunter/internal/config"
	"github.com/large-farva/feedhunter/internal/diseqc"
	"github.com/large-farva/feedhunter/internal/dvb"
	"github.com/large-farva/feedhunter/internal/frontend"
	"github.com/large-farva/feedhunter/internal/lnb"
)

// Transponder is one simulated carrier at an RF frequency in kHz.
type Transponder struct {
	Frequency    uint32
	Polarization frontend.Polarization
}

// DefaultTransponders are a few well-known Astra 19.2E carriers.
var DefaultTransponders = []Transponder{
	{Frequency: 10744000, Polarization: frontend.Horizontal},
	{Frequency: 11244000, Polarization: frontend.Horizontal},
	{Frequency: 11494000, Polarization: frontend.Horizontal},
	{Frequency: 11778000, Polarization: frontend.Vertical},
	{Frequency: 12188000, Polarization: frontend.Horizontal},
	{Frequency: 12603000, Polarization: frontend.Horizontal},
}

// Options configures a Frontend.
type Options struct {
	LNB          lnb.Profile
	Transponders []Transponder
	// Tolerance is how far off a tune may be and still lock, in kHz.
	Tolerance uint32
	// LockDelay is how long acquisition takes once tuned.
	LockDelay time.Duration
	Logger    *log.Logger
}

// Frontend implements frontend.Hardware.
type Frontend struct {
	mu      sync.Mutex
	opts    Options
	voltage dvb.Voltage
	tone    dvb.Tone
	rf      uint32
	tuned   bool
	pending bool
	status  dvb.Status
	closed  bool

	rotorAngle float64 // degrees, east positive
	frames     [][]byte
}

// New creates a simulated frontend. Missing options fall back to the
// universal LNB, DefaultTransponders, a 2 MHz tolerance and a 50 ms lock
// delay.
func New(opts Options) *Frontend {
	if opts.LNB.Name == "" {
		opts.LNB, _ = lnb.Get(lnb.Universal)
	}
	if opts.Transponders == nil {
		opts.Transponders = DefaultTransponders
	}
	if opts.Tolerance == 0 {
		opts.Tolerance = 2000
	}
	if opts.LockDelay == 0 {
		opts.LockDelay = 50 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Frontend{opts: opts, tone: dvb.ToneOff}
}

func (f *Frontend) Info() (dvb.Info, error) {
	return dvb.Info{
		Name:              "Feedhunter Demo DVB-S",
		Type:              dvb.TypeQPSK,
		FrequencyMin:      950000,
		FrequencyMax:      2150000,
		FrequencyStepSize: 125,
		SymbolRateMin:     1000000,
		SymbolRateMax:     45000000,
		Caps:              dvb.CanInversionAuto | dvb.CanFECAuto | dvb.CanQPSK | dvb.Can2GModulation,
	}, nil
}

func (f *Frontend) SetVoltage(v dvb.Voltage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errClosed
	}
	f.voltage = v
	return nil
}

func (f *Frontend) SetTone(t dvb.Tone) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errClosed
	}
	f.tone = t
	return nil
}

// SetFrontend recovers the RF frequency from the IF and the band selected
// by the tone, the way the LNB would have converted it.
func (f *Frontend) SetFrontend(p dvb.Parameters) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errClosed
	}
	f.rf = f.rfFor(p.Frequency)
	f.tuned = true
	f.pending = true
	f.status = 0
	return nil
}

func (f *Frontend) rfFor(ifreq uint32) uint32 {
	prof := f.opts.LNB
	if f.tone == dvb.ToneOn {
		return ifreq + prof.HighOscillator
	}
	up := ifreq + prof.LowOscillator
	if up >= prof.MinFrequency && up <= prof.MaxFrequency {
		return up
	}
	if ifreq <= prof.LowOscillator {
		return prof.LowOscillator - ifreq
	}
	return up
}

// WaitEvent reports one event per tune after LockDelay. Without a pending
// event it blocks for the whole timeout, like a quiet frontend.
func (f *Frontend) WaitEvent(timeout time.Duration) (bool, error) {
	f.mu.Lock()
	pending := f.pending
	f.mu.Unlock()

	if !pending {
		time.Sleep(timeout)
		return false, nil
	}
	delay := f.opts.LockDelay
	if delay > timeout {
		time.Sleep(timeout)
		return false, nil
	}
	time.Sleep(delay)
	return true, nil
}

func (f *Frontend) ReadStatus() (dvb.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, errClosed
	}
	if f.pending {
		f.pending = false
		f.status = f.evaluate()
	}
	return f.status, nil
}

func (f *Frontend) evaluate() dvb.Status {
	if !f.tuned || f.voltage == dvb.VoltageOff {
		return 0
	}
	pol := frontend.Vertical
	if f.voltage == dvb.Voltage18 {
		pol = frontend.Horizontal
	}
	var st dvb.Status
	for _, tp := range f.opts.Transponders {
		if diff(tp.Frequency, f.rf) > f.opts.Tolerance {
			continue
		}
		// Energy from the carrier is visible on either polarization.
		st |= dvb.HasSignal
		if tp.Polarization == pol {
			return dvb.HasSignal | dvb.HasCarrier | dvb.HasViterbi | dvb.HasSync | dvb.HasLock
		}
	}
	return st
}

func diff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

// SendDiseqc records the frame and moves the simulated dish for goto_x.
func (f *Frontend) SendDiseqc(msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errClosed
	}
	if len(msg) < 3 || len(msg) > dvb.MaxDiseqcLen {
		return fmt.Errorf("demo: bad DiSEqC length %d", len(msg))
	}
	f.frames = append(f.frames, append([]byte(nil), msg...))

	fr, err := diseqc.ParseFrame(msg)
	if err != nil {
		return nil
	}
	if angle, dir, err := diseqc.DecodeAngle(fr); err == nil {
		if dir == diseqc.West {
			angle = -angle
		}
		f.rotorAngle = angle
		f.opts.Logger.Printf("demo: dish moved to %.1f", angle)
	}
	return nil
}

// RotorAngle returns the simulated dish angle, east positive.
func (f *Frontend) RotorAngle() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rotorAngle
}

// Frames returns every DiSEqC message received so far.
func (f *Frontend) Frames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.frames))
	copy(out, f.frames)
	return out
}

func (f *Frontend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

var errClosed = fmt.Errorf("demo frontend closed")

// FromConfig builds the simulated tuner described by the [demo] section.
func FromConfig(cfg config.Config, logger *log.Logger) (*Frontend, error) {
	prof, err := cfg.LNB.Profile()
	if err != nil {
		return nil, err
	}
	tps := make([]Transponder, 0, len(cfg.Demo.Transponders))
	for _, s := range cfg.Demo.Transponders {
		freq, pol, err := config.ParseTransponder(s)
		if err != nil {
			return nil, err
		}
		tps = append(tps, Transponder{Frequency: freq, Polarization: pol})
	}
	return New(Options{
		LNB:          prof,
		Transponders: tps,
		LockDelay:    time.Duration(cfg.Demo.LockDelayMS) * time.Millisecond,
		Logger:       logger,
	}), nil
}

// Open builds the simulated tuner from cfg and wraps it in a controller.
func Open(cfg config.Config, opts frontend.Options) (*frontend.Controller, error) {
	hw, err := FromConfig(cfg, opts.Logger)
	if err != nil {
		return nil, err
	}
	return wrap(hw, opts)
}

func wrap(hw *Frontend, opts frontend.Options) (*frontend.Controller, error) {
	ctl, err := frontend.New(hw, opts)
	if err != nil {
		_ = hw.Close()
		return nil, err
	}
	return ctl, nil
}
