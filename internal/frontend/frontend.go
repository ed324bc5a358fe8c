// Package frontend owns one tuner device and exposes the operations the
// scanner and rotor need: polarization and band selection, tuning per
// delivery system, and a lock poll bounded by a wall-clock deadline.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/large-farva/feedhunter/internal/dvb"
)

var (
	ErrDeviceOpen        = errors.New("frontend open failed")
	ErrHardwareIO        = errors.New("frontend hardware I/O failed")
	ErrLockNotAcquired   = errors.New("lock not acquired")
	ErrUnsupportedSystem = errors.New("unsupported delivery system")
)

// pollSlice bounds a single wait so the deadline and ctx are rechecked at
// least once a second.
const pollSlice = time.Second

// Hardware is the device surface the controller drives. *dvb.Device
// implements it; tests and demo mode supply their own.
type Hardware interface {
	Info() (dvb.Info, error)
	SetVoltage(dvb.Voltage) error
	SetTone(dvb.Tone) error
	SetFrontend(dvb.Parameters) error
	WaitEvent(timeout time.Duration) (bool, error)
	ReadStatus() (dvb.Status, error)
	SendDiseqc(msg []byte) error
	Close() error
}

// Options configures Open and New.
type Options struct {
	// Expect is the delivery system the caller wants. Ignored when AnyType.
	Expect  dvb.Type
	AnyType bool

	Logger *log.Logger
	Debug  bool

	// Now overrides the clock used for poll deadlines.
	Now func() time.Time
}

// Controller is the exclusive owner of one open frontend.
type Controller struct {
	hw     Hardware
	info   dvb.Info
	log    *log.Logger
	debug  bool
	now    func() time.Time
	closed bool
}

// Open opens the frontend node at path and validates its type.
func Open(path string, opts Options) (*Controller, error) {
	dev, err := dvb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceOpen, err)
	}
	c, err := New(dev, opts)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	c.log.Printf("frontend %s opened (%s, %s)", path, c.info.Name, c.info.Type)
	return c, nil
}

// New wraps already-open hardware. On error the caller still owns hw.
func New(hw Hardware, opts Options) (*Controller, error) {
	c := &Controller{
		hw:    hw,
		log:   opts.Logger,
		debug: opts.Debug,
		now:   opts.Now,
	}
	if c.log == nil {
		c.log = log.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}

	info, err := hw.Info()
	if err != nil {
		return nil, fmt.Errorf("%w: query info: %w", ErrDeviceOpen, err)
	}
	if !opts.AnyType && info.Type != opts.Expect {
		return nil, fmt.Errorf("%w: %s is a %s frontend, want %s", ErrDeviceOpen, info.Name, info.Type, opts.Expect)
	}
	if info.FrequencyStepSize == 0 {
		c.log.Printf("frontend reported a frequency step of 0, defaulting to 1 MHz")
		info.FrequencyStepSize = 1000
	}
	c.info = info
	return c, nil
}

// Info returns the capability record queried at open.
func (c *Controller) Info() dvb.Info { return c.info }

// Close releases the device. Calls after the first are no-ops.
func (c *Controller) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.hw.Close()
}

// SetVoltage selects the LNB supply voltage.
func (c *Controller) SetVoltage(v dvb.Voltage) error {
	if err := c.hw.SetVoltage(v); err != nil {
		return fmt.Errorf("%w: set voltage %s: %w", ErrHardwareIO, v, err)
	}
	return nil
}

// SetPolarization selects the polarization through the supply voltage.
func (c *Controller) SetPolarization(p Polarization) error {
	return c.SetVoltage(p.Voltage())
}

// SetTone switches the 22 kHz tone that selects the LNB high band.
func (c *Controller) SetTone(on bool) error {
	t := dvb.ToneOff
	if on {
		t = dvb.ToneOn
	}
	if err := c.hw.SetTone(t); err != nil {
		return fmt.Errorf("%w: set tone: %w", ErrHardwareIO, err)
	}
	return nil
}

// Tune programs the frontend with req.
func (c *Controller) Tune(req TuningRequest) error {
	params, sys, err := buildParameters(req)
	if err != nil {
		return err
	}
	if sys != c.info.Type {
		return fmt.Errorf("%w: %s request on a %s frontend", ErrUnsupportedSystem, sys, c.info.Type)
	}
	if err := c.hw.SetFrontend(params); err != nil {
		return fmt.Errorf("%w: %w", ErrHardwareIO, err)
	}
	return nil
}

// TuneDirect tunes a DVB-C or DVB-T frontend to freq in kHz and waits up
// to timeout for lock, returning ErrLockNotAcquired if none comes.
func (c *Controller) TuneDirect(ctx context.Context, freq, symbolRate uint32, timeout time.Duration) (LockStatus, error) {
	req, err := DirectRequest(c.info.Type, freq, symbolRate)
	if err != nil {
		return LockStatus{}, err
	}
	if c.debug {
		c.log.Printf("tuning %s to %d kHz", c.info.Type, freq)
	}
	if err := c.Tune(req); err != nil {
		return LockStatus{}, err
	}
	st, err := c.PollStatus(ctx, timeout)
	if err != nil {
		return st, err
	}
	if !st.HasLock {
		return st, fmt.Errorf("%w at %d MHz", ErrLockNotAcquired, freq/1000)
	}
	return st, nil
}

// PollStatus waits until the frontend reports lock or timeout elapses.
// Every readable event triggers exactly one status read; an unlocked read
// does not move the deadline. The last status read is returned, or the zero
// LockStatus if nothing was read. A cancelled ctx returns ctx.Err().
func (c *Controller) PollStatus(ctx context.Context, timeout time.Duration) (LockStatus, error) {
	deadline := c.now().Add(timeout)
	var st LockStatus

	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		remaining := deadline.Sub(c.now())
		if remaining <= 0 {
			return st, nil
		}

		ready, err := c.hw.WaitEvent(min(remaining, pollSlice))
		if err != nil {
			return st, fmt.Errorf("%w: %w", ErrHardwareIO, err)
		}
		if !ready {
			continue
		}

		raw, err := c.hw.ReadStatus()
		if err != nil {
			return st, fmt.Errorf("%w: %w", ErrHardwareIO, err)
		}
		st = statusFrom(raw)
		if c.debug {
			c.log.Printf("frontend status: %s", st)
		}
		if st.HasLock {
			return st, nil
		}
	}
}

// SendDiseqc transmits one DiSEqC master command.
func (c *Controller) SendDiseqc(msg []byte) error {
	if err := c.hw.SendDiseqc(msg); err != nil {
		return fmt.Errorf("%w: %w", ErrHardwareIO, err)
	}
	return nil
}

// LockStatus is a snapshot of the frontend status flags.
type LockStatus struct {
	HasSignal  bool `json:"has_signal"`
	HasCarrier bool `json:"has_carrier"`
	HasViterbi bool `json:"has_viterbi"`
	HasSync    bool `json:"has_sync"`
	HasLock    bool `json:"has_lock"`
}

func statusFrom(s dvb.Status) LockStatus {
	return LockStatus{
		HasSignal:  s&dvb.HasSignal != 0,
		HasCarrier: s&dvb.HasCarrier != 0,
		HasViterbi: s&dvb.HasViterbi != 0,
		HasSync:    s&dvb.HasSync != 0,
		HasLock:    s&dvb.HasLock != 0,
	}
}

func (s LockStatus) String() string {
	var parts []string
	if s.HasSignal {
		parts = append(parts, "SIGNAL")
	}
	if s.HasCarrier {
		parts = append(parts, "CARRIER")
	}
	if s.HasViterbi {
		parts = append(parts, "VITERBI")
	}
	if s.HasSync {
		parts = append(parts, "SYNC")
	}
	if s.HasLock {
		parts = append(parts, "LOCK")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}
