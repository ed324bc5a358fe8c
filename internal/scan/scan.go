// Package scan blind-scans a frequency range on a DVB-S frontend. Each
// frequency is tried on horizontal polarization first and retried once on
// vertical when no lock is found.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/large-farva/feedhunter/internal/frontend"
	"github.com/large-farva/feedhunter/internal/lnb"
)

// ErrInvalidRange is returned for start > end or a zero step.
var ErrInvalidRange = errors.New("invalid scan range")

// Tuner is the subset of *frontend.Controller the engine drives.
type Tuner interface {
	SetPolarization(frontend.Polarization) error
	SetTone(on bool) error
	Tune(frontend.TuningRequest) error
	PollStatus(ctx context.Context, timeout time.Duration) (frontend.LockStatus, error)
}

// Range is an RF sweep in kHz, inclusive of both ends.
type Range struct {
	Start uint32
	End   uint32
	Step  uint32
}

func (r Range) validate() error {
	if r.Step == 0 {
		return fmt.Errorf("%w: step must be > 0", ErrInvalidRange)
	}
	if r.Start > r.End {
		return fmt.Errorf("%w: start %d > end %d", ErrInvalidRange, r.Start, r.End)
	}
	return nil
}

// Attempt describes one tune on one polarization.
type Attempt struct {
	Frequency    uint32                `json:"frequency_khz"`
	Polarization frontend.Polarization `json:"polarization"`
	IF           uint32                `json:"if_khz"`
	HighBand     bool                  `json:"high_band"`
	Status       frontend.LockStatus   `json:"status"`
}

// Hooks lets callers observe a scan. Any of them may be nil.
type Hooks struct {
	Progress func(offset, total uint32)
	Attempt  func(Attempt)
	Lock     func(Attempt)
}

// Options configures an Engine.
type Options struct {
	LNB        lnb.Profile
	SymbolRate uint32
	Hooks      Hooks
	Logger     *log.Logger
	Debug      bool
}

// Engine drives a Tuner across a range.
type Engine struct {
	tuner      Tuner
	lnb        lnb.Profile
	symbolRate uint32
	hooks      Hooks
	log        *log.Logger
	debug      bool
}

// New creates an engine. A zero SymbolRate selects 27.5 MSym/s.
func New(t Tuner, opts Options) *Engine {
	e := &Engine{
		tuner:      t,
		lnb:        opts.LNB,
		symbolRate: opts.SymbolRate,
		hooks:      opts.Hooks,
		log:        opts.Logger,
		debug:      opts.Debug,
	}
	if e.symbolRate == 0 {
		e.symbolRate = frontend.DefaultSymbolRate
	}
	if e.log == nil {
		e.log = log.Default()
	}
	return e
}

// Scan sweeps r, clamped to the LNB limits, spending up to timeout on each
// polarization attempt. Any hardware error or ctx cancellation aborts the
// sweep and is returned.
func (e *Engine) Scan(ctx context.Context, r Range, timeout time.Duration) error {
	if err := r.validate(); err != nil {
		return err
	}
	r.Start, r.End = e.lnb.Clamp(r.Start, r.End)
	if r.Start > r.End {
		return fmt.Errorf("%w: range outside LNB limits", ErrInvalidRange)
	}

	e.log.Printf("scanning from %d MHz to %d MHz with %d MHz steps", r.Start/1000, r.End/1000, r.Step/1000)

	st := State{Frequency: r.Start, Polarization: frontend.Horizontal}
	for {
		if st.Attempts == 0 && e.hooks.Progress != nil {
			e.hooks.Progress(st.Frequency-r.Start, r.End-r.Start)
		}

		a, err := e.attempt(ctx, st.Frequency, st.Polarization, e.symbolRate, timeout)
		if err != nil {
			return err
		}
		if e.hooks.Attempt != nil {
			e.hooks.Attempt(a)
		}
		if a.Status.HasLock {
			e.log.Printf("lock at %d MHz %s", a.Frequency/1000, a.Polarization)
			if e.hooks.Lock != nil {
				e.hooks.Lock(a)
			}
		}

		if !st.Advance(a.Status.HasLock, r) {
			break
		}
	}

	if e.hooks.Progress != nil {
		e.hooks.Progress(r.End-r.Start, r.End-r.Start)
	}
	return nil
}

// TuneOne tunes a single RF frequency and polarization and waits for lock.
// It returns frontend.ErrLockNotAcquired when the deadline passes unlocked.
func (e *Engine) TuneOne(ctx context.Context, freq uint32, pol frontend.Polarization, symbolRate uint32, timeout time.Duration) (frontend.LockStatus, error) {
	if symbolRate == 0 {
		symbolRate = e.symbolRate
	}
	a, err := e.attempt(ctx, freq, pol, symbolRate, timeout)
	if err != nil {
		return a.Status, err
	}
	if !a.Status.HasLock {
		return a.Status, fmt.Errorf("%w at %d MHz %s", frontend.ErrLockNotAcquired, freq/1000, pol)
	}
	return a.Status, nil
}

func (e *Engine) attempt(ctx context.Context, freq uint32, pol frontend.Polarization, symbolRate uint32, timeout time.Duration) (Attempt, error) {
	ifreq, high := e.lnb.Parameters(freq)
	a := Attempt{Frequency: freq, Polarization: pol, IF: ifreq, HighBand: high}

	if e.debug {
		e.log.Printf("tuning to %d MHz, %d kSym/s, %s polarity", freq/1000, symbolRate/1000, pol)
	}
	if err := e.tuner.SetPolarization(pol); err != nil {
		return a, err
	}
	if err := e.tuner.SetTone(high); err != nil {
		return a, err
	}
	if err := e.tuner.Tune(frontend.QPSK{Frequency: ifreq, SymbolRate: symbolRate}); err != nil {
		return a, err
	}
	st, err := e.tuner.PollStatus(ctx, timeout)
	a.Status = st
	if err != nil {
		return a, err
	}
	if e.debug {
		e.log.Printf("status: %s", st)
	}
	return a, nil
}
