package demo

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/large-farva/feedhunter/internal/config"
	"github.com/large-farva/feedhunter/internal/diseqc"
	"github.com/large-farva/feedhunter/internal/dvb"
	"github.com/large-farva/feedhunter/internal/frontend"
	"github.com/large-farva/feedhunter/internal/lnb"
	"github.com/large-farva/feedhunter/internal/scan"
)

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func newController(t *testing.T, hw *Frontend) *frontend.Controller {
	t.Helper()
	c, err := frontend.New(hw, frontend.Options{Expect: dvb.TypeQPSK, Logger: quiet()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestScanFindsTransponder(t *testing.T) {
	universal, _ := lnb.Get(lnb.Universal)
	hw := New(Options{LNB: universal, LockDelay: time.Millisecond, Logger: quiet()})
	c := newController(t, hw)

	var locks []scan.Attempt
	e := scan.New(c, scan.Options{
		LNB:    universal,
		Logger: quiet(),
		Hooks:  scan.Hooks{Lock: func(a scan.Attempt) { locks = append(locks, a) }},
	})
	r := scan.Range{Start: 11770000, End: 11790000, Step: 4000}
	if err := e.Scan(context.Background(), r, 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if len(locks) != 1 {
		t.Fatalf("locks = %+v, want one", locks)
	}
	if locks[0].Frequency != 11778000 || locks[0].Polarization != frontend.Vertical || !locks[0].HighBand {
		t.Fatalf("lock = %+v", locks[0])
	}
}

func TestWrongPolarizationShowsSignalOnly(t *testing.T) {
	hw := New(Options{LockDelay: time.Millisecond, Logger: quiet()})
	c := newController(t, hw)
	e := scan.New(c, scan.Options{LNB: hw.opts.LNB, Logger: quiet()})

	st, err := e.TuneOne(context.Background(), 10744000, frontend.Vertical, 0, 20*time.Millisecond)
	if err == nil {
		t.Fatal("expected no lock on the wrong polarization")
	}
	if !st.HasSignal || st.HasLock {
		t.Fatalf("status = %s", st)
	}

	st, err = e.TuneOne(context.Background(), 10744000, frontend.Horizontal, 0, 20*time.Millisecond)
	if err != nil || !st.HasLock {
		t.Fatalf("status = %s, err = %v", st, err)
	}
}

func TestCBandInversion(t *testing.T) {
	cband, _ := lnb.Get(lnb.CBand)
	hw := New(Options{
		LNB:          cband,
		Transponders: []Transponder{{Frequency: 3840000, Polarization: frontend.Horizontal}},
		LockDelay:    time.Millisecond,
		Logger:       quiet(),
	})
	c := newController(t, hw)
	e := scan.New(c, scan.Options{LNB: cband, Logger: quiet()})
	if _, err := e.TuneOne(context.Background(), 3840000, frontend.Horizontal, 0, 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}
}

func TestRotorMovesDish(t *testing.T) {
	hw := New(Options{Logger: quiet()})
	r := diseqc.NewRotor(newController(t, hw), diseqc.RotorOptions{Settle: time.Nanosecond, Logger: quiet()})

	cmd, err := diseqc.Build(diseqc.ActionGotoX, diseqc.Params{Angle: 12.5, Direction: diseqc.West})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Execute(context.Background(), cmd); err != nil {
		t.Fatal(err)
	}
	if got := hw.RotorAngle(); got != -12.5 {
		t.Fatalf("angle = %v, want -12.5", got)
	}
	if n := len(hw.Frames()); n != 1 {
		t.Fatalf("frames = %d, want 1", n)
	}
}

func TestClosed(t *testing.T) {
	hw := New(Options{Logger: quiet()})
	hw.Close()
	if err := hw.SetVoltage(dvb.Voltage13); err == nil {
		t.Fatal("expected error after close")
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Demo.Transponders = []string{"11778V"}
	cfg.Demo.LockDelayMS = 1
	hw, err := FromConfig(cfg, quiet())
	if err != nil {
		t.Fatal(err)
	}
	if len(hw.opts.Transponders) != 1 || hw.opts.Transponders[0].Frequency != 11778000 ||
		hw.opts.Transponders[0].Polarization != frontend.Vertical {
		t.Fatalf("transponders = %+v", hw.opts.Transponders)
	}
	if hw.opts.LockDelay != time.Millisecond {
		t.Fatalf("lock delay = %v", hw.opts.LockDelay)
	}

	cfg.Demo.Transponders = []string{"11778X"}
	if _, err := FromConfig(cfg, quiet()); err == nil {
		t.Fatal("bad polarization accepted")
	}
}

func TestOpenClosesRejectedHardware(t *testing.T) {
	hw := New(Options{Logger: quiet()})
	_, err := wrap(hw, frontend.Options{Expect: dvb.TypeQAM, Logger: quiet()})
	if !errors.Is(err, frontend.ErrDeviceOpen) {
		t.Fatalf("err = %v, want ErrDeviceOpen", err)
	}
	if err := hw.SetVoltage(dvb.Voltage18); err == nil {
		t.Fatal("rejected hardware was left open")
	}

	cfg := config.Default()
	cfg.Demo.LockDelayMS = 1
	ctl, err := Open(cfg, frontend.Options{Expect: dvb.TypeQPSK, Logger: quiet()})
	if err != nil {
		t.Fatal(err)
	}
	defer ctl.Close()
	if ctl.Info().Type != dvb.TypeQPSK {
		t.Fatalf("type = %s", ctl.Info().Type)
	}
}
