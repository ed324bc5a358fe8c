package scan

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/large-farva/feedhunter/internal/frontend"
	"github.com/large-farva/feedhunter/internal/lnb"
)

type tuneCall struct {
	pol  frontend.Polarization
	tone bool
	req  frontend.QPSK
}

// fakeTuner locks when lockAt reports true for the pending tune.
type fakeTuner struct {
	lockAt  func(ifreq uint32, pol frontend.Polarization) bool
	failOn  int // 1-based Tune call that fails, 0 = never
	pol     frontend.Polarization
	tone    bool
	calls   []tuneCall
	timeout time.Duration
}

func (f *fakeTuner) SetPolarization(p frontend.Polarization) error { f.pol = p; return nil }
func (f *fakeTuner) SetTone(on bool) error                         { f.tone = on; return nil }

func (f *fakeTuner) Tune(req frontend.TuningRequest) error {
	q := req.(frontend.QPSK)
	f.calls = append(f.calls, tuneCall{pol: f.pol, tone: f.tone, req: q})
	if f.failOn == len(f.calls) {
		return frontend.ErrHardwareIO
	}
	return nil
}

func (f *fakeTuner) PollStatus(ctx context.Context, timeout time.Duration) (frontend.LockStatus, error) {
	f.timeout = timeout
	if err := ctx.Err(); err != nil {
		return frontend.LockStatus{}, err
	}
	last := f.calls[len(f.calls)-1]
	if f.lockAt != nil && f.lockAt(last.req.Frequency, last.pol) {
		return frontend.LockStatus{HasSignal: true, HasLock: true}, nil
	}
	return frontend.LockStatus{HasSignal: true}, nil
}

func newEngine(t *testing.T, tuner Tuner, hooks Hooks) *Engine {
	t.Helper()
	p, err := lnb.Get(lnb.Universal)
	if err != nil {
		t.Fatal(err)
	}
	return New(tuner, Options{LNB: p, Hooks: hooks, Logger: log.New(io.Discard, "", 0)})
}

func TestScanTriesBothPolarizationsBeforeAdvancing(t *testing.T) {
	ft := &fakeTuner{}
	e := newEngine(t, ft, Hooks{})

	if err := e.Scan(context.Background(), Range{Start: 11700000, End: 11701000, Step: 1000}, time.Second); err != nil {
		t.Fatal(err)
	}

	want := []struct {
		ifreq uint32
		pol   frontend.Polarization
		tone  bool
	}{
		{1950000, frontend.Horizontal, false},
		{1950000, frontend.Vertical, false},
		{1101000, frontend.Horizontal, true},
		{1101000, frontend.Vertical, true},
	}
	if len(ft.calls) != len(want) {
		t.Fatalf("got %d tunes, want %d: %+v", len(ft.calls), len(want), ft.calls)
	}
	for i, w := range want {
		c := ft.calls[i]
		if c.req.Frequency != w.ifreq || c.pol != w.pol || c.tone != w.tone {
			t.Errorf("call %d = %+v, want IF %d %s tone=%v", i, c, w.ifreq, w.pol, w.tone)
		}
		if c.req.SymbolRate != frontend.DefaultSymbolRate {
			t.Errorf("call %d symbol rate = %d", i, c.req.SymbolRate)
		}
	}
	if ft.timeout != time.Second {
		t.Errorf("poll timeout = %s", ft.timeout)
	}
}

func TestScanResetsToHorizontalAfterLock(t *testing.T) {
	ft := &fakeTuner{lockAt: func(ifreq uint32, pol frontend.Polarization) bool {
		return ifreq == 1950000 && pol == frontend.Horizontal
	}}
	var locks []Attempt
	e := newEngine(t, ft, Hooks{Lock: func(a Attempt) { locks = append(locks, a) }})

	if err := e.Scan(context.Background(), Range{Start: 11700000, End: 11701000, Step: 1000}, time.Second); err != nil {
		t.Fatal(err)
	}
	if len(ft.calls) != 3 {
		t.Fatalf("got %d tunes, want 3: %+v", len(ft.calls), ft.calls)
	}
	if ft.calls[1].pol != frontend.Horizontal || ft.calls[1].req.Frequency != 1101000 {
		t.Errorf("after lock got %+v, want next frequency on H", ft.calls[1])
	}
	if len(locks) != 1 || locks[0].Frequency != 11700000 || locks[0].Polarization != frontend.Horizontal {
		t.Errorf("locks = %+v", locks)
	}
}

func TestSingleFrequencySweepTerminates(t *testing.T) {
	ft := &fakeTuner{}
	e := newEngine(t, ft, Hooks{})
	if err := e.Scan(context.Background(), Range{Start: 11700000, End: 11700000, Step: 1000}, time.Second); err != nil {
		t.Fatal(err)
	}
	if len(ft.calls) > 2 {
		t.Errorf("got %d tunes, want at most 2", len(ft.calls))
	}
}

func TestScanProgressAndAttemptHooks(t *testing.T) {
	ft := &fakeTuner{}
	type progress struct{ off, total uint32 }
	var got []progress
	attempts := 0
	e := newEngine(t, ft, Hooks{
		Progress: func(off, total uint32) { got = append(got, progress{off, total}) },
		Attempt:  func(Attempt) { attempts++ },
	})
	if err := e.Scan(context.Background(), Range{Start: 11000000, End: 11002000, Step: 1000}, time.Second); err != nil {
		t.Fatal(err)
	}
	want := []progress{{0, 2000}, {1000, 2000}, {2000, 2000}, {2000, 2000}}
	if len(got) != len(want) {
		t.Fatalf("progress = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("progress[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if attempts != 6 {
		t.Errorf("attempts = %d, want 6", attempts)
	}
}

func TestScanAbortsOnHardwareError(t *testing.T) {
	ft := &fakeTuner{failOn: 2}
	e := newEngine(t, ft, Hooks{})
	err := e.Scan(context.Background(), Range{Start: 11000000, End: 11010000, Step: 1000}, time.Second)
	if !errors.Is(err, frontend.ErrHardwareIO) {
		t.Fatalf("err = %v, want ErrHardwareIO", err)
	}
	if len(ft.calls) != 2 {
		t.Errorf("tunes after failure: %d", len(ft.calls))
	}
}

func TestScanAbortsOnCancel(t *testing.T) {
	ft := &fakeTuner{}
	e := newEngine(t, ft, Hooks{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := e.Scan(ctx, Range{Start: 11000000, End: 11010000, Step: 1000}, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestScanRejectsInvalidRange(t *testing.T) {
	e := newEngine(t, &fakeTuner{}, Hooks{})
	for _, r := range []Range{
		{Start: 12000000, End: 11000000, Step: 1000},
		{Start: 11000000, End: 12000000, Step: 0},
		{Start: 5000000, End: 6000000, Step: 1000}, // below the universal LNB
	} {
		if err := e.Scan(context.Background(), r, time.Second); !errors.Is(err, ErrInvalidRange) {
			t.Errorf("Scan(%+v) err = %v", r, err)
		}
	}
}

func TestStateAdvanceNearUint32Max(t *testing.T) {
	r := Range{Start: ^uint32(0) - 10, End: ^uint32(0), Step: 8}
	s := State{Frequency: r.Start}
	steps := 0
	for s.Advance(true, r) {
		steps++
		if steps > 5 {
			t.Fatal("Advance wrapped around")
		}
	}
	if steps != 1 {
		t.Errorf("steps = %d, want 1", steps)
	}
}

func TestTuneOne(t *testing.T) {
	ft := &fakeTuner{lockAt: func(ifreq uint32, pol frontend.Polarization) bool { return pol == frontend.Vertical }}
	e := newEngine(t, ft, Hooks{})

	st, err := e.TuneOne(context.Background(), 12188000, frontend.Vertical, 0, 3*time.Second)
	if err != nil || !st.HasLock {
		t.Fatalf("TuneOne(V) = %+v, %v", st, err)
	}
	if !ft.calls[0].tone || ft.calls[0].req.Frequency != 1588000 {
		t.Errorf("call = %+v", ft.calls[0])
	}

	_, err = e.TuneOne(context.Background(), 12188000, frontend.Horizontal, 22000000, 3*time.Second)
	if !errors.Is(err, frontend.ErrLockNotAcquired) {
		t.Fatalf("TuneOne(H) err = %v", err)
	}
	if ft.calls[1].req.SymbolRate != 22000000 {
		t.Errorf("symbol rate = %d", ft.calls[1].req.SymbolRate)
	}
}
