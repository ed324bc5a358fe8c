package runner

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/large-farva/feedhunter/internal/catalog"
	"github.com/large-farva/feedhunter/internal/config"
	"github.com/large-farva/feedhunter/internal/demo"
	"github.com/large-farva/feedhunter/internal/dvb"
	"github.com/large-farva/feedhunter/internal/feeds"
	"github.com/large-farva/feedhunter/internal/frontend"
	"github.com/large-farva/feedhunter/internal/metrics"
	"github.com/large-farva/feedhunter/internal/station"
	"github.com/large-farva/feedhunter/internal/telemetry"
	"github.com/large-farva/feedhunter/internal/usals"
)

type recorder struct {
	mu     sync.Mutex
	events []telemetry.Event
	raw    [][]byte
}

func (r *recorder) BroadcastJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var ev telemetry.Event
	_ = json.Unmarshal(b, &ev)
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.raw = append(r.raw, b)
	r.mu.Unlock()
}

func (r *recorder) count(t telemetry.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func counterValue(t *testing.T, g prometheus.Gatherer, name, label, value string) float64 {
	t.Helper()
	mfs, err := g.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

type fixture struct {
	runner  *Runner
	fe      *demo.Frontend
	feeds   *feeds.Log
	metrics *metrics.Metrics
	events  *recorder
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func newFixture(t *testing.T, mods ...func(*config.Config)) *fixture {
	t.Helper()
	fe := demo.New(demo.Options{LockDelay: time.Millisecond, Logger: quietLogger()})
	ctl, err := frontend.New(fe, frontend.Options{Expect: dvb.TypeQPSK, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Data.Root = t.TempDir()
	cfg.Scan.TimeoutSeconds = 1
	cfg.Rotor.TimeoutSeconds = 1
	cfg.Rotor.SettleMS = 1
	for _, mod := range mods {
		mod(&cfg)
	}

	fl, err := feeds.Open(cfg.Data.Root)
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{fe: fe, feeds: fl, metrics: metrics.New(), events: &recorder{}}
	f.runner = New(Options{
		Controller: ctl,
		Config:     cfg,
		Location:   station.Location{Lat: 50, Lon: 5, Source: "config"},
		Catalog:    catalog.New(nil, quietLogger()),
		Feeds:      fl,
		Metrics:    f.metrics,
		Hub:        f.events,
		Logger:     quietLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.runner.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return f
}

func (f *fixture) send(t *testing.T, typ string, payload any) CommandResult {
	t.Helper()
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatal(err)
		}
		raw = b
	}
	reply := make(chan CommandResult, 1)
	f.runner.Commands <- Command{Type: typ, Payload: raw, Reply: reply}
	select {
	case res := <-reply:
		return res
	case <-time.After(10 * time.Second):
		t.Fatalf("no reply to %s", typ)
		return CommandResult{}
	}
}

func (f *fixture) waitIdle(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for f.runner.Busy() {
		if time.Now().After(deadline) {
			t.Fatalf("runner still busy in state %s", f.runner.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTuneLocks(t *testing.T) {
	f := newFixture(t)
	res := f.send(t, "tune", TuneRequest{FrequencyMHz: 11778, Polarization: "v"})
	if !res.OK {
		t.Fatalf("tune failed: %s", res.Error)
	}
	if res.Status == nil || !res.Status.HasLock {
		t.Fatalf("status = %+v, want lock", res.Status)
	}
	f.waitIdle(t)

	list := f.feeds.List()
	if len(list) != 1 || list[0].Frequency != 11778000 || list[0].Polarization != frontend.Vertical {
		t.Fatalf("feeds = %+v", list)
	}
	if f.events.count(telemetry.EventLock) != 1 {
		t.Fatalf("lock events = %d, want 1", f.events.count(telemetry.EventLock))
	}
	if last := f.runner.Status().LastLock; last == nil || last.Frequency != 11778000 {
		t.Fatalf("last lock = %+v", last)
	}
}

func TestTuneWrongPolarization(t *testing.T) {
	f := newFixture(t)
	res := f.send(t, "tune", TuneRequest{FrequencyMHz: 11778, Polarization: "h"})
	if res.OK {
		t.Fatal("tune on the wrong polarization reported success")
	}
	if !strings.Contains(res.Error, "lock not acquired") {
		t.Fatalf("error = %q", res.Error)
	}
	if res.Status == nil || !res.Status.HasSignal || res.Status.HasLock {
		t.Fatalf("status = %+v, want signal without lock", res.Status)
	}
	f.waitIdle(t)
	if n := len(f.feeds.List()); n != 0 {
		t.Fatalf("feeds = %d, want 0", n)
	}
}

func TestTuneRejectsBadPayload(t *testing.T) {
	f := newFixture(t)
	if res := f.send(t, "tune", TuneRequest{Polarization: "v"}); res.OK {
		t.Fatal("tune without a frequency accepted")
	}
	if res := f.send(t, "tune", TuneRequest{FrequencyMHz: 11778, Polarization: "x"}); res.OK {
		t.Fatal("bad polarization accepted")
	}
	reply := make(chan CommandResult, 1)
	f.runner.Commands <- Command{Type: "tune", Payload: json.RawMessage(`{`), Reply: reply}
	if res := <-reply; res.OK || !strings.Contains(res.Error, "invalid payload") {
		t.Fatalf("result = %+v", res)
	}
}

func TestScanRecordsLocks(t *testing.T) {
	f := newFixture(t)
	res := f.send(t, "scan", ScanRequest{StartMHz: 11778, EndMHz: 11778, StepMHz: 1, Satellite: "ASTRA 1KR"})
	if !res.OK {
		t.Fatalf("scan failed: %s", res.Error)
	}
	f.waitIdle(t)

	list := f.feeds.List()
	if len(list) != 1 || list[0].Satellite != "ASTRA 1KR" {
		t.Fatalf("feeds = %+v", list)
	}
	if f.events.count(telemetry.EventAttempt) != 2 {
		t.Fatalf("attempt events = %d, want 2 (H then V)", f.events.count(telemetry.EventAttempt))
	}
	if f.events.count(telemetry.EventProgress) < 2 {
		t.Fatalf("progress events = %d", f.events.count(telemetry.EventProgress))
	}
	if f.events.count(telemetry.EventState) < 2 {
		t.Fatalf("state events = %d, want SCANNING and IDLE", f.events.count(telemetry.EventState))
	}
	if got := f.runner.State(); got != StateIdle {
		t.Fatalf("state = %s", got)
	}
}

func TestScanRejectsRange(t *testing.T) {
	f := newFixture(t)
	if res := f.send(t, "scan", ScanRequest{StartMHz: 12000, EndMHz: 11000}); res.OK {
		t.Fatal("reversed range accepted")
	}
	if res := f.send(t, "scan", ScanRequest{StartMHz: 3000, EndMHz: 4000}); res.OK {
		t.Fatal("range outside the LNB accepted")
	}
	if f.runner.Busy() {
		t.Fatal("rejected scan left a job running")
	}
}

func TestGotoPointsDish(t *testing.T) {
	f := newFixture(t)
	res := f.send(t, "goto", GotoRequest{Satellite: "astra 1kr"})
	if !res.OK {
		t.Fatalf("goto failed: %s", res.Error)
	}
	want, err := usals.Solve(5, 50, 19.2)
	if err != nil {
		t.Fatal(err)
	}
	if res.Position == nil || *res.Position != want {
		t.Fatalf("position = %+v, want %+v", res.Position, want)
	}
	f.waitIdle(t)

	if got := f.fe.RotorAngle(); math.Abs(got-want.Angle) > 0.1+1e-9 {
		t.Fatalf("dish at %.2f, want %.2f", got, want.Angle)
	}
	p := f.runner.Status().Pointing
	if p == nil || p.Satellite != "ASTRA 1KR" || p.Longitude != 19.2 {
		t.Fatalf("pointing = %+v", p)
	}
	if n := counterValue(t, f.metrics.Registry(), "feedhunter_rotor_diseqc_commands_total", "command", "goto_angle"); n != 1 {
		t.Fatalf("goto_angle counter = %v", n)
	}
	if f.events.count(telemetry.EventRotor) != 1 {
		t.Fatalf("rotor events = %d", f.events.count(telemetry.EventRotor))
	}
}

func TestGotoLongitudeAndRejects(t *testing.T) {
	f := newFixture(t)
	lon := -170.0
	if res := f.send(t, "goto", GotoRequest{Longitude: &lon}); res.OK {
		t.Fatal("satellite below the horizon accepted")
	}
	if res := f.send(t, "goto", GotoRequest{Satellite: "NOT A BIRD"}); res.OK {
		t.Fatal("unknown satellite accepted")
	}
	if res := f.send(t, "goto", GotoRequest{}); res.OK {
		t.Fatal("empty goto accepted")
	}
	lon = 5
	res := f.send(t, "goto", GotoRequest{Longitude: &lon})
	if !res.OK || res.Position.Angle != 0 {
		t.Fatalf("goto 5E = %+v", res)
	}
	f.waitIdle(t)
}

func longRotorWait(cfg *config.Config) { cfg.Rotor.TimeoutSeconds = 60 }

func TestBusyAndCancel(t *testing.T) {
	f := newFixture(t, longRotorWait)
	if res := f.send(t, "rotor", RotorRequest{Command: "go_east"}); !res.OK {
		t.Fatalf("go_east failed: %s", res.Error)
	}
	res := f.send(t, "tune", TuneRequest{FrequencyMHz: 11778, Polarization: "v"})
	if res.OK || !strings.Contains(res.Error, "another job") {
		t.Fatalf("tune while busy = %+v", res)
	}
	if res := f.send(t, "cancel", nil); !res.OK {
		t.Fatalf("cancel failed: %s", res.Error)
	}
	f.waitIdle(t)
	if res := f.send(t, "cancel", nil); res.OK {
		t.Fatal("cancel without a job reported success")
	}
}

func TestRotorStopPreempts(t *testing.T) {
	f := newFixture(t, longRotorWait)
	if res := f.send(t, "rotor", RotorRequest{Command: "go_west"}); !res.OK {
		t.Fatalf("go_west failed: %s", res.Error)
	}
	res := f.send(t, "rotor", RotorRequest{Command: "stop"})
	if !res.OK {
		t.Fatalf("stop failed: %s", res.Error)
	}
	if res.Frame != "0xE0 0x31 0x60" {
		t.Fatalf("frame = %q", res.Frame)
	}
	f.waitIdle(t)
	frames := f.fe.Frames()
	if len(frames) == 0 {
		t.Fatal("no frames sent")
	}
	if last := frames[len(frames)-1]; len(last) != 3 || last[2] != 0x60 {
		t.Fatalf("last frame = % X, want stop", last)
	}
}

func TestRotorRejects(t *testing.T) {
	f := newFixture(t)
	tests := []RotorRequest{
		{Command: "spin"},
		{Command: "go_east", Steps: 1, Timeout: 1},
		{Command: "goto_x", Angle: 10, Direction: "up"},
		{Command: "store_sat", Slot: 300},
	}
	for _, req := range tests {
		if res := f.send(t, "rotor", req); res.OK {
			t.Errorf("%+v accepted", req)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t)
	res := f.send(t, "dance", nil)
	if res.OK || !strings.Contains(res.Error, "unknown command") {
		t.Fatalf("result = %+v", res)
	}
}

func TestCatalogRefreshWithoutStore(t *testing.T) {
	f := newFixture(t)
	res := f.send(t, "catalog_refresh", nil)
	if !res.OK || res.SatellitesUpdated != 0 {
		t.Fatalf("result = %+v", res)
	}
}
