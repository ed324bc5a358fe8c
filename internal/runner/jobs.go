package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/large-farva/feedhunter/internal/catalog"
	"github.com/large-farva/feedhunter/internal/diseqc"
	"github.com/large-farva/feedhunter/internal/frontend"
	"github.com/large-farva/feedhunter/internal/scan"
	"github.com/large-farva/feedhunter/internal/telemetry"
	"github.com/large-farva/feedhunter/internal/usals"
)

// ScanRequest is the payload of a "scan" command. Zero fields take the
// configured defaults.
type ScanRequest struct {
	StartMHz       uint32 `json:"start_mhz,omitempty"`
	EndMHz         uint32 `json:"end_mhz,omitempty"`
	StepMHz        uint32 `json:"step_mhz,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	Satellite      string `json:"satellite,omitempty"`
}

// TuneRequest is the payload of a "tune" command.
type TuneRequest struct {
	FrequencyMHz   float64 `json:"frequency_mhz"`
	Polarization   string  `json:"polarization"`
	SymbolRate     uint32  `json:"symbol_rate,omitempty"`
	TimeoutSeconds int     `json:"timeout_seconds,omitempty"`
}

// RotorRequest is the payload of a "rotor" command.
type RotorRequest struct {
	Command   string  `json:"command"`
	Steps     int     `json:"steps,omitempty"`
	Timeout   int     `json:"timeout,omitempty"`
	Slot      int     `json:"slot,omitempty"`
	Angle     float64 `json:"angle,omitempty"`
	Direction string  `json:"direction,omitempty"`
}

// GotoRequest is the payload of a "goto" command. Longitude, when set,
// takes precedence over Satellite.
type GotoRequest struct {
	Satellite string   `json:"satellite,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

func decode(cmd Command, v any) bool {
	if len(cmd.Payload) == 0 {
		return true
	}
	if err := json.Unmarshal(cmd.Payload, v); err != nil {
		cmd.Reply <- CommandResult{OK: false, Error: "invalid payload: " + err.Error()}
		return false
	}
	return true
}

// handleScanCommand starts a sweep and replies as soon as it is running.
func (r *Runner) handleScanCommand(ctx context.Context, cmd Command) {
	req := ScanRequest{}
	if !decode(cmd, &req) {
		return
	}
	if req.StartMHz == 0 {
		req.StartMHz = r.cfg.Scan.StartMHz
	}
	if req.EndMHz == 0 {
		req.EndMHz = r.cfg.Scan.EndMHz
	}
	if req.StepMHz == 0 {
		req.StepMHz = r.cfg.Scan.StepMHz
	}
	timeout := r.cfg.Scan.Timeout()
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	prof, err := r.cfg.LNB.Profile()
	if err != nil {
		cmd.Reply <- failed(err)
		return
	}
	rng := scan.Range{Start: req.StartMHz * 1000, End: req.EndMHz * 1000, Step: req.StepMHz * 1000}
	if rng.Start > rng.End {
		cmd.Reply <- failed(fmt.Errorf("%w: start %d MHz > end %d MHz", scan.ErrInvalidRange, req.StartMHz, req.EndMHz))
		return
	}
	if lo, hi := prof.Clamp(rng.Start, rng.End); lo > hi {
		cmd.Reply <- failed(fmt.Errorf("%w: range outside the %s LNB limits", scan.ErrInvalidRange, prof.Name))
		return
	}

	satellite := req.Satellite
	if satellite == "" {
		if p := r.Status().Pointing; p != nil {
			satellite = p.Satellite
		}
	}

	var locks int
	engine := scan.New(r.ctl, scan.Options{
		LNB:        prof,
		SymbolRate: r.cfg.Scan.SymbolRate,
		Logger:     r.log,
		Debug:      r.cfg.Logging.Debug(),
		Hooks: scan.Hooks{
			Progress: r.scanProgress,
			Attempt: func(a scan.Attempt) {
				r.metrics.ObserveAttempt(a.Polarization, a.Status)
				r.broadcast(attemptEvent(telemetry.EventAttempt, a))
			},
			Lock: func(a scan.Attempt) {
				locks++
				r.recordLock(a, satellite)
			},
		},
	})

	err = r.start(ctx, "scan", StateScanning, func(ctx context.Context) error {
		r.metrics.ScanStarted()
		err := engine.Scan(ctx, rng, timeout)
		switch {
		case errors.Is(err, context.Canceled):
			r.metrics.ScanFinished("cancelled")
		case err != nil:
			r.metrics.ScanFinished("error")
		default:
			r.metrics.ScanFinished("ok")
			r.logf("info", "scan finished, %d locks", locks)
		}
		return err
	})
	if err != nil {
		cmd.Reply <- failed(err)
		return
	}
	cmd.Reply <- CommandResult{
		OK:      true,
		Message: fmt.Sprintf("scan started: %d to %d MHz, step %d MHz", req.StartMHz, req.EndMHz, req.StepMHz),
	}
}

func (r *Runner) scanProgress(offset, total uint32) {
	r.metrics.ScanProgress(offset, total)
	pct := 100.0
	if total > 0 {
		pct = float64(offset) / float64(total) * 100
	}
	r.broadcast(telemetry.Progress{
		Event:     telemetry.NewEvent(telemetry.EventProgress, component),
		Stage:     "scan",
		Percent:   pct,
		OffsetKHz: offset,
		TotalKHz:  total,
	})
}

// recordLock remembers a locked attempt, adds it to the feed log and
// announces it.
func (r *Runner) recordLock(a scan.Attempt, satellite string) {
	r.mu.Lock()
	r.lastLock = &a
	r.mu.Unlock()
	if r.feeds != nil {
		if _, err := r.feeds.Record(a, satellite); err != nil {
			r.logf("error", "record feed: %v", err)
		}
	}
	r.broadcast(attemptEvent(telemetry.EventLock, a))
}

func attemptEvent(t telemetry.EventType, a scan.Attempt) telemetry.Attempt {
	return telemetry.Attempt{
		Event:        telemetry.NewEvent(t, component),
		FrequencyKHz: a.Frequency,
		Polarization: a.Polarization.String(),
		IFKHz:        a.IF,
		HighBand:     a.HighBand,
		Signal:       a.Status.HasSignal,
		Carrier:      a.Status.HasCarrier,
		Viterbi:      a.Status.HasViterbi,
		Sync:         a.Status.HasSync,
		Locked:       a.Status.HasLock,
	}
}

// handleTuneCommand tunes one transponder and replies once the lock poll
// has finished.
func (r *Runner) handleTuneCommand(ctx context.Context, cmd Command) {
	var req TuneRequest
	if !decode(cmd, &req) {
		return
	}
	if req.FrequencyMHz <= 0 {
		cmd.Reply <- CommandResult{OK: false, Error: "frequency_mhz is required"}
		return
	}
	pol, err := frontend.ParsePolarization(req.Polarization)
	if err != nil {
		cmd.Reply <- failed(err)
		return
	}
	prof, err := r.cfg.LNB.Profile()
	if err != nil {
		cmd.Reply <- failed(err)
		return
	}
	timeout := r.cfg.Scan.Timeout()
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	freq := uint32(req.FrequencyMHz*1000 + 0.5)
	engine := scan.New(r.ctl, scan.Options{
		LNB:        prof,
		SymbolRate: r.cfg.Scan.SymbolRate,
		Logger:     r.log,
		Debug:      r.cfg.Logging.Debug(),
	})

	err = r.start(ctx, "tune", StateTuning, func(ctx context.Context) error {
		st, err := engine.TuneOne(ctx, freq, pol, req.SymbolRate, timeout)
		ifreq, high := prof.Parameters(freq)
		a := scan.Attempt{Frequency: freq, Polarization: pol, IF: ifreq, HighBand: high, Status: st}
		r.metrics.ObserveAttempt(pol, st)
		r.broadcast(attemptEvent(telemetry.EventAttempt, a))

		res := CommandResult{Status: &st}
		switch {
		case err == nil:
			r.recordLock(a, "")
			res.OK = true
			res.Message = fmt.Sprintf("locked at %d MHz %s", freq/1000, pol)
		default:
			res.Error = err.Error()
		}
		cmd.Reply <- res
		if errors.Is(err, frontend.ErrLockNotAcquired) {
			return nil
		}
		return err
	})
	if err != nil {
		cmd.Reply <- failed(err)
	}
}

// handleRotorCommand sends one raw positioner command. A stop preempts
// whatever job is running.
func (r *Runner) handleRotorCommand(ctx context.Context, cmd Command) {
	var req RotorRequest
	if !decode(cmd, &req) {
		return
	}
	action, err := diseqc.ParseAction(req.Command)
	if err != nil {
		cmd.Reply <- failed(err)
		return
	}
	p := diseqc.Params{
		Steps:       req.Steps,
		Timeout:     req.Timeout,
		Slot:        req.Slot,
		Angle:       req.Angle,
		DefaultWait: r.cfg.Rotor.Wait(),
	}
	if action == diseqc.ActionGotoX {
		if p.Direction, err = diseqc.ParseDirection(req.Direction); err != nil {
			cmd.Reply <- failed(err)
			return
		}
	}
	rc, err := diseqc.Build(action, p)
	if err != nil {
		cmd.Reply <- failed(err)
		return
	}

	if action == diseqc.ActionStop && r.Cancel() {
		r.Wait()
	}
	if err := r.startRotor(ctx, string(action), rc, nil); err != nil {
		cmd.Reply <- failed(err)
		return
	}
	cmd.Reply <- CommandResult{
		OK:      true,
		Message: fmt.Sprintf("%s sent, waiting %s", action, rc.Wait),
		Frame:   rc.Frame.String(),
	}
}

// handleGotoCommand points the dish at a satellite through USALS.
func (r *Runner) handleGotoCommand(ctx context.Context, cmd Command) {
	var req GotoRequest
	if !decode(cmd, &req) {
		return
	}
	target := Pointing{Satellite: req.Satellite}
	switch {
	case req.Longitude != nil:
		target.Longitude = *req.Longitude
		target.Satellite = catalog.FormatLongitude(*req.Longitude)
	case req.Satellite == "":
		cmd.Reply <- CommandResult{OK: false, Error: "satellite or longitude is required"}
		return
	case r.catalog == nil:
		cmd.Reply <- CommandResult{OK: false, Error: "no satellite catalog"}
		return
	default:
		sat, err := r.catalog.Lookup(req.Satellite)
		if err != nil {
			cmd.Reply <- failed(err)
			return
		}
		target.Satellite = sat.Name
		target.Longitude = sat.Longitude
	}

	pos, err := usals.Solve(r.loc.Lon, r.loc.Lat, target.Longitude)
	if err != nil {
		cmd.Reply <- failed(err)
		return
	}
	rc, err := pos.Command(r.cfg.Rotor.Wait())
	if err != nil {
		cmd.Reply <- failed(err)
		return
	}
	target.Position = pos

	r.logf("info", "pointing at %s (%s): rotor %s", target.Satellite, catalog.FormatLongitude(target.Longitude), pos)
	err = r.startRotor(ctx, "goto", rc, func() {
		target.At = time.Now().UTC()
		r.mu.Lock()
		r.pointing = &target
		r.mu.Unlock()
	})
	if err != nil {
		cmd.Reply <- failed(err)
		return
	}
	cmd.Reply <- CommandResult{
		OK:       true,
		Message:  fmt.Sprintf("moving to %s, rotor %s", target.Satellite, pos),
		Position: &pos,
		Frame:    rc.Frame.String(),
	}
}

// startRotor runs rc as a ROTATING job. done runs after a successful
// transmission.
func (r *Runner) startRotor(ctx context.Context, job string, rc diseqc.Command, done func()) error {
	return r.start(ctx, job, StateRotating, func(ctx context.Context) error {
		if err := r.rotor.Execute(ctx, rc); err != nil {
			return err
		}
		if done != nil {
			done()
		}
		return nil
	})
}

func (r *Runner) frameSent(f diseqc.Frame) {
	r.metrics.DiseqcSent(f.Bytes())
	r.broadcast(telemetry.Rotor{
		Event:   telemetry.NewEvent(telemetry.EventRotor, component),
		Command: string(f.Action()),
		Frame:   f.String(),
	})
}

func (r *Runner) handleCatalogRefreshCommand(cmd Command) {
	if r.catalog == nil {
		cmd.Reply <- CommandResult{OK: false, Error: "no satellite catalog"}
		return
	}
	n, err := r.catalog.Refresh(true)
	if err != nil {
		cmd.Reply <- CommandResult{OK: false, Error: "catalog refresh failed: " + err.Error()}
		return
	}
	r.logf("info", "catalog refreshed, %d satellites from TLE data", n)
	cmd.Reply <- CommandResult{
		OK:                true,
		Message:           fmt.Sprintf("catalog refreshed, %d satellites updated", n),
		SatellitesUpdated: n,
	}
}
