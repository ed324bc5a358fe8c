// Package runner serializes everything that touches the tuner. HTTP
// handlers send it commands; it runs at most one hardware job at a time
// (a scan, a tune or a rotor move) and reports progress over the hub.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/large-farva/feedhunter/internal/catalog"
	"github.com/large-farva/feedhunter/internal/config"
	"github.com/large-farva/feedhunter/internal/diseqc"
	"github.com/large-farva/feedhunter/internal/feeds"
	"github.com/large-farva/feedhunter/internal/frontend"
	"github.com/large-farva/feedhunter/internal/metrics"
	"github.com/large-farva/feedhunter/internal/scan"
	"github.com/large-farva/feedhunter/internal/station"
	"github.com/large-farva/feedhunter/internal/telemetry"
	"github.com/large-farva/feedhunter/internal/usals"
	"github.com/large-farva/feedhunter/internal/ws"
)

// Runner states.
const (
	StateIdle     = "IDLE"
	StateScanning = "SCANNING"
	StateTuning   = "TUNING"
	StateRotating = "ROTATING"
)

const component = "runner"

// ErrBusy is returned when a hardware job is already running.
var ErrBusy = errors.New("another job is running")

// Command represents an external command sent to the runner via its
// Commands channel. The Reply channel receives exactly one result.
type Command struct {
	Type    string
	Payload json.RawMessage
	Reply   chan<- CommandResult
}

// CommandResult is the response sent back through a Command's Reply channel.
type CommandResult struct {
	OK                bool                 `json:"ok"`
	Message           string               `json:"message,omitempty"`
	Error             string               `json:"error,omitempty"`
	Status            *frontend.LockStatus `json:"status,omitempty"`
	Position          *usals.Position      `json:"position,omitempty"`
	Frame             string               `json:"frame,omitempty"`
	SatellitesUpdated int                  `json:"satellites_updated,omitempty"`
	Busy              bool                 `json:"busy,omitempty"`
}

func failed(err error) CommandResult {
	return CommandResult{OK: false, Error: err.Error(), Busy: errors.Is(err, ErrBusy)}
}

// Pointing is where the last goto sent the dish.
type Pointing struct {
	Satellite string         `json:"satellite,omitempty"`
	Longitude float64        `json:"longitude"`
	Position  usals.Position `json:"position"`
	At        time.Time      `json:"at"`
}

// Status is a point-in-time view of the runner.
type Status struct {
	State    string        `json:"state"`
	Job      string        `json:"job,omitempty"`
	Since    time.Time     `json:"since"`
	Pointing *Pointing     `json:"pointing,omitempty"`
	LastLock *scan.Attempt `json:"last_lock,omitempty"`
}

// Options holds the runner's collaborators. Catalog, Feeds and Metrics
// may be nil.
type Options struct {
	Controller *frontend.Controller
	Config     config.Config
	Location   station.Location
	Catalog    *catalog.Catalog
	Feeds      *feeds.Log
	Metrics    *metrics.Metrics
	Hub        ws.Broadcaster
	Logger     *log.Logger
}

// Runner owns the frontend controller for its whole lifetime and closes it
// when Run returns.
type Runner struct {
	// Commands receives external commands from HTTP handlers.
	Commands chan Command

	ctl     *frontend.Controller
	cfg     config.Config
	loc     station.Location
	catalog *catalog.Catalog
	feeds   *feeds.Log
	metrics *metrics.Metrics
	hub     ws.Broadcaster
	log     *log.Logger
	rotor   *diseqc.Rotor

	state atomic.Value // string

	mu        sync.Mutex
	job       string
	since     time.Time
	jobCancel context.CancelFunc
	pointing  *Pointing
	lastLock  *scan.Attempt
	jobs      sync.WaitGroup
}

// New creates a runner in the IDLE state. Call Run to start it.
func New(opts Options) *Runner {
	r := &Runner{
		Commands: make(chan Command, 4),
		ctl:      opts.Controller,
		cfg:      opts.Config,
		loc:      opts.Location,
		catalog:  opts.Catalog,
		feeds:    opts.Feeds,
		metrics:  opts.Metrics,
		hub:      opts.Hub,
		log:      opts.Logger,
		since:    time.Now(),
	}
	if r.log == nil {
		r.log = log.Default()
	}
	r.state.Store(StateIdle)
	r.rotor = diseqc.NewRotor(r.ctl, diseqc.RotorOptions{
		Voltage: r.cfg.Rotor.LineVoltage(),
		Settle:  r.cfg.Rotor.Settle(),
		Logger:  r.log,
		Sent:    r.frameSent,
	})
	return r
}

// Run services Commands until ctx is cancelled, then waits for the running
// job to wind down and closes the frontend.
func (r *Runner) Run(ctx context.Context) {
	r.logf("info", "runner started on %s", r.ctl.Info().Name)
	defer func() {
		r.Cancel()
		r.jobs.Wait()
		if err := r.ctl.Close(); err != nil {
			r.log.Printf("close frontend: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-r.Commands:
			r.handleCommand(ctx, cmd)
		}
	}
}

// State returns the current state name.
func (r *Runner) State() string {
	return r.state.Load().(string)
}

// Status returns the runner's state, job and last results.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Status{State: r.State(), Job: r.job, Since: r.since}
	if r.pointing != nil {
		p := *r.pointing
		s.Pointing = &p
	}
	if r.lastLock != nil {
		a := *r.lastLock
		s.LastLock = &a
	}
	return s
}

// Busy reports whether a hardware job is running.
func (r *Runner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobCancel != nil
}

// Cancel aborts the running job. It reports whether there was one.
// Cancel bypasses the command channel so it works while a job blocks.
func (r *Runner) Cancel() bool {
	r.mu.Lock()
	cancel := r.jobCancel
	r.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Wait blocks until the running job, if any, has finished.
func (r *Runner) Wait() {
	r.jobs.Wait()
}

// handleCommand dispatches an incoming command to the appropriate handler.
func (r *Runner) handleCommand(ctx context.Context, cmd Command) {
	switch cmd.Type {
	case "scan":
		r.handleScanCommand(ctx, cmd)
	case "tune":
		r.handleTuneCommand(ctx, cmd)
	case "rotor":
		r.handleRotorCommand(ctx, cmd)
	case "goto":
		r.handleGotoCommand(ctx, cmd)
	case "catalog_refresh":
		r.handleCatalogRefreshCommand(cmd)
	case "cancel":
		if r.Cancel() {
			r.logf("info", "job cancelled by user")
			cmd.Reply <- CommandResult{OK: true, Message: "job cancelled"}
		} else {
			cmd.Reply <- CommandResult{OK: false, Error: "no job in progress"}
		}
	default:
		cmd.Reply <- CommandResult{OK: false, Error: "unknown command: " + cmd.Type}
	}
}

// start launches fn as the single hardware job. The job's context is
// cancelled by Cancel or when ctx ends.
func (r *Runner) start(ctx context.Context, job, state string, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	if r.jobCancel != nil {
		r.mu.Unlock()
		return fmt.Errorf("%w (%s)", ErrBusy, r.job)
	}
	jobCtx, cancel := context.WithCancel(ctx)
	r.jobCancel = cancel
	r.job = job
	r.jobs.Add(1)
	r.mu.Unlock()

	r.setState(state)

	go func() {
		defer r.jobs.Done()
		began := time.Now()
		err := fn(jobCtx)
		cancel()

		result := "ok"
		switch {
		case errors.Is(err, context.Canceled):
			result = "cancelled"
			r.logf("warn", "%s cancelled", job)
		case err != nil:
			result = "error"
			r.logf("error", "%s failed: %v", job, err)
		}
		r.metrics.JobDone(job, result, time.Since(began).Seconds())

		// IDLE is published before the slot is released.
		r.setState(StateIdle)
		r.mu.Lock()
		r.jobCancel = nil
		r.job = ""
		r.mu.Unlock()
	}()
	return nil
}

func (r *Runner) setState(s string) {
	old := r.State()
	if old == s {
		return
	}
	r.state.Store(s)
	r.mu.Lock()
	r.since = time.Now()
	r.mu.Unlock()
	r.broadcast(telemetry.StateTransition{
		Event: telemetry.NewEvent(telemetry.EventState, component),
		From:  old,
		To:    s,
	})
}

func (r *Runner) broadcast(v any) {
	if r.hub != nil {
		r.hub.BroadcastJSON(v)
	}
}

// logf writes to the daemon log and mirrors the line to WebSocket clients.
func (r *Runner) logf(level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.log.Print(msg)
	r.broadcast(telemetry.NewLog(component, level, msg))
}
