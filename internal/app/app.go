// Package app wires together the HTTP server, the WebSocket hub, the
// frontend (real or simulated) and the job runner. It owns the daemon's
// lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"github.com/large-farva/feedhunter/internal/catalog"
	"github.com/large-farva/feedhunter/internal/config"
	"github.com/large-farva/feedhunter/internal/demo"
	"github.com/large-farva/feedhunter/internal/feeds"
	"github.com/large-farva/feedhunter/internal/frontend"
	"github.com/large-farva/feedhunter/internal/metrics"
	"github.com/large-farva/feedhunter/internal/runner"
	"github.com/large-farva/feedhunter/internal/station"
	"github.com/large-farva/feedhunter/internal/telemetry"
	"github.com/large-farva/feedhunter/internal/ws"
)

const component = "feedhunterd"

// Options holds everything the App needs from the caller.
type Options struct {
	Logger     *log.Logger
	Cfg        config.Config
	ConfigPath string
	Bind       string

	// Hardware replaces the frontend named by the config. Demo mode
	// ignores it.
	Hardware frontend.Hardware
}

// App is the top-level daemon process.
type App struct {
	log        *log.Logger
	cfg        config.Config
	configPath string
	bind       string
	hw         frontend.Hardware
	server     *http.Server

	startedAt time.Time

	wsHub   *ws.Hub
	metrics *metrics.Metrics
	catalog *catalog.Catalog
	store   *catalog.Store
	feeds   *feeds.Log
	runner  *runner.Runner
	loc     station.Location
	device  string

	wg sync.WaitGroup

	listen func(network, addr string) (net.Listener, error)
}

// New creates an App. Call Run to start serving.
func New(opts Options) *App {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &App{
		log:        logger,
		cfg:        opts.Cfg,
		configPath: opts.ConfigPath,
		bind:       opts.Bind,
		hw:         opts.Hardware,
		startedAt:  time.Now(),
		wsHub:      ws.NewHub(),
		metrics:    metrics.New(),
	}
}

// Run opens the frontend, starts the hub, the heartbeat and the runner,
// and serves HTTP until ctx is cancelled or the server fails. Either way
// the background goroutines are stopped and the frontend is closed before
// Run returns.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bind := a.bind
	if bind == "" {
		bind = a.cfg.Server.Bind
	}

	listen := a.listen
	if listen == nil {
		listen = net.Listen
	}
	ln, err := listen("tcp", bind)
	if err != nil {
		return err
	}
	ln = netutil.LimitListener(ln, a.cfg.Server.MaxConnections)

	if err := a.start(ctx); err != nil {
		_ = ln.Close()
		return err
	}

	a.server = &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.log.Printf("listening on http://%s", bind)

	go func() {
		<-ctx.Done()
		a.log.Printf("shutdown requested")
		_ = a.server.Shutdown(context.Background())
	}()

	err = a.server.Serve(ln)
	cancel()
	a.wg.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// start brings up everything behind the HTTP surface.
func (a *App) start(ctx context.Context) error {
	if err := os.MkdirAll(a.cfg.Data.Root, 0o755); err != nil {
		return fmt.Errorf("create data root: %w", err)
	}

	ctl, err := a.openFrontend()
	if err != nil {
		return err
	}

	fl, err := feeds.Open(a.cfg.Data.Root)
	if err != nil {
		_ = ctl.Close()
		return err
	}
	a.feeds = fl

	a.store = catalog.NewStore(a.cfg.Catalog.TLEURL, a.cfg.Data.Root, a.cfg.Catalog.RefreshHours)
	a.catalog = catalog.New(a.store, a.log)

	a.loc = station.Resolve(station.Options{
		Latitude:  a.cfg.Station.Latitude,
		Longitude: a.cfg.Station.Longitude,
		UseGPSD:   a.cfg.Station.UseGPSD,
		GPSDHost:  a.cfg.Station.GPSDHost,
		Logger:    a.log,
	})
	a.log.Printf("station at %s", a.loc)

	a.runner = runner.New(runner.Options{
		Controller: ctl,
		Config:     a.cfg,
		Location:   a.loc,
		Catalog:    a.catalog,
		Feeds:      a.feeds,
		Metrics:    a.metrics,
		Hub:        a.wsHub,
		Logger:     a.log,
	})
	a.wsHub.Snapshot = func() any { return a.heartbeat() }

	a.wg.Add(3)
	go func() {
		defer a.wg.Done()
		a.wsHub.Run(ctx)
	}()
	go func() {
		defer a.wg.Done()
		a.runner.Run(ctx)
	}()
	go func() {
		defer a.wg.Done()
		a.heartbeatLoop(ctx)
	}()
	go a.refreshCatalog()
	return nil
}

func (a *App) openFrontend() (*frontend.Controller, error) {
	typ, err := a.cfg.Device.DeliveryType()
	if err != nil {
		return nil, err
	}
	opts := frontend.Options{
		Expect:  typ,
		AnyType: a.cfg.Device.AnyType,
		Logger:  a.log,
		Debug:   a.cfg.Logging.Debug(),
	}

	var ctl *frontend.Controller
	switch {
	case a.cfg.Demo.Enabled:
		a.device = "demo"
		ctl, err = demo.Open(a.cfg, opts)
		if err != nil {
			return nil, err
		}
	case a.hw != nil:
		a.device = "injected"
		ctl, err = frontend.New(a.hw, opts)
		if err != nil {
			return nil, err
		}
	default:
		a.device = a.cfg.Device.Path()
		ctl, err = frontend.Open(a.device, opts)
		if err != nil {
			return nil, err
		}
	}
	return ctl, nil
}

// refreshCatalog loads TLE positions once at startup. Failures leave the
// nominal table in place.
func (a *App) refreshCatalog() {
	n, err := a.catalog.Refresh(false)
	if err != nil {
		a.emit(telemetry.NewLog(component, "warn", "catalog refresh failed, using nominal positions: "+err.Error()))
		a.log.Printf("catalog refresh failed: %v", err)
		return
	}
	a.log.Printf("catalog loaded, %d satellites from TLE data", n)
}

func (a *App) heartbeat() telemetry.Heartbeat {
	return telemetry.Heartbeat{
		Event:         telemetry.NewEvent(telemetry.EventHeartbeat, component),
		State:         a.runner.State(),
		UptimeSeconds: int64(time.Since(a.startedAt).Seconds()),
		Device:        a.device,
	}
}

// heartbeatLoop sends a periodic heartbeat event so clients can detect
// connectivity and track uptime without polling.
func (a *App) heartbeatLoop(ctx context.Context) {
	t := time.NewTicker(10 * time.Second)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.emit(a.heartbeat())
		}
	}
}

func (a *App) emit(v any) {
	a.wsHub.BroadcastJSON(v)
}
