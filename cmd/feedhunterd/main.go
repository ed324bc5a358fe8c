// Feedhunterd is the feed hunter daemon. It owns the DVB tuner and the
// dish rotor, runs scans and moves on request and serves status, commands
// and live events over HTTP and WebSocket.
//
// Shutdown is handled gracefully on SIGINT or SIGTERM: a running job is
// cancelled and the tuner is powered down before exit.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/common/version"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/large-farva/feedhunter/internal/app"
	"github.com/large-farva/feedhunter/internal/config"
)

const daemonName = "feedhunterd"

func main() {
	var (
		configPath = kingpin.Flag("config", "Path to config TOML.").Short('c').Default("/etc/feedhunter/feedhunter.toml").OverrideDefaultFromEnvar("FEEDHUNTER_CONFIG").String()
		bind       = kingpin.Flag("web.listen-address", "HTTP bind address; overrides server.bind.").OverrideDefaultFromEnvar("FEEDHUNTER_LISTEN_ADDRESS").String()
		demoMode   = kingpin.Flag("demo", "Use the simulated tuner instead of the DVB device.").OverrideDefaultFromEnvar("FEEDHUNTER_DEMO").Bool()
		debug      = kingpin.Flag("debug", "Log every tune attempt.").Bool()
		writeCfg   = kingpin.Flag("write-config", "Write the default configuration to --config and exit.").Bool()
	)

	kingpin.Version(version.Print(daemonName))
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := log.New(os.Stdout, daemonName+" ", log.LstdFlags|log.Lmicroseconds)

	if *writeCfg {
		if _, err := os.Stat(*configPath); err == nil {
			logger.Fatalf("%s already exists", *configPath)
		}
		if err := config.Write(*configPath, config.Default()); err != nil {
			logger.Fatalf("write config: %v", err)
		}
		logger.Printf("wrote default config to %s", *configPath)
		return
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		logger.Fatalf("config load failed: %v", err)
	}
	loaded := *configPath
	if _, err := os.Stat(loaded); err != nil {
		logger.Printf("no config at %s, using defaults", loaded)
		loaded = ""
	}
	if *demoMode {
		cfg.Demo.Enabled = true
	}
	if *debug {
		cfg.Logging.Level = "debug"
	}

	logger.Println("starting", daemonName, version.Info())
	logger.Println("build context", version.BuildContext())

	a := app.New(app.Options{
		Logger:     logger,
		Cfg:        cfg,
		ConfigPath: loaded,
		Bind:       *bind,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("%s failed: %v", daemonName, err)
	}

	// Brief pause so in-flight log writes can flush before exit.
	time.Sleep(50 * time.Millisecond)
}
