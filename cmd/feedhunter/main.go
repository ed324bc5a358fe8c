// Feedhunter drives a local DVB-S tuner and dish rotor directly, without
// the daemon. It prints frontend capabilities, sweeps the band for
// transponders, checks a single frequency for lock, sends DiSEqC positioner
// commands and computes USALS angles.
//
// SIGINT and SIGTERM cancel the running operation; a rotor in motion is
// still sent a stop frame before the tuner is closed.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/large-farva/feedhunter/internal/config"
	"github.com/large-farva/feedhunter/internal/lnb"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "/etc/feedhunter/feedhunter.toml", "Path to config TOML (defaults apply when missing)")
		adapter    = pflag.IntP("adapter", "a", -1, "DVB adapter number (default from config)")
		frontendN  = pflag.IntP("frontend", "f", -1, "DVB frontend number (default from config)")
		lnbType    = pflag.StringP("lnb", "l", "", "LNB type: "+strings.Join(lnb.Names(), ", "))
		anyType    = pflag.Bool("any-type", false, "Accept a frontend of any delivery system")
		demoMode   = pflag.Bool("demo", false, "Use the simulated tuner")
		debug      = pflag.BoolP("debug", "d", false, "Log every tune attempt")
	)

	// Stop at the command name so each command parses its own flags.
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if pflag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fatal(fmt.Errorf("config load failed: %w", err))
	}
	if *adapter >= 0 {
		cfg.Device.Adapter = *adapter
	}
	if *frontendN >= 0 {
		cfg.Device.Frontend = *frontendN
	}
	if *lnbType != "" {
		cfg.LNB.Type = *lnbType
	}
	if *anyType {
		cfg.Device.AnyType = true
	}
	if *demoMode {
		cfg.Demo.Enabled = true
	}
	if *debug {
		cfg.Logging.Level = "debug"
	}

	logger := log.New(os.Stderr, "feedhunter ", log.LstdFlags|log.Lmicroseconds)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := &env{cfg: cfg, log: logger}
	cmd := pflag.Arg(0)
	subArgs := pflag.Args()[1:]

	switch cmd {
	case "info":
		err = cli.info()
	case "scan":
		err = cli.scan(ctx, subArgs)
	case "tune":
		err = cli.tune(ctx, subArgs)
	case "rotor":
		err = cli.rotor(ctx, subArgs)
	case "usals":
		err = cli.usals(subArgs)
	case "goto":
		err = cli.gotoSatellite(ctx, subArgs)
	case "help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}

	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "interrupted")
		os.Exit(130)
	}
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func usage() {
	fmt.Printf(`
  feedhunter - local DVB-S tuner and rotor tool

  USAGE
    feedhunter [flags] <command> [command-flags] [args]

  COMMANDS
    info                      Show frontend capabilities
    scan                      Sweep the LNB range for transponders
    tune FREQ_MHZ [h|v]       Tune one frequency and report lock
                              (polarization only for DVB-S)
    rotor ACTION [ARGS]       Send a DiSEqC 1.2 positioner command
    usals TARGET              Compute the rotor angle for a satellite
    goto TARGET               Point the dish at a satellite (USALS)

  ROTOR ACTIONS
    stop                      Stop the rotor
    limits_off                Disable the soft limits
    limit_set_east|west       Store the east/west soft limit
    go_east|go_west           Drive until --timeout or interrupted
    go_east|go_west step N    Drive N steps (1..127)
    go_east|go_west timeout N Drive for N seconds (1..127)
    store_sat N               Store the current position as N
    goto_sat N                Go to stored position N
    goto_x XX.X<e|w>          Go to an angle east or west (0..90)

  GLOBAL FLAGS
    -c, --config PATH   Config TOML (default: /etc/feedhunter/feedhunter.toml)
    -a, --adapter N     DVB adapter
    -f, --frontend N    DVB frontend
    -l, --lnb TYPE      LNB type (%s)
        --any-type      Accept a frontend of any delivery system
        --demo          Use the simulated tuner
    -d, --debug         Log every tune attempt

  COMMAND FLAGS
    scan:
        --start MHZ         First frequency (default: from config)
        --end MHZ           Last frequency (default: from config)
        --step MHZ          Step (default: from config)
        --timeout SECS      Lock timeout per polarization
        --symbol-rate SPS   Symbol rate
        --record            Append locks to the feed log in the data root
        --satellite NAME    Label recorded locks

    tune:
        --symbol-rate SPS   Symbol rate
        --timeout SECS      Lock timeout

    rotor, goto:
    -t, --timeout SECS      Wait for moves and gotos (default: 180)
    -v, --voltage 13|18     Line voltage while sending (default: 18)

    usals, goto:
    -y, --latitude DEG      Station latitude (default: from config)
    -x, --longitude DEG     Station longitude (default: from config)
        --tle               Refine satellite positions from TLE data

  EXAMPLES
    feedhunter info
    feedhunter scan --start 11700 --end 12100 --step 2
    feedhunter tune 11778 v
    feedhunter rotor goto_x 22.3e
    feedhunter rotor go_west step 5
    feedhunter -a 1 rotor --voltage 13 stop
    feedhunter usals -y 48.1 -x 11.6 19.2E
    feedhunter goto "ASTRA 1KR"

`, strings.Join(lnb.Names(), ", "))
}
