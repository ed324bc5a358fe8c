// Fhctl is the command-line client for monitoring and controlling a running
// feedhunterd instance. It connects over HTTP and WebSocket to query status,
// start scans and rotor moves, and stream live events from the daemon.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/large-farva/feedhunter/internal/ctl"
)

func main() {
	var (
		host    = pflag.StringP("host", "H", "http://127.0.0.1:8090", "Feedhunter daemon URL (e.g. http://192.168.8.1:8090)")
		jsonOut = pflag.Bool("json", false, "Output raw JSON instead of formatted text")
		filter  = pflag.StringSlice("filter", nil, "Event types to show in watch (e.g. --filter state,lock)")
	)

	// Stop parsing global flags at the first non-flag argument (the command
	// name), so subcommand-specific flags like --step are not rejected.
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if pflag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cmd := pflag.Arg(0)
	subArgs := pflag.Args()[1:]

	var err error
	switch cmd {
	// ── Query commands ────────────────────────────────────────────
	case "status":
		err = ctl.Status(*host, *jsonOut)

	case "health":
		err = ctl.Health(*host, *jsonOut)

	case "version":
		err = ctl.VersionInfo(*host, *jsonOut)

	case "satellites":
		err = ctl.Satellites(*host, *jsonOut)

	case "config":
		err = ctl.Config(*host, *jsonOut)

	case "feeds":
		opts := ctl.FeedsOptions{JSON: *jsonOut}
		feedFlags := pflag.NewFlagSet("feeds", pflag.ContinueOnError)
		feedFlags.BoolVar(&opts.Clear, "clear", false, "Empty the feed log")
		if err = feedFlags.Parse(subArgs); err == nil {
			err = ctl.Feeds(*host, opts)
		}

	case "usals":
		opts := ctl.USALSOptions{JSON: *jsonOut}
		usalsFlags := pflag.NewFlagSet("usals", pflag.ContinueOnError)
		usalsFlags.StringVar(&opts.Lat, "lat", "", "Station latitude override")
		usalsFlags.StringVar(&opts.Lon, "lon", "", "Station longitude override")
		if err = usalsFlags.Parse(subArgs); err == nil {
			opts.Target = strings.Join(usalsFlags.Args(), " ")
			err = ctl.USALS(*host, opts)
		}

	// ── Control commands ──────────────────────────────────────────
	case "scan":
		opts := ctl.ScanOptions{JSON: *jsonOut}
		scanFlags := pflag.NewFlagSet("scan", pflag.ContinueOnError)
		scanFlags.Uint32Var(&opts.StartMHz, "start", 0, "First frequency in MHz")
		scanFlags.Uint32Var(&opts.EndMHz, "end", 0, "Last frequency in MHz")
		scanFlags.Uint32Var(&opts.StepMHz, "step", 0, "Step in MHz")
		scanFlags.IntVar(&opts.TimeoutSeconds, "timeout", 0, "Lock timeout per polarization in seconds")
		scanFlags.StringVar(&opts.Satellite, "satellite", "", "Label locks with this satellite")
		scanFlags.BoolVarP(&opts.Follow, "follow", "f", false, "Stream progress until the scan ends")
		if err = scanFlags.Parse(subArgs); err == nil {
			err = ctl.Scan(*host, opts)
		}

	case "tune":
		opts := ctl.TuneOptions{JSON: *jsonOut}
		tuneFlags := pflag.NewFlagSet("tune", pflag.ContinueOnError)
		tuneFlags.Uint32Var(&opts.SymbolRate, "symbol-rate", 0, "Symbol rate in symbols per second")
		tuneFlags.IntVar(&opts.TimeoutSeconds, "timeout", 0, "Lock timeout in seconds")
		if err = tuneFlags.Parse(subArgs); err == nil {
			if tuneFlags.NArg() != 2 {
				err = fmt.Errorf("usage: fhctl tune FREQ_MHZ h|v")
				break
			}
			opts.FrequencyMHz, err = strconv.ParseFloat(tuneFlags.Arg(0), 64)
			if err != nil {
				err = fmt.Errorf("bad frequency %q", tuneFlags.Arg(0))
				break
			}
			opts.Polarization = tuneFlags.Arg(1)
			err = ctl.Tune(*host, opts)
		}

	case "rotor":
		opts := ctl.RotorOptions{JSON: *jsonOut}
		rotorFlags := pflag.NewFlagSet("rotor", pflag.ContinueOnError)
		rotorFlags.IntVar(&opts.Steps, "steps", 0, "Steps for go_east/go_west")
		rotorFlags.IntVar(&opts.Timeout, "timeout", 0, "Drive timeout in seconds for go_east/go_west")
		rotorFlags.IntVar(&opts.Slot, "slot", 0, "Stored position for store_sat/goto_sat")
		rotorFlags.Float64Var(&opts.Angle, "angle", 0, "Angle in degrees for goto_x")
		rotorFlags.StringVar(&opts.Direction, "direction", "", "east or west for goto_x")
		if err = rotorFlags.Parse(subArgs); err == nil {
			opts.Command = rotorFlags.Arg(0)
			err = ctl.Rotor(*host, opts)
		}

	case "goto":
		if len(subArgs) == 0 {
			err = fmt.Errorf("usage: fhctl goto SATELLITE|LONGITUDE")
			break
		}
		opts := ctl.ParseGotoTarget(strings.Join(subArgs, " "))
		opts.JSON = *jsonOut
		err = ctl.Goto(*host, opts)

	case "cancel":
		err = ctl.Cancel(*host, *jsonOut)

	case "catalog-refresh":
		err = ctl.CatalogRefresh(*host, *jsonOut)

	// ── Live streaming ────────────────────────────────────────────
	case "watch":
		err = ctl.Watch(*host, ctl.WatchOptions{
			Filter: *filter,
			JSON:   *jsonOut,
		})

	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Print(`
  fhctl - feedhunter control CLI

  USAGE
    fhctl [flags] <command> [command-flags] [args]

  COMMANDS (query)
    status            Show daemon state, pointing, and last lock
    health            Check daemon and component health
    version           Show CLI and daemon version information
    satellites        List the satellite catalog with rotor positions
    config            Show the daemon's running configuration
    feeds             List every transponder that has locked
    usals TARGET      Show the rotor angle for a satellite or longitude

  COMMANDS (control)
    scan              Sweep the band for transponders
    tune FREQ POL     Lock one transponder (frequency in MHz, h or v)
    rotor COMMAND     Send a positioner command
    goto TARGET       Point the dish at a satellite or longitude
    cancel            Abort the running scan, tune, or rotor move
    catalog-refresh   Download fresh TLE data

  COMMANDS (live)
    watch             Stream live events from the daemon (Ctrl-C to stop)

  ROTOR COMMANDS
    stop, limits_off, limit_set_east, limit_set_west,
    go_east, go_west, store_sat, goto_sat, goto_x

  GLOBAL FLAGS
    -H, --host URL      Daemon base URL (default: http://127.0.0.1:8090)
        --json          Output raw JSON instead of formatted text
        --filter TYPE   Event types to show in watch (comma-separated)

  COMMAND FLAGS
    scan:
        --start MHZ         First frequency (default: from config)
        --end MHZ           Last frequency (default: from config)
        --step MHZ          Step size (default: from config)
        --timeout SECS      Lock timeout per polarization
        --satellite NAME    Label locks with this satellite
    -f, --follow            Stream progress until the scan ends

    tune:
        --symbol-rate SPS   Symbol rate (default: 27500000)
        --timeout SECS      Lock timeout

    rotor:
        --steps N           Steps for go_east/go_west
        --timeout SECS      Drive timeout for go_east/go_west
        --slot N            Stored position for store_sat/goto_sat
        --angle DEG         Angle for goto_x (0 to 90)
        --direction DIR     east or west for goto_x

    feeds:
        --clear             Empty the feed log

    usals:
        --lat DEG           Station latitude override
        --lon DEG           Station longitude override

  EXAMPLES
    fhctl status
    fhctl --json status
    fhctl --host http://192.168.8.1:8090 watch
    fhctl scan --start 11700 --end 12100 --follow
    fhctl tune 11778 v
    fhctl goto "ASTRA 1KR"
    fhctl goto 13E
    fhctl usals 19.2E --lat 48.1 --lon 11.6
    fhctl rotor go_east --steps 5
    fhctl rotor goto_x --angle 22.3 --direction east
    fhctl rotor stop
    fhctl feeds
    fhctl watch --filter state,lock,rotor

`)
}
