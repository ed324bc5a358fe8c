package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/large-farva/feedhunter/internal/catalog"
	"github.com/large-farva/feedhunter/internal/config"
	"github.com/large-farva/feedhunter/internal/demo"
	"github.com/large-farva/feedhunter/internal/diseqc"
	"github.com/large-farva/feedhunter/internal/dvb"
	"github.com/large-farva/feedhunter/internal/feeds"
	"github.com/large-farva/feedhunter/internal/frontend"
	"github.com/large-farva/feedhunter/internal/scan"
	"github.com/large-farva/feedhunter/internal/station"
	"github.com/large-farva/feedhunter/internal/usals"
)

// env is what every command shares: the effective config and the logger.
type env struct {
	cfg config.Config
	log *log.Logger
}

// open returns the configured frontend, or the simulated one in demo mode.
func (e *env) open() (*frontend.Controller, error) {
	typ, err := e.cfg.Device.DeliveryType()
	if err != nil {
		return nil, err
	}
	opts := frontend.Options{
		Expect:  typ,
		AnyType: e.cfg.Device.AnyType,
		Logger:  e.log,
		Debug:   e.cfg.Logging.Debug(),
	}
	if e.cfg.Demo.Enabled {
		return demo.Open(e.cfg, opts)
	}
	return frontend.Open(e.cfg.Device.Path(), opts)
}

func (e *env) info() error {
	ctl, err := e.open()
	if err != nil {
		return err
	}
	defer ctl.Close()

	info := ctl.Info()
	s2 := "no"
	if info.Caps&dvb.Can2GModulation != 0 {
		s2 = "yes"
	}
	fmt.Printf("Frontend %s (%s)\n", info.Name, info.Type)
	fmt.Printf("  Minimum frequency   : %d MHz\n", info.FrequencyMin/1000)
	fmt.Printf("  Maximum frequency   : %d MHz\n", info.FrequencyMax/1000)
	fmt.Printf("  Frequency step      : %d MHz\n", info.FrequencyStepSize/1000)
	fmt.Printf("  Minimum symbol rate : %d MSym/s\n", info.SymbolRateMin/1000000)
	fmt.Printf("  Maximum symbol rate : %d MSym/s\n", info.SymbolRateMax/1000000)
	fmt.Printf("  Can do DVB-S2       : %s\n", s2)
	return nil
}

func (e *env) scan(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("scan", pflag.ContinueOnError)
	start := fs.Uint32("start", e.cfg.Scan.StartMHz, "First frequency in MHz")
	end := fs.Uint32("end", e.cfg.Scan.EndMHz, "Last frequency in MHz")
	step := fs.Uint32("step", e.cfg.Scan.StepMHz, "Step in MHz")
	timeout := fs.Int("timeout", e.cfg.Scan.TimeoutSeconds, "Lock timeout per polarization in seconds")
	symbolRate := fs.Uint32("symbol-rate", e.cfg.Scan.SymbolRate, "Symbol rate")
	record := fs.Bool("record", false, "Append locks to the feed log")
	satellite := fs.String("satellite", "", "Label recorded locks")
	if err := fs.Parse(args); err != nil {
		return err
	}

	prof, err := e.cfg.LNB.Profile()
	if err != nil {
		return err
	}

	var feedLog *feeds.Log
	if *record {
		if err := os.MkdirAll(e.cfg.Data.Root, 0o755); err != nil {
			return fmt.Errorf("create data root: %w", err)
		}
		if feedLog, err = feeds.Open(e.cfg.Data.Root); err != nil {
			return err
		}
	}

	ctl, err := e.open()
	if err != nil {
		return err
	}
	defer ctl.Close()
	if typ := ctl.Info().Type; typ != dvb.TypeQPSK {
		return fmt.Errorf("%w: blind scan needs a DVB-S frontend, this one is %s", frontend.ErrUnsupportedSystem, typ)
	}

	found := 0
	eng := scan.New(ctl, scan.Options{
		LNB:        prof,
		SymbolRate: *symbolRate,
		Logger:     e.log,
		Debug:      e.cfg.Logging.Debug(),
		Hooks: scan.Hooks{
			Lock: func(a scan.Attempt) {
				found++
				band := "low"
				if a.HighBand {
					band = "high"
				}
				fmt.Printf("LOCK  %8.3f MHz %s  (IF %.3f MHz, %s band)\n",
					float64(a.Frequency)/1000, a.Polarization, float64(a.IF)/1000, band)
				if feedLog == nil {
					return
				}
				if _, err := feedLog.Record(a, *satellite); err != nil {
					e.log.Printf("feed log: %v", err)
				}
			},
		},
	})

	lo, hi := prof.Clamp(*start*1000, *end*1000)
	e.log.Printf("scanning %d-%d MHz in %d MHz steps (%s LNB)", lo/1000, hi/1000, *step, prof.Name)

	err = eng.Scan(ctx, scan.Range{Start: *start * 1000, End: *end * 1000, Step: *step * 1000},
		time.Duration(*timeout)*time.Second)
	fmt.Printf("%d transponder(s) locked\n", found)
	if feedLog != nil && found > 0 {
		fmt.Printf("feed log: %s\n", feedLog.Path())
	}
	return err
}

func (e *env) tune(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("tune", pflag.ContinueOnError)
	symbolRate := fs.Uint32("symbol-rate", e.cfg.Scan.SymbolRate, "Symbol rate")
	timeout := fs.Int("timeout", e.cfg.Scan.TimeoutSeconds, "Lock timeout in seconds")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		return fmt.Errorf("usage: feedhunter tune FREQ_MHZ h|v")
	}
	mhz, err := strconv.ParseFloat(fs.Arg(0), 64)
	if err != nil || mhz <= 0 {
		return fmt.Errorf("invalid frequency %q", fs.Arg(0))
	}
	freq := uint32(mhz*1000 + 0.5)
	wait := time.Duration(*timeout) * time.Second

	ctl, err := e.open()
	if err != nil {
		return err
	}
	defer ctl.Close()

	// Cable and terrestrial tuners take the frequency as is.
	if typ := ctl.Info().Type; typ != dvb.TypeQPSK {
		rate := *symbolRate
		if !fs.Changed("symbol-rate") {
			rate = 0
		}
		st, err := ctl.TuneDirect(ctx, freq, rate, wait)
		fmt.Printf("%.3f MHz (%s): %s\n", float64(freq)/1000, typ, st)
		if err != nil {
			return err
		}
		fmt.Println("Locked")
		return nil
	}

	if fs.NArg() != 2 {
		return fmt.Errorf("usage: feedhunter tune FREQ_MHZ h|v")
	}
	pol, err := frontend.ParsePolarization(fs.Arg(1))
	if err != nil {
		return err
	}
	prof, err := e.cfg.LNB.Profile()
	if err != nil {
		return err
	}

	eng := scan.New(ctl, scan.Options{LNB: prof, Logger: e.log, Debug: e.cfg.Logging.Debug()})
	st, err := eng.TuneOne(ctx, freq, pol, *symbolRate, wait)
	fmt.Printf("%.3f MHz %s: %s\n", float64(freq)/1000, pol, st)
	if err != nil {
		return err
	}
	fmt.Println("Locked")
	return nil
}

// rotorFlags adds the flags shared by rotor and goto.
func (e *env) rotorFlags(fs *pflag.FlagSet) (timeout, voltage *int) {
	timeout = fs.IntP("timeout", "t", e.cfg.Rotor.TimeoutSeconds, "Wait for moves and gotos in seconds")
	voltage = fs.IntP("voltage", "v", e.cfg.Rotor.Voltage, "Line voltage while sending (13 or 18)")
	return timeout, voltage
}

// execute sends cmd at the given line voltage and waits it out.
func (e *env) execute(ctx context.Context, cmd diseqc.Command, voltage int) error {
	if voltage != 13 && voltage != 18 {
		return fmt.Errorf("%w: voltage must be 13 or 18", diseqc.ErrInvalidArgument)
	}
	rc := e.cfg.Rotor
	rc.Voltage = voltage

	ctl, err := e.open()
	if err != nil {
		return err
	}
	defer ctl.Close()

	rotor := diseqc.NewRotor(ctl, diseqc.RotorOptions{
		Voltage: rc.LineVoltage(),
		Settle:  rc.Settle(),
		Logger:  e.log,
	})
	fmt.Printf("Sending %s: %s\n", cmd.Action, cmd.Frame)
	if cmd.Wait > 0 {
		fmt.Printf("Waiting up to %s, Ctrl-C stops the rotor\n", cmd.Wait)
	}
	if err := rotor.Execute(ctx, cmd); err != nil {
		return err
	}
	if ctx.Err() != nil && cmd.StopAfter {
		fmt.Println("Interrupted, rotor stopped")
	}
	return nil
}

func (e *env) rotor(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("rotor", pflag.ContinueOnError)
	timeout, voltage := e.rotorFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cmd, err := parseRotorArgs(fs.Args(), time.Duration(*timeout)*time.Second)
	if err != nil {
		return err
	}
	return e.execute(ctx, cmd, *voltage)
}

// stationFlags adds the station override flags shared by usals and goto.
func (e *env) stationFlags(fs *pflag.FlagSet) (lat, lon *float64, tle *bool) {
	lat = fs.Float64P("latitude", "y", e.cfg.Station.Latitude, "Station latitude, north positive")
	lon = fs.Float64P("longitude", "x", e.cfg.Station.Longitude, "Station longitude, east positive")
	tle = fs.Bool("tle", false, "Refine satellite positions from TLE data")
	return lat, lon, tle
}

// target resolves a satellite name or orbital position.
func (e *env) target(name string, tle bool) (catalog.Satellite, error) {
	var store *catalog.Store
	if tle {
		if err := os.MkdirAll(e.cfg.Data.Root, 0o755); err != nil {
			return catalog.Satellite{}, fmt.Errorf("create data root: %w", err)
		}
		store = catalog.NewStore(e.cfg.Catalog.TLEURL, e.cfg.Data.Root, e.cfg.Catalog.RefreshHours)
	}
	c := catalog.New(store, e.log)
	if tle {
		if _, err := c.Refresh(false); err != nil {
			e.log.Printf("TLE refresh failed, using nominal positions: %v", err)
		}
	}
	return c.Lookup(name)
}

func (e *env) usals(args []string) error {
	fs := pflag.NewFlagSet("usals", pflag.ContinueOnError)
	lat, lon, tle := e.stationFlags(fs)
	satellite := fs.StringP("satellite", "s", "", "Satellite name or orbital position, e.g. 19.2E")
	if err := fs.Parse(args); err != nil {
		return err
	}
	name := *satellite
	if name == "" {
		name = strings.Join(fs.Args(), " ")
	}
	if name == "" {
		return fmt.Errorf("usage: feedhunter usals [-y LAT] [-x LON] SATELLITE|POSITION")
	}

	sat, err := e.target(name, *tle)
	if err != nil {
		return err
	}
	pos, err := usals.Solve(*lon, *lat, sat.Longitude)
	if err != nil {
		return err
	}
	cmd, err := pos.Command(e.cfg.Rotor.Wait())
	if err != nil {
		return err
	}
	fmt.Printf("%s at %s seen from %.4f, %.4f\n", sat.Name, sat.Slot(), *lat, *lon)
	fmt.Printf("Rotor angle is %s\n", pos)
	fmt.Printf("goto_x frame: %s\n", cmd.Frame)
	return nil
}

func (e *env) gotoSatellite(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("goto", pflag.ContinueOnError)
	timeout, voltage := e.rotorFlags(fs)
	lat, lon, tle := e.stationFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	name := strings.Join(fs.Args(), " ")
	if name == "" {
		return fmt.Errorf("usage: feedhunter goto SATELLITE|POSITION")
	}

	loc := station.Resolve(station.Options{
		Latitude:  *lat,
		Longitude: *lon,
		UseGPSD:   e.cfg.Station.UseGPSD && !fs.Changed("latitude") && !fs.Changed("longitude"),
		GPSDHost:  e.cfg.Station.GPSDHost,
		Logger:    e.log,
	})

	sat, err := e.target(name, *tle)
	if err != nil {
		return err
	}
	pos, err := usals.Solve(loc.Lon, loc.Lat, sat.Longitude)
	if err != nil {
		return err
	}
	cmd, err := pos.Command(time.Duration(*timeout) * time.Second)
	if err != nil {
		return err
	}
	fmt.Printf("%s at %s from %s: rotor %s\n", sat.Name, sat.Slot(), loc, pos)

	err = e.execute(ctx, cmd, *voltage)
	if errors.Is(err, context.Canceled) {
		fmt.Println("Interrupted before the goto was sent")
	}
	return err
}
