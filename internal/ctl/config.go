package ctl

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/large-farva/feedhunter/internal/config"
)

// Config fetches and displays the daemon's running configuration.
func Config(baseURL string, jsonOutput bool) error {
	var raw json.RawMessage
	if err := getJSON(baseURL, "/api/config", &raw); err != nil {
		return err
	}

	if jsonOutput {
		return printRaw(raw)
	}

	var cfg config.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(header("  DAEMON CONFIGURATION"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 50)))

	section := func(name string) {
		fmt.Printf("\n  %s\n", colorize(bold, "["+name+"]"))
	}
	field := func(key string, val any) {
		fmt.Printf("    %-20s %v\n", colorize(dim, key+":"), val)
	}

	section("data")
	field("root", cfg.Data.Root)

	section("logging")
	field("level", cfg.Logging.Level)

	section("server")
	field("bind", cfg.Server.Bind)
	field("max_connections", cfg.Server.MaxConnections)

	section("demo")
	field("enabled", cfg.Demo.Enabled)
	field("transponders", strings.Join(cfg.Demo.Transponders, " "))
	field("lock_delay_ms", cfg.Demo.LockDelayMS)

	section("device")
	field("adapter", cfg.Device.Adapter)
	field("frontend", cfg.Device.Frontend)
	field("type", cfg.Device.Type)
	field("any_type", cfg.Device.AnyType)

	section("lnb")
	field("type", cfg.LNB.Type)

	section("scan")
	field("start_mhz", cfg.Scan.StartMHz)
	field("end_mhz", cfg.Scan.EndMHz)
	field("step_mhz", cfg.Scan.StepMHz)
	field("timeout_seconds", cfg.Scan.TimeoutSeconds)
	field("symbol_rate", cfg.Scan.SymbolRate)

	section("rotor")
	field("voltage", cfg.Rotor.Voltage)
	field("timeout_seconds", cfg.Rotor.TimeoutSeconds)
	field("settle_ms", cfg.Rotor.SettleMS)

	section("station")
	field("latitude", cfg.Station.Latitude)
	field("longitude", cfg.Station.Longitude)
	field("use_gpsd", cfg.Station.UseGPSD)
	field("gpsd_host", cfg.Station.GPSDHost)

	section("catalog")
	field("tle_url", cfg.Catalog.TLEURL)
	field("refresh_hours", cfg.Catalog.RefreshHours)

	fmt.Println()

	return nil
}
