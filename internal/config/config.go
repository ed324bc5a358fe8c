// Package config loads, defaults and validates the feedhunter TOML file.
// Every section maps to a typed struct so the rest of the code gets strong
// typing without key lookups.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/large-farva/feedhunter/internal/dvb"
	"github.com/large-farva/feedhunter/internal/frontend"
	"github.com/large-farva/feedhunter/internal/lnb"
)

// Config is the top-level configuration, mirroring the TOML sections.
type Config struct {
	Data    DataConfig    `toml:"data"    json:"data"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
	Server  ServerConfig  `toml:"server"  json:"server"`
	Demo    DemoConfig    `toml:"demo"    json:"demo"`
	Device  DeviceConfig  `toml:"device"  json:"device"`
	LNB     LNBConfig     `toml:"lnb"     json:"lnb"`
	Scan    ScanConfig    `toml:"scan"    json:"scan"`
	Rotor   RotorConfig   `toml:"rotor"   json:"rotor"`
	Station StationConfig `toml:"station" json:"station"`
	Catalog CatalogConfig `toml:"catalog" json:"catalog"`
}

type DataConfig struct {
	Root string `toml:"root" json:"root"`
}

type LoggingConfig struct {
	Level string `toml:"level" json:"level"`
}

// Debug reports whether attempt-level logging is on.
func (l LoggingConfig) Debug() bool { return l.Level == "debug" }

type ServerConfig struct {
	Bind           string `toml:"bind"            json:"bind"`
	MaxConnections int    `toml:"max_connections" json:"max_connections"`
}

// DemoConfig replaces the tuner with a simulated one. Transponders are
// written as frequency in MHz followed by the polarization, e.g. "11778V".
type DemoConfig struct {
	Enabled      bool     `toml:"enabled"       json:"enabled"`
	Transponders []string `toml:"transponders"  json:"transponders"`
	LockDelayMS  int      `toml:"lock_delay_ms" json:"lock_delay_ms"`
}

type DeviceConfig struct {
	Adapter  int    `toml:"adapter"  json:"adapter"`
	Frontend int    `toml:"frontend" json:"frontend"`
	Type     string `toml:"type"     json:"type"`
	AnyType  bool   `toml:"any_type" json:"any_type"`
}

// Path is the device node for the configured adapter and frontend.
func (d DeviceConfig) Path() string {
	return dvb.FrontendPath(d.Adapter, d.Frontend)
}

// DeliveryType parses Type.
func (d DeviceConfig) DeliveryType() (dvb.Type, error) {
	return dvb.ParseType(d.Type)
}

type LNBConfig struct {
	Type string `toml:"type" json:"type"`
}

// Profile resolves the LNB type.
func (l LNBConfig) Profile() (lnb.Profile, error) {
	return lnb.Lookup(l.Type)
}

type ScanConfig struct {
	TimeoutSeconds int    `toml:"timeout_seconds" json:"timeout_seconds"`
	StartMHz       uint32 `toml:"start_mhz"       json:"start_mhz"`
	EndMHz         uint32 `toml:"end_mhz"         json:"end_mhz"`
	StepMHz        uint32 `toml:"step_mhz"        json:"step_mhz"`
	SymbolRate     uint32 `toml:"symbol_rate"     json:"symbol_rate"`
}

// Timeout is the per-polarization lock timeout.
func (s ScanConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

type RotorConfig struct {
	Voltage        int `toml:"voltage"         json:"voltage"`
	TimeoutSeconds int `toml:"timeout_seconds" json:"timeout_seconds"`
	SettleMS       int `toml:"settle_ms"       json:"settle_ms"`
}

// LineVoltage converts Voltage to the bus setting.
func (r RotorConfig) LineVoltage() dvb.Voltage {
	if r.Voltage == 13 {
		return dvb.Voltage13
	}
	return dvb.Voltage18
}

// Wait is how long continuous moves and goto commands are given.
func (r RotorConfig) Wait() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// Settle is the pause after powering the line.
func (r RotorConfig) Settle() time.Duration {
	return time.Duration(r.SettleMS) * time.Millisecond
}

type StationConfig struct {
	Latitude  float64 `toml:"latitude"  json:"latitude"`
	Longitude float64 `toml:"longitude" json:"longitude"`
	UseGPSD   bool    `toml:"use_gpsd"  json:"use_gpsd"`
	GPSDHost  string  `toml:"gpsd_host" json:"gpsd_host"`
}

type CatalogConfig struct {
	TLEURL       string `toml:"tle_url"       json:"tle_url"`
	RefreshHours int    `toml:"refresh_hours" json:"refresh_hours"`
}

// Default returns a Config populated with defaults. Values here are used
// whenever the TOML file omits a field.
func Default() Config {
	return Config{
		Data: DataConfig{
			Root: "/var/lib/feedhunter",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Bind:           "0.0.0.0:8090",
			MaxConnections: 64,
		},
		Demo: DemoConfig{
			Enabled:      false,
			Transponders: []string{"10744H", "11244H", "11494H", "11778V", "12188H", "12603H"},
			LockDelayMS:  200,
		},
		Device: DeviceConfig{
			Adapter:  0,
			Frontend: 0,
			Type:     "dvb-s",
		},
		LNB: LNBConfig{
			Type: "universal",
		},
		Scan: ScanConfig{
			TimeoutSeconds: 1,
			StartMHz:       10700,
			EndMHz:         12750,
			StepMHz:        4,
			SymbolRate:     frontend.DefaultSymbolRate,
		},
		Rotor: RotorConfig{
			Voltage:        18,
			TimeoutSeconds: 180,
			SettleMS:       1000,
		},
		Station: StationConfig{
			GPSDHost: "localhost:2947",
		},
		Catalog: CatalogConfig{
			TLEURL:       "https://celestrak.org/NORAD/elements/gp.php?GROUP=geo&FORMAT=tle",
			RefreshHours: 24,
		},
	}
}

// Load reads the TOML file at path, layers it over the defaults and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns the defaults when path does
// not exist.
func LoadOrDefault(path string) (Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Write stores cfg as TOML, e.g. to seed a new config file.
func Write(path string, cfg Config) error {
	b, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// ParseTransponder splits "11778V" into kHz and polarization.
func ParseTransponder(s string) (uint32, frontend.Polarization, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, 0, fmt.Errorf("invalid transponder %q", s)
	}
	pol, err := frontend.ParsePolarization(s[len(s)-1:])
	if err != nil {
		return 0, 0, fmt.Errorf("transponder %q: %w", s, err)
	}
	mhz, err := strconv.ParseFloat(strings.TrimSpace(s[:len(s)-1]), 64)
	if err != nil || mhz <= 0 {
		return 0, 0, fmt.Errorf("transponder %q: bad frequency", s)
	}
	return uint32(mhz*1000 + 0.5), pol, nil
}

func validate(cfg Config) error {
	if cfg.Data.Root == "" {
		return errors.New("data.root must not be empty")
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn or error", cfg.Logging.Level)
	}
	if cfg.Server.MaxConnections < 1 {
		return errors.New("server.max_connections must be >= 1")
	}
	if _, err := cfg.Device.DeliveryType(); err != nil {
		return fmt.Errorf("device.type: %w", err)
	}
	if cfg.Device.Adapter < 0 || cfg.Device.Frontend < 0 {
		return errors.New("device.adapter and device.frontend must be >= 0")
	}
	if _, err := cfg.LNB.Profile(); err != nil {
		return fmt.Errorf("lnb.type: %w", err)
	}
	if cfg.Scan.TimeoutSeconds < 1 {
		return errors.New("scan.timeout_seconds must be >= 1")
	}
	if cfg.Scan.StepMHz == 0 {
		return errors.New("scan.step_mhz must be > 0")
	}
	if cfg.Scan.StartMHz > cfg.Scan.EndMHz {
		return errors.New("scan.start_mhz must be <= scan.end_mhz")
	}
	if cfg.Rotor.Voltage != 13 && cfg.Rotor.Voltage != 18 {
		return errors.New("rotor.voltage must be 13 or 18")
	}
	if cfg.Rotor.TimeoutSeconds < 1 {
		return errors.New("rotor.timeout_seconds must be >= 1")
	}
	if cfg.Rotor.SettleMS < 0 {
		return errors.New("rotor.settle_ms must be >= 0")
	}
	if cfg.Station.Latitude < -90 || cfg.Station.Latitude > 90 {
		return errors.New("station.latitude must be between -90 and 90")
	}
	if cfg.Station.Longitude < -180 || cfg.Station.Longitude > 180 {
		return errors.New("station.longitude must be between -180 and 180")
	}
	if cfg.Catalog.RefreshHours < 1 {
		return errors.New("catalog.refresh_hours must be >= 1")
	}
	for _, tp := range cfg.Demo.Transponders {
		if _, _, err := ParseTransponder(tp); err != nil {
			return fmt.Errorf("demo.transponders: %w", err)
		}
	}
	return nil
}
