package ctl

import (
	"fmt"
	"strings"
	"time"

	"github.com/large-farva/feedhunter/internal/catalog"
	"github.com/large-farva/feedhunter/internal/frontend"
	"github.com/large-farva/feedhunter/internal/usals"
)

// StatusResponse mirrors the JSON returned by GET /api/status.
type StatusResponse struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	State         string `json:"state"`
	StateSince    string `json:"state_since"`
	Job           string `json:"job"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Mode          string `json:"mode"`
	Device        string `json:"device"`
	LNB           string `json:"lnb"`
	DataRoot      string `json:"data_root"`
	Feeds         int    `json:"feeds"`
	WSClients     int    `json:"ws_clients"`
	Station       struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Source    string  `json:"source"`
	} `json:"station"`
	Pointing *struct {
		Satellite string         `json:"satellite"`
		Longitude float64        `json:"longitude"`
		Position  usals.Position `json:"position"`
		At        time.Time      `json:"at"`
	} `json:"pointing"`
	LastLock *struct {
		Frequency    uint32              `json:"frequency_khz"`
		Polarization string              `json:"polarization"`
		Status       frontend.LockStatus `json:"status"`
	} `json:"last_lock"`
	Disk *struct {
		TotalBytes     int64   `json:"total_bytes"`
		AvailableBytes int64   `json:"available_bytes"`
		UsedPercent    float64 `json:"used_percent"`
	} `json:"disk"`
}

// Status fetches the daemon status and prints a formatted summary.
func Status(baseURL string, jsonOutput bool) error {
	if jsonOutput {
		var raw any
		if err := getJSON(baseURL, "/api/status", &raw); err != nil {
			return err
		}
		return printJSON(raw)
	}

	var s StatusResponse
	if err := getJSON(baseURL, "/api/status", &s); err != nil {
		return err
	}

	uptime := formatDuration(time.Duration(s.UptimeSeconds) * time.Second)
	stateStr := colorize(stateColor(s.State), s.State)
	if s.Job != "" {
		stateStr += colorize(dim, " ("+s.Job+")")
	}

	fmt.Println()
	fmt.Println(header("  FEEDHUNTER STATUS"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 38)))
	fmt.Printf("  %-12s %s %s\n", colorize(dim, "Daemon:"), s.Name, colorize(dim, s.Version))
	fmt.Printf("  %-12s %s\n", colorize(dim, "State:"), stateStr)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Uptime:"), uptime)
	fmt.Printf("  %-12s %s (%s)\n", colorize(dim, "Device:"), s.Device, s.Mode)
	fmt.Printf("  %-12s %s\n", colorize(dim, "LNB:"), s.LNB)
	fmt.Printf("  %-12s %.4f, %.4f (%s)\n", colorize(dim, "Station:"), s.Station.Latitude, s.Station.Longitude, s.Station.Source)
	if p := s.Pointing; p != nil {
		name := p.Satellite
		if name == "" {
			name = "-"
		}
		fmt.Printf("  %-12s %s at %s, rotor %s\n", colorize(dim, "Pointing:"), name, catalog.FormatLongitude(p.Longitude), p.Position)
	}
	if l := s.LastLock; l != nil {
		fmt.Printf("  %-12s %s %s\n", colorize(dim, "Last lock:"), formatFreq(l.Frequency), l.Polarization)
	}
	fmt.Printf("  %-12s %d\n", colorize(dim, "Feeds:"), s.Feeds)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Data:"), s.DataRoot)
	if d := s.Disk; d != nil {
		fmt.Printf("  %-12s %s free of %s (%.0f%% used)\n", colorize(dim, "Disk:"),
			formatBytes(d.AvailableBytes), formatBytes(d.TotalBytes), d.UsedPercent)
	}
	fmt.Printf("  %-12s %s\n", colorize(dim, "Host:"), strings.TrimRight(baseURL, "/"))
	fmt.Println()

	return nil
}
