package ctl

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/large-farva/feedhunter/internal/catalog"
	"github.com/large-farva/feedhunter/internal/station"
	"github.com/large-farva/feedhunter/internal/usals"
)

// RotorOptions carries one positioner command and its parameter.
type RotorOptions struct {
	Command   string  `json:"command"`
	Steps     int     `json:"steps,omitempty"`
	Timeout   int     `json:"timeout,omitempty"`
	Slot      int     `json:"slot,omitempty"`
	Angle     float64 `json:"angle,omitempty"`
	Direction string  `json:"direction,omitempty"`

	JSON bool `json:"-"`
}

// Rotor sends a DiSEqC positioner command through the daemon's tuner.
func Rotor(baseURL string, opts RotorOptions) error {
	if opts.Command == "" {
		return fmt.Errorf("rotor needs a command (stop, go_east, goto_x, ...)")
	}
	res, err := postCommand(baseURL, "/api/rotor", opts)
	if err != nil {
		return err
	}
	return printResult(res, opts.JSON)
}

// GotoOptions names the target by satellite or by orbital longitude.
type GotoOptions struct {
	Satellite string   `json:"satellite,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	JSON bool `json:"-"`
}

// ParseGotoTarget turns "ASTRA 1KR" or "19.2E" into GotoOptions.
// Anything that parses as a longitude is sent as one.
func ParseGotoTarget(target string) GotoOptions {
	if lon, err := catalog.ParseLongitude(target); err == nil {
		return GotoOptions{Longitude: &lon}
	}
	return GotoOptions{Satellite: target}
}

// Goto points the dish at a satellite with a USALS goto_x command.
func Goto(baseURL string, opts GotoOptions) error {
	if opts.Satellite == "" && opts.Longitude == nil {
		return fmt.Errorf("goto needs a satellite name or longitude")
	}
	res, err := postCommand(baseURL, "/api/goto", opts)
	if err != nil {
		return err
	}
	return printResult(res, opts.JSON)
}

// USALSOptions selects the target and, optionally, another station.
type USALSOptions struct {
	Target string
	Lat    string
	Lon    string
	JSON   bool
}

// USALS shows the rotor angle and frame for a target without moving.
func USALS(baseURL string, opts USALSOptions) error {
	if opts.Target == "" {
		return fmt.Errorf("usals needs a satellite name or longitude")
	}
	q := url.Values{}
	if _, err := catalog.ParseLongitude(opts.Target); err == nil {
		q.Set("longitude", opts.Target)
	} else {
		q.Set("satellite", opts.Target)
	}
	if opts.Lat != "" {
		q.Set("lat", opts.Lat)
	}
	if opts.Lon != "" {
		q.Set("lon", opts.Lon)
	}

	var resp struct {
		Satellite catalog.Satellite `json:"satellite"`
		Station   station.Location  `json:"station"`
		Position  usals.Position    `json:"position"`
		Frame     string            `json:"frame"`
	}
	if err := getJSON(baseURL, "/api/usals?"+q.Encode(), &resp); err != nil {
		return err
	}
	if opts.JSON {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  USALS"))
	fmt.Printf("  %-12s %s (%s)\n", colorize(dim, "Target:"), resp.Satellite.Name, resp.Satellite.Slot())
	fmt.Printf("  %-12s %s, %s\n", colorize(dim, "Station:"),
		strconv.FormatFloat(resp.Station.Lat, 'f', 4, 64), strconv.FormatFloat(resp.Station.Lon, 'f', 4, 64))
	fmt.Printf("  %-12s %s\n", colorize(dim, "Rotor:"), colorize(bold, resp.Position.String()))
	fmt.Printf("  %-12s %s\n", colorize(dim, "Frame:"), resp.Frame)
	fmt.Println()
	return nil
}
