package ctl

import (
	"fmt"
	"strconv"

	"github.com/large-farva/feedhunter/internal/catalog"
	"github.com/large-farva/feedhunter/internal/usals"
)

// Satellites lists the geostationary catalog with the rotor position for
// each slot as seen from the daemon's station.
func Satellites(baseURL string, jsonOutput bool) error {
	var resp struct {
		Satellites []struct {
			catalog.Satellite
			Slot      string          `json:"slot"`
			Position  *usals.Position `json:"position"`
			Reachable bool            `json:"reachable"`
		} `json:"satellites"`
		TLEFetchedAt string `json:"tle_fetched_at"`
	}
	if err := getJSON(baseURL, "/api/satellites", &resp); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  SATELLITE CATALOG"))
	if resp.TLEFetchedAt != "" {
		fmt.Printf("  %s\n", colorize(dim, "TLE data from "+resp.TLEFetchedAt))
	}

	t := newTable("  ", "Name", "Slot", "NORAD ID", "Source", "Rotor")
	for _, s := range resp.Satellites {
		norad := "-"
		if s.NoradID > 0 {
			norad = strconv.Itoa(s.NoradID)
		}
		rotor := "below horizon"
		if s.Reachable && s.Position != nil {
			rotor = s.Position.String()
		}
		t.row(s.Name, s.Slot, norad, s.Source, rotor)
	}
	t.flush()
	fmt.Println()

	return nil
}
