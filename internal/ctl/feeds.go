package ctl

import (
	"fmt"
	"strconv"
	"time"

	"github.com/large-farva/feedhunter/internal/feeds"
)

// FeedsOptions controls the feeds command.
type FeedsOptions struct {
	Clear bool
	JSON  bool
}

// Feeds lists every transponder that has locked, ordered by frequency, or
// clears the log.
func Feeds(baseURL string, opts FeedsOptions) error {
	if opts.Clear {
		var resp map[string]any
		if err := deleteJSON(baseURL, "/api/feeds", &resp); err != nil {
			return err
		}
		if opts.JSON {
			return printJSON(resp)
		}
		fmt.Printf("\n  %s  feed log cleared\n\n", colorize(green, "OK"))
		return nil
	}

	var resp struct {
		Feeds []feeds.Feed `json:"feeds"`
	}
	if err := getJSON(baseURL, "/api/feeds", &resp); err != nil {
		return err
	}
	if opts.JSON {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  FEED LOG"))
	if len(resp.Feeds) == 0 {
		fmt.Printf("\n  %s\n\n", colorize(dim, "no locks recorded yet"))
		return nil
	}

	t := newTable("  ", "Frequency", "Pol", "IF", "Band", "Satellite", "Hits", "Last seen")
	for _, f := range resp.Feeds {
		band := "low"
		if f.HighBand {
			band = "high"
		}
		sat := f.Satellite
		if sat == "" {
			sat = "-"
		}
		t.row(formatFreq(f.Frequency), f.Polarization.String(), formatFreq(f.IF), band, sat,
			strconv.Itoa(f.Hits), f.LastSeen.Local().Format(time.DateTime))
	}
	t.flush()
	fmt.Println()
	return nil
}
