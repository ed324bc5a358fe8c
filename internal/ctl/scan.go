package ctl

import "fmt"

// ScanOptions are the fhctl scan flags. Zero values take the daemon's
// configured defaults.
type ScanOptions struct {
	StartMHz       uint32 `json:"start_mhz,omitempty"`
	EndMHz         uint32 `json:"end_mhz,omitempty"`
	StepMHz        uint32 `json:"step_mhz,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	Satellite      string `json:"satellite,omitempty"`

	Follow bool `json:"-"`
	JSON   bool `json:"-"`
}

// Scan starts a sweep. With Follow set it streams progress and locks
// until the daemon is idle again.
func Scan(baseURL string, opts ScanOptions) error {
	start := func() error {
		res, err := postCommand(baseURL, "/api/scan", opts)
		if err != nil {
			return err
		}
		return printResult(res, opts.JSON)
	}
	if !opts.Follow {
		return start()
	}
	return Watch(baseURL, WatchOptions{
		Filter:    []string{"progress", "lock", "state", "log"},
		JSON:      opts.JSON,
		UntilIdle: true,
		OnConnect: start,
	})
}

// TuneOptions are the fhctl tune arguments.
type TuneOptions struct {
	FrequencyMHz   float64 `json:"frequency_mhz"`
	Polarization   string  `json:"polarization"`
	SymbolRate     uint32  `json:"symbol_rate,omitempty"`
	TimeoutSeconds int     `json:"timeout_seconds,omitempty"`

	JSON bool `json:"-"`
}

// Tune locks a single transponder and reports the frontend status.
func Tune(baseURL string, opts TuneOptions) error {
	if opts.FrequencyMHz <= 0 || opts.Polarization == "" {
		return fmt.Errorf("tune needs a frequency in MHz and a polarization (h or v)")
	}
	res, err := postCommand(baseURL, "/api/tune", opts)
	if err != nil {
		return err
	}
	return printResult(res, opts.JSON)
}
