package ctl

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/prometheus/common/version"
)

// VersionInfo fetches daemon version via GET /api/version and displays both
// the CLI and daemon version information.
func VersionInfo(baseURL string, jsonOutput bool) error {
	var daemon struct {
		Version   string `json:"version"`
		Revision  string `json:"revision"`
		Branch    string `json:"branch"`
		GoVersion string `json:"go_version"`
		BuiltAt   string `json:"built_at"`
	}
	daemonErr := getJSON(baseURL, "/api/version", &daemon)

	if jsonOutput {
		resp := map[string]any{
			"cli": map[string]any{
				"version":    version.Version,
				"revision":   version.Revision,
				"go_version": runtime.Version(),
			},
		}
		if daemonErr == nil {
			resp["daemon"] = daemon
		} else {
			resp["daemon_error"] = daemonErr.Error()
		}
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  FEEDHUNTER VERSION"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 38)))
	fmt.Printf("  %-12s %s\n", colorize(dim, "CLI:"), version.Version+" ("+runtime.Version()+")")
	if daemonErr != nil {
		fmt.Printf("  %-12s %s\n", colorize(dim, "Daemon:"), colorize(red, "unreachable: "+daemonErr.Error()))
	} else {
		fmt.Printf("  %-12s %s\n", colorize(dim, "Daemon:"), daemon.Version+" ("+daemon.GoVersion+")")
		if daemon.Revision != "" {
			fmt.Printf("  %-12s %s@%s\n", colorize(dim, "Revision:"), daemon.Branch, daemon.Revision)
		}
		fmt.Printf("  %-12s %s\n", colorize(dim, "Built:"), daemon.BuiltAt)
	}
	fmt.Println()

	return nil
}
