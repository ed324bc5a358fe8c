package ctl

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Health checks the daemon via GET /healthz, asking for per-component
// checks.
func Health(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	status, body, err := getRaw(baseURL, "/healthz", "application/json")
	if err != nil {
		if jsonOutput {
			return printJSON(map[string]any{"healthy": false, "url": baseURL, "error": err.Error()})
		}
		return err
	}

	var detail struct {
		Healthy bool                      `json:"healthy"`
		Checks  map[string]map[string]any `json:"checks"`
	}
	_ = json.Unmarshal(body, &detail)
	healthy := status == 200

	if jsonOutput {
		return printJSON(map[string]any{"healthy": healthy, "url": baseURL, "checks": detail.Checks})
	}

	fmt.Println()
	if healthy {
		fmt.Printf("  %s  feedhunterd is reachable at %s\n", colorize(green, "HEALTHY"), colorize(dim, baseURL))
	} else {
		fmt.Printf("  %s  feedhunterd returned HTTP %d at %s\n", colorize(red, "UNHEALTHY"), status, colorize(dim, baseURL))
	}

	names := make([]string, 0, len(detail.Checks))
	for name := range detail.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := detail.Checks[name]
		mark := colorize(green, "ok  ")
		if ok, _ := c["ok"].(bool); !ok {
			mark = colorize(red, "FAIL")
		}
		var extra []string
		for _, k := range []string{"path", "device", "state", "age_s", "note", "error"} {
			if v, ok := c[k]; ok {
				extra = append(extra, fmt.Sprintf("%s=%v", k, v))
			}
		}
		fmt.Printf("    %s %s %s\n", mark, padRight(name, 12), colorize(dim, strings.Join(extra, " ")))
	}
	fmt.Println()

	return nil
}
