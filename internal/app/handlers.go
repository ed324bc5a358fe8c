package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/common/version"

	"github.com/large-farva/feedhunter/internal/catalog"
	"github.com/large-farva/feedhunter/internal/runner"
	"github.com/large-farva/feedhunter/internal/usals"
)

// maxBody bounds command payloads.
const maxBody = 64 << 10

// Handler returns the daemon's HTTP routes.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/api/status", a.handleStatus)
	mux.HandleFunc("/api/version", a.handleVersion)
	mux.HandleFunc("/api/config", a.handleConfig)
	mux.HandleFunc("/api/satellites", a.handleSatellites)
	mux.HandleFunc("/api/usals", a.handleUSALS)
	mux.HandleFunc("/api/feeds", a.handleFeeds)
	mux.HandleFunc("/api/cancel", a.handleCancel)
	mux.HandleFunc("/api/scan", a.commandHandler("scan"))
	mux.HandleFunc("/api/tune", a.commandHandler("tune"))
	mux.HandleFunc("/api/rotor", a.commandHandler("rotor"))
	mux.HandleFunc("/api/goto", a.commandHandler("goto"))
	mux.HandleFunc("/api/catalog/refresh", a.commandHandler("catalog_refresh"))
	mux.Handle("/metrics", a.metrics.Handler())
	mux.Handle("/ws", a.wsHub.Handler())
	return mux
}

// ---------------------------------------------------------------------------
// Core handlers
// ---------------------------------------------------------------------------

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	// If the client asks for JSON, return component-level health checks.
	if r.Header.Get("Accept") == "application/json" {
		a.handleHealthDetailed(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	info := a.runner.Status()
	mode := "live"
	if a.cfg.Demo.Enabled {
		mode = "demo"
	}

	resp := map[string]any{
		"name":           "feedhunter",
		"version":        version.Version,
		"state":          info.State,
		"state_since":    info.Since.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(a.startedAt).Seconds()),
		"mode":           mode,
		"device":         a.device,
		"lnb":            a.cfg.LNB.Type,
		"station":        a.loc,
		"data_root":      a.cfg.Data.Root,
		"feeds":          len(a.feeds.List()),
		"ws_clients":     a.wsHub.Clients(),
		"ws_dropped":     a.wsHub.Dropped(),
	}
	if info.Job != "" {
		resp["job"] = info.Job
	}
	if info.Pointing != nil {
		resp["pointing"] = info.Pointing
	}
	if info.LastLock != nil {
		resp["last_lock"] = info.LastLock
	}
	if du := diskUsage(a.cfg.Data.Root); du != nil {
		resp["disk"] = du
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *App) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":    version.Version,
		"revision":   version.Revision,
		"branch":     version.Branch,
		"built_at":   version.BuildDate,
		"go_version": runtime.Version(),
	})
}

func (a *App) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.cfg)
}

type satelliteJSON struct {
	catalog.Satellite
	Slot      string          `json:"slot"`
	Position  *usals.Position `json:"position,omitempty"`
	Reachable bool            `json:"reachable"`
}

func (a *App) handleSatellites(w http.ResponseWriter, _ *http.Request) {
	sats := a.catalog.All()
	out := make([]satelliteJSON, len(sats))
	for i, s := range sats {
		out[i] = satelliteJSON{Satellite: s, Slot: s.Slot()}
		if pos, err := usals.Solve(a.loc.Lon, a.loc.Lat, s.Longitude); err == nil {
			out[i].Position = &pos
			out[i].Reachable = true
		}
	}
	resp := map[string]any{"satellites": out, "station": a.loc}
	if at, ok := a.store.CacheInfo(); ok {
		resp["tle_fetched_at"] = at.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleUSALS computes a rotor target without moving anything. The target
// is ?satellite=NAME or ?longitude=DEG, optionally with ?lat= and ?lon=
// overriding the station.
func (a *App) handleUSALS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc := a.loc
	if v := q.Get("lat"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			jsonError(w, "bad lat: "+err.Error(), http.StatusBadRequest)
			return
		}
		loc.Lat = f
		loc.Source = "query"
	}
	if v := q.Get("lon"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			jsonError(w, "bad lon: "+err.Error(), http.StatusBadRequest)
			return
		}
		loc.Lon = f
		loc.Source = "query"
	}

	var sat catalog.Satellite
	switch {
	case q.Get("longitude") != "":
		lon, err := catalog.ParseLongitude(q.Get("longitude"))
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		sat = catalog.Satellite{Name: catalog.FormatLongitude(lon), Longitude: lon, Source: "position"}
	case q.Get("satellite") != "":
		var err error
		sat, err = a.catalog.Lookup(q.Get("satellite"))
		if errors.Is(err, catalog.ErrNotFound) {
			jsonError(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
	default:
		jsonError(w, "satellite or longitude parameter required", http.StatusBadRequest)
		return
	}

	pos, err := usals.Solve(loc.Lon, loc.Lat, sat.Longitude)
	if err != nil {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	cmd, err := pos.Command(a.cfg.Rotor.Wait())
	if err != nil {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"satellite": sat,
		"station":   loc,
		"position":  pos,
		"rotor":     pos.String(),
		"frame":     cmd.Frame.String(),
	})
}

func (a *App) handleFeeds(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"feeds": a.feeds.List()})
	case http.MethodDelete:
		if err := a.feeds.Clear(); err != nil {
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "feed log cleared"})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleCancel aborts the running job directly, without queueing behind it.
func (a *App) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !a.runner.Cancel() {
		jsonError(w, "no job in progress", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, runner.CommandResult{OK: true, Message: "job cancelled"})
}

func (a *App) handleHealthDetailed(w http.ResponseWriter, _ *http.Request) {
	checks := map[string]any{}
	allOK := true

	// Check data directory.
	tmpPath := filepath.Join(a.cfg.Data.Root, ".healthcheck")
	if err := os.WriteFile(tmpPath, []byte("ok"), 0o644); err != nil {
		checks["data_dir"] = map[string]any{"ok": false, "error": err.Error()}
		allOK = false
	} else {
		_ = os.Remove(tmpPath)
		checks["data_dir"] = map[string]any{"ok": true, "path": a.cfg.Data.Root}
	}

	// A missing or stale TLE cache only degrades pointing accuracy.
	if at, ok := a.store.CacheInfo(); ok {
		age := time.Since(at)
		checks["tle_cache"] = map[string]any{
			"ok":    true,
			"age_s": int(age.Seconds()),
			"fresh": age < time.Duration(a.cfg.Catalog.RefreshHours)*time.Hour,
		}
	} else {
		checks["tle_cache"] = map[string]any{"ok": true, "fresh": false, "note": "using nominal positions"}
	}

	checks["frontend"] = map[string]any{"ok": true, "device": a.device, "state": a.runner.State()}

	if a.configPath != "" {
		if _, err := os.Stat(a.configPath); err != nil {
			checks["config_file"] = map[string]any{"ok": false, "error": err.Error()}
			allOK = false
		} else {
			checks["config_file"] = map[string]any{"ok": true, "path": a.configPath}
		}
	}

	status := http.StatusOK
	if !allOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"healthy": allOK,
		"checks":  checks,
	})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// commandHandler forwards a POST body to the runner as a command.
func (a *App) commandHandler(cmdType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			jsonError(w, "bad request: "+err.Error(), http.StatusBadRequest)
			return
		}
		if len(body) > 0 && !json.Valid(body) {
			jsonError(w, "bad request: body is not JSON", http.StatusBadRequest)
			return
		}
		result, err := a.sendCommand(r.Context(), cmdType, body)
		if err != nil {
			jsonError(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeCommandResult(w, result)
	}
}

// sendCommand sends a command to the runner and waits for the reply.
func (a *App) sendCommand(ctx context.Context, cmdType string, payload json.RawMessage) (runner.CommandResult, error) {
	reply := make(chan runner.CommandResult, 1)
	select {
	case a.runner.Commands <- runner.Command{Type: cmdType, Payload: payload, Reply: reply}:
	case <-ctx.Done():
		return runner.CommandResult{}, ctx.Err()
	}
	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return runner.CommandResult{}, ctx.Err()
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]any{
		"ok":    false,
		"error": msg,
	})
}

// writeCommandResult writes a runner.CommandResult as JSON.
func writeCommandResult(w http.ResponseWriter, result runner.CommandResult) {
	code := http.StatusOK
	switch {
	case result.Busy:
		code = http.StatusConflict
	case !result.OK:
		code = http.StatusUnprocessableEntity
	}
	writeJSON(w, code, result)
}
