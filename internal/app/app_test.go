package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/large-farva/feedhunter/internal/config"
	"github.com/large-farva/feedhunter/internal/demo"
	"github.com/large-farva/feedhunter/internal/dvb"
	"github.com/large-farva/feedhunter/internal/runner"
	"github.com/large-farva/feedhunter/internal/telemetry"
)

func newTestServer(t *testing.T, mods ...func(*config.Config)) (*App, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.Data.Root = t.TempDir()
	cfg.Demo.Enabled = true
	cfg.Demo.LockDelayMS = 1
	cfg.Scan.TimeoutSeconds = 1
	cfg.Rotor.TimeoutSeconds = 1
	cfg.Rotor.SettleMS = 1
	cfg.Station.Latitude = 50
	cfg.Station.Longitude = 5
	cfg.Catalog.TLEURL = ""
	for _, mod := range mods {
		mod(&cfg)
	}

	a := New(Options{Logger: log.New(io.Discard, "", 0), Cfg: cfg})
	ctx, cancel := context.WithCancel(context.Background())
	if err := a.start(ctx); err != nil {
		cancel()
		t.Fatal(err)
	}
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		a.wg.Wait()
	})
	return a, srv
}

func getJSON(t *testing.T, url string, wantCode int, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantCode {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s: status %d, want %d: %s", url, resp.StatusCode, wantCode, b)
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatal(err)
		}
	}
}

func postJSON(t *testing.T, url, body string, wantCode int, v any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantCode {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("POST %s: status %d, want %d: %s", url, resp.StatusCode, wantCode, b)
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatal(err)
		}
	}
}

func waitIdle(t *testing.T, a *App) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for a.runner.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("runner did not go idle")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHealthz(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(b) != "ok\n" {
		t.Fatalf("healthz = %d %q", resp.StatusCode, b)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	req.Header.Set("Accept", "application/json")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var h struct {
		Healthy bool           `json:"healthy"`
		Checks  map[string]any `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatal(err)
	}
	if !h.Healthy || h.Checks["data_dir"] == nil || h.Checks["frontend"] == nil {
		t.Fatalf("health = %+v", h)
	}
}

func TestStatus(t *testing.T) {
	_, srv := newTestServer(t)
	var st map[string]any
	getJSON(t, srv.URL+"/api/status", http.StatusOK, &st)
	if st["state"] != runner.StateIdle || st["mode"] != "demo" || st["device"] != "demo" {
		t.Fatalf("status = %v", st)
	}
}

func TestVersionAndConfig(t *testing.T) {
	_, srv := newTestServer(t)
	var v map[string]any
	getJSON(t, srv.URL+"/api/version", http.StatusOK, &v)
	if _, ok := v["go_version"]; !ok {
		t.Fatalf("version = %v", v)
	}
	var cfg config.Config
	getJSON(t, srv.URL+"/api/config", http.StatusOK, &cfg)
	if !cfg.Demo.Enabled || cfg.LNB.Type != "universal" {
		t.Fatalf("config = %+v", cfg)
	}
}

func TestTuneRecordsFeed(t *testing.T) {
	a, srv := newTestServer(t)
	var res runner.CommandResult
	postJSON(t, srv.URL+"/api/tune", `{"frequency_mhz": 11778, "polarization": "V"}`, http.StatusOK, &res)
	if !res.OK || res.Status == nil || !res.Status.HasLock {
		t.Fatalf("tune = %+v", res)
	}
	waitIdle(t, a)

	var list struct {
		Feeds []struct {
			Frequency uint32 `json:"frequency_khz"`
		} `json:"feeds"`
	}
	getJSON(t, srv.URL+"/api/feeds", http.StatusOK, &list)
	if len(list.Feeds) != 1 || list.Feeds[0].Frequency != 11778000 {
		t.Fatalf("feeds = %+v", list)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/feeds", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete = %d", resp.StatusCode)
	}
	getJSON(t, srv.URL+"/api/feeds", http.StatusOK, &list)
	if len(list.Feeds) != 0 {
		t.Fatalf("feeds after clear = %+v", list)
	}
}

func TestTuneWithoutLockIsUnprocessable(t *testing.T) {
	a, srv := newTestServer(t)
	var res runner.CommandResult
	postJSON(t, srv.URL+"/api/tune", `{"frequency_mhz": 11000, "polarization": "h"}`, http.StatusUnprocessableEntity, &res)
	if res.OK || res.Status == nil || res.Status.HasSignal {
		t.Fatalf("tune = %+v", res)
	}
	waitIdle(t, a)
}

func TestCommandValidation(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/scan")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET /api/scan = %d", resp.StatusCode)
	}
	postJSON(t, srv.URL+"/api/scan", `not json`, http.StatusBadRequest, nil)
	postJSON(t, srv.URL+"/api/rotor", `{"command": "spin"}`, http.StatusUnprocessableEntity, nil)
	postJSON(t, srv.URL+"/api/cancel", ``, http.StatusConflict, nil)
}

func TestGotoBusyAndCancel(t *testing.T) {
	a, srv := newTestServer(t, func(cfg *config.Config) { cfg.Rotor.TimeoutSeconds = 60 })
	var res runner.CommandResult
	postJSON(t, srv.URL+"/api/rotor", `{"command": "go_east"}`, http.StatusOK, &res)
	if res.Frame != "0xE0 0x31 0x68 0x00" {
		t.Fatalf("frame = %q", res.Frame)
	}
	postJSON(t, srv.URL+"/api/goto", `{"satellite": "ASTRA 1KR"}`, http.StatusConflict, &res)
	if !res.Busy {
		t.Fatalf("goto while busy = %+v", res)
	}
	postJSON(t, srv.URL+"/api/cancel", ``, http.StatusOK, nil)
	waitIdle(t, a)
}

func TestUSALS(t *testing.T) {
	_, srv := newTestServer(t)
	var out struct {
		Position struct {
			Angle float64 `json:"angle"`
			East  bool    `json:"east"`
		} `json:"position"`
		Frame string `json:"frame"`
	}
	getJSON(t, srv.URL+"/api/usals?satellite=astra+1kr", http.StatusOK, &out)
	if !out.Position.East || out.Position.Angle < 15 || out.Position.Angle > 17 {
		t.Fatalf("usals = %+v", out)
	}
	if !strings.HasPrefix(out.Frame, "0xE0 0x31 0x6E 0xE0") {
		t.Fatalf("frame = %q", out.Frame)
	}

	getJSON(t, srv.URL+"/api/usals?longitude=170W", http.StatusUnprocessableEntity, nil)
	getJSON(t, srv.URL+"/api/usals?satellite=nothing+here", http.StatusNotFound, nil)
	getJSON(t, srv.URL+"/api/usals", http.StatusBadRequest, nil)
	getJSON(t, srv.URL+"/api/usals?longitude=30W&lat=40&lon=-3", http.StatusOK, nil)
}

func TestSatellites(t *testing.T) {
	_, srv := newTestServer(t)
	var out struct {
		Satellites []satelliteJSON `json:"satellites"`
	}
	getJSON(t, srv.URL+"/api/satellites", http.StatusOK, &out)
	if len(out.Satellites) == 0 {
		t.Fatal("no satellites")
	}
	for _, s := range out.Satellites {
		if s.Name == "GALAXY 19" && s.Reachable {
			t.Fatal("97W should be below the horizon from 5E")
		}
		if s.Name == "ASTRA 1KR" && (!s.Reachable || s.Slot != "19.2E") {
			t.Fatalf("ASTRA 1KR = %+v", s)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "feedhunter_build_info") {
		t.Fatal("build info metric missing")
	}
}

func TestWebSocketSnapshot(t *testing.T) {
	_, srv := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var hb telemetry.Heartbeat
	if err := conn.ReadJSON(&hb); err != nil {
		t.Fatal(err)
	}
	if hb.Type != telemetry.EventHeartbeat || hb.State != runner.StateIdle || hb.Device != "demo" {
		t.Fatalf("snapshot = %+v", hb)
	}
}

// brokenListener fails every Accept with a non-temporary error.
type brokenListener struct{ net.Listener }

func (brokenListener) Accept() (net.Conn, error) { return nil, errors.New("accept: network down") }

func TestRunClosesFrontendWhenServeFails(t *testing.T) {
	cfg := config.Default()
	cfg.Data.Root = t.TempDir()
	cfg.Catalog.TLEURL = ""
	cfg.Station.Latitude = 50
	cfg.Station.Longitude = 5

	hw := demo.New(demo.Options{Logger: log.New(io.Discard, "", 0)})
	a := New(Options{Logger: log.New(io.Discard, "", 0), Cfg: cfg, Bind: "127.0.0.1:0", Hardware: hw})
	a.listen = func(network, addr string) (net.Listener, error) {
		ln, err := net.Listen(network, addr)
		if err != nil {
			return nil, err
		}
		return brokenListener{ln}, nil
	}

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "network down") {
			t.Fatalf("Run err = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Serve failed")
	}
	if err := hw.SetVoltage(dvb.Voltage18); err == nil {
		t.Fatal("frontend left open after Serve failed")
	}
}
