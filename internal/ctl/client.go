package ctl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/large-farva/feedhunter/internal/frontend"
	"github.com/large-farva/feedhunter/internal/usals"
)

var httpClient = &http.Client{Timeout: 5 * time.Second}

// commandClient is used for job commands. A tune or rotor move replies
// only once the hardware is done, so it gets a longer budget.
var commandClient = &http.Client{Timeout: 5 * time.Minute}

// CommandResult mirrors the JSON reply of every command endpoint.
type CommandResult struct {
	OK                bool                 `json:"ok"`
	Message           string               `json:"message,omitempty"`
	Error             string               `json:"error,omitempty"`
	Status            *frontend.LockStatus `json:"status,omitempty"`
	Position          *usals.Position      `json:"position,omitempty"`
	Frame             string               `json:"frame,omitempty"`
	SatellitesUpdated int                  `json:"satellites_updated,omitempty"`
	Busy              bool                 `json:"busy,omitempty"`

	raw []byte
}

func endpoint(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + path
}

// getJSON sends a GET request and decodes the JSON response into dst.
func getJSON(baseURL, path string, dst any) error {
	resp, err := httpClient.Get(endpoint(baseURL, path))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, dst)
}

// getRaw sends a GET request and returns the raw response body.
func getRaw(baseURL, path string, accept string) (int, []byte, error) {
	req, err := http.NewRequest(http.MethodGet, endpoint(baseURL, path), nil)
	if err != nil {
		return 0, nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// postCommand POSTs body to a command endpoint. Busy and rejected
// commands still carry a CommandResult, so those statuses are decoded
// rather than turned into errors.
func postCommand(baseURL, path string, body any) (CommandResult, error) {
	var res CommandResult
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return res, err
		}
		reqBody = bytes.NewReader(b)
	}
	resp, err := commandClient.Post(endpoint(baseURL, path), "application/json", reqBody)
	if err != nil {
		return res, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusConflict, http.StatusUnprocessableEntity:
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return res, err
		}
		if err := json.Unmarshal(b, &res); err != nil {
			return res, fmt.Errorf("HTTP %s: %w", resp.Status, err)
		}
		res.raw = b
		return res, nil
	}
	return res, statusError(resp, path)
}

// deleteJSON sends a DELETE request and decodes the response.
func deleteJSON(baseURL, path string, dst any) error {
	req, err := http.NewRequest(http.MethodDelete, endpoint(baseURL, path), nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, dst)
}

// decodeJSON decodes a JSON response body into dst. It checks the status code
// and returns an error with the body for non-2xx responses.
func decodeJSON(resp *http.Response, dst any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp, resp.Request.URL.Path)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// statusError turns a failed response into an error, preferring the
// "error" field of a JSON body.
func statusError(resp *http.Response, path string) error {
	b, _ := io.ReadAll(resp.Body)
	var je struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &je) == nil && je.Error != "" {
		return fmt.Errorf("HTTP %s: %s", resp.Status, je.Error)
	}
	msg := strings.TrimSpace(string(b))
	if msg != "" {
		return fmt.Errorf("HTTP %s: %s", resp.Status, msg)
	}
	return fmt.Errorf("HTTP %s from %s", resp.Status, path)
}

// printJSON prints v as indented JSON to stdout.
func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

// printRaw re-indents a JSON body for --json output.
func printRaw(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		fmt.Println(string(b))
		return nil
	}
	return printJSON(v)
}

// printResult renders a command reply. The returned error is non-nil
// when the daemon refused the command, so the CLI exits non-zero.
func printResult(res CommandResult, jsonOutput bool) error {
	if jsonOutput {
		if err := printRaw(res.raw); err != nil {
			return err
		}
	} else {
		fmt.Println()
		switch {
		case res.OK:
			fmt.Printf("  %s  %s\n", colorize(green, "OK"), res.Message)
		case res.Busy:
			fmt.Printf("  %s  %s\n", colorize(yellow, "BUSY"), res.Error)
		default:
			fmt.Printf("  %s  %s\n", colorize(red, "FAILED"), res.Error)
		}
		if res.Frame != "" {
			fmt.Printf("  %-12s %s\n", colorize(dim, "Frame:"), res.Frame)
		}
		if res.Position != nil {
			fmt.Printf("  %-12s %s\n", colorize(dim, "Rotor:"), res.Position)
		}
		if res.Status != nil {
			fmt.Printf("  %-12s %s\n", colorize(dim, "Status:"), formatLock(*res.Status))
		}
		fmt.Println()
	}
	if !res.OK {
		if res.Error == "" {
			return fmt.Errorf("command failed")
		}
		return fmt.Errorf("%s", res.Error)
	}
	return nil
}
