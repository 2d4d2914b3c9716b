package ctl

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// HealthResponse mirrors the JSON form of GET /healthz.
type HealthResponse struct {
	Healthy bool                       `json:"healthy"`
	Checks  map[string]json.RawMessage `json:"checks"`
}

// Health checks daemon liveness and prints the per-component checks. A
// daemon answering 503 is reported as unhealthy rather than as an error.
func Health(baseURL string, jsonOutput bool) error {
	status, body, err := getRaw(baseURL, "/healthz")
	if err != nil {
		if jsonOutput {
			return printJSON(map[string]any{"healthy": false, "url": baseURL, "error": err.Error()})
		}
		return err
	}

	var h HealthResponse
	if status != http.StatusOK && status != http.StatusServiceUnavailable {
		return fmt.Errorf("HTTP %d from %s/healthz", status, baseURL)
	}
	if err := json.Unmarshal(body, &h); err != nil {
		return fmt.Errorf("decode health: %w", err)
	}
	if jsonOutput {
		return printJSON(h)
	}

	fmt.Fprintln(stdout)
	if h.Healthy {
		fmt.Fprintf(stdout, "  %s  vibratord at %s\n", colorize(green, "HEALTHY"), colorize(dim, baseURL))
	} else {
		fmt.Fprintf(stdout, "  %s  vibratord at %s\n", colorize(red, "UNHEALTHY"), colorize(dim, baseURL))
	}
	fmt.Fprintln(stdout, rule(38))
	for _, name := range sortedKeys(h.Checks) {
		var c map[string]any
		_ = json.Unmarshal(h.Checks[name], &c)
		mark := colorize(green, "ok  ")
		if ok, _ := c["ok"].(bool); !ok {
			mark = colorize(red, "FAIL")
		}
		delete(c, "ok")
		detail := ""
		for _, k := range sortedKeys(c) {
			detail += fmt.Sprintf(" %s=%v", k, c[k])
		}
		fmt.Fprintf(stdout, "  %s %-10s%s\n", mark, name, colorize(dim, detail))
	}
	fmt.Fprintln(stdout)
	return nil
}
