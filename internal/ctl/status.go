package ctl

import (
	"fmt"
	"strings"
	"time"
)

// StatusResponse mirrors the JSON returned by GET /api/status.
type StatusResponse struct {
	Name            string `json:"name"`
	State           string `json:"state"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	Actuators       int    `json:"actuators"`
	ActiveVibration int64  `json:"active_vibration,omitempty"`
	ExternalControl bool   `json:"external_control"`
	DemoEnabled     bool   `json:"demo_enabled"`
	WSClients       int    `json:"ws_clients"`
	Session         *struct {
		ID        string `json:"id"`
		Actuators []int  `json:"actuators"`
	} `json:"session,omitempty"`
}

// Status fetches the daemon status and prints a formatted summary.
func Status(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var s StatusResponse
	if err := getJSON(baseURL, "/api/status", &s); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(s)
	}

	uptime := formatDuration(time.Duration(s.UptimeSeconds) * time.Second)
	active := "none"
	if s.ActiveVibration != 0 {
		active = fmt.Sprintf("#%d", s.ActiveVibration)
	}
	session := "none"
	if s.Session != nil {
		session = fmt.Sprintf("%s on %v", s.Session.ID, s.Session.Actuators)
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, header("  VIBRATOR ENGINE STATUS"))
	fmt.Fprintln(stdout, rule(38))
	fmt.Fprintf(stdout, "  %-12s %s\n", colorize(dim, "Daemon:"), s.Name)
	fmt.Fprintf(stdout, "  %-12s %s\n", colorize(dim, "State:"), colorize(stateColor(s.State), s.State))
	fmt.Fprintf(stdout, "  %-12s %s\n", colorize(dim, "Uptime:"), uptime)
	fmt.Fprintf(stdout, "  %-12s %d\n", colorize(dim, "Actuators:"), s.Actuators)
	fmt.Fprintf(stdout, "  %-12s %s\n", colorize(dim, "Playing:"), active)
	fmt.Fprintf(stdout, "  %-12s %s\n", colorize(dim, "Session:"), session)
	fmt.Fprintf(stdout, "  %-12s %t\n", colorize(dim, "External:"), s.ExternalControl)
	fmt.Fprintf(stdout, "  %-12s %t\n", colorize(dim, "Demo:"), s.DemoEnabled)
	fmt.Fprintf(stdout, "  %-12s %s\n", colorize(dim, "Host:"), baseURL)
	fmt.Fprintln(stdout)

	return nil
}
