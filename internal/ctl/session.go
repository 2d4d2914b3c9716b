package ctl

import (
	"fmt"
	"net/url"
)

// SessionStart opens a vibration session on the given actuators, or on all
// of them when none are given.
func SessionStart(baseURL string, actuators []int, jsonOutput bool) error {
	var resp struct {
		OK bool   `json:"ok"`
		ID string `json:"id"`
	}
	if err := postJSON(baseURL, "/api/sessions", map[string]any{"actuators": actuators}, &resp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}
	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "  %s  session %s\n", colorize(green, "STARTED"), resp.ID)
	fmt.Fprintf(stdout, "  %s\n", colorize(dim, "submit into it with: vibctl vibrate --session "+resp.ID+" ..."))
	fmt.Fprintln(stdout)
	return nil
}

// SessionEnd closes session id.
func SessionEnd(baseURL, id string, jsonOutput bool) error {
	var resp okResponse
	if err := deleteJSON(baseURL, "/api/sessions/"+url.PathEscape(id), &resp); err != nil {
		return err
	}
	return printOK(resp, jsonOutput)
}
