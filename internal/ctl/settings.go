package ctl

import (
	"fmt"
	"slices"
	"strings"
)

// Intensity shows the user intensities, or sets one when usage and level
// are both given.
func Intensity(baseURL, usage, level string, jsonOutput bool) error {
	if usage != "" && level != "" {
		var resp okResponse
		if err := postJSON(baseURL, "/api/settings/intensity", map[string]any{
			"usage":     usage,
			"intensity": level,
		}, &resp); err != nil {
			return err
		}
		return printOK(resp, jsonOutput)
	}

	var resp struct {
		Intensities map[string]string `json:"intensities"`
	}
	if err := getJSON(baseURL, "/api/settings/intensity", &resp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, header("  INTENSITIES"))
	t := newTable("  ", "Usage", "Intensity")
	for _, u := range sortedKeys(resp.Intensities) {
		lvl := resp.Intensities[u]
		c := ""
		if lvl == "off" {
			c = red
		}
		t.row(u, colorize(c, lvl))
	}
	t.flush()
	fmt.Fprintln(stdout)
	return nil
}

// Adaptive shows the adaptive scales, or sets one when usage is given.
func Adaptive(baseURL, usage string, scale float64, jsonOutput bool) error {
	if usage != "" {
		var resp okResponse
		if err := postJSON(baseURL, "/api/settings/adaptive", map[string]any{
			"usage": usage,
			"scale": scale,
		}, &resp); err != nil {
			return err
		}
		return printOK(resp, jsonOutput)
	}

	var resp struct {
		Scales map[string]float64 `json:"scales"`
	}
	if err := getJSON(baseURL, "/api/settings/adaptive", &resp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, header("  ADAPTIVE SCALES"))
	if len(resp.Scales) == 0 {
		fmt.Fprintln(stdout, "  No adaptive scales set; every usage plays unscaled.")
	} else {
		t := newTable("  ", "Usage", "Scale")
		for _, u := range sortedKeys(resp.Scales) {
			t.row(u, fmt.Sprintf("%.2f", resp.Scales[u]))
		}
		t.flush()
	}
	fmt.Fprintln(stdout)
	return nil
}

// ScreenOff tells the daemon the screen turned off.
func ScreenOff(baseURL string, jsonOutput bool) error {
	var resp okResponse
	if err := postJSON(baseURL, "/api/screen", map[string]any{"state": "off"}, &resp); err != nil {
		return err
	}
	return printOK(resp, jsonOutput)
}

// ExternalControl toggles external control of the actuators.
func ExternalControl(baseURL string, enabled, jsonOutput bool) error {
	var resp okResponse
	if err := postJSON(baseURL, "/api/external-control", map[string]any{"enabled": enabled}, &resp); err != nil {
		return err
	}
	return printOK(resp, jsonOutput)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, strings.Compare)
	return keys
}
