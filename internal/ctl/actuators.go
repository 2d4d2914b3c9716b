package ctl

import (
	"fmt"
	"strings"
)

// ActuatorInfo mirrors one entry of GET /api/actuators.
type ActuatorInfo struct {
	ID              int              `json:"id"`
	CapabilityNames []string         `json:"capability_names"`
	Effects         []int            `json:"effects,omitempty"`
	Primitives      map[string]int64 `json:"primitives,omitempty"`
	Vibrating       bool             `json:"vibrating"`
	Amplitude       float64          `json:"amplitude"`
	ExternalControl bool             `json:"external_control"`
	Frequency       struct {
		ResonantHz float64 `json:"resonant_hz"`
	} `json:"frequency"`
}

// Actuators lists the daemon's actuators and what they are doing.
func Actuators(baseURL string, jsonOutput bool) error {
	var resp struct {
		Actuators []ActuatorInfo `json:"actuators"`
	}
	if err := getJSON(baseURL, "/api/actuators", &resp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, header("  ACTUATORS"))
	t := newTable("  ", "ID", "State", "Amplitude", "Resonant", "Capabilities")
	for _, a := range resp.Actuators {
		state := "off"
		switch {
		case a.ExternalControl:
			state = "external"
		case a.Vibrating:
			state = "on"
		}
		resonant := "-"
		if a.Frequency.ResonantHz > 0 {
			resonant = fmt.Sprintf("%.0f Hz", a.Frequency.ResonantHz)
		}
		t.row(
			fmt.Sprintf("%d", a.ID),
			state,
			fmt.Sprintf("%.2f", a.Amplitude),
			resonant,
			strings.Join(a.CapabilityNames, ","),
		)
	}
	t.flush()
	fmt.Fprintln(stdout)
	return nil
}
