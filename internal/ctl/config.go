package ctl

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/large-farva/vibrator-engine/internal/config"
)

// Config fetches and displays the daemon's running configuration.
func Config(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var raw json.RawMessage
	if err := getJSON(baseURL, "/api/config", &raw); err != nil {
		return err
	}

	if jsonOutput {
		var v any
		_ = json.Unmarshal(raw, &v)
		return printJSON(v)
	}

	var resp struct {
		Path   string        `json:"path"`
		Config config.Config `json:"config"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return err
	}
	cfg := resp.Config

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, header("  DAEMON CONFIGURATION"))
	fmt.Fprintln(stdout, rule(50))
	if resp.Path != "" {
		fmt.Fprintf(stdout, "  %s %s\n", colorize(dim, "file:"), resp.Path)
	}

	section := func(name string) {
		fmt.Fprintf(stdout, "\n  %s\n", colorize(bold, "["+name+"]"))
	}
	field := func(key string, val any) {
		fmt.Fprintf(stdout, "    %-30s %v\n", colorize(dim, key+":"), val)
	}

	section("logging")
	field("level", cfg.Logging.Level)
	field("format", cfg.Logging.Format)

	section("server")
	field("bind", cfg.Server.Bind)
	field("rate_limit_rps", cfg.Server.RateLimitRPS)
	field("rate_limit_burst", cfg.Server.RateLimitBurst)

	v := cfg.Vibration
	section("vibration")
	field("ramp_down_ms", v.RampDownMs)
	field("ramp_step_ms", v.RampStepMs)
	field("callbacks_extra_timeout_ms", v.CallbacksExtraTimeoutMs)
	field("repeating_on_duration_ms", v.RepeatingOnDurationMs)
	field("vendor_effect_max_duration_ms", v.VendorEffectMaxDurationMs)
	field("params_timeout_ms", v.ParamsTimeoutMs)
	field("default_amplitude", v.DefaultAmplitude)
	field("scale_gain", v.ScaleGain)
	field("sync", v.Sync)

	for _, a := range cfg.Actuators {
		section(fmt.Sprintf("actuators.%d", a.ID))
		field("capabilities", strings.Join(a.Capabilities, ", "))
		if len(a.Effects) > 0 {
			field("effects", strings.Join(a.Effects, ", "))
		}
		if len(a.Primitives) > 0 {
			field("primitives", a.Primitives)
		}
		if a.ResonantHz > 0 {
			field("resonant_hz", a.ResonantHz)
		}
	}

	if len(cfg.Sync.Capabilities) > 0 {
		section("sync")
		field("capabilities", strings.Join(cfg.Sync.Capabilities, ", "))
	}

	section("demo")
	field("enabled", cfg.Demo.Enabled)
	field("interval_seconds", cfg.Demo.IntervalSeconds)

	fmt.Fprintln(stdout)
	return nil
}
