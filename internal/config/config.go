// Package config handles loading, defaulting, and validation of the vibrator
// engine TOML configuration file. Every section maps to a typed struct, and
// the helpers at the bottom convert sections into the option types the
// engine packages take.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/large-farva/vibrator-engine/internal/effect"
	"github.com/large-farva/vibrator-engine/internal/hal"
	"github.com/large-farva/vibrator-engine/internal/hal/sim"
	"github.com/large-farva/vibrator-engine/internal/scaler"
	"github.com/large-farva/vibrator-engine/internal/vibrator"
)

// Config is the top-level configuration, mirroring the TOML sections.
type Config struct {
	Logging   LoggingConfig             `toml:"logging"   json:"logging"`
	Server    ServerConfig              `toml:"server"    json:"server"`
	Vibration VibrationConfig           `toml:"vibration" json:"vibration"`
	Intensity IntensityConfig           `toml:"intensity" json:"intensity"`
	Adaptive  AdaptiveConfig            `toml:"adaptive"  json:"adaptive"`
	Actuators []ActuatorConfig          `toml:"actuators" json:"actuators"`
	Sync      SyncConfig                `toml:"sync"      json:"sync"`
	Fallbacks map[string]FallbackConfig `toml:"fallbacks" json:"fallbacks,omitempty"`
	Demo      DemoConfig                `toml:"demo"      json:"demo"`
}

type LoggingConfig struct {
	Level  string `toml:"level"  json:"level"`
	Format string `toml:"format" json:"format"`
}

type ServerConfig struct {
	Bind string `toml:"bind" json:"bind"`
	// RateLimitRPS limits vibration submissions per client. Zero disables
	// the limiter.
	RateLimitRPS   float64 `toml:"rate_limit_rps"   json:"rate_limit_rps"`
	RateLimitBurst int     `toml:"rate_limit_burst" json:"rate_limit_burst"`
}

type VibrationConfig struct {
	RampDownMs                int     `toml:"ramp_down_ms"                  json:"ramp_down_ms"`
	RampStepMs                int     `toml:"ramp_step_ms"                  json:"ramp_step_ms"`
	CallbacksExtraTimeoutMs   int     `toml:"callbacks_extra_timeout_ms"    json:"callbacks_extra_timeout_ms"`
	RepeatingOnDurationMs     int     `toml:"repeating_on_duration_ms"      json:"repeating_on_duration_ms"`
	VendorEffectMaxDurationMs int     `toml:"vendor_effect_max_duration_ms" json:"vendor_effect_max_duration_ms"`
	ParamsTimeoutMs           int     `toml:"params_timeout_ms"             json:"params_timeout_ms"`
	DefaultAmplitude          int     `toml:"default_amplitude"             json:"default_amplitude"`
	ScaleGain                 float64 `toml:"scale_gain"                    json:"scale_gain"`
	Sync                      bool    `toml:"sync"                          json:"sync"`
}

// IntensityConfig maps usage names to intensity names.
type IntensityConfig struct {
	Defaults map[string]string `toml:"defaults" json:"defaults,omitempty"`
	User     map[string]string `toml:"user"     json:"user,omitempty"`
}

type AdaptiveConfig struct {
	Scales    map[string]float64 `toml:"scales"     json:"scales,omitempty"`
	LatencyMs int                `toml:"latency_ms" json:"latency_ms"`
}

// ActuatorConfig defines one simulated actuator.
type ActuatorConfig struct {
	ID           int              `toml:"id"           json:"id"`
	Capabilities []string         `toml:"capabilities" json:"capabilities"`
	Effects      []string         `toml:"effects"      json:"effects,omitempty"`
	Braking      []string         `toml:"braking"      json:"braking,omitempty"`
	Primitives   map[string]int64 `toml:"primitives"   json:"primitives,omitempty"`

	PrimitiveDelayMaxMs        int64 `toml:"primitive_delay_max_ms"         json:"primitive_delay_max_ms"`
	CompositionSizeMax         int   `toml:"composition_size_max"           json:"composition_size_max"`
	PwleSizeMax                int   `toml:"pwle_size_max"                  json:"pwle_size_max"`
	PwlePrimitiveDurationMaxMs int64 `toml:"pwle_primitive_duration_max_ms" json:"pwle_primitive_duration_max_ms"`
	MaxEnvelopeEffectSize      int   `toml:"max_envelope_effect_size"       json:"max_envelope_effect_size"`
	MinEnvelopePointMs         int64 `toml:"min_envelope_point_ms"          json:"min_envelope_point_ms"`
	MaxEnvelopePointMs         int64 `toml:"max_envelope_point_ms"          json:"max_envelope_point_ms"`

	QFactor               float64   `toml:"q_factor"                json:"q_factor"`
	ResonantHz            float64   `toml:"resonant_hz"             json:"resonant_hz"`
	MinHz                 float64   `toml:"min_hz"                  json:"min_hz"`
	ResolutionHz          float64   `toml:"resolution_hz"           json:"resolution_hz"`
	MaxAmplitudes         []float64 `toml:"max_amplitudes"          json:"max_amplitudes,omitempty"`
	FrequenciesHz         []float64 `toml:"frequencies_hz"          json:"frequencies_hz,omitempty"`
	OutputAccelerationsGs []float64 `toml:"output_accelerations_gs" json:"output_accelerations_gs,omitempty"`

	OnLatencyMs      int   `toml:"on_latency_ms"      json:"on_latency_ms"`
	CallbackDelayMs  int   `toml:"callback_delay_ms"  json:"callback_delay_ms"`
	EffectDurationMs int64 `toml:"effect_duration_ms" json:"effect_duration_ms"`
	VendorDurationMs int64 `toml:"vendor_duration_ms" json:"vendor_duration_ms"`
}

// SyncConfig defines the simulated manager-level sync driver.
type SyncConfig struct {
	Capabilities []string `toml:"capabilities"  json:"capabilities"`
	PrepareFails bool     `toml:"prepare_fails" json:"prepare_fails"`
	TriggerFails bool     `toml:"trigger_fails" json:"trigger_fails"`
}

// FallbackConfig is the waveform played when a prebaked effect is missing.
type FallbackConfig struct {
	Timings    []int64 `toml:"timings"    json:"timings"`
	Amplitudes []int   `toml:"amplitudes" json:"amplitudes"`
}

type DemoConfig struct {
	Enabled         bool `toml:"enabled"          json:"enabled"`
	IntervalSeconds int  `toml:"interval_seconds" json:"interval_seconds"`
}

// Default returns a Config populated with sane defaults. Values here are
// used whenever the TOML file omits a field.
func Default() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Bind:           "0.0.0.0:8080",
			RateLimitRPS:   20,
			RateLimitBurst: 40,
		},
		Vibration: VibrationConfig{
			RampDownMs:                0,
			RampStepMs:                5,
			CallbacksExtraTimeoutMs:   1000,
			RepeatingOnDurationMs:     5000,
			VendorEffectMaxDurationMs: 8000,
			ParamsTimeoutMs:           50,
			DefaultAmplitude:          255,
			ScaleGain:                 1.4,
			Sync:                      true,
		},
		Actuators: []ActuatorConfig{
			{
				ID:           1,
				Capabilities: []string{"on_callback", "perform_callback", "amplitude_control", "compose_effects", "external_control"},
				Effects:      []string{"click", "tick", "double_click", "heavy_click"},
				Primitives: map[string]int64{
					"click": 12,
					"tick":  8,
					"thud":  40,
				},
				PrimitiveDelayMaxMs: 1000,
				CompositionSizeMax:  16,
				EffectDurationMs:    20,
			},
		},
		Demo: DemoConfig{
			Enabled:         false,
			IntervalSeconds: 5,
		},
	}
}

// Load reads the TOML file at path, layers it on top of the defaults, and
// validates the result. An error is returned if the file can't be read,
// parsed, or if any constraint is violated.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	// [[actuators]] replaces the default actuator list rather than extending it.
	defaults := cfg.Actuators
	cfg.Actuators = nil
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	if len(cfg.Actuators) == 0 {
		cfg.Actuators = defaults
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Server.Bind == "" {
		return errors.New("server.bind must not be empty")
	}
	if cfg.Server.RateLimitRPS < 0 {
		return errors.New("server.rate_limit_rps must be >= 0")
	}
	if cfg.Server.RateLimitRPS > 0 && cfg.Server.RateLimitBurst < 1 {
		return errors.New("server.rate_limit_burst must be >= 1")
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "", "text", "json":
	default:
		return errors.New("logging.format must be text or json")
	}

	v := cfg.Vibration
	if v.RampDownMs < 0 {
		return errors.New("vibration.ramp_down_ms must be >= 0")
	}
	if v.RampStepMs < 1 {
		return errors.New("vibration.ramp_step_ms must be >= 1")
	}
	if v.CallbacksExtraTimeoutMs < 0 || v.RepeatingOnDurationMs < 0 ||
		v.VendorEffectMaxDurationMs < 0 || v.ParamsTimeoutMs < 0 {
		return errors.New("vibration timeouts must be >= 0")
	}
	if v.DefaultAmplitude < 1 || v.DefaultAmplitude > 255 {
		return errors.New("vibration.default_amplitude must be between 1 and 255")
	}
	if v.ScaleGain <= 1 {
		return errors.New("vibration.scale_gain must be > 1")
	}

	if _, err := usageIntensities(cfg.Intensity.Defaults); err != nil {
		return fmt.Errorf("intensity.defaults: %w", err)
	}
	if _, err := usageIntensities(cfg.Intensity.User); err != nil {
		return fmt.Errorf("intensity.user: %w", err)
	}
	if _, err := cfg.AdaptiveScales(); err != nil {
		return err
	}
	if cfg.Adaptive.LatencyMs < 0 {
		return errors.New("adaptive.latency_ms must be >= 0")
	}

	if len(cfg.Actuators) == 0 {
		return errors.New("at least one [[actuators]] entry is required")
	}
	seen := map[int]bool{}
	for _, a := range cfg.Actuators {
		if seen[a.ID] {
			return fmt.Errorf("actuators: duplicate id %d", a.ID)
		}
		seen[a.ID] = true
		if _, err := a.Info(); err != nil {
			return fmt.Errorf("actuators[%d]: %w", a.ID, err)
		}
		if a.OnLatencyMs < 0 || a.CallbackDelayMs < 0 {
			return fmt.Errorf("actuators[%d]: latencies must be >= 0", a.ID)
		}
	}

	if _, err := hal.ParseSyncCapabilities(cfg.Sync.Capabilities); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if _, err := cfg.FallbackEffects(); err != nil {
		return err
	}
	if cfg.Demo.IntervalSeconds < 0 {
		return errors.New("demo.interval_seconds must be >= 0")
	}
	return nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// VibratorOptions returns the conductor timing options.
func (c Config) VibratorOptions() vibrator.Options {
	v := c.Vibration
	return vibrator.Options{
		RampDown:              ms(v.RampDownMs),
		RampStep:              ms(v.RampStepMs),
		CallbacksExtraTimeout: ms(v.CallbacksExtraTimeoutMs),
		RepeatingOnDuration:   ms(v.RepeatingOnDurationMs),
		VendorMaxDuration:     ms(v.VendorEffectMaxDurationMs),
		ParamsTimeout:         ms(v.ParamsTimeoutMs),
	}
}

// ScalerOptions returns the scaler options. The user intensities are applied
// separately through UserIntensities.
func (c Config) ScalerOptions() scaler.Options {
	defaults, _ := usageIntensities(c.Intensity.Defaults)
	return scaler.Options{
		Gain:             c.Vibration.ScaleGain,
		DefaultAmplitude: float64(c.Vibration.DefaultAmplitude) / 255,
		Defaults:         defaults,
	}
}

// UserIntensities returns the configured user intensity per usage.
func (c Config) UserIntensities() map[scaler.Usage]scaler.Intensity {
	out, _ := usageIntensities(c.Intensity.User)
	return out
}

// AdaptiveScales returns the adaptive scale per usage.
func (c Config) AdaptiveScales() (map[scaler.Usage]float64, error) {
	out := make(map[scaler.Usage]float64, len(c.Adaptive.Scales))
	for name, s := range c.Adaptive.Scales {
		u, err := scaler.ParseUsage(name)
		if err != nil {
			return nil, fmt.Errorf("adaptive.scales: %w", err)
		}
		if s <= 0 || s > 1 {
			return nil, fmt.Errorf("adaptive.scales.%s must be in (0, 1]", name)
		}
		out[u] = s
	}
	return out, nil
}

// AdaptiveLatency is the simulated delay before adaptive scales arrive.
func (c Config) AdaptiveLatency() time.Duration { return ms(c.Adaptive.LatencyMs) }

// FallbackEffects builds the fallback waveform of every configured effect.
func (c Config) FallbackEffects() (map[effect.EffectID]effect.Effect, error) {
	out := make(map[effect.EffectID]effect.Effect, len(c.Fallbacks))
	for name, fb := range c.Fallbacks {
		id, err := effect.ParseEffectID(name)
		if err != nil {
			return nil, fmt.Errorf("fallbacks: %w", err)
		}
		e, err := effect.Waveform(fb.Timings, fb.Amplitudes, -1)
		if err == nil {
			err = e.Validate()
		}
		if err != nil {
			return nil, fmt.Errorf("fallbacks.%s: %w", name, err)
		}
		out[id] = e
	}
	return out, nil
}

// SyncCapabilities parses the sync driver capabilities.
func (c Config) SyncCapabilities() hal.SyncCapability {
	caps, _ := hal.ParseSyncCapabilities(c.Sync.Capabilities)
	return caps
}

// Info converts the actuator definition into the reported hardware info.
func (a ActuatorConfig) Info() (hal.Info, error) {
	caps, err := hal.ParseCapabilities(a.Capabilities)
	if err != nil {
		return hal.Info{}, err
	}
	info := hal.Info{
		ID:                    a.ID,
		Capabilities:          caps,
		PrimitiveDelayMaxMs:   a.PrimitiveDelayMaxMs,
		CompositionSizeMax:    a.CompositionSizeMax,
		PwleSizeMax:           a.PwleSizeMax,
		PwlePrimitiveMaxMs:    a.PwlePrimitiveDurationMaxMs,
		MaxEnvelopeEffectSize: a.MaxEnvelopeEffectSize,
		MinEnvelopePointMs:    a.MinEnvelopePointMs,
		MaxEnvelopePointMs:    a.MaxEnvelopePointMs,
		QFactor:               a.QFactor,
		Frequency: hal.FrequencyProfile{
			ResonantHz:            a.ResonantHz,
			MinHz:                 a.MinHz,
			ResolutionHz:          a.ResolutionHz,
			MaxAmplitudes:         a.MaxAmplitudes,
			FrequenciesHz:         a.FrequenciesHz,
			OutputAccelerationsGs: a.OutputAccelerationsGs,
		},
	}
	for _, name := range a.Effects {
		id, err := effect.ParseEffectID(name)
		if err != nil {
			return hal.Info{}, err
		}
		info.Effects = append(info.Effects, id)
	}
	for _, name := range a.Braking {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "none":
			info.Braking = append(info.Braking, hal.BrakingNone)
		case "clab":
			info.Braking = append(info.Braking, hal.BrakingClab)
		default:
			return hal.Info{}, fmt.Errorf("unknown braking %q", name)
		}
	}
	if len(a.Primitives) > 0 {
		info.Primitives = make(map[effect.Primitive]int64, len(a.Primitives))
		for name, d := range a.Primitives {
			p, err := effect.ParsePrimitive(name)
			if err != nil {
				return hal.Info{}, err
			}
			if d < 0 {
				return hal.Info{}, fmt.Errorf("primitive %s duration must be >= 0", name)
			}
			info.Primitives[p] = d
		}
	}
	if len(a.FrequenciesHz) != len(a.OutputAccelerationsGs) {
		return hal.Info{}, errors.New("frequencies_hz and output_accelerations_gs must have the same length")
	}
	return info, nil
}

// SimConfig returns the simulated driver configuration of the actuator.
// Info must already have been validated by Load.
func (a ActuatorConfig) SimConfig() sim.Config {
	info, _ := a.Info()
	return sim.Config{
		Info:             info,
		OnLatency:        ms(a.OnLatencyMs),
		CallbackDelay:    ms(a.CallbackDelayMs),
		EffectDurationMs: a.EffectDurationMs,
		VendorDurationMs: a.VendorDurationMs,
	}
}

func usageIntensities(in map[string]string) (map[scaler.Usage]scaler.Intensity, error) {
	out := make(map[scaler.Usage]scaler.Intensity, len(in))
	for u, i := range in {
		usage, err := scaler.ParseUsage(u)
		if err != nil {
			return nil, err
		}
		level, err := scaler.ParseIntensity(i)
		if err != nil {
			return nil, err
		}
		out[usage] = level
	}
	return out, nil
}
