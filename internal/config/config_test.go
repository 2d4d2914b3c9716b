package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/large-farva/vibrator-engine/internal/effect"
	"github.com/large-farva/vibrator-engine/internal/hal"
	"github.com/large-farva/vibrator-engine/internal/scaler"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vibratord.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, validate(Default()))
}

func TestLoadLayersOnDefaults(t *testing.T) {
	path := writeConfig(t, `
[logging]
level = "debug"

[vibration]
ramp_down_ms = 80
sync = false

[intensity.defaults]
touch = "low"

[intensity.user]
ringtone = "off"

[adaptive]
scales = { media = 0.5 }
latency_ms = 20

[[actuators]]
id = 1
capabilities = ["on_callback", "amplitude_control", "compose_effects", "frequency_control", "compose_pwle"]
effects = ["click", "pop"]
braking = ["none", "clab"]
primitives = { click = 12, thud = 40 }
resonant_hz = 150.0
min_hz = 100.0
resolution_hz = 10.0
max_amplitudes = [0.5, 1.0, 1.0, 0.8]
on_latency_ms = 3

[[actuators]]
id = 2
capabilities = ["on_callback"]

[sync]
capabilities = ["sync", "prepare_on", "trigger_callback"]
trigger_fails = true

[fallbacks.click]
timings = [0, 30]
amplitudes = [0, 200]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Bind)
	assert.False(t, cfg.Vibration.Sync)

	opts := cfg.VibratorOptions()
	assert.Equal(t, 80*time.Millisecond, opts.RampDown)
	assert.Equal(t, 5*time.Millisecond, opts.RampStep)
	assert.Equal(t, 8*time.Second, opts.VendorMaxDuration)

	so := cfg.ScalerOptions()
	assert.InDelta(t, 1.0, so.DefaultAmplitude, 1e-9)
	assert.Equal(t, scaler.IntensityLow, so.Defaults[scaler.UsageTouch])
	assert.Equal(t, scaler.IntensityOff, cfg.UserIntensities()[scaler.UsageRingtone])

	scales, err := cfg.AdaptiveScales()
	require.NoError(t, err)
	assert.Equal(t, map[scaler.Usage]float64{scaler.UsageMedia: 0.5}, scales)
	assert.Equal(t, 20*time.Millisecond, cfg.AdaptiveLatency())

	require.Len(t, cfg.Actuators, 2)
	sc := cfg.Actuators[0].SimConfig()
	assert.Equal(t, 3*time.Millisecond, sc.OnLatency)
	assert.True(t, sc.Info.Has(hal.CapComposePwle|hal.CapFrequencyControl))
	assert.True(t, sc.Info.SupportsEffect(effect.EffectPop))
	assert.True(t, sc.Info.SupportsBraking(hal.BrakingClab))
	assert.Equal(t, int64(40), sc.Info.PrimitiveDurationMs(effect.PrimitiveThud))
	assert.False(t, sc.Info.Frequency.Empty())

	caps := cfg.SyncCapabilities()
	assert.True(t, caps.Has(hal.SyncCapSync|hal.SyncCapPrepareOn|hal.SyncCapTriggerCallback))
	assert.False(t, caps.Has(hal.SyncCapPrepareCompose))
	assert.True(t, cfg.Sync.TriggerFails)

	fbs, err := cfg.FallbackEffects()
	require.NoError(t, err)
	require.Contains(t, fbs, effect.EffectClick)
	assert.Equal(t, int64(30), fbs[effect.EffectClick].DurationMs())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	_, err := Load(writeConfig(t, "[vibration\nramp_down_ms = 1"))
	assert.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"empty bind":        func(c *Config) { c.Server.Bind = "" },
		"negative rps":      func(c *Config) { c.Server.RateLimitRPS = -1 },
		"zero burst":        func(c *Config) { c.Server.RateLimitBurst = 0 },
		"log format":        func(c *Config) { c.Logging.Format = "xml" },
		"ramp step":         func(c *Config) { c.Vibration.RampStepMs = 0 },
		"negative ramp":     func(c *Config) { c.Vibration.RampDownMs = -5 },
		"amplitude":         func(c *Config) { c.Vibration.DefaultAmplitude = 256 },
		"gain":              func(c *Config) { c.Vibration.ScaleGain = 1 },
		"intensity name":    func(c *Config) { c.Intensity.User = map[string]string{"touch": "loud"} },
		"usage name":        func(c *Config) { c.Intensity.Defaults = map[string]string{"toaster": "low"} },
		"adaptive range":    func(c *Config) { c.Adaptive.Scales = map[string]float64{"media": 1.5} },
		"no actuators":      func(c *Config) { c.Actuators = nil },
		"duplicate id":      func(c *Config) { c.Actuators = append(c.Actuators, c.Actuators[0]) },
		"capability":        func(c *Config) { c.Actuators[0].Capabilities = []string{"teleport"} },
		"effect":            func(c *Config) { c.Actuators[0].Effects = []string{"boom"} },
		"braking":           func(c *Config) { c.Actuators[0].Braking = []string{"hard"} },
		"freq table":        func(c *Config) { c.Actuators[0].FrequenciesHz = []float64{100} },
		"sync capability":   func(c *Config) { c.Sync.Capabilities = []string{"warp"} },
		"fallback effect":   func(c *Config) { c.Fallbacks = map[string]FallbackConfig{"boom": {Timings: []int64{10}, Amplitudes: []int{1}}} },
		"fallback waveform": func(c *Config) { c.Fallbacks = map[string]FallbackConfig{"click": {Timings: []int64{10}}} },
		"demo interval":     func(c *Config) { c.Demo.IntervalSeconds = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.Actuators = []ActuatorConfig{Default().Actuators[0]}
			mutate(&cfg)
			assert.Error(t, validate(cfg))
		})
	}
}
