package scaler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/large-farva/vibrator-engine/internal/effect"
)

func TestParseUsageAndIntensity(t *testing.T) {
	u, err := ParseUsage(" Alarm ")
	require.NoError(t, err)
	assert.Equal(t, UsageAlarm, u)

	u, err = ParseUsage("")
	require.NoError(t, err)
	assert.Equal(t, UsageUnknown, u)

	_, err = ParseUsage("gaming")
	assert.Error(t, err)

	i, err := ParseIntensity("HIGH")
	require.NoError(t, err)
	assert.Equal(t, IntensityHigh, i)
	_, err = ParseIntensity("max")
	assert.Error(t, err)
}

func TestIntensityJSON(t *testing.T) {
	b, err := json.Marshal(map[Usage]Intensity{UsageTouch: IntensityOff})
	require.NoError(t, err)
	assert.JSONEq(t, `{"touch":"off"}`, string(b))

	var got struct {
		Level Intensity `json:"level"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"level":"low"}`), &got))
	assert.Equal(t, IntensityLow, got.Level)
	assert.Error(t, json.Unmarshal([]byte(`{"level":"loud"}`), &got))
}

func TestScaleLevel(t *testing.T) {
	s := New(Options{Defaults: map[Usage]Intensity{UsageAlarm: IntensityHigh}})

	assert.Equal(t, 0, s.ScaleLevel(UsageTouch))
	assert.Equal(t, 1.0, s.ScaleFactor(UsageTouch))

	s.SetIntensity(UsageTouch, IntensityHigh)
	assert.Equal(t, 1, s.ScaleLevel(UsageTouch))
	assert.InDelta(t, 1.4, s.ScaleFactor(UsageTouch), 1e-9)

	s.SetIntensity(UsageAlarm, IntensityLow)
	assert.Equal(t, -2, s.ScaleLevel(UsageAlarm))
	assert.InDelta(t, 1/(1.4*1.4), s.ScaleFactor(UsageAlarm), 1e-9)

	s.SetIntensity(UsageMedia, IntensityOff)
	assert.Equal(t, 0, s.ScaleLevel(UsageMedia))
	assert.Equal(t, IntensityOff, s.Intensities()[UsageMedia])
}

func TestScaleAmplitude(t *testing.T) {
	assert.Equal(t, 0.5, ScaleAmplitude(0.5, 1))
	assert.InDelta(t, 0.25, ScaleAmplitude(0.5, 0.5), 1e-9)
	assert.Equal(t, 0.0, ScaleAmplitude(0, 2))

	up := ScaleAmplitude(0.5, 2)
	assert.Greater(t, up, 0.5)
	assert.LessOrEqual(t, up, 1.0)
	assert.InDelta(t, 1.0, ScaleAmplitude(1, 3), 1e-9)
}

func TestScaleComposed(t *testing.T) {
	s := New(Options{DefaultAmplitude: 0.8})
	s.SetIntensity(UsageTouch, IntensityLow)

	c, err := effect.Waveform([]int64{10, 10}, []int{-1, 255}, -1)
	require.NoError(t, err)
	c.Segments = append(c.Segments,
		effect.RampSegment{StartAmplitude: 0, EndAmplitude: 1, Duration: 10},
		effect.PrebakedSegment{Effect: effect.EffectClick, Strength: effect.StrengthMedium},
		effect.PrimitiveSegment{Primitive: effect.PrimitiveClick, Scale: 1},
	)

	out := s.Scale(c, UsageTouch, 0.5).(*effect.Composed)
	factor := 1 / 1.4

	assert.InDelta(t, 0.8*factor*0.5, out.Segments[0].(effect.StepSegment).Amplitude, 1e-9)
	assert.InDelta(t, factor*0.5, out.Segments[1].(effect.StepSegment).Amplitude, 1e-9)
	assert.InDelta(t, factor*0.5, out.Segments[2].(effect.RampSegment).EndAmplitude, 1e-9)
	assert.Equal(t, effect.StrengthLight, out.Segments[3].(effect.PrebakedSegment).Strength)
	assert.InDelta(t, factor*0.5, out.Segments[4].(effect.PrimitiveSegment).Scale, 1e-9)

	// The input is left untouched.
	assert.Equal(t, effect.DefaultAmplitude, c.Segments[0].(effect.StepSegment).Amplitude)
}

func TestScaleVendor(t *testing.T) {
	s := New(Options{})
	s.SetIntensity(UsageRingtone, IntensityHigh)

	v := effect.NewVendor(map[string]any{"id": 3})
	out := s.Scale(v, UsageRingtone, 0).(*effect.Vendor)
	assert.Equal(t, effect.StrengthStrong, out.Strength)
	assert.InDelta(t, 1.4, out.Scale, 1e-9)
	assert.Equal(t, 1.0, out.AdaptiveScale)
	assert.Equal(t, 1.0, v.Scale)
}

func TestStrengthFor(t *testing.T) {
	assert.Equal(t, effect.StrengthLight, StrengthFor(IntensityLow))
	assert.Equal(t, effect.StrengthMedium, StrengthFor(IntensityMedium))
	assert.Equal(t, effect.StrengthStrong, StrengthFor(IntensityHigh))
	assert.Equal(t, 0.3, Linear{}.Apply(0.6, 0.5))
}
