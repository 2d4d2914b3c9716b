package vibrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/large-farva/vibrator-engine/internal/effect"
	"github.com/large-farva/vibrator-engine/internal/hal"
	"github.com/large-farva/vibrator-engine/internal/hal/sim"
)

func adapterFor(t *testing.T, infos ...hal.Info) *DeviceAdapter {
	t.Helper()
	var ctrls []*Controller
	for _, info := range infos {
		ctrls = append(ctrls, NewController(sim.New(sim.Config{Info: info}, nil), nil))
	}
	return NewDeviceAdapter(ctrls, 5)
}

func TestAdapterMapsMonoToEveryActuator(t *testing.T) {
	a := adapterFor(t, hal.Info{ID: 2}, hal.Info{ID: 1})
	assert.Equal(t, []int{1, 2}, a.ActuatorIDs())

	m := a.Map(mono(effect.OneShot(10, 255)))
	assert.Len(t, m, 2)

	m = a.Map(effect.NewStereo().Add(2, effect.OneShot(10, 255)).Add(9, effect.OneShot(10, 255)))
	require.Len(t, m, 1)
	assert.Contains(t, m, 2)
}

func TestAdapterDropsZeroDurations(t *testing.T) {
	a := adapterFor(t, hal.Info{ID: 1})
	w := mustWaveform(t, []int64{0, 10, 0, 20}, []int{255, 100, 0, 200}, 2)

	got := a.Adapt(w, 1).(*effect.Composed)
	assert.Equal(t, []effect.Segment{
		effect.StepSegment{Amplitude: norm(100), Duration: 10},
		effect.StepSegment{Amplitude: norm(200), Duration: 20},
	}, got.Segments)
	assert.Equal(t, 1, got.RepeatIndex)
}

func TestAdapterTurnsRampsIntoStepsWithoutPwle(t *testing.T) {
	a := adapterFor(t, hal.Info{ID: 1, Capabilities: hal.CapAmplitudeControl})
	c := &effect.Composed{Segments: []effect.Segment{
		effect.RampSegment{StartAmplitude: 0, EndAmplitude: 1, Duration: 12},
		effect.RampSegment{StartAmplitude: 0.5, EndAmplitude: 0.5, Duration: 7},
	}, RepeatIndex: 1}

	got := a.Adapt(c, 1).(*effect.Composed)
	require.Len(t, got.Segments, 4)
	want := []effect.StepSegment{
		{Amplitude: 0, Duration: 5},
		{Amplitude: 1.0 / 3, Duration: 5},
		{Amplitude: 1, Duration: 2},
		{Amplitude: 0.5, Duration: 7},
	}
	for i, w := range want {
		st := got.Segments[i].(effect.StepSegment)
		assert.InDelta(t, w.Amplitude, st.Amplitude, 1e-9, "segment %d", i)
		assert.Equal(t, w.Duration, st.Duration, "segment %d", i)
	}
	assert.Equal(t, 3, got.RepeatIndex)
}

func TestAdapterPreparesRampsForPwle(t *testing.T) {
	profile := pwleProfile()
	profile.MaxAmplitudes = []float64{0.2, 0.4, 0.8, 1, 1}
	a := adapterFor(t, hal.Info{
		ID:                 1,
		Capabilities:       hal.CapComposePwle | hal.CapFrequencyControl,
		PwlePrimitiveMaxMs: 50,
		Frequency:          profile,
	})
	c := &effect.Composed{Segments: []effect.Segment{
		effect.StepSegment{Amplitude: 0.5, Duration: 10},
		effect.RampSegment{StartAmplitude: 1, EndAmplitude: 1, StartFrequencyHz: 10, EndFrequencyHz: 400, Duration: 20},
		effect.RampSegment{StartAmplitude: 0, EndAmplitude: 1, StartFrequencyHz: 200, EndFrequencyHz: 200, Duration: 120},
	}, RepeatIndex: -1}

	got := a.Adapt(c, 1).(*effect.Composed)
	require.Len(t, got.Segments, 5)

	flat := got.Segments[0].(effect.RampSegment)
	assert.Equal(t, 150.0, flat.StartFrequencyHz)
	assert.Equal(t, 0.5, flat.StartAmplitude)
	assert.Equal(t, 0.5, flat.EndAmplitude)

	clipped := got.Segments[1].(effect.RampSegment)
	assert.Equal(t, 50.0, clipped.StartFrequencyHz)
	assert.Equal(t, 250.0, clipped.EndFrequencyHz)
	assert.InDelta(t, 0.2, clipped.StartAmplitude, 1e-9)
	assert.InDelta(t, 1, clipped.EndAmplitude, 1e-9)

	var total int64
	for _, s := range got.Segments[2:] {
		r := s.(effect.RampSegment)
		assert.LessOrEqual(t, r.Duration, int64(50))
		total += r.Duration
	}
	assert.Equal(t, int64(120), total)
	assert.InDelta(t, 1, got.Segments[4].(effect.RampSegment).EndAmplitude, 1e-9)
}

func TestAdapterLeavesVendorEffectsAlone(t *testing.T) {
	a := adapterFor(t, hal.Info{ID: 1})
	v := effect.NewVendor(map[string]any{"k": 1})
	assert.Same(t, v, a.Adapt(v, 1))
}
