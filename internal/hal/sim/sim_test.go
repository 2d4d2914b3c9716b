package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/large-farva/vibrator-engine/internal/effect"
	"github.com/large-farva/vibrator-engine/internal/hal"
)

func fullInfo() hal.Info {
	return hal.Info{
		ID: 1,
		Capabilities: hal.CapOnCallback | hal.CapPerformCallback | hal.CapAmplitudeControl |
			hal.CapComposeEffects | hal.CapComposePwle | hal.CapExternalControl,
		Effects:            []effect.EffectID{effect.EffectClick},
		Primitives:         map[effect.Primitive]int64{effect.PrimitiveClick: 10, effect.PrimitiveTick: 5},
		CompositionSizeMax: 2,
		PwleSizeMax:        3,
	}
}

func TestOnCompletesWithCallback(t *testing.T) {
	a := New(Config{Info: fullInfo()}, nil)
	done := make(chan struct{})

	d, err := a.On(20, func() { close(done) })
	require.NoError(t, err)
	assert.Equal(t, int64(20), d)
	assert.True(t, a.IsVibrating())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("on callback never fired")
	}
	assert.Eventually(t, func() bool { return !a.IsVibrating() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{20}, a.OnDurations())
}

func TestOffStopsPlaybackAndCallback(t *testing.T) {
	a := New(Config{Info: fullInfo()}, nil)
	fired := make(chan struct{}, 1)

	_, err := a.On(50, func() { fired <- struct{}{} })
	require.NoError(t, err)
	require.NoError(t, a.Off())

	assert.False(t, a.IsVibrating())
	assert.Equal(t, 1, a.OffCount())
	select {
	case <-fired:
		t.Fatal("callback fired after off")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestOffDuringLatencyCancelsPlayback(t *testing.T) {
	a := New(Config{Info: fullInfo(), OnLatency: 50 * time.Millisecond}, nil)
	result := make(chan error, 1)
	go func() {
		_, err := a.On(100, nil)
		result <- err
	}()

	require.Eventually(t, func() bool { return len(a.OnDurations()) == 1 }, time.Second, time.Millisecond)
	require.NoError(t, a.Off())
	require.NoError(t, <-result)
	assert.False(t, a.IsVibrating())
}

func TestCapabilityChecks(t *testing.T) {
	a := New(Config{Info: hal.Info{ID: 2}}, nil)

	assert.ErrorIs(t, a.SetAmplitude(0.5), hal.ErrUnsupported)
	assert.ErrorIs(t, a.SetExternalControl(true), hal.ErrUnsupported)

	_, err := a.PerformEffect(effect.EffectClick, effect.StrengthMedium, nil)
	assert.ErrorIs(t, err, hal.ErrUnsupported)
	_, err = a.PerformVendorEffect(effect.NewVendor(map[string]any{"k": 1}), nil)
	assert.ErrorIs(t, err, hal.ErrUnsupported)
	_, err = a.ComposePrimitives([]effect.PrimitiveSegment{{Primitive: effect.PrimitiveClick}}, nil)
	assert.ErrorIs(t, err, hal.ErrUnsupported)
	_, err = a.ComposePwleV2([]hal.PwlePoint{{Amplitude: 1, FrequencyHz: 150, TimeMs: 10}}, nil)
	assert.ErrorIs(t, err, hal.ErrUnsupported)

	assert.Empty(t, a.Calls())
}

func TestComposeReportsDurationAndLimits(t *testing.T) {
	a := New(Config{Info: fullInfo()}, nil)

	d, err := a.ComposePrimitives([]effect.PrimitiveSegment{
		{Primitive: effect.PrimitiveClick, Scale: 1},
		{Primitive: effect.PrimitiveTick, Scale: 0.5, DelayMs: 15},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(30), d)
	assert.Len(t, a.Primitives(), 2)

	_, err = a.ComposePrimitives(make([]effect.PrimitiveSegment, 3), nil)
	assert.Error(t, err)

	d, err = a.ComposePwle([]effect.RampSegment{{EndAmplitude: 1, Duration: 10}, {Duration: 15}}, hal.BrakingNone, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(25), d)
	assert.Len(t, a.Ramps(), 2)

	_, err = a.ComposePwle(make([]effect.RampSegment, 4), hal.BrakingNone, nil)
	assert.Error(t, err)
}

func TestPerformUsesConfiguredDuration(t *testing.T) {
	a := New(Config{Info: fullInfo(), EffectDurationMs: 33}, nil)
	d, err := a.PerformEffect(effect.EffectClick, effect.StrengthStrong, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(33), d)
	assert.Equal(t, []effect.EffectID{effect.EffectClick}, a.Effects())
}

func TestFailNext(t *testing.T) {
	a := New(Config{Info: fullInfo()}, nil)
	boom := errors.New("boom")

	a.FailNext(OpOn, boom)
	_, err := a.On(10, nil)
	assert.ErrorIs(t, err, boom)

	a.FailNext(OpOn, nil)
	_, err = a.On(10, nil)
	assert.NoError(t, err)

	require.NoError(t, a.SetAmplitude(0.25))
	require.NoError(t, a.SetExternalControl(true))
	assert.Equal(t, []float64{0.25}, a.Amplitudes())
	assert.True(t, a.ExternalControl())

	a.Reset()
	assert.Empty(t, a.Calls())
}

func TestSyncManager(t *testing.T) {
	m := NewSyncManager(hal.SyncCapSync | hal.SyncCapTriggerCallback)

	assert.ErrorIs(t, m.Trigger(nil), ErrNotPrepared)

	require.NoError(t, m.Prepare([]int{1, 2}))
	fired := false
	require.NoError(t, m.Trigger(func() { fired = true }))
	assert.True(t, m.Complete())
	assert.True(t, fired)
	assert.False(t, m.Complete())

	require.NoError(t, m.Prepare([]int{1}))
	require.NoError(t, m.CancelSynced())
	assert.ErrorIs(t, m.Trigger(nil), ErrNotPrepared)

	triggers, cancels := m.Counts()
	assert.Equal(t, 3, triggers)
	assert.Equal(t, 1, cancels)
	assert.Equal(t, [][]int{{1, 2}, {1}}, m.PrepareCalls())
}

func TestSyncManagerFailures(t *testing.T) {
	m := NewSyncManager(hal.SyncCapSync)
	prepErr := errors.New("prepare failed")
	m.SetFailures(prepErr, nil)
	assert.ErrorIs(t, m.Prepare([]int{1}), prepErr)

	m.SetFailures(nil, nil)
	require.NoError(t, m.Prepare([]int{1}))
	require.NoError(t, m.Trigger(func() { t.Fatal("no trigger callback capability") }))
	assert.False(t, m.Complete())
}
