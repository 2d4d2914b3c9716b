package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/large-farva/vibrator-engine/internal/effect"
	"github.com/large-farva/vibrator-engine/internal/hal"
	"github.com/large-farva/vibrator-engine/internal/hal/sim"
	"github.com/large-farva/vibrator-engine/internal/metrics"
	"github.com/large-farva/vibrator-engine/internal/scaler"
	"github.com/large-farva/vibrator-engine/internal/vibrator"
)

const baseCaps = hal.CapAmplitudeControl | hal.CapOnCallback

func actuator(id int, caps hal.Capability) *sim.Actuator {
	return sim.New(sim.Config{Info: hal.Info{ID: id, Capabilities: caps}}, nil)
}

// start runs a manager over acts until the test ends.
func start(t *testing.T, cfg Config, acts ...*sim.Actuator) *Manager {
	t.Helper()
	for _, a := range acts {
		cfg.Actuators = append(cfg.Actuators, a)
	}
	m := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return m
}

func request(usage scaler.Usage, e effect.Effect) Request {
	return Request{
		Caller: vibrator.CallerInfo{UID: 1000, Package: "test", Usage: usage},
		Effect: &effect.Mono{Effect: e},
	}
}

func wait(t *testing.T, m *Manager, id int64) vibrator.Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	st, err := m.Wait(ctx, id)
	require.NoError(t, err)
	return st
}

func TestSubmitPlaysAndRecordsBattery(t *testing.T) {
	act := actuator(1, baseCaps)
	m := start(t, Config{}, act)

	v, err := m.Submit(context.Background(), request(scaler.UsageTouch, effect.OneShot(20, 255)))
	require.NoError(t, err)
	assert.Equal(t, vibrator.StatusFinished, wait(t, m, v.ID))
	require.True(t, m.Thread().WaitForIdle(time.Second))

	info, err := m.Vibration(v.ID)
	require.NoError(t, err)
	assert.Equal(t, vibrator.StatusFinished, info.Status)
	assert.NotNil(t, info.StartedAt)

	recent := m.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, v.ID, recent[0].ID)

	battery := m.Battery()
	require.Len(t, battery, 1)
	assert.Equal(t, 1000, battery[0].UID)
	assert.Equal(t, int64(1), battery[0].OnCount)
	assert.Equal(t, int64(20), battery[0].NotedMs)
	assert.False(t, battery[0].Active)
	assert.Equal(t, []int64{20}, act.OnDurations())
}

func TestSubmitRejectsInvalidEffect(t *testing.T) {
	m := start(t, Config{}, actuator(1, baseCaps))
	_, err := m.Submit(context.Background(), request(scaler.UsageTouch, &effect.Composed{RepeatIndex: -1}))
	assert.ErrorIs(t, err, effect.ErrInvalidEffect)
	assert.Empty(t, m.Recent())
}

func TestSubmitSupersedesRunningVibration(t *testing.T) {
	act := actuator(1, baseCaps)
	m := start(t, Config{}, act)
	ctx := context.Background()

	first, err := m.Submit(ctx, request(scaler.UsageTouch, effect.OneShot(5000, 255)))
	require.NoError(t, err)
	require.Eventually(t, act.IsVibrating, time.Second, 2*time.Millisecond)

	second, err := m.Submit(ctx, request(scaler.UsageTouch, effect.OneShot(20, 255)))
	require.NoError(t, err)

	assert.Equal(t, vibrator.StatusCancelledSuperseded, wait(t, m, first.ID))
	assert.Equal(t, vibrator.StatusFinished, wait(t, m, second.ID))
	require.True(t, m.Thread().WaitForIdle(time.Second))
	assert.False(t, act.IsVibrating())
}

func TestNewerWaitingRequestSupersedesOlderOne(t *testing.T) {
	act := sim.New(sim.Config{
		Info:      hal.Info{ID: 1, Capabilities: baseCaps},
		OnLatency: 200 * time.Millisecond,
	}, nil)
	m := start(t, Config{}, act)
	ctx := context.Background()

	first, err := m.Submit(ctx, request(scaler.UsageTouch, effect.OneShot(5000, 255)))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(act.CallsOf(sim.OpOn)) > 0 }, time.Second, time.Millisecond)

	waiting, err := m.Submit(ctx, request(scaler.UsageTouch, effect.OneShot(20, 255)))
	require.NoError(t, err)
	last, err := m.Submit(ctx, request(scaler.UsageTouch, effect.OneShot(20, 255)))
	require.NoError(t, err)

	assert.Equal(t, vibrator.StatusCancelledSuperseded, wait(t, m, waiting.ID))
	info, err := m.Vibration(waiting.ID)
	require.NoError(t, err)
	assert.Nil(t, info.StartedAt)

	assert.Equal(t, vibrator.StatusCancelledSuperseded, wait(t, m, first.ID))
	assert.Equal(t, vibrator.StatusFinished, wait(t, m, last.ID))
}

func TestCancel(t *testing.T) {
	act := actuator(1, baseCaps)
	m := start(t, Config{}, act)

	assert.ErrorIs(t, m.Cancel(42, vibrator.StatusCancelledByUser, false), ErrNotFound)

	v, err := m.Submit(context.Background(), request(scaler.UsageAlarm, effect.OneShot(5000, 255)))
	require.NoError(t, err)
	assert.ErrorIs(t, m.Cancel(v.ID, vibrator.StatusFinished, false), ErrInvalidSetting)

	require.Eventually(t, func() bool { return m.IsRunning(v.ID) }, time.Second, time.Millisecond)
	require.NoError(t, m.CancelWithDefaultUrgency(v.ID, vibrator.StatusCancelledByUser))
	assert.Equal(t, vibrator.StatusCancelledByUser, wait(t, m, v.ID))
	require.True(t, m.Thread().WaitForIdle(time.Second))

	require.NoError(t, m.Cancel(v.ID, vibrator.StatusCancelledBinderDied, true))
	assert.Equal(t, vibrator.StatusCancelledByUser, v.Status())
	assert.False(t, m.IsRunning(v.ID))
	assert.False(t, act.IsVibrating())
}

func TestIntensityOffRejectsAndCancels(t *testing.T) {
	m := start(t, Config{}, actuator(1, baseCaps))
	ctx := context.Background()

	v, err := m.Submit(ctx, request(scaler.UsageNotification, effect.OneShot(5000, 255)))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return m.IsRunning(v.ID) }, time.Second, time.Millisecond)

	m.SetIntensity(scaler.UsageNotification, scaler.IntensityOff)
	assert.Equal(t, vibrator.StatusCancelledBySettingsUpdate, wait(t, m, v.ID))
	assert.Equal(t, scaler.IntensityOff, m.Intensities()[scaler.UsageNotification])

	_, err = m.Submit(ctx, request(scaler.UsageNotification, effect.OneShot(20, 255)))
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = m.Submit(ctx, request(scaler.UsageAlarm, effect.OneShot(20, 255)))
	assert.NoError(t, err)
}

func TestScreenOffCancelsTouchOnly(t *testing.T) {
	m := start(t, Config{}, actuator(1, baseCaps))
	ctx := context.Background()

	alarm, err := m.Submit(ctx, request(scaler.UsageAlarm, effect.OneShot(100, 255)))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return m.IsRunning(alarm.ID) }, time.Second, time.Millisecond)
	m.ScreenOff()
	assert.Equal(t, vibrator.StatusFinished, wait(t, m, alarm.ID))

	touch, err := m.Submit(ctx, request(scaler.UsageTouch, effect.OneShot(5000, 255)))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return m.IsRunning(touch.ID) }, time.Second, time.Millisecond)
	m.ScreenOff()
	assert.Equal(t, vibrator.StatusCancelledByScreenOff, wait(t, m, touch.ID))
}

func TestSessionKeepsActuatorsOnUntilEnd(t *testing.T) {
	act := actuator(1, baseCaps)
	m := start(t, Config{}, act)
	ctx := context.Background()

	_, err := m.StartSession([]int{7})
	assert.ErrorIs(t, err, ErrNotFound)

	id, err := m.StartSession(nil)
	require.NoError(t, err)
	s, ok := m.ActiveSession()
	require.True(t, ok)
	assert.Equal(t, []int{1}, s.Actuators)

	_, err = m.StartSession(nil)
	assert.ErrorIs(t, err, ErrSessionActive)
	_, err = m.Submit(ctx, request(scaler.UsageTouch, effect.OneShot(20, 255)))
	assert.ErrorIs(t, err, ErrSessionActive)

	req := request(scaler.UsageTouch, effect.OneShot(2000, 255))
	req.Session = id
	v, err := m.Submit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, vibrator.StatusFinished, wait(t, m, v.ID))
	require.True(t, m.Thread().WaitForIdle(time.Second))
	assert.True(t, act.IsVibrating())
	assert.Zero(t, act.OffCount())

	assert.ErrorIs(t, m.EndSession("nope"), ErrNotFound)
	require.NoError(t, m.EndSession(id))
	assert.False(t, act.IsVibrating())
	_, ok = m.ActiveSession()
	assert.False(t, ok)

	req.Session = id
	_, err = m.Submit(ctx, req)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExternalControl(t *testing.T) {
	plain := start(t, Config{}, actuator(1, baseCaps))
	assert.ErrorIs(t, plain.SetExternalControl(true), hal.ErrUnsupported)

	act := actuator(1, baseCaps|hal.CapExternalControl)
	m := start(t, Config{}, act)
	ctx := context.Background()

	v, err := m.Submit(ctx, request(scaler.UsageMedia, effect.OneShot(5000, 255)))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return m.IsRunning(v.ID) }, time.Second, time.Millisecond)

	require.NoError(t, m.SetExternalControl(true))
	assert.Equal(t, vibrator.StatusCancelledSuperseded, wait(t, m, v.ID))
	assert.True(t, act.ExternalControl())
	assert.True(t, m.ExternalControl())
	assert.True(t, m.Actuators()[0].ExternalControl)

	_, err = m.Submit(ctx, request(scaler.UsageMedia, effect.OneShot(20, 255)))
	assert.ErrorIs(t, err, ErrExternalControl)

	require.NoError(t, m.SetExternalControl(false))
	assert.False(t, act.ExternalControl())
	_, err = m.Submit(ctx, request(scaler.UsageMedia, effect.OneShot(20, 255)))
	assert.NoError(t, err)
}

func TestSyncedStartUsesSyncDriver(t *testing.T) {
	syncDrv := sim.NewSyncManager(hal.SyncCapSync | hal.SyncCapPrepareOn | hal.SyncCapPreparePerform |
		hal.SyncCapPrepareCompose | hal.SyncCapTriggerCallback)
	a, b := actuator(1, baseCaps), actuator(2, baseCaps)
	m := start(t, Config{Sync: syncDrv}, a, b)

	v, err := m.Submit(context.Background(), request(scaler.UsageTouch, effect.OneShot(20, 255)))
	require.NoError(t, err)
	assert.Equal(t, vibrator.StatusFinished, wait(t, m, v.ID))

	assert.Equal(t, [][]int{{1, 2}}, syncDrv.PrepareCalls())
	triggers, cancels := syncDrv.Counts()
	assert.Equal(t, 1, triggers)
	assert.Zero(t, cancels)
	assert.Equal(t, []int64{20}, a.OnDurations())
	assert.Equal(t, []int64{20}, b.OnDurations())
}

func TestSyncWithoutCapabilityPlaysIndependently(t *testing.T) {
	syncDrv := sim.NewSyncManager(hal.SyncCapSync)
	a, b := actuator(1, baseCaps), actuator(2, baseCaps)
	m := start(t, Config{Sync: syncDrv}, a, b)

	v, err := m.Submit(context.Background(), request(scaler.UsageTouch, effect.OneShot(20, 255)))
	require.NoError(t, err)
	assert.Equal(t, vibrator.StatusFinished, wait(t, m, v.ID))

	assert.Empty(t, syncDrv.PrepareCalls())
	assert.Equal(t, []int64{20}, a.OnDurations())
	assert.Equal(t, []int64{20}, b.OnDurations())
}

func TestAdaptiveScale(t *testing.T) {
	act := actuator(1, baseCaps)
	m := start(t, Config{}, act)

	assert.ErrorIs(t, m.SetAdaptiveScale(scaler.UsageTouch, 0), ErrInvalidSetting)
	assert.ErrorIs(t, m.SetAdaptiveScale(scaler.UsageTouch, 1.5), ErrInvalidSetting)
	require.NoError(t, m.SetAdaptiveScale(scaler.UsageTouch, 0.5))
	assert.Equal(t, map[scaler.Usage]float64{scaler.UsageTouch: 0.5}, m.AdaptiveScales())

	v, err := m.Submit(context.Background(), request(scaler.UsageTouch, effect.OneShot(20, 255)))
	require.NoError(t, err)
	wait(t, m, v.ID)
	amps := act.Amplitudes()
	require.NotEmpty(t, amps)
	assert.InDelta(t, 0.5, amps[0], 1e-9)
}

func TestSlowParamsPlayUnscaled(t *testing.T) {
	act := actuator(1, baseCaps)
	params := NewAdaptiveParams(map[scaler.Usage]float64{scaler.UsageTouch: 0.5}, time.Second)
	m := start(t, Config{Params: params}, act)

	v, err := m.Submit(context.Background(), request(scaler.UsageTouch, effect.OneShot(20, 255)))
	require.NoError(t, err)
	wait(t, m, v.ID)
	amps := act.Amplitudes()
	require.NotEmpty(t, amps)
	assert.InDelta(t, 1, amps[0], 1e-9)
}

func TestHistoryIsBounded(t *testing.T) {
	m := start(t, Config{History: 2}, actuator(1, baseCaps))
	var ids []int64
	for range 3 {
		v, err := m.Submit(context.Background(), request(scaler.UsageTouch, effect.OneShot(10, 255)))
		require.NoError(t, err)
		wait(t, m, v.ID)
		require.True(t, m.Thread().WaitForIdle(time.Second))
		ids = append(ids, v.ID)
	}

	recent := m.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, ids[2], recent[0].ID)
	assert.Equal(t, ids[1], recent[1].ID)
	_, err := m.Vibration(ids[0])
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMetricsRecordLifecycle(t *testing.T) {
	met, err := metrics.New()
	require.NoError(t, err)
	m := start(t, Config{Metrics: met}, actuator(1, baseCaps))
	ctx := context.Background()

	v, err := m.Submit(ctx, request(scaler.UsageTouch, effect.OneShot(10, 255)))
	require.NoError(t, err)
	wait(t, m, v.ID)

	m.SetIntensity(scaler.UsageRingtone, scaler.IntensityOff)
	_, err = m.Submit(ctx, request(scaler.UsageRingtone, effect.OneShot(10, 255)))
	require.ErrorIs(t, err, ErrDisabled)

	assert.Eventually(t, func() bool {
		points, err := met.Snapshot(ctx)
		if err != nil {
			return false
		}
		_, ended := metrics.Find(points, "vibrator.vibrations.ended", map[string]string{"status": "finished"})
		_, rejected := metrics.Find(points, "vibrator.vibrations.rejected", map[string]string{"reason": "disabled"})
		_, on := metrics.Find(points, "vibrator.actuator.activations", map[string]string{"uid": metrics.UID(1000)})
		return ended && rejected && on
	}, time.Second, 5*time.Millisecond)
}

func TestBusyCallbackAndShutdown(t *testing.T) {
	act := actuator(1, baseCaps)
	cfg := Config{Actuators: []hal.Driver{act}}
	m := New(cfg)
	busy := make(chan bool, 4)
	m.OnBusy(func(b bool, _ int64) { busy <- b })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()

	v, err := m.Submit(context.Background(), request(scaler.UsageTouch, effect.OneShot(5000, 255)))
	require.NoError(t, err)
	assert.True(t, <-busy)

	cancel()
	<-done
	assert.Equal(t, vibrator.StatusCancelledBinderDied, v.Status())
	assert.False(t, <-busy)
	assert.False(t, act.IsVibrating())

	_, err = m.Submit(context.Background(), request(scaler.UsageTouch, effect.OneShot(10, 255)))
	assert.ErrorIs(t, err, ErrClosed)
}
