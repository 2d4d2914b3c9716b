package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotReportsCounters(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	ctx := context.Background()

	m.VibrationSubmitted(ctx, "touch")
	m.VibrationSubmitted(ctx, "touch")
	m.VibrationSubmitted(ctx, "alarm")
	m.VibrationRejected(ctx, "disabled")
	m.VibratorOn(ctx, 1000)
	m.VibratorOnTime(ctx, 1000, 120)
	m.VibratorOnTime(ctx, 1000, 0)
	m.SyncCall(ctx, "trigger", false)
	m.RateLimited(ctx)

	points, err := m.Snapshot(ctx)
	require.NoError(t, err)

	p, ok := Find(points, "vibrator.vibrations.submitted", map[string]string{"usage": "touch"})
	require.True(t, ok)
	assert.Equal(t, 2.0, p.Value)

	p, ok = Find(points, "vibrator.vibrations.submitted", map[string]string{"usage": "alarm"})
	require.True(t, ok)
	assert.Equal(t, 1.0, p.Value)

	p, ok = Find(points, "vibrator.actuator.on_time", map[string]string{"uid": UID(1000)})
	require.True(t, ok)
	assert.Equal(t, 120.0, p.Value)
	assert.Equal(t, "ms", p.Unit)

	p, ok = Find(points, "vibrator.sync.calls", map[string]string{"op": "trigger", "ok": "false"})
	require.True(t, ok)
	assert.Equal(t, 1.0, p.Value)

	_, ok = Find(points, "vibrator.http.rate_limited", nil)
	assert.True(t, ok)
}

func TestSnapshotReportsHistogramAndGauge(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	ctx := context.Background()

	m.VibrationEnded(ctx, "finished", "touch", 40*time.Millisecond)
	m.VibrationEnded(ctx, "finished", "touch", 60*time.Millisecond)
	m.ThreadBusy(ctx, true)
	m.ThreadBusy(ctx, true)
	m.ThreadBusy(ctx, false)

	points, err := m.Snapshot(ctx)
	require.NoError(t, err)

	p, ok := Find(points, "vibrator.vibration.duration", map[string]string{"status": "finished"})
	require.True(t, ok)
	assert.Equal(t, uint64(2), p.Count)
	assert.InDelta(t, 100, p.Value, 1e-9)

	p, ok = Find(points, "vibrator.thread.busy", nil)
	require.True(t, ok)
	assert.Equal(t, 1.0, p.Value)
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.VibrationSubmitted(ctx, "touch")
	m.ThreadBusy(ctx, true)
	points, err := m.Snapshot(ctx)
	assert.NoError(t, err)
	assert.Empty(t, points)
	assert.NoError(t, m.Shutdown(ctx))
}
