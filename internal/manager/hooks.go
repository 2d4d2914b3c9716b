package manager

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/large-farva/vibrator-engine/internal/hal"
	"github.com/large-farva/vibrator-engine/internal/telemetry"
	"github.com/large-farva/vibrator-engine/internal/vibrator"
)

// hooks is the vibrator.ManagerHooks view of a Manager.
type hooks struct{ m *Manager }

var _ vibrator.ManagerHooks = hooks{}

// BatteryStats is the battery accounting of one uid.
type BatteryStats struct {
	UID     int   `json:"uid"`
	OnCount int64 `json:"on_count"`
	// NotedMs sums the durations passed to NoteVibratorOn; it may include
	// effect.Infinite for looping effects.
	NotedMs int64 `json:"noted_ms"`
	// OnTimeMs is the measured time between each on and its off.
	OnTimeMs int64 `json:"on_time_ms"`
	Active   bool  `json:"active"`
}

type batteryEntry struct {
	BatteryStats
	since time.Time
}

func (h hooks) NoteVibratorOn(uid int, durationMs int64) {
	m := h.m
	m.mu.Lock()
	e := m.batteryLocked(uid)
	e.OnCount++
	switch {
	case durationMs > math.MaxInt64-e.NotedMs:
		e.NotedMs = math.MaxInt64
	case durationMs > 0:
		e.NotedMs += durationMs
	}
	if !e.Active {
		e.Active = true
		e.since = time.Now()
	}
	m.mu.Unlock()
	m.metrics.VibratorOn(context.Background(), uid)
}

func (h hooks) NoteVibratorOff(uid int) {
	m := h.m
	m.mu.Lock()
	e := m.batteryLocked(uid)
	var ms int64
	if e.Active {
		ms = time.Since(e.since).Milliseconds()
		e.OnTimeMs += ms
		e.Active = false
	}
	m.mu.Unlock()
	m.metrics.VibratorOnTime(context.Background(), uid, ms)
}

// PrepareSyncedVibration prepares a synced start when the sync driver has
// every capability the effects need.
func (h hooks) PrepareSyncedVibration(required hal.SyncCapability, ids []int) bool {
	m := h.m
	if m.syncDrv == nil {
		return false
	}
	if !m.syncDrv.Capabilities().Has(required) {
		m.log.Debug("synced vibration unsupported", "required", required, "actuators", ids)
		return false
	}
	err := m.syncDrv.Prepare(ids)
	m.metrics.SyncCall(context.Background(), "prepare", err == nil)
	if err != nil {
		m.log.Warn("prepare synced vibration failed", "actuators", ids, "err", err)
		return false
	}
	return true
}

// TriggerSyncedVibration starts the prepared actuators. The driver's
// completion callback is routed to the conductor still playing vibrationID.
func (h hooks) TriggerSyncedVibration(vibrationID int64) bool {
	m := h.m
	if m.syncDrv == nil {
		return false
	}
	err := m.syncDrv.Trigger(func() {
		if c := m.thread.Current(); c != nil && c.Vibration().ID == vibrationID {
			c.NotifySyncedVibrationComplete()
		}
	})
	m.metrics.SyncCall(context.Background(), "trigger", err == nil)
	if err != nil {
		m.log.Warn("trigger synced vibration failed", "vibration", vibrationID, "err", err)
		return false
	}
	return true
}

func (h hooks) CancelSyncedVibration() {
	m := h.m
	if m.syncDrv == nil {
		return
	}
	err := m.syncDrv.CancelSynced()
	m.metrics.SyncCall(context.Background(), "cancel", err == nil)
	if err != nil {
		m.log.Warn("cancel synced vibration failed", "err", err)
	}
}

// OnVibrationThreadReleased starts the waiting vibration, if any.
func (h hooks) OnVibrationThreadReleased(vibrationID int64) {
	m := h.m
	m.mu.Lock()
	next := m.pending
	m.pending = nil
	rec := m.records[vibrationID]
	started := next != nil && m.thread.RunVibration(next)
	m.mu.Unlock()

	if rec != nil {
		m.emitVibration(rec.vib, rec.session, telemetry.StageReleased)
	}
	switch {
	case started:
		m.log.Debug("starting waiting vibration", "id", next.Vibration().ID)
	case next != nil:
		next.Vibration().End(vibrator.StatusCancelledBinderDied)
	}
}

func (m *Manager) batteryLocked(uid int) *batteryEntry {
	e, ok := m.battery[uid]
	if !ok {
		e = &batteryEntry{BatteryStats: BatteryStats{UID: uid}}
		m.battery[uid] = e
	}
	return e
}

// Battery returns the battery accounting of every uid seen so far.
func (m *Manager) Battery() []BatteryStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]BatteryStats, 0, len(m.battery))
	for _, e := range m.battery {
		st := e.BatteryStats
		if e.Active {
			st.OnTimeMs += time.Since(e.since).Milliseconds()
		}
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b BatteryStats) int { return a.UID - b.UID })
	return out
}
