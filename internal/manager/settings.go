package manager

import (
	"fmt"
	"slices"
	"time"

	"github.com/large-farva/vibrator-engine/internal/hal"
	"github.com/large-farva/vibrator-engine/internal/scaler"
	"github.com/large-farva/vibrator-engine/internal/telemetry"
	"github.com/large-farva/vibrator-engine/internal/vibrator"
)

// screenOffUsages are cancelled when the screen turns off.
var screenOffUsages = []scaler.Usage{scaler.UsageTouch, scaler.UsageMedia, scaler.UsageUnknown}

// externalControlTimeout bounds the wait for the thread to let go of the
// actuators before they are handed to external control.
const externalControlTimeout = time.Second

// SetIntensity changes the user intensity of usage. Turning a usage off
// cancels its running or waiting vibration.
func (m *Manager) SetIntensity(usage scaler.Usage, level scaler.Intensity) {
	m.scaler.SetIntensity(usage, level)
	m.log.Info("intensity changed", "usage", usage, "intensity", level)
	m.broadcast(telemetry.Settings{
		Event:     telemetry.NewEvent(telemetry.EventSettings),
		Usage:     string(usage),
		Intensity: level.String(),
	})
	if level != scaler.IntensityOff {
		return
	}
	m.cancelMatching(vibrator.StatusCancelledBySettingsUpdate, func(v *vibrator.Vibration, session string) bool {
		return session == "" && v.Caller.Usage == usage
	})
}

// Intensities returns the user intensity of every usage.
func (m *Manager) Intensities() map[scaler.Usage]scaler.Intensity {
	return m.scaler.Intensities()
}

// SetAdaptiveScale changes the adaptive haptics scale of usage.
func (m *Manager) SetAdaptiveScale(usage scaler.Usage, scale float64) error {
	if err := m.params.Set(usage, scale); err != nil {
		return err
	}
	m.log.Info("adaptive scale changed", "usage", usage, "scale", scale)
	m.broadcast(telemetry.Settings{
		Event:         telemetry.NewEvent(telemetry.EventSettings),
		Usage:         string(usage),
		AdaptiveScale: &scale,
	})
	return nil
}

// AdaptiveScales returns the configured adaptive scales.
func (m *Manager) AdaptiveScales() map[scaler.Usage]float64 { return m.params.Scales() }

// ScreenOff gracefully cancels touch, media and unknown-usage vibrations.
func (m *Manager) ScreenOff() {
	m.log.Info("screen off")
	m.broadcast(telemetry.Settings{
		Event:     telemetry.NewEvent(telemetry.EventSettings),
		ScreenOff: true,
	})
	m.cancelMatching(vibrator.StatusCancelledByScreenOff, func(v *vibrator.Vibration, session string) bool {
		return session == "" && slices.Contains(screenOffUsages, v.Caller.Usage)
	})
}

// SetExternalControl hands the actuators that support it to an external
// source, or takes them back. Enabling it cancels whatever is playing and
// refuses new vibrations until it is disabled again.
func (m *Manager) SetExternalControl(enabled bool) error {
	var capable []*vibrator.Controller
	for _, ctrl := range m.ctrls {
		if ctrl.Info().Has(hal.CapExternalControl) {
			capable = append(capable, ctrl)
		}
	}
	if len(capable) == 0 {
		return fmt.Errorf("external control: %w", hal.ErrUnsupported)
	}

	m.mu.Lock()
	if m.session != nil {
		m.mu.Unlock()
		return ErrSessionActive
	}
	m.external = enabled
	m.mu.Unlock()

	if enabled {
		m.cancelMatching(vibrator.StatusCancelledSuperseded, func(*vibrator.Vibration, string) bool { return true })
		if !m.thread.WaitForIdle(externalControlTimeout) {
			m.log.Warn("vibration thread still busy, enabling external control anyway")
		}
	}
	var firstErr error
	for _, ctrl := range capable {
		if err := ctrl.SetExternalControl(enabled); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("actuator %d: %w", ctrl.ID(), err)
		}
	}
	m.log.Info("external control changed", "enabled", enabled)
	m.broadcast(telemetry.Settings{
		Event:    telemetry.NewEvent(telemetry.EventSettings),
		External: &enabled,
	})
	return firstErr
}

// ExternalControl reports whether external control is enabled.
func (m *Manager) ExternalControl() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.external
}

// cancelMatching cancels the waiting and the running vibration when match
// accepts them, with the default urgency of st.
func (m *Manager) cancelMatching(st vibrator.Status, match func(v *vibrator.Vibration, session string) bool) {
	m.mu.Lock()
	var dropped *vibrator.Vibration
	if m.pending != nil {
		v := m.pending.Vibration()
		if match(v, m.sessionLocked(v.ID)) {
			dropped = v
			m.pending = nil
		}
	}
	var running *vibrator.Conductor
	if c := m.thread.Current(); c != nil {
		v := c.Vibration()
		if match(v, m.sessionLocked(v.ID)) {
			running = c
		}
	}
	m.mu.Unlock()

	if dropped != nil {
		dropped.End(st)
	}
	if running != nil {
		running.NotifyCancelled(st, st.Immediate())
	}
}
