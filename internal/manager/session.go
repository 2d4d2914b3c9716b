package manager

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/large-farva/vibrator-engine/internal/telemetry"
	"github.com/large-farva/vibrator-engine/internal/vibrator"
)

// sessionEndTimeout bounds the wait for a session vibration to finish
// before the session actuators are turned off.
const sessionEndTimeout = time.Second

// Session is a vendor vibration session: effects submitted into it play
// back to back on its actuators and nothing turns them off until the
// session ends.
type Session struct {
	ID        string    `json:"id"`
	Actuators []int     `json:"actuators"`
	StartedAt time.Time `json:"started_at"`

	adapter *vibrator.DeviceAdapter
	ctrls   []*vibrator.Controller
}

// StartSession opens a session on actuatorIDs, or on every actuator when
// none are given. Whatever is playing is cancelled.
func (m *Manager) StartSession(actuatorIDs []int) (string, error) {
	if len(actuatorIDs) == 0 {
		actuatorIDs = m.adapter.ActuatorIDs()
	}
	var ctrls []*vibrator.Controller
	for _, id := range actuatorIDs {
		ctrl := m.adapter.Controller(id)
		if ctrl == nil {
			return "", fmt.Errorf("actuator %d: %w", id, ErrNotFound)
		}
		if !slices.Contains(ctrls, ctrl) {
			ctrls = append(ctrls, ctrl)
		}
	}

	s := &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		adapter:   vibrator.NewDeviceAdapter(ctrls, m.rampStepMs()),
		ctrls:     ctrls,
	}
	s.Actuators = s.adapter.ActuatorIDs()

	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return "", ErrClosed
	case m.session != nil:
		m.mu.Unlock()
		return "", ErrSessionActive
	case m.external:
		m.mu.Unlock()
		return "", ErrExternalControl
	}
	m.session = s
	m.mu.Unlock()

	m.cancelMatching(vibrator.StatusCancelledSuperseded, func(_ *vibrator.Vibration, session string) bool {
		return session != s.ID
	})
	m.log.Info("session started", "session", s.ID, "actuators", s.Actuators)
	m.broadcast(telemetry.Session{
		Event:     telemetry.NewEvent(telemetry.EventSession),
		ID:        s.ID,
		Stage:     telemetry.StageStarted,
		Actuators: s.Actuators,
	})
	return s.ID, nil
}

// EndSession closes session id and turns its actuators off.
func (m *Manager) EndSession(id string) error {
	m.mu.Lock()
	s := m.session
	if s == nil || s.ID != id {
		m.mu.Unlock()
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	m.session = nil
	m.mu.Unlock()

	m.cancelMatching(vibrator.StatusCancelledByUser, func(_ *vibrator.Vibration, session string) bool {
		return session == id
	})
	if !m.thread.WaitForIdle(sessionEndTimeout) {
		m.log.Warn("session vibration still playing at session end", "session", id)
	}
	for _, ctrl := range s.ctrls {
		if ctrl.IsVibrating() {
			ctrl.Off()
		}
	}
	m.log.Info("session ended", "session", id)
	m.broadcast(telemetry.Session{
		Event: telemetry.NewEvent(telemetry.EventSession),
		ID:    id,
		Stage: telemetry.StageEnded,
	})
	return nil
}

// ActiveSession returns the open session, if any.
func (m *Manager) ActiveSession() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}
