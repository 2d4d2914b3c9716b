// Package manager is the caller-facing side of the vibration service. It
// accepts vibration requests, supersedes the running one when a new request
// arrives, applies user settings and sessions, and implements the hooks the
// conductor calls back into: battery notes, synced starts and release.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/large-farva/vibrator-engine/internal/effect"
	"github.com/large-farva/vibrator-engine/internal/hal"
	"github.com/large-farva/vibrator-engine/internal/metrics"
	"github.com/large-farva/vibrator-engine/internal/scaler"
	"github.com/large-farva/vibrator-engine/internal/scheduler"
	"github.com/large-farva/vibrator-engine/internal/telemetry"
	"github.com/large-farva/vibrator-engine/internal/vibrator"
	"github.com/large-farva/vibrator-engine/internal/ws"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrDisabled        = errors.New("vibrations disabled for usage")
	ErrSessionActive   = errors.New("vibration session active")
	ErrExternalControl = errors.New("actuators under external control")
	ErrInvalidSetting  = errors.New("invalid setting")
	ErrClosed          = errors.New("manager closed")
)

const defaultHistory = 50

// Config carries the collaborators of a Manager.
type Config struct {
	Actuators []hal.Driver
	// Sync enables synced multi-actuator starts when non-nil.
	Sync      hal.SyncDriver
	Scaler    *scaler.Scaler
	Params    *AdaptiveParams
	Options   vibrator.Options
	Fallbacks map[effect.EffectID]effect.Effect
	// History bounds how many finished vibrations Recent remembers.
	History int
	Hub     *ws.Hub
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Request is one vibration submission.
type Request struct {
	Caller vibrator.CallerInfo
	Effect effect.Combined
	// Session plays the request inside the active session with this id.
	Session string
}

type record struct {
	vib     *vibrator.Vibration
	session string
}

// Manager owns the actuators and the vibration thread.
type Manager struct {
	log      *slog.Logger
	logger   *slog.Logger
	hub      *ws.Hub
	metrics  *metrics.Metrics
	thread   *scheduler.Thread
	ctrls    []*vibrator.Controller
	adapter  *vibrator.DeviceAdapter
	scaler   *scaler.Scaler
	params   *AdaptiveParams
	syncDrv  hal.SyncDriver
	opts     vibrator.Options
	history  int
	fallback map[effect.EffectID]effect.Effect

	mu       sync.Mutex
	records  map[int64]*record
	order    []int64
	pending  *vibrator.Conductor
	session  *Session
	external bool
	closed   bool
	battery  map[int]*batteryEntry
	onBusy   func(busy bool, id int64)
}

// New wires the actuators, the thread and the hooks together. Call Run to
// start playing vibrations.
func New(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Scaler == nil {
		cfg.Scaler = scaler.New(scaler.Options{})
	}
	if cfg.Params == nil {
		cfg.Params = NewAdaptiveParams(nil, 0)
	}
	if cfg.History <= 0 {
		cfg.History = defaultHistory
	}

	m := &Manager{
		log:      logger.With("component", "manager"),
		logger:   logger,
		hub:      cfg.Hub,
		metrics:  cfg.Metrics,
		thread:   scheduler.New(cfg.Hub, logger),
		scaler:   cfg.Scaler,
		params:   cfg.Params,
		syncDrv:  cfg.Sync,
		opts:     cfg.Options,
		history:  cfg.History,
		fallback: maps.Clone(cfg.Fallbacks),
		records:  map[int64]*record{},
		battery:  map[int]*batteryEntry{},
	}
	ctrlLog := logger.With("component", "controller")
	for _, drv := range cfg.Actuators {
		ctrl := vibrator.NewController(drv, ctrlLog)
		ctrl.SetStateListener(m.actuatorChanged)
		m.ctrls = append(m.ctrls, ctrl)
	}
	m.adapter = vibrator.NewDeviceAdapter(m.ctrls, m.rampStepMs())
	m.thread.SetWakeLockCallback(m.wakeLockChanged)
	return m
}

// Run plays vibrations until ctx is cancelled. Requests still waiting when
// it returns are cancelled.
func (m *Manager) Run(ctx context.Context) {
	m.thread.Run(ctx)

	m.mu.Lock()
	m.closed = true
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	if pending != nil {
		pending.Vibration().End(vibrator.StatusCancelledBinderDied)
	}
}

// Thread exposes the vibration thread.
func (m *Manager) Thread() *scheduler.Thread { return m.thread }

// OnBusy registers fn to observe the thread going busy and idle. Set it
// before Run.
func (m *Manager) OnBusy(fn func(busy bool, vibrationID int64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onBusy = fn
}

// Submit validates req and starts it, superseding whatever is playing. A
// request that has to wait takes the single pending slot; an older waiting
// request is cancelled as superseded.
func (m *Manager) Submit(ctx context.Context, req Request) (*vibrator.Vibration, error) {
	v := vibrator.NewVibration(req.Caller, req.Effect)
	maps.Copy(v.Fallbacks, m.fallback)
	if err := v.Validate(); err != nil {
		m.metrics.VibrationRejected(ctx, "invalid")
		return nil, err
	}

	m.mu.Lock()
	adapter, session, err := m.admitLocked(req)
	if err != nil {
		m.mu.Unlock()
		m.metrics.VibrationRejected(ctx, rejectReason(err))
		return nil, err
	}
	c := vibrator.NewConductor(v, vibrator.ConductorConfig{
		Session: session,
		Adapter: adapter,
		Scaler:  m.scaler,
		Hooks:   hooks{m},
		Params:  m.params,
		Options: m.opts,
		Logger:  m.logger.With("component", "conductor"),
	})
	m.rememberLocked(v, req.Session)

	var running *vibrator.Conductor
	var dropped *vibrator.Vibration
	if !m.thread.RunVibration(c) {
		if m.pending != nil {
			dropped = m.pending.Vibration()
		}
		m.pending = c
		running = m.thread.Current()
	}
	m.mu.Unlock()

	m.metrics.VibrationSubmitted(ctx, string(v.Caller.Usage))
	m.emitVibration(v, req.Session, telemetry.StageSubmitted)
	go m.watch(v, req.Session)

	if dropped != nil {
		dropped.End(vibrator.StatusCancelledSuperseded)
	}
	if running != nil {
		m.log.Debug("superseding vibration", "id", running.Vibration().ID, "by", v.ID)
		running.NotifyCancelled(vibrator.StatusCancelledSuperseded, true)
	}
	return v, nil
}

// admitLocked picks the actuators for req or says why it cannot play.
func (m *Manager) admitLocked(req Request) (*vibrator.DeviceAdapter, bool, error) {
	switch {
	case m.closed:
		return nil, false, ErrClosed
	case m.external:
		return nil, false, ErrExternalControl
	case m.session != nil && req.Session != m.session.ID:
		return nil, false, ErrSessionActive
	case m.session == nil && req.Session != "":
		return nil, false, fmt.Errorf("session %s: %w", req.Session, ErrNotFound)
	case m.session != nil:
		return m.session.adapter, true, nil
	}
	if m.scaler.Intensity(req.Caller.Usage) == scaler.IntensityOff {
		return nil, false, fmt.Errorf("%w: %s", ErrDisabled, req.Caller.Usage)
	}
	return m.adapter, false, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrDisabled):
		return "disabled"
	case errors.Is(err, ErrSessionActive), errors.Is(err, ErrNotFound):
		return "session"
	case errors.Is(err, ErrExternalControl):
		return "external_control"
	default:
		return "closed"
	}
}

func (m *Manager) rememberLocked(v *vibrator.Vibration, session string) {
	m.records[v.ID] = &record{vib: v, session: session}
	m.order = append(m.order, v.ID)
	for len(m.order) > m.history {
		oldest := m.records[m.order[0]]
		if oldest != nil && !oldest.vib.Status().Terminal() {
			break
		}
		delete(m.records, m.order[0])
		m.order = m.order[1:]
	}
}

// Cancel ends vibration id with st. A waiting vibration ends at once; a
// playing one is cancelled immediately or gracefully. Cancelling a
// vibration that already ended does nothing.
func (m *Manager) Cancel(id int64, st vibrator.Status, immediate bool) error {
	if !st.Cancelled() {
		return fmt.Errorf("%w: %s is not a cancellation status", ErrInvalidSetting, st)
	}
	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("vibration %d: %w", id, ErrNotFound)
	}
	if m.pending != nil && m.pending.Vibration().ID == id {
		m.pending = nil
		m.mu.Unlock()
		rec.vib.End(st)
		return nil
	}
	c := m.thread.Current()
	m.mu.Unlock()

	if c != nil && c.Vibration().ID == id {
		c.NotifyCancelled(st, immediate)
	}
	return nil
}

// CancelWithDefaultUrgency cancels id with the urgency st implies.
func (m *Manager) CancelWithDefaultUrgency(id int64, st vibrator.Status) error {
	return m.Cancel(id, st, st.Immediate())
}

// IsRunning reports whether vibration id is on the vibration thread.
func (m *Manager) IsRunning(id int64) bool { return m.thread.IsRunningVibrationID(id) }

// Wait blocks until vibration id ends or ctx is done.
func (m *Manager) Wait(ctx context.Context, id int64) (vibrator.Status, error) {
	m.mu.Lock()
	rec, ok := m.records[id]
	m.mu.Unlock()
	if !ok {
		return vibrator.StatusPending, fmt.Errorf("vibration %d: %w", id, ErrNotFound)
	}
	return rec.vib.Wait(ctx)
}

// Vibration returns a snapshot of vibration id.
func (m *Manager) Vibration(id int64) (vibrator.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return vibrator.Info{}, fmt.Errorf("vibration %d: %w", id, ErrNotFound)
	}
	return rec.vib.Snapshot(), nil
}

// Recent lists remembered vibrations, newest first.
func (m *Manager) Recent() []vibrator.Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]vibrator.Info, 0, len(m.order))
	for _, id := range slices.Backward(m.order) {
		out = append(out, m.records[id].vib.Snapshot())
	}
	return out
}

// Active returns the id of the playing vibration, 0 when idle.
func (m *Manager) Active() int64 {
	if c := m.thread.Current(); c != nil {
		return c.Vibration().ID
	}
	return 0
}

// ActuatorState describes one actuator and what it is doing now.
type ActuatorState struct {
	hal.Info
	CapabilityNames []string `json:"capability_names"`
	Vibrating       bool     `json:"vibrating"`
	Amplitude       float64  `json:"amplitude"`
	ExternalControl bool     `json:"external_control"`
}

// Actuators lists the actuators ordered by id.
func (m *Manager) Actuators() []ActuatorState {
	out := make([]ActuatorState, 0, len(m.ctrls))
	for _, ctrl := range m.adapter.Controllers() {
		info := ctrl.Info()
		out = append(out, ActuatorState{
			Info:            info,
			CapabilityNames: info.Capabilities.Names(),
			Vibrating:       ctrl.IsVibrating(),
			Amplitude:       ctrl.CurrentAmplitude(),
			ExternalControl: ctrl.ExternalControl(),
		})
	}
	return out
}

// watch reports the end of v once it has a terminal status.
func (m *Manager) watch(v *vibrator.Vibration, session string) {
	<-v.Done()
	st := v.Status()
	m.metrics.VibrationEnded(context.Background(), st.String(), string(v.Caller.Usage), time.Since(v.CreatedAt))
	m.emitVibration(v, session, telemetry.StageEnded)
}

func (m *Manager) wakeLockChanged(held bool, v *vibrator.Vibration) {
	m.metrics.ThreadBusy(context.Background(), held)
	if held {
		m.emitVibration(v, m.sessionOf(v.ID), telemetry.StageStarted)
	}
	m.mu.Lock()
	fn := m.onBusy
	m.mu.Unlock()
	if fn != nil {
		fn(held, v.ID)
	}
}

func (m *Manager) actuatorChanged(id int, vibrating bool) {
	m.broadcast(telemetry.Actuator{
		Event:     telemetry.NewEvent(telemetry.EventActuator),
		ID:        id,
		Vibrating: vibrating,
	})
}

func (m *Manager) sessionOf(id int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionLocked(id)
}

func (m *Manager) sessionLocked(id int64) string {
	if rec, ok := m.records[id]; ok {
		return rec.session
	}
	return ""
}

func (m *Manager) emitVibration(v *vibrator.Vibration, session, stage string) {
	ev := telemetry.Vibration{
		Event:   telemetry.NewEvent(telemetry.EventVibration),
		ID:      v.ID,
		Session: session,
		Stage:   stage,
		UID:     v.Caller.UID,
		Usage:   string(v.Caller.Usage),
		Package: v.Caller.Package,
	}
	if st := v.Status(); st.Terminal() {
		ev.Status = st.String()
	}
	m.broadcast(ev)
}

func (m *Manager) broadcast(ev any) {
	if m.hub != nil {
		m.hub.BroadcastJSON(ev)
	}
}

func (m *Manager) rampStepMs() int64 {
	if ms := m.opts.RampStep.Milliseconds(); ms > 0 {
		return ms
	}
	return vibrator.DefaultOptions().RampStep.Milliseconds()
}
