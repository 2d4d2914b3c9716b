// Package app wires together the HTTP server, WebSocket hub, the vibration
// manager and its simulated actuators, and the optional demo runner. It owns
// the daemon's lifecycle and is the single source of truth for the current
// operating state.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/large-farva/vibrator-engine/internal/config"
	"github.com/large-farva/vibrator-engine/internal/demo"
	"github.com/large-farva/vibrator-engine/internal/hal"
	"github.com/large-farva/vibrator-engine/internal/hal/sim"
	"github.com/large-farva/vibrator-engine/internal/logging"
	"github.com/large-farva/vibrator-engine/internal/manager"
	"github.com/large-farva/vibrator-engine/internal/metrics"
	"github.com/large-farva/vibrator-engine/internal/scaler"
	"github.com/large-farva/vibrator-engine/internal/telemetry"
	"github.com/large-farva/vibrator-engine/internal/ws"
)

// Daemon states.
const (
	StateBooting   = "BOOTING"
	StateIdle      = "IDLE"
	StateVibrating = "VIBRATING"
)

const (
	heartbeatInterval = 10 * time.Second
	logBufferSize     = 500
)

var (
	errSimulatedPrepare = errors.New("simulated prepare failure")
	errSimulatedTrigger = errors.New("simulated trigger failure")
)

// Options holds everything the App needs from the caller.
type Options struct {
	Logger     *slog.Logger
	Cfg        config.Config
	Bind       string
	ConfigPath string
}

// App is the top-level daemon process. It manages the HTTP server, the
// WebSocket event hub, the vibration manager and the demo runner.
type App struct {
	log        *slog.Logger
	cfg        config.Config
	configPath string
	bind       string
	server     *http.Server

	startedAt time.Time
	state     atomic.Value // current state string (BOOTING, IDLE, etc.)

	wsHub   *ws.Hub
	mgr     *manager.Manager
	metrics *metrics.Metrics
	limits  *clientLimiter

	logBufMu sync.Mutex
	logBuf   []logEntry
}

type logEntry struct {
	TS        string `json:"ts"`
	Level     string `json:"level"`
	Component string `json:"component,omitempty"`
	Message   string `json:"message"`
}

// New creates an App in the BOOTING state with one simulated driver per
// configured actuator. Call Run to start serving.
func New(opts Options) (*App, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	a := &App{
		cfg:        opts.Cfg,
		configPath: opts.ConfigPath,
		bind:       opts.Bind,
		startedAt:  time.Now(),
		limits:     newClientLimiter(opts.Cfg.Server.RateLimitRPS, opts.Cfg.Server.RateLimitBurst),
	}
	a.state.Store(StateBooting)

	// Everything logged at info or above also goes to the log buffer and
	// to WebSocket clients.
	a.log = slog.New(logging.NewMirrorHandler(opts.Logger.Handler(), slog.LevelInfo, a.mirrorLog))
	a.wsHub = ws.NewHub(a.log)

	m, err := metrics.New()
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	a.metrics = m

	drivers := make([]hal.Driver, 0, len(opts.Cfg.Actuators))
	for _, ac := range opts.Cfg.Actuators {
		drivers = append(drivers, sim.New(ac.SimConfig(), a.log))
	}

	var syncDrv hal.SyncDriver
	if opts.Cfg.Vibration.Sync {
		sm := sim.NewSyncManager(opts.Cfg.SyncCapabilities())
		var prepErr, trigErr error
		if opts.Cfg.Sync.PrepareFails {
			prepErr = errSimulatedPrepare
		}
		if opts.Cfg.Sync.TriggerFails {
			trigErr = errSimulatedTrigger
		}
		sm.SetFailures(prepErr, trigErr)
		syncDrv = sm
	}

	sc := scaler.New(opts.Cfg.ScalerOptions())
	for u, i := range opts.Cfg.UserIntensities() {
		sc.SetIntensity(u, i)
	}
	scales, err := opts.Cfg.AdaptiveScales()
	if err != nil {
		return nil, err
	}
	fallbacks, err := opts.Cfg.FallbackEffects()
	if err != nil {
		return nil, err
	}

	a.mgr = manager.New(manager.Config{
		Actuators: drivers,
		Sync:      syncDrv,
		Scaler:    sc,
		Params:    manager.NewAdaptiveParams(scales, opts.Cfg.AdaptiveLatency()),
		Options:   opts.Cfg.VibratorOptions(),
		Fallbacks: fallbacks,
		Hub:       a.wsHub,
		Metrics:   a.metrics,
		Logger:    a.log,
	})
	a.mgr.OnBusy(func(busy bool, _ int64) {
		if busy {
			a.transition(StateVibrating)
		} else {
			a.transition(StateIdle)
		}
	})
	return a, nil
}

// Run starts the HTTP server, WebSocket hub, heartbeat ticker, the
// vibration manager and, when enabled, the demo runner. It blocks until the
// context is cancelled or the server returns an error.
func (a *App) Run(ctx context.Context) error {
	bind := a.bind
	if bind == "" && a.cfg.Server.Bind != "" {
		bind = a.cfg.Server.Bind
	}
	if bind == "" {
		bind = "0.0.0.0:8080"
	}

	a.server = &http.Server{
		Addr:              bind,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}

	a.log.Info("listening", "addr", "http://"+bind)

	done := a.start(ctx)

	go func() {
		<-ctx.Done()
		a.log.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.server.Shutdown(shutdownCtx)
	}()

	err = a.server.Serve(ln)
	<-done
	_ = a.metrics.Shutdown(context.Background())
	return err
}

// start launches the background workers. The returned channel closes once
// the manager has stopped.
func (a *App) start(ctx context.Context) <-chan struct{} {
	go a.wsHub.Run(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.mgr.Run(ctx)
	}()

	a.transition(StateIdle)
	go a.heartbeatLoop(ctx)

	if a.cfg.Demo.Enabled {
		r := demo.New(a.mgr, a.log)
		if a.cfg.Demo.IntervalSeconds > 0 {
			r.Interval = time.Duration(a.cfg.Demo.IntervalSeconds) * time.Second
		}
		go r.Run(ctx)
	}
	return done
}

// State returns the current daemon state.
func (a *App) State() string { return a.state.Load().(string) }

// transition atomically updates the daemon state and broadcasts the change
// to all connected WebSocket clients.
func (a *App) transition(newState string) {
	old := a.state.Swap(newState).(string)
	if old == newState {
		return
	}
	a.wsHub.BroadcastJSON(telemetry.StateTransition{
		Event: telemetry.NewEvent(telemetry.EventState),
		From:  old,
		To:    newState,
	})
}

// heartbeatLoop sends a periodic heartbeat event so clients can detect
// connectivity and track uptime without polling.
func (a *App) heartbeatLoop(ctx context.Context) {
	t := time.NewTicker(heartbeatInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.wsHub.BroadcastJSON(a.heartbeat())
		}
	}
}

func (a *App) heartbeat() telemetry.Heartbeat {
	return telemetry.Heartbeat{
		Event:           telemetry.NewEvent(telemetry.EventHeartbeat),
		State:           a.State(),
		UptimeSeconds:   int64(time.Since(a.startedAt).Seconds()),
		ActiveVibration: a.mgr.Active(),
	}
}

// mirrorLog keeps a bounded buffer of recent log lines and forwards each one
// to WebSocket clients.
func (a *App) mirrorLog(level slog.Level, component, message string) {
	e := logEntry{
		TS:        telemetry.NowTS(),
		Level:     logging.LevelName(level),
		Component: component,
		Message:   message,
	}
	a.logBufMu.Lock()
	a.logBuf = append(a.logBuf, e)
	if len(a.logBuf) > logBufferSize {
		a.logBuf = a.logBuf[len(a.logBuf)-logBufferSize:]
	}
	a.logBufMu.Unlock()

	// The hub logs through a.log too; it is nil only while New runs.
	if a.wsHub != nil {
		a.wsHub.BroadcastJSON(telemetry.LogLine{
			Event:     telemetry.NewEvent(telemetry.EventLog),
			Level:     e.Level,
			Component: component,
			Message:   message,
		})
	}
}
