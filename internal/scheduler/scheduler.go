// Package scheduler runs vibrations on the dedicated vibration thread. The
// thread plays at most one conductor at a time, holds a wake lock while it
// is busy, and goes idle only after the conductor has finished every step,
// including any ramp-down after the vibration itself has ended.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/large-farva/vibrator-engine/internal/telemetry"
	"github.com/large-farva/vibrator-engine/internal/vibrator"
	"github.com/large-farva/vibrator-engine/internal/ws"
)

// Thread owns the vibration worker.
type Thread struct {
	Hub *ws.Hub
	Log *slog.Logger

	requests chan *vibrator.Conductor

	mu      sync.Mutex
	current *vibrator.Conductor
	idle    chan struct{}
	stopped bool

	wakeLock     atomic.Bool
	acquisitions atomic.Int64
	wakeLockFn   func(held bool, v *vibrator.Vibration)
}

// New creates an idle thread. Call Run in a goroutine to start the worker.
func New(hub *ws.Hub, logger *slog.Logger) *Thread {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	idle := make(chan struct{})
	close(idle)
	return &Thread{
		Hub:      hub,
		Log:      logger.With("component", "thread"),
		requests: make(chan *vibrator.Conductor, 1),
		idle:     idle,
	}
}

// SetWakeLockCallback registers a function called whenever the wake lock is
// acquired or released for v. Set it before Run.
func (t *Thread) SetWakeLockCallback(fn func(held bool, v *vibrator.Vibration)) {
	t.wakeLockFn = fn
}

// Run is the worker loop. It returns when ctx is cancelled; a vibration
// still playing at that point is cancelled immediately and allowed to
// finish its cleanup first.
func (t *Thread) Run(ctx context.Context) {
	t.Log.Info("vibration thread started")
	defer t.Log.Info("vibration thread stopped")

	for {
		select {
		case <-ctx.Done():
			t.mu.Lock()
			t.stopped = true
			accepted := t.current != nil
			t.mu.Unlock()
			if accepted {
				t.play(ctx, <-t.requests)
			}
			return
		case c := <-t.requests:
			t.play(ctx, c)
		}
	}
}

// RunVibration hands c to the worker. It returns false without touching c
// when another conductor is still running or the worker has stopped.
func (t *Thread) RunVibration(c *vibrator.Conductor) bool {
	t.mu.Lock()
	if t.current != nil || t.stopped {
		t.mu.Unlock()
		return false
	}
	t.current = c
	t.idle = make(chan struct{})
	t.mu.Unlock()

	t.requests <- c
	return true
}

// IsRunningVibrationID reports whether the worker is playing vibration id.
func (t *Thread) IsRunningVibrationID(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current != nil && t.current.Vibration().ID == id
}

// Current returns the conductor being played, or nil when idle.
func (t *Thread) Current() *vibrator.Conductor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// WaitForIdle blocks until no conductor is running or timeout elapses. It
// reports whether the thread is idle.
func (t *Thread) WaitForIdle(timeout time.Duration) bool {
	t.mu.Lock()
	idle := t.idle
	t.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-idle:
		return true
	case <-timer.C:
		return false
	}
}

// WakeLockHeld reports whether the worker currently holds the wake lock.
func (t *Thread) WakeLockHeld() bool { return t.wakeLock.Load() }

// WakeLockAcquisitions counts how many times the wake lock was acquired.
func (t *Thread) WakeLockAcquisitions() int64 { return t.acquisitions.Load() }

// play drives c until every step has run. The vibration is ended as soon as
// the conductor knows its status, which may be before ramp-down steps.
func (t *Thread) play(ctx context.Context, c *vibrator.Conductor) {
	v := c.Vibration()
	t.acquireWakeLock(v)
	stop := context.AfterFunc(ctx, func() {
		c.NotifyCancelled(vibrator.StatusCancelledBinderDied, true)
	})

	t.Log.Debug("playing vibration", "id", v.ID, "uid", v.Caller.UID)
	c.Prepare()
	reported := false
	for !c.IsFinished() {
		if c.WaitUntilNextStepIsDue() {
			c.RunNextStep()
		}
		if !reported {
			if st, ok := c.EndStatus(); ok {
				reported = c.Report(st)
			}
		}
	}
	if !reported {
		c.Report(c.FinalStatus())
	}

	stop()
	t.releaseWakeLock(v)

	t.mu.Lock()
	t.current = nil
	close(t.idle)
	t.mu.Unlock()
	t.broadcast(telemetry.Thread{Event: telemetry.NewEvent(telemetry.EventThread)})

	c.Release()
}

func (t *Thread) acquireWakeLock(v *vibrator.Vibration) {
	t.wakeLock.Store(true)
	t.acquisitions.Add(1)
	if t.wakeLockFn != nil {
		t.wakeLockFn(true, v)
	}
	t.broadcast(telemetry.Thread{
		Event:       telemetry.NewEvent(telemetry.EventThread),
		Busy:        true,
		VibrationID: v.ID,
		WakeLock:    true,
	})
}

func (t *Thread) releaseWakeLock(v *vibrator.Vibration) {
	t.wakeLock.Store(false)
	if t.wakeLockFn != nil {
		t.wakeLockFn(false, v)
	}
}

func (t *Thread) broadcast(ev any) {
	if t.Hub != nil {
		t.Hub.BroadcastJSON(ev)
	}
}
