// Package vibrator plays vibration requests on a set of actuators. A Conductor
// turns one Vibration into timed steps per actuator and runs them against the
// hardware drivers, correlating asynchronous completion callbacks with the
// step that issued them.
package vibrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/large-farva/vibrator-engine/internal/effect"
	"github.com/large-farva/vibrator-engine/internal/scaler"
)

// Status is the lifecycle state of a Vibration. Every status other than
// StatusPending is terminal.
type Status int

const (
	StatusPending Status = iota
	StatusFinished
	StatusIgnoredUnsupported
	StatusCancelledByUser
	StatusCancelledByScreenOff
	StatusCancelledBySettingsUpdate
	StatusCancelledSuperseded
	StatusCancelledBinderDied
)

var statusNames = []string{
	"pending",
	"finished",
	"ignored_unsupported",
	"cancelled_by_user",
	"cancelled_by_screen_off",
	"cancelled_by_settings_update",
	"cancelled_superseded",
	"cancelled_binder_died",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ParseStatus resolves a status name.
func ParseStatus(name string) (Status, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", name)
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Terminal reports whether s ends a vibration.
func (s Status) Terminal() bool { return s != StatusPending }

// Cancelled reports whether s is one of the cancellation causes.
func (s Status) Cancelled() bool { return s >= StatusCancelledByUser }

// Immediate reports whether cancelling with s skips ramp-down by default.
// Superseded, binder-died and settings-update cancellations need a fast
// turnaround; user and screen-off cancellations finish gracefully.
func (s Status) Immediate() bool {
	switch s {
	case StatusCancelledSuperseded, StatusCancelledBinderDied, StatusCancelledBySettingsUpdate:
		return true
	default:
		return false
	}
}

// CallerInfo identifies who requested a vibration and why.
type CallerInfo struct {
	UID      int          `json:"uid"`
	DeviceID int          `json:"device_id"`
	Package  string       `json:"package"`
	Reason   string       `json:"reason"`
	Usage    scaler.Usage `json:"usage"`
}

var lastID atomic.Int64

// Vibration is one request to play a combined effect. The conductor that
// owns it is the only writer of its status; the status is set exactly once.
type Vibration struct {
	ID        int64
	Caller    CallerInfo
	Effect    effect.Combined
	Fallbacks map[effect.EffectID]effect.Effect
	CreatedAt time.Time

	mu      sync.Mutex
	status  Status
	started time.Time
	ended   time.Time
	done    chan struct{}
}

// NewVibration creates a pending vibration with a process-unique id.
func NewVibration(caller CallerInfo, e effect.Combined) *Vibration {
	return &Vibration{
		ID:        lastID.Add(1),
		Caller:    caller,
		Effect:    e,
		Fallbacks: map[effect.EffectID]effect.Effect{},
		CreatedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Validate checks the effect and every fallback.
func (v *Vibration) Validate() error {
	if v.Effect == nil {
		return fmt.Errorf("%w: no effect", effect.ErrInvalidEffect)
	}
	if err := v.Effect.Validate(); err != nil {
		return err
	}
	for id, fb := range v.Fallbacks {
		if err := fb.Validate(); err != nil {
			return fmt.Errorf("fallback for %s: %w", id, err)
		}
	}
	return nil
}

// Status returns the current status.
func (v *Vibration) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

func (v *Vibration) markStarted() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.started.IsZero() {
		v.started = time.Now()
	}
}

// End sets the terminal status and resolves Done. Only the first call has
// any effect; it reports whether this call ended the vibration.
func (v *Vibration) End(s Status) bool {
	if !s.Terminal() {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.status.Terminal() {
		return false
	}
	v.status = s
	v.ended = time.Now()
	close(v.done)
	return true
}

// Done is closed once the vibration has a terminal status.
func (v *Vibration) Done() <-chan struct{} { return v.done }

// Wait blocks until the vibration ends or ctx is done.
func (v *Vibration) Wait(ctx context.Context) (Status, error) {
	select {
	case <-v.done:
		return v.Status(), nil
	case <-ctx.Done():
		return v.Status(), ctx.Err()
	}
}

// Info is a JSON snapshot of a vibration.
type Info struct {
	ID        int64      `json:"id"`
	Caller    CallerInfo `json:"caller"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Snapshot returns the current state of v.
func (v *Vibration) Snapshot() Info {
	v.mu.Lock()
	defer v.mu.Unlock()
	info := Info{ID: v.ID, Caller: v.Caller, Status: v.status, CreatedAt: v.CreatedAt}
	if !v.started.IsZero() {
		t := v.started
		info.StartedAt = &t
	}
	if !v.ended.IsZero() {
		t := v.ended
		info.EndedAt = &t
	}
	return info
}
