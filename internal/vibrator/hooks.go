package vibrator

import (
	"context"
	"time"

	"github.com/large-farva/vibrator-engine/internal/hal"
	"github.com/large-farva/vibrator-engine/internal/scaler"
)

// ManagerHooks are the calls a Conductor makes into the service that owns
// it. Implementations must be safe for concurrent use; the conductor calls
// them from the vibration worker.
type ManagerHooks interface {
	// NoteVibratorOn records that the caller's actuators turned on for up to
	// durationMs. It is paired with exactly one NoteVibratorOff.
	NoteVibratorOn(uid int, durationMs int64)
	NoteVibratorOff(uid int)

	// PrepareSyncedVibration readies the actuators to start together.
	PrepareSyncedVibration(required hal.SyncCapability, actuatorIDs []int) bool
	// TriggerSyncedVibration starts every prepared actuator.
	TriggerSyncedVibration(vibrationID int64) bool
	CancelSyncedVibration()

	// OnVibrationThreadReleased fires once the worker is done with the
	// vibration and its actuators.
	OnVibrationThreadReleased(vibrationID int64)
}

// ParamsProvider supplies the personalized adaptive scale for a usage.
// The conductor bounds every request with Options.ParamsTimeout.
type ParamsProvider interface {
	AdaptiveScale(ctx context.Context, usage scaler.Usage) (float64, error)
}

// Options holds the timing constants of step execution.
type Options struct {
	// RampDown is added after waveforms that end at a non-zero amplitude.
	RampDown time.Duration
	// RampStep is the length of each ramp-down and ramp-to-step step.
	RampStep time.Duration
	// CallbacksExtraTimeout is how long past the expected end a step waits
	// for the hardware completion callback.
	CallbacksExtraTimeout time.Duration
	// RepeatingOnDuration is the minimum on-time of a looping waveform that
	// never reaches zero amplitude.
	RepeatingOnDuration time.Duration
	// VendorMaxDuration bounds the expected duration of vendor effects.
	VendorMaxDuration time.Duration
	// ParamsTimeout bounds the wait for adaptive scales.
	ParamsTimeout time.Duration
}

// DefaultOptions returns the stock timing constants.
func DefaultOptions() Options {
	return Options{
		RampStep:              5 * time.Millisecond,
		CallbacksExtraTimeout: time.Second,
		RepeatingOnDuration:   5 * time.Second,
		VendorMaxDuration:     8 * time.Second,
		ParamsTimeout:         50 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.RampStep <= 0 {
		o.RampStep = d.RampStep
	}
	if o.CallbacksExtraTimeout <= 0 {
		o.CallbacksExtraTimeout = d.CallbacksExtraTimeout
	}
	if o.RepeatingOnDuration <= 0 {
		o.RepeatingOnDuration = d.RepeatingOnDuration
	}
	if o.VendorMaxDuration <= 0 {
		o.VendorMaxDuration = d.VendorMaxDuration
	}
	if o.ParamsTimeout <= 0 {
		o.ParamsTimeout = d.ParamsTimeout
	}
	if o.RampDown < 0 {
		o.RampDown = 0
	}
	return o
}

func (o Options) rampDownMs() int64 { return o.RampDown.Milliseconds() }
func (o Options) rampStepMs() int64 { return max(o.RampStep.Milliseconds(), 1) }

// NopHooks ignores every call and refuses synced starts.
type NopHooks struct{}

func (NopHooks) NoteVibratorOn(int, int64)                             {}
func (NopHooks) NoteVibratorOff(int)                                   {}
func (NopHooks) PrepareSyncedVibration(hal.SyncCapability, []int) bool { return false }
func (NopHooks) TriggerSyncedVibration(int64) bool                     { return false }
func (NopHooks) CancelSyncedVibration()                                {}
func (NopHooks) OnVibrationThreadReleased(int64)                       {}
