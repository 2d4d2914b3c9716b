// Package hal defines the boundary to actuator hardware: one Driver per
// physical actuator, plus a SyncDriver for starting several actuators at once.
// Drivers block for the duration of each call and report hardware completion
// through the done callback supplied with every timed call.
package hal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/large-farva/vibrator-engine/internal/effect"
)

// ErrUnsupported is returned when the actuator lacks the capability or the
// specific effect requested. Callers must not retry.
var ErrUnsupported = errors.New("operation not supported by actuator")

// Braking selects how a PWLE composition stops.
type Braking int

const (
	BrakingNone Braking = 0
	BrakingClab Braking = 1
)

// PwlePoint is one control point of an envelope composition. TimeMs is the
// time taken to reach this point from the previous one.
type PwlePoint struct {
	Amplitude   float64 `json:"amplitude"`
	FrequencyHz float64 `json:"frequency_hz"`
	TimeMs      int64   `json:"time_ms"`
}

// Driver controls one actuator.
//
// Timed calls return the expected playback time in milliseconds. A call that
// returns successfully may later invoke done exactly once, from an arbitrary
// goroutine, when the hardware finishes; actuators without the matching
// callback capability never invoke it.
type Driver interface {
	Info() Info

	On(durationMs int64, done func()) (int64, error)
	Off() error
	SetAmplitude(amplitude float64) error
	SetExternalControl(enabled bool) error

	PerformEffect(id effect.EffectID, strength effect.Strength, done func()) (int64, error)
	PerformVendorEffect(v *effect.Vendor, done func()) (int64, error)
	ComposePrimitives(primitives []effect.PrimitiveSegment, done func()) (int64, error)
	ComposePwle(ramps []effect.RampSegment, braking Braking, done func()) (int64, error)
	ComposePwleV2(points []PwlePoint, done func()) (int64, error)
}

// SyncCapability is a bit set describing manager-level synced playback.
type SyncCapability int64

const (
	SyncCapSync                SyncCapability = 1 << 0
	SyncCapPrepareOn           SyncCapability = 1 << 1
	SyncCapPreparePerform      SyncCapability = 1 << 2
	SyncCapPrepareCompose      SyncCapability = 1 << 3
	SyncCapMixedTriggerOn      SyncCapability = 1 << 4
	SyncCapMixedTriggerPerform SyncCapability = 1 << 5
	SyncCapMixedTriggerCompose SyncCapability = 1 << 6
	SyncCapTriggerCallback     SyncCapability = 1 << 7
)

// Has reports whether every bit of mask is set.
func (c SyncCapability) Has(mask SyncCapability) bool { return c&mask == mask }

var syncCapabilityNames = []struct {
	c    SyncCapability
	name string
}{
	{SyncCapSync, "sync"},
	{SyncCapPrepareOn, "prepare_on"},
	{SyncCapPreparePerform, "prepare_perform"},
	{SyncCapPrepareCompose, "prepare_compose"},
	{SyncCapMixedTriggerOn, "mixed_trigger_on"},
	{SyncCapMixedTriggerPerform, "mixed_trigger_perform"},
	{SyncCapMixedTriggerCompose, "mixed_trigger_compose"},
	{SyncCapTriggerCallback, "trigger_callback"},
}

// Names lists the set bits by name.
func (c SyncCapability) Names() []string {
	var out []string
	for _, n := range syncCapabilityNames {
		if c.Has(n.c) {
			out = append(out, n.name)
		}
	}
	return out
}

// ParseSyncCapabilities combines sync capability names into one bit set.
func ParseSyncCapabilities(names []string) (SyncCapability, error) {
	var out SyncCapability
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		found := false
		for _, sn := range syncCapabilityNames {
			if sn.name == n {
				out |= sn.c
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown sync capability %q", n)
		}
	}
	return out, nil
}

// SyncDriver starts prepared actuators together. Calls issued to prepared
// actuators are held by the hardware until Trigger.
type SyncDriver interface {
	Capabilities() SyncCapability
	Prepare(actuatorIDs []int) error
	// Trigger starts every prepared actuator. With SyncCapTriggerCallback,
	// done fires once the whole synced playback has finished.
	Trigger(done func()) error
	CancelSynced() error
}
