// Package effect models haptic effects in a hardware-agnostic form. An effect
// is a sequence of segments (fixed steps, linear ramps, canned prebaked
// effects and composed primitives) or an opaque vendor payload. Combined
// effects describe how single-actuator effects map onto several actuators.
package effect

import (
	"fmt"
	"math"
	"strings"
)

// DefaultAmplitude asks the device to use its default output level.
const DefaultAmplitude = -1.0

// Infinite is the duration reported by effects that repeat forever.
const Infinite int64 = math.MaxInt64

// Segment is one atomic unit of haptic output. The set of implementations is
// closed: StepSegment, RampSegment, PrebakedSegment and PrimitiveSegment.
type Segment interface {
	// DurationMs returns the playback time, or -1 when only the hardware
	// knows it.
	DurationMs() int64
	isSegment()
}

// StepSegment holds a fixed amplitude and frequency for a duration.
// Amplitude is in [0,1] or DefaultAmplitude; a frequency of 0 means the
// device default.
type StepSegment struct {
	Amplitude   float64 `json:"amplitude"`
	FrequencyHz float64 `json:"frequency_hz,omitempty"`
	Duration    int64   `json:"duration_ms"`
}

func (s StepSegment) DurationMs() int64 { return s.Duration }
func (StepSegment) isSegment()          {}

// RampKind records where a ramp came from, which decides how it is sent to
// hardware and whether its values still need translation.
type RampKind int

const (
	// RampLegacy ramps come from the waveform builder and compose as PWLE v1.
	RampLegacy RampKind = iota
	// RampEnvelope ramps come from a waveform envelope (amplitude + Hz).
	RampEnvelope
	// RampBasic ramps carry intensity in the amplitude fields and sharpness
	// in the frequency fields, both in [0,1].
	RampBasic
)

func (k RampKind) String() string {
	switch k {
	case RampLegacy:
		return "legacy"
	case RampEnvelope:
		return "envelope"
	case RampBasic:
		return "basic"
	default:
		return fmt.Sprintf("ramp_kind(%d)", int(k))
	}
}

// RampSegment moves linearly between two amplitude/frequency pairs.
type RampSegment struct {
	StartAmplitude   float64  `json:"start_amplitude"`
	EndAmplitude     float64  `json:"end_amplitude"`
	StartFrequencyHz float64  `json:"start_frequency_hz"`
	EndFrequencyHz   float64  `json:"end_frequency_hz"`
	Duration         int64    `json:"duration_ms"`
	Kind             RampKind `json:"kind"`
}

func (r RampSegment) DurationMs() int64 { return r.Duration }
func (RampSegment) isSegment()          {}

// PrebakedSegment plays a canned effect implemented by the actuator.
type PrebakedSegment struct {
	Effect   EffectID `json:"effect"`
	Strength Strength `json:"strength"`
	Fallback bool     `json:"fallback"`
}

func (PrebakedSegment) DurationMs() int64 { return -1 }
func (PrebakedSegment) isSegment()        {}

// PrimitiveSegment is one entry of a primitive composition.
type PrimitiveSegment struct {
	Primitive Primitive `json:"primitive"`
	Scale     float64   `json:"scale"`
	DelayMs   int64     `json:"delay_ms"`
}

func (PrimitiveSegment) DurationMs() int64 { return -1 }
func (PrimitiveSegment) isSegment()        {}

// EffectID identifies a prebaked effect.
type EffectID int

const (
	EffectClick       EffectID = 0
	EffectDoubleClick EffectID = 1
	EffectTick        EffectID = 2
	EffectThud        EffectID = 3
	EffectPop         EffectID = 4
	EffectHeavyClick  EffectID = 5
	EffectTextureTick EffectID = 21
)

var effectNames = map[EffectID]string{
	EffectClick:       "click",
	EffectDoubleClick: "double_click",
	EffectTick:        "tick",
	EffectThud:        "thud",
	EffectPop:         "pop",
	EffectHeavyClick:  "heavy_click",
	EffectTextureTick: "texture_tick",
}

func (e EffectID) String() string {
	if n, ok := effectNames[e]; ok {
		return n
	}
	return fmt.Sprintf("effect(%d)", int(e))
}

// Known reports whether e names a defined prebaked effect.
func (e EffectID) Known() bool {
	_, ok := effectNames[e]
	return ok
}

// ParseEffectID resolves a prebaked effect by name.
func ParseEffectID(s string) (EffectID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for id, n := range effectNames {
		if n == s {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown prebaked effect %q", ErrInvalidEffect, s)
}

// Strength is the intensity requested for a prebaked effect.
type Strength int

const (
	StrengthLight  Strength = 0
	StrengthMedium Strength = 1
	StrengthStrong Strength = 2
)

func (s Strength) String() string {
	switch s {
	case StrengthLight:
		return "light"
	case StrengthMedium:
		return "medium"
	case StrengthStrong:
		return "strong"
	default:
		return fmt.Sprintf("strength(%d)", int(s))
	}
}

// ParseStrength resolves a strength name. An empty string means medium.
func ParseStrength(s string) (Strength, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "light":
		return StrengthLight, nil
	case "", "medium":
		return StrengthMedium, nil
	case "strong":
		return StrengthStrong, nil
	default:
		return 0, fmt.Errorf("%w: unknown strength %q", ErrInvalidEffect, s)
	}
}

// Primitive identifies a composable haptic primitive.
type Primitive int

const (
	PrimitiveNoop      Primitive = 0
	PrimitiveClick     Primitive = 1
	PrimitiveThud      Primitive = 2
	PrimitiveSpin      Primitive = 3
	PrimitiveQuickRise Primitive = 4
	PrimitiveSlowRise  Primitive = 5
	PrimitiveQuickFall Primitive = 6
	PrimitiveTick      Primitive = 7
	PrimitiveLowTick   Primitive = 8
)

var primitiveNames = []string{
	"noop", "click", "thud", "spin", "quick_rise", "slow_rise", "quick_fall", "tick", "low_tick",
}

func (p Primitive) String() string {
	if p >= 0 && int(p) < len(primitiveNames) {
		return primitiveNames[p]
	}
	return fmt.Sprintf("primitive(%d)", int(p))
}

// Known reports whether p names a defined primitive.
func (p Primitive) Known() bool {
	return p >= 0 && int(p) < len(primitiveNames)
}

// ParsePrimitive resolves a primitive by name.
func ParsePrimitive(s string) (Primitive, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range primitiveNames {
		if n == s {
			return Primitive(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown primitive %q", ErrInvalidEffect, s)
}
