package effect

import (
	"errors"
	"fmt"
)

// ErrInvalidEffect is returned for malformed effects. Validation happens at
// submission, before any hardware interaction.
var ErrInvalidEffect = errors.New("invalid effect")

// MaxAmplitude is the largest integer amplitude accepted by the waveform
// constructors. Integer amplitudes are normalized to value/MaxAmplitude.
const MaxAmplitude = 255

// Effect is a single-actuator effect: either *Composed or *Vendor.
type Effect interface {
	DurationMs() int64
	Validate() error
	isEffect()
}

// Composed is a sequence of segments with an optional repeat index. A repeat
// index of -1 plays the sequence once; any other value loops back to that
// index after the last segment until cancelled.
type Composed struct {
	Segments    []Segment `json:"segments"`
	RepeatIndex int       `json:"repeat_index"`
}

func (*Composed) isEffect() {}

// DurationMs returns the total playback time, Infinite for repeating effects
// and -1 when any segment's duration is defined by the hardware.
func (c *Composed) DurationMs() int64 {
	if c.RepeatIndex >= 0 {
		return Infinite
	}
	var total int64
	for _, s := range c.Segments {
		d := s.DurationMs()
		if d < 0 {
			return -1
		}
		total += d
	}
	return total
}

// Clone returns a copy that shares no segment slice with c.
func (c *Composed) Clone() *Composed {
	segs := make([]Segment, len(c.Segments))
	copy(segs, c.Segments)
	return &Composed{Segments: segs, RepeatIndex: c.RepeatIndex}
}

// Validate checks every segment and the repeat index.
func (c *Composed) Validate() error {
	if len(c.Segments) == 0 {
		return fmt.Errorf("%w: no segments", ErrInvalidEffect)
	}
	if c.RepeatIndex < -1 || c.RepeatIndex >= len(c.Segments) {
		return fmt.Errorf("%w: repeat index %d out of range [-1, %d)", ErrInvalidEffect, c.RepeatIndex, len(c.Segments))
	}
	timed := true
	var total int64
	for i, s := range c.Segments {
		if err := validateSegment(s); err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
		if d := s.DurationMs(); d < 0 {
			timed = false
		} else {
			total += d
		}
	}
	if timed && total == 0 {
		return fmt.Errorf("%w: total duration must be > 0", ErrInvalidEffect)
	}
	return nil
}

func validateSegment(s Segment) error {
	switch seg := s.(type) {
	case StepSegment:
		if !validAmplitude(seg.Amplitude, true) {
			return fmt.Errorf("%w: step amplitude %v out of range", ErrInvalidEffect, seg.Amplitude)
		}
		if seg.FrequencyHz < 0 {
			return fmt.Errorf("%w: step frequency must be >= 0", ErrInvalidEffect)
		}
		if seg.Duration < 0 {
			return fmt.Errorf("%w: step duration must be >= 0", ErrInvalidEffect)
		}
	case RampSegment:
		if !validAmplitude(seg.StartAmplitude, false) || !validAmplitude(seg.EndAmplitude, false) {
			return fmt.Errorf("%w: ramp amplitudes must be in [0,1]", ErrInvalidEffect)
		}
		if seg.StartFrequencyHz < 0 || seg.EndFrequencyHz < 0 {
			return fmt.Errorf("%w: ramp frequencies must be >= 0", ErrInvalidEffect)
		}
		if seg.Kind == RampBasic && (seg.StartFrequencyHz > 1 || seg.EndFrequencyHz > 1) {
			return fmt.Errorf("%w: sharpness must be in [0,1]", ErrInvalidEffect)
		}
		if seg.Duration < 0 {
			return fmt.Errorf("%w: ramp duration must be >= 0", ErrInvalidEffect)
		}
	case PrebakedSegment:
		if !seg.Effect.Known() {
			return fmt.Errorf("%w: unknown prebaked effect %d", ErrInvalidEffect, int(seg.Effect))
		}
		if seg.Strength < StrengthLight || seg.Strength > StrengthStrong {
			return fmt.Errorf("%w: unknown strength %d", ErrInvalidEffect, int(seg.Strength))
		}
	case PrimitiveSegment:
		if !seg.Primitive.Known() {
			return fmt.Errorf("%w: unknown primitive %d", ErrInvalidEffect, int(seg.Primitive))
		}
		if seg.Scale < 0 || seg.Scale > 1 {
			return fmt.Errorf("%w: primitive scale must be in [0,1]", ErrInvalidEffect)
		}
		if seg.DelayMs < 0 {
			return fmt.Errorf("%w: primitive delay must be >= 0", ErrInvalidEffect)
		}
	default:
		return fmt.Errorf("%w: unsupported segment %T", ErrInvalidEffect, s)
	}
	return nil
}

func validAmplitude(a float64, allowDefault bool) bool {
	if allowDefault && a == DefaultAmplitude {
		return true
	}
	return a >= 0 && a <= 1
}

// DropZeroDurations removes step and ramp segments that carry no playback
// time and remaps the repeat index onto the segments that remain. When every
// repeating segment is dropped the effect no longer repeats.
func (c *Composed) DropZeroDurations() *Composed {
	out := &Composed{Segments: make([]Segment, 0, len(c.Segments)), RepeatIndex: -1}
	for i, s := range c.Segments {
		if i == c.RepeatIndex {
			out.RepeatIndex = len(out.Segments)
		}
		switch s.(type) {
		case StepSegment, RampSegment:
			if s.DurationMs() == 0 {
				continue
			}
		}
		out.Segments = append(out.Segments, s)
	}
	if out.RepeatIndex >= len(out.Segments) {
		out.RepeatIndex = -1
	}
	return out
}

// ResolveDefaultAmplitude replaces DefaultAmplitude steps with amplitude.
func (c *Composed) ResolveDefaultAmplitude(amplitude float64) *Composed {
	out := c.Clone()
	for i, s := range out.Segments {
		if st, ok := s.(StepSegment); ok && st.Amplitude == DefaultAmplitude {
			st.Amplitude = amplitude
			out.Segments[i] = st
		}
	}
	return out
}

// Vendor is an opaque effect defined by the actuator vendor.
type Vendor struct {
	Data          map[string]any `json:"data"`
	Strength      Strength       `json:"strength"`
	Scale         float64        `json:"scale"`
	AdaptiveScale float64        `json:"adaptive_scale"`
}

func (*Vendor) isEffect() {}

// DurationMs is always unknown; vendor effects are timed by the hardware.
func (*Vendor) DurationMs() int64 { return -1 }

func (v *Vendor) Validate() error {
	if len(v.Data) == 0 {
		return fmt.Errorf("%w: vendor data must not be empty", ErrInvalidEffect)
	}
	if v.Scale < 0 || v.AdaptiveScale < 0 {
		return fmt.Errorf("%w: vendor scales must be >= 0", ErrInvalidEffect)
	}
	return nil
}

// NewVendor wraps a vendor payload with neutral scaling.
func NewVendor(data map[string]any) *Vendor {
	return &Vendor{Data: data, Strength: StrengthMedium, Scale: 1, AdaptiveScale: 1}
}

// OneShot plays a single pulse. amplitude is 1..255 or -1 for the default.
func OneShot(durationMs int64, amplitude int) *Composed {
	return &Composed{
		Segments:    []Segment{StepSegment{Amplitude: normalize(amplitude), Duration: durationMs}},
		RepeatIndex: -1,
	}
}

// Waveform builds a step waveform from parallel timing and amplitude arrays.
// Amplitudes are 0..255 or -1 for the default.
func Waveform(timings []int64, amplitudes []int, repeat int) (*Composed, error) {
	if len(timings) != len(amplitudes) {
		return nil, fmt.Errorf("%w: %d timings but %d amplitudes", ErrInvalidEffect, len(timings), len(amplitudes))
	}
	segs := make([]Segment, len(timings))
	for i, t := range timings {
		if amplitudes[i] < -1 || amplitudes[i] > MaxAmplitude {
			return nil, fmt.Errorf("%w: amplitude %d out of range", ErrInvalidEffect, amplitudes[i])
		}
		segs[i] = StepSegment{Amplitude: normalize(amplitudes[i]), Duration: t}
	}
	return &Composed{Segments: segs, RepeatIndex: repeat}, nil
}

// OnOffWaveform alternates off and default-amplitude on, starting off.
func OnOffWaveform(timings []int64, repeat int) (*Composed, error) {
	amps := make([]int, len(timings))
	for i := range amps {
		if i%2 == 1 {
			amps[i] = -1
		}
	}
	return Waveform(timings, amps, repeat)
}

// Prebaked plays a canned effect at medium strength. With fallback set the
// vibration's configured fallback plays when the actuator lacks the effect.
func Prebaked(id EffectID, fallback bool) *Composed {
	return &Composed{
		Segments:    []Segment{PrebakedSegment{Effect: id, Strength: StrengthMedium, Fallback: fallback}},
		RepeatIndex: -1,
	}
}

func normalize(amplitude int) float64 {
	if amplitude < 0 {
		return DefaultAmplitude
	}
	return float64(amplitude) / MaxAmplitude
}
