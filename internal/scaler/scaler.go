// Package scaler maps requested effect intensities to output intensities
// from the user's intensity settings and an optional adaptive scale.
package scaler

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/large-farva/vibrator-engine/internal/effect"
)

// Usage classifies why a vibration is played. Intensity settings are kept
// per usage.
type Usage string

const (
	UsageUnknown       Usage = "unknown"
	UsageAlarm         Usage = "alarm"
	UsageRingtone      Usage = "ringtone"
	UsageNotification  Usage = "notification"
	UsageCommunication Usage = "communication"
	UsageTouch         Usage = "touch"
	UsageMedia         Usage = "media"
	UsageAccessibility Usage = "accessibility"
	UsageHardware      Usage = "hardware_feedback"
)

// Usages lists every known usage.
var Usages = []Usage{
	UsageUnknown, UsageAlarm, UsageRingtone, UsageNotification, UsageCommunication,
	UsageTouch, UsageMedia, UsageAccessibility, UsageHardware,
}

// ParseUsage resolves a usage name. An empty name is UsageUnknown.
func ParseUsage(s string) (Usage, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return UsageUnknown, nil
	}
	for _, u := range Usages {
		if string(u) == s {
			return u, nil
		}
	}
	return "", fmt.Errorf("unknown usage %q", s)
}

// Intensity is a user-facing vibration intensity level.
type Intensity int

const (
	IntensityOff Intensity = iota
	IntensityLow
	IntensityMedium
	IntensityHigh
)

func (i Intensity) String() string {
	switch i {
	case IntensityOff:
		return "off"
	case IntensityLow:
		return "low"
	case IntensityMedium:
		return "medium"
	case IntensityHigh:
		return "high"
	default:
		return fmt.Sprintf("intensity(%d)", int(i))
	}
}

// ParseIntensity resolves an intensity name.
func ParseIntensity(s string) (Intensity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off":
		return IntensityOff, nil
	case "low":
		return IntensityLow, nil
	case "medium":
		return IntensityMedium, nil
	case "high":
		return IntensityHigh, nil
	default:
		return 0, fmt.Errorf("unknown intensity %q", s)
	}
}

// MarshalText lets intensities appear by name in JSON maps and bodies.
func (i Intensity) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

func (i *Intensity) UnmarshalText(b []byte) error {
	v, err := ParseIntensity(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// Options configures a Scaler.
type Options struct {
	// Gain is the factor applied per intensity level above or below the
	// default.
	Gain float64
	// DefaultAmplitude resolves effect.DefaultAmplitude, in [0,1].
	DefaultAmplitude float64
	// Defaults are the device default intensities per usage.
	Defaults map[Usage]Intensity
	// Policy applies adaptive scales. Nil means Linear.
	Policy AdaptivePolicy
}

// Scaler holds the current intensity settings. It is safe for concurrent
// use; scaling itself is a pure function of a settings snapshot.
type Scaler struct {
	gain             float64
	defaultAmplitude float64
	policy           AdaptivePolicy

	mu       sync.RWMutex
	defaults map[Usage]Intensity
	user     map[Usage]Intensity
}

// New creates a scaler whose user settings start at the defaults.
func New(opts Options) *Scaler {
	if opts.Gain <= 0 {
		opts.Gain = 1.4
	}
	if opts.DefaultAmplitude <= 0 || opts.DefaultAmplitude > 1 {
		opts.DefaultAmplitude = 1
	}
	if opts.Policy == nil {
		opts.Policy = Linear{}
	}
	s := &Scaler{
		gain:             opts.Gain,
		defaultAmplitude: opts.DefaultAmplitude,
		policy:           opts.Policy,
		defaults:         map[Usage]Intensity{},
		user:             map[Usage]Intensity{},
	}
	for _, u := range Usages {
		s.defaults[u] = IntensityMedium
	}
	for u, i := range opts.Defaults {
		s.defaults[u] = i
	}
	for u, i := range s.defaults {
		s.user[u] = i
	}
	return s
}

// SetIntensity updates the user intensity for one usage.
func (s *Scaler) SetIntensity(u Usage, i Intensity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user[u] = i
}

// Intensity returns the user intensity for u.
func (s *Scaler) Intensity(u Usage) Intensity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i, ok := s.user[u]; ok {
		return i
	}
	return IntensityMedium
}

// Intensities returns a snapshot of every user intensity.
func (s *Scaler) Intensities() map[Usage]Intensity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Usage]Intensity, len(s.user))
	for u, i := range s.user {
		out[u] = i
	}
	return out
}

// ScaleLevel is the distance between the user and default intensity.
func (s *Scaler) ScaleLevel(u Usage) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, def := s.user[u], s.defaults[u]
	if user == IntensityOff || def == IntensityOff {
		return 0
	}
	return int(user) - int(def)
}

// ScaleFactor is gain^level for usage u.
func (s *Scaler) ScaleFactor(u Usage) float64 {
	return math.Pow(s.gain, float64(s.ScaleLevel(u)))
}

// Scale returns a copy of e scaled for usage u. adaptive is the adaptive
// scale in (0,1]; 1 leaves the output unchanged.
func (s *Scaler) Scale(e effect.Effect, u Usage, adaptive float64) effect.Effect {
	factor := s.ScaleFactor(u)
	strength := StrengthFor(s.Intensity(u))
	if adaptive <= 0 {
		adaptive = 1
	}
	switch v := e.(type) {
	case *effect.Composed:
		return s.scaleComposed(v, factor, adaptive, strength)
	case *effect.Vendor:
		out := *v
		out.Strength = strength
		out.Scale = factor
		out.AdaptiveScale = adaptive
		return &out
	default:
		return e
	}
}

func (s *Scaler) scaleComposed(c *effect.Composed, factor, adaptive float64, strength effect.Strength) *effect.Composed {
	out := c.ResolveDefaultAmplitude(s.defaultAmplitude)
	amp := func(x float64) float64 {
		return s.policy.Apply(ScaleAmplitude(x, factor), adaptive)
	}
	for i, seg := range out.Segments {
		switch v := seg.(type) {
		case effect.StepSegment:
			v.Amplitude = amp(v.Amplitude)
			out.Segments[i] = v
		case effect.RampSegment:
			v.StartAmplitude = amp(v.StartAmplitude)
			v.EndAmplitude = amp(v.EndAmplitude)
			out.Segments[i] = v
		case effect.PrebakedSegment:
			v.Strength = strength
			out.Segments[i] = v
		case effect.PrimitiveSegment:
			v.Scale = amp(v.Scale)
			out.Segments[i] = v
		}
	}
	return out
}

// ScaleAmplitude applies an intensity scale factor to x in [0,1]. Scaling
// down is linear; scaling up follows S*x/(1+(S-1)*x^2), which converges to 1
// and never clips.
func ScaleAmplitude(x, factor float64) float64 {
	if factor <= 1 || x == 0 {
		return clamp01(x * factor)
	}
	return clamp01(factor * x / (1 + (factor-1)*x*x))
}

// StrengthFor maps a user intensity to the prebaked effect strength.
func StrengthFor(i Intensity) effect.Strength {
	switch i {
	case IntensityLow:
		return effect.StrengthLight
	case IntensityHigh:
		return effect.StrengthStrong
	default:
		return effect.StrengthMedium
	}
}

// AdaptivePolicy applies a personalized adaptive scale to an amplitude.
// Implementations must not increase the amplitude for scales below 1.
type AdaptivePolicy interface {
	Apply(amplitude, scale float64) float64
}

// Linear multiplies the amplitude by the adaptive scale.
type Linear struct{}

func (Linear) Apply(amplitude, scale float64) float64 { return clamp01(amplitude * scale) }

func clamp01(x float64) float64 { return min(max(x, 0), 1) }
