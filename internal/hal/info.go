package hal

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/large-farva/vibrator-engine/internal/effect"
)

// Capability is a bit set describing what one actuator can do.
type Capability int64

const (
	CapOnCallback        Capability = 1 << 0
	CapPerformCallback   Capability = 1 << 1
	CapAmplitudeControl  Capability = 1 << 2
	CapExternalControl   Capability = 1 << 3
	CapExternalAmplitude Capability = 1 << 4
	CapComposeEffects    Capability = 1 << 5
	CapAlwaysOn          Capability = 1 << 6
	CapGetResonant       Capability = 1 << 7
	CapGetQFactor        Capability = 1 << 8
	CapFrequencyControl  Capability = 1 << 9
	CapComposePwle       Capability = 1 << 10
	CapPerformVendor     Capability = 1 << 11
	CapComposePwleV2     Capability = 1 << 12
)

var capabilityNames = []struct {
	c    Capability
	name string
}{
	{CapOnCallback, "on_callback"},
	{CapPerformCallback, "perform_callback"},
	{CapAmplitudeControl, "amplitude_control"},
	{CapExternalControl, "external_control"},
	{CapExternalAmplitude, "external_amplitude"},
	{CapComposeEffects, "compose_effects"},
	{CapAlwaysOn, "always_on"},
	{CapGetResonant, "get_resonant"},
	{CapGetQFactor, "get_q_factor"},
	{CapFrequencyControl, "frequency_control"},
	{CapComposePwle, "compose_pwle"},
	{CapPerformVendor, "perform_vendor"},
	{CapComposePwleV2, "compose_pwle_v2"},
}

// Has reports whether every bit of mask is set.
func (c Capability) Has(mask Capability) bool { return c&mask == mask }

// Names lists the set capabilities in bit order.
func (c Capability) Names() []string {
	var out []string
	for _, cn := range capabilityNames {
		if c.Has(cn.c) {
			out = append(out, cn.name)
		}
	}
	return out
}

// ParseCapabilities combines capability names into one bit set.
func ParseCapabilities(names []string) (Capability, error) {
	var out Capability
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		found := false
		for _, cn := range capabilityNames {
			if cn.name == n {
				out |= cn.c
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown capability %q", n)
		}
	}
	return out, nil
}

// Info describes one actuator. It is immutable once reported.
type Info struct {
	ID           int                        `json:"id"`
	Capabilities Capability                 `json:"capabilities"`
	Effects      []effect.EffectID          `json:"effects,omitempty"`
	Braking      []Braking                  `json:"braking,omitempty"`
	Primitives   map[effect.Primitive]int64 `json:"primitives,omitempty"`

	PrimitiveDelayMaxMs   int64 `json:"primitive_delay_max_ms,omitempty"`
	CompositionSizeMax    int   `json:"composition_size_max,omitempty"`
	PwleSizeMax           int   `json:"pwle_size_max,omitempty"`
	PwlePrimitiveMaxMs    int64 `json:"pwle_primitive_duration_max_ms,omitempty"`
	MaxEnvelopeEffectSize int   `json:"max_envelope_effect_size,omitempty"`
	MinEnvelopePointMs    int64 `json:"min_envelope_control_point_ms,omitempty"`
	MaxEnvelopePointMs    int64 `json:"max_envelope_control_point_ms,omitempty"`

	QFactor   float64          `json:"q_factor,omitempty"`
	Frequency FrequencyProfile `json:"frequency"`
}

// Has reports whether the actuator has every capability in mask.
func (i Info) Has(mask Capability) bool { return i.Capabilities.Has(mask) }

// SupportsEffect reports whether a prebaked effect is implemented.
func (i Info) SupportsEffect(id effect.EffectID) bool { return slices.Contains(i.Effects, id) }

// SupportsBraking reports whether a PWLE braking mode is implemented.
func (i Info) SupportsBraking(b Braking) bool { return slices.Contains(i.Braking, b) }

// SupportsPrimitive reports whether a primitive can be composed.
func (i Info) SupportsPrimitive(p effect.Primitive) bool {
	if !i.Has(CapComposeEffects) {
		return false
	}
	_, ok := i.Primitives[p]
	return ok
}

// PrimitiveDurationMs returns the reported playback time of p, or 0.
func (i Info) PrimitiveDurationMs(p effect.Primitive) int64 { return i.Primitives[p] }

// FrequencyProfile maps frequencies to the output limits of the actuator.
// MaxAmplitudes[k] is the highest safe amplitude at MinHz + k*ResolutionHz.
type FrequencyProfile struct {
	ResonantHz    float64   `json:"resonant_hz,omitempty"`
	MinHz         float64   `json:"min_hz,omitempty"`
	ResolutionHz  float64   `json:"resolution_hz,omitempty"`
	MaxAmplitudes []float64 `json:"max_amplitudes,omitempty"`

	// Output acceleration per frequency, used to translate sharpness.
	FrequenciesHz         []float64 `json:"frequencies_hz,omitempty"`
	OutputAccelerationsGs []float64 `json:"output_accelerations_gs,omitempty"`
}

// Empty reports whether the profile carries no usable frequency range.
func (p FrequencyProfile) Empty() bool {
	return p.ResonantHz <= 0 || p.MinHz <= 0 || p.ResolutionHz <= 0 || len(p.MaxAmplitudes) == 0
}

// MaxHz returns the highest frequency covered by MaxAmplitudes.
func (p FrequencyProfile) MaxHz() float64 {
	if p.Empty() {
		return 0
	}
	return p.MinHz + p.ResolutionHz*float64(len(p.MaxAmplitudes)-1)
}

// MaxAmplitude interpolates the amplitude limit at hz. Frequencies outside
// the profile have a limit of zero.
func (p FrequencyProfile) MaxAmplitude(hz float64) float64 {
	if p.Empty() || math.IsNaN(hz) || hz < p.MinHz || hz > p.MaxHz() {
		return 0
	}
	last := len(p.MaxAmplitudes) - 1
	offset := hz - p.MinHz
	lo := min(max(int(math.Floor(offset/p.ResolutionHz)), 0), last)
	hi := min(lo+1, last)
	if lo == hi {
		return p.MaxAmplitudes[lo]
	}
	t := (offset - float64(lo)*p.ResolutionHz) / p.ResolutionHz
	t = min(max(t, 0), 1)
	return p.MaxAmplitudes[lo] + (p.MaxAmplitudes[hi]-p.MaxAmplitudes[lo])*t
}

// usableAccelerationRatio is the fraction of peak output acceleration a
// frequency must reach to be part of the sharpness range.
const usableAccelerationRatio = 0.1

// SharpnessRange returns the frequencies that sharpness 0 and 1 map to.
// Without an acceleration map the whole profile range is used.
func (p FrequencyProfile) SharpnessRange() (lo, hi float64) {
	n := min(len(p.FrequenciesHz), len(p.OutputAccelerationsGs))
	if n == 0 {
		return p.MinHz, p.MaxHz()
	}
	peak := slices.Max(p.OutputAccelerationsGs[:n])
	lo, hi = math.Inf(1), math.Inf(-1)
	for k := 0; k < n; k++ {
		if p.OutputAccelerationsGs[k] >= peak*usableAccelerationRatio {
			lo = min(lo, p.FrequenciesHz[k])
			hi = max(hi, p.FrequenciesHz[k])
		}
	}
	if math.IsInf(lo, 1) {
		return p.MinHz, p.MaxHz()
	}
	return lo, hi
}
