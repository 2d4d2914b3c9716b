package effect

import (
	"fmt"
	"sort"
)

// Spec is the JSON form of a single-actuator effect. Exactly one field must
// be set.
type Spec struct {
	OneShot       *OneShotSpec       `json:"one_shot,omitempty"`
	Waveform      *WaveformSpec      `json:"waveform,omitempty"`
	Prebaked      *PrebakedSpec      `json:"prebaked,omitempty"`
	Composition   *CompositionSpec   `json:"composition,omitempty"`
	Ramp          *RampSpec          `json:"ramp,omitempty"`
	Envelope      *EnvelopeSpec      `json:"envelope,omitempty"`
	BasicEnvelope *BasicEnvelopeSpec `json:"basic_envelope,omitempty"`
	Vendor        *VendorSpec        `json:"vendor,omitempty"`
}

type OneShotSpec struct {
	DurationMs int64 `json:"duration_ms"`
	// Amplitude is 1..255; 0 or omitted means the device default.
	Amplitude int `json:"amplitude,omitempty"`
}

type WaveformSpec struct {
	TimingsMs []int64 `json:"timings_ms"`
	// Amplitudes may be omitted for an on/off pattern starting off.
	Amplitudes []int `json:"amplitudes,omitempty"`
	Repeat     *int  `json:"repeat,omitempty"`
}

type PrebakedSpec struct {
	Effect   string `json:"effect"`
	Strength string `json:"strength,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
}

type CompositionSpec struct {
	Primitives []PrimitiveSpec `json:"primitives"`
	// RepeatFrom loops the primitives from this index until cancelled.
	RepeatFrom *int `json:"repeat_from,omitempty"`
}

type PrimitiveSpec struct {
	Primitive string   `json:"primitive"`
	Scale     *float64 `json:"scale,omitempty"`
	DelayMs   int64    `json:"delay_ms,omitempty"`
}

// RampSpec drives the waveform builder: each entry either sustains the
// current output or transitions to a new amplitude (and frequency).
type RampSpec struct {
	InitialAmplitude float64        `json:"initial_amplitude"`
	Steps            []RampStepSpec `json:"steps"`
}

type RampStepSpec struct {
	SustainMs    int64    `json:"sustain_ms,omitempty"`
	TransitionMs int64    `json:"transition_ms,omitempty"`
	Amplitude    *float64 `json:"amplitude,omitempty"`
	FrequencyHz  *float64 `json:"frequency_hz,omitempty"`
}

type EnvelopeSpec struct {
	InitialFrequencyHz float64            `json:"initial_frequency_hz,omitempty"`
	Points             []ControlPointSpec `json:"points"`
}

type ControlPointSpec struct {
	Amplitude   float64 `json:"amplitude"`
	FrequencyHz float64 `json:"frequency_hz"`
	DurationMs  int64   `json:"duration_ms"`
}

type BasicEnvelopeSpec struct {
	InitialSharpness *float64         `json:"initial_sharpness,omitempty"`
	Points           []BasicPointSpec `json:"points"`
}

type BasicPointSpec struct {
	Intensity  float64 `json:"intensity"`
	Sharpness  float64 `json:"sharpness"`
	DurationMs int64   `json:"duration_ms"`
}

type VendorSpec struct {
	Data     map[string]any `json:"data"`
	Strength string         `json:"strength,omitempty"`
	Scale    *float64       `json:"scale,omitempty"`
}

// Build converts s into a validated effect.
func (s Spec) Build() (Effect, error) {
	var (
		e   Effect
		err error
		set int
	)
	if s.OneShot != nil {
		set++
		amp := s.OneShot.Amplitude
		if amp == 0 {
			amp = -1
		}
		if amp < -1 || amp > MaxAmplitude {
			return nil, fmt.Errorf("%w: amplitude %d out of range", ErrInvalidEffect, amp)
		}
		if s.OneShot.DurationMs <= 0 {
			return nil, fmt.Errorf("%w: one-shot duration must be > 0", ErrInvalidEffect)
		}
		e = OneShot(s.OneShot.DurationMs, amp)
	}
	if s.Waveform != nil {
		set++
		e, err = s.Waveform.build()
	}
	if s.Prebaked != nil {
		set++
		e, err = s.Prebaked.build()
	}
	if s.Composition != nil {
		set++
		e, err = s.Composition.build()
	}
	if s.Ramp != nil {
		set++
		e, err = s.Ramp.build()
	}
	if s.Envelope != nil {
		set++
		b := NewEnvelopeBuilder().InitialFrequency(s.Envelope.InitialFrequencyHz)
		for _, p := range s.Envelope.Points {
			b.ControlPoint(p.Amplitude, p.FrequencyHz, p.DurationMs)
		}
		e, err = b.Build()
	}
	if s.BasicEnvelope != nil {
		set++
		b := NewBasicEnvelopeBuilder()
		if s.BasicEnvelope.InitialSharpness != nil {
			b.InitialSharpness(*s.BasicEnvelope.InitialSharpness)
		}
		for _, p := range s.BasicEnvelope.Points {
			b.ControlPoint(p.Intensity, p.Sharpness, p.DurationMs)
		}
		e, err = b.Build()
	}
	if s.Vendor != nil {
		set++
		e, err = s.Vendor.build()
	}
	switch {
	case set == 0:
		return nil, fmt.Errorf("%w: empty effect", ErrInvalidEffect)
	case set > 1:
		return nil, fmt.Errorf("%w: exactly one effect kind must be set, got %d", ErrInvalidEffect, set)
	case err != nil:
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func (w *WaveformSpec) build() (*Composed, error) {
	repeat := -1
	if w.Repeat != nil {
		repeat = *w.Repeat
	}
	for _, t := range w.TimingsMs {
		if t < 0 {
			return nil, fmt.Errorf("%w: timings must be >= 0", ErrInvalidEffect)
		}
	}
	if w.Amplitudes == nil {
		return OnOffWaveform(w.TimingsMs, repeat)
	}
	return Waveform(w.TimingsMs, w.Amplitudes, repeat)
}

func (p *PrebakedSpec) build() (*Composed, error) {
	id, err := ParseEffectID(p.Effect)
	if err != nil {
		return nil, err
	}
	st, err := ParseStrength(p.Strength)
	if err != nil {
		return nil, err
	}
	c := Prebaked(id, p.Fallback)
	c.Segments[0] = PrebakedSegment{Effect: id, Strength: st, Fallback: p.Fallback}
	return c, nil
}

func (c *CompositionSpec) build() (*Composed, error) {
	if c.RepeatFrom != nil && (*c.RepeatFrom < 0 || *c.RepeatFrom >= len(c.Primitives)) {
		return nil, fmt.Errorf("%w: repeat_from %d out of range", ErrInvalidEffect, *c.RepeatFrom)
	}
	head := NewComposition()
	loop := NewComposition()
	for i, ps := range c.Primitives {
		p, err := ParsePrimitive(ps.Primitive)
		if err != nil {
			return nil, err
		}
		scale := 1.0
		if ps.Scale != nil {
			scale = *ps.Scale
		}
		if c.RepeatFrom != nil && i >= *c.RepeatFrom {
			loop.AddPrimitive(p, scale, ps.DelayMs)
		} else {
			head.AddPrimitive(p, scale, ps.DelayMs)
		}
	}
	if c.RepeatFrom == nil {
		return head.Compose()
	}
	body, err := loop.Compose()
	if err != nil {
		return nil, err
	}
	return head.RepeatIndefinitely(body).Compose()
}

func (r *RampSpec) build() (*Composed, error) {
	b := NewWaveformBuilder(r.InitialAmplitude)
	for i, st := range r.Steps {
		switch {
		case st.SustainMs > 0 && st.TransitionMs == 0:
			b.Sustain(st.SustainMs)
		case st.TransitionMs > 0 && st.SustainMs == 0:
			if st.Amplitude == nil {
				return nil, fmt.Errorf("%w: ramp step %d: transition needs an amplitude", ErrInvalidEffect, i)
			}
			if st.FrequencyHz != nil {
				b.TransitionTo(st.TransitionMs, *st.Amplitude, *st.FrequencyHz)
			} else {
				b.Transition(st.TransitionMs, *st.Amplitude)
			}
		default:
			return nil, fmt.Errorf("%w: ramp step %d must set exactly one of sustain_ms or transition_ms", ErrInvalidEffect, i)
		}
	}
	return b.Build()
}

func (v *VendorSpec) build() (*Vendor, error) {
	st, err := ParseStrength(v.Strength)
	if err != nil {
		return nil, err
	}
	out := NewVendor(v.Data)
	out.Strength = st
	if v.Scale != nil {
		out.Scale = *v.Scale
	}
	return out, nil
}

// CombinedSpec is the JSON form of a combined effect. Exactly one of Mono,
// Stereo or Sequential must be set.
type CombinedSpec struct {
	Mono       *Spec            `json:"mono,omitempty"`
	Stereo     map[int]Spec     `json:"stereo,omitempty"`
	Sequential []SequentialPart `json:"sequential,omitempty"`
}

// SequentialPart is one step of a sequential effect.
type SequentialPart struct {
	Mono    *Spec        `json:"mono,omitempty"`
	Stereo  map[int]Spec `json:"stereo,omitempty"`
	DelayMs int64        `json:"delay_ms,omitempty"`
}

// Build converts c into a validated combined effect.
func (c CombinedSpec) Build() (Combined, error) {
	set := 0
	for _, ok := range []bool{c.Mono != nil, c.Stereo != nil, c.Sequential != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("%w: exactly one of mono, stereo or sequential must be set", ErrInvalidEffect)
	}
	var (
		out Combined
		err error
	)
	switch {
	case c.Mono != nil:
		out, err = buildMono(*c.Mono)
	case c.Stereo != nil:
		out, err = buildStereo(c.Stereo)
	default:
		seq := &Sequential{}
		for i, p := range c.Sequential {
			var part Combined
			switch {
			case p.Mono != nil && p.Stereo == nil:
				part, err = buildMono(*p.Mono)
			case p.Stereo != nil && p.Mono == nil:
				part, err = buildStereo(p.Stereo)
			default:
				err = fmt.Errorf("%w: sequential part %d must set exactly one of mono or stereo", ErrInvalidEffect, i)
			}
			if err != nil {
				return nil, err
			}
			seq.Then(part, p.DelayMs)
		}
		out = seq
	}
	if err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func buildMono(s Spec) (*Mono, error) {
	e, err := s.Build()
	if err != nil {
		return nil, err
	}
	return &Mono{Effect: e}, nil
}

func buildStereo(m map[int]Spec) (*Stereo, error) {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	st := NewStereo()
	for _, id := range ids {
		e, err := m[id].Build()
		if err != nil {
			return nil, fmt.Errorf("actuator %d: %w", id, err)
		}
		st.Add(id, e)
	}
	return st, nil
}
