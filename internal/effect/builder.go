package effect

import "fmt"

// Composition accumulates primitives and effects into one Composed effect.
type Composition struct {
	segs   []Segment
	repeat int
	err    error
}

// NewComposition starts an empty, non-repeating composition.
func NewComposition() *Composition {
	return &Composition{repeat: -1}
}

// AddPrimitive appends a primitive with the given scale and start delay.
func (c *Composition) AddPrimitive(p Primitive, scale float64, delayMs int64) *Composition {
	return c.add(PrimitiveSegment{Primitive: p, Scale: scale, DelayMs: delayMs})
}

// AddEffect appends every segment of a non-repeating effect.
func (c *Composition) AddEffect(e *Composed) *Composition {
	if e.RepeatIndex >= 0 {
		c.fail(fmt.Errorf("%w: cannot append a repeating effect", ErrInvalidEffect))
		return c
	}
	return c.add(e.Segments...)
}

// RepeatIndefinitely appends e and loops it until cancelled. Nothing can be
// added afterwards.
func (c *Composition) RepeatIndefinitely(e *Composed) *Composition {
	if e.RepeatIndex >= 0 {
		c.fail(fmt.Errorf("%w: cannot repeat an effect that already repeats", ErrInvalidEffect))
		return c
	}
	if c.repeat >= 0 {
		c.fail(fmt.Errorf("%w: composition already repeats", ErrInvalidEffect))
		return c
	}
	start := len(c.segs)
	c.add(e.Segments...)
	c.repeat = start
	return c
}

func (c *Composition) add(segs ...Segment) *Composition {
	if c.repeat >= 0 {
		c.fail(fmt.Errorf("%w: cannot add after a repeating effect", ErrInvalidEffect))
		return c
	}
	c.segs = append(c.segs, segs...)
	return c
}

func (c *Composition) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Compose returns the built effect or the first error recorded while adding.
func (c *Composition) Compose() (*Composed, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := &Composed{Segments: append([]Segment(nil), c.segs...), RepeatIndex: c.repeat}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// WaveformBuilder creates legacy ramp waveforms from sustains and
// transitions. Frequency 0 keeps the actuator's default frequency.
type WaveformBuilder struct {
	amp, freq float64
	segs      []Segment
}

// NewWaveformBuilder starts a waveform at the given amplitude.
func NewWaveformBuilder(initialAmplitude float64) *WaveformBuilder {
	return &WaveformBuilder{amp: initialAmplitude}
}

// Sustain holds the current amplitude and frequency.
func (b *WaveformBuilder) Sustain(durationMs int64) *WaveformBuilder {
	b.segs = append(b.segs, StepSegment{Amplitude: b.amp, FrequencyHz: b.freq, Duration: durationMs})
	return b
}

// Transition ramps the amplitude, keeping the current frequency.
func (b *WaveformBuilder) Transition(durationMs int64, amplitude float64) *WaveformBuilder {
	return b.TransitionTo(durationMs, amplitude, b.freq)
}

// TransitionTo ramps both amplitude and frequency.
func (b *WaveformBuilder) TransitionTo(durationMs int64, amplitude, frequencyHz float64) *WaveformBuilder {
	b.segs = append(b.segs, RampSegment{
		StartAmplitude:   b.amp,
		EndAmplitude:     amplitude,
		StartFrequencyHz: b.freq,
		EndFrequencyHz:   frequencyHz,
		Duration:         durationMs,
		Kind:             RampLegacy,
	})
	b.amp, b.freq = amplitude, frequencyHz
	return b
}

// Build returns the non-repeating waveform.
func (b *WaveformBuilder) Build() (*Composed, error) {
	out := &Composed{Segments: append([]Segment(nil), b.segs...), RepeatIndex: -1}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

type controlPoint struct {
	a, f     float64
	duration int64
}

// EnvelopeBuilder creates a waveform envelope from amplitude/frequency
// control points. The envelope starts at zero amplitude.
type EnvelopeBuilder struct {
	initial float64
	points  []controlPoint
}

func NewEnvelopeBuilder() *EnvelopeBuilder { return &EnvelopeBuilder{} }

// InitialFrequency sets the starting frequency. Without it the envelope
// starts at the first control point's frequency.
func (b *EnvelopeBuilder) InitialFrequency(hz float64) *EnvelopeBuilder {
	b.initial = hz
	return b
}

// ControlPoint ramps to amplitude at frequencyHz over durationMs.
func (b *EnvelopeBuilder) ControlPoint(amplitude, frequencyHz float64, durationMs int64) *EnvelopeBuilder {
	b.points = append(b.points, controlPoint{a: amplitude, f: frequencyHz, duration: durationMs})
	return b
}

func (b *EnvelopeBuilder) Build() (*Composed, error) {
	for _, p := range b.points {
		if p.f <= 0 {
			return nil, fmt.Errorf("%w: envelope frequency must be > 0", ErrInvalidEffect)
		}
		if p.duration <= 0 {
			return nil, fmt.Errorf("%w: envelope control point duration must be > 0", ErrInvalidEffect)
		}
	}
	return buildEnvelope(b.points, b.initial, RampEnvelope)
}

// BasicEnvelopeBuilder creates an envelope from intensity/sharpness control
// points in [0,1]. Each actuator translates them to amplitude and frequency
// using its own frequency range. A basic envelope must end at zero intensity.
type BasicEnvelopeBuilder struct {
	initial float64
	points  []controlPoint
}

func NewBasicEnvelopeBuilder() *BasicEnvelopeBuilder { return &BasicEnvelopeBuilder{initial: -1} }

func (b *BasicEnvelopeBuilder) InitialSharpness(s float64) *BasicEnvelopeBuilder {
	b.initial = s
	return b
}

func (b *BasicEnvelopeBuilder) ControlPoint(intensity, sharpness float64, durationMs int64) *BasicEnvelopeBuilder {
	b.points = append(b.points, controlPoint{a: intensity, f: sharpness, duration: durationMs})
	return b
}

func (b *BasicEnvelopeBuilder) Build() (*Composed, error) {
	if n := len(b.points); n > 0 && b.points[n-1].a != 0 {
		return nil, fmt.Errorf("%w: basic envelope must end at zero intensity", ErrInvalidEffect)
	}
	for _, p := range b.points {
		if p.duration <= 0 {
			return nil, fmt.Errorf("%w: envelope control point duration must be > 0", ErrInvalidEffect)
		}
	}
	initial := b.initial
	if initial < 0 {
		initial = 0
		if len(b.points) > 0 {
			initial = b.points[0].f
		}
	}
	return buildEnvelope(b.points, initial, RampBasic)
}

func buildEnvelope(points []controlPoint, initialFreq float64, kind RampKind) (*Composed, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: envelope needs at least one control point", ErrInvalidEffect)
	}
	prevA, prevF := 0.0, initialFreq
	if kind == RampEnvelope && prevF == 0 {
		prevF = points[0].f
	}
	segs := make([]Segment, 0, len(points))
	for _, p := range points {
		segs = append(segs, RampSegment{
			StartAmplitude:   prevA,
			EndAmplitude:     p.a,
			StartFrequencyHz: prevF,
			EndFrequencyHz:   p.f,
			Duration:         p.duration,
			Kind:             kind,
		})
		prevA, prevF = p.a, p.f
	}
	out := &Composed{Segments: segs, RepeatIndex: -1}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
