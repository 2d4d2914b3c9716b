package vibrator

import (
	"math"
	"slices"

	"github.com/large-farva/vibrator-engine/internal/effect"
	"github.com/large-farva/vibrator-engine/internal/hal"
)

// DeviceAdapter maps effects onto the available actuators and rewrites each
// actuator's effect into segments that actuator can play.
type DeviceAdapter struct {
	ctrls      map[int]*Controller
	ids        []int
	rampStepMs int64
}

// NewDeviceAdapter creates an adapter over ctrls. Ramps on actuators without
// PWLE support are played as steps of rampStepMs.
func NewDeviceAdapter(ctrls []*Controller, rampStepMs int64) *DeviceAdapter {
	a := &DeviceAdapter{ctrls: make(map[int]*Controller, len(ctrls)), rampStepMs: max(rampStepMs, 1)}
	for _, c := range ctrls {
		a.ctrls[c.ID()] = c
		a.ids = append(a.ids, c.ID())
	}
	slices.Sort(a.ids)
	return a
}

// ActuatorIDs lists the available actuators in ascending order.
func (a *DeviceAdapter) ActuatorIDs() []int { return slices.Clone(a.ids) }

// Controller returns the controller of an actuator, or nil.
func (a *DeviceAdapter) Controller(id int) *Controller { return a.ctrls[id] }

// Controllers returns every controller in id order.
func (a *DeviceAdapter) Controllers() []*Controller {
	out := make([]*Controller, 0, len(a.ids))
	for _, id := range a.ids {
		out = append(out, a.ctrls[id])
	}
	return out
}

// Map assigns the effects of one mono or stereo part to actuators. Mono
// effects play on every actuator; stereo entries for missing actuators are
// dropped. Each effect is adapted to its actuator.
func (a *DeviceAdapter) Map(part effect.Combined) map[int]effect.Effect {
	out := map[int]effect.Effect{}
	switch p := part.(type) {
	case *effect.Mono:
		for _, id := range a.ids {
			out[id] = a.Adapt(p.Effect, id)
		}
	case *effect.Stereo:
		for id, e := range p.Effects {
			if _, ok := a.ctrls[id]; ok {
				out[id] = a.Adapt(e, id)
			}
		}
	}
	return out
}

// Adapt rewrites e for one actuator. Zero-length steps and ramps are
// dropped; basic envelopes are translated to amplitude and frequency; ramps
// become PWLE-ready segments on actuators that compose PWLEs and fixed steps
// everywhere else.
func (a *DeviceAdapter) Adapt(e effect.Effect, actuatorID int) effect.Effect {
	c, ok := e.(*effect.Composed)
	ctrl := a.ctrls[actuatorID]
	if !ok || ctrl == nil {
		return e
	}
	info := ctrl.Info()
	out := c.DropZeroDurations()
	translateBasicRamps(out, info.Frequency)
	if info.Has(hal.CapComposePwle) || info.Has(hal.CapComposePwleV2) {
		stepsToRamps(out, info)
		if !info.Has(hal.CapComposePwleV2) {
			clipRamps(out, info.Frequency)
		}
		splitLongRamps(out, info)
		return out
	}
	return rampsToSteps(out, a.rampStepMs)
}

// translateBasicRamps maps intensity to amplitude and sharpness onto the
// actuator's usable frequency range.
func translateBasicRamps(c *effect.Composed, p hal.FrequencyProfile) {
	lo, hi := p.SharpnessRange()
	toHz := func(s float64) float64 {
		if hi <= 0 {
			return 0
		}
		return lo + s*(hi-lo)
	}
	for i, s := range c.Segments {
		r, ok := s.(effect.RampSegment)
		if !ok || r.Kind != effect.RampBasic {
			continue
		}
		r.StartFrequencyHz = toHz(r.StartFrequencyHz)
		r.EndFrequencyHz = toHz(r.EndFrequencyHz)
		r.Kind = effect.RampEnvelope
		c.Segments[i] = r
	}
}

// stepsToRamps turns steps that need frequency control, and every step run
// next to a ramp, into flat ramps so they compose in the same PWLE.
func stepsToRamps(c *effect.Composed, info hal.Info) {
	segs := c.Segments
	for i, s := range segs {
		if st, ok := s.(effect.StepSegment); ok && st.FrequencyHz != 0 {
			segs[i] = flatRamp(st, info)
		}
	}
	for i := range segs {
		if _, ok := segs[i].(effect.RampSegment); !ok {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			st, ok := segs[j].(effect.StepSegment)
			if !ok {
				break
			}
			segs[j] = flatRamp(st, info)
		}
		for j := i + 1; j < len(segs); j++ {
			st, ok := segs[j].(effect.StepSegment)
			if !ok {
				break
			}
			segs[j] = flatRamp(st, info)
		}
	}
	for i, s := range segs {
		if r, ok := s.(effect.RampSegment); ok {
			r.StartFrequencyHz = fillFrequency(r.StartFrequencyHz, info)
			r.EndFrequencyHz = fillFrequency(r.EndFrequencyHz, info)
			segs[i] = r
		}
	}
}

func flatRamp(st effect.StepSegment, info hal.Info) effect.RampSegment {
	hz := fillFrequency(st.FrequencyHz, info)
	return effect.RampSegment{
		StartAmplitude:   st.Amplitude,
		EndAmplitude:     st.Amplitude,
		StartFrequencyHz: hz,
		EndFrequencyHz:   hz,
		Duration:         st.Duration,
		Kind:             effect.RampLegacy,
	}
}

func fillFrequency(hz float64, info hal.Info) float64 {
	if hz == 0 {
		return info.Frequency.ResonantHz
	}
	return hz
}

// clipRamps keeps ramps inside the frequency range and under the maximum
// amplitude the actuator can reach at each frequency.
func clipRamps(c *effect.Composed, p hal.FrequencyProfile) {
	if p.Empty() {
		return
	}
	lo, hi := p.MinHz, p.MaxHz()
	for i, s := range c.Segments {
		r, ok := s.(effect.RampSegment)
		if !ok {
			continue
		}
		r.StartFrequencyHz = min(max(r.StartFrequencyHz, lo), hi)
		r.EndFrequencyHz = min(max(r.EndFrequencyHz, lo), hi)
		r.StartAmplitude = min(r.StartAmplitude, p.MaxAmplitude(r.StartFrequencyHz))
		r.EndAmplitude = min(r.EndAmplitude, p.MaxAmplitude(r.EndFrequencyHz))
		c.Segments[i] = r
	}
}

// splitLongRamps cuts ramps longer than the actuator accepts in one PWLE
// primitive or envelope control point into equal interpolated pieces.
func splitLongRamps(c *effect.Composed, info hal.Info) {
	limit := info.PwlePrimitiveMaxMs
	if info.Has(hal.CapComposePwleV2) && info.MaxEnvelopePointMs > 0 {
		limit = info.MaxEnvelopePointMs
	}
	if limit <= 0 {
		return
	}
	out := make([]effect.Segment, 0, len(c.Segments))
	repeat := c.RepeatIndex
	for i, s := range c.Segments {
		if i == c.RepeatIndex {
			repeat = len(out)
		}
		r, ok := s.(effect.RampSegment)
		if !ok || r.Duration <= limit {
			out = append(out, s)
			continue
		}
		n := int((r.Duration + limit - 1) / limit)
		var elapsed int64
		for k := 0; k < n; k++ {
			d := r.Duration / int64(n)
			if k == n-1 {
				d = r.Duration - elapsed
			}
			from := float64(elapsed) / float64(r.Duration)
			to := float64(elapsed+d) / float64(r.Duration)
			out = append(out, effect.RampSegment{
				StartAmplitude:   lerp(r.StartAmplitude, r.EndAmplitude, from),
				EndAmplitude:     lerp(r.StartAmplitude, r.EndAmplitude, to),
				StartFrequencyHz: lerp(r.StartFrequencyHz, r.EndFrequencyHz, from),
				EndFrequencyHz:   lerp(r.StartFrequencyHz, r.EndFrequencyHz, to),
				Duration:         d,
				Kind:             r.Kind,
			})
			elapsed += d
		}
	}
	c.Segments = out
	c.RepeatIndex = repeat
}

// rampsToSteps replaces each ramp with fixed steps of stepMs. The last step
// takes whatever time remains at the ramp's end amplitude.
func rampsToSteps(c *effect.Composed, stepMs int64) *effect.Composed {
	out := &effect.Composed{Segments: make([]effect.Segment, 0, len(c.Segments)), RepeatIndex: -1}
	for i, s := range c.Segments {
		if i == c.RepeatIndex {
			out.RepeatIndex = len(out.Segments)
		}
		r, ok := s.(effect.RampSegment)
		if !ok {
			out.Segments = append(out.Segments, s)
			continue
		}
		if r.StartAmplitude == r.EndAmplitude {
			out.Segments = append(out.Segments, effect.StepSegment{Amplitude: r.EndAmplitude, Duration: r.Duration})
			continue
		}
		n := (r.Duration + stepMs - 1) / stepMs
		for k := int64(0); k < n-1; k++ {
			pos := float64(k) / float64(n)
			out.Segments = append(out.Segments, effect.StepSegment{
				Amplitude: lerp(r.StartAmplitude, r.EndAmplitude, pos),
				Duration:  stepMs,
			})
		}
		out.Segments = append(out.Segments, effect.StepSegment{
			Amplitude: r.EndAmplitude,
			Duration:  r.Duration - stepMs*(n-1),
		})
	}
	return out
}

func lerp(a, b, t float64) float64 {
	if math.IsNaN(t) {
		return a
	}
	return a + (b-a)*t
}
