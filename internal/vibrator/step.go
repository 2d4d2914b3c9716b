package vibrator

import (
	"math"
	"slices"
	"time"

	"github.com/large-farva/vibrator-engine/internal/effect"
	"github.com/large-farva/vibrator-engine/internal/hal"
)

// rampOffAmplitudeMin is the amplitude below which ramp-down stops and the
// actuator is turned off.
const rampOffAmplitudeMin = 1e-3

// step is one unit of work of the conductor. play runs it and returns the
// steps that follow. Clean-up steps only finish hardware that is already
// playing; a vibration ends once nothing but clean-up steps remain.
type step interface {
	name() string
	startTime() time.Time
	cleanup() bool
	play() []step
	// cancel returns the clean-up steps replacing this step on a graceful
	// cancellation.
	cancel() []step
	cancelImmediately()
	// acceptCallback reports whether this step should run right away
	// because actuatorID finished playing.
	acceptCallback(actuatorID int) bool
}

type baseStep struct {
	c     *Conductor
	start time.Time
}

func (s *baseStep) startTime() time.Time    { return s.start }
func (s *baseStep) cleanup() bool           { return false }
func (s *baseStep) cancel() []step          { return nil }
func (s *baseStep) cancelImmediately()      {}
func (s *baseStep) acceptCallback(int) bool { return false }

// startSequentialStep starts one part of a sequential effect on every
// actuator it maps to.
type startSequentialStep struct {
	baseStep
	index int
}

func (s *startSequentialStep) name() string { return "start_sequential" }

func (s *startSequentialStep) play() []step {
	c := s.c
	var next []step
	mapping := c.adapter.Map(c.seq.Parts[s.index])
	var onMax int64
	if len(mapping) > 0 {
		onMax = c.startActuators(mapping, &next)
	}
	switch {
	case onMax > 0:
		c.hooks.NoteVibratorOn(c.vib.Caller.UID, onMax)
		next = append(next, &finishSequentialStep{baseStep: baseStep{c: c}, started: s})
	case onMax == 0:
		if n := s.nextPart(); n != nil {
			next = append(next, n)
		}
	default:
		c.startSteps = 0
	}
	return next
}

func (s *startSequentialStep) nextPart() step {
	i := s.index + 1
	if i >= len(s.c.seq.Parts) {
		return nil
	}
	start := time.Now()
	if !s.c.session {
		start = start.Add(msDuration(s.c.seq.DelaysMs[i]))
	}
	return &startSequentialStep{baseStep: baseStep{c: s.c, start: start}, index: i}
}

// finishSequentialStep runs after every step of a started part and moves on
// to the next part.
type finishSequentialStep struct {
	baseStep
	started *startSequentialStep
}

func (s *finishSequentialStep) name() string  { return "finish_sequential" }
func (s *finishSequentialStep) cleanup() bool { return true }

func (s *finishSequentialStep) play() []step {
	s.c.hooks.NoteVibratorOff(s.c.vib.Caller.UID)
	if n := s.started.nextPart(); n != nil {
		return []step{n}
	}
	return nil
}

func (s *finishSequentialStep) cancel() []step {
	s.cancelImmediately()
	return nil
}

func (s *finishSequentialStep) cancelImmediately() {
	s.c.hooks.NoteVibratorOff(s.c.vib.Caller.UID)
}

// actuatorStep is the shared state of steps that drive one actuator.
// offDeadline is when the last timed call is expected to end, plus the
// callback margin; zero when the actuator is not known to be on.
type actuatorStep struct {
	baseStep
	ctrl             *Controller
	eff              *effect.Composed
	index            int
	offDeadline      time.Time
	onResult         int64
	callbackReceived bool
}

func (s *actuatorStep) onDuration() int64 { return s.onResult }

func (s *actuatorStep) effectDurationMs() int64 {
	if s.eff == nil {
		return -1
	}
	return s.eff.DurationMs()
}

func (s *actuatorStep) acceptCallback(id int) bool {
	if id != s.ctrl.ID() {
		return false
	}
	accept := s.offDeadline.After(time.Now())
	s.offDeadline = time.Time{}
	s.callbackReceived = true
	return accept
}

func (s *actuatorStep) cancel() []step {
	return []step{newCompleteStep(s.c, time.Now(), true, s.ctrl, s.offDeadline)}
}

func (s *actuatorStep) cancelImmediately() { s.stop() }

func (s *actuatorStep) stop() {
	s.ctrl.Off()
	s.offDeadline = time.Time{}
}

func (s *actuatorStep) handleOnResult(res int64) int64 {
	s.onResult = res
	if res > 0 {
		s.c.successfulOns++
		if !s.c.session {
			s.offDeadline = deadline(time.Now(), res, s.c.opts.CallbacksExtraTimeout)
		}
	}
	return res
}

// next returns the step for the segment played segments after this one,
// looping back to the repeat index, or a completion step at the end.
func (s *actuatorStep) next(start time.Time, played int) []step {
	if s.c.session {
		start = time.Now()
	}
	idx := s.index + played
	n := len(s.eff.Segments)
	if idx >= n && s.eff.RepeatIndex >= 0 {
		loop := n - s.eff.RepeatIndex
		idx = s.eff.RepeatIndex + (idx-n)%loop
	}
	if idx >= n {
		return []step{newCompleteStep(s.c, start, false, s.ctrl, s.offDeadline)}
	}
	return []step{s.c.nextVibrateStep(start, s.ctrl, s.eff, idx, s.offDeadline)}
}

// nextAfterPlayback schedules the next segment for when this step's timed
// call is expected to end.
func (s *actuatorStep) nextAfterPlayback(played int) []step {
	start := time.Now()
	if s.onResult > 0 {
		start = start.Add(msDuration(s.onResult))
		s.c.silent[s.ctrl.ID()] = 0
	} else if s.silentLoop(played) {
		s.c.log.Debug("repeating effect plays nothing, finishing actuator", "actuator", s.ctrl.ID())
		s.c.silent[s.ctrl.ID()] = 0
		return []step{newCompleteStep(s.c, start, false, s.ctrl, s.offDeadline)}
	}
	return s.next(start, played)
}

// silentLoop counts repeating segments that played nothing in a row and
// reports whether a whole loop of them went by.
func (s *actuatorStep) silentLoop(played int) bool {
	repeat := s.eff.RepeatIndex
	if repeat < 0 {
		return false
	}
	n := len(s.eff.Segments)
	id := s.ctrl.ID()
	for k := 0; k < played; k++ {
		idx := s.index + k
		if idx >= n {
			idx = repeat + (idx-n)%(n-repeat)
		}
		if idx >= repeat {
			s.c.silent[id]++
		}
	}
	return s.c.silent[id] >= n-repeat
}

func (s *actuatorStep) child(start time.Time, index int) actuatorStep {
	return actuatorStep{
		baseStep:    baseStep{c: s.c, start: start},
		ctrl:        s.ctrl,
		eff:         s.eff,
		index:       index,
		offDeadline: s.offDeadline,
	}
}

// setAmplitudeStep plays one fixed step of a waveform. Runs of non-zero
// steps share a single On call; each step only changes the amplitude.
type setAmplitudeStep struct {
	actuatorStep
}

func (s *setAmplitudeStep) name() string { return "set_amplitude" }

// acceptCallback only runs this step early when the actuator was supposed
// to still be on, so it can be turned back on right away.
func (s *setAmplitudeStep) acceptCallback(id int) bool {
	if !s.actuatorStep.acceptCallback(id) {
		return false
	}
	return time.Now().Before(s.start) && s.ctrl.CurrentAmplitude() > 0
}

func (s *setAmplitudeStep) play() []step {
	now := time.Now()
	if s.callbackReceived && now.Before(s.start) {
		s.turnBackOn(s.start.Sub(now))
		return []step{&setAmplitudeStep{actuatorStep: s.child(s.start, s.index)}}
	}
	seg, ok := s.eff.Segments[s.index].(effect.StepSegment)
	if !ok || seg.Duration == 0 {
		return s.next(now, 1)
	}
	s.c.silent[s.ctrl.ID()] = 0
	var out []step
	if seg.Amplitude == 0 {
		if s.c.session {
			return s.next(now, 1)
		}
		if s.offDeadline.After(now) {
			s.stop()
		}
	} else {
		if s.actuatorOff() {
			if d := s.c.onDurationFrom(s.eff, s.index); d > 0 {
				s.handleOnResult(s.ctrl.On(d, s.c.completion))
			}
		}
		if s.c.holdAmplitude {
			out = append(out, &amplitudeStep{baseStep: baseStep{c: s.c, start: now}, ctrl: s.ctrl, amplitude: seg.Amplitude})
		} else {
			s.ctrl.SetAmplitude(seg.Amplitude)
		}
	}
	return append(out, s.next(s.start.Add(msDuration(seg.Duration)), 1)...)
}

// actuatorOff reports whether the actuator is expected to be off when this
// step starts: the last timed call has ended, with or without its callback.
func (s *setAmplitudeStep) actuatorOff() bool {
	if s.c.session {
		return !s.ctrl.IsVibrating()
	}
	if s.offDeadline.IsZero() {
		return true
	}
	return !s.start.Before(s.offDeadline.Add(-s.c.opts.CallbacksExtraTimeout))
}

// turnBackOn restarts an actuator that finished early, for the time left
// until this step plus this step's own on-time, at the amplitude it was
// playing.
func (s *setAmplitudeStep) turnBackOn(remaining time.Duration) {
	d := s.c.onDurationFrom(s.eff, s.index)
	if d <= 0 {
		return
	}
	amp := s.ctrl.CurrentAmplitude()
	if s.handleOnResult(s.ctrl.On(d+remaining.Milliseconds(), s.c.completion)) > 0 {
		s.ctrl.SetAmplitude(amp)
	}
}

// amplitudeStep applies an amplitude held back while a synced start was
// being prepared.
type amplitudeStep struct {
	baseStep
	ctrl      *Controller
	amplitude float64
}

func (s *amplitudeStep) name() string { return "amplitude" }

func (s *amplitudeStep) play() []step {
	s.ctrl.SetAmplitude(s.amplitude)
	return nil
}

type prebakedStep struct {
	actuatorStep
}

func (s *prebakedStep) name() string { return "prebaked" }

func (s *prebakedStep) play() []step {
	seg := s.eff.Segments[s.index].(effect.PrebakedSegment)
	res := s.handleOnResult(s.ctrl.PerformEffect(seg, s.c.completion))
	if res == 0 && seg.Fallback {
		if fb := s.c.fallbackFor(seg.Effect, s.ctrl); fb != nil {
			st := s.c.nextVibrateStep(s.start, s.ctrl, replaceSegment(s.eff, s.index, fb), s.index, s.offDeadline)
			out := st.play()
			if ds, ok := st.(durationStep); ok {
				s.onResult = ds.onDuration()
			}
			return out
		}
	}
	return s.nextAfterPlayback(1)
}

func replaceSegment(c *effect.Composed, index int, with *effect.Composed) *effect.Composed {
	segs := make([]effect.Segment, 0, len(c.Segments)+len(with.Segments)-1)
	segs = append(segs, c.Segments[:index]...)
	segs = append(segs, with.Segments...)
	segs = append(segs, c.Segments[index+1:]...)
	repeat := c.RepeatIndex
	if repeat > index {
		repeat += len(with.Segments) - 1
	}
	return &effect.Composed{Segments: segs, RepeatIndex: repeat}
}

type primitivesStep struct {
	actuatorStep
}

func (s *primitivesStep) name() string { return "compose_primitives" }

func (s *primitivesStep) play() []step {
	limit := s.ctrl.Info().CompositionSizeMax
	if limit <= 0 {
		limit = len(s.eff.Segments)
	}
	prims, _ := unroll[effect.PrimitiveSegment](s.eff, s.index, limit)
	if len(prims) == 0 {
		return s.next(time.Now(), 1)
	}
	s.handleOnResult(s.ctrl.ComposePrimitives(prims, s.c.completion))
	return s.nextAfterPlayback(len(prims))
}

type pwleStep struct {
	actuatorStep
}

func (s *pwleStep) name() string { return "compose_pwle" }

func (s *pwleStep) play() []step {
	info := s.ctrl.Info()
	limit := info.PwleSizeMax
	if limit <= 0 {
		limit = len(s.eff.Segments)
	}
	ramps, more := unroll[effect.RampSegment](s.eff, s.index, limit)
	if len(ramps) == 0 {
		return s.next(time.Now(), 1)
	}
	if more {
		ramps = ramps[:splitIndex(len(ramps), func(i int) float64 { return ramps[i].EndAmplitude })]
	}
	braking := hal.BrakingNone
	if info.SupportsBraking(hal.BrakingClab) {
		braking = hal.BrakingClab
	}
	s.handleOnResult(s.ctrl.ComposePwle(ramps, braking, s.c.completion))
	return s.nextAfterPlayback(len(ramps))
}

type pwleV2Step struct {
	actuatorStep
}

func (s *pwleV2Step) name() string { return "compose_pwle_v2" }

func (s *pwleV2Step) play() []step {
	info := s.ctrl.Info()
	limit := info.MaxEnvelopeEffectSize - 1
	if limit <= 0 {
		limit = len(s.eff.Segments)
	}
	ramps, more := unroll[effect.RampSegment](s.eff, s.index, limit)
	if len(ramps) == 0 {
		return s.next(time.Now(), 1)
	}
	if more {
		ramps = ramps[:splitIndex(len(ramps), func(i int) float64 { return ramps[i].EndAmplitude })]
	}
	points := make([]hal.PwlePoint, 0, len(ramps)+1)
	points = append(points, hal.PwlePoint{
		Amplitude:   ramps[0].StartAmplitude,
		FrequencyHz: fillFrequency(ramps[0].StartFrequencyHz, info),
	})
	for _, r := range ramps {
		points = append(points, hal.PwlePoint{
			Amplitude:   r.EndAmplitude,
			FrequencyHz: fillFrequency(r.EndFrequencyHz, info),
			TimeMs:      r.Duration,
		})
	}
	s.handleOnResult(s.ctrl.ComposePwleV2(points, s.c.completion))
	return s.nextAfterPlayback(len(ramps))
}

// unroll collects consecutive segments of type T from start, continuing
// across the repeat boundary, up to limit. more reports whether a segment of
// type T still follows a full window.
func unroll[T effect.Segment](c *effect.Composed, start, limit int) (out []T, more bool) {
	n := len(c.Segments)
	i := start
	wrap := func() bool {
		if i < n {
			return true
		}
		if c.RepeatIndex < 0 {
			return false
		}
		i = c.RepeatIndex
		return true
	}
	for len(out) < limit && wrap() {
		seg, ok := c.Segments[i].(T)
		if !ok {
			return out, false
		}
		out = append(out, seg)
		i++
	}
	if len(out) < limit || !wrap() {
		return out, false
	}
	_, more = c.Segments[i].(T)
	return out, more
}

type vendorStep struct {
	actuatorStep
	vendor *effect.Vendor
}

func (s *vendorStep) name() string { return "vendor" }

func (s *vendorStep) play() []step {
	res := s.ctrl.PerformVendorEffect(s.vendor, s.c.completion)
	if res > 0 {
		res = min(res, s.c.opts.VendorMaxDuration.Milliseconds())
	}
	s.handleOnResult(res)
	start := time.Now()
	if res > 0 {
		start = start.Add(msDuration(res))
	}
	if s.c.session {
		start = time.Now()
	}
	return []step{newCompleteStep(s.c, start, false, s.ctrl, s.offDeadline)}
}

// completeStep ends an actuator's effect: it waits for the hardware to
// finish, ramps the amplitude down when the waveform ended while still on,
// and turns the actuator off.
type completeStep struct {
	actuatorStep
	cancelled bool
}

func newCompleteStep(c *Conductor, start time.Time, cancelled bool, ctrl *Controller, offDeadline time.Time) *completeStep {
	return &completeStep{
		actuatorStep: actuatorStep{baseStep: baseStep{c: c, start: start}, ctrl: ctrl, offDeadline: offDeadline},
		cancelled:    cancelled,
	}
}

func (s *completeStep) name() string { return "complete" }

func (s *completeStep) play() []step {
	if s.c.session && !s.cancelled {
		return nil
	}
	now := time.Now()
	var remaining time.Duration
	if !s.offDeadline.IsZero() {
		remaining = s.offDeadline.Sub(now) - s.c.opts.CallbacksExtraTimeout
	}
	rampDown := min(remaining, s.c.opts.RampDown)
	stepDur := s.c.opts.RampStep
	amp := s.ctrl.CurrentAmplitude()
	if amp < rampOffAmplitudeMin || rampDown <= stepDur {
		if s.cancelled {
			return []step{newTurnOffStep(s.c, now, s.ctrl, time.Time{})}
		}
		return []step{newTurnOffStep(s.c, s.offDeadline, s.ctrl, s.offDeadline)}
	}
	delta := amp / float64(rampDown/stepDur)
	offAt := s.offDeadline
	start := s.start
	if s.cancelled {
		offAt = time.Time{}
		start = now
	}
	return []step{&rampOffStep{
		actuatorStep: actuatorStep{baseStep: baseStep{c: s.c, start: start}, ctrl: s.ctrl, offDeadline: offAt},
		target:       amp - delta,
		delta:        delta,
	}}
}

func (s *completeStep) cancel() []step {
	if s.cancelled {
		return []step{newTurnOffStep(s.c, time.Now(), s.ctrl, time.Time{})}
	}
	return s.actuatorStep.cancel()
}

// rampOffStep lowers the amplitude by delta every ramp step until it is
// negligible, then turns the actuator off.
type rampOffStep struct {
	actuatorStep
	target, delta float64
}

func (s *rampOffStep) name() string  { return "ramp_off" }
func (s *rampOffStep) cleanup() bool { return true }

func (s *rampOffStep) play() []step {
	if s.target < rampOffAmplitudeMin {
		return []step{newTurnOffStep(s.c, time.Now(), s.ctrl, time.Time{})}
	}
	s.ctrl.SetAmplitude(s.target)
	next := s.target - s.delta
	if next < rampOffAmplitudeMin {
		return []step{newTurnOffStep(s.c, s.offDeadline, s.ctrl, s.offDeadline)}
	}
	return []step{&rampOffStep{
		actuatorStep: actuatorStep{
			baseStep:    baseStep{c: s.c, start: s.start.Add(s.c.opts.RampStep)},
			ctrl:        s.ctrl,
			offDeadline: s.offDeadline,
		},
		target: next,
		delta:  s.delta,
	}}
}

func (s *rampOffStep) cancel() []step {
	return []step{newTurnOffStep(s.c, time.Now(), s.ctrl, time.Time{})}
}

// turnOffStep turns the actuator off at its start time, or earlier when the
// hardware reports completion.
type turnOffStep struct {
	actuatorStep
}

func newTurnOffStep(c *Conductor, start time.Time, ctrl *Controller, offDeadline time.Time) *turnOffStep {
	if start.IsZero() {
		start = time.Now()
	}
	return &turnOffStep{actuatorStep{baseStep: baseStep{c: c, start: start}, ctrl: ctrl, offDeadline: offDeadline}}
}

func (s *turnOffStep) name() string  { return "turn_off" }
func (s *turnOffStep) cleanup() bool { return true }

func (s *turnOffStep) play() []step {
	if s.ctrl.IsVibrating() {
		s.stop()
	}
	return nil
}

func (s *turnOffStep) cancel() []step {
	return []step{newTurnOffStep(s.c, time.Now(), s.ctrl, time.Time{})}
}

// syncCapabilities returns the manager capabilities needed to start the
// mapped effects together.
func syncCapabilities(mapping map[int]effect.Effect) hal.SyncCapability {
	var prepare hal.SyncCapability
	for _, e := range mapping {
		switch v := e.(type) {
		case *effect.Vendor:
			prepare |= hal.SyncCapPreparePerform
		case *effect.Composed:
			if len(v.Segments) == 0 {
				continue
			}
			switch v.Segments[0].(type) {
			case effect.StepSegment:
				prepare |= hal.SyncCapPrepareOn
			case effect.PrebakedSegment:
				prepare |= hal.SyncCapPreparePerform
			case effect.PrimitiveSegment:
				prepare |= hal.SyncCapPrepareCompose
			}
		}
	}
	mixed := func(c hal.SyncCapability) bool { return prepare&c != 0 && prepare&^c != 0 }
	trigger := hal.SyncCapability(0)
	if mixed(hal.SyncCapPrepareOn) {
		trigger |= hal.SyncCapMixedTriggerOn
	}
	if mixed(hal.SyncCapPreparePerform) {
		trigger |= hal.SyncCapMixedTriggerPerform
	}
	if mixed(hal.SyncCapPrepareCompose) {
		trigger |= hal.SyncCapMixedTriggerCompose
	}
	return hal.SyncCapSync | prepare | trigger
}

func sortedIDs(mapping map[int]effect.Effect) []int {
	ids := make([]int, 0, len(mapping))
	for id := range mapping {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func msDuration(ms int64) time.Duration {
	const maxMs = math.MaxInt64 / int64(time.Millisecond)
	return time.Duration(min(max(ms, 0), maxMs)) * time.Millisecond
}

func deadline(now time.Time, ms int64, extra time.Duration) time.Time {
	return now.Add(msDuration(ms)).Add(extra)
}
