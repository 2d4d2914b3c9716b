package vibrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/large-farva/vibrator-engine/internal/effect"
	"github.com/large-farva/vibrator-engine/internal/hal"
	"github.com/large-farva/vibrator-engine/internal/scaler"
)

// ConductorConfig carries the collaborators of a Conductor.
type ConductorConfig struct {
	// Session plays effects back to back as they arrive in a vendor
	// session: no timing waits, no off calls and no ramp-down.
	Session bool
	Adapter *DeviceAdapter
	Scaler  *scaler.Scaler
	Hooks   ManagerHooks
	Params  ParamsProvider
	Options Options
	Logger  *slog.Logger
}

// Conductor plays one vibration as a queue of timed steps. A single worker
// goroutine drives it through Prepare, WaitUntilNextStepIsDue, RunNextStep
// and EndStatus; the Notify methods may be called from any goroutine.
type Conductor struct {
	vib     *Vibration
	session bool
	adapter *DeviceAdapter
	scaler  *scaler.Scaler
	hooks   ManagerHooks
	params  ParamsProvider
	opts    Options
	log     *slog.Logger

	inbox   *inbox
	release sync.Once

	// Owned by the worker.
	seq                  *effect.Sequential
	fallbacks            map[effect.EffectID]effect.Effect
	silent               map[int]int
	queue                stepQueue
	ready                []step
	pending              int
	startSteps           int
	successfulOns        int
	holdAmplitude        bool
	synced               []int
	cancelled            bool
	cancelledImmediately bool
	cancelStatus         Status
}

// NewConductor prepares v for playback on the actuators of cfg.Adapter.
func NewConductor(v *Vibration, cfg ConductorConfig) *Conductor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	sc := cfg.Scaler
	if sc == nil {
		sc = scaler.New(scaler.Options{})
	}
	hooks := cfg.Hooks
	if hooks == nil {
		hooks = NopHooks{}
	}
	return &Conductor{
		vib:       v,
		session:   cfg.Session,
		adapter:   cfg.Adapter,
		scaler:    sc,
		hooks:     hooks,
		params:    cfg.Params,
		opts:      cfg.Options.withDefaults(),
		log:       logger.With("vibration", v.ID),
		inbox:     newInbox(),
		fallbacks: map[effect.EffectID]effect.Effect{},
		silent:    map[int]int{},
	}
}

// Vibration returns the vibration being played.
func (c *Conductor) Vibration() *Vibration { return c.vib }

// Adapter returns the actuators the vibration plays on.
func (c *Conductor) Adapter() *DeviceAdapter { return c.adapter }

// Session reports whether the vibration plays inside a vibration session.
func (c *Conductor) Session() bool { return c.session }

func (c *Conductor) completion(actuatorID int, stepID uint64) {
	c.NotifyActuatorComplete(actuatorID, stepID)
}

// Prepare scales the effect and queues its first part. It must run on the
// worker before any other step method.
func (c *Conductor) Prepare() {
	adaptive := c.adaptiveScale()
	usage := c.vib.Caller.Usage
	scale := func(e effect.Effect) effect.Effect { return c.scaler.Scale(e, usage, adaptive) }

	seq := effect.AsSequential(c.vib.Effect)
	c.seq = &effect.Sequential{DelaysMs: seq.DelaysMs}
	for _, part := range seq.Parts {
		c.seq.Parts = append(c.seq.Parts, scalePart(part, scale))
	}
	for id, fb := range c.vib.Fallbacks {
		c.fallbacks[id] = scale(fb)
	}

	start := time.Now()
	if !c.session && len(c.seq.DelaysMs) > 0 {
		start = start.Add(msDuration(c.seq.DelaysMs[0]))
	}
	c.startSteps = len(c.seq.Parts)
	if c.startSteps > 0 {
		c.enqueue(&startSequentialStep{baseStep: baseStep{c: c, start: start}})
	}
	c.vib.markStarted()
	c.log.Debug("vibration prepared", "parts", c.startSteps, "adaptive_scale", adaptive, "session", c.session)
}

func scalePart(part effect.Combined, scale func(effect.Effect) effect.Effect) effect.Combined {
	switch p := part.(type) {
	case *effect.Mono:
		return &effect.Mono{Effect: scale(p.Effect)}
	case *effect.Stereo:
		out := &effect.Stereo{Effects: make(map[int]effect.Effect, len(p.Effects))}
		for id, e := range p.Effects {
			out.Effects[id] = scale(e)
		}
		return out
	}
	return part
}

func (c *Conductor) adaptiveScale() float64 {
	if c.params == nil {
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ParamsTimeout)
	defer cancel()
	s, err := c.params.AdaptiveScale(ctx, c.vib.Caller.Usage)
	if err != nil {
		c.log.Warn("vibration params unavailable, playing unscaled", "err", err)
		return 1
	}
	return s
}

// IsFinished reports whether no step is left to run.
func (c *Conductor) IsFinished() bool {
	if c.cancelledImmediately {
		return true
	}
	return len(c.ready) == 0 && c.queue.Len() == 0
}

// WaitUntilNextStepIsDue handles pending signals and sleeps until the next
// step is due. It returns false when woken early; the caller re-checks
// IsFinished and calls again.
func (c *Conductor) WaitUntilNextStepIsDue() bool {
	c.processSignals()
	if c.cancelledImmediately {
		return false
	}
	if len(c.ready) > 0 {
		return true
	}
	next := c.queue.peek()
	if next == nil || next.startTime().IsZero() {
		return true
	}
	wait := time.Until(next.startTime())
	if wait <= 0 {
		return true
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-c.inbox.notify:
		return false
	case <-t.C:
		return true
	}
}

// RunNextStep plays the next step and queues whatever follows it.
func (c *Conductor) RunNextStep() {
	var s step
	if len(c.ready) > 0 {
		s = c.ready[0]
		c.ready = c.ready[1:]
	} else if c.queue.Len() > 0 {
		s = c.queue.pop()
	} else {
		return
	}
	c.log.Debug("step", "type", s.name())
	next := s.play()
	if !s.cleanup() {
		c.pending--
	}
	if _, ok := s.(*startSequentialStep); ok && c.startSteps > 0 {
		c.startSteps--
	}
	for _, n := range next {
		c.enqueue(n)
	}
}

func (c *Conductor) enqueue(s step) {
	c.queue.push(s)
	if !s.cleanup() {
		c.pending++
	}
}

// EndStatus returns the outcome once it is decided: the cancel status when
// cancelled, otherwise FINISHED or IGNORED_UNSUPPORTED when every playing
// step is done. Clean-up steps may still be queued.
func (c *Conductor) EndStatus() (Status, bool) {
	if c.cancelled {
		return c.cancelStatus, true
	}
	if c.pending > 0 || c.startSteps > 0 {
		return StatusPending, false
	}
	return c.outcome(), true
}

// FinalStatus is EndStatus for a conductor that stopped without deciding.
func (c *Conductor) FinalStatus() Status {
	if st, ok := c.EndStatus(); ok {
		return st
	}
	return c.outcome()
}

func (c *Conductor) outcome() Status {
	if c.successfulOns > 0 {
		return StatusFinished
	}
	return StatusIgnoredUnsupported
}

// Report ends the vibration with st and logs it. It returns false when the
// vibration had already ended.
func (c *Conductor) Report(st Status) bool {
	if !c.vib.End(st) {
		return false
	}
	c.log.Info("vibration ended", "status", st, "uid", c.vib.Caller.UID, "usage", c.vib.Caller.Usage)
	return true
}

// Release tells the manager the worker is done with this vibration. Only
// the first call has an effect.
func (c *Conductor) Release() {
	c.release.Do(func() { c.hooks.OnVibrationThreadReleased(c.vib.ID) })
}

// NotifyCancelled asks the worker to stop. The first status wins; a later
// immediate request still upgrades a graceful one. Immediate cancellation
// turns the actuators off right away from the calling goroutine.
func (c *Conductor) NotifyCancelled(st Status, immediate bool) {
	b := c.inbox
	b.mu.Lock()
	if b.cancel == StatusPending {
		b.cancel = st
	}
	escalate := immediate && !b.immediate
	if immediate {
		b.immediate = true
	}
	b.mu.Unlock()
	b.wake()
	if escalate {
		for _, ctrl := range c.adapter.Controllers() {
			ctrl.Off()
		}
	}
}

// NotifyActuatorComplete records hardware completion of step stepID on an
// actuator. Callbacks for superseded steps are dropped by the worker.
func (c *Conductor) NotifyActuatorComplete(actuatorID int, stepID uint64) {
	b := c.inbox
	b.mu.Lock()
	b.completions = append(b.completions, completion{actuatorID: actuatorID, stepID: stepID})
	b.mu.Unlock()
	b.wake()
}

// NotifySyncedVibrationComplete records completion of a synced start on
// every actuator that took part in it.
func (c *Conductor) NotifySyncedVibrationComplete() {
	b := c.inbox
	b.mu.Lock()
	b.synced = true
	b.mu.Unlock()
	b.wake()
}

func (c *Conductor) processSignals() {
	sig := c.inbox.drain()
	if sig.cancel != StatusPending {
		switch {
		case sig.immediate && !c.cancelledImmediately:
			c.cancelNow(sig.cancel)
		case !c.cancelled:
			c.cancelGracefully(sig.cancel)
		}
	}
	if c.cancelledImmediately {
		return
	}
	for _, cb := range sig.completions {
		ctrl := c.adapter.Controller(cb.actuatorID)
		if ctrl == nil || ctrl.CurrentStep() != cb.stepID {
			c.log.Debug("stale callback dropped", "actuator", cb.actuatorID, "step", cb.stepID)
			continue
		}
		c.acceptCompletion(cb.actuatorID)
	}
	if sig.synced {
		for _, id := range c.synced {
			c.acceptCompletion(id)
		}
		c.synced = nil
	}
}

func (c *Conductor) acceptCompletion(actuatorID int) {
	if s := c.queue.take(actuatorID); s != nil {
		c.ready = append(c.ready, s)
	}
}

func (c *Conductor) takeAll() []step {
	steps := append(c.ready, c.queue.drain()...)
	c.ready = nil
	return steps
}

func (c *Conductor) cancelGracefully(st Status) {
	c.log.Debug("cancelling", "status", st)
	c.cancelled = true
	c.cancelStatus = st
	var cleanup []step
	for _, s := range c.takeAll() {
		cleanup = append(cleanup, s.cancel()...)
	}
	for _, s := range cleanup {
		c.queue.push(s)
	}
	c.pending = 0
	c.startSteps = 0
}

func (c *Conductor) cancelNow(st Status) {
	c.log.Debug("cancelling immediately", "status", st)
	if !c.cancelled {
		c.cancelStatus = st
	}
	c.cancelled = true
	c.cancelledImmediately = true
	for _, s := range c.takeAll() {
		s.cancelImmediately()
	}
	c.pending = 0
	c.startSteps = 0
}

// nextVibrateStep returns the step playing segment index of e.
func (c *Conductor) nextVibrateStep(start time.Time, ctrl *Controller, e effect.Effect, index int, offDeadline time.Time) step {
	base := actuatorStep{baseStep: baseStep{c: c, start: start}, ctrl: ctrl, index: index, offDeadline: offDeadline}
	switch v := e.(type) {
	case *effect.Vendor:
		return &vendorStep{actuatorStep: base, vendor: v}
	case *effect.Composed:
		base.eff = v
		if index >= len(v.Segments) {
			return newCompleteStep(c, start, false, ctrl, offDeadline)
		}
		switch v.Segments[index].(type) {
		case effect.PrebakedSegment:
			return &prebakedStep{base}
		case effect.PrimitiveSegment:
			return &primitivesStep{base}
		case effect.RampSegment:
			if ctrl.Info().Has(hal.CapComposePwleV2) {
				return &pwleV2Step{base}
			}
			return &pwleStep{base}
		default:
			return &setAmplitudeStep{base}
		}
	}
	return newCompleteStep(c, start, false, ctrl, offDeadline)
}

// startActuators plays the first step of every mapped actuator, through a
// synced start when more than one actuator takes part. It returns the
// longest expected duration, 0 when nothing played and -1 on failure.
func (c *Conductor) startActuators(mapping map[int]effect.Effect, next *[]step) int64 {
	now := time.Now()
	ids := sortedIDs(mapping)
	first := make([]step, 0, len(ids))
	for _, id := range ids {
		first = append(first, c.nextVibrateStep(now, c.adapter.Controller(id), mapping[id], 0, time.Time{}))
	}
	if len(first) == 1 {
		return c.startActuator(first[0], next)
	}

	prepared := c.hooks.PrepareSyncedVibration(syncCapabilities(mapping), ids)
	before := c.successfulOns
	c.holdAmplitude = prepared
	var longest int64
	failed := false
	for _, s := range first {
		d := c.startActuator(s, next)
		if d < 0 {
			failed = true
			break
		}
		longest = max(longest, d)
	}
	c.holdAmplitude = false

	triggered := prepared && !failed && longest > 0 && c.hooks.TriggerSyncedVibration(c.vib.ID)
	switch {
	case prepared && !triggered:
		c.hooks.CancelSyncedVibration()
		for _, id := range ids {
			if ctrl := c.adapter.Controller(id); ctrl.IsVibrating() {
				ctrl.Off()
			}
		}
		*next = nil
		c.successfulOns = before
		if failed {
			return -1
		}
		c.log.Warn("synced start not triggered", "actuators", ids)
		return 0
	case failed:
		for _, s := range *next {
			s.cancelImmediately()
		}
		*next = nil
		return -1
	}
	if triggered {
		c.synced = ids
	}
	return longest
}

type durationStep interface {
	step
	onDuration() int64
	effectDurationMs() int64
}

func (c *Conductor) startActuator(s step, next *[]step) int64 {
	*next = append(*next, s.play()...)
	ds, ok := s.(durationStep)
	if !ok {
		return 0
	}
	d := ds.onDuration()
	if d < 0 {
		return d
	}
	return max(d, ds.effectDurationMs())
}

// onDurationFrom is how long the actuator stays on starting at a step
// segment: the run of non-zero steps that follows, at least the repeating
// on-time when the run loops forever, plus ramp-down time when the effect
// ends while still on.
func (c *Conductor) onDurationFrom(e *effect.Composed, start int) int64 {
	segs := e.Segments
	n := len(segs)
	repeat := e.RepeatIndex
	i := start
	var timing int64
	for i < n {
		st, ok := segs[i].(effect.StepSegment)
		if !ok || st.Amplitude == 0 {
			break
		}
		timing += st.Duration
		i++
		if i == n && repeat >= 0 {
			i = repeat
			repeat = -1
		}
		if i == start {
			return max(timing, c.opts.RepeatingOnDuration.Milliseconds())
		}
	}
	if i == n && e.RepeatIndex < 0 {
		timing += c.opts.RampDown.Milliseconds()
	}
	return timing
}

// fallbackFor returns the fallback of a prebaked effect adapted to ctrl.
func (c *Conductor) fallbackFor(id effect.EffectID, ctrl *Controller) *effect.Composed {
	fb, ok := c.fallbacks[id]
	if !ok {
		return nil
	}
	adapted, ok := c.adapter.Adapt(fb, ctrl.ID()).(*effect.Composed)
	if !ok || len(adapted.Segments) == 0 {
		return nil
	}
	return adapted
}
