// Package sim provides simulated actuators and a simulated sync manager.
// They record every call for inspection, honour the capability set of their
// Info, and complete timed calls on real timers so the full playback
// pipeline can run without hardware.
package sim

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/large-farva/vibrator-engine/internal/effect"
	"github.com/large-farva/vibrator-engine/internal/hal"
)

// Operation names recorded in Call.Op.
const (
	OpOn              = "on"
	OpOff             = "off"
	OpAmplitude       = "amplitude"
	OpExternalControl = "external_control"
	OpPerform         = "perform"
	OpVendor          = "vendor"
	OpCompose         = "compose"
	OpPwle            = "pwle"
	OpPwleV2          = "pwle_v2"
)

// Call is one recorded driver invocation.
type Call struct {
	Op         string                    `json:"op"`
	At         time.Time                 `json:"at"`
	DurationMs int64                     `json:"duration_ms,omitempty"`
	Amplitude  float64                   `json:"amplitude,omitempty"`
	Enabled    bool                      `json:"enabled,omitempty"`
	Effect     effect.EffectID           `json:"effect,omitempty"`
	Strength   effect.Strength           `json:"strength,omitempty"`
	Primitives []effect.PrimitiveSegment `json:"primitives,omitempty"`
	Ramps      []effect.RampSegment      `json:"ramps,omitempty"`
	Braking    hal.Braking               `json:"braking,omitempty"`
	Points     []hal.PwlePoint           `json:"points,omitempty"`
	Vendor     *effect.Vendor            `json:"vendor,omitempty"`
}

// Config describes one simulated actuator.
type Config struct {
	Info hal.Info
	// OnLatency is spent inside every timed call, after the call is
	// recorded and before it returns.
	OnLatency time.Duration
	// CallbackDelay is added between the end of playback and the
	// completion callback.
	CallbackDelay time.Duration
	// EffectDurationMs is reported for every prebaked effect.
	EffectDurationMs int64
	// VendorDurationMs is how long a vendor effect plays. Its duration is
	// never reported to the caller.
	VendorDurationMs int64
}

const (
	defaultEffectDurationMs = 20
	defaultVendorDurationMs = 20
)

// Actuator is a simulated hal.Driver. It is safe for concurrent use; the
// configured latency is spent without holding the internal lock so Off can
// interrupt a slow call.
type Actuator struct {
	cfg Config
	log *slog.Logger

	mu        sync.Mutex
	calls     []Call
	failures  map[string]error
	vibrating bool
	external  bool
	gen       uint64
	timers    []*time.Timer
}

// New creates a simulated actuator.
func New(cfg Config, logger *slog.Logger) *Actuator {
	if cfg.EffectDurationMs <= 0 {
		cfg.EffectDurationMs = defaultEffectDurationMs
	}
	if cfg.VendorDurationMs <= 0 {
		cfg.VendorDurationMs = defaultVendorDurationMs
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Actuator{
		cfg:      cfg,
		log:      logger.With("component", "sim", "actuator", cfg.Info.ID),
		failures: map[string]error{},
	}
}

func (a *Actuator) Info() hal.Info { return a.cfg.Info }

// FailNext makes every subsequent call of op return err until cleared with
// a nil error.
func (a *Actuator) FailNext(op string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err == nil {
		delete(a.failures, op)
		return
	}
	a.failures[op] = err
}

func (a *Actuator) On(durationMs int64, done func()) (int64, error) {
	return a.timed(Call{Op: OpOn, DurationMs: durationMs}, nil, func() (int64, int64) {
		return durationMs, durationMs
	}, done)
}

func (a *Actuator) Off() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.failures[OpOff]; err != nil {
		return err
	}
	a.gen++
	a.vibrating = false
	for _, t := range a.timers {
		t.Stop()
	}
	a.timers = nil
	a.calls = append(a.calls, Call{Op: OpOff, At: time.Now()})
	return nil
}

func (a *Actuator) SetAmplitude(amplitude float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.cfg.Info.Has(hal.CapAmplitudeControl) {
		return hal.ErrUnsupported
	}
	if err := a.failures[OpAmplitude]; err != nil {
		return err
	}
	a.calls = append(a.calls, Call{Op: OpAmplitude, At: time.Now(), Amplitude: amplitude})
	return nil
}

func (a *Actuator) SetExternalControl(enabled bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.cfg.Info.Has(hal.CapExternalControl) {
		return hal.ErrUnsupported
	}
	if err := a.failures[OpExternalControl]; err != nil {
		return err
	}
	a.external = enabled
	a.calls = append(a.calls, Call{Op: OpExternalControl, At: time.Now(), Enabled: enabled})
	return nil
}

func (a *Actuator) PerformEffect(id effect.EffectID, strength effect.Strength, done func()) (int64, error) {
	check := func() error {
		if !a.cfg.Info.SupportsEffect(id) {
			return hal.ErrUnsupported
		}
		return nil
	}
	d := a.cfg.EffectDurationMs
	return a.timed(Call{Op: OpPerform, Effect: id, Strength: strength}, check, func() (int64, int64) {
		return d, d
	}, done)
}

func (a *Actuator) PerformVendorEffect(v *effect.Vendor, done func()) (int64, error) {
	check := func() error {
		if !a.cfg.Info.Has(hal.CapPerformVendor) {
			return hal.ErrUnsupported
		}
		return nil
	}
	d := a.cfg.VendorDurationMs
	return a.timed(Call{Op: OpVendor, Vendor: v}, check, func() (int64, int64) {
		return effect.Infinite, d
	}, done)
}

func (a *Actuator) ComposePrimitives(primitives []effect.PrimitiveSegment, done func()) (int64, error) {
	info := a.cfg.Info
	check := func() error {
		if !info.Has(hal.CapComposeEffects) {
			return hal.ErrUnsupported
		}
		if info.CompositionSizeMax > 0 && len(primitives) > info.CompositionSizeMax {
			return fmt.Errorf("composition of %d primitives exceeds limit %d", len(primitives), info.CompositionSizeMax)
		}
		for _, p := range primitives {
			if !info.SupportsPrimitive(p.Primitive) {
				return hal.ErrUnsupported
			}
		}
		return nil
	}
	var total int64
	for _, p := range primitives {
		total += p.DelayMs + info.PrimitiveDurationMs(p.Primitive)
	}
	return a.timed(Call{Op: OpCompose, Primitives: slices.Clone(primitives)}, check, func() (int64, int64) {
		return total, total
	}, done)
}

func (a *Actuator) ComposePwle(ramps []effect.RampSegment, braking hal.Braking, done func()) (int64, error) {
	info := a.cfg.Info
	check := func() error {
		if !info.Has(hal.CapComposePwle) {
			return hal.ErrUnsupported
		}
		if info.PwleSizeMax > 0 && len(ramps) > info.PwleSizeMax {
			return fmt.Errorf("pwle of %d ramps exceeds limit %d", len(ramps), info.PwleSizeMax)
		}
		return nil
	}
	var total int64
	for _, r := range ramps {
		total += r.Duration
	}
	return a.timed(Call{Op: OpPwle, Ramps: slices.Clone(ramps), Braking: braking}, check, func() (int64, int64) {
		return total, total
	}, done)
}

func (a *Actuator) ComposePwleV2(points []hal.PwlePoint, done func()) (int64, error) {
	info := a.cfg.Info
	check := func() error {
		if !info.Has(hal.CapComposePwleV2) {
			return hal.ErrUnsupported
		}
		if info.MaxEnvelopeEffectSize > 0 && len(points) > info.MaxEnvelopeEffectSize {
			return fmt.Errorf("envelope of %d points exceeds limit %d", len(points), info.MaxEnvelopeEffectSize)
		}
		return nil
	}
	var total int64
	for _, p := range points {
		total += p.TimeMs
	}
	return a.timed(Call{Op: OpPwleV2, Points: slices.Clone(points)}, check, func() (int64, int64) {
		return total, total
	}, done)
}

// timed runs one timed call: the capability check and recording first, then
// the configured latency, then a timer that ends playback and fires done. An
// Off issued during the latency cancels the call before playback starts.
// durations returns the reported duration and the real playback time.
func (a *Actuator) timed(call Call, check func() error, durations func() (reported, played int64), done func()) (int64, error) {
	a.mu.Lock()
	if check != nil {
		if err := check(); err != nil {
			a.mu.Unlock()
			return 0, err
		}
	}
	if err := a.failures[call.Op]; err != nil {
		a.mu.Unlock()
		return 0, err
	}
	reported, played := durations()
	call.At = time.Now()
	a.calls = append(a.calls, call)
	a.gen++
	gen := a.gen
	a.mu.Unlock()

	if a.cfg.OnLatency > 0 {
		time.Sleep(a.cfg.OnLatency)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gen != gen {
		return reported, nil
	}
	a.vibrating = true
	a.log.Debug("timed call", "op", call.Op, "duration_ms", played)

	end := time.AfterFunc(time.Duration(played)*time.Millisecond, func() {
		a.mu.Lock()
		if a.gen == gen {
			a.vibrating = false
		}
		a.mu.Unlock()
		if done == nil {
			return
		}
		if a.cfg.CallbackDelay > 0 {
			time.AfterFunc(a.cfg.CallbackDelay, done)
			return
		}
		done()
	})
	a.timers = append(a.timers[:0], end)
	return reported, nil
}

// Calls returns a copy of every recorded call.
func (a *Actuator) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.calls)
}

// CallsOf returns the recorded calls of one operation.
func (a *Actuator) CallsOf(op string) []Call {
	var out []Call
	for _, c := range a.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// OnDurations lists the durations of every On call.
func (a *Actuator) OnDurations() []int64 {
	var out []int64
	for _, c := range a.CallsOf(OpOn) {
		out = append(out, c.DurationMs)
	}
	return out
}

// Amplitudes lists every amplitude set.
func (a *Actuator) Amplitudes() []float64 {
	var out []float64
	for _, c := range a.CallsOf(OpAmplitude) {
		out = append(out, c.Amplitude)
	}
	return out
}

// Effects lists every prebaked effect performed.
func (a *Actuator) Effects() []effect.EffectID {
	var out []effect.EffectID
	for _, c := range a.CallsOf(OpPerform) {
		out = append(out, c.Effect)
	}
	return out
}

// Primitives flattens every composed primitive in call order.
func (a *Actuator) Primitives() []effect.PrimitiveSegment {
	var out []effect.PrimitiveSegment
	for _, c := range a.CallsOf(OpCompose) {
		out = append(out, c.Primitives...)
	}
	return out
}

// Ramps flattens every PWLE ramp in call order.
func (a *Actuator) Ramps() []effect.RampSegment {
	var out []effect.RampSegment
	for _, c := range a.CallsOf(OpPwle) {
		out = append(out, c.Ramps...)
	}
	return out
}

// OffCount returns how many times Off was called.
func (a *Actuator) OffCount() int { return len(a.CallsOf(OpOff)) }

// IsVibrating reports whether playback is in progress.
func (a *Actuator) IsVibrating() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.vibrating
}

// ExternalControl reports whether external control is enabled.
func (a *Actuator) ExternalControl() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.external
}

// Reset drops every recorded call.
func (a *Actuator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = nil
}
