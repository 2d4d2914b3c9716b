package vibrator

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/large-farva/vibrator-engine/internal/effect"
	"github.com/large-farva/vibrator-engine/internal/hal"
)

// Completion receives hardware completion for the step identified by
// stepID on one actuator.
type Completion func(actuatorID int, stepID uint64)

// StateListener observes actuators turning on and off.
type StateListener func(actuatorID int, vibrating bool)

// Controller wraps one hal.Driver with the state the conductor needs: whether
// the actuator is vibrating, the amplitude it is playing at and the id of the
// last issued step. Timed calls return the expected duration in ms, 0 when
// the actuator does not support the request and -1 on failure.
//
// The controller never holds its lock across a driver call, so Off can be
// issued from another goroutine while a slow call is in progress.
type Controller struct {
	drv  hal.Driver
	info hal.Info
	log  *slog.Logger

	mu        sync.Mutex
	vibrating bool
	amplitude float64
	external  bool
	stepID    uint64
	listener  StateListener
}

// NewController wraps drv.
func NewController(drv hal.Driver, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	info := drv.Info()
	return &Controller{
		drv:  drv,
		info: info,
		log:  logger.With("actuator", info.ID),
	}
}

func (c *Controller) ID() int        { return c.info.ID }
func (c *Controller) Info() hal.Info { return c.info }

// SetStateListener registers fn to observe on/off transitions.
func (c *Controller) SetStateListener(fn StateListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = fn
}

// IsVibrating reports whether the last call left the actuator on.
func (c *Controller) IsVibrating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vibrating
}

// CurrentAmplitude is the amplitude being played, 0 when off and -1 while
// the hardware controls the output of a prebaked, composed or vendor effect.
func (c *Controller) CurrentAmplitude() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.amplitude
}

// CurrentStep returns the id of the latest timed call or Off. Callbacks
// carrying any other id are stale.
func (c *Controller) CurrentStep() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stepID
}

// ExternalControl reports whether external control is enabled.
func (c *Controller) ExternalControl() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.external
}

// On turns the actuator on for durationMs at the current amplitude.
func (c *Controller) On(durationMs int64, cb Completion) int64 {
	return c.timed("on", false, cb, func(done func()) (int64, error) {
		return c.drv.On(durationMs, done)
	})
}

// PerformEffect plays a prebaked effect. Unsupported effects are rejected
// without reaching the driver.
func (c *Controller) PerformEffect(seg effect.PrebakedSegment, cb Completion) int64 {
	if !c.info.SupportsEffect(seg.Effect) {
		c.log.Debug("prebaked effect unsupported", "effect", seg.Effect)
		return 0
	}
	return c.timed("perform", true, cb, func(done func()) (int64, error) {
		return c.drv.PerformEffect(seg.Effect, seg.Strength, done)
	})
}

// PerformVendorEffect plays a vendor payload.
func (c *Controller) PerformVendorEffect(v *effect.Vendor, cb Completion) int64 {
	if !c.info.Has(hal.CapPerformVendor) {
		c.log.Debug("vendor effects unsupported")
		return 0
	}
	return c.timed("vendor", true, cb, func(done func()) (int64, error) {
		return c.drv.PerformVendorEffect(v, done)
	})
}

// ComposePrimitives plays a primitive composition.
func (c *Controller) ComposePrimitives(prims []effect.PrimitiveSegment, cb Completion) int64 {
	for _, p := range prims {
		if !c.info.SupportsPrimitive(p.Primitive) {
			c.log.Debug("primitive unsupported", "primitive", p.Primitive)
			return 0
		}
	}
	return c.timed("compose", true, cb, func(done func()) (int64, error) {
		return c.drv.ComposePrimitives(prims, done)
	})
}

// ComposePwle plays piecewise-linear ramps.
func (c *Controller) ComposePwle(ramps []effect.RampSegment, braking hal.Braking, cb Completion) int64 {
	if !c.info.Has(hal.CapComposePwle) {
		return 0
	}
	return c.timed("pwle", true, cb, func(done func()) (int64, error) {
		return c.drv.ComposePwle(ramps, braking, done)
	})
}

// ComposePwleV2 plays envelope control points.
func (c *Controller) ComposePwleV2(points []hal.PwlePoint, cb Completion) int64 {
	if !c.info.Has(hal.CapComposePwleV2) {
		return 0
	}
	return c.timed("pwle_v2", true, cb, func(done func()) (int64, error) {
		return c.drv.ComposePwleV2(points, done)
	})
}

// SetAmplitude records the amplitude being played and forwards it to
// actuators with amplitude control.
func (c *Controller) SetAmplitude(amplitude float64) {
	if c.info.Has(hal.CapAmplitudeControl) {
		if err := c.drv.SetAmplitude(amplitude); err != nil {
			c.log.Warn("set amplitude failed", "amplitude", amplitude, "err", err)
		}
	}
	c.mu.Lock()
	c.amplitude = amplitude
	c.mu.Unlock()
}

// Off stops the actuator and invalidates every outstanding callback.
func (c *Controller) Off() {
	c.mu.Lock()
	c.stepID++
	c.mu.Unlock()
	if err := c.drv.Off(); err != nil {
		c.log.Warn("off failed", "err", err)
	}
	c.setState(false, 0)
}

// SetExternalControl hands the actuator to an external source such as an
// audio-coupled haptics path.
func (c *Controller) SetExternalControl(enabled bool) error {
	if !c.info.Has(hal.CapExternalControl) {
		return hal.ErrUnsupported
	}
	if err := c.drv.SetExternalControl(enabled); err != nil {
		return err
	}
	c.mu.Lock()
	c.external = enabled
	c.mu.Unlock()
	return nil
}

func (c *Controller) timed(op string, hardwareTimed bool, cb Completion, call func(done func()) (int64, error)) int64 {
	c.mu.Lock()
	c.stepID++
	id := c.stepID
	c.mu.Unlock()

	var done func()
	if cb != nil {
		actuator := c.info.ID
		done = func() { cb(actuator, id) }
	}
	res, err := call(done)
	if err != nil {
		if errors.Is(err, hal.ErrUnsupported) {
			c.log.Debug("call unsupported", "op", op)
			return 0
		}
		c.log.Warn("driver call failed", "op", op, "err", err)
		return -1
	}
	if res > 0 {
		amp := c.CurrentAmplitude()
		if hardwareTimed {
			amp = -1
		}
		c.setState(true, amp)
	}
	return res
}

func (c *Controller) setState(vibrating bool, amplitude float64) {
	c.mu.Lock()
	changed := c.vibrating != vibrating
	c.vibrating = vibrating
	c.amplitude = amplitude
	fn := c.listener
	c.mu.Unlock()
	if changed && fn != nil {
		fn(c.info.ID, vibrating)
	}
}
