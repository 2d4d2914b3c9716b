package vibrator

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/large-farva/vibrator-engine/internal/effect"
	"github.com/large-farva/vibrator-engine/internal/hal"
	"github.com/large-farva/vibrator-engine/internal/hal/sim"
	"github.com/large-farva/vibrator-engine/internal/scaler"
)

// recordingHooks records manager calls and routes synced starts through a
// simulated sync manager when one is set.
type recordingHooks struct {
	mu       sync.Mutex
	syncDrv  *sim.SyncManager
	target   *Conductor
	events   []string
	ons      []int64
	masks    []hal.SyncCapability
	released []int64
}

func (h *recordingHooks) NoteVibratorOn(uid int, durationMs int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ons = append(h.ons, durationMs)
	h.events = append(h.events, fmt.Sprintf("on:%d", durationMs))
}

func (h *recordingHooks) NoteVibratorOff(uid int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, "off")
}

func (h *recordingHooks) PrepareSyncedVibration(required hal.SyncCapability, ids []int) bool {
	h.mu.Lock()
	h.masks = append(h.masks, required)
	drv := h.syncDrv
	h.mu.Unlock()
	if drv == nil || !drv.Capabilities().Has(required) {
		return false
	}
	return drv.Prepare(ids) == nil
}

func (h *recordingHooks) TriggerSyncedVibration(int64) bool {
	h.mu.Lock()
	drv, c := h.syncDrv, h.target
	h.mu.Unlock()
	if drv == nil {
		return false
	}
	return drv.Trigger(func() { c.NotifySyncedVibrationComplete() }) == nil
}

func (h *recordingHooks) CancelSyncedVibration() {
	h.mu.Lock()
	drv := h.syncDrv
	h.mu.Unlock()
	if drv != nil {
		_ = drv.CancelSynced()
	}
}

func (h *recordingHooks) OnVibrationThreadReleased(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.released = append(h.released, id)
}

func (h *recordingHooks) snapshot() (events []string, ons []int64, masks []hal.SyncCapability, released []int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...), append([]int64(nil), h.ons...),
		append([]hal.SyncCapability(nil), h.masks...), append([]int64(nil), h.released...)
}

type rig struct {
	t       *testing.T
	acts    map[int]*sim.Actuator
	adapter *DeviceAdapter
	hooks   *recordingHooks
	opts    Options
	session bool
	params  ParamsProvider
}

func newRig(t *testing.T, cfgs ...sim.Config) *rig {
	t.Helper()
	r := &rig{t: t, acts: map[int]*sim.Actuator{}, hooks: &recordingHooks{}, opts: DefaultOptions()}
	var ctrls []*Controller
	for _, cfg := range cfgs {
		a := sim.New(cfg, nil)
		r.acts[cfg.Info.ID] = a
		ctrls = append(ctrls, NewController(a, nil))
	}
	r.adapter = NewDeviceAdapter(ctrls, r.opts.rampStepMs())
	return r
}

func (r *rig) conductor(v *Vibration) *Conductor {
	c := NewConductor(v, ConductorConfig{
		Session: r.session,
		Adapter: r.adapter,
		Hooks:   r.hooks,
		Params:  r.params,
		Options: r.opts,
	})
	r.hooks.mu.Lock()
	r.hooks.target = c
	r.hooks.mu.Unlock()
	return c
}

// start runs v on a new goroutine the way the vibration thread does.
func (r *rig) start(v *Vibration) (*Conductor, <-chan struct{}) {
	c := r.conductor(v)
	done := make(chan struct{})
	go func() {
		defer close(done)
		drive(c)
	}()
	return c, done
}

func (r *rig) play(e effect.Combined) *Conductor {
	r.t.Helper()
	c, done := r.start(newTestVibration(e))
	r.await(done, 5*time.Second)
	return c
}

func (r *rig) await(done <-chan struct{}, timeout time.Duration) {
	r.t.Helper()
	select {
	case <-done:
	case <-time.After(timeout):
		r.t.Fatal("conductor did not finish")
	}
}

func drive(c *Conductor) {
	c.Prepare()
	reported := false
	for !c.IsFinished() {
		if c.WaitUntilNextStepIsDue() {
			c.RunNextStep()
		}
		if !reported {
			if st, ok := c.EndStatus(); ok {
				reported = c.Report(st)
			}
		}
	}
	if !reported {
		c.Report(c.FinalStatus())
	}
	c.Release()
}

func newTestVibration(e effect.Combined) *Vibration {
	return NewVibration(CallerInfo{UID: 1000, Package: "test", Usage: scaler.UsageTouch}, e)
}

func mono(e effect.Effect) effect.Combined { return &effect.Mono{Effect: e} }

func ampActuator(id int) sim.Config {
	return sim.Config{Info: hal.Info{ID: id, Capabilities: hal.CapAmplitudeControl | hal.CapOnCallback}}
}

func pwleProfile() hal.FrequencyProfile {
	return hal.FrequencyProfile{
		ResonantHz:    150,
		MinHz:         50,
		ResolutionHz:  50,
		MaxAmplitudes: []float64{1, 1, 1, 1, 1},
	}
}

func mustWaveform(t *testing.T, timings []int64, amplitudes []int, repeat int) *effect.Composed {
	t.Helper()
	w, err := effect.Waveform(timings, amplitudes, repeat)
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func norm(v int) float64 { return float64(v) / effect.MaxAmplitude }
