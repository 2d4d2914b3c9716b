// Package demo drives the daemon with a rotating set of canned vibrations so
// the CLI and the event stream can be exercised end-to-end without a real
// client. Each pattern resembles what an app would actually request: a tap,
// a notification buzz, a ringtone fragment, a composed haptic.
package demo

import (
	"context"
	"log/slog"
	"time"

	"github.com/large-farva/vibrator-engine/internal/effect"
	"github.com/large-farva/vibrator-engine/internal/manager"
	"github.com/large-farva/vibrator-engine/internal/scaler"
	"github.com/large-farva/vibrator-engine/internal/vibrator"
)

// UID is the caller uid demo vibrations are attributed to.
const UID = 2000

// Submitter is the part of the manager the runner needs.
type Submitter interface {
	Submit(ctx context.Context, req manager.Request) (*vibrator.Vibration, error)
}

// Pattern is one canned request.
type Pattern struct {
	Name  string
	Usage scaler.Usage
	Build func() (effect.Combined, error)
}

// Patterns is the catalog the runner cycles through.
var Patterns = []Pattern{
	{
		Name:  "tap",
		Usage: scaler.UsageTouch,
		Build: func() (effect.Combined, error) {
			return &effect.Mono{Effect: effect.Prebaked(effect.EffectClick, true)}, nil
		},
	},
	{
		Name:  "notification",
		Usage: scaler.UsageNotification,
		Build: func() (effect.Combined, error) {
			w, err := effect.Waveform([]int64{0, 120, 80, 120}, []int{0, 200, 0, 255}, -1)
			return &effect.Mono{Effect: w}, err
		},
	},
	{
		Name:  "ringtone",
		Usage: scaler.UsageRingtone,
		Build: func() (effect.Combined, error) {
			w, err := effect.OnOffWaveform([]int64{0, 400, 200, 400, 200, 400}, -1)
			return &effect.Mono{Effect: w}, err
		},
	},
	{
		Name:  "composed",
		Usage: scaler.UsageHardware,
		Build: func() (effect.Combined, error) {
			c, err := effect.NewComposition().
				AddPrimitive(effect.PrimitiveClick, 0.8, 0).
				AddPrimitive(effect.PrimitiveThud, 1, 60).
				Compose()
			return &effect.Mono{Effect: c}, err
		},
	},
	{
		Name:  "swell",
		Usage: scaler.UsageMedia,
		Build: func() (effect.Combined, error) {
			w, err := effect.NewWaveformBuilder(0).
				Transition(150, 1).
				Sustain(100).
				Transition(150, 0).
				Build()
			return &effect.Mono{Effect: w}, err
		},
	},
}

// Runner submits one demo vibration per interval.
type Runner struct {
	Submitter Submitter
	Interval  time.Duration // time between submissions
	Log       *slog.Logger

	next int // cycles through Patterns
}

// New creates a demo runner with a sensible default interval.
func New(s Submitter, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		Submitter: s,
		Interval:  5 * time.Second,
		Log:       logger.With("component", "demo"),
	}
}

// Run submits one pattern immediately, then one per interval until ctx is
// cancelled.
func (r *Runner) Run(ctx context.Context) {
	r.Log.Info("demo mode active, submitting canned vibrations", "interval", r.Interval)
	r.Step(ctx)

	t := time.NewTicker(r.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Step(ctx)
		}
	}
}

// Step submits the next pattern and returns the vibration, or nil when the
// pattern could not be built or was rejected.
func (r *Runner) Step(ctx context.Context) *vibrator.Vibration {
	p := Patterns[r.next%len(Patterns)]
	r.next++

	e, err := p.Build()
	if err != nil {
		r.Log.Error("build demo pattern", "pattern", p.Name, "err", err)
		return nil
	}
	v, err := r.Submitter.Submit(ctx, manager.Request{
		Caller: vibrator.CallerInfo{
			UID:     UID,
			Package: "demo",
			Reason:  p.Name,
			Usage:   p.Usage,
		},
		Effect: e,
	})
	if err != nil {
		r.Log.Warn("demo vibration rejected", "pattern", p.Name, "err", err)
		return nil
	}
	r.Log.Debug("demo vibration submitted", "pattern", p.Name, "id", v.ID)
	return v
}
