//go:build property

package effect

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestDropZeroDurationsProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	timings := gen.SliceOf(gen.OneGenOf(gen.Const(int64(0)), gen.Int64Range(1, 500))).
		SuchThat(func(v []int64) bool { return len(v) > 0 })

	build := func(ts []int64, repeat int) *Composed {
		segs := make([]Segment, len(ts))
		for i, d := range ts {
			segs[i] = StepSegment{Amplitude: 0.5, Duration: d}
		}
		return &Composed{Segments: segs, RepeatIndex: repeat%(len(ts)+1) - 1}
	}

	properties.Property("no zero-duration segment survives", prop.ForAll(
		func(ts []int64, r int) bool {
			for _, s := range build(ts, r).DropZeroDurations().Segments {
				if s.DurationMs() == 0 {
					return false
				}
			}
			return true
		},
		timings, gen.IntRange(0, 1000),
	))

	properties.Property("total playback time is unchanged", prop.ForAll(
		func(ts []int64) bool {
			c := build(ts, 0)
			return c.DropZeroDurations().DurationMs() == c.DurationMs()
		},
		timings,
	))

	properties.Property("repeat index stays in range", prop.ForAll(
		func(ts []int64, r int) bool {
			out := build(ts, r).DropZeroDurations()
			return out.RepeatIndex >= -1 && out.RepeatIndex < len(out.Segments)
		},
		timings, gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
