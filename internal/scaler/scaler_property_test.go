//go:build property

package scaler

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestScaleAmplitudeProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	amp := gen.Float64Range(0, 1)
	factor := gen.Float64Range(0.1, 4)

	properties.Property("output stays in [0,1]", prop.ForAll(
		func(x, f float64) bool {
			y := ScaleAmplitude(x, f)
			return y >= 0 && y <= 1
		},
		amp, factor,
	))

	properties.Property("monotonic in the amplitude", prop.ForAll(
		func(a, b, f float64) bool {
			lo, hi := min(a, b), max(a, b)
			return ScaleAmplitude(lo, f) <= ScaleAmplitude(hi, f)+1e-12
		},
		amp, amp, factor,
	))

	properties.Property("scaling up never lowers and scaling down never raises", prop.ForAll(
		func(x, f float64) bool {
			y := ScaleAmplitude(x, f)
			if f >= 1 {
				return y >= x-1e-12
			}
			return y <= x+1e-12
		},
		amp, factor,
	))

	properties.Property("adaptive scales below one never raise output", prop.ForAll(
		func(x, s float64) bool {
			return Linear{}.Apply(x, s) <= x
		},
		amp, gen.Float64Range(0.01, 1),
	))

	properties.TestingRun(t)
}
