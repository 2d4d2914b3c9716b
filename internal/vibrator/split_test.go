package vibrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/large-farva/vibrator-engine/internal/effect"
)

func TestSplitIndex(t *testing.T) {
	cases := []struct {
		name string
		ends []float64
		want int
	}{
		{"cuts after first zero", []float64{0.5, 0, 0.7, 0}, 2},
		{"cuts after lowest", []float64{0.5, 0.2, 0.7, 0.4}, 2},
		{"later index wins ties", []float64{0.3, 0.6, 0.3, 0.9}, 3},
		{"full window when last is lowest", []float64{0.5, 0.4, 0.1}, 3},
		{"single segment", []float64{0.8}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := splitIndex(len(tc.ends), func(i int) float64 { return tc.ends[i] })
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestUnrollAcrossRepeat(t *testing.T) {
	ramp := func(a float64) effect.RampSegment {
		return effect.RampSegment{EndAmplitude: a, Duration: 10}
	}
	c := &effect.Composed{
		Segments:    []effect.Segment{effect.StepSegment{Amplitude: 1, Duration: 5}, ramp(0.1), ramp(0.2)},
		RepeatIndex: 1,
	}

	out, more := unroll[effect.RampSegment](c, 1, 5)
	assert.Len(t, out, 5)
	assert.True(t, more)
	assert.Equal(t, []float64{0.1, 0.2, 0.1, 0.2, 0.1}, endAmplitudes(out))

	out, more = unroll[effect.RampSegment](c, 0, 5)
	assert.Empty(t, out)
	assert.False(t, more)

	c.RepeatIndex = -1
	out, more = unroll[effect.RampSegment](c, 1, 2)
	assert.Len(t, out, 2)
	assert.False(t, more)
}

func endAmplitudes(rs []effect.RampSegment) []float64 {
	out := make([]float64, len(rs))
	for i, r := range rs {
		out[i] = r.EndAmplitude
	}
	return out
}
