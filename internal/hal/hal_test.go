package hal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/large-farva/vibrator-engine/internal/effect"
)

func TestParseCapabilities(t *testing.T) {
	c, err := ParseCapabilities([]string{"on_callback", " Amplitude_Control ", "compose_pwle_v2"})
	require.NoError(t, err)
	assert.True(t, c.Has(CapOnCallback|CapAmplitudeControl))
	assert.False(t, c.Has(CapOnCallback|CapComposePwle))
	assert.Equal(t, []string{"on_callback", "amplitude_control", "compose_pwle_v2"}, c.Names())

	_, err = ParseCapabilities([]string{"teleport"})
	assert.Error(t, err)
}

func TestParseSyncCapabilities(t *testing.T) {
	c, err := ParseSyncCapabilities([]string{"sync", "prepare_on", "trigger_callback"})
	require.NoError(t, err)
	assert.True(t, c.Has(SyncCapSync|SyncCapPrepareOn))
	assert.False(t, c.Has(SyncCapMixedTriggerOn))
	assert.Equal(t, []string{"sync", "prepare_on", "trigger_callback"}, c.Names())

	none, err := ParseSyncCapabilities(nil)
	require.NoError(t, err)
	assert.Empty(t, none.Names())

	_, err = ParseSyncCapabilities([]string{"sync", "warp"})
	assert.Error(t, err)
}

func TestInfoSupports(t *testing.T) {
	info := Info{
		Capabilities: CapComposeEffects,
		Effects:      []effect.EffectID{effect.EffectClick},
		Braking:      []Braking{BrakingClab},
		Primitives:   map[effect.Primitive]int64{effect.PrimitiveClick: 12},
	}
	assert.True(t, info.SupportsEffect(effect.EffectClick))
	assert.False(t, info.SupportsEffect(effect.EffectTick))
	assert.True(t, info.SupportsBraking(BrakingClab))
	assert.False(t, info.SupportsBraking(BrakingNone))
	assert.True(t, info.SupportsPrimitive(effect.PrimitiveClick))
	assert.False(t, info.SupportsPrimitive(effect.PrimitiveThud))
	assert.Equal(t, int64(12), info.PrimitiveDurationMs(effect.PrimitiveClick))

	info.Capabilities = 0
	assert.False(t, info.SupportsPrimitive(effect.PrimitiveClick))
}

func testProfile() FrequencyProfile {
	return FrequencyProfile{
		ResonantHz:    150,
		MinHz:         100,
		ResolutionHz:  50,
		MaxAmplitudes: []float64{0.4, 1, 0.6},
	}
}

func TestFrequencyProfileMaxAmplitude(t *testing.T) {
	p := testProfile()
	assert.Equal(t, 200.0, p.MaxHz())

	assert.InDelta(t, 0.4, p.MaxAmplitude(100), 1e-9)
	assert.InDelta(t, 0.7, p.MaxAmplitude(125), 1e-9)
	assert.InDelta(t, 1.0, p.MaxAmplitude(150), 1e-9)
	assert.InDelta(t, 0.8, p.MaxAmplitude(175), 1e-9)
	assert.InDelta(t, 0.6, p.MaxAmplitude(200), 1e-9)

	assert.Zero(t, p.MaxAmplitude(99))
	assert.Zero(t, p.MaxAmplitude(201))

	assert.True(t, FrequencyProfile{}.Empty())
	assert.Zero(t, FrequencyProfile{}.MaxHz())
	assert.Zero(t, FrequencyProfile{}.MaxAmplitude(150))
}

func TestSharpnessRange(t *testing.T) {
	p := testProfile()
	lo, hi := p.SharpnessRange()
	assert.Equal(t, 100.0, lo)
	assert.Equal(t, 200.0, hi)

	p.FrequenciesHz = []float64{80, 120, 160, 240}
	p.OutputAccelerationsGs = []float64{0.05, 0.5, 2, 0.1}
	lo, hi = p.SharpnessRange()
	assert.Equal(t, 120.0, lo)
	assert.Equal(t, 160.0, hi)
}
