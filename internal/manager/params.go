package manager

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/large-farva/vibrator-engine/internal/scaler"
)

// AdaptiveParams serves per-usage adaptive haptics scales. Latency
// simulates a slow personalization service; the conductor bounds every
// request with its params timeout.
type AdaptiveParams struct {
	mu      sync.RWMutex
	scales  map[scaler.Usage]float64
	latency time.Duration
}

// NewAdaptiveParams creates a provider with the given scales. Usages
// without a scale play unscaled.
func NewAdaptiveParams(scales map[scaler.Usage]float64, latency time.Duration) *AdaptiveParams {
	p := &AdaptiveParams{scales: map[scaler.Usage]float64{}, latency: latency}
	maps.Copy(p.scales, scales)
	return p
}

// AdaptiveScale returns the scale for usage after the configured latency.
func (p *AdaptiveParams) AdaptiveScale(ctx context.Context, usage scaler.Usage) (float64, error) {
	p.mu.RLock()
	latency := p.latency
	s, ok := p.scales[usage]
	p.mu.RUnlock()

	if latency > 0 {
		t := time.NewTimer(latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return 1, ctx.Err()
		case <-t.C:
		}
	}
	if !ok {
		return 1, nil
	}
	return s, nil
}

// Set changes the scale of one usage. Scales must be in (0,1].
func (p *AdaptiveParams) Set(usage scaler.Usage, scale float64) error {
	if scale <= 0 || scale > 1 {
		return fmt.Errorf("%w: adaptive scale %v outside (0,1]", ErrInvalidSetting, scale)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scales[usage] = scale
	return nil
}

// SetLatency changes the simulated response time.
func (p *AdaptiveParams) SetLatency(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latency = d
}

// Scales returns a copy of every configured scale.
func (p *AdaptiveParams) Scales() map[scaler.Usage]float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maps.Clone(p.scales)
}
