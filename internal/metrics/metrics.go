// Package metrics records vibration service metrics with OpenTelemetry. An
// SDK meter provider with a manual reader backs the instruments so the
// daemon can serve current values over HTTP without an exporter.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const scope = "github.com/large-farva/vibrator-engine"

// Metrics holds the service instruments. A nil *Metrics records nothing.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	reader   *sdkmetric.ManualReader

	submitted   metric.Int64Counter
	rejected    metric.Int64Counter
	ended       metric.Int64Counter
	duration    metric.Float64Histogram
	activations metric.Int64Counter
	onTime      metric.Int64Counter
	busy        metric.Int64UpDownCounter
	syncs       metric.Int64Counter
	rateLimited metric.Int64Counter
}

// New creates a meter provider with a manual reader and registers every
// instrument on it.
func New() (*Metrics, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter(scope)

	m := &Metrics{provider: provider, reader: reader}
	var err error
	if m.submitted, err = meter.Int64Counter("vibrator.vibrations.submitted",
		metric.WithDescription("Vibration requests accepted for playback"),
		metric.WithUnit("{vibration}"),
	); err != nil {
		return nil, fmt.Errorf("submitted counter: %w", err)
	}
	if m.rejected, err = meter.Int64Counter("vibrator.vibrations.rejected",
		metric.WithDescription("Vibration requests refused at submission"),
		metric.WithUnit("{vibration}"),
	); err != nil {
		return nil, fmt.Errorf("rejected counter: %w", err)
	}
	if m.ended, err = meter.Int64Counter("vibrator.vibrations.ended",
		metric.WithDescription("Vibrations that reached a terminal status"),
		metric.WithUnit("{vibration}"),
	); err != nil {
		return nil, fmt.Errorf("ended counter: %w", err)
	}
	if m.duration, err = meter.Float64Histogram("vibrator.vibration.duration",
		metric.WithDescription("Time from submission to terminal status"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000),
	); err != nil {
		return nil, fmt.Errorf("duration histogram: %w", err)
	}
	if m.activations, err = meter.Int64Counter("vibrator.actuator.activations",
		metric.WithDescription("Battery-noted actuator activations"),
		metric.WithUnit("{activation}"),
	); err != nil {
		return nil, fmt.Errorf("activations counter: %w", err)
	}
	if m.onTime, err = meter.Int64Counter("vibrator.actuator.on_time",
		metric.WithDescription("Battery-noted actuator on time"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("on time counter: %w", err)
	}
	if m.busy, err = meter.Int64UpDownCounter("vibrator.thread.busy",
		metric.WithDescription("Whether the vibration thread holds its wake lock"),
		metric.WithUnit("{thread}"),
	); err != nil {
		return nil, fmt.Errorf("busy gauge: %w", err)
	}
	if m.syncs, err = meter.Int64Counter("vibrator.sync.calls",
		metric.WithDescription("Synced vibration prepare and trigger calls"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, fmt.Errorf("sync counter: %w", err)
	}
	if m.rateLimited, err = meter.Int64Counter("vibrator.http.rate_limited",
		metric.WithDescription("Submissions refused by the rate limiter"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("rate limited counter: %w", err)
	}
	return m, nil
}

func (m *Metrics) VibrationSubmitted(ctx context.Context, usage string) {
	if m == nil {
		return
	}
	m.submitted.Add(ctx, 1, metric.WithAttributes(attribute.String("usage", usage)))
}

func (m *Metrics) VibrationRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// VibrationEnded counts a terminal status and records how long the
// vibration lived.
func (m *Metrics) VibrationEnded(ctx context.Context, status, usage string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status), attribute.String("usage", usage))
	m.ended.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(d)/float64(time.Millisecond), attrs)
}

func (m *Metrics) VibratorOn(ctx context.Context, uid int) {
	if m == nil {
		return
	}
	m.activations.Add(ctx, 1, metric.WithAttributes(attribute.Int("uid", uid)))
}

func (m *Metrics) VibratorOnTime(ctx context.Context, uid int, ms int64) {
	if m == nil || ms <= 0 {
		return
	}
	m.onTime.Add(ctx, ms, metric.WithAttributes(attribute.Int("uid", uid)))
}

// ThreadBusy moves the busy gauge up or down.
func (m *Metrics) ThreadBusy(ctx context.Context, busy bool) {
	if m == nil {
		return
	}
	if busy {
		m.busy.Add(ctx, 1)
	} else {
		m.busy.Add(ctx, -1)
	}
}

// SyncCall counts a prepare, trigger or cancel call and whether it worked.
func (m *Metrics) SyncCall(ctx context.Context, op string, ok bool) {
	if m == nil {
		return
	}
	m.syncs.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op), attribute.Bool("ok", ok)))
}

func (m *Metrics) RateLimited(ctx context.Context) {
	if m == nil {
		return
	}
	m.rateLimited.Add(ctx, 1)
}

// Point is one collected data point.
type Point struct {
	Name       string            `json:"name"`
	Unit       string            `json:"unit,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Value      float64           `json:"value"`
	Count      uint64            `json:"count,omitempty"`
}

// Snapshot collects the current value of every instrument. Histograms
// report their sum as Value alongside the sample count.
func (m *Metrics) Snapshot(ctx context.Context) ([]Point, error) {
	if m == nil {
		return nil, nil
	}
	var rm metricdata.ResourceMetrics
	if err := m.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}

	var out []Point
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			switch data := md.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out = append(out, Point{Name: md.Name, Unit: md.Unit, Attributes: attrMap(dp.Attributes), Value: float64(dp.Value)})
				}
			case metricdata.Sum[float64]:
				for _, dp := range data.DataPoints {
					out = append(out, Point{Name: md.Name, Unit: md.Unit, Attributes: attrMap(dp.Attributes), Value: dp.Value})
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					out = append(out, Point{Name: md.Name, Unit: md.Unit, Attributes: attrMap(dp.Attributes), Value: dp.Sum, Count: dp.Count})
				}
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Find returns the first point named name whose attributes include every
// given key/value pair.
func Find(points []Point, name string, attrs map[string]string) (Point, bool) {
	for _, p := range points {
		if p.Name != name {
			continue
		}
		match := true
		for k, v := range attrs {
			if p.Attributes[k] != v {
				match = false
				break
			}
		}
		if match {
			return p, true
		}
	}
	return Point{}, false
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

func attrMap(set attribute.Set) map[string]string {
	if set.Len() == 0 {
		return nil
	}
	out := make(map[string]string, set.Len())
	iter := set.Iter()
	for iter.Next() {
		kv := iter.Attribute()
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

// UID formats a uid attribute value the way Snapshot reports it.
func UID(uid int) string { return strconv.Itoa(uid) }
