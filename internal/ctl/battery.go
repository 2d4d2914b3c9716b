package ctl

import (
	"fmt"
	"sort"
	"strings"
)

// Battery shows the per-uid vibrator on-time accounting.
func Battery(baseURL string, jsonOutput bool) error {
	var resp struct {
		Battery []struct {
			UID      int   `json:"uid"`
			OnCount  int64 `json:"on_count"`
			NotedMs  int64 `json:"noted_ms"`
			OnTimeMs int64 `json:"on_time_ms"`
			Active   bool  `json:"active"`
		} `json:"battery"`
	}
	if err := getJSON(baseURL, "/api/battery", &resp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, header("  VIBRATOR BATTERY USE"))
	if len(resp.Battery) == 0 {
		fmt.Fprintln(stdout, "  Nothing has vibrated yet.")
		fmt.Fprintln(stdout)
		return nil
	}
	t := newTable("  ", "UID", "On count", "Requested", "Measured", "Active")
	for _, b := range resp.Battery {
		active := ""
		if b.Active {
			active = colorize(cyan, "yes")
		}
		t.row(
			fmt.Sprintf("%d", b.UID),
			fmt.Sprintf("%d", b.OnCount),
			formatMs(b.NotedMs),
			formatMs(b.OnTimeMs),
			active,
		)
	}
	t.flush()
	fmt.Fprintln(stdout)
	return nil
}

// MetricPoint mirrors one entry of GET /api/metrics.
type MetricPoint struct {
	Name       string            `json:"name"`
	Unit       string            `json:"unit,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Value      float64           `json:"value"`
	Count      uint64            `json:"count,omitempty"`
}

// Metrics prints the daemon's current metric values.
func Metrics(baseURL string, jsonOutput bool) error {
	var resp struct {
		Metrics []MetricPoint `json:"metrics"`
	}
	if err := getJSON(baseURL, "/api/metrics", &resp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}

	sort.Slice(resp.Metrics, func(i, j int) bool { return resp.Metrics[i].Name < resp.Metrics[j].Name })
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, header("  METRICS"))
	t := newTable("  ", "Name", "Attributes", "Value")
	for _, p := range resp.Metrics {
		var attrs []string
		for _, k := range sortedKeys(p.Attributes) {
			attrs = append(attrs, k+"="+p.Attributes[k])
		}
		val := fmt.Sprintf("%g", p.Value)
		if p.Count > 0 {
			val = fmt.Sprintf("%g (n=%d)", p.Value, p.Count)
		}
		if p.Unit != "" {
			val += " " + p.Unit
		}
		t.row(p.Name, strings.Join(attrs, ","), val)
	}
	t.flush()
	fmt.Fprintln(stdout)
	return nil
}
