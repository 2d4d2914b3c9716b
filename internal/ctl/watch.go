package ctl

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// WatchOptions controls the watch command behavior.
type WatchOptions struct {
	Filter []string // event types to show (empty = all)
	JSON   bool     // output raw JSON per event
}

// wsURL turns the daemon base URL into its WebSocket endpoint.
func wsURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

// Watch connects to the daemon's WebSocket endpoint and streams events to
// the terminal until interrupted.
func Watch(baseURL string, opts WatchOptions) error {
	target, err := wsURL(baseURL)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if !opts.JSON {
		fmt.Fprintln(stdout)
		fmt.Fprintf(stdout, "  %s %s\n", colorize(green, "connected"), colorize(dim, target))
		if len(opts.Filter) > 0 {
			fmt.Fprintf(stdout, "  %s %s\n", colorize(dim, "filter:"), colorize(dim, strings.Join(opts.Filter, ", ")))
		}
		fmt.Fprintln(stdout, rule(50))
		fmt.Fprintln(stdout)
	}

	filterSet := make(map[string]bool, len(opts.Filter))
	for _, f := range opts.Filter {
		filterSet[f] = true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if !wanted(msg, filterSet) {
				continue
			}
			if opts.JSON {
				fmt.Fprintln(stdout, string(msg))
			} else {
				renderEvent(msg)
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case <-sig:
		if !opts.JSON {
			fmt.Fprintln(stdout)
			fmt.Fprintln(stdout, colorize(dim, "  disconnecting..."))
		}
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second),
		)
		return nil
	case <-done:
		return nil
	}
}

func wanted(msg []byte, filter map[string]bool) bool {
	if len(filter) == 0 {
		return true
	}
	var ev struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &ev); err != nil {
		return true
	}
	return filter[ev.Type]
}

// renderEvent prints one event in a human-friendly format. Unknown event
// types are dumped as indented JSON.
func renderEvent(raw []byte) {
	var ev map[string]any
	if err := json.Unmarshal(raw, &ev); err != nil {
		fmt.Fprintf(stdout, "  %s\n", string(raw))
		return
	}

	evType, _ := ev["type"].(string)
	ts := colorize(dim, formatEventTime(ev))
	str := func(k string) string { s, _ := ev[k].(string); return s }
	num := func(k string) int64 { f, _ := ev[k].(float64); return int64(f) }
	flag := func(k string) bool { b, _ := ev[k].(bool); return b }

	switch evType {
	case "heartbeat":
		uptime := formatDuration(time.Duration(num("uptime_seconds")) * time.Second)
		line := fmt.Sprintf("  %s %s  %s  up %s", ts, colorize(dim, "heartbeat"),
			colorize(stateColor(str("state")), str("state")), colorize(dim, uptime))
		if id := num("active_vibration"); id > 0 {
			line += colorize(dim, fmt.Sprintf("  playing #%d", id))
		}
		fmt.Fprintln(stdout, line)

	case "state":
		fmt.Fprintf(stdout, "  %s %s  %s %s %s\n", ts, colorize(bold, "STATE"),
			colorize(stateColor(str("from")), str("from")),
			colorize(dim, "->"),
			colorize(stateColor(str("to")), str("to")))

	case "log":
		src := ""
		if c := str("component"); c != "" {
			src = colorize(dim, "["+c+"] ")
		}
		fmt.Fprintf(stdout, "  %s %s  %s%s\n", ts, formatLogLevel(str("level")), src, str("message"))

	case "vibration":
		stage := str("stage")
		c := cyan
		if stage == "ended" {
			c = statusColor(str("status"))
		}
		line := fmt.Sprintf("  %s %s  #%d %s  uid=%d usage=%s", ts,
			colorize(bold, "VIB"), num("id"), colorize(c, padRight(stage, 9)), num("uid"), str("usage"))
		if s := str("status"); s != "" {
			line += "  " + colorize(statusColor(s), s)
		}
		if p := str("package"); p != "" {
			line += colorize(dim, "  "+p)
		}
		fmt.Fprintln(stdout, line)

	case "thread":
		what := colorize(green, "idle")
		if flag("busy") {
			what = colorize(cyan, fmt.Sprintf("busy #%d", num("vibration_id")))
		}
		lock := ""
		if flag("wake_lock") {
			lock = colorize(dim, "  wake lock held")
		}
		fmt.Fprintf(stdout, "  %s %s  %s%s\n", ts, colorize(dim, "thread"), what, lock)

	case "actuator":
		what := colorize(dim, "off")
		if flag("vibrating") {
			what = colorize(cyan, "on")
		}
		fmt.Fprintf(stdout, "  %s %s  %d %s\n", ts, colorize(dim, "actuator"), num("id"), what)

	case "settings":
		var parts []string
		if u := str("usage"); u != "" {
			parts = append(parts, "usage="+u)
		}
		if i := str("intensity"); i != "" {
			parts = append(parts, "intensity="+i)
		}
		if f, ok := ev["adaptive_scale"].(float64); ok {
			parts = append(parts, fmt.Sprintf("adaptive=%.2f", f))
		}
		if flag("screen_off") {
			parts = append(parts, "screen off")
		}
		if b, ok := ev["external_control"].(bool); ok {
			parts = append(parts, fmt.Sprintf("external_control=%t", b))
		}
		fmt.Fprintf(stdout, "  %s %s  %s\n", ts, colorize(yellow, "SETTINGS"), strings.Join(parts, " "))

	case "session":
		fmt.Fprintf(stdout, "  %s %s  %s %s\n", ts, colorize(bold, "SESSION"), str("id"), colorize(cyan, str("stage")))

	default:
		pretty, err := json.MarshalIndent(ev, "  ", "  ")
		if err != nil {
			fmt.Fprintf(stdout, "  %s\n", string(raw))
			return
		}
		fmt.Fprintf(stdout, "  %s\n", string(pretty))
	}
}

// formatEventTime extracts and shortens the timestamp from an event.
func formatEventTime(ev map[string]any) string {
	tsRaw, ok := ev["ts"].(string)
	if !ok {
		return "        "
	}
	t, err := time.Parse(time.RFC3339Nano, tsRaw)
	if err != nil {
		return tsRaw
	}
	return t.Local().Format("15:04:05")
}

// formatLogLevel returns a colored, fixed-width log level label.
func formatLogLevel(level string) string {
	switch level {
	case "info":
		return colorize(green, "INFO ")
	case "warn":
		return colorize(yellow, "WARN ")
	case "error":
		return colorize(red, "ERROR")
	case "debug":
		return colorize(dim, "DEBUG")
	default:
		return padRight(level, 5)
	}
}
