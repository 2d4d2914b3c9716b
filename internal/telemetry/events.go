// Package telemetry defines the typed event structs that flow over the
// WebSocket connection between vibratord and its clients.
package telemetry

import "time"

// EventType identifies the kind of WebSocket event.
type EventType string

const (
	EventHeartbeat EventType = "heartbeat"
	EventState     EventType = "state"
	EventLog       EventType = "log"
	EventVibration EventType = "vibration"
	EventThread    EventType = "thread"
	EventActuator  EventType = "actuator"
	EventSettings  EventType = "settings"
	EventSession   EventType = "session"
)

// Vibration lifecycle stages.
const (
	StageSubmitted = "submitted"
	StageStarted   = "started"
	StageEnded     = "ended"
	StageReleased  = "released"
)

// Event is the base envelope shared by every event type.
type Event struct {
	Type EventType `json:"type"`
	TS   string    `json:"ts"`
}

// NewEvent stamps an envelope with the current time.
func NewEvent(t EventType) Event {
	return Event{Type: t, TS: NowTS()}
}

// NowTS returns the current UTC time as an RFC 3339 nano string, matching the
// timestamp format used across all events.
func NowTS() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Heartbeat is sent periodically so clients can detect connectivity and
// monitor daemon uptime.
type Heartbeat struct {
	Event
	State           string `json:"state"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	ActiveVibration int64  `json:"active_vibration,omitempty"`
}

// StateTransition is emitted whenever the daemon moves between operating
// states (e.g. IDLE -> VIBRATING).
type StateTransition struct {
	Event
	From string `json:"from"`
	To   string `json:"to"`
}

// LogLine carries a human-readable log message at a severity level.
type LogLine struct {
	Event
	Level     string `json:"level"`
	Component string `json:"component,omitempty"`
	Message   string `json:"message"`
}

// Vibration reports a lifecycle step of one vibration request.
type Vibration struct {
	Event
	ID      int64  `json:"id"`
	Session string `json:"session,omitempty"`
	Stage   string `json:"stage"`
	Status  string `json:"status,omitempty"`
	UID     int    `json:"uid"`
	Usage   string `json:"usage"`
	Package string `json:"package,omitempty"`
}

// Thread reports the vibration worker going busy or idle.
type Thread struct {
	Event
	Busy        bool  `json:"busy"`
	VibrationID int64 `json:"vibration_id,omitempty"`
	WakeLock    bool  `json:"wake_lock"`
}

// Actuator reports an actuator turning on or off.
type Actuator struct {
	Event
	ID        int  `json:"id"`
	Vibrating bool `json:"vibrating"`
}

// Settings reports a change of user vibration settings.
type Settings struct {
	Event
	Usage         string   `json:"usage"`
	Intensity     string   `json:"intensity,omitempty"`
	AdaptiveScale *float64 `json:"adaptive_scale,omitempty"`
	ScreenOff     bool     `json:"screen_off,omitempty"`
	External      *bool    `json:"external_control,omitempty"`
}

// Session reports a vendor vibration session starting or ending.
type Session struct {
	Event
	ID        string `json:"id"`
	Stage     string `json:"stage"`
	Actuators []int  `json:"actuators,omitempty"`
}
