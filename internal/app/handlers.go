package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/large-farva/vibrator-engine/internal/effect"
	"github.com/large-farva/vibrator-engine/internal/hal"
	"github.com/large-farva/vibrator-engine/internal/manager"
	"github.com/large-farva/vibrator-engine/internal/scaler"
	"github.com/large-farva/vibrator-engine/internal/vibrator"
)

// Handler returns the daemon's HTTP routes.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.HandleFunc("GET /api/status", a.handleStatus)
	mux.HandleFunc("GET /api/version", a.handleVersion)
	mux.HandleFunc("GET /api/config", a.handleConfig)
	mux.HandleFunc("GET /api/actuators", a.handleActuators)

	mux.HandleFunc("POST /api/vibrations", a.handleVibrate)
	mux.HandleFunc("GET /api/vibrations", a.handleVibrations)
	mux.HandleFunc("GET /api/vibrations/{id}", a.handleVibration)
	mux.HandleFunc("POST /api/vibrations/{id}/cancel", a.handleCancel)

	mux.HandleFunc("GET /api/settings/intensity", a.handleIntensities)
	mux.HandleFunc("POST /api/settings/intensity", a.handleSetIntensity)
	mux.HandleFunc("GET /api/settings/adaptive", a.handleAdaptiveScales)
	mux.HandleFunc("POST /api/settings/adaptive", a.handleSetAdaptive)
	mux.HandleFunc("POST /api/screen", a.handleScreen)

	mux.HandleFunc("GET /api/sessions", a.handleSession)
	mux.HandleFunc("POST /api/sessions", a.handleStartSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", a.handleEndSession)
	mux.HandleFunc("POST /api/external-control", a.handleExternalControl)

	mux.HandleFunc("GET /api/battery", a.handleBattery)
	mux.HandleFunc("GET /api/metrics", a.handleMetrics)
	mux.HandleFunc("GET /api/logs", a.handleLogs)
	mux.Handle("GET /ws", a.wsHub.Handler())
	return a.withRequestID(mux)
}

// withRequestID tags every request with an X-Request-ID, generating one
// when the client did not send it.
func (a *App) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		start := time.Now()
		next.ServeHTTP(w, r)
		a.log.Debug("http request", "method", r.Method, "path", r.URL.Path, "request_id", id, "took", time.Since(start))
	})
}

// ---------------------------------------------------------------------------
// Core handlers
// ---------------------------------------------------------------------------

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	// If the client asks for JSON, return component-level health checks.
	if r.Header.Get("Accept") == "application/json" {
		a.handleHealthDetailed(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (a *App) handleHealthDetailed(w http.ResponseWriter, _ *http.Request) {
	checks := map[string]any{}
	allOK := true

	acts := a.mgr.Actuators()
	checks["actuators"] = map[string]any{"ok": len(acts) > 0, "count": len(acts)}
	if len(acts) == 0 {
		allOK = false
	}

	booted := a.State() != StateBooting
	checks["thread"] = map[string]any{"ok": booted, "wake_lock": a.mgr.Thread().WakeLockHeld()}
	if !booted {
		allOK = false
	}
	checks["ws"] = map[string]any{"ok": true, "clients": a.wsHub.Clients(), "dropped": a.wsHub.Dropped()}

	status := http.StatusOK
	if !allOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"healthy": allOK,
		"checks":  checks,
	})
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"name":             "vibrator-engine",
		"state":            a.State(),
		"uptime_seconds":   int64(time.Since(a.startedAt).Seconds()),
		"actuators":        len(a.cfg.Actuators),
		"external_control": a.mgr.ExternalControl(),
		"demo_enabled":     a.cfg.Demo.Enabled,
		"ws_clients":       a.wsHub.Clients(),
	}
	if id := a.mgr.Active(); id != 0 {
		resp["active_vibration"] = id
	}
	if s, ok := a.mgr.ActiveSession(); ok {
		resp["session"] = s
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *App) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":    Version,
		"go_version": runtime.Version(),
		"built_at":   BuiltAt,
	})
}

func (a *App) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"path":   a.configPath,
		"config": a.cfg,
	})
}

func (a *App) handleActuators(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"actuators": a.mgr.Actuators()})
}

// ---------------------------------------------------------------------------
// Vibrations
// ---------------------------------------------------------------------------

// vibrateRequest is the body of POST /api/vibrations.
type vibrateRequest struct {
	UID      int                 `json:"uid"`
	DeviceID int                 `json:"device_id"`
	Package  string              `json:"package"`
	Reason   string              `json:"reason"`
	Usage    string              `json:"usage"`
	Session  string              `json:"session,omitempty"`
	Effect   effect.CombinedSpec `json:"effect"`
}

func (a *App) handleVibrate(w http.ResponseWriter, r *http.Request) {
	if !a.limits.allow(clientKey(r)) {
		a.metrics.RateLimited(r.Context())
		w.Header().Set("Retry-After", "1")
		jsonError(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	var req vibrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	usage, err := scaler.ParseUsage(req.Usage)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	combined, err := req.Effect.Build()
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	v, err := a.mgr.Submit(r.Context(), manager.Request{
		Caller: vibrator.CallerInfo{
			UID:      req.UID,
			DeviceID: req.DeviceID,
			Package:  req.Package,
			Reason:   req.Reason,
			Usage:    usage,
		},
		Effect:  combined,
		Session: req.Session,
	})
	if err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); !wait {
		writeJSON(w, http.StatusAccepted, v.Snapshot())
		return
	}

	if _, err := v.Wait(r.Context()); err != nil {
		// The client went away; treat it like a dead binder.
		a.log.Info("client disconnected while waiting", "vibration", v.ID)
		_ = a.mgr.Cancel(v.ID, vibrator.StatusCancelledBinderDied, true)
		return
	}
	writeJSON(w, http.StatusOK, v.Snapshot())
}

func (a *App) handleVibrations(w http.ResponseWriter, r *http.Request) {
	list := a.mgr.Recent()

	if s := r.URL.Query().Get("status"); s != "" {
		want, err := vibrator.ParseStatus(s)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		filtered := list[:0]
		for _, info := range list {
			if info.Status == want {
				filtered = append(filtered, info)
			}
		}
		list = filtered
	}
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n < len(list) {
		list = list[:n]
	}
	writeJSON(w, http.StatusOK, map[string]any{"vibrations": list})
}

func (a *App) handleVibration(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	info, err := a.mgr.Vibration(id)
	if err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *App) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Status    string `json:"status"`
		Immediate *bool  `json:"immediate"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			jsonError(w, "bad request: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	st := vibrator.StatusCancelledByUser
	if body.Status != "" {
		parsed, err := vibrator.ParseStatus(body.Status)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		st = parsed
	}

	var err error
	if body.Immediate != nil {
		err = a.mgr.Cancel(id, st, *body.Immediate)
	} else {
		err = a.mgr.CancelWithDefaultUrgency(id, st)
	}
	if err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	writeOK(w, fmt.Sprintf("cancel requested for vibration %d", id))
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

func (a *App) handleIntensities(w http.ResponseWriter, _ *http.Request) {
	out := map[string]string{}
	for u, i := range a.mgr.Intensities() {
		out[string(u)] = i.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{"intensities": out})
}

func (a *App) handleSetIntensity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Usage     string `json:"usage"`
		Intensity string `json:"intensity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	usage, err := scaler.ParseUsage(body.Usage)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	level, err := scaler.ParseIntensity(body.Intensity)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.mgr.SetIntensity(usage, level)
	a.log.Info("intensity changed", "usage", usage, "intensity", level.String())
	writeOK(w, fmt.Sprintf("%s intensity set to %s", usage, level))
}

func (a *App) handleAdaptiveScales(w http.ResponseWriter, _ *http.Request) {
	out := map[string]float64{}
	for u, s := range a.mgr.AdaptiveScales() {
		out[string(u)] = s
	}
	writeJSON(w, http.StatusOK, map[string]any{"scales": out})
}

func (a *App) handleSetAdaptive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Usage string  `json:"usage"`
		Scale float64 `json:"scale"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	usage, err := scaler.ParseUsage(body.Usage)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := a.mgr.SetAdaptiveScale(usage, body.Scale); err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	writeOK(w, fmt.Sprintf("%s adaptive scale set to %.2f", usage, body.Scale))
}

func (a *App) handleScreen(w http.ResponseWriter, r *http.Request) {
	var body struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	switch strings.ToLower(body.State) {
	case "off":
		a.mgr.ScreenOff()
		writeOK(w, "screen off")
	case "on":
		writeOK(w, "screen on")
	default:
		jsonError(w, `state must be "on" or "off"`, http.StatusBadRequest)
	}
}

// ---------------------------------------------------------------------------
// Sessions and external control
// ---------------------------------------------------------------------------

func (a *App) handleSession(w http.ResponseWriter, _ *http.Request) {
	s, ok := a.mgr.ActiveSession()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"session": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": s})
}

func (a *App) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Actuators []int `json:"actuators"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			jsonError(w, "bad request: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	id, err := a.mgr.StartSession(body.Actuators)
	if err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

func (a *App) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.mgr.EndSession(id); err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	writeOK(w, "session "+id+" ended")
}

func (a *App) handleExternalControl(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := a.mgr.SetExternalControl(body.Enabled); err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	writeOK(w, fmt.Sprintf("external control %t", body.Enabled))
}

// ---------------------------------------------------------------------------
// Battery, metrics, logs
// ---------------------------------------------------------------------------

func (a *App) handleBattery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"battery": a.mgr.Battery()})
}

func (a *App) handleMetrics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	points, err := a.metrics.Snapshot(ctx)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"metrics": points})
}

func (a *App) handleLogs(w http.ResponseWriter, r *http.Request) {
	a.logBufMu.Lock()
	entries := make([]logEntry, len(a.logBuf))
	copy(entries, a.logBuf)
	a.logBufMu.Unlock()

	if level := r.URL.Query().Get("level"); level != "" {
		var filtered []logEntry
		for _, e := range entries {
			if e.Level == level {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n < len(entries) {
		entries = entries[len(entries)-n:]
	}
	if entries == nil {
		entries = []logEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": entries})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		jsonError(w, "invalid vibration id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// statusFor maps manager and driver errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, manager.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, manager.ErrDisabled):
		return http.StatusForbidden
	case errors.Is(err, manager.ErrSessionActive), errors.Is(err, manager.ErrExternalControl):
		return http.StatusConflict
	case errors.Is(err, manager.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, hal.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, effect.ErrInvalidEffect), errors.Is(err, manager.ErrInvalidSetting):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": msg})
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]any{
		"ok":    false,
		"error": msg,
	})
}
