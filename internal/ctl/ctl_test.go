package ctl

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureStdout redirects command output into a buffer for the test.
func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

type recorded struct {
	method string
	path   string
	query  string
	body   map[string]any
}

// fakeDaemon answers every request with reply and records what it saw.
func fakeDaemon(t *testing.T, code int, reply any) (*httptest.Server, func() []recorded) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []recorded
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		mu.Lock()
		seen = append(seen, rec)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recorded {
		mu.Lock()
		defer mu.Unlock()
		return append([]recorded(nil), seen...)
	}
}

func TestBuildEffectOneShot(t *testing.T) {
	c, err := BuildEffect(VibrateOptions{OneShot: "250:128", Repeat: -1})
	require.NoError(t, err)
	require.NotNil(t, c.Mono)
	require.NotNil(t, c.Mono.OneShot)
	assert.Equal(t, int64(250), c.Mono.OneShot.DurationMs)
	assert.Equal(t, 128, c.Mono.OneShot.Amplitude)

	_, err = c.Build()
	assert.NoError(t, err)
}

func TestBuildEffectWaveform(t *testing.T) {
	c, err := BuildEffect(VibrateOptions{Waveform: "0,100,50,100:0,255,0,128", Repeat: 2})
	require.NoError(t, err)
	w := c.Mono.Waveform
	require.NotNil(t, w)
	assert.Equal(t, []int64{0, 100, 50, 100}, w.TimingsMs)
	assert.Equal(t, []int{0, 255, 0, 128}, w.Amplitudes)
	require.NotNil(t, w.Repeat)
	assert.Equal(t, 2, *w.Repeat)

	c, err = BuildEffect(VibrateOptions{Waveform: "100,200", Repeat: -1})
	require.NoError(t, err)
	assert.Nil(t, c.Mono.Waveform.Amplitudes)
	assert.Nil(t, c.Mono.Waveform.Repeat)
}

func TestBuildEffectPrebakedAndFile(t *testing.T) {
	c, err := BuildEffect(VibrateOptions{Prebaked: "click", Repeat: -1})
	require.NoError(t, err)
	require.NotNil(t, c.Mono.Prebaked)
	assert.Equal(t, "click", c.Mono.Prebaked.Effect)
	assert.True(t, c.Mono.Prebaked.Fallback)

	path := filepath.Join(t.TempDir(), "fx.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"mono":{"one_shot":{"duration_ms":40}}}`), 0o644))
	c, err = BuildEffect(VibrateOptions{File: path, Repeat: -1})
	require.NoError(t, err)
	assert.Equal(t, int64(40), c.Mono.OneShot.DurationMs)
}

func TestBuildEffectRejects(t *testing.T) {
	cases := map[string]VibrateOptions{
		"no source":      {Repeat: -1},
		"two sources":    {OneShot: "10", Prebaked: "tick", Repeat: -1},
		"file and flag":  {OneShot: "10", File: "x.json", Repeat: -1},
		"bad duration":   {OneShot: "abc", Repeat: -1},
		"bad amplitude":  {OneShot: "10:loud", Repeat: -1},
		"empty timings":  {Waveform: ",,", Repeat: -1},
		"bad amplitudes": {Waveform: "10,20:1,x", Repeat: -1},
		"missing file":   {File: filepath.Join(os.TempDir(), "does-not-exist.json"), Repeat: -1},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := BuildEffect(opts)
			assert.Error(t, err)
		})
	}
}

func TestVibratePostsEffect(t *testing.T) {
	out := captureStdout(t)
	srv, seen := fakeDaemon(t, http.StatusAccepted, map[string]any{"id": 7, "status": "pending"})

	err := Vibrate(srv.URL, VibrateOptions{OneShot: "100", Repeat: -1, Usage: "alarm", UID: 42, Session: "s1"})
	require.NoError(t, err)

	require.Len(t, seen(), 1)
	req := seen()[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/api/vibrations", req.path)
	assert.Equal(t, "alarm", req.body["usage"])
	assert.Equal(t, float64(42), req.body["uid"])
	assert.Equal(t, "s1", req.body["session"])
	assert.Contains(t, req.body["effect"], "mono")
	assert.Contains(t, out.String(), "SUBMITTED  vibration #7  pending")
}

func TestVibrateWaitUsesQuery(t *testing.T) {
	captureStdout(t)
	srv, seen := fakeDaemon(t, http.StatusOK, map[string]any{"id": 3, "status": "finished"})

	require.NoError(t, Vibrate(srv.URL, VibrateOptions{Prebaked: "tick", Repeat: -1, Wait: true}))
	assert.Equal(t, "wait=true", seen()[0].query)
}

func TestVibrateRejectsInvalidLocally(t *testing.T) {
	srv, seen := fakeDaemon(t, http.StatusOK, map[string]any{})
	err := Vibrate(srv.URL, VibrateOptions{OneShot: "0", Repeat: -1})
	assert.Error(t, err)
	assert.Empty(t, seen())
}

func TestListRendersTable(t *testing.T) {
	out := captureStdout(t)
	srv, seen := fakeDaemon(t, http.StatusOK, map[string]any{
		"vibrations": []map[string]any{{
			"id":         12,
			"status":     "cancelled_by_user",
			"caller":     map[string]any{"uid": 1000, "usage": "touch", "package": "com.example"},
			"created_at": "2026-01-01T00:00:00Z",
			"started_at": "2026-01-01T00:00:00Z",
			"ended_at":   "2026-01-01T00:00:00.250Z",
		}},
	})

	require.NoError(t, List(srv.URL, ListOptions{Status: "cancelled_by_user", Limit: 5}))
	assert.Equal(t, "limit=5&status=cancelled_by_user", seen()[0].query)

	s := out.String()
	assert.Contains(t, s, "RECENT VIBRATIONS")
	assert.Contains(t, s, "cancelled_by_user")
	assert.Contains(t, s, "com.example")
	assert.Contains(t, s, "250ms")
}

func TestCancelSendsBody(t *testing.T) {
	out := captureStdout(t)
	srv, seen := fakeDaemon(t, http.StatusOK, map[string]any{"ok": true, "message": "cancel requested for vibration 9"})

	immediate := true
	require.NoError(t, Cancel(srv.URL, 9, CancelOptions{Status: "cancelled_superseded", Immediate: &immediate}))

	req := seen()[0]
	assert.Equal(t, "/api/vibrations/9/cancel", req.path)
	assert.Equal(t, "cancelled_superseded", req.body["status"])
	assert.Equal(t, true, req.body["immediate"])
	assert.Contains(t, out.String(), "cancel requested for vibration 9")
}

func TestDaemonErrorIsSurfaced(t *testing.T) {
	srv, _ := fakeDaemon(t, http.StatusNotFound, map[string]any{"error": "vibration not found"})
	err := Get(srv.URL, 99, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vibration not found")
}

func TestIntensityShowAndSet(t *testing.T) {
	out := captureStdout(t)
	srv, seen := fakeDaemon(t, http.StatusOK, map[string]any{
		"intensities": map[string]string{"touch": "off", "alarm": "high"},
	})
	require.NoError(t, Intensity(srv.URL, "", "", false))
	s := out.String()
	assert.Less(t, bytes.Index(out.Bytes(), []byte("alarm")), bytes.Index(out.Bytes(), []byte("touch")))
	assert.Contains(t, s, "off")

	require.NoError(t, Intensity(srv.URL, "touch", "low", true))
	req := seen()[1]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "touch", req.body["usage"])
	assert.Equal(t, "low", req.body["intensity"])
}

func TestSessionCommands(t *testing.T) {
	out := captureStdout(t)
	srv, seen := fakeDaemon(t, http.StatusOK, map[string]any{"ok": true, "id": "abc"})

	require.NoError(t, SessionStart(srv.URL, []int{1, 2}, false))
	assert.Contains(t, out.String(), "session abc")
	assert.Equal(t, []any{float64(1), float64(2)}, seen()[0].body["actuators"])

	require.NoError(t, SessionEnd(srv.URL, "abc", false))
	assert.Equal(t, http.MethodDelete, seen()[1].method)
	assert.Equal(t, "/api/sessions/abc", seen()[1].path)
}

func TestWSURL(t *testing.T) {
	u, err := wsURL("http://localhost:8080/")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws", u)

	u, err = wsURL("https://vib.example:443?x=1")
	require.NoError(t, err)
	assert.Equal(t, "wss://vib.example:443/ws", u)

	_, err = wsURL("ftp://nope")
	assert.Error(t, err)
}

func TestWatchFilter(t *testing.T) {
	filter := map[string]bool{"vibration": true}
	assert.True(t, wanted([]byte(`{"type":"vibration"}`), filter))
	assert.False(t, wanted([]byte(`{"type":"heartbeat"}`), filter))
	assert.True(t, wanted([]byte(`{"type":"heartbeat"}`), nil))
}

func TestRenderEvents(t *testing.T) {
	out := captureStdout(t)
	renderEvent([]byte(`{"type":"vibration","ts":"2026-01-01T00:00:00Z","id":5,"stage":"ended","status":"finished","uid":7,"usage":"alarm"}`))
	renderEvent([]byte(`{"type":"thread","busy":true,"vibration_id":5,"wake_lock":true}`))
	renderEvent([]byte(`{"type":"settings","usage":"touch","intensity":"off"}`))
	renderEvent([]byte(`{"type":"mystery","x":1}`))

	s := out.String()
	assert.Contains(t, s, "#5")
	assert.Contains(t, s, "finished")
	assert.Contains(t, s, "busy #5")
	assert.Contains(t, s, "wake lock held")
	assert.Contains(t, s, "usage=touch intensity=off")
	assert.Contains(t, s, `"mystery"`)
}

func TestHealthRendersChecks(t *testing.T) {
	out := captureStdout(t)
	srv, _ := fakeDaemon(t, http.StatusServiceUnavailable, map[string]any{
		"healthy": false,
		"checks": map[string]any{
			"actuators": map[string]any{"ok": true, "count": 2},
			"thread":    map[string]any{"ok": false, "wake_lock": false},
		},
	})

	require.NoError(t, Health(srv.URL, false))
	s := out.String()
	assert.Contains(t, s, "UNHEALTHY")
	assert.Contains(t, s, "count=2")
	assert.Contains(t, s, "FAIL thread")
}
