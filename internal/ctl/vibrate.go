package ctl

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/large-farva/vibrator-engine/internal/effect"
)

// VibrateOptions controls the vibrate command. Exactly one effect source
// must be set.
type VibrateOptions struct {
	// OneShot is "DURATION_MS" or "DURATION_MS:AMPLITUDE".
	OneShot string
	// Waveform is "T1,T2,...:A1,A2,..." or only timings for on/off.
	Waveform string
	// Repeat is the waveform repeat index, -1 for none.
	Repeat int
	// Prebaked is an effect name such as "click".
	Prebaked string
	Strength string
	// File is a JSON file holding a combined effect.
	File string

	Usage   string
	UID     int
	Package string
	Session string
	Wait    bool
	JSON    bool
}

// VibrationInfo mirrors a vibration snapshot from the daemon.
type VibrationInfo struct {
	ID     int64 `json:"id"`
	Caller struct {
		UID     int    `json:"uid"`
		Package string `json:"package"`
		Reason  string `json:"reason"`
		Usage   string `json:"usage"`
	} `json:"caller"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"created_at"`
	StartedAt *string `json:"started_at,omitempty"`
	EndedAt   *string `json:"ended_at,omitempty"`
}

// BuildEffect turns the effect flags into a combined effect spec.
func BuildEffect(opts VibrateOptions) (effect.CombinedSpec, error) {
	var spec effect.Spec
	sources := 0

	if opts.OneShot != "" {
		sources++
		durStr, ampStr, hasAmp := strings.Cut(opts.OneShot, ":")
		d, err := strconv.ParseInt(strings.TrimSpace(durStr), 10, 64)
		if err != nil {
			return effect.CombinedSpec{}, fmt.Errorf("--one-shot: bad duration %q", durStr)
		}
		shot := &effect.OneShotSpec{DurationMs: d}
		if hasAmp {
			a, err := strconv.Atoi(strings.TrimSpace(ampStr))
			if err != nil {
				return effect.CombinedSpec{}, fmt.Errorf("--one-shot: bad amplitude %q", ampStr)
			}
			shot.Amplitude = a
		}
		spec.OneShot = shot
	}

	if opts.Waveform != "" {
		sources++
		timingStr, ampStr, hasAmps := strings.Cut(opts.Waveform, ":")
		timings, err := parseInt64List(timingStr)
		if err != nil {
			return effect.CombinedSpec{}, fmt.Errorf("--waveform timings: %w", err)
		}
		w := &effect.WaveformSpec{TimingsMs: timings}
		if hasAmps {
			amps, err := parseInt64List(ampStr)
			if err != nil {
				return effect.CombinedSpec{}, fmt.Errorf("--waveform amplitudes: %w", err)
			}
			for _, a := range amps {
				w.Amplitudes = append(w.Amplitudes, int(a))
			}
		}
		if opts.Repeat >= 0 {
			r := opts.Repeat
			w.Repeat = &r
		}
		spec.Waveform = w
	}

	if opts.Prebaked != "" {
		sources++
		spec.Prebaked = &effect.PrebakedSpec{Effect: opts.Prebaked, Strength: opts.Strength, Fallback: true}
	}

	if opts.File != "" {
		sources++
		if sources > 1 {
			return effect.CombinedSpec{}, errors.New("--file cannot be combined with other effect flags")
		}
		b, err := os.ReadFile(opts.File)
		if err != nil {
			return effect.CombinedSpec{}, err
		}
		var c effect.CombinedSpec
		if err := json.Unmarshal(b, &c); err != nil {
			return effect.CombinedSpec{}, fmt.Errorf("%s: %w", opts.File, err)
		}
		return c, nil
	}

	switch sources {
	case 0:
		return effect.CombinedSpec{}, errors.New("one of --one-shot, --waveform, --prebaked or --file is required")
	case 1:
		return effect.CombinedSpec{Mono: &spec}, nil
	default:
		return effect.CombinedSpec{}, errors.New("only one effect flag may be given")
	}
}

func parseInt64List(s string) ([]int64, error) {
	var out []int64
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", f)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, errors.New("empty list")
	}
	return out, nil
}

// Vibrate submits a vibration to the daemon.
func Vibrate(baseURL string, opts VibrateOptions) error {
	spec, err := BuildEffect(opts)
	if err != nil {
		return err
	}
	if _, err := spec.Build(); err != nil {
		return err
	}

	body := map[string]any{
		"uid":     opts.UID,
		"package": opts.Package,
		"usage":   opts.Usage,
		"reason":  "vibctl",
		"effect":  spec,
	}
	if opts.Session != "" {
		body["session"] = opts.Session
	}

	path := "/api/vibrations"
	client := httpClient
	if opts.Wait {
		path += "?wait=true"
		client = waitClient
	}

	var v VibrationInfo
	if err := doJSON(client, http.MethodPost, baseURL, path, body, &v); err != nil {
		return err
	}

	if opts.JSON {
		return printJSON(v)
	}
	fmt.Fprintln(stdout)
	verb := "SUBMITTED"
	if opts.Wait {
		verb = "DONE"
	}
	fmt.Fprintf(stdout, "  %s  vibration #%d  %s\n", colorize(green, verb), v.ID, colorize(statusColor(v.Status), v.Status))
	fmt.Fprintln(stdout)
	return nil
}
