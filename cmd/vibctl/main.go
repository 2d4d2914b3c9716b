// Vibctl is the command-line client for monitoring and controlling a running
// vibratord instance. It submits and cancels vibrations, adjusts user
// settings, and streams live events from the daemon.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/large-farva/vibrator-engine/internal/ctl"
)

func main() {
	var (
		host    = pflag.StringP("host", "H", "http://127.0.0.1:8080", "Vibrator daemon URL (e.g. http://192.168.8.1:8080)")
		jsonOut = pflag.Bool("json", false, "Output raw JSON instead of formatted text")
		filter  = pflag.StringSlice("filter", nil, "Event types to show in watch (e.g. --filter vibration,state)")
	)

	// Stop parsing global flags at the first non-flag argument (the command
	// name), so subcommand-specific flags like --usage are not rejected.
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if pflag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cmd := pflag.Arg(0)
	subArgs := pflag.Args()[1:]

	var err error
	switch cmd {
	// ── Query commands ────────────────────────────────────────────
	case "status":
		err = ctl.Status(*host, *jsonOut)

	case "health":
		err = ctl.Health(*host, *jsonOut)

	case "version":
		err = ctl.VersionInfo(*host, *jsonOut)

	case "config":
		err = ctl.Config(*host, *jsonOut)

	case "actuators":
		err = ctl.Actuators(*host, *jsonOut)

	case "list":
		opts := ctl.ListOptions{JSON: *jsonOut}
		fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
		fs.StringVar(&opts.Status, "status", "", "Only show vibrations with this status")
		fs.IntVar(&opts.Limit, "limit", 0, "Limit number of vibrations shown")
		if err = fs.Parse(subArgs); err == nil {
			err = ctl.List(*host, opts)
		}

	case "get":
		var id int64
		if id, err = vibrationID(subArgs); err == nil {
			err = ctl.Get(*host, id, *jsonOut)
		}

	case "battery":
		err = ctl.Battery(*host, *jsonOut)

	case "metrics":
		err = ctl.Metrics(*host, *jsonOut)

	case "logs":
		opts := ctl.LogsOptions{JSON: *jsonOut}
		fs := pflag.NewFlagSet("logs", pflag.ContinueOnError)
		fs.StringVar(&opts.Level, "level", "", "Filter by log level (debug, info, warn, error)")
		fs.IntVar(&opts.Limit, "limit", 0, "Limit number of log entries shown")
		fs.BoolVar(&opts.Tail, "tail", false, "Stream live log events (like watch --filter log)")
		if err = fs.Parse(subArgs); err == nil {
			err = ctl.Logs(*host, opts)
		}

	// ── Control commands ──────────────────────────────────────────
	case "vibrate":
		opts := ctl.VibrateOptions{JSON: *jsonOut}
		fs := pflag.NewFlagSet("vibrate", pflag.ContinueOnError)
		fs.StringVar(&opts.OneShot, "one-shot", "", "One-shot as DURATION_MS[:AMPLITUDE]")
		fs.StringVar(&opts.Waveform, "waveform", "", "Waveform as T1,T2,...[:A1,A2,...]")
		fs.IntVar(&opts.Repeat, "repeat", -1, "Waveform repeat index (-1 for none)")
		fs.StringVar(&opts.Prebaked, "prebaked", "", "Prebaked effect name (click, tick, thud, ...)")
		fs.StringVar(&opts.Strength, "strength", "", "Prebaked strength (light, medium, strong)")
		fs.StringVarP(&opts.File, "file", "f", "", "JSON file holding a combined effect")
		fs.StringVar(&opts.Usage, "usage", "touch", "Vibration usage (alarm, ringtone, notification, touch, ...)")
		fs.IntVar(&opts.UID, "uid", 1000, "Caller uid")
		fs.StringVar(&opts.Package, "package", "vibctl", "Caller package name")
		fs.StringVar(&opts.Session, "session", "", "Submit into an open vibration session")
		fs.BoolVarP(&opts.Wait, "wait", "w", false, "Block until the vibration ends")
		if err = fs.Parse(subArgs); err == nil {
			err = ctl.Vibrate(*host, opts)
		}

	case "cancel":
		opts := ctl.CancelOptions{JSON: *jsonOut}
		fs := pflag.NewFlagSet("cancel", pflag.ContinueOnError)
		fs.StringVar(&opts.Status, "status", "", "Terminal status to record (default cancelled_by_user)")
		immediate := fs.Bool("immediate", false, "Stop without ramping down")
		if err = fs.Parse(subArgs); err != nil {
			break
		}
		if fs.Changed("immediate") {
			opts.Immediate = immediate
		}
		var id int64
		if id, err = vibrationID(fs.Args()); err == nil {
			err = ctl.Cancel(*host, id, opts)
		}

	case "intensity":
		// intensity [USAGE LEVEL]
		switch len(subArgs) {
		case 0:
			err = ctl.Intensity(*host, "", "", *jsonOut)
		case 2:
			err = ctl.Intensity(*host, subArgs[0], subArgs[1], *jsonOut)
		default:
			err = fmt.Errorf("usage: vibctl intensity [USAGE LEVEL]")
		}

	case "adaptive":
		// adaptive [USAGE SCALE]
		switch len(subArgs) {
		case 0:
			err = ctl.Adaptive(*host, "", 0, *jsonOut)
		case 2:
			var scale float64
			if scale, err = strconv.ParseFloat(subArgs[1], 64); err == nil {
				err = ctl.Adaptive(*host, subArgs[0], scale, *jsonOut)
			}
		default:
			err = fmt.Errorf("usage: vibctl adaptive [USAGE SCALE]")
		}

	case "screen-off":
		err = ctl.ScreenOff(*host, *jsonOut)

	case "external-control":
		if len(subArgs) != 1 || (subArgs[0] != "on" && subArgs[0] != "off") {
			err = fmt.Errorf("usage: vibctl external-control on|off")
			break
		}
		err = ctl.ExternalControl(*host, subArgs[0] == "on", *jsonOut)

	case "session":
		if len(subArgs) < 1 {
			err = fmt.Errorf("usage: vibctl session start [ACTUATOR...] | end ID")
			break
		}
		switch subArgs[0] {
		case "start":
			var ids []int
			for _, a := range subArgs[1:] {
				var n int
				if n, err = strconv.Atoi(a); err != nil {
					break
				}
				ids = append(ids, n)
			}
			if err == nil {
				err = ctl.SessionStart(*host, ids, *jsonOut)
			}
		case "end":
			if len(subArgs) != 2 {
				err = fmt.Errorf("usage: vibctl session end ID")
				break
			}
			err = ctl.SessionEnd(*host, subArgs[1], *jsonOut)
		default:
			err = fmt.Errorf("unknown session command %q", subArgs[0])
		}

	// ── Live streaming ────────────────────────────────────────────
	case "watch":
		opts := ctl.WatchOptions{Filter: *filter, JSON: *jsonOut}
		fs := pflag.NewFlagSet("watch", pflag.ContinueOnError)
		fs.StringSliceVar(&opts.Filter, "filter", opts.Filter, "Event types to show")
		if err = fs.Parse(subArgs); err == nil {
			err = ctl.Watch(*host, opts)
		}

	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func vibrationID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one vibration id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid vibration id %q", args[0])
	}
	return id, nil
}

func usage() {
	fmt.Print(`
  vibctl - vibrator service control CLI

  USAGE
    vibctl [flags] <command> [command-flags]

  COMMANDS (query)
    status            Show daemon state, uptime, and the playing vibration
    health            Check daemon and component health
    version           Show CLI and daemon version information
    config            Show the daemon's running configuration
    actuators         List actuators and their capabilities
    list              List recent vibrations
    get ID            Show one vibration
    battery           Show per-uid vibrator on-time
    metrics           Show daemon metrics
    logs              Show recent daemon log messages

  COMMANDS (control)
    vibrate           Submit a vibration
    cancel ID         Cancel a pending or playing vibration
    intensity [U L]   Show intensities, or set usage U to level L
    adaptive [U S]    Show adaptive scales, or set usage U to scale S
    screen-off        Report the screen turning off
    external-control on|off
                      Hand the actuators to an external controller
    session start [ACTUATOR...]
                      Open a vendor vibration session
    session end ID    Close a vibration session

  COMMANDS (live)
    watch             Stream live events from the daemon (Ctrl-C to stop)

  GLOBAL FLAGS
    -H, --host URL      Daemon base URL (default: http://127.0.0.1:8080)
        --json          Output raw JSON instead of formatted text
        --filter TYPE   Event types to show in watch (comma-separated)

  COMMAND FLAGS
    vibrate:
        --one-shot MS[:AMP]     Constant vibration, amplitude 1-255
        --waveform T,..[:A,..]  Timed pattern; timings only means on/off
        --repeat N              Waveform repeat index (default: -1)
        --prebaked NAME         Prebaked effect (click, tick, thud, ...)
        --strength S            Prebaked strength (light, medium, strong)
        -f, --file PATH         JSON combined effect (mono/stereo/sequential)
        --usage U               Usage class (default: touch)
        --uid N                 Caller uid (default: 1000)
        --package NAME          Caller package (default: vibctl)
        --session ID            Submit into an open session
        -w, --wait              Block until the vibration ends

    list:
        --status S          Filter by status (finished, cancelled_by_user, ...)
        --limit N           Limit number of vibrations shown

    cancel:
        --status S          Status to record (default: cancelled_by_user)
        --immediate         Stop without ramping down

    logs:
        --level LEVEL       Filter by log level (debug, info, warn, error)
        --limit N           Limit number of log entries shown
        --tail              Stream live log events

  EXAMPLES
    vibctl status
    vibctl --json status
    vibctl vibrate --one-shot 500:200 --usage alarm --wait
    vibctl vibrate --waveform 0,200,100,200 --repeat 0
    vibctl vibrate --prebaked click --strength strong
    vibctl vibrate -f effects/stereo.json
    vibctl list --status finished --limit 10
    vibctl cancel 42 --immediate
    vibctl intensity touch off
    vibctl adaptive ringtone 0.5
    vibctl session start 1 2
    vibctl logs --level warn --tail
    vibctl --host http://192.168.8.1:8080 watch --filter vibration,thread

`)
}
