// Vibratord is the vibration service daemon.
//
// It loads configuration, brings up the simulated actuators and the
// vibration manager, and serves the HTTP/WebSocket control API. Shutdown
// is handled gracefully on SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/large-farva/vibrator-engine/internal/app"
	"github.com/large-farva/vibrator-engine/internal/config"
	"github.com/large-farva/vibrator-engine/internal/logging"
)

const defaultConfigPath = "/etc/vibrator/vibrator.toml"

func main() {
	var (
		configPath = pflag.StringP("config", "c", defaultConfigPath, "Path to config TOML")
		bind       = pflag.String("bind", "", "HTTP bind address (overrides [server] bind)")
		logLevel   = pflag.String("log-level", "", "Log level (debug, info, warn, error)")
		demo       = pflag.Bool("demo", false, "Submit demo vibrations on a loop")
	)
	pflag.Parse()

	cfg, err := loadConfig(*configPath, pflag.CommandLine.Changed("config"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "vibratord: config load failed: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *demo {
		cfg.Demo.Enabled = true
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	a, err := app.New(app.Options{
		Logger:     logger,
		Cfg:        cfg,
		Bind:       *bind,
		ConfigPath: *configPath,
	})
	if err != nil {
		logger.Error("vibratord init failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("vibratord failed", "err", err)
		os.Exit(1)
	}

	// Brief pause so in-flight log writes can flush before exit.
	time.Sleep(50 * time.Millisecond)
}

// loadConfig reads path. A missing file at the default location falls back
// to the built-in defaults; an explicitly named file must exist.
func loadConfig(path string, explicit bool) (config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}
