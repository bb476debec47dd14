// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/ffutop/stak/display"
	"github.com/ffutop/stak/gpio"
	"github.com/ffutop/stak/internal/application"
	"github.com/ffutop/stak/internal/config"
	"github.com/ffutop/stak/plugin/wasm"
	"github.com/ffutop/stak/watcher"
)

// terminalLogFile receives the log while the terminal display owns stdout.
const terminalLogFile = "stak.log"

func main() {
	fs := config.Flags()
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Printf("Failed to parse flags: %v\n", err)
		os.Exit(2)
	}

	// Load Configuration
	cfg, err := config.LoadConfig(fs)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	terminal := cfg.Display.Type == "terminal"
	if terminal && (cfg.Log.File == "" || cfg.Log.File == "-") {
		cfg.Log.File = terminalLogFile
	}
	logFile := setupLogger(cfg.Log)

	var disp display.Display
	fatal := func(err error) {
		slog.Error("Fatal error", "err", err)
		logFile.Sync()
		// Leave the alternate screen so the failure is visible.
		if t, ok := disp.(*display.Terminal); ok {
			t.Close()
		}
		os.Exit(1)
	}

	slog.Info("Starting stak...", "plugin", cfg.Plugin.Path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loader, err := wasm.NewLoader(ctx, wasm.Config{
		WASI:             cfg.Plugin.WASI,
		MemoryLimitPages: cfg.Plugin.MemoryLimitPages,
	})
	if err != nil {
		fatal(fmt.Errorf("failed to create plugin runtime: %w", err))
	}

	// The terminal display stands in for the device buttons and crank, so
	// it needs the simulated pin bank.
	gpioType := cfg.GPIO.Type
	if terminal {
		gpioType = "sim"
	}
	pins, err := gpio.Open(gpioType, cfg.GPIO.Device)
	if err != nil {
		fatal(fmt.Errorf("failed to open gpio: %w", err))
	}
	sim, _ := pins.(*gpio.Sim)

	disp, err = display.Open(cfg.Display, sim, wiring(cfg), cancel)
	if err != nil {
		fatal(fmt.Errorf("failed to open display: %w", err))
	}

	var w watcher.ChangeWatcher
	if cfg.HotReload.Enabled {
		w, err = watcher.Open(cfg.HotReload.Dir, watcher.Options{
			Backend: cfg.HotReload.Backend,
			Settle:  cfg.HotReload.Settle,
		})
		if err != nil {
			slog.Warn("Hot reload disabled", "dir", cfg.HotReload.Dir, "err", err)
			w = nil
		}
	}

	app, err := application.Create(ctx, cfg, application.Deps{
		Loader:  loader,
		Pins:    pins,
		Display: disp,
		Watcher: w,
		Fatal:   fatal,
	})
	if err != nil {
		fatal(err)
	}

	if err := app.Run(ctx); err != nil {
		fatal(err)
	}

	slog.Info("Shutting down...")
	code := 0
	if err := app.Destroy(context.Background()); err != nil {
		slog.Error("Teardown incomplete", "err", err)
		code = 1
	}
	if err := loader.Close(context.Background()); err != nil {
		slog.Warn("Failed to close plugin runtime", "err", err)
	}
	slog.Info("Goodbye.")
	logFile.Sync()
	os.Exit(code)
}

func wiring(cfg *config.Config) display.Wiring {
	return display.Wiring{
		EncoderA:  cfg.Encoder.PinA,
		EncoderB:  cfg.Encoder.PinB,
		Rotary:    cfg.Buttons.Rotary,
		Shutter:   cfg.Buttons.Shutter,
		Power:     cfg.Buttons.Power,
		ActiveLow: cfg.Buttons.ActiveLow,
	}
}

// setupLogger installs the default logger and returns the file it writes to.
func setupLogger(cfg config.LogConfig) *os.File {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	out := os.Stdout
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stdout: %v\n", err)
		} else {
			out = f
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(out, opts)))
	return out
}
