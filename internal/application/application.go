// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package application ties the plugin host, the encoder, the buttons, the
// display and the plugin file watch into one running device.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ffutop/stak/display"
	"github.com/ffutop/stak/encoder"
	"github.com/ffutop/stak/gpio"
	"github.com/ffutop/stak/input"
	"github.com/ffutop/stak/internal/config"
	"github.com/ffutop/stak/plugin"
	"github.com/ffutop/stak/watcher"
)

// ErrJoinTimeout is returned by Destroy when the decoder goroutine did not
// return within the configured join timeout.
var ErrJoinTimeout = errors.New("application: decoder did not stop in time")

// Deps are the collaborators selected by the caller.
type Deps struct {
	Loader plugin.Loader
	Pins   gpio.Pins
	// Display receives every frame. Nil discards frames.
	Display display.Display
	// Watcher reports plugin file changes. Nil disables hot reload.
	Watcher watcher.ChangeWatcher
	// Fatal receives errors the runtime cannot continue from.
	Fatal func(error)
}

// Application is the running device. Everything except Terminate,
// IsTerminating and RotaryValue belongs to the goroutine that calls Run.
type Application struct {
	cfg *config.Config

	host    *plugin.Host
	pins    gpio.Pins
	decoder *encoder.Decoder
	buttons *input.Buttons
	canvas  *display.Canvas
	display display.Display
	watcher watcher.ChangeWatcher
	trigger watcher.Trigger
	fatal   func(error)

	terminating atomic.Bool
	decoderDone chan struct{}
	destroyed   bool

	state State
	frame frameState
	stats Stats

	now   func() time.Time
	sleep func(time.Duration)
}

// Create allocates the application, loads the plugin at cfg.Plugin.Path and
// runs its init.
func Create(ctx context.Context, cfg *config.Config, deps Deps) (*Application, error) {
	if deps.Loader == nil {
		return nil, errors.New("application: no plugin loader")
	}
	if deps.Pins == nil {
		return nil, errors.New("application: no pin bank")
	}
	d := deps.Display
	if d == nil {
		d = display.NewNull(cfg.Display.Width, cfg.Display.Height)
	}
	fatal := deps.Fatal
	if fatal == nil {
		fatal = func(err error) { slog.Error("Fatal error", "err", err) }
	}

	a := &Application{
		cfg:     cfg,
		pins:    deps.Pins,
		decoder: encoder.New(deps.Pins, cfg.Encoder.PinA, cfg.Encoder.PinB, cfg.Encoder.SampleInterval),
		buttons: input.New(deps.Pins, cfg.Buttons),
		canvas:  display.NewCanvas(d.Size()),
		display: d,
		watcher: deps.Watcher,
		trigger: watcher.NewTrigger(cfg.Plugin.Path),
		fatal:   fatal,
		now:     time.Now,
		sleep:   time.Sleep,
	}
	a.host = plugin.NewHost(deps.Loader, a)

	if err := a.host.Load(ctx, cfg.Plugin.Path); err != nil {
		return nil, err
	}
	a.host.Init(ctx)
	a.resetFrame()

	slog.Info("Application created", "plugin", cfg.Plugin.Path, "hot_reload", a.watcher != nil)
	return a, nil
}

// Run starts the decoder and runs the main loop until termination. Errors
// the device cannot recover from are passed to the fatal hook and returned.
func (a *Application) Run(ctx context.Context) error {
	stop := a.notifySignals()
	defer stop()

	if err := a.decoder.Setup(); err != nil {
		return a.fail(fmt.Errorf("failed to set up encoder: %w", err))
	}
	if err := a.buttons.Setup(); err != nil {
		return a.fail(fmt.Errorf("failed to set up buttons: %w", err))
	}
	a.startDecoder()

	if err := a.loop(ctx); err != nil {
		return a.fail(err)
	}
	return nil
}

func (a *Application) fail(err error) error {
	a.Terminate()
	a.fatal(err)
	return err
}

func (a *Application) startDecoder() {
	done := make(chan struct{})
	a.decoderDone = done
	go func() {
		defer close(done)
		a.decoder.Run(a.IsTerminating)
	}()
}

// Destroy unloads the plugin (running its shutdown), waits for the decoder
// and releases the collaborators. Failures are collected, not fatal.
func (a *Application) Destroy(ctx context.Context) error {
	if a.destroyed {
		return nil
	}
	a.destroyed = true

	var errs []error
	if a.host.Loaded() {
		if err := a.host.Unload(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	a.Terminate()
	if err := a.join(); err != nil {
		errs = append(errs, err)
	}

	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close watcher: %w", err))
		}
	}
	if err := a.display.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close display: %w", err))
	}
	if err := a.pins.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close gpio: %w", err))
	}

	slog.Info("Application destroyed", "ticks", a.stats.Ticks, "reloads", a.stats.Reloads)
	return errors.Join(errs...)
}

// join waits for the decoder goroutine. A zero timeout waits forever.
func (a *Application) join() error {
	if a.decoderDone == nil {
		return nil
	}
	timeout := a.cfg.Loop.JoinTimeout
	if timeout <= 0 {
		<-a.decoderDone
		return nil
	}
	select {
	case <-a.decoderDone:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("join decoder after %v: %w", timeout, ErrJoinTimeout)
	}
}

// Terminate asks the loop and the decoder to stop. It is safe to call from
// any goroutine and more than once.
func (a *Application) Terminate() {
	a.terminating.Store(true)
}

func (a *Application) IsTerminating() bool {
	return a.terminating.Load()
}

// RotaryValue returns the step of the most recent encoder sample.
func (a *Application) RotaryValue() int32 {
	return a.decoder.Delta()
}

// Surface is the canvas plugins draw into.
func (a *Application) Surface() plugin.Surface {
	return a.canvas
}

// Host returns the plugin host.
func (a *Application) Host() *plugin.Host {
	return a.host
}
