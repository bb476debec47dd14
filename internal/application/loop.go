// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ffutop/stak/display"
	"github.com/ffutop/stak/plugin"
)

// State of the main loop.
type State int

const (
	Running State = iota
	Terminating
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Terminating:
		return "terminating"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stats are loop diagnostics.
type Stats struct {
	Ticks      uint64
	FPS        float64
	Generation uint64
	Reloads    uint64
}

// frameState is carried from one tick to the next.
type frameState struct {
	last     time.Time
	fpsStart time.Time
	fpsTicks int
	position int64
}

func (a *Application) resetFrame() {
	now := a.now()
	a.frame = frameState{
		last:     now,
		fpsStart: now,
		position: a.decoder.Position(),
	}
}

func (a *Application) loop(ctx context.Context) error {
	a.state = Running
	a.resetFrame()
	slog.Info("Main loop running", "fps_limit", a.cfg.Loop.FPSLimit, "pacing", a.cfg.Loop.Pacing)

	for a.state == Running {
		if err := a.tick(ctx); err != nil {
			a.state = Stopped
			return err
		}
		if ctx.Err() != nil {
			a.Terminate()
		}
		if a.IsTerminating() {
			a.state = Terminating
		}
	}

	a.state = Stopped
	slog.Info("Main loop stopped", "ticks", a.stats.Ticks)
	return nil
}

// tick runs one frame. The only error it returns is a failed reload, which
// leaves no plugin bound.
func (a *Application) tick(ctx context.Context) error {
	start := a.now()
	delta := start.Sub(a.frame.last)
	a.frame.last = start

	a.frame.fpsTicks++
	if window := start.Sub(a.frame.fpsStart); window >= time.Second {
		a.stats.FPS = float64(a.frame.fpsTicks) / window.Seconds()
		a.frame.fpsTicks = 0
		a.frame.fpsStart = start
		slog.Debug("Frame rate", "fps", a.stats.FPS)
	}

	if pos := a.decoder.Position(); pos != a.frame.position {
		a.crank(ctx, int32(pos-a.frame.position))
		a.frame.position = pos
	}

	a.buttons.Poll(func(cb plugin.Callback) {
		a.host.Fire(ctx, cb)
	})

	a.host.Update(ctx, float32(delta.Seconds()))
	a.host.Draw(ctx)

	if err := display.Present(a.canvas, a.display); err != nil {
		slog.Warn("Failed to present frame", "err", err)
	}
	a.stats.Ticks++

	if a.cfg.Loop.Pacing {
		if rest := a.cfg.Loop.FrameBudget() - a.now().Sub(start); rest > 0 {
			a.sleep(rest)
		}
	}

	return a.pollWatcher(ctx)
}

func (a *Application) crank(ctx context.Context, amount int32) {
	if amount > 0 {
		a.host.Fire(ctx, plugin.CrankUp)
	} else {
		a.host.Fire(ctx, plugin.CrankDown)
	}
	a.host.CrankRotated(ctx, amount)
}

// pollWatcher drains the watcher and reloads the plugin at most once.
func (a *Application) pollWatcher(ctx context.Context) error {
	if a.watcher == nil {
		return nil
	}
	events, err := a.watcher.Poll()
	if err != nil {
		slog.Warn("Plugin watch failed", "err", err)
	}
	if !a.trigger.Fired(events) {
		return nil
	}
	if err := a.host.Reload(ctx); err != nil {
		return fmt.Errorf("failed to reload plugin: %w", err)
	}
	a.stats.Reloads++
	return nil
}

// State returns the loop state.
func (a *Application) State() State {
	return a.state
}

// Stats returns loop diagnostics.
func (a *Application) Stats() Stats {
	s := a.stats
	s.Generation = a.host.Generation()
	return s
}
