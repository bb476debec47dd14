// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ffutop/stak/gpio"
	"github.com/ffutop/stak/plugin"
	"github.com/ffutop/stak/watcher"
	"github.com/google/go-cmp/cmp"
)

func closeWrite(name string) watcher.ChangeEvent {
	return watcher.ChangeEvent{Name: name, Op: watcher.OpCloseWrite}
}

func TestLoop_ReloadBetweenTicks(t *testing.T) {
	loader := &fakeLoader{exports: exporting("init", "update", "draw", "shutdown")}
	w := &fakeWatcher{batches: map[int][]watcher.ChangeEvent{
		// Two completed writes of the plugin and an unrelated file in
		// one batch trigger a single reload.
		2: {closeWrite("app.so"), closeWrite("notes.txt"), closeWrite("app.so")},
	}}
	f := newFixture(t, testConfig(), loader, Deps{Watcher: w})

	updates := 0
	loader.hooks = map[string]func([]uint64){
		"update": func([]uint64) {
			updates++
			if updates == 4 {
				f.app.Terminate()
			}
		},
	}

	if err := f.app.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if err := f.app.Destroy(context.Background()); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}

	want := []string{
		"init@1",
		"update@1", "draw@1",
		"update@1", "draw@1",
		"shutdown@1", "init@2",
		"update@2", "draw@2",
		"update@2", "draw@2",
		"shutdown@2",
	}
	if diff := cmp.Diff(want, trace(loader.log)); diff != "" {
		t.Errorf("call trace mismatch (-want +got):\n%s", diff)
	}

	// Every update is paired with a draw of the same table.
	for i, c := range loader.log {
		if c.Name != "update" {
			continue
		}
		next := loader.log[i+1]
		if next.Name != "draw" || next.Generation != c.Generation {
			t.Errorf("tick %d mixes generations: %+v then %+v", i, c, next)
		}
	}

	s := f.app.Stats()
	if s.Reloads != 1 || s.Generation != 2 || s.Ticks != 4 {
		t.Errorf("stats = %+v", s)
	}
}

func TestLoop_ReloadFailureIsFatal(t *testing.T) {
	loader := &fakeLoader{exports: func(n int) []string {
		if n == 1 {
			return []string{"init", "update", "shutdown"}
		}
		return []string{"init", "update"}
	}}
	w := &fakeWatcher{batches: map[int][]watcher.ChangeEvent{1: {closeWrite("app.so")}}}
	f := newFixture(t, testConfig(), loader, Deps{Watcher: w})

	err := f.app.Run(context.Background())
	if !errors.Is(err, plugin.ErrMissingSymbol) {
		t.Fatalf("Run = %v, want ErrMissingSymbol", err)
	}
	if len(f.fatal) != 1 || !errors.Is(f.fatal[0], plugin.ErrMissingSymbol) {
		t.Errorf("fatal hook got %v", f.fatal)
	}
	if f.app.State() != Stopped {
		t.Errorf("state = %v", f.app.State())
	}
	if f.app.Host().Loaded() {
		t.Error("a module without shutdown must not stay loaded")
	}

	if err := f.app.Destroy(context.Background()); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if got := loader.count("shutdown"); got != 1 {
		t.Errorf("shutdown called %d times, want 1 (first module only)", got)
	}
}

func TestLoop_WatchErrorIsNotFatal(t *testing.T) {
	loader := &fakeLoader{exports: exporting("init", "shutdown")}
	w := &fakeWatcher{err: errors.New("read: input/output error")}
	f := newFixture(t, testConfig(), loader, Deps{Watcher: w})

	for i := 0; i < 3; i++ {
		if err := f.app.tick(context.Background()); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	if w.polls != 3 {
		t.Errorf("polls = %d, want one per tick", w.polls)
	}
	if f.app.Stats().Reloads != 0 {
		t.Error("watch error triggered a reload")
	}
}

func TestLoop_Crank(t *testing.T) {
	loader := &fakeLoader{exports: exporting("init", "shutdown", "crank_up", "crank_down", "crank_rotated")}
	f := newFixture(t, testConfig(), loader, Deps{})
	ctx := context.Background()
	if err := f.app.decoder.Setup(); err != nil {
		t.Fatal(err)
	}
	f.app.resetFrame()
	loader.log = nil

	// Idle tick dispatches nothing.
	if err := f.app.tick(ctx); err != nil {
		t.Fatal(err)
	}
	if len(loader.log) != 0 {
		t.Fatalf("idle tick dispatched %v", names(loader.log))
	}

	f.app.decoder.Step(2) // 3 -> 2: +1
	if err := f.app.tick(ctx); err != nil {
		t.Fatal(err)
	}
	f.app.decoder.Step(3) // 2 -> 3: -1
	f.app.decoder.Step(1) // 3 -> 1: -1
	if err := f.app.tick(ctx); err != nil {
		t.Fatal(err)
	}

	want := []call{
		{Name: "crank_up", Generation: 1},
		{Name: "crank_rotated", Generation: 1, Args: []uint64{1}},
		{Name: "crank_down", Generation: 1},
		{Name: "crank_rotated", Generation: 1, Args: []uint64{uint64(uint32(0xFFFFFFFE))}},
	}
	if diff := cmp.Diff(want, loader.log); diff != "" {
		t.Errorf("crank calls mismatch (-want +got):\n%s", diff)
	}
}

func TestLoop_Buttons(t *testing.T) {
	loader := &fakeLoader{exports: exporting("init", "shutdown", "button_press", "button_release")}
	sim := gpio.NewSim()
	f := newFixture(t, testConfig(), loader, Deps{Pins: sim})
	ctx := context.Background()
	if err := f.app.buttons.Setup(); err != nil {
		t.Fatal(err)
	}
	loader.log = nil

	sim.Set(17, false)
	if err := f.app.tick(ctx); err != nil {
		t.Fatal(err)
	}
	sim.Set(17, true)
	if err := f.app.tick(ctx); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"button_press", "button_release"}, names(loader.log)); diff != "" {
		t.Errorf("button calls mismatch (-want +got):\n%s", diff)
	}
}

func TestLoop_Pacing(t *testing.T) {
	budget := time.Second / 60

	loader := &fakeLoader{exports: exporting("init", "update", "shutdown")}
	f := newFixture(t, testConfig(), loader, Deps{})
	loader.hooks = map[string]func([]uint64){
		// The plugin spends 10ms per update.
		"update": func([]uint64) { f.clock.t = f.clock.t.Add(10 * time.Millisecond) },
	}
	if err := f.app.tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if want := budget - 10*time.Millisecond; f.clock.slept != want {
		t.Errorf("slept %v, want %v", f.clock.slept, want)
	}

	// An overrun frame does not sleep.
	f.clock.slept = 0
	loader.hooks["update"] = func([]uint64) { f.clock.t = f.clock.t.Add(30 * time.Millisecond) }
	if err := f.app.tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.clock.slept != 0 {
		t.Errorf("overrun frame slept %v", f.clock.slept)
	}

	cfg := testConfig()
	cfg.Loop.Pacing = false
	g := newFixture(t, cfg, &fakeLoader{exports: exporting("init", "shutdown")}, Deps{})
	if err := g.app.tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if g.clock.slept != 0 {
		t.Errorf("pacing disabled but slept %v", g.clock.slept)
	}
}

func TestLoop_FPS(t *testing.T) {
	loader := &fakeLoader{exports: exporting("init", "shutdown")}
	f := newFixture(t, testConfig(), loader, Deps{})
	f.app.resetFrame()

	for i := 0; i < 62; i++ {
		if err := f.app.tick(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if fps := f.app.Stats().FPS; fps < 55 || fps > 65 {
		t.Errorf("fps = %v, want about 60", fps)
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{Running: "running", Terminating: "terminating", Stopped: "stopped", State(9): "state(9)"} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
