// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
)

// Host manages the active plugin module. It is not safe for concurrent use;
// the main loop owns it.
type Host struct {
	loader Loader
	env    Env

	path       string
	module     Module
	table      *Table
	generation uint64
	reloading  bool
}

// NewHost creates a Host opening modules through loader.
func NewHost(loader Loader, env Env) *Host {
	return &Host{
		loader: loader,
		env:    env,
	}
}

// Load opens the module at path and resolves its callbacks. It fails if a
// module is already loaded, the file cannot be opened, or a required
// callback is missing; in every case no partial state is kept.
func (h *Host) Load(ctx context.Context, path string) error {
	if h.module != nil {
		return fmt.Errorf("plugin: %s already loaded", h.path)
	}

	slog.Info("Loading plugin", "path", path)
	m, err := h.loader.Open(ctx, path, h.env)
	if err != nil {
		return fmt.Errorf("failed to open plugin %s: %w", path, err)
	}

	table, err := Resolve(m, h.generation+1)
	if err != nil {
		m.Close(ctx)
		return fmt.Errorf("failed to bind plugin %s: %w", path, err)
	}

	h.generation++
	h.path = path
	h.module = m
	h.table = table
	slog.Debug("Plugin bound", "path", path, "generation", h.generation, "callbacks", table.Present())
	return nil
}

// Unload runs shutdown, if bound, and releases the module.
func (h *Host) Unload(ctx context.Context) error {
	if h.module == nil {
		return ErrNotLoaded
	}

	h.call(ctx, Shutdown)

	err := h.module.Close(ctx)
	h.module = nil
	h.table = nil
	if err != nil {
		return fmt.Errorf("failed to close plugin %s: %w", h.path, err)
	}
	return nil
}

// Reload replaces the module with a fresh copy of the same file and runs its
// init. Dispatch is refused while the swap is in progress.
func (h *Host) Reload(ctx context.Context) error {
	if h.reloading {
		return ErrReloading
	}
	h.reloading = true
	defer func() { h.reloading = false }()

	path := h.path
	slog.Info("Reloading plugin", "path", path, "generation", h.generation)

	if err := h.Unload(ctx); err != nil && !errors.Is(err, ErrNotLoaded) {
		slog.Warn("Plugin unload reported an error", "path", path, "err", err)
	}
	if err := h.Load(ctx, path); err != nil {
		return err
	}
	h.call(ctx, Init)
	return nil
}

// Dispatch invokes cb with args if it is bound. It reports whether the
// callback ran; the result is advisory.
func (h *Host) Dispatch(ctx context.Context, cb Callback, args ...uint64) (int32, bool) {
	if h.reloading {
		return 0, false
	}
	return h.call(ctx, cb, args...)
}

func (h *Host) call(ctx context.Context, cb Callback, args ...uint64) (int32, bool) {
	b := h.table.Binding(cb)
	if !b.Present() {
		return 0, false
	}

	results, err := b.fn.Call(ctx, args...)
	if err != nil {
		slog.Warn("Plugin callback failed", "callback", cb, "generation", h.generation, "err", err)
		return 0, true
	}

	var rc int32
	if len(results) > 0 {
		rc = int32(uint32(results[0]))
	}
	if rc != 0 {
		slog.Debug("Plugin callback returned non-zero", "callback", cb, "result", rc)
	}
	return rc, true
}

// Init dispatches init.
func (h *Host) Init(ctx context.Context) {
	h.Dispatch(ctx, Init)
}

// Update dispatches update with the frame delta in seconds.
func (h *Host) Update(ctx context.Context, delta float32) {
	h.Dispatch(ctx, Update, uint64(math.Float32bits(delta)))
}

// Draw dispatches draw.
func (h *Host) Draw(ctx context.Context) {
	h.Dispatch(ctx, Draw)
}

// CrankRotated dispatches crank_rotated with the signed step count.
func (h *Host) CrankRotated(ctx context.Context, amount int32) {
	h.Dispatch(ctx, CrankRotated, uint64(uint32(amount)))
}

// Fire dispatches an argument-less callback.
func (h *Host) Fire(ctx context.Context, cb Callback) {
	h.Dispatch(ctx, cb)
}

// Table returns the active callback table, or nil.
func (h *Host) Table() *Table {
	return h.table
}

func (h *Host) Path() string { return h.path }

func (h *Host) Generation() uint64 { return h.generation }

func (h *Host) Loaded() bool { return h.module != nil }
