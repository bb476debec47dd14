// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package wasm loads plugins compiled to WebAssembly.
//
// Each Open compiles and instantiates the module anonymously, so the same
// file can be opened again after it changes on disk. Closing a module frees
// its memory and code, which makes reload a real unload followed by a load.
//
// Plugins may import the host API from the "stak" module:
//
//	get_rotary_value() -> i32
//	terminate()
//	is_terminating() -> i32
//	log(ptr, len i32)
//	canvas_width() -> i32
//	canvas_height() -> i32
//	canvas_clear(color i32)
//	canvas_set_pixel(x, y, color i32)
package wasm

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/ffutop/stak/plugin"
)

// HostModule is the import module name of the host API.
const HostModule = "stak"

// Config holds configuration for loader creation
type Config struct {
	// WASI links wasi_snapshot_preview1 so modules built for wasm32-wasi
	// can be hosted.
	WASI bool

	// MemoryLimitPages caps plugin memory in 64KB pages. 0 means default.
	MemoryLimitPages uint32
}

// Loader compiles and instantiates plugin modules on a wazero runtime.
type Loader struct {
	runtime wazero.Runtime
	env     plugin.Env
	linked  bool
}

// NewLoader creates a new loader and its runtime.
func NewLoader(ctx context.Context, cfg Config) (*Loader, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	if cfg.WASI {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
			r.Close(ctx)
			return nil, fmt.Errorf("instantiate WASI: %w", err)
		}
	}
	return &Loader{runtime: r}, nil
}

// Open compiles the module at path and instantiates it against env.
func (l *Loader) Open(ctx context.Context, path string, env plugin.Env) (plugin.Module, error) {
	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	l.env = env
	if !l.linked {
		if err := l.linkHostModule(ctx); err != nil {
			return nil, fmt.Errorf("link host module: %w", err)
		}
		l.linked = true
	}

	compiled, err := l.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("compile failed: %w", err)
	}

	modConfig := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions("_initialize").
		WithStdout(os.Stdout).
		WithStderr(os.Stderr)

	mod, err := l.runtime.InstantiateModule(ctx, compiled, modConfig)
	if err != nil {
		compiled.Close(ctx)
		return nil, fmt.Errorf("instantiate failed: %w", err)
	}

	return &Module{path: path, compiled: compiled, mod: mod}, nil
}

// Close closes the runtime and every module still open on it.
func (l *Loader) Close(ctx context.Context) error {
	return l.runtime.Close(ctx)
}

// linkHostModule exports the host API. The functions read l.env at call
// time so the binding follows the most recent Open.
func (l *Loader) linkHostModule(ctx context.Context) error {
	_, err := l.runtime.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context) int32 {
			if l.env == nil {
				return 0
			}
			return l.env.RotaryValue()
		}).
		Export("get_rotary_value").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context) {
			if l.env != nil {
				l.env.Terminate()
			}
		}).
		Export("terminate").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context) int32 {
			if l.env != nil && l.env.IsTerminating() {
				return 1
			}
			return 0
		}).
		Export("is_terminating").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, m api.Module, ptr, length uint32) {
			msg, ok := m.Memory().Read(ptr, length)
			if !ok {
				slog.Warn("Plugin log out of memory bounds", "ptr", ptr, "len", length)
				return
			}
			slog.Info(string(msg), "source", "plugin")
		}).
		Export("log").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context) int32 {
			w, _ := l.surfaceSize()
			return int32(w)
		}).
		Export("canvas_width").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context) int32 {
			_, h := l.surfaceSize()
			return int32(h)
		}).
		Export("canvas_height").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, color uint32) {
			if s := l.surface(); s != nil {
				s.Clear(uint16(color))
			}
		}).
		Export("canvas_clear").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, x, y int32, color uint32) {
			if s := l.surface(); s != nil {
				s.SetPixel(int(x), int(y), uint16(color))
			}
		}).
		Export("canvas_set_pixel").
		Instantiate(ctx)
	return err
}

func (l *Loader) surface() plugin.Surface {
	if l.env == nil {
		return nil
	}
	return l.env.Surface()
}

func (l *Loader) surfaceSize() (int, int) {
	if s := l.surface(); s != nil {
		return s.Size()
	}
	return 0, 0
}

// Module is an instantiated plugin.
type Module struct {
	path     string
	compiled wazero.CompiledModule
	mod      api.Module
}

// Lookup returns the exported function called name, or nil.
func (m *Module) Lookup(name string) plugin.Function {
	if m.mod == nil {
		return nil
	}
	fn := m.mod.ExportedFunction(name)
	if fn == nil {
		return nil
	}
	return function{fn}
}

// function exposes an export's declared type so callbacks can be checked
// against the ABI before they are bound.
type function struct {
	api.Function
}

func (f function) Signature() plugin.Signature {
	def := f.Definition()
	return plugin.Signature{Params: def.ParamTypes(), Results: def.ResultTypes()}
}

// Global returns the value of an exported global, for diagnostics.
func (m *Module) Global(name string) (uint64, bool) {
	if m.mod == nil {
		return 0, false
	}
	g := m.mod.ExportedGlobal(name)
	if g == nil {
		return 0, false
	}
	return g.Get(), true
}

// Close releases the instance and its compiled code.
func (m *Module) Close(ctx context.Context) error {
	var err error
	if m.mod != nil {
		err = m.mod.Close(ctx)
		m.mod = nil
	}
	if m.compiled != nil {
		if e := m.compiled.Close(ctx); e != nil && err == nil {
			err = e
		}
		m.compiled = nil
	}
	return err
}
