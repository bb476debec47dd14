// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package plugin hosts the application module of the device.
//
// A module exports a fixed set of callbacks (init, shutdown, update, draw and
// the input events). init and shutdown are mandatory; every other callback is
// optional and dispatching an absent one does nothing. The Host owns the
// module's lifecycle and swaps it on reload between frames, so callers never
// observe a partially bound table.
package plugin

import (
	"context"
	"errors"
)

var (
	ErrMissingSymbol = errors.New("plugin: required symbol missing")
	ErrNotLoaded     = errors.New("plugin: no module loaded")
	ErrReloading     = errors.New("plugin: reload in progress")
	ErrSignature     = errors.New("plugin: required symbol has wrong signature")
)

// Module is an opened plugin.
type Module interface {
	// Lookup returns the exported function called name, or nil.
	Lookup(name string) Function
	// Close releases the module and everything it allocated.
	Close(ctx context.Context) error
}

// Loader opens modules from files.
type Loader interface {
	Open(ctx context.Context, path string, env Env) (Module, error)
}

// Surface is the drawing target offered to plugins.
type Surface interface {
	Size() (width, height int)
	Clear(color uint16)
	SetPixel(x, y int, color uint16)
}

// Env is the host side a plugin can call into.
type Env interface {
	RotaryValue() int32
	Terminate()
	IsTerminating() bool
	Surface() Surface
}
