// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package display moves canvas frames to the device screen.
package display

import (
	"fmt"

	"github.com/ffutop/stak/gpio"
	"github.com/ffutop/stak/internal/config"
)

// Display is a framebuffer with a way to push it to the screen.
type Display interface {
	Size() (width, height int)
	Framebuffer() []byte
	// Stride is the number of bytes per framebuffer row.
	Stride() int
	// Update pushes the framebuffer to the hardware.
	Update() error
	Close() error
}

// Present publishes the canvas back buffer and pushes it out:
// swap, then copy, then update.
func Present(c *Canvas, d Display) error {
	c.Swap()
	if d == nil {
		return nil
	}
	c.Copy(d.Framebuffer(), d.Stride())
	return d.Update()
}

// Null discards frames.
type Null struct {
	width, height int
	fb            []byte
}

func NewNull(width, height int) *Null {
	return &Null{width: width, height: height, fb: make([]byte, width*height*BytesPerPixel)}
}

func (n *Null) Size() (int, int)    { return n.width, n.height }
func (n *Null) Framebuffer() []byte { return n.fb }
func (n *Null) Stride() int         { return n.width * BytesPerPixel }
func (n *Null) Update() error       { return nil }
func (n *Null) Close() error        { return nil }

// Open returns the display selected by cfg. The terminal display drives
// sim through w, so sim must be the pin bank the runtime reads.
func Open(cfg config.DisplayConfig, sim *gpio.Sim, w Wiring, onQuit func()) (Display, error) {
	switch cfg.Type {
	case "none", "":
		return NewNull(cfg.Width, cfg.Height), nil
	case "fbdev":
		fb, err := OpenFramebuffer(cfg.Fbdev.Device, cfg.Width, cfg.Height)
		if err != nil {
			return nil, err
		}
		return fb, nil
	case "panel":
		p, err := OpenPanel(cfg.Panel, cfg.Width, cfg.Height)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "terminal":
		t, err := NewTerminal(cfg.Width, cfg.Height, sim, w, onQuit)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown display type: %s", cfg.Type)
	}
}
