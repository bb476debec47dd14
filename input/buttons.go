// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package input turns push button levels into plugin callbacks.
package input

import (
	"fmt"

	"github.com/ffutop/stak/gpio"
	"github.com/ffutop/stak/internal/config"
	"github.com/ffutop/stak/plugin"
)

// Button is one push button and the callbacks its edges fire.
type Button struct {
	Pin     int
	Press   plugin.Callback
	Release plugin.Callback
}

// Buttons polls a set of buttons for edges. It is owned by the main loop.
type Buttons struct {
	pins      gpio.Pins
	activeLow bool
	buttons   []Button
	pressed   []bool
}

// New builds the button bank from cfg. Buttons with a negative pin are left
// out.
func New(pins gpio.Pins, cfg config.ButtonsConfig) *Buttons {
	b := &Buttons{pins: pins, activeLow: cfg.ActiveLow}
	for _, btn := range []Button{
		{Pin: cfg.Rotary, Press: plugin.ButtonPress, Release: plugin.ButtonRelease},
		{Pin: cfg.Shutter, Press: plugin.ShutterPress, Release: plugin.ShutterRelease},
		{Pin: cfg.Power, Press: plugin.PowerPress, Release: plugin.PowerRelease},
	} {
		if btn.Pin < 0 {
			continue
		}
		b.buttons = append(b.buttons, btn)
	}
	b.pressed = make([]bool, len(b.buttons))
	return b
}

// Setup configures every button pin as an input pulled to its idle level and
// records the current state, so a button held at startup fires no press.
func (b *Buttons) Setup() error {
	pull := gpio.PullDown
	if b.activeLow {
		pull = gpio.PullUp
	}
	for i, btn := range b.buttons {
		if err := b.pins.Input(btn.Pin, pull); err != nil {
			return fmt.Errorf("button %s: %w", btn.Press, err)
		}
		b.pressed[i] = b.isPressed(btn.Pin)
	}
	return nil
}

func (b *Buttons) isPressed(pin int) bool {
	return b.pins.Level(pin) != b.activeLow
}

// Poll samples each button once and calls emit for every edge.
func (b *Buttons) Poll(emit func(plugin.Callback)) {
	for i, btn := range b.buttons {
		now := b.isPressed(btn.Pin)
		if now == b.pressed[i] {
			continue
		}
		b.pressed[i] = now
		if now {
			emit(btn.Press)
		} else {
			emit(btn.Release)
		}
	}
}

// Buttons returns the configured buttons.
func (b *Buttons) Buttons() []Button {
	return b.buttons
}
