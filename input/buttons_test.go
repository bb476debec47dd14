// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package input

import (
	"testing"

	"github.com/ffutop/stak/gpio"
	"github.com/ffutop/stak/internal/config"
	"github.com/ffutop/stak/plugin"
	"github.com/google/go-cmp/cmp"
)

func collect(b *Buttons) []string {
	var got []string
	b.Poll(func(cb plugin.Callback) { got = append(got, cb.String()) })
	return got
}

func TestButtons_Edges(t *testing.T) {
	sim := gpio.NewSim()
	b := New(sim, config.ButtonsConfig{ActiveLow: true, Rotary: 17, Shutter: 5, Power: -1})
	if err := b.Setup(); err != nil {
		t.Fatal(err)
	}
	if len(b.Buttons()) != 2 {
		t.Fatalf("buttons = %+v, power should be skipped", b.Buttons())
	}

	if got := collect(b); len(got) != 0 {
		t.Errorf("idle poll emitted %v", got)
	}

	sim.Set(17, false)
	sim.Set(5, false)
	if diff := cmp.Diff([]string{"button_press", "shutter_press"}, collect(b)); diff != "" {
		t.Errorf("press mismatch (-want +got):\n%s", diff)
	}
	if got := collect(b); len(got) != 0 {
		t.Errorf("held buttons re-emitted %v", got)
	}

	sim.Set(5, true)
	if diff := cmp.Diff([]string{"shutter_release"}, collect(b)); diff != "" {
		t.Errorf("release mismatch (-want +got):\n%s", diff)
	}
}

func TestButtons_ActiveHigh(t *testing.T) {
	sim := gpio.NewSim()
	b := New(sim, config.ButtonsConfig{ActiveLow: false, Rotary: -1, Shutter: -1, Power: 6})
	if err := b.Setup(); err != nil {
		t.Fatal(err)
	}
	if sim.Level(6) {
		t.Fatal("active-high button should idle low")
	}
	sim.Set(6, true)
	sim.Set(6, false)
	// Both edges happened between polls.
	if got := collect(b); len(got) != 0 {
		t.Errorf("unsampled pulse emitted %v", got)
	}
	sim.Set(6, true)
	if diff := cmp.Diff([]string{"power_press"}, collect(b)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestButtons_SetupPinRange(t *testing.T) {
	b := New(gpio.NewSim(), config.ButtonsConfig{ActiveLow: true, Rotary: 99, Shutter: -1, Power: -1})
	if err := b.Setup(); err == nil {
		t.Error("expected error for out of range pin")
	}
}
