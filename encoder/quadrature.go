// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package encoder decodes a two-channel rotary (quadrature) encoder.
package encoder

import (
	"sync/atomic"
	"time"

	"github.com/ffutop/stak/gpio"
)

// transitions maps (last, current) readings to a step. A reading is
// (A << 1) | B. Walking 0 -> 1 -> 3 -> 2 -> 0 counts up, the reverse counts
// down, and both-bits-changed or unchanged readings count nothing.
var transitions = [4][4]int32{
	{0, 1, -1, 0},
	{-1, 0, 0, 1},
	{1, 0, 0, -1},
	{0, -1, 1, 0},
}

// Decode returns the step between two readings.
func Decode(last, current uint8) int32 {
	return transitions[last&3][current&3]
}

// Decoder tracks an encoder wired to two input pins. Sampling happens on a
// single goroutine; Position and Delta may be read from any goroutine.
type Decoder struct {
	pins     gpio.Pins
	pinA     int
	pinB     int
	interval time.Duration

	last     uint8
	position atomic.Int64
	delta    atomic.Int32
}

// New creates a Decoder sampling pinA and pinB every interval.
func New(pins gpio.Pins, pinA, pinB int, interval time.Duration) *Decoder {
	return &Decoder{
		pins:     pins,
		pinA:     pinA,
		pinB:     pinB,
		interval: interval,
	}
}

// Setup configures both channels as pulled-up inputs and takes the first
// reading so the first sample does not count a phantom step.
func (d *Decoder) Setup() error {
	if err := d.pins.Input(d.pinA, gpio.PullUp); err != nil {
		return err
	}
	if err := d.pins.Input(d.pinB, gpio.PullUp); err != nil {
		return err
	}
	d.last = d.read()
	return nil
}

func (d *Decoder) read() uint8 {
	var v uint8
	if d.pins.Level(d.pinA) {
		v |= 2
	}
	if d.pins.Level(d.pinB) {
		v |= 1
	}
	return v
}

// Step feeds one reading into the state machine and returns its step.
func (d *Decoder) Step(reading uint8) int32 {
	reading &= 3
	delta := Decode(d.last, reading)
	d.position.Add(int64(delta))
	d.delta.Store(delta)
	d.last = reading
	return delta
}

// Sample reads the pins once and steps.
func (d *Decoder) Sample() int32 {
	return d.Step(d.read())
}

// Run samples until stop reports true. It sleeps interval between samples
// so a stop request is noticed within one interval plus one sample.
func (d *Decoder) Run(stop func() bool) {
	for !stop() {
		d.Sample()
		if d.interval > 0 {
			time.Sleep(d.interval)
		}
	}
}

// Position is the accumulated count of steps.
func (d *Decoder) Position() int64 {
	return d.position.Load()
}

// Delta is the step produced by the most recent sample.
func (d *Decoder) Delta() int32 {
	return d.delta.Load()
}
