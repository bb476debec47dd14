// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package encoder

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/ffutop/stak/gpio"
)

func TestDecode_Table(t *testing.T) {
	// Gray code: readings adjacent in 0,1,3,2 differ by one bit.
	want := map[[2]uint8]int32{
		{0, 1}: 1, {1, 3}: 1, {3, 2}: 1, {2, 0}: 1,
		{1, 0}: -1, {3, 1}: -1, {2, 3}: -1, {0, 2}: -1,
	}
	for last := uint8(0); last < 4; last++ {
		for cur := uint8(0); cur < 4; cur++ {
			got := Decode(last, cur)
			if got < -1 || got > 1 {
				t.Fatalf("Decode(%d, %d) = %d, out of range", last, cur, got)
			}
			if exp := want[[2]uint8{last, cur}]; got != exp {
				t.Errorf("Decode(%d, %d) = %d, want %d", last, cur, got, exp)
			}
		}
	}
}

func TestDecoder_Sequences(t *testing.T) {
	tests := []struct {
		name string
		seq  []uint8
		sign int64
	}{
		{"forward", []uint8{1, 3, 2, 0}, 1},
		{"reverse", []uint8{2, 3, 1, 0}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(gpio.NewSim(), 0, 1, 0)
			prev := d.Position()
			for round := 0; round < 5; round++ {
				for _, r := range tt.seq {
					d.Step(r)
					pos := d.Position()
					if (pos-prev)*tt.sign != 1 {
						t.Fatalf("position %d -> %d after reading %d, not monotonic", prev, pos, r)
					}
					prev = pos
				}
			}
			if got, want := d.Position(), 20*tt.sign; got != want {
				t.Errorf("Position() = %d, want %d", got, want)
			}
		})
	}
}

func TestDecoder_Delta(t *testing.T) {
	d := New(gpio.NewSim(), 0, 1, 0)

	d.Step(1)
	if got := d.Delta(); got != 1 {
		t.Errorf("after forward step Delta() = %d, want 1", got)
	}
	d.Step(1)
	if got := d.Delta(); got != 0 {
		t.Errorf("after no transition Delta() = %d, want 0", got)
	}
	d.Step(0)
	if got := d.Delta(); got != -1 {
		t.Errorf("after backward step Delta() = %d, want -1", got)
	}
	d.Step(3)
	if got := d.Delta(); got != 0 {
		t.Errorf("illegal jump Delta() = %d, want 0", got)
	}
}

func TestDecoder_SamplePins(t *testing.T) {
	sim := gpio.NewSim()
	d := New(sim, 15, 14, 0)
	if err := d.Setup(); err != nil {
		t.Fatal(err)
	}
	// Pulled up: reading 3. Forward from 3 is 2, i.e. A high, B low.
	sim.Set(14, false)
	if got := d.Sample(); got != 1 {
		t.Errorf("Sample() = %d, want 1", got)
	}
	sim.Set(14, true)
	if got := d.Sample(); got != -1 {
		t.Errorf("Sample() = %d, want -1", got)
	}
	if d.Position() != 0 {
		t.Errorf("Position() = %d, want 0", d.Position())
	}
}

func TestDecoder_RunStops(t *testing.T) {
	d := New(gpio.NewSim(), 0, 1, 100*time.Microsecond)

	var stop atomic.Bool
	var samples atomic.Int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(func() bool {
			samples.Add(1)
			return stop.Load()
		})
	}()

	time.Sleep(5 * time.Millisecond)
	stop.Store(true)
	seen := samples.Load()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("decoder did not return after stop")
	}
	if extra := samples.Load() - seen; extra > 2 {
		t.Errorf("decoder ran %d iterations after stop", extra)
	}
}
