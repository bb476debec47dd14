// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package gpio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// openFake maps a regular file standing in for /dev/gpiomem.
func openFake(t *testing.T) *BCM2835 {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gpiomem")
	if err := os.WriteFile(path, make([]byte, blockSize), 0644); err != nil {
		t.Fatalf("Failed to create register file: %v", err)
	}
	b, err := OpenBCM2835(path)
	if err != nil {
		t.Fatalf("OpenBCM2835 failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBCM2835_Input(t *testing.T) {
	b := openFake(t)

	// Pin 15 lives in GPFSEL1 bits 15..17; start with an output function.
	b.store(regFsel0+1, 0xFFFFFFFF)

	if err := b.Input(15, PullUp); err != nil {
		t.Fatalf("Input failed: %v", err)
	}

	got := b.load(regFsel0 + 1)
	if mask := uint32(7) << 15; got&mask != 0 {
		t.Errorf("GPFSEL1 = %08X, pin 15 function bits not cleared", got)
	}
	if got|uint32(7)<<15 != 0xFFFFFFFF {
		t.Errorf("GPFSEL1 = %08X, neighbouring pins modified", got)
	}
	if b.load(regPud) != 0 || b.load(regPudClk0) != 0 {
		t.Error("pull control registers should be released after programming")
	}
}

func TestBCM2835_Level(t *testing.T) {
	b := openFake(t)

	b.store(regLev0, 1<<14)
	b.store(regLev0+1, 1<<(40-32))

	tests := []struct {
		pin  int
		want bool
	}{
		{14, true},
		{15, false},
		{40, true},
		{41, false},
		{-1, false},
		{99, false},
	}
	for _, tt := range tests {
		if got := b.Level(tt.pin); got != tt.want {
			t.Errorf("Level(%d) = %v, want %v", tt.pin, got, tt.want)
		}
	}
}

func TestBCM2835_PinRange(t *testing.T) {
	b := openFake(t)
	if err := b.Input(MaxPin+1, PullOff); !errors.Is(err, ErrPinRange) {
		t.Errorf("Input out of range err = %v", err)
	}
}

func TestOpen(t *testing.T) {
	if _, err := Open("sim", ""); err != nil {
		t.Errorf("Open(sim) failed: %v", err)
	}
	if _, err := Open("bogus", ""); err == nil {
		t.Error("Open(bogus) should fail")
	}
	if _, err := Open("bcm2835", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Open(bcm2835) on missing device should fail")
	}
}

func TestSim(t *testing.T) {
	s := NewSim()
	if err := s.Input(3, PullUp); err != nil {
		t.Fatal(err)
	}
	if !s.Level(3) {
		t.Error("pulled-up pin should idle high")
	}
	s.Set(3, false)
	if s.Level(3) {
		t.Error("pin should read low after Set(false)")
	}
	s.Set(4, true)
	if !s.Level(4) || s.Level(3) {
		t.Error("Set must only affect its own pin")
	}
}
