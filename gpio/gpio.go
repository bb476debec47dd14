// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package gpio provides digital input access to the device's pin header.
package gpio

import (
	"errors"
	"fmt"
)

// MaxPin is the highest pin number addressable by a bank.
const MaxPin = 53

var ErrPinRange = errors.New("gpio: pin out of range")

// Pull selects the internal pull resistor of an input pin.
type Pull int

const (
	PullOff Pull = iota
	PullDown
	PullUp
)

// Pins is the set of primitives the runtime needs from the pin hardware.
type Pins interface {
	// Input configures pin as an input with the given pull resistor.
	Input(pin int, pull Pull) error
	// Level reports whether pin currently reads high.
	Level(pin int) bool
	Close() error
}

func checkPin(pin int) error {
	if pin < 0 || pin > MaxPin {
		return fmt.Errorf("%w: %d", ErrPinRange, pin)
	}
	return nil
}

// Open returns the bank selected by kind ("bcm2835" or "sim").
func Open(kind, device string) (Pins, error) {
	switch kind {
	case "bcm2835", "":
		b, err := OpenBCM2835(device)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "sim":
		return NewSim(), nil
	default:
		return nil, fmt.Errorf("unknown gpio type: %s", kind)
	}
}
