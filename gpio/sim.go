// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package gpio

import "sync/atomic"

// Sim is an in-memory pin bank. Levels may be driven from any goroutine.
type Sim struct {
	levels atomic.Uint64
}

func NewSim() *Sim {
	return &Sim{}
}

// Input mimics the pull resistor: a pulled-up input idles high.
func (s *Sim) Input(pin int, pull Pull) error {
	if err := checkPin(pin); err != nil {
		return err
	}
	switch pull {
	case PullUp:
		s.Set(pin, true)
	case PullDown:
		s.Set(pin, false)
	}
	return nil
}

func (s *Sim) Level(pin int) bool {
	if checkPin(pin) != nil {
		return false
	}
	return s.levels.Load()&(1<<uint(pin)) != 0
}

// Set drives pin to level.
func (s *Sim) Set(pin int, level bool) {
	if checkPin(pin) != nil {
		return
	}
	bit := uint64(1) << uint(pin)
	for {
		old := s.levels.Load()
		v := old &^ bit
		if level {
			v |= bit
		}
		if s.levels.CompareAndSwap(old, v) {
			return
		}
	}
}

func (s *Sim) Close() error {
	return nil
}
