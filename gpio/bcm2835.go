// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package gpio

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/edsrzf/mmap-go"
)

// Register word offsets inside the GPIO block.
//
// Layout:
// - GPFSEL0..5: function select, 3 bits per pin (Offset 0x00)
// - GPLEV0..1:  pin levels (Offset 0x34)
// - GPPUD:      pull-up/down control (Offset 0x94)
// - GPPUDCLK0..1: pull-up/down clock (Offset 0x98)
const (
	regFsel0    = 0x00 / 4
	regLev0     = 0x34 / 4
	regPud      = 0x94 / 4
	regPudClk0  = 0x98 / 4
	blockSize   = 4096
	fselInput   = 0
	pudSettleUs = 5
)

// BCM2835 drives the GPIO block of a BCM2835-family SoC through a
// memory-mapped register window, usually /dev/gpiomem.
type BCM2835 struct {
	path string
	file *os.File
	data mmap.MMap
	regs []uint32
}

// OpenBCM2835 maps the GPIO register block found at path.
func OpenBCM2835(path string) (*BCM2835, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open gpio device: %w", err)
	}

	data, err := mmap.MapRegion(f, blockSize, mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}

	return &BCM2835{
		path: path,
		file: f,
		data: data,
		regs: unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), blockSize/4),
	}, nil
}

func (b *BCM2835) load(reg int) uint32 {
	return atomic.LoadUint32(&b.regs[reg])
}

func (b *BCM2835) store(reg int, v uint32) {
	atomic.StoreUint32(&b.regs[reg], v)
}

// Input selects the input function for pin and programs its pull resistor.
func (b *BCM2835) Input(pin int, pull Pull) error {
	if err := checkPin(pin); err != nil {
		return err
	}

	reg := regFsel0 + pin/10
	shift := uint(pin%10) * 3
	v := b.load(reg)
	v &^= 7 << shift
	v |= fselInput << shift
	b.store(reg, v)

	// The pull sequence needs the control line held for 150 cycles
	// around the clock pulse.
	clk := regPudClk0 + pin/32
	b.store(regPud, uint32(pull))
	time.Sleep(pudSettleUs * time.Microsecond)
	b.store(clk, 1<<uint(pin%32))
	time.Sleep(pudSettleUs * time.Microsecond)
	b.store(regPud, 0)
	b.store(clk, 0)
	return nil
}

// Level reads pin from the level registers.
func (b *BCM2835) Level(pin int) bool {
	if checkPin(pin) != nil {
		return false
	}
	return b.load(regLev0+pin/32)&(1<<uint(pin%32)) != 0
}

// Close unmaps the register window and closes the device.
func (b *BCM2835) Close() error {
	var err error
	if b.data != nil {
		if e := b.data.Unmap(); e != nil {
			err = e
		}
		b.data = nil
		b.regs = nil
	}
	if b.file != nil {
		if e := b.file.Close(); e != nil {
			err = e
		}
		b.file = nil
	}
	return err
}
