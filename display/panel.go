// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package display

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ffutop/stak/internal/config"
	"github.com/grid-x/serial"
)

const (
	panelIdleTimeout = 60 * time.Second

	// panelHeaderSize is magic(2) + width(2) + height(2).
	panelHeaderSize = 6
	panelCRCSize    = 2
)

var panelMagic = [2]byte{'S', 'K'}

// Panel streams frames to a display controller bridged over a serial line.
//
// Frame layout:
//
//	Magic   : 2 bytes 'S' 'K'
//	Width   : 2 bytes, big-endian
//	Height  : 2 bytes, big-endian
//	Pixels  : width * height * 2 bytes, RGB565 little-endian
//	CRC     : 2 bytes, CRC-16/MODBUS over everything before it, low byte first
//
// A full frame takes far longer on the wire than a frame budget (about
// 200ms for 96x96 at 921600 baud), so frames are sent in the background and
// the ones drawn while a send is in flight are dropped.
type Panel struct {
	serial.Config

	IdleTimeout time.Duration

	width, height int
	frame         []byte // drawn by the caller
	out           []byte // sealed copy owned by the sender

	// open is replaced in tests.
	open func(*serial.Config) (io.ReadWriteCloser, error)

	sending atomic.Bool
	dropped atomic.Uint64
	wg      sync.WaitGroup

	mu           sync.Mutex
	port         io.ReadWriteCloser
	err          error
	lastActivity time.Time
	closeTimer   *time.Timer
}

// OpenPanel prepares a panel link. The port itself is opened on the first
// Update and closed again after IdleTimeout without frames.
func OpenPanel(cfg config.SerialConfig, width, height int) (*Panel, error) {
	if width <= 0 || height <= 0 || width > 0xFFFF || height > 0xFFFF {
		return nil, fmt.Errorf("invalid panel size %dx%d", width, height)
	}
	size := panelHeaderSize + width*height*BytesPerPixel + panelCRCSize
	p := &Panel{
		IdleTimeout: panelIdleTimeout,
		width:       width,
		height:      height,
		frame:       make([]byte, size),
		out:         make([]byte, size),
		open:        openSerial,
	}
	p.Config.Address = cfg.Device
	p.Config.BaudRate = cfg.BaudRate
	p.Config.DataBits = cfg.DataBits
	p.Config.StopBits = cfg.StopBits
	p.Config.Parity = cfg.Parity
	p.Config.Timeout = cfg.Timeout

	copy(p.frame, panelMagic[:])
	binary.BigEndian.PutUint16(p.frame[2:], uint16(width))
	binary.BigEndian.PutUint16(p.frame[4:], uint16(height))
	return p, nil
}

func openSerial(c *serial.Config) (io.ReadWriteCloser, error) {
	return serial.Open(c)
}

func (p *Panel) Size() (int, int) {
	return p.width, p.height
}

// Framebuffer is the pixel section of the outgoing frame.
func (p *Panel) Framebuffer() []byte {
	return p.frame[panelHeaderSize : len(p.frame)-panelCRCSize]
}

func (p *Panel) Stride() int {
	return p.width * BytesPerPixel
}

// Update seals a copy of the frame with its checksum and sends it in the
// background. The frame is dropped if the previous one is still being sent.
// A failure of the previous send is returned by the next Update that sends.
func (p *Panel) Update() error {
	if !p.sending.CompareAndSwap(false, true) {
		p.dropped.Add(1)
		return nil
	}

	p.mu.Lock()
	err := p.err
	p.err = nil
	p.mu.Unlock()

	copy(p.out, p.frame)
	n := len(p.out) - panelCRCSize
	var crc crc16
	sum := crc.reset().pushBytes(p.out[:n]).value()
	p.out[n] = byte(sum)
	p.out[n+1] = byte(sum >> 8)

	p.wg.Add(1)
	go p.send()
	return err
}

// Dropped returns the number of frames skipped because the link was busy.
func (p *Panel) Dropped() uint64 {
	return p.dropped.Load()
}

func (p *Panel) send() {
	defer p.wg.Done()
	defer p.sending.Store(false)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connect(); err != nil {
		p.err = err
		return
	}
	p.lastActivity = time.Now()
	p.startCloseTimer()

	if _, err := p.port.Write(p.out); err != nil {
		// Reopen on the next frame.
		p.close()
		p.err = fmt.Errorf("panel write: %w", err)
	}
}

// connect opens the serial port if it is not open. Caller must hold the mutex.
func (p *Panel) connect() error {
	if p.port == nil {
		port, err := p.open(&p.Config)
		if err != nil {
			return fmt.Errorf("could not open %s: %w", p.Config.Address, err)
		}
		p.port = port
	}
	return nil
}

// Close waits for a frame in flight and closes the port.
func (p *Panel) Close() error {
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()

	if n := p.dropped.Load(); n > 0 {
		slog.Debug("Panel dropped frames while busy", "device", p.Config.Address, "dropped", n)
	}
	if p.closeTimer != nil {
		p.closeTimer.Stop()
	}
	return p.close()
}

// close closes the serial port if it is open. Caller must hold the mutex.
func (p *Panel) close() (err error) {
	if p.port != nil {
		err = p.port.Close()
		p.port = nil
	}
	return
}

func (p *Panel) startCloseTimer() {
	if p.IdleTimeout <= 0 {
		return
	}
	if p.closeTimer == nil {
		p.closeTimer = time.AfterFunc(p.IdleTimeout, p.closeIdle)
	} else {
		p.closeTimer.Reset(p.IdleTimeout)
	}
}

// closeIdle closes the port once no frame was sent for IdleTimeout.
func (p *Panel) closeIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.IdleTimeout <= 0 {
		return
	}
	if idle := time.Since(p.lastActivity); idle >= p.IdleTimeout {
		slog.Debug("closing panel port due to idle timeout", "device", p.Config.Address, "idle", idle)
		p.close()
	}
}
