// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package display

import "encoding/binary"

// BytesPerPixel of the RGB565 pixel format.
const BytesPerPixel = 2

// Canvas is a double-buffered RGB565 drawing surface. Plugins draw into the
// back buffer; Swap publishes it as the front buffer.
type Canvas struct {
	width, height int
	front, back   []uint16
}

// NewCanvas allocates a width x height canvas cleared to black.
func NewCanvas(width, height int) *Canvas {
	return &Canvas{
		width:  width,
		height: height,
		front:  make([]uint16, width*height),
		back:   make([]uint16, width*height),
	}
}

func (c *Canvas) Size() (int, int) {
	return c.width, c.height
}

// Clear fills the back buffer.
func (c *Canvas) Clear(color uint16) {
	for i := range c.back {
		c.back[i] = color
	}
}

// SetPixel writes one back buffer pixel; out of bounds writes are dropped.
func (c *Canvas) SetPixel(x, y int, color uint16) {
	if x < 0 || y < 0 || x >= c.width || y >= c.height {
		return
	}
	c.back[y*c.width+x] = color
}

// Pixel reads the front buffer.
func (c *Canvas) Pixel(x, y int) uint16 {
	if x < 0 || y < 0 || x >= c.width || y >= c.height {
		return 0
	}
	return c.front[y*c.width+x]
}

// Swap exchanges the buffers and seeds the new back buffer with the frame
// just published, so plugins may draw incrementally.
func (c *Canvas) Swap() {
	c.front, c.back = c.back, c.front
	copy(c.back, c.front)
}

// Copy transfers the front buffer into dst in framebuffer byte order
// (little-endian RGB565), with stride bytes per destination row.
func (c *Canvas) Copy(dst []byte, stride int) {
	rowBytes := c.width * BytesPerPixel
	if stride < rowBytes {
		rowBytes = stride
	}
	for y := 0; y < c.height; y++ {
		off := y * stride
		if off+rowBytes > len(dst) {
			return
		}
		row := dst[off : off+rowBytes]
		src := c.front[y*c.width:]
		for x := 0; x+BytesPerPixel <= len(row); x += BytesPerPixel {
			binary.LittleEndian.PutUint16(row[x:], src[x/BytesPerPixel])
		}
	}
}

// RGB565 packs 8-bit channels.
func RGB565(r, g, b uint8) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

// RGB unpacks to 8-bit channels.
func RGB(c uint16) (r, g, b uint8) {
	r = uint8(c>>11) << 3
	g = uint8(c>>5&0x3F) << 2
	b = uint8(c&0x1F) << 3
	return
}
