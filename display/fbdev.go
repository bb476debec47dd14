// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package display

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edsrzf/mmap-go"
)

// Fbdev draws straight into a memory-mapped Linux fbdev device
// configured for 16 bits per pixel.
type Fbdev struct {
	path          string
	file          *os.File
	data          mmap.MMap
	width, height int
	stride        int
}

// OpenFramebuffer maps the first height rows of device. The row stride is
// taken from sysfs when the device exposes it.
func OpenFramebuffer(device string, width, height int) (*Fbdev, error) {
	stride := width * BytesPerPixel
	if s, ok := sysfsStride(device); ok {
		stride = s
	}
	if stride < width*BytesPerPixel {
		return nil, fmt.Errorf("framebuffer %s: stride %d too small for width %d", device, stride, width)
	}

	f, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open framebuffer: %w", err)
	}
	data, err := mmap.MapRegion(f, stride*height, mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s failed: %w", device, err)
	}
	return &Fbdev{
		path:   device,
		file:   f,
		data:   data,
		width:  width,
		height: height,
		stride: stride,
	}, nil
}

// sysfsStride reads /sys/class/graphics/<name>/stride.
func sysfsStride(device string) (int, bool) {
	raw, err := os.ReadFile(filepath.Join("/sys/class/graphics", filepath.Base(device), "stride"))
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (fb *Fbdev) Size() (int, int)    { return fb.width, fb.height }
func (fb *Fbdev) Framebuffer() []byte { return fb.data }
func (fb *Fbdev) Stride() int         { return fb.stride }

// Update is a no-op; the mapping is the scanout memory.
func (fb *Fbdev) Update() error { return nil }

// Close unmaps and closes the device.
func (fb *Fbdev) Close() error {
	var err error
	if fb.data != nil {
		if e := fb.data.Unmap(); e != nil {
			err = e
		}
		fb.data = nil
	}
	if fb.file != nil {
		if e := fb.file.Close(); e != nil {
			err = e
		}
		fb.file = nil
	}
	return err
}
