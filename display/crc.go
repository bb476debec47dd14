// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package display

// crc16 calculates CRC-16/MODBUS, the checksum closing every panel frame.
type crc16 struct {
	sum uint16
}

func (c *crc16) reset() *crc16 {
	c.sum = 0xFFFF
	return c
}

func (c *crc16) pushBytes(bs []byte) *crc16 {
	for _, b := range bs {
		c.sum = c.sum>>8 ^ crcTable[byte(c.sum)^b]
	}
	return c
}

func (c *crc16) value() uint16 {
	return c.sum
}

var crcTable [256]uint16

func init() {
	for i := range crcTable {
		crc := uint16(i)
		for j := 0; j < 8; j++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
		crcTable[i] = crc
	}
}
