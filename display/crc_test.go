// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package display

import (
	"testing"
)

func TestCRC(t *testing.T) {
	var crc crc16
	crc.reset()
	crc.pushBytes([]byte{0x02, 0x07})

	if crc.value() != 0x1241 {
		t.Fatalf("crc expected %v, actual %v", 0x1241, crc.value())
	}

	if v := crc.reset().pushBytes([]byte("123456789")).value(); v != 0x4B37 {
		t.Fatalf("check value expected %#04x, actual %#04x", 0x4B37, v)
	}
}
