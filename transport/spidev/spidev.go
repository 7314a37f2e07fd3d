// go-sdcard
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-sdcard.
//
// go-sdcard is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-sdcard is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-sdcard; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Package spidev provides a raw Linux spidev bus for go-sdcard. It talks to
// /dev/spidevB.C directly with ioctls and drives chip select through a
// separate GPIO, so it works on boards periph.io does not know about.
package spidev

import (
	"errors"

	"periph.io/x/conn/v3/physic"
)

// maxChunk is the kernel's default spidev buffer size
const maxChunk = 4096

// ErrUnsupportedPlatform is returned on systems without spidev
var ErrUnsupportedPlatform = errors.New("spidev is only available on linux")

// Config holds the spidev settings applied when the device is opened
type Config struct {
	// Speed is the initial clock rate
	Speed physic.Frequency
	// Mode is the SPI mode, 0 through 3
	Mode uint8
	// BitsPerWord is almost always 8
	BitsPerWord uint8
}

// DefaultConfig returns mode 0, 8 bit words at 100kHz
func DefaultConfig() Config {
	return Config{
		Speed:       100 * physic.KiloHertz,
		BitsPerWord: 8,
	}
}

// chunks splits n bytes into transfers of at most maxChunk bytes
func chunks(n int) [][2]int {
	var out [][2]int
	for off := 0; off < n; off += maxChunk {
		out = append(out, [2]int{off, min(off+maxChunk, n)})
	}
	return out
}
