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

//go:build linux

package spidev

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func TestIoctlRequests(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uintptr(32), unsafe.Sizeof(iocTransfer{}))
	assert.Equal(t, uint(0x40206B00), spiIOCMessage1)
	assert.Equal(t, uint(0x40016B01), spiIOCWrMode)
	assert.Equal(t, uint(0x40016B03), spiIOCWrBitsPerWord)
	assert.Equal(t, uint(0x40046B04), spiIOCWrMaxSpeedHz)
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	_, err := New("/dev/spidev-does-not-exist", nil)
	require.Error(t, err)

	_, err = New("/dev/spidev-does-not-exist", &gpiotest.Pin{N: "CS", L: gpio.High})
	require.Error(t, err)
}
