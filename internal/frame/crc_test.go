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

package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandCRC(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		index byte
		arg   uint32
		want  byte
	}{
		{name: "CMD0 go idle", index: 0, arg: 0, want: 0x95},
		{name: "CMD8 interface condition", index: 8, arg: 0x1AA, want: 0x87},
		{name: "CMD55 app command", index: 55, arg: 0, want: 0x65},
		{name: "CMD41 with HCS", index: 41, arg: 0x40000000, want: 0x77},
		{name: "CMD58 read OCR", index: 58, arg: 0, want: 0xFD},
		{name: "CMD16 block length 512", index: 16, arg: 512, want: 0x15},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CommandCRC(tt.index, tt.arg))
		})
	}
}

func TestCRC16(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{name: "empty", data: nil, want: 0x0000},
		{name: "check string", data: []byte("123456789"), want: 0x31C3},
		{name: "block of 0xFF", data: repeat(0xFF, BlockSize), want: 0x7FA1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CRC16(tt.data))
		})
	}
}

func TestEncodeDecodeCommand(t *testing.T) {
	t.Parallel()

	buf := make([]byte, CommandLength)
	frm := EncodeCommand(buf, 17, 0x00000A00, 0xFF)
	assert.Equal(t, []byte{0x51, 0x00, 0x00, 0x0A, 0x00, 0xFF}, frm)

	index, arg, crc, ok := DecodeCommand(frm)
	assert.True(t, ok)
	assert.Equal(t, byte(17), index)
	assert.Equal(t, uint32(0xA00), arg)
	assert.Equal(t, byte(0xFF), crc)

	_, _, _, ok = DecodeCommand([]byte{0xFF, 0, 0, 0, 0, 0})
	assert.False(t, ok)
	_, _, _, ok = DecodeCommand([]byte{0x40})
	assert.False(t, ok)
}

func repeat(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}
