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

// CRC7 computes the 7-bit CRC (polynomial x^7 + x^3 + 1) used by SD command
// frames. The result is in the low 7 bits.
func CRC7(data []byte) byte {
	var crc byte
	for _, b := range data {
		for i := 0; i < 8; i++ {
			crc <<= 1
			if (b^crc)&0x80 != 0 {
				crc ^= 0x09
			}
			b <<= 1
		}
	}
	return crc & 0x7F
}

// CRC16 computes the CRC-16/XMODEM (polynomial 0x1021, init 0) that
// protects SD data blocks.
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// EncodeCommand writes a command frame for index and arg into dst, which
// must hold at least CommandLength bytes. crc is sent unchanged.
func EncodeCommand(dst []byte, index byte, arg uint32, crc byte) []byte {
	dst = dst[:CommandLength]
	dst[0] = CommandStart | (index & CommandMask)
	dst[1] = byte(arg >> 24)
	dst[2] = byte(arg >> 16)
	dst[3] = byte(arg >> 8)
	dst[4] = byte(arg)
	dst[5] = crc
	return dst
}

// CommandCRC returns the final frame byte for index and arg: the CRC7 of
// the first five bytes shifted left with the end bit set.
func CommandCRC(index byte, arg uint32) byte {
	var buf [CommandLength]byte
	EncodeCommand(buf[:], index, arg, 0)
	return CRC7(buf[:5])<<1 | EndBit
}

// DecodeCommand splits a received frame back into index, argument and
// checksum. ok is false when the frame does not carry a valid start pattern.
func DecodeCommand(frm []byte) (index byte, arg uint32, crc byte, ok bool) {
	if len(frm) < CommandLength || frm[0]&0xC0 != CommandStart {
		return 0, 0, 0, false
	}
	index = frm[0] & CommandMask
	arg = uint32(frm[1])<<24 | uint32(frm[2])<<16 | uint32(frm[3])<<8 | uint32(frm[4])
	return index, arg, frm[5], true
}
