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

package testing

import "github.com/ZaparooProject/go-sdcard/internal/frame"

// BuildCSDv2 creates a version 2.0 CSD register with the given C_SIZE.
// The card holds (cSize+1)*1024 blocks.
func BuildCSDv2(cSize uint32) []byte {
	raw := []byte{
		0x40,                   // CSD_STRUCTURE = 1
		0x0E,                   // TAAC
		0x00,                   // NSAC
		0x32,                   // TRAN_SPEED: 25 MHz
		0x5B, 0x59,             // CCC, READ_BL_LEN = 9
		0x00,                   // flags
		byte(cSize>>16) & 0x3F, // C_SIZE
		byte(cSize >> 8),
		byte(cSize),
		0x7F, 0x80, 0x0A, 0x40, 0x00,
		0x00,
	}
	return sealRegister(raw)
}

// BuildCSDv1 creates a version 1.0 CSD register. The card holds
// (cSize+1) << (mult+2) units of 2^readBlLen bytes.
func BuildCSDv1(cSize uint16, mult, readBlLen byte) []byte {
	raw := []byte{
		0x00,                        // CSD_STRUCTURE = 0
		0x26,                        // TAAC
		0x00,                        // NSAC
		0x32,                        // TRAN_SPEED: 25 MHz
		0x5F, 0x50 | readBlLen&0x0F, // CCC, READ_BL_LEN
		0x80 | byte(cSize>>10)&0x03, // READ_BL_PARTIAL, C_SIZE[11:10]
		byte(cSize >> 2),            // C_SIZE[9:2]
		byte(cSize&0x03)<<6 | 0x2D,  // C_SIZE[1:0], VDD_R currents
		0xB4 | (mult>>1)&0x03,       // VDD_W currents, C_SIZE_MULT[2:1]
		(mult&0x01)<<7 | 0x7F,       // C_SIZE_MULT[0], erase fields
		0x80, 0x0A, 0x40, 0x00,
		0x00,
	}
	return sealRegister(raw)
}

// BuildCID creates a CID register
func BuildCID(mid byte, oem, product string, rev byte, serial uint32, year, month int) []byte {
	raw := make([]byte, 16)
	raw[0] = mid
	copy(raw[1:3], oem)
	copy(raw[3:8], product)
	raw[8] = rev
	raw[9] = byte(serial >> 24)
	raw[10] = byte(serial >> 16)
	raw[11] = byte(serial >> 8)
	raw[12] = byte(serial)
	y := year - 2000
	raw[13] = byte(y>>4) & 0x0F
	raw[14] = byte(y&0x0F)<<4 | byte(month)&0x0F
	return sealRegister(raw)
}

// TestCID is the CID every virtual card reports by default
func TestCID() []byte {
	return BuildCID(0x03, "SD", "SU08G", 0x80, 0x12345678, 2019, 4)
}

// BuildOCR creates the four OCR bytes returned after CMD58's R1
func BuildOCR(poweredUp, highCapacity bool) []byte {
	var status byte
	if poweredUp {
		status = 0x80
		if highCapacity {
			status |= 0x40
		}
	}
	return []byte{status, 0xFF, 0x80, 0x00}
}

func sealRegister(raw []byte) []byte {
	raw[15] = frame.CRC7(raw[:15])<<1 | frame.EndBit
	return raw
}
