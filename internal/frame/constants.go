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

// Command frame layout
const (
	CommandLength = 6    // start/index byte + 4 argument bytes + CRC byte
	CommandStart  = 0x40 // start bit 0, transmission bit 1
	CommandMask   = 0x3F // six index bits
	EndBit        = 0x01 // CRC7 occupies bits 7..1, bit 0 is always set
)

// Data tokens
const (
	TokenStartBlock = 0xFE // single block write, every read block, register reads
	TokenMultiWrite = 0xFC // start of each CMD25 block
	TokenStopTran   = 0xFD // end of a CMD25 stream
)

// R1 status bits
const (
	R1Idle          = 1 << 0
	R1EraseReset    = 1 << 1
	R1IllegalCmd    = 1 << 2
	R1CRCError      = 1 << 3
	R1EraseSequence = 1 << 4
	R1AddressError  = 1 << 5
	R1ParameterErr  = 1 << 6
	R1NotResponded  = 1 << 7
)

// Data response token: xxx0sss1, sss=010 accepted
const (
	DataResponseMask     = 0x1F
	DataAccepted         = 0x05
	DataRejectedCRC      = 0x0B
	DataRejectedWriteErr = 0x0D
)

// Fill is the byte clocked out while only receiving. An idle card also
// drives the line high, so 0xFF doubles as "not busy".
const Fill = 0xFF

// BlockSize is the fixed transfer unit in bytes.
const BlockSize = 512

// ChecksumLength is the number of CRC bytes trailing every data block.
const ChecksumLength = 2
