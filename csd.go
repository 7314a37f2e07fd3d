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

package sdcard

import (
	"fmt"
	"strings"
	"time"

	"periph.io/x/conn/v3/physic"
)

// CSD structure versions, from the top two bits of the first register byte
const (
	csdVersion1 = 0
	csdVersion2 = 1
)

// CSD is the decoded subset of the card-specific data register
type CSD struct {
	// Raw holds the register as read from the card
	Raw [registerLen]byte
	// Version is 1 for standard capacity layouts and 2 for SDHC/SDXC
	Version int
	// BlockCount is the capacity in 512-byte blocks
	BlockCount uint64
	// ReadBlockLength is 2^READ_BL_LEN bytes (always 512 on version 2)
	ReadBlockLength int
	// MaxTransferRate is decoded from TRAN_SPEED
	MaxTransferRate physic.Frequency
}

// Capacity returns the card size in bytes
func (c *CSD) Capacity() uint64 {
	return c.BlockCount * BlockSize
}

// tranSpeedValues is TRAN_SPEED's time value scaled by 10
var tranSpeedValues = [16]int64{0, 10, 12, 13, 15, 20, 25, 30, 35, 40, 45, 50, 55, 60, 70, 80}

// tranSpeedUnits is TRAN_SPEED's rate unit divided by 10
var tranSpeedUnits = [4]physic.Frequency{
	10 * physic.KiloHertz,
	100 * physic.KiloHertz,
	1 * physic.MegaHertz,
	10 * physic.MegaHertz,
}

// ParseCSD decodes a 16-byte CSD register. Structures other than version
// 1.0 and 2.0 are rejected rather than guessed.
func ParseCSD(raw []byte) (*CSD, error) {
	if len(raw) < registerLen {
		return nil, fmt.Errorf("%w: CSD needs %d bytes, got %d", ErrInvalidParameter, registerLen, len(raw))
	}

	csd := &CSD{}
	copy(csd.Raw[:], raw)

	if unit := raw[3] & 0x07; unit < 4 {
		csd.MaxTransferRate = physic.Frequency(tranSpeedValues[(raw[3]>>3)&0x0F]) * tranSpeedUnits[unit]
	}

	switch structure := raw[0] >> 6; structure {
	case csdVersion2:
		cSize := uint64(raw[7]&0x3F)<<16 | uint64(raw[8])<<8 | uint64(raw[9])
		csd.Version = 2
		csd.ReadBlockLength = BlockSize
		csd.BlockCount = (cSize + 1) * 1024
	case csdVersion1:
		cSize := uint64(raw[6]&0x03)<<10 | uint64(raw[7])<<2 | uint64(raw[8])>>6
		cSizeMult := uint(raw[9]&0x03)<<1 | uint(raw[10])>>7
		readBlLen := uint(raw[5] & 0x0F)
		csd.Version = 1
		csd.BlockCount = (cSize + 1) << (cSizeMult + 2)
		csd.ReadBlockLength = BlockSize
		// 1GB and 2GB cards describe themselves in 1024 or 2048 byte units
		if readBlLen > 9 && readBlLen <= 11 {
			csd.ReadBlockLength = 1 << readBlLen
			csd.BlockCount <<= readBlLen - 9
		}
	default:
		return nil, fmt.Errorf("%w: structure %d", ErrUnsupportedCSD, structure)
	}

	return csd, nil
}

// CID is the decoded card identification register
type CID struct {
	Manufactured time.Time
	OEM          string
	Product      string
	Raw          [registerLen]byte
	Serial       uint32
	Manufacturer byte
	RevisionMaj  byte
	RevisionMin  byte
}

// Revision returns the product revision as "n.m"
func (c *CID) Revision() string {
	return fmt.Sprintf("%d.%d", c.RevisionMaj, c.RevisionMin)
}

// ParseCID decodes a 16-byte CID register
func ParseCID(raw []byte) (*CID, error) {
	if len(raw) < registerLen {
		return nil, fmt.Errorf("%w: CID needs %d bytes, got %d", ErrInvalidParameter, registerLen, len(raw))
	}

	cid := &CID{
		Manufacturer: raw[0],
		OEM:          printable(raw[1:3]),
		Product:      printable(raw[3:8]),
		RevisionMaj:  raw[8] >> 4,
		RevisionMin:  raw[8] & 0x0F,
		Serial:       uint32(raw[9])<<24 | uint32(raw[10])<<16 | uint32(raw[11])<<8 | uint32(raw[12]),
	}
	copy(cid.Raw[:], raw)

	year := 2000 + (int(raw[13]&0x0F)<<4 | int(raw[14]>>4))
	month := time.Month(raw[14] & 0x0F)
	if month >= time.January && month <= time.December {
		cid.Manufactured = time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	}

	return cid, nil
}

func printable(b []byte) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7E {
			return -1
		}
		return r
	}, string(b)))
}

// ReadCSD returns the raw 16-byte CSD register
func (c *Card) ReadCSD() ([]byte, error) {
	return c.readRegister("ReadCSD", cmdSendCSD)
}

// ReadCID returns the raw 16-byte CID register
func (c *Card) ReadCID() ([]byte, error) {
	return c.readRegister("ReadCID", cmdSendCID)
}

// CSD reads and decodes the CSD register
func (c *Card) CSD() (*CSD, error) {
	raw, err := c.ReadCSD()
	if err != nil {
		return nil, err
	}
	return ParseCSD(raw)
}

// CID reads and decodes the CID register
func (c *Card) CID() (*CID, error) {
	raw, err := c.ReadCID()
	if err != nil {
		return nil, err
	}
	return ParseCID(raw)
}

// BlockCount returns the number of 512-byte blocks on the card, or 0 when
// the capacity cannot be determined. The CSD is read on every call.
func (c *Card) BlockCount() uint64 {
	csd, err := c.CSD()
	if err != nil {
		debugf("block count unavailable: %v", err)
		return 0
	}
	return csd.BlockCount
}

// Capacity returns the card size in bytes, or 0 when unknown
func (c *Card) Capacity() uint64 {
	return c.BlockCount() * BlockSize
}

func (c *Card) readRegister(op string, cmd byte) ([]byte, error) {
	if !c.ready {
		return nil, newOpError(op, ErrNotInitialized)
	}

	r1, err := c.command(cmd, 0)
	if err := commandStatus(op, cmd, r1, err, ErrRegisterRead); err != nil {
		_ = c.link.deselect()
		return nil, err
	}

	raw := make([]byte, registerLen)
	if err := c.receiveDataBlock(raw); err != nil {
		_ = c.link.deselect()
		return nil, err
	}
	if err := c.link.deselect(); err != nil {
		return nil, err
	}
	return raw, nil
}
