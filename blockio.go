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
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-sdcard/internal/frame"
	"github.com/ZaparooProject/go-sdcard/internal/poll"
)

// checkTransfer validates a block I/O request before any bus activity and
// returns the number of blocks it spans.
func (c *Card) checkTransfer(op string, buf []byte) (int, error) {
	if len(buf) == 0 || len(buf)%BlockSize != 0 {
		return 0, newOpError(op, fmt.Errorf("%w: %d bytes", ErrInvalidBufferLength, len(buf)))
	}
	if !c.ready {
		return 0, newOpError(op, ErrNotInitialized)
	}
	return len(buf) / BlockSize, nil
}

// ReadBlocks reads len(buf)/512 consecutive blocks starting at block into
// buf. len(buf) must be a positive multiple of 512.
func (c *Card) ReadBlocks(block uint32, buf []byte) error {
	count, err := c.checkTransfer("ReadBlocks", buf)
	if err != nil {
		return err
	}
	addr, err := c.address("ReadBlocks", block)
	if err != nil {
		return err
	}

	if count == 1 {
		err = c.readSingle(addr, buf)
	} else {
		err = c.readMultiple(addr, buf)
	}
	if err != nil {
		_ = c.release()
		return err
	}
	return nil
}

func (c *Card) readSingle(addr uint32, buf []byte) error {
	r1, err := c.command(cmdReadSingleBlock, addr)
	if err := commandStatus("ReadBlocks", cmdReadSingleBlock, r1, err, ErrReadCommand); err != nil {
		return err
	}
	if err := c.receiveDataBlock(buf); err != nil {
		return err
	}
	return c.link.deselect()
}

func (c *Card) readMultiple(addr uint32, buf []byte) error {
	r1, err := c.command(cmdReadMultipleBlock, addr)
	if err := commandStatus("ReadBlocks", cmdReadMultipleBlock, r1, err, ErrReadCommand); err != nil {
		return err
	}

	for off := 0; off < len(buf); off += BlockSize {
		if err := c.receiveDataBlock(buf[off : off+BlockSize]); err != nil {
			return err
		}
	}

	r1, err = c.sendCommandNoData(cmdStopTransmission, 0)
	if errors.Is(err, ErrCommandTimeout) || (err == nil && r1 != 0) {
		debugf("CMD12 after multi-block read: R1=0x%02X", r1)
		return nil
	}
	return err
}

// receiveDataBlock waits for the start token, reads one block of len(dst)
// bytes and discards the trailing checksum.
func (c *Card) receiveDataBlock(dst []byte) error {
	_, err := poll.Until(c.config.Clock, c.config.TokenTimeout, func() (byte, bool, error) {
		b, err := c.link.exchangeByte(frame.Fill)
		if err != nil {
			return 0, false, err
		}
		return b, b != frame.TokenStartBlock, nil
	})
	if errors.Is(err, poll.ErrDeadline) {
		return newOpError("receiveDataBlock", ErrDataTokenTimeout)
	}
	if err != nil {
		return err
	}

	if err := c.link.readInto(dst, frame.Fill); err != nil {
		return err
	}
	return c.link.readInto(c.crcbuf[:], frame.Fill)
}

// WriteBlocks writes buf to len(buf)/512 consecutive blocks starting at
// block. len(buf) must be a positive multiple of 512.
func (c *Card) WriteBlocks(block uint32, buf []byte) error {
	count, err := c.checkTransfer("WriteBlocks", buf)
	if err != nil {
		return err
	}
	addr, err := c.address("WriteBlocks", block)
	if err != nil {
		return err
	}

	if count == 1 {
		err = c.writeSingle(addr, buf)
	} else {
		err = c.writeMultiple(addr, buf)
	}

	if releaseErr := c.release(); releaseErr != nil && err == nil {
		return releaseErr
	}
	return err
}

func (c *Card) writeSingle(addr uint32, buf []byte) error {
	r1, err := c.command(cmdWriteBlock, addr)
	if err := commandStatus("WriteBlocks", cmdWriteBlock, r1, err, ErrWriteCommand); err != nil {
		return err
	}
	return c.sendDataBlock(cmdWriteBlock, frame.TokenStartBlock, buf)
}

func (c *Card) writeMultiple(addr uint32, buf []byte) error {
	r1, err := c.command(cmdWriteMultipleBlock, addr)
	if err := commandStatus("WriteBlocks", cmdWriteMultipleBlock, r1, err, ErrWriteCommand); err != nil {
		return err
	}

	for off := 0; off < len(buf); off += BlockSize {
		if err := c.sendDataBlock(cmdWriteMultipleBlock, frame.TokenMultiWrite, buf[off:off+BlockSize]); err != nil {
			return err
		}
	}
	return c.writeToken(frame.TokenStopTran)
}

// sendDataBlock transmits token, one block and its checksum, then checks
// the data response and waits for programming to finish.
func (c *Card) sendDataBlock(cmd, token byte, block []byte) error {
	if err := c.writeToken(token); err != nil {
		return err
	}
	if err := c.link.write(block); err != nil {
		return err
	}

	c.crcbuf[0], c.crcbuf[1] = frame.Fill, frame.Fill
	if c.config.DataCRC {
		crc := frame.CRC16(block)
		c.crcbuf[0], c.crcbuf[1] = byte(crc>>8), byte(crc)
	}
	if err := c.link.write(c.crcbuf[:]); err != nil {
		return err
	}

	resp, err := c.link.exchangeByte(frame.Fill)
	if err != nil {
		return err
	}
	if resp&frame.DataResponseMask != frame.DataAccepted {
		debugf("CMD%d: data response 0x%02X", cmd, resp)
		return NewCardError("WriteBlocks", cmd, resp, ErrDataRejected)
	}

	ready, err := c.waitReady(c.config.ReadyTimeout)
	if err != nil {
		return err
	}
	if !ready {
		return NewCardError("WriteBlocks", cmd, resp, ErrWriteTimeout)
	}
	return nil
}

func (c *Card) writeToken(token byte) error {
	c.tokbuf[0] = token
	return c.link.write(c.tokbuf[:])
}

// commandStatus turns a command result into the operation's error kind
func commandStatus(op string, cmd, r1 byte, err, kind error) error {
	if errors.Is(err, ErrCommandTimeout) {
		return NewCardError(op, cmd, r1, fmt.Errorf("%w: %w", kind, ErrCommandTimeout))
	}
	if err != nil {
		return err
	}
	if r1 != 0 {
		return NewCardError(op, cmd, r1, kind)
	}
	return nil
}
