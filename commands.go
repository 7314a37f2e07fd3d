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
	"time"

	"github.com/ZaparooProject/go-sdcard/internal/frame"
	"github.com/ZaparooProject/go-sdcard/internal/poll"
)

// SD commands used in SPI mode
const (
	cmdGoIdleState        = 0
	cmdSendIfCond         = 8
	cmdSendCSD            = 9
	cmdSendCID            = 10
	cmdStopTransmission   = 12
	cmdSetBlockLen        = 16
	cmdReadSingleBlock    = 17
	cmdReadMultipleBlock  = 18
	cmdWriteBlock         = 24
	cmdWriteMultipleBlock = 25
	cmdEraseWrBlkStart    = 32
	cmdEraseWrBlkEnd      = 33
	cmdErase              = 38
	cmdAppCmd             = 55
	cmdReadOCR            = 58

	acmdSDSendOpCond = 41
)

// Command arguments
const (
	argIfCond   = 0x1AA      // 2.7-3.6V supply, check pattern 0xAA
	argHCS      = 0x40000000 // host supports high capacity
	ocrCCS      = 0x40       // card capacity status, first OCR byte
	ifCondEcho  = 4
	ocrLength   = 4
	registerLen = 16
)

// command sends index with its generated CRC7 and returns R1
func (c *Card) command(index byte, arg uint32) (byte, error) {
	return c.sendCommand(index, arg, frame.CommandCRC(index, arg))
}

// sendCommand frames and sends one command and polls for its R1 status.
// The card is left selected so the caller can continue with a data phase.
func (c *Card) sendCommand(index byte, arg uint32, crc byte) (byte, error) {
	if err := c.link.deselect(); err != nil {
		return 0, err
	}
	if _, err := c.link.exchangeByte(frame.Fill); err != nil {
		return 0, err
	}
	if err := c.link.selectCard(); err != nil {
		return 0, err
	}
	if ready, err := c.waitReady(c.config.ReadyTimeout); err != nil {
		return 0, err
	} else if !ready {
		debugf("CMD%d: card still busy, sending anyway", index)
	}

	if err := c.link.write(frame.EncodeCommand(c.cmdbuf[:], index, arg, crc)); err != nil {
		return 0, err
	}

	r1, _, err := poll.Attempts(poll.Config{MaxAttempts: c.config.CommandAttempts}, func() (byte, bool, error) {
		b, err := c.link.exchangeByte(frame.Fill)
		if err != nil {
			return 0, false, err
		}
		return b, b&frame.R1NotResponded != 0, nil
	})
	if errors.Is(err, poll.ErrExhausted) {
		debugf("CMD%d arg=0x%08X: no response", index, arg)
		return frame.Fill, NewCardError("sendCommand", index, frame.Fill, ErrCommandTimeout)
	}
	if err != nil {
		return 0, err
	}

	if r1 != 0 {
		debugf("CMD%d arg=0x%08X: R1=0x%02X", index, arg, r1)
	}
	return r1, nil
}

// sendCommandNoData sends a command that has no data phase and releases
// the card as soon as R1 arrives.
func (c *Card) sendCommandNoData(index byte, arg uint32) (byte, error) {
	r1, err := c.command(index, arg)
	if deselectErr := c.link.deselect(); deselectErr != nil && err == nil {
		return r1, deselectErr
	}
	return r1, err
}

// appCommand sends CMD55 followed by the application command index.
// The CMD55 status itself is not checked; the application command's R1
// reports any problem.
func (c *Card) appCommand(index byte, arg uint32) (byte, error) {
	if _, err := c.command(cmdAppCmd, 0); err != nil && !errors.Is(err, ErrCommandTimeout) {
		return 0, err
	}
	return c.command(index, arg)
}

// waitReady clocks single bytes until the card releases the line (0xFF) or
// timeout elapses. A card signals busy by holding the line low.
func (c *Card) waitReady(timeout time.Duration) (bool, error) {
	_, err := poll.Until(c.config.Clock, timeout, func() (struct{}, bool, error) {
		b, err := c.link.exchangeByte(frame.Fill)
		if err != nil {
			return struct{}{}, false, err
		}
		return struct{}{}, b != frame.Fill, nil
	})
	if errors.Is(err, poll.ErrDeadline) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// release deselects the card and clocks one byte so it lets go of the line
func (c *Card) release() error {
	if err := c.link.deselect(); err != nil {
		return err
	}
	_, err := c.link.exchangeByte(frame.Fill)
	return err
}
