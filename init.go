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
	"context"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-sdcard/internal/frame"
	"github.com/ZaparooProject/go-sdcard/internal/poll"
)

// powerUpClocks is the number of filler bytes clocked with the card
// deselected so it finishes its power-up sequence (at least 74 clocks).
const powerUpClocks = 10

// Init runs the initialization sequence
func (c *Card) Init() error {
	return c.InitContext(context.Background())
}

// InitContext drives the card from power-on to the ready state. ctx is
// checked between operating condition attempts. On failure the card is
// left un-initialized and block I/O is refused until Init succeeds.
func (c *Card) InitContext(ctx context.Context) error {
	c.ready = false
	c.cardType = CardTypeUnknown
	c.blockScale = byteAddressed

	if err := c.initCard(ctx); err != nil {
		debugf("initialization failed: %v", err)
		_ = c.link.deselect()
		return err
	}

	c.ready = true
	debugf("card ready: type=%s speed=%s", c.cardType, c.link.speed)
	return nil
}

func (c *Card) initCard(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("initialization cancelled: %w", err)
	}
	if err := c.powerUp(); err != nil {
		return err
	}
	if err := c.goIdle(); err != nil {
		return err
	}

	v2, err := c.checkInterfaceCondition()
	if err != nil {
		return err
	}

	if err := c.negotiateOperatingCondition(ctx); err != nil {
		return err
	}

	if err := c.readOCR(v2); err != nil {
		return err
	}

	if c.blockScale == byteAddressed {
		if err := c.setBlockLength(); err != nil {
			return err
		}
	}

	if err := c.link.reconfigure(c.config.WorkingSpeed); err != nil {
		return err
	}
	return c.link.deselect()
}

// powerUp switches to the slow negotiation clock and gives the card its
// power-up clocks with the select line high.
func (c *Card) powerUp() error {
	debugf("power up at %s", c.config.InitSpeed)
	if err := c.link.reconfigure(c.config.InitSpeed); err != nil {
		return err
	}
	if err := c.link.deselect(); err != nil {
		return err
	}
	return c.link.write(c.link.fillFor(powerUpClocks, frame.Fill))
}

// goIdle resets the card into SPI mode with CMD0
func (c *Card) goIdle() error {
	r1, err := c.command(cmdGoIdleState, 0)
	if errors.Is(err, ErrCommandTimeout) {
		return NewCardError("init", cmdGoIdleState, r1, ErrNoCardDetected)
	}
	if err != nil {
		return err
	}
	if r1 != frame.R1Idle && r1 != 0 {
		return NewCardError("init", cmdGoIdleState, r1, ErrNoCardDetected)
	}
	debugln("CMD0 accepted")
	return nil
}

// checkInterfaceCondition sends CMD8. Version 1 cards reject it as illegal;
// version 2 cards echo the voltage and check pattern, which is discarded.
func (c *Card) checkInterfaceCondition() (bool, error) {
	r1, err := c.command(cmdSendIfCond, argIfCond)
	if errors.Is(err, ErrCommandTimeout) {
		debugln("CMD8 unanswered, assuming version 1 card")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if r1&frame.R1IllegalCmd != 0 {
		debugln("CMD8 illegal, version 1 card")
		return false, nil
	}

	echo, err := c.link.exchange(ifCondEcho, frame.Fill)
	if err != nil {
		return false, err
	}
	debugf("CMD8 echo % X", echo)
	return true, nil
}

// negotiateOperatingCondition repeats ACMD41 until the card leaves idle
func (c *Card) negotiateOperatingCondition(ctx context.Context) error {
	var last byte
	_, attempts, err := poll.Attempts(poll.Config{
		Clock:       c.config.Clock,
		MaxAttempts: c.config.InitAttempts,
		Delay:       c.config.InitRetryDelay,
		OnRetry: func(int) error {
			return ctx.Err()
		},
	}, func() (byte, bool, error) {
		r1, err := c.appCommand(acmdSDSendOpCond, argHCS)
		if errors.Is(err, ErrCommandTimeout) {
			last = r1
			return r1, true, nil
		}
		if err != nil {
			return 0, false, err
		}
		last = r1
		return r1, r1 != 0, nil
	})

	switch {
	case errors.Is(err, poll.ErrExhausted):
		return NewCardError("init", acmdSDSendOpCond, last, ErrInitTimeout)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("initialization cancelled after %d attempts: %w", attempts, err)
	case err != nil:
		return err
	}

	debugf("ACMD41 ready after %d attempts", attempts)
	return nil
}

// readOCR decides the addressing mode. A card that cannot report its OCR is
// treated as byte addressed.
func (c *Card) readOCR(v2 bool) error {
	c.blockScale = byteAddressed
	c.cardType = CardTypeSDv1
	if v2 {
		c.cardType = CardTypeSDv2
	}

	r1, err := c.command(cmdReadOCR, 0)
	if errors.Is(err, ErrCommandTimeout) || (err == nil && r1 != 0) {
		debugf("CMD58 failed (R1=0x%02X), using byte addressing", r1)
		return nil
	}
	if err != nil {
		return err
	}

	ocr, err := c.link.exchange(ocrLength, frame.Fill)
	if err != nil {
		return err
	}
	debugf("OCR % X", ocr)

	if ocr[0]&ocrCCS != 0 {
		c.blockScale = blockAddressed
		c.cardType = CardTypeSDHC
	}
	return nil
}

// setBlockLength forces 512-byte blocks on byte addressed cards
func (c *Card) setBlockLength() error {
	r1, err := c.command(cmdSetBlockLen, BlockSize)
	if errors.Is(err, ErrCommandTimeout) {
		return NewCardError("init", cmdSetBlockLen, r1, ErrSetBlockLengthFailed)
	}
	if err != nil {
		return err
	}
	if r1 != 0 {
		return NewCardError("init", cmdSetBlockLen, r1, ErrSetBlockLengthFailed)
	}
	return nil
}
