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
	"fmt"

	"periph.io/x/conn/v3/physic"

	"github.com/ZaparooProject/go-sdcard/internal/frame"
)

// BlockSize is the fixed transfer unit of every block operation
const BlockSize = frame.BlockSize

// Addressing multipliers
const (
	byteAddressed  = BlockSize
	blockAddressed = 1
)

// CardType identifies the card generation negotiated during initialization
type CardType int

const (
	// CardTypeUnknown means the card has not been initialized
	CardTypeUnknown CardType = iota
	// CardTypeSDv1 is a version 1.x standard capacity card (no CMD8)
	CardTypeSDv1
	// CardTypeSDv2 is a version 2.0+ standard capacity card
	CardTypeSDv2
	// CardTypeSDHC is a high or extended capacity card (block addressed)
	CardTypeSDHC
)

// String returns the card type name
func (t CardType) String() string {
	switch t {
	case CardTypeSDv1:
		return "SDv1"
	case CardTypeSDv2:
		return "SDv2"
	case CardTypeSDHC:
		return "SDHC/SDXC"
	default:
		return "unknown"
	}
}

// Card is an SD card attached over SPI, addressed in 512-byte blocks.
//
// Thread Safety: Card is NOT thread-safe. It owns its bus and select line
// exclusively; all methods must be called from a single goroutine or be
// protected with external synchronization.
type Card struct {
	link       *link
	config     *Config
	cardType   CardType
	blockScale uint32
	ready      bool
	cmdbuf     [frame.CommandLength]byte
	crcbuf     [frame.ChecksumLength]byte
	tokbuf     [1]byte
}

// New creates a Card on the given bus and select line. The card is not
// touched until Init is called.
func New(bus Bus, cs SelectPin, opts ...Option) (*Card, error) {
	if bus == nil || cs == nil {
		return nil, fmt.Errorf("%w: bus and select pin are required", ErrInvalidParameter)
	}

	card := &Card{
		link:       newLink(bus, cs),
		config:     DefaultConfig(),
		blockScale: byteAddressed,
	}

	for _, opt := range opts {
		if err := opt(card); err != nil {
			return nil, err
		}
	}

	if err := card.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid card config: %w", err)
	}

	return card, nil
}

// Open creates a Card and runs the initialization sequence
func Open(ctx context.Context, bus Bus, cs SelectPin, opts ...Option) (*Card, error) {
	card, err := New(bus, cs, opts...)
	if err != nil {
		return nil, err
	}
	if err := card.InitContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize card: %w", err)
	}
	return card, nil
}

// Ready reports whether initialization completed successfully
func (c *Card) Ready() bool {
	return c.ready
}

// CardType returns the card generation detected during initialization
func (c *Card) CardType() CardType {
	return c.cardType
}

// HighCapacity reports whether the card uses block addressing
func (c *Card) HighCapacity() bool {
	return c.blockScale == blockAddressed
}

// Speed returns the current bus clock
func (c *Card) Speed() physic.Frequency {
	return c.link.speed
}

// BlockSize returns the transfer unit, always 512
func (*Card) BlockSize() int {
	return BlockSize
}

// Config returns a copy of the card configuration
func (c *Card) Config() Config {
	return *c.config
}

// Close releases the select line and closes the bus if it is closable
func (c *Card) Close() error {
	c.ready = false
	if err := c.link.deselect(); err != nil {
		debugf("deselect on close failed: %v", err)
	}
	if err := c.link.close(); err != nil {
		return fmt.Errorf("failed to close bus: %w", err)
	}
	return nil
}

// address converts a block number into the command argument
func (c *Card) address(op string, block uint32) (uint32, error) {
	if c.blockScale == byteAddressed && block > (1<<32-1)/byteAddressed {
		return 0, newOpError(op, fmt.Errorf("%w: block %d", ErrOutOfRange, block))
	}
	return block * c.blockScale, nil
}
