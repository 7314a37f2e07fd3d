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

/*
Package sdcard provides a pure Go block driver for SD and SDHC cards
attached in SPI mode.

The card is driven over any full-duplex byte bus plus a GPIO select line.
After initialization it exposes the card as a flat array of 512-byte
blocks, the same unit a filesystem layer works in.

Features:
  - SD v1, SD v2 standard capacity and SDHC/SDXC cards
  - Single and multi-block reads and writes
  - CSD/CID register decoding and capacity reporting
  - Block range erase
  - io.ReaderAt and io.WriterAt over the card's byte space
  - Bus backends: periph.io SPI ports, FT232H adapters, Linux spidev, Bus Pirate
  - Retry helper with configurable backoff

Basic Usage:

	import (
	    "github.com/ZaparooProject/go-sdcard"
	    "github.com/ZaparooProject/go-sdcard/transport/spi"
	)

	// Open an SPI port with a GPIO chip select
	bus, err := spi.New("SPI0.0", "GPIO25")
	if err != nil {
	    log.Fatal(err)
	}

	// Create and initialize the card
	card, err := sdcard.Open(ctx, bus, bus.SelectPin(),
	    sdcard.WithWorkingSpeed(4*physic.MegaHertz),
	)
	if err != nil {
	    log.Fatal(err)
	}
	defer card.Close()

	buf := make([]byte, sdcard.BlockSize)
	if err := card.ReadBlocks(0, buf); err != nil {
	    log.Fatal(err)
	}

Addressing:

Block numbers are always 512-byte block indexes. Standard capacity cards
are addressed in bytes on the wire; the driver scales the block number
for them after initialization detects the card type.

Error Handling:

All operations return errors wrapping one of the package sentinels:

	if errors.Is(err, sdcard.ErrDataTokenTimeout) {
	    // Card did not start the data phase
	}

A failed transfer leaves the card usable; the next call starts a fresh
command exchange. IsRetryable classifies errors for RetryWithConfig.

Thread Safety:

Card operations are not thread-safe. A Card owns its bus and select line
exclusively; serialize access in your application.
*/
package sdcard
