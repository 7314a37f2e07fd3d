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
	"bytes"
	"io"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/ZaparooProject/go-sdcard/internal/frame"
)

// Bus is a full-duplex, byte-oriented serial bus (SPI mode 0, MSB first).
// This can be implemented by periph.io, spidev or Bus Pirate backends.
type Bus interface {
	// Tx clocks out w while clocking in len(w) bytes into r. r may be nil
	// when the received bytes are not needed; otherwise len(r) == len(w).
	Tx(w, r []byte) error

	// SetSpeed changes the clock rate for subsequent transfers
	SetSpeed(f physic.Frequency) error
}

// SelectPin drives the card's chip select line. gpio.PinOut satisfies it.
type SelectPin interface {
	Out(l gpio.Level) error
}

// BusType represents the type of bus backend
type BusType string

const (
	// BusPeriph represents an SPI port opened through periph.io.
	BusPeriph BusType = "periph"
	// BusFTDI represents an FT232H USB adapter driven through periph.io.
	BusFTDI BusType = "ftdi"
	// BusSpidev represents a raw Linux spidev character device.
	BusSpidev BusType = "spidev"
	// BusBusPirate represents a Bus Pirate in binary SPI mode.
	BusBusPirate BusType = "buspirate"
	// BusMock represents a mock or simulated bus for testing
	BusMock BusType = "mock"
)

// BusTyper is implemented by buses that can report their backend
type BusTyper interface {
	Type() BusType
}

// link is the byte-exchange layer between the protocol engine and the Bus.
// It owns the select line and keeps reusable fill buffers.
type link struct {
	bus   Bus
	cs    SelectPin
	name  string
	fill  []byte
	speed physic.Frequency
	one   [1]byte
	oneTx [1]byte
}

func newLink(bus Bus, cs SelectPin) *link {
	name := "bus"
	if typer, ok := bus.(BusTyper); ok {
		name = string(typer.Type())
	}
	return &link{
		bus:  bus,
		cs:   cs,
		name: name,
		fill: bytes.Repeat([]byte{frame.Fill}, frame.BlockSize),
	}
}

// selectCard drives the select line active (low)
func (l *link) selectCard() error {
	if err := l.cs.Out(gpio.Low); err != nil {
		return NewBusError("select", l.name, err)
	}
	return nil
}

// deselect drives the select line inactive (high)
func (l *link) deselect() error {
	if err := l.cs.Out(gpio.High); err != nil {
		return NewBusError("deselect", l.name, err)
	}
	return nil
}

// exchange clocks out n copies of fill and returns the received bytes
func (l *link) exchange(n int, fill byte) ([]byte, error) {
	buf := make([]byte, n)
	if err := l.readInto(buf, fill); err != nil {
		return nil, err
	}
	return buf, nil
}

// exchangeByte is exchange(1, fill) without the allocation
func (l *link) exchangeByte(fill byte) (byte, error) {
	l.oneTx[0] = fill
	if err := l.bus.Tx(l.oneTx[:], l.one[:]); err != nil {
		return 0, NewBusError("exchange", l.name, err)
	}
	return l.one[0], nil
}

// write clocks out p and discards whatever the card sends back
func (l *link) write(p []byte) error {
	if err := l.bus.Tx(p, nil); err != nil {
		return NewBusError("write", l.name, err)
	}
	return nil
}

// readInto clocks out len(buf) copies of fill, storing received bytes in buf
func (l *link) readInto(buf []byte, fill byte) error {
	if err := l.bus.Tx(l.fillFor(len(buf), fill), buf); err != nil {
		return NewBusError("read", l.name, err)
	}
	return nil
}

// reconfigure changes the bus clock for the next exchange
func (l *link) reconfigure(f physic.Frequency) error {
	if err := l.bus.SetSpeed(f); err != nil {
		return NewBusError("reconfigure", l.name, err)
	}
	l.speed = f
	return nil
}

func (l *link) fillFor(n int, fill byte) []byte {
	if fill != frame.Fill {
		return bytes.Repeat([]byte{fill}, n)
	}
	if n > len(l.fill) {
		l.fill = bytes.Repeat([]byte{frame.Fill}, n)
	}
	return l.fill[:n]
}

func (l *link) close() error {
	if closer, ok := l.bus.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return NewBusError("close", l.name, err)
		}
	}
	return nil
}
