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

// Package spi provides a periph.io SPI bus for go-sdcard, covering SoC SPI
// ports (Raspberry Pi and friends) and FT232H USB adapters.
package spi

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"

	sdcard "github.com/ZaparooProject/go-sdcard"
)

// defaultMaxTx is used when the port does not report its transfer limit
const defaultMaxTx = 4096

// ErrNoFTDI is returned when no FT232H adapter is attached
var ErrNoFTDI = errors.New("no FT232H adapter found")

// txConn is the part of spi.Conn the transport uses
type txConn interface {
	Tx(w, r []byte) error
}

// connectFunc opens the port at the given clock and returns the connection
// and the handle that releases it
type connectFunc func(f physic.Frequency) (txConn, io.Closer, error)

// Transport implements sdcard.Bus on top of a periph.io SPI port. The chip
// select line is a separate GPIO so it can stay asserted across transfers.
type Transport struct {
	connect connectFunc
	conn    txConn
	closer  io.Closer
	cs      gpio.PinOut
	name    string
	busType sdcard.BusType
	scratch []byte
	speed   physic.Frequency
	maxTx   int
	mu      sync.Mutex
}

var _ sdcard.Bus = (*Transport)(nil)

// New opens the named SPI port (e.g. "SPI0.0" or "/dev/spidev0.0") with
// the named GPIO as chip select (e.g. "GPIO25").
func New(portName, csName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	cs := gpioreg.ByName(csName)
	if cs == nil {
		return nil, fmt.Errorf("chip select pin %q not found", csName)
	}

	connect := func(f physic.Frequency) (txConn, io.Closer, error) {
		port, err := spireg.Open(portName)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
		}
		return connectPort(port, f)
	}

	return newTransport(connect, cs, portName, sdcard.BusPeriph)
}

// NewFTDI opens the SPI engine of the index'th FT232H adapter. csPin
// names the adapter pin wired to the card's select line ("D3" through
// "D7"); an empty name selects D3.
func NewFTDI(index int, csPin string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	adapters := FTDIAdapters()
	if index < 0 || index >= len(adapters) {
		return nil, fmt.Errorf("%w: index %d of %d", ErrNoFTDI, index, len(adapters))
	}
	ft := adapters[index]

	cs, err := ftdiPin(ft, csPin)
	if err != nil {
		return nil, err
	}

	connect := func(f physic.Frequency) (txConn, io.Closer, error) {
		port, err := ft.SPI()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open FT232H SPI: %w", err)
		}
		return connectPort(port, f)
	}

	return newTransport(connect, cs, ft.String(), sdcard.BusFTDI)
}

// FTDIAdapters returns the attached FT232H adapters. host.Init must have
// run first.
func FTDIAdapters() []*ftdi.FT232H {
	var adapters []*ftdi.FT232H
	for _, dev := range ftdi.All() {
		if ft, ok := dev.(*ftdi.FT232H); ok {
			adapters = append(adapters, ft)
		}
	}
	return adapters
}

func ftdiPin(ft *ftdi.FT232H, name string) (gpio.PinOut, error) {
	switch name {
	case "", "D3":
		return ft.D3, nil
	case "D4":
		return ft.D4, nil
	case "D5":
		return ft.D5, nil
	case "D6":
		return ft.D6, nil
	case "D7":
		return ft.D7, nil
	default:
		return nil, fmt.Errorf("unsupported FT232H chip select pin %q", name)
	}
}

// connectPort connects in mode 0 without hardware chip select. The port is
// closed again if the connection fails.
func connectPort(port spi.PortCloser, f physic.Frequency) (txConn, io.Closer, error) {
	c, err := port.Connect(f, spi.Mode0|spi.NoCS, 8)
	if err != nil {
		_ = port.Close()
		return nil, nil, fmt.Errorf("failed to connect SPI at %s: %w", f, err)
	}
	return c, port, nil
}

func newTransport(connect connectFunc, cs gpio.PinOut, name string, busType sdcard.BusType) (*Transport, error) {
	t := &Transport{
		connect: connect,
		cs:      cs,
		name:    name,
		busType: busType,
	}
	if err := cs.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("failed to drive chip select: %w", err)
	}
	if err := t.SetSpeed(sdcard.DefaultInitSpeed); err != nil {
		return nil, err
	}
	return t, nil
}

// Tx exchanges w for r, splitting transfers larger than the port allows
func (t *Transport) Tx(w, r []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return sdcard.ErrBusClosed
	}
	if r == nil {
		if cap(t.scratch) < len(w) {
			t.scratch = make([]byte, len(w))
		}
		r = t.scratch[:len(w)]
	}
	if len(r) != len(w) {
		return fmt.Errorf("%w: read buffer %d bytes, write %d", sdcard.ErrInvalidParameter, len(r), len(w))
	}

	for off := 0; off < len(w); off += t.maxTx {
		end := min(off+t.maxTx, len(w))
		if err := t.conn.Tx(w[off:end], r[off:end]); err != nil {
			return fmt.Errorf("%w: %w", sdcard.ErrBusIO, err)
		}
	}
	return nil
}

// SetSpeed reconnects the port at f. periph.io fixes the clock when a
// connection is made, so the port is closed and opened again.
func (t *Transport) SetSpeed(f physic.Frequency) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil && f == t.speed {
		return nil
	}
	if t.closer != nil {
		_ = t.closer.Close()
		t.conn, t.closer = nil, nil
	}

	c, closer, err := t.connect(f)
	if err != nil {
		return err
	}
	t.conn, t.closer, t.speed = c, closer, f

	t.maxTx = defaultMaxTx
	if limits, ok := c.(conn.Limits); ok && limits.MaxTxSize() > 0 {
		t.maxTx = limits.MaxTxSize()
	}
	return nil
}

// SelectPin returns the chip select line
func (t *Transport) SelectPin() sdcard.SelectPin {
	return t.cs
}

// Speed returns the current clock rate
func (t *Transport) Speed() physic.Frequency {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.speed
}

// Close releases the select line and the port
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_ = t.cs.Out(gpio.High)
	if t.closer == nil {
		return nil
	}
	err := t.closer.Close()
	t.conn, t.closer = nil, nil
	if err != nil {
		return fmt.Errorf("failed to close SPI port %s: %w", t.name, err)
	}
	return nil
}

// String returns the port name
func (t *Transport) String() string {
	return t.name
}

// Type returns the transport type
func (t *Transport) Type() sdcard.BusType {
	return t.busType
}
