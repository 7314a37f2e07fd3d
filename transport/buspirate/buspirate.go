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

// Package buspirate provides a Bus Pirate SPI bus for go-sdcard using the
// binary SPI mode over a USB serial port.
package buspirate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	sdcard "github.com/ZaparooProject/go-sdcard"
)

// Binary mode commands
const (
	cmdReset       = 0x00 // also enters binary mode from the terminal
	cmdEnterSPI    = 0x01
	cmdCSLow       = 0x02
	cmdCSHigh      = 0x03
	cmdHardReset   = 0x0F
	cmdBulk        = 0x10 // low nibble is count-1
	cmdPeripherals = 0x40 // power, pullups, AUX, CS
	cmdSpeed       = 0x60 // low three bits select the clock
	cmdConfig      = 0x80 // output type, idle, edge, sample

	// power on, CS high
	peripheralsOn = cmdPeripherals | 0x08 | 0x01
	// 3.3V push-pull, idle low, transmit on active to idle: SPI mode 0
	configMode0 = cmdConfig | 0x08 | 0x02

	ack         = 0x01
	maxBulk     = 16
	resetTries  = 20
	baudRate    = 115200
	readTimeout = 100 * time.Millisecond
)

var (
	bitbangBanner = []byte("BBIO1")
	spiBanner     = []byte("SPI1")
)

var (
	// ErrNoBinaryMode is returned when the device never answers BBIO1
	ErrNoBinaryMode = errors.New("bus pirate did not enter binary mode")
	// ErrNoAck is returned when a command is not acknowledged
	ErrNoAck = errors.New("bus pirate command not acknowledged")
	// ErrReadTimeout is returned when the device stops sending
	ErrReadTimeout = errors.New("bus pirate read timeout")
)

// speeds are the clock rates selected by cmdSpeed|index
var speeds = [8]physic.Frequency{
	30 * physic.KiloHertz,
	125 * physic.KiloHertz,
	250 * physic.KiloHertz,
	1 * physic.MegaHertz,
	2 * physic.MegaHertz,
	2600 * physic.KiloHertz,
	4 * physic.MegaHertz,
	8 * physic.MegaHertz,
}

// Port is the serial port the Bus Pirate is attached to. serial.Port
// satisfies it.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Transport implements sdcard.Bus on a Bus Pirate in binary SPI mode
type Transport struct {
	port     Port
	portName string
	reply    []byte
	speed    physic.Frequency
	mu       sync.Mutex
	closed   bool
}

var _ sdcard.Bus = (*Transport)(nil)

// New opens portName and switches the Bus Pirate into binary SPI mode with
// the power supply on and chip select high.
func New(portName string) (*Transport, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", portName, err)
	}

	t, err := NewWithPort(port, portName)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

// NewWithPort drives an already opened port
func NewWithPort(port Port, portName string) (*Transport, error) {
	t := &Transport{port: port, portName: portName, reply: make([]byte, 1+maxBulk)}

	if err := port.SetReadTimeout(readTimeout); err != nil {
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}
	if err := t.enterBinary(); err != nil {
		return nil, err
	}
	if err := t.expect([]byte{cmdEnterSPI}, spiBanner); err != nil {
		return nil, fmt.Errorf("failed to enter SPI mode: %w", err)
	}
	if err := t.command(configMode0); err != nil {
		return nil, fmt.Errorf("failed to configure SPI: %w", err)
	}
	if err := t.command(peripheralsOn); err != nil {
		return nil, fmt.Errorf("failed to enable power: %w", err)
	}
	if err := t.SetSpeed(sdcard.DefaultInitSpeed); err != nil {
		return nil, err
	}
	return t, nil
}

// enterBinary sends resets until the bitbang banner appears
func (t *Transport) enterBinary() error {
	banner := make([]byte, len(bitbangBanner))
	for i := 0; i < resetTries; i++ {
		if _, err := t.port.Write([]byte{cmdReset}); err != nil {
			return fmt.Errorf("%w: %w", sdcard.ErrBusIO, err)
		}
		if err := t.readFull(banner); err != nil {
			continue
		}
		if bytes.Equal(banner, bitbangBanner) {
			return nil
		}
	}
	return ErrNoBinaryMode
}

// readFull reads exactly len(buf) bytes. A read that returns nothing means
// the port timed out.
func (t *Transport) readFull(buf []byte) error {
	for got := 0; got < len(buf); {
		n, err := t.port.Read(buf[got:])
		if err != nil {
			return fmt.Errorf("%w: %w", sdcard.ErrBusIO, err)
		}
		if n == 0 {
			return ErrReadTimeout
		}
		got += n
	}
	return nil
}

func (t *Transport) expect(w, want []byte) error {
	if _, err := t.port.Write(w); err != nil {
		return fmt.Errorf("%w: %w", sdcard.ErrBusIO, err)
	}
	got := make([]byte, len(want))
	if err := t.readFull(got); err != nil {
		return err
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("%w: got % X", ErrNoAck, got)
	}
	return nil
}

// command sends a single byte command and checks its acknowledgement
func (t *Transport) command(cmd byte) error {
	if err := t.expect([]byte{cmd}, []byte{ack}); err != nil {
		return fmt.Errorf("command 0x%02X: %w", cmd, err)
	}
	return nil
}

// Tx exchanges w for r in bulk transfers of up to 16 bytes
func (t *Transport) Tx(w, r []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return sdcard.ErrBusClosed
	}
	if r != nil && len(r) != len(w) {
		return fmt.Errorf("%w: read buffer %d bytes, write %d", sdcard.ErrInvalidParameter, len(r), len(w))
	}

	frame := make([]byte, 1+maxBulk)
	for off := 0; off < len(w); off += maxBulk {
		end := min(off+maxBulk, len(w))
		n := end - off

		frame[0] = cmdBulk | byte(n-1)
		copy(frame[1:], w[off:end])
		if _, err := t.port.Write(frame[:1+n]); err != nil {
			return fmt.Errorf("%w: %w", sdcard.ErrBusIO, err)
		}

		reply := t.reply[:1+n]
		if err := t.readFull(reply); err != nil {
			return err
		}
		if reply[0] != ack {
			return fmt.Errorf("%w: bulk transfer status 0x%02X", ErrNoAck, reply[0])
		}
		if r != nil {
			copy(r[off:end], reply[1:])
		}
	}
	return nil
}

// SetSpeed selects the fastest Bus Pirate clock not above f. Requests
// below 30kHz use 30kHz.
func (t *Transport) SetSpeed(f physic.Frequency) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := speedIndex(f)
	if err := t.command(cmdSpeed | byte(idx)); err != nil {
		return fmt.Errorf("failed to set speed %s: %w", f, err)
	}
	t.speed = speeds[idx]
	return nil
}

func speedIndex(f physic.Frequency) int {
	idx := 0
	for i, s := range speeds {
		if s <= f {
			idx = i
		}
	}
	return idx
}

// Speed returns the clock actually in use
func (t *Transport) Speed() physic.Frequency {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.speed
}

// SelectPin returns the Bus Pirate's CS line
func (t *Transport) SelectPin() sdcard.SelectPin {
	return selectPin{t: t}
}

type selectPin struct {
	t *Transport
}

// Out drives CS with the binary mode CS commands
func (p selectPin) Out(l gpio.Level) error {
	p.t.mu.Lock()
	defer p.t.mu.Unlock()

	if p.t.closed {
		return sdcard.ErrBusClosed
	}
	cmd := byte(cmdCSLow)
	if l == gpio.High {
		cmd = cmdCSHigh
	}
	return p.t.command(cmd)
}

// Close powers the target down, resets the Bus Pirate to its terminal and
// closes the port
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	_ = t.command(cmdPeripherals)
	_, _ = t.port.Write([]byte{cmdReset, cmdHardReset})
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", t.portName, err)
	}
	return nil
}

// String returns the serial port name
func (t *Transport) String() string {
	return t.portName
}

// Type returns the transport type
func (*Transport) Type() sdcard.BusType {
	return sdcard.BusBusPirate
}
