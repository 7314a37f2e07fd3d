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

//go:build linux

package spidev

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	sdcard "github.com/ZaparooProject/go-sdcard"
)

// spidev ioctl requests, from linux/spi/spidev.h
const (
	spiIOCMagic = 'k'
	spiNoCS     = 0x40
)

var (
	spiIOCWrMode        = iocWrite(1, 1)
	spiIOCWrBitsPerWord = iocWrite(3, 1)
	spiIOCWrMaxSpeedHz  = iocWrite(4, 4)
	spiIOCMessage1      = iocWrite(0, uint(unsafe.Sizeof(iocTransfer{})))
)

// iocTransfer mirrors struct spi_ioc_transfer
type iocTransfer struct {
	txBuf       uint64
	rxBuf       uint64
	length      uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNbits     uint8
	rxNbits     uint8
	wordDelay   uint8
	pad         uint8
}

func iocWrite(nr, size uint) uint {
	const iocWriteDir = 1
	return iocWriteDir<<30 | size<<16 | spiIOCMagic<<8 | nr
}

// Transport implements sdcard.Bus on a spidev character device
type Transport struct {
	cs      sdcard.SelectPin
	path    string
	scratch []byte
	fd      int
	speed   uint32
	mu      sync.Mutex
	bits    uint8
}

var _ sdcard.Bus = (*Transport)(nil)

// New opens path (e.g. "/dev/spidev0.0") with the default configuration.
// The kernel's own chip select is disabled; cs drives the card instead.
func New(path string, cs sdcard.SelectPin) (*Transport, error) {
	return NewWithConfig(path, cs, DefaultConfig())
}

// NewWithConfig opens path with config
func NewWithConfig(path string, cs sdcard.SelectPin, config Config) (*Transport, error) {
	if cs == nil {
		return nil, fmt.Errorf("%w: chip select pin is required", sdcard.ErrInvalidParameter)
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	t := &Transport{cs: cs, path: path, fd: fd, bits: config.BitsPerWord}

	mode := config.Mode&0x03 | spiNoCS
	if err := t.ioctl(spiIOCWrMode, unsafe.Pointer(&mode)); err != nil {
		// some controllers cannot release chip select; the GPIO still wins
		mode &^= spiNoCS
		if err := t.ioctl(spiIOCWrMode, unsafe.Pointer(&mode)); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("failed to set SPI mode on %s: %w", path, err)
		}
	}
	if err := t.ioctl(spiIOCWrBitsPerWord, unsafe.Pointer(&t.bits)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to set word size on %s: %w", path, err)
	}
	if err := t.SetSpeed(config.Speed); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if err := cs.Out(gpio.High); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to drive chip select: %w", err)
	}

	return t, nil
}

func (t *Transport) ioctl(req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(t.fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// Tx runs one full-duplex message per 4096-byte chunk
func (t *Transport) Tx(w, r []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fd < 0 {
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

	for _, c := range chunks(len(w)) {
		xfer := iocTransfer{
			txBuf:       uint64(uintptr(unsafe.Pointer(&w[c[0]]))),
			rxBuf:       uint64(uintptr(unsafe.Pointer(&r[c[0]]))),
			length:      uint32(c[1] - c[0]),
			speedHz:     t.speed,
			bitsPerWord: t.bits,
		}
		// #nosec G103 -- unsafe pointer required for ioctl system call
		if err := t.ioctl(spiIOCMessage1, unsafe.Pointer(&xfer)); err != nil {
			return fmt.Errorf("%w: %s: %w", sdcard.ErrBusIO, t.path, err)
		}
	}
	return nil
}

// SetSpeed changes the clock used by the following messages
func (t *Transport) SetSpeed(f physic.Frequency) error {
	hz := uint32(f / physic.Hertz)
	if err := t.ioctl(spiIOCWrMaxSpeedHz, unsafe.Pointer(&hz)); err != nil {
		return fmt.Errorf("failed to set speed %s on %s: %w", f, t.path, err)
	}
	t.mu.Lock()
	t.speed = hz
	t.mu.Unlock()
	return nil
}

// SelectPin returns the chip select line
func (t *Transport) SelectPin() sdcard.SelectPin {
	return t.cs
}

// Close releases chip select and the device
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fd < 0 {
		return nil
	}
	_ = t.cs.Out(gpio.High)
	err := unix.Close(t.fd)
	t.fd = -1
	if err != nil {
		return fmt.Errorf("failed to close %s: %w", t.path, err)
	}
	return nil
}

// String returns the device path
func (t *Transport) String() string {
	return t.path
}

// Type returns the transport type
func (*Transport) Type() sdcard.BusType {
	return sdcard.BusSpidev
}
