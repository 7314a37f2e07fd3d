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

//go:build !linux

package spidev

import (
	"periph.io/x/conn/v3/physic"

	sdcard "github.com/ZaparooProject/go-sdcard"
)

// Transport is unavailable on this platform
type Transport struct{}

var _ sdcard.Bus = (*Transport)(nil)

// New always fails with ErrUnsupportedPlatform
func New(string, sdcard.SelectPin) (*Transport, error) {
	return nil, ErrUnsupportedPlatform
}

// NewWithConfig always fails with ErrUnsupportedPlatform
func NewWithConfig(string, sdcard.SelectPin, Config) (*Transport, error) {
	return nil, ErrUnsupportedPlatform
}

// Tx always fails
func (*Transport) Tx(_, _ []byte) error {
	return ErrUnsupportedPlatform
}

// SetSpeed always fails
func (*Transport) SetSpeed(physic.Frequency) error {
	return ErrUnsupportedPlatform
}

// SelectPin returns nil
func (*Transport) SelectPin() sdcard.SelectPin {
	return nil
}

// Close does nothing
func (*Transport) Close() error {
	return nil
}

// Type returns the transport type
func (*Transport) Type() sdcard.BusType {
	return sdcard.BusSpidev
}
