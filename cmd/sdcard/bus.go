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

package main

import (
	"errors"
	"fmt"
	"strconv"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	sdcard "github.com/ZaparooProject/go-sdcard"
	"github.com/ZaparooProject/go-sdcard/internal/config"
	"github.com/ZaparooProject/go-sdcard/transport/buspirate"
	"github.com/ZaparooProject/go-sdcard/transport/spi"
	"github.com/ZaparooProject/go-sdcard/transport/spidev"
)

var errMissingBus = errors.New("no bus given, use --bus or run detect")

// openBus is replaced in tests
var openBus = func(cfg *config.Config) (sdcard.Bus, sdcard.SelectPin, error) {
	switch cfg.Driver {
	case config.DriverPeriph:
		t, err := spi.New(cfg.Bus, cfg.CS)
		if err != nil {
			return nil, nil, err
		}
		return t, t.SelectPin(), nil

	case config.DriverFTDI:
		index := 0
		if cfg.Bus != "" {
			var err error
			if index, err = strconv.Atoi(cfg.Bus); err != nil {
				return nil, nil, fmt.Errorf("invalid FTDI adapter index %q: %w", cfg.Bus, err)
			}
		}
		t, err := spi.NewFTDI(index, cfg.CS)
		if err != nil {
			return nil, nil, err
		}
		return t, t.SelectPin(), nil

	case config.DriverSpidev:
		if cfg.Bus == "" {
			return nil, nil, errMissingBus
		}
		if _, err := host.Init(); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize periph host: %w", err)
		}
		pin := gpioreg.ByName(cfg.CS)
		if pin == nil {
			return nil, nil, fmt.Errorf("chip select pin %s not found", cfg.CS)
		}
		t, err := spidev.New(cfg.Bus, pin)
		if err != nil {
			return nil, nil, err
		}
		return t, t.SelectPin(), nil

	case config.DriverBusPirate:
		if cfg.Bus == "" {
			return nil, nil, errMissingBus
		}
		t, err := buspirate.New(cfg.Bus)
		if err != nil {
			return nil, nil, err
		}
		return t, t.SelectPin(), nil

	default:
		return nil, nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
}
