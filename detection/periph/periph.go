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

// Package periph detects SPI ports registered with periph.io, including
// FT232H USB adapters
package periph

import (
	"context"
	"fmt"
	"strings"

	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"

	"github.com/ZaparooProject/go-sdcard/detection"
)

// Transport names
const (
	TransportPeriph = "periph"
	TransportFTDI   = "ftdi"
)

// port is the subset of a registered SPI port the detector reports
type port struct {
	name    string
	aliases []string
	number  int
}

// adapter is an FT232H seen through ftdi.Info
type adapter struct {
	name   string
	vidpid string
	index  int
}

// Hooks replaced in tests
var (
	initHost = func() error {
		_, err := host.Init()
		return err
	}
	listPorts = func() []port {
		var ports []port
		for _, ref := range spireg.All() {
			ports = append(ports, port{name: ref.Name, aliases: ref.Aliases, number: ref.Number})
		}
		return ports
	}
	listAdapters = func() []adapter {
		var adapters []adapter
		info := ftdi.Info{}
		for _, dev := range ftdi.All() {
			ft, ok := dev.(*ftdi.FT232H)
			if !ok {
				continue
			}
			ft.Info(&info)
			adapters = append(adapters, adapter{
				name:   ft.String(),
				vidpid: detection.FormatVIDPID(fmt.Sprintf("%x", info.VenID), fmt.Sprintf("%x", info.DevID)),
				index:  len(adapters),
			})
		}
		return adapters
	}
)

type detector struct{}

// New creates a new periph.io detector
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return TransportPeriph
}

// Detect initializes periph.io drivers and reports every SPI port and
// FT232H adapter. FT232H ports show up under TransportFTDI with the
// adapter index as their path.
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	if err := initHost(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, p := range listPorts() {
		if ctx.Err() != nil {
			return devices, detection.ErrDetectionTimeout
		}
		if detection.IsPathIgnored(p.name, opts.IgnorePaths) {
			continue
		}
		devices = append(devices, detection.DeviceInfo{
			Transport:  TransportPeriph,
			Path:       p.name,
			Name:       fmt.Sprintf("SPI port %s", p.name),
			Confidence: detection.Low,
			Metadata: map[string]string{
				"aliases": strings.Join(p.aliases, ","),
				"number":  fmt.Sprint(p.number),
			},
		})
	}

	for _, a := range listAdapters() {
		path := fmt.Sprint(a.index)
		if detection.IsBlocked(a.vidpid, opts.Blocklist) || detection.IsPathIgnored(a.name, opts.IgnorePaths) {
			continue
		}
		devices = append(devices, detection.DeviceInfo{
			Transport:  TransportFTDI,
			Path:       path,
			Name:       a.name,
			Confidence: detection.Medium,
			Metadata: map[string]string{
				"vidpid": a.vidpid,
			},
		})
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}
