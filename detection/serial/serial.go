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

// Package serial detects Bus Pirates on USB serial ports
package serial

import (
	"context"
	"fmt"

	"go.bug.st/serial/enumerator"

	"github.com/ZaparooProject/go-sdcard/detection"
	"github.com/ZaparooProject/go-sdcard/transport/buspirate"
)

// transportName is the detector and transport name
const transportName = "buspirate"

// Known Bus Pirate USB IDs
const (
	// BusPirateV3 uses a plain FT232R, so a match is only a hint
	BusPirateV3 = "0403:6001"
	// BusPirateV4 has its own product ID
	BusPirateV4 = "04D8:FB00"
)

// listPorts is replaced in tests
var listPorts = enumerator.GetDetailedPortsList

// probe reports whether a Bus Pirate answers on the port
var probe = func(path string) error {
	t, err := buspirate.New(path)
	if err != nil {
		return err
	}
	return t.Close()
}

type detector struct{}

// New creates a new Bus Pirate detector
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return transportName
}

// Detect lists USB serial ports with Bus Pirate IDs. In Full mode each
// candidate is switched into binary SPI mode and back to confirm it.
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, port := range ports {
		if ctx.Err() != nil {
			return devices, detection.ErrDetectionTimeout
		}
		device, ok := candidate(port, opts)
		if !ok {
			continue
		}
		if opts.Mode == detection.Full {
			if err := probe(port.Name); err != nil {
				device.Metadata["probe_error"] = err.Error()
				device.Confidence = detection.Low
			} else {
				device.Confidence = detection.High
			}
		}
		devices = append(devices, device)
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func candidate(port *enumerator.PortDetails, opts *detection.Options) (detection.DeviceInfo, bool) {
	if !port.IsUSB || detection.IsPathIgnored(port.Name, opts.IgnorePaths) {
		return detection.DeviceInfo{}, false
	}
	vidpid := detection.FormatVIDPID(port.VID, port.PID)
	if detection.IsBlocked(vidpid, opts.Blocklist) {
		return detection.DeviceInfo{}, false
	}

	var confidence detection.Confidence
	switch vidpid {
	case BusPirateV4:
		confidence = detection.Medium
	case BusPirateV3:
		confidence = detection.Low
	default:
		return detection.DeviceInfo{}, false
	}

	name := port.Product
	if name == "" {
		name = "Bus Pirate"
	}
	return detection.DeviceInfo{
		Transport:  transportName,
		Path:       port.Name,
		Name:       name,
		Confidence: confidence,
		Metadata: map[string]string{
			"vidpid": vidpid,
			"serial": port.SerialNumber,
		},
	}, true
}
