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

// Package detection discovers buses an SD card reader may be attached to.
// Detectors for each bus kind register themselves on import.
package detection

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrNoDevicesFound is returned when no candidate bus was found
	ErrNoDevicesFound = errors.New("no devices found")
	// ErrUnsupportedPlatform is returned by detectors that cannot run here
	ErrUnsupportedPlatform = errors.New("detection not supported on this platform")
	// ErrDetectionTimeout is returned when the context expired mid-scan
	ErrDetectionTimeout = errors.New("detection timeout")
)

// Mode controls how intrusive detection may be
type Mode int

const (
	// Passive only enumerates; nothing is opened
	Passive Mode = iota
	// Safe may open devices but sends nothing that changes their state
	Safe
	// Full may probe devices, e.g. switching a Bus Pirate into binary mode
	Full
)

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case Safe:
		return "safe"
	case Full:
		return "full"
	default:
		return "passive"
	}
}

// Confidence rates how likely a candidate is usable
type Confidence int

const (
	// Low means the bus exists but nothing identifies the adapter
	Low Confidence = iota
	// Medium means the adapter matches a known VID:PID or name
	Medium
	// High means the adapter answered a probe
	High
)

// String returns the confidence name
func (c Confidence) String() string {
	switch c {
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "low"
	}
}

// DeviceInfo describes one candidate bus
type DeviceInfo struct {
	Metadata   map[string]string
	Transport  string
	Path       string
	Name       string
	Confidence Confidence
}

// Options configures detection
type Options struct {
	// Blocklist holds VID:PID pairs that must never be opened
	Blocklist []string
	// IgnorePaths holds device paths to skip
	IgnorePaths []string
	// Transports limits detection to the named detectors; empty means all
	Transports []string
	Timeout    time.Duration
	Mode       Mode
}

// DefaultOptions returns passive detection with the default blocklist
func DefaultOptions() Options {
	return Options{
		Mode:      Passive,
		Timeout:   5 * time.Second,
		Blocklist: DefaultBlocklist(),
	}
}

// Detector finds candidate buses of one kind
type Detector interface {
	Transport() string
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Detector)
)

// RegisterDetector adds d to the registry, replacing any detector with the
// same transport name
func RegisterDetector(d Detector) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[d.Transport()] = d
}

// Detectors returns the registered detectors sorted by transport name
func Detectors() []Detector {
	registryMu.RLock()
	defer registryMu.RUnlock()

	detectors := make([]Detector, 0, len(registry))
	for _, d := range registry {
		detectors = append(detectors, d)
	}
	sort.Slice(detectors, func(i, j int) bool {
		return detectors[i].Transport() < detectors[j].Transport()
	})
	return detectors
}

// DetectAll runs every selected detector and merges the results, best
// candidates first. Detector failures other than finding nothing are
// returned only when no detector found anything.
func DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var (
		devices []DeviceInfo
		errs    []error
	)
	for _, d := range Detectors() {
		if !selected(d.Transport(), opts.Transports) {
			continue
		}
		if ctx.Err() != nil {
			errs = append(errs, ErrDetectionTimeout)
			break
		}

		found, err := d.Detect(ctx, opts)
		switch {
		case err == nil:
			devices = append(devices, found...)
		case errors.Is(err, ErrNoDevicesFound), errors.Is(err, ErrUnsupportedPlatform):
		default:
			errs = append(errs, err)
		}
	}

	if len(devices) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, ErrNoDevicesFound
	}

	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].Confidence > devices[j].Confidence
	})
	return devices, nil
}

func selected(transport string, transports []string) bool {
	if len(transports) == 0 {
		return true
	}
	for _, t := range transports {
		if t == transport {
			return true
		}
	}
	return false
}
