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

// Package config loads sdcard CLI settings from a YAML file, SDCARD_*
// environment variables and command line overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"periph.io/x/conn/v3/physic"
)

// EnvPrefix is the environment variable prefix
const EnvPrefix = "SDCARD_"

// Drivers understood by the CLI
const (
	DriverPeriph    = "periph"
	DriverFTDI      = "ftdi"
	DriverSpidev    = "spidev"
	DriverBusPirate = "buspirate"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// Retry controls how block transfers are retried
type Retry struct {
	Attempts int           `koanf:"attempts"`
	Delay    time.Duration `koanf:"delay"`
	MaxDelay time.Duration `koanf:"maxdelay"`
}

// Config is the CLI configuration
type Config struct {
	Driver  string        `koanf:"driver"`
	Bus     string        `koanf:"bus"`
	CS      string        `koanf:"cs"`
	Speed   string        `koanf:"speed"`
	Timeout time.Duration `koanf:"timeout"`
	Debug   bool          `koanf:"debug"`
	Retry   Retry         `koanf:"retry"`
}

// Default returns the configuration used when nothing else is set
func Default() *Config {
	return &Config{
		Driver:  DriverPeriph,
		CS:      "GPIO25",
		Speed:   "1MHz",
		Timeout: 10 * time.Second,
		Retry: Retry{
			Attempts: 3,
			Delay:    10 * time.Millisecond,
			MaxDelay: 500 * time.Millisecond,
		},
	}
}

// Frequency parses Speed
func (c *Config) Frequency() (physic.Frequency, error) {
	var f physic.Frequency
	if err := f.Set(c.Speed); err != nil {
		return 0, fmt.Errorf("%w: speed %q: %w", ErrInvalidConfig, c.Speed, err)
	}
	return f, nil
}

// Validate checks the driver name, speed and retry settings
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverPeriph, DriverFTDI, DriverSpidev, DriverBusPirate:
	default:
		return fmt.Errorf("%w: unknown driver %q", ErrInvalidConfig, c.Driver)
	}
	f, err := c.Frequency()
	if err != nil {
		return err
	}
	if f <= 0 {
		return fmt.Errorf("%w: speed must be positive", ErrInvalidConfig)
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("%w: retry attempts must be at least 1", ErrInvalidConfig)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// Load merges the file at path (skipped when empty), the environment and
// overrides on top of Default. Override keys use dotted paths such as
// "retry.attempts".
func Load(path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// SDCARD_RETRY_ATTEMPTS -> retry.attempts
	transform := func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "_", ".")
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", transform), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(mapProvider(overrides), nil); err != nil {
			return nil, fmt.Errorf("load overrides: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// errReadBytes is returned because mapProvider only supports Read
var errReadBytes = errors.New("config: map provider does not support ReadBytes")

// mapProvider feeds dotted override keys to koanf
type mapProvider map[string]any

func (mapProvider) ReadBytes() ([]byte, error) {
	return nil, errReadBytes
}

func (m mapProvider) Read() (map[string]any, error) {
	return maps.Unflatten(m, "."), nil
}
