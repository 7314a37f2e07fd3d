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

// Command sdcard inspects and edits SD cards attached over SPI
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"

	sdcard "github.com/ZaparooProject/go-sdcard"
	"github.com/ZaparooProject/go-sdcard/internal/config"
)

// Version is set via ldflags
var Version = "dev"

const configKey = "config"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "sdcard",
		Usage:   "Read, write and erase SD cards over SPI",
		Version: Version,
		Flags:   globalFlags(),
		Before:  loadConfig,
		Commands: []*cli.Command{
			detectCommand(),
			infoCommand(),
			readCommand(),
			writeCommand(),
			eraseCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML configuration file",
			EnvVars: []string{"SDCARD_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "driver",
			Aliases: []string{"d"},
			Usage:   "Bus driver: periph, ftdi, spidev, buspirate",
		},
		&cli.StringFlag{
			Name:    "bus",
			Aliases: []string{"b"},
			Usage:   "SPI port, FTDI adapter index, spidev node or serial port",
		},
		&cli.StringFlag{
			Name:  "cs",
			Usage: "Chip select GPIO (FTDI: D3-D7)",
		},
		&cli.StringFlag{
			Name:  "speed",
			Usage: "Working clock once initialized, e.g. 4MHz",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Time allowed for card initialization",
		},
		&cli.IntFlag{
			Name:  "retries",
			Usage: "Attempts per block transfer",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "Enable debug output",
		},
	}
}

// loadConfig merges explicitly set flags over the file and environment
func loadConfig(c *cli.Context) error {
	overrides := map[string]any{}
	for _, name := range []string{"driver", "bus", "cs", "speed"} {
		if c.IsSet(name) {
			overrides[name] = c.String(name)
		}
	}
	if c.IsSet("timeout") {
		overrides["timeout"] = c.Duration("timeout")
	}
	if c.IsSet("retries") {
		overrides["retry.attempts"] = c.Int("retries")
	}
	if c.IsSet("debug") {
		overrides["debug"] = c.Bool("debug")
	}

	cfg, err := config.Load(c.String("config"), overrides)
	if err != nil {
		return err
	}
	if cfg.Debug {
		sdcard.SetDebugEnabled(true)
	}
	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func configFrom(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

// openCard opens the configured bus and initializes the card on it
func openCard(c *cli.Context) (*sdcard.Card, error) {
	cfg := configFrom(c)
	speed, err := cfg.Frequency()
	if err != nil {
		return nil, err
	}

	bus, cs, err := openBus(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s bus: %w", cfg.Driver, err)
	}

	ctx, cancel := context.WithTimeout(c.Context, cfg.Timeout)
	defer cancel()

	card, err := sdcard.Open(ctx, bus, cs, sdcard.WithWorkingSpeed(speed))
	if err != nil {
		if closer, ok := bus.(io.Closer); ok {
			_ = closer.Close()
		}
		return nil, err
	}
	return card, nil
}

func retryConfig(cfg *config.Config) *sdcard.RetryConfig {
	rc := sdcard.DefaultRetryConfig()
	rc.MaxAttempts = cfg.Retry.Attempts
	rc.InitialBackoff = cfg.Retry.Delay
	rc.MaxBackoff = cfg.Retry.MaxDelay
	return rc
}

// withCard runs fn against an initialized card and closes it afterwards
func withCard(fn func(*cli.Context, *sdcard.Card) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		card, err := openCard(c)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := card.Close(); closeErr != nil {
				_, _ = fmt.Fprintf(c.App.ErrWriter, "Warning: failed to close card: %v\n", closeErr)
			}
		}()
		return fn(c, card)
	}
}

var errBlockRange = errors.New("block number out of range")

func blockFlag(c *cli.Context, name string) (uint32, error) {
	v := c.Uint64(name)
	if v > 0xFFFFFFFF {
		return 0, fmt.Errorf("%w: %s=%s", errBlockRange, name, strconv.FormatUint(v, 10))
	}
	return uint32(v), nil
}
