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
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	sdcard "github.com/ZaparooProject/go-sdcard"
	"github.com/ZaparooProject/go-sdcard/detection"
	// Import all detectors to register them
	_ "github.com/ZaparooProject/go-sdcard/detection/periph"
	_ "github.com/ZaparooProject/go-sdcard/detection/serial"
	_ "github.com/ZaparooProject/go-sdcard/detection/spidev"
)

func detectCommand() *cli.Command {
	return &cli.Command{
		Name:  "detect",
		Usage: "List buses an SD card could be attached to",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "mode",
				Usage: "passive, safe or full (full opens serial adapters)",
				Value: "passive",
			},
			&cli.StringSliceFlag{
				Name:  "transport",
				Usage: "Restrict detection to these transports",
			},
		},
		Action: runDetect,
	}
}

func runDetect(c *cli.Context) error {
	opts := detection.DefaultOptions()
	opts.Transports = c.StringSlice("transport")
	switch strings.ToLower(c.String("mode")) {
	case "passive":
		opts.Mode = detection.Passive
	case "safe":
		opts.Mode = detection.Safe
	case "full":
		opts.Mode = detection.Full
	default:
		return fmt.Errorf("unknown detection mode: %s", c.String("mode"))
	}

	devices, err := detection.DetectAll(c.Context, &opts)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}

	for _, d := range devices {
		_, _ = fmt.Fprintf(c.App.Writer, "%-10s %-20s %-8s %s\n", d.Transport, d.Path, d.Confidence, d.Name)
	}
	return nil
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:   "info",
		Usage:  "Show card type, capacity and identification",
		Action: withCard(runInfo),
	}
}

func runInfo(c *cli.Context, card *sdcard.Card) error {
	w := c.App.Writer
	_, _ = fmt.Fprintf(w, "Type:      %s\n", card.CardType())
	_, _ = fmt.Fprintf(w, "Speed:     %s\n", card.Speed())

	csd, err := card.CSD()
	if err != nil {
		_, _ = fmt.Fprintf(w, "CSD:       unavailable (%v)\n", err)
	} else {
		_, _ = fmt.Fprintf(w, "Blocks:    %d\n", csd.BlockCount)
		_, _ = fmt.Fprintf(w, "Capacity:  %d bytes\n", csd.Capacity())
		_, _ = fmt.Fprintf(w, "Max rate:  %s\n", csd.MaxTransferRate)
	}

	cid, err := card.CID()
	if err != nil {
		_, _ = fmt.Fprintf(w, "CID:       unavailable (%v)\n", err)
		return nil
	}
	_, _ = fmt.Fprintf(w, "Maker:     0x%02X (%s)\n", cid.Manufacturer, cid.OEM)
	_, _ = fmt.Fprintf(w, "Product:   %s rev %s\n", cid.Product, cid.Revision())
	_, _ = fmt.Fprintf(w, "Serial:    %08X\n", cid.Serial)
	_, _ = fmt.Fprintf(w, "Made:      %s\n", cid.Manufactured.Format("2006-01"))
	return nil
}

func readCommand() *cli.Command {
	return &cli.Command{
		Name:  "read",
		Usage: "Read blocks to a file or as a hex dump",
		Flags: []cli.Flag{
			&cli.Uint64Flag{Name: "block", Usage: "First block"},
			&cli.IntFlag{Name: "count", Usage: "Number of blocks", Value: 1},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write raw data here instead of dumping"},
		},
		Action: withCard(runRead),
	}
}

func runRead(c *cli.Context, card *sdcard.Card) error {
	block, err := blockFlag(c, "block")
	if err != nil {
		return err
	}
	count := c.Int("count")
	if count < 1 {
		return fmt.Errorf("count must be at least 1, got %d", count)
	}

	buf := make([]byte, count*sdcard.BlockSize)
	err = sdcard.RetryWithConfig(c.Context, retryConfig(configFrom(c)), func() error {
		return card.ReadBlocks(block, buf)
	})
	if err != nil {
		return fmt.Errorf("failed to read blocks %d-%d: %w", block, int(block)+count-1, err)
	}

	if path := c.String("output"); path != "" {
		if err := os.WriteFile(path, buf, 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		return nil
	}

	dumper := hex.Dumper(c.App.Writer)
	_, _ = dumper.Write(buf)
	return dumper.Close()
}

func writeCommand() *cli.Command {
	return &cli.Command{
		Name:  "write",
		Usage: "Write a file to consecutive blocks, zero padding the last one",
		Flags: []cli.Flag{
			&cli.Uint64Flag{Name: "block", Usage: "First block"},
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "File to write", Required: true},
		},
		Action: withCard(runWrite),
	}
}

func runWrite(c *cli.Context, card *sdcard.Card) error {
	block, err := blockFlag(c, "block")
	if err != nil {
		return err
	}

	data, err := os.ReadFile(c.String("input"))
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("input %s is empty", c.String("input"))
	}
	if rem := len(data) % sdcard.BlockSize; rem != 0 {
		data = append(data, make([]byte, sdcard.BlockSize-rem)...)
	}

	err = sdcard.RetryWithConfig(c.Context, retryConfig(configFrom(c)), func() error {
		return card.WriteBlocks(block, data)
	})
	if err != nil {
		return fmt.Errorf("failed to write at block %d: %w", block, err)
	}

	_, _ = fmt.Fprintf(c.App.Writer, "Wrote %d blocks at %d\n", len(data)/sdcard.BlockSize, block)
	return nil
}

func eraseCommand() *cli.Command {
	return &cli.Command{
		Name:  "erase",
		Usage: "Erase an inclusive block range",
		Flags: []cli.Flag{
			&cli.Uint64Flag{Name: "first", Usage: "First block", Required: true},
			&cli.Uint64Flag{Name: "last", Usage: "Last block", Required: true},
		},
		Action: withCard(runErase),
	}
}

func runErase(c *cli.Context, card *sdcard.Card) error {
	first, err := blockFlag(c, "first")
	if err != nil {
		return err
	}
	last, err := blockFlag(c, "last")
	if err != nil {
		return err
	}

	if err := card.Erase(first, last); err != nil {
		return fmt.Errorf("failed to erase blocks %d-%d: %w", first, last, err)
	}
	_, _ = fmt.Fprintf(c.App.Writer, "Erased blocks %d-%d\n", first, last)
	return nil
}
