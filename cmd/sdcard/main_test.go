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
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdcard "github.com/ZaparooProject/go-sdcard"
	"github.com/ZaparooProject/go-sdcard/internal/config"
	virt "github.com/ZaparooProject/go-sdcard/internal/testing"
)

// These tests replace openBus and must not run in parallel.

func withVirtualCard(t *testing.T) *virt.VirtualCard {
	t.Helper()
	card := virt.NewVirtualCard()
	orig := openBus
	openBus = func(*config.Config) (sdcard.Bus, sdcard.SelectPin, error) {
		return card, card, nil
	}
	t.Cleanup(func() { openBus = orig })
	return card
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"sdcard"}, args...))
	return out.String(), err
}

func TestInfo(t *testing.T) {
	withVirtualCard(t)

	out, err := run(t, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "Type:      SDHC/SDXC")
	assert.Contains(t, out, "Blocks:    15523840")
	assert.Contains(t, out, "Product:   SU08G rev 8.0")
	assert.Contains(t, out, "Serial:    12345678")
	assert.Contains(t, out, "Made:      2019-04")
}

func TestWriteThenRead(t *testing.T) {
	card := withVirtualCard(t)
	dir := t.TempDir()

	input := filepath.Join(dir, "in.bin")
	data := bytes.Repeat([]byte("sdcard"), 100)
	require.NoError(t, os.WriteFile(input, data, 0o600))

	out, err := run(t, "--speed", "4MHz", "write", "--block", "7", "--input", input)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 2 blocks at 7")

	assert.Equal(t, data[:sdcard.BlockSize], card.Block(7))
	tail := make([]byte, sdcard.BlockSize)
	copy(tail, data[sdcard.BlockSize:])
	assert.Equal(t, tail, card.Block(8))

	output := filepath.Join(dir, "out.bin")
	_, err = run(t, "read", "--block", "7", "--count", "2", "--output", output)
	require.NoError(t, err)
	got, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, data, got[:len(data)])
	assert.Len(t, got, 2*sdcard.BlockSize)
}

func TestReadHexDump(t *testing.T) {
	card := withVirtualCard(t)
	block := make([]byte, sdcard.BlockSize)
	copy(block, "hello")
	card.SetBlock(0, block)

	out, err := run(t, "read")
	require.NoError(t, err)
	assert.Contains(t, out, "|hello")
}

func TestErase(t *testing.T) {
	card := withVirtualCard(t)
	card.SetBlock(2, bytes.Repeat([]byte{0xAA}, sdcard.BlockSize))

	out, err := run(t, "erase", "--first", "1", "--last", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Erased blocks 1-3")
	assert.Equal(t, make([]byte, sdcard.BlockSize), card.Block(2))
}

func TestCommandErrors(t *testing.T) {
	card := withVirtualCard(t)

	_, err := run(t, "read", "--count", "0")
	require.Error(t, err)

	_, err = run(t, "erase", "--first", "5", "--last", "1")
	require.ErrorIs(t, err, sdcard.ErrInvalidParameter)

	_, err = run(t, "--driver", "usb", "info")
	require.ErrorIs(t, err, config.ErrInvalidConfig)

	card.NoCard = true
	_, err = run(t, "info")
	require.ErrorIs(t, err, sdcard.ErrNoCardDetected)
}

func TestOpenBusError(t *testing.T) {
	cause := errors.New("port busy")
	orig := openBus
	openBus = func(*config.Config) (sdcard.Bus, sdcard.SelectPin, error) {
		return nil, nil, cause
	}
	t.Cleanup(func() { openBus = orig })

	_, err := run(t, "info")
	require.ErrorIs(t, err, cause)
}
