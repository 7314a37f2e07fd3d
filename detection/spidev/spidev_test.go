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

package spidev

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-sdcard/detection"
)

func TestDetect(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("spidev detection is linux only")
	}

	dir := t.TempDir()
	for _, name := range []string{"spidev0.0", "spidev0.1", "spidev1.0", "spidevX.Y"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}
	orig := devGlob
	devGlob = filepath.Join(dir, "spidev*.*")
	t.Cleanup(func() { devGlob = orig })

	opts := detection.DefaultOptions()
	opts.IgnorePaths = []string{filepath.Join(dir, "spidev0.1")}

	devices, err := New().Detect(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 2)

	assert.Equal(t, filepath.Join(dir, "spidev0.0"), devices[0].Path)
	assert.Equal(t, "0", devices[0].Metadata["chip_select"])
	assert.Equal(t, "1", devices[1].Metadata["bus"])
	assert.Equal(t, "SPI bus 1 chip select 0", devices[1].Name)
	assert.Equal(t, detection.Low, devices[1].Confidence)

	opts.IgnorePaths = append(opts.IgnorePaths, devices[0].Path, devices[1].Path)
	_, err = New().Detect(context.Background(), &opts)
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)
}
