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

package spi

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"

	sdcard "github.com/ZaparooProject/go-sdcard"
)

// fakeConn returns the bitwise inverse of every byte written
type fakeConn struct {
	closed *int
	chunks []int
	maxTx  int
}

func (c *fakeConn) Tx(w, r []byte) error {
	if len(w) != len(r) {
		return errors.New("length mismatch")
	}
	c.chunks = append(c.chunks, len(w))
	for i, b := range w {
		r[i] = ^b
	}
	return nil
}

func (c *fakeConn) MaxTxSize() int { return c.maxTx }

func (c *fakeConn) Close() error {
	*c.closed++
	return nil
}

type fakePort struct {
	conns  []*fakeConn
	speeds []physic.Frequency
	closed int
	maxTx  int
	err    error
}

func (p *fakePort) connect(f physic.Frequency) (txConn, io.Closer, error) {
	if p.err != nil {
		return nil, nil, p.err
	}
	p.speeds = append(p.speeds, f)
	c := &fakeConn{maxTx: p.maxTx, closed: &p.closed}
	p.conns = append(p.conns, c)
	return c, c, nil
}

func newTestTransport(t *testing.T, maxTx int) (*Transport, *fakePort, *gpiotest.Pin) {
	t.Helper()
	port := &fakePort{maxTx: maxTx}
	pin := &gpiotest.Pin{N: "GPIO25", Num: 25, L: gpio.Low}
	tr, err := newTransport(port.connect, pin, "SPI0.0", sdcard.BusPeriph)
	require.NoError(t, err)
	return tr, port, pin
}

func TestNewTransport(t *testing.T) {
	t.Parallel()
	tr, port, pin := newTestTransport(t, 0)

	assert.Equal(t, gpio.High, pin.Read())
	assert.Equal(t, []physic.Frequency{sdcard.DefaultInitSpeed}, port.speeds)
	assert.Equal(t, sdcard.BusPeriph, tr.Type())
	assert.Equal(t, "SPI0.0", tr.String())
	assert.Equal(t, defaultMaxTx, tr.maxTx)
}

func TestNewTransport_ConnectError(t *testing.T) {
	t.Parallel()
	port := &fakePort{err: errors.New("no such port")}
	pin := &gpiotest.Pin{N: "GPIO25"}

	_, err := newTransport(port.connect, pin, "SPI9.9", sdcard.BusPeriph)
	require.Error(t, err)
}

func TestTransport_Tx(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		maxTx      int
		n          int
		wantChunks []int
	}{
		{name: "Single_Chunk", maxTx: 0, n: 514, wantChunks: []int{514}},
		{name: "Split_At_Limit", maxTx: 64, n: 150, wantChunks: []int{64, 64, 22}},
		{name: "Exact_Limit", maxTx: 16, n: 32, wantChunks: []int{16, 16}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr, port, _ := newTestTransport(t, tt.maxTx)

			w := make([]byte, tt.n)
			for i := range w {
				w[i] = byte(i)
			}
			r := make([]byte, tt.n)
			require.NoError(t, tr.Tx(w, r))

			for i := range r {
				require.Equal(t, ^byte(i), r[i], "byte %d", i)
			}
			assert.Equal(t, tt.wantChunks, port.conns[0].chunks)
		})
	}
}

func TestTransport_Tx_WriteOnly(t *testing.T) {
	t.Parallel()
	tr, port, _ := newTestTransport(t, 0)

	require.NoError(t, tr.Tx([]byte{1, 2, 3}, nil))
	assert.Equal(t, []int{3}, port.conns[0].chunks)

	require.ErrorIs(t, tr.Tx([]byte{1, 2}, make([]byte, 1)), sdcard.ErrInvalidParameter)
}

func TestTransport_SetSpeed(t *testing.T) {
	t.Parallel()
	tr, port, _ := newTestTransport(t, 0)

	require.NoError(t, tr.SetSpeed(sdcard.DefaultInitSpeed))
	assert.Len(t, port.conns, 1, "same speed must not reconnect")

	require.NoError(t, tr.SetSpeed(4*physic.MegaHertz))
	assert.Equal(t, []physic.Frequency{sdcard.DefaultInitSpeed, 4 * physic.MegaHertz}, port.speeds)
	assert.Equal(t, 1, port.closed)
	assert.Equal(t, 4*physic.MegaHertz, tr.Speed())
}

func TestTransport_Close(t *testing.T) {
	t.Parallel()
	tr, port, pin := newTestTransport(t, 0)

	require.NoError(t, pin.Out(gpio.Low))
	require.NoError(t, tr.Close())

	assert.Equal(t, gpio.High, pin.Read())
	assert.Equal(t, 1, port.closed)
	require.ErrorIs(t, tr.Tx([]byte{0xFF}, nil), sdcard.ErrBusClosed)
	require.NoError(t, tr.Close())
}
