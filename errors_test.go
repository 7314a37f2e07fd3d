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

package sdcard

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "data token timeout", err: ErrDataTokenTimeout, want: true},
		{name: "data rejected", err: NewCardError("WriteBlocks", 24, 0x0B, ErrDataRejected), want: true},
		{name: "write busy timeout", err: ErrWriteTimeout, want: true},
		{name: "read command rejected", err: ErrReadCommand, want: true},
		{name: "bus failure", err: NewBusError("read", "mock", errors.New("usb reset")), want: true},
		{name: "init timeout", err: NewCardError("init", 41, 0x01, ErrInitTimeout), want: false},
		{name: "no card", err: ErrNoCardDetected, want: false},
		{name: "invalid buffer", err: newOpError("ReadBlocks", ErrInvalidBufferLength), want: false},
		{name: "not initialized", err: ErrNotInitialized, want: false},
		{name: "wrapped timeout", err: fmt.Errorf("outer: %w", ErrCommandTimeout), want: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestGetErrorType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want ErrorType
	}{
		{name: "nil", err: nil, want: ErrorTypePermanent},
		{name: "command timeout", err: ErrCommandTimeout, want: ErrorTypeTimeout},
		{name: "token timeout", err: ErrDataTokenTimeout, want: ErrorTypeTimeout},
		{name: "init timeout", err: ErrInitTimeout, want: ErrorTypeTimeout},
		{
			name: "rejected command with timeout",
			err:  fmt.Errorf("%w: %w", ErrWriteCommand, ErrCommandTimeout),
			want: ErrorTypeTimeout,
		},
		{name: "data rejected", err: ErrDataRejected, want: ErrorTypeTransient},
		{name: "register read", err: ErrRegisterRead, want: ErrorTypeTransient},
		{name: "transient bus", err: NewBusError("read", "mock", errors.New("x")), want: ErrorTypeTransient},
		{name: "closed bus", err: NewBusError("open", "spidev", ErrBusClosed), want: ErrorTypePermanent},
		{
			name: "wrapped closed bus",
			err:  NewBusError("write", "buspirate", fmt.Errorf("bulk transfer: %w", ErrBusClosed)),
			want: ErrorTypePermanent,
		},
		{name: "unsupported CSD", err: ErrUnsupportedCSD, want: ErrorTypePermanent},
		{name: "unknown", err: errors.New("other"), want: ErrorTypePermanent},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, GetErrorType(tt.err))
		})
	}
}

func TestErrorType_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "permanent", ErrorTypePermanent.String())
	assert.Equal(t, "transient", ErrorTypeTransient.String())
	assert.Equal(t, "timeout", ErrorTypeTimeout.String())
}

func TestCardError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err     *CardError
		target  error
		name    string
		wantMsg string
	}{
		{
			name:    "with command",
			err:     NewCardError("WriteBlocks", 24, 0x0D, ErrDataRejected),
			target:  ErrDataRejected,
			wantMsg: "WriteBlocks: CMD24 status 0x0D: data block rejected",
		},
		{
			name:    "without command",
			err:     newOpError("ReadBlocks", ErrNotInitialized),
			target:  ErrNotInitialized,
			wantMsg: "ReadBlocks: card not initialized",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.wantMsg, tt.err.Error())
			require.ErrorIs(t, tt.err, tt.target)
		})
	}
}

func TestBusError(t *testing.T) {
	t.Parallel()

	cause := errors.New("device removed")
	err := NewBusError("write", "buspirate", cause)
	assert.Equal(t, "write on buspirate: device removed", err.Error())
	require.ErrorIs(t, err, cause)

	err.Bus = ""
	assert.Equal(t, "write: device removed", err.Error())
}

func TestCard_BusFailure(t *testing.T) {
	t.Parallel()

	bus := NewMockBus()
	card, err := New(bus, bus)
	require.NoError(t, err)

	cause := errors.New("usb disconnected")
	bus.TxErr = cause

	_, err = card.command(cmdGoIdleState, 0)
	require.ErrorIs(t, err, cause)

	var busErr *BusError
	require.ErrorAs(t, err, &busErr)
	assert.Equal(t, string(BusMock), busErr.Bus)
	assert.True(t, IsRetryable(err))
}

func TestCard_ClosedBusNotRetried(t *testing.T) {
	t.Parallel()

	bus := NewMockBus()
	card, err := New(bus, bus)
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	calls := 0
	err = RetryWithConfig(context.Background(), fastRetryConfig(5), func() error {
		calls++
		_, cmdErr := card.command(cmdGoIdleState, 0)
		return cmdErr
	})
	require.ErrorIs(t, err, ErrBusClosed)
	assert.Equal(t, ErrorTypePermanent, GetErrorType(err))
	assert.False(t, IsRetryable(err))
	assert.Equal(t, 1, calls)
}
