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
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	testutil "github.com/ZaparooProject/go-sdcard/internal/testing"
)

// newSimCard creates a Card on sim with a fake clock
func newSimCard(t *testing.T, sim *testutil.VirtualCard, opts ...Option) *Card {
	t.Helper()
	opts = append([]Option{WithClock(testutil.NewFakeClock(time.Millisecond))}, opts...)
	card, err := New(sim, sim, opts...)
	require.NoError(t, err)
	return card
}

// openSimCard creates and initializes a Card on sim, then clears the log
func openSimCard(t *testing.T, sim *testutil.VirtualCard, opts ...Option) *Card {
	t.Helper()
	card := newSimCard(t, sim, opts...)
	require.NoError(t, card.Init())
	sim.ResetLog()
	return card
}

func TestNew(t *testing.T) {
	t.Parallel()
	sim := testutil.NewVirtualCard()

	tests := []struct {
		bus     Bus
		cs      SelectPin
		name    string
		opts    []Option
		wantErr bool
	}{
		{name: "Valid", bus: sim, cs: sim},
		{name: "Nil_Bus", bus: nil, cs: sim, wantErr: true},
		{name: "Nil_SelectPin", bus: sim, cs: nil, wantErr: true},
		{
			name:    "Init_Speed_Too_Fast",
			bus:     sim,
			cs:      sim,
			opts:    []Option{WithInitSpeed(1 * physic.MegaHertz)},
			wantErr: true,
		},
		{
			name:    "Zero_Init_Attempts",
			bus:     sim,
			cs:      sim,
			opts:    []Option{WithInitAttempts(0)},
			wantErr: true,
		},
		{
			name:    "Nil_Config",
			bus:     sim,
			cs:      sim,
			opts:    []Option{WithConfig(nil)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			card, err := New(tt.bus, tt.cs, tt.opts...)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidParameter)
				assert.Nil(t, card)
				return
			}
			require.NoError(t, err)
			assert.False(t, card.Ready())
			assert.Equal(t, CardTypeUnknown, card.CardType())
			assert.Equal(t, 512, card.BlockSize())
		})
	}
}

func TestNew_DoesNotTouchBus(t *testing.T) {
	t.Parallel()
	sim := testutil.NewVirtualCard()

	_, err := New(sim, sim)
	require.NoError(t, err)

	assert.Zero(t, sim.Clocked)
	assert.Zero(t, sim.PinChanges)
	assert.Empty(t, sim.Speeds)
}

func TestCard_Init(t *testing.T) {
	t.Parallel()

	tests := []struct {
		setup        func() *testutil.VirtualCard
		name         string
		wantCommands []byte
		wantType     CardType
		highCapacity bool
	}{
		{
			name:         "SDHC",
			setup:        testutil.NewVirtualCard,
			wantType:     CardTypeSDHC,
			highCapacity: true,
			wantCommands: []byte{0, 8, 55, 41, 55, 41, 55, 41, 58},
		},
		{
			name:         "SDv2_Standard_Capacity",
			setup:        testutil.NewVirtualStandardCard,
			wantType:     CardTypeSDv2,
			wantCommands: []byte{0, 8, 55, 41, 55, 41, 55, 41, 58, 16},
		},
		{
			name: "SDv1",
			setup: func() *testutil.VirtualCard {
				sim := testutil.NewVirtualStandardCard()
				sim.Version1 = true
				sim.ReadyAfter = 0
				return sim
			},
			wantType:     CardTypeSDv1,
			wantCommands: []byte{0, 8, 55, 41, 58, 16},
		},
		{
			name: "OCR_Unreadable_Falls_Back_To_Byte_Addressing",
			setup: func() *testutil.VirtualCard {
				sim := testutil.NewVirtualCard()
				sim.OCRFails = true
				sim.ReadyAfter = 0
				return sim
			},
			wantType:     CardTypeSDv2,
			wantCommands: []byte{0, 8, 55, 41, 58, 16},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sim := tt.setup()
			card := newSimCard(t, sim)

			require.NoError(t, card.Init())
			assert.True(t, card.Ready())
			assert.Equal(t, tt.wantType, card.CardType())
			assert.Equal(t, tt.highCapacity, card.HighCapacity())
			assert.Equal(t, DefaultWorkingSpeed, card.Speed())
			assert.False(t, sim.Selected())

			if diff := cmp.Diff(tt.wantCommands, sim.Commands()); diff != "" {
				t.Errorf("command sequence mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, []physic.Frequency{DefaultInitSpeed, DefaultWorkingSpeed}, sim.Speeds)
		})
	}
}

func TestCard_Init_CommandArguments(t *testing.T) {
	t.Parallel()
	sim := testutil.NewVirtualStandardCard()
	card := newSimCard(t, sim)
	require.NoError(t, card.Init())

	ifCond, ok := sim.LastCommand(8)
	require.True(t, ok)
	assert.Equal(t, uint32(0x1AA), ifCond.Arg)

	opCond, ok := sim.LastCommand(41)
	require.True(t, ok)
	assert.Equal(t, uint32(0x40000000), opCond.Arg)

	blockLen, ok := sim.LastCommand(16)
	require.True(t, ok)
	assert.Equal(t, uint32(512), blockLen.Arg)
}

func TestCard_Init_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		setup   func(sim *testutil.VirtualCard)
		wantErr error
		name    string
	}{
		{
			name:    "No_Card",
			setup:   func(sim *testutil.VirtualCard) { sim.NoCard = true },
			wantErr: ErrNoCardDetected,
		},
		{
			name:    "Unexpected_CMD0_Status",
			setup:   func(sim *testutil.VirtualCard) { sim.ForceStatus[0] = 0x05 },
			wantErr: ErrNoCardDetected,
		},
		{
			name:    "Never_Leaves_Idle",
			setup:   func(sim *testutil.VirtualCard) { sim.IdleForever = true },
			wantErr: ErrInitTimeout,
		},
		{
			name: "Set_Block_Length_Rejected",
			setup: func(sim *testutil.VirtualCard) {
				sim.HighCapacity = false
				sim.CMD16Status = 0x04
			},
			wantErr: ErrSetBlockLengthFailed,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sim := testutil.NewVirtualCard()
			tt.setup(sim)
			card := newSimCard(t, sim)

			err := card.Init()
			require.ErrorIs(t, err, tt.wantErr)
			assert.False(t, card.Ready())
			assert.False(t, sim.Selected())

			var cardErr *CardError
			assert.True(t, errors.As(err, &cardErr))
		})
	}
}

func TestCard_Init_AttemptBudget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		opts     []Option
		attempts int
	}{
		{name: "Default", attempts: DefaultInitAttempts},
		{name: "Custom", opts: []Option{WithInitAttempts(5)}, attempts: 5},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sim := testutil.NewVirtualCard()
			sim.IdleForever = true
			card := newSimCard(t, sim, tt.opts...)

			require.ErrorIs(t, card.Init(), ErrInitTimeout)
			assert.Equal(t, tt.attempts, sim.CountCommand(41))
			assert.Equal(t, tt.attempts, sim.CountCommand(55))
		})
	}
}

func TestCard_Init_RetryDelay(t *testing.T) {
	t.Parallel()
	sim := testutil.NewVirtualCard()
	sim.ReadyAfter = 4
	clock := testutil.NewFakeClock(time.Millisecond)

	card, err := New(sim, sim, WithClock(clock))
	require.NoError(t, err)
	require.NoError(t, card.Init())

	// five attempts, four pauses between them
	assert.Equal(t, 4*DefaultInitRetryDelay, clock.Slept)
}

func TestCard_InitContext_Cancelled(t *testing.T) {
	t.Parallel()
	sim := testutil.NewVirtualCard()
	card := newSimCard(t, sim)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := card.InitContext(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, card.Ready())
	assert.Empty(t, sim.Commands())
}

func TestCard_Init_RecoversAfterFailure(t *testing.T) {
	t.Parallel()
	sim := testutil.NewVirtualCard()
	sim.NoCard = true
	card := newSimCard(t, sim)

	require.ErrorIs(t, card.Init(), ErrNoCardDetected)

	sim.NoCard = false
	require.NoError(t, card.Init())
	assert.True(t, card.Ready())
	assert.Equal(t, CardTypeSDHC, card.CardType())
}

func TestOpen(t *testing.T) {
	t.Parallel()

	sim := testutil.NewVirtualCard()
	card, err := Open(context.Background(), sim, sim, WithClock(testutil.NewFakeClock(time.Millisecond)))
	require.NoError(t, err)
	assert.True(t, card.Ready())

	missing := testutil.NewVirtualCard()
	missing.NoCard = true
	_, err = Open(context.Background(), missing, missing, WithClock(testutil.NewFakeClock(time.Millisecond)))
	require.ErrorIs(t, err, ErrNoCardDetected)
}

func TestCard_Close(t *testing.T) {
	t.Parallel()
	bus := NewMockBus()

	card, err := New(bus, bus)
	require.NoError(t, err)
	require.NoError(t, card.Close())

	assert.True(t, bus.Closed())
	assert.False(t, card.Ready())
}
