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
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"
)

// Default protocol budgets
const (
	DefaultInitSpeed       = 100 * physic.KiloHertz
	DefaultWorkingSpeed    = 1 * physic.MegaHertz
	DefaultReadyTimeout    = 500 * time.Millisecond
	DefaultTokenTimeout    = 1 * time.Second
	DefaultEraseTimeout    = 10 * time.Second
	DefaultInitAttempts    = 1000
	DefaultInitRetryDelay  = 1 * time.Millisecond
	DefaultCommandAttempts = 100
)

// Config contains configuration options for a Card
type Config struct {
	// Clock measures every bounded wait; defaults to SystemClock
	Clock Clock
	// InitSpeed is the clock rate used during negotiation
	InitSpeed physic.Frequency
	// WorkingSpeed is the clock rate once the card is ready
	WorkingSpeed physic.Frequency
	// ReadyTimeout bounds the busy wait before commands and after writes
	ReadyTimeout time.Duration
	// TokenTimeout bounds the wait for a data start token
	TokenTimeout time.Duration
	// EraseTimeout bounds the busy wait after CMD38
	EraseTimeout time.Duration
	// InitRetryDelay is the pause between ACMD41 attempts
	InitRetryDelay time.Duration
	// InitAttempts is the ACMD41 attempt budget
	InitAttempts int
	// CommandAttempts is the number of bytes polled for an R1 response
	CommandAttempts int
	// DataCRC sends a real CRC16 after each written block instead of filler.
	// Cards ignore it unless CRC checking was enabled with CMD59.
	DataCRC bool
}

// DefaultConfig returns default card configuration
func DefaultConfig() *Config {
	return &Config{
		Clock:           SystemClock(),
		InitSpeed:       DefaultInitSpeed,
		WorkingSpeed:    DefaultWorkingSpeed,
		ReadyTimeout:    DefaultReadyTimeout,
		TokenTimeout:    DefaultTokenTimeout,
		EraseTimeout:    DefaultEraseTimeout,
		InitRetryDelay:  DefaultInitRetryDelay,
		InitAttempts:    DefaultInitAttempts,
		CommandAttempts: DefaultCommandAttempts,
	}
}

// Validate checks the configuration for values the protocol cannot work with
func (c *Config) Validate() error {
	switch {
	case c.Clock == nil:
		return fmt.Errorf("%w: clock is nil", ErrInvalidParameter)
	case c.InitSpeed <= 0 || c.WorkingSpeed <= 0:
		return fmt.Errorf("%w: bus speeds must be positive", ErrInvalidParameter)
	case c.InitSpeed > 400*physic.KiloHertz:
		return fmt.Errorf("%w: init speed %s exceeds 400kHz", ErrInvalidParameter, c.InitSpeed)
	case c.ReadyTimeout <= 0 || c.TokenTimeout <= 0 || c.EraseTimeout <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidParameter)
	case c.InitAttempts <= 0 || c.CommandAttempts <= 0:
		return fmt.Errorf("%w: attempt budgets must be positive", ErrInvalidParameter)
	case c.InitRetryDelay < 0:
		return fmt.Errorf("%w: negative init retry delay", ErrInvalidParameter)
	}
	return nil
}

// Option is a functional option for configuring a Card
type Option func(*Card) error

// WithConfig replaces the whole configuration
func WithConfig(config *Config) Option {
	return func(c *Card) error {
		if config == nil {
			return ErrInvalidParameter
		}
		cfg := *config
		c.config = &cfg
		return nil
	}
}

// WithClock sets the time source used for timeouts and delays
func WithClock(clock Clock) Option {
	return func(c *Card) error {
		c.config.Clock = clock
		return nil
	}
}

// WithWorkingSpeed sets the bus speed used after initialization
func WithWorkingSpeed(f physic.Frequency) Option {
	return func(c *Card) error {
		c.config.WorkingSpeed = f
		return nil
	}
}

// WithInitSpeed sets the bus speed used while negotiating
func WithInitSpeed(f physic.Frequency) Option {
	return func(c *Card) error {
		c.config.InitSpeed = f
		return nil
	}
}

// WithReadyTimeout sets the busy wait budget
func WithReadyTimeout(timeout time.Duration) Option {
	return func(c *Card) error {
		c.config.ReadyTimeout = timeout
		return nil
	}
}

// WithTokenTimeout sets the data token wait budget
func WithTokenTimeout(timeout time.Duration) Option {
	return func(c *Card) error {
		c.config.TokenTimeout = timeout
		return nil
	}
}

// WithInitAttempts sets the ACMD41 attempt budget
func WithInitAttempts(attempts int) Option {
	return func(c *Card) error {
		c.config.InitAttempts = attempts
		return nil
	}
}

// WithDataCRC enables sending computed CRC16 values after written blocks
func WithDataCRC(enabled bool) Option {
	return func(c *Card) error {
		c.config.DataCRC = enabled
		return nil
	}
}
