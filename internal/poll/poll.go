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

// Package poll holds the bounded polling loops the SD protocol is built on:
// a fixed attempt budget (command response, ACMD41 negotiation) and a
// deadline against an injected clock (busy wait, data token).
package poll

import (
	"errors"
	"time"
)

var (
	// ErrExhausted is returned when every attempt asked to be retried.
	ErrExhausted = errors.New("attempt budget exhausted")
	// ErrDeadline is returned when the timeout elapsed before success.
	ErrDeadline = errors.New("deadline elapsed")
)

// Clock is the monotonic time source the loops measure against.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Operation performs one attempt. It returns the result, whether another
// attempt is wanted, and an error that aborts the loop immediately.
type Operation[T any] func() (T, bool, error)

// Config bounds an attempt loop.
type Config struct {
	Clock Clock
	// OnRetry runs before every attempt after the first; an error aborts.
	OnRetry     func(attempt int) error
	MaxAttempts int
	Delay       time.Duration
}

// Attempts runs op until it stops asking for a retry, fails, or
// MaxAttempts attempts have been made. It reports how many attempts ran.
func Attempts[T any](config Config, op Operation[T]) (result T, attempts int, err error) {
	var zero T

	for attempts < config.MaxAttempts {
		if attempts > 0 {
			if config.OnRetry != nil {
				if err := config.OnRetry(attempts); err != nil {
					return zero, attempts, err
				}
			}
			if config.Delay > 0 && config.Clock != nil {
				config.Clock.Sleep(config.Delay)
			}
		}

		attempts++
		res, shouldRetry, err := op()
		if err != nil {
			return zero, attempts, err
		}
		if !shouldRetry {
			return res, attempts, nil
		}
	}

	return zero, attempts, ErrExhausted
}

// Until runs op until it stops asking for a retry, fails, or timeout has
// elapsed on clock. op always runs at least once.
func Until[T any](clock Clock, timeout time.Duration, op Operation[T]) (T, error) {
	var zero T
	start := clock.Now()

	for {
		res, shouldRetry, err := op()
		if err != nil {
			return zero, err
		}
		if !shouldRetry {
			return res, nil
		}
		if clock.Now().Sub(start) >= timeout {
			return zero, ErrDeadline
		}
	}
}
