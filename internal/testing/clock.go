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

package testing

import "time"

// FakeClock advances by Step on every Now call and by the full duration on
// Sleep, so bounded waits finish without real time passing.
type FakeClock struct {
	now   time.Time
	Step  time.Duration
	Slept time.Duration
	Reads int
}

// NewFakeClock creates a clock that advances step per reading
func NewFakeClock(step time.Duration) *FakeClock {
	return &FakeClock{
		now:  time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		Step: step,
	}
}

// Now returns the current fake time and then advances it
func (c *FakeClock) Now() time.Time {
	c.Reads++
	c.now = c.now.Add(c.Step)
	return c.now
}

// Sleep advances the clock without blocking
func (c *FakeClock) Sleep(d time.Duration) {
	c.Slept += d
	c.now = c.now.Add(d)
}
