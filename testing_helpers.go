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
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// MockBus is a scripted Bus and SelectPin for tests. Every byte clocked
// out is recorded; bytes clocked in come from the script, then Idle.
type MockBus struct {
	TxErr     error
	SelectErr error
	SpeedErr  error
	script    []byte
	written   []byte
	levels    []gpio.Level
	speeds    []physic.Frequency
	mu        sync.Mutex
	transfers int
	Idle      byte
	closed    bool
}

// NewMockBus creates a mock bus that answers with script, then 0xFF
func NewMockBus(script ...byte) *MockBus {
	return &MockBus{script: script, Idle: 0xFF}
}

// Tx records w and fills r from the script
func (m *MockBus) Tx(w, r []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrBusClosed
	}
	if m.TxErr != nil {
		return m.TxErr
	}
	m.transfers++
	m.written = append(m.written, w...)
	for i := range w {
		b := m.Idle
		if len(m.script) > 0 {
			b = m.script[0]
			m.script = m.script[1:]
		}
		if r != nil {
			r[i] = b
		}
	}
	return nil
}

// SetSpeed records the requested clock rate
func (m *MockBus) SetSpeed(f physic.Frequency) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SpeedErr != nil {
		return m.SpeedErr
	}
	m.speeds = append(m.speeds, f)
	return nil
}

// Out records the select line level
func (m *MockBus) Out(l gpio.Level) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SelectErr != nil {
		return m.SelectErr
	}
	m.levels = append(m.levels, l)
	return nil
}

// Script appends bytes to be clocked in by later transfers
func (m *MockBus) Script(b ...byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, b...)
}

// Written returns a copy of every byte clocked out so far
func (m *MockBus) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.written...)
}

// Levels returns the select line history
func (m *MockBus) Levels() []gpio.Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]gpio.Level(nil), m.levels...)
}

// Speeds returns the clock rate history
func (m *MockBus) Speeds() []physic.Frequency {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]physic.Frequency(nil), m.speeds...)
}

// Transfers returns the number of successful Tx calls
func (m *MockBus) Transfers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transfers
}

// Reset clears the recorded history, keeping the remaining script
func (m *MockBus) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = nil
	m.levels = nil
	m.speeds = nil
	m.transfers = 0
}

// Close marks the bus closed; later transfers fail with ErrBusClosed
func (m *MockBus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called
func (m *MockBus) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Type returns BusMock
func (*MockBus) Type() BusType {
	return BusMock
}
