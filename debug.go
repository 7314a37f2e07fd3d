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
	"log"
	"os"
	"sync/atomic"
)

var (
	debugEnabled atomic.Bool
	debugLogger  = log.New(os.Stderr, "[sdcard] ", log.LstdFlags|log.Lmicroseconds)
)

// SetDebugEnabled turns protocol tracing on or off for every Card
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}

// DebugEnabled reports whether protocol tracing is on
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// SetDebugOutput replaces the destination of debug output
func SetDebugOutput(logger *log.Logger) {
	if logger != nil {
		debugLogger = logger
	}
}

func debugf(format string, args ...any) {
	if debugEnabled.Load() {
		debugLogger.Printf(format, args...)
	}
}

func debugln(args ...any) {
	if debugEnabled.Load() {
		debugLogger.Println(args...)
	}
}
