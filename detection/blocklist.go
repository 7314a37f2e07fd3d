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

package detection

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultBlocklist returns USB serial devices that must never receive Bus
// Pirate probes. Format: VID:PID in hexadecimal (case-insensitive).
func DefaultBlocklist() []string {
	return []string{
		"2341:0043", // Arduino Uno, resets on open
		"2341:0001", // Arduino Uno (early)
		"1A86:7523", // CH340, common on Arduino clones and ESP boards
		"10C4:EA60", // CP210x, common on ESP32 boards
	}
}

// IsBlocked checks if a USB device is in the blocklist
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = strings.ToUpper(strings.TrimSpace(vidpid))
	if vidpid == "" {
		return false
	}
	for _, blocked := range blocklist {
		if strings.ToUpper(strings.TrimSpace(blocked)) == vidpid {
			return true
		}
	}
	return false
}

// FormatVIDPID formats USB IDs as the upper case "VVVV:PPPP" used by the
// blocklist. Enumerators report them as hex strings of varying case.
func FormatVIDPID(vid, pid string) string {
	v, err := strconv.ParseUint(vid, 16, 16)
	if err != nil {
		return ""
	}
	p, err := strconv.ParseUint(pid, 16, 16)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%04X:%04X", v, p)
}

// ParseVIDPID extracts VID:PID from the descriptor formats found in the
// wild: "0403:6001", "VID:0403 PID:6001", "USB VID:PID=0403:6001" and
// Windows hardware IDs like "USB\VID_0403&PID_6001".
func ParseVIDPID(descriptor string) string {
	descriptor = strings.ToUpper(descriptor)

	if _, rest, ok := strings.Cut(descriptor, "VID:PID="); ok {
		vid, pid, _ := strings.Cut(rest, ":")
		return FormatVIDPID(leadingHex(vid), leadingHex(pid))
	}

	for _, keys := range [][2]string{{"VID_", "PID_"}, {"VID:", "PID:"}, {"VID=", "PID="}, {"VENDOR=", "PRODUCT="}} {
		_, vidRest, okVID := strings.Cut(descriptor, keys[0])
		_, pidRest, okPID := strings.Cut(descriptor, keys[1])
		if okVID && okPID {
			return FormatVIDPID(leadingHex(vidRest), leadingHex(pidRest))
		}
	}

	if vid, pid, ok := strings.Cut(strings.TrimSpace(descriptor), ":"); ok && !strings.Contains(pid, ":") {
		return FormatVIDPID(vid, pid)
	}
	return ""
}

// leadingHex returns the hex digits at the start of s
func leadingHex(s string) string {
	end := 0
	for end < len(s) && isHex(s[end:end+1]) {
		end++
	}
	return s[:end]
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'A' || r > 'F') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// IsPathIgnored checks if a device path should be ignored. Paths are
// compared cleaned and case-insensitively.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	device := normalizedPath(devicePath)
	for _, ignored := range ignorePaths {
		if ignored != "" && normalizedPath(ignored) == device {
			return true
		}
	}
	return false
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
