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

import "fmt"

// Erase erases the inclusive block range [first, last]. Erased blocks read
// back as all zeros or all ones depending on the card.
func (c *Card) Erase(first, last uint32) error {
	if !c.ready {
		return newOpError("Erase", ErrNotInitialized)
	}
	if last < first {
		return newOpError("Erase", fmt.Errorf("%w: range %d-%d", ErrInvalidParameter, first, last))
	}

	start, err := c.address("Erase", first)
	if err != nil {
		return err
	}
	end, err := c.address("Erase", last)
	if err != nil {
		return err
	}

	err = c.erase(start, end)
	if releaseErr := c.release(); releaseErr != nil && err == nil {
		return releaseErr
	}
	return err
}

func (c *Card) erase(start, end uint32) error {
	steps := []struct {
		cmd byte
		arg uint32
	}{
		{cmdEraseWrBlkStart, start},
		{cmdEraseWrBlkEnd, end},
		{cmdErase, 0},
	}
	for _, step := range steps {
		r1, err := c.command(step.cmd, step.arg)
		if err := commandStatus("Erase", step.cmd, r1, err, ErrEraseFailed); err != nil {
			return err
		}
	}

	ready, err := c.waitReady(c.config.EraseTimeout)
	if err != nil {
		return err
	}
	if !ready {
		return NewCardError("Erase", cmdErase, 0, fmt.Errorf("%w: %w", ErrEraseFailed, ErrWriteTimeout))
	}
	debugf("erased 0x%08X-0x%08X", start, end)
	return nil
}
