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
	"io"
)

var (
	_ io.ReaderAt = (*Card)(nil)
	_ io.WriterAt = (*Card)(nil)
)

// ReadAt implements io.ReaderAt over the card's byte address space
func (c *Card) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	first, span, err := c.blockSpan(off, len(p))
	if err != nil {
		return 0, err
	}

	if off%BlockSize == 0 && len(p)%BlockSize == 0 {
		if err := c.ReadBlocks(first, p); err != nil {
			return 0, err
		}
		return len(p), nil
	}

	buf := make([]byte, span*BlockSize)
	if err := c.ReadBlocks(first, buf); err != nil {
		return 0, err
	}
	return copy(p, buf[off%BlockSize:]), nil
}

// WriteAt implements io.WriterAt. Partial blocks at either end are read,
// merged and written back.
func (c *Card) WriteAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	first, span, err := c.blockSpan(off, len(p))
	if err != nil {
		return 0, err
	}

	if off%BlockSize == 0 && len(p)%BlockSize == 0 {
		if err := c.WriteBlocks(first, p); err != nil {
			return 0, err
		}
		return len(p), nil
	}

	buf := make([]byte, span*BlockSize)
	head := int(off % BlockSize)
	if head != 0 {
		if err := c.ReadBlocks(first, buf[:BlockSize]); err != nil {
			return 0, err
		}
	}
	if tail := (head + len(p)) % BlockSize; tail != 0 && (span > 1 || head == 0) {
		last := first + uint32(span-1)
		if err := c.ReadBlocks(last, buf[len(buf)-BlockSize:]); err != nil {
			return 0, err
		}
	}

	copy(buf[head:], p)
	if err := c.WriteBlocks(first, buf); err != nil {
		return 0, err
	}
	return len(p), nil
}

// blockSpan returns the first block and the number of blocks touched by
// n bytes at off. Spans past the end of the card are rejected when its
// size is known.
func (c *Card) blockSpan(off int64, n int) (first uint32, span int, err error) {
	if off < 0 {
		return 0, 0, fmt.Errorf("%w: negative offset %d", ErrInvalidParameter, off)
	}
	end := off + int64(n)
	firstBlock := off / BlockSize
	lastBlock := (end - 1) / BlockSize
	if lastBlock > 1<<32-1 {
		return 0, 0, fmt.Errorf("%w: offset %d", ErrOutOfRange, end)
	}
	if c.ready {
		if count := c.BlockCount(); count > 0 && uint64(lastBlock) >= count {
			return 0, 0, fmt.Errorf("%w: offset %d past %d blocks", ErrOutOfRange, end, count)
		}
	}
	return uint32(firstBlock), int(lastBlock-firstBlock) + 1, nil
}
