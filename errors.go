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
	"errors"
	"fmt"
)

// Card errors. Every failure returned by a Card wraps exactly one of these,
// so callers can branch with errors.Is.
var (
	ErrNoCardDetected       = errors.New("no card detected")
	ErrInitTimeout          = errors.New("card initialization timeout")
	ErrSetBlockLengthFailed = errors.New("set block length failed")
	ErrReadCommand          = errors.New("read command rejected")
	ErrWriteCommand         = errors.New("write command rejected")
	ErrDataTokenTimeout     = errors.New("timeout waiting for data token")
	ErrDataRejected         = errors.New("data block rejected")
	ErrWriteTimeout         = errors.New("card busy after write")
	ErrInvalidBufferLength  = errors.New("buffer length is not a multiple of the block size")
	ErrCommandTimeout       = errors.New("command response timeout")
	ErrNotInitialized       = errors.New("card not initialized")
	ErrUnsupportedCSD       = errors.New("unsupported CSD structure")
	ErrEraseFailed          = errors.New("erase failed")
	ErrRegisterRead         = errors.New("register read failed")
	ErrOutOfRange           = errors.New("access beyond card capacity")
	ErrInvalidParameter     = errors.New("invalid parameter")
)

// Bus errors
var (
	ErrBusClosed = errors.New("bus closed")
	ErrBusIO     = errors.New("bus transfer failed")
)

// ErrorType classifies errors for retry decisions
type ErrorType int

const (
	// ErrorTypePermanent indicates a permanent error that should not be retried
	ErrorTypePermanent ErrorType = iota
	// ErrorTypeTransient indicates a transient error that may succeed on retry
	ErrorTypeTransient
	// ErrorTypeTimeout indicates a timeout error
	ErrorTypeTimeout
)

// String returns the error type name
func (e ErrorType) String() string {
	switch e {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return "permanent"
	}
}

// CardError carries the protocol context of a failed card operation
type CardError struct {
	Err    error
	Op     string
	Cmd    int  // command index, -1 when the failure is not tied to a command
	Status byte // R1 or data response byte that caused the failure
}

// Error implements the error interface
func (e *CardError) Error() string {
	if e.Cmd >= 0 {
		return fmt.Sprintf("%s: CMD%d status 0x%02X: %v", e.Op, e.Cmd, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying sentinel
func (e *CardError) Unwrap() error {
	return e.Err
}

// NewCardError creates a CardError tied to a command and its status byte
func NewCardError(op string, cmd byte, status byte, err error) *CardError {
	return &CardError{Op: op, Cmd: int(cmd), Status: status, Err: err}
}

// newOpError creates a CardError that is not tied to a single command
func newOpError(op string, err error) *CardError {
	return &CardError{Op: op, Cmd: -1, Err: err}
}

// BusError wraps a failure reported by the underlying bus or select line
type BusError struct {
	Err  error
	Op   string
	Bus  string
	Type ErrorType
}

// Error implements the error interface
func (e *BusError) Error() string {
	if e.Bus != "" {
		return fmt.Sprintf("%s on %s: %v", e.Op, e.Bus, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *BusError) Unwrap() error {
	return e.Err
}

// NewBusError creates a new bus error. Failures on a closed bus are
// permanent; everything else may clear on retry.
func NewBusError(op, bus string, err error) *BusError {
	errType := ErrorTypeTransient
	if errors.Is(err, ErrBusClosed) {
		errType = ErrorTypePermanent
	}
	return &BusError{Op: op, Bus: bus, Err: err, Type: errType}
}

// GetErrorType returns the classification of err
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypePermanent
	}

	var busErr *BusError
	if errors.As(err, &busErr) {
		return busErr.Type
	}

	switch {
	case errors.Is(err, ErrCommandTimeout),
		errors.Is(err, ErrDataTokenTimeout),
		errors.Is(err, ErrWriteTimeout),
		errors.Is(err, ErrInitTimeout):
		return ErrorTypeTimeout
	case errors.Is(err, ErrDataRejected),
		errors.Is(err, ErrReadCommand),
		errors.Is(err, ErrWriteCommand),
		errors.Is(err, ErrRegisterRead):
		return ErrorTypeTransient
	default:
		return ErrorTypePermanent
	}
}

// IsRetryable reports whether repeating the failed call may succeed.
// Initialization failures are not retryable at the call level: the card
// has to be re-initialized first.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInitTimeout) {
		return false
	}
	return GetErrorType(err) != ErrorTypePermanent
}
