// Copyright 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

package workbook

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat is returned when a container is malformed or of an unsupported variant.
	ErrFormat = errors.New("invalid or unsupported file format")
	// ErrAuthentication is returned when an encrypted container is opened
	// without a password, or with a wrong one.
	ErrAuthentication = errors.New("missing or incorrect password")
	// ErrTypeMismatch is returned by typed accessors used on a cell of another kind.
	ErrTypeMismatch = errors.New("cell type mismatch")
	// ErrIndexOutOfRange is returned for invalid row, column or worksheet indexes.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrInvalidArgument is returned for unrecognized option values and invalid names.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnsupportedFormat is returned when no codec is registered for the requested format.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrTooManyRows is returned when a worksheet does not fit into the target format.
	ErrTooManyRows = errors.New("too many rows")
)

// TypeMismatchError is returned when a typed accessor does not match the stored kind.
type TypeMismatchError struct {
	Row, Col  int
	Want, Got Kind
}

func (e *TypeMismatchError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("%s: want %s, got %s", ErrTypeMismatch, e.Want, e.Got)
	}
	return fmt.Sprintf("%s at [%d,%d]: want %s, got %s", ErrTypeMismatch, e.Row, e.Col, e.Want, e.Got)
}
func (e *TypeMismatchError) Unwrap() error { return ErrTypeMismatch }

// IndexError reports an index outside of [0, Len).
type IndexError struct {
	// What is "row", "column" or "worksheet".
	What  string
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s: %s index %d not in [0, %d)", ErrIndexOutOfRange, e.What, e.Index, e.Len)
}
func (e *IndexError) Unwrap() error { return ErrIndexOutOfRange }
