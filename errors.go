// Copyright 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

package excel

import "github.com/UNO-SOFT/excel/workbook"

// The errors of the workbook package, for callers using errors.Is
// without importing it.
var (
	ErrFormat            = workbook.ErrFormat
	ErrAuthentication    = workbook.ErrAuthentication
	ErrTypeMismatch      = workbook.ErrTypeMismatch
	ErrIndexOutOfRange   = workbook.ErrIndexOutOfRange
	ErrInvalidArgument   = workbook.ErrInvalidArgument
	ErrUnsupportedFormat = workbook.ErrUnsupportedFormat
	ErrTooManyRows       = workbook.ErrTooManyRows
)

type (
	TypeMismatchError = workbook.TypeMismatchError
	IndexError        = workbook.IndexError
)
