// Copyright 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

// Package workbook is the in-memory spreadsheet model: typed cells,
// sparse rows, worksheets and the workbook holding them.
//
// Nothing here is safe for concurrent mutation.
package workbook

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind is the type tag of a Cell.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindBool
	KindNumber
	KindInteger
	KindText
	KindDateTime
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindInteger:
		return "integer"
	case KindText:
		return "text"
	case KindDateTime:
		return "datetime"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Cell is a tagged value. The zero Cell is Empty.
type Cell struct {
	t    time.Time
	s    string
	num  float64
	i    int64
	kind Kind
	b    bool
}

// Empty is the empty cell.
var Empty Cell

func Bool(b bool) Cell          { return Cell{kind: KindBool, b: b} }
func Number(f float64) Cell     { return Cell{kind: KindNumber, num: f} }
func Integer(i int64) Cell      { return Cell{kind: KindInteger, i: i} }
func Text(s string) Cell        { return Cell{kind: KindText, s: s} }
func DateTime(t time.Time) Cell { return Cell{kind: KindDateTime, t: t} }

// FromValue converts a Go value to a Cell.
//
// nil gives Empty; bool, signed and unsigned integers, floats, string and
// time.Time map to their kinds. Anything else is ErrInvalidArgument.
func FromValue(v any) (Cell, error) {
	switch x := v.(type) {
	case nil:
		return Empty, nil
	case Cell:
		return x, nil
	case bool:
		return Bool(x), nil
	case int:
		return Integer(int64(x)), nil
	case int8:
		return Integer(int64(x)), nil
	case int16:
		return Integer(int64(x)), nil
	case int32:
		return Integer(int64(x)), nil
	case int64:
		return Integer(x), nil
	case uint:
		return unsigned(uint64(x))
	case uint8:
		return Integer(int64(x)), nil
	case uint16:
		return Integer(int64(x)), nil
	case uint32:
		return Integer(int64(x)), nil
	case uint64:
		return unsigned(x)
	case float32:
		return Number(float64(x)), nil
	case float64:
		return Number(x), nil
	case string:
		return Text(x), nil
	case time.Time:
		return DateTime(x), nil
	}
	return Empty, fmt.Errorf("%w: unsupported cell value type %T", ErrInvalidArgument, v)
}

func unsigned(u uint64) (Cell, error) {
	if u > math.MaxInt64 {
		return Empty, fmt.Errorf("%w: %d overflows int64", ErrInvalidArgument, u)
	}
	return Integer(int64(u)), nil
}

// Kind returns the type tag.
func (c Cell) Kind() Kind { return c.kind }

// IsEmpty reports whether the cell holds no value.
func (c Cell) IsEmpty() bool { return c.kind == KindEmpty }

func (c Cell) mismatch(want Kind) error {
	return &TypeMismatchError{Row: -1, Col: -1, Want: want, Got: c.kind}
}

// Bool returns the value of a Bool cell.
func (c Cell) Bool() (bool, error) {
	if c.kind != KindBool {
		return false, c.mismatch(KindBool)
	}
	return c.b, nil
}

// Number returns the value of a Number cell.
//
// Integer cells are not widened: they fail like any other kind.
func (c Cell) Number() (float64, error) {
	if c.kind != KindNumber {
		return 0, c.mismatch(KindNumber)
	}
	return c.num, nil
}

// Integer returns the value of an Integer cell.
func (c Cell) Integer() (int64, error) {
	if c.kind != KindInteger {
		return 0, c.mismatch(KindInteger)
	}
	return c.i, nil
}

// Text returns the value of a Text cell.
func (c Cell) Text() (string, error) {
	if c.kind != KindText {
		return "", c.mismatch(KindText)
	}
	return c.s, nil
}

// DateTime returns the value of a DateTime cell.
func (c Cell) DateTime() (time.Time, error) {
	if c.kind != KindDateTime {
		return time.Time{}, c.mismatch(KindDateTime)
	}
	return c.t, nil
}

// Value returns the stored value as bool, float64, int64, string, time.Time or nil.
func (c Cell) Value() any {
	switch c.kind {
	case KindBool:
		return c.b
	case KindNumber:
		return c.num
	case KindInteger:
		return c.i
	case KindText:
		return c.s
	case KindDateTime:
		return c.t
	default:
		return nil
	}
}

// DateTimeLayout is the textual form of DateTime cells,
// DateLayout is used when the time of day is midnight.
const (
	DateTimeLayout = "2006-01-02 15:04:05"
	DateLayout     = "2006-01-02"
)

// String returns the textual representation of the cell, "" for Empty.
func (c Cell) String() string {
	switch c.kind {
	case KindBool:
		if c.b {
			return "TRUE"
		}
		return "FALSE"
	case KindNumber:
		return strconv.FormatFloat(c.num, 'f', -1, 64)
	case KindInteger:
		return strconv.FormatInt(c.i, 10)
	case KindText:
		return c.s
	case KindDateTime:
		if h, m, s := c.t.Clock(); h == 0 && m == 0 && s == 0 && c.t.Nanosecond() == 0 {
			return c.t.Format(DateLayout)
		}
		return c.t.Format(DateTimeLayout)
	default:
		return ""
	}
}

// Equal reports whether the two cells have the same kind and value.
// DateTime values are compared with time.Time.Equal.
func (c Cell) Equal(d Cell) bool {
	if c.kind != d.kind {
		return false
	}
	switch c.kind {
	case KindBool:
		return c.b == d.b
	case KindNumber:
		return c.num == d.num || (math.IsNaN(c.num) && math.IsNaN(d.num))
	case KindInteger:
		return c.i == d.i
	case KindText:
		return c.s == d.s
	case KindDateTime:
		return c.t.Equal(d.t)
	default:
		return true
	}
}
