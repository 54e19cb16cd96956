// Copyright 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

// Package xldate converts between time.Time and Excel serial date numbers.
package xldate

import (
	"math"
	"strings"
	"time"
)

var (
	epoch1900 = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	epoch1904 = time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)
	// serial 60 is the nonexistent 1900-02-29
	leapBug = time.Date(1900, 3, 1, 0, 0, 0, 0, time.UTC)
)

const msPerDay = 24 * 60 * 60 * 1000

// FromTime returns the serial number of t in UTC, truncated to the millisecond.
func FromTime(t time.Time, date1904 bool) float64 {
	t = t.UTC()
	epoch := epoch1900
	if date1904 {
		epoch = epoch1904
	} else if t.Before(leapBug) {
		epoch = epoch.AddDate(0, 0, 1)
	}
	// t.Sub would saturate beyond ~292 years
	ms := (t.Unix()-epoch.Unix())*1000 + int64(t.Nanosecond()/int(time.Millisecond))
	return float64(ms) / msPerDay
}

// ToTime converts a serial number to a UTC time, rounded to the millisecond.
func ToTime(serial float64, date1904 bool) time.Time {
	epoch := epoch1900
	if date1904 {
		epoch = epoch1904
	} else if serial < 61 {
		epoch = epoch.AddDate(0, 0, 1)
	}
	days := math.Floor(serial)
	ms := math.Round((serial - days) * msPerDay)
	return epoch.AddDate(0, 0, int(days)).Add(time.Duration(ms) * time.Millisecond)
}

var builtinDateFormats = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 18: true, 19: true, 20: true, 21: true, 22: true,
	27: true, 28: true, 29: true, 30: true, 31: true, 32: true, 33: true, 34: true, 35: true, 36: true,
	45: true, 46: true, 47: true,
	50: true, 51: true, 52: true, 53: true, 54: true, 55: true, 56: true, 57: true, 58: true,
}

// IsBuiltinDateFormat reports whether the builtin number format id is a date/time format.
func IsBuiltinDateFormat(id int) bool { return builtinDateFormats[id] }

// IsDateFormat reports whether the number format code displays a date or time.
func IsDateFormat(code string) bool {
	var b strings.Builder
	inQuote := false
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case inQuote:
			if c == '"' {
				inQuote = false
			}
		case c == '"':
			inQuote = true
		case c == '\\' || c == '_' || c == '*':
			i++
		case c == '[':
			j := strings.IndexByte(code[i:], ']')
			if j < 0 {
				i = len(code)
				break
			}
			// [h], [mm], [ss] are elapsed time; [Red], [$-409] are not
			if inner := strings.ToLower(code[i+1 : i+j]); strings.Trim(inner, "hms") == "" {
				b.WriteString(inner)
			}
			i += j
		case c == ';':
			// only the first (positive) section decides
			i = len(code)
		default:
			b.WriteByte(c)
		}
	}
	s := strings.ToLower(b.String())
	if s == "general" {
		return false
	}
	return strings.ContainsAny(s, "ymdhs")
}
