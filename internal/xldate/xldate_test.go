// Copyright 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

package xldate

import (
	"testing"
	"time"
)

func TestSerial(t *testing.T) {
	for _, tc := range []struct {
		t        time.Time
		serial   float64
		date1904 bool
	}{
		{time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC), 1, false},
		{time.Date(1900, 2, 28, 0, 0, 0, 0, time.UTC), 59, false},
		{time.Date(1900, 3, 1, 0, 0, 0, 0, time.UTC), 61, false},
		{time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), 45292.5, false},
		{time.Date(1904, 1, 2, 0, 0, 0, 0, time.UTC), 1, true},
		{time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC), 2958465, false},
	} {
		if got := FromTime(tc.t, tc.date1904); got != tc.serial {
			t.Errorf("FromTime(%s)=%v, wanted %v", tc.t, got, tc.serial)
		}
		if got := ToTime(tc.serial, tc.date1904); !got.Equal(tc.t) {
			t.Errorf("ToTime(%v)=%s, wanted %s", tc.serial, got, tc.t)
		}
	}
}

func TestSerialRoundTrip(t *testing.T) {
	loc := time.FixedZone("X", 3600)
	for _, tm := range []time.Time{
		time.Date(2023, 10, 17, 13, 14, 15, 0, time.UTC),
		time.Date(1999, 12, 31, 23, 59, 59, 999_000_000, time.UTC),
		time.Date(2200, 6, 1, 8, 0, 1, 0, time.UTC),
	} {
		if got := ToTime(FromTime(tm, false), false); !got.Equal(tm) {
			t.Errorf("%s: got %s", tm, got)
		}
		if got := ToTime(FromTime(tm, true), true); !got.Equal(tm) {
			t.Errorf("1904 %s: got %s", tm, got)
		}
	}
	// the instant is kept, the zone is not
	tm := time.Date(2020, 2, 2, 10, 0, 0, 0, loc)
	if got := ToTime(FromTime(tm, false), false); got != time.Date(2020, 2, 2, 9, 0, 0, 0, time.UTC) {
		t.Errorf("got %s", got)
	}
	tm = time.Date(2024, 3, 15, 10, 30, 0, 123_456_789, time.UTC)
	if got := ToTime(FromTime(tm, false), false); !got.Equal(tm.Truncate(time.Millisecond)) {
		t.Errorf("sub-millisecond: got %s", got)
	}
}

func TestIsDateFormat(t *testing.T) {
	for code, want := range map[string]bool{
		"General":             false,
		"0":                   false,
		"0.00":                false,
		"#,##0.00;[Red]-#,##0": false,
		`"Year"0`:             false,
		"yyyy-mm-dd":          true,
		"m/d/yy h:mm":         true,
		"[h]:mm:ss":           true,
		"[$-409]mmmm d, yyyy": true,
		`0.00\h`:              false,
	} {
		if got := IsDateFormat(code); got != want {
			t.Errorf("%q: got %t, wanted %t", code, got, want)
		}
	}
	if !IsBuiltinDateFormat(22) || IsBuiltinDateFormat(1) {
		t.Error("builtin formats")
	}
}
