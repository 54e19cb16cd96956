// Copyright 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

// Package dsv reads and writes delimiter separated values (CSV and friends).
//
// Cells carry no kind in text: Encode flattens every cell to its String form,
// Decode yields Text unless number or date inference is asked for.
// A CR LF inside a quoted field is read back as LF, and DateTime cells are
// written as their wall clock without zone.
package dsv

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/UNO-SOFT/excel/workbook"
)

// Options of Decode and Encode.
type Options struct {
	// Comma is the field delimiter. Zero means sniffing it from the first
	// line on Decode, and ',' on Encode.
	Comma rune
	// Charset is the WHATWG name of the text encoding, UTF-8 by default.
	Charset string
	// ParseNumbers makes Decode store decimal numbers as Number cells.
	ParseNumbers bool
	// ParseDates makes Decode store recognized dates as DateTime cells.
	ParseDates bool
}

// SheetName is the name of the only worksheet Decode returns.
const SheetName = "Sheet1"

func validDelim(r rune) bool {
	return r != 0 && r != '"' && r != '\r' && r != '\n' && r != 0xFFFD
}

// Decode reads data into a workbook with exactly one worksheet.
func Decode(data []byte, opts Options) (*workbook.Workbook, error) {
	wb := workbook.New()
	ws, err := wb.AddWorksheet(SheetName)
	if err != nil {
		return nil, err
	}
	if err := ReadWorksheet(ws, bytes.NewReader(data), opts); err != nil {
		return nil, err
	}
	return wb, nil
}

// NewReader returns a csv.Reader over r, decoded from opts.Charset,
// with the delimiter sniffed if opts.Comma is zero.
func NewReader(r io.Reader, opts Options) (*csv.Reader, error) {
	if opts.Comma != 0 && !validDelim(opts.Comma) {
		return nil, fmt.Errorf("%w: delimiter %q", workbook.ErrInvalidArgument, opts.Comma)
	}
	r, err := decoder(r, opts.Charset)
	if err != nil {
		return nil, err
	}
	sep := opts.Comma
	if sep == 0 {
		br := bufio.NewReaderSize(r, 1<<20)
		b, err := br.Peek(1024)
		if err != nil && len(b) == 0 && !errors.Is(err, io.EOF) {
			return nil, err
		}
		sep = Sniff(b)
		slog.Debug("dsv sniff", "comma", string(sep))
		r = br
	}
	cr := csv.NewReader(r)
	cr.Comma = sep
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true
	return cr, nil
}

// Sniff returns the first of , ; tab or | found outside quotes in the
// first line of b, ',' if none is found.
func Sniff(b []byte) rune {
	var quoted bool
	for _, r := range string(b) {
		switch r {
		case '"':
			quoted = !quoted
		case ',', ';', '\t', '|':
			if !quoted {
				return r
			}
		case '\n':
			if !quoted {
				return ','
			}
		}
	}
	return ','
}

// ReadWorksheet reads r into ws, one record per row starting at row 0.
// Every record allocates its row, even when all of its fields are empty.
func ReadWorksheet(ws *workbook.Worksheet, r io.Reader, opts Options) error {
	cr, err := NewReader(r, opts)
	if err != nil {
		return err
	}
	for i := 0; ; i++ {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("%w: %w", workbook.ErrFormat, err)
		}
		if i >= workbook.MaxRowCount {
			return fmt.Errorf("%w: more than %d records", workbook.ErrTooManyRows, workbook.MaxRowCount)
		}
		if err := ws.SetCell(i, 0, workbook.Empty); err != nil {
			return err
		}
		for j, s := range rec {
			if s == "" {
				continue
			}
			if err := ws.SetCell(i, j, ParseCell(s, opts)); err != nil {
				line, _ := cr.FieldPos(j)
				return fmt.Errorf("%w: line %d: %w", workbook.ErrFormat, line, err)
			}
		}
	}
	slog.Debug("dsv read", "sheet", ws.Name, "rows", ws.RowCount())
	return nil
}

// DateLayouts are tried in order when ParseDates is set.
// Times without a zone are UTC.
var DateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"2006.01.02. 15:04:05",
	"2006.01.02.",
	"2006.01.02",
	"01/02/2006",
}

// ParseCell returns the cell of field s: Number or DateTime when asked for
// and s parses as such, Text otherwise. The empty field is Empty.
func ParseCell(s string, opts Options) workbook.Cell {
	if s == "" {
		return workbook.Empty
	}
	if opts.ParseNumbers {
		if f, ok := parseNumber(s); ok {
			return workbook.Number(f)
		}
	}
	if opts.ParseDates {
		t := strings.TrimSpace(s)
		for _, layout := range DateLayouts {
			if d, err := time.Parse(layout, t); err == nil {
				return workbook.DateTime(d.UTC())
			}
		}
	}
	return workbook.Text(s)
}

// parseNumber accepts finite decimal numbers only: no hexadecimal,
// underscores, Inf or NaN, which strconv.ParseFloat would let through.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !isDecimal(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func isDecimal(s string) bool {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for ; i < len(s) && '0' <= s[i] && s[i] <= '9'; i++ {
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for ; i < len(s) && '0' <= s[i] && s[i] <= '9'; i++ {
			digits++
		}
	}
	if digits == 0 {
		return false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		start := i
		for ; i < len(s) && '0' <= s[i] && s[i] <= '9'; i++ {
		}
		if i == start {
			return false
		}
	}
	return i == len(s)
}
