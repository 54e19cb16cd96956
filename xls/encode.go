// Copyright 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

package xls

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"math"
	"unicode/utf16"

	"github.com/UNO-SOFT/excel/internal/cfb"
	"github.com/UNO-SOFT/excel/internal/xldate"
	"github.com/UNO-SOFT/excel/workbook"
)

// Cell XF indexes written after the 15 style XFs.
const (
	xfGeneral  = 15
	xfInteger  = 16
	xfDateTime = 17
)

type recWriter struct {
	bytes.Buffer
}

func (w *recWriter) rec(typ uint16, data []byte) {
	var hdr [4]byte
	le.PutUint16(hdr[:], typ)
	le.PutUint16(hdr[2:], uint16(len(data)))
	w.Write(hdr[:])
	w.Write(data)
}

func bof(dt uint16) []byte {
	b := make([]byte, 0, 16)
	b = le.AppendUint16(b, biff8Version)
	b = le.AppendUint16(b, dt)
	b = le.AppendUint16(b, 0x0DBB) // build
	b = le.AppendUint16(b, 0x07CC) // year
	b = le.AppendUint32(b, 0)
	return le.AppendUint32(b, 0x06)
}

// Encode writes wb as a BIFF8 workbook in an OLE2 compound file.
func Encode(w io.Writer, wb *workbook.Workbook, opts Options) error {
	if wb.Len() == 0 {
		return fmt.Errorf("%w: workbook has no worksheets", workbook.ErrInvalidArgument)
	}
	if err := check(wb); err != nil {
		return err
	}

	// shared strings
	var sst []string
	sstIndex := make(map[string]int)
	var sstTotal int
	for _, ws := range wb.Worksheets() {
		for _, r := range ws.Rows {
			for _, col := range r.Columns() {
				c := r.Cell(col)
				if c.Kind() != workbook.KindText {
					continue
				}
				s, _ := c.Text()
				sstTotal++
				if _, ok := sstIndex[s]; !ok {
					sstIndex[s] = len(sst)
					sst = append(sst, s)
				}
			}
		}
	}

	var rw recWriter
	rw.rec(recBOF, bof(dtGlobals))
	var cipher *rc4Stream
	encryptFrom := -1
	if opts.Password != "" {
		fp, s, err := newFilePass(opts.Password)
		if err != nil {
			return err
		}
		rw.rec(recFilePass, fp)
		cipher, encryptFrom = s, rw.Len()
	}
	rw.rec(recCodePage, le.AppendUint16(nil, 1200))
	window1 := make([]byte, 0, 18)
	for _, v := range []uint16{0, 0, 0x4000, 0x2000, 0x0038, uint16(wb.ActiveIndex()), 0, 1, 600} {
		window1 = le.AppendUint16(window1, v)
	}
	rw.rec(recWindow1, window1)
	var date1904 uint16
	if wb.Date1904 {
		date1904 = 1
	}
	rw.rec(recDateMode, le.AppendUint16(nil, date1904))
	for range 4 {
		rw.rec(recFont, font())
	}
	for i := range 15 {
		ifnt := uint16(0)
		if i == 1 || i == 2 {
			ifnt = 1
		} else if i == 3 || i == 4 {
			ifnt = 2
		}
		used := byte(0xF4)
		if i == 0 {
			used = 0
		}
		rw.rec(recXF, xf(ifnt, 0, 0xFFF5, used))
	}
	rw.rec(recXF, xf(0, 0, 0x0001, 0))
	rw.rec(recXF, xf(0, 1, 0x0001, 0x04))
	rw.rec(recXF, xf(0, 22, 0x0001, 0x04))
	rw.rec(recStyle, []byte{0x00, 0x80, 0x00, 0xFF})

	plyPos := make([]int, wb.Len())
	for i, ws := range wb.Worksheets() {
		plyPos[i] = rw.Len() + 4
		b := make([]byte, 4, 8+2*len(ws.Name))
		b = append(b, 0, 0) // visible worksheet
		rw.rec(recBoundSheet, appendUnicodeString(b, ws.Name, true))
	}
	rw.writeSST(sst, sstTotal)
	rw.rec(recEOF, nil)

	for i, ws := range wb.Worksheets() {
		le.PutUint32(rw.Bytes()[plyPos[i]:], uint32(rw.Len()))
		rw.writeSheet(ws, i == wb.ActiveIndex(), wb.Date1904, sstIndex)
	}

	stream := rw.Bytes()
	if cipher != nil {
		if err := cryptRecords(stream, encryptFrom, cipher); err != nil {
			return err
		}
	}
	slog.Debug("xls encode", "sheets", wb.Len(), "strings", len(sst), "size", len(stream), "encrypted", cipher != nil)
	return cfb.Write(w, cfb.Stream{Name: "Workbook", Data: stream})
}

// check validates the BIFF8 limits before anything is written.
func check(wb *workbook.Workbook) error {
	for _, ws := range wb.Worksheets() {
		if err := workbook.ValidateSheetName(ws.Name); err != nil {
			return err
		}
		if n := ws.RowCount(); n > MaxRowCount {
			return fmt.Errorf("%s: %d rows: %w", ws.Name, n, workbook.ErrTooManyRows)
		}
		if n := ws.MaxUsedColumns(); n > MaxColumnCount {
			return fmt.Errorf("%w: %s has %d columns, XLS allows %d", workbook.ErrInvalidArgument, ws.Name, n, MaxColumnCount)
		}
		for i, r := range ws.Rows {
			for _, col := range r.Columns() {
				// UTF-8 is never shorter than UTF-16 in code units
				if s, err := r.Cell(col).Text(); err == nil && len(s) > maxTextLen {
					if n := len(utf16.Encode([]rune(s))); n > maxTextLen {
						return fmt.Errorf("%w: %s[%d,%d]: text of %d characters, XLS allows %d",
							workbook.ErrInvalidArgument, ws.Name, i, col, n, maxTextLen)
					}
				}
			}
		}
	}
	return nil
}

func font() []byte {
	b := make([]byte, 0, 26)
	b = le.AppendUint16(b, 200)    // height in twips
	b = le.AppendUint16(b, 0)      // grbit
	b = le.AppendUint16(b, 0x7FFF) // color
	b = le.AppendUint16(b, 400)    // weight
	b = le.AppendUint16(b, 0)      // sub/superscript
	b = append(b, 0, 0, 0, 0)      // underline, family, charset, reserved
	return appendUnicodeString(b, "Arial", true)
}

func xf(ifnt, ifmt, flags uint16, used byte) []byte {
	b := make([]byte, 0, 20)
	b = le.AppendUint16(b, ifnt)
	b = le.AppendUint16(b, ifmt)
	b = le.AppendUint16(b, flags)
	b = append(b, 0x20, 0, 0, used) // bottom aligned
	b = append(b, 0, 0, 0, 0, 0, 0, 0, 0)
	return append(b, 0xC0, 0x20)
}

// writeSST writes the SST record, splitting it into CONTINUE records.
// A string header never straddles records; character data may, in which
// case the CONTINUE record starts with the flags byte again.
// EXTSST follows, pointing at every dsst-th string.
func (w *recWriter) writeSST(strs []string, total int) {
	cur := make([]byte, 0, maxRecordData)
	cur = le.AppendUint32(cur, uint32(total))
	cur = le.AppendUint32(cur, uint32(len(strs)))
	typ := uint16(recSST)
	flush := func() {
		w.rec(typ, cur)
		typ, cur = recContinue, cur[:0]
	}
	dsst := max(8, (len(strs)+127)/128)
	var ext []byte
	ext = le.AppendUint16(ext, uint16(dsst))
	for i, s := range strs {
		u := utf16.Encode([]rune(s))
		width, flag := 1, byte(0)
		if !compressible(u) {
			width, flag = 2, 1
		}
		if len(cur)+3+width > maxRecordData {
			flush()
		}
		if i%dsst == 0 {
			ext = le.AppendUint32(ext, uint32(w.Len()+4+len(cur)))
			ext = le.AppendUint16(ext, uint16(4+len(cur)))
			ext = le.AppendUint16(ext, 0)
		}
		cur = le.AppendUint16(cur, uint16(len(u)))
		cur = append(cur, flag)
		for len(u) != 0 {
			room := (maxRecordData - len(cur)) / width
			if room == 0 {
				flush()
				cur = append(cur, flag)
				continue
			}
			n := min(room, len(u))
			if width == 2 && n < len(u) && utf16.IsSurrogate(rune(u[n-1])) && u[n-1] < 0xdc00 {
				// keep the surrogate pair in one record
				if n--; n == 0 {
					flush()
					cur = append(cur, flag)
					continue
				}
			}
			cur = appendChars(cur, u[:n], width)
			u = u[n:]
		}
	}
	flush()
	w.rec(recExtSST, ext)
}

func appendFloat(b []byte, f float64) []byte { return le.AppendUint64(b, math.Float64bits(f)) }

func (w *recWriter) writeSheet(ws *workbook.Worksheet, active, date1904 bool, sstIndex map[string]int) {
	w.rec(recBOF, bof(dtWorksheet))
	dim := make([]byte, 0, 14)
	if fr, fc, lr, lc, ok := ws.UsedRange(); ok {
		dim = le.AppendUint32(dim, uint32(fr))
		dim = le.AppendUint32(dim, uint32(lr))
		dim = le.AppendUint16(dim, uint16(fc))
		dim = le.AppendUint16(dim, uint16(lc))
	} else {
		dim = append(dim, make([]byte, 12)...)
	}
	w.rec(recDimensions, le.AppendUint16(dim, 0))

	cell := make([]byte, 0, 14)
	for i, r := range ws.Rows {
		for _, col := range r.Columns() {
			c := r.Cell(col)
			cell = le.AppendUint16(cell[:0], uint16(i))
			cell = le.AppendUint16(cell, uint16(col))
			switch c.Kind() {
			case workbook.KindBool:
				v, _ := c.Bool()
				b := byte(0)
				if v {
					b = 1
				}
				w.rec(recBoolErr, append(le.AppendUint16(cell, xfGeneral), b, 0))
			case workbook.KindNumber:
				v, _ := c.Number()
				w.rec(recNumber, appendFloat(le.AppendUint16(cell, xfGeneral), v))
			case workbook.KindInteger:
				v, _ := c.Integer()
				w.rec(recNumber, appendFloat(le.AppendUint16(cell, xfInteger), float64(v)))
			case workbook.KindDateTime:
				v, _ := c.DateTime()
				w.rec(recNumber, appendFloat(le.AppendUint16(cell, xfDateTime), xldate.FromTime(v, date1904)))
			case workbook.KindText:
				s, _ := c.Text()
				w.rec(recLabelSST, le.AppendUint32(le.AppendUint16(cell, xfGeneral), uint32(sstIndex[s])))
			}
		}
	}

	grbit := uint16(0x00B6)
	if active {
		grbit |= 0x0600
	}
	win := make([]byte, 0, 18)
	win = le.AppendUint16(win, grbit)
	win = le.AppendUint32(win, 0) // rwTop, colLeft
	win = le.AppendUint16(win, 0x40)
	win = append(win, make([]byte, 10)...)
	w.rec(recWindow2, win)
	w.rec(recEOF, nil)
}
