// Copyright 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

// Package xls reads and writes Excel 97-2003 (BIFF8) workbooks.
//
// Only cell values survive: styles, formulas (beyond their cached results),
// charts and macros are ignored on read and never written.
package xls

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"unicode/utf16"

	"github.com/UNO-SOFT/excel/internal/cfb"
	"github.com/UNO-SOFT/excel/internal/xldate"
	"github.com/UNO-SOFT/excel/workbook"
)

// Options for Decode and Encode.
type Options struct {
	// Password for RC4 encrypted workbooks. On Encode, a non-empty
	// Password encrypts the workbook.
	Password string
}

type boundSheet struct {
	name   string
	offset int
	typ    byte
}

type globals struct {
	sst       []string
	formats   map[int]string
	xfFormats []int
	sheets    []boundSheet
	activeTab int
	date1904  bool
}

// Decode parses an XLS file (an OLE2 compound file holding a "Workbook"
// or "Book" stream, or the bare BIFF8 stream).
func Decode(data []byte, opts Options) (*workbook.Workbook, error) {
	stream := data
	if cfb.IsCFB(data) {
		var err error
		if stream, err = cfb.ReadStream(bytes.NewReader(data), "Workbook", "Book"); err != nil {
			if errors.Is(err, cfb.ErrNotFound) {
				return nil, fmt.Errorf("%w: no Workbook stream", workbook.ErrFormat)
			}
			return nil, fmt.Errorf("%w: %w", workbook.ErrFormat, err)
		}
	}
	if err := checkBOF(stream, 0, dtGlobals); err != nil {
		return nil, err
	}

	// scan the globals for FILEPASS before anything is interpreted
	rs := records{stream: stream}
	var fpRec record
	for {
		rec, ok := rs.next()
		if !ok {
			if rs.err != nil {
				return nil, rs.err
			}
			break
		}
		if rec.Type == recFilePass {
			fpRec = rec
			break
		}
		if rec.Type == recEOF {
			break
		}
	}
	if fpRec.Data != nil {
		fp, err := parseFilePass(fpRec.Data)
		if err != nil {
			return nil, err
		}
		stream = append([]byte(nil), stream...)
		s, err := unlock(fp, opts.Password)
		if err != nil {
			return nil, err
		}
		if err := cryptRecords(stream, fpRec.Offset+len(fpRec.Data), s); err != nil {
			return nil, err
		}
		slog.Debug("xls decrypted", "cryptoAPI", fp.cryptoAPI)
	}

	g, err := parseGlobals(stream)
	if err != nil {
		return nil, err
	}
	wb := workbook.New()
	wb.Date1904 = g.date1904
	active := 0
	for i, bs := range g.sheets {
		if bs.typ != sheetTypeWorks {
			slog.Debug("xls skip sheet", "name", bs.name, "type", bs.typ)
			continue
		}
		if i == g.activeTab {
			active = wb.Len()
		}
		ws, err := wb.AddWorksheet(bs.name)
		if err != nil {
			return nil, err
		}
		if err := g.parseSheet(ws, stream, bs.offset); err != nil {
			return nil, fmt.Errorf("%s: %w", bs.name, err)
		}
	}
	if wb.Len() != 0 {
		if err := wb.SetActive(active); err != nil {
			return nil, err
		}
	}
	return wb, nil
}

func unlock(fp filePass, password string) (*rc4Stream, error) {
	if password == "" {
		if s, err := fp.cipher(defaultPassword); err == nil {
			return s, nil
		}
		return nil, fmt.Errorf("%w: workbook is encrypted", workbook.ErrAuthentication)
	}
	return fp.cipher(password)
}

func checkBOF(stream []byte, off int, dt uint16) error {
	rs := records{stream: stream, off: off}
	rec, ok := rs.next()
	if !ok || rec.Type != recBOF || len(rec.Data) < 4 {
		return fmt.Errorf("%w: no BOF record at %d", workbook.ErrFormat, off)
	}
	if v := le.Uint16(rec.Data); v != biff8Version {
		return fmt.Errorf("%w: BIFF version 0x%04X is not BIFF8", workbook.ErrFormat, v)
	}
	if got := le.Uint16(rec.Data[2:]); got != dt {
		return fmt.Errorf("%w: substream type 0x%04X, wanted 0x%04X", workbook.ErrFormat, got, dt)
	}
	return nil
}

func short(rec record, n int) error {
	if len(rec.Data) < n {
		return fmt.Errorf("%w: record 0x%04X has %d bytes, wanted %d", workbook.ErrFormat, rec.Type, len(rec.Data), n)
	}
	return nil
}

func parseGlobals(stream []byte) (*globals, error) {
	g := globals{formats: make(map[int]string)}
	rs := records{stream: stream}
	rs.next() // BOF
	var sst [][]byte
	inSST := false
	for {
		rec, ok := rs.next()
		if !ok {
			if rs.err != nil {
				return nil, rs.err
			}
			return nil, fmt.Errorf("%w: globals substream without EOF", workbook.ErrFormat)
		}
		if rec.Type == recContinue {
			if inSST {
				sst = append(sst, rec.Data)
			}
			continue
		}
		inSST = false
		switch rec.Type {
		case recEOF:
			strs, err := parseSST(sst)
			if err != nil {
				return nil, err
			}
			g.sst = strs
			return &g, nil
		case recSST:
			inSST = true
			sst = append(sst[:0], rec.Data)
		case recDateMode:
			if err := short(rec, 2); err != nil {
				return nil, err
			}
			g.date1904 = le.Uint16(rec.Data) == 1
		case recWindow1:
			if err := short(rec, 12); err != nil {
				return nil, err
			}
			g.activeTab = int(le.Uint16(rec.Data[10:]))
		case recCodePage:
			if len(rec.Data) >= 2 {
				slog.Debug("xls codepage", "cp", le.Uint16(rec.Data))
			}
		case recFormat:
			if err := short(rec, 5); err != nil {
				return nil, err
			}
			code, _, err := unicodeString(rec.Data[2:], false)
			if err != nil {
				return nil, err
			}
			g.formats[int(le.Uint16(rec.Data))] = code
		case recXF:
			if err := short(rec, 4); err != nil {
				return nil, err
			}
			g.xfFormats = append(g.xfFormats, int(le.Uint16(rec.Data[2:])))
		case recBoundSheet:
			if err := short(rec, 8); err != nil {
				return nil, err
			}
			name, _, err := unicodeString(rec.Data[6:], true)
			if err != nil {
				return nil, err
			}
			g.sheets = append(g.sheets, boundSheet{
				name: name, offset: int(le.Uint32(rec.Data)), typ: rec.Data[5],
			})
		}
	}
}

// sstReader reads across the SST record and its CONTINUE records.
type sstReader struct {
	segs [][]byte
	seg  int
	pos  int
}

func (r *sstReader) advance() bool {
	for r.seg < len(r.segs) && r.pos >= len(r.segs[r.seg]) {
		r.seg++
		r.pos = 0
	}
	return r.seg < len(r.segs)
}

// bytes reads n bytes, crossing record boundaries without flag bytes.
func (r *sstReader) bytes(n int) ([]byte, error) {
	if r.seg < len(r.segs) && r.pos+n <= len(r.segs[r.seg]) {
		b := r.segs[r.seg][r.pos : r.pos+n]
		r.pos += n
		return b, nil
	}
	b := make([]byte, 0, n)
	for len(b) < n {
		if !r.advance() {
			return nil, fmt.Errorf("%w: SST truncated", workbook.ErrFormat)
		}
		m := min(n-len(b), len(r.segs[r.seg])-r.pos)
		b = append(b, r.segs[r.seg][r.pos:r.pos+m]...)
		r.pos += m
	}
	return b, nil
}

// str reads an XLUnicodeRichExtendedString. Character data continued in
// the next record starts with a new flags byte.
func (r *sstReader) str() (string, error) {
	hdr, err := r.bytes(3)
	if err != nil {
		return "", err
	}
	remaining, flags := int(le.Uint16(hdr)), hdr[2]
	var runs, ext int
	if flags&0x08 != 0 {
		b, err := r.bytes(2)
		if err != nil {
			return "", err
		}
		runs = int(le.Uint16(b))
	}
	if flags&0x04 != 0 {
		b, err := r.bytes(4)
		if err != nil {
			return "", err
		}
		ext = int(le.Uint32(b))
	}
	// surrogate pairs may straddle a CONTINUE boundary
	buf := make([]uint16, 0, remaining)
	high := flags&0x01 != 0
	for remaining > 0 {
		if r.seg >= len(r.segs) {
			return "", fmt.Errorf("%w: SST truncated", workbook.ErrFormat)
		}
		if r.pos >= len(r.segs[r.seg]) {
			r.seg, r.pos = r.seg+1, 0
			if r.seg >= len(r.segs) || len(r.segs[r.seg]) == 0 {
				return "", fmt.Errorf("%w: SST truncated", workbook.ErrFormat)
			}
			high = r.segs[r.seg][0]&0x01 != 0
			r.pos = 1
			continue
		}
		width := 1
		if high {
			width = 2
		}
		n := min(remaining, (len(r.segs[r.seg])-r.pos)/width)
		if n == 0 {
			return "", fmt.Errorf("%w: character split between SST records", workbook.ErrFormat)
		}
		var m int
		var err error
		if buf, m, err = appendUnits(buf, r.segs[r.seg][r.pos:], n, high); err != nil {
			return "", err
		}
		r.pos += m
		remaining -= n
	}
	if _, err := r.bytes(4*runs + ext); err != nil {
		return "", err
	}
	return string(utf16.Decode(buf)), nil
}

func parseSST(segs [][]byte) ([]string, error) {
	if len(segs) == 0 {
		return nil, nil
	}
	r := sstReader{segs: segs}
	hdr, err := r.bytes(8)
	if err != nil {
		return nil, err
	}
	n := int(le.Uint32(hdr[4:]))
	strs := make([]string, 0, min(n, 1<<16))
	for range n {
		s, err := r.str()
		if err != nil {
			return strs, fmt.Errorf("string %d/%d: %w", len(strs), n, err)
		}
		strs = append(strs, s)
	}
	return strs, nil
}

// numberCell returns the cell for v, formatted with XF ixfe.
func (g *globals) numberCell(v float64, ixfe int) workbook.Cell {
	if ixfe >= 0 && ixfe < len(g.xfFormats) {
		ifmt := g.xfFormats[ixfe]
		if xldate.IsBuiltinDateFormat(ifmt) || (g.formats[ifmt] != "" && xldate.IsDateFormat(g.formats[ifmt])) {
			return workbook.DateTime(xldate.ToTime(v, g.date1904))
		}
		if ifmt == 1 && v == math.Trunc(v) && math.Abs(v) < 1<<63 {
			return workbook.Integer(int64(v))
		}
	}
	return workbook.Number(v)
}

func (g *globals) parseSheet(ws *workbook.Worksheet, stream []byte, off int) error {
	if off <= 0 || off >= len(stream) {
		return fmt.Errorf("%w: substream offset %d out of range", workbook.ErrFormat, off)
	}
	if err := checkBOF(stream, off, dtWorksheet); err != nil {
		return err
	}
	rs := records{stream: stream, off: off}
	rs.next()
	depth := 0
	pendRow, pendCol := -1, -1
	set := func(rw, col int, c workbook.Cell) error {
		if c.IsEmpty() {
			return nil
		}
		return ws.SetCell(rw, col, c)
	}
	for {
		rec, ok := rs.next()
		if !ok {
			if rs.err != nil {
				return rs.err
			}
			return fmt.Errorf("%w: worksheet substream without EOF", workbook.ErrFormat)
		}
		// embedded substreams (charts)
		if rec.Type == recBOF {
			depth++
			continue
		}
		if rec.Type == recEOF {
			if depth == 0 {
				return nil
			}
			depth--
			continue
		}
		if depth != 0 {
			continue
		}
		var rw, col, ixfe int
		if len(rec.Data) >= 6 {
			rw, col, ixfe = int(le.Uint16(rec.Data)), int(le.Uint16(rec.Data[2:])), int(le.Uint16(rec.Data[4:]))
		}
		var err error
		switch rec.Type {
		case recLabelSST:
			if err = short(rec, 10); err != nil {
				return err
			}
			isst := int(le.Uint32(rec.Data[6:]))
			if isst >= len(g.sst) {
				return fmt.Errorf("%w: SST index %d out of %d", workbook.ErrFormat, isst, len(g.sst))
			}
			err = set(rw, col, workbook.Text(g.sst[isst]))
		case recLabel:
			if err = short(rec, 9); err != nil {
				return err
			}
			var s string
			if s, _, err = unicodeString(rec.Data[6:], false); err != nil {
				return err
			}
			err = set(rw, col, workbook.Text(s))
		case recNumber:
			if err = short(rec, 14); err != nil {
				return err
			}
			err = set(rw, col, g.numberCell(math.Float64frombits(le.Uint64(rec.Data[6:])), ixfe))
		case recRK:
			if err = short(rec, 10); err != nil {
				return err
			}
			err = set(rw, col, g.numberCell(rkValue(le.Uint32(rec.Data[6:])), ixfe))
		case recMulRK:
			if err = short(rec, 6); err != nil {
				return err
			}
			// rw colFirst (ixfe rk)* colLast
			items := rec.Data[4 : len(rec.Data)-2]
			for i := 0; i+6 <= len(items) && err == nil; i += 6 {
				err = set(rw, col+i/6, g.numberCell(rkValue(le.Uint32(items[i+2:])), int(le.Uint16(items[i:]))))
			}
		case recBoolErr:
			if err = short(rec, 8); err != nil {
				return err
			}
			if rec.Data[7] != 0 {
				err = set(rw, col, workbook.Text(errorText(rec.Data[6])))
			} else {
				err = set(rw, col, workbook.Bool(rec.Data[6] != 0))
			}
		case recFormula:
			if err = short(rec, 14); err != nil {
				return err
			}
			val := rec.Data[6:14]
			if le.Uint16(val[6:]) != 0xFFFF {
				err = set(rw, col, g.numberCell(math.Float64frombits(le.Uint64(val)), ixfe))
				break
			}
			switch val[0] {
			case 0: // the result is in the following STRING record
				pendRow, pendCol = rw, col
			case 1:
				err = set(rw, col, workbook.Bool(val[2] != 0))
			case 2:
				err = set(rw, col, workbook.Text(errorText(val[2])))
			}
		case recString:
			if pendRow < 0 {
				continue
			}
			var s string
			if s, _, err = unicodeString(rec.Data, false); err != nil {
				return err
			}
			err = set(pendRow, pendCol, workbook.Text(s))
			pendRow, pendCol = -1, -1
		}
		if err != nil {
			return fmt.Errorf("%w: cell [%d,%d]: %w", workbook.ErrFormat, rw, col, err)
		}
	}
}
