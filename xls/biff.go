// Copyright 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

package xls

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"

	"github.com/UNO-SOFT/excel/workbook"
)

// BIFF8 record types.
const (
	recFormula     = 0x0006
	recEOF         = 0x000A
	recDateMode    = 0x0022
	recFilePass    = 0x002F
	recFont        = 0x0031
	recWindow1     = 0x003D
	recContinue    = 0x003C
	recCodePage    = 0x0042
	recBoundSheet  = 0x0085
	recMulRK       = 0x00BD
	recXF          = 0x00E0
	recInterface   = 0x00E1
	recSST         = 0x00FC
	recLabelSST    = 0x00FD
	recExtSST      = 0x00FF
	recRRDHead     = 0x0138
	recUsrExcl     = 0x0194
	recFileLock    = 0x0195
	recRRDInfo     = 0x0196
	recDimensions  = 0x0200
	recNumber      = 0x0203
	recLabel       = 0x0204
	recBoolErr     = 0x0205
	recString      = 0x0207
	recWindow2     = 0x023E
	recRK          = 0x027E
	recStyle       = 0x0293
	recFormat      = 0x041E
	recBOF         = 0x0809
	biff8Version   = 0x0600
	dtGlobals      = 0x0005
	dtWorksheet    = 0x0010
	maxRecordData  = 8224
	maxTextLen     = 32_767
	sheetTypeWorks = 0
)

// The grid of a BIFF8 worksheet.
const (
	MaxRowCount    = 65_536
	MaxColumnCount = 256
)

var le = binary.LittleEndian

type record struct {
	Type uint16
	// Offset of Data in the stream.
	Offset int
	Data   []byte
}

// records iterates over the records of a BIFF stream, starting at off.
type records struct {
	stream []byte
	off    int
	err    error
}

func (rs *records) next() (record, bool) {
	if rs.err != nil || rs.off+4 > len(rs.stream) {
		return record{}, false
	}
	typ, n := le.Uint16(rs.stream[rs.off:]), int(le.Uint16(rs.stream[rs.off+2:]))
	start := rs.off + 4
	if start+n > len(rs.stream) {
		rs.err = fmt.Errorf("%w: record 0x%04X at %d: length %d overflows the stream", workbook.ErrFormat, typ, rs.off, n)
		return record{}, false
	}
	rs.off = start + n
	return record{Type: typ, Offset: start, Data: rs.stream[start:rs.off]}, true
}

// decodeChars decodes n characters at b: UTF-16LE if high is set, else
// "compressed" single bytes (the low byte of UTF-16 code units).
func decodeChars(b []byte, n int, high bool) (string, int, error) {
	u, m, err := appendUnits(make([]uint16, 0, n), b, n, high)
	if err != nil {
		return "", 0, err
	}
	return string(utf16.Decode(u)), m, nil
}

// appendUnits appends n UTF-16 code units read from b to dst.
// Compressed characters are single bytes.
func appendUnits(dst []uint16, b []byte, n int, high bool) ([]uint16, int, error) {
	width := 1
	if high {
		width = 2
	}
	if len(b) < width*n {
		return dst, 0, fmt.Errorf("%w: string of %d characters truncated", workbook.ErrFormat, n)
	}
	for i := range n {
		if high {
			dst = append(dst, le.Uint16(b[2*i:]))
		} else {
			dst = append(dst, uint16(b[i]))
		}
	}
	return dst, width * n, nil
}

// unicodeString parses an XLUnicodeString (16-bit length) or, if short,
// a ShortXLUnicodeString (8-bit length). It returns the bytes consumed.
func unicodeString(b []byte, short bool) (string, int, error) {
	var n, off int
	if short {
		if len(b) < 2 {
			return "", 0, fmt.Errorf("%w: short string header", workbook.ErrFormat)
		}
		n, off = int(b[0]), 1
	} else {
		if len(b) < 3 {
			return "", 0, fmt.Errorf("%w: string header", workbook.ErrFormat)
		}
		n, off = int(le.Uint16(b)), 2
	}
	flags := b[off]
	off++
	s, m, err := decodeChars(b[off:], n, flags&0x01 != 0)
	return s, off + m, err
}

// compressible reports whether every code unit fits into a byte.
func compressible(u []uint16) bool {
	for _, c := range u {
		if c > 0xFF {
			return false
		}
	}
	return true
}

// appendChars appends the code units in the given width (1 or 2 bytes).
func appendChars(b []byte, u []uint16, width int) []byte {
	for _, c := range u {
		if width == 1 {
			b = append(b, byte(c))
		} else {
			b = le.AppendUint16(b, c)
		}
	}
	return b
}

func appendUnicodeString(b []byte, s string, short bool) []byte {
	u := utf16.Encode([]rune(s))
	if short {
		b = append(b, byte(len(u)))
	} else {
		b = le.AppendUint16(b, uint16(len(u)))
	}
	if compressible(u) {
		return appendChars(append(b, 0), u, 1)
	}
	return appendChars(append(b, 1), u, 2)
}

// rkValue decodes an RK number: bit 1 marks a 30-bit integer, otherwise the
// upper 30 bits of an IEEE double; bit 0 means the value is multiplied by 100.
func rkValue(rk uint32) float64 {
	var v float64
	if rk&0x02 != 0 {
		v = float64(int32(rk) >> 2)
	} else {
		v = math.Float64frombits(uint64(rk&0xFFFFFFFC) << 32)
	}
	if rk&0x01 != 0 {
		v /= 100
	}
	return v
}

var errorTexts = map[byte]string{
	0x00: "#NULL!",
	0x07: "#DIV/0!",
	0x0F: "#VALUE!",
	0x17: "#REF!",
	0x1D: "#NAME?",
	0x24: "#NUM!",
	0x2A: "#N/A",
	0x2B: "#GETTING_DATA",
}

func errorText(code byte) string {
	if s, ok := errorTexts[code]; ok {
		return s
	}
	return fmt.Sprintf("#ERR%d!", code)
}
