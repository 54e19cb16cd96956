// Copyright 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

package xls

import (
	"bytes"
	"crypto/rc4"
	"crypto/sha1"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/UNO-SOFT/zlog/v2"
	"github.com/google/go-cmp/cmp"

	"github.com/UNO-SOFT/excel/workbook"
)

func sampleWorkbook(t *testing.T) *workbook.Workbook {
	t.Helper()
	wb := workbook.New()
	first, err := wb.AddWorksheet("First")
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range []struct {
		row, col int
		v        any
	}{
		{0, 0, "A1"},
		{0, 1, true},
		{1, 0, 3.25},
		{1, 1, int64(-42)},
		{2, 2, time.Date(2024, 2, 29, 10, 30, 0, 0, time.UTC)},
		{3, 0, "árvíztűrő"},
		{3, 1, "日本語"},
		{7, 3, "A1"},
		{8, 255, 1e100},
	} {
		if err := first.SetValue(c.row, c.col, c.v); err != nil {
			t.Fatal(err)
		}
	}
	second, err := wb.AddWorksheet("Második")
	if err != nil {
		t.Fatal(err)
	}
	if err := second.SetValue(65535, 0, false); err != nil {
		t.Fatal(err)
	}
	if err := wb.SetActive(1); err != nil {
		t.Fatal(err)
	}
	return wb
}

func dump(wb *workbook.Workbook) map[string]map[[2]int]workbook.Cell {
	m := make(map[string]map[[2]int]workbook.Cell)
	for _, ws := range wb.Worksheets() {
		cells := make(map[[2]int]workbook.Cell)
		for i, r := range ws.Rows {
			for _, c := range r.Columns() {
				cells[[2]int{i, c}] = r.Cell(c)
			}
		}
		m[ws.Name] = cells
	}
	return m
}

func TestRoundTrip(t *testing.T) {
	slog.SetDefault(zlog.NewT(t).SLog())
	for _, password := range []string{"", "Titok123"} {
		wb := sampleWorkbook(t)
		var buf bytes.Buffer
		if err := Encode(&buf, wb, Options{Password: password}); err != nil {
			t.Fatal(err)
		}
		got, err := Decode(buf.Bytes(), Options{Password: password})
		if err != nil {
			t.Fatalf("password=%q: %+v", password, err)
		}
		if d := cmp.Diff(dump(wb), dump(got)); d != "" {
			t.Errorf("password=%q: %s", password, d)
		}
		if got.ActiveIndex() != 1 {
			t.Errorf("active: got %d", got.ActiveIndex())
		}
		if got.Worksheets()[1].RowCount() != 65536 {
			t.Errorf("rows: got %d", got.Worksheets()[1].RowCount())
		}
	}
}

func TestEncrypted(t *testing.T) {
	wb := sampleWorkbook(t)
	var buf bytes.Buffer
	if err := Encode(&buf, wb, Options{Password: "secret"}); err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(buf.Bytes(), []byte("First")) {
		t.Error("sheet name found in clear text")
	}
	for _, pw := range []string{"", "wrong"} {
		if _, err := Decode(buf.Bytes(), Options{Password: pw}); !errors.Is(err, workbook.ErrAuthentication) {
			t.Errorf("password %q: got %v", pw, err)
		}
	}
	// Excel's default password needs none
	buf.Reset()
	if err := Encode(&buf, wb, Options{Password: defaultPassword}); err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(buf.Bytes(), Options{}); err != nil {
		t.Errorf("default password: %+v", err)
	}
}

func TestLongSST(t *testing.T) {
	wb := workbook.New()
	ws, _ := wb.AddWorksheet("S")
	want := []string{
		strings.Repeat("x", 20000),
		strings.Repeat("ő", 9000),
		strings.Repeat("ab", 4100) + "ű",
		"",
		strings.Repeat("😀", 5000),
		"a" + strings.Repeat("😀", 5000),
		strings.Repeat("😀ő", 3000),
	}
	for i := range 3000 {
		want = append(want, strings.Repeat("y", i%50)+string(rune('a'+i%26)))
	}
	for i, s := range want {
		if err := ws.SetValue(i, 0, s); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	if err := Encode(&buf, wb, Options{}); err != nil {
		t.Fatal(err)
	}
	got, err := Decode(buf.Bytes(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	gs := got.Worksheets()[0]
	for i, s := range want {
		c := gs.Cell(i, 0)
		if s == "" {
			if !c.Equal(workbook.Text("")) {
				t.Errorf("%d: got %v", i, c)
			}
			continue
		}
		if g, err := c.Text(); err != nil || g != s {
			t.Errorf("%d: got %d chars (%v), wanted %d", i, len(g), err, len(s))
		}
	}
}

func TestLimits(t *testing.T) {
	wb := workbook.New()
	ws, _ := wb.AddWorksheet("S")
	if err := ws.SetValue(MaxRowCount, 0, 1); err != nil {
		t.Fatal(err)
	}
	if err := Encode(&bytes.Buffer{}, wb, Options{}); !errors.Is(err, workbook.ErrTooManyRows) {
		t.Errorf("rows: got %v", err)
	}
	wb = workbook.New()
	ws, _ = wb.AddWorksheet("S")
	_ = ws.SetValue(0, MaxColumnCount, 1)
	if err := Encode(&bytes.Buffer{}, wb, Options{}); !errors.Is(err, workbook.ErrInvalidArgument) {
		t.Errorf("columns: got %v", err)
	}
	if err := Encode(&bytes.Buffer{}, workbook.New(), Options{}); !errors.Is(err, workbook.ErrInvalidArgument) {
		t.Errorf("empty: got %v", err)
	}
	if _, err := Decode([]byte("PK\x03\x04 not an xls"), Options{}); !errors.Is(err, workbook.ErrFormat) {
		t.Errorf("zip: got %v", err)
	}
}

// biffStream builds a bare BIFF8 stream with one worksheet holding recs.
func biffStream(globals []record, recs []record) []byte {
	var w recWriter
	w.rec(recBOF, bof(dtGlobals))
	for _, r := range globals {
		w.rec(r.Type, r.Data)
	}
	for range 15 {
		w.rec(recXF, xf(0, 0, 0xFFF5, 0))
	}
	w.rec(recXF, xf(0, 0, 1, 0))
	w.rec(recXF, xf(0, 1, 1, 4))
	w.rec(recXF, xf(0, 14, 1, 4))
	w.rec(recXF, xf(0, 164, 1, 4))
	pos := w.Len() + 4
	w.rec(recBoundSheet, appendUnicodeString([]byte{0, 0, 0, 0, 0, 0}, "S", true))
	w.writeSST([]string{"shared"}, 1)
	w.rec(recEOF, nil)
	le.PutUint32(w.Bytes()[pos:], uint32(w.Len()))
	w.rec(recBOF, bof(dtWorksheet))
	for _, r := range recs {
		w.rec(r.Type, r.Data)
	}
	w.rec(recEOF, nil)
	return w.Bytes()
}

func cellHdr(row, col, ixfe uint16) []byte {
	return le.AppendUint16(le.AppendUint16(le.AppendUint16(nil, row), col), ixfe)
}

func TestDecodeRecords(t *testing.T) {
	rk := func(v uint32) []byte { return le.AppendUint32(nil, v) }
	formula := func(row, col uint16, val []byte) []byte {
		b := append(cellHdr(row, col, 15), val...)
		return append(b, 0, 0, 0, 0, 0, 0, 0, 0)
	}
	fmtRec := le.AppendUint16(nil, 164)
	fmtRec = appendUnicodeString(fmtRec, "yyyy\\-mm\\-dd", false)
	chartBOF := le.AppendUint16(le.AppendUint16(nil, biff8Version), 0x20)
	stream := biffStream(
		[]record{
			{Type: recFormat, Data: fmtRec},
			{Type: recDateMode, Data: []byte{1, 0}},
		},
		[]record{
			{Type: recRK, Data: append(cellHdr(0, 0, 15), rk(123<<2|2)...)},
			{Type: recRK, Data: append(cellHdr(0, 1, 15), rk(12345<<2|3)...)},
			{Type: recRK, Data: append(cellHdr(0, 2, 16), rk(7<<2|2)...)},
			{Type: recMulRK, Data: append(append(append(le.AppendUint16(le.AppendUint16(nil, 1), 0),
				append(le.AppendUint16(nil, 15), rk(1<<2|2)...)...), append(le.AppendUint16(nil, 17), rk(2<<2|2)...)...), 1, 0)},
			{Type: recLabel, Data: appendUnicodeString(cellHdr(2, 0, 15), "label", false)},
			{Type: recLabelSST, Data: le.AppendUint32(cellHdr(2, 1, 15), 0)},
			{Type: recBoolErr, Data: append(cellHdr(3, 0, 15), 0x07, 1)},
			{Type: recBoolErr, Data: append(cellHdr(3, 1, 15), 1, 0)},
			{Type: recFormula, Data: formula(4, 0, []byte{0, 0, 0, 0, 0, 0, 0xFF, 0xFF})},
			{Type: recString, Data: appendUnicodeString(nil, "cached", false)},
			{Type: recFormula, Data: formula(4, 1, []byte{1, 0, 1, 0, 0, 0, 0xFF, 0xFF})},
			{Type: recFormula, Data: formula(4, 2, appendFloat(nil, 0.5))},
			{Type: recBOF, Data: chartBOF},
			{Type: recNumber, Data: appendFloat(cellHdr(9, 9, 15), 1)},
			{Type: recEOF},
			{Type: recNumber, Data: appendFloat(cellHdr(5, 0, 18), 1)},
		},
	)
	wb, err := Decode(stream, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !wb.Date1904 {
		t.Error("date1904 lost")
	}
	ws := wb.Worksheets()[0]
	want := map[[2]int]workbook.Cell{
		{0, 0}: workbook.Number(123),
		{0, 1}: workbook.Number(123.45),
		{0, 2}: workbook.Integer(7),
		{1, 0}: workbook.Number(1),
		{1, 1}: workbook.DateTime(time.Date(1904, 1, 3, 0, 0, 0, 0, time.UTC)),
		{2, 0}: workbook.Text("label"),
		{2, 1}: workbook.Text("shared"),
		{3, 0}: workbook.Text("#DIV/0!"),
		{3, 1}: workbook.Bool(true),
		{4, 0}: workbook.Text("cached"),
		{4, 1}: workbook.Bool(true),
		{4, 2}: workbook.Number(0.5),
		{5, 0}: workbook.DateTime(time.Date(1904, 1, 2, 0, 0, 0, 0, time.UTC)),
	}
	if d := cmp.Diff(want, dump(wb)["S"]); d != "" {
		t.Error(d)
	}
	if ws.RowCount() != 6 {
		t.Errorf("rows: got %d", ws.RowCount())
	}
}

func TestDecodeNotBIFF8(t *testing.T) {
	var w recWriter
	w.rec(recBOF, []byte{0x00, 0x05, 0x05, 0x00, 0, 0, 0, 0})
	w.rec(recEOF, nil)
	if _, err := Decode(w.Bytes(), Options{}); !errors.Is(err, workbook.ErrFormat) {
		t.Errorf("BIFF5: got %v", err)
	}
	var x recWriter
	x.rec(recBOF, bof(dtGlobals))
	x.rec(recFilePass, []byte{0, 0, 1, 2, 3, 4})
	x.rec(recEOF, nil)
	if _, err := Decode(x.Bytes(), Options{Password: "x"}); !errors.Is(err, workbook.ErrFormat) {
		t.Errorf("XOR: got %v", err)
	}
}

func TestCryptoAPI(t *testing.T) {
	const password = "Jelszó"
	salt := bytes.Repeat([]byte{0x5A}, 16)
	verifier := []byte("0123456789abcdef")
	key := cryptoAPIKey(password, salt, 128)
	c, err := rc4.NewCipher(key(0))
	if err != nil {
		t.Fatal(err)
	}
	hash := sha1.Sum(verifier)
	encVerifier := make([]byte, 16)
	c.XORKeyStream(encVerifier, verifier)
	encHash := make([]byte, 20)
	c.XORKeyStream(encHash, hash[:])

	header := make([]byte, 32)
	le.PutUint32(header[8:], 0x6801)  // RC4
	le.PutUint32(header[12:], 0x8004) // SHA-1
	le.PutUint32(header[16:], 128)
	fp := le.AppendUint16(nil, 1)
	fp = le.AppendUint16(fp, 2)
	fp = le.AppendUint16(fp, 2)
	fp = le.AppendUint32(fp, 0)
	fp = le.AppendUint32(fp, uint32(len(header)))
	fp = append(fp, header...)
	fp = le.AppendUint32(fp, 16)
	fp = append(fp, salt...)
	fp = append(fp, encVerifier...)
	fp = le.AppendUint32(fp, 20)
	fp = append(fp, encHash...)

	stream := biffStream([]record{{Type: recFilePass, Data: fp}},
		[]record{{Type: recNumber, Data: appendFloat(cellHdr(0, 0, 15), math.Pi)}})
	// FILEPASS directly follows BOF (20 bytes)
	from := 20 + 4 + len(fp)
	if err := cryptRecords(stream, from, &rc4Stream{key: key}); err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(stream, Options{Password: "nope"}); !errors.Is(err, workbook.ErrAuthentication) {
		t.Errorf("wrong password: got %v", err)
	}
	wb, err := Decode(stream, Options{Password: password})
	if err != nil {
		t.Fatal(err)
	}
	if f, err := wb.Worksheets()[0].DoubleValue(0, 0); err != nil || f != math.Pi {
		t.Errorf("got %v, %v", f, err)
	}
}

func TestRC4Offsets(t *testing.T) {
	key := standardKey("pw", make([]byte, 16))
	plain := bytes.Repeat([]byte("abcdefgh"), 500)
	whole := append([]byte(nil), plain...)
	(&rc4Stream{key: key}).xorAt(0, whole)
	// the same bytes encrypted in pieces, skipping some, give the same result
	s := &rc4Stream{key: key}
	pieces := append([]byte(nil), plain...)
	for _, rng := range [][2]int{{0, 10}, {14, 1030}, {1030, 1500}, {2100, 4000}} {
		s.xorAt(rng[0], pieces[rng[0]:rng[1]])
	}
	for _, rng := range [][2]int{{0, 10}, {14, 1500}, {2100, 4000}} {
		if !bytes.Equal(whole[rng[0]:rng[1]], pieces[rng[0]:rng[1]]) {
			t.Errorf("%v differs", rng)
		}
	}
}
