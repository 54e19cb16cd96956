// Copyright 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

package excel_test

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/UNO-SOFT/zlog/v2"
	"github.com/google/go-cmp/cmp"

	"github.com/UNO-SOFT/excel"
	"github.com/UNO-SOFT/excel/workbook"
)

func cells(ws *workbook.Worksheet) map[[2]int]workbook.Cell {
	m := make(map[[2]int]workbook.Cell)
	for i, r := range ws.Rows {
		for _, c := range r.Columns() {
			m[[2]int{i, c}] = r.Cell(c)
		}
	}
	return m
}

func TestCreate(t *testing.T) {
	slog.SetDefault(zlog.NewT(t).SLog())
	s := excel.Create()
	if n := s.Workbook().Len(); n != 1 || s.Worksheet().Name != "Sheet1" {
		t.Fatalf("got %d sheets, active %q", n, s.Worksheet().Name)
	}
	if s.RowCount() != 0 || s.ColumnCount() != 0 {
		t.Errorf("empty sheet: %d rows, %d columns", s.RowCount(), s.ColumnCount())
	}
	if err := s.SetValue(0, 0, "A1"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetValue(7, 1, 0.5); err != nil {
		t.Fatal(err)
	}
	if s.RowCount() != 8 || s.ColumnCount() != 2 {
		t.Errorf("got %d rows, %d columns", s.RowCount(), s.ColumnCount())
	}
	if v, err := s.DoubleValue(7, 1); err != nil || v != 0.5 {
		t.Errorf("(7,1): got %v, %+v", v, err)
	}
	_, err := s.DoubleValue(0, 0)
	var tme *excel.TypeMismatchError
	if !errors.As(err, &tme) || !errors.Is(err, excel.ErrTypeMismatch) {
		t.Fatalf("(0,0): got %+v", err)
	}
	if tme.Want != workbook.KindNumber || tme.Got != workbook.KindText {
		t.Errorf("got %+v", tme)
	}

	if err := s.Clear(7, 1); err != nil {
		t.Fatal(err)
	}
	if s.RowCount() != 8 || s.ColumnCount() != 1 {
		t.Errorf("after clear: %d rows, %d columns", s.RowCount(), s.ColumnCount())
	}
	if err := s.SetValue(-1, 0, 1); !errors.Is(err, excel.ErrIndexOutOfRange) {
		t.Errorf("negative row: got %+v", err)
	}
}

func TestSetActiveWorksheet(t *testing.T) {
	s := excel.Create()
	if _, err := s.Workbook().AddWorksheet("second"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetActiveWorksheet(1); err != nil {
		t.Fatal(err)
	}
	if err := s.SetActiveWorksheet(5); !errors.Is(err, excel.ErrIndexOutOfRange) {
		t.Errorf("got %+v", err)
	}
	if s.Worksheet().Name != "second" {
		t.Errorf("active changed to %q", s.Worksheet().Name)
	}
}

func sample(t *testing.T) *excel.Spreadsheet {
	t.Helper()
	s := excel.Create()
	for _, err := range []error{
		s.SetString(0, 0, "name"),
		s.SetString(0, 1, "amount"),
		s.SetString(1, 0, "árvíztűrő; \"tükörfúrógép\""),
		s.SetDouble(1, 1, 1.25),
		s.SetString(3, 0, "after\ngap"),
		s.SetDouble(3, 2, -3),
	} {
		if err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestNoWorksheets(t *testing.T) {
	s := excel.New(workbook.New())
	if s.RowCount() != 0 || s.ColumnCount() != 0 || !s.Cell(0, 0).IsEmpty() {
		t.Errorf("got %d rows, %d columns", s.RowCount(), s.ColumnCount())
	}
	if n := s.Workbook().Len(); n != 0 {
		t.Fatalf("reading added %d worksheets", n)
	}
	if err := s.SetValue(1, 1, "x"); err != nil {
		t.Fatal(err)
	}
	if n := s.Workbook().Len(); n != 1 {
		t.Fatalf("got %d worksheets", n)
	}
	if v, err := s.StringValue(1, 1); err != nil || v != "x" {
		t.Errorf("got %q, %+v", v, err)
	}
}

func TestSaveOpen(t *testing.T) {
	slog.SetDefault(zlog.NewT(t).SLog())
	dir := t.TempDir()
	s := sample(t)
	if err := s.SetBool(4, 0, true); err != nil {
		t.Fatal(err)
	}
	if err := s.SetInt(4, 1, 42); err != nil {
		t.Fatal(err)
	}
	if err := s.SetTime(4, 2, time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	// the instant survives, the zone does not
	if err := s.SetTime(4, 3, time.Date(2024, 3, 15, 10, 30, 0, 0, time.FixedZone("CET", 3600))); err != nil {
		t.Fatal(err)
	}
	want := cells(s.Worksheet())
	for _, ext := range []string{".xlsx", ".xls"} {
		fn := filepath.Join(dir, "sample"+ext)
		if err := s.Save(fn); err != nil {
			t.Fatalf("%s: %+v", ext, err)
		}
		got, err := excel.Open(fn, nil)
		if err != nil {
			t.Fatalf("%s: %+v", ext, err)
		}
		if d := cmp.Diff(want, cells(got.Worksheet())); d != "" {
			t.Errorf("%s: %s", ext, d)
		}
		if got.RowCount() != 5 || got.ColumnCount() != 4 {
			t.Errorf("%s: %d rows, %d columns", ext, got.RowCount(), got.ColumnCount())
		}
		if v, err := got.IntValue(4, 1); err != nil || v != 42 {
			t.Errorf("%s: IntValue: %v, %+v", ext, v, err)
		}
	}
}

func TestCSV(t *testing.T) {
	dir := t.TempDir()
	s := sample(t)
	for _, tc := range []struct {
		name string
		save excel.SaveOptions
		load excel.LoadOptions
	}{
		{"comma.csv", nil, excel.CsvLoadOptions{ParseNumbers: true}},
		{"tab.txt", nil, excel.CsvLoadOptions{CsvType: excel.TabDelimited, ParseNumbers: true}},
		{"semi.csv", excel.CsvSaveOptions{CsvType: excel.SemicolonDelimited, Charset: "iso-8859-2"},
			excel.CsvLoadOptions{CsvType: excel.SemicolonDelimited, ParseNumbers: true, Charset: "iso-8859-2"}},
	} {
		fn := filepath.Join(dir, tc.name)
		var err error
		if tc.save == nil {
			err = s.Save(fn)
		} else {
			err = s.SaveAs(fn, tc.save)
		}
		if err != nil {
			t.Fatalf("%s: %+v", tc.name, err)
		}
		got, err := excel.Open(fn, tc.load)
		if err != nil {
			t.Fatalf("%s: %+v", tc.name, err)
		}
		if d := cmp.Diff(cells(s.Worksheet()), cells(got.Worksheet())); d != "" {
			t.Errorf("%s: %s", tc.name, d)
		}
		if got.RowCount() != 4 {
			t.Errorf("%s: %d rows", tc.name, got.RowCount())
		}
	}

	// without number parsing, numbers stay text
	got, err := excel.Open(filepath.Join(dir, "comma.csv"), excel.CsvLoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if v, err := got.StringValue(1, 1); err != nil || v != "1.25" {
		t.Errorf("got %q, %+v", v, err)
	}
	if _, err := got.DoubleValue(1, 1); !errors.Is(err, excel.ErrTypeMismatch) {
		t.Errorf("got %+v", err)
	}
}

func TestEncrypted(t *testing.T) {
	dir := t.TempDir()
	s := sample(t)
	for _, tc := range []struct {
		name  string
		save  excel.SaveOptions
		load  func(string) excel.LoadOptions
		right string
	}{
		{"enc.xlsx", excel.XlsxSaveOptions{Password: "Titok"},
			func(pw string) excel.LoadOptions { return excel.XlsxLoadOptions{Password: pw} }, "Titok"},
		{"enc.xls", excel.XlsSaveOptions{Password: "Titok"},
			func(pw string) excel.LoadOptions { return excel.XlsLoadOptions{Password: pw} }, "Titok"},
	} {
		fn := filepath.Join(dir, tc.name)
		if err := s.SaveAs(fn, tc.save); err != nil {
			t.Fatalf("%s: %+v", tc.name, err)
		}
		if _, err := excel.Open(fn, nil); !errors.Is(err, excel.ErrAuthentication) {
			t.Errorf("%s: no password: %+v", tc.name, err)
		}
		if _, err := excel.Open(fn, tc.load("wrong")); !errors.Is(err, excel.ErrAuthentication) {
			t.Errorf("%s: wrong password: %+v", tc.name, err)
		}
		got, err := excel.Open(fn, tc.load(tc.right))
		if err != nil {
			t.Fatalf("%s: %+v", tc.name, err)
		}
		if d := cmp.Diff(cells(s.Worksheet()), cells(got.Worksheet())); d != "" {
			t.Errorf("%s: %s", tc.name, d)
		}
	}
}

type foreignOptions struct{}

func (foreignOptions) Format() excel.Format { return excel.Xlsx }

func TestOptionPointers(t *testing.T) {
	s := sample(t)
	for _, tc := range []struct {
		save excel.SaveOptions
		load excel.LoadOptions
	}{
		{&excel.XlsxSaveOptions{Password: "pw"}, &excel.XlsxLoadOptions{Password: "pw"}},
		{&excel.XlsSaveOptions{Password: "pw"}, &excel.XlsLoadOptions{Password: "pw"}},
	} {
		var buf bytes.Buffer
		if err := s.Write(&buf, tc.save); err != nil {
			t.Fatalf("%s: %+v", tc.save.Format(), err)
		}
		if _, err := excel.OpenReader(bytes.NewReader(buf.Bytes()), nil); !errors.Is(err, excel.ErrAuthentication) {
			t.Errorf("%s: no password: %+v", tc.save.Format(), err)
		}
		got, err := excel.OpenReader(bytes.NewReader(buf.Bytes()), tc.load)
		if err != nil {
			t.Fatalf("%s: %+v", tc.save.Format(), err)
		}
		if d := cmp.Diff(cells(s.Worksheet()), cells(got.Worksheet())); d != "" {
			t.Errorf("%s: %s", tc.save.Format(), d)
		}
	}

	got, err := excel.OpenReader(strings.NewReader("a;b\n"), &excel.CsvLoadOptions{CsvType: excel.SemicolonDelimited})
	if err != nil {
		t.Fatal(err)
	}
	if v, err := got.StringValue(0, 1); err != nil || v != "b" {
		t.Errorf("semicolon: got %q, %+v", v, err)
	}
	if _, err := excel.OpenReader(strings.NewReader("a,b"), &excel.CsvLoadOptions{CsvType: 99}); !errors.Is(err, excel.ErrInvalidArgument) {
		t.Errorf("load CsvType 99: got %+v", err)
	}
	if err := s.Write(io.Discard, &excel.CsvSaveOptions{CsvType: 99}); !errors.Is(err, excel.ErrInvalidArgument) {
		t.Errorf("save CsvType 99: got %+v", err)
	}
	if err := s.Write(io.Discard, foreignOptions{}); !errors.Is(err, excel.ErrInvalidArgument) {
		t.Errorf("foreign save options: got %+v", err)
	}
	if _, err := excel.OpenReader(strings.NewReader("PK"), foreignOptions{}); !errors.Is(err, excel.ErrInvalidArgument) {
		t.Errorf("foreign load options: got %+v", err)
	}
}

type memOptions struct{}

func (memOptions) Format() excel.Format { return "mem" }

type memCodec struct{ wb *workbook.Workbook }

func (c *memCodec) Decode(data []byte, opts excel.LoadOptions) (*workbook.Workbook, error) {
	return c.wb, nil
}
func (c *memCodec) Encode(w io.Writer, wb *workbook.Workbook, opts excel.SaveOptions) error {
	c.wb = wb
	_, err := io.WriteString(w, "mem")
	return err
}

func TestRegistry(t *testing.T) {
	s := sample(t)
	if err := s.Write(io.Discard, memOptions{}); !errors.Is(err, excel.ErrUnsupportedFormat) {
		t.Errorf("unregistered: got %+v", err)
	}
	c := new(memCodec)
	excel.RegisterCodec("mem", c)
	defer excel.RegisterCodec("mem", nil)
	var buf bytes.Buffer
	if err := s.Write(&buf, memOptions{}); err != nil {
		t.Fatal(err)
	}
	if c.wb != s.Workbook() || buf.String() != "mem" {
		t.Errorf("codec not used: %q", buf.String())
	}
	got, err := excel.OpenReader(&buf, memOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Workbook() != s.Workbook() {
		t.Error("decoded another workbook")
	}

	dir := t.TempDir()
	if err := s.Save(filepath.Join(dir, "a.ods")); !errors.Is(err, excel.ErrUnsupportedFormat) {
		t.Errorf("ods: got %+v", err)
	}
	if err := s.Write(io.Discard, excel.CsvSaveOptions{CsvType: 7}); !errors.Is(err, excel.ErrInvalidArgument) {
		t.Errorf("CsvType(7): got %+v", err)
	}
	if _, err := excel.OpenReader(bytes.NewReader([]byte("a")), excel.CsvLoadOptions{CsvType: -1}); !errors.Is(err, excel.ErrInvalidArgument) {
		t.Errorf("CsvType(-1): got %+v", err)
	}
}

func TestSaveFailureKeepsFile(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "keep.csv")
	if err := os.WriteFile(fn, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := sample(t).SaveAs(fn, excel.CsvSaveOptions{CsvType: 9}); err == nil {
		t.Fatal("wanted error")
	}
	if b, err := os.ReadFile(fn); err != nil || string(b) != "old" {
		t.Errorf("got %q, %+v", b, err)
	}
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := excel.Open(filepath.Join(dir, "missing.xlsx"), nil); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing: got %+v", err)
	}
	fn := filepath.Join(dir, "bad.xlsx")
	if err := os.WriteFile(fn, []byte("PK\x03\x04garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := excel.Open(fn, nil); !errors.Is(err, excel.ErrFormat) {
		t.Errorf("bad zip: got %+v", err)
	}
	if _, err := excel.Open(fn, excel.XlsLoadOptions{}); !errors.Is(err, excel.ErrFormat) {
		t.Errorf("zip as xls: got %+v", err)
	}
	empty := filepath.Join(dir, "empty")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := excel.Open(empty, nil); !errors.Is(err, excel.ErrUnsupportedFormat) {
		t.Errorf("empty: got %+v", err)
	}
}

func TestDetectFormat(t *testing.T) {
	var xlsBuf, xlsxBuf, encBuf bytes.Buffer
	s := sample(t)
	if err := s.Write(&xlsBuf, excel.XlsSaveOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(&xlsxBuf, excel.XlsxSaveOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(&encBuf, excel.XlsxSaveOptions{Password: "x"}); err != nil {
		t.Fatal(err)
	}
	for _, tc := range []struct {
		data []byte
		name string
		want excel.Format
	}{
		{xlsBuf.Bytes(), "", excel.Xls},
		{xlsxBuf.Bytes(), "a.xls", excel.Xlsx},
		{encBuf.Bytes(), "", excel.Xlsx},
		{[]byte("a,b"), "", excel.Csv},
		{[]byte("a,b"), "a.XLSX", excel.Xlsx},
		{nil, "a.txt", excel.Csv},
		{nil, "a", excel.Unknown},
	} {
		if got := excel.DetectFormat(tc.data, tc.name); got != tc.want {
			t.Errorf("%q: got %q, wanted %q", tc.name, got, tc.want)
		}
	}
}

func TestParseCsvType(t *testing.T) {
	for in, want := range map[string]excel.CsvType{
		"": excel.CommaDelimited, ";": excel.SemicolonDelimited, "TAB": excel.TabDelimited, `\t`: excel.TabDelimited,
	} {
		if got, err := excel.ParseCsvType(in); err != nil || got != want {
			t.Errorf("%q: got %v, %+v", in, got, err)
		}
	}
	if _, err := excel.ParseCsvType("|"); !errors.Is(err, excel.ErrInvalidArgument) {
		t.Errorf("got %+v", err)
	}
}
