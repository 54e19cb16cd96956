// Copyright 2020, 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

// Package excel loads, edits and saves spreadsheets in the XLSX, XLS and CSV
// formats.
//
//	s, err := excel.Open("in.xlsx", excel.XlsxLoadOptions{Password: pw})
//	...
//	s.SetValue(0, 0, "total")
//	err = s.SaveAs("out.csv", excel.CsvSaveOptions{CsvType: excel.SemicolonDelimited})
//
// A Spreadsheet is not safe for concurrent use.
package excel

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/renameio/v2"

	"github.com/UNO-SOFT/excel/workbook"
)

// Spreadsheet is an open document. Cell methods work on the active worksheet.
type Spreadsheet struct {
	wb *workbook.Workbook
}

// Create returns a new document with one empty, active worksheet named Sheet1.
func Create() *Spreadsheet {
	wb := workbook.New()
	if _, err := wb.AddWorksheet("Sheet1"); err != nil {
		panic(err)
	}
	return &Spreadsheet{wb: wb}
}

// New wraps an existing workbook.
func New(wb *workbook.Workbook) *Spreadsheet { return &Spreadsheet{wb: wb} }

// Open reads the file at path.
// With nil opts the format is detected from the content and the extension.
func Open(path string, opts LoadOptions) (*Spreadsheet, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	s, err := open(fh, path, opts)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	return s, nil
}

// OpenReader reads the document from r.
// With nil opts the format is detected from the content.
func OpenReader(r io.Reader, opts LoadOptions) (*Spreadsheet, error) {
	return open(r, "", opts)
}

func open(r io.Reader, name string, opts LoadOptions) (*Spreadsheet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f := Unknown
	if opts != nil {
		f = opts.Format()
	} else if f = DetectFormat(data, name); f == Unknown {
		return nil, fmt.Errorf("%w: cannot detect the format of %q", workbook.ErrUnsupportedFormat, name)
	}
	c, err := lookupCodec(f)
	if err != nil {
		return nil, err
	}
	slog.Debug("open", "name", name, "format", f, "size", len(data))
	wb, err := c.Decode(data, opts)
	if err != nil {
		return nil, err
	}
	return &Spreadsheet{wb: wb}, nil
}

// Save writes the document to path, in the format of its extension.
func (s *Spreadsheet) Save(path string) error {
	opts, err := SaveOptionsFor(path)
	if err != nil {
		return err
	}
	return s.SaveAs(path, opts)
}

// SaveAs writes the document to path using opts.
// The file is replaced atomically, and not touched when encoding fails.
func (s *Spreadsheet) SaveAs(path string, opts SaveOptions) error {
	fh, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return err
	}
	defer fh.Cleanup()
	bw := bufio.NewWriterSize(fh, 1<<20)
	if err := s.Write(bw, opts); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	return fh.CloseAtomicallyReplace()
}

// Write encodes the document to w using opts.
func (s *Spreadsheet) Write(w io.Writer, opts SaveOptions) error {
	if opts == nil {
		return fmt.Errorf("%w: nil SaveOptions", workbook.ErrInvalidArgument)
	}
	c, err := lookupCodec(opts.Format())
	if err != nil {
		return err
	}
	slog.Debug("save", "format", opts.Format(), "sheets", s.wb.Len())
	return c.Encode(w, s.wb, opts)
}

// Workbook returns the underlying workbook.
func (s *Spreadsheet) Workbook() *workbook.Workbook { return s.wb }

// Worksheet returns the active worksheet.
// A workbook without worksheets (e.g. chartsheets only) gives an empty,
// unattached one; the setters add a worksheet in that case.
func (s *Spreadsheet) Worksheet() *workbook.Worksheet {
	if ws := s.wb.Active(); ws != nil {
		return ws
	}
	return workbook.NewWorksheet("")
}

func (s *Spreadsheet) writable() (*workbook.Worksheet, error) {
	if ws := s.wb.Active(); ws != nil {
		return ws, nil
	}
	return s.wb.AddWorksheet("")
}

// SetActiveWorksheet selects the worksheet the cell methods work on.
func (s *Spreadsheet) SetActiveWorksheet(i int) error { return s.wb.SetActive(i) }

// RowCount returns the number of allocated rows of the active worksheet.
func (s *Spreadsheet) RowCount() int { return s.Worksheet().RowCount() }

// ColumnCount returns one past the highest used column of the active worksheet.
func (s *Spreadsheet) ColumnCount() int { return s.Worksheet().MaxUsedColumns() }

func (s *Spreadsheet) Cell(row, col int) workbook.Cell { return s.Worksheet().Cell(row, col) }

func (s *Spreadsheet) BoolValue(row, col int) (bool, error) {
	return s.Worksheet().BoolValue(row, col)
}
func (s *Spreadsheet) DoubleValue(row, col int) (float64, error) {
	return s.Worksheet().DoubleValue(row, col)
}
func (s *Spreadsheet) IntValue(row, col int) (int64, error) {
	return s.Worksheet().IntValue(row, col)
}
func (s *Spreadsheet) StringValue(row, col int) (string, error) {
	return s.Worksheet().StringValue(row, col)
}
func (s *Spreadsheet) TimeValue(row, col int) (time.Time, error) {
	return s.Worksheet().TimeValue(row, col)
}

// SetValue stores v, converted with workbook.FromValue.
func (s *Spreadsheet) SetValue(row, col int, v any) error {
	ws, err := s.writable()
	if err != nil {
		return err
	}
	return ws.SetValue(row, col, v)
}

func (s *Spreadsheet) SetCell(row, col int, c workbook.Cell) error {
	ws, err := s.writable()
	if err != nil {
		return err
	}
	return ws.SetCell(row, col, c)
}
func (s *Spreadsheet) SetBool(row, col int, v bool) error {
	return s.SetCell(row, col, workbook.Bool(v))
}
func (s *Spreadsheet) SetDouble(row, col int, v float64) error {
	return s.SetCell(row, col, workbook.Number(v))
}
func (s *Spreadsheet) SetInt(row, col int, v int64) error {
	return s.SetCell(row, col, workbook.Integer(v))
}
func (s *Spreadsheet) SetString(row, col int, v string) error {
	return s.SetCell(row, col, workbook.Text(v))
}
func (s *Spreadsheet) SetTime(row, col int, v time.Time) error {
	return s.SetCell(row, col, workbook.DateTime(v))
}

// Clear empties the cell.
func (s *Spreadsheet) Clear(row, col int) error {
	ws, err := s.writable()
	if err != nil {
		return err
	}
	return ws.Clear(row, col)
}
