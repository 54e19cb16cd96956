// Copyright 2020, 2023, 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

package excel

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/UNO-SOFT/excel/workbook"
	"github.com/UNO-SOFT/excel/xls"
)

// Writer writes the spreadsheet consisting of the sheets created
// with NewSheet. The write finishes when Close is called.
//
// The writer SHOULD allow writing to separate sheets concurrently,
// and document if it does not provide this functionality.
type Writer interface {
	io.Closer
	NewSheet(name string, cols []Column) (Sheet, error)
}

// Sheet should be Closed when finished.
type Sheet interface {
	io.Closer
	AppendRow(values ...any) error
}

// Style is a style for a column/row/cell.
type Style struct {
	// Format is the number format. "@" (Text) stores every value of the
	// column as Text.
	Format string
}

// Column contains the Name of the column and header's style and column's style.
type Column struct {
	Name           string
	Header, Column Style
}

// Number is a string that contains a number.
type Number string

var _ = (Writer)((*WorkbookWriter)(nil))

// WorkbookWriter is a Writer building a workbook in memory,
// encoded with the given SaveOptions on Close.
//
// This writer allows concurrent writes to separate sheets.
type WorkbookWriter struct {
	w    io.Writer
	wb   *workbook.Workbook
	opts SaveOptions
	mu   sync.Mutex
}

// NewWriter returns a new Writer encoding to w using opts when closed.
func NewWriter(w io.Writer, opts SaveOptions) *WorkbookWriter {
	return &WorkbookWriter{w: w, wb: workbook.New(), opts: opts}
}

// Close encodes the workbook. Only the first call writes.
func (ww *WorkbookWriter) Close() error {
	if ww == nil {
		return nil
	}
	ww.mu.Lock()
	defer ww.mu.Unlock()
	wb, w := ww.wb, ww.w
	ww.wb, ww.w = nil, nil
	if wb == nil || w == nil {
		return nil
	}
	if wb.Len() == 0 {
		if _, err := wb.AddWorksheet(""); err != nil {
			return err
		}
	}
	return New(wb).Write(w, ww.opts)
}

// NewSheet adds a worksheet. If any of the columns has a Name, the first row is the header.
func (ww *WorkbookWriter) NewSheet(name string, columns []Column) (Sheet, error) {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.wb == nil {
		return nil, fmt.Errorf("%w: writer is closed", workbook.ErrInvalidArgument)
	}
	ws, err := ww.wb.AddWorksheet(name)
	if err != nil {
		return nil, err
	}
	maxRows := workbook.MaxRowCount
	if ww.opts != nil && ww.opts.Format() == Xls {
		maxRows = xls.MaxRowCount
	}
	sh := &WorksheetWriter{ws: ws, maxRows: maxRows, mu: &ww.mu}
	var hasHeader bool
	for i, c := range columns {
		if c.Column.Format == "@" {
			if sh.text == nil {
				sh.text = make(map[int]bool)
			}
			sh.text[i] = true
		}
		if c.Name != "" {
			hasHeader = true
			if err := ws.SetCell(0, i, workbook.Text(c.Name)); err != nil {
				return nil, err
			}
		}
	}
	if hasHeader {
		sh.row++
	}
	return sh, nil
}

// WorksheetWriter appends rows to a worksheet of a WorkbookWriter.
type WorksheetWriter struct {
	ws      *workbook.Worksheet
	text    map[int]bool
	mu      *sync.Mutex
	row     int
	maxRows int
}

func (sh *WorksheetWriter) Close() error { return nil }

// AppendRow appends the values as the next row.
//
// Besides what workbook.FromValue accepts, values may be driver.Valuer,
// sql.Null*, fmt.Stringer, Number and workbook.Cell.
// nil and invalid Null values leave the cell Empty.
func (sh *WorksheetWriter) AppendRow(values ...any) error {
	// the worksheets share their workbook, so a common lock is needed
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.row >= sh.maxRows {
		return workbook.ErrTooManyRows
	}
	row := sh.row
	sh.row++
	if err := sh.ws.SetCell(row, 0, workbook.Empty); err != nil {
		return err
	}
	for i, v := range values {
		c, err := toCell(v)
		if err != nil {
			return fmt.Errorf("%s[%d,%d]: %w", sh.ws.Name, row, i, err)
		}
		if sh.text[i] && !c.IsEmpty() {
			c = workbook.Text(c.String())
		}
		if err := sh.ws.SetCell(row, i, c); err != nil {
			return fmt.Errorf("%s[%d,%d]: %w", sh.ws.Name, row, i, err)
		}
	}
	return nil
}

func toCell(v any) (workbook.Cell, error) {
	if v == nil {
		return workbook.Empty, nil
	}
	switch x := v.(type) {
	case workbook.Cell:
		return x, nil
	case time.Time:
		if x.IsZero() {
			return workbook.Empty, nil
		}
		return workbook.DateTime(x), nil
	case sql.NullTime:
		if !x.Valid || x.Time.IsZero() {
			return workbook.Empty, nil
		}
		return workbook.DateTime(x.Time), nil
	case sql.NullFloat64:
		if !x.Valid {
			return workbook.Empty, nil
		}
		return workbook.Number(x.Float64), nil
	case sql.NullInt64:
		if !x.Valid {
			return workbook.Empty, nil
		}
		return workbook.Integer(x.Int64), nil
	case sql.NullInt32:
		if !x.Valid {
			return workbook.Empty, nil
		}
		return workbook.Integer(int64(x.Int32)), nil
	case sql.NullBool:
		if !x.Valid {
			return workbook.Empty, nil
		}
		return workbook.Bool(x.Bool), nil
	case sql.NullString:
		if !x.Valid {
			return workbook.Empty, nil
		}
		return workbook.Text(x.String), nil
	case Number:
		if x == "" {
			return workbook.Empty, nil
		}
		if i, err := strconv.ParseInt(string(x), 10, 64); err == nil {
			return workbook.Integer(i), nil
		}
		f, err := strconv.ParseFloat(string(x), 64)
		if err != nil {
			return workbook.Empty, fmt.Errorf("%w: Number %q: %w", workbook.ErrInvalidArgument, x, err)
		}
		return workbook.Number(f), nil
	case []byte:
		return workbook.Text(string(x)), nil
	case driver.Valuer:
		vv, err := x.Value()
		if err != nil {
			return workbook.Empty, fmt.Errorf("%w: %T: %w", workbook.ErrInvalidArgument, v, err)
		}
		return toCell(vv)
	case fmt.Stringer:
		return workbook.Text(x.String()), nil
	}
	return workbook.FromValue(v)
}
